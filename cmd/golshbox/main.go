// Command golshbox builds, persists, and evaluates the eight
// Locality-Sensitive Hashing families of pkg/lshindex, replacing the
// original LSHBOX project's per-family example executables with one
// CLI driven by cobra.
package main

import (
	"fmt"
	"log"
	"math"
	"math/rand"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/liliang-cn/golshbox"
	"github.com/liliang-cn/golshbox/pkg/benchmark"
	"github.com/liliang-cn/golshbox/pkg/lshindex"
	"github.com/liliang-cn/golshbox/pkg/matrix"
	"github.com/liliang-cn/golshbox/pkg/metric"
	"github.com/liliang-cn/golshbox/pkg/scanner"
	"github.com/liliang-cn/golshbox/pkg/topk"
)

var (
	verbose bool
	logger  golshbox.Logger
)

var rootCmd = &cobra.Command{
	Use:   "golshbox",
	Short: "Build, persist, and evaluate approximate nearest-neighbor hash indexes",
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log data loading and index construction")
	cobra.OnInitialize(func() {
		level := golshbox.LevelWarn
		if verbose {
			level = golshbox.LevelDebug
		}
		logger = golshbox.NewStdLogger(level)
	})
	rootCmd.AddCommand(createTestDataCmd, createBenchmarkCmd, testCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Fatal(err)
	}
}

// requestID tags one CLI invocation's log lines so concurrent runs
// writing to the same terminal or log aggregator can be told apart.
func requestID() string {
	return uuid.NewString()
}

// --- create-test-data ---

var (
	testDataRows  int
	testDataDim   int
	testDataRange float64
)

var createTestDataCmd = &cobra.Command{
	Use:   "create-test-data <output_file>",
	Short: "Generate a synthetic float32 dataset for exercising the other subcommands",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		rid := requestID()
		clog := logger.With("cmd", "create-test-data", "request_id", rid)
		clog.Info("generating test data", "rows", testDataRows, "dim", testDataDim, "range", testDataRange)

		start := time.Now()
		m := matrix.New[float32](testDataDim)
		fixed := [][]float64{
			{1, 3, 2, 0, 1, 4, 4, 1, 3, 4},
			{1, 2, 3, 0, 0, 4, 3, 1, 3, 3},
			{0, 3, 3, 0, 0, 4, 4, 1, 4, 4},
			{0, 2, 3, 0, 0, 4, 4, 0, 3, 4},
			{3, 0, 0, 4, 3, 0, 1, 2, 1, 0},
			{3, 0, 0, 3, 2, 0, 1, 3, 0, 0},
			{3, 0, 0, 3, 3, 1, 1, 2, 0, 0},
			{4, 0, 1, 4, 3, 0, 1, 2, 0, 0},
		}
		rng := rand.New(rand.NewSource(time.Now().UnixNano()))
		for i := 0; i < testDataRows; i++ {
			row := make([]float32, testDataDim)
			if i < len(fixed) && testDataDim == len(fixed[i]) {
				for j, v := range fixed[i] {
					row[j] = float32(v)
				}
			} else {
				for j := range row {
					row[j] = float32(rng.Intn(int(testDataRange)))
				}
			}
			if err := m.Append(row); err != nil {
				return fmt.Errorf("golshbox: %w", err)
			}
		}
		if err := m.Save(args[0]); err != nil {
			return err
		}
		clog.Info("wrote test data", "elapsed", time.Since(start).String())
		fmt.Printf("wrote %d rows of dimension %d to %s\n", testDataRows, testDataDim, args[0])
		return nil
	},
}

func init() {
	createTestDataCmd.Flags().IntVar(&testDataRows, "rows", 1000, "number of rows to generate")
	createTestDataCmd.Flags().IntVar(&testDataDim, "dim", 10, "row dimension")
	createTestDataCmd.Flags().Float64Var(&testDataRange, "range", 5, "each coordinate is drawn uniformly from [0, range)")
}

// --- create-benchmark ---

var (
	benchQ    int
	benchK    int
	benchSeed int64
)

var createBenchmarkCmd = &cobra.Command{
	Use:   "create-benchmark <data_file> <benchmark_file>",
	Short: "Sample query rows and compute their true nearest neighbors by linear scan",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		rid := requestID()
		clog := logger.With("cmd", "create-benchmark", "request_id", rid)

		data := matrix.New[float32](0)
		if err := data.Load(args[0]); err != nil {
			return err
		}
		clog.Info("loaded dataset", "rows", data.Size(), "dim", data.Dim())

		met, err := metric.New(data.Dim(), metric.L2)
		if err != nil {
			return err
		}

		b := benchmark.New()
		b.Init(benchQ, benchK, data.Size(), benchSeed)

		start := time.Now()
		if err := b.LinearScan(cmd.Context(), data, met); err != nil {
			return err
		}
		clog.Info("linear scan complete", "elapsed", time.Since(start).String())

		if err := b.Save(args[1]); err != nil {
			return err
		}
		fmt.Printf("wrote benchmark with Q=%d K=%d to %s\n", benchQ, benchK, args[1])
		return nil
	},
}

func init() {
	createBenchmarkCmd.Flags().IntVar(&benchQ, "queries", 200, "number of sampled queries")
	createBenchmarkCmd.Flags().IntVar(&benchK, "k", 50, "number of true nearest neighbors per query")
	createBenchmarkCmd.Flags().Int64Var(&benchSeed, "seed", 2, "query-sampling seed")
}

// --- test ---

var (
	useIndex    bool
	paramM      uint32
	paramL      uint32
	paramN      uint32
	paramSeed   int64
	paramC      uint32
	paramMin    float64
	paramMax    float64
	paramDist   string
	paramW      float64
	paramS      uint32
	paramIters  uint32
	metricKind  string
	useHeapTopK bool
	parallel    bool
)

var testCmd = &cobra.Command{
	Use:   "test <family> <data_file> <lsh_file> <benchmark_file>",
	Short: "Build or load a hash index and report its recall/cost against a benchmark",
	Long: "Families: rbs, rhp, th, psd, sh, itq, dbq, kdbq. " +
		"Builds a fresh index unless --use-index is given, then queries every " +
		"benchmark row and reports mean recall and scan cost.",
	Args: cobra.ExactArgs(4),
	RunE: runTest,
}

func init() {
	testCmd.Flags().BoolVar(&useIndex, "use-index", false, "load lsh_file instead of building a new index")
	testCmd.Flags().Uint32Var(&paramM, "m", 521, "hash table size")
	testCmd.Flags().Uint32Var(&paramL, "l", 5, "number of hash tables")
	testCmd.Flags().Uint32Var(&paramN, "n", 20, "hash functions / coded bits per table")
	testCmd.Flags().Int64Var(&paramSeed, "seed", 0, "random seed (0 derives from the current time)")
	testCmd.Flags().Uint32Var(&paramC, "c", 5, "rbs: coordinate range [0,C)")
	testCmd.Flags().Float64Var(&paramMin, "min", 0, "th: lower coordinate bound")
	testCmd.Flags().Float64Var(&paramMax, "max", 5, "th: upper coordinate bound")
	testCmd.Flags().StringVar(&paramDist, "dist", "gaussian", "psd: stable distribution (gaussian|cauchy)")
	testCmd.Flags().Float64Var(&paramW, "w", 4, "psd: quantization window width")
	testCmd.Flags().Uint32Var(&paramS, "s", 300, "sh: number of rows sampled per table to fit the PCA")
	testCmd.Flags().Uint32Var(&paramIters, "i", 50, "itq/dbq/kdbq: Procrustes rotation iterations")
	testCmd.Flags().StringVar(&metricKind, "metric", "l2", "distance kind (l1|l2)")
	testCmd.Flags().BoolVar(&useHeapTopK, "heap-topk", false, "use the heap TopK collector instead of the sorted-slice one")
	testCmd.Flags().BoolVar(&parallel, "parallel", false, "build the L hash tables concurrently (rbs and rhp only)")
}

func runTest(cmd *cobra.Command, args []string) error {
	family, dataFile, lshFile, benchFile := args[0], args[1], args[2], args[3]
	rid := requestID()
	clog := logger.With("cmd", "test", "request_id", rid, "family", family)

	fmt.Printf("Example of using %s LSH\n\n", family)

	fmt.Println("LOADING DATA ...")
	start := time.Now()
	data := matrix.New[float32](0)
	if err := data.Load(dataFile); err != nil {
		return err
	}
	fmt.Printf("LOAD TIME: %s\n", time.Since(start))

	fmt.Println("CONSTRUCTING INDEX ...")
	start = time.Now()
	idx, err := newIndex(family, data.Dim())
	if err != nil {
		return err
	}
	if useIndex {
		if err := idx.Load(lshFile); err != nil {
			return err
		}
	} else {
		ctx := cmd.Context()
		if tr, ok := idx.(lshindex.Trainable); ok {
			clog.Info("training index")
			if err := tr.Train(ctx, data); err != nil {
				return err
			}
		}
		if err := idx.Hash(ctx, data); err != nil {
			return err
		}
		if err := idx.Save(lshFile); err != nil {
			return err
		}
	}
	fmt.Printf("CONSTRUCTING TIME: %s\n", time.Since(start))

	fmt.Println("LOADING BENCHMARK ...")
	start = time.Now()
	kind := metric.L2
	if metricKind == "l1" {
		kind = metric.L1
	}
	met, err := metric.New(data.Dim(), kind)
	if err != nil {
		return err
	}
	b := benchmark.New()
	if err := b.Load(benchFile); err != nil {
		return err
	}
	acc := matrix.NewAccessor[float32](data)
	var tk topk.TopK
	if useHeapTopK {
		tk = topk.NewHeapTopK()
	} else {
		tk = topk.NewVectorTopK()
	}
	sc := scanner.New(acc, met, tk)
	fmt.Printf("LOADING TIME: %s\n", time.Since(start))

	fmt.Println("RUNING QUERY ...")
	start = time.Now()
	cost := benchmark.NewStat()
	recall := benchmark.NewStat()
	for i := 0; i < b.Q(); i++ {
		qrow := data.Row(int(b.Query(i)))
		sc.Reset(qrow, b.K(), math.MaxFloat32)
		if err := idx.Query(qrow, sc); err != nil {
			return err
		}
		recall.Append(float64(benchmark.Recall(sc.TopK().Results(), b.Answer(i))))
		cost.Append(float64(sc.Cnt()) / float64(data.Size()))
	}
	elapsed := time.Since(start)
	fmt.Printf("MEAN QUERY TIME: %s\n", elapsed/time.Duration(max(b.Q(), 1)))
	fmt.Printf("RECALL   : %.4f +/- %.4f\n", recall.Avg(), recall.Std())
	fmt.Printf("COST     : %.4f +/- %.4f\n", cost.Avg(), cost.Std())
	return nil
}

func newIndex(family string, dim int) (lshindex.HashIndex, error) {
	base := lshindex.Params{M: paramM, L: paramL, D: uint32(dim), N: paramN, Seed: paramSeed, Parallel: parallel}
	switch family {
	case "rbs":
		return lshindex.NewRBS(lshindex.RBSParams{Params: base, C: paramC}), nil
	case "rhp":
		return lshindex.NewRHP(base), nil
	case "th":
		return lshindex.NewTh(lshindex.ThParams{Params: base, Min: float32(paramMin), Max: float32(paramMax)}), nil
	case "psd":
		dist := lshindex.Gaussian
		if paramDist == "cauchy" {
			dist = lshindex.Cauchy
		}
		return lshindex.NewPsd(lshindex.PsdParams{Params: base, T: dist, W: float32(paramW)})
	case "sh":
		return lshindex.NewSh(lshindex.ShParams{Params: base, S: paramS}), nil
	case "itq":
		return lshindex.NewItq(lshindex.ItqParams{Params: base, I: paramIters}), nil
	case "dbq":
		return lshindex.NewDbq(lshindex.DbqParams{Params: base, I: paramIters}), nil
	case "kdbq":
		return lshindex.NewKdbq(lshindex.KdbqParams{Params: base, I: paramIters}), nil
	default:
		return nil, fmt.Errorf("%w: unknown family %q (want rbs, rhp, th, psd, sh, itq, dbq, or kdbq)", golshbox.ErrBadArgument, family)
	}
}
