// Package benchmark builds and persists ground-truth nearest-neighbor
// answers for a sample of query rows, the evaluation harness every
// pkg/lshindex family's recall is measured against.
package benchmark

import (
	"bufio"
	"context"
	"fmt"
	"os"

	"github.com/liliang-cn/golshbox"
	"github.com/liliang-cn/golshbox/internal/prng"
	"github.com/liliang-cn/golshbox/pkg/matrix"
	"github.com/liliang-cn/golshbox/pkg/metric"
	"github.com/liliang-cn/golshbox/pkg/topk"
)

// Benchmark holds Q sampled query row ids and, for each, the true K
// nearest neighbors found by a linear scan of the dataset.
type Benchmark struct {
	k       int
	queries []uint32
	answers [][]topk.Result
}

// New returns an empty Benchmark; call Init or Load before use.
func New() *Benchmark {
	return &Benchmark{}
}

// Resize allocates q query slots, each holding k answers.
func (b *Benchmark) Resize(q, k int) {
	b.k = k
	b.queries = make([]uint32, q)
	b.answers = make([][]topk.Result, q)
}

// Init samples q distinct query row ids from [0,maxID) using seed (0
// derives a time-based seed, see internal/prng), ready for LinearScan.
func (b *Benchmark) Init(q, k, maxID int, seed int64) {
	b.Resize(q, k)
	rng := prng.New(seed)
	seen := make(map[uint32]bool, q)
	for i := 0; i < q; i++ {
		for {
			v := uint32(rng.Intn(maxID))
			if !seen[v] {
				seen[v] = true
				b.queries[i] = v
				break
			}
		}
	}
}

// LinearScan fills every query's answers with the true K nearest rows
// of data under m, found by brute-force distance comparison against
// every other row.
func (b *Benchmark) LinearScan(ctx context.Context, data *matrix.Matrix[float32], m *metric.Metric) error {
	for i, q := range b.queries {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		tk := topk.NewVectorTopK()
		tk.Reset(b.k, 0)
		query := data.Row(int(q))
		for j := 0; j < data.Size(); j++ {
			if uint32(j) == q {
				continue
			}
			tk.Push(uint32(j), m.Dist(query, data.Row(j)))
		}
		b.answers[i] = tk.Results()
	}
	return nil
}

// Q returns the number of sampled queries.
func (b *Benchmark) Q() int { return len(b.queries) }

// K returns the number of answers held per query.
func (b *Benchmark) K() int { return b.k }

// Query returns the row id of the n-th sampled query.
func (b *Benchmark) Query(n int) uint32 { return b.queries[n] }

// Answer returns the n-th query's true K nearest neighbors, ascending
// by distance.
func (b *Benchmark) Answer(n int) []topk.Result { return b.answers[n] }

// Save writes the benchmark as tab-separated text: a header line
// "Q\tK", then one line per query holding the query id followed by K
// (id, distance) pairs.
func (b *Benchmark) Save(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return golshbox.Wrap("benchmark.Save", err)
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	if _, err := fmt.Fprintf(w, "%d\t%d\n", len(b.queries), b.k); err != nil {
		return err
	}
	for i, q := range b.queries {
		if _, err := fmt.Fprintf(w, "%d\t", q); err != nil {
			return err
		}
		for _, r := range b.answers[i] {
			if _, err := fmt.Fprintf(w, "\t%d\t%g", r.Key, r.Dist); err != nil {
				return err
			}
		}
		if _, err := fmt.Fprintln(w); err != nil {
			return err
		}
	}
	return w.Flush()
}

// Load replaces the benchmark's contents with the file at path,
// previously written by Save.
func (b *Benchmark) Load(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return golshbox.Wrap("benchmark.Load", err)
	}
	defer f.Close()

	r := bufio.NewReader(f)
	var q, k int
	if _, err := fmt.Fscan(r, &q, &k); err != nil {
		return golshbox.Wrap("benchmark.Load", golshbox.ErrInvalidFormat)
	}
	b.Resize(q, k)
	for i := 0; i < q; i++ {
		var query uint32
		if _, err := fmt.Fscan(r, &query); err != nil {
			return fmt.Errorf("benchmark: read query %d: %w", i, err)
		}
		b.queries[i] = query
		results := make([]topk.Result, k)
		for j := 0; j < k; j++ {
			var key uint32
			var dist float32
			if _, err := fmt.Fscan(r, &key, &dist); err != nil {
				return fmt.Errorf("benchmark: read answer %d/%d: %w", i, j, err)
			}
			results[j] = topk.Result{Key: key, Dist: dist}
		}
		b.answers[i] = results
	}
	return nil
}

// Recall compares got (an index's query results) against want (the
// ground truth built by LinearScan), using the same (matched+1)/(k+1)
// estimator as topk.TopK.Recall.
func Recall(got, want []topk.Result) float32 {
	matched := 0
	for _, w := range want {
		for _, g := range got {
			if g.Key == w.Key {
				matched++
				break
			}
		}
	}
	return float32(matched+1) / float32(len(want)+1)
}
