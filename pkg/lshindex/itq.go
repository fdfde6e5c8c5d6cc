package lshindex

import (
	"context"
	"os"

	"github.com/liliang-cn/golshbox"
	"github.com/liliang-cn/golshbox/internal/binfmt"
	"github.com/liliang-cn/golshbox/internal/prng"
	"github.com/liliang-cn/golshbox/pkg/matrix"
	"github.com/liliang-cn/golshbox/pkg/scanner"
	"gonum.org/v1/gonum/mat"
)

// ItqParams configures an iterative-quantization index. I is the
// number of alternating Procrustes rotation iterations run per table,
// the same preamble Dbq and Kdbq build their post-processing on top of.
type ItqParams struct {
	Params
	I uint32
}

// Itq is the iterative quantization family: a single uncentered PCA
// shared by every table, followed by a per-table learned orthogonal
// rotation of the top N principal axes; each rotated projection
// contributes its table's tag whenever it is positive, the classic
// ITQ single-bit-per-axis binary code.
type Itq struct {
	p         ItqParams
	pcsAll    [][][]float32 // per table, N principal axes of D components (identical across tables)
	omegasAll [][][]float32 // per table, N x N learned rotation
	rndArray  [][]uint32    // per table, N random tags in [0,M)
	tables    []table
	trained   bool
}

// NewItq returns an untrained Itq; call Train before Hash.
func NewItq(p ItqParams) *Itq {
	it := &Itq{p: p}
	it.Reset(p.Seed)
	return it
}

func (it *Itq) Reset(seed int64) {
	rng := prng.New(seed)
	L, N, M := int(it.p.L), int(it.p.N), int(it.p.M)
	it.rndArray = make([][]uint32, L)
	it.tables = make([]table, L)
	for i := 0; i < L; i++ {
		it.rndArray[i] = make([]uint32, N)
		for j := range it.rndArray[i] {
			it.rndArray[i][j] = uint32(rng.Intn(M))
		}
		it.tables[i] = make(table)
	}
	it.trained = false
}

// Train fits the shared PCA and each table's ITQ rotation.
func (it *Itq) Train(ctx context.Context, m *matrix.Matrix[float32]) error {
	if m.Dim() != int(it.p.D) {
		return golshbox.ErrDimensionMismatch
	}
	npca, L, I := int(it.p.N), int(it.p.L), int(it.p.I)
	x, top, err := pcaTopComponents(m, npca)
	if err != nil {
		return err
	}
	var matC mat.Dense
	matC.Mul(x, top)
	size, _ := matC.Dims()

	rng := prng.New(it.p.Seed)
	it.pcsAll = make([][][]float32, L)
	it.omegasAll = make([][][]float32, L)

	for k := 0; k < L; k++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		r := orthonormalRandom(rng, npca)
		for iter := 0; iter < I; iter++ {
			r = procrustesStep(&matC, r)
		}
		var z mat.Dense
		z.Mul(&matC, r)

		pcs := make([][]float32, npca)
		omegas := make([][]float32, npca)
		for i := 0; i < npca; i++ {
			row := make([]float32, int(it.p.D))
			for j := range row {
				row[j] = float32(top.At(j, i))
			}
			pcs[i] = row
			orow := make([]float32, npca)
			for j := 0; j < npca; j++ {
				orow[j] = float32(r.At(j, i))
			}
			omegas[i] = orow
		}

		sums := make([]uint32, size)
		for row := 0; row < size; row++ {
			for dim := 0; dim < npca; dim++ {
				if z.At(row, dim) > 0 {
					sums[row] += it.rndArray[k][dim]
				}
			}
		}
		for row := 0; row < size; row++ {
			hv := sums[row] % it.p.M
			it.tables[k].insert(hv, uint32(row))
		}

		it.pcsAll[k] = pcs
		it.omegasAll[k] = omegas
	}
	it.trained = true
	return nil
}

func (it *Itq) hashVal(k int, domin []float32) uint32 {
	npca := len(it.pcsAll[k])
	dominPC := make([]float32, npca)
	for i := 0; i < npca; i++ {
		var v float32
		for j, pc := range it.pcsAll[k][i] {
			v += domin[j] * pc
		}
		dominPC[i] = v
	}
	var sum uint32
	for i := 0; i < npca; i++ {
		var product float32
		for j, w := range it.omegasAll[k][i] {
			product += dominPC[j] * w
		}
		if product > 0 {
			sum += it.rndArray[k][i]
		}
	}
	return sum % it.p.M
}

// Hash inserts every row of m; Train must have been called first.
func (it *Itq) Hash(ctx context.Context, m *matrix.Matrix[float32]) error {
	if !it.trained {
		return golshbox.ErrNotTrained
	}
	if m.Dim() != int(it.p.D) {
		return golshbox.ErrDimensionMismatch
	}
	if err := checkNonEmpty(m); err != nil {
		return err
	}
	for i := 0; i < m.Size(); i++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		if err := it.Insert(uint32(i), m.Row(i)); err != nil {
			return err
		}
	}
	return nil
}

func (it *Itq) Insert(id uint32, vec []float32) error {
	if !it.trained {
		return golshbox.ErrNotTrained
	}
	if err := checkDim(int(it.p.D), vec); err != nil {
		return err
	}
	for k := range it.tables {
		it.tables[k].insert(it.hashVal(k, vec), id)
	}
	return nil
}

func (it *Itq) Query(vec []float32, sc *scanner.Scanner) error {
	if !it.trained {
		return golshbox.ErrNotTrained
	}
	if err := checkDim(int(it.p.D), vec); err != nil {
		return err
	}
	for k := range it.tables {
		hv := it.hashVal(k, vec)
		for _, id := range it.tables[k][hv] {
			sc.Visit(id)
		}
	}
	return nil
}

func (it *Itq) Save(path string) error {
	if !it.trained {
		return golshbox.ErrNotTrained
	}
	f, err := os.Create(path)
	if err != nil {
		return golshbox.Wrap("itq.Save", err)
	}
	defer f.Close()

	if err := binfmt.WriteUint32s(f, []uint32{it.p.M, it.p.L, it.p.D, it.p.N}); err != nil {
		return err
	}
	N := int(it.p.N)
	for i := range it.tables {
		if err := binfmt.WriteUint32s(f, it.rndArray[i]); err != nil {
			return err
		}
		if err := binfmt.WriteBucketTable(f, it.tables[i]); err != nil {
			return err
		}
		for j := 0; j < N; j++ {
			if err := binfmt.WriteFloat32s(f, it.pcsAll[i][j]); err != nil {
				return err
			}
			if err := binfmt.WriteFloat32s(f, it.omegasAll[i][j]); err != nil {
				return err
			}
		}
	}
	return nil
}

func (it *Itq) Load(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return golshbox.Wrap("itq.Load", err)
	}
	defer f.Close()

	header, err := binfmt.ReadUint32s(f, 4)
	if err != nil {
		return golshbox.ErrInvalidFormat
	}
	it.p.M, it.p.L, it.p.D, it.p.N = header[0], header[1], header[2], header[3]
	L, N, D := int(it.p.L), int(it.p.N), int(it.p.D)
	it.rndArray = make([][]uint32, L)
	it.tables = make([]table, L)
	it.pcsAll = make([][][]float32, L)
	it.omegasAll = make([][][]float32, L)
	for i := 0; i < L; i++ {
		if it.rndArray[i], err = binfmt.ReadUint32s(f, N); err != nil {
			return golshbox.ErrInvalidFormat
		}
		if it.tables[i], err = binfmt.ReadBucketTable(f); err != nil {
			return golshbox.ErrInvalidFormat
		}
		it.pcsAll[i] = make([][]float32, N)
		it.omegasAll[i] = make([][]float32, N)
		for j := 0; j < N; j++ {
			if it.pcsAll[i][j], err = binfmt.ReadFloat32s(f, D); err != nil {
				return golshbox.ErrInvalidFormat
			}
			if it.omegasAll[i][j], err = binfmt.ReadFloat32s(f, N); err != nil {
				return golshbox.ErrInvalidFormat
			}
		}
	}
	it.trained = true
	return nil
}
