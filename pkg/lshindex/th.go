package lshindex

import (
	"context"
	"os"

	"github.com/liliang-cn/golshbox"
	"github.com/liliang-cn/golshbox/internal/binfmt"
	"github.com/liliang-cn/golshbox/internal/prng"
	"github.com/liliang-cn/golshbox/pkg/matrix"
	"github.com/liliang-cn/golshbox/pkg/scanner"
)

// ThParams configures a coordinate-thresholding index: every dimension
// of the dataset is expected to lie in [Min, Max].
type ThParams struct {
	Params
	Max, Min float32
}

// Th is the thresholding family: each table shares a single threshold
// drawn uniformly from [Min,Max]; N distinct coordinates are sampled
// per table, and a coordinate contributes its tag whenever it exceeds
// the table's threshold.
type Th struct {
	p          ThParams
	thresholds []float32  // one per table
	rndBits    [][]uint32 // per table, N distinct coordinate indices
	rndArray   [][]uint32 // per table, N random tags in [0,M)
	tables     []table
}

// NewTh returns an untrained Th ready for Reset then Hash.
func NewTh(p ThParams) *Th {
	t := &Th{p: p}
	t.Reset(p.Seed)
	return t
}

func (t *Th) Reset(seed int64) {
	rng := prng.New(seed)
	L, N, D, M := int(t.p.L), int(t.p.N), int(t.p.D), int(t.p.M)
	t.rndBits = make([][]uint32, L)
	t.rndArray = make([][]uint32, L)
	t.thresholds = make([]float32, L)
	t.tables = make([]table, L)
	span := float64(t.p.Max - t.p.Min)
	for i := 0; i < L; i++ {
		t.rndBits[i] = distinctUints(rng, N, D)
		t.thresholds[i] = t.p.Min + float32(rng.Float64()*span)
		t.tables[i] = make(table)
	}
	for i := 0; i < L; i++ {
		t.rndArray[i] = make([]uint32, N)
		for j := 0; j < N; j++ {
			t.rndArray[i][j] = uint32(rng.Intn(M))
		}
	}
}

func (t *Th) hashVal(k int, domin []float32) uint32 {
	var sum uint32
	for seq, bit := range t.rndBits[k] {
		if domin[bit] > t.thresholds[k] {
			sum += t.rndArray[k][seq]
		}
	}
	return sum % t.p.M
}

func (t *Th) Hash(ctx context.Context, m *matrix.Matrix[float32]) error {
	if m.Dim() != int(t.p.D) {
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
		if err := t.Insert(uint32(i), m.Row(i)); err != nil {
			return err
		}
	}
	return nil
}

func (t *Th) Insert(id uint32, vec []float32) error {
	if err := checkDim(int(t.p.D), vec); err != nil {
		return err
	}
	for k := range t.tables {
		t.tables[k].insert(t.hashVal(k, vec), id)
	}
	return nil
}

func (t *Th) Query(vec []float32, sc *scanner.Scanner) error {
	if err := checkDim(int(t.p.D), vec); err != nil {
		return err
	}
	for k := range t.tables {
		hv := t.hashVal(k, vec)
		for _, id := range t.tables[k][hv] {
			sc.Visit(id)
		}
	}
	return nil
}

func (t *Th) Save(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return golshbox.Wrap("th.Save", err)
	}
	defer f.Close()

	if err := binfmt.WriteUint32s(f, []uint32{t.p.M, t.p.L, t.p.D, t.p.N}); err != nil {
		return err
	}
	if err := binfmt.WriteFloat32(f, t.p.Max); err != nil {
		return err
	}
	if err := binfmt.WriteFloat32(f, t.p.Min); err != nil {
		return err
	}
	if err := binfmt.WriteFloat32s(f, t.thresholds); err != nil {
		return err
	}
	for i := range t.tables {
		if err := binfmt.WriteUint32s(f, t.rndBits[i]); err != nil {
			return err
		}
		if err := binfmt.WriteUint32s(f, t.rndArray[i]); err != nil {
			return err
		}
		if err := binfmt.WriteBucketTable(f, t.tables[i]); err != nil {
			return err
		}
	}
	return nil
}

func (t *Th) Load(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return golshbox.Wrap("th.Load", err)
	}
	defer f.Close()

	header, err := binfmt.ReadUint32s(f, 4)
	if err != nil {
		return golshbox.ErrInvalidFormat
	}
	t.p.M, t.p.L, t.p.D, t.p.N = header[0], header[1], header[2], header[3]
	if t.p.Max, err = binfmt.ReadFloat32(f); err != nil {
		return golshbox.ErrInvalidFormat
	}
	if t.p.Min, err = binfmt.ReadFloat32(f); err != nil {
		return golshbox.ErrInvalidFormat
	}
	L, N := int(t.p.L), int(t.p.N)
	if t.thresholds, err = binfmt.ReadFloat32s(f, L); err != nil {
		return golshbox.ErrInvalidFormat
	}
	t.rndBits = make([][]uint32, L)
	t.rndArray = make([][]uint32, L)
	t.tables = make([]table, L)
	for i := 0; i < L; i++ {
		if t.rndBits[i], err = binfmt.ReadUint32s(f, N); err != nil {
			return golshbox.ErrInvalidFormat
		}
		if t.rndArray[i], err = binfmt.ReadUint32s(f, N); err != nil {
			return golshbox.ErrInvalidFormat
		}
		if t.tables[i], err = binfmt.ReadBucketTable(f); err != nil {
			return golshbox.ErrInvalidFormat
		}
	}
	return nil
}
