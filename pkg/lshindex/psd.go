package lshindex

import (
	"context"
	"math"
	"os"

	"github.com/liliang-cn/golshbox"
	"github.com/liliang-cn/golshbox/internal/binfmt"
	"github.com/liliang-cn/golshbox/internal/prng"
	"github.com/liliang-cn/golshbox/pkg/matrix"
	"github.com/liliang-cn/golshbox/pkg/scanner"
)

// Distribution selects the p-stable distribution a Psd index draws its
// random projection vectors from.
type Distribution int

const (
	// Cauchy is stable for L1 distance.
	Cauchy Distribution = iota + 1
	// Gaussian is stable for L2 distance.
	Gaussian
)

// PsdParams configures a p-stable-distributions index. W is the
// quantization window width.
type PsdParams struct {
	Params
	T Distribution
	W float32
}

// Psd is the p-stable distributions family: each table projects the
// query onto a random stable vector, adds a random offset, and buckets
// the floor of the result divided by the window width W.
type Psd struct {
	p            PsdParams
	rndBs        []float32   // per table
	stableArray  [][]float32 // per table, D-dim
	tables       []table
}

// NewPsd returns an untrained Psd ready for Reset then Hash. It returns
// golshbox.ErrUnknownDistribution if p.T is neither Cauchy nor Gaussian.
func NewPsd(p PsdParams) (*Psd, error) {
	if p.T != Cauchy && p.T != Gaussian {
		return nil, golshbox.ErrUnknownDistribution
	}
	ps := &Psd{p: p}
	ps.Reset(p.Seed)
	return ps, nil
}

func (ps *Psd) Reset(seed int64) {
	rng := prng.New(seed)
	L, D := int(ps.p.L), int(ps.p.D)
	ps.stableArray = make([][]float32, L)
	ps.rndBs = make([]float32, L)
	ps.tables = make([]table, L)
	for i := 0; i < L; i++ {
		row := make([]float32, D)
		for j := 0; j < D; j++ {
			switch ps.p.T {
			case Cauchy:
				row[j] = float32(cauchySample(rng))
			case Gaussian:
				row[j] = float32(rng.NormFloat64())
			}
		}
		ps.stableArray[i] = row
		ps.rndBs[i] = float32(rng.Float64() * float64(ps.p.W))
		ps.tables[i] = make(table)
	}
}

// cauchySample draws from the standard Cauchy distribution via inverse
// transform sampling, matching std::cauchy_distribution's default
// location 0 and scale 1.
func cauchySample(rng interface{ Float64() float64 }) float64 {
	return math.Tan(math.Pi * (rng.Float64() - 0.5))
}

func (ps *Psd) hashVal(k int, domin []float32) uint32 {
	var sum float32
	for i, v := range ps.stableArray[k] {
		sum += domin[i] * v
	}
	bucket := int64(math.Floor(float64((sum + ps.rndBs[k]) / ps.p.W)))
	m := int64(ps.p.M)
	bucket %= m
	if bucket < 0 {
		bucket += m
	}
	return uint32(bucket)
}

func (ps *Psd) Hash(ctx context.Context, m *matrix.Matrix[float32]) error {
	if m.Dim() != int(ps.p.D) {
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
		if err := ps.Insert(uint32(i), m.Row(i)); err != nil {
			return err
		}
	}
	return nil
}

func (ps *Psd) Insert(id uint32, vec []float32) error {
	if err := checkDim(int(ps.p.D), vec); err != nil {
		return err
	}
	for k := range ps.tables {
		ps.tables[k].insert(ps.hashVal(k, vec), id)
	}
	return nil
}

func (ps *Psd) Query(vec []float32, sc *scanner.Scanner) error {
	if err := checkDim(int(ps.p.D), vec); err != nil {
		return err
	}
	for k := range ps.tables {
		hv := ps.hashVal(k, vec)
		for _, id := range ps.tables[k][hv] {
			sc.Visit(id)
		}
	}
	return nil
}

func (ps *Psd) Save(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return golshbox.Wrap("psd.Save", err)
	}
	defer f.Close()

	if err := binfmt.WriteUint32s(f, []uint32{ps.p.M, ps.p.L, ps.p.D}); err != nil {
		return err
	}
	if err := binfmt.WriteFloat32(f, ps.p.W); err != nil {
		return err
	}
	if err := binfmt.WriteFloat32s(f, ps.rndBs); err != nil {
		return err
	}
	for i := range ps.tables {
		if err := binfmt.WriteFloat32s(f, ps.stableArray[i]); err != nil {
			return err
		}
		if err := binfmt.WriteBucketTable(f, ps.tables[i]); err != nil {
			return err
		}
	}
	return nil
}

func (ps *Psd) Load(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return golshbox.Wrap("psd.Load", err)
	}
	defer f.Close()

	header, err := binfmt.ReadUint32s(f, 3)
	if err != nil {
		return golshbox.ErrInvalidFormat
	}
	ps.p.M, ps.p.L, ps.p.D = header[0], header[1], header[2]
	if ps.p.W, err = binfmt.ReadFloat32(f); err != nil {
		return golshbox.ErrInvalidFormat
	}
	L, D := int(ps.p.L), int(ps.p.D)
	if ps.rndBs, err = binfmt.ReadFloat32s(f, L); err != nil {
		return golshbox.ErrInvalidFormat
	}
	ps.stableArray = make([][]float32, L)
	ps.tables = make([]table, L)
	for i := 0; i < L; i++ {
		if ps.stableArray[i], err = binfmt.ReadFloat32s(f, D); err != nil {
			return golshbox.ErrInvalidFormat
		}
		if ps.tables[i], err = binfmt.ReadBucketTable(f); err != nil {
			return golshbox.ErrInvalidFormat
		}
	}
	return nil
}
