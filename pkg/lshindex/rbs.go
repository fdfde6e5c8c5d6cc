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

// RBSParams configures a random-bit-sampling index. C is the range of
// each coordinate (the source's "difference between upper and lower
// bound of each dimension"); every coordinate is treated as an integer
// in [0, C).
type RBSParams struct {
	Params
	C uint32
}

// RBS is the random bit sampling family. It is the one family
// operating on integer-coordinate data: Hash truncates each incoming
// float32 coordinate to an unsigned integer before sampling bits from
// it, mirroring rbslsh.h's Matrix<unsigned> requirement.
type RBS struct {
	p       RBSParams
	rndBits [][]uint32 // per table, N sorted bit positions in [0, D*C)
	rndArray [][]uint32 // per table, N random tags in [0, M)
	tables  []table
}

// NewRBS returns an untrained RBS ready for Reset then Hash.
func NewRBS(p RBSParams) *RBS {
	r := &RBS{p: p}
	r.Reset(p.Seed)
	return r
}

func (r *RBS) Reset(seed int64) {
	rng := prng.New(seed)
	L, N, D, C, M := int(r.p.L), int(r.p.N), int(r.p.D), int(r.p.C), int(r.p.M)
	r.rndBits = make([][]uint32, L)
	r.rndArray = make([][]uint32, L)
	r.tables = make([]table, L)
	for i := 0; i < L; i++ {
		r.rndBits[i] = distinctUints(rng, N, D*C)
		r.rndArray[i] = make([]uint32, N)
		r.tables[i] = make(table)
	}
	for i := 0; i < L; i++ {
		for j := 0; j < N; j++ {
			r.rndArray[i][j] = uint32(rng.Intn(M))
		}
	}
}

func (r *RBS) hashVal(k int, domin []uint32) uint32 {
	var sum uint32
	for seq, bit := range r.rndBits[k] {
		coord := bit / r.p.C
		rem := bit % r.p.C
		if rem <= domin[coord] {
			sum += r.rndArray[k][seq]
		}
	}
	return sum % r.p.M
}

func toUintRow(vec []float32) []uint32 {
	out := make([]uint32, len(vec))
	for i, v := range vec {
		if v < 0 {
			v = 0
		}
		out[i] = uint32(v)
	}
	return out
}

func (r *RBS) Hash(ctx context.Context, m *matrix.Matrix[float32]) error {
	if m.Dim() != int(r.p.D) {
		return golshbox.ErrDimensionMismatch
	}
	if err := checkNonEmpty(m); err != nil {
		return err
	}
	if !r.p.Parallel {
		for i := 0; i < m.Size(); i++ {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}
			if err := r.Insert(uint32(i), m.Row(i)); err != nil {
				return err
			}
		}
		return nil
	}
	return buildTablesParallel(ctx, len(r.tables), func(k int) error {
		for i := 0; i < m.Size(); i++ {
			domin := toUintRow(m.Row(i))
			r.tables[k].insert(r.hashVal(k, domin), uint32(i))
		}
		return nil
	})
}

func (r *RBS) Insert(id uint32, vec []float32) error {
	if err := checkDim(int(r.p.D), vec); err != nil {
		return err
	}
	domin := toUintRow(vec)
	for k := range r.tables {
		r.tables[k].insert(r.hashVal(k, domin), id)
	}
	return nil
}

func (r *RBS) Query(vec []float32, sc *scanner.Scanner) error {
	if err := checkDim(int(r.p.D), vec); err != nil {
		return err
	}
	domin := toUintRow(vec)
	for k := range r.tables {
		hv := r.hashVal(k, domin)
		for _, id := range r.tables[k][hv] {
			sc.Visit(id)
		}
	}
	return nil
}

func (r *RBS) Save(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return golshbox.Wrap("rbs.Save", err)
	}
	defer f.Close()

	if err := binfmt.WriteUint32s(f, []uint32{r.p.M, r.p.L, r.p.D, r.p.C, r.p.N}); err != nil {
		return err
	}
	for i := range r.tables {
		if err := binfmt.WriteUint32s(f, r.rndBits[i]); err != nil {
			return err
		}
		if err := binfmt.WriteUint32s(f, r.rndArray[i]); err != nil {
			return err
		}
		if err := binfmt.WriteBucketTable(f, r.tables[i]); err != nil {
			return err
		}
	}
	return nil
}

func (r *RBS) Load(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return golshbox.Wrap("rbs.Load", err)
	}
	defer f.Close()

	header, err := binfmt.ReadUint32s(f, 5)
	if err != nil {
		return golshbox.ErrInvalidFormat
	}
	r.p.M, r.p.L, r.p.D, r.p.C, r.p.N = header[0], header[1], header[2], header[3], header[4]
	L, N := int(r.p.L), int(r.p.N)
	r.rndBits = make([][]uint32, L)
	r.rndArray = make([][]uint32, L)
	r.tables = make([]table, L)
	for i := 0; i < L; i++ {
		if r.rndBits[i], err = binfmt.ReadUint32s(f, N); err != nil {
			return golshbox.ErrInvalidFormat
		}
		if r.rndArray[i], err = binfmt.ReadUint32s(f, N); err != nil {
			return golshbox.ErrInvalidFormat
		}
		if r.tables[i], err = binfmt.ReadBucketTable(f); err != nil {
			return golshbox.ErrInvalidFormat
		}
	}
	return nil
}
