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

// RHP is the random hyperplane family: each of the N hash functions per
// table is a random Gaussian hyperplane; a row contributes its tag to
// the table sum whenever it falls on the hyperplane's positive side.
type RHP struct {
	p        Params
	uosArray [][][]float32 // [table][n][dim]
	rndArray [][]uint32    // [table][n]
	tables   []table
}

// NewRHP returns an untrained RHP ready for Reset then Hash.
func NewRHP(p Params) *RHP {
	r := &RHP{p: p}
	r.Reset(p.Seed)
	return r
}

func (r *RHP) Reset(seed int64) {
	rng := prng.New(seed)
	L, N, D, M := int(r.p.L), int(r.p.N), int(r.p.D), int(r.p.M)
	r.uosArray = make([][][]float32, L)
	r.rndArray = make([][]uint32, L)
	r.tables = make([]table, L)
	for i := 0; i < L; i++ {
		r.uosArray[i] = make([][]float32, N)
		for j := 0; j < N; j++ {
			row := make([]float32, D)
			for k := 0; k < D; k++ {
				row[k] = float32(rng.NormFloat64())
			}
			r.uosArray[i][j] = row
		}
		r.rndArray[i] = make([]uint32, N)
		for j := 0; j < N; j++ {
			r.rndArray[i][j] = uint32(rng.Intn(M))
		}
		r.tables[i] = make(table)
	}
}

func (r *RHP) hashVal(k int, domin []float32) uint32 {
	var sum uint32
	for i, plane := range r.uosArray[k] {
		var flag float32
		for j, v := range plane {
			flag += v * domin[j]
		}
		if flag > 0 {
			sum += r.rndArray[k][i]
		}
	}
	return sum % r.p.M
}

func (r *RHP) Hash(ctx context.Context, m *matrix.Matrix[float32]) error {
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
			for k := range r.tables {
				r.tables[k].insert(r.hashVal(k, m.Row(i)), uint32(i))
			}
		}
		return nil
	}
	return buildTablesParallel(ctx, len(r.tables), func(k int) error {
		for i := 0; i < m.Size(); i++ {
			r.tables[k].insert(r.hashVal(k, m.Row(i)), uint32(i))
		}
		return nil
	})
}

func (r *RHP) Insert(id uint32, vec []float32) error {
	if err := checkDim(int(r.p.D), vec); err != nil {
		return err
	}
	for k := range r.tables {
		r.tables[k].insert(r.hashVal(k, vec), id)
	}
	return nil
}

func (r *RHP) Query(vec []float32, sc *scanner.Scanner) error {
	if err := checkDim(int(r.p.D), vec); err != nil {
		return err
	}
	for k := range r.tables {
		hv := r.hashVal(k, vec)
		for _, id := range r.tables[k][hv] {
			sc.Visit(id)
		}
	}
	return nil
}

func (r *RHP) Save(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return golshbox.Wrap("rhp.Save", err)
	}
	defer f.Close()

	if err := binfmt.WriteUint32s(f, []uint32{r.p.M, r.p.L, r.p.D, r.p.N}); err != nil {
		return err
	}
	for i := range r.tables {
		if err := binfmt.WriteUint32s(f, r.rndArray[i]); err != nil {
			return err
		}
		for _, row := range r.uosArray[i] {
			if err := binfmt.WriteFloat32s(f, row); err != nil {
				return err
			}
		}
		if err := binfmt.WriteBucketTable(f, r.tables[i]); err != nil {
			return err
		}
	}
	return nil
}

func (r *RHP) Load(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return golshbox.Wrap("rhp.Load", err)
	}
	defer f.Close()

	header, err := binfmt.ReadUint32s(f, 4)
	if err != nil {
		return golshbox.ErrInvalidFormat
	}
	r.p.M, r.p.L, r.p.D, r.p.N = header[0], header[1], header[2], header[3]
	L, N, D := int(r.p.L), int(r.p.N), int(r.p.D)
	r.uosArray = make([][][]float32, L)
	r.rndArray = make([][]uint32, L)
	r.tables = make([]table, L)
	for i := 0; i < L; i++ {
		if r.rndArray[i], err = binfmt.ReadUint32s(f, N); err != nil {
			return golshbox.ErrInvalidFormat
		}
		r.uosArray[i] = make([][]float32, N)
		for j := 0; j < N; j++ {
			if r.uosArray[i][j], err = binfmt.ReadFloat32s(f, D); err != nil {
				return golshbox.ErrInvalidFormat
			}
		}
		if r.tables[i], err = binfmt.ReadBucketTable(f); err != nil {
			return golshbox.ErrInvalidFormat
		}
	}
	return nil
}
