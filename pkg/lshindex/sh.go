package lshindex

import (
	"context"
	"fmt"
	"math"
	"os"
	"sort"

	"github.com/liliang-cn/golshbox"
	"github.com/liliang-cn/golshbox/internal/binfmt"
	"github.com/liliang-cn/golshbox/internal/prng"
	"github.com/liliang-cn/golshbox/pkg/matrix"
	"github.com/liliang-cn/golshbox/pkg/scanner"
	"gonum.org/v1/gonum/mat"
)

// ShParams configures a spectral-hashing index. S is the number of
// sample rows drawn per table to fit each table's PCA.
type ShParams struct {
	Params
	S uint32
}

// Sh is the spectral hashing family. Train fits, per table, a PCA over
// S sampled rows (covariance of the mean-centered samples, onto which the
// uncentered rows are then projected), then a set of sinusoidal
// "modes" along the top N principal axes ranked by spatial frequency;
// Hash buckets a row by the sign of the product of those mode
// functions evaluated at its projection.
type Sh struct {
	p         ShParams
	rndArray  [][]uint32    // per table, N random tags in [0,M)
	minsAll   [][]float64   // per table, N projected minimums
	pcsAll    [][][]float32 // per table, N principal axes of D components each
	omegasAll [][][]float32 // per table, N x N mode frequencies
	tables    []table
	trained   bool
}

// NewSh returns an untrained Sh; call Train before Hash.
func NewSh(p ShParams) *Sh {
	s := &Sh{p: p}
	s.Reset(p.Seed)
	return s
}

func (s *Sh) Reset(seed int64) {
	rng := prng.New(seed)
	L, N, M := int(s.p.L), int(s.p.N), int(s.p.M)
	s.rndArray = make([][]uint32, L)
	s.tables = make([]table, L)
	for i := 0; i < L; i++ {
		s.rndArray[i] = make([]uint32, N)
		for j := 0; j < N; j++ {
			s.rndArray[i][j] = uint32(rng.Intn(M))
		}
		s.tables[i] = make(table)
	}
	s.trained = false
}

// Train fits the per-table PCA and spectral mode functions used by Hash.
func (s *Sh) Train(ctx context.Context, m *matrix.Matrix[float32]) error {
	if m.Dim() != int(s.p.D) {
		return golshbox.ErrDimensionMismatch
	}
	rng := prng.New(s.p.Seed)
	L, D, npca, S := int(s.p.L), int(s.p.D), int(s.p.N), int(s.p.S)
	s.minsAll = make([][]float64, L)
	s.pcsAll = make([][][]float32, L)
	s.omegasAll = make([][][]float32, L)

	for k := 0; k < L; k++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		seqs := distinctUints(rng, S, m.Size())

		tmp := mat.NewDense(S, D, nil)
		for i, id := range seqs {
			row := m.Row(int(id))
			for j := 0; j < D; j++ {
				tmp.Set(i, j, float64(row[j]))
			}
		}
		colMean := make([]float64, D)
		for j := 0; j < D; j++ {
			var sum float64
			for i := 0; i < S; i++ {
				sum += tmp.At(i, j)
			}
			colMean[j] = sum / float64(S)
		}
		centered := mat.NewDense(S, D, nil)
		for i := 0; i < S; i++ {
			for j := 0; j < D; j++ {
				centered.Set(i, j, tmp.At(i, j)-colMean[j])
			}
		}
		var cov mat.Dense
		cov.Mul(centered.T(), centered)
		cov.Scale(1/float64(S-1), &cov)
		sym := mat.NewSymDense(D, nil)
		for i := 0; i < D; i++ {
			for j := i; j < D; j++ {
				sym.SetSym(i, j, cov.At(i, j))
			}
		}

		var eig mat.EigenSym
		if ok := eig.Factorize(sym, true); !ok {
			return fmt.Errorf("sh: eigendecomposition failed for table %d", k)
		}
		var vecs mat.Dense
		eig.VectorsTo(&vecs)
		// vecs columns are ordered by ascending eigenvalue; the top npca
		// components are the rightmost npca columns.
		top := mat.NewDense(D, npca, nil)
		for j := 0; j < npca; j++ {
			col := D - npca + j
			for i := 0; i < D; i++ {
				top.Set(i, j, vecs.At(i, col))
			}
		}
		var matC mat.Dense
		matC.Mul(tmp, top)

		mins := make([]float64, npca)
		maxs := make([]float64, npca)
		omega0 := make([]float64, npca)
		maxR := 0.0
		for i := 0; i < npca; i++ {
			mn, mx := math.Inf(1), math.Inf(-1)
			for r := 0; r < S; r++ {
				v := matC.At(r, i)
				if v < mn {
					mn = v
				}
				if v > mx {
					mx = v
				}
			}
			mins[i], maxs[i] = mn, mx
			omega0[i] = math.Pi / (mx - mn)
			if mx-mn > maxR {
				maxR = mx - mn
			}
		}

		maxMode := make([]int, npca)
		sum := 0
		for i := 0; i < npca; i++ {
			maxMode[i] = int(math.Ceil(float64(npca+1) * (maxs[i] - mins[i]) / maxR))
			sum += maxMode[i]
		}
		nModes := sum - npca + 1

		modes := make([][]float32, npca)
		for i := range modes {
			row := make([]float32, nModes)
			for j := range row {
				row[j] = 1
			}
			modes[i] = row
		}
		mOff := 1
		for i := 0; i < npca; i++ {
			for j := 0; j < maxMode[i]-1; j++ {
				modes[i][mOff+j] = float32(j + 2)
			}
			mOff += maxMode[i] - 1
		}

		omegas := make([][]float32, npca)
		for i := 0; i < npca; i++ {
			omegas[i] = make([]float32, nModes)
			for j := 0; j < nModes; j++ {
				omegas[i][j] = modes[i][j] * float32(omega0[i])
			}
		}

		type scored struct {
			idx int
			val float32
		}
		eigVal := make([]scored, nModes)
		for i := 0; i < nModes; i++ {
			var sum float32
			for j := 0; j < npca; j++ {
				sum += omegas[j][i] * omegas[j][i]
			}
			eigVal[i] = scored{idx: i, val: sum}
		}
		sort.Slice(eigVal, func(a, b int) bool { return eigVal[a].val < eigVal[b].val })

		omegasAllK := make([][]float32, npca)
		for i := 0; i < npca; i++ {
			row := make([]float32, npca)
			for j := 0; j < npca; j++ {
				row[j] = omegas[i][eigVal[j+1].idx]
			}
			omegasAllK[i] = row
		}

		pcsAllK := make([][]float32, npca)
		for i := 0; i < npca; i++ {
			row := make([]float32, D)
			for j := 0; j < D; j++ {
				row[j] = float32(top.At(j, i))
			}
			pcsAllK[i] = row
		}

		s.minsAll[k] = mins
		s.omegasAll[k] = omegasAllK
		s.pcsAll[k] = pcsAllK
	}
	s.trained = true
	return nil
}

func (s *Sh) hashVal(k int, domin []float32) uint32 {
	npca := len(s.pcsAll[k])
	dominPC := make([]float32, npca)
	for i := 0; i < npca; i++ {
		var v float32
		for j, pc := range s.pcsAll[k][i] {
			v += domin[j] * pc
		}
		dominPC[i] = v - float32(s.minsAll[k][i])
	}
	var sum uint32
	for i := 0; i < npca; i++ {
		product := float32(1)
		for j, w := range s.omegasAll[k][i] {
			product *= float32(math.Sin(float64(dominPC[j]*w) + math.Pi/2))
		}
		if product > 0 {
			sum += s.rndArray[k][i]
		}
	}
	return sum % s.p.M
}

func (s *Sh) Hash(ctx context.Context, m *matrix.Matrix[float32]) error {
	if !s.trained {
		return golshbox.ErrNotTrained
	}
	if m.Dim() != int(s.p.D) {
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
		if err := s.Insert(uint32(i), m.Row(i)); err != nil {
			return err
		}
	}
	return nil
}

func (s *Sh) Insert(id uint32, vec []float32) error {
	if !s.trained {
		return golshbox.ErrNotTrained
	}
	if err := checkDim(int(s.p.D), vec); err != nil {
		return err
	}
	for k := range s.tables {
		s.tables[k].insert(s.hashVal(k, vec), id)
	}
	return nil
}

func (s *Sh) Query(vec []float32, sc *scanner.Scanner) error {
	if !s.trained {
		return golshbox.ErrNotTrained
	}
	if err := checkDim(int(s.p.D), vec); err != nil {
		return err
	}
	for k := range s.tables {
		hv := s.hashVal(k, vec)
		for _, id := range s.tables[k][hv] {
			sc.Visit(id)
		}
	}
	return nil
}

func (s *Sh) Save(path string) error {
	if !s.trained {
		return golshbox.ErrNotTrained
	}
	f, err := os.Create(path)
	if err != nil {
		return golshbox.Wrap("sh.Save", err)
	}
	defer f.Close()

	if err := binfmt.WriteUint32s(f, []uint32{s.p.M, s.p.L, s.p.D, s.p.N, s.p.S}); err != nil {
		return err
	}
	N := int(s.p.N)
	for i := range s.tables {
		if err := binfmt.WriteUint32s(f, s.rndArray[i]); err != nil {
			return err
		}
		if err := binfmt.WriteBucketTable(f, s.tables[i]); err != nil {
			return err
		}
		if err := binfmt.WriteFloat64s(f, s.minsAll[i]); err != nil {
			return err
		}
		for j := 0; j < N; j++ {
			if err := binfmt.WriteFloat32s(f, s.pcsAll[i][j]); err != nil {
				return err
			}
			if err := binfmt.WriteFloat32s(f, s.omegasAll[i][j]); err != nil {
				return err
			}
		}
	}
	return nil
}

func (s *Sh) Load(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return golshbox.Wrap("sh.Load", err)
	}
	defer f.Close()

	header, err := binfmt.ReadUint32s(f, 5)
	if err != nil {
		return golshbox.ErrInvalidFormat
	}
	s.p.M, s.p.L, s.p.D, s.p.N, s.p.S = header[0], header[1], header[2], header[3], header[4]
	L, N, D := int(s.p.L), int(s.p.N), int(s.p.D)
	s.rndArray = make([][]uint32, L)
	s.tables = make([]table, L)
	s.minsAll = make([][]float64, L)
	s.pcsAll = make([][][]float32, L)
	s.omegasAll = make([][][]float32, L)
	for i := 0; i < L; i++ {
		if s.rndArray[i], err = binfmt.ReadUint32s(f, N); err != nil {
			return golshbox.ErrInvalidFormat
		}
		if s.tables[i], err = binfmt.ReadBucketTable(f); err != nil {
			return golshbox.ErrInvalidFormat
		}
		if s.minsAll[i], err = binfmt.ReadFloat64s(f, N); err != nil {
			return golshbox.ErrInvalidFormat
		}
		s.pcsAll[i] = make([][]float32, N)
		s.omegasAll[i] = make([][]float32, N)
		for j := 0; j < N; j++ {
			if s.pcsAll[i][j], err = binfmt.ReadFloat32s(f, D); err != nil {
				return golshbox.ErrInvalidFormat
			}
			if s.omegasAll[i][j], err = binfmt.ReadFloat32s(f, N); err != nil {
				return golshbox.ErrInvalidFormat
			}
		}
	}
	s.trained = true
	return nil
}
