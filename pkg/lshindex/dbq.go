package lshindex

import (
	"context"
	"fmt"
	"math/rand"
	"os"
	"sort"

	"github.com/liliang-cn/golshbox"
	"github.com/liliang-cn/golshbox/internal/binfmt"
	"github.com/liliang-cn/golshbox/internal/prng"
	"github.com/liliang-cn/golshbox/pkg/matrix"
	"github.com/liliang-cn/golshbox/pkg/scanner"
	"gonum.org/v1/gonum/mat"
)

// DbqParams configures a double-bit-quantization index. I is the
// number of alternating Procrustes rotation iterations run per table.
type DbqParams struct {
	Params
	I uint32
}

// Dbq is the double-bit quantization family. Training fits one
// uncentered PCA shared by every table, then learns a per-table
// orthogonal rotation of the top N principal axes (iterative
// quantization's alternating-SVD refinement); each of the N rotated
// projections is quantized into two bits by a pair of thresholds
// chosen to maximize the between-group variance of a three-way split.
type Dbq struct {
	p          DbqParams
	pcsAll     [][][]float32 // per table, N principal axes of D components (identical across tables)
	omegasAll  [][][]float32 // per table, N x N learned rotation
	rndArray   [][]uint32    // per table, 2N random tags in [0,M)
	a, b       [][]float32   // per table, N lower/upper thresholds
	prjColMean [][]float32   // per table, N projection column means
	tables     []table
	trained    bool
}

// NewDbq returns an untrained Dbq; call Train before Hash.
func NewDbq(p DbqParams) *Dbq {
	d := &Dbq{p: p}
	d.Reset(p.Seed)
	return d
}

func (d *Dbq) Reset(seed int64) {
	rng := prng.New(seed)
	L, N, M := int(d.p.L), int(d.p.N), int(d.p.M)
	d.rndArray = make([][]uint32, L)
	d.tables = make([]table, L)
	for i := 0; i < L; i++ {
		d.rndArray[i] = make([]uint32, 2*N)
		for j := range d.rndArray[i] {
			d.rndArray[i][j] = uint32(rng.Intn(M))
		}
		d.tables[i] = make(table)
	}
	d.trained = false
}

func sumFloat64(v []float64) float64 {
	var s float64
	for _, x := range v {
		s += x
	}
	return s
}

func variance2(s0 float64, na int, s2 float64, nb int) float64 {
	switch {
	case na > 0 && nb > 0:
		return s0*s0/float64(na) + s2*s2/float64(nb)
	case na == 0 && nb > 0:
		return s2 * s2 / float64(nb)
	case na > 0 && nb == 0:
		return s0 * s0 / float64(na)
	default:
		return 0
	}
}

// threeWayThresholds finds the pair of thresholds (a,b), a<=0<=b, that
// maximizes the between-group variance of splitting left (all <=0,
// ascending) and right (all >0, ascending) into <=a, (a,b), >=b,
// mirroring dbqLsh::Thresholds's greedy boundary search.
func threeWayThresholds(left, right []float64) (a, b float32) {
	sums0, sums2 := sumFloat64(left), sumFloat64(right)
	var sums1 float64
	na, nb := len(left), len(right)
	fmax := variance2(sums0, na, sums2, nb)
	if na > 0 {
		a = float32(left[na-1])
	}
	if nb > 0 {
		b = float32(right[0])
	}
	li, ri := na, 0
	for li > 0 || ri < nb {
		if sums1 > 0 {
			if li == 0 {
				break
			}
			v := left[li-1]
			sums1 += v
			sums0 -= v
			li--
		} else {
			if ri == nb {
				break
			}
			v := right[ri]
			sums1 += v
			sums2 -= v
			ri++
		}
		remLeft, remRight := li, nb-ri
		s := variance2(sums0, remLeft, sums2, remRight)
		if s > fmax {
			fmax = s
			if remLeft > 0 {
				a = float32(left[remLeft-1])
			}
			if remRight > 0 {
				b = float32(right[nb-remRight])
			}
		}
	}
	return a, b
}

// pcaTopComponents computes the uncentered PCA of m (X^T X) and returns
// the top n eigenvectors as a D x n matrix, ordered by increasing
// eigenvalue's complement (column n-1 holds the largest eigenvalue's
// eigenvector), matching Eigen::SelfAdjointEigenSolver::eigenvectors()
// .rightCols(n).
func pcaTopComponents(m *matrix.Matrix[float32], n int) (*mat.Dense, *mat.Dense, error) {
	size, dim := m.Size(), m.Dim()
	x := mat.NewDense(size, dim, nil)
	for i := 0; i < size; i++ {
		row := m.Row(i)
		for j := 0; j < dim; j++ {
			x.Set(i, j, float64(row[j]))
		}
	}
	var cov mat.Dense
	cov.Mul(x.T(), x)
	sym := mat.NewSymDense(dim, nil)
	for i := 0; i < dim; i++ {
		for j := i; j < dim; j++ {
			sym.SetSym(i, j, cov.At(i, j))
		}
	}
	var eig mat.EigenSym
	if ok := eig.Factorize(sym, true); !ok {
		return nil, nil, fmt.Errorf("pca: eigendecomposition failed")
	}
	var vecs mat.Dense
	eig.VectorsTo(&vecs)
	top := mat.NewDense(dim, n, nil)
	for j := 0; j < n; j++ {
		col := dim - n + j
		for i := 0; i < dim; i++ {
			top.Set(i, j, vecs.At(i, col))
		}
	}
	return x, top, nil
}

// orthonormalRandom returns the U factor of a thin SVD of an n x n
// Gaussian random matrix, an orthogonal starting rotation for ITQ.
func orthonormalRandom(rng *rand.Rand, n int) *mat.Dense {
	r := mat.NewDense(n, n, nil)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			r.Set(i, j, rng.NormFloat64())
		}
	}
	var svd mat.SVD
	svd.Factorize(r, mat.SVDThin)
	var u mat.Dense
	svd.UTo(&u)
	return &u
}

// procrustesStep runs one alternating-SVD rotation refinement given the
// current projection z = matC * r, returning the updated rotation.
func procrustesStep(matC, r *mat.Dense) *mat.Dense {
	rRows, _ := r.Dims()
	var z mat.Dense
	z.Mul(matC, r)
	rows, cols := z.Dims()
	ux := mat.NewDense(rows, cols, nil)
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			if z.At(i, j) > 0 {
				ux.Set(i, j, 1)
			} else {
				ux.Set(i, j, -1)
			}
		}
	}
	var prod mat.Dense
	prod.Mul(ux.T(), matC)
	var svd mat.SVD
	svd.Factorize(&prod, mat.SVDThin)
	var u, v mat.Dense
	svd.UTo(&u)
	svd.VTo(&v)
	next := mat.NewDense(rRows, rRows, nil)
	next.Mul(&v, u.T())
	return next
}

// Train fits the shared PCA and each table's ITQ rotation, then the
// per-dimension double-bit thresholds.
func (d *Dbq) Train(ctx context.Context, m *matrix.Matrix[float32]) error {
	if m.Dim() != int(d.p.D) {
		return golshbox.ErrDimensionMismatch
	}
	npca, L, I := int(d.p.N), int(d.p.L), int(d.p.I)
	x, top, err := pcaTopComponents(m, npca)
	if err != nil {
		return err
	}
	var matC mat.Dense
	matC.Mul(x, top)
	size, _ := matC.Dims()

	rng := prng.New(d.p.Seed)
	d.pcsAll = make([][][]float32, L)
	d.omegasAll = make([][][]float32, L)
	d.a = make([][]float32, L)
	d.b = make([][]float32, L)
	d.prjColMean = make([][]float32, L)

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
			row := make([]float32, int(d.p.D))
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

		colMean := make([]float32, npca)
		for q := 0; q < npca; q++ {
			var sum float64
			for i := 0; i < size; i++ {
				sum += z.At(i, q)
			}
			colMean[q] = float32(sum / float64(size))
		}

		as := make([]float32, npca)
		bs := make([]float32, npca)
		centered := make([][]float32, size)
		for i := 0; i < size; i++ {
			centered[i] = make([]float32, npca)
		}
		for dim := 0; dim < npca; dim++ {
			var left, right []float64
			for i := 0; i < size; i++ {
				v := float32(z.At(i, dim)) - colMean[dim]
				centered[i][dim] = v
				if v <= 0 {
					left = append(left, float64(v))
				} else {
					right = append(right, float64(v))
				}
			}
			sort.Float64s(left)
			sort.Float64s(right)
			as[dim], bs[dim] = threeWayThresholds(left, right)
		}

		sums := make([]uint32, size)
		for dim := 0; dim < npca; dim++ {
			for row := 0; row < size; row++ {
				v := centered[row][dim]
				if v <= as[dim] {
					sums[row] += d.rndArray[k][2*dim+1]
				}
				if v >= bs[dim] {
					sums[row] += d.rndArray[k][2*dim]
				}
			}
		}
		for row := 0; row < size; row++ {
			hv := sums[row] % d.p.M
			d.tables[k].insert(hv, uint32(row))
		}

		d.pcsAll[k] = pcs
		d.omegasAll[k] = omegas
		d.a[k] = as
		d.b[k] = bs
		d.prjColMean[k] = colMean
	}
	d.trained = true
	return nil
}

func (d *Dbq) hashVal(k int, domin []float32) uint32 {
	npca := len(d.pcsAll[k])
	dominPC := make([]float32, npca)
	for i := 0; i < npca; i++ {
		var v float32
		for j, pc := range d.pcsAll[k][i] {
			v += domin[j] * pc
		}
		dominPC[i] = v
	}
	var sum uint32
	for i := 0; i < npca; i++ {
		var product float32
		for j, w := range d.omegasAll[k][i] {
			product += dominPC[j] * w
		}
		product -= d.prjColMean[k][i]
		if product <= d.a[k][i] {
			sum += d.rndArray[k][2*i+1]
		}
		if product >= d.b[k][i] {
			sum += d.rndArray[k][2*i]
		}
	}
	return sum % d.p.M
}

// Hash inserts every row of m; Train must have been called first.
func (d *Dbq) Hash(ctx context.Context, m *matrix.Matrix[float32]) error {
	if !d.trained {
		return golshbox.ErrNotTrained
	}
	if m.Dim() != int(d.p.D) {
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
		if err := d.Insert(uint32(i), m.Row(i)); err != nil {
			return err
		}
	}
	return nil
}

func (d *Dbq) Insert(id uint32, vec []float32) error {
	if !d.trained {
		return golshbox.ErrNotTrained
	}
	if err := checkDim(int(d.p.D), vec); err != nil {
		return err
	}
	for k := range d.tables {
		d.tables[k].insert(d.hashVal(k, vec), id)
	}
	return nil
}

func (d *Dbq) Query(vec []float32, sc *scanner.Scanner) error {
	if !d.trained {
		return golshbox.ErrNotTrained
	}
	if err := checkDim(int(d.p.D), vec); err != nil {
		return err
	}
	for k := range d.tables {
		hv := d.hashVal(k, vec)
		for _, id := range d.tables[k][hv] {
			sc.Visit(id)
		}
	}
	return nil
}

func (d *Dbq) Save(path string) error {
	if !d.trained {
		return golshbox.ErrNotTrained
	}
	f, err := os.Create(path)
	if err != nil {
		return golshbox.Wrap("dbq.Save", err)
	}
	defer f.Close()

	if err := binfmt.WriteUint32s(f, []uint32{d.p.M, d.p.L, d.p.D, d.p.N}); err != nil {
		return err
	}
	N := int(d.p.N)
	for i := range d.tables {
		if err := binfmt.WriteUint32s(f, d.rndArray[i]); err != nil {
			return err
		}
		if err := binfmt.WriteBucketTable(f, d.tables[i]); err != nil {
			return err
		}
		for j := 0; j < N; j++ {
			if err := binfmt.WriteFloat32s(f, d.pcsAll[i][j]); err != nil {
				return err
			}
			if err := binfmt.WriteFloat32s(f, d.omegasAll[i][j]); err != nil {
				return err
			}
		}
	}
	for i := range d.tables {
		if err := binfmt.WriteFloat32s(f, d.a[i]); err != nil {
			return err
		}
	}
	for i := range d.tables {
		if err := binfmt.WriteFloat32s(f, d.b[i]); err != nil {
			return err
		}
	}
	for i := range d.tables {
		if err := binfmt.WriteFloat32s(f, d.prjColMean[i]); err != nil {
			return err
		}
	}
	return nil
}

func (d *Dbq) Load(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return golshbox.Wrap("dbq.Load", err)
	}
	defer f.Close()

	header, err := binfmt.ReadUint32s(f, 4)
	if err != nil {
		return golshbox.ErrInvalidFormat
	}
	d.p.M, d.p.L, d.p.D, d.p.N = header[0], header[1], header[2], header[3]
	L, N, D := int(d.p.L), int(d.p.N), int(d.p.D)
	d.rndArray = make([][]uint32, L)
	d.tables = make([]table, L)
	d.pcsAll = make([][][]float32, L)
	d.omegasAll = make([][][]float32, L)
	for i := 0; i < L; i++ {
		if d.rndArray[i], err = binfmt.ReadUint32s(f, 2*N); err != nil {
			return golshbox.ErrInvalidFormat
		}
		if d.tables[i], err = binfmt.ReadBucketTable(f); err != nil {
			return golshbox.ErrInvalidFormat
		}
		d.pcsAll[i] = make([][]float32, N)
		d.omegasAll[i] = make([][]float32, N)
		for j := 0; j < N; j++ {
			if d.pcsAll[i][j], err = binfmt.ReadFloat32s(f, D); err != nil {
				return golshbox.ErrInvalidFormat
			}
			if d.omegasAll[i][j], err = binfmt.ReadFloat32s(f, N); err != nil {
				return golshbox.ErrInvalidFormat
			}
		}
	}
	d.a = make([][]float32, L)
	for i := 0; i < L; i++ {
		if d.a[i], err = binfmt.ReadFloat32s(f, N); err != nil {
			return golshbox.ErrInvalidFormat
		}
	}
	d.b = make([][]float32, L)
	for i := 0; i < L; i++ {
		if d.b[i], err = binfmt.ReadFloat32s(f, N); err != nil {
			return golshbox.ErrInvalidFormat
		}
	}
	d.prjColMean = make([][]float32, L)
	for i := 0; i < L; i++ {
		if d.prjColMean[i], err = binfmt.ReadFloat32s(f, N); err != nil {
			return golshbox.ErrInvalidFormat
		}
	}
	d.trained = true
	return nil
}
