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
	"gonum.org/v1/gonum/mat"
)

// KdbqParams configures a k-means double-bit-quantization index. I is
// the number of alternating Procrustes rotation iterations run per
// table, shared with Dbq's ITQ preamble.
type KdbqParams struct {
	Params
	I uint32
}

// Kdbq is the k-means double-bit quantization family. It shares Dbq's
// PCA and per-table ITQ rotation, but instead of a threshold search it
// fits a 1-D, 3-cluster k-means over each rotated projection dimension
// (low, mid, high); Hash assigns two bits per dimension from whichever
// cluster (low or high, never mid) a row's nearest-cluster label falls
// into.
type Kdbq struct {
	p         KdbqParams
	pcsAll    [][][]float32 // per table, N principal axes of D components (identical across tables)
	omegasAll [][][]float32 // per table, N x N learned rotation
	rndArray  [][]uint32    // per table, 2N random tags in [0,M)
	u0        [][]float32   // per table, N low-cluster centers
	u1        [][]float32   // per table, N mid-cluster centers
	u2        [][]float32   // per table, N high-cluster centers
	tables    []table
	trained   bool
}

// NewKdbq returns an untrained Kdbq; call Train before Hash.
func NewKdbq(p KdbqParams) *Kdbq {
	k := &Kdbq{p: p}
	k.Reset(p.Seed)
	return k
}

func (k *Kdbq) Reset(seed int64) {
	rng := prng.New(seed)
	L, N, M := int(k.p.L), int(k.p.N), int(k.p.M)
	k.rndArray = make([][]uint32, L)
	k.tables = make([]table, L)
	for i := 0; i < L; i++ {
		k.rndArray[i] = make([]uint32, 2*N)
		for j := range k.rndArray[i] {
			k.rndArray[i][j] = uint32(rng.Intn(M))
		}
		k.tables[i] = make(table)
	}
	k.trained = false
}

// cluster1D fits the 1-D, 3-center clustering (low, mid, high) that
// Train's bucket assignment and hashVal use, iterating until the total squared
// distortion stops changing, mirroring kdbqLsh::Cluster.
func cluster1D(values []float32) (u0, u1, u2 float32, labels []int) {
	n := len(values)
	u0v, u1v, u2v := values[0], values[0], values[0]
	for _, v := range values {
		if v < u0v {
			u0v = v
		}
		if v > u2v {
			u2v = v
		}
	}
	var sum float64
	for _, v := range values {
		sum += float64(v)
	}
	u1v = float32(sum / float64(n))

	labels = make([]int, n)
	assign := func() float64 {
		var e [3]float64
		centers := [3]float32{u0v, u1v, u2v}
		for i, v := range values {
			best := 0
			bestDist := float32(math.Abs(float64(v - centers[0])))
			for t := 1; t < 3; t++ {
				d := float32(math.Abs(float64(v - centers[t])))
				if d < bestDist {
					bestDist = d
					best = t
				}
			}
			labels[i] = best
			e[best] += float64(bestDist) * float64(bestDist)
		}
		return e[0] + e[1] + e[2]
	}

	variance := assign()
	minVar := math.MaxFloat64
	for variance != minVar {
		minVar = variance
		var sums [3]float64
		var counts [3]int
		for i, v := range values {
			sums[labels[i]] += float64(v)
			counts[labels[i]]++
		}
		if counts[0] > 0 {
			u0v = float32(sums[0] / float64(counts[0]))
		}
		if counts[1] > 0 {
			u1v = float32(sums[1] / float64(counts[1]))
		}
		if counts[2] > 0 {
			u2v = float32(sums[2] / float64(counts[2]))
		}
		variance = assign()
	}
	return u0v, u1v, u2v, labels
}

// Train fits the shared PCA, each table's ITQ rotation, and the
// per-dimension 3-means clustering used by Hash and Query.
func (k *Kdbq) Train(ctx context.Context, m *matrix.Matrix[float32]) error {
	if m.Dim() != int(k.p.D) {
		return golshbox.ErrDimensionMismatch
	}
	npca, L, I := int(k.p.N), int(k.p.L), int(k.p.I)
	x, top, err := pcaTopComponents(m, npca)
	if err != nil {
		return err
	}
	var matC mat.Dense
	matC.Mul(x, top)
	size, _ := matC.Dims()

	rng := prng.New(k.p.Seed)
	k.pcsAll = make([][][]float32, L)
	k.omegasAll = make([][][]float32, L)
	k.u0 = make([][]float32, L)
	k.u1 = make([][]float32, L)
	k.u2 = make([][]float32, L)

	for table := 0; table < L; table++ {
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
			row := make([]float32, int(k.p.D))
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

		u0s := make([]float32, npca)
		u1s := make([]float32, npca)
		u2s := make([]float32, npca)
		labelsAll := make([][]int, npca)
		for dim := 0; dim < npca; dim++ {
			col := make([]float32, size)
			for i := 0; i < size; i++ {
				col[i] = float32(z.At(i, dim))
			}
			u0s[dim], u1s[dim], u2s[dim], labelsAll[dim] = cluster1D(col)
		}

		sums := make([]uint32, size)
		for dim := 0; dim < npca; dim++ {
			for row := 0; row < size; row++ {
				switch labelsAll[dim][row] {
				case 0:
					sums[row] += k.rndArray[table][2*dim+1]
				case 2:
					sums[row] += k.rndArray[table][2*dim]
				}
			}
		}
		for row := 0; row < size; row++ {
			hv := sums[row] % k.p.M
			k.tables[table].insert(hv, uint32(row))
		}

		k.pcsAll[table] = pcs
		k.omegasAll[table] = omegas
		k.u0[table] = u0s
		k.u1[table] = u1s
		k.u2[table] = u2s
	}
	k.trained = true
	return nil
}

func (k *Kdbq) hashVal(table int, domin []float32) uint32 {
	npca := len(k.pcsAll[table])
	dominPC := make([]float32, npca)
	for i := 0; i < npca; i++ {
		var v float32
		for j, pc := range k.pcsAll[table][i] {
			v += domin[j] * pc
		}
		dominPC[i] = v
	}
	var sum uint32
	for i := 0; i < npca; i++ {
		var product float32
		for j, w := range k.omegasAll[table][i] {
			product += dominPC[j] * w
		}
		centers := [3]float32{k.u0[table][i], k.u1[table][i], k.u2[table][i]}
		label := 0
		best := float32(math.Abs(float64(product - centers[0])))
		for t := 1; t < 3; t++ {
			d := float32(math.Abs(float64(product - centers[t])))
			if d < best {
				best = d
				label = t
			}
		}
		switch label {
		case 0:
			sum += k.rndArray[table][2*i+1]
		case 2:
			sum += k.rndArray[table][2*i]
		}
	}
	return sum % k.p.M
}

// Hash inserts every row of m; Train must have been called first.
func (k *Kdbq) Hash(ctx context.Context, m *matrix.Matrix[float32]) error {
	if !k.trained {
		return golshbox.ErrNotTrained
	}
	if m.Dim() != int(k.p.D) {
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
		if err := k.Insert(uint32(i), m.Row(i)); err != nil {
			return err
		}
	}
	return nil
}

func (k *Kdbq) Insert(id uint32, vec []float32) error {
	if !k.trained {
		return golshbox.ErrNotTrained
	}
	if err := checkDim(int(k.p.D), vec); err != nil {
		return err
	}
	for t := range k.tables {
		k.tables[t].insert(k.hashVal(t, vec), id)
	}
	return nil
}

func (k *Kdbq) Query(vec []float32, sc *scanner.Scanner) error {
	if !k.trained {
		return golshbox.ErrNotTrained
	}
	if err := checkDim(int(k.p.D), vec); err != nil {
		return err
	}
	for t := range k.tables {
		hv := k.hashVal(t, vec)
		for _, id := range k.tables[t][hv] {
			sc.Visit(id)
		}
	}
	return nil
}

func (k *Kdbq) Save(path string) error {
	if !k.trained {
		return golshbox.ErrNotTrained
	}
	f, err := os.Create(path)
	if err != nil {
		return golshbox.Wrap("kdbq.Save", err)
	}
	defer f.Close()

	if err := binfmt.WriteUint32s(f, []uint32{k.p.M, k.p.L, k.p.D, k.p.N}); err != nil {
		return err
	}
	N := int(k.p.N)
	for i := range k.tables {
		if err := binfmt.WriteUint32s(f, k.rndArray[i]); err != nil {
			return err
		}
		if err := binfmt.WriteBucketTable(f, k.tables[i]); err != nil {
			return err
		}
		for j := 0; j < N; j++ {
			if err := binfmt.WriteFloat32s(f, k.pcsAll[i][j]); err != nil {
				return err
			}
			if err := binfmt.WriteFloat32s(f, k.omegasAll[i][j]); err != nil {
				return err
			}
		}
	}
	for i := range k.tables {
		if err := binfmt.WriteFloat32s(f, k.u0[i]); err != nil {
			return err
		}
	}
	for i := range k.tables {
		if err := binfmt.WriteFloat32s(f, k.u1[i]); err != nil {
			return err
		}
	}
	for i := range k.tables {
		if err := binfmt.WriteFloat32s(f, k.u2[i]); err != nil {
			return err
		}
	}
	return nil
}

func (k *Kdbq) Load(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return golshbox.Wrap("kdbq.Load", err)
	}
	defer f.Close()

	header, err := binfmt.ReadUint32s(f, 4)
	if err != nil {
		return golshbox.ErrInvalidFormat
	}
	k.p.M, k.p.L, k.p.D, k.p.N = header[0], header[1], header[2], header[3]
	L, N, D := int(k.p.L), int(k.p.N), int(k.p.D)
	k.rndArray = make([][]uint32, L)
	k.tables = make([]table, L)
	k.pcsAll = make([][][]float32, L)
	k.omegasAll = make([][][]float32, L)
	for i := 0; i < L; i++ {
		if k.rndArray[i], err = binfmt.ReadUint32s(f, 2*N); err != nil {
			return golshbox.ErrInvalidFormat
		}
		if k.tables[i], err = binfmt.ReadBucketTable(f); err != nil {
			return golshbox.ErrInvalidFormat
		}
		k.pcsAll[i] = make([][]float32, N)
		k.omegasAll[i] = make([][]float32, N)
		for j := 0; j < N; j++ {
			if k.pcsAll[i][j], err = binfmt.ReadFloat32s(f, D); err != nil {
				return golshbox.ErrInvalidFormat
			}
			if k.omegasAll[i][j], err = binfmt.ReadFloat32s(f, N); err != nil {
				return golshbox.ErrInvalidFormat
			}
		}
	}
	k.u0 = make([][]float32, L)
	for i := 0; i < L; i++ {
		if k.u0[i], err = binfmt.ReadFloat32s(f, N); err != nil {
			return golshbox.ErrInvalidFormat
		}
	}
	k.u1 = make([][]float32, L)
	for i := 0; i < L; i++ {
		if k.u1[i], err = binfmt.ReadFloat32s(f, N); err != nil {
			return golshbox.ErrInvalidFormat
		}
	}
	k.u2 = make([][]float32, L)
	for i := 0; i < L; i++ {
		if k.u2[i], err = binfmt.ReadFloat32s(f, N); err != nil {
			return golshbox.ErrInvalidFormat
		}
	}
	k.trained = true
	return nil
}
