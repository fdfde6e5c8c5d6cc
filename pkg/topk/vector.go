package topk

import (
	"math"
	"sort"
)

// VectorTopK is a fixed-length slice of K (key, dist) pairs kept sorted
// ascending by distance, replacing the worst entry and re-sorting on
// every accepted push — a direct port of lshbox::Topk.
type VectorTopK struct {
	k int
	v []Result
}

// NewVectorTopK returns a VectorTopK ready for Reset.
func NewVectorTopK() *VectorTopK {
	return &VectorTopK{}
}

func (t *VectorTopK) Reset(k int, r float32) {
	if r == 0 {
		r = math.MaxFloat32
	}
	t.k = k
	t.v = make([]Result, k)
	for i := range t.v {
		t.v[i] = Result{Key: 0, Dist: r}
	}
}

func (t *VectorTopK) Push(key uint32, dist float32) {
	if t.k == 0 || dist >= t.v[t.k-1].Dist {
		return
	}
	t.v = t.v[:t.k-1]
	t.v = append(t.v, Result{Key: key, Dist: dist})
	sort.Slice(t.v, func(i, j int) bool { return t.v[i].Dist < t.v[j].Dist })
}

func (t *VectorTopK) Min() float32 {
	return t.v[t.k-1].Dist
}

func (t *VectorTopK) Results() []Result {
	out := make([]Result, len(t.v))
	copy(out, t.v)
	return out
}

func (t *VectorTopK) Recall(other TopK) float32 {
	return recall(t.Results(), other.Results(), t.k)
}
