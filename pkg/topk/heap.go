package topk

import "container/heap"

// HeapTopK keeps the K smallest-distance candidates in a bounded max
// heap, evicting the current worst entry whenever a better candidate
// arrives — the container/heap pattern pkg/index/flat.go's Search uses.
type HeapTopK struct {
	k int
	h maxHeap
}

// NewHeapTopK returns a HeapTopK ready for Reset.
func NewHeapTopK() *HeapTopK {
	return &HeapTopK{}
}

func (t *HeapTopK) Reset(k int, r float32) {
	t.k = k
	t.h = make(maxHeap, 0, k)
	heap.Init(&t.h)
}

func (t *HeapTopK) Push(key uint32, dist float32) {
	if t.h.Len() < t.k {
		heap.Push(&t.h, Result{Key: key, Dist: dist})
		return
	}
	if t.k > 0 && dist < t.h[0].Dist {
		heap.Pop(&t.h)
		heap.Push(&t.h, Result{Key: key, Dist: dist})
	}
}

func (t *HeapTopK) Min() float32 {
	return t.h[0].Dist
}

func (t *HeapTopK) Results() []Result {
	cp := make(maxHeap, len(t.h))
	copy(cp, t.h)
	out := make([]Result, len(cp))
	for i := len(out) - 1; i >= 0; i-- {
		out[i] = heap.Pop(&cp).(Result)
	}
	return out
}

func (t *HeapTopK) Recall(other TopK) float32 {
	return recall(t.Results(), other.Results(), t.k)
}

// maxHeap orders Results with the largest distance on top, so the
// current worst kept candidate is always the one evicted.
type maxHeap []Result

func (h maxHeap) Len() int            { return len(h) }
func (h maxHeap) Less(i, j int) bool  { return h[i].Dist > h[j].Dist }
func (h maxHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *maxHeap) Push(x interface{}) { *h = append(*h, x.(Result)) }
func (h *maxHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}
