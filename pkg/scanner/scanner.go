// Package scanner dedups candidates surfaced by a hash index's bucket
// lookups and feeds the survivors into a pkg/topk.TopK, generalizing
// the candidate-set dedup pattern of pkg/index/lsh.go's Search to work
// against any matrix.Accessor.
package scanner

import (
	"github.com/liliang-cn/golshbox/pkg/matrix"
	"github.com/liliang-cn/golshbox/pkg/metric"
	"github.com/liliang-cn/golshbox/pkg/topk"
)

// Scanner is passed into a HashIndex's Query method. Each bucket member
// the index encounters is offered via Visit; Scanner marks it seen in
// its Accessor, scores it once against the current query with Metric,
// and pushes it into TopK.
type Scanner struct {
	accessor *matrix.Accessor[float32]
	metric   *metric.Metric
	topk     topk.TopK
	query    []float32
	cnt      int
}

// New returns a Scanner bound to accessor and m, using topk to collect
// the K nearest candidates of each query.
func New(accessor *matrix.Accessor[float32], m *metric.Metric, tk topk.TopK) *Scanner {
	return &Scanner{accessor: accessor, metric: m, topk: tk}
}

// Reset begins a new query: the accessor's marks are cleared, the TopK
// is reset to hold k results, and the scan count returns to zero.
func (s *Scanner) Reset(query []float32, k int, r float32) {
	s.query = query
	s.accessor.Reset()
	s.topk.Reset(k, r)
	s.cnt = 0
}

// Visit offers a candidate id to the scanner. It is scored only the
// first time it is visited during the current query.
func (s *Scanner) Visit(key uint32) {
	if !s.accessor.Mark(key) {
		return
	}
	s.cnt++
	s.topk.Push(key, s.metric.Dist(s.query, s.accessor.Get(key)))
}

// Cnt returns the number of distinct candidates scored during the
// current query.
func (s *Scanner) Cnt() int { return s.cnt }

// TopK returns the scanner's TopK collector.
func (s *Scanner) TopK() topk.TopK { return s.topk }
