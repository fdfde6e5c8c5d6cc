// Package metric computes the distance used by every pkg/lshindex
// family's query-time candidate scoring, generalizing the stateless
// distance functions of similarity.go to the L1/L2 kinds lshbox.h
// supports.
package metric

import (
	"math"

	"github.com/liliang-cn/golshbox"
)

// Kind selects a distance function.
type Kind int

const (
	// L1 is the sum of absolute per-dimension differences.
	L1 Kind = iota + 1
	// L2 is Euclidean distance.
	L2
)

// Metric measures the distance between two equal-length rows of
// dimension Dim.
type Metric struct {
	dim  int
	kind Kind
}

// New returns a Metric for dim-dimensional vectors under kind. It
// returns golshbox.ErrUnknownMetric for any kind other than L1 or L2.
func New(dim int, kind Kind) (*Metric, error) {
	if kind != L1 && kind != L2 {
		return nil, golshbox.ErrUnknownMetric
	}
	return &Metric{dim: dim, kind: kind}, nil
}

// Dim returns the configured vector dimension.
func (m *Metric) Dim() int { return m.dim }

// Kind returns the configured distance kind.
func (m *Metric) Kind() Kind { return m.kind }

// Dist returns the distance between a and b under m's kind. An unknown
// kind returns -1, matching the source's switch-default sentinel for
// callers that constructed a Metric by means other than New.
func (m *Metric) Dist(a, b []float32) float32 {
	switch m.kind {
	case L1:
		return L1Dist(a, b)
	case L2:
		return L2Dist(a, b)
	default:
		return -1
	}
}

// L1Dist returns the sum of absolute per-dimension differences.
func L1Dist(a, b []float32) float32 {
	var sum float32
	for i := range a {
		d := a[i] - b[i]
		if d < 0 {
			d = -d
		}
		sum += d
	}
	return sum
}

// L2Dist returns the Euclidean distance.
func L2Dist(a, b []float32) float32 {
	var sum float64
	for i := range a {
		d := float64(a[i] - b[i])
		sum += d * d
	}
	return float32(math.Sqrt(sum))
}
