package metric

import (
	"math"
	"testing"
)

func TestL2Dist(t *testing.T) {
	a := []float32{0, 0}
	b := []float32{3, 4}
	got := L2Dist(a, b)
	if math.Abs(float64(got)-5) > 1e-6 {
		t.Fatalf("got %v, want 5", got)
	}
}

func TestL1Dist(t *testing.T) {
	a := []float32{1, -2}
	b := []float32{4, 2}
	got := L1Dist(a, b)
	if got != 7 {
		t.Fatalf("got %v, want 7", got)
	}
}

func TestNewUnknownKind(t *testing.T) {
	if _, err := New(4, Kind(99)); err == nil {
		t.Fatalf("expected error for unknown kind")
	}
}

func TestMetricDist(t *testing.T) {
	m, err := New(2, L2)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if got := m.Dist([]float32{0, 0}, []float32{3, 4}); got != 5 {
		t.Fatalf("got %v, want 5", got)
	}
}
