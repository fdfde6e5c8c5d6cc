package scanner

import (
	"math"
	"testing"

	"github.com/liliang-cn/golshbox/pkg/matrix"
	"github.com/liliang-cn/golshbox/pkg/metric"
	"github.com/liliang-cn/golshbox/pkg/topk"
)

func TestVisitDedups(t *testing.T) {
	m := matrix.New[float32](2)
	_ = m.Append([]float32{0, 0})
	_ = m.Append([]float32{1, 1})
	_ = m.Append([]float32{5, 5})

	met, err := metric.New(2, metric.L2)
	if err != nil {
		t.Fatalf("metric.New: %v", err)
	}

	acc := matrix.NewAccessor(m)
	sc := New(acc, met, topk.NewVectorTopK())
	sc.Reset([]float32{0, 0}, 2, math.MaxFloat32)

	sc.Visit(0)
	sc.Visit(1)
	sc.Visit(1) // duplicate, must not be rescored
	sc.Visit(2)

	if sc.Cnt() != 3 {
		t.Fatalf("got cnt=%d, want 3", sc.Cnt())
	}
	results := sc.TopK().Results()
	if len(results) != 2 {
		t.Fatalf("got %d results, want 2", len(results))
	}
	if results[0].Key != 0 {
		t.Fatalf("nearest key = %d, want 0", results[0].Key)
	}
}
