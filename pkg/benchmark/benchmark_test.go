package benchmark

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/liliang-cn/golshbox/pkg/matrix"
	"github.com/liliang-cn/golshbox/pkg/metric"
	"github.com/liliang-cn/golshbox/pkg/topk"
)

func testDataset(t *testing.T) *matrix.Matrix[float32] {
	t.Helper()
	m := matrix.New[float32](4)
	rows := [][]float32{
		{0, 0, 0, 0},
		{1, 0, 0, 0},
		{0, 1, 0, 0},
		{5, 5, 5, 5},
		{5, 5, 5, 4},
		{9, 9, 9, 9},
		{0, 0, 1, 0},
		{2, 2, 2, 2},
	}
	for _, r := range rows {
		if err := m.Append(r); err != nil {
			t.Fatalf("append: %v", err)
		}
	}
	return m
}

func TestInitSamplesDistinctQueries(t *testing.T) {
	b := New()
	b.Init(5, 2, 8, 11)
	if b.Q() != 5 {
		t.Fatalf("Q() = %d, want 5", b.Q())
	}
	seen := make(map[uint32]bool)
	for i := 0; i < b.Q(); i++ {
		q := b.Query(i)
		if q >= 8 {
			t.Fatalf("query id %d out of range", q)
		}
		if seen[q] {
			t.Fatalf("duplicate query id %d", q)
		}
		seen[q] = true
	}
}

func TestLinearScanFindsNearestNeighbor(t *testing.T) {
	ds := testDataset(t)
	met, err := metric.New(4, metric.L2)
	if err != nil {
		t.Fatalf("metric.New: %v", err)
	}
	b := New()
	b.Resize(1, 2)
	b.queries[0] = 3 // row {5,5,5,5}
	if err := b.LinearScan(context.Background(), ds, met); err != nil {
		t.Fatalf("LinearScan: %v", err)
	}
	got := b.Answer(0)
	if len(got) != 2 {
		t.Fatalf("len(answer) = %d, want 2", len(got))
	}
	if got[0].Key != 4 {
		t.Fatalf("nearest neighbor of row 3 (itself excluded) should be row 4, got %d", got[0].Key)
	}
	if got[1].Key != 7 {
		t.Fatalf("second nearest neighbor should be row 7, got %d", got[1].Key)
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	ds := testDataset(t)
	met, err := metric.New(4, metric.L2)
	if err != nil {
		t.Fatalf("metric.New: %v", err)
	}
	b := New()
	b.Init(3, 3, ds.Size(), 9)
	if err := b.LinearScan(context.Background(), ds, met); err != nil {
		t.Fatalf("LinearScan: %v", err)
	}
	path := filepath.Join(t.TempDir(), "bench.txt")
	if err := b.Save(path); err != nil {
		t.Fatalf("save: %v", err)
	}
	loaded := New()
	if err := loaded.Load(path); err != nil {
		t.Fatalf("load: %v", err)
	}
	if loaded.Q() != b.Q() || loaded.K() != b.K() {
		t.Fatalf("Q/K mismatch: got (%d,%d) want (%d,%d)", loaded.Q(), loaded.K(), b.Q(), b.K())
	}
	for i := 0; i < b.Q(); i++ {
		if loaded.Query(i) != b.Query(i) {
			t.Fatalf("query %d mismatch: got %d want %d", i, loaded.Query(i), b.Query(i))
		}
		want := b.Answer(i)
		got := loaded.Answer(i)
		for j := range want {
			if got[j] != want[j] {
				t.Fatalf("answer %d/%d mismatch: got %+v want %+v", i, j, got[j], want[j])
			}
		}
	}
}

func TestRecall(t *testing.T) {
	want := []topk.Result{{Key: 1, Dist: 0}, {Key: 2, Dist: 1}, {Key: 3, Dist: 2}}
	exact := Recall(want, want)
	if exact != 1 {
		t.Fatalf("exact match recall = %v, want 1", exact)
	}
	partial := Recall([]topk.Result{{Key: 1, Dist: 0}}, want)
	if partial <= 0 || partial >= exact {
		t.Fatalf("partial recall %v should lie strictly between 0 and %v", partial, exact)
	}
}

func TestStat(t *testing.T) {
	s := NewStat()
	for _, v := range []float64{1, 2, 3, 4, 5} {
		s.Append(v)
	}
	if s.Count() != 5 {
		t.Fatalf("Count() = %d, want 5", s.Count())
	}
	if s.Avg() != 3 {
		t.Fatalf("Avg() = %v, want 3", s.Avg())
	}
	if s.Min() != 1 || s.Max() != 5 {
		t.Fatalf("Min/Max = %v/%v, want 1/5", s.Min(), s.Max())
	}
	if s.Std() <= 0 {
		t.Fatalf("Std() = %v, want > 0", s.Std())
	}
}

func TestStatMerge(t *testing.T) {
	a := NewStat()
	a.Append(1)
	a.Append(2)
	b := NewStat()
	b.Append(3)
	b.Append(4)
	a.Merge(b)
	if a.Count() != 4 {
		t.Fatalf("Count() = %d, want 4", a.Count())
	}
	if a.Min() != 1 || a.Max() != 4 {
		t.Fatalf("Min/Max = %v/%v, want 1/4", a.Min(), a.Max())
	}
}
