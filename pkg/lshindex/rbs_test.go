package lshindex

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/liliang-cn/golshbox/pkg/matrix"
	"github.com/liliang-cn/golshbox/pkg/metric"
	"github.com/liliang-cn/golshbox/pkg/scanner"
	"github.com/liliang-cn/golshbox/pkg/topk"
)

func TestRBSHashIsDeterministic(t *testing.T) {
	ds := shDataset(t)
	p := RBSParams{Params: Params{M: 97, L: 2, D: 4, N: 5, Seed: 42}, C: 4}
	r1 := NewRBS(p)
	r2 := NewRBS(p)
	if err := r1.Hash(context.Background(), ds); err != nil {
		t.Fatalf("hash: %v", err)
	}
	if err := r2.Hash(context.Background(), ds); err != nil {
		t.Fatalf("hash: %v", err)
	}
	for k := range r1.tables {
		for tag, ids := range r1.tables[k] {
			if len(r2.tables[k][tag]) != len(ids) {
				t.Fatalf("tables diverge for same seed at table %d tag %d", k, tag)
			}
		}
	}
}

func TestRBSQueryDedups(t *testing.T) {
	ds := shDataset(t)
	r := NewRBS(RBSParams{Params: Params{M: 61, L: 3, D: 4, N: 4, Seed: 7}, C: 4})
	if err := r.Hash(context.Background(), ds); err != nil {
		t.Fatalf("hash: %v", err)
	}
	met, err := metric.New(4, metric.L2)
	if err != nil {
		t.Fatalf("metric.New: %v", err)
	}
	acc := matrix.NewAccessor[float32](ds)
	sc := scanner.New(acc, met, topk.NewVectorTopK())
	sc.Reset(ds.Row(1), 3, 0)
	if err := r.Query(ds.Row(1), sc); err != nil {
		t.Fatalf("query: %v", err)
	}
	distinct := make(map[uint32]bool)
	domin := toUintRow(ds.Row(1))
	for k := range r.tables {
		for _, id := range r.tables[k][r.hashVal(k, domin)] {
			distinct[id] = true
		}
	}
	if sc.Cnt() != len(distinct) {
		t.Fatalf("scanned %d candidates, want %d distinct ids", sc.Cnt(), len(distinct))
	}
}

func TestRBSSaveLoadRoundTrip(t *testing.T) {
	ds := shDataset(t)
	r := NewRBS(RBSParams{Params: Params{M: 61, L: 2, D: 4, N: 3, Seed: 3}, C: 4})
	if err := r.Hash(context.Background(), ds); err != nil {
		t.Fatalf("hash: %v", err)
	}
	path := filepath.Join(t.TempDir(), "rbs.idx")
	if err := r.Save(path); err != nil {
		t.Fatalf("save: %v", err)
	}
	loaded := &RBS{}
	if err := loaded.Load(path); err != nil {
		t.Fatalf("load: %v", err)
	}
	want := r.p
	want.Seed = 0 // the seed is not part of the saved file
	if loaded.p != want {
		t.Fatalf("params mismatch: got %+v want %+v", loaded.p, want)
	}
}

func TestRBSParallelHashMatchesSequential(t *testing.T) {
	ds := shDataset(t)
	p := RBSParams{Params: Params{M: 97, L: 4, D: 4, N: 5, Seed: 42}, C: 4}
	seq := NewRBS(p)
	if err := seq.Hash(context.Background(), ds); err != nil {
		t.Fatalf("sequential hash: %v", err)
	}
	p.Parallel = true
	par := NewRBS(p)
	if err := par.Hash(context.Background(), ds); err != nil {
		t.Fatalf("parallel hash: %v", err)
	}
	for k := range seq.tables {
		for tag, ids := range seq.tables[k] {
			if len(par.tables[k][tag]) != len(ids) {
				t.Fatalf("table %d tag %d: parallel build diverged from sequential", k, tag)
			}
		}
	}
}

func TestRBSRejectsDimensionMismatch(t *testing.T) {
	r := NewRBS(RBSParams{Params: Params{M: 11, L: 1, D: 4, N: 2}, C: 4})
	if err := r.Insert(0, []float32{1, 2, 3}); err == nil {
		t.Fatalf("expected dimension mismatch error")
	}
}
