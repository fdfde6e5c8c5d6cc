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

func TestPsdNewRejectsUnknownDistribution(t *testing.T) {
	if _, err := NewPsd(PsdParams{Params: Params{M: 11, L: 1, D: 4, N: 2}, T: Distribution(99), W: 1}); err == nil {
		t.Fatalf("expected error for unknown distribution")
	}
}

func TestPsdHashIsDeterministic(t *testing.T) {
	ds := shDataset(t)
	p := PsdParams{Params: Params{M: 97, L: 2, D: 4, N: 3, Seed: 42}, T: Gaussian, W: 2}
	ps1, err := NewPsd(p)
	if err != nil {
		t.Fatalf("NewPsd: %v", err)
	}
	ps2, err := NewPsd(p)
	if err != nil {
		t.Fatalf("NewPsd: %v", err)
	}
	if err := ps1.Hash(context.Background(), ds); err != nil {
		t.Fatalf("hash: %v", err)
	}
	if err := ps2.Hash(context.Background(), ds); err != nil {
		t.Fatalf("hash: %v", err)
	}
	for k := range ps1.tables {
		for tag, ids := range ps1.tables[k] {
			if len(ps2.tables[k][tag]) != len(ids) {
				t.Fatalf("tables diverge for same seed at table %d tag %d", k, tag)
			}
		}
	}
}

func TestPsdQueryFindsNeighborsCauchy(t *testing.T) {
	ds := shDataset(t)
	ps, err := NewPsd(PsdParams{Params: Params{M: 61, L: 3, D: 4, N: 3, Seed: 7}, T: Cauchy, W: 2})
	if err != nil {
		t.Fatalf("NewPsd: %v", err)
	}
	if err := ps.Hash(context.Background(), ds); err != nil {
		t.Fatalf("hash: %v", err)
	}
	met, err := metric.New(4, metric.L1)
	if err != nil {
		t.Fatalf("metric.New: %v", err)
	}
	acc := matrix.NewAccessor[float32](ds)
	sc := scanner.New(acc, met, topk.NewVectorTopK())
	sc.Reset(ds.Row(6), 3, 0)
	if err := ps.Query(ds.Row(6), sc); err != nil {
		t.Fatalf("query: %v", err)
	}
	results := sc.TopK().Results()
	if len(results) == 0 || results[0].Key != 6 || results[0].Dist != 0 {
		t.Fatalf("query row 6 should be its own nearest candidate, got %v", results)
	}
}

func TestPsdSaveLoadRoundTrip(t *testing.T) {
	ds := shDataset(t)
	ps, err := NewPsd(PsdParams{Params: Params{M: 61, L: 2, D: 4, N: 2, Seed: 3}, T: Gaussian, W: 1.5})
	if err != nil {
		t.Fatalf("NewPsd: %v", err)
	}
	if err := ps.Hash(context.Background(), ds); err != nil {
		t.Fatalf("hash: %v", err)
	}
	path := filepath.Join(t.TempDir(), "psd.idx")
	if err := ps.Save(path); err != nil {
		t.Fatalf("save: %v", err)
	}
	loaded := &Psd{}
	if err := loaded.Load(path); err != nil {
		t.Fatalf("load: %v", err)
	}
	want := ps.p
	// The seed, the distribution and N are not part of the saved file.
	want.Seed, want.T, want.N = 0, 0, 0
	if loaded.p != want {
		t.Fatalf("params mismatch: got %+v want %+v", loaded.p, want)
	}
}
