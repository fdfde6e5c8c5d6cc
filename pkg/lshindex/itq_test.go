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

func TestItqTrainAndHash(t *testing.T) {
	ds := shDataset(t)
	it := NewItq(ItqParams{Params: Params{M: 61, L: 2, D: 4, N: 2, Seed: 17}, I: 3})
	if err := it.Train(context.Background(), ds); err != nil {
		t.Fatalf("train: %v", err)
	}
	if err := it.Hash(context.Background(), ds); err != nil {
		t.Fatalf("hash: %v", err)
	}

	met, err := metric.New(4, metric.L2)
	if err != nil {
		t.Fatalf("metric.New: %v", err)
	}
	acc := matrix.NewAccessor[float32](ds)
	sc := scanner.New(acc, met, topk.NewVectorTopK())
	sc.Reset(ds.Row(0), 3, 0)
	if err := it.Query(ds.Row(0), sc); err != nil {
		t.Fatalf("query: %v", err)
	}
}

func TestItqSaveLoadRoundTrip(t *testing.T) {
	ds := shDataset(t)
	it := NewItq(ItqParams{Params: Params{M: 61, L: 2, D: 4, N: 2, Seed: 19}, I: 2})
	if err := it.Train(context.Background(), ds); err != nil {
		t.Fatalf("train: %v", err)
	}
	if err := it.Hash(context.Background(), ds); err != nil {
		t.Fatalf("hash: %v", err)
	}
	path := filepath.Join(t.TempDir(), "itq.idx")
	if err := it.Save(path); err != nil {
		t.Fatalf("save: %v", err)
	}
	loaded := &Itq{}
	if err := loaded.Load(path); err != nil {
		t.Fatalf("load: %v", err)
	}
	want := it.p
	// The seed and the iteration count are not part of the saved file.
	want.Seed, want.I = 0, 0
	if loaded.p != want {
		t.Fatalf("params mismatch: got %+v want %+v", loaded.p, want)
	}
}

func TestItqUntrainedRejectsInsert(t *testing.T) {
	it := &Itq{p: ItqParams{Params: Params{M: 11, L: 1, D: 4, N: 2}}}
	it.tables = []table{make(table)}
	if err := it.Insert(0, []float32{0, 0, 0, 0}); err == nil {
		t.Fatalf("expected error inserting into untrained index")
	}
}
