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

func TestThreeWayThresholds(t *testing.T) {
	left := []float64{-5, -3, -1}
	right := []float64{1, 2, 8}
	a, b := threeWayThresholds(left, right)
	if a > 0 || b < 0 {
		t.Fatalf("expected a<=0<=b, got a=%v b=%v", a, b)
	}
}

func TestDbqTrainAndHash(t *testing.T) {
	ds := shDataset(t)
	d := NewDbq(DbqParams{Params: Params{M: 61, L: 2, D: 4, N: 2, Seed: 11}, I: 3})
	if err := d.Train(context.Background(), ds); err != nil {
		t.Fatalf("train: %v", err)
	}
	if err := d.Hash(context.Background(), ds); err != nil {
		t.Fatalf("hash: %v", err)
	}

	met, err := metric.New(4, metric.L2)
	if err != nil {
		t.Fatalf("metric.New: %v", err)
	}
	acc := matrix.NewAccessor[float32](ds)
	sc := scanner.New(acc, met, topk.NewHeapTopK())
	sc.Reset(ds.Row(5), 3, 0)
	if err := d.Query(ds.Row(5), sc); err != nil {
		t.Fatalf("query: %v", err)
	}
}

func TestDbqSaveLoadRoundTrip(t *testing.T) {
	ds := shDataset(t)
	d := NewDbq(DbqParams{Params: Params{M: 61, L: 2, D: 4, N: 2, Seed: 5}, I: 2})
	if err := d.Train(context.Background(), ds); err != nil {
		t.Fatalf("train: %v", err)
	}
	if err := d.Hash(context.Background(), ds); err != nil {
		t.Fatalf("hash: %v", err)
	}
	path := filepath.Join(t.TempDir(), "dbq.idx")
	if err := d.Save(path); err != nil {
		t.Fatalf("save: %v", err)
	}
	loaded := &Dbq{}
	if err := loaded.Load(path); err != nil {
		t.Fatalf("load: %v", err)
	}
	want := d.p
	// The seed and the iteration count are not part of the saved file.
	want.Seed, want.I = 0, 0
	if loaded.p != want {
		t.Fatalf("params mismatch: got %+v want %+v", loaded.p, want)
	}
}

func TestDbqUntrainedRejectsInsert(t *testing.T) {
	d := &Dbq{p: DbqParams{Params: Params{M: 11, L: 1, D: 4, N: 2}}}
	d.tables = []table{make(table)}
	if err := d.Insert(0, []float32{0, 0, 0, 0}); err == nil {
		t.Fatalf("expected error inserting into untrained index")
	}
}
