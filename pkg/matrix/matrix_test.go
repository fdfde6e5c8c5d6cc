package matrix

import (
	"os"
	"path/filepath"
	"testing"
)

func TestAppendDimensionMismatch(t *testing.T) {
	m := New[float32](3)
	if err := m.Append([]float32{1, 2, 3}); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := m.Append([]float32{1, 2}); err == nil {
		t.Fatalf("expected dimension mismatch error")
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	m := New[float32](4)
	want := [][]float32{
		{1, 2, 3, 4},
		{5, 6, 7, 8},
		{9, 10, 11, 12},
	}
	for _, row := range want {
		if err := m.Append(row); err != nil {
			t.Fatalf("append: %v", err)
		}
	}

	path := filepath.Join(t.TempDir(), "data.bin")
	if err := m.Save(path); err != nil {
		t.Fatalf("save: %v", err)
	}

	loaded := New[float32](0)
	if err := loaded.Load(path); err != nil {
		t.Fatalf("load: %v", err)
	}
	if loaded.Size() != len(want) || loaded.Dim() != 4 {
		t.Fatalf("got size=%d dim=%d, want size=%d dim=4", loaded.Size(), loaded.Dim(), len(want))
	}
	for i, row := range want {
		got := loaded.Row(i)
		for j, v := range row {
			if got[j] != v {
				t.Fatalf("row %d elem %d: got %v want %v", i, j, got[j], v)
			}
		}
	}
}

func TestAccessorMarkOnce(t *testing.T) {
	m := New[float32](2)
	_ = m.Append([]float32{0, 0})
	_ = m.Append([]float32{1, 1})
	a := NewAccessor(m)

	if !a.Mark(0) {
		t.Fatalf("first mark of key 0 should succeed")
	}
	if a.Mark(0) {
		t.Fatalf("second mark of key 0 should fail")
	}
	a.Reset()
	if !a.Mark(0) {
		t.Fatalf("mark after reset should succeed again")
	}
}

func TestUint32Matrix(t *testing.T) {
	m := New[uint32](2)
	_ = m.Append([]uint32{7, 8})
	path := filepath.Join(t.TempDir(), "u.bin")
	if err := m.Save(path); err != nil {
		t.Fatalf("save: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("stat: %v", err)
	}
	loaded := New[uint32](0)
	if err := loaded.Load(path); err != nil {
		t.Fatalf("load: %v", err)
	}
	if loaded.Row(0)[0] != 7 || loaded.Row(0)[1] != 8 {
		t.Fatalf("unexpected row: %v", loaded.Row(0))
	}
}
