// Package lshindex implements the eight Locality-Sensitive Hashing
// families of the original LSHBOX library: rbs (random bit sampling),
// rhp (random hyperplane), th (coordinate thresholding), psd
// (p-stable distributions), sh (spectral hashing), itq (iterative
// quantization), dbq (double-bit quantization) and kdbq (k-means
// double-bit quantization).
//
// Every family keeps L independent hash tables, each mapping an
// M-bounded tag to the ids of the rows that hashed to it, mirroring
// pkg/index/lsh.go's table/bucket layout. Training (where a family
// needs it) runs once over a matrix.Matrix[float32]; Hash fills the
// tables and Insert appends single rows to them. No family removes rows.
package lshindex

import (
	"context"
	"runtime"
	"sort"
	"sync"

	"github.com/liliang-cn/golshbox"
	"github.com/liliang-cn/golshbox/pkg/matrix"
	"github.com/liliang-cn/golshbox/pkg/scanner"
)

// HashIndex is implemented by every family operating on float32 rows.
type HashIndex interface {
	// Reset (re)initializes the family's random state from seed (0
	// derives a time-based seed, see internal/prng).
	Reset(seed int64)
	// Hash builds the hash tables over every row of m.
	Hash(ctx context.Context, m *matrix.Matrix[float32]) error
	// Insert adds a single row to the already-built tables.
	Insert(id uint32, vec []float32) error
	// Query visits sc with every candidate found across all L tables
	// for vec.
	Query(vec []float32, sc *scanner.Scanner) error
	// Save persists the index, including its dataset-independent
	// parameters and tables, to path.
	Save(path string) error
	// Load replaces the index's state with the file at path.
	Load(path string) error
}

// Trainable is implemented by the families (sh, itq, dbq, kdbq) whose
// hash functions are learned from the dataset before Hash can run.
type Trainable interface {
	Train(ctx context.Context, m *matrix.Matrix[float32]) error
}

// Params holds the fields common to every family's Parameter struct:
// M (table size), L (table count), D (vector dimension) and N (number
// of hash functions / coded bits per table).
type Params struct {
	M, L, D, N uint32
	Seed       int64
	// Parallel builds the L hash tables concurrently instead of
	// sequentially during Hash, over at most one goroutine per CPU, each
	// building whole tables (default false). Only RBS and RHP read it.
	Parallel bool
}

// buildTablesParallel runs worker(k) for every table index in
// [0,tableCount) over a bounded pool of goroutines, one per available
// CPU, each goroutine owning a disjoint set of table indices so no
// table is ever written by more than one goroutine concurrently. It
// returns the first error encountered, after all goroutines finish.
func buildTablesParallel(ctx context.Context, tableCount int, worker func(k int) error) error {
	workers := runtime.NumCPU()
	if workers > tableCount {
		workers = tableCount
	}
	if workers < 1 {
		workers = 1
	}
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		firstErr error
	)
	jobs := make(chan int)
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for k := range jobs {
				if err := worker(k); err != nil {
					mu.Lock()
					if firstErr == nil {
						firstErr = err
					}
					mu.Unlock()
				}
			}
		}()
	}
sendLoop:
	for k := 0; k < tableCount; k++ {
		select {
		case <-ctx.Done():
			mu.Lock()
			if firstErr == nil {
				firstErr = ctx.Err()
			}
			mu.Unlock()
			break sendLoop
		case jobs <- k:
		}
	}
	close(jobs)
	wg.Wait()
	return firstErr
}

// table maps a tag to the ids of the rows that produced it.
type table map[uint32][]uint32

func (t table) insert(tag, id uint32) {
	t[tag] = append(t[tag], id)
}

// distinctUints draws n distinct values in [0,bound) using rng,
// returned sorted ascending — the rejection-sampling loop every family
// uses to pick N distinct coordinates or bit positions per table.
func distinctUints(rng interface{ Intn(int) int }, n, bound int) []uint32 {
	seen := make(map[uint32]bool, n)
	out := make([]uint32, 0, n)
	for len(out) < n {
		v := uint32(rng.Intn(bound))
		if seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func checkDim(want int, vec []float32) error {
	if len(vec) != want {
		return golshbox.ErrDimensionMismatch
	}
	return nil
}

// checkNonEmpty rejects a Hash call over a dataset with no rows. Every
// family's Hash calls it; the Train methods do not.
func checkNonEmpty(m *matrix.Matrix[float32]) error {
	if m.Size() == 0 {
		return golshbox.ErrEmptyIndex
	}
	return nil
}
