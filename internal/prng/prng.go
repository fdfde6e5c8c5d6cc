// Package prng provides the seeded random source shared by every
// pkg/lshindex family: a zero Seed falls back to a time-derived seed,
// mirroring the source's mt19937(time(0)) default and its explicit-seed
// override.
package prng

import (
	"math/rand"
	"time"
)

// New returns a *rand.Rand seeded with seed, or with the current time
// in nanoseconds when seed is 0.
func New(seed int64) *rand.Rand {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return rand.New(rand.NewSource(seed))
}
