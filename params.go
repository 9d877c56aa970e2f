// params.go - sizing and seed derivation for filters
//
// (c) Sudhi Herle 2018
//
// Author: Sudhi Herle <sudhi@herle.net>
//
// This software does not come with any express or implied
// warranty; it is provided "as is". No claim  is made to its
// suitability for any purpose.

package bloom

import (
	"fmt"
	"math"
)

// deriveParams computes the filter geometry for a requested capacity
// and target false-positive rate:
//
//	m = ceil(-n * ln(p) / (ln 2)^2), rounded up to a multiple of 8
//	k = max(1, round((m/n) * ln 2))
//
// m never drops below n. A k above _MaxHashes is rejected with
// ErrArgument rather than clamped.
func deriveParams(capacity uint64, errRate float64) (m uint64, k uint32, err error) {
	if capacity < 1 {
		return 0, 0, fmt.Errorf("bloom: capacity %d < 1: %w", capacity, ErrArgument)
	}

	// NaN fails both comparisons
	if !(errRate > 0.0 && errRate < 1.0) {
		return 0, 0, fmt.Errorf("bloom: error rate %v not in (0, 1): %w", errRate, ErrArgument)
	}

	bits := math.Ceil(-float64(capacity) * math.Log(errRate) / (math.Ln2 * math.Ln2))
	if bits >= math.MaxUint64 {
		return 0, 0, fmt.Errorf("bloom: %v bits don't fit in 64 bits: %w", bits, ErrArgument)
	}

	m = uint64(bits)
	if m < capacity {
		m = capacity
	}
	m = (m + 7) &^ uint64(7)

	nk := math.Round(float64(m) / float64(capacity) * math.Ln2)
	if nk < 1 {
		nk = 1
	}
	if nk > _MaxHashes {
		return 0, 0, fmt.Errorf("bloom: %v hash functions exceed the cap of %d: %w",
			nk, _MaxHashes, ErrArgument)
	}

	return m, uint32(nk), nil
}

// defaultSeeds returns the first 'k' primes, starting at 2. The walk
// is deterministic, so two filters sized with the same (n, p) always
// agree on seeds and can exchange images.
func defaultSeeds(k uint32) []uint32 {
	seeds := make([]uint32, 0, k)
	for x := uint32(2); uint32(len(seeds)) < k; x++ {
		if isPrime(x) {
			seeds = append(seeds, x)
		}
	}
	return seeds
}

// isPrime does trial division up to sqrt(x); plenty fast for the
// at-most-128 small primes we ever walk.
func isPrime(x uint32) bool {
	if x < 2 {
		return false
	}
	for d := uint32(2); d*d <= x; d++ {
		if x%d == 0 {
			return false
		}
	}
	return true
}

// checkSeeds validates a caller-supplied seed list against the derived
// hash count: exactly 'k' entries, no duplicates.
func checkSeeds(k uint32, seeds []uint32) error {
	if uint32(len(seeds)) != k {
		return fmt.Errorf("bloom: %d seeds supplied but %d hashes derived: %w",
			len(seeds), k, ErrArgument)
	}

	seen := make(map[uint32]bool, len(seeds))
	for _, s := range seeds {
		if seen[s] {
			return fmt.Errorf("bloom: duplicate seed %d: %w", s, ErrArgument)
		}
		seen[s] = true
	}
	return nil
}
