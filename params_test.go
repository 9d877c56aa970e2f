// params_test.go -- test suite for sizing and seed derivation
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
	"errors"
	"testing"
)

func TestDeriveParams(t *testing.T) {
	assert := newAsserter(t)

	m, k, err := deriveParams(200, 0.001)
	assert(err == nil, "derive failed: %s", err)
	assert(m == 2880, "m mismatch; exp 2880, saw %d", m)
	assert(k == 10, "k mismatch; exp 10, saw %d", k)

	m, k, err = deriveParams(100, 0.0313)
	assert(err == nil, "derive failed: %s", err)
	assert(m == 728, "m mismatch; exp 728, saw %d", m)
	assert(k == 5, "k mismatch; exp 5, saw %d", k)

	// lax error rates still give at least one bit per element
	m, k, err = deriveParams(1000, 0.99)
	assert(err == nil, "derive failed: %s", err)
	assert(m == 1000, "m mismatch; exp 1000, saw %d", m)
	assert(k == 1, "k mismatch; exp 1, saw %d", k)

	assert(m%8 == 0, "m %d not a multiple of 8", m)
}

func TestDeriveParamsErrors(t *testing.T) {
	assert := newAsserter(t)

	_, _, err := deriveParams(0, 0.01)
	assert(errors.Is(err, ErrArgument), "capacity 0 accepted: %v", err)

	for _, p := range []float64{0.0, 1.0, -0.5, 2.0} {
		_, _, err = deriveParams(10, p)
		assert(errors.Is(err, ErrArgument), "error rate %v accepted: %v", p, err)
	}

	// an absurd error rate would need more than _MaxHashes hashes
	_, _, err = deriveParams(1000, 1e-45)
	assert(errors.Is(err, ErrArgument), "hash cap not enforced: %v", err)
}

func TestDefaultSeeds(t *testing.T) {
	assert := newAsserter(t)

	exp := []uint32{2, 3, 5, 7, 11, 13, 17, 19, 23, 29}
	seeds := defaultSeeds(10)
	assert(len(seeds) == 10, "seed count mismatch; exp 10, saw %d", len(seeds))
	for i, s := range seeds {
		assert(s == exp[i], "seed %d mismatch; exp %d, saw %d", i, exp[i], s)
	}

	// the walk is deterministic
	again := defaultSeeds(10)
	for i, s := range again {
		assert(s == seeds[i], "rederived seed %d differs", i)
	}
}

func TestCheckSeeds(t *testing.T) {
	assert := newAsserter(t)

	err := checkSeeds(3, []uint32{2, 3, 5})
	assert(err == nil, "valid seeds rejected: %s", err)

	err = checkSeeds(3, []uint32{2, 3})
	assert(errors.Is(err, ErrArgument), "short seed list accepted: %v", err)

	err = checkSeeds(3, []uint32{2, 3, 3})
	assert(errors.Is(err, ErrArgument), "duplicate seeds accepted: %v", err)
}
