// hash.go - keyed 128-bit hashing and index derivation
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
	"encoding/binary"
	"math"

	"github.com/dchest/siphash"
	"github.com/spaolacci/murmur3"
)

// Hasher is a keyed 128-bit hash over an element's bytes. Filters that
// exchange images (base64 or the file itself) must use the same Hasher
// and the same seeds.
type Hasher interface {
	Hash128(seed uint32, key []byte) (uint64, uint64)
}

var (
	// Murmur3Hasher is the default scheme: Murmur3-128 keyed by the
	// seed.
	Murmur3Hasher Hasher = murmurHasher{}

	// SipHasher is an alternative keyed scheme built on SipHash-2-4's
	// 128-bit output.
	SipHasher Hasher = sipHasher{}
)

type murmurHasher struct{}

func (murmurHasher) Hash128(seed uint32, key []byte) (uint64, uint64) {
	return murmur3.Sum128WithSeed(key, seed)
}

type sipHasher struct{}

// the siphash key halves start from the standard "somepseudorandomly
// generatedbytes" constants, perturbed by the seed
func (sipHasher) Hash128(seed uint32, key []byte) (uint64, uint64) {
	k0 := uint64(0x736f6d6570736575) ^ uint64(seed)
	k1 := uint64(0x646f72616e646f6d) ^ (uint64(seed) << 32)
	return siphash.Hash128(k0, k1, key)
}

// indexes fills 'idx' with the bit positions for 'key' by double
// hashing: one 128-bit hash keyed by the first seed yields (a, b), and
// position i is (a + i*b + seed_i) mod m.
func (f *Filter) indexes(key []byte, idx []uint64) {
	a, b := f.hasher.Hash128(f.hdr.seeds[0], key)

	m := f.hdr.nbits
	for i := range idx {
		idx[i] = (a + uint64(i)*b + uint64(f.hdr.seeds[i])) % m
	}
}

// Uint64Key returns the canonical byte encoding of an unsigned scalar
// element: 8 bytes, little-endian. Producers and consumers of shared
// images must agree on element encodings; these helpers pin the one
// this package recommends.
func Uint64Key(v uint64) []byte {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	return b[:]
}

// Int64Key returns the canonical byte encoding of a signed scalar
// element: two's complement, 8 bytes, little-endian.
func Int64Key(v int64) []byte {
	return Uint64Key(uint64(v))
}

// Float64Key returns the canonical byte encoding of a float element:
// IEEE-754 binary64 bits, little-endian.
func Float64Key(v float64) []byte {
	return Uint64Key(math.Float64bits(v))
}
