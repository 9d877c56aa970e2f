// bloom.go - persistent memory-mapped Bloom filter
//
// (c) Sudhi Herle 2018
//
// Author: Sudhi Herle <sudhi@herle.net>
//
// This software does not come with any express or implied
// warranty; it is provided "as is". No claim  is made to its
// suitability for any purpose.

// Package bloom implements a persistent Bloom filter: a probabilistic
// set with a bounded false-positive rate and no false negatives, whose
// backing store is a single file mapped into the process address
// space. The file is the in-memory representation; there is no
// separate serialization step. Filters can also live in anonymous
// memory when no durability is needed.
//
// A filter is sized from a requested capacity and target error rate.
// Elements are arbitrary byte strings; each one is double-hashed into
// k bit positions with a keyed 128-bit hash (Murmur3 by default).
// Filters with identical geometry and seeds can be combined with
// Union/Intersect, snapshotted to base64 for transport, and reopened
// read-only for query-only consumers.
//
// The package is single-threaded by contract: it does no internal
// locking. Multiple processes may map the same file, but at most one
// of them may write.
package bloom

import (
	"fmt"
)

// Filter is a handle to an open Bloom filter. A Filter owns its
// mapping and file descriptor; Close releases both. A Filter opened
// with OpenReadOnly serves queries and snapshots but fails every
// mutating call.
type Filter struct {
	hdr *header
	bv  *bitVector

	hasher Hasher

	// scratch for the k bit positions of one element
	idx []uint64

	fn     string
	ro     bool
	closed bool
}

// New creates a Bloom filter sized for 'capacity' elements at target
// false-positive rate 'errRate', with deterministic prime seeds. If
// 'fn' is non-empty the filter image is created (or truncated) there
// and mapped read-write; an empty 'fn' keeps the filter in anonymous
// memory.
func New(capacity uint64, errRate float64, fn string) (*Filter, error) {
	m, k, err := deriveParams(capacity, errRate)
	if err != nil {
		return nil, err
	}

	return newFilter(fn, &header{
		nbits:    m,
		capacity: capacity,
		errRate:  errRate,
		seeds:    defaultSeeds(k),
	})
}

// NewWithSeeds is New with caller-supplied hash seeds. The seed list
// must have exactly as many entries as the hash count derived from
// (capacity, errRate), with no duplicates. Explicit seeds are the
// reproducible path for filters that exchange images across machines.
func NewWithSeeds(capacity uint64, errRate float64, fn string, seeds []uint32) (*Filter, error) {
	m, k, err := deriveParams(capacity, errRate)
	if err != nil {
		return nil, err
	}

	if err = checkSeeds(k, seeds); err != nil {
		return nil, err
	}

	sd := make([]uint32, len(seeds))
	copy(sd, seeds)

	return newFilter(fn, &header{
		nbits:    m,
		capacity: capacity,
		errRate:  errRate,
		seeds:    sd,
	})
}

// Open maps an existing filter file read-write. The header is the
// source of truth: capacity, error rate, geometry and seeds all come
// from the file.
func Open(fn string) (*Filter, error) {
	return open(fn, false)
}

// OpenReadOnly maps an existing filter file for queries only. Every
// mutating operation on the returned filter fails with ErrPermission.
func OpenReadOnly(fn string) (*Filter, error) {
	return open(fn, true)
}

func open(fn string, ro bool) (*Filter, error) {
	bv, hdr, err := openBitVector(fn, ro)
	if err != nil {
		return nil, err
	}

	return &Filter{
		hdr:    hdr,
		bv:     bv,
		hasher: Murmur3Hasher,
		idx:    make([]uint64, len(hdr.seeds)),
		fn:     fn,
		ro:     ro,
	}, nil
}

func newFilter(fn string, hdr *header) (*Filter, error) {
	bv, err := newBitVector(fn, hdr)
	if err != nil {
		return nil, err
	}

	return &Filter{
		hdr:    hdr,
		bv:     bv,
		hasher: Murmur3Hasher,
		idx:    make([]uint64, len(hdr.seeds)),
		fn:     fn,
	}, nil
}

// Add inserts the element 'key' and reports whether it was possibly
// present already (all of its bits were set before the call).
func (f *Filter) Add(key []byte) (bool, error) {
	if err := f.writable("add"); err != nil {
		return false, err
	}

	f.indexes(key, f.idx)

	present := true
	for _, i := range f.idx {
		if !f.bv.IsSet(i) {
			present = false
			f.bv.Set(i)
		}
	}

	f.hdr.count++
	return present, nil
}

// Contains reports whether 'key' is possibly in the set. A false
// return is definite; a true return is wrong with probability at most
// (roughly) the configured error rate.
func (f *Filter) Contains(key []byte) (bool, error) {
	if f.closed {
		return false, fmt.Errorf("bloom: contains: %w", ErrClosed)
	}

	f.indexes(key, f.idx)
	for _, i := range f.idx {
		if !f.bv.IsSet(i) {
			return false, nil
		}
	}
	return true, nil
}

// Update adds every element of 'keys'. On mid-stream failure the
// elements already added remain in the filter.
func (f *Filter) Update(keys [][]byte) error {
	if err := f.writable("update"); err != nil {
		return err
	}

	for _, key := range keys {
		if _, err := f.Add(key); err != nil {
			return err
		}
	}
	return nil
}

// Clear removes every element: the bit payload is zeroed and the
// element count reset. The filter geometry is untouched.
func (f *Filter) Clear() error {
	if err := f.writable("clear"); err != nil {
		return err
	}

	f.bv.Reset()
	f.hdr.count = 0
	return nil
}

// Union folds 'o' into f in place; afterwards f answers true for any
// element either filter held. Both filters must have identical
// geometry and seeds. The element count is no longer meaningful after
// a set operation and resets to zero.
func (f *Filter) Union(o *Filter) error {
	return f.setOp("union", o, opOr)
}

// Intersect reduces f in place to the elements common to f and 'o'
// (plus the usual false-positive surplus). Same compatibility rules
// and count behavior as Union.
func (f *Filter) Intersect(o *Filter) error {
	return f.setOp("intersect", o, opAnd)
}

func (f *Filter) setOp(which string, o *Filter, op int) error {
	if err := f.writable(which); err != nil {
		return err
	}
	if o.closed {
		return fmt.Errorf("bloom: %s: other filter: %w", which, ErrClosed)
	}
	if err := f.compatible(o); err != nil {
		return fmt.Errorf("bloom: %s: %w", which, err)
	}

	if err := f.bv.merge(o.bv, op); err != nil {
		return err
	}

	f.hdr.count = 0
	return nil
}

// compatible verifies that set operations between f and 'o' are
// meaningful: same bit count, same hash count, same seeds.
func (f *Filter) compatible(o *Filter) error {
	if f.hdr.nbits != o.hdr.nbits {
		return fmt.Errorf("bit counts differ; %d vs. %d: %w",
			f.hdr.nbits, o.hdr.nbits, ErrShape)
	}
	if len(f.hdr.seeds) != len(o.hdr.seeds) {
		return fmt.Errorf("hash counts differ; %d vs. %d: %w",
			len(f.hdr.seeds), len(o.hdr.seeds), ErrShape)
	}
	for i, s := range f.hdr.seeds {
		if s != o.hdr.seeds[i] {
			return fmt.Errorf("seed %d differs; %d vs. %d: %w",
				i, s, o.hdr.seeds[i], ErrShape)
		}
	}
	return nil
}

// Copy writes an identical filter image to 'fn' -- same parameters,
// same seeds, same contents -- and returns a writable filter over it.
func (f *Filter) Copy(fn string) (*Filter, error) {
	nf, err := f.copyImage(fn)
	if err != nil {
		return nil, err
	}

	copy(nf.bv.bytes(), f.bv.bytes())
	return nf, nil
}

// CopyTemplate is Copy with the bit payload zeroed: a compatible empty
// filter, ready for later set operations against f.
func (f *Filter) CopyTemplate(fn string) (*Filter, error) {
	nf, err := f.copyImage(fn)
	if err != nil {
		return nil, err
	}

	nf.hdr.count = 0
	nf.bv.writeHeader(nf.hdr)
	return nf, nil
}

func (f *Filter) copyImage(fn string) (*Filter, error) {
	if f.closed {
		return nil, fmt.Errorf("bloom: copy: %w", ErrClosed)
	}
	if fn == "" {
		return nil, fmt.Errorf("bloom: copy needs a file name: %w", ErrArgument)
	}

	nf, err := newFilter(fn, f.hdr.clone())
	if err != nil {
		return nil, err
	}

	nf.hasher = f.hasher
	return nf, nil
}

// Sync writes the current header and asks the OS to flush dirty pages
// of the mapping to the backing file.
func (f *Filter) Sync() error {
	if err := f.writable("sync"); err != nil {
		return err
	}

	f.bv.writeHeader(f.hdr)
	return f.bv.sync()
}

// Close flushes a writable filter, unmaps the image and closes the
// file. Every operation on a closed filter fails with ErrClosed.
func (f *Filter) Close() error {
	if f.closed {
		return fmt.Errorf("bloom: close: %w", ErrClosed)
	}

	if !f.ro {
		f.bv.writeHeader(f.hdr)
	}

	err := f.bv.close()
	f.closed = true
	return err
}

// SetHasher switches the hash scheme for this handle. All filters that
// share images -- via the file, base64, or set operations -- must use
// the same Hasher; bits set under one scheme are meaningless under
// another. Swap hashers only on empty or freshly opened filters.
func (f *Filter) SetHasher(h Hasher) error {
	if f.closed {
		return fmt.Errorf("bloom: set-hasher: %w", ErrClosed)
	}

	f.hasher = h
	return nil
}

// Capacity returns the element count the filter was sized for.
func (f *Filter) Capacity() uint64 {
	return f.hdr.capacity
}

// ErrorRate returns the target false-positive probability at capacity.
func (f *Filter) ErrorRate() float64 {
	return f.hdr.errRate
}

// NumHashes returns k, the number of hash functions.
func (f *Filter) NumHashes() uint32 {
	return uint32(len(f.hdr.seeds))
}

// NumBits returns m, the total number of bits in the filter.
func (f *Filter) NumBits() uint64 {
	return f.hdr.nbits
}

// HashSeeds returns a copy of the filter's hash seeds.
func (f *Filter) HashSeeds() []uint32 {
	seeds := make([]uint32, len(f.hdr.seeds))
	copy(seeds, f.hdr.seeds)
	return seeds
}

// Len returns the approximate number of elements added. The counter
// tracks Add calls; it resets to zero on Clear and after set
// operations.
func (f *Filter) Len() uint64 {
	return f.hdr.count
}

// ReadOnly reports whether the filter was opened read-only.
func (f *Filter) ReadOnly() bool {
	return f.ro
}

// Name returns the path of the backing file, or ErrNoName for a
// filter in anonymous memory.
func (f *Filter) Name() (string, error) {
	if f.fn == "" {
		return "", ErrNoName
	}
	return f.fn, nil
}

func (f *Filter) String() string {
	return fmt.Sprintf("<BloomFilter capacity: %d, error: %0.3f, num_hashes: %d>",
		f.hdr.capacity, f.hdr.errRate, len(f.hdr.seeds))
}

// writable is the guard in front of every mutating operation.
func (f *Filter) writable(which string) error {
	if f.closed {
		return fmt.Errorf("bloom: %s: %w", which, ErrClosed)
	}
	if f.ro {
		return fmt.Errorf("bloom: %s: %w", which, ErrPermission)
	}
	return nil
}

// clone duplicates a header, seeds included.
func (h *header) clone() *header {
	nh := *h
	nh.seeds = make([]uint32, len(h.seeds))
	copy(nh.seeds, h.seeds)
	return &nh
}
