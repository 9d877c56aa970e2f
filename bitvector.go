// bitvector.go -- memory-mapped bit vector backing a filter
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
	"os"

	mmap "github.com/edsrzf/mmap-go"
)

// bitwise merge operators
const (
	opOr = iota
	opAnd
	opXor
)

// bitVector is a fixed-size array of bits stored in a mapped file
// image (or an anonymous region) and addressed LSB-first within each
// byte. The image starts with the filter header; the payload follows
// at an 8-byte boundary and is padded to a whole number of 64-bit
// words. Bits past the advertised size are kept zero so word-at-a-time
// merges never manufacture stray bits.
type bitVector struct {
	nbits uint64

	// whole mapped image; words is the payload viewed as uint64's
	mm    mmap.MMap
	words []uint64

	off uint64 // payload offset within the image

	fd *os.File // nil for anonymous vectors
	fn string
	ro bool
}

// newBitVector creates a writable bit vector sized and described by
// 'hdr'. If 'fn' is empty the vector lives in an anonymous mapping;
// otherwise the file is created (or truncated) and mapped read-write.
func newBitVector(fn string, hdr *header) (*bitVector, error) {
	sz := hdr.imageSize()

	bv := &bitVector{
		nbits: hdr.nbits,
		off:   hdr.payloadOffset(),
		fn:    fn,
	}

	if fn == "" {
		mm, err := mmap.MapRegion(nil, int(sz), mmap.RDWR, mmap.ANON, 0)
		if err != nil {
			return nil, fmt.Errorf("bloom: can't map %d anonymous bytes: %w (%s)", sz, ErrIO, err)
		}
		bv.mm = mm
	} else {
		fd, err := os.OpenFile(fn, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0755)
		if err != nil {
			return nil, fmt.Errorf("bloom: %s: %w", fn, err)
		}

		if err = fd.Truncate(int64(sz)); err != nil {
			fd.Close()
			os.Remove(fn)
			return nil, fmt.Errorf("bloom: %s: truncate to %d: %w (%s)", fn, sz, ErrIO, err)
		}

		mm, err := mmap.Map(fd, mmap.RDWR, 0)
		if err != nil {
			fd.Close()
			os.Remove(fn)
			return nil, fmt.Errorf("bloom: %s: can't mmap %d bytes: %w (%s)", fn, sz, ErrIO, err)
		}

		bv.fd = fd
		bv.mm = mm
	}

	// A fresh file or anonymous region is already zero-filled; only
	// the header needs to be written.
	hdr.marshal(bv.mm)
	bv.words = bsToUint64Slice(bv.mm[bv.off:sz])
	return bv, nil
}

// openBitVector maps an existing filter file and reconstructs its
// header. With 'ro' set the mapping rejects writes.
func openBitVector(fn string, ro bool) (*bitVector, *header, error) {
	flag, prot := os.O_RDWR, mmap.RDWR
	if ro {
		flag, prot = os.O_RDONLY, mmap.RDONLY
	}

	fd, err := os.OpenFile(fn, flag, 0)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil, fmt.Errorf("bloom: %s: %w", fn, ErrNotFound)
		}
		return nil, nil, fmt.Errorf("bloom: %s: %w", fn, err)
	}

	st, err := fd.Stat()
	if err != nil {
		fd.Close()
		return nil, nil, fmt.Errorf("bloom: %s: can't stat: %w (%s)", fn, ErrIO, err)
	}

	mm, err := mmap.Map(fd, prot, 0)
	if err != nil {
		fd.Close()
		return nil, nil, fmt.Errorf("bloom: %s: can't mmap %d bytes: %w (%s)", fn, st.Size(), ErrIO, err)
	}

	hdr, err := parseHeader(mm, uint64(st.Size()))
	if err != nil {
		mm.Unmap()
		fd.Close()
		return nil, nil, err
	}

	bv := &bitVector{
		nbits: hdr.nbits,
		mm:    mm,
		off:   hdr.payloadOffset(),
		fd:    fd,
		fn:    fn,
		ro:    ro,
	}
	bv.words = bsToUint64Slice(bv.mm[bv.off:hdr.imageSize()])

	// normalize padding bits from untrusted images
	if !ro {
		bv.maskTail()
	}
	return bv, hdr, nil
}

// Size returns the number of addressable bits.
func (b *bitVector) Size() uint64 {
	return b.nbits
}

// Words returns the number of 64-bit payload words.
func (b *bitVector) Words() uint64 {
	return uint64(len(b.words))
}

// Set sets bit 'i'
func (b *bitVector) Set(i uint64) {
	b.mm[b.off+i/8] |= byte(1) << (i % 8)
}

// Clear clears bit 'i'
func (b *bitVector) Clear(i uint64) {
	b.mm[b.off+i/8] &^= byte(1) << (i % 8)
}

// IsSet returns true if bit 'i' is set, false otherwise
func (b *bitVector) IsSet(i uint64) bool {
	return 1 == (1 & (b.mm[b.off+i/8] >> (i % 8)))
}

// Reset clears every payload bit; the header is untouched.
func (b *bitVector) Reset() {
	v := b.words
	for i := range v {
		v[i] = 0
	}
}

// bytes returns the payload as a byte slice (including word padding).
func (b *bitVector) bytes() []byte {
	return b.mm[b.off : b.off+uint64(len(b.words))*8]
}

// merge combines 'x' into 'b' word-at-a-time with the given operator.
// Both vectors must be the same size and 'b' must be writable. The
// operators act bytewise, so mapped word order never matters.
func (b *bitVector) merge(x *bitVector, op int) error {
	if b.nbits != x.nbits {
		return fmt.Errorf("bloom: bit size mismatch; %d vs. %d: %w", b.nbits, x.nbits, ErrShape)
	}
	if b.ro {
		return fmt.Errorf("bloom: merge: %w", ErrPermission)
	}

	v := b.words
	switch op {
	case opOr:
		for i, z := range x.words {
			v[i] |= z
		}
	case opAnd:
		for i, z := range x.words {
			v[i] &= z
		}
	case opXor:
		for i, z := range x.words {
			v[i] ^= z
		}
	}

	b.maskTail()
	return nil
}

// maskTail zeroes the padding bits in the last payload word.
func (b *bitVector) maskTail() {
	if r := b.nbits % 64; r != 0 && len(b.words) > 0 {
		// the mask is endian-neutral: low bits live in low bytes
		// on disk, and the word view preserves bytewise AND
		b.words[len(b.words)-1] &= toLittleEndianUint64((uint64(1) << r) - 1)
	}
}

// writeHeader re-marshals 'hdr' into the mapped header region.
func (b *bitVector) writeHeader(hdr *header) {
	hdr.marshal(b.mm[:b.off])
}

// sync asks the OS to flush dirty pages of the mapping to the file.
func (b *bitVector) sync() error {
	if err := b.mm.Flush(); err != nil {
		return fmt.Errorf("bloom: %s: flush: %w (%s)", b.fn, ErrIO, err)
	}
	return nil
}

// close releases the mapping and the file handle. Writable vectors are
// flushed first.
func (b *bitVector) close() error {
	var err error
	if !b.ro {
		err = b.sync()
	}

	if e := b.mm.Unmap(); e != nil && err == nil {
		err = fmt.Errorf("bloom: %s: unmap: %w (%s)", b.fn, ErrIO, e)
	}
	b.mm = nil
	b.words = nil

	if b.fd != nil {
		if e := b.fd.Close(); e != nil && err == nil {
			err = fmt.Errorf("bloom: %s: close: %w (%s)", b.fn, ErrIO, e)
		}
		b.fd = nil
	}
	return err
}
