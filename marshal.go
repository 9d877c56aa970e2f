// marshal.go - file image layout and base64 snapshots
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
	"encoding/base64"
	"encoding/binary"
	"fmt"
	"math"
	"os"
)

// A filter file is a single image that is mapped into memory as-is.
// All multibyte fields are little-endian; big-endian hosts convert on
// access (endian_be.go).
//
//   - 48 byte fixed header:
//      * magic         [4]byte  "BLOM"
//      * version       uint32   currently 1
//      * total_bits    uint64   m
//      * capacity      uint64   n
//      * element_count uint64   running count of additions
//      * error_rate    uint64   IEEE-754 bits of p
//      * num_hashes    uint32   k
//      * reserved      uint32   zero
//   - k x uint32 hash seeds
//   - zero padding up to the next 8-byte boundary
//   - bit payload: ceil(m/8) bytes padded to a whole number of 64-bit
//     words; bit i lives in byte i/8, bit i%8, LSB first. Padding bits
//     past m are always zero.

const (
	_Magic = "BLOM"

	_Version uint32 = 1

	// fixed header bytes before the seed table
	_FixedHeaderSize = 48

	// hard cap on the number of hash functions
	_MaxHashes = 128
)

// header is the decoded form of the file header; it is the source of
// truth when a filter is opened.
type header struct {
	nbits    uint64
	capacity uint64
	count    uint64
	errRate  float64
	seeds    []uint32
}

// payloadOffset returns the file offset of the bit payload: the fixed
// header plus the seed table, rounded up to an 8-byte boundary.
func (h *header) payloadOffset() uint64 {
	off := uint64(_FixedHeaderSize) + 4*uint64(len(h.seeds))
	return (off + 7) &^ uint64(7)
}

// payloadSize returns the byte size of the bit payload, padded to a
// whole number of 64-bit words.
func (h *header) payloadSize() uint64 {
	return ((h.nbits + 63) &^ uint64(63)) / 8
}

// imageSize returns the total file size of the filter image.
func (h *header) imageSize() uint64 {
	return h.payloadOffset() + h.payloadSize()
}

// marshal writes the header into 'b'; b must be at least
// payloadOffset() bytes long. The gap between the seed table and the
// payload is zeroed.
func (h *header) marshal(b []byte) {
	le := binary.LittleEndian

	copy(b[:4], _Magic)
	le.PutUint32(b[4:8], _Version)
	le.PutUint64(b[8:16], h.nbits)
	le.PutUint64(b[16:24], h.capacity)
	le.PutUint64(b[24:32], h.count)
	le.PutUint64(b[32:40], math.Float64bits(h.errRate))
	le.PutUint32(b[40:44], uint32(len(h.seeds)))
	le.PutUint32(b[44:48], 0)

	i := _FixedHeaderSize
	for _, s := range h.seeds {
		le.PutUint32(b[i:i+4], s)
		i += 4
	}

	for n := int(h.payloadOffset()); i < n; i++ {
		b[i] = 0
	}
}

// parseHeader validates and decodes the header at the start of image
// 'b'. 'sz' is the total image size available (mapped or decoded).
func parseHeader(b []byte, sz uint64) (*header, error) {
	if sz < _FixedHeaderSize || len(b) < _FixedHeaderSize {
		return nil, fmt.Errorf("bloom: truncated header (%d bytes): %w", sz, ErrCorrupt)
	}

	if string(b[:4]) != _Magic {
		return nil, fmt.Errorf("bloom: bad file magic %#x: %w", b[:4], ErrCorrupt)
	}

	le := binary.LittleEndian
	if v := le.Uint32(b[4:8]); v != _Version {
		return nil, fmt.Errorf("bloom: no support for version %d: %w", v, ErrCorrupt)
	}

	h := &header{
		nbits:    le.Uint64(b[8:16]),
		capacity: le.Uint64(b[16:24]),
		count:    le.Uint64(b[24:32]),
		errRate:  math.Float64frombits(le.Uint64(b[32:40])),
	}

	k := le.Uint32(b[40:44])
	if k < 1 || k > _MaxHashes {
		return nil, fmt.Errorf("bloom: implausible hash count %d: %w", k, ErrCorrupt)
	}

	if uint64(len(b)) < _FixedHeaderSize+4*uint64(k) {
		return nil, fmt.Errorf("bloom: truncated seed table: %w", ErrCorrupt)
	}

	// The seed table is a mapped little-endian uint32 array; convert
	// each word to native order as we copy it out.
	mapped := bsToUint32Slice(b[_FixedHeaderSize : _FixedHeaderSize+4*uint64(k)])
	h.seeds = make([]uint32, k)
	for i, s := range mapped {
		h.seeds[i] = toLittleEndianUint32(s)
	}

	if sz < h.imageSize() {
		return nil, fmt.Errorf("bloom: payload too short; exp %d bytes, have %d: %w",
			h.imageSize(), sz, ErrCorrupt)
	}

	return h, nil
}

// ToBase64 returns the standard base64 encoding of the complete filter
// image (header plus bit payload). The filter is not modified; the
// snapshot reflects the in-memory state including unsynced bits.
func (f *Filter) ToBase64() (string, error) {
	if f.closed {
		return "", fmt.Errorf("bloom: to-base64: %w", ErrClosed)
	}

	img := make([]byte, f.hdr.imageSize())
	f.hdr.marshal(img)
	copy(img[f.hdr.payloadOffset():], f.bv.bytes())

	return base64.StdEncoding.EncodeToString(img), nil
}

// FromBase64 decodes a filter image produced by ToBase64, writes it to
// file 'fn' with mode 'perm', and opens it read-write. The mode is
// applied with an explicit chmod so the process umask does not mask it
// out.
func FromBase64(fn string, text string, perm os.FileMode) (*Filter, error) {
	img, err := base64.StdEncoding.DecodeString(text)
	if err != nil {
		return nil, fmt.Errorf("bloom: %s: undecodable image: %w", fn, ErrCorrupt)
	}

	if _, err = parseHeader(img, uint64(len(img))); err != nil {
		return nil, err
	}

	// Write to a temp sibling and rename into place, then fix up the
	// mode; O_CREATE honors the umask but chmod does not.
	tmp := fmt.Sprintf("%s.tmp.%d", fn, rand32())
	fd, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return nil, fmt.Errorf("bloom: %s: %w", fn, err)
	}

	if _, err = writeAll(fd, img); err != nil {
		fd.Close()
		os.Remove(tmp)
		return nil, fmt.Errorf("bloom: %s: %w", fn, err)
	}

	if err = fd.Sync(); err != nil {
		fd.Close()
		os.Remove(tmp)
		return nil, fmt.Errorf("bloom: %s: sync: %w (%s)", fn, ErrIO, err)
	}
	fd.Close()

	if err = os.Rename(tmp, fn); err != nil {
		os.Remove(tmp)
		return nil, fmt.Errorf("bloom: %s: %w", fn, err)
	}

	if err = os.Chmod(fn, perm); err != nil {
		os.Remove(fn)
		return nil, fmt.Errorf("bloom: %s: chmod %#o: %w (%s)", fn, perm, ErrPermission, err)
	}

	return Open(fn)
}

func errShortWrite(n int) error {
	return fmt.Errorf("bloom: incomplete write; saw %d bytes: %w", n, ErrIO)
}

func writeAll(fd *os.File, buf []byte) (int, error) {
	n, err := fd.Write(buf)
	if err != nil {
		return 0, err
	}
	if n != len(buf) {
		return n, errShortWrite(n)
	}
	return n, nil
}
