// errors.go -- failure kinds for the bloom package
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
)

var (
	// ErrArgument is returned for invalid construction parameters:
	// capacity < 1, error rate outside (0, 1), a seed list whose length
	// doesn't match the derived k, or duplicate seeds.
	ErrArgument = errors.New("invalid argument")

	// ErrNotFound is returned when the backing file is missing on open.
	ErrNotFound = errors.New("no such filter file")

	// ErrCorrupt is returned when the backing file fails validation:
	// bad magic, unknown version, or a payload shorter than the header
	// claims.
	ErrCorrupt = errors.New("corrupt filter file")

	// ErrShape is returned for set operations between filters whose
	// size, hash count or seeds differ.
	ErrShape = errors.New("filters are incompatible")

	// ErrPermission is returned when mutating a read-only filter, or
	// when the file mode requested in FromBase64 cannot be applied.
	ErrPermission = errors.New("filter is read-only")

	// ErrClosed is returned for any operation on a closed filter.
	ErrClosed = errors.New("filter is closed")

	// ErrIO is returned when the underlying map/flush/write fails.
	ErrIO = errors.New("i/o error")

	// ErrNoName is returned by Name() on a filter with no backing file.
	ErrNoName = errors.New("filter has no backing file")
)
