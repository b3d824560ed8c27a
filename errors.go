package bigfile

import "errors"

// Package-specific error variables that can be used with errors.Is() for error handling.
var (
	// ErrNotFound is returned when a block, a BigFile root, a subfile directory
	// or an attribute key does not exist.
	ErrNotFound = errors.New("bigfile: not found")

	// ErrExists is returned by create when the target path already exists with a
	// conflicting header.
	ErrExists = errors.New("bigfile: already exists")

	// ErrClosed is returned for any operation on a closed File handle.
	ErrClosed = errors.New("bigfile: file handle closed")

	// ErrBlockClosed is returned for any operation on a closed Block handle. It is
	// a distinct sentinel from ErrClosed, not wrapped by or related to it through
	// errors.Is, so callers and tests can tell which handle kind they tripped
	// over.
	ErrBlockClosed = errors.New("bigfile: block handle closed")

	// ErrDtype covers bad dtype strings, value-incompatible buffers, and
	// non-scalar attribute shape mismatches.
	ErrDtype = errors.New("bigfile: dtype error")

	// ErrBounds is returned for a read or write past size or at a negative offset.
	ErrBounds = errors.New("bigfile: out of bounds")

	// ErrFormat is returned for a malformed header or attribute file.
	ErrFormat = errors.New("bigfile: format error")

	// ErrCollective is returned when a communicator reports a peer failure during
	// a collective operation.
	ErrCollective = errors.New("bigfile: collective operation failed")

	// ErrIO wraps an unexpected filesystem error that isn't better described by
	// one of the kinds above.
	ErrIO = errors.New("bigfile: I/O error")
)
