package bigfile

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"sync"

	"golang.org/x/sys/unix"
)

type blockState int

const (
	stateOpen blockState = iota
	stateClosed
)

// Block is an open handle on one block (column): header, attributes, and a
// set of striped physical files. A Block is not safe for concurrent use
// from multiple goroutines without external synchronization, matching the
// single-threaded-per-process model one block handle is meant for; the
// internal mutex here only serializes the handle's own bookkeeping, it does
// not make concurrent calls meaningful.
type Block struct {
	mu     sync.Mutex
	dir    string
	name   string
	header *blockHeader
	plan   stripePlan
	attrs  *AttrSet
	files  []*os.File
	buf    *writeBuffer
	state  blockState
}

func openBlockDir(dir, name string) (*Block, error) {
	h, err := readHeader(filepath.Join(dir, "header"))
	if err != nil {
		return nil, err
	}
	attrs, err := loadAttrSet(filepath.Join(dir, "attr-v2"))
	if err != nil {
		return nil, err
	}
	log.Printf("bigfile: opened block %q (%s, %d records, %d files)", name, h.Dtype, h.size(), len(h.Counts))
	return &Block{
		dir:    dir,
		name:   name,
		header: h,
		plan:   newStripePlan(h.Counts),
		attrs:  attrs,
		files:  make([]*os.File, len(h.Counts)),
		buf:    newWriteBuffer(currentBufferSize()),
		state:  stateOpen,
	}, nil
}

// Name returns the block's path relative to its File root.
func (b *Block) Name() string { return b.name }

// Dtype returns the block's on-disk element dtype.
func (b *Block) Dtype() Dtype { return b.header.Dtype }

// Size returns the block's total logical record count.
func (b *Block) Size() int64 { return b.plan.size() }

// Nfile returns the number of physical stripe files.
func (b *Block) Nfile() int { return len(b.header.Counts) }

// Attrs returns the block's attribute table.
func (b *Block) Attrs() *AttrSet { return b.attrs }

func (b *Block) ensureOpenFileLocked(i int) (*os.File, error) {
	if f := b.files[i]; f != nil {
		return f, nil
	}
	p := filepath.Join(b.dir, stripeFileName(i))
	f, err := os.OpenFile(p, os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("%w: opening %s: %v", ErrIO, p, err)
	}
	b.files[i] = f
	return f, nil
}

func stripeFileName(i int) string {
	return fmt.Sprintf("%06d", i)
}

func pwriteFull(f *os.File, data []byte, offset int64) error {
	fd := int(f.Fd())
	for len(data) > 0 {
		n, err := unix.Pwrite(fd, data, offset)
		if err != nil {
			if err == unix.EINTR {
				continue
			}
			return err
		}
		if n == 0 {
			return io.ErrShortWrite
		}
		data = data[n:]
		offset += int64(n)
	}
	return nil
}

func preadFull(f *os.File, data []byte, offset int64) error {
	fd := int(f.Fd())
	for len(data) > 0 {
		n, err := unix.Pread(fd, data, offset)
		if err != nil {
			if err == unix.EINTR {
				continue
			}
			return err
		}
		if n == 0 {
			return io.ErrUnexpectedEOF
		}
		data = data[n:]
		offset += int64(n)
	}
	return nil
}

// addChecksumLocked accumulates data's bytes (as unsigned 8-bit values) into
// the running per-file checksum, mod 2^64. This runs on every
// logical write regardless of whether the bytes are later buffered or
// flushed immediately.
func (b *Block) addChecksumLocked(file int, data []byte) {
	var s uint64
	for _, c := range data {
		s += uint64(c)
	}
	b.header.Checksums[file] += s
}

// writeChunkLocked writes data (already byte-swapped into the block's
// on-disk endianness) at the given in-file byte offset of physical file
// file, through the write-combining buffer.
func (b *Block) writeChunkLocked(file int, byteOffset int64, data []byte) error {
	b.addChecksumLocked(file, data)

	if len(data) > b.buf.cap {
		if err := b.flushLocked(); err != nil {
			return err
		}
		return b.rawWriteLocked(file, byteOffset, data)
	}

	if !b.buf.contiguous(file, byteOffset, len(data)) {
		if err := b.flushLocked(); err != nil {
			return err
		}
		b.buf.startRegion(file, byteOffset)
	}
	b.buf.append(data)
	return nil
}

func (b *Block) rawWriteLocked(file int, offset int64, data []byte) error {
	f, err := b.ensureOpenFileLocked(file)
	if err != nil {
		return err
	}
	if err := pwriteFull(f, data, offset); err != nil {
		return fmt.Errorf("%w: writing %s: %v", ErrIO, f.Name(), err)
	}
	return nil
}

func (b *Block) flushLocked() error {
	if !b.buf.dirty {
		return nil
	}
	if len(b.buf.buf) > 0 {
		if err := b.rawWriteLocked(b.buf.file, b.buf.offset, b.buf.buf); err != nil {
			return err
		}
	}
	b.buf.buf = b.buf.buf[:0]
	b.buf.dirty = false
	return nil
}

// Flush writes the dirty write buffer to its target physical file. It does
// not update the on-disk header; Close does.
func (b *Block) Flush() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == stateClosed {
		return fmt.Errorf("%w", ErrBlockClosed)
	}
	return b.flushLocked()
}

// maybeSwap byte-swaps data in place from srcEndian into the block's
// declared on-disk endian, when the two differ and the dtype's width
// requires it.
func (b *Block) maybeSwap(data []byte, srcEndian Endian) {
	d := b.header.Dtype
	if d.Width <= 1 || srcEndian == IrrelevantEndian || d.Endian == IrrelevantEndian {
		return
	}
	srcOrder := (Dtype{Endian: srcEndian}).resolvedOrder()
	if srcOrder == d.resolvedOrder() {
		return
	}
	d.SwapBytes(data)
}

// Write performs a positional write of src at logical record offset.
// Preconditions: offset+src.Len() <= Size(), and src's dtype is
// value-compatible with the block's dtype.
func (b *Block) Write(offset int64, src TypedBuffer) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == stateClosed {
		return fmt.Errorf("%w", ErrBlockClosed)
	}

	srcDtype := src.Dtype()
	if !b.header.Dtype.ValueCompatible(srcDtype) {
		return fmt.Errorf("%w: buffer dtype %s incompatible with block dtype %s", ErrDtype, srcDtype, b.header.Dtype)
	}

	n := int64(src.Len())
	if offset < 0 || n < 0 || offset+n > b.plan.size() {
		return fmt.Errorf("%w: write [%d,%d) exceeds size %d", ErrBounds, offset, offset+n, b.plan.size())
	}
	if n == 0 {
		return nil
	}

	spans, err := b.plan.split(offset, n)
	if err != nil {
		return err
	}

	recSize := b.header.Dtype.RecordSize()
	data := append([]byte(nil), src.Bytes()...)
	if len(data) != int(n)*recSize {
		return fmt.Errorf("%w: buffer holds %d bytes, want %d for %d records", ErrDtype, len(data), int(n)*recSize, n)
	}
	b.maybeSwap(data, srcDtype.Endian)

	pos := int64(0)
	for _, sp := range spans {
		byteLen := sp.length * int64(recSize)
		chunk := data[pos : pos+byteLen]
		if err := b.writeChunkLocked(sp.file, sp.offset*int64(recSize), chunk); err != nil {
			return err
		}
		pos += byteLen
	}
	return nil
}

// Read performs a positional read of n records at logical offset, returning
// exactly n records in the block's on-disk dtype and endianness. A dirty
// write buffer is flushed first so reads observe prior writes on this
// handle: a write followed by a read on the same handle returns the new
// bytes.
func (b *Block) Read(offset, n int64) (RawBuffer, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == stateClosed {
		return RawBuffer{}, fmt.Errorf("%w", ErrBlockClosed)
	}
	if offset < 0 || n < 0 || offset+n > b.plan.size() {
		return RawBuffer{}, fmt.Errorf("%w: read [%d,%d) exceeds size %d", ErrBounds, offset, offset+n, b.plan.size())
	}
	if err := b.flushLocked(); err != nil {
		return RawBuffer{}, err
	}
	if n == 0 {
		return RawBuffer{D: b.header.Dtype}, nil
	}

	spans, err := b.plan.split(offset, n)
	if err != nil {
		return RawBuffer{}, err
	}

	recSize := b.header.Dtype.RecordSize()
	out := make([]byte, n*int64(recSize))
	pos := int64(0)
	for _, sp := range spans {
		byteLen := sp.length * int64(recSize)
		f, err := b.ensureOpenFileLocked(sp.file)
		if err != nil {
			return RawBuffer{}, err
		}
		if err := preadFull(f, out[pos:pos+byteLen], sp.offset*int64(recSize)); err != nil {
			return RawBuffer{}, fmt.Errorf("%w: reading %s: %v", ErrIO, f.Name(), err)
		}
		pos += byteLen
	}
	return RawBuffer{D: b.header.Dtype, B: out}, nil
}

func (b *Block) closeFilesLocked() {
	for i, f := range b.files {
		if f != nil {
			f.Close()
			b.files[i] = nil
		}
	}
}

// Close flushes the write buffer, writes the updated header atomically, and
// closes all physical-file descriptors. If the flush fails the handle still
// transitions to Closed, leaking any unflushed bytes — avoiding that is the
// caller's responsibility.
func (b *Block) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == stateClosed {
		return fmt.Errorf("%w", ErrBlockClosed)
	}
	flushErr := b.flushLocked()
	hdrErr := writeHeaderAtomic(filepath.Join(b.dir, "header"), b.header)
	b.closeFilesLocked()
	b.state = stateClosed
	if flushErr != nil {
		return flushErr
	}
	return hdrErr
}

// closeFilesOnly flushes and closes file descriptors without rewriting the
// header; used by non-root ranks in a collective close (comm.go), where only
// rank 0 writes the header.
func (b *Block) closeFilesOnly() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == stateClosed {
		return fmt.Errorf("%w", ErrBlockClosed)
	}
	err := b.flushLocked()
	b.closeFilesLocked()
	b.state = stateClosed
	return err
}

// checksumsLocked returns a copy of the block's current per-file checksums.
func (b *Block) checksumsLocked() []uint64 {
	out := make([]uint64, len(b.header.Checksums))
	copy(out, b.header.Checksums)
	return out
}

// setChecksumsLocked installs combined per-file checksums ahead of a
// collective close's header rewrite.
func (b *Block) setChecksumsLocked(sums []uint64) {
	copy(b.header.Checksums, sums)
}
