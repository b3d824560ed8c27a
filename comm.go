package bigfile

import (
	"fmt"
	"log"
	"time"
)

// Communicator abstracts a group of cooperating processes, modeled after an
// MPI-style collective group. Rank 0 is always the metadata writer: it
// alone creates directories, writes headers and attribute files. All other
// ranks only read, after a Barrier.
type Communicator interface {
	// Rank returns this process's rank in [0, Size).
	Rank() int

	// Size returns the number of cooperating ranks.
	Size() int

	// Barrier blocks until every rank has called Barrier.
	Barrier() error

	// Broadcast sends root's value to every rank and returns it. Every rank
	// must call Broadcast with the same root; non-root callers' value
	// arguments are ignored.
	Broadcast(value []byte, root int) ([]byte, error)

	// AllreduceSum returns the sum of every rank's x, delivered identically
	// to all ranks.
	AllreduceSum(x int64) (int64, error)

	// AllgatherInt returns every rank's x, ordered by rank.
	AllgatherInt(x int64) ([]int64, error)
}

// SerialCommunicator is the trivial single-rank Communicator: every
// collective operation is a local no-op, for callers that aren't running
// under any parallel runtime.
type SerialCommunicator struct{}

func (SerialCommunicator) Rank() int { return 0 }
func (SerialCommunicator) Size() int { return 1 }
func (SerialCommunicator) Barrier() error { return nil }

func (SerialCommunicator) Broadcast(value []byte, root int) ([]byte, error) {
	return value, nil
}

func (SerialCommunicator) AllreduceSum(x int64) (int64, error) { return x, nil }

func (SerialCommunicator) AllgatherInt(x int64) ([]int64, error) { return []int64{x}, nil }

const (
	openRetryCount = 20
	openRetryDelay = 10 * time.Millisecond
)

// pollOpen retries f.Open(name) a bounded number of times. Non-root ranks
// call this right after a barrier that follows rank 0's create, guarding
// against filesystems where a just-renamed header is not yet visible to
// other processes even though the barrier has released.
func pollOpen(f *File, name string) (*Block, error) {
	var lastErr error
	for i := 0; i < openRetryCount; i++ {
		b, err := f.Open(name)
		if err == nil {
			return b, nil
		}
		lastErr = err
		time.Sleep(openRetryDelay)
	}
	return nil, lastErr
}

// CollectiveFile coordinates a File across a Communicator's ranks: rank 0
// performs every metadata write (create, header rewrite), all ranks barrier
// around it, then each opens its own read/write handle.
type CollectiveFile struct {
	File *File
	Comm Communicator
}

// CreateFileCollective creates (on rank 0) or opens (on other ranks) the
// BigFile root at path, then refreshes every rank's view of the block list.
func CreateFileCollective(path string, comm Communicator) (*CollectiveFile, error) {
	var f *File
	var err error
	if comm.Rank() == 0 {
		f, err = CreateFile(path)
	}
	if bErr := comm.Barrier(); bErr != nil {
		return nil, fmt.Errorf("%w: %v", ErrCollective, bErr)
	}
	if comm.Rank() != 0 {
		f, err = OpenFile(path)
	}
	if err != nil {
		return nil, err
	}
	cf := &CollectiveFile{File: f, Comm: comm}
	if _, err := cf.Refresh(); err != nil {
		return nil, err
	}
	return cf, nil
}

// Refresh performs the collective list_blocks: rank 0 walks the directory
// tree and broadcasts the resulting names to every other rank.
func (cf *CollectiveFile) Refresh() ([]string, error) {
	var names []string
	var err error
	if cf.Comm.Rank() == 0 {
		names, err = cf.File.ListBlocks()
	}
	if err != nil {
		return nil, err
	}
	payload, err := cf.Comm.Broadcast([]byte(joinNames(names)), 0)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCollective, err)
	}
	return splitNames(string(payload)), nil
}

func joinNames(names []string) string {
	var b []byte
	for i, n := range names {
		if i > 0 {
			b = append(b, '\n')
		}
		b = append(b, n...)
	}
	return string(b)
}

func splitNames(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	start := 0
	for i := 0; i < len(s); i++ {
		if s[i] == '\n' {
			out = append(out, s[start:i])
			start = i + 1
		}
	}
	out = append(out, s[start:])
	return out
}

// CreateBlock creates a block collectively: rank 0 creates and closes it
// (so the header is committed to disk), a barrier follows, then every rank
// independently opens its own handle.
func (cf *CollectiveFile) CreateBlock(name string, d Dtype, size int64, nfile int, opts ...CreateOption) (*CollectiveBlock, error) {
	if cf.Comm.Rank() == 0 {
		b, err := cf.File.Create(name, d, size, nfile, opts...)
		if err != nil {
			return nil, err
		}
		if err := b.Close(); err != nil {
			return nil, err
		}
	}
	if err := cf.Comm.Barrier(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCollective, err)
	}

	var b *Block
	var err error
	if cf.Comm.Rank() == 0 {
		b, err = cf.File.Open(name)
	} else {
		b, err = pollOpen(cf.File, name)
	}
	if err != nil {
		return nil, err
	}
	return &CollectiveBlock{block: b, comm: cf.Comm}, nil
}

// shardCounts computes the default 32M-record-per-file stripe count for a
// collectively created array, given the array's total size.
func shardCounts(totalSize int64, nfile int) int {
	if nfile > 0 {
		return nfile
	}
	const recordsPerFile = 32 * 1024 * 1024
	n := int((totalSize + recordsPerFile - 1) / recordsPerFile)
	if n < 1 {
		n = 1
	}
	return n
}

// CreateFromArray creates a block collectively from a distributed array:
// each rank contributes a local shard of shard.Len() records; the global
// size is an allreduce sum, each rank's logical offset is computed from an
// allgather of shard lengths, and the shard is written in chunks of
// chunkBytes rounded down to a multiple of 1024 records, with a minimum of
// 1024 records per chunk; chunkBytes <= 0 selects 256 MiB. nfile of 0
// selects the default of one physical file per 32M records.
func (cf *CollectiveFile) CreateFromArray(name string, shard TypedBuffer, nfile int, chunkBytes int) (*CollectiveBlock, error) {
	localLen := int64(shard.Len())
	total, err := cf.Comm.AllreduceSum(localLen)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCollective, err)
	}
	lens, err := cf.Comm.AllgatherInt(localLen)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCollective, err)
	}
	var offset int64
	for i := 0; i < cf.Comm.Rank(); i++ {
		offset += lens[i]
	}

	nf := shardCounts(total, nfile)
	cb, err := cf.CreateBlock(name, shard.Dtype(), total, nf)
	if err != nil {
		return nil, err
	}

	if chunkBytes <= 0 {
		chunkBytes = 256 * 1024 * 1024
	}
	recSize := shard.Dtype().RecordSize()
	chunkRecs := int64(chunkBytes / recSize)
	chunkRecs -= chunkRecs % 1024
	if chunkRecs <= 0 {
		chunkRecs = 1024
	}

	data := shard.Bytes()
	d := shard.Dtype()
	for written := int64(0); written < localLen; {
		n := chunkRecs
		if written+n > localLen {
			n = localLen - written
		}
		lo := written * int64(recSize)
		hi := (written + n) * int64(recSize)
		chunk := NewRawBuffer(d, data[lo:hi])
		if err := cb.block.Write(offset+written, chunk); err != nil {
			return nil, err
		}
		written += n
	}

	log.Printf("bigfile: collective create_from_array %q: rank %d wrote %d records at offset %d (total %d)", name, cf.Comm.Rank(), localLen, offset, total)
	return cb, nil
}

// CollectiveBlock wraps a Block opened through a collective operation so
// that Close combines per-rank checksums before rank 0 rewrites the header.
type CollectiveBlock struct {
	block *Block
	comm  Communicator
}

// Dtype returns the block's element dtype.
func (cb *CollectiveBlock) Dtype() Dtype { return cb.block.Dtype() }

// Size returns the block's total logical record count.
func (cb *CollectiveBlock) Size() int64 { return cb.block.Size() }

// Write performs a local positional write; the caller is responsible for
// ensuring ranks write disjoint logical ranges. The engine does not
// validate this.
func (cb *CollectiveBlock) Write(offset int64, src TypedBuffer) error {
	return cb.block.Write(offset, src)
}

// Read performs a local positional read.
func (cb *CollectiveBlock) Read(offset, n int64) (RawBuffer, error) {
	return cb.block.Read(offset, n)
}

// Close flushes this rank's write buffer, combines every rank's per-file
// checksums via a sum-allreduce, and lets rank 0 rewrite the header with
// the combined totals before all ranks barrier.
func (cb *CollectiveBlock) Close() error {
	cb.block.mu.Lock()
	if cb.block.state == stateClosed {
		cb.block.mu.Unlock()
		return fmt.Errorf("%w", ErrBlockClosed)
	}
	if err := cb.block.flushLocked(); err != nil {
		cb.block.mu.Unlock()
		return err
	}
	partial := cb.block.checksumsLocked()
	cb.block.mu.Unlock()

	combined := make([]uint64, len(partial))
	for i, p := range partial {
		sum, err := cb.comm.AllreduceSum(int64(p))
		if err != nil {
			return fmt.Errorf("%w: %v", ErrCollective, err)
		}
		combined[i] = uint64(sum)
	}

	var err error
	if cb.comm.Rank() == 0 {
		cb.block.mu.Lock()
		cb.block.setChecksumsLocked(combined)
		cb.block.mu.Unlock()
		err = cb.block.Close()
	} else {
		err = cb.block.closeFilesOnly()
	}

	if bErr := cb.comm.Barrier(); bErr != nil && err == nil {
		err = fmt.Errorf("%w: %v", ErrCollective, bErr)
	}
	return err
}
