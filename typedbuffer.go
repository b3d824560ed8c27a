package bigfile

// TypedBuffer abstracts a caller-supplied in-memory array so the core never
// has to import a numeric array library directly. External numeric
// libraries satisfy this by providing a thin adapter; RawBuffer below is the
// in-tree adapter for plain []byte callers.
type TypedBuffer interface {
	// Dtype returns the buffer's element dtype, including its declared
	// endianness.
	Dtype() Dtype

	// Len returns the number of records (not scalars) the buffer holds.
	Len() int

	// Bytes returns the buffer's raw backing bytes, Len()*Dtype().RecordSize()
	// long, in the dtype's declared endianness. Block.Write copies these bytes
	// before byte-swapping them into the block's on-disk endianness, so the
	// returned slice is left unmodified.
	Bytes() []byte
}

// RawBuffer is the trivial TypedBuffer: a plain byte slice paired with the
// dtype describing it.
type RawBuffer struct {
	D Dtype
	B []byte
}

// NewRawBuffer wraps b (exactly n records of d, n*d.RecordSize() bytes) as a
// TypedBuffer.
func NewRawBuffer(d Dtype, b []byte) RawBuffer {
	return RawBuffer{D: d, B: b}
}

func (r RawBuffer) Dtype() Dtype { return r.D }

func (r RawBuffer) Len() int {
	rs := r.D.RecordSize()
	if rs == 0 {
		return 0
	}
	return len(r.B) / rs
}

func (r RawBuffer) Bytes() []byte { return r.B }
