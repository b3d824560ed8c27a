package bigfile

import "fmt"

// BigData is a read-only table view composing a set of equally-sized
// blocks as named columns. All columns must share the same record count;
// they may have different dtypes.
type BigData struct {
	names   []string
	columns []*Block
	size    int64
}

// NewBigData builds a table view over cols, keyed by the parallel names
// slice. It fails if cols is empty, names and cols disagree in length, or
// the columns' sizes differ.
func NewBigData(names []string, cols []*Block) (*BigData, error) {
	if len(names) != len(cols) {
		return nil, fmt.Errorf("%w: %d names for %d columns", ErrBounds, len(names), len(cols))
	}
	if len(cols) == 0 {
		return nil, fmt.Errorf("%w: BigData requires at least one column", ErrBounds)
	}
	size := cols[0].Size()
	for i, c := range cols[1:] {
		if c.Size() != size {
			return nil, fmt.Errorf("%w: column %q has size %d, want %d", ErrBounds, names[i+1], c.Size(), size)
		}
	}
	return &BigData{
		names:   append([]string(nil), names...),
		columns: append([]*Block(nil), cols...),
		size:    size,
	}, nil
}

// Columns returns the table's column names in order.
func (t *BigData) Columns() []string { return append([]string(nil), t.names...) }

// Size returns the shared record count of every column.
func (t *BigData) Size() int64 { return t.size }

func (t *BigData) indexOf(name string) int {
	for i, n := range t.names {
		if n == name {
			return i
		}
	}
	return -1
}

// Column returns the full contents of one named column.
func (t *BigData) Column(name string) (RawBuffer, error) {
	i := t.indexOf(name)
	if i < 0 {
		return RawBuffer{}, fmt.Errorf("%w: column %q", ErrNotFound, name)
	}
	return t.columns[i].Read(0, t.size)
}

// Select returns a new BigData restricted to the named subset of columns,
// preserving the requested order.
func (t *BigData) Select(names []string) (*BigData, error) {
	cols := make([]*Block, len(names))
	for i, n := range names {
		idx := t.indexOf(n)
		if idx < 0 {
			return nil, fmt.Errorf("%w: column %q", ErrNotFound, n)
		}
		cols[i] = t.columns[idx]
	}
	return NewBigData(names, cols)
}

// Row is one row's worth of column values, keyed by column name.
type Row struct {
	Values map[string]RawBuffer
}

// Slice returns the [offset, offset+n) record range of every column as a
// Row of single-record buffers, keyed by column name.
func (t *BigData) Slice(offset, n int64) ([]Row, error) {
	if offset < 0 || n < 0 || offset+n > t.size {
		return nil, fmt.Errorf("%w: range [%d,%d) exceeds size %d", ErrBounds, offset, offset+n, t.size)
	}
	colData := make([]RawBuffer, len(t.columns))
	for i, c := range t.columns {
		buf, err := c.Read(offset, n)
		if err != nil {
			return nil, err
		}
		colData[i] = buf
	}

	rows := make([]Row, n)
	for r := int64(0); r < n; r++ {
		values := make(map[string]RawBuffer, len(t.names))
		for i, name := range t.names {
			d := colData[i].D
			rs := d.RecordSize()
			values[name] = RawBuffer{D: d, B: colData[i].B[r*int64(rs) : (r+1)*int64(rs)]}
		}
		rows[r] = Row{Values: values}
	}
	return rows, nil
}

// SliceColumn returns the [offset, offset+n) record range of a single named
// column.
func (t *BigData) SliceColumn(name string, offset, n int64) (RawBuffer, error) {
	i := t.indexOf(name)
	if i < 0 {
		return RawBuffer{}, fmt.Errorf("%w: column %q", ErrNotFound, name)
	}
	if offset < 0 || n < 0 || offset+n > t.size {
		return RawBuffer{}, fmt.Errorf("%w: range [%d,%d) exceeds size %d", ErrBounds, offset, offset+n, t.size)
	}
	return t.columns[i].Read(offset, n)
}
