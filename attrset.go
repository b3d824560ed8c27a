package bigfile

import (
	"bufio"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"math"
	"os"
	"regexp"
	"strconv"
	"strings"
	"sync"

	"github.com/google/renameio"
)

// KindString tags a byte-string attribute value. It exists only in the
// attribute dtype vocabulary; block element dtypes never use it — their
// closed kind set is the five in dtype.go.
const KindString Kind = 'S'

// attrRecord is one line of attr-v2: key, element dtype string, length
// (number of scalar elements, or bytes for a string), and the raw value
// bytes in that dtype's declared endianness.
type attrRecord struct {
	Key      string
	DtypeStr string
	Length   int
	Raw      []byte
}

var attrDtypeRe = regexp.MustCompile(`^([<>=|])([iufcbS])(\d+)$`)

func parseAttrDtype(s string) (endian Endian, kind Kind, width int, err error) {
	m := attrDtypeRe.FindStringSubmatch(s)
	if m == nil {
		return 0, 0, 0, fmt.Errorf("%w: malformed attribute dtype %q", ErrFormat, s)
	}
	width, err = strconv.Atoi(m[3])
	if err != nil || width <= 0 {
		return 0, 0, 0, fmt.Errorf("%w: bad width in attribute dtype %q", ErrFormat, s)
	}
	return Endian(m[1][0]), Kind(m[2][0]), width, nil
}

func validAttrKey(key string) error {
	if key == "" || strings.ContainsAny(key, "\n\t") {
		return fmt.Errorf("%w: invalid attribute key %q", ErrFormat, key)
	}
	return nil
}

// AttrSet is the typed key/value attribute table persisted as a block's
// attr-v2 file. Every write rewrites the whole file atomically via
// temp-file + rename (github.com/google/renameio). AttrSet is safe for
// concurrent use from one process.
type AttrSet struct {
	mu      sync.Mutex
	path    string
	records map[string]attrRecord
	order   []string
}

func newAttrSet(path string) *AttrSet {
	return &AttrSet{path: path, records: make(map[string]attrRecord)}
}

// loadAttrSet reads an existing attr-v2 file, or returns an empty, unwritten
// AttrSet if none exists yet — a block with no live attributes need not have
// one on disk.
func loadAttrSet(path string) (*AttrSet, error) {
	a := newAttrSet(path)

	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return a, nil
		}
		return nil, fmt.Errorf("%w: opening %s: %v", ErrIO, path, err)
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	lineNo := 0
	for sc.Scan() {
		lineNo++
		text := sc.Text()
		if text == "" {
			continue
		}
		fields := strings.Split(text, "\t")
		if len(fields) != 4 {
			return nil, fmt.Errorf("%w: %s:%d: expected 4 tab-separated fields, got %d", ErrFormat, path, lineNo, len(fields))
		}
		length, err := strconv.Atoi(fields[2])
		if err != nil {
			return nil, fmt.Errorf("%w: %s:%d: bad length %q", ErrFormat, path, lineNo, fields[2])
		}
		raw, err := hex.DecodeString(fields[3])
		if err != nil {
			return nil, fmt.Errorf("%w: %s:%d: bad hex payload: %v", ErrFormat, path, lineNo, err)
		}
		a.insert(attrRecord{Key: fields[0], DtypeStr: fields[1], Length: length, Raw: raw})
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("%w: reading %s: %v", ErrIO, path, err)
	}
	return a, nil
}

func (a *AttrSet) insert(rec attrRecord) {
	if _, dup := a.records[rec.Key]; !dup {
		a.order = append(a.order, rec.Key)
	}
	a.records[rec.Key] = rec
}

// persist rewrites the whole attr-v2 file, made atomic with temp-file +
// rename.
func (a *AttrSet) persist() error {
	var b strings.Builder
	for _, k := range a.order {
		rec := a.records[k]
		fmt.Fprintf(&b, "%s\t%s\t%d\t%s\n", rec.Key, rec.DtypeStr, rec.Length, hex.EncodeToString(rec.Raw))
	}
	if err := renameio.WriteFile(a.path, []byte(b.String()), 0o644); err != nil {
		return fmt.Errorf("%w: writing %s: %v", ErrIO, a.path, err)
	}
	return nil
}

func (a *AttrSet) setRecord(rec attrRecord) error {
	if err := validAttrKey(rec.Key); err != nil {
		return err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.insert(rec)
	return a.persist()
}

func (a *AttrSet) getRecord(key string) (attrRecord, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	rec, ok := a.records[key]
	if !ok {
		return attrRecord{}, fmt.Errorf("%w: attribute %q", ErrNotFound, key)
	}
	return rec, nil
}

// Delete removes an attribute. Deleting a key that isn't set is not an error.
func (a *AttrSet) Delete(key string) error {
	a.mu.Lock()
	if _, ok := a.records[key]; !ok {
		a.mu.Unlock()
		return nil
	}
	delete(a.records, key)
	for i, k := range a.order {
		if k == key {
			a.order = append(a.order[:i], a.order[i+1:]...)
			break
		}
	}
	err := a.persist()
	a.mu.Unlock()
	return err
}

// List returns every attribute key, in insertion order.
func (a *AttrSet) List() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]string, len(a.order))
	copy(out, a.order)
	return out
}

// --- typed accessors ---
//
// Numeric Set* calls always write in little-endian order and tag the record
// with a concrete '<' endian (bool and byte-string values carry '|'), since
// the writer and reader here are the same process; Get* calls still honor
// whatever endian tag is actually on disk so
// an AttrSet written by another big/little-endian host round-trips.

func toLittleEndianRaw(raw []byte, endian Endian, width int) []byte {
	if endian != BigEndian || width <= 1 {
		return raw
	}
	out := append([]byte(nil), raw...)
	for off := 0; off+width <= len(out); off += width {
		reverseBytes(out[off : off+width])
	}
	return out
}

func encodeInts(v []int64, width int) []byte {
	buf := make([]byte, width*len(v))
	for i, x := range v {
		switch width {
		case 1:
			buf[i] = byte(x)
		case 2:
			binary.LittleEndian.PutUint16(buf[i*2:], uint16(x))
		case 4:
			binary.LittleEndian.PutUint32(buf[i*4:], uint32(x))
		case 8:
			binary.LittleEndian.PutUint64(buf[i*8:], uint64(x))
		}
	}
	return buf
}

func decodeInts(raw []byte, width int) []int64 {
	n := len(raw) / width
	out := make([]int64, n)
	for i := range out {
		switch width {
		case 1:
			out[i] = int64(int8(raw[i]))
		case 2:
			out[i] = int64(int16(binary.LittleEndian.Uint16(raw[i*2:])))
		case 4:
			out[i] = int64(int32(binary.LittleEndian.Uint32(raw[i*4:])))
		case 8:
			out[i] = int64(binary.LittleEndian.Uint64(raw[i*8:]))
		}
	}
	return out
}

func encodeUints(v []uint64, width int) []byte {
	buf := make([]byte, width*len(v))
	for i, x := range v {
		switch width {
		case 1:
			buf[i] = byte(x)
		case 2:
			binary.LittleEndian.PutUint16(buf[i*2:], uint16(x))
		case 4:
			binary.LittleEndian.PutUint32(buf[i*4:], uint32(x))
		case 8:
			binary.LittleEndian.PutUint64(buf[i*8:], x)
		}
	}
	return buf
}

func decodeUints(raw []byte, width int) []uint64 {
	n := len(raw) / width
	out := make([]uint64, n)
	for i := range out {
		switch width {
		case 1:
			out[i] = uint64(raw[i])
		case 2:
			out[i] = uint64(binary.LittleEndian.Uint16(raw[i*2:]))
		case 4:
			out[i] = uint64(binary.LittleEndian.Uint32(raw[i*4:]))
		case 8:
			out[i] = binary.LittleEndian.Uint64(raw[i*8:])
		}
	}
	return out
}

func encodeFloats(v []float64, width int) []byte {
	buf := make([]byte, width*len(v))
	for i, x := range v {
		if width == 4 {
			binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(float32(x)))
		} else {
			binary.LittleEndian.PutUint64(buf[i*8:], math.Float64bits(x))
		}
	}
	return buf
}

func decodeFloats(raw []byte, width int) []float64 {
	n := len(raw) / width
	out := make([]float64, n)
	for i := range out {
		if width == 4 {
			out[i] = float64(math.Float32frombits(binary.LittleEndian.Uint32(raw[i*4:])))
		} else {
			out[i] = math.Float64frombits(binary.LittleEndian.Uint64(raw[i*8:]))
		}
	}
	return out
}

// SetInt sets a scalar signed 64-bit integer attribute.
func (a *AttrSet) SetInt(key string, v int64) error { return a.SetInts(key, []int64{v}) }

// Int returns a scalar signed integer attribute, widening to int64 regardless
// of its on-disk width.
func (a *AttrSet) Int(key string) (int64, error) {
	vs, err := a.Ints(key)
	if err != nil {
		return 0, err
	}
	if len(vs) != 1 {
		return 0, fmt.Errorf("%w: attribute %q is an array, not scalar", ErrDtype, key)
	}
	return vs[0], nil
}

// SetInts sets an array-valued signed integer attribute.
func (a *AttrSet) SetInts(key string, v []int64) error {
	return a.setRecord(attrRecord{Key: key, DtypeStr: "<i8", Length: len(v), Raw: encodeInts(v, 8)})
}

// Ints returns an integer attribute's values, widened to int64.
func (a *AttrSet) Ints(key string) ([]int64, error) {
	rec, err := a.getRecord(key)
	if err != nil {
		return nil, err
	}
	endian, kind, width, err := parseAttrDtype(rec.DtypeStr)
	if err != nil {
		return nil, err
	}
	if kind != KindInt {
		return nil, fmt.Errorf("%w: attribute %q is not an integer", ErrDtype, key)
	}
	return decodeInts(toLittleEndianRaw(rec.Raw, endian, width), width), nil
}

// SetUint sets a scalar unsigned 64-bit integer attribute.
func (a *AttrSet) SetUint(key string, v uint64) error { return a.SetUints(key, []uint64{v}) }

// Uint returns a scalar unsigned integer attribute, widening to uint64.
func (a *AttrSet) Uint(key string) (uint64, error) {
	vs, err := a.Uints(key)
	if err != nil {
		return 0, err
	}
	if len(vs) != 1 {
		return 0, fmt.Errorf("%w: attribute %q is an array, not scalar", ErrDtype, key)
	}
	return vs[0], nil
}

// SetUints sets an array-valued unsigned integer attribute.
func (a *AttrSet) SetUints(key string, v []uint64) error {
	return a.setRecord(attrRecord{Key: key, DtypeStr: "<u8", Length: len(v), Raw: encodeUints(v, 8)})
}

// Uints returns an unsigned integer attribute's values, widened to uint64.
func (a *AttrSet) Uints(key string) ([]uint64, error) {
	rec, err := a.getRecord(key)
	if err != nil {
		return nil, err
	}
	endian, kind, width, err := parseAttrDtype(rec.DtypeStr)
	if err != nil {
		return nil, err
	}
	if kind != KindUint {
		return nil, fmt.Errorf("%w: attribute %q is not an unsigned integer", ErrDtype, key)
	}
	return decodeUints(toLittleEndianRaw(rec.Raw, endian, width), width), nil
}

// SetFloat sets a scalar double-precision float attribute.
func (a *AttrSet) SetFloat(key string, v float64) error { return a.SetFloats(key, []float64{v}) }

// Float returns a scalar float attribute.
func (a *AttrSet) Float(key string) (float64, error) {
	vs, err := a.Floats(key)
	if err != nil {
		return 0, err
	}
	if len(vs) != 1 {
		return 0, fmt.Errorf("%w: attribute %q is an array, not scalar", ErrDtype, key)
	}
	return vs[0], nil
}

// SetFloats sets an array-valued double-precision float attribute.
func (a *AttrSet) SetFloats(key string, v []float64) error {
	return a.setRecord(attrRecord{Key: key, DtypeStr: "<f8", Length: len(v), Raw: encodeFloats(v, 8)})
}

// Floats returns a float attribute's values as float64, regardless of
// whether they were stored as 4- or 8-byte floats.
func (a *AttrSet) Floats(key string) ([]float64, error) {
	rec, err := a.getRecord(key)
	if err != nil {
		return nil, err
	}
	endian, kind, width, err := parseAttrDtype(rec.DtypeStr)
	if err != nil {
		return nil, err
	}
	if kind != KindFloat {
		return nil, fmt.Errorf("%w: attribute %q is not a float", ErrDtype, key)
	}
	return decodeFloats(toLittleEndianRaw(rec.Raw, endian, width), width), nil
}

// SetComplex sets a scalar complex128 attribute.
func (a *AttrSet) SetComplex(key string, v complex128) error {
	raw := make([]byte, 16)
	binary.LittleEndian.PutUint64(raw[0:8], math.Float64bits(real(v)))
	binary.LittleEndian.PutUint64(raw[8:16], math.Float64bits(imag(v)))
	return a.setRecord(attrRecord{Key: key, DtypeStr: "<c16", Length: 1, Raw: raw})
}

// Complex returns a scalar complex128 attribute.
func (a *AttrSet) Complex(key string) (complex128, error) {
	rec, err := a.getRecord(key)
	if err != nil {
		return 0, err
	}
	endian, kind, width, err := parseAttrDtype(rec.DtypeStr)
	if err != nil {
		return 0, err
	}
	if kind != KindComplex {
		return 0, fmt.Errorf("%w: attribute %q is not complex", ErrDtype, key)
	}
	raw := toLittleEndianRaw(rec.Raw, endian, width/2)
	if len(raw) < 16 {
		return 0, fmt.Errorf("%w: attribute %q has a truncated complex value", ErrFormat, key)
	}
	re := math.Float64frombits(binary.LittleEndian.Uint64(raw[0:8]))
	im := math.Float64frombits(binary.LittleEndian.Uint64(raw[8:16]))
	return complex(re, im), nil
}

// SetBool sets a boolean attribute.
func (a *AttrSet) SetBool(key string, v bool) error {
	b := byte(0)
	if v {
		b = 1
	}
	return a.setRecord(attrRecord{Key: key, DtypeStr: "|b1", Length: 1, Raw: []byte{b}})
}

// Bool returns a boolean attribute.
func (a *AttrSet) Bool(key string) (bool, error) {
	rec, err := a.getRecord(key)
	if err != nil {
		return false, err
	}
	_, kind, _, err := parseAttrDtype(rec.DtypeStr)
	if err != nil {
		return false, err
	}
	if kind != KindBool || len(rec.Raw) < 1 {
		return false, fmt.Errorf("%w: attribute %q is not a bool", ErrDtype, key)
	}
	return rec.Raw[0] != 0, nil
}

// SetString sets a byte-string attribute. Length counts bytes, not runes.
func (a *AttrSet) SetString(key string, v string) error {
	return a.setRecord(attrRecord{Key: key, DtypeStr: fmt.Sprintf("|S%d", len(v)), Length: len(v), Raw: []byte(v)})
}

// String returns a byte-string attribute as a Go string. A single trailing
// NUL is trimmed, since byte-string attributes viewed as strings drop one
// trailing NUL if present.
func (a *AttrSet) String(key string) (string, error) {
	rec, err := a.getRecord(key)
	if err != nil {
		return "", err
	}
	_, kind, _, err := parseAttrDtype(rec.DtypeStr)
	if err != nil {
		return "", err
	}
	if kind != KindString {
		return "", fmt.Errorf("%w: attribute %q is not a string", ErrDtype, key)
	}
	raw := rec.Raw
	if len(raw) > 0 && raw[len(raw)-1] == 0 {
		raw = raw[:len(raw)-1]
	}
	return string(raw), nil
}

// SetBytes sets a byte-string attribute from raw bytes, preserving every byte
// verbatim (no NUL trimming).
func (a *AttrSet) SetBytes(key string, v []byte) error {
	return a.setRecord(attrRecord{Key: key, DtypeStr: fmt.Sprintf("|S%d", len(v)), Length: len(v), Raw: append([]byte(nil), v...)})
}

// Bytes returns a byte-string attribute's raw bytes verbatim.
func (a *AttrSet) Bytes(key string) ([]byte, error) {
	rec, err := a.getRecord(key)
	if err != nil {
		return nil, err
	}
	_, kind, _, err := parseAttrDtype(rec.DtypeStr)
	if err != nil {
		return nil, err
	}
	if kind != KindString {
		return nil, fmt.Errorf("%w: attribute %q is not a byte string", ErrDtype, key)
	}
	return append([]byte(nil), rec.Raw...), nil
}
