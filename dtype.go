package bigfile

import (
	"encoding/binary"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Endian is the byte-order tag of a Dtype's canonical string form.
type Endian byte

const (
	LittleEndian     Endian = '<'
	BigEndian        Endian = '>'
	NativeEndianTag  Endian = '='
	IrrelevantEndian Endian = '|'
)

func (e Endian) String() string {
	return string(byte(e))
}

// Kind is the scalar element kind of a Dtype's canonical string form.
type Kind byte

const (
	KindInt     Kind = 'i'
	KindUint    Kind = 'u'
	KindFloat   Kind = 'f'
	KindComplex Kind = 'c'
	KindBool    Kind = 'b'
)

func (k Kind) String() string {
	return string(byte(k))
}

// Dtype describes a scalar element type with endianness, byte width and an
// optional fixed array shape. The zero Dtype is not valid; always construct
// via ParseDtype or MustParseDtype.
type Dtype struct {
	Endian Endian
	Kind   Kind
	Width  int // bytes of the scalar; for Complex this is the total of both halves
	Shape  []int
}

var dtypeRe = regexp.MustCompile(`^([<>=|])([a-z])(\d+)(?:\(([^)]*)\))?$`)

// ParseDtype parses a canonical dtype string such as "<f8", ">i4", "|b1" or
// "<c16(2,)". It rejects unknown kinds, zero widths, non-positive shape
// dimensions and an irrelevant endian tag on anything but a 1-byte kind or
// bool.
func ParseDtype(s string) (Dtype, error) {
	m := dtypeRe.FindStringSubmatch(s)
	if m == nil {
		return Dtype{}, fmt.Errorf("%w: malformed dtype string %q", ErrDtype, s)
	}

	endian := Endian(m[1][0])
	kind := Kind(m[2][0])

	switch kind {
	case KindInt, KindUint, KindFloat, KindComplex, KindBool:
	default:
		return Dtype{}, fmt.Errorf("%w: unknown kind %q in %q", ErrDtype, m[2], s)
	}

	width, err := strconv.Atoi(m[3])
	if err != nil || width <= 0 {
		return Dtype{}, fmt.Errorf("%w: zero or invalid width in %q", ErrDtype, s)
	}

	var shape []int
	if m[4] != "" {
		for _, part := range strings.Split(m[4], ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			n, err := strconv.Atoi(part)
			if err != nil || n <= 0 {
				return Dtype{}, fmt.Errorf("%w: non-positive shape dimension in %q", ErrDtype, s)
			}
			shape = append(shape, n)
		}
	}

	switch endian {
	case LittleEndian, BigEndian, NativeEndianTag:
	case IrrelevantEndian:
		if width != 1 && kind != KindBool {
			return Dtype{}, fmt.Errorf("%w: irrelevant endianness only valid for 1-byte kinds and bool, got %q", ErrDtype, s)
		}
	default:
		return Dtype{}, fmt.Errorf("%w: unknown endianness in %q", ErrDtype, s)
	}

	return Dtype{Endian: endian, Kind: kind, Width: width, Shape: shape}, nil
}

// MustParseDtype is ParseDtype that panics on error; useful for package-level
// constants and tests.
func MustParseDtype(s string) Dtype {
	d, err := ParseDtype(s)
	if err != nil {
		panic(err)
	}
	return d
}

// String returns the unique canonical round-trip string for d.
func (d Dtype) String() string {
	var b strings.Builder
	b.WriteByte(byte(d.Endian))
	b.WriteByte(byte(d.Kind))
	b.WriteString(strconv.Itoa(d.Width))
	if len(d.Shape) > 0 {
		b.WriteByte('(')
		for i, n := range d.Shape {
			if i > 0 {
				b.WriteByte(',')
			}
			b.WriteString(strconv.Itoa(n))
		}
		if len(d.Shape) == 1 {
			b.WriteByte(',')
		}
		b.WriteByte(')')
	}
	return b.String()
}

// Nmemb returns the number of scalar elements per record (the product of
// Shape, or 1 when Shape is empty).
func (d Dtype) Nmemb() int {
	n := 1
	for _, s := range d.Shape {
		n *= s
	}
	return n
}

// RecordSize returns the on-disk byte size of one record of this dtype.
func (d Dtype) RecordSize() int {
	return d.Width * d.Nmemb()
}

// ByteIdentical reports whether d and o agree on every field: endian, kind,
// width and shape.
func (d Dtype) ByteIdentical(o Dtype) bool {
	return d.Endian == o.Endian && d.valueEqual(o)
}

// ValueCompatible reports whether d and o agree on kind, width and shape;
// endianness may differ, in which case reads/writes byte-swap in place.
func (d Dtype) ValueCompatible(o Dtype) bool {
	return d.valueEqual(o)
}

func (d Dtype) valueEqual(o Dtype) bool {
	if d.Kind != o.Kind || d.Width != o.Width || len(d.Shape) != len(o.Shape) {
		return false
	}
	for i := range d.Shape {
		if d.Shape[i] != o.Shape[i] {
			return false
		}
	}
	return true
}

// resolvedOrder returns the concrete byte order to use for d's endian tag.
// NativeEndianTag and IrrelevantEndian both resolve to the host's native
// order (irrelevant dtypes are never swapped, so the choice doesn't matter,
// but a concrete value is needed to satisfy binary.ByteOrder call sites).
func (d Dtype) resolvedOrder() binary.ByteOrder {
	if d.Endian == BigEndian {
		return binary.BigEndian
	}
	if d.Endian == LittleEndian {
		return binary.LittleEndian
	}
	if binary.NativeEndian.Uint16([]byte{0, 1}) == 1 {
		return binary.BigEndian
	}
	return binary.LittleEndian
}

// needsSwap reports whether data of dtype d, declared on disk, must be
// byte-swapped to be read/written in the order wanted (the host's native
// order for in-memory buffers).
func (d Dtype) needsSwap() bool {
	if d.Width <= 1 || d.Endian == IrrelevantEndian {
		return false
	}
	return d.resolvedOrder() != (Dtype{Endian: NativeEndianTag}).resolvedOrder()
}

// swapUnit is the number of contiguous bytes that get reversed as a single
// unit when byte-swapping one scalar: the whole width, except for Complex
// where each of the two halves (real, imaginary) swaps independently.
func (d Dtype) swapUnit() int {
	if d.Kind == KindComplex {
		return d.Width / 2
	}
	return d.Width
}

// SwapBytes reverses the byte order of every scalar element in buf in place,
// assuming buf holds a whole number of scalars of dtype d (e.g. Nmemb()
// scalars per record, or an attribute's raw value bytes). It is a no-op for
// 1-byte or irrelevant-endian dtypes.
func (d Dtype) SwapBytes(buf []byte) {
	if d.Width <= 1 || d.Endian == IrrelevantEndian {
		return
	}
	unit := d.swapUnit()
	for off := 0; off+d.Width <= len(buf); off += d.Width {
		for h := 0; h < d.Width; h += unit {
			reverseBytes(buf[off+h : off+h+unit])
		}
	}
}

func reverseBytes(b []byte) {
	for i, j := 0, len(b)-1; i < j; i, j = i+1, j-1 {
		b[i], b[j] = b[j], b[i]
	}
}
