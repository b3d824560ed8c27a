package bigfile_test

import (
	"errors"
	"testing"

	"github.com/KarpelesLab/bigfile"
)

func mustCreateFile(t *testing.T) *bigfile.File {
	t.Helper()
	f, err := bigfile.CreateFile(t.TempDir() + "/root")
	if err != nil {
		t.Fatalf("CreateFile: %v", err)
	}
	return f
}

func TestBlockWriteReadRoundTrip(t *testing.T) {
	f := mustCreateFile(t)
	d := bigfile.MustParseDtype("<f8")

	b, err := f.Create("temps", d, 128, 1)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	raw := make([]byte, 128*8)
	for i := range raw {
		raw[i] = byte(i)
	}
	buf := bigfile.NewRawBuffer(d, raw)
	if err := b.Write(0, buf); err != nil {
		t.Fatalf("Write: %v", err)
	}

	got, err := b.Read(0, 128)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if len(got.B) != len(raw) {
		t.Fatalf("Read returned %d bytes, want %d", len(got.B), len(raw))
	}
	for i := range raw {
		if got.B[i] != raw[i] {
			t.Fatalf("byte %d = %d, want %d", i, got.B[i], raw[i])
		}
	}
	if err := b.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
}

func TestBlockPartialReadWrite(t *testing.T) {
	f := mustCreateFile(t)
	d := bigfile.MustParseDtype("<i4")
	b, err := f.Create("ints", d, 64, 2)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	defer b.Close()

	raw := make([]byte, 10*4)
	for i := range raw {
		raw[i] = byte(i + 1)
	}
	if err := b.Write(20, bigfile.NewRawBuffer(d, raw)); err != nil {
		t.Fatalf("Write: %v", err)
	}
	got, err := b.Read(20, 10)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	for i := range raw {
		if got.B[i] != raw[i] {
			t.Fatalf("byte %d = %d, want %d", i, got.B[i], raw[i])
		}
	}
}

func TestBlockWriteOutOfBounds(t *testing.T) {
	f := mustCreateFile(t)
	d := bigfile.MustParseDtype("<f4")
	b, err := f.Create("arr", d, 16, 1)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	defer b.Close()

	raw := make([]byte, 20*4)
	err = b.Write(10, bigfile.NewRawBuffer(d, raw))
	if !errors.Is(err, bigfile.ErrBounds) {
		t.Fatalf("expected ErrBounds, got %v", err)
	}
}

func TestBlockClosedOperationsFail(t *testing.T) {
	f := mustCreateFile(t)
	d := bigfile.MustParseDtype("<f4")
	b, err := f.Create("arr", d, 8, 1)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := b.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := b.Close(); !errors.Is(err, bigfile.ErrBlockClosed) {
		t.Fatalf("double Close: expected ErrBlockClosed, got %v", err)
	}
	if _, err := b.Read(0, 1); !errors.Is(err, bigfile.ErrBlockClosed) {
		t.Fatalf("Read after Close: expected ErrBlockClosed, got %v", err)
	}
}

func TestBlockAttrsPersistAcrossReopen(t *testing.T) {
	f := mustCreateFile(t)
	d := bigfile.MustParseDtype("<f4")
	b, err := f.Create("arr", d, 8, 1)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := b.Attrs().SetString("units", "kelvin"); err != nil {
		t.Fatalf("SetString: %v", err)
	}
	if err := b.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	reopened, err := f.Open("arr")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer reopened.Close()
	v, err := reopened.Attrs().String("units")
	if err != nil || v != "kelvin" {
		t.Fatalf("String(units) = (%q, %v), want (\"kelvin\", nil)", v, err)
	}
}
