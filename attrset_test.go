package bigfile

import (
	"errors"
	"path/filepath"
	"testing"
)

func TestAttrSetScalarRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "attr-v2")
	a := newAttrSet(path)

	if err := a.SetInt("rank", -7); err != nil {
		t.Fatalf("SetInt: %v", err)
	}
	if err := a.SetUint("epoch", 42); err != nil {
		t.Fatalf("SetUint: %v", err)
	}
	if err := a.SetFloat("scale", 3.5); err != nil {
		t.Fatalf("SetFloat: %v", err)
	}
	if err := a.SetBool("done", true); err != nil {
		t.Fatalf("SetBool: %v", err)
	}
	if err := a.SetComplex("phase", complex(1.5, -2.5)); err != nil {
		t.Fatalf("SetComplex: %v", err)
	}
	if err := a.SetString("label", "hello"); err != nil {
		t.Fatalf("SetString: %v", err)
	}

	loaded, err := loadAttrSet(path)
	if err != nil {
		t.Fatalf("loadAttrSet: %v", err)
	}

	if v, err := loaded.Int("rank"); err != nil || v != -7 {
		t.Fatalf("Int(rank) = (%d, %v), want (-7, nil)", v, err)
	}
	if v, err := loaded.Uint("epoch"); err != nil || v != 42 {
		t.Fatalf("Uint(epoch) = (%d, %v), want (42, nil)", v, err)
	}
	if v, err := loaded.Float("scale"); err != nil || v != 3.5 {
		t.Fatalf("Float(scale) = (%v, %v), want (3.5, nil)", v, err)
	}
	if v, err := loaded.Bool("done"); err != nil || !v {
		t.Fatalf("Bool(done) = (%v, %v), want (true, nil)", v, err)
	}
	if v, err := loaded.Complex("phase"); err != nil || v != complex(1.5, -2.5) {
		t.Fatalf("Complex(phase) = (%v, %v), want (1.5-2.5i, nil)", v, err)
	}
	if v, err := loaded.String("label"); err != nil || v != "hello" {
		t.Fatalf("String(label) = (%q, %v), want (\"hello\", nil)", v, err)
	}
}

func TestAttrSetArrayRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "attr-v2")
	a := newAttrSet(path)

	if err := a.SetInts("shape", []int64{1, 2, 3}); err != nil {
		t.Fatalf("SetInts: %v", err)
	}
	if err := a.SetFloats("weights", []float64{0.1, 0.2, 0.3}); err != nil {
		t.Fatalf("SetFloats: %v", err)
	}

	loaded, err := loadAttrSet(path)
	if err != nil {
		t.Fatalf("loadAttrSet: %v", err)
	}
	ints, err := loaded.Ints("shape")
	if err != nil || len(ints) != 3 || ints[2] != 3 {
		t.Fatalf("Ints(shape) = (%v, %v)", ints, err)
	}
	floats, err := loaded.Floats("weights")
	if err != nil || len(floats) != 3 || floats[1] != 0.2 {
		t.Fatalf("Floats(weights) = (%v, %v)", floats, err)
	}
}

func TestAttrSetBytesVerbatim(t *testing.T) {
	a := newAttrSet(filepath.Join(t.TempDir(), "attr-v2"))
	payload := []byte{0x00, 0x01, 0x00, 0x02}
	if err := a.SetBytes("blob", payload); err != nil {
		t.Fatalf("SetBytes: %v", err)
	}
	got, err := a.Bytes("blob")
	if err != nil {
		t.Fatalf("Bytes: %v", err)
	}
	if len(got) != len(payload) {
		t.Fatalf("Bytes(blob) = %v, want %v (no NUL trimming)", got, payload)
	}
	for i := range payload {
		if got[i] != payload[i] {
			t.Fatalf("Bytes(blob)[%d] = %d, want %d", i, got[i], payload[i])
		}
	}
}

func TestAttrSetDeleteAndList(t *testing.T) {
	a := newAttrSet(filepath.Join(t.TempDir(), "attr-v2"))
	a.SetInt("a", 1)
	a.SetInt("b", 2)
	a.SetInt("c", 3)

	if err := a.Delete("b"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	got := a.List()
	want := []string{"a", "c"}
	if len(got) != len(want) || got[0] != want[0] || got[1] != want[1] {
		t.Fatalf("List() = %v, want %v", got, want)
	}

	if err := a.Delete("missing"); err != nil {
		t.Fatalf("Delete of an unset key should not error, got %v", err)
	}
}

func TestAttrSetGetMissingIsNotFound(t *testing.T) {
	a := newAttrSet(filepath.Join(t.TempDir(), "attr-v2"))
	if _, err := a.Int("nope"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestLoadAttrSetMissingFileIsEmpty(t *testing.T) {
	a, err := loadAttrSet(filepath.Join(t.TempDir(), "attr-v2"))
	if err != nil {
		t.Fatalf("loadAttrSet on a missing file: %v", err)
	}
	if len(a.List()) != 0 {
		t.Fatalf("expected an empty AttrSet, got %v", a.List())
	}
}
