package bigfile_test

import (
	"errors"
	"testing"

	"github.com/KarpelesLab/bigfile"
)

func TestCreateFileRejectsExisting(t *testing.T) {
	dir := t.TempDir() + "/root"
	if _, err := bigfile.CreateFile(dir); err != nil {
		t.Fatalf("CreateFile: %v", err)
	}
	if _, err := bigfile.CreateFile(dir); !errors.Is(err, bigfile.ErrExists) {
		t.Fatalf("expected ErrExists on second CreateFile, got %v", err)
	}
}

func TestOpenFileMissingIsNotFound(t *testing.T) {
	if _, err := bigfile.OpenFile(t.TempDir() + "/missing"); !errors.Is(err, bigfile.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestListBlocksEmptyFile(t *testing.T) {
	f, err := bigfile.CreateFile(t.TempDir() + "/root")
	if err != nil {
		t.Fatalf("CreateFile: %v", err)
	}
	names, err := f.ListBlocks()
	if err != nil {
		t.Fatalf("ListBlocks: %v", err)
	}
	if len(names) != 0 {
		t.Fatalf("ListBlocks on a fresh file = %v, want []", names)
	}
}

func TestListBlocksNested(t *testing.T) {
	f, err := bigfile.CreateFile(t.TempDir() + "/root")
	if err != nil {
		t.Fatalf("CreateFile: %v", err)
	}
	d := bigfile.MustParseDtype("<f4")
	for _, name := range []string{"a", "group/b", "group/c"} {
		blk, err := f.Create(name, d, 4, 1)
		if err != nil {
			t.Fatalf("Create(%q): %v", name, err)
		}
		if err := blk.Close(); err != nil {
			t.Fatalf("Close(%q): %v", name, err)
		}
	}

	names, err := f.ListBlocks()
	if err != nil {
		t.Fatalf("ListBlocks: %v", err)
	}
	want := map[string]bool{"a": true, "group/b": true, "group/c": true}
	if len(names) != len(want) {
		t.Fatalf("ListBlocks = %v, want keys of %v", names, want)
	}
	for _, n := range names {
		if !want[n] {
			t.Fatalf("unexpected block name %q", n)
		}
	}
}

func TestCreateConflictingBlockFails(t *testing.T) {
	f, err := bigfile.CreateFile(t.TempDir() + "/root")
	if err != nil {
		t.Fatalf("CreateFile: %v", err)
	}
	d := bigfile.MustParseDtype("<f4")
	b, err := f.Create("arr", d, 8, 1)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	b.Close()

	if _, err := f.Create("arr", d, 8, 1); !errors.Is(err, bigfile.ErrExists) {
		t.Fatalf("expected ErrExists recreating a block, got %v", err)
	}
}

func TestCreateWithExplicitCounts(t *testing.T) {
	f, err := bigfile.CreateFile(t.TempDir() + "/root")
	if err != nil {
		t.Fatalf("CreateFile: %v", err)
	}
	d := bigfile.MustParseDtype("<i4")
	b, err := f.Create("shard", d, 10, 0, bigfile.WithCounts([]int64{3, 7}))
	if err != nil {
		t.Fatalf("Create with WithCounts: %v", err)
	}
	defer b.Close()
	if b.Nfile() != 2 {
		t.Fatalf("Nfile() = %d, want 2", b.Nfile())
	}
	if b.Size() != 10 {
		t.Fatalf("Size() = %d, want 10", b.Size())
	}
}

func TestOpenAfterFileCloseIsClosed(t *testing.T) {
	f, err := bigfile.CreateFile(t.TempDir() + "/root")
	if err != nil {
		t.Fatalf("CreateFile: %v", err)
	}
	d := bigfile.MustParseDtype("<f4")
	b, err := f.Create(".", d, 4, 1)
	if err != nil {
		t.Fatalf("Create(.): %v", err)
	}
	if err := b.Close(); err != nil {
		t.Fatalf("Close block: %v", err)
	}
	if err := f.Close(); err != nil {
		t.Fatalf("Close file: %v", err)
	}

	if _, err := f.Open("."); !errors.Is(err, bigfile.ErrClosed) {
		t.Fatalf("Open(.) after File.Close() = %v, want ErrClosed", err)
	}
	if _, err := f.ListBlocks(); !errors.Is(err, bigfile.ErrClosed) {
		t.Fatalf("ListBlocks after File.Close() = %v, want ErrClosed", err)
	}
}

func TestSubfile(t *testing.T) {
	f, err := bigfile.CreateFile(t.TempDir() + "/root")
	if err != nil {
		t.Fatalf("CreateFile: %v", err)
	}
	d := bigfile.MustParseDtype("<f4")
	b, err := f.Create("group/a", d, 4, 1)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	b.Close()

	sub, err := f.Subfile("group")
	if err != nil {
		t.Fatalf("Subfile: %v", err)
	}
	defer sub.Close()

	opened, err := sub.Open("a")
	if err != nil {
		t.Fatalf("Open through subfile: %v", err)
	}
	opened.Close()
}
