// Package bigfile implements an on-disk columnar container for large,
// typed, numeric datasets. A File is a directory tree of Blocks, each a
// single-dtype column striped across one or more physical files for
// parallel throughput; BigData composes same-length Blocks into a table
// view.
package bigfile

import (
	"fmt"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// File is an open handle on a BigFile root directory: a tree of Blocks
// addressed by slash-separated names.
type File struct {
	root   string
	closed bool
}

// CreateFile creates a new, empty BigFile root directory at path. It fails
// with ErrExists if path already exists.
func CreateFile(path string) (*File, error) {
	if _, err := os.Stat(path); err == nil {
		return nil, fmt.Errorf("%w: %s", ErrExists, path)
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("%w: statting %s: %v", ErrIO, path, err)
	}
	if err := os.MkdirAll(path, 0o755); err != nil {
		return nil, fmt.Errorf("%w: creating %s: %v", ErrIO, path, err)
	}
	log.Printf("bigfile: created file root %s", path)
	return &File{root: path}, nil
}

// OpenFile opens an existing BigFile root directory at path.
func OpenFile(path string) (*File, error) {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return nil, fmt.Errorf("%w: statting %s: %v", ErrIO, path, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%w: %s is not a directory", ErrFormat, path)
	}
	return &File{root: path}, nil
}

func (f *File) checkOpen() error {
	if f.closed {
		return fmt.Errorf("%w", ErrClosed)
	}
	return nil
}

// blockDir resolves a block name to its on-disk directory. The root block's
// name is ".", which resolves to the file root itself: there is no literal
// "." subdirectory.
func (f *File) blockDir(name string) (string, error) {
	name = strings.TrimSuffix(name, "/")
	if name == "" || name == "." {
		return f.root, nil
	}
	if strings.HasPrefix(name, "/") || strings.Contains(name, "..") {
		return "", fmt.Errorf("%w: invalid block name %q", ErrFormat, name)
	}
	return filepath.Join(f.root, filepath.FromSlash(name)), nil
}

func isHeaderDir(dir string) bool {
	_, err := os.Stat(filepath.Join(dir, "header"))
	return err == nil
}

// ListBlocks returns the names of every block reachable under the file
// root, sorted lexically. The root block is listed as "." when the root
// directory itself carries a header.
func (f *File) ListBlocks() ([]string, error) {
	if err := f.checkOpen(); err != nil {
		return nil, err
	}
	var names []string
	err := filepath.WalkDir(f.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return fmt.Errorf("%w: walking %s: %v", ErrIO, path, err)
		}
		if !d.IsDir() {
			return nil
		}
		rel, relErr := filepath.Rel(f.root, path)
		if relErr != nil {
			return fmt.Errorf("%w: %v", ErrIO, relErr)
		}
		if rel == "." {
			rel = ""
		}
		if rel != "" && strings.HasPrefix(filepath.Base(path), ".") {
			return filepath.SkipDir
		}
		if isHeaderDir(path) {
			if rel == "" {
				names = append(names, ".")
			} else {
				names = append(names, filepath.ToSlash(rel))
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(names)
	return names, nil
}

// Create creates a new block of the given dtype and total record count,
// striped evenly across nfile physical files unless WithCounts supplies an
// explicit per-file count vector.
func (f *File) Create(name string, d Dtype, size int64, nfile int, opts ...CreateOption) (*Block, error) {
	if err := f.checkOpen(); err != nil {
		return nil, err
	}
	cfg := applyCreateOptions(opts)

	var counts []int64
	var err error
	if cfg.counts != nil {
		counts = cfg.counts
		var sum int64
		for _, c := range counts {
			sum += c
		}
		if sum != size {
			return nil, fmt.Errorf("%w: explicit counts sum to %d, want size %d", ErrBounds, sum, size)
		}
		nfile = len(counts)
	} else {
		counts, err = evenCounts(size, nfile)
		if err != nil {
			return nil, err
		}
	}

	dir, err := f.blockDir(name)
	if err != nil {
		return nil, err
	}
	if _, err := os.Stat(filepath.Join(dir, "header")); err == nil {
		return nil, fmt.Errorf("%w: block %q", ErrExists, name)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("%w: creating %s: %v", ErrIO, dir, err)
	}

	h := &blockHeader{Dtype: d, Nmemb: d.Nmemb(), Counts: counts, Checksums: make([]uint64, nfile)}
	for i := 0; i < nfile; i++ {
		p := filepath.Join(dir, stripeFileName(i))
		fh, err := os.OpenFile(p, os.O_RDWR|os.O_CREATE, 0o644)
		if err != nil {
			return nil, fmt.Errorf("%w: creating %s: %v", ErrIO, p, err)
		}
		if err := fh.Truncate(counts[i] * int64(d.RecordSize())); err != nil {
			fh.Close()
			return nil, fmt.Errorf("%w: preallocating %s: %v", ErrIO, p, err)
		}
		fh.Close()
	}
	if err := writeHeaderAtomic(filepath.Join(dir, "header"), h); err != nil {
		return nil, err
	}

	log.Printf("bigfile: created block %q (%s, %d records across %d files)", name, d, size, nfile)
	return openBlockDir(dir, name)
}

// Open opens an existing block by name.
func (f *File) Open(name string) (*Block, error) {
	if err := f.checkOpen(); err != nil {
		return nil, err
	}
	dir, err := f.blockDir(name)
	if err != nil {
		return nil, err
	}
	return openBlockDir(dir, name)
}

// Subfile returns a File handle rooted at the subdirectory name within f,
// usable to address a group of blocks with shorter relative names.
func (f *File) Subfile(name string) (*File, error) {
	if err := f.checkOpen(); err != nil {
		return nil, err
	}
	dir, err := f.blockDir(name)
	if err != nil {
		return nil, err
	}
	if info, err := os.Stat(dir); err != nil || !info.IsDir() {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	return &File{root: dir}, nil
}

// Close marks the File handle closed. It holds no open file descriptors of
// its own; Blocks opened from it must be closed independently.
func (f *File) Close() error {
	f.closed = true
	return nil
}
