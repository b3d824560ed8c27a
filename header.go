package bigfile

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/google/renameio"
)

// blockHeader is the in-memory form of a block's header file. NMEMB is
// carried as its own field even though it always equals Dtype.Nmemb(),
// because the on-disk grammar records it explicitly.
type blockHeader struct {
	Dtype     Dtype
	Nmemb     int
	Counts    []int64
	Checksums []uint64
}

func (h *blockHeader) size() int64 {
	var s int64
	for _, c := range h.Counts {
		s += c
	}
	return s
}

func headerLineValue(line, key string) (string, error) {
	prefix := key + ":"
	if !strings.HasPrefix(line, prefix) {
		return "", fmt.Errorf("%w: expected %q header line, got %q", ErrFormat, key, line)
	}
	return strings.TrimSpace(line[len(prefix):]), nil
}

func parseHeader(data []byte) (*blockHeader, error) {
	text := strings.TrimRight(string(data), "\n")
	if text == "" {
		return nil, fmt.Errorf("%w: empty header", ErrFormat)
	}
	lines := strings.Split(text, "\n")
	if len(lines) < 3 {
		return nil, fmt.Errorf("%w: header has only %d lines, need at least 3", ErrFormat, len(lines))
	}

	dtypeStr, err := headerLineValue(lines[0], "DTYPE")
	if err != nil {
		return nil, err
	}
	d, err := ParseDtype(dtypeStr)
	if err != nil {
		return nil, err
	}

	nmembStr, err := headerLineValue(lines[1], "NMEMB")
	if err != nil {
		return nil, err
	}
	nmemb, err := strconv.Atoi(nmembStr)
	if err != nil {
		return nil, fmt.Errorf("%w: bad NMEMB value %q", ErrFormat, nmembStr)
	}

	nfileStr, err := headerLineValue(lines[2], "Nfile")
	if err != nil {
		return nil, err
	}
	nfile, err := strconv.Atoi(nfileStr)
	if err != nil || nfile < 0 {
		return nil, fmt.Errorf("%w: bad Nfile value %q", ErrFormat, nfileStr)
	}

	if len(lines) != 3+nfile {
		return nil, fmt.Errorf("%w: header declares Nfile=%d but has %d per-file lines", ErrFormat, nfile, len(lines)-3)
	}

	h := &blockHeader{
		Dtype:     d,
		Nmemb:     nmemb,
		Counts:    make([]int64, nfile),
		Checksums: make([]uint64, nfile),
	}
	for i := 0; i < nfile; i++ {
		parts := strings.SplitN(lines[3+i], ":", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("%w: malformed per-file line %q", ErrFormat, lines[3+i])
		}
		cnt, err := strconv.ParseInt(strings.TrimSpace(parts[0]), 10, 64)
		if err != nil || cnt < 0 {
			return nil, fmt.Errorf("%w: bad count in per-file line %q", ErrFormat, lines[3+i])
		}
		chk, err := strconv.ParseUint(strings.TrimSpace(parts[1]), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: bad checksum in per-file line %q", ErrFormat, lines[3+i])
		}
		h.Counts[i] = cnt
		h.Checksums[i] = chk
	}
	return h, nil
}

func (h *blockHeader) marshal() []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "DTYPE: %s\n", h.Dtype.String())
	fmt.Fprintf(&b, "NMEMB: %d\n", h.Nmemb)
	fmt.Fprintf(&b, "Nfile: %d\n", len(h.Counts))
	for i := range h.Counts {
		fmt.Fprintf(&b, "%d   : %d\n", h.Counts[i], h.Checksums[i])
	}
	return []byte(b.String())
}

func readHeader(path string) (*blockHeader, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return nil, fmt.Errorf("%w: reading %s: %v", ErrIO, path, err)
	}
	return parseHeader(data)
}

// writeHeaderAtomic rewrites the whole header file via temp-file + rename,
// the same renameio-based approach attrset.go uses for attr-v2.
func writeHeaderAtomic(path string, h *blockHeader) error {
	if err := renameio.WriteFile(path, h.marshal(), 0o644); err != nil {
		return fmt.Errorf("%w: writing %s: %v", ErrIO, path, err)
	}
	return nil
}
