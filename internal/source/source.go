// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package source gives random access to the bytes of a data file,
// either through a plain file descriptor or through a read-only memory map.
package source // import "github.com/go-lpc/datalog/internal/source"

import (
	"fmt"
	"io"
	"os"

	"github.com/go-lpc/datalog/internal/mmap"
)

// Source is an open data file.
type Source interface {
	io.ReaderAt
	io.Closer

	// Size returns the current size of the file in bytes.
	Size() (int64, error)
}

// Open opens the named file.
// When useMmap is set, the file content is memory-mapped; the
// returned Source then sees the file as it was at Open time.
func Open(fname string, useMmap bool) (Source, error) {
	if useMmap {
		h, err := mmap.Open(fname)
		if err != nil {
			return nil, err
		}
		return &mmapSource{h: h}, nil
	}

	f, err := os.Open(fname)
	if err != nil {
		return nil, fmt.Errorf("source: could not open %q: %w", fname, err)
	}
	return &fileSource{f: f}, nil
}

type fileSource struct {
	f *os.File
}

func (src *fileSource) ReadAt(p []byte, off int64) (int, error) {
	return src.f.ReadAt(p, off)
}

func (src *fileSource) Size() (int64, error) {
	fi, err := src.f.Stat()
	if err != nil {
		return 0, fmt.Errorf("source: could not stat %q: %w", src.f.Name(), err)
	}
	return fi.Size(), nil
}

func (src *fileSource) Close() error {
	return src.f.Close()
}

type mmapSource struct {
	h *mmap.Handle
}

func (src *mmapSource) ReadAt(p []byte, off int64) (int, error) {
	return src.h.ReadAt(p, off)
}

func (src *mmapSource) Size() (int64, error) {
	return int64(src.h.Len()), nil
}

func (src *mmapSource) Close() error {
	return src.h.Close()
}

// ReadFull reads exactly len(p) bytes at offset off.
// A short read at the end of the file is reported as io.ErrUnexpectedEOF,
// a read starting at (or past) the end of the file as io.EOF.
func ReadFull(r io.ReaderAt, p []byte, off int64) error {
	n, err := r.ReadAt(p, off)
	switch {
	case n == len(p):
		return nil
	case n == 0 && (err == nil || err == io.EOF):
		return io.EOF
	case err == nil || err == io.EOF:
		return io.ErrUnexpectedEOF
	default:
		return err
	}
}

var (
	_ Source = (*fileSource)(nil)
	_ Source = (*mmapSource)(nil)
)
