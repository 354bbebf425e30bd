// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package source

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
)

func TestOpen(t *testing.T) {
	fname := filepath.Join(t.TempDir(), "data.raw")
	err := os.WriteFile(fname, []byte("0123456789"), 0644)
	if err != nil {
		t.Fatalf("could not create file: %+v", err)
	}

	for _, tc := range []struct {
		name string
		mmap bool
	}{
		{name: "file"},
		{name: "mmap", mmap: true},
	} {
		t.Run(tc.name, func(t *testing.T) {
			src, err := Open(fname, tc.mmap)
			if err != nil {
				t.Fatalf("could not open source: %+v", err)
			}
			defer src.Close()

			size, err := src.Size()
			if err != nil {
				t.Fatalf("could not get size: %+v", err)
			}
			if got, want := size, int64(10); got != want {
				t.Fatalf("invalid size: got=%d, want=%d", got, want)
			}

			p := make([]byte, 4)
			err = ReadFull(src, p, 3)
			if err != nil {
				t.Fatalf("could not read: %+v", err)
			}
			if got, want := string(p), "3456"; got != want {
				t.Fatalf("invalid content: got=%q, want=%q", got, want)
			}

			err = ReadFull(src, p, 8)
			if !errors.Is(err, io.ErrUnexpectedEOF) {
				t.Fatalf("invalid short read error: %+v", err)
			}

			err = ReadFull(src, p, 10)
			if !errors.Is(err, io.EOF) {
				t.Fatalf("invalid EOF error: %+v", err)
			}

			err = src.Close()
			if err != nil {
				t.Fatalf("could not close source: %+v", err)
			}
		})
	}
}

func TestOpenMissing(t *testing.T) {
	for _, mmap := range []bool{false, true} {
		_, err := Open(filepath.Join(t.TempDir(), "missing"), mmap)
		if !errors.Is(err, os.ErrNotExist) {
			t.Fatalf("invalid error (mmap=%v): %+v", mmap, err)
		}
	}
}
