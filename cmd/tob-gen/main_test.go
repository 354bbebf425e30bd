// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"bytes"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-lpc/datalog"
	"github.com/go-lpc/datalog/tob"
)

func TestGenerate(t *testing.T) {
	tmp := t.TempDir()
	for _, tc := range []struct {
		name string
		cfg  config
	}{
		{"tob3-linear", config{typ: tob.TOB3, frames: 10, records: 4, stamp: 0xa5c3}},
		{"tob3-wrapped", config{typ: tob.TOB3, frames: 100, wrap: 37, records: 4, stamp: 0xa5c3}},
		{"tob2-wrapped", config{typ: tob.TOB2, frames: 20, wrap: 1, records: 3, stamp: 0x1234}},
		{"tob1", config{typ: tob.TOB1, frames: 5, records: 2}},
	} {
		t.Run(tc.name, func(t *testing.T) {
			buf := new(bytes.Buffer)
			err := generate(buf, tc.cfg)
			if err != nil {
				t.Fatalf("could not generate file: %+v", err)
			}
			fname := filepath.Join(tmp, tc.name+".dat")
			err = os.WriteFile(fname, buf.Bytes(), 0644)
			if err != nil {
				t.Fatalf("could not write file: %+v", err)
			}

			r := tob.New()
			err = r.Open(fname, "")
			if err != nil {
				t.Fatalf("could not open generated file: %+v", err)
			}
			defer r.Close()

			var (
				rec datalog.Record
				k   int64
			)
			for {
				err := r.ReadNextRecord(&rec)
				if errors.Is(err, io.EOF) {
					break
				}
				if err != nil {
					t.Fatalf("could not read record %d: %+v", k, err)
				}
				if got, want := rec.Time, start.Add(time.Duration(k)*time.Second); !got.Equal(want) {
					t.Fatalf("invalid time for record %d: got=%v, want=%v", k, got, want)
				}
				if tc.cfg.typ != tob.TOB2 {
					if got, want := rec.RecNo, k; got != want {
						t.Fatalf("invalid record number: got=%d, want=%d", got, want)
					}
				}
				count := rec.Values[len(rec.Values)-1]
				if got, want := count, k; got != want {
					t.Fatalf("invalid count: got=%v, want=%v", got, want)
				}
				k++
			}
			if got, want := k, int64(tc.cfg.frames*tc.cfg.records); got != want {
				t.Fatalf("invalid number of records: got=%d, want=%d", got, want)
			}
		})
	}
}

func TestGenerateErrors(t *testing.T) {
	for _, tc := range []struct {
		name string
		cfg  config
		want string
	}{
		{"no-frames", config{typ: tob.TOB3, records: 1}, "invalid number of frames 0"},
		{"no-records", config{typ: tob.TOB3, frames: 1}, "invalid number of records per frame 0"},
		{"wrap", config{typ: tob.TOB3, frames: 4, wrap: 4, records: 1}, "invalid wrap point 4 (frames=4)"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			err := generate(io.Discard, tc.cfg)
			if err == nil {
				t.Fatalf("expected an error")
			}
			if got, want := err.Error(), tc.want; got != want {
				t.Fatalf("invalid error:\ngot= %v\nwant=%v\n", got, want)
			}
		})
	}
}
