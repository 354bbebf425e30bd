// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package dispatch selects the engine able to read a data file.
package dispatch // import "github.com/go-lpc/datalog/dispatch"

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/go-lpc/datalog"
	"github.com/go-lpc/datalog/tob"
	"github.com/go-lpc/datalog/toa"
)

// sniffSize is the number of bytes inspected to find the format tag.
const sniffSize = 64

// Sniff returns the format tag of the named file, e.g. "TOB3" or "TOA5".
func Sniff(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", datalog.NewError("sniff", path, datalog.ErrCannotOpen, err)
	}
	defer f.Close()

	tag, err := sniff(f)
	if err != nil {
		return "", datalog.NewError("sniff", path, datalog.ErrUnsupportedFormat, err)
	}
	return tag, nil
}

func sniff(r io.Reader) (string, error) {
	br := bufio.NewReaderSize(io.LimitReader(r, sniffSize), sniffSize)
	cell, err := br.ReadString(',')
	if err != nil && err != io.EOF {
		return "", fmt.Errorf("dispatch: could not read format tag: %w", err)
	}
	if i := strings.IndexAny(cell, "\r\n"); i >= 0 {
		cell = cell[:i]
	}
	tag := strings.Trim(strings.TrimSuffix(cell, ","), `"`)
	if _, ok := engines[tag]; !ok {
		return "", fmt.Errorf("dispatch: unknown format tag %q", tag)
	}
	return tag, nil
}

var engines = map[string]func(opts ...datalog.Option) datalog.Reader{
	"TOB1":   newTOB,
	"TOB2":   newTOB,
	"TOB3":   newTOB,
	"TOA5":   newTOA,
	"TOACI1": newTOA,
}

func newTOB(opts ...datalog.Option) datalog.Reader { return tob.New(opts...) }
func newTOA(opts ...datalog.Option) datalog.Reader { return toa.New(opts...) }

// New returns a closed engine for files with the given format tag.
func New(tag string, opts ...datalog.Option) (datalog.Reader, error) {
	f, ok := engines[tag]
	if !ok {
		return nil, datalog.NewError("new", "", datalog.ErrUnsupportedFormat, fmt.Errorf("dispatch: unknown format tag %q", tag))
	}
	return f(opts...), nil
}

// Open sniffs the format of the named file and returns an engine opened
// on it. schema optionally names an external table definition.
func Open(path, schema string, opts ...datalog.Option) (datalog.Reader, error) {
	tag, err := Sniff(path)
	if err != nil {
		return nil, err
	}
	r, err := New(tag, opts...)
	if err != nil {
		return nil, err
	}
	err = r.Open(path, schema)
	if err != nil {
		return nil, err
	}
	return r, nil
}
