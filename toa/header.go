// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package toa

import (
	"bufio"
	"errors"
	"io"
	"strconv"

	"github.com/go-lpc/datalog/catalog"
	"golang.org/x/xerrors"
)

var errUnsupported = errors.New("toa: unsupported format")

// Format is one of the text file formats.
type Format uint8

const (
	TOA5   Format = iota + 1 // environment, names, units and processing lines
	TOACI1                   // short environment and names lines
)

func (f Format) String() string {
	switch f {
	case TOA5:
		return "TOA5"
	case TOACI1:
		return "TOACI1"
	}
	return "Format(" + strconv.Itoa(int(f)) + ")"
}

// ParseFormat returns the format designated by a format tag.
func ParseFormat(tag string) (Format, bool) {
	switch tag {
	case "TOA5":
		return TOA5, true
	case "TOACI1":
		return TOACI1, true
	}
	return 0, false
}

const maxHeaderSize = 1 << 20

// Header is the decoded header of a text file.
type Header struct {
	Format    Format
	Station   string
	Model     string
	Serial    string
	OS        string
	Program   string
	Signature string
	Table     string

	Fields []catalog.Field // declared fields, possibly without type

	Length int64 // size in bytes of the header region
}

// ReadHeader decodes the header of a text file.
func ReadHeader(r io.Reader) (Header, error) {
	var (
		hdr Header
		br  = bufio.NewReader(io.LimitReader(r, maxHeaderSize))
	)
	readLine := func(i int) ([]string, error) {
		line, err := br.ReadString('\n')
		if err != nil {
			if err == io.EOF {
				err = io.ErrUnexpectedEOF
			}
			return nil, xerrors.Errorf("toa: could not read header line #%d: %w", i+1, err)
		}
		hdr.Length += int64(len(line))
		cells, err := catalog.SplitLine(line)
		if err != nil {
			return nil, xerrors.Errorf("toa: could not parse header line #%d: %w", i+1, err)
		}
		return cells, nil
	}

	env, err := readLine(0)
	if err != nil {
		return hdr, err
	}
	format, ok := ParseFormat(env[0])
	if !ok {
		return hdr, xerrors.Errorf("toa: unknown format tag %q: %w", env[0], errUnsupported)
	}
	hdr.Format = format

	switch format {
	case TOA5:
		if len(env) < 8 {
			return hdr, xerrors.Errorf("toa: environment line has %d fields (min=8)", len(env))
		}
		hdr.Station = env[1]
		hdr.Model = env[2]
		hdr.Serial = env[3]
		hdr.OS = env[4]
		hdr.Program = env[5]
		hdr.Signature = env[6]
		hdr.Table = env[7]

		var lines [3][]string
		for i := range lines {
			lines[i], err = readLine(i + 1)
			if err != nil {
				return hdr, err
			}
		}
		hdr.Fields, err = catalog.Build(lines[0], lines[1], lines[2], nil)

	case TOACI1:
		if len(env) < 3 {
			return hdr, xerrors.Errorf("toa: environment line has %d fields (min=3)", len(env))
		}
		hdr.Station = env[1]
		hdr.Table = env[2]

		var names []string
		names, err = readLine(1)
		if err != nil {
			return hdr, err
		}
		hdr.Fields, err = catalog.Build(names, nil, nil, nil)
	}
	if err != nil {
		return hdr, xerrors.Errorf("toa: could not build table fields: %w", err)
	}
	return hdr, nil
}
