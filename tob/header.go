// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package tob

import (
	"bufio"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/go-lpc/datalog/catalog"
	"golang.org/x/xerrors"
)

// FileType is one of the binary sub-variants.
type FileType uint8

const (
	TOB1 FileType = iota + 1 // sequential records, no validation markers
	TOB2                     // frames with validation markers, 8-byte frame header
	TOB3                     // frames with validation markers, 12-byte frame header
)

func (ft FileType) String() string {
	switch ft {
	case TOB1:
		return "TOB1"
	case TOB2:
		return "TOB2"
	case TOB3:
		return "TOB3"
	}
	return "FileType(" + strconv.Itoa(int(ft)) + ")"
}

// ParseFileType returns the file type designated by a format tag.
func ParseFileType(tag string) (FileType, bool) {
	switch tag {
	case "TOB1":
		return TOB1, true
	case "TOB2":
		return TOB2, true
	case "TOB3":
		return TOB3, true
	}
	return 0, false
}

// Framed reports whether files of that type store validated frames.
func (ft FileType) Framed() bool {
	return ft == TOB2 || ft == TOB3
}

func (ft FileType) frameHeaderSize() int {
	switch ft {
	case TOB2:
		return 8
	case TOB3:
		return 12
	}
	return 0
}

const (
	frameFooterSize = 4

	maxHeaderSize = 1 << 20
	minEnvFields  = 8
	minDecFields  = 6
)

// Header is the decoded header of a binary file.
type Header struct {
	Type      FileType
	Station   string
	Model     string
	Serial    string
	OS        string
	Program   string
	Signature string
	Created   string // creation time (TOB2, TOB3)

	Table       string
	Interval    string // record interval, e.g. "1 SEC"
	FrameSize   int64  // size of a frame in bytes
	TableSize   int64  // number of frames allocated
	Stamp       uint16 // validation stamp
	Resolution  string // sub-second resolution, e.g. "Sec100Usec"
	RingRecord  int64
	RemovalTime string

	Fields []catalog.Field

	Length int64 // size in bytes of the header region

	interval time.Duration
	tick     time.Duration
}

// RecordSize returns the size in bytes of a record.
func (hdr *Header) RecordSize() int {
	return catalog.RecordSize(hdr.Fields)
}

// RecordsPerFrame returns the number of records held by a full frame.
func (hdr *Header) RecordsPerFrame() int {
	rs := hdr.RecordSize()
	if rs == 0 || !hdr.Type.Framed() {
		return 0
	}
	return (int(hdr.FrameSize) - hdr.Type.frameHeaderSize() - frameFooterSize) / rs
}

// FrameSizeFor returns the size in bytes of a frame holding n records.
func (hdr *Header) FrameSizeFor(n int) int64 {
	return int64(hdr.Type.frameHeaderSize() + n*hdr.RecordSize() + frameFooterSize)
}

func (hdr *Header) nlines() int {
	if hdr.Type == TOB1 {
		return 5
	}
	return 6
}

// ReadHeader decodes the header of a binary file.
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
			return nil, xerrors.Errorf("tob: could not read header line #%d: %w", i+1, err)
		}
		hdr.Length += int64(len(line))
		cells, err := catalog.SplitLine(line)
		if err != nil {
			return nil, xerrors.Errorf("tob: could not parse header line #%d: %w", i+1, err)
		}
		return cells, nil
	}

	env, err := readLine(0)
	if err != nil {
		return hdr, err
	}
	typ, ok := ParseFileType(env[0])
	if !ok {
		return hdr, xerrors.Errorf("tob: unknown format tag %q: %w", env[0], errUnsupported)
	}
	hdr.Type = typ
	if len(env) < minEnvFields {
		return hdr, xerrors.Errorf("tob: environment line has %d fields (min=%d)", len(env), minEnvFields)
	}
	hdr.Station = env[1]
	hdr.Model = env[2]
	hdr.Serial = env[3]
	hdr.OS = env[4]
	hdr.Program = env[5]
	hdr.Signature = env[6]
	switch typ {
	case TOB1:
		hdr.Table = env[7]
	default:
		hdr.Created = env[7]
	}

	if typ.Framed() {
		dec, err := readLine(1)
		if err != nil {
			return hdr, err
		}
		err = hdr.parseDecode(dec)
		if err != nil {
			return hdr, err
		}
	}

	var lines [4][]string
	for i := range lines {
		lines[i], err = readLine(hdr.nlines() - 4 + i)
		if err != nil {
			return hdr, err
		}
	}
	hdr.Fields, err = catalog.Build(lines[0], lines[1], lines[2], lines[3])
	if err != nil {
		return hdr, xerrors.Errorf("tob: could not build table fields: %w", err)
	}

	err = hdr.validate()
	if err != nil {
		return hdr, err
	}
	return hdr, nil
}

func (hdr *Header) parseDecode(dec []string) error {
	if len(dec) < minDecFields {
		return xerrors.Errorf("tob: decode line has %d fields (min=%d)", len(dec), minDecFields)
	}
	var err error
	hdr.Table = dec[0]
	hdr.Interval = dec[1]
	hdr.interval, err = ParseInterval(dec[1])
	if err != nil {
		return err
	}
	hdr.FrameSize, err = strconv.ParseInt(strings.TrimSpace(dec[2]), 10, 64)
	if err != nil {
		return xerrors.Errorf("tob: invalid frame size %q: %w", dec[2], err)
	}
	hdr.TableSize, err = strconv.ParseInt(strings.TrimSpace(dec[3]), 10, 64)
	if err != nil {
		return xerrors.Errorf("tob: invalid table size %q: %w", dec[3], err)
	}
	stamp, err := strconv.ParseUint(strings.TrimSpace(dec[4]), 10, 16)
	if err != nil {
		return xerrors.Errorf("tob: invalid validation stamp %q: %w", dec[4], err)
	}
	hdr.Stamp = uint16(stamp)
	hdr.Resolution = dec[5]
	hdr.tick, err = ParseResolution(dec[5])
	if err != nil {
		return err
	}
	if len(dec) > 6 && dec[6] != "" {
		hdr.RingRecord, err = strconv.ParseInt(strings.TrimSpace(dec[6]), 10, 64)
		if err != nil {
			return xerrors.Errorf("tob: invalid ring record %q: %w", dec[6], err)
		}
	}
	if len(dec) > 7 {
		hdr.RemovalTime = dec[7]
	}
	return nil
}

func (hdr *Header) validate() error {
	rs := hdr.RecordSize()
	for _, f := range hdr.Fields {
		if f.Size() == 0 {
			return xerrors.Errorf("tob: field %q has no binary type", f.Name)
		}
	}
	if !hdr.Type.Framed() {
		return nil
	}
	switch {
	case hdr.TableSize < 0:
		return xerrors.Errorf("tob: invalid table size %d", hdr.TableSize)
	case hdr.FrameSize < int64(hdr.Type.frameHeaderSize()+frameFooterSize+rs):
		return xerrors.Errorf(
			"tob: frame size %d too small for record size %d",
			hdr.FrameSize, rs,
		)
	}
	return nil
}

var intervalUnits = map[string]time.Duration{
	"NSEC": time.Nanosecond,
	"USEC": time.Microsecond,
	"MSEC": time.Millisecond,
	"SEC":  time.Second,
	"MIN":  time.Minute,
	"HR":   time.Hour,
	"DAY":  24 * time.Hour,
}

// ParseInterval decodes a record interval such as "100 MSEC".
// A zero interval designates event-driven tables.
func ParseInterval(v string) (time.Duration, error) {
	toks := strings.Fields(v)
	if len(toks) != 2 {
		return 0, xerrors.Errorf("tob: invalid record interval %q", v)
	}
	n, err := strconv.ParseInt(toks[0], 10, 64)
	if err != nil || n < 0 {
		return 0, xerrors.Errorf("tob: invalid record interval %q", v)
	}
	unit, ok := intervalUnits[strings.ToUpper(toks[1])]
	if !ok {
		return 0, xerrors.Errorf("tob: invalid record interval unit %q", v)
	}
	return time.Duration(n) * unit, nil
}

// ParseResolution decodes a sub-second resolution such as "Sec100Usec"
// into the duration of one sub-second tick.
func ParseResolution(v string) (time.Duration, error) {
	s := strings.TrimSpace(v)
	if !strings.HasPrefix(s, "Sec") {
		return 0, xerrors.Errorf("tob: invalid frame time resolution %q", v)
	}
	s = strings.TrimPrefix(s, "Sec")
	if s == "" {
		return time.Second, nil
	}
	i := 0
	for i < len(s) && '0' <= s[i] && s[i] <= '9' {
		i++
	}
	n := int64(1)
	if i > 0 {
		var err error
		n, err = strconv.ParseInt(s[:i], 10, 64)
		if err != nil || n < 1 {
			return 0, xerrors.Errorf("tob: invalid frame time resolution %q", v)
		}
	}
	var unit time.Duration
	switch strings.ToUpper(s[i:]) {
	case "NSEC":
		unit = time.Nanosecond
	case "USEC":
		unit = time.Microsecond
	case "MSEC":
		unit = time.Millisecond
	default:
		return 0, xerrors.Errorf("tob: invalid frame time resolution %q", v)
	}
	return time.Duration(n) * unit, nil
}
