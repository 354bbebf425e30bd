// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package tob

import (
	"encoding/binary"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/go-lpc/datalog/catalog"
	"golang.org/x/xerrors"
)

// FrameData describes the content of a frame to encode.
type FrameData struct {
	Time    time.Time // time of the first record
	RecNo   uint32    // number of the first record (TOB3)
	Marker  uint16    // validation marker
	Flags   uint32    // footer flags
	Records [][]any   // record values, one slice of values per record
}

// Encoder writes binary data files.
// It is mostly used to generate synthetic files.
type Encoder struct {
	w   io.Writer
	hdr *Header
	buf []byte
	err error
}

// NewEncoder returns a new Encoder that writes a file described by hdr to w.
func NewEncoder(w io.Writer, hdr *Header) *Encoder {
	return &Encoder{
		w:   w,
		hdr: hdr,
	}
}

// WriteHeader writes the header lines and updates the header length.
func (enc *Encoder) WriteHeader() error {
	hdr := enc.hdr
	if err := hdr.init(); err != nil {
		return err
	}

	hdr.Length = 0
	env := []string{
		hdr.Type.String(), hdr.Station, hdr.Model, hdr.Serial,
		hdr.OS, hdr.Program, hdr.Signature, hdr.Created,
	}
	if hdr.Type == TOB1 {
		env[7] = hdr.Table
	}
	enc.writeLine(quoteAll(env))

	if hdr.Type.Framed() {
		enc.writeLine(strings.Join([]string{
			quote(hdr.Table),
			quote(hdr.Interval),
			strconv.FormatInt(hdr.FrameSize, 10),
			strconv.FormatInt(hdr.TableSize, 10),
			strconv.FormatUint(uint64(hdr.Stamp), 10),
			quote(hdr.Resolution),
			strconv.FormatInt(hdr.RingRecord, 10),
			quote(hdr.RemovalTime),
		}, ","))
	}

	var (
		names = make([]string, len(hdr.Fields))
		units = make([]string, len(hdr.Fields))
		procs = make([]string, len(hdr.Fields))
		types = make([]string, len(hdr.Fields))
	)
	for i, f := range hdr.Fields {
		names[i] = f.Name
		units[i] = f.Units
		procs[i] = f.Process
		types[i] = f.Type.String()
		if f.Type == catalog.ASCII {
			types[i] += "(" + strconv.Itoa(f.Width) + ")"
		}
	}
	enc.writeLine(quoteAll(names))
	enc.writeLine(quoteAll(units))
	enc.writeLine(quoteAll(procs))
	enc.writeLine(quoteAll(types))

	if enc.err != nil {
		return fmt.Errorf("tob: could not write header: %w", enc.err)
	}
	return nil
}

// WriteRecord writes one TOB1 record.
func (enc *Encoder) WriteRecord(values []any) error {
	if enc.hdr.Type != TOB1 {
		return xerrors.Errorf("tob: can not write bare records to a %v file", enc.hdr.Type)
	}
	enc.reserve(enc.hdr.RecordSize())
	err := encodeRecord(enc.hdr.Fields, enc.buf, values)
	if err != nil {
		return err
	}
	enc.write(enc.buf)
	if enc.err != nil {
		return fmt.Errorf("tob: could not write record: %w", enc.err)
	}
	return nil
}

// WriteFrame writes one TOB2/TOB3 frame.
func (enc *Encoder) WriteFrame(fd FrameData) error {
	p, err := EncodeFrame(enc.hdr, fd)
	if err != nil {
		return err
	}
	enc.write(p)
	if enc.err != nil {
		return fmt.Errorf("tob: could not write frame: %w", enc.err)
	}
	return nil
}

// EncodeFrame returns the raw bytes of a frame of a file described by hdr.
// A frame holds either exactly hdr.RecordsPerFrame() records or, when
// flagged as empty, none.
func EncodeFrame(hdr *Header, fd FrameData) ([]byte, error) {
	if !hdr.Type.Framed() {
		return nil, xerrors.Errorf("tob: %v files have no frames", hdr.Type)
	}
	if err := hdr.init(); err != nil {
		return nil, err
	}
	var (
		n    = hdr.RecordsPerFrame()
		rs   = hdr.RecordSize()
		hs   = hdr.Type.frameHeaderSize()
		le   = binary.LittleEndian
		p    = make([]byte, hdr.FrameSize)
		want = n
	)
	if fd.Flags&FlagEmpty != 0 {
		want = 0
	}
	if len(fd.Records) != want {
		return nil, xerrors.Errorf("tob: invalid number of records in frame (got=%d, want=%d)", len(fd.Records), want)
	}

	d := fd.Time.Sub(catalog.Epoch)
	if d < 0 {
		return nil, xerrors.Errorf("tob: frame time %v before epoch", fd.Time)
	}
	le.PutUint32(p[0:4], uint32(d/time.Second))
	le.PutUint32(p[4:8], uint32((d%time.Second)/hdr.tick))
	if hdr.Type == TOB3 {
		le.PutUint32(p[8:12], fd.RecNo)
	}
	for i, rec := range fd.Records {
		beg := hs + i*rs
		err := encodeRecord(hdr.Fields, p[beg:beg+rs], rec)
		if err != nil {
			return nil, xerrors.Errorf("tob: could not encode record #%d: %w", i, err)
		}
	}
	ftr := uint32(fd.Marker)<<16 | fd.Flags&^(0xffff0000)
	le.PutUint32(p[len(p)-frameFooterSize:], ftr)
	return p, nil
}

func encodeRecord(fields []catalog.Field, p []byte, values []any) error {
	if len(values) != len(fields) {
		return xerrors.Errorf("tob: invalid number of values (got=%d, want=%d)", len(values), len(fields))
	}
	beg := 0
	for i, f := range fields {
		end := beg + f.Size()
		err := catalog.Encode(f, p[beg:end], values[i])
		if err != nil {
			return err
		}
		beg = end
	}
	return nil
}

// init decodes the interval and resolution of a header built in memory.
func (hdr *Header) init() error {
	if !hdr.Type.Framed() {
		return nil
	}
	var err error
	hdr.interval, err = ParseInterval(hdr.Interval)
	if err != nil {
		return err
	}
	hdr.tick, err = ParseResolution(hdr.Resolution)
	if err != nil {
		return err
	}
	return hdr.validate()
}

func (enc *Encoder) writeLine(line string) {
	enc.write([]byte(line + "\r\n"))
	enc.hdr.Length += int64(len(line) + 2)
}

func (enc *Encoder) write(p []byte) {
	if enc.err != nil {
		return
	}
	_, enc.err = enc.w.Write(p)
}

func (enc *Encoder) reserve(n int) {
	if cap(enc.buf) < n {
		enc.buf = make([]byte, n)
	}
	enc.buf = enc.buf[:n]
}

func quote(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

func quoteAll(vs []string) string {
	o := make([]string, len(vs))
	for i, v := range vs {
		o[i] = quote(v)
	}
	return strings.Join(o, ",")
}
