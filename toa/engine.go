// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package toa reads TOA5 and TOACI1 text data-logger files.
//
// Text files start with a few comma-separated header lines followed by one
// data line per record. Field types are not declared by the header: they
// are taken from an external schema or inferred from the first data line.
package toa // import "github.com/go-lpc/datalog/toa"

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"strings"
	"time"

	"github.com/go-lpc/datalog"
	"github.com/go-lpc/datalog/catalog"
	"github.com/go-lpc/datalog/internal/hibernate"
	"github.com/go-lpc/datalog/internal/source"
	"go.uber.org/zap"
	"golang.org/x/xerrors"
)

const chunkSize = 4096

// Engine reads text data files.
// Engine is not safe for concurrent use.
type Engine struct {
	cfg  datalog.Config
	msg  *zap.Logger
	path string

	state datalog.State
	src   source.Source
	hdr   Header
	sig   uint16
	typed bool // whether all fields have a type

	ts, recno int // indices of the TIMESTAMP and RECORD fields

	pos int64 // offset of the next line to read

	br    *bufio.Reader
	brOff int64 // offset of the next byte buffered by br

	snap hibernate.Snapshot
}

// New returns a new, closed, Engine.
func New(opts ...datalog.Option) *Engine {
	cfg := datalog.NewConfig(opts...)
	return &Engine{
		cfg: cfg,
		msg: cfg.Logger.Named("toa"),
	}
}

// Open opens the named file and positions the engine at the first data line.
// schema optionally names a JSON table definition giving the field types.
func (e *Engine) Open(path, schema string) error {
	if e.state != datalog.Closed {
		_ = e.Close()
	}

	src, err := source.Open(path, e.cfg.Mmap)
	if err != nil {
		return datalog.NewError("open", path, datalog.ErrCannotOpen, err)
	}
	e.path = path
	err = e.open(src, schema)
	if err != nil {
		_ = src.Close()
		e.reset()
		return err
	}
	return nil
}

func (e *Engine) open(src source.Source, schema string) error {
	size, err := src.Size()
	if err != nil {
		return datalog.NewError("open", e.path, datalog.ErrCannotOpen, err)
	}
	hdr, err := ReadHeader(io.NewSectionReader(src, 0, size))
	if err != nil {
		kind := datalog.ErrCorruptFile
		if errors.Is(err, errUnsupported) {
			kind = datalog.ErrUnsupportedFormat
		}
		return datalog.NewError("open", e.path, kind, err)
	}

	if schema != "" {
		sc, err := catalog.LoadSchema(schema)
		if err != nil {
			return datalog.NewError("open", schema, datalog.ErrCannotOpen, err)
		}
		fields, missing := sc.Resolve(hdr.Fields)
		hdr.Fields = catalog.Expand(fields)
		if len(missing) > 0 {
			e.msg.Debug("fields missing from schema",
				zap.String("path", e.path),
				zap.Strings("fields", missing),
			)
		}
	}

	sig, err := hibernate.HeaderSignature(src, hdr.Length)
	if err != nil {
		return datalog.NewError("open", e.path, datalog.ErrCannotOpen, err)
	}

	e.src = src
	e.hdr = hdr
	e.sig = sig
	e.state = datalog.Opened
	e.pos = hdr.Length
	e.typed = typed(hdr.Fields)
	e.ts = e.fieldIndex("TIMESTAMP")
	e.recno = e.fieldIndex("RECORD")

	if !e.typed {
		line, _, err := e.line(e.pos)
		if err == nil {
			toks, err := catalog.SplitRaw(line)
			if err == nil {
				e.infer(toks)
			}
		}
	}

	e.msg.Debug("opened",
		zap.String("path", e.path),
		zap.Stringer("format", hdr.Format),
		zap.String("table", hdr.Table),
		zap.Int64("header", hdr.Length),
		zap.Int("fields", len(hdr.Fields)),
		zap.Bool("typed", e.typed),
	)
	return nil
}

func typed(fields []catalog.Field) bool {
	for _, f := range fields {
		if f.Type == catalog.Unknown {
			return false
		}
	}
	return true
}

func (e *Engine) infer(row []catalog.Token) {
	e.hdr.Fields = catalog.Infer(e.hdr.Fields, row)
	e.typed = true
	e.msg.Debug("types inferred", zap.String("path", e.path))
}

func (e *Engine) fieldIndex(name string) int {
	for i, f := range e.hdr.Fields {
		if strings.EqualFold(f.Name, name) {
			return i
		}
	}
	return -1
}

func (e *Engine) reset() {
	*e = Engine{
		cfg: e.cfg,
		msg: e.msg,
	}
}

// Close releases the file and discards all state.
func (e *Engine) Close() error {
	var err error
	if e.src != nil {
		err = e.src.Close()
	}
	e.reset()
	if err != nil {
		return fmt.Errorf("toa: could not close file: %w", err)
	}
	return nil
}

// Header returns the decoded header of the opened file.
func (e *Engine) Header() Header {
	hdr := e.hdr
	hdr.Fields = catalog.Clone(e.hdr.Fields)
	return hdr
}

func (e *Engine) Table() string           { return e.hdr.Table }
func (e *Engine) Fields() []catalog.Field { return catalog.Clone(e.hdr.Fields) }
func (e *Engine) State() datalog.State    { return e.state }
func (e *Engine) HeaderSignature() uint16 { return e.sig }
func (e *Engine) DataOffset() int64       { return e.pos }

func (e *Engine) errState(op string) error {
	return datalog.NewError(op, e.path, datalog.ErrNotInitialized, nil)
}

// DataLength returns the size in bytes of the data region.
func (e *Engine) DataLength() int64 {
	if e.src == nil {
		return 0
	}
	size, err := e.src.Size()
	if err != nil || size < e.hdr.Length {
		return 0
	}
	return size - e.hdr.Length
}

// line returns the complete line starting at off and the offset of the
// following line.
func (e *Engine) line(off int64) (string, int64, error) {
	if e.br == nil || e.brOff != off {
		e.br = bufio.NewReader(io.NewSectionReader(e.src, off, math.MaxInt64-off))
		e.brOff = off
	}
	line, err := e.br.ReadString('\n')
	switch {
	case err == nil:
	case errors.Is(err, io.EOF):
		// incomplete line: read it again once completed.
		e.br = nil
		return "", off, io.EOF
	default:
		e.br = nil
		return "", off, err
	}
	e.brOff += int64(len(line))
	return line, e.brOff, nil
}

// ReadNextRecord reads the next data line into dst.
func (e *Engine) ReadNextRecord(dst *datalog.Record) error {
	if e.state != datalog.Opened {
		return e.errState("read")
	}
	for {
		line, next, err := e.line(e.pos)
		switch {
		case err == nil:
		case errors.Is(err, io.EOF):
			return io.EOF
		default:
			return xerrors.Errorf("toa: could not read line at offset %d: %w", e.pos, err)
		}
		off := e.pos
		e.pos = next
		if strings.TrimSpace(line) == "" {
			continue
		}
		return e.parse(dst, off, line)
	}
}

func (e *Engine) parse(dst *datalog.Record, off int64, line string) error {
	toks, err := catalog.SplitRaw(line)
	if err != nil {
		return e.invalid(off, err)
	}
	if len(toks) != len(e.hdr.Fields) {
		return e.invalid(off, xerrors.Errorf(
			"toa: invalid number of values (got=%d, want=%d)",
			len(toks), len(e.hdr.Fields),
		))
	}
	if !e.typed {
		e.infer(toks)
	}

	dst.Reset()
	dst.Offset = off
	dst.RecNo = -1
	dst.Table = e.hdr.Table
	dst.Raw = append(dst.Raw, strings.TrimRight(line, "\r\n")...)
	for i, f := range e.hdr.Fields {
		v, err := catalog.ParseText(f, toks[i].Value, e.cfg.Float64)
		if err != nil {
			return e.invalid(off, err)
		}
		dst.Values = append(dst.Values, v)
	}

	if e.ts >= 0 {
		if t, ok := dst.Values[e.ts].(time.Time); ok {
			dst.Time = t
		}
	}
	if e.recno >= 0 {
		switch v := dst.Values[e.recno].(type) {
		case int64:
			dst.RecNo = v
		case uint64:
			dst.RecNo = int64(v)
		}
	}
	return nil
}

func (e *Engine) invalid(off int64, err error) error {
	e.msg.Debug("invalid line",
		zap.String("path", e.path),
		zap.Int64("offset", off),
		zap.Error(err),
	)
	return datalog.NewError("read", e.path, datalog.ErrInvalidRecord, err)
}

// GenerateIndex reads all the lines from the current position and returns
// the location of their records. Invalid lines are skipped.
func (e *Engine) GenerateIndex(ctx context.Context) ([]datalog.IndexEntry, error) {
	if e.state != datalog.Opened {
		return nil, e.errState("index")
	}

	var (
		idx []datalog.IndexEntry
		rec datalog.Record
	)
	for {
		if err := ctx.Err(); err != nil {
			return idx, err
		}
		err := e.ReadNextRecord(&rec)
		switch {
		case err == nil:
			idx = append(idx, datalog.IndexEntry{
				Offset: rec.Offset,
				Time:   rec.Time,
				RecNo:  rec.RecNo,
				Table:  rec.Table,
			})
		case errors.Is(err, io.EOF):
			return idx, nil
		case errors.Is(err, datalog.ErrInvalidRecord):
			continue
		default:
			return idx, err
		}
	}
}

// lastNewline returns the offset of the last newline of the data region
// located before offset before, or -1.
func (e *Engine) lastNewline(before int64) (int64, error) {
	buf := make([]byte, chunkSize)
	end := before
	for end > e.hdr.Length {
		beg := end - chunkSize
		if beg < e.hdr.Length {
			beg = e.hdr.Length
		}
		p := buf[:end-beg]
		err := source.ReadFull(e.src, p, beg)
		if err != nil {
			return -1, xerrors.Errorf("toa: could not read data at offset %d: %w", beg, err)
		}
		if i := bytes.LastIndexByte(p, '\n'); i >= 0 {
			return beg + int64(i), nil
		}
		end = beg
	}
	return -1, nil
}

// lineStart returns the offset of the line holding the byte at offset off.
func (e *Engine) lineStart(off int64) (int64, error) {
	nl, err := e.lastNewline(off)
	if err != nil {
		return 0, err
	}
	if nl < 0 {
		return e.hdr.Length, nil
	}
	return nl + 1, nil
}

// Seek positions the engine at the line starting at offset or, when offset
// falls within a line, at the start of the next line. With searchPrevious,
// the engine moves back to the start of the line holding offset.
func (e *Engine) Seek(offset int64, searchPrevious bool) error {
	if e.state != datalog.Opened {
		return e.errState("seek")
	}
	if offset <= e.hdr.Length {
		e.pos = e.hdr.Length
		return nil
	}

	start, err := e.lineStart(offset)
	if err != nil {
		return err
	}
	if start == offset || searchPrevious {
		e.pos = start
		return nil
	}

	_, next, err := e.line(start)
	switch {
	case err == nil:
		e.pos = next
	case errors.Is(err, io.EOF):
		// offset falls within the last, incomplete, line.
		e.pos = start
	default:
		return xerrors.Errorf("toa: could not read line at offset %d: %w", start, err)
	}
	return nil
}

// SeekToOldest positions the engine at the first data line.
func (e *Engine) SeekToOldest() (int64, error) {
	if e.state != datalog.Opened {
		return 0, e.errState("seek")
	}
	e.pos = e.hdr.Length
	return e.pos, nil
}

// SeekToNewest positions the engine at the last complete data line.
func (e *Engine) SeekToNewest() (int64, error) {
	if e.state != datalog.Opened {
		return 0, e.errState("seek")
	}
	size, err := e.src.Size()
	if err != nil {
		return 0, xerrors.Errorf("toa: could not stat file: %w", err)
	}
	nl, err := e.lastNewline(size)
	if err != nil {
		return 0, err
	}
	if nl < 0 {
		e.pos = e.hdr.Length
		return e.pos, nil
	}
	e.pos, err = e.lineStart(nl)
	if err != nil {
		return 0, err
	}
	return e.pos, nil
}

// Hibernate releases the file, keeping the fingerprints needed to
// validate a later WakeUp.
func (e *Engine) Hibernate() error {
	switch e.state {
	case datalog.Hibernated:
		return nil
	case datalog.Closed:
		return e.errState("hibernate")
	}

	size, err := e.src.Size()
	if err != nil {
		return xerrors.Errorf("toa: could not stat file: %w", err)
	}
	snap, err := hibernate.Take(e.src, size, e.hdr.Length, e.pos)
	if err != nil {
		return xerrors.Errorf("toa: could not take snapshot: %w", err)
	}

	err = e.src.Close()
	e.snap = snap
	e.src = nil
	e.br = nil
	e.state = datalog.Hibernated
	e.msg.Debug("hibernated",
		zap.String("path", e.path),
		zap.Int64("offset", snap.Offset),
	)
	if err != nil {
		return fmt.Errorf("toa: could not close file: %w", err)
	}
	return nil
}

// WakeUp reacquires the file released by Hibernate.
func (e *Engine) WakeUp() (resumed, overwritten bool, err error) {
	switch e.state {
	case datalog.Opened:
		return true, false, nil
	case datalog.Closed:
		return false, false, e.errState("wake")
	}

	src, err := source.Open(e.path, e.cfg.Mmap)
	if err != nil {
		return false, false, datalog.NewError("wake", e.path, datalog.ErrCannotOpen, err)
	}
	size, err := src.Size()
	if err != nil {
		_ = src.Close()
		return false, false, datalog.NewError("wake", e.path, datalog.ErrCannotOpen, err)
	}
	verdict, err := e.snap.Check(src, size)
	if err != nil {
		_ = src.Close()
		return false, false, xerrors.Errorf("toa: could not check file: %w", err)
	}
	e.msg.Debug("woken up",
		zap.String("path", e.path),
		zap.Stringer("verdict", verdict),
	)

	switch verdict {
	case hibernate.HeaderChanged:
		_ = src.Close()
		e.reset()
		return false, false, nil
	case hibernate.Overwritten:
		e.src = src
		e.state = datalog.Opened
		e.pos = e.hdr.Length
		return true, true, nil
	}

	e.src = src
	e.state = datalog.Opened
	e.pos = e.hdr.Length
	if e.snap.Offset > 0 {
		e.pos = e.snap.Offset
	}
	return true, false, nil
}

var _ datalog.Reader = (*Engine)(nil)
