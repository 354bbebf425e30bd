// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package tob reads TOB1, TOB2 and TOB3 binary data-logger files.
//
// TOB2 and TOB3 files store records in a ring of fixed-size frames.
// Each frame ends with a validation marker equal to the file stamp or to
// its complement, the two values alternating every time the logger wraps
// around the ring. The Engine uses these markers to locate the oldest and
// newest frames, to detect stale or corrupted frames and to resynchronise
// on frame boundaries.
package tob // import "github.com/go-lpc/datalog/tob"

import (
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

var (
	errUnsupported  = errors.New("tob: unsupported format")
	errInvalidFrame = errors.New("tob: invalid frame")
	errStale        = errors.New("tob: frame from previous write epoch")
)

// cursor is the read position of an Engine.
type cursor struct {
	pos   int64  // offset of the current frame (TOB2/TOB3) or record (TOB1)
	rec   int    // index of the next record within the current frame
	epoch uint16 // marker of the frames being read
	known bool   // whether epoch is known
}

// Engine reads binary data files.
// Engine is not safe for concurrent use.
type Engine struct {
	cfg  datalog.Config
	msg  *zap.Logger
	path string

	state datalog.State
	src   source.Source
	hdr   Header
	sig   uint16
	ring  *ring // nil for TOB1 files

	at    cursor
	frame *Frame
	slots []slot
	buf   []byte

	// indices of the SECONDS, NANOSECONDS and RECORD fields of TOB1 files.
	sec, nsec, recno int

	snap  hibernate.Snapshot
	saved cursor
}

// New returns a new, closed, Engine.
func New(opts ...datalog.Option) *Engine {
	cfg := datalog.NewConfig(opts...)
	return &Engine{
		cfg: cfg,
		msg: cfg.Logger.Named("tob"),
	}
}

// Open opens the named file and positions the engine at the oldest record.
// schema optionally names a JSON table definition completing the shapes,
// units and processing of the header fields.
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
		e.applySchema(&hdr, sc)
	}

	sig, err := hibernate.HeaderSignature(src, hdr.Length)
	if err != nil {
		return datalog.NewError("open", e.path, datalog.ErrCannotOpen, err)
	}

	e.src = src
	e.hdr = hdr
	e.sig = sig
	e.state = datalog.Opened
	e.ring = nil
	if hdr.Type.Framed() {
		e.ring = newRing(&e.hdr, src)
	}
	e.sec = e.fieldIndex("SECONDS")
	e.nsec = e.fieldIndex("NANOSECONDS")
	e.recno = e.fieldIndex("RECORD")

	e.msg.Debug("opened",
		zap.String("path", e.path),
		zap.Stringer("type", hdr.Type),
		zap.String("table", hdr.Table),
		zap.Int64("header", hdr.Length),
		zap.Int("fields", len(hdr.Fields)),
	)

	_, err = e.SeekToOldest()
	switch {
	case err == nil:
	case errors.Is(err, datalog.ErrNoValidFrames):
		e.msg.Debug("no valid frame", zap.String("path", e.path))
		e.at = cursor{pos: hdr.Length}
	default:
		return err
	}
	return nil
}

// applySchema completes the header fields with the schema definitions.
// Binary types are fixed by the header: the schema only contributes
// shapes, units and processing.
// A string column declared as a whole array by the schema is split into
// one cell per array element, sharing the column width evenly.
func (e *Engine) applySchema(hdr *Header, sc *catalog.Schema) {
	fields, missing := sc.Resolve(hdr.Fields)
	for i, f := range fields {
		var (
			cur   = &hdr.Fields[i]
			whole = f.Cell == 0 && f.Type.IsString() && f.Cells() > 1
		)
		if f.Type != cur.Type || (f.Width != cur.Width && !whole) {
			e.msg.Debug("schema type ignored",
				zap.String("field", cur.Name),
				zap.Stringer("header", cur.Type),
				zap.Stringer("schema", f.Type),
			)
		}
		cur.Dims = f.Dims
		cur.Cell = f.Cell
		cur.Units = f.Units
		cur.Process = f.Process

		n := cur.Cells()
		if cur.Cell != 0 || !cur.Type.IsString() || n <= 1 {
			continue
		}
		if cur.Width%n != 0 {
			e.msg.Debug("string array does not fit its column",
				zap.String("field", cur.Name),
				zap.Int("width", cur.Width),
				zap.Int("cells", n),
			)
			cur.Dims = nil
			continue
		}
		cur.Width /= n
	}
	hdr.Fields = catalog.Expand(hdr.Fields)
	if len(missing) > 0 {
		e.msg.Debug("fields missing from schema", zap.Strings("fields", missing))
	}
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
		return fmt.Errorf("tob: could not close file: %w", err)
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

func (e *Engine) opened() bool      { return e.state == datalog.Opened }
func (e *Engine) hibernated() bool  { return e.state == datalog.Hibernated }
func (e *Engine) framed() bool      { return e.ring != nil }
func (e *Engine) recordSize() int64 { return int64(e.hdr.RecordSize()) }

func (e *Engine) setCursor(at cursor) {
	e.at = at
	e.frame = nil
	e.slots = nil
}

func (e *Engine) errState(op string) error {
	return datalog.NewError(op, e.path, datalog.ErrNotInitialized, nil)
}

func (e *Engine) invalid(err error) error {
	return datalog.NewError("read", e.path, datalog.ErrInvalidRecord, err)
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

// DataOffset returns the offset of the next record to read.
func (e *Engine) DataOffset() int64 {
	switch {
	case !e.framed():
		return e.at.pos
	case e.frame == nil && e.at.rec > 0:
		// partially read frame not reloaded since WakeUp.
		return e.snap.Offset
	case e.frame == nil:
		return e.at.pos
	}
	if e.at.rec < len(e.slots) {
		return e.slots[e.at.rec].off
	}
	next, _ := e.ring.next(e.at.pos)
	return next
}

// ReadNextRecord reads the next record into dst.
func (e *Engine) ReadNextRecord(dst *datalog.Record) error {
	if !e.opened() {
		return e.errState("read")
	}
	if e.framed() {
		return e.readFrame(dst)
	}
	return e.readRecord(dst)
}

func (e *Engine) readRecord(dst *datalog.Record) error {
	rs := e.recordSize()
	if int64(cap(e.buf)) < rs {
		e.buf = make([]byte, rs)
	}
	e.buf = e.buf[:rs]

	err := source.ReadFull(e.src, e.buf, e.at.pos)
	switch {
	case err == nil:
	case err == io.EOF, err == io.ErrUnexpectedEOF:
		return io.EOF
	default:
		return xerrors.Errorf("tob: could not read record at offset %d: %w", e.at.pos, err)
	}

	off := e.at.pos
	e.at.pos += rs
	err = e.decode(dst, off, e.buf, time.Time{}, -1, 0)
	if err != nil {
		return err
	}

	if e.sec >= 0 {
		sec, _ := integer(dst.Values[e.sec])
		var nsec int64
		if e.nsec >= 0 {
			nsec, _ = integer(dst.Values[e.nsec])
		}
		dst.Time = catalog.Time(int32(sec), int32(nsec))
	}
	if e.recno >= 0 {
		if v, ok := integer(dst.Values[e.recno]); ok {
			dst.RecNo = v
		}
	}
	return nil
}

func (e *Engine) readFrame(dst *datalog.Record) error {
	resynced := false
	for {
		if e.frame == nil {
			err := e.load()
			switch {
			case err == nil:
			case errors.Is(err, io.EOF), errors.Is(err, errStale):
				return io.EOF
			case errors.Is(err, errInvalidFrame):
				if e.ring.after(e.at.pos) {
					return io.EOF
				}
				if !resynced {
					resynced = true
					if off, ok := e.ring.resync(e.at.pos); ok {
						e.msg.Debug("resync",
							zap.String("path", e.path),
							zap.Int64("from", e.at.pos),
							zap.Int64("to", off),
						)
						e.at.pos, e.at.rec = off, 0
						continue
					}
				}
				e.msg.Debug("invalid frame",
					zap.String("path", e.path),
					zap.Int64("offset", e.at.pos),
					zap.Error(err),
				)
				e.advance()
				return e.invalid(err)
			default:
				return xerrors.Errorf("tob: could not read frame at offset %d: %w", e.at.pos, err)
			}
		}

		if e.at.rec < len(e.slots) {
			s := e.slots[e.at.rec]
			e.at.rec++
			return e.decode(dst, s.off, s.data, s.time, s.recno, s.flags)
		}
		e.advance()
	}
}

// load reads and validates the frame at the current position.
func (e *Engine) load() error {
	fr, err := e.ring.frame(e.at.pos)
	if err != nil {
		return err
	}
	err = fr.Check()
	if err != nil {
		return fmt.Errorf("%w: %w", errInvalidFrame, err)
	}
	m := fr.Marker()
	if e.at.known && m != e.at.epoch {
		return errStale
	}
	slots, err := fr.records()
	if err != nil {
		return fmt.Errorf("%w: %w", errInvalidFrame, err)
	}
	e.at.epoch = m
	e.at.known = true
	e.frame = fr
	e.slots = slots
	return nil
}

// advance moves to the frame following the current one.
// Wrapping around the ring switches to the next write epoch.
func (e *Engine) advance() {
	next, wrapped := e.ring.next(e.at.pos)
	if wrapped && e.at.known {
		e.at.epoch = ^e.at.epoch
	}
	e.at.pos = next
	e.at.rec = 0
	e.frame = nil
	e.slots = nil
}

func (e *Engine) decode(dst *datalog.Record, off int64, raw []byte, t time.Time, recno int64, flags uint32) error {
	dst.Reset()
	dst.Offset = off
	dst.Time = t
	dst.RecNo = recno
	dst.Table = e.hdr.Table
	dst.FileMark = flags&FlagFileMark != 0
	dst.RemoveMark = flags&FlagRemoveMark != 0
	dst.Raw = append(dst.Raw, raw...)

	beg := 0
	for _, f := range e.hdr.Fields {
		end := beg + f.Size()
		v, err := catalog.Decode(f, raw[beg:end], e.cfg.Float64)
		if err != nil {
			return e.invalid(err)
		}
		dst.Values = append(dst.Values, v)
		beg = end
	}
	return nil
}

// GenerateIndex reads all the records from the current position and
// returns their location. Invalid records are skipped.
func (e *Engine) GenerateIndex(ctx context.Context) ([]datalog.IndexEntry, error) {
	if !e.opened() {
		return nil, e.errState("index")
	}

	var (
		idx   []datalog.IndexEntry
		rec   datalog.Record
		bad   = 0
		limit = math.MaxInt
	)
	if e.framed() {
		// a ring made of invalid frames only would be scanned forever.
		n, err := e.ring.count()
		if err != nil {
			return nil, xerrors.Errorf("tob: could not count frames: %w", err)
		}
		limit = int(n) + 1
	}

	for {
		if err := ctx.Err(); err != nil {
			return idx, err
		}
		err := e.ReadNextRecord(&rec)
		switch {
		case err == nil:
			bad = 0
			idx = append(idx, datalog.IndexEntry{
				Offset: rec.Offset,
				Time:   rec.Time,
				RecNo:  rec.RecNo,
				Table:  rec.Table,
			})
		case errors.Is(err, io.EOF):
			return idx, nil
		case errors.Is(err, datalog.ErrInvalidRecord):
			bad++
			if bad > limit {
				return idx, nil
			}
		default:
			return idx, err
		}
	}
}

// Seek positions the engine at the record boundary closest to offset:
// the first boundary at or after offset, or, with searchPrevious, the last
// boundary at or before offset.
func (e *Engine) Seek(offset int64, searchPrevious bool) error {
	if !e.opened() {
		return e.errState("seek")
	}
	if offset < e.hdr.Length {
		offset = e.hdr.Length
	}

	if !e.framed() {
		var (
			rs  = e.recordSize()
			rel = offset - e.hdr.Length
			k   = rel / rs
		)
		if !searchPrevious && rel%rs != 0 {
			k++
		}
		e.setCursor(cursor{pos: e.hdr.Length + k*rs})
		return nil
	}

	e.setCursor(cursor{pos: e.ring.offset(e.ring.index(offset))})
	err := e.load()
	if err != nil {
		// stay at the frame boundary: the next read reports the problem.
		e.setCursor(cursor{pos: e.at.pos})
		return nil
	}

	rec := len(e.slots)
	if searchPrevious {
		rec = 0
		for i, s := range e.slots {
			if s.off <= offset {
				rec = i
			}
		}
	} else {
		for i, s := range e.slots {
			if s.off >= offset {
				rec = i
				break
			}
		}
	}
	e.at.rec = rec
	return nil
}

// SeekToOldest positions the engine at the oldest record.
func (e *Engine) SeekToOldest() (int64, error) {
	if !e.opened() {
		return 0, e.errState("seek")
	}
	if !e.framed() {
		e.setCursor(cursor{pos: e.hdr.Length})
		return e.at.pos, nil
	}

	loc, err := e.locate()
	if err != nil {
		return 0, err
	}
	e.setCursor(cursor{pos: e.ring.offset(loc.oldest)})
	return e.at.pos, nil
}

// SeekToNewest positions the engine at the newest frame (TOB2, TOB3) or
// at the last complete record (TOB1).
func (e *Engine) SeekToNewest() (int64, error) {
	if !e.opened() {
		return 0, e.errState("seek")
	}
	if !e.framed() {
		n := e.DataLength() / e.recordSize()
		pos := e.hdr.Length
		if n > 0 {
			pos += (n - 1) * e.recordSize()
		}
		e.setCursor(cursor{pos: pos})
		return pos, nil
	}

	loc, err := e.locate()
	if err != nil {
		return 0, err
	}
	e.setCursor(cursor{pos: e.ring.offset(loc.newest)})
	return e.at.pos, nil
}

func (e *Engine) locate() (location, error) {
	loc, err := e.ring.locate()
	switch {
	case err == nil:
	case errors.Is(err, datalog.ErrNoValidFrames):
		return loc, datalog.NewError("seek", e.path, datalog.ErrNoValidFrames, nil)
	default:
		return loc, xerrors.Errorf("tob: could not locate ring boundaries: %w", err)
	}
	e.msg.Debug("ring located",
		zap.String("path", e.path),
		zap.Stringer("kind", loc.kind),
		zap.Int64("frames", loc.n),
		zap.Int64("oldest", loc.oldest),
		zap.Int64("newest", loc.newest),
	)
	return loc, nil
}

// Hibernate releases the file, keeping the fingerprints needed to
// validate a later WakeUp.
func (e *Engine) Hibernate() error {
	switch {
	case e.hibernated():
		return nil
	case !e.opened():
		return e.errState("hibernate")
	}

	size, err := e.src.Size()
	if err != nil {
		return xerrors.Errorf("tob: could not stat file: %w", err)
	}
	snap, err := hibernate.Take(e.src, size, e.hdr.Length, e.DataOffset())
	if err != nil {
		return xerrors.Errorf("tob: could not take snapshot: %w", err)
	}

	err = e.src.Close()
	e.snap = snap
	e.saved = e.at
	e.src = nil
	e.frame = nil
	e.slots = nil
	if e.framed() {
		e.ring.reset(nil)
	}
	e.state = datalog.Hibernated
	e.msg.Debug("hibernated",
		zap.String("path", e.path),
		zap.Int64("offset", snap.Offset),
	)
	if err != nil {
		return fmt.Errorf("tob: could not close file: %w", err)
	}
	return nil
}

// WakeUp reacquires the file released by Hibernate.
func (e *Engine) WakeUp() (resumed, overwritten bool, err error) {
	switch {
	case e.opened():
		return true, false, nil
	case !e.hibernated():
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
		return false, false, xerrors.Errorf("tob: could not check file: %w", err)
	}
	e.msg.Debug("woken up",
		zap.String("path", e.path),
		zap.Stringer("verdict", verdict),
	)

	if verdict == hibernate.HeaderChanged {
		_ = src.Close()
		e.reset()
		return false, false, nil
	}

	e.src = src
	e.state = datalog.Opened
	if e.framed() {
		e.ring.reset(src)
	}

	if verdict == hibernate.Overwritten {
		_, err := e.SeekToOldest()
		switch {
		case err == nil:
		case errors.Is(err, datalog.ErrNoValidFrames):
			e.setCursor(cursor{pos: e.hdr.Length})
		default:
			return true, true, err
		}
		return true, true, nil
	}

	e.setCursor(e.saved)
	if e.framed() && e.at.rec > 0 {
		// reload the partially read frame.
		if err := e.load(); err != nil {
			e.msg.Debug("could not reload frame",
				zap.String("path", e.path),
				zap.Int64("offset", e.at.pos),
				zap.Error(err),
			)
			e.frame, e.slots = nil, nil
		}
	}
	return true, false, nil
}

func integer(v any) (int64, bool) {
	switch v := v.(type) {
	case int64:
		return v, true
	case uint64:
		return int64(v), true
	case float32:
		return int64(v), true
	case float64:
		return int64(v), true
	}
	return 0, false
}

var _ datalog.Reader = (*Engine)(nil)
