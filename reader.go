// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package datalog

import (
	"context"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/go-lpc/datalog/catalog"
)

// Reader is the contract every file format engine satisfies.
type Reader interface {
	// Open parses the header of the named file, builds the field
	// descriptors and positions the reader at the oldest record.
	// schema optionally names an external table definition.
	Open(path, schema string) error

	// Close releases the file and discards all state.
	Close() error

	// Hibernate releases the file handle, keeping enough fingerprints to
	// validate a later WakeUp. Hibernating twice is a no-op.
	Hibernate() error

	// WakeUp reacquires the file after Hibernate.
	// resumed is false when the header changed: the reader is then
	// closed and must be re-opened.
	// overwritten is true when the oldest data changed: the reader is then
	// positioned at the (new) oldest record.
	WakeUp() (resumed, overwritten bool, err error)

	// ReadNextRecord reads the next record into dst.
	// It returns io.EOF when no more records are available,
	// ErrInvalidRecord when a record could not be validated.
	ReadNextRecord(dst *Record) error

	// GenerateIndex scans records from the current position to the end of
	// the file. Invalid records are skipped.
	// ctx is polled between record reads; on cancellation the entries
	// accumulated so far are returned together with ctx.Err().
	GenerateIndex(ctx context.Context) ([]IndexEntry, error)

	// Seek positions the reader at the given byte offset.
	// With searchPrevious, the position moves backward to the nearest
	// record boundary.
	Seek(offset int64, searchPrevious bool) error

	// SeekToOldest positions the reader at the oldest record and returns its offset.
	SeekToOldest() (int64, error)

	// SeekToNewest positions the reader at the newest record and returns its offset.
	SeekToNewest() (int64, error)

	HeaderSignature() uint16 // signature of the header region
	DataLength() int64       // length in bytes of the data region
	DataOffset() int64       // current read offset

	Table() string
	Fields() []catalog.Field // copy of the field descriptors
	State() State
}

// State is the life-cycle state of a Reader.
type State uint8

const (
	Closed State = iota
	Opened
	Hibernated
)

func (s State) String() string {
	switch s {
	case Closed:
		return "closed"
	case Opened:
		return "opened"
	case Hibernated:
		return "hibernated"
	}
	return "State(" + strconv.Itoa(int(s)) + ")"
}

// Record is one data record.
type Record struct {
	Offset int64     // byte offset of the record in the file
	Time   time.Time // record timestamp
	RecNo  int64     // record number, -1 when the format does not store it
	Table  string    // table the record belongs to
	Values []any     // decoded field values
	Raw    []byte    // raw bytes of the record

	FileMark   bool // record belongs to a frame flagged with a file mark
	RemoveMark bool // record belongs to a frame flagged with a card-removal mark
}

// Reset clears the record, keeping its allocated storage.
func (rec *Record) Reset() {
	*rec = Record{
		Values: rec.Values[:0],
		Raw:    rec.Raw[:0],
	}
}

// Format writes the record as a comma-separated line.
func (rec *Record) Format(w io.Writer) error {
	o := new(strings.Builder)
	o.WriteString(strconv.Quote(rec.Time.Format("2006-01-02 15:04:05.999999999")))
	o.WriteString(",")
	o.WriteString(strconv.FormatInt(rec.RecNo, 10))
	for _, v := range rec.Values {
		o.WriteString(",")
		o.WriteString(FormatValue(v))
	}
	o.WriteString("\n")
	_, err := io.WriteString(w, o.String())
	return err
}

// FormatValue formats a decoded value the way text files carry it.
func FormatValue(v any) string {
	switch v := v.(type) {
	case float32:
		return formatFloat(float64(v), 32)
	case float64:
		return formatFloat(v, 64)
	case int64:
		return strconv.FormatInt(v, 10)
	case uint64:
		return strconv.FormatUint(v, 10)
	case bool:
		if v {
			return "-1"
		}
		return "0"
	case string:
		return `"` + strings.ReplaceAll(v, `"`, `""`) + `"`
	case time.Time:
		return strconv.Quote(v.Format("2006-01-02 15:04:05.999999999"))
	case nil:
		return ""
	}
	return fmt.Sprintf("%v", v)
}

func formatFloat(v float64, bits int) string {
	switch {
	case math.IsNaN(v):
		return `"NAN"`
	case math.IsInf(v, +1):
		return `"INF"`
	case math.IsInf(v, -1):
		return `"-INF"`
	}
	return strconv.FormatFloat(v, 'g', -1, bits)
}

// IndexEntry locates one record within a data file.
type IndexEntry struct {
	Offset int64     `msgpack:"off"`
	Time   time.Time `msgpack:"time"`
	RecNo  int64     `msgpack:"rec"`
	Table  string    `msgpack:"table,omitempty"`
}
