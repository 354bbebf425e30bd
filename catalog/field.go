// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package catalog describes the fields of data-logger tables.
//
// A table header declares, for every column, a name, units, a processing
// tag and (for binary files) an encoded data type. The catalog turns these
// declaration lines into Field descriptors, possibly completed by an external
// schema document, and decodes field values out of records.
package catalog // import "github.com/go-lpc/datalog/catalog"

import (
	"fmt"
	"strings"
	"time"
)

// Type is the encoded data type of a field.
type Type uint8

const (
	Unknown Type = iota

	IEEE4   // 4-byte IEEE float, little endian
	IEEE4B  // 4-byte IEEE float, big endian
	IEEE8   // 8-byte IEEE float, little endian
	IEEE8B  // 8-byte IEEE float, big endian
	FP2     // 2-byte Campbell float, big endian
	UInt1   // unsigned 1-byte integer
	UInt2   // unsigned 2-byte integer, big endian
	UInt4   // unsigned 4-byte integer, big endian
	Int1    // signed 1-byte integer
	Int2    // signed 2-byte integer, big endian
	Int4    // signed 4-byte integer, big endian
	Long    // signed 4-byte integer, little endian
	ULong   // unsigned 4-byte integer, little endian
	Bool    // 1-byte boolean
	Bool2   // 2-byte boolean
	Bool4   // 4-byte boolean
	NSec    // seconds+nanoseconds since 1990, big endian
	SecNano // seconds+nanoseconds since 1990, little endian
	ASCII   // fixed-width string

	// text kinds, used by text files.

	Float
	Int
	String
	Timestamp
)

var typeNames = [...]string{
	Unknown:   "UNKNOWN",
	IEEE4:     "IEEE4",
	IEEE4B:    "IEEE4B",
	IEEE8:     "IEEE8",
	IEEE8B:    "IEEE8B",
	FP2:       "FP2",
	UInt1:     "UINT1",
	UInt2:     "UINT2",
	UInt4:     "UINT4",
	Int1:      "INT1",
	Int2:      "INT2",
	Int4:      "INT4",
	Long:      "LONG",
	ULong:     "ULONG",
	Bool:      "BOOL",
	Bool2:     "BOOL2",
	Bool4:     "BOOL4",
	NSec:      "NSEC",
	SecNano:   "SECNANO",
	ASCII:     "ASCII",
	Float:     "FLOAT",
	Int:       "INT",
	String:    "STRING",
	Timestamp: "TIMESTAMP",
}

var typeAliases = map[string]Type{
	"IEEE4L": IEEE4,
	"IEEE8L": IEEE8,
	"INT4L":  Long,
	"UINT4L": ULong,
	"DOUBLE": Float,
	"STR":    String,
}

func (t Type) String() string {
	if int(t) < len(typeNames) {
		return typeNames[t]
	}
	return fmt.Sprintf("Type(%d)", uint8(t))
}

// IsString reports whether values of that type are strings.
func (t Type) IsString() bool {
	return t == ASCII || t == String
}

// Size returns the encoded size in bytes of a value of that type.
// width is only used for ASCII values.
// Text kinds have a zero size.
func (t Type) Size(width int) int {
	switch t {
	case UInt1, Int1, Bool:
		return 1
	case FP2, UInt2, Int2, Bool2:
		return 2
	case IEEE4, IEEE4B, UInt4, Int4, Long, ULong, Bool4:
		return 4
	case IEEE8, IEEE8B, NSec, SecNano:
		return 8
	case ASCII:
		return width
	}
	return 0
}

// Field describes one column of a table.
type Field struct {
	Name    string // full name, with subscripts
	Base    string // name without subscripts
	Units   string
	Process string
	Type    Type
	Width   int   // width in bytes of string fields
	Dims    []int // declared array shape, empty for scalars
	Index   []int // 1-based subscripts of this cell
	Cell    int   // 1-based linear cell index within the array, 0 otherwise
}

// Size returns the encoded size of the field in a binary record.
func (f Field) Size() int {
	return f.Type.Size(f.Width)
}

// Scalar reports whether the field declares no array shape.
func (f Field) Scalar() bool {
	return cells(f.Dims) <= 1
}

// Cells returns the number of cells of the declared array shape.
func (f Field) Cells() int {
	return cells(f.Dims)
}

func (f Field) String() string {
	o := new(strings.Builder)
	fmt.Fprintf(o, "%s %v", f.Name, f.Type)
	if f.Type == ASCII {
		fmt.Fprintf(o, "(%d)", f.Width)
	}
	if f.Units != "" {
		fmt.Fprintf(o, " [%s]", f.Units)
	}
	if f.Process != "" {
		fmt.Fprintf(o, " %s", f.Process)
	}
	return o.String()
}

// RecordSize returns the size in bytes of a binary record made of fields.
func RecordSize(fields []Field) int {
	n := 0
	for _, f := range fields {
		n += f.Size()
	}
	return n
}

// Epoch is the origin of data-logger timestamps.
var Epoch = time.Date(1990, time.January, 1, 0, 0, 0, 0, time.UTC)

func cells(dims []int) int {
	if len(dims) == 0 {
		return 1
	}
	n := 1
	for _, d := range dims {
		n *= d
	}
	return n
}
