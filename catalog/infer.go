// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package catalog

import (
	"strconv"
	"strings"
	"time"
)

// DefaultStringWidth is the width given to strings whose width is not declared.
const DefaultStringWidth = 64

// timeLayouts are the ISO-like layouts of timestamp literals.
var timeLayouts = []string{
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04",
	"2006-01-02",
}

// ParseTime parses an ISO-like timestamp literal, in UTC.
func ParseTime(v string) (time.Time, bool) {
	v = strings.TrimSpace(v)
	if len(v) < len("2006-01-02") || v[4] != '-' {
		return time.Time{}, false
	}
	for _, layout := range timeLayouts {
		t, err := time.ParseInLocation(layout, v, time.UTC)
		if err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func isSentinel(v string) bool {
	switch strings.ToUpper(strings.TrimSpace(v)) {
	case "NAN", "INF", "+INF", "-INF":
		return true
	}
	return false
}

// InferType guesses the type of a field out of one of its values.
func InferType(tok Token) (Type, int) {
	v := strings.TrimSpace(tok.Value)
	switch {
	case isSentinel(v):
		return Float, 0
	case tok.Quoted:
		if _, ok := ParseTime(v); ok {
			return Timestamp, 0
		}
		return String, DefaultStringWidth
	}
	if _, err := strconv.ParseInt(v, 10, 64); err == nil {
		return Int, 0
	}
	if _, err := strconv.ParseFloat(v, 64); err == nil {
		return Float, 0
	}
	if _, ok := ParseTime(v); ok {
		return Timestamp, 0
	}
	return String, DefaultStringWidth
}

// Infer assigns a type to every field that has none, out of the tokens of
// the first data row.
// It is the fallback used when no schema describes the table.
func Infer(fields []Field, row []Token) []Field {
	out := Clone(fields)
	for i := range out {
		if out[i].Type != Unknown {
			continue
		}
		if i >= len(row) {
			out[i].Type, out[i].Width = String, DefaultStringWidth
			continue
		}
		out[i].Type, out[i].Width = InferType(row[i])
	}
	return out
}
