// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package toa

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/go-lpc/datalog"
)

// Writer writes text data files.
type Writer struct {
	w   *bufio.Writer
	hdr Header
	err error
}

// NewWriter returns a new Writer that writes to w.
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: bufio.NewWriter(w)}
}

// WriteHeader writes the header lines of a file described by hdr.
func (tw *Writer) WriteHeader(hdr Header) error {
	tw.hdr = hdr
	names := make([]string, len(hdr.Fields))
	for i, f := range hdr.Fields {
		names[i] = f.Name
	}

	switch hdr.Format {
	case TOA5:
		units := make([]string, len(hdr.Fields))
		procs := make([]string, len(hdr.Fields))
		for i, f := range hdr.Fields {
			units[i] = f.Units
			procs[i] = f.Process
		}
		tw.writeLine(quoteAll([]string{
			hdr.Format.String(), hdr.Station, hdr.Model, hdr.Serial,
			hdr.OS, hdr.Program, hdr.Signature, hdr.Table,
		}))
		tw.writeLine(quoteAll(names))
		tw.writeLine(quoteAll(units))
		tw.writeLine(quoteAll(procs))
	case TOACI1:
		tw.writeLine(quoteAll([]string{hdr.Format.String(), hdr.Station, hdr.Table}))
		tw.writeLine(quoteAll(names))
	default:
		return fmt.Errorf("toa: invalid format %v", hdr.Format)
	}
	if tw.err != nil {
		return fmt.Errorf("toa: could not write header: %w", tw.err)
	}
	return nil
}

// WriteValues writes one data line.
func (tw *Writer) WriteValues(values []any) error {
	if len(values) != len(tw.hdr.Fields) {
		return fmt.Errorf(
			"toa: invalid number of values (got=%d, want=%d)",
			len(values), len(tw.hdr.Fields),
		)
	}
	o := make([]string, len(values))
	for i, v := range values {
		o[i] = datalog.FormatValue(v)
	}
	tw.writeLine(strings.Join(o, ","))
	if tw.err != nil {
		return fmt.Errorf("toa: could not write values: %w", tw.err)
	}
	return nil
}

// Flush writes any buffered data to the underlying writer.
func (tw *Writer) Flush() error {
	if tw.err != nil {
		return tw.err
	}
	return tw.w.Flush()
}

func (tw *Writer) writeLine(line string) {
	if tw.err != nil {
		return
	}
	_, tw.err = tw.w.WriteString(line + "\r\n")
}

func quoteAll(vs []string) string {
	o := make([]string, len(vs))
	for i, v := range vs {
		o[i] = `"` + strings.ReplaceAll(v, `"`, `""`) + `"`
	}
	return strings.Join(o, ",")
}
