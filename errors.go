// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package datalog

import (
	"errors"
	"io"
	"strings"
)

// Error kinds reported by engines.
// End of data is reported as io.EOF.
var (
	ErrCannotOpen        = errors.New("cannot open file")
	ErrUnsupportedFormat = errors.New("unsupported format")
	ErrCorruptFile       = errors.New("corrupt file")
	ErrNotInitialized    = errors.New("reader not initialized")
	ErrInvalidRecord     = errors.New("invalid record")
	ErrNoValidFrames     = errors.New("no valid frames")
)

// Error describes a failed operation on a data file.
//
// Error matches both its Kind and its underlying cause with errors.Is.
type Error struct {
	Op   string // operation, e.g. "open" or "read"
	Path string // path of the data file
	Kind error  // one of the ErrXxx kinds
	Err  error  // underlying cause, may be nil
}

// NewError returns an error of the given kind for operation op on path.
func NewError(op, path string, kind, err error) *Error {
	return &Error{Op: op, Path: path, Kind: kind, Err: err}
}

func (e *Error) Error() string {
	o := new(strings.Builder)
	o.WriteString("datalog: ")
	if e.Op != "" {
		o.WriteString(e.Op)
		o.WriteString(" ")
	}
	if e.Path != "" {
		o.WriteString(e.Path)
		o.WriteString(": ")
	}
	if e.Kind != nil {
		o.WriteString(e.Kind.Error())
	}
	if e.Err != nil {
		if e.Kind != nil {
			o.WriteString(": ")
		}
		o.WriteString(e.Err.Error())
	}
	return o.String()
}

func (e *Error) Unwrap() []error {
	errs := make([]error, 0, 2)
	if e.Kind != nil {
		errs = append(errs, e.Kind)
	}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}

// Fatal reports whether err must stop reading a file altogether, as
// opposed to the caller-recoverable io.EOF and ErrInvalidRecord.
func Fatal(err error) bool {
	switch {
	case err == nil:
		return false
	case errors.Is(err, ErrInvalidRecord):
		return false
	case errors.Is(err, io.EOF):
		return false
	}
	return true
}
