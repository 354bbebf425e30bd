// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package catalog

import (
	"strconv"
	"strings"

	"golang.org/x/xerrors"
)

// Token is one cell of a comma-separated line.
type Token struct {
	Value  string
	Quoted bool
}

// SplitRaw splits a comma-separated line into tokens.
// Quoted cells may contain commas and doubled quotes.
// Trailing CR/LF characters are ignored.
func SplitRaw(line string) ([]Token, error) {
	line = strings.TrimRight(line, "\r\n")
	var (
		toks []Token
		cur  strings.Builder
		tok  Token
		inq  bool
	)
	for i := 0; i < len(line); i++ {
		c := line[i]
		switch {
		case inq:
			switch {
			case c == '"' && i+1 < len(line) && line[i+1] == '"':
				cur.WriteByte('"')
				i++
			case c == '"':
				inq = false
			default:
				cur.WriteByte(c)
			}
		case c == '"':
			if cur.Len() != 0 || tok.Quoted {
				return nil, xerrors.Errorf("catalog: unexpected quote at column %d", i)
			}
			inq = true
			tok.Quoted = true
		case c == ',':
			tok.Value = cur.String()
			toks = append(toks, tok)
			cur.Reset()
			tok = Token{}
		default:
			if tok.Quoted {
				return nil, xerrors.Errorf("catalog: unexpected character %q after quoted cell at column %d", c, i)
			}
			cur.WriteByte(c)
		}
	}
	if inq {
		return nil, xerrors.Errorf("catalog: unterminated quoted cell")
	}
	tok.Value = cur.String()
	toks = append(toks, tok)
	return toks, nil
}

// SplitLine splits a comma-separated line into its (unquoted) cell values.
func SplitLine(line string) ([]string, error) {
	toks, err := SplitRaw(line)
	if err != nil {
		return nil, err
	}
	vs := make([]string, len(toks))
	for i, tok := range toks {
		vs[i] = tok.Value
	}
	return vs, nil
}

// ParseName splits a field name such as "Temp(2,3)" into its base name
// and its 1-based subscripts.
func ParseName(name string) (string, []int, error) {
	beg := strings.IndexByte(name, '(')
	if beg < 0 {
		return name, nil, nil
	}
	if !strings.HasSuffix(name, ")") {
		return "", nil, xerrors.Errorf("catalog: invalid field name %q", name)
	}
	base := name[:beg]
	if base == "" {
		return "", nil, xerrors.Errorf("catalog: field name %q has no base name", name)
	}
	var idx []int
	for _, v := range strings.Split(name[beg+1:len(name)-1], ",") {
		i, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil || i < 1 {
			return "", nil, xerrors.Errorf("catalog: invalid subscript %q in field name %q", v, name)
		}
		idx = append(idx, i)
	}
	return base, idx, nil
}

// ParseType decodes a data type code such as "IEEE4" or "ASCII(16)".
// It returns the type and, for strings, the declared width.
func ParseType(code string) (Type, int, error) {
	code = strings.TrimSpace(code)
	name, arg := code, ""
	if i := strings.IndexByte(code, '('); i >= 0 {
		if !strings.HasSuffix(code, ")") {
			return Unknown, 0, xerrors.Errorf("catalog: invalid type code %q", code)
		}
		name, arg = code[:i], code[i+1:len(code)-1]
	}
	name = strings.ToUpper(name)

	typ, ok := typeAliases[name]
	if !ok {
		for i, v := range typeNames {
			if v == name && Type(i) != Unknown {
				typ, ok = Type(i), true
				break
			}
		}
	}
	if !ok {
		return Unknown, 0, xerrors.Errorf("catalog: unknown type code %q", code)
	}

	switch {
	case typ.IsString():
		if arg == "" {
			if typ == ASCII {
				return Unknown, 0, xerrors.Errorf("catalog: missing width in type code %q", code)
			}
			return typ, DefaultStringWidth, nil
		}
		n, err := strconv.Atoi(arg)
		if err != nil || n < 1 {
			return Unknown, 0, xerrors.Errorf("catalog: invalid width in type code %q", code)
		}
		return typ, n, nil
	case arg != "":
		return Unknown, 0, xerrors.Errorf("catalog: unexpected width in type code %q", code)
	}
	return typ, 0, nil
}

// Build creates the field descriptors of a table out of its declaration
// lines. units, procs and types may be nil when the format does not carry
// them; otherwise they must have as many cells as names.
func Build(names, units, procs, types []string) ([]Field, error) {
	if len(names) == 0 {
		return nil, xerrors.Errorf("catalog: no field declared")
	}
	for _, line := range []struct {
		name  string
		cells []string
	}{
		{"units", units},
		{"processing", procs},
		{"types", types},
	} {
		if line.cells != nil && len(line.cells) != len(names) {
			return nil, xerrors.Errorf(
				"catalog: inconsistent number of %s (got=%d, want=%d)",
				line.name, len(line.cells), len(names),
			)
		}
	}

	fields := make([]Field, len(names))
	for i, name := range names {
		base, idx, err := ParseName(name)
		if err != nil {
			return nil, xerrors.Errorf("catalog: could not parse field #%d: %w", i, err)
		}
		f := Field{
			Name:  name,
			Base:  base,
			Index: idx,
		}
		if len(idx) == 1 {
			f.Cell = idx[0]
		}
		if units != nil {
			f.Units = units[i]
		}
		if procs != nil {
			f.Process = procs[i]
		}
		if types != nil {
			f.Type, f.Width, err = ParseType(types[i])
			if err != nil {
				return nil, xerrors.Errorf("catalog: could not parse type of field %q: %w", name, err)
			}
		}
		fields[i] = f
	}
	return fields, nil
}

// Linear returns the 1-based linear (row-major) index of the cell with the
// given 1-based subscripts within an array of the given shape.
func Linear(dims, idx []int) (int, bool) {
	if len(idx) == 0 {
		return 0, len(dims) == 0
	}
	if len(dims) != len(idx) {
		if len(idx) == 1 && idx[0] >= 1 && idx[0] <= cells(dims) {
			return idx[0], true
		}
		return 0, false
	}
	n := 0
	for i, d := range dims {
		if idx[i] < 1 || idx[i] > d {
			return 0, false
		}
		n = n*d + idx[i] - 1
	}
	return n + 1, true
}

// Subscripts returns the 1-based subscripts of the cell with the given
// 1-based linear index within an array of the given shape.
func Subscripts(dims []int, cell int) []int {
	idx := make([]int, len(dims))
	n := cell - 1
	for i := len(dims) - 1; i >= 0; i-- {
		idx[i] = n%dims[i] + 1
		n /= dims[i]
	}
	return idx
}

func formatName(base string, idx []int) string {
	if len(idx) == 0 {
		return base
	}
	o := new(strings.Builder)
	o.WriteString(base)
	o.WriteByte('(')
	for i, v := range idx {
		if i > 0 {
			o.WriteByte(',')
		}
		o.WriteString(strconv.Itoa(v))
	}
	o.WriteByte(')')
	return o.String()
}
