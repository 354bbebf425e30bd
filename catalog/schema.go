// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package catalog

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"golang.org/x/xerrors"
)

// Schema is a previously captured table definition.
// When available, it is the authoritative source of field types and
// array shapes.
type Schema struct {
	Table  string
	fields []Field
	index  map[string]int // base name -> position in fields
}

type jsonSchema struct {
	Table  string      `json:"table"`
	Fields []jsonField `json:"fields"`
}

type jsonField struct {
	Name    string `json:"name"`
	Type    string `json:"type"`
	Units   string `json:"units,omitempty"`
	Process string `json:"process,omitempty"`
	Dims    []int  `json:"dims,omitempty"`
}

// LoadSchema reads a JSON table definition from the named file.
func LoadSchema(fname string) (*Schema, error) {
	f, err := os.Open(fname)
	if err != nil {
		return nil, fmt.Errorf("catalog: could not open schema %q: %w", fname, err)
	}
	defer f.Close()

	sc, err := ParseSchema(f)
	if err != nil {
		return nil, fmt.Errorf("catalog: could not load schema %q: %w", fname, err)
	}
	return sc, nil
}

// ParseSchema decodes a JSON table definition:
//
//	{
//	  "table": "Hourly",
//	  "fields": [
//	    {"name": "TIMESTAMP", "type": "TIMESTAMP"},
//	    {"name": "T", "type": "IEEE4", "units": "degC", "dims": [3]},
//	    {"name": "Msg", "type": "ASCII(16)", "dims": [2]}
//	  ]
//	}
func ParseSchema(r io.Reader) (*Schema, error) {
	var raw jsonSchema
	err := json.NewDecoder(r).Decode(&raw)
	if err != nil {
		return nil, xerrors.Errorf("catalog: could not decode schema: %w", err)
	}

	sc := &Schema{
		Table:  raw.Table,
		fields: make([]Field, 0, len(raw.Fields)),
		index:  make(map[string]int, len(raw.Fields)),
	}
	for i, jf := range raw.Fields {
		if jf.Name == "" {
			return nil, xerrors.Errorf("catalog: schema field #%d has no name", i)
		}
		if _, dup := sc.index[jf.Name]; dup {
			return nil, xerrors.Errorf("catalog: schema field %q declared twice", jf.Name)
		}
		typ, width, err := ParseType(jf.Type)
		if err != nil {
			return nil, xerrors.Errorf("catalog: schema field %q: %w", jf.Name, err)
		}
		for _, d := range jf.Dims {
			if d < 1 {
				return nil, xerrors.Errorf("catalog: schema field %q has invalid dimension %d", jf.Name, d)
			}
		}
		sc.index[jf.Name] = len(sc.fields)
		sc.fields = append(sc.fields, Field{
			Name:    jf.Name,
			Base:    jf.Name,
			Units:   jf.Units,
			Process: jf.Process,
			Type:    typ,
			Width:   width,
			Dims:    jf.Dims,
		})
	}
	return sc, nil
}

// Fields returns the declared fields, with string arrays expanded into
// scalar cells.
func (sc *Schema) Fields() []Field {
	return Expand(sc.fields)
}

// Lookup returns the definition of the cell with the given linear offset
// (1-based, 0 for scalars) of the field named base.
// Offset 0 of a string array returns the whole array.
func (sc *Schema) Lookup(base string, cell int) (Field, bool) {
	if sc == nil {
		return Field{}, false
	}
	i, ok := sc.index[base]
	if !ok {
		return Field{}, false
	}
	f := clone(sc.fields[i])
	n := cells(f.Dims)
	switch {
	case cell == 0 && (f.Scalar() || f.Type.IsString()):
		return f, true
	case cell < 1 || cell > n:
		return Field{}, false
	}
	f.Cell = cell
	f.Index = Subscripts(f.Dims, cell)
	f.Name = formatName(f.Base, f.Index)
	return f, true
}

// Resolve completes the header-declared fields with the types and shapes
// of the schema. Fields unknown to the schema are left untouched and
// reported through the returned list of names.
// A column naming a whole string array keeps the array shape, with a zero
// Cell: Expand then turns it into one descriptor per cell.
func (sc *Schema) Resolve(fields []Field) ([]Field, []string) {
	out := Clone(fields)
	var missing []string
	for i, f := range out {
		cell := 0
		if len(f.Index) > 0 {
			def, ok := sc.Lookup(f.Base, 1)
			if !ok {
				missing = append(missing, f.Name)
				continue
			}
			cell, ok = Linear(def.Dims, f.Index)
			if !ok {
				missing = append(missing, f.Name)
				continue
			}
		}
		def, ok := sc.Lookup(f.Base, cell)
		if !ok {
			missing = append(missing, f.Name)
			continue
		}
		out[i].Type = def.Type
		out[i].Width = def.Width
		out[i].Dims = def.Dims
		out[i].Cell = def.Cell
		if out[i].Units == "" {
			out[i].Units = def.Units
		}
		if out[i].Process == "" {
			out[i].Process = def.Process
		}
	}
	return out, missing
}
