// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package catalog

// Expand returns a new list of descriptors where every string array field
// is replaced by one scalar descriptor per cell.
// The cells share the base name of the array and carry their linear
// cell index (1..N) and subscripts.
// fields is left untouched.
func Expand(fields []Field) []Field {
	n := 0
	for _, f := range fields {
		n += expansion(f)
	}

	out := make([]Field, 0, n)
	for _, f := range fields {
		m := expansion(f)
		if m == 1 {
			out = append(out, clone(f))
			continue
		}
		for cell := 1; cell <= m; cell++ {
			c := clone(f)
			c.Index = Subscripts(f.Dims, cell)
			c.Cell = cell
			c.Name = formatName(f.Base, c.Index)
			out = append(out, c)
		}
	}
	return out
}

func expansion(f Field) int {
	if !f.Type.IsString() || f.Cell != 0 {
		return 1
	}
	return cells(f.Dims)
}

func clone(f Field) Field {
	f.Dims = append([]int(nil), f.Dims...)
	f.Index = append([]int(nil), f.Index...)
	return f
}

// Clone returns a deep copy of fields.
func Clone(fields []Field) []Field {
	if fields == nil {
		return nil
	}
	out := make([]Field, len(fields))
	for i, f := range fields {
		out[i] = clone(f)
	}
	return out
}
