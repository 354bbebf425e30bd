// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package catalog

import (
	"encoding/binary"
	"math"
	"time"

	"golang.org/x/xerrors"
)

// Encode writes the binary value v of field f into p.
// p must hold at least f.Size() bytes.
func Encode(f Field, p []byte, v any) error {
	n := f.Size()
	if n == 0 {
		return xerrors.Errorf("catalog: field %q has no binary encoding (type=%v)", f.Name, f.Type)
	}
	if len(p) < n {
		return xerrors.Errorf("catalog: short buffer for field %q (got=%d, want=%d)", f.Name, len(p), n)
	}
	p = p[:n]

	var (
		le = binary.LittleEndian
		be = binary.BigEndian
	)
	switch f.Type {
	case IEEE4, IEEE4B, IEEE8, IEEE8B, FP2:
		x, ok := toFloat(v)
		if !ok {
			return errEncode(f, v)
		}
		switch f.Type {
		case IEEE4:
			le.PutUint32(p, math.Float32bits(float32(x)))
		case IEEE4B:
			be.PutUint32(p, math.Float32bits(float32(x)))
		case IEEE8:
			le.PutUint64(p, math.Float64bits(x))
		case IEEE8B:
			be.PutUint64(p, math.Float64bits(x))
		case FP2:
			be.PutUint16(p, EncodeFP2(x))
		}
	case UInt1, UInt2, UInt4, Int1, Int2, Int4, Long, ULong:
		x, ok := toInt(v)
		if !ok {
			return errEncode(f, v)
		}
		switch f.Type {
		case UInt1, Int1:
			p[0] = uint8(x)
		case UInt2, Int2:
			be.PutUint16(p, uint16(x))
		case UInt4, Int4:
			be.PutUint32(p, uint32(x))
		case Long, ULong:
			le.PutUint32(p, uint32(x))
		}
	case Bool, Bool2, Bool4:
		x, ok := v.(bool)
		if !ok {
			return errEncode(f, v)
		}
		var u uint32
		if x {
			u = math.MaxUint32
		}
		switch f.Type {
		case Bool:
			p[0] = uint8(u)
		case Bool2:
			be.PutUint16(p, uint16(u))
		case Bool4:
			be.PutUint32(p, u)
		}
	case NSec, SecNano:
		t, ok := v.(time.Time)
		if !ok {
			return errEncode(f, v)
		}
		d := t.Sub(Epoch)
		sec := uint32(int32(d / time.Second))
		nsec := uint32(int32(d % time.Second))
		if f.Type == NSec {
			be.PutUint32(p[:4], sec)
			be.PutUint32(p[4:], nsec)
		} else {
			le.PutUint32(p[:4], sec)
			le.PutUint32(p[4:], nsec)
		}
	case ASCII:
		s, ok := v.(string)
		if !ok {
			return errEncode(f, v)
		}
		i := copy(p, s)
		for ; i < len(p); i++ {
			p[i] = 0
		}
	default:
		return xerrors.Errorf("catalog: unsupported type %v for field %q", f.Type, f.Name)
	}
	return nil
}

func errEncode(f Field, v any) error {
	return xerrors.Errorf("catalog: invalid value %v (%T) for field %q (type=%v)", v, v, f.Name, f.Type)
}

func toFloat(v any) (float64, bool) {
	switch v := v.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case uint64:
		return float64(v), true
	}
	return 0, false
}

func toInt(v any) (int64, bool) {
	switch v := v.(type) {
	case int:
		return int64(v), true
	case int64:
		return v, true
	case int32:
		return int64(v), true
	case uint32:
		return int64(v), true
	case uint64:
		return int64(v), true
	}
	return 0, false
}
