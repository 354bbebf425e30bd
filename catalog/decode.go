// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package catalog

import (
	"bytes"
	"encoding/binary"
	"math"
	"strconv"
	"strings"
	"time"

	"golang.org/x/xerrors"
)

// Decode decodes the binary value of field f held in p.
// Floating point values are returned as float64 when wide is set,
// as float32 otherwise.
// Integers are returned as int64 or uint64, booleans as bool, timestamps
// as time.Time and strings as string.
func Decode(f Field, p []byte, wide bool) (any, error) {
	n := f.Size()
	if n == 0 {
		return nil, xerrors.Errorf("catalog: field %q has no binary encoding (type=%v)", f.Name, f.Type)
	}
	if len(p) < n {
		return nil, xerrors.Errorf("catalog: short buffer for field %q (got=%d, want=%d)", f.Name, len(p), n)
	}
	p = p[:n]

	var (
		le = binary.LittleEndian
		be = binary.BigEndian
	)
	switch f.Type {
	case IEEE4:
		return float(float64(math.Float32frombits(le.Uint32(p))), wide), nil
	case IEEE4B:
		return float(float64(math.Float32frombits(be.Uint32(p))), wide), nil
	case IEEE8:
		return math.Float64frombits(le.Uint64(p)), nil
	case IEEE8B:
		return math.Float64frombits(be.Uint64(p)), nil
	case FP2:
		return float(DecodeFP2(be.Uint16(p)), wide), nil
	case UInt1:
		return uint64(p[0]), nil
	case UInt2:
		return uint64(be.Uint16(p)), nil
	case UInt4:
		return uint64(be.Uint32(p)), nil
	case Int1:
		return int64(int8(p[0])), nil
	case Int2:
		return int64(int16(be.Uint16(p))), nil
	case Int4:
		return int64(int32(be.Uint32(p))), nil
	case Long:
		return int64(int32(le.Uint32(p))), nil
	case ULong:
		return uint64(le.Uint32(p)), nil
	case Bool:
		return p[0] != 0, nil
	case Bool2:
		return be.Uint16(p) != 0, nil
	case Bool4:
		return be.Uint32(p) != 0, nil
	case NSec:
		return Time(int32(be.Uint32(p[:4])), int32(be.Uint32(p[4:]))), nil
	case SecNano:
		return Time(int32(le.Uint32(p[:4])), int32(le.Uint32(p[4:]))), nil
	case ASCII:
		if i := bytes.IndexByte(p, 0); i >= 0 {
			p = p[:i]
		}
		return string(p), nil
	}
	return nil, xerrors.Errorf("catalog: unsupported type %v for field %q", f.Type, f.Name)
}

// Time returns the timestamp sec seconds and nsec nanoseconds after Epoch.
func Time(sec, nsec int32) time.Time {
	return Epoch.Add(time.Duration(sec)*time.Second + time.Duration(nsec))
}

// DecodeFP2 decodes a 2-byte Campbell floating point value.
//
// The 16 bits hold a sign bit, a 2-bit decimal exponent and a 13-bit
// mantissa: v = (-1)^s * m / 10^e.
func DecodeFP2(v uint16) float64 {
	switch v {
	case 0x1fff:
		return math.Inf(+1)
	case 0x9fff:
		return math.Inf(-1)
	case 0x9ffe:
		return math.NaN()
	}
	var (
		neg = v&0x8000 != 0
		exp = (v >> 13) & 0x3
		man = float64(v & 0x1fff)
	)
	val := man / math.Pow10(int(exp))
	if neg {
		val = -val
	}
	return val
}

// EncodeFP2 encodes v as a 2-byte Campbell floating point value, using
// the largest decimal exponent that keeps the mantissa in range.
func EncodeFP2(v float64) uint16 {
	switch {
	case math.IsNaN(v):
		return 0x9ffe
	case math.IsInf(v, +1):
		return 0x1fff
	case math.IsInf(v, -1):
		return 0x9fff
	}
	var sign uint16
	if v < 0 {
		sign = 0x8000
		v = -v
	}
	for exp := 3; exp >= 0; exp-- {
		m := math.Round(v * math.Pow10(exp))
		if m <= 0x1ffd {
			return sign | uint16(exp)<<13 | uint16(m)
		}
	}
	return sign | 0x1ffd
}

func float(v float64, wide bool) any {
	if wide {
		return v
	}
	return float32(v)
}

// ParseText decodes the textual value of field f.
// Types are mapped onto their textual counterpart: floating point,
// integer, boolean, timestamp or string.
func ParseText(f Field, v string, wide bool) (any, error) {
	v = strings.TrimSpace(v)
	switch f.Type {
	case Float, IEEE4, IEEE4B, IEEE8, IEEE8B, FP2:
		x, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return nil, xerrors.Errorf("catalog: invalid float value %q for field %q", v, f.Name)
		}
		if f.Type == IEEE8 || f.Type == IEEE8B {
			return x, nil
		}
		return float(x, wide), nil
	case Int, Int1, Int2, Int4, Long:
		x, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return nil, xerrors.Errorf("catalog: invalid integer value %q for field %q", v, f.Name)
		}
		return x, nil
	case UInt1, UInt2, UInt4, ULong:
		x, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			return nil, xerrors.Errorf("catalog: invalid unsigned value %q for field %q", v, f.Name)
		}
		return x, nil
	case Bool, Bool2, Bool4:
		switch strings.ToLower(v) {
		case "true", "-1", "1":
			return true, nil
		case "false", "0":
			return false, nil
		}
		return nil, xerrors.Errorf("catalog: invalid boolean value %q for field %q", v, f.Name)
	case Timestamp, NSec, SecNano:
		t, ok := ParseTime(v)
		if !ok {
			return nil, xerrors.Errorf("catalog: invalid timestamp %q for field %q", v, f.Name)
		}
		return t, nil
	case String, ASCII, Unknown:
		return v, nil
	}
	return nil, xerrors.Errorf("catalog: unsupported type %v for field %q", f.Type, f.Name)
}
