// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package tob

import (
	"encoding/binary"
	"io"

	"github.com/go-lpc/datalog"
	"github.com/go-lpc/datalog/internal/source"
	"golang.org/x/xerrors"
)

// ringKind describes how the frames of a ring are laid out.
type ringKind uint8

const (
	ringLinear  ringKind = iota // oldest frame first, not wrapped
	ringTrailer                 // newest frame followed by frames never written
	ringWrapped                 // newest frame followed by the oldest one
)

func (k ringKind) String() string {
	switch k {
	case ringLinear:
		return "linear"
	case ringTrailer:
		return "trailer"
	case ringWrapped:
		return "wrapped"
	}
	return "ringKind(?)"
}

// location is the outcome of locating the ring boundaries.
// oldest and newest are frame indices.
type location struct {
	n      int64 // number of frames considered
	oldest int64
	newest int64
	kind   ringKind
}

// ring gives access to the frames of a TOB2/TOB3 file.
type ring struct {
	hdr *Header
	src source.Source

	loc      location
	valid    bool // whether loc is up to date
	searches int  // number of boundary searches
	buf      [2]byte
}

func newRing(hdr *Header, src source.Source) *ring {
	return &ring{hdr: hdr, src: src}
}

func (r *ring) reset(src source.Source) {
	r.src = src
	r.valid = false
}

// count returns the number of complete frames held by the file, bounded
// by the intended number of frames.
func (r *ring) count() (int64, error) {
	size, err := r.src.Size()
	if err != nil {
		return 0, err
	}
	n := (size - r.hdr.Length) / r.hdr.FrameSize
	if n < 0 {
		n = 0
	}
	if r.hdr.TableSize > 0 && n > r.hdr.TableSize {
		n = r.hdr.TableSize
	}
	return n, nil
}

// end returns the offset past the last frame slot of the ring, when the
// ring has a known capacity.
func (r *ring) end() (int64, bool) {
	if r.hdr.TableSize <= 0 {
		return 0, false
	}
	return r.offset(r.hdr.TableSize), true
}

func (r *ring) offset(i int64) int64 {
	return r.hdr.Length + i*r.hdr.FrameSize
}

func (r *ring) index(off int64) int64 {
	return (off - r.hdr.Length) / r.hdr.FrameSize
}

// next returns the offset of the frame following the one at off and
// whether the ring wrapped around.
func (r *ring) next(off int64) (int64, bool) {
	off += r.hdr.FrameSize
	if end, ok := r.end(); ok && off+r.hdr.FrameSize > end {
		return r.hdr.Length, true
	}
	return off, false
}

// frame reads the frame at offset off.
func (r *ring) frame(off int64) (*Frame, error) {
	fr := &Frame{
		Offset: off,
		Data:   make([]byte, r.hdr.FrameSize),
		hdr:    r.hdr,
	}
	err := source.ReadFull(r.src, fr.Data, off)
	if err != nil {
		if err == io.ErrUnexpectedEOF {
			err = io.EOF
		}
		return nil, err
	}
	return fr, nil
}

func (r *ring) marker(i int64) (uint16, error) {
	err := source.ReadFull(r.src, r.buf[:], r.offset(i+1)-2)
	if err != nil {
		return 0, xerrors.Errorf("tob: could not read marker of frame %d: %w", i, err)
	}
	return binary.LittleEndian.Uint16(r.buf[:]), nil
}

// locate returns the boundaries of the ring.
// The last result is reused as long as the number of frames is unchanged.
func (r *ring) locate() (location, error) {
	n, err := r.count()
	if err != nil {
		return location{}, err
	}
	if r.valid && r.loc.n == n {
		return r.loc, nil
	}
	r.searches++
	loc, err := r.search(n)
	if err != nil {
		return loc, err
	}
	r.loc = loc
	r.valid = true
	return loc, nil
}

// search locates the oldest and newest frames among the first n frames.
func (r *ring) search(n int64) (location, error) {
	loc := location{n: n}
	if n == 0 {
		return loc, datalog.ErrNoValidFrames
	}

	stamp := r.hdr.Stamp
	lo := int64(0)
	first, err := r.marker(0)
	if err != nil {
		return loc, err
	}
	if !related(first, stamp) {
		lo = -1
		for i := int64(1); i < n; i++ {
			m, err := r.marker(i)
			if err != nil {
				return loc, err
			}
			if related(m, stamp) {
				lo, first = i, m
				break
			}
		}
		if lo < 0 {
			return loc, datalog.ErrNoValidFrames
		}
	}

	last, err := r.marker(n - 1)
	if err != nil {
		return loc, err
	}

	switch {
	case last == first:
		loc.oldest = lo
		loc.newest = n - 1
		loc.kind = ringLinear
	case !related(last, stamp):
		// frames past the newest one were never written.
		flip, err := r.flip(lo, n-1, first)
		if err != nil {
			return loc, err
		}
		loc.oldest = lo
		loc.newest = flip - 1
		loc.kind = ringTrailer
	default:
		flip, err := r.flip(lo, n-1, first)
		if err != nil {
			return loc, err
		}
		loc.oldest = flip
		loc.newest = flip - 1
		loc.kind = ringWrapped
	}
	return loc, nil
}

// flip returns the index of the first frame in (lo, hi] whose marker is
// not first, given that frame lo carries first and frame hi does not.
func (r *ring) flip(lo, hi int64, first uint16) (int64, error) {
	for hi-lo > 1 {
		mid := lo + (hi-lo)/2
		m, err := r.marker(mid)
		if err != nil {
			return 0, err
		}
		if m == first {
			lo = mid
		} else {
			hi = mid
		}
	}
	return hi, nil
}

// after reports whether the frame at offset off comes after the newest
// frame of the ring.
// The cached boundaries are searched again only when they place off after
// the newest frame, as the logger may have written new frames since.
func (r *ring) after(off int64) bool {
	if r.valid && !r.beyond(r.loc, off) {
		return false
	}
	r.valid = false
	loc, err := r.locate()
	if err != nil {
		return true
	}
	return r.beyond(loc, off)
}

func (r *ring) beyond(loc location, off int64) bool {
	return loc.kind != ringWrapped && r.index(off) > loc.newest
}
