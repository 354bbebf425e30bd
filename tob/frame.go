// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package tob

import (
	"encoding/binary"
	"time"

	"github.com/go-lpc/datalog/catalog"
	"golang.org/x/xerrors"
)

// Footer flags.
const (
	FlagFileMark   uint32 = 1 << 11
	FlagRemoveMark uint32 = 1 << 12
	FlagEmpty      uint32 = 1 << 13
	FlagMinor      uint32 = 1 << 14

	footerOffsetMask uint32 = 0x7ff
)

// related reports whether the validation marker v belongs to a file
// stamped with stamp: either the current write epoch (v == stamp) or the
// previous one (v == ^stamp).
func related(v, stamp uint16) bool {
	return v == stamp || v == ^stamp
}

// Frame is one fixed-size frame of a TOB2/TOB3 ring.
type Frame struct {
	Offset int64  // offset of the frame in the file
	Data   []byte // raw frame bytes

	hdr *Header
}

func (fr *Frame) footerAt(end int) uint32 {
	return binary.LittleEndian.Uint32(fr.Data[end-frameFooterSize : end])
}

// Footer returns the 4-byte footer of the frame.
func (fr *Frame) Footer() uint32 {
	return fr.footerAt(len(fr.Data))
}

// Marker returns the validation marker, held in the last 2 bytes of the frame.
func (fr *Frame) Marker() uint16 {
	return binary.LittleEndian.Uint16(fr.Data[len(fr.Data)-2:])
}

// Valid reports whether the frame marker is related to the file stamp.
func (fr *Frame) Valid() bool {
	return related(fr.Marker(), fr.hdr.Stamp)
}

func (fr *Frame) FileMark() bool   { return fr.Footer()&FlagFileMark != 0 }
func (fr *Frame) RemoveMark() bool { return fr.Footer()&FlagRemoveMark != 0 }
func (fr *Frame) Empty() bool      { return fr.Footer()&FlagEmpty != 0 }
func (fr *Frame) Minor() bool      { return fr.Footer()&FlagMinor != 0 }

// Check validates the marker and the layout of the frame.
func (fr *Frame) Check() error {
	if len(fr.Data) != int(fr.hdr.FrameSize) {
		return xerrors.Errorf("tob: invalid frame size (got=%d, want=%d)", len(fr.Data), fr.hdr.FrameSize)
	}
	if !fr.Valid() {
		return xerrors.Errorf(
			"tob: invalid frame marker 0x%04x at offset %d (stamp=0x%04x)",
			fr.Marker(), fr.Offset, fr.hdr.Stamp,
		)
	}
	_, err := fr.segments()
	return err
}

// segment is a (possibly minor) frame within a major frame.
type segment struct {
	beg, end int // byte range within the major frame, footer included
	footer   uint32
}

// segments splits the frame into its minor frames, in file order.
// A frame without the minor flag is a single segment.
func (fr *Frame) segments() ([]segment, error) {
	ftr := fr.Footer()
	if ftr&FlagMinor == 0 {
		return []segment{{beg: 0, end: len(fr.Data), footer: ftr}}, nil
	}

	var (
		segs  []segment
		end   = len(fr.Data)
		msize = fr.hdr.Type.frameHeaderSize() + frameFooterSize
	)
	for end > 0 {
		if end < msize {
			return nil, xerrors.Errorf(
				"tob: invalid minor frame layout (%d trailing bytes at offset %d)",
				end, fr.Offset,
			)
		}
		ftr := fr.footerAt(end)
		size := int(ftr & footerOffsetMask)
		if size < msize || size > end {
			return nil, xerrors.Errorf(
				"tob: invalid minor frame size %d at offset %d",
				size, fr.Offset+int64(end),
			)
		}
		segs = append(segs, segment{beg: end - size, end: end, footer: ftr})
		end -= size
	}
	for i, j := 0, len(segs)-1; i < j; i, j = i+1, j-1 {
		segs[i], segs[j] = segs[j], segs[i]
	}
	return segs, nil
}

// slot is a record held by a frame.
type slot struct {
	off   int64 // offset of the record in the file
	data  []byte
	time  time.Time
	recno int64
	flags uint32
}

// records returns the records held by the frame, in file order.
func (fr *Frame) records() ([]slot, error) {
	segs, err := fr.segments()
	if err != nil {
		return nil, err
	}

	var (
		le    = binary.LittleEndian
		hsize = fr.hdr.Type.frameHeaderSize()
		rsize = fr.hdr.RecordSize()
		slots []slot
	)
	for _, seg := range segs {
		if seg.footer&FlagEmpty != 0 {
			continue
		}
		var (
			p     = fr.Data[seg.beg:seg.end]
			sec   = le.Uint32(p[0:4])
			ticks = le.Uint32(p[4:8])
			recno = int64(-1)
			t0    = catalog.Epoch.Add(time.Duration(sec)*time.Second + time.Duration(ticks)*fr.hdr.tick)
			body  = p[hsize : len(p)-frameFooterSize]
			n     = len(body) / rsize
		)
		if fr.hdr.Type == TOB3 {
			recno = int64(le.Uint32(p[8:12]))
		}
		for i := 0; i < n; i++ {
			s := slot{
				off:   fr.Offset + int64(seg.beg+hsize+i*rsize),
				data:  body[i*rsize : (i+1)*rsize],
				time:  t0.Add(time.Duration(i) * fr.hdr.interval),
				recno: recno,
				flags: seg.footer,
			}
			if recno >= 0 {
				s.recno = recno + int64(i)
			}
			slots = append(slots, s)
		}
	}
	return slots, nil
}
