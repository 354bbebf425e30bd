// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package tob

import (
	"encoding/binary"

	"github.com/go-lpc/datalog/internal/source"
)

// resyncFrames is the number of frame lengths scanned by resync.
const resyncFrames = 10

// resync looks for the start of a valid frame after a validation failure
// of the frame at offset from.
// It returns the offset of that frame and whether one was found.
//
// A stamp (or complemented stamp) found at byte a proposes a frame ending
// at a+2. The candidate is accepted when it validates, ends beyond from
// and is followed either by another valid frame or by the end of the file.
func (r *ring) resync(from int64) (int64, bool) {
	size, err := r.src.Size()
	if err != nil {
		return 0, false
	}

	var (
		fs    = r.hdr.FrameSize
		stamp = r.hdr.Stamp
		start = from
	)
	if start-fs >= r.hdr.Length {
		start -= fs
	}
	end := start + resyncFrames*fs
	if end > size {
		end = size
	}
	if end-start < 2 {
		return 0, false
	}

	win := make([]byte, end-start)
	err = source.ReadFull(r.src, win, start)
	if err != nil {
		return 0, false
	}

	for i := 0; i+2 <= len(win); i++ {
		m := binary.LittleEndian.Uint16(win[i:])
		if !related(m, stamp) {
			continue
		}
		var (
			next = start + int64(i) + 2
			cand = next - fs
		)
		if cand < r.hdr.Length || next < start+fs || next <= from {
			continue
		}
		fr, err := r.frame(cand)
		if err != nil || fr.Check() != nil {
			continue
		}
		if next+fs <= size {
			nf, err := r.frame(next)
			if err != nil || nf.Check() != nil {
				continue
			}
		}
		return cand, true
	}
	return 0, false
}
