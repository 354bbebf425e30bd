// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package tob

import (
	"bytes"
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-lpc/datalog/catalog"
	"github.com/stretchr/testify/require"
)

const testStamp uint16 = 0xa5c3

var testTime = catalog.Epoch.Add(1_000_000 * time.Second)

func testHeader(typ FileType, frames int64) *Header {
	hdr := &Header{
		Type:       typ,
		Station:    "station-1",
		Model:      "CR1000",
		Serial:     "1234",
		OS:         "CR1000.Std.32",
		Program:    "CPU:test.CR1",
		Signature:  "4242",
		Created:    "2020-01-02 03:04:05",
		Table:      "Test",
		Interval:   "1 SEC",
		TableSize:  frames,
		Stamp:      testStamp,
		Resolution: "Sec100Usec",
		Fields: []catalog.Field{
			{Name: "Batt", Base: "Batt", Units: "V", Process: "Smp", Type: catalog.FP2},
			{Name: "Temp", Base: "Temp", Units: "degC", Process: "Avg", Type: catalog.IEEE4},
			{Name: "Count", Base: "Count", Process: "Smp", Type: catalog.Long},
		},
	}
	hdr.FrameSize = int64(typ.frameHeaderSize() + 4*catalog.RecordSize(hdr.Fields) + frameFooterSize)
	return hdr
}

// testFrame returns the content of the seq-th frame written by the logger.
func testFrame(hdr *Header, seq int64, marker uint16) FrameData {
	n := int64(hdr.RecordsPerFrame())
	fd := FrameData{
		Time:   testTime.Add(time.Duration(seq*n) * time.Second),
		RecNo:  uint32(seq * n),
		Marker: marker,
	}
	for i := int64(0); i < n; i++ {
		rec := seq*n + i
		fd.Records = append(fd.Records, []any{12.5, float64(rec), rec})
	}
	return fd
}

// buildRing returns the content of a file holding n frames: frames [0,wrap)
// carry the stamp and hold the newest records, frames [wrap,n) carry its
// complement and hold the oldest records.
func buildRing(t *testing.T, hdr *Header, n, wrap int) []byte {
	t.Helper()
	buf := new(bytes.Buffer)
	enc := NewEncoder(buf, hdr)
	require.NoError(t, enc.WriteHeader())
	for i := 0; i < n; i++ {
		var (
			seq    = int64(i - wrap)
			marker = ^testStamp
		)
		if i < wrap {
			seq = int64(n - wrap + i)
			marker = testStamp
		}
		require.NoError(t, enc.WriteFrame(testFrame(hdr, seq, marker)))
	}
	return buf.Bytes()
}

func writeFile(t *testing.T, raw []byte) string {
	t.Helper()
	fname := filepath.Join(t.TempDir(), "data.dat")
	err := os.WriteFile(fname, raw, 0644)
	require.NoError(t, err)
	return fname
}

// setMarker overwrites the validation marker of the i-th frame.
func setMarker(hdr *Header, raw []byte, i int, v uint16) {
	end := hdr.Length + int64(i+1)*hdr.FrameSize
	binary.LittleEndian.PutUint16(raw[end-2:end], v)
}

func frameOffset(hdr *Header, i int) int64 {
	return hdr.Length + int64(i)*hdr.FrameSize
}
