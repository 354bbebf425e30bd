// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package hibernate

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func mkfile(hdr string, n int) []byte {
	buf := []byte(hdr)
	for i := 0; i < n; i++ {
		buf = append(buf, byte(i))
	}
	return buf
}

func TestSnapshot(t *testing.T) {
	const hdr = "\"TOB3\",\"station\"\r\n"
	hlen := int64(len(hdr))

	for _, tc := range []struct {
		name    string
		orig    []byte
		offset  int64
		modify  func([]byte) []byte
		want    Verdict
		dataLen int64
	}{
		{
			name:    "intact",
			orig:    mkfile(hdr, 2048),
			offset:  hlen + 100,
			modify:  func(p []byte) []byte { return p },
			want:    Intact,
			dataLen: ChunkSize,
		},
		{
			name:    "grown",
			orig:    mkfile(hdr, 100),
			offset:  hlen + 10,
			modify:  func(p []byte) []byte { return append(p, 1, 2, 3) },
			want:    Intact,
			dataLen: 100,
		},
		{
			name:   "changed-after-window",
			orig:   mkfile(hdr, 2048),
			offset: hlen,
			modify: func(p []byte) []byte {
				p[len(p)-1] ^= 0xff
				return p
			},
			want:    Intact,
			dataLen: ChunkSize,
		},
		{
			name:   "header-changed",
			orig:   mkfile(hdr, 10),
			offset: hlen,
			modify: func(p []byte) []byte {
				p[2] = 'X'
				return p
			},
			want:    HeaderChanged,
			dataLen: 10,
		},
		{
			name:    "header-truncated",
			orig:    mkfile(hdr, 10),
			modify:  func(p []byte) []byte { return p[:5] },
			want:    HeaderChanged,
			dataLen: 10,
		},
		{
			name:    "truncated",
			orig:    mkfile(hdr, 2048),
			offset:  hlen + 2000,
			modify:  func(p []byte) []byte { return p[:hlen] },
			want:    Overwritten,
			dataLen: ChunkSize,
		},
		{
			name:   "overwritten",
			orig:   mkfile(hdr, 2048),
			offset: hlen + 2000,
			modify: func(p []byte) []byte {
				p[hlen+3] ^= 0xff
				return p
			},
			want:    Overwritten,
			dataLen: ChunkSize,
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			orig := tc.orig
			snap, err := Take(bytes.NewReader(orig), int64(len(orig)), hlen, tc.offset)
			require.NoError(t, err)
			require.Equal(t, tc.offset, snap.Offset)
			require.Equal(t, tc.dataLen, snap.DataLen)

			cur := tc.modify(append([]byte(nil), orig...))
			v, err := snap.Check(bytes.NewReader(cur), int64(len(cur)))
			require.NoError(t, err)
			require.Equal(t, tc.want, v, "verdict=%v", v)
		})
	}
}

func TestTakeInvalid(t *testing.T) {
	_, err := Take(bytes.NewReader([]byte("abc")), 3, 10, 0)
	require.Error(t, err)
}

func TestVerdictString(t *testing.T) {
	require.Equal(t, "intact", Intact.String())
	require.Equal(t, "header-changed", HeaderChanged.String())
	require.Equal(t, "overwritten", Overwritten.String())
	require.Equal(t, "Verdict(42)", Verdict(42).String())
}
