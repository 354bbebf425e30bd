// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package tob

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestReadHeader(t *testing.T) {
	for _, typ := range []FileType{TOB1, TOB2, TOB3} {
		t.Run(typ.String(), func(t *testing.T) {
			want := testHeader(typ, 10)
			if typ == TOB1 {
				want.Interval = ""
				want.Resolution = ""
				want.FrameSize = 0
				want.TableSize = 0
				want.Stamp = 0
				want.Created = ""
			}
			buf := new(bytes.Buffer)
			require.NoError(t, NewEncoder(buf, want).WriteHeader())
			buf.WriteString("some data")

			got, err := ReadHeader(buf)
			require.NoError(t, err)
			require.Equal(t, want.Length, got.Length)
			require.Equal(t, typ, got.Type)
			require.Equal(t, "Test", got.Table)
			require.Equal(t, "station-1", got.Station)
			require.Equal(t, "CPU:test.CR1", got.Program)
			require.Len(t, got.Fields, 3)
			for i, f := range got.Fields {
				require.Equal(t, want.Fields[i].Name, f.Name)
				require.Equal(t, want.Fields[i].Type, f.Type)
				require.Equal(t, want.Fields[i].Units, f.Units)
				require.Equal(t, want.Fields[i].Process, f.Process)
			}
			require.Equal(t, 10, got.RecordSize())

			if typ.Framed() {
				require.Equal(t, want.FrameSize, got.FrameSize)
				require.Equal(t, int64(10), got.TableSize)
				require.Equal(t, testStamp, got.Stamp)
				require.Equal(t, time.Second, got.interval)
				require.Equal(t, 100*time.Microsecond, got.tick)
				require.Equal(t, 4, got.RecordsPerFrame())
			}
		})
	}
}

func TestReadHeaderErrors(t *testing.T) {
	for _, tc := range []struct {
		name string
		raw  string
		err  string
	}{
		{
			name: "empty",
			raw:  "",
			err:  "could not read header line #1",
		},
		{
			name: "text",
			raw:  "\"TOA5\",\"st\",\"m\",\"s\",\"os\",\"p\",\"sig\",\"tbl\"\r\n",
			err:  "unknown format tag",
		},
		{
			name: "short-env",
			raw:  "\"TOB3\",\"st\"\r\n",
			err:  "environment line has 2 fields",
		},
		{
			name: "short-decode",
			raw:  "\"TOB3\",\"st\",\"m\",\"s\",\"os\",\"p\",\"sig\",\"now\"\r\n\"tbl\",\"1 SEC\"\r\n",
			err:  "decode line has 2 fields",
		},
		{
			name: "bad-interval",
			raw:  "\"TOB3\",\"st\",\"m\",\"s\",\"os\",\"p\",\"sig\",\"now\"\r\n\"tbl\",\"1 FORTNIGHT\",56,10,1,\"Sec100Usec\"\r\n",
			err:  "invalid record interval unit",
		},
		{
			name: "missing-lines",
			raw:  "\"TOB3\",\"st\",\"m\",\"s\",\"os\",\"p\",\"sig\",\"now\"\r\n\"tbl\",\"1 SEC\",56,10,1,\"Sec100Usec\"\r\n\"A\"\r\n",
			err:  "could not read header line #4",
		},
		{
			name: "inconsistent",
			raw: "\"TOB3\",\"st\",\"m\",\"s\",\"os\",\"p\",\"sig\",\"now\"\r\n\"tbl\",\"1 SEC\",56,10,1,\"Sec100Usec\"\r\n" +
				"\"A\",\"B\"\r\n\"\",\"\"\r\n\"Smp\"\r\n\"IEEE4\",\"IEEE4\"\r\n",
			err: "inconsistent number of processing",
		},
		{
			name: "small-frame",
			raw: "\"TOB3\",\"st\",\"m\",\"s\",\"os\",\"p\",\"sig\",\"now\"\r\n\"tbl\",\"1 SEC\",16,10,1,\"Sec100Usec\"\r\n" +
				"\"A\"\r\n\"\"\r\n\"Smp\"\r\n\"IEEE4\"\r\n",
			err: "frame size 16 too small",
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ReadHeader(strings.NewReader(tc.raw))
			require.ErrorContains(t, err, tc.err)
		})
	}

	_, err := ReadHeader(strings.NewReader("\"TOACI1\",\"st\",\"tbl\"\r\n"))
	require.True(t, errors.Is(err, errUnsupported))
}

func TestParseInterval(t *testing.T) {
	for _, tc := range []struct {
		v    string
		want time.Duration
		err  bool
	}{
		{v: "1 SEC", want: time.Second},
		{v: "100 MSEC", want: 100 * time.Millisecond},
		{v: "15 min", want: 15 * time.Minute},
		{v: "0 SEC", want: 0},
		{v: "1 DAY", want: 24 * time.Hour},
		{v: "SEC", err: true},
		{v: "-1 SEC", err: true},
		{v: "1 WEEK", err: true},
	} {
		t.Run(tc.v, func(t *testing.T) {
			got, err := ParseInterval(tc.v)
			if tc.err {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tc.want, got)
		})
	}
}

func TestParseResolution(t *testing.T) {
	for _, tc := range []struct {
		v    string
		want time.Duration
		err  bool
	}{
		{v: "Sec100Usec", want: 100 * time.Microsecond},
		{v: "SecUsec", want: time.Microsecond},
		{v: "Sec10Usec", want: 10 * time.Microsecond},
		{v: "SecMsec", want: time.Millisecond},
		{v: "SecNsec", want: time.Nanosecond},
		{v: "Sec", want: time.Second},
		{v: "Usec", err: true},
		{v: "Sec0Usec", err: true},
		{v: "SecFoo", err: true},
	} {
		t.Run(tc.v, func(t *testing.T) {
			got, err := ParseResolution(tc.v)
			if tc.err {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tc.want, got)
		})
	}
}
