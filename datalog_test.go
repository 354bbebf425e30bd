// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package datalog

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"runtime/debug"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/vmihailenco/msgpack/v5"
	"go.uber.org/zap/zaptest"
)

func TestError(t *testing.T) {
	cause := os.ErrNotExist
	err := fmt.Errorf("wrapped: %w", NewError("open", "data.dat", ErrCannotOpen, cause))

	require.True(t, errors.Is(err, ErrCannotOpen))
	require.True(t, errors.Is(err, os.ErrNotExist))
	require.False(t, errors.Is(err, ErrCorruptFile))

	var e *Error
	require.True(t, errors.As(err, &e))
	require.Equal(t, "open", e.Op)
	require.Equal(t, "data.dat", e.Path)

	for _, tc := range []struct {
		err  *Error
		want string
	}{
		{NewError("open", "f.dat", ErrCannotOpen, cause), "datalog: open f.dat: cannot open file: file does not exist"},
		{NewError("read", "", ErrInvalidRecord, nil), "datalog: read invalid record"},
		{NewError("", "", nil, cause), "datalog: file does not exist"},
	} {
		t.Run(tc.want, func(t *testing.T) {
			require.Equal(t, tc.want, tc.err.Error())
		})
	}
}

func TestFatal(t *testing.T) {
	for _, tc := range []struct {
		err  error
		want bool
	}{
		{nil, false},
		{io.EOF, false},
		{NewError("read", "f", ErrInvalidRecord, nil), false},
		{fmt.Errorf("x: %w", io.EOF), false},
		{NewError("read", "f", ErrNotInitialized, nil), true},
		{NewError("open", "f", ErrCorruptFile, nil), true},
		{io.ErrUnexpectedEOF, true},
	} {
		t.Run(fmt.Sprintf("%v", tc.err), func(t *testing.T) {
			require.Equal(t, tc.want, Fatal(tc.err))
		})
	}
}

func TestIndexFile(t *testing.T) {
	ts := time.Date(2020, 1, 2, 3, 4, 5, 6, time.UTC)
	want := IndexFile{
		Signature: 0xbeef,
		Table:     "Hourly",
		Entries: []IndexEntry{
			{Offset: 100, Time: ts, RecNo: 1},
			{Offset: 140, Time: ts.Add(time.Hour), RecNo: -1, Table: "Hourly"},
		},
	}

	buf := new(bytes.Buffer)
	require.NoError(t, WriteIndex(buf, want))

	got, err := ReadIndex(bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)
	require.Equal(t, indexVersion, got.Version)
	require.Equal(t, want.Signature, got.Signature)
	require.Equal(t, want.Table, got.Table)
	require.Len(t, got.Entries, 2)
	for i := range want.Entries {
		require.True(t, want.Entries[i].Time.Equal(got.Entries[i].Time))
		require.Equal(t, want.Entries[i].Offset, got.Entries[i].Offset)
		require.Equal(t, want.Entries[i].RecNo, got.Entries[i].RecNo)
		require.Equal(t, want.Entries[i].Table, got.Entries[i].Table)
	}

	t.Run("version", func(t *testing.T) {
		raw, err := msgpack.Marshal(&IndexFile{Version: indexVersion + 1})
		require.NoError(t, err)
		_, err = ReadIndex(bytes.NewReader(raw))
		require.ErrorContains(t, err, "invalid index version")
	})

	t.Run("truncated", func(t *testing.T) {
		_, err := ReadIndex(bytes.NewReader(buf.Bytes()[:buf.Len()/2]))
		require.Error(t, err)
	})
}

func TestFormatValue(t *testing.T) {
	ts := time.Date(2020, 1, 2, 3, 4, 5, 500_000_000, time.UTC)
	for _, tc := range []struct {
		v    any
		want string
	}{
		{float32(12.5), "12.5"},
		{float32(0.1), "0.1"},
		{0.1, "0.1"},
		{math.NaN(), `"NAN"`},
		{float32(math.Inf(+1)), `"INF"`},
		{math.Inf(-1), `"-INF"`},
		{int64(-42), "-42"},
		{uint64(42), "42"},
		{true, "-1"},
		{false, "0"},
		{"ok", `"ok"`},
		{`a "b"`, `"a ""b"""`},
		{ts, `"2020-01-02 03:04:05.5"`},
		{nil, ""},
		{[]int{1}, "[1]"},
	} {
		t.Run(tc.want, func(t *testing.T) {
			require.Equal(t, tc.want, FormatValue(tc.v))
		})
	}
}

func TestRecord(t *testing.T) {
	rec := Record{
		Offset: 10,
		Time:   time.Date(2020, 1, 2, 3, 0, 0, 0, time.UTC),
		RecNo:  7,
		Table:  "Hourly",
		Values: []any{float32(1.5), "x"},
		Raw:    []byte{1, 2, 3},
	}

	buf := new(bytes.Buffer)
	require.NoError(t, rec.Format(buf))
	require.Equal(t, "\"2020-01-02 03:00:00\",7,1.5,\"x\"\n", buf.String())

	rec.Reset()
	require.Equal(t, int64(0), rec.Offset)
	require.Equal(t, "", rec.Table)
	require.Len(t, rec.Values, 0)
	require.Len(t, rec.Raw, 0)
	require.Equal(t, 2, cap(rec.Values))
}

func TestConfig(t *testing.T) {
	cfg := NewConfig()
	require.NotNil(t, cfg.Logger)
	require.False(t, cfg.Mmap)
	require.False(t, cfg.Float64)

	logger := zaptest.NewLogger(t)
	cfg = NewConfig(WithLogger(logger), WithMmap(true), WithFloat64(true))
	require.Same(t, logger, cfg.Logger)
	require.True(t, cfg.Mmap)
	require.True(t, cfg.Float64)

	cfg = NewConfig(WithLogger(nil))
	require.NotNil(t, cfg.Logger)
}

func TestState(t *testing.T) {
	for _, tc := range []struct {
		s    State
		want string
	}{
		{Closed, "closed"},
		{Opened, "opened"},
		{Hibernated, "hibernated"},
		{State(42), "State(42)"},
	} {
		require.Equal(t, tc.want, tc.s.String())
	}
}

func TestVersion(t *testing.T) {
	for _, tc := range []struct {
		b       *debug.BuildInfo
		version string
		sum     string
	}{
		{nil, "", ""},
		{&debug.BuildInfo{}, "", ""},
		{
			&debug.BuildInfo{Deps: []*debug.Module{
				{Path: "github.com/go-lpc/datalog", Version: "v0.1.0", Sum: "h1:xyz"},
			}},
			"v0.1.0", "h1:xyz",
		},
		{
			&debug.BuildInfo{Deps: []*debug.Module{
				{
					Path: "github.com/go-lpc/datalog", Version: "v0.1.0",
					Replace: &debug.Module{Path: "../datalog"},
				},
			}},
			"../datalog", "",
		},
		{
			&debug.BuildInfo{Deps: []*debug.Module{
				{
					Path: "github.com/go-lpc/datalog", Version: "v0.1.0",
					Replace: &debug.Module{},
				},
			}},
			"v0.1.0*", "",
		},
	} {
		version, sum := versionOf(tc.b)
		require.Equal(t, tc.version, version)
		require.Equal(t, tc.sum, sum)
	}
}
