// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package indexdb

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"testing"
	"time"

	"github.com/go-lpc/datalog"
	"github.com/go-lpc/datalog/internal/fakedb"
)

func init() {
	drvName = "fakedb"
}

func TestOpen(t *testing.T) {
	db, err := Open("fakedb")
	if err != nil {
		t.Fatalf("could not open indexdb: %+v", err)
	}
	defer db.Close()
}

func TestInit(t *testing.T) {
	db, err := Open("fakedb")
	if err != nil {
		t.Fatalf("could not open indexdb: %+v", err)
	}
	defer db.Close()

	execs, err := fakedb.Run(context.Background(), nil, db.Init)
	if err != nil {
		t.Fatalf("could not create tables: %+v", err)
	}
	if got, want := len(execs), len(schema); got != want {
		t.Fatalf("invalid number of statements: got=%d, want=%d", got, want)
	}
	for i, exec := range execs {
		if got, want := exec.Query, schema[i]; got != want {
			t.Fatalf("invalid statement %d:\ngot= %q\nwant=%q", i, got, want)
		}
	}
}

func TestStore(t *testing.T) {
	db, err := Open("fakedb")
	if err != nil {
		t.Fatalf("could not open indexdb: %+v", err)
	}
	defer db.Close()

	t0 := time.Date(2020, 1, 2, 3, 0, 0, 0, time.UTC)
	idx := datalog.IndexFile{
		Signature: 0xbeef,
		Table:     "Hourly",
		Entries: []datalog.IndexEntry{
			{Offset: 100, Time: t0, RecNo: 10},
			{Offset: 130, Time: t0.Add(time.Hour), RecNo: 11},
		},
	}

	execs, err := fakedb.Run(context.Background(), nil, func(ctx context.Context) error {
		return db.Store(ctx, "hourly.dat", idx)
	})
	if err != nil {
		t.Fatalf("could not store index: %+v", err)
	}

	want := []string{
		"BEGIN",
		"DELETE FROM records WHERE path=?",
		"REPLACE INTO datafiles (path, tbl, signature, nrecords, updated) VALUES (?, ?, ?, ?, ?)",
		"INSERT INTO records (path, offset, time, recno) VALUES (?, ?, ?, ?)",
		"INSERT INTO records (path, offset, time, recno) VALUES (?, ?, ?, ?)",
		"COMMIT",
	}
	if got, want := len(execs), len(want); got != want {
		t.Fatalf("invalid number of statements: got=%d, want=%d\n%v", got, want, execs)
	}
	for i := range want {
		if got, want := execs[i].Query, want[i]; got != want {
			t.Fatalf("invalid statement %d:\ngot= %q\nwant=%q", i, got, want)
		}
	}

	file := execs[2].Args
	if got, want := file[:4], []driver.Value{"hourly.dat", "Hourly", int64(0xbeef), int64(2)}; !equal(got, want) {
		t.Fatalf("invalid data file values: got=%v, want=%v", got, want)
	}
	rec := execs[4].Args
	if got, want := rec, []driver.Value{"hourly.dat", int64(130), t0.Add(time.Hour), int64(11)}; !equal(got, want) {
		t.Fatalf("invalid record values: got=%v, want=%v", got, want)
	}
}

func equal(a, b []driver.Value) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		switch v := a[i].(type) {
		case time.Time:
			w, ok := b[i].(time.Time)
			if !ok || !v.Equal(w) {
				return false
			}
		default:
			if a[i] != b[i] {
				return false
			}
		}
	}
	return true
}

func TestLoad(t *testing.T) {
	db, err := Open("fakedb")
	if err != nil {
		t.Fatalf("could not open indexdb: %+v", err)
	}
	defer db.Close()

	t0 := time.Date(2020, 1, 2, 3, 0, 0, 0, time.UTC)
	rows := []fakedb.Rows{
		{
			Names:  []string{"tbl", "signature"},
			Values: [][]driver.Value{{"Hourly", int64(0xbeef)}},
		},
		{
			Names: []string{"offset", "time", "recno"},
			Values: [][]driver.Value{
				{int64(100), t0, int64(10)},
				{int64(130), t0.Add(time.Hour), int64(11)},
			},
		},
	}

	_, err = fakedb.Run(context.Background(), rows, func(ctx context.Context) error {
		idx, err := db.Load(ctx, "hourly.dat")
		if err != nil {
			return err
		}
		if got, want := idx.Table, "Hourly"; got != want {
			t.Fatalf("invalid table: got=%q, want=%q", got, want)
		}
		if got, want := idx.Signature, uint16(0xbeef); got != want {
			t.Fatalf("invalid signature: got=0x%x, want=0x%x", got, want)
		}
		want := []datalog.IndexEntry{
			{Offset: 100, Time: t0, RecNo: 10, Table: "Hourly"},
			{Offset: 130, Time: t0.Add(time.Hour), RecNo: 11, Table: "Hourly"},
		}
		if got, want := len(idx.Entries), len(want); got != want {
			t.Fatalf("invalid number of entries: got=%d, want=%d", got, want)
		}
		for i := range want {
			got := idx.Entries[i]
			if got.Offset != want[i].Offset || got.RecNo != want[i].RecNo ||
				got.Table != want[i].Table || !got.Time.Equal(want[i].Time) {
				t.Fatalf("invalid entry %d:\ngot= %+v\nwant=%+v", i, got, want[i])
			}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("could not load index: %+v", err)
	}

	_, err = fakedb.Run(context.Background(), nil, func(ctx context.Context) error {
		_, err := db.Load(ctx, "missing.dat")
		return err
	})
	if !errors.Is(err, sql.ErrNoRows) {
		t.Fatalf("invalid error: got=%v, want=%v", err, sql.ErrNoRows)
	}
}

func TestNew(t *testing.T) {
	sqldb, err := sql.Open("fakedb", "")
	if err != nil {
		t.Fatalf("could not open fakedb: %+v", err)
	}
	db := New(sqldb)
	defer db.Close()

	_, err = fakedb.Run(context.Background(), nil, db.Init)
	if err != nil {
		t.Fatalf("could not create tables: %+v", err)
	}
}
