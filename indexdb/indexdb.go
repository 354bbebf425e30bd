// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package indexdb stores record indexes of data files in a MySQL database.
//
// Time columns are scanned into time.Time values: MySQL data source names
// need the parseTime=true parameter.
package indexdb // import "github.com/go-lpc/datalog/indexdb"

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/go-lpc/datalog"
	_ "github.com/go-sql-driver/mysql"
)

var drvName = "mysql"

const timeout = 5 * time.Second

var schema = []string{
	`CREATE TABLE IF NOT EXISTS datafiles (
	path      VARCHAR(512) NOT NULL PRIMARY KEY,
	tbl       VARCHAR(128) NOT NULL,
	signature SMALLINT UNSIGNED NOT NULL,
	nrecords  BIGINT NOT NULL,
	updated   DATETIME(6) NOT NULL
)`,
	`CREATE TABLE IF NOT EXISTS records (
	path   VARCHAR(512) NOT NULL,
	offset BIGINT NOT NULL,
	time   DATETIME(6) NOT NULL,
	recno  BIGINT NOT NULL,
	PRIMARY KEY (path, offset)
)`,
}

// DB exposes convenience methods to store and retrieve record indexes.
type DB struct {
	db *sql.DB
}

// Open opens a connection to the index database described by dsn.
func Open(dsn string) (*DB, error) {
	db, err := sql.Open(drvName, dsn)
	if err != nil {
		return nil, fmt.Errorf("indexdb: could not open db: %w", err)
	}

	err = ping(db)
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	return &DB{db: db}, nil
}

// New returns an index database using the provided handle.
func New(db *sql.DB) *DB {
	return &DB{db: db}
}

func ping(db *sql.DB) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	err := db.PingContext(ctx)
	if err != nil {
		return fmt.Errorf("indexdb: could not ping db: %w", err)
	}

	return nil
}

func (db *DB) Close() error {
	return db.db.Close()
}

// Init creates the index tables when they do not exist.
func (db *DB) Init(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	for _, stmt := range schema {
		_, err := db.db.ExecContext(ctx, stmt)
		if err != nil {
			return fmt.Errorf("indexdb: could not create tables: %w", err)
		}
	}
	return nil
}

// Store replaces the index of the data file at path.
func (db *DB) Store(ctx context.Context, path string, idx datalog.IndexFile) error {
	tx, err := db.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("indexdb: could not start transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, "DELETE FROM records WHERE path=?", path)
	if err != nil {
		return fmt.Errorf("indexdb: could not delete index of %q: %w", path, err)
	}

	_, err = tx.ExecContext(ctx,
		"REPLACE INTO datafiles (path, tbl, signature, nrecords, updated) VALUES (?, ?, ?, ?, ?)",
		path, idx.Table, idx.Signature, int64(len(idx.Entries)), time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("indexdb: could not store data file %q: %w", path, err)
	}

	stmt, err := tx.PrepareContext(ctx,
		"INSERT INTO records (path, offset, time, recno) VALUES (?, ?, ?, ?)",
	)
	if err != nil {
		return fmt.Errorf("indexdb: could not prepare record insertion: %w", err)
	}
	defer stmt.Close()

	for i, e := range idx.Entries {
		_, err = stmt.ExecContext(ctx, path, e.Offset, e.Time.UTC(), e.RecNo)
		if err != nil {
			return fmt.Errorf("indexdb: could not store record %d of %q: %w", i, path, err)
		}
	}

	err = tx.Commit()
	if err != nil {
		return fmt.Errorf("indexdb: could not commit index of %q: %w", path, err)
	}
	return nil
}

// Load returns the index stored for the data file at path.
// A data file without stored index yields sql.ErrNoRows.
func (db *DB) Load(ctx context.Context, path string) (datalog.IndexFile, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var idx datalog.IndexFile
	err := db.db.QueryRowContext(ctx,
		"SELECT tbl, signature FROM datafiles WHERE path=?", path,
	).Scan(&idx.Table, &idx.Signature)
	if err != nil {
		return idx, fmt.Errorf("indexdb: could not query data file %q: %w", path, err)
	}

	idx.Entries, err = db.entries(ctx, path, idx.Table)
	if err != nil {
		return idx, err
	}
	return idx, nil
}

func (db *DB) entries(ctx context.Context, path, table string) ([]datalog.IndexEntry, error) {
	rows, err := db.db.QueryContext(ctx,
		"SELECT offset, time, recno FROM records WHERE path=? ORDER BY offset", path,
	)
	if err != nil {
		return nil, fmt.Errorf("indexdb: could not query records of %q: %w", path, err)
	}
	defer rows.Close()

	var entries []datalog.IndexEntry
	for rows.Next() {
		e := datalog.IndexEntry{Table: table}
		err = rows.Scan(&e.Offset, &e.Time, &e.RecNo)
		if err != nil {
			return entries, fmt.Errorf("indexdb: could not scan record %d of %q: %w", len(entries), path, err)
		}
		entries = append(entries, e)
	}

	if err := rows.Err(); err != nil {
		return entries, fmt.Errorf("indexdb: could not scan db for records of %q: %w", path, err)
	}

	if err := ctx.Err(); err != nil {
		return entries, fmt.Errorf("indexdb: context error while retrieving records of %q: %w", path, err)
	}

	return entries, nil
}
