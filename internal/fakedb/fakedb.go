// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package fakedb holds types to fake an in-memory DB.
//
// Queries return, in turn, the row sets installed by Run. Executed
// statements and transaction boundaries are recorded and returned by Run.
package fakedb // import "github.com/go-lpc/datalog/internal/fakedb"

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"io"
	"sync"
)

var query struct {
	mu   sync.Mutex
	rows []Rows
}

var journal struct {
	mu    sync.Mutex
	execs []Exec
}

// Exec is a statement executed against the fake DB.
type Exec struct {
	Query string
	Args  []driver.Value
}

// Run runs f with rows as the results of its successive queries and
// returns the statements f executed.
func Run(ctx context.Context, rows []Rows, f func(ctx context.Context) error) ([]Exec, error) {
	query.mu.Lock()
	defer query.mu.Unlock()
	query.rows = rows

	journal.mu.Lock()
	journal.execs = nil
	journal.mu.Unlock()

	err := f(ctx)

	journal.mu.Lock()
	defer journal.mu.Unlock()
	execs := journal.execs
	journal.execs = nil
	return execs, err
}

func record(q string, args []driver.Value) {
	journal.mu.Lock()
	defer journal.mu.Unlock()
	journal.execs = append(journal.execs, Exec{Query: q, Args: args})
}

func init() {
	sql.Register("fakedb", &Driver{})
}

type Driver struct{}

// Open returns a new connection to the database.
func (drv *Driver) Open(name string) (driver.Conn, error) {
	return &Conn{}, nil
}

type Conn struct{}

// Prepare returns a prepared statement, bound to this connection.
func (c *Conn) Prepare(query string) (driver.Stmt, error) {
	return &Stmt{query: query}, nil
}

func (c *Conn) Close() error {
	return nil
}

// Begin starts and returns a new transaction.
func (c *Conn) Begin() (driver.Tx, error) {
	record("BEGIN", nil)
	return &Tx{}, nil
}

type Tx struct{}

func (tx *Tx) Commit() error {
	record("COMMIT", nil)
	return nil
}

func (tx *Tx) Rollback() error {
	record("ROLLBACK", nil)
	return nil
}

type Stmt struct {
	query string
}

func (stmt *Stmt) Close() error {
	return nil
}

// NumInput returns -1: argument counts are not checked.
func (stmt *Stmt) NumInput() int {
	return -1
}

// Exec records the statement and its arguments.
func (stmt *Stmt) Exec(args []driver.Value) (driver.Result, error) {
	record(stmt.query, append([]driver.Value(nil), args...))
	return driver.RowsAffected(1), nil
}

// Query returns the next row set installed by Run.
// Queries beyond the installed row sets yield no rows.
func (stmt *Stmt) Query(args []driver.Value) (driver.Rows, error) {
	if len(query.rows) == 0 {
		return &Rows{}, nil
	}
	rows := query.rows[0]
	query.rows = query.rows[1:]
	return &rows, nil
}

type Rows struct {
	Names  []string
	Values [][]driver.Value
}

// Columns returns the names of the columns.
func (rows *Rows) Columns() []string {
	return rows.Names
}

// Close closes the rows iterator.
func (rows *Rows) Close() error {
	return nil
}

// Next populates the next row of data into dest.
// Next returns io.EOF when there are no more rows.
func (rows *Rows) Next(dest []driver.Value) error {
	if len(rows.Values) == 0 {
		return io.EOF
	}
	copy(dest, rows.Values[0])
	rows.Values = rows.Values[1:]
	return nil
}

var (
	_ driver.Driver = (*Driver)(nil)
	_ driver.Conn   = (*Conn)(nil)
	_ driver.Tx     = (*Tx)(nil)
	_ driver.Stmt   = (*Stmt)(nil)
	_ driver.Rows   = (*Rows)(nil)
)
