// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// tob-dump decodes and displays data-logger files.
//
// Usage: tob-dump [OPTIONS] FILE1 [FILE2 [FILE3 ...]]
//
// Example:
//
//	$> tob-dump -n 2 ./ring.dat
//	file:   ./ring.dat
//	format: TOB3
//	table:  Gen
//	data:   5600 bytes
//	fields: 3
//	  Batt FP2 [V] Smp
//	  Temp IEEE4 [degC] Avg
//	  Count LONG Smp
//	"2020-01-01 00:00:00",0,12,0,0
//	"2020-01-01 00:00:01",1,12.25,0.5,1
//
// With -toa5, records are converted into a TOA5 text file written on stdout.
package main // import "github.com/go-lpc/datalog/cmd/tob-dump"

import (
	"bufio"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"

	"github.com/go-lpc/datalog"
	"github.com/go-lpc/datalog/catalog"
	"github.com/go-lpc/datalog/dispatch"
	"github.com/go-lpc/datalog/toa"
	"github.com/go-lpc/datalog/tob"
	"go.uber.org/zap"
)

func main() {
	log.SetPrefix("tob-dump: ")
	log.SetFlags(0)

	xmain(os.Stdout, os.Args[1:])
}

type options struct {
	verbose bool
	mmap    bool
	toa5    bool
	schema  string
	n       int // maximum number of records, 0 for all
}

func xmain(w io.Writer, args []string) {
	var (
		fset = flag.NewFlagSet("tob-dump", flag.ExitOnError)
		opts options
	)
	fset.BoolVar(&opts.verbose, "v", false, "enable verbose mode")
	fset.BoolVar(&opts.mmap, "mmap", false, "access files through a memory map")
	fset.BoolVar(&opts.toa5, "toa5", false, "convert records to TOA5")
	fset.StringVar(&opts.schema, "schema", "", "path to a JSON table definition")
	fset.IntVar(&opts.n, "n", 0, "maximum number of records to display (0: all)")

	fset.Usage = func() {
		fmt.Printf(`tob-dump decodes and displays data-logger files.

Usage: tob-dump [OPTIONS] FILE1 [FILE2 [FILE3 ...]]

ex:
 $> tob-dump -n 10 ./ring.dat
 $> tob-dump -toa5 ./ring.dat > ring.csv

options:
`)
		fset.PrintDefaults()
	}

	err := fset.Parse(args)
	if err != nil {
		log.Fatalf("could not parse input arguments: %+v", err)
	}

	if fset.NArg() == 0 {
		fset.Usage()
		log.Fatalf("missing path to input data file")
	}

	for _, fname := range fset.Args() {
		err := process(w, fname, opts)
		if err != nil {
			log.Fatalf("could not dump file %q: %+v", fname, err)
		}
	}
}

func process(w io.Writer, fname string, opts options) error {
	logger := zap.NewNop()
	if opts.verbose {
		var err error
		logger, err = zap.NewDevelopment()
		if err != nil {
			return fmt.Errorf("could not create logger: %w", err)
		}
		defer func() { _ = logger.Sync() }()
	}

	tag, err := dispatch.Sniff(fname)
	if err != nil {
		return err
	}
	r, err := dispatch.New(tag, datalog.WithLogger(logger), datalog.WithMmap(opts.mmap))
	if err != nil {
		return err
	}
	err = r.Open(fname, opts.schema)
	if err != nil {
		return err
	}
	defer r.Close()

	wbuf := bufio.NewWriter(w)
	defer wbuf.Flush()

	if opts.toa5 {
		return convert(wbuf, r, opts.n)
	}

	fmt.Fprintf(wbuf, "file:   %s\n", fname)
	fmt.Fprintf(wbuf, "format: %s\n", tag)
	fmt.Fprintf(wbuf, "table:  %s\n", r.Table())
	fmt.Fprintf(wbuf, "data:   %d bytes\n", r.DataLength())
	fmt.Fprintf(wbuf, "fields: %d\n", len(r.Fields()))
	for _, f := range r.Fields() {
		fmt.Fprintf(wbuf, "  %v\n", f)
	}

	bad, err := scan(r, opts.n, func(rec *datalog.Record) error {
		return rec.Format(wbuf)
	})
	if err != nil {
		return err
	}
	if bad > 0 {
		fmt.Fprintf(wbuf, "invalid records: %d\n", bad)
	}
	return wbuf.Flush()
}

// scan reads at most n records (all of them if n <= 0) and returns the
// number of invalid records that were skipped.
func scan(r datalog.Reader, n int, f func(rec *datalog.Record) error) (int, error) {
	var (
		rec datalog.Record
		bad int
	)
	for i := 0; n <= 0 || i < n; {
		err := r.ReadNextRecord(&rec)
		switch {
		case err == nil:
			err = f(&rec)
			if err != nil {
				return bad, fmt.Errorf("could not write record: %w", err)
			}
			i++
		case errors.Is(err, io.EOF):
			return bad, nil
		case errors.Is(err, datalog.ErrInvalidRecord):
			bad++
		default:
			return bad, fmt.Errorf("could not read record: %w", err)
		}
	}
	return bad, nil
}

// convert writes the records of r as a TOA5 file.
// Binary files gain leading TIMESTAMP and RECORD columns.
func convert(w io.Writer, r datalog.Reader, n int) error {
	hdr := toa.Header{
		Format: toa.TOA5,
		Table:  r.Table(),
		Fields: r.Fields(),
	}
	native := false
	switch e := r.(type) {
	case *tob.Engine:
		h := e.Header()
		hdr.Station = h.Station
		hdr.Model = h.Model
		hdr.Serial = h.Serial
		hdr.OS = h.OS
		hdr.Program = h.Program
		hdr.Signature = h.Signature
	case *toa.Engine:
		h := e.Header()
		hdr.Station = h.Station
		hdr.Model = h.Model
		hdr.Serial = h.Serial
		hdr.OS = h.OS
		hdr.Program = h.Program
		hdr.Signature = h.Signature
		native = true
	}
	if !native {
		hdr.Fields = append([]catalog.Field{
			{Name: "TIMESTAMP", Base: "TIMESTAMP", Units: "TS", Type: catalog.Timestamp},
			{Name: "RECORD", Base: "RECORD", Units: "RN", Type: catalog.Int},
		}, hdr.Fields...)
	}

	tw := toa.NewWriter(w)
	err := tw.WriteHeader(hdr)
	if err != nil {
		return err
	}

	var vals []any
	_, err = scan(r, n, func(rec *datalog.Record) error {
		vals = append(vals[:0], rec.Values...)
		if !native {
			vals = append(append(vals[:0], rec.Time, rec.RecNo), rec.Values...)
		}
		return tw.WriteValues(vals)
	})
	if err != nil {
		return err
	}
	return tw.Flush()
}
