// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// tob-index indexes the records of data-logger files.
//
// Usage: tob-index [OPTIONS] FILE1 [FILE2 [FILE3 ...]]
//
// Files are indexed concurrently. With -o, an index cache named after each
// file is written to the output directory. With -db, indexes are stored in
// a MySQL database.
//
// Example:
//
//	$> tob-index -j 4 -o ./idx ./ring.dat ./hourly.dat
//	./ring.dat: table="Gen" records=400 sig=0x1d0f [2020-01-01 00:00:00 -> 2020-01-01 00:06:39]
//	./hourly.dat: table="Hourly" records=24 sig=0x35c8 [2020-01-02 00:00:00 -> 2020-01-02 23:00:00]
package main // import "github.com/go-lpc/datalog/cmd/tob-index"

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"

	"github.com/go-lpc/datalog"
	"github.com/go-lpc/datalog/dispatch"
	"github.com/go-lpc/datalog/indexdb"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func main() {
	log.SetPrefix("tob-index: ")
	log.SetFlags(0)

	xmain(os.Stdout, os.Args[1:])
}

func xmain(w io.Writer, args []string) {
	var (
		fset = flag.NewFlagSet("tob-index", flag.ExitOnError)

		njobs   = fset.Int("j", runtime.NumCPU(), "number of concurrent jobs")
		odir    = fset.String("o", "", "output directory for index caches")
		dsn     = fset.String("db", "", "MySQL data source name (e.g. user:pwd@tcp(host)/db?parseTime=true)")
		verbose = fset.Bool("v", false, "enable verbose mode")
	)

	fset.Usage = func() {
		fmt.Printf(`Usage: tob-index [OPTIONS] FILE1 [FILE2 [FILE3 ...]]

ex:
 $> tob-index -j 4 -o ./idx ./ring.dat ./hourly.dat

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

	logger := zap.NewNop()
	if *verbose {
		logger, err = zap.NewDevelopment()
		if err != nil {
			log.Fatalf("could not create logger: %+v", err)
		}
		defer func() { _ = logger.Sync() }()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	var db *indexdb.DB
	if *dsn != "" {
		db, err = indexdb.Open(*dsn)
		if err != nil {
			log.Fatalf("could not open index db: %+v", err)
		}
		defer db.Close()

		err = db.Init(ctx)
		if err != nil {
			log.Fatalf("could not initialize index db: %+v", err)
		}
	}

	err = process(ctx, w, fset.Args(), *njobs, *odir, db, logger)
	if err != nil {
		log.Fatalf("could not index files: %+v", err)
	}
}

type result struct {
	fname string
	idx   datalog.IndexFile
}

func process(ctx context.Context, w io.Writer, fnames []string, njobs int, odir string, db *indexdb.DB, logger *zap.Logger) error {
	if odir != "" {
		err := os.MkdirAll(odir, 0755)
		if err != nil {
			return fmt.Errorf("could not create output directory: %w", err)
		}
	}
	if njobs <= 0 {
		njobs = 1
	}

	var (
		res      = make([]result, len(fnames))
		grp, gtx = errgroup.WithContext(ctx)
	)
	grp.SetLimit(njobs)
	for i := range fnames {
		i := i
		grp.Go(func() error {
			fname := fnames[i]
			idx, err := index(gtx, fname, logger.With(zap.String("file", fname)))
			if err != nil {
				return fmt.Errorf("could not index %q: %w", fname, err)
			}
			if odir != "" {
				err = save(filepath.Join(odir, filepath.Base(fname)+".idx"), idx)
				if err != nil {
					return fmt.Errorf("could not save index of %q: %w", fname, err)
				}
			}
			if db != nil {
				err = db.Store(gtx, fname, idx)
				if err != nil {
					return fmt.Errorf("could not store index of %q: %w", fname, err)
				}
			}
			res[i] = result{fname: fname, idx: idx}
			return nil
		})
	}

	err := grp.Wait()
	if err != nil {
		return err
	}

	wbuf := bufio.NewWriter(w)
	for _, r := range res {
		fmt.Fprintf(wbuf, "%s: table=%q records=%d sig=0x%04x", r.fname, r.idx.Table, len(r.idx.Entries), r.idx.Signature)
		if n := len(r.idx.Entries); n > 0 {
			const layout = "2006-01-02 15:04:05"
			fmt.Fprintf(wbuf, " [%s -> %s]",
				r.idx.Entries[0].Time.UTC().Format(layout),
				r.idx.Entries[n-1].Time.UTC().Format(layout),
			)
		}
		fmt.Fprintf(wbuf, "\n")
	}
	return wbuf.Flush()
}

func index(ctx context.Context, fname string, logger *zap.Logger) (datalog.IndexFile, error) {
	var idx datalog.IndexFile

	r, err := dispatch.Open(fname, "", datalog.WithLogger(logger))
	if err != nil {
		return idx, err
	}
	defer r.Close()

	entries, err := r.GenerateIndex(ctx)
	if err != nil {
		return idx, err
	}

	idx = datalog.IndexFile{
		Signature: r.HeaderSignature(),
		Table:     r.Table(),
		Entries:   entries,
	}
	return idx, nil
}

func save(oname string, idx datalog.IndexFile) error {
	f, err := os.Create(oname)
	if err != nil {
		return fmt.Errorf("could not create index file: %w", err)
	}
	defer f.Close()

	err = datalog.WriteIndex(f, idx)
	if err != nil {
		return err
	}

	err = f.Close()
	if err != nil {
		return fmt.Errorf("could not close index file: %w", err)
	}
	return nil
}
