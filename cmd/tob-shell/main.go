// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// tob-shell is an interactive explorer of data-logger files.
//
// Usage: tob-shell [OPTIONS] FILE
//
// Example:
//
//	$> tob-shell ./ring.dat
//	tob> oldest
//	offset: 2368
//	tob> next 2
//	"2020-01-01 00:00:00",0,12,0,0
//	"2020-01-01 00:00:01",1,12.25,0.5,1
//	tob> quit
package main // import "github.com/go-lpc/datalog/cmd/tob-shell"

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/go-lpc/datalog"
	"github.com/go-lpc/datalog/dispatch"
	"github.com/peterh/liner"
	"go.uber.org/zap"
)

func main() {
	log.SetPrefix("tob-shell: ")
	log.SetFlags(0)

	var (
		schema  = flag.String("schema", "", "path to a JSON table definition")
		mmap    = flag.Bool("mmap", false, "access the file through a memory map")
		verbose = flag.Bool("v", false, "enable verbose mode")
	)

	flag.Usage = func() {
		fmt.Printf(`tob-shell is an interactive explorer of data-logger files.

Usage: tob-shell [OPTIONS] FILE

options:
`)
		flag.PrintDefaults()
	}

	flag.Parse()

	if flag.NArg() != 1 {
		flag.Usage()
		log.Fatalf("missing path to input data file")
	}

	logger := zap.NewNop()
	if *verbose {
		var err error
		logger, err = zap.NewDevelopment()
		if err != nil {
			log.Fatalf("could not create logger: %+v", err)
		}
		defer func() { _ = logger.Sync() }()
	}

	fname := flag.Arg(0)
	r, err := dispatch.Open(fname, *schema, datalog.WithLogger(logger), datalog.WithMmap(*mmap))
	if err != nil {
		log.Fatalf("could not open %q: %+v", fname, err)
	}
	defer r.Close()

	err = run(newShell(os.Stdout, fname, *schema, r))
	if err != nil {
		log.Fatalf("%+v", err)
	}
}

func run(sh *shell) error {
	term := liner.NewLiner()
	defer term.Close()

	term.SetCtrlCAborts(true)
	term.SetCompleter(complete)

	for {
		line, err := term.Prompt("tob> ")
		switch {
		case err == nil:
		case errors.Is(err, liner.ErrPromptAborted), errors.Is(err, io.EOF):
			return nil
		default:
			return fmt.Errorf("could not read command: %w", err)
		}
		if strings.TrimSpace(line) == "" {
			continue
		}
		term.AppendHistory(line)

		quit, err := sh.exec(line)
		if err != nil {
			fmt.Fprintf(sh.w, "error: %v\n", err)
		}
		if quit {
			return nil
		}
	}
}

type command struct {
	help string
	run  func(sh *shell, args []string) error
}

var commands map[string]command

func init() {
	commands = map[string]command{
		"header":    {"display the file header", (*shell).header},
		"fields":    {"display the table fields", (*shell).fields},
		"oldest":    {"move to the oldest record", (*shell).oldest},
		"newest":    {"move to the newest record", (*shell).newest},
		"next":      {"next [n]: display the next n records", (*shell).next},
		"seek":      {"seek off [prev]: move to the record boundary near off", (*shell).seek},
		"index":     {"index the records from the current position", (*shell).index},
		"hibernate": {"release the file", (*shell).hibernate},
		"wake":      {"reacquire the file", (*shell).wake},
		"pos":       {"display the current offset", (*shell).pos},
		"help":      {"display this help", (*shell).help},
	}
}

func complete(line string) []string {
	var o []string
	for name := range commands {
		if strings.HasPrefix(name, line) {
			o = append(o, name)
		}
	}
	if strings.HasPrefix("quit", line) {
		o = append(o, "quit")
	}
	sort.Strings(o)
	return o
}

type shell struct {
	w      io.Writer
	fname  string
	schema string
	r      datalog.Reader
	rec    datalog.Record
}

func newShell(w io.Writer, fname, schema string, r datalog.Reader) *shell {
	return &shell{w: w, fname: fname, schema: schema, r: r}
}

// exec runs one command line and reports whether the shell should stop.
func (sh *shell) exec(line string) (bool, error) {
	toks := strings.Fields(line)
	if len(toks) == 0 {
		return false, nil
	}
	switch toks[0] {
	case "quit", "exit":
		return true, nil
	}
	cmd, ok := commands[toks[0]]
	if !ok {
		return false, fmt.Errorf("unknown command %q (try help)", toks[0])
	}
	return false, cmd.run(sh, toks[1:])
}

func (sh *shell) header(args []string) error {
	fmt.Fprintf(sh.w, "file:      %s\n", sh.fname)
	fmt.Fprintf(sh.w, "table:     %s\n", sh.r.Table())
	fmt.Fprintf(sh.w, "state:     %v\n", sh.r.State())
	fmt.Fprintf(sh.w, "signature: 0x%04x\n", sh.r.HeaderSignature())
	fmt.Fprintf(sh.w, "data:      %d bytes\n", sh.r.DataLength())
	return nil
}

func (sh *shell) fields(args []string) error {
	for i, f := range sh.r.Fields() {
		fmt.Fprintf(sh.w, "%3d %v\n", i, f)
	}
	return nil
}

func (sh *shell) oldest(args []string) error {
	off, err := sh.r.SeekToOldest()
	if err != nil {
		return err
	}
	fmt.Fprintf(sh.w, "offset: %d\n", off)
	return nil
}

func (sh *shell) newest(args []string) error {
	off, err := sh.r.SeekToNewest()
	if err != nil {
		return err
	}
	fmt.Fprintf(sh.w, "offset: %d\n", off)
	return nil
}

func (sh *shell) next(args []string) error {
	n := 1
	if len(args) > 0 {
		v, err := strconv.Atoi(args[0])
		if err != nil || v < 1 {
			return fmt.Errorf("invalid number of records %q", args[0])
		}
		n = v
	}
	for i := 0; i < n; i++ {
		err := sh.r.ReadNextRecord(&sh.rec)
		switch {
		case err == nil:
			err = sh.rec.Format(sh.w)
			if err != nil {
				return err
			}
		case errors.Is(err, io.EOF):
			fmt.Fprintf(sh.w, "end of data\n")
			return nil
		case errors.Is(err, datalog.ErrInvalidRecord):
			fmt.Fprintf(sh.w, "invalid record\n")
		default:
			return err
		}
	}
	return nil
}

func (sh *shell) seek(args []string) error {
	if len(args) == 0 || len(args) > 2 {
		return fmt.Errorf("usage: seek off [prev]")
	}
	off, err := strconv.ParseInt(args[0], 0, 64)
	if err != nil {
		return fmt.Errorf("invalid offset %q", args[0])
	}
	prev := len(args) == 2 && args[1] == "prev"
	err = sh.r.Seek(off, prev)
	if err != nil {
		return err
	}
	return sh.pos(nil)
}

func (sh *shell) index(args []string) error {
	idx, err := sh.r.GenerateIndex(context.Background())
	if err != nil {
		return err
	}
	fmt.Fprintf(sh.w, "records: %d\n", len(idx))
	if n := len(idx); n > 0 {
		fmt.Fprintf(sh.w, "first:   %d @%d\n", idx[0].RecNo, idx[0].Offset)
		fmt.Fprintf(sh.w, "last:    %d @%d\n", idx[n-1].RecNo, idx[n-1].Offset)
	}
	return nil
}

func (sh *shell) hibernate(args []string) error {
	err := sh.r.Hibernate()
	if err != nil {
		return err
	}
	fmt.Fprintf(sh.w, "state: %v\n", sh.r.State())
	return nil
}

func (sh *shell) wake(args []string) error {
	resumed, overwritten, err := sh.r.WakeUp()
	if err != nil {
		return err
	}
	fmt.Fprintf(sh.w, "resumed: %v, overwritten: %v\n", resumed, overwritten)
	if !resumed {
		err = sh.r.Open(sh.fname, sh.schema)
		if err != nil {
			return fmt.Errorf("could not re-open %q: %w", sh.fname, err)
		}
		fmt.Fprintf(sh.w, "re-opened\n")
	}
	return nil
}

func (sh *shell) pos(args []string) error {
	fmt.Fprintf(sh.w, "offset: %d\n", sh.r.DataOffset())
	return nil
}

func (sh *shell) help(args []string) error {
	names := make([]string, 0, len(commands))
	for name := range commands {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(sh.w, "%-10s %s\n", name, commands[name].help)
	}
	fmt.Fprintf(sh.w, "%-10s %s\n", "quit", "leave the shell")
	return nil
}
