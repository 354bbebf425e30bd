// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// tob-gen generates synthetic binary data-logger files.
//
// Usage: tob-gen [OPTIONS]
//
// Frames [0,W) of the generated ring hold the newest records and carry the
// validation stamp, frames [W,N) hold the oldest ones and carry its
// complement. With -wrap 0 the ring has not wrapped yet.
//
// Example:
//
//	$> tob-gen -frames 100 -wrap 37 -o ring.dat
//	tob-gen: wrote 400 records in 100 frames to "ring.dat"
package main // import "github.com/go-lpc/datalog/cmd/tob-gen"

import (
	"bufio"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"time"

	"github.com/go-lpc/datalog/catalog"
	"github.com/go-lpc/datalog/tob"
)

func main() {
	log.SetPrefix("tob-gen: ")
	log.SetFlags(0)

	xmain(os.Args[1:])
}

type config struct {
	typ     tob.FileType
	frames  int
	wrap    int
	records int // records per frame
	stamp   uint16
}

func xmain(args []string) {
	var (
		fset = flag.NewFlagSet("tob-gen", flag.ExitOnError)

		typ     = fset.String("type", "TOB3", "file type (TOB1, TOB2 or TOB3)")
		frames  = fset.Int("frames", 100, "number of frames in the ring")
		wrap    = fset.Int("wrap", 0, "number of frames written after the ring wrapped")
		records = fset.Int("n", 4, "number of records per frame")
		stamp   = fset.Uint("stamp", 0xa5c3, "validation stamp")
		oname   = fset.String("o", "out.dat", "path to output data file")
	)

	fset.Usage = func() {
		fmt.Printf(`Usage: tob-gen [OPTIONS]

ex:
 $> tob-gen -frames 100 -wrap 37 -o ring.dat

options:
`)
		fset.PrintDefaults()
	}

	err := fset.Parse(args)
	if err != nil {
		log.Fatalf("could not parse input arguments: %+v", err)
	}

	ft, ok := tob.ParseFileType(strings.ToUpper(*typ))
	if !ok {
		fset.Usage()
		log.Fatalf("invalid file type %q", *typ)
	}
	if *stamp > 0xffff {
		log.Fatalf("invalid validation stamp 0x%x", *stamp)
	}

	cfg := config{
		typ:     ft,
		frames:  *frames,
		wrap:    *wrap,
		records: *records,
		stamp:   uint16(*stamp),
	}

	f, err := os.Create(*oname)
	if err != nil {
		log.Fatalf("could not create output file: %+v", err)
	}
	defer f.Close()

	err = generate(f, cfg)
	if err != nil {
		log.Fatalf("could not generate %q: %+v", *oname, err)
	}

	err = f.Close()
	if err != nil {
		log.Fatalf("could not close output file: %+v", err)
	}
	log.Printf("wrote %d records in %d frames to %q", cfg.frames*cfg.records, cfg.frames, *oname)
}

var start = time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)

func header(cfg config) *tob.Header {
	hdr := &tob.Header{
		Type:       cfg.typ,
		Station:    "tob-gen",
		Model:      "CR1000",
		Serial:     "0",
		OS:         "CR1000.Std.32",
		Program:    "CPU:gen.CR1",
		Signature:  "0",
		Created:    start.Format("2006-01-02 15:04:05"),
		Table:      "Gen",
		Interval:   "1 SEC",
		TableSize:  int64(cfg.frames),
		Stamp:      cfg.stamp,
		Resolution: "Sec100Usec",
		Fields: []catalog.Field{
			{Name: "Batt", Base: "Batt", Units: "V", Process: "Smp", Type: catalog.FP2},
			{Name: "Temp", Base: "Temp", Units: "degC", Process: "Avg", Type: catalog.IEEE4},
			{Name: "Count", Base: "Count", Process: "Smp", Type: catalog.Long},
		},
	}
	if cfg.typ == tob.TOB1 {
		hdr.Fields = append([]catalog.Field{
			{Name: "SECONDS", Base: "SECONDS", Units: "Seconds", Type: catalog.ULong},
			{Name: "NANOSECONDS", Base: "NANOSECONDS", Units: "Nanoseconds", Type: catalog.ULong},
			{Name: "RECORD", Base: "RECORD", Units: "RN", Type: catalog.ULong},
		}, hdr.Fields...)
	}
	hdr.FrameSize = hdr.FrameSizeFor(cfg.records)
	return hdr
}

func values(k int64) []any {
	return []any{12 + float64(k%8)*0.25, float64(k) / 2, k}
}

func generate(w io.Writer, cfg config) error {
	switch {
	case cfg.frames <= 0:
		return fmt.Errorf("invalid number of frames %d", cfg.frames)
	case cfg.records <= 0:
		return fmt.Errorf("invalid number of records per frame %d", cfg.records)
	case cfg.wrap < 0 || cfg.wrap >= cfg.frames:
		return fmt.Errorf("invalid wrap point %d (frames=%d)", cfg.wrap, cfg.frames)
	}

	var (
		wbuf = bufio.NewWriter(w)
		hdr  = header(cfg)
		enc  = tob.NewEncoder(wbuf, hdr)
		n    = int64(cfg.records)
	)
	err := enc.WriteHeader()
	if err != nil {
		return fmt.Errorf("could not write header: %w", err)
	}

	if cfg.typ == tob.TOB1 {
		for k := int64(0); k < int64(cfg.frames)*n; k++ {
			d := start.Add(time.Duration(k) * time.Second).Sub(catalog.Epoch)
			rec := append([]any{int64(d / time.Second), int64(0), k}, values(k)...)
			err := enc.WriteRecord(rec)
			if err != nil {
				return fmt.Errorf("could not write record %d: %w", k, err)
			}
		}
		return wbuf.Flush()
	}

	for i := 0; i < cfg.frames; i++ {
		var (
			seq    = int64(i - cfg.wrap)
			marker = ^cfg.stamp
		)
		switch {
		case cfg.wrap == 0:
			marker = cfg.stamp
		case i < cfg.wrap:
			seq = int64(cfg.frames - cfg.wrap + i)
			marker = cfg.stamp
		}
		fd := tob.FrameData{
			Time:   start.Add(time.Duration(seq*n) * time.Second),
			RecNo:  uint32(seq * n),
			Marker: marker,
		}
		for k := seq * n; k < (seq+1)*n; k++ {
			fd.Records = append(fd.Records, values(k))
		}
		err := enc.WriteFrame(fd)
		if err != nil {
			return fmt.Errorf("could not write frame %d: %w", i, err)
		}
	}
	return wbuf.Flush()
}
