// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package datalog reads data files produced by remote data loggers.
//
// Every file format is served by an engine implementing the Reader
// interface: the binary TOB1/TOB2/TOB3 formats by package tob, the
// TOA5/TOACI1 text formats by package toa. Package dispatch sniffs a file
// and selects the matching engine. Record indexes are cached with WriteIndex
// or stored in a database with package indexdb.
//
// Engines are not safe for concurrent use: a Reader must be driven by a
// single goroutine at a time.
package datalog // import "github.com/go-lpc/datalog"

import (
	"fmt"
	"runtime/debug"
)

// Version returns the version of datalog and its checksum.
// The returned values are only valid in binaries built with module support.
func Version() (version, sum string) {
	b, ok := debug.ReadBuildInfo()
	if !ok {
		return "", ""
	}
	return versionOf(b)
}

func versionOf(b *debug.BuildInfo) (version, sum string) {
	if b == nil {
		return "", ""
	}

	const root = "github.com/go-lpc/datalog"
	for _, m := range b.Deps {
		if m.Path != root {
			continue
		}
		if m.Replace != nil {
			switch {
			case m.Replace.Version != "" && m.Replace.Path != "":
				return fmt.Sprintf("%s %s", m.Replace.Path, m.Replace.Version), m.Replace.Sum
			case m.Replace.Version != "":
				return m.Replace.Version, m.Replace.Sum
			case m.Replace.Path != "":
				return m.Replace.Path, m.Replace.Sum
			default:
				return m.Version + "*", ""
			}
		}
		return m.Version, m.Sum
	}
	return "", ""
}
