// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package datalog

import (
	"fmt"
	"io"

	"github.com/vmihailenco/msgpack/v5"
)

// indexVersion is the version of the index cache layout.
const indexVersion = 1

// IndexFile is a cached index of a data file.
// Signature is the header signature of the indexed file: a cache whose
// signature differs from the current file's one is stale.
type IndexFile struct {
	Version   int          `msgpack:"v"`
	Signature uint16       `msgpack:"sig"`
	Table     string       `msgpack:"table"`
	Entries   []IndexEntry `msgpack:"entries"`
}

// WriteIndex writes an index cache to w.
func WriteIndex(w io.Writer, idx IndexFile) error {
	idx.Version = indexVersion
	err := msgpack.NewEncoder(w).Encode(&idx)
	if err != nil {
		return fmt.Errorf("datalog: could not encode index: %w", err)
	}
	return nil
}

// ReadIndex reads an index cache from r.
func ReadIndex(r io.Reader) (IndexFile, error) {
	var idx IndexFile
	err := msgpack.NewDecoder(r).Decode(&idx)
	if err != nil {
		return idx, fmt.Errorf("datalog: could not decode index: %w", err)
	}
	if idx.Version != indexVersion {
		return idx, fmt.Errorf("datalog: invalid index version (got=%d, want=%d)", idx.Version, indexVersion)
	}
	return idx, nil
}
