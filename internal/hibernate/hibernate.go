// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package hibernate fingerprints data files so a reader can release its
// file handle while idle and later tell whether the file it resumes is
// still the one it left.
//
// A snapshot holds a CRC-16 signature of the whole header region and an
// xxhash signature of (at most) the first ChunkSize bytes of the data region.
// A header mismatch means the file was replaced by another one;
// a data mismatch (or a file shrunk below the fingerprinted window) means
// the oldest data was overwritten.
package hibernate // import "github.com/go-lpc/datalog/internal/hibernate"

import (
	"fmt"
	"io"

	"github.com/cespare/xxhash/v2"
	"github.com/go-lpc/datalog/internal/crc16"
	"github.com/go-lpc/datalog/internal/source"
)

// ChunkSize is the maximum number of data bytes covered by the data signature.
const ChunkSize = 1024

// Verdict is the outcome of comparing a snapshot with a file.
type Verdict uint8

const (
	Intact        Verdict = iota // header and data fingerprints match
	HeaderChanged                // header differs: the file must be re-opened
	Overwritten                  // header matches but the oldest data changed
)

func (v Verdict) String() string {
	switch v {
	case Intact:
		return "intact"
	case HeaderChanged:
		return "header-changed"
	case Overwritten:
		return "overwritten"
	}
	return fmt.Sprintf("Verdict(%d)", uint8(v))
}

// Snapshot is the state kept by a hibernated reader.
type Snapshot struct {
	Offset    int64 // saved read offset (0: none)
	HeaderLen int64 // length of the header region
	HeaderSig uint16
	DataLen   int64 // number of data bytes covered by DataSig
	DataSig   uint64
}

// HeaderSignature computes the signature of the first n bytes of r.
func HeaderSignature(r io.ReaderAt, n int64) (uint16, error) {
	crc := crc16.New(nil)
	_, err := io.Copy(crc, io.NewSectionReader(r, 0, n))
	if err != nil {
		return 0, fmt.Errorf("hibernate: could not read header: %w", err)
	}
	return crc.Sum16(), nil
}

func dataSignature(r io.ReaderAt, off, n int64) (uint64, error) {
	buf := make([]byte, n)
	err := source.ReadFull(r, buf, off)
	if err != nil && n > 0 {
		return 0, fmt.Errorf("hibernate: could not read data chunk: %w", err)
	}
	return xxhash.Sum64(buf), nil
}

// Take captures a snapshot of a file of the given size whose header
// spans headerLen bytes. offset is the current read offset.
func Take(r io.ReaderAt, size, headerLen, offset int64) (Snapshot, error) {
	snap := Snapshot{HeaderLen: headerLen}
	if offset > 0 {
		snap.Offset = offset
	}
	if size < headerLen {
		return snap, fmt.Errorf("hibernate: file smaller than its header (size=%d, header=%d)", size, headerLen)
	}

	sig, err := HeaderSignature(r, headerLen)
	if err != nil {
		return snap, err
	}
	snap.HeaderSig = sig

	snap.DataLen = size - headerLen
	if snap.DataLen > ChunkSize {
		snap.DataLen = ChunkSize
	}
	snap.DataSig, err = dataSignature(r, headerLen, snap.DataLen)
	if err != nil {
		return snap, err
	}
	return snap, nil
}

// Check compares the snapshot with the current content of r, a file of
// the given size.
func (snap Snapshot) Check(r io.ReaderAt, size int64) (Verdict, error) {
	if size < snap.HeaderLen {
		return HeaderChanged, nil
	}
	sig, err := HeaderSignature(r, snap.HeaderLen)
	if err != nil {
		return HeaderChanged, err
	}
	if sig != snap.HeaderSig {
		return HeaderChanged, nil
	}

	if size-snap.HeaderLen < snap.DataLen {
		return Overwritten, nil
	}
	dsig, err := dataSignature(r, snap.HeaderLen, snap.DataLen)
	if err != nil {
		return Overwritten, err
	}
	if dsig != snap.DataSig {
		return Overwritten, nil
	}
	return Intact, nil
}
