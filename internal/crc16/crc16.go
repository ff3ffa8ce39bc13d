// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package crc16 implements the CRC-16/CCITT-FALSE checksum used to
// validate drained list-mode FIFO buffers.
package crc16 // import "github.com/go-pixie/crate16/internal/crc16"

import "hash"

// Hash16 is the common interface implemented by CRC-16 hash values.
type Hash16 interface {
	hash.Hash
	Sum16() uint16
}

const poly = 0x1021

// Table is a precomputed CRC-16 lookup table.
type Table [256]uint16

// IBMTable is the default CRC-16/CCITT-FALSE table.
var IBMTable = makeTable(poly)

func makeTable(poly uint16) *Table {
	var t Table
	for i := 0; i < 256; i++ {
		crc := uint16(i) << 8
		for j := 0; j < 8; j++ {
			if crc&0x8000 != 0 {
				crc = (crc << 1) ^ poly
			} else {
				crc <<= 1
			}
		}
		t[i] = crc
	}
	return &t
}

type digest struct {
	crc uint16
	tab *Table
}

// New creates a new Hash16 computing the CRC-16 checksum using tab.
// If tab is nil, the default CRC-16/CCITT-FALSE table is used.
func New(tab *Table) Hash16 {
	if tab == nil {
		tab = IBMTable
	}
	d := &digest{tab: tab}
	d.Reset()
	return d
}

func (d *digest) Reset() { d.crc = 0xFFFF }

func (d *digest) Size() int      { return 2 }
func (d *digest) BlockSize() int { return 1 }

func (d *digest) Write(p []byte) (int, error) {
	crc := d.crc
	for _, b := range p {
		crc = (crc << 8) ^ d.tab[byte(crc>>8)^b]
	}
	d.crc = crc
	return len(p), nil
}

func (d *digest) Sum16() uint16 { return d.crc }

func (d *digest) Sum(in []byte) []byte {
	v := d.Sum16()
	return append(in, byte(v>>8), byte(v))
}

var _ Hash16 = (*digest)(nil)
