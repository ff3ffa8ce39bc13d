// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package bus provides the word- and block-level register I/O
// primitives over a PCI/PXI memory-mapped window, plus the per-module
// bus guard serializing access to it.
package bus // import "github.com/go-pixie/crate16/bus"

import (
	"encoding/binary"
	"io"
	"sync"

	"github.com/go-pixie/crate16/errs"
	"github.com/go-pixie/crate16/internal/mmap"
)

// Rwer is the minimal word-addressable register window a Bus drives.
// *mmap.Handle implements it over a real /dev/mem-mapped PCI window;
// tests substitute an in-memory fake.
type Rwer interface {
	io.ReaderAt
	io.WriterAt
}

// Bus drives one module's memory-mapped register window. All register
// accesses for a module must hold its Guard.
type Bus struct {
	mu     sync.Mutex
	rw     Rwer
	dryRun bool

	xbuf [4]byte
	err  error
}

// New creates a Bus over rw. When dryRun is true, every access
// short-circuits with a success return and no side effect.
func New(rw Rwer, dryRun bool) *Bus {
	return &Bus{rw: rw, dryRun: dryRun}
}

// FromMmap opens a memory-mapped register window of n bytes at dev.
func FromMmap(dev string, base int64, n int) (*Bus, *mmap.Handle, error) {
	h, err := mmap.Open(dev, base, n)
	if err != nil {
		return nil, nil, errs.Wrapf(errs.DeviceHWFailure, "bus.FromMmap", err, "could not mmap %q", dev)
	}
	return New(h, false), h, nil
}

// Guard acquires the bus's exclusive lock and returns a release
// function; call it (typically via defer) to guarantee release on all
// exit paths, including panics.
func (b *Bus) Guard() func() {
	b.mu.Lock()
	return b.mu.Unlock
}

// Err returns and clears the bus's sticky error, set by a prior
// ReadWord/WriteWord/BlockRead/BlockWrite call.
func (b *Bus) Err() error {
	err := b.err
	b.err = nil
	return err
}

// ReadWord reads the 32-bit little-endian word at offset.
func (b *Bus) ReadWord(offset int64) uint32 {
	if b.dryRun || b.err != nil {
		return 0
	}
	_, err := b.rw.ReadAt(b.xbuf[:4], offset)
	if err != nil {
		b.err = errs.Wrapf(errs.DeviceHWFailure, "bus.ReadWord", err, "could not read word at 0x%x", offset)
		return 0
	}
	return binary.LittleEndian.Uint32(b.xbuf[:4])
}

// WriteWord writes v as a 32-bit little-endian word at offset.
func (b *Bus) WriteWord(offset int64, v uint32) {
	if b.dryRun || b.err != nil {
		return
	}
	binary.LittleEndian.PutUint32(b.xbuf[:4], v)
	_, err := b.rw.WriteAt(b.xbuf[:4], offset)
	if err != nil {
		b.err = errs.Wrapf(errs.DeviceHWFailure, "bus.WriteWord", err, "could not write word at 0x%x", offset)
	}
}

// BlockRead reads len(dst) words starting at dspAddr into dst via DMA.
func (b *Bus) BlockRead(dspAddr int64, dst []uint32) error {
	if b.dryRun {
		return nil
	}
	buf := make([]byte, 4*len(dst))
	_, err := b.rw.ReadAt(buf, dspAddr)
	if err != nil {
		return errs.Wrapf(errs.DeviceDMAFailure, "bus.BlockRead", err, "could not DMA-read %d words at 0x%x", len(dst), dspAddr)
	}
	for i := range dst {
		dst[i] = binary.LittleEndian.Uint32(buf[4*i:])
	}
	return nil
}

// BlockWrite DMA-writes src starting at dspAddr.
func (b *Bus) BlockWrite(dspAddr int64, src []uint32) error {
	if b.dryRun {
		return nil
	}
	buf := make([]byte, 4*len(src))
	for i, v := range src {
		binary.LittleEndian.PutUint32(buf[4*i:], v)
	}
	_, err := b.rw.WriteAt(buf, dspAddr)
	if err != nil {
		return errs.Wrapf(errs.DeviceDMAFailure, "bus.BlockWrite", err, "could not DMA-write %d words at 0x%x", len(src), dspAddr)
	}
	return nil
}

// Reg32 is a single 32-bit register accessor bound to a Bus and an
// offset.
type Reg32 struct {
	bus *Bus
	off int64
}

// NewReg32 returns a register accessor for offset on b.
func NewReg32(b *Bus, offset int64) Reg32 {
	return Reg32{bus: b, off: offset}
}

// R reads the register.
func (r Reg32) R() uint32 { return r.bus.ReadWord(r.off) }

// W writes v to the register.
func (r Reg32) W(v uint32) { r.bus.WriteWord(r.off, v) }

// Err returns and clears the underlying bus's sticky error, so a
// caller batching R/W calls can check the whole batch at once.
func (r Reg32) Err() error { return r.bus.Err() }
