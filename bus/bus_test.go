// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package bus_test

import (
	"testing"

	"github.com/go-pixie/crate16/bus"
	"github.com/go-pixie/crate16/internal/mmap"
)

func TestReadWriteWord(t *testing.T) {
	h := mmap.HandleFrom(make([]byte, 16))
	b := bus.New(h, false)

	b.WriteWord(4, 0xdeadbeef)
	if got, want := b.ReadWord(4), uint32(0xdeadbeef); got != want {
		t.Fatalf("invalid word: got=0x%x, want=0x%x", got, want)
	}
	if err := b.Err(); err != nil {
		t.Fatalf("unexpected error: %+v", err)
	}
}

func TestDryRun(t *testing.T) {
	h := mmap.HandleFrom(make([]byte, 16))
	b := bus.New(h, true)

	b.WriteWord(0, 0x1)
	if got, want := b.ReadWord(0), uint32(0); got != want {
		t.Fatalf("dry-run should not touch backing store: got=0x%x, want=0x%x", got, want)
	}
}

func TestBlockReadWrite(t *testing.T) {
	h := mmap.HandleFrom(make([]byte, 64))
	b := bus.New(h, false)

	src := []uint32{1, 2, 3, 4, 5}
	if err := b.BlockWrite(0, src); err != nil {
		t.Fatalf("block write: %+v", err)
	}

	dst := make([]uint32, len(src))
	if err := b.BlockRead(0, dst); err != nil {
		t.Fatalf("block read: %+v", err)
	}

	for i := range src {
		if dst[i] != src[i] {
			t.Fatalf("word %d: got=%d, want=%d", i, dst[i], src[i])
		}
	}
}

func TestGuardSerializes(t *testing.T) {
	h := mmap.HandleFrom(make([]byte, 16))
	b := bus.New(h, false)

	done := make(chan struct{})
	release := b.Guard()
	go func() {
		defer close(done)
		release2 := b.Guard()
		release2()
	}()
	release()
	<-done
}

func TestReg32(t *testing.T) {
	h := mmap.HandleFrom(make([]byte, 16))
	b := bus.New(h, false)
	r := bus.NewReg32(b, 8)

	r.W(42)
	if got, want := r.R(), uint32(42); got != want {
		t.Fatalf("invalid reg32: got=%d, want=%d", got, want)
	}
}

func TestStickyErrStopsFurtherAccess(t *testing.T) {
	h := mmap.HandleFrom(make([]byte, 4))
	b := bus.New(h, false)

	// offset beyond backing store triggers the sticky error.
	b.ReadWord(100)
	// the pending sticky error turns this write into a no-op.
	b.WriteWord(0, 0x1)
	if err := b.Err(); err == nil {
		t.Fatalf("expected a sticky error for an out-of-range read")
	}
	if got := b.ReadWord(0); got != 0 {
		t.Fatalf("write after a sticky error reached the backing store: got=0x%x", got)
	}
}
