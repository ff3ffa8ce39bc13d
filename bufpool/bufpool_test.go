// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package bufpool_test

import (
	"testing"

	"github.com/go-pixie/crate16/bufpool"
	"github.com/go-pixie/crate16/errs"
)

func TestPoolCreateRequestDestroy(t *testing.T) {
	p := bufpool.NewPool()
	if err := p.Create(2, 4); err != nil {
		t.Fatalf("could not create pool: %+v", err)
	}
	if err := p.Create(2, 4); err == nil {
		t.Fatalf("expected buffer_pool_not_empty on second create")
	} else if got, want := errs.CodeOf(err), errs.BufferPoolNotEmpty; got != want {
		t.Fatalf("invalid error code: got=%d, want=%d", got, want)
	}

	h1, err := p.Request()
	if err != nil {
		t.Fatalf("could not request buffer: %+v", err)
	}
	h2, err := p.Request()
	if err != nil {
		t.Fatalf("could not request buffer: %+v", err)
	}
	if _, err := p.Request(); err == nil {
		t.Fatalf("expected buffer_pool_empty once exhausted")
	} else if got, want := errs.CodeOf(err), errs.BufferPoolEmpty; got != want {
		t.Fatalf("invalid error code: got=%d, want=%d", got, want)
	}

	if err := p.Destroy(); err == nil {
		t.Fatalf("expected buffer_pool_busy while buffers outstanding")
	} else if got, want := errs.CodeOf(err), errs.BufferPoolBusy; got != want {
		t.Fatalf("invalid error code: got=%d, want=%d", got, want)
	}

	h1.Release()
	h2.Release()
	if err := p.Destroy(); err != nil {
		t.Fatalf("could not destroy pool: %+v", err)
	}
}

func TestQueuePushPopSize(t *testing.T) {
	p := bufpool.NewPool()
	if err := p.Create(2, 4); err != nil {
		t.Fatalf("could not create pool: %+v", err)
	}
	q := bufpool.NewQueue()

	h, _ := p.Request()
	h.Buffer().Write([]uint32{1, 2, 3})
	q.Push(h)

	if got, want := q.Size(), 3; got != want {
		t.Fatalf("invalid size: got=%d, want=%d", got, want)
	}
	if got, want := q.Count(), 1; got != want {
		t.Fatalf("invalid count: got=%d, want=%d", got, want)
	}

	popped := q.Pop()
	if popped == nil {
		t.Fatalf("expected a handle")
	}
	if q.Pop() != nil {
		t.Fatalf("expected an empty queue after popping the only entry")
	}
}

func TestQueueCopyAcrossBuffers(t *testing.T) {
	p := bufpool.NewPool()
	if err := p.Create(3, 4); err != nil {
		t.Fatalf("could not create pool: %+v", err)
	}
	q := bufpool.NewQueue()

	h1, _ := p.Request()
	h1.Buffer().Write([]uint32{1, 2, 3})
	q.Push(h1)

	h2, _ := p.Request()
	h2.Buffer().Write([]uint32{4, 5})
	q.Push(h2)

	dst := make([]uint32, 4)
	if err := q.Copy(dst, 4); err != nil {
		t.Fatalf("could not copy: %+v", err)
	}
	want := []uint32{1, 2, 3, 4}
	for i := range want {
		if dst[i] != want[i] {
			t.Fatalf("word %d: got=%d, want=%d", i, dst[i], want[i])
		}
	}

	// first buffer fully drained and released, second partially
	// drained with its leftover word compacted to the front.
	if got, want := q.Size(), 1; got != want {
		t.Fatalf("invalid remaining size: got=%d, want=%d", got, want)
	}
	if got, want := q.Count(), 1; got != want {
		t.Fatalf("invalid remaining count: got=%d, want=%d", got, want)
	}
}

// TestQueueDrainAcrossThreeBuffers pushes buffers of 100, 50 and 30
// words and drains 130: the first empties and is released, the second
// keeps its last 20 words, and the remaining 50 (those 20 plus the
// third buffer's 30) drain next in FIFO order, verified via sentinels.
func TestQueueDrainAcrossThreeBuffers(t *testing.T) {
	p := bufpool.NewPool()
	if err := p.Create(3, 1024); err != nil {
		t.Fatalf("could not create pool: %+v", err)
	}
	q := bufpool.NewQueue()

	fill := func(n int, base uint32) {
		t.Helper()
		h, err := p.Request()
		if err != nil {
			t.Fatalf("could not request buffer: %+v", err)
		}
		words := make([]uint32, n)
		for i := range words {
			words[i] = base + uint32(i)
		}
		h.Buffer().Write(words)
		q.Push(h)
	}
	fill(100, 1000)
	fill(50, 2000)
	fill(30, 3000)

	if got, want := q.Size(), 180; got != want {
		t.Fatalf("invalid size: got=%d, want=%d", got, want)
	}

	dst := make([]uint32, 130)
	if err := q.Copy(dst, 130); err != nil {
		t.Fatalf("could not copy: %+v", err)
	}
	if dst[0] != 1000 || dst[99] != 1099 || dst[100] != 2000 || dst[129] != 2029 {
		t.Fatalf("invalid drained words: [%d %d %d %d]", dst[0], dst[99], dst[100], dst[129])
	}

	if got, want := q.Size(), 50; got != want {
		t.Fatalf("invalid remaining size: got=%d, want=%d", got, want)
	}

	// the remaining 50 words are the third buffer's 30 plus the second
	// buffer's undrained tail of 20, in FIFO order.
	rest := make([]uint32, 50)
	if err := q.Copy(rest, 50); err != nil {
		t.Fatalf("could not drain the tail: %+v", err)
	}
	if rest[0] != 2030 || rest[19] != 2049 || rest[20] != 3000 || rest[49] != 3029 {
		t.Fatalf("invalid tail words: [%d %d %d %d]", rest[0], rest[19], rest[20], rest[49])
	}
}

func TestQueueCopyNotEnough(t *testing.T) {
	p := bufpool.NewPool()
	if err := p.Create(1, 4); err != nil {
		t.Fatalf("could not create pool: %+v", err)
	}
	q := bufpool.NewQueue()
	h, _ := p.Request()
	h.Buffer().Write([]uint32{1})
	q.Push(h)

	err := q.Copy(make([]uint32, 10), 10)
	if err == nil {
		t.Fatalf("expected buffer_pool_not_enough")
	}
	if got, want := errs.CodeOf(err), errs.BufferPoolNotEnough; got != want {
		t.Fatalf("invalid error code: got=%d, want=%d", got, want)
	}
}

func TestQueueCompact(t *testing.T) {
	p := bufpool.NewPool()
	if err := p.Create(2, 8); err != nil {
		t.Fatalf("could not create pool: %+v", err)
	}
	q := bufpool.NewQueue()

	h1, _ := p.Request()
	h1.Buffer().Write([]uint32{1, 2})
	q.Push(h1)

	h2, _ := p.Request()
	h2.Buffer().Write([]uint32{3, 4, 5})
	q.Push(h2)

	sizeBefore := q.Size()
	q.Compact()
	if got, want := q.Size(), sizeBefore; got != want {
		t.Fatalf("compact must not change total size: got=%d, want=%d", got, want)
	}
	if got, want := q.Count(), 1; got != want {
		t.Fatalf("expected buffers to coalesce into one entry: got=%d, want=%d", got, want)
	}

	sizeBefore = q.Size()
	countBefore := q.Count()
	q.Compact()
	if q.Size() != sizeBefore || q.Count() != countBefore {
		t.Fatalf("compact should be idempotent")
	}
}

func TestQueueFlush(t *testing.T) {
	p := bufpool.NewPool()
	if err := p.Create(2, 4); err != nil {
		t.Fatalf("could not create pool: %+v", err)
	}
	q := bufpool.NewQueue()

	h, _ := p.Request()
	h.Buffer().Write([]uint32{1})
	q.Push(h)

	q.Flush()
	if got, want := q.Count(), 0; got != want {
		t.Fatalf("expected empty queue after flush: got=%d, want=%d", got, want)
	}

	// both buffers should be back in the pool's free list now.
	if _, err := p.Request(); err != nil {
		t.Fatalf("could not request after flush: %+v", err)
	}
	if _, err := p.Request(); err != nil {
		t.Fatalf("could not request after flush: %+v", err)
	}
}
