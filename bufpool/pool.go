// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package bufpool implements the fixed-size word-buffer pool and FIFO
// queue feeding the list-mode writers: pre-allocated buffers handed
// out through scoped release handles, and a mutex-guarded queue that
// drains, compacts and flushes them.
package bufpool // import "github.com/go-pixie/crate16/bufpool"

import (
	"sync"

	"github.com/go-pixie/crate16/errs"
)

// Buffer is a fixed-capacity word buffer with a write cursor.
type Buffer struct {
	data []uint32
	len  int // logical length: words currently holding valid data
}

// Cap returns the buffer's total capacity in words.
func (b *Buffer) Cap() int { return len(b.data) }

// Len returns the buffer's current logical length.
func (b *Buffer) Len() int { return b.len }

// Write appends p to the buffer, up to its capacity, and returns the
// number of words written.
func (b *Buffer) Write(p []uint32) int {
	n := copy(b.data[b.len:], p)
	b.len += n
	return n
}

// Reset clears the buffer's logical length without reallocating.
func (b *Buffer) Reset() { b.len = 0 }

// Handle is a scoped lease on a pool Buffer: Release returns it to the
// pool's free list exactly once.
type Handle struct {
	pool     *Pool
	buf      *Buffer
	released bool
}

// Buffer returns the underlying Buffer this handle leases.
func (h *Handle) Buffer() *Buffer { return h.buf }

// Release returns the buffer to its pool's free list. Calling it more
// than once is a no-op.
func (h *Handle) Release() {
	if h.released {
		return
	}
	h.released = true
	h.buf.Reset()
	h.pool.release(h.buf)
}

// Pool is a fixed-size pool of equal-capacity word buffers.
type Pool struct {
	mu    sync.Mutex
	cap   int
	total int
	free  []*Buffer
}

// NewPool creates an empty, unpopulated Pool.
func NewPool() *Pool { return &Pool{} }

// Create pre-allocates n buffers of capacity c each. It fails
// buffer_pool_not_empty if the pool is already populated.
func (p *Pool) Create(n, c int) error {
	const op = "bufpool.Pool.Create"

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.total != 0 {
		return errs.New(errs.BufferPoolNotEmpty, op, "pool already populated with %d buffers", p.total)
	}

	p.free = make([]*Buffer, 0, n)
	for i := 0; i < n; i++ {
		p.free = append(p.free, &Buffer{data: make([]uint32, c)})
	}
	p.cap = c
	p.total = n
	return nil
}

// Request pops a buffer from the free list and returns a Handle
// leasing it. It fails buffer_pool_empty when the free list is
// exhausted.
func (p *Pool) Request() (*Handle, error) {
	const op = "bufpool.Pool.Request"

	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.free) == 0 {
		return nil, errs.New(errs.BufferPoolEmpty, op, "no free buffers (pool size=%d)", p.total)
	}

	n := len(p.free) - 1
	buf := p.free[n]
	p.free = p.free[:n]
	return &Handle{pool: p, buf: buf}, nil
}

func (p *Pool) release(buf *Buffer) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.free = append(p.free, buf)
}

// Destroy releases the pool's backing storage. It fails
// buffer_pool_busy unless every buffer has been returned.
func (p *Pool) Destroy() error {
	const op = "bufpool.Pool.Destroy"

	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.free) != p.total {
		return errs.New(errs.BufferPoolBusy, op, "%d of %d buffers still outstanding", p.total-len(p.free), p.total)
	}
	p.free = nil
	p.total = 0
	p.cap = 0
	return nil
}
