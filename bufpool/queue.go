// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package bufpool

import (
	"sync"

	"github.com/go-pixie/crate16/errs"
)

// entry is one queued buffer plus the read cursor marking how much of
// it has already been drained.
type entry struct {
	h     *Handle
	start int
}

func (e entry) remaining() int { return e.h.buf.len - e.start }

// Queue is a mutex-guarded FIFO of leased buffers. size() is the sum
// of each entry's remaining words; count() is the number of entries.
type Queue struct {
	mu      sync.Mutex
	entries []entry
}

// NewQueue creates an empty Queue.
func NewQueue() *Queue { return &Queue{} }

// Push appends h to the back of the queue.
func (q *Queue) Push(h *Handle) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.entries = append(q.entries, entry{h: h})
}

// Pop removes and returns the front handle, or nil if the queue is
// empty.
func (q *Queue) Pop() *Handle {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.entries) == 0 {
		return nil
	}
	e := q.entries[0]
	q.entries = q.entries[1:]
	return e.h
}

// Size returns the total number of unconsumed words across every
// queued entry.
func (q *Queue) Size() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.size()
}

func (q *Queue) size() int {
	n := 0
	for _, e := range q.entries {
		n += e.remaining()
	}
	return n
}

// Count returns the number of queued entries.
func (q *Queue) Count() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.entries)
}

// Copy drains the next count words across possibly multiple source
// buffers into dst, releasing any buffer it fully exhausts. On a
// partial tail-buffer drain, the leftover is moved to the buffer's
// front and its logical length reduced accordingly. It fails
// buffer_pool_not_enough if count exceeds the queue's current size.
func (q *Queue) Copy(dst []uint32, count int) error {
	const op = "bufpool.Queue.Copy"

	q.mu.Lock()
	defer q.mu.Unlock()

	if count > q.size() {
		return errs.New(errs.BufferPoolNotEnough, op, "requested %d words, only %d available", count, q.size())
	}
	if len(dst) < count {
		return errs.New(errs.SystemInvalidArgument, op, "destination too small: len=%d, want=%d", len(dst), count)
	}

	written := 0
	for written < count && len(q.entries) > 0 {
		e := &q.entries[0]
		avail := e.remaining()
		need := count - written
		take := avail
		if take > need {
			take = need
		}

		copy(dst[written:written+take], e.h.buf.data[e.start:e.start+take])
		written += take
		e.start += take

		switch {
		case e.remaining() == 0:
			e.h.Release()
			q.entries = q.entries[1:]
		default:
			// partial tail drain: compact the leftover to the buffer's
			// front so future copies don't walk stale prefix bytes.
			buf := e.h.buf
			remaining := e.remaining()
			copy(buf.data[0:remaining], buf.data[e.start:e.start+remaining])
			buf.len = remaining
			e.start = 0
		}
	}
	return nil
}

// Compact coalesces tail data into earlier partially-full buffers.
// Idempotent: calling it twice in a row is a no-op the second time.
func (q *Queue) Compact() {
	q.mu.Lock()
	defer q.mu.Unlock()

	for i := 0; i < len(q.entries); i++ {
		dst := &q.entries[i]
		for {
			space := dst.h.buf.Cap() - dst.h.buf.len
			if space == 0 || i+1 >= len(q.entries) {
				break
			}
			src := &q.entries[i+1]
			take := src.remaining()
			if take > space {
				take = space
			}
			if take == 0 {
				break
			}

			copy(dst.h.buf.data[dst.h.buf.len:dst.h.buf.len+take], src.h.buf.data[src.start:src.start+take])
			dst.h.buf.len += take
			src.start += take

			if src.remaining() == 0 {
				src.h.Release()
				q.entries = append(q.entries[:i+1], q.entries[i+2:]...)
			}
		}
	}
}

// Flush drops all queued buffers, releasing each back to its pool.
func (q *Queue) Flush() {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, e := range q.entries {
		e.h.Release()
	}
	q.entries = nil
}
