// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package backplane implements the crate backplane coordinator: three
// cooperative single-atomic-integer roles (wired-or-triggers, run,
// director) and sync-wait consensus tracking. Role arbitration is
// lock-free; contention fails fast rather than blocking.
package backplane // import "github.com/go-pixie/crate16/backplane"

import (
	"sync"
	"sync/atomic"

	"github.com/go-pixie/crate16/errs"
)

// released is the sentinel module number meaning "no module holds
// this role." Module numbers are assumed non-negative.
const released = -1

// Role is a single cooperative role arbitrated by atomic
// compare-and-exchange: wired-or-triggers, run, or director.
type Role struct {
	holder int64 // atomic; released or a module number
}

// NewRole creates a Role with no holder.
func NewRole() *Role {
	r := &Role{}
	atomic.StoreInt64(&r.holder, released)
	return r
}

// Request attempts to atomically transition the role from released to
// mod, using a strong compare-and-exchange. It returns true only on
// success; contention returns false immediately, never blocking.
func (r *Role) Request(mod int) bool {
	return atomic.CompareAndSwapInt64(&r.holder, released, int64(mod))
}

// Release attempts to atomically transition the role from mod back to
// released.
func (r *Role) Release(mod int) bool {
	return atomic.CompareAndSwapInt64(&r.holder, int64(mod), released)
}

// NotLeader reports whether the role is currently held by a module
// other than mod (including the case where it is unheld).
func (r *Role) NotLeader(mod int) bool {
	return atomic.LoadInt64(&r.holder) != int64(mod)
}

// Holder returns the current holder's module number, or -1 if
// released.
func (r *Role) Holder() int { return int(atomic.LoadInt64(&r.holder)) }

// SyncWait tracks the crate-wide SYNCH_WAIT consensus set: each module
// declares an intent (0 or 1); sync_wait_valid succeeds only when every
// declared intent agrees.
type SyncWait struct {
	mu        sync.Mutex
	crateSize int
	intents   map[int]int // module number -> 0 or 1
}

// NewSyncWait creates a SyncWait for a crate of the given size.
func NewSyncWait(crateSize int) *SyncWait {
	return &SyncWait{crateSize: crateSize, intents: make(map[int]int)}
}

// Set records mod's SYNCH_WAIT intent, which must be 0 or 1. An
// out-of-range value is an internal bug.
func (s *SyncWait) Set(mod int, intent int) error {
	const op = "backplane.SyncWait.Set"
	if intent != 0 && intent != 1 {
		return errs.New(errs.InternalFailure, op, "invalid SYNCH_WAIT intent %d for module %d", intent, mod)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.intents[mod] = intent
	return nil
}

// Clear removes mod's declared intent.
func (s *SyncWait) Clear(mod int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.intents, mod)
}

// Valid reports whether the declared intents reach consensus: either
// every intending module declared 0, or every slot in the crate
// declared 1 sync_wait_valid. It fails with
// module_invalid_operation if the intents disagree.
func (s *SyncWait) Valid() error {
	const op = "backplane.SyncWait.Valid"

	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.intents) == 0 {
		return nil
	}

	ones, zeros := 0, 0
	for _, v := range s.intents {
		if v == 1 {
			ones++
		} else {
			zeros++
		}
	}

	switch {
	case zeros > 0 && ones > 0:
		return errs.New(errs.ModuleInvalidOperation, op, "conflicting sync wait intents: %d zero, %d one", zeros, ones)
	case ones > 0 && ones != s.crateSize:
		return errs.New(errs.ModuleInvalidOperation, op, "sync wait consensus incomplete: %d of %d modules", ones, s.crateSize)
	default:
		return nil
	}
}
