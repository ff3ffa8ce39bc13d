// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package backplane_test

import (
	"strings"
	"sync"
	"testing"

	"github.com/go-pixie/crate16/backplane"
	"github.com/go-pixie/crate16/errs"
)

func TestRoleRequestRelease(t *testing.T) {
	r := backplane.NewRole()

	if !r.Request(3) {
		t.Fatalf("expected request to succeed on a released role")
	}
	if r.Request(4) {
		t.Fatalf("expected a second request to fail while held")
	}
	if !r.NotLeader(4) {
		t.Fatalf("module 4 should not be leader")
	}
	if r.NotLeader(3) {
		t.Fatalf("module 3 should be leader")
	}
	if !r.Release(3) {
		t.Fatalf("expected release to succeed for the current holder")
	}
	if r.Release(3) {
		t.Fatalf("expected a second release to fail once already released")
	}
}

func TestRoleContentionNeverBlocks(t *testing.T) {
	r := backplane.NewRole()
	const n = 32

	var wg sync.WaitGroup
	results := make([]bool, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = r.Request(i)
		}(i)
	}
	wg.Wait()

	wins := 0
	for _, ok := range results {
		if ok {
			wins++
		}
	}
	if wins != 1 {
		t.Fatalf("expected exactly one winner, got %d", wins)
	}
}

func TestSyncWaitAllZero(t *testing.T) {
	s := backplane.NewSyncWait(4)
	for _, mod := range []int{0, 1, 2} {
		if err := s.Set(mod, 0); err != nil {
			t.Fatalf("could not set intent: %+v", err)
		}
	}
	if err := s.Valid(); err != nil {
		t.Fatalf("all-zero intents should be valid: %+v", err)
	}
}

func TestSyncWaitRequiresFullCrateForOnes(t *testing.T) {
	s := backplane.NewSyncWait(4)
	for _, mod := range []int{0, 1} {
		if err := s.Set(mod, 1); err != nil {
			t.Fatalf("could not set intent: %+v", err)
		}
	}
	if err := s.Valid(); err == nil {
		t.Fatalf("expected incomplete consensus to fail")
	} else if got, want := errs.CodeOf(err), errs.ModuleInvalidOperation; got != want {
		t.Fatalf("invalid error code: got=%d, want=%d", got, want)
	}

	for mod := 2; mod < 4; mod++ {
		if err := s.Set(mod, 1); err != nil {
			t.Fatalf("could not set intent: %+v", err)
		}
	}
	if err := s.Valid(); err != nil {
		t.Fatalf("full-crate all-one consensus should be valid: %+v", err)
	}
}

func TestSyncWaitConflict(t *testing.T) {
	s := backplane.NewSyncWait(4)
	if err := s.Set(0, 0); err != nil {
		t.Fatalf("could not set intent: %+v", err)
	}
	if err := s.Set(1, 1); err != nil {
		t.Fatalf("could not set intent: %+v", err)
	}
	err := s.Valid()
	if err == nil {
		t.Fatalf("expected conflicting intents to fail")
	}
	if !strings.Contains(err.Error(), "sync wait") {
		t.Fatalf("error text should mention sync wait: %v", err)
	}
}

func TestSyncWaitInvalidIntent(t *testing.T) {
	s := backplane.NewSyncWait(4)
	err := s.Set(0, 7)
	if err == nil {
		t.Fatalf("expected an error for an out-of-range intent")
	}
	if got, want := errs.CodeOf(err), errs.InternalFailure; got != want {
		t.Fatalf("invalid error code: got=%d, want=%d", got, want)
	}
}
