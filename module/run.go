// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package module

import (
	"time"

	"github.com/go-pixie/crate16/errs"
)

// statusAddr is the module status register polled by waitDSPReady: bit
// 0 reflects the DSP's run-active flag, set once the task written to
// the control register (0x10, see acquire.go) has actually taken
// effect.
const statusAddr = 0x14

const dspReadyPoll = 10 * time.Millisecond

// RunMode selects whether a run starts fresh or resumes a prior one.
type RunMode int

const (
	NewRun RunMode = iota
	Resume
)

// TestKind selects the module's test-mode generator.
type TestKind int

const (
	TestOff TestKind = iota
	TestLMFIFO
)

const (
	ctrlTaskStartHistograms controlTask = 10
	ctrlTaskStartListmode   controlTask = 11
	ctrlTaskRunEnd          controlTask = 12

	// ctrlResumeBit, OR-ed into a start task, selects the DSP's
	// resume-run init path instead of a fresh run.
	ctrlResumeBit controlTask = 1 << 7
)

// StartHistograms begins a histogramming run in the given mode.
func (m *Module) StartHistograms(mode RunMode) error {
	const op = "module.Module.StartHistograms"
	if err := m.startRun(ctrlTaskStartHistograms, mode); err != nil {
		return errs.Wrap(errs.ModuleInvalidOperation, op, err)
	}
	return nil
}

// StartListmode begins a list-mode run in the given mode.
func (m *Module) StartListmode(mode RunMode) error {
	const op = "module.Module.StartListmode"
	if err := m.startRun(ctrlTaskStartListmode, mode); err != nil {
		return errs.Wrap(errs.ModuleInvalidOperation, op, err)
	}
	return nil
}

func (m *Module) startRun(task controlTask, mode RunMode) error {
	if m.runActive {
		return errs.New(errs.ModuleInvalidOperation, "module.Module.startRun", "run already active on module %d", m.number)
	}
	if mode == Resume {
		task |= ctrlResumeBit
	}
	if err := m.runControlTask(task); err != nil {
		return err
	}
	m.waitDSPReady()
	m.runActive = true
	return nil
}

// waitDSPReady blocks until the status register reports run-active or
// m.dspReadyTimeout elapses, whichever comes first. A run task written
// to the control register takes effect on the DSP's own clock; reading
// the FIFO before it does produces a spurious early exit once the poll
// loop sees an empty, not-yet-started queue as "done".
func (m *Module) waitDSPReady() {
	timeout := m.dspReadyTimeout
	if timeout <= 0 {
		timeout = time.Second
	}
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		release := m.bus.Guard()
		status := m.bus.ReadWord(statusAddr)
		release()
		if status&0x1 != 0 {
			return
		}
		time.Sleep(dspReadyPoll)
	}
}

// RunEnd stops the current run, if any.
func (m *Module) RunEnd() error {
	if !m.runActive {
		return nil
	}
	if err := m.runControlTask(ctrlTaskRunEnd); err != nil {
		return err
	}
	m.runActive = false
	return nil
}

// RunActive reports whether a run is currently active on this module.
func (m *Module) RunActive() bool { return m.runActive }

// StartTest enters a test mode; TestLMFIFO continuously generates
// FIFO traffic for throughput measurement.
func (m *Module) StartTest(kind TestKind) error {
	const op = "module.Module.StartTest"
	if kind != TestOff && kind != TestLMFIFO {
		return errs.New(errs.ModuleTestInvalid, op, "unknown test kind %d", kind)
	}
	if m.testKind != TestOff {
		return errs.New(errs.ModuleInvalidOperation, op, "test already active on module %d", m.number)
	}
	if kind == TestLMFIFO {
		if err := m.runControlTask(ctrlTaskStartListmode); err != nil {
			return err
		}
	}
	m.testKind = kind
	return nil
}

// EndTest leaves test mode, if active.
func (m *Module) EndTest() error {
	if m.testKind == TestOff {
		return nil
	}
	if err := m.runControlTask(ctrlTaskRunEnd); err != nil {
		return err
	}
	m.testKind = TestOff
	return nil
}

// ReadListMode copies up to len(out) available FIFO words into the
// front of out and returns the count copied, draining them from the
// module's FIFO queue.
func (m *Module) ReadListMode(out []uint32) (int, error) {
	const op = "module.Module.ReadListMode"
	if m.queue == nil {
		return 0, errs.New(errs.ModuleInvalidOperation, op, "module %d has no FIFO queue attached", m.number)
	}
	avail := m.queue.Size()
	n := len(out)
	if n > avail {
		n = avail
	}
	if n == 0 {
		return 0, nil
	}
	if err := m.queue.Copy(out[:n], n); err != nil {
		return 0, errs.Wrap(errs.DeviceFIFOFailure, op, err)
	}
	return n, nil
}

// ReadListModeLevel returns the number of FIFO words currently
// available without draining them.
func (m *Module) ReadListModeLevel() int {
	if m.queue == nil {
		return 0
	}
	return m.queue.Size()
}
