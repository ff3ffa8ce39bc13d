// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package module implements the per-module runtime contract: offset
// adjustment, ADC traces, baselines, histograms, run control,
// parameter access and list-mode FIFO draining. Its sticky-error
// field, cfg/regs struct-of-registers shape, and
// Boot/StartListmode/RunEnd lifecycle generalize from one fixed board
// description to an arbitrary Pixie-16 module description.
package module // import "github.com/go-pixie/crate16/module"

import (
	"io"
	"log"
	"os"
	"time"

	"github.com/go-pixie/crate16/boot"
	"github.com/go-pixie/crate16/bufpool"
	"github.com/go-pixie/crate16/bus"
	"github.com/go-pixie/crate16/firmware"
	"github.com/go-pixie/crate16/param"
)

// Limits bound the sizes of host-side buffers allocated per module.
const (
	MaxADCTraceLength  = 8192
	MaxNumBaselines    = 640
	MaxHistogramLength = 32768

	offsetAdjustMaxIter = 16
)

// Controllers groups the three per-image boot.Controller instances a
// module drives during boot: Com-FPGA, System-FPGA and DSP code.
type Controllers struct {
	ComFPGA *boot.Controller
	SPFPGA  *boot.Controller
	DSP     *boot.Controller
}

// Option configures a Module at construction time.
type Option func(*Module)

// WithLogger sets the module's diagnostic logger; the default writes
// to os.Stderr.
func WithLogger(msg *log.Logger) Option {
	return func(m *Module) { m.msg = msg }
}

// WithClockMHz sets the filter clock rate used by physical-unit
// parameter conversions.
func WithClockMHz(mhz float64) Option {
	return func(m *Module) { m.clockMHz = mhz }
}

// WithRevision sets the module's hardware revision, used to resolve
// firmware images from a firmware.Registry during boot.
func WithRevision(rev int) Option {
	return func(m *Module) { m.revision = rev }
}

// WithDSPReadyTimeout overrides the bound startRun waits for the DSP to
// report run-active before returning control to the poll loop. The
// default is 1s; tests that drive a simulated bus shorten it so the
// wait does not dominate run time.
func WithDSPReadyTimeout(d time.Duration) Option {
	return func(m *Module) { m.dspReadyTimeout = d }
}

// Module is one Pixie-16 module's runtime state: its bus, its loaded
// parameter/variable model, its FIFO pool and queue, and its run
// state.
type Module struct {
	msg      *log.Logger
	number   int
	slot     int
	revision int

	bus   *bus.Bus
	model *param.Model
	boot  Controllers

	boundFW map[firmware.Device]string // device -> version, populated by Boot

	clockMHz float64

	err     error
	offline bool

	runActive       bool
	testKind        TestKind
	dspReadyTimeout time.Duration // wait bound for startRun's DSP-ready poll; default 1s

	offsets   []uint32
	histogram [][]uint32 // per channel

	pool  *bufpool.Pool
	queue *bufpool.Queue
}

// New creates a Module bound to b, with numChannels worth of
// parameter/variable state.
func New(number, slot, numChannels int, b *bus.Bus, opts ...Option) *Module {
	m := &Module{
		msg:             log.New(os.Stderr, "", log.LstdFlags),
		number:          number,
		slot:            slot,
		bus:             b,
		model:           param.NewModel(numChannels),
		clockMHz:        100,
		offline:         true,
		offsets:         make([]uint32, numChannels),
		dspReadyTimeout: time.Second,
		boundFW:         make(map[firmware.Device]string),
	}
	m.histogram = make([][]uint32, numChannels)
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Number returns the module's crate-assigned number.
func (m *Module) Number() int { return m.number }

// Slot returns the module's PXI slot index.
func (m *Module) Slot() int { return m.slot }

// Revision returns the module's hardware revision.
func (m *Module) Revision() int { return m.revision }

// SetControllers binds the three per-image boot.Controller instances
// the module drives during Boot. Package crate does not call it; the
// code that builds the module binds the controllers before Boot.
func (m *Module) SetControllers(c Controllers) { m.boot = c }

// Offline reports whether the module has not yet completed boot, or
// boot failed.
func (m *Module) Offline() bool { return m.offline }

// Model exposes the module's parameter/variable model, for the crate
// facade's import/export and copy_parameters operations.
func (m *Module) Model() *param.Model { return m.model }

// setErr records the first sticky error and returns it -- a later call
// that finds m.err already set returns immediately without touching
// the hardware.
func (m *Module) setErr(err error) error {
	if m.err == nil {
		m.err = err
	}
	return m.err
}

// Err returns and clears the module's sticky error.
func (m *Module) Err() error {
	err := m.err
	m.err = nil
	return err
}

// MarkOnline clears the offline flag once boot completes
// successfully; called by Boot after every step in the requested
// sequence succeeds, and by the crate facade's Probe.
func (m *Module) MarkOnline() { m.offline = false }

// BoundFirmware returns the firmware version string bound for each
// device kind loaded by the most recent successful Boot, for the run
// ledger's per-module firmware record.
func (m *Module) BoundFirmware() map[firmware.Device]string {
	out := make(map[firmware.Device]string, len(m.boundFW))
	for dev, ver := range m.boundFW {
		out[dev] = ver
	}
	return out
}

// AttachFIFO binds the module's list-mode FIFO pool and queue, owned
// by package listmode's per-module worker.
func (m *Module) AttachFIFO(pool *bufpool.Pool, queue *bufpool.Queue) {
	m.pool = pool
	m.queue = queue
}

// LoadVars loads the DSP address map from a VAR file stream -- see
// param.Model.Load -- and is a precondition for every parameter
// read/write.
func (m *Module) LoadVars(src io.Reader) error {
	return m.model.Load(src)
}
