// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package crate implements the crate facade: the top-level aggregate
// that owns a crate's modules, slot map, shared firmware registry and
// backplane, and exposes initialize/assign/probe/boot/set_firmware/
// import_config/export_config/report as one coherent API. Its
// functional-options configuration and xmain(args) error CLI split
// generalize from a single fixed board to an arbitrary-sized
// Pixie-16 crate, adopted by the cmd/pixie-* front-ends that drive
// this package.
package crate // import "github.com/go-pixie/crate16/crate"

import (
	"log"
	"os"

	"github.com/go-pixie/crate16/backplane"
	"github.com/go-pixie/crate16/bufpool"
	"github.com/go-pixie/crate16/errs"
	"github.com/go-pixie/crate16/firmware"
	"github.com/go-pixie/crate16/ledger"
	"github.com/go-pixie/crate16/module"
	"github.com/go-pixie/crate16/param"
)

// MaxModules bounds a crate to the largest Pixie-16 PXI chassis size
// this SDK supports.
const MaxModules = 13

// Roles names the three cooperative backplane roles a crate assigns.
const (
	RoleWiredOrTriggers = "wired-or-triggers"
	RoleRun             = "run"
	RoleDirector        = "director"
)

// Discoverer enumerates modules present on the PCI/PXI bus; the
// low-level bus driver itself is an external collaborator, injected
// here as a function value.
type Discoverer func() ([]Discovered, error)

// Discovered is one bus-discovered module: its slot and the already
// bus-bound *module.Module the caller's PCI driver constructed.
type Discovered struct {
	Slot int
	Mod  *module.Module
}

// Option configures a Crate at construction time.
type Option func(*Crate)

// WithLogger sets the crate's diagnostic logger; the default writes
// to os.Stderr.
func WithLogger(msg *log.Logger) Option {
	return func(c *Crate) { c.msg = msg }
}

// WithLedger attaches an optional MySQL-backed run ledger, opened
// against dbname. It never gates a boot/run/stop path -- a failure to
// open it is reported but does not fail crate construction.
func WithLedger(dbname string) Option {
	return func(c *Crate) {
		db, err := ledger.Open(dbname)
		if err != nil {
			c.msg.Printf("could not open run ledger: %+v", err)
			return
		}
		c.ledger = db
	}
}

// WithAlertMail enables best-effort alert email via gopkg.in/gomail.v2
// on a fatal list-mode mismatch or boot abort.
func WithAlertMail(cfg AlertConfig) Option {
	return func(c *Crate) { c.alert = &cfg }
}

// Crate is the top-level aggregate: modules indexed by crate-assigned
// number, the slot map, the shared firmware registry and backplane
// roles, and a shared event-buffer pool.
type Crate struct {
	msg *log.Logger

	modules []*module.Module   // indexed by number
	slots   map[int]int        // slot -> number
	fw      *firmware.Registry

	roles struct {
		wiredOr  *backplane.Role
		run      *backplane.Role
		director *backplane.Role
	}
	syncWait *backplane.SyncWait

	pool *bufpool.Pool

	ledger *ledger.DB
	alert  *AlertConfig

	err error
}

// New creates an empty Crate; modules are populated by Initialize.
func New(opts ...Option) *Crate {
	c := &Crate{
		msg: log.New(os.Stderr, "crate: ", log.LstdFlags),
		fw:  firmware.NewRegistry(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.roles.wiredOr = backplane.NewRole()
	c.roles.run = backplane.NewRole()
	c.roles.director = backplane.NewRole()
	return c
}

// setErr records the first sticky error, mirroring every other
// package's dev.err pattern.
func (c *Crate) setErr(err error) error {
	if c.err == nil {
		c.err = err
	}
	return c.err
}

// Err returns and clears the crate's sticky error.
func (c *Crate) Err() error {
	err := c.err
	c.err = nil
	return err
}

// Firmware exposes the shared firmware registry, for set_firmware and
// the cmd/pixie-boot front-end to populate before calling Boot.
func (c *Crate) Firmware() *firmware.Registry { return c.fw }

// Modules returns the crate's modules, indexed by crate-assigned
// number.
func (c *Crate) Modules() []*module.Module { return c.modules }

// Module returns the module assigned number, or module_number_invalid
// if out of range.
func (c *Crate) Module(number int) (*module.Module, error) {
	const op = "crate.Crate.Module"
	if number < 0 || number >= len(c.modules) {
		return nil, errs.New(errs.ModuleNumberInvalid, op, "module number %d out of range [0,%d)", number, len(c.modules))
	}
	return c.modules[number], nil
}

// Role returns the named backplane role.
func (c *Crate) Role(name string) (*backplane.Role, error) {
	const op = "crate.Crate.Role"
	switch name {
	case RoleWiredOrTriggers:
		return c.roles.wiredOr, nil
	case RoleRun:
		return c.roles.run, nil
	case RoleDirector:
		return c.roles.director, nil
	default:
		return nil, errs.New(errs.ModuleInvalidOperation, op, "unknown backplane role %q", name)
	}
}

// SyncWait exposes the crate's sync-wait consensus tracker, created
// lazily against the current module count on first use.
func (c *Crate) SyncWait() *backplane.SyncWait {
	if c.syncWait == nil {
		c.syncWait = backplane.NewSyncWait(len(c.modules))
	}
	return c.syncWait
}

// SetSynchWait records module number's SYNCH_WAIT intent (0 or 1) in
// both the backplane consensus set and the module's parameter cache,
// atomically from the caller's standpoint: a rejected intent leaves
// the cache untouched.
func (c *Crate) SetSynchWait(number, intent int) error {
	m, err := c.Module(number)
	if err != nil {
		return c.setErr(err)
	}
	if err := c.SyncWait().Set(number, intent); err != nil {
		return c.setErr(err)
	}
	if err := m.WriteModPar(param.MPSynchWait, uint32(intent)); err != nil {
		return c.setErr(err)
	}
	return nil
}

// SyncWaitValid reports whether every module's declared SYNCH_WAIT
// intent agrees; see backplane.SyncWait.Valid.
func (c *Crate) SyncWaitValid() error { return c.SyncWait().Valid() }

// Pool returns the crate's shared event-buffer pool, created on first
// use via CreatePool.
func (c *Crate) Pool() *bufpool.Pool { return c.pool }

// CreatePool creates the crate's shared buffer pool of n buffers of
// capacity c words each.
func (c *Crate) CreatePool(n, cap int) error {
	if c.pool == nil {
		c.pool = bufpool.NewPool()
	}
	return c.pool.Create(n, cap)
}

// Initialize discovers modules via discover, constructs the crate's
// module vector in discovery order, and fails with
// module_total_invalid if the discovered count does not match
// numModules when numModules > 0.
func (c *Crate) Initialize(discover Discoverer, numModules int) error {
	const op = "crate.Crate.Initialize"

	found, err := discover()
	if err != nil {
		return c.setErr(errs.Wrap(errs.CrateNotReady, op, err))
	}
	if numModules > 0 && len(found) != numModules {
		return c.setErr(errs.New(errs.ModuleTotalInvalid, op,
			"discovered %d modules, want %d", len(found), numModules))
	}
	if len(found) > MaxModules {
		return c.setErr(errs.New(errs.ModuleTotalInvalid, op,
			"discovered %d modules exceeds max %d", len(found), MaxModules))
	}

	c.modules = make([]*module.Module, len(found))
	c.slots = make(map[int]int, len(found))
	for i, d := range found {
		c.modules[i] = d.Mod
		c.slots[d.Slot] = i
	}
	c.syncWait = backplane.NewSyncWait(len(c.modules))
	return nil
}

// Assign applies an explicit slot-to-number mapping, replacing the one
// Initialize derived from discovery order. slotMap must be a bijection
// onto [0, len(modules)).
func (c *Crate) Assign(slotMap map[int]int) error {
	const op = "crate.Crate.Assign"

	if len(slotMap) != len(c.modules) {
		return c.setErr(errs.New(errs.ModuleInvalidSlot, op,
			"slot map has %d entries, want %d", len(slotMap), len(c.modules)))
	}
	seen := make([]bool, len(c.modules))
	for _, number := range slotMap {
		if number < 0 || number >= len(c.modules) {
			return c.setErr(errs.New(errs.ModuleInvalidSlot, op, "invalid module number %d in slot map", number))
		}
		if seen[number] {
			return c.setErr(errs.New(errs.ModuleInvalidSlot, op, "module number %d assigned to more than one slot", number))
		}
		seen[number] = true
	}

	c.slots = make(map[int]int, len(slotMap))
	for slot, number := range slotMap {
		c.slots[slot] = number
	}
	return nil
}

// Probe checks each module's address map (computed when Boot's
// DSP-vars step loaded the variable descriptors) and sets each booted
// module online; it loads nothing itself. A module whose channel
// address ranges are still empty has not been booted and is reported
// as module_invalid_operation.
func (c *Crate) Probe() error {
	const op = "crate.Crate.Probe"
	for _, m := range c.modules {
		addr := m.Model().AddressMap()
		if addr.ChannelsIn.Size == 0 && addr.ChannelsOut.Size == 0 {
			return c.setErr(errs.New(errs.ModuleInvalidOperation, op,
				"module %d has no address map; boot before probing", m.Number()))
		}
		m.MarkOnline()
	}
	return nil
}
