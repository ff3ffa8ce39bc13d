// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package module

import (
	"github.com/go-pixie/crate16/errs"
	"github.com/go-pixie/crate16/param"
)

// ReadParam reads a channel parameter's physical value.
func (m *Module) ReadParam(channel int, p param.ChannelParam) (float64, error) {
	return m.model.ReadParam(channel, p, m.clockMHz)
}

// WriteParam writes a channel parameter's physical value to the host
// cache with a dirty flag; SyncVars flushes it to the DSP, per
// write(param, chan, value).
func (m *Module) WriteParam(channel int, p param.ChannelParam, val float64) error {
	return m.model.WriteParam(channel, p, m.clockMHz, val)
}

// ReadModuleVar reads a module-scoped variable's cached value.
func (m *Module) ReadModuleVar(v param.ModuleVar) (uint32, error) {
	return m.model.ReadModule(v)
}

// WriteModuleVar writes a module-scoped variable's cached value.
func (m *Module) WriteModuleVar(v param.ModuleVar, val uint32) error {
	return m.model.WriteModule(v, val)
}

// ReadModPar reads a user-facing module parameter through its variable
// route.
func (m *Module) ReadModPar(p param.ModuleParam) (uint32, error) {
	return m.model.ReadModuleParam(p)
}

// WriteModPar writes a user-facing module parameter to the host cache
// with a dirty flag.
func (m *Module) WriteModPar(p param.ModuleParam, val uint32) error {
	return m.model.WriteModuleParam(p, val)
}

// SyncVars flushes every dirty cached cell to the DSP over the bus.
func (m *Module) SyncVars() error {
	const op = "module.Module.SyncVars"
	release := m.bus.Guard()
	defer release()

	err := m.model.SyncVars(func(addr int, val uint32) error {
		m.bus.WriteWord(int64(addr)*4, val)
		return m.bus.Err()
	})
	if err != nil {
		return m.setErr(errs.Wrap(errs.DeviceHWFailure, op, err))
	}
	return nil
}

// SyncHW applies parameter-derived hardware side effects: offset DACs
// and filter registers recomputed from the current parameter cache.
// Only the offset DAC cache is modeled explicitly; filter-register
// side effects are pushed through the same SyncVars path since they
// live in the DSP variable address space.
func (m *Module) SyncHW() error {
	for ch, val := range m.offsets {
		if err := m.writeOffsetDAC(ch, val); err != nil {
			return err
		}
	}
	return m.SyncVars()
}
