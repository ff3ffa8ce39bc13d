// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package param

import "github.com/go-pixie/crate16/errs"

// ReadSystem returns the cached value of a system variable.
func (m *Model) ReadSystem(v SystemVar) (uint32, error) {
	if err := checkReadable("param.Model.ReadSystem", m.sysDescs[v]); err != nil {
		return 0, err
	}
	return m.sysCells[v].Value, nil
}

// WriteSystem sets the cached value of a system variable and marks it
// dirty; SyncHW (in package module) is responsible for flushing dirty
// cells to the DSP.
func (m *Model) WriteSystem(v SystemVar, val uint32) error {
	if err := checkWritable("param.Model.WriteSystem", m.sysDescs[v]); err != nil {
		return err
	}
	m.sysCells[v] = Cell{Value: val, Dirty: true}
	return nil
}

// ReadModule returns the cached value of a module variable.
func (m *Model) ReadModule(v ModuleVar) (uint32, error) {
	if err := checkReadable("param.Model.ReadModule", m.modDescs[v]); err != nil {
		return 0, err
	}
	return m.modCells[v].Value, nil
}

// WriteModule sets the cached value of a module variable and marks it
// dirty.
func (m *Model) WriteModule(v ModuleVar, val uint32) error {
	if err := checkWritable("param.Model.WriteModule", m.modDescs[v]); err != nil {
		return err
	}
	m.modCells[v] = Cell{Value: val, Dirty: true}
	return nil
}

// ReadChannel returns the cached value of a channel variable's first
// word on channel ch.
func (m *Model) ReadChannel(ch int, v ChannelVar) (uint32, error) {
	const op = "param.Model.ReadChannel"
	if err := m.checkChannel(op, ch); err != nil {
		return 0, err
	}
	if err := checkReadable(op, m.chDescs[v]); err != nil {
		return 0, err
	}
	return m.chCells[ch][v].Value, nil
}

// WriteChannel sets the cached value of a channel variable's first
// word on channel ch and marks it dirty.
func (m *Model) WriteChannel(ch int, v ChannelVar, val uint32) error {
	const op = "param.Model.WriteChannel"
	if err := m.checkChannel(op, ch); err != nil {
		return err
	}
	if err := checkWritable(op, m.chDescs[v]); err != nil {
		return err
	}
	m.chCells[ch][v] = Cell{Value: val, Dirty: true}
	return nil
}

func (m *Model) checkChannel(op string, ch int) error {
	if ch < 0 || ch >= m.numChannels {
		return errs.New(errs.ChannelNumberInvalid, op, "channel %d out of range [0,%d)", ch, m.numChannels)
	}
	return nil
}

// DirtyCount returns the number of cells holding a host-side change
// not yet flushed to the DSP.
func (m *Model) DirtyCount() int {
	n := 0
	for _, c := range m.sysCells {
		if c.Dirty {
			n++
		}
	}
	for _, c := range m.modCells {
		if c.Dirty {
			n++
		}
	}
	for ch := range m.chCells {
		for _, c := range m.chCells[ch] {
			if c.Dirty {
				n++
			}
		}
	}
	return n
}

// SyncVars pushes every dirty cell's value to visit (normally the bus
// writer supplied by package module), clearing the dirty flag on
// success. The visit function receives the absolute DSP address and
// value for each dirty cell.
func (m *Model) SyncVars(visit func(addr int, val uint32) error) error {
	for i := range m.sysDescs {
		if !m.sysCells[i].Dirty || !m.sysDescs[i].Enabled {
			continue
		}
		if err := visit(m.sysDescs[i].Addr, m.sysCells[i].Value); err != nil {
			return err
		}
		m.sysCells[i].Dirty = false
	}
	for i := range m.modDescs {
		if !m.modCells[i].Dirty || !m.modDescs[i].Enabled {
			continue
		}
		if err := visit(m.modDescs[i].Addr, m.modCells[i].Value); err != nil {
			return err
		}
		m.modCells[i].Dirty = false
	}
	for ch := range m.chCells {
		base := m.addr.ChannelBase(ch)
		for i := range m.chDescs {
			if !m.chCells[ch][i].Dirty || !m.chDescs[i].Enabled {
				continue
			}
			if err := visit(base+m.chDescs[i].Addr-m.addr.ChannelBase(0), m.chCells[ch][i].Value); err != nil {
				return err
			}
			m.chCells[ch][i].Dirty = false
		}
	}
	return nil
}
