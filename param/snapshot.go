// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package param

// Snapshot is a serializable copy of a Model's full value cache --
// system, module and per-channel cells -- used by the crate facade's
// export_config/import_config and save_dsp_pars/load_dsp_pars
// operations.
type Snapshot struct {
	System  []uint32   `json:"system"`
	Module  []uint32   `json:"module"`
	Channel [][]uint32 `json:"channel"` // indexed by channel
}

// Snapshot captures the current value of every cell, dirty or not.
func (m *Model) Snapshot() Snapshot {
	snap := Snapshot{
		System:  make([]uint32, numSystemVars),
		Module:  make([]uint32, numModuleVars),
		Channel: make([][]uint32, m.numChannels),
	}
	for i, c := range m.sysCells {
		snap.System[i] = c.Value
	}
	for i, c := range m.modCells {
		snap.Module[i] = c.Value
	}
	for ch := 0; ch < m.numChannels; ch++ {
		snap.Channel[ch] = make([]uint32, numChannelVars)
		for i, c := range m.chCells[ch] {
			snap.Channel[ch][i] = c.Value
		}
	}
	return snap
}

// Restore loads snap's values back into the cache, marking every
// enabled, writable cell dirty so a subsequent SyncVars flushes the
// full restored state to the DSP.
func (m *Model) Restore(snap Snapshot) error {
	for i := range m.sysCells {
		if i < len(snap.System) {
			m.sysCells[i] = Cell{Value: snap.System[i], Dirty: m.sysDescs[i].Enabled && m.sysDescs[i].Mode.Writable()}
		}
	}
	for i := range m.modCells {
		if i < len(snap.Module) {
			m.modCells[i] = Cell{Value: snap.Module[i], Dirty: m.modDescs[i].Enabled && m.modDescs[i].Mode.Writable()}
		}
	}
	for ch := 0; ch < m.numChannels && ch < len(snap.Channel); ch++ {
		for i := range m.chCells[ch] {
			if i < len(snap.Channel[ch]) {
				m.chCells[ch][i] = Cell{Value: snap.Channel[ch][i], Dirty: m.chDescs[i].Enabled && m.chDescs[i].Mode.Writable()}
			}
		}
	}
	return nil
}
