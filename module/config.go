// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package module

import "github.com/go-pixie/crate16/param"

// Snapshot captures the module's full parameter cache, for
// export_config/save_dsp_pars.
func (m *Module) Snapshot() param.Snapshot { return m.model.Snapshot() }

// Restore loads snap into the module's parameter cache and pushes it
// to the DSP and hardware, mirroring Pixie-16's initialize_afe(): the
// cache is set first, then sync_vars/sync_hw flush it.
func (m *Module) Restore(snap param.Snapshot) error {
	if err := m.model.Restore(snap); err != nil {
		return err
	}
	return m.SyncHW()
}
