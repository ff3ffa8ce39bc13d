// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package param

// CopyParameters copies every channel variable whose Group intersects
// groups from channel src to channel dst, honoring each descriptor's
// word mask so that reserved bits in partially-masked cells (like
// ChanCSRa) are left untouched on the destination.
//
// Disabled descriptors are skipped silently: a filter group may name a
// variable this firmware revision does not carry.
func (m *Model) CopyParameters(dst, src int, groups FilterGroup) error {
	const op = "param.Model.CopyParameters"
	if err := m.checkChannel(op, dst); err != nil {
		return err
	}
	if err := m.checkChannel(op, src); err != nil {
		return err
	}

	for i, d := range m.chDescs {
		if !d.Enabled || d.Group&groups == 0 {
			continue
		}
		mask := d.EffectiveMask()
		srcVal := m.chCells[src][i].Value
		dstVal := m.chCells[dst][i].Value
		m.chCells[dst][i] = Cell{
			Value: (dstVal &^ mask) | (srcVal & mask),
			Dirty: true,
		}
	}
	return nil
}
