// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package module

import "github.com/go-pixie/crate16/errs"

// dacMin and dacMax bound the 16-bit offset DAC search range.
const (
	dacMin = 0
	dacMax = 0xFFFF
)

// AdjustOffsets iteratively sets each channel's offset DAC by reading
// a baseline and binary-searching toward target. It fails
// module_task_timeout if any channel fails to converge within 16
// iterations.
func (m *Module) AdjustOffsets(target uint32, readBaseline func(channel int) (uint32, error)) error {
	const op = "module.Module.AdjustOffsets"

	for ch := range m.offsets {
		lo, hi := dacMin, dacMax
		converged := false

		for iter := 0; iter < offsetAdjustMaxIter; iter++ {
			mid := lo + (hi-lo)/2
			m.offsets[ch] = uint32(mid)
			if err := m.writeOffsetDAC(ch, uint32(mid)); err != nil {
				return err
			}

			if err := m.AcquireBaselines(); err != nil {
				return err
			}
			val, err := readBaseline(ch)
			if err != nil {
				return errs.Wrap(errs.DeviceHWFailure, op, err)
			}

			switch {
			case val == target:
				converged = true
			case val < target:
				lo = mid + 1
			default:
				hi = mid - 1
			}
			if converged || lo > hi {
				converged = true
				break
			}
		}
		if !converged {
			return errs.New(errs.ModuleTaskTimeout, op, "channel %d offset did not converge within %d iterations", ch, offsetAdjustMaxIter)
		}
	}
	return nil
}

// writeOffsetDAC writes the offset DAC register for channel via the
// bus.
func (m *Module) writeOffsetDAC(channel int, val uint32) error {
	const op = "module.Module.writeOffsetDAC"
	if m.err != nil {
		return m.err
	}
	release := m.bus.Guard()
	defer release()

	const dacBase = 0x5000
	m.bus.WriteWord(int64(dacBase+channel*4), val)
	if err := m.bus.Err(); err != nil {
		return m.setErr(errs.Wrap(errs.DeviceHWFailure, op, err))
	}
	return nil
}

// Offsets returns the last-written offset DAC values, one per
// channel.
func (m *Module) Offsets() []uint32 { return append([]uint32(nil), m.offsets...) }
