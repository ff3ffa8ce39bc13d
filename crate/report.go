// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package crate

import (
	"bufio"
	"fmt"
	"io"

	"github.com/go-pixie/crate16/errs"
	"github.com/go-pixie/crate16/firmware"
)

// Report writes a multi-line human-readable dump of crate, module and
// channel state to w: firmware versions, address ranges, and dirty
// counts.
func (c *Crate) Report(w io.Writer) error {
	const op = "crate.Crate.Report"

	buf := bufio.NewWriter(w)
	defer buf.Flush()

	fmt.Fprintf(buf, "crate: %d module(s)\n", len(c.modules))
	for _, m := range c.modules {
		addr := m.Model().AddressMap()
		fmt.Fprintf(buf, "module[%d]: slot=%d revision=%d offline=%v\n",
			m.Number(), m.Slot(), m.Revision(), m.Offline())
		for _, dev := range []firmware.Device{firmware.Sys, firmware.Fippi, firmware.DSP, firmware.Var} {
			if ver, ok := m.BoundFirmware()[dev]; ok {
				fmt.Fprintf(buf, "  fw.%s=%s\n", dev, ver)
			}
		}
		fmt.Fprintf(buf, "  module_in=  [0x%04x,0x%04x)\n", addr.ModuleIn.Base, addr.ModuleIn.End())
		fmt.Fprintf(buf, "  module_out= [0x%04x,0x%04x)\n", addr.ModuleOut.Base, addr.ModuleOut.End())
		fmt.Fprintf(buf, "  channels_in=[0x%04x,0x%04x)\n", addr.ChannelsIn.Base, addr.ChannelsIn.End())
		fmt.Fprintf(buf, "  channels_out=[0x%04x,0x%04x)\n", addr.ChannelsOut.Base, addr.ChannelsOut.End())
		fmt.Fprintf(buf, "  vars_per_channel=%d\n", addr.VarsPerChannel)
		fmt.Fprintf(buf, "  dirty_cells=%d\n", m.Model().DirtyCount())
		fmt.Fprintf(buf, "  run_active=%v\n", m.RunActive())
	}

	if err := buf.Flush(); err != nil {
		return c.setErr(errs.Wrap(errs.FileWriteFailure, op, err))
	}
	return nil
}
