// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package crate

import (
	"github.com/go-pixie/crate16/boot"
	"github.com/go-pixie/crate16/errs"
	"github.com/go-pixie/crate16/firmware"
)

// SetFirmware verifies every module's revision-appropriate firmware
// exists in the shared registry for all four device tags. It does not
// load image bytes -- Boot's per-step bootImage does that lazily.
func (c *Crate) SetFirmware() error {
	const op = "crate.Crate.SetFirmware"

	for _, m := range c.modules {
		for _, dev := range []firmware.Device{firmware.Sys, firmware.Fippi, firmware.DSP, firmware.Var} {
			if _, err := c.fw.Find(m.Revision(), dev, m.Slot()); err != nil {
				return c.setErr(errs.Wrapf(errs.ModuleInvalidFirmware, op, err,
					"module %d (revision=%d, slot=%d) missing %s firmware", m.Number(), m.Revision(), m.Slot(), dev))
			}
		}
	}
	return nil
}

// Boot boots every module in crate-number order through pattern. A
// module failing to boot aborts the crate boot and remains offline;
// earlier modules that already booted stay online. On any failure, an
// alert email is sent if WithAlertMail was
// configured.
func (c *Crate) Boot(pattern boot.Pattern) error {
	const op = "crate.Crate.Boot"

	for _, m := range c.modules {
		if err := m.Boot(pattern, c.fw); err != nil {
			c.notifyBootFailure(m.Number(), err)
			return c.setErr(errs.Wrap(errs.ModuleInitializeFailure, op, err))
		}
	}
	return nil
}
