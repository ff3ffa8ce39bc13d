// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package module

import (
	"bytes"
	"encoding/binary"

	"github.com/go-pixie/crate16/boot"
	"github.com/go-pixie/crate16/errs"
	"github.com/go-pixie/crate16/firmware"
)

// Boot drives the module through the steps pattern requests, in the
// fixed ComFPGA->SPFPGA->DSPCode->DSPVars->DSPParams->Finalize order.
// Any image load failure aborts the boot and the module remains
// offline.
func (m *Module) Boot(pattern boot.Pattern, reg *firmware.Registry) error {
	const op = "module.Module.Boot"

	steps := pattern.Steps()
	if len(steps) == 0 {
		return nil // pattern 0 requests no boot work; the module stays offline
	}

	for _, step := range steps {
		var err error
		switch step {
		case boot.SeqComFPGA:
			err = m.bootImage(reg, firmware.Sys, m.boot.ComFPGA)
		case boot.SeqSPFPGA:
			err = m.bootImage(reg, firmware.Fippi, m.boot.SPFPGA)
		case boot.SeqDSPCode:
			err = m.bootImage(reg, firmware.DSP, m.boot.DSP)
		case boot.SeqDSPVars:
			err = m.bootVars(reg)
		case boot.SeqDSPParams:
			err = m.SyncVars()
		case boot.SeqFinalize:
			err = m.SyncHW()
		}
		if err != nil {
			return m.setErr(errs.Wrap(errs.ModuleInitializeFailure, op, err))
		}
	}

	m.MarkOnline()
	return nil
}

// bootImage resolves dev's firmware image for this module's revision
// and slot, loads it, and drives ctl through its boot state machine.
func (m *Module) bootImage(reg *firmware.Registry, dev firmware.Device, ctl *boot.Controller) error {
	const op = "module.Module.bootImage"

	if ctl == nil {
		return errs.New(errs.ModuleInitializeFailure, op, "no boot.Controller bound for device %q", dev)
	}

	fw, err := reg.Find(m.revision, dev, m.slot)
	if err != nil {
		return err
	}
	if err := fw.Load(); err != nil {
		return err
	}

	image, err := wordsFromBytes(fw.Data())
	if err != nil {
		return errs.Wrap(errs.FileInvalidFormat, op, err)
	}
	if err := ctl.Boot(image); err != nil {
		return err
	}
	m.boundFW[dev] = fw.Version
	return nil
}

// bootVars loads the module's VAR descriptor table from the
// firmware.Var image bound to this module's revision, populating the
// host-side address map the DSP parameters step then syncs.
func (m *Module) bootVars(reg *firmware.Registry) error {
	const op = "module.Module.bootVars"

	fw, err := reg.Find(m.revision, firmware.Var, m.slot)
	if err != nil {
		return err
	}
	if err := fw.Load(); err != nil {
		return err
	}
	if err := m.LoadVars(bytes.NewReader(fw.Data())); err != nil {
		return errs.Wrap(errs.FileInvalidFormat, op, err)
	}
	m.boundFW[firmware.Var] = fw.Version
	return nil
}

// wordsFromBytes reinterprets a little-endian byte image as 32-bit
// words, word-aligned as the streaming step requires.
func wordsFromBytes(data []byte) ([]uint32, error) {
	const op = "module.wordsFromBytes"
	if len(data)%4 != 0 {
		return nil, errs.New(errs.FileTruncated, op, "image length %d is not word-aligned", len(data))
	}
	words := make([]uint32, len(data)/4)
	for i := range words {
		words[i] = binary.LittleEndian.Uint32(data[4*i:])
	}
	return words, nil
}
