// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package crate

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	"github.com/go-pixie/crate16/errs"
	"github.com/go-pixie/crate16/firmware"
)

// DSPConfig names the three DSP firmware files a module boots with.
type DSPConfig struct {
	Ldr string `json:"ldr"`
	Par string `json:"par"`
	Var string `json:"var"`
}

// FPGAConfig names the two FPGA bitstream files a module boots with.
type FPGAConfig struct {
	Sys   string `json:"sys"`
	Fippi string `json:"fippi"`
}

// FirmwareInfo carries the optional per-module firmware identity block.
type FirmwareInfo struct {
	Version  string `json:"version"`
	Revision int    `json:"revision"`
	ADCMSps  int    `json:"adc_msps"`
	ADCBits  int    `json:"adc_bits"`
}

// ModuleConfig is one module's boot configuration: its physical slot
// and the firmware files to load there. The two on-disk forms -- the
// JSON array and the legacy fixed-order text file -- both decode to
// this; they are read independently and never merged.
type ModuleConfig struct {
	Slot int
	DSP  DSPConfig
	FPGA FPGAConfig
	FW   *FirmwareInfo // nil when the config names no firmware identity
}

// moduleConfigJSON shadows ModuleConfig with pointer fields so a
// missing required key is distinguishable from a zero value.
type moduleConfigJSON struct {
	Slot *int `json:"slot"`
	DSP  *struct {
		Ldr *string `json:"ldr"`
		Par *string `json:"par"`
		Var *string `json:"var"`
	} `json:"dsp"`
	FPGA *struct {
		Sys   *string `json:"sys"`
		Fippi *string `json:"fippi"`
	} `json:"fpga"`
	FW *FirmwareInfo `json:"fw"`
}

// ReadConfigJSON reads a boot configuration from path's top-level JSON
// array. A missing required field, an empty array, or more than
// MaxModules entries fail with config_invalid_param.
func ReadConfigJSON(path string) ([]ModuleConfig, error) {
	const op = "crate.ReadConfigJSON"

	f, err := os.Open(path)
	if err != nil {
		return nil, errs.Wrap(errs.FileNotFound, op, err)
	}
	defer f.Close()

	var raw []moduleConfigJSON
	if err := json.NewDecoder(f).Decode(&raw); err != nil {
		return nil, errs.Wrap(errs.ConfigParseFailure, op, err)
	}
	if len(raw) == 0 || len(raw) > MaxModules {
		return nil, errs.New(errs.ConfigInvalidParam, op, "config holds %d modules, want 1..%d", len(raw), MaxModules)
	}

	cfgs := make([]ModuleConfig, len(raw))
	for i, rc := range raw {
		switch {
		case rc.Slot == nil:
			return nil, errs.New(errs.ConfigInvalidParam, op, "module %d: missing slot", i)
		case rc.DSP == nil || rc.DSP.Ldr == nil || rc.DSP.Par == nil || rc.DSP.Var == nil:
			return nil, errs.New(errs.ConfigInvalidParam, op, "module %d: missing dsp.ldr/par/var", i)
		case rc.FPGA == nil || rc.FPGA.Sys == nil || rc.FPGA.Fippi == nil:
			return nil, errs.New(errs.ConfigInvalidParam, op, "module %d: missing fpga.sys/fippi", i)
		}
		cfgs[i] = ModuleConfig{
			Slot: *rc.Slot,
			DSP:  DSPConfig{Ldr: *rc.DSP.Ldr, Par: *rc.DSP.Par, Var: *rc.DSP.Var},
			FPGA: FPGAConfig{Sys: *rc.FPGA.Sys, Fippi: *rc.FPGA.Fippi},
			FW:   rc.FW,
		}
	}
	return cfgs, nil
}

// ReadConfigLegacy reads a boot configuration from path's legacy
// fixed-order whitespace-separated text form: num_modules, one slot
// per module, then ComFPGA, SPFPGA, Trig, DSPcode, DSPpar and DSPvar
// file paths shared by every module. The Trig field is accepted and
// discarded: revisions this SDK drives carry no separate trigger-FPGA
// image.
func ReadConfigLegacy(path string) ([]ModuleConfig, error) {
	const op = "crate.ReadConfigLegacy"

	f, err := os.Open(path)
	if err != nil {
		return nil, errs.Wrap(errs.FileNotFound, op, err)
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	sc.Split(bufio.ScanWords)
	next := func() (string, error) {
		if !sc.Scan() {
			if err := sc.Err(); err != nil {
				return "", err
			}
			return "", fmt.Errorf("unexpected end of file")
		}
		return sc.Text(), nil
	}

	tok, err := next()
	if err != nil {
		return nil, errs.Wrap(errs.ConfigParseFailure, op, err)
	}
	n, err := strconv.Atoi(tok)
	if err != nil {
		return nil, errs.New(errs.ConfigParseFailure, op, "invalid module count %q", tok)
	}
	if n <= 0 || n > MaxModules {
		return nil, errs.New(errs.ConfigInvalidParam, op, "config holds %d modules, want 1..%d", n, MaxModules)
	}

	slots := make([]int, n)
	for i := range slots {
		tok, err := next()
		if err != nil {
			return nil, errs.Wrap(errs.ConfigParseFailure, op, err)
		}
		if slots[i], err = strconv.Atoi(tok); err != nil {
			return nil, errs.New(errs.ConfigParseFailure, op, "invalid slot %q", tok)
		}
	}

	var com, sp, trig, dspCode, dspPar, dspVar string
	for _, dst := range []*string{&com, &sp, &trig, &dspCode, &dspPar, &dspVar} {
		if *dst, err = next(); err != nil {
			return nil, errs.Wrap(errs.ConfigParseFailure, op, err)
		}
	}

	cfgs := make([]ModuleConfig, n)
	for i, slot := range slots {
		cfgs[i] = ModuleConfig{
			Slot: slot,
			DSP:  DSPConfig{Ldr: dspCode, Par: dspPar, Var: dspVar},
			FPGA: FPGAConfig{Sys: com, Fippi: sp},
		}
	}
	return cfgs, nil
}

// RegisterBootConfig adds the firmware files named by cfgs to reg,
// one slot-restricted entry per (version, revision, device) triple --
// modules sharing a firmware set share its entry, with every slot
// listed. Only entries carrying a firmware identity block can be
// registered: without a version and revision the registry triple is
// undefined.
func RegisterBootConfig(reg *firmware.Registry, cfgs []ModuleConfig) error {
	const op = "crate.RegisterBootConfig"

	type key struct {
		version  string
		revision int
		dev      firmware.Device
	}
	entries := make(map[key]*firmware.Firmware)
	var order []key

	for i, cfg := range cfgs {
		if cfg.FW == nil {
			return errs.New(errs.ConfigInvalidParam, op, "module %d (slot %d): missing fw identity block", i, cfg.Slot)
		}
		for _, ent := range []struct {
			dev  firmware.Device
			file string
		}{
			{firmware.Sys, cfg.FPGA.Sys},
			{firmware.Fippi, cfg.FPGA.Fippi},
			{firmware.DSP, cfg.DSP.Ldr},
			{firmware.Var, cfg.DSP.Var},
		} {
			k := key{cfg.FW.Version, cfg.FW.Revision, ent.dev}
			fw, ok := entries[k]
			if !ok {
				fw = &firmware.Firmware{
					Version:  k.version,
					Revision: k.revision,
					Dev:      k.dev,
					Filename: ent.file,
				}
				entries[k] = fw
				order = append(order, k)
			}
			fw.Slots = append(fw.Slots, cfg.Slot)
		}
	}

	for _, k := range order {
		if err := reg.Add(*entries[k]); err != nil {
			return err
		}
	}
	return nil
}
