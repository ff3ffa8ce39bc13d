// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package crate

import (
	"encoding/json"
	"os"

	"github.com/gonuts/binary"

	"github.com/go-pixie/crate16/errs"
	"github.com/go-pixie/crate16/param"
)

// configDoc is the on-disk JSON representation of a crate's full
// parameter state: one Snapshot per module, in crate-number order,
// round-tripped losslessly by ExportConfig/ImportConfig.
type configDoc struct {
	Modules []param.Snapshot `json:"modules"`
}

// ExportConfig persists every module's full parameter cache as JSON to
// path.
func (c *Crate) ExportConfig(path string) error {
	const op = "crate.Crate.ExportConfig"

	doc := configDoc{Modules: make([]param.Snapshot, len(c.modules))}
	for i, m := range c.modules {
		doc.Modules[i] = m.Snapshot()
	}

	f, err := os.Create(path)
	if err != nil {
		return c.setErr(errs.Wrap(errs.FileWriteFailure, op, err))
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return c.setErr(errs.Wrap(errs.FileWriteFailure, op, err))
	}
	return nil
}

// ImportConfig restores the parameter cache from path's JSON document
// into outSlots (crate numbers; a nil/empty outSlots restores every
// module present in the document) and pushes the restored values to
// the DSP and hardware via each module's Restore.
func (c *Crate) ImportConfig(path string, outSlots []int) error {
	const op = "crate.Crate.ImportConfig"

	f, err := os.Open(path)
	if err != nil {
		return c.setErr(errs.Wrap(errs.FileNotFound, op, err))
	}
	defer f.Close()

	var doc configDoc
	if err := json.NewDecoder(f).Decode(&doc); err != nil {
		return c.setErr(errs.Wrap(errs.FileInvalidFormat, op, err))
	}

	targets := outSlots
	if len(targets) == 0 {
		targets = make([]int, len(doc.Modules))
		for i := range targets {
			targets[i] = i
		}
	}

	for _, number := range targets {
		if number < 0 || number >= len(doc.Modules) || number >= len(c.modules) {
			return c.setErr(errs.New(errs.ModuleNumberInvalid, op, "module number %d out of range", number))
		}
		if err := c.modules[number].Restore(doc.Modules[number]); err != nil {
			return c.setErr(errs.Wrap(errs.ConfigInvalidParam, op, err))
		}
	}
	return nil
}

// legacyBlob is the binary encoding of one module's Snapshot, used by
// SaveDSPPars/LoadDSPPars for the legacy "lset_*" persisted DSP
// parameter file format -- an opaque DSP-word blob matching the
// address map in length, written with github.com/gonuts/binary's
// struct-tag-driven encoder instead of JSON.
type legacyBlob struct {
	System  []uint32
	Module  []uint32
	Channel [][]uint32
}

// SaveDSPPars persists module number's parameter cache to path in the
// legacy binary settings format.
func (c *Crate) SaveDSPPars(number int, path string) error {
	const op = "crate.Crate.SaveDSPPars"

	m, err := c.Module(number)
	if err != nil {
		return c.setErr(err)
	}

	f, err := os.Create(path)
	if err != nil {
		return c.setErr(errs.Wrap(errs.FileWriteFailure, op, err))
	}
	defer f.Close()

	snap := m.Snapshot()
	blob := legacyBlob{System: snap.System, Module: snap.Module, Channel: snap.Channel}
	if err := binary.NewEncoder(f).Encode(blob); err != nil {
		return c.setErr(errs.Wrap(errs.FileWriteFailure, op, err))
	}
	return nil
}

// LoadDSPPars restores module number's parameter cache from path's
// legacy binary settings file and pushes it to the DSP/hardware.
func (c *Crate) LoadDSPPars(number int, path string) error {
	const op = "crate.Crate.LoadDSPPars"

	m, err := c.Module(number)
	if err != nil {
		return c.setErr(err)
	}

	f, err := os.Open(path)
	if err != nil {
		return c.setErr(errs.Wrap(errs.FileNotFound, op, err))
	}
	defer f.Close()

	var blob legacyBlob
	if err := binary.NewDecoder(f).Decode(&blob); err != nil {
		return c.setErr(errs.Wrap(errs.FileInvalidFormat, op, err))
	}

	snap := param.Snapshot{System: blob.System, Module: blob.Module, Channel: blob.Channel}
	if err := m.Restore(snap); err != nil {
		return c.setErr(errs.Wrap(errs.ConfigInvalidParam, op, err))
	}
	return nil
}

// CopyParameters copies dstChannel's parameters from srcChannel within
// module number, restricted to the filter groups selected by groups.
func (c *Crate) CopyParameters(number, dstChannel, srcChannel int, groups param.FilterGroup) error {
	const op = "crate.Crate.CopyParameters"

	m, err := c.Module(number)
	if err != nil {
		return c.setErr(err)
	}
	if err := m.Model().CopyParameters(dstChannel, srcChannel, groups); err != nil {
		return c.setErr(errs.Wrap(errs.ModuleInvalidParam, op, err))
	}
	return nil
}
