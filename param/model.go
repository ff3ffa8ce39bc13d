// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package param implements the parameter/variable model: the three
// closed namespaces (system, module, channel), their descriptors, the
// DSP address map derived from a loaded VAR file, the host-side value
// cache with dirty tracking, and the deterministic parameter-to-
// variable routing between the two.
//
// The descriptor tables below are a tagged-variant array indexed by
// enumeration, following a flat-const-block-plus-parallel-array style
// rather than a class hierarchy.
package param // import "github.com/go-pixie/crate16/param"

import "github.com/go-pixie/crate16/errs"

// Mode is a descriptor's read/write policy.
type Mode int

const (
	ReadOnly Mode = iota
	WriteOnly
	ReadWrite
)

func (m Mode) Readable() bool { return m == ReadOnly || m == ReadWrite }
func (m Mode) Writable() bool { return m == WriteOnly || m == ReadWrite }

// Direction tags which physical DSP memory block a descriptor's address
// falls in: the module's host-write configuration block (DirOut) or its
// DSP-write status/readback block (DirIn). This is a hardware address-
// space property, fixed by the loaded VAR file, and is independent of
// Mode -- a cell can be host-readable-and-writable cache (ReadWrite) while
// still living in the config block, because the host is simply allowed to
// read back what it last wrote.
type Direction int

const (
	DirOut Direction = iota // host -> DSP: configuration
	DirIn                   // DSP -> host: status/readback
)

// FilterGroup is a bitmask selecting one or more of the copy_parameters
// filter groups.
type FilterGroup uint32

const (
	GroupEnergy FilterGroup = 1 << iota
	GroupTrigger
	GroupAnalogSignalConditioning
	GroupHistogramControl
	GroupDecayTime
	GroupPulseShape
	GroupBaselineControl
	GroupChannelCSRA
	GroupCFDTrigger
	GroupTriggerStretch
	GroupFIFODelays
	GroupMultiplicity
	GroupQDC

	GroupAll FilterGroup = (1 << iota) - 1
)

// Descriptor describes one logical name within a namespace: its
// read/write policy, DSP word count, enable state, printable name,
// and (for variables) its DSP memory address. Disabled descriptors
// are those whose name was absent from the loaded VAR file.
type Descriptor struct {
	Name    string
	Mode    Mode
	Dir     Direction // address-map block; see Direction
	Words   int
	Enabled bool
	Addr    int // DSP word address; meaningless unless Enabled
	Group   FilterGroup
	Mask    uint32 // per-variable word mask; 0 means "all bits" (0xFFFFFFFF)
}

// EffectiveMask returns d.Mask, defaulting to all-bits-set.
func (d Descriptor) EffectiveMask() uint32 {
	if d.Mask == 0 {
		return 0xFFFFFFFF
	}
	return d.Mask
}

// checkReadable validates a read against a descriptor's enable/mode
// policy.
func checkReadable(op string, d Descriptor) error {
	if !d.Enabled {
		return errs.New(errs.ModuleParamDisabled, op, "parameter %q is disabled", d.Name)
	}
	if !d.Mode.Readable() {
		return errs.New(errs.ModuleParamWriteonly, op, "parameter %q is write-only", d.Name)
	}
	return nil
}

// checkWritable validates a write against a descriptor's enable/mode
// policy.
func checkWritable(op string, d Descriptor) error {
	if !d.Enabled {
		return errs.New(errs.ModuleParamDisabled, op, "parameter %q is disabled", d.Name)
	}
	if !d.Mode.Writable() {
		return errs.New(errs.ModuleParamReadonly, op, "parameter %q is read-only", d.Name)
	}
	return nil
}

// Cell is a word-sized value plus a dirty flag: a host-only change not
// yet flushed to the DSP.
type Cell struct {
	Value uint32
	Dirty bool
}
