// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package param

import (
	"bufio"
	"io"
	"strconv"
	"strings"

	"github.com/go-pixie/crate16/errs"
)

// SystemVar, ModuleVar and ChannelVar index the three closed variable
// namespaces. Their descriptor tables are flat parallel arrays indexed
// by the enumeration, not a class hierarchy.
type SystemVar int

const (
	SVNumCrates SystemVar = iota
	SVHostIOTimeout
	numSystemVars
)

var systemVarDescs = [numSystemVars]Descriptor{
	SVNumCrates:     {Name: "NUMBER_CRATES", Mode: ReadWrite, Words: 1},
	SVHostIOTimeout: {Name: "HOST_IO_TIMEOUT", Mode: ReadWrite, Words: 1},
}

type ModuleVar int

const (
	MVModCSRA ModuleVar = iota
	MVModCSRB
	MVModFormat
	MVMaxEvents
	MVSynchWait
	MVInSynch
	MVRunType
	MVCoincPattern
	MVCoincWait
	MVHostRunTimePreset
	numModuleVars
)

var moduleVarDescs = [numModuleVars]Descriptor{
	MVModCSRA:           {Name: "MODCSRA", Mode: ReadWrite, Dir: DirOut, Words: 1},
	MVModCSRB:           {Name: "MODCSRB", Mode: ReadWrite, Dir: DirOut, Words: 1},
	MVModFormat:         {Name: "MODFORMAT", Mode: ReadOnly, Dir: DirIn, Words: 1},
	MVMaxEvents:         {Name: "MAXEVENTS", Mode: ReadWrite, Dir: DirOut, Words: 1},
	MVSynchWait:         {Name: "SYNCH_WAIT", Mode: ReadWrite, Dir: DirOut, Words: 1},
	MVInSynch:           {Name: "IN_SYNCH", Mode: ReadOnly, Dir: DirIn, Words: 1},
	MVRunType:           {Name: "RUN_TYPE", Mode: ReadWrite, Dir: DirOut, Words: 1},
	MVCoincPattern:      {Name: "COINCPATTERN", Mode: ReadWrite, Dir: DirOut, Words: 1},
	MVCoincWait:         {Name: "COINCWAIT", Mode: ReadWrite, Dir: DirOut, Words: 1},
	MVHostRunTimePreset: {Name: "HOSTRUNTIMEPRESET", Mode: ReadWrite, Dir: DirOut, Words: 2},
}

// ChannelVar enumerates the per-channel DSP cell names. The 16 hardware
// channels share one descriptor table; per-channel addresses are
// derived from channel 0's loaded address plus a fixed channel stride
// (AddressMap.VarsPerChannel).
type ChannelVar int

const (
	CVFastLength ChannelVar = iota
	CVFastGap
	CVFastThresh
	CVCFDThresh
	CVCFDDelay
	CVCFDScale
	CVEnergyLow
	CVLog2Ebin
	CVLog2Bweight
	CVPreampTau
	CVTriggerDelay
	CVResetDelay
	CVTauFactor
	CVBLcut
	CVBaselinePercent
	CVChanCSRa
	CVChanCSRb
	CVQDCLen
	CVExtTrigStretch
	CVChanTrigStretch
	CVVetoStretch
	CVMultiplicityMaskL
	CVFtrigoutDelay
	numChannelVars
)

var channelVarDescs = [numChannelVars]Descriptor{
	CVFastLength:         {Name: "FastLength", Mode: ReadWrite, Words: 1, Group: GroupTrigger},
	CVFastGap:            {Name: "FastGap", Mode: ReadWrite, Words: 1, Group: GroupTrigger},
	CVFastThresh:         {Name: "FastThresh", Mode: ReadWrite, Words: 1, Group: GroupTrigger},
	CVCFDThresh:          {Name: "CFDThresh", Mode: ReadWrite, Words: 1, Group: GroupCFDTrigger},
	CVCFDDelay:           {Name: "CFDDelay", Mode: ReadWrite, Words: 1, Group: GroupCFDTrigger},
	CVCFDScale:           {Name: "CFDScale", Mode: ReadWrite, Words: 1, Group: GroupCFDTrigger},
	CVEnergyLow:          {Name: "EnergyLow", Mode: ReadWrite, Words: 1, Group: GroupEnergy},
	CVLog2Ebin:           {Name: "Log2Ebin", Mode: ReadWrite, Words: 1, Group: GroupEnergy | GroupHistogramControl},
	CVLog2Bweight:        {Name: "Log2Bweight", Mode: ReadWrite, Words: 1, Group: GroupEnergy},
	CVPreampTau:          {Name: "PreampTau", Mode: ReadWrite, Words: 1, Group: GroupDecayTime},
	CVTriggerDelay:       {Name: "TriggerDelay", Mode: ReadWrite, Words: 1, Group: GroupTrigger},
	CVResetDelay:         {Name: "ResetDelay", Mode: ReadWrite, Words: 1, Group: GroupAnalogSignalConditioning},
	CVTauFactor:          {Name: "TauFactor", Mode: ReadWrite, Words: 1, Group: GroupPulseShape},
	CVBLcut:              {Name: "BLcut", Mode: ReadWrite, Words: 1, Group: GroupBaselineControl},
	CVBaselinePercent:    {Name: "BaselinePercent", Mode: ReadWrite, Words: 1, Group: GroupBaselineControl},
	CVChanCSRa:           {Name: "ChanCSRa", Mode: ReadWrite, Words: 1, Group: GroupChannelCSRA, Mask: 0x0000FFFE},
	CVChanCSRb:           {Name: "ChanCSRb", Mode: ReadWrite, Words: 1, Group: GroupChannelCSRA},
	CVQDCLen:             {Name: "QDCLen0", Mode: ReadWrite, Words: 8, Group: GroupQDC},
	CVExtTrigStretch:     {Name: "ExtTrigStretch", Mode: ReadWrite, Words: 1, Group: GroupTriggerStretch},
	CVChanTrigStretch:    {Name: "ChanTrigStretch", Mode: ReadWrite, Words: 1, Group: GroupTriggerStretch},
	CVVetoStretch:        {Name: "VetoStretch", Mode: ReadWrite, Words: 1, Group: GroupTriggerStretch},
	CVMultiplicityMaskL:  {Name: "MultiplicityMaskL", Mode: ReadWrite, Words: 1, Group: GroupMultiplicity},
	CVFtrigoutDelay:      {Name: "FtrigoutDelay", Mode: ReadWrite, Words: 1, Group: GroupFIFODelays},
}

// AddressMap is the DSP address layout derived once per boot from the
// loaded variable descriptors.
type AddressMap struct {
	ModuleIn       Range
	ModuleOut      Range
	ChannelsIn     Range
	ChannelsOut    Range
	VarsPerChannel int
}

// Range is a half-open [Base, Base+Size) word range.
type Range struct {
	Base int
	Size int
}

func (r Range) End() int { return r.Base + r.Size }

func (r Range) overlaps(o Range) bool {
	return r.Base < o.End() && o.Base < r.End()
}

// ChannelBase returns the DSP base address of channel ch's variable
// block. Channel blocks are contiguous and identically sized:
// channel_base(i+1) - channel_base(i) == VarsPerChannel.
func (m AddressMap) ChannelBase(ch int) int {
	base := m.ChannelsOut.Base
	if m.ChannelsIn.Size > 0 && (m.ChannelsOut.Size == 0 || m.ChannelsIn.Base < base) {
		base = m.ChannelsIn.Base
	}
	return base + ch*m.VarsPerChannel
}

// Model holds the loaded descriptor tables, the derived address map,
// and the host-side value cache for one module's system, module and
// per-channel variables.
type Model struct {
	numChannels int

	sysDescs [numSystemVars]Descriptor
	modDescs [numModuleVars]Descriptor
	chDescs  [numChannelVars]Descriptor

	sysCells [numSystemVars]Cell
	modCells [numModuleVars]Cell
	chCells  [][numChannelVars]Cell // indexed by channel

	addr AddressMap
}

// NewModel creates a Model for a module with the given channel count.
// All descriptors start disabled; Load enables those found in the VAR
// stream.
func NewModel(numChannels int) *Model {
	m := &Model{
		numChannels: numChannels,
		sysDescs:    systemVarDescs,
		modDescs:    moduleVarDescs,
		chDescs:     channelVarDescs,
		chCells:     make([][numChannelVars]Cell, numChannels),
	}
	return m
}

// varEntry is one "NAME 0xADDR" line from a DSP VAR file.
type varEntry struct {
	name string
	addr int
}

func parseVarLine(line string) (varEntry, error) {
	const op = "param.parseVarLine"
	fields := strings.Fields(line)
	if len(fields) != 2 {
		return varEntry{}, errs.New(errs.FileInvalidFormat, op, "expected 2 fields, got %d in %q", len(fields), line)
	}
	addr, err := strconv.ParseInt(strings.TrimPrefix(fields[1], "0x"), 16, 64)
	if err != nil {
		return varEntry{}, errs.Wrapf(errs.FileInvalidFormat, op, err, "invalid address in %q", line)
	}
	return varEntry{name: fields[0], addr: int(addr)}, nil
}

// Load reads a DSP VAR file -- one "NAME 0xADDR" pair per line, blank
// lines and '#'-comments ignored -- and enables every descriptor whose
// name matches, setting its DSP address. Names absent from src leave
// their descriptor disabled rather than failing the load.
func (m *Model) Load(src io.Reader) error {
	const op = "param.Model.Load"

	sc := bufio.NewScanner(src)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		ve, err := parseVarLine(line)
		if err != nil {
			return err
		}
		m.enable(ve)
	}
	if err := sc.Err(); err != nil {
		return errs.Wrapf(errs.FileReadFailure, op, err, "could not scan VAR file")
	}

	m.addr = deriveAddressMap(m.modDescs[:], m.chDescs[:])
	return nil
}

func (m *Model) enable(ve varEntry) {
	for i := range m.sysDescs {
		if m.sysDescs[i].Name == ve.name {
			m.sysDescs[i].Enabled = true
			m.sysDescs[i].Addr = ve.addr
			return
		}
	}
	for i := range m.modDescs {
		if m.modDescs[i].Name == ve.name {
			m.modDescs[i].Enabled = true
			m.modDescs[i].Addr = ve.addr
			return
		}
	}
	for i := range m.chDescs {
		if m.chDescs[i].Name == ve.name {
			m.chDescs[i].Enabled = true
			m.chDescs[i].Addr = ve.addr
			return
		}
	}
	// Unknown names are ignored: the VAR file may carry entries for a
	// revision's extra cells this model does not model.
}

// deriveAddressMap computes module_in/module_out/channels_in/
// channels_out from the enabled descriptors' loaded addresses. Ranges
// are split by each descriptor's address-space Direction -- a fixed
// hardware property of which DSP memory block its address belongs to
// -- not by host Mode, since most descriptors are host-readable-and-
// writable cache entries (ReadWrite) regardless of which block they
// live in. Channel ranges are computed from channel 0's block and
// replicated via VarsPerChannel.
func deriveAddressMap(modDescs, chDescs []Descriptor) AddressMap {
	var am AddressMap

	am.ModuleIn = spanOf(modDescs, func(d Descriptor) bool { return d.Dir == DirIn })
	am.ModuleOut = spanOf(modDescs, func(d Descriptor) bool { return d.Dir == DirOut })
	am.ChannelsIn = spanOf(chDescs, func(d Descriptor) bool { return d.Dir == DirIn })
	am.ChannelsOut = spanOf(chDescs, func(d Descriptor) bool { return d.Dir == DirOut })

	full := spanOf(chDescs, func(Descriptor) bool { return true })
	am.VarsPerChannel = full.Size

	return am
}

func spanOf(descs []Descriptor, pred func(Descriptor) bool) Range {
	min, max := -1, -1
	for _, d := range descs {
		if !d.Enabled || !pred(d) {
			continue
		}
		if min == -1 || d.Addr < min {
			min = d.Addr
		}
		if end := d.Addr + d.Words; max == -1 || end > max {
			max = end
		}
	}
	if min == -1 {
		return Range{}
	}
	return Range{Base: min, Size: max - min}
}

// AddressMap returns the derived address map. Valid only after Load.
func (m *Model) AddressMap() AddressMap { return m.addr }

// SystemDescriptor returns the descriptor for v.
func (m *Model) SystemDescriptor(v SystemVar) Descriptor { return m.sysDescs[v] }

// ModuleDescriptor returns the descriptor for v.
func (m *Model) ModuleDescriptor(v ModuleVar) Descriptor { return m.modDescs[v] }

// ChannelDescriptor returns the descriptor for v, shared across all
// channels.
func (m *Model) ChannelDescriptor(v ChannelVar) Descriptor { return m.chDescs[v] }
