// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package param

import (
	"math"

	"github.com/go-pixie/crate16/errs"
)

// ChannelParam names a user-facing, physically-scaled channel
// parameter. Each one routes to one or more ChannelVar cells through a
// pair of conversion functions walking the raw words in vars order.
type ChannelParam int

const (
	PTriggerThreshold ChannelParam = iota
	PTriggerRiseTime
	PEnergyRiseTime
	PEnergyFlattop
	PTau
	PBaselinePercent
	PCFDThreshold
	PQDCLength
	numChannelParams
)

// paramRoute binds a ChannelParam to the ChannelVar(s) backing it and
// the conversion functions between the physical unit (float64) and the
// raw DSP word(s).
type paramRoute struct {
	name string
	vars []ChannelVar
	// min/max bound the physical value; min == max means unbounded
	// (the IEEE-float parameters, ENERGY_RISETIME and QDC_LENGTH0).
	min, max float64
	// toRaw converts a physical value plus the filter clock rate (MHz)
	// into the raw words to write, in vars order.
	toRaw func(clockMHz float64, val float64) []uint32
	// fromRaw converts the raw words (in vars order) back to a
	// physical value.
	fromRaw func(clockMHz float64, raw []uint32) float64
}

var paramRoutes = [numChannelParams]paramRoute{
	PTriggerThreshold: {
		name: "TRIGGER_THRESHOLD",
		vars: []ChannelVar{CVFastThresh},
		toRaw: func(_ float64, val float64) []uint32 {
			return []uint32{math.Float32bits(float32(val))}
		},
		fromRaw: func(_ float64, raw []uint32) float64 {
			return float64(math.Float32frombits(raw[0]))
		},
	},
	PTriggerRiseTime: {
		name: "TRIGGER_RISETIME",
		vars: []ChannelVar{CVFastLength},
		min: 0, max: 40.95, // µs; 12-bit filter-length register
		toRaw: func(clockMHz float64, val float64) []uint32 {
			return []uint32{uint32(math.Round(val * clockMHz))}
		},
		fromRaw: func(clockMHz float64, raw []uint32) float64 {
			return float64(raw[0]) / clockMHz
		},
	},
	PEnergyRiseTime: {
		name: "ENERGY_RISETIME",
		vars: []ChannelVar{CVLog2Ebin},
		toRaw: func(_ float64, val float64) []uint32 {
			return []uint32{uint32(math.Round(math.Log2(val)))}
		},
		fromRaw: func(_ float64, raw []uint32) float64 {
			return math.Exp2(float64(raw[0]))
		},
	},
	PEnergyFlattop: {
		name: "ENERGY_FLATTOP",
		vars: []ChannelVar{CVEnergyLow},
		min: 0, max: 65535,
		toRaw: func(_ float64, val float64) []uint32 {
			return []uint32{uint32(val)}
		},
		fromRaw: func(_ float64, raw []uint32) float64 {
			return float64(raw[0])
		},
	},
	PTau: {
		name: "TAU",
		vars: []ChannelVar{CVPreampTau},
		toRaw: func(clockMHz float64, val float64) []uint32 {
			return []uint32{math.Float32bits(float32(val * clockMHz))}
		},
		fromRaw: func(clockMHz float64, raw []uint32) float64 {
			return float64(math.Float32frombits(raw[0])) / clockMHz
		},
	},
	PBaselinePercent: {
		name: "BASELINE_PERCENT",
		vars: []ChannelVar{CVBaselinePercent},
		min: 0, max: 100,
		toRaw: func(_ float64, val float64) []uint32 {
			return []uint32{uint32(val)}
		},
		fromRaw: func(_ float64, raw []uint32) float64 {
			return float64(raw[0])
		},
	},
	PCFDThreshold: {
		name: "CFD_THRESHOLD",
		vars: []ChannelVar{CVCFDThresh},
		min: 0, max: 65535,
		toRaw: func(_ float64, val float64) []uint32 {
			return []uint32{uint32(val)}
		},
		fromRaw: func(_ float64, raw []uint32) float64 {
			return float64(raw[0])
		},
	},
	PQDCLength: {
		name: "QDC_LENGTH0",
		vars: []ChannelVar{CVQDCLen},
		toRaw: func(clockMHz float64, val float64) []uint32 {
			return []uint32{uint32(math.Round(val * clockMHz))}
		},
		fromRaw: func(clockMHz float64, raw []uint32) float64 {
			return float64(raw[0]) / clockMHz
		},
	},
}

// ParamByName resolves a physical parameter name to its ChannelParam.
func ParamByName(name string) (ChannelParam, error) {
	for p, r := range paramRoutes {
		if r.name == name {
			return ChannelParam(p), nil
		}
	}
	return 0, errs.New(errs.ChannelInvalidParam, "param.ParamByName", "unknown parameter %q", name)
}

// ReadParam reads the physical value of a channel parameter, applying
// its fromRaw conversion against the module's filter clock rate.
func (m *Model) ReadParam(ch int, p ChannelParam, clockMHz float64) (float64, error) {
	const op = "param.Model.ReadParam"
	r := paramRoutes[p]
	raw := make([]uint32, len(r.vars))
	for i, cv := range r.vars {
		v, err := m.ReadChannel(ch, cv)
		if err != nil {
			return 0, errs.Wrapf(errs.ChannelInvalidParam, op, err, "could not read %s", r.name)
		}
		raw[i] = v
	}
	return r.fromRaw(clockMHz, raw), nil
}

// WriteParam writes the physical value of a channel parameter, after
// converting it to raw DSP word(s) via toRaw. A bounded parameter
// rejects an out-of-range value rather than silently wrapping.
func (m *Model) WriteParam(ch int, p ChannelParam, clockMHz float64, val float64) error {
	const op = "param.Model.WriteParam"
	r := paramRoutes[p]
	if r.max > r.min && (val < r.min || val > r.max) {
		return errs.New(errs.ChannelInvalidValue, op, "%s value %g out of range [%g,%g]", r.name, val, r.min, r.max)
	}
	raw := r.toRaw(clockMHz, val)
	for i, cv := range r.vars {
		if err := m.WriteChannel(ch, cv, raw[i]); err != nil {
			return errs.Wrapf(errs.ChannelInvalidParam, op, err, "could not write %s", r.name)
		}
	}
	return nil
}
