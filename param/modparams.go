// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package param

import "github.com/go-pixie/crate16/errs"

// ModuleParam names a user-facing, module-scoped parameter. Unlike
// channel parameters, module parameters carry no physical-unit scaling:
// each one routes deterministically to exactly one ModuleVar cell.
type ModuleParam int

const (
	MPModuleCSRA ModuleParam = iota
	MPModuleCSRB
	MPMaxEvents
	MPSynchWait
	MPInSynch
	MPRunType
	MPCoincPattern
	MPCoincWait
	MPHostRTPreset
	numModuleParams
)

var moduleParamRoutes = [numModuleParams]struct {
	name string
	v    ModuleVar
}{
	MPModuleCSRA:   {"MODULE_CSRA", MVModCSRA},
	MPModuleCSRB:   {"MODULE_CSRB", MVModCSRB},
	MPMaxEvents:    {"MAX_EVENTS", MVMaxEvents},
	MPSynchWait:    {"SYNCH_WAIT", MVSynchWait},
	MPInSynch:      {"IN_SYNCH", MVInSynch},
	MPRunType:      {"RUN_TYPE", MVRunType},
	MPCoincPattern: {"COINC_PATTERN", MVCoincPattern},
	MPCoincWait:    {"COINC_WAIT", MVCoincWait},
	MPHostRTPreset: {"HOST_RT_PRESET", MVHostRunTimePreset},
}

// ModuleParamByName resolves a module parameter name to its ModuleParam.
func ModuleParamByName(name string) (ModuleParam, error) {
	for p, r := range moduleParamRoutes {
		if r.name == name {
			return ModuleParam(p), nil
		}
	}
	return 0, errs.New(errs.ModuleInvalidParam, "param.ModuleParamByName", "unknown module parameter %q", name)
}

// MapModuleParam returns the ModuleVar backing p.
func MapModuleParam(p ModuleParam) ModuleVar { return moduleParamRoutes[p].v }

// ReadModuleParam reads the cached value of the variable backing p.
func (m *Model) ReadModuleParam(p ModuleParam) (uint32, error) {
	return m.ReadModule(moduleParamRoutes[p].v)
}

// WriteModuleParam writes the cached value of the variable backing p,
// marking it dirty.
func (m *Model) WriteModuleParam(p ModuleParam, val uint32) error {
	return m.WriteModule(moduleParamRoutes[p].v, val)
}
