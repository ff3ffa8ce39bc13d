// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package crate_test

import (
	"bytes"
	"encoding/binary"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	gboot "github.com/go-pixie/crate16/boot"
	"github.com/go-pixie/crate16/bus"
	"github.com/go-pixie/crate16/crate"
	"github.com/go-pixie/crate16/errs"
	"github.com/go-pixie/crate16/firmware"
	"github.com/go-pixie/crate16/internal/mmap"
	"github.com/go-pixie/crate16/module"
	"github.com/go-pixie/crate16/param"
)

func readyController(t *testing.T, b *bus.Bus, base int64) *gboot.Controller {
	t.Helper()
	status := bus.NewReg32(b, base+8)
	status.W(0xFFFFFFFF)
	return gboot.New(gboot.Config{
		Data:       bus.NewReg32(b, base),
		Ctrl:       bus.NewReg32(b, base+4),
		Status:     status,
		PreLoad:    gboot.MaskValue{Mask: 0xFF, Value: 0xFF},
		PostVerify: gboot.MaskValue{Mask: 0xFF, Value: 0xFF},
	})
}

func writeImage(t *testing.T, dir, name string, words []uint32) string {
	t.Helper()
	path := filepath.Join(dir, name)
	buf := make([]byte, 4*len(words))
	for i, w := range words {
		binary.LittleEndian.PutUint32(buf[4*i:], w)
	}
	if err := os.WriteFile(path, buf, 0o644); err != nil {
		t.Fatalf("could not write firmware image: %+v", err)
	}
	return path
}

// bootableModule returns a module wired to ready controllers and the
// firmware registry entries it needs to boot fully, mirroring
// module/boot_test.go's TestModuleBootFullSequence fixture.
func bootableModule(t *testing.T, dir string, number, slot int, reg *firmware.Registry) *module.Module {
	t.Helper()
	h := mmap.HandleFrom(make([]byte, 1<<20))
	b := bus.New(h, false)
	m := module.New(number, slot, 2, b, module.WithRevision(11), module.WithDSPReadyTimeout(time.Millisecond))
	base := int64(0x1000 * (number + 1))
	m.SetControllers(module.Controllers{
		ComFPGA: readyController(t, b, base),
		SPFPGA:  readyController(t, b, base+0x100),
		DSP:     readyController(t, b, base+0x200),
	})

	sysPath := writeImage(t, dir, moduleFile(number, "sys.bin"), []uint32{1, 2, 3})
	fippiPath := writeImage(t, dir, moduleFile(number, "fippi.bin"), []uint32{4, 5})
	dspPath := writeImage(t, dir, moduleFile(number, "dsp.bin"), []uint32{6})
	varPath := filepath.Join(dir, moduleFile(number, "vars.txt"))
	if err := os.WriteFile(varPath, []byte("SYNCH_WAIT 0x4803\nFastThresh 0x4902\n"), 0o644); err != nil {
		t.Fatalf("could not write var file: %+v", err)
	}

	version := "1.0-m" + strconv.Itoa(number)
	for _, fw := range []firmware.Firmware{
		{Version: version, Revision: 11, Dev: firmware.Sys, Filename: sysPath, Slots: []int{slot}},
		{Version: version, Revision: 11, Dev: firmware.Fippi, Filename: fippiPath, Slots: []int{slot}},
		{Version: version, Revision: 11, Dev: firmware.DSP, Filename: dspPath, Slots: []int{slot}},
		{Version: version, Revision: 11, Dev: firmware.Var, Filename: varPath, Slots: []int{slot}},
	} {
		if err := reg.Add(fw); err != nil {
			t.Fatalf("could not register firmware: %+v", err)
		}
	}
	return m
}

func moduleFile(number int, name string) string {
	return strconv.Itoa(number) + "-" + name
}

func newBootedCrate(t *testing.T, n int) *crate.Crate {
	t.Helper()
	dir := t.TempDir()
	c := crate.New()

	reg := c.Firmware()
	mods := make([]crate.Discovered, n)
	for i := 0; i < n; i++ {
		mods[i] = crate.Discovered{Slot: 2 + i, Mod: bootableModule(t, dir, i, 2+i, reg)}
	}

	if err := c.Initialize(func() ([]crate.Discovered, error) { return mods, nil }, n); err != nil {
		t.Fatalf("could not initialize crate: %+v", err)
	}
	if err := c.SetFirmware(); err != nil {
		t.Fatalf("set_firmware failed: %+v", err)
	}
	if err := c.Boot(gboot.PatternFull); err != nil {
		t.Fatalf("could not boot crate: %+v", err)
	}
	if err := c.Probe(); err != nil {
		t.Fatalf("could not probe crate: %+v", err)
	}
	return c
}

func TestInitializeCountMismatch(t *testing.T) {
	dir := t.TempDir()
	c := crate.New()
	reg := c.Firmware()
	mod := crate.Discovered{Slot: 2, Mod: bootableModule(t, dir, 0, 2, reg)}

	err := c.Initialize(func() ([]crate.Discovered, error) { return []crate.Discovered{mod}, nil }, 2)
	if err == nil {
		t.Fatalf("expected module_total_invalid when discovered count does not match numModules")
	}
}

func TestBootAndProbe(t *testing.T) {
	c := newBootedCrate(t, 2)

	mods := c.Modules()
	if len(mods) != 2 {
		t.Fatalf("expected 2 modules, got %d", len(mods))
	}
	for _, m := range mods {
		if m.Offline() {
			t.Fatalf("module %d should be online after boot+probe", m.Number())
		}
	}
}

func TestAssignRejectsDuplicateNumbers(t *testing.T) {
	c := newBootedCrate(t, 2)
	err := c.Assign(map[int]int{2: 0, 3: 0})
	if err == nil {
		t.Fatalf("expected module_invalid_slot for a non-bijective slot map")
	}
}

func TestExportImportConfigRoundTrip(t *testing.T) {
	c := newBootedCrate(t, 1)
	path := filepath.Join(t.TempDir(), "config.json")

	before := c.Modules()[0].Snapshot()

	if err := c.ExportConfig(path); err != nil {
		t.Fatalf("export_config failed: %+v", err)
	}
	if err := c.ImportConfig(path, nil); err != nil {
		t.Fatalf("import_config failed: %+v", err)
	}

	after := c.Modules()[0].Snapshot()
	if !snapshotEqual(before, after) {
		t.Fatalf("parameter cache not byte-equal after export/import round-trip")
	}
}

func TestSyncWaitConsensusAcrossModules(t *testing.T) {
	c := newBootedCrate(t, 2)

	// module 0 opts in, module 1 opts out: no consensus.
	if err := c.SetSynchWait(0, 1); err != nil {
		t.Fatalf("could not set SYNCH_WAIT on module 0: %+v", err)
	}
	if err := c.SetSynchWait(1, 0); err != nil {
		t.Fatalf("could not set SYNCH_WAIT on module 1: %+v", err)
	}
	err := c.SyncWaitValid()
	if err == nil {
		t.Fatalf("expected sync-wait validation to fail on disagreement")
	}
	if got, want := errs.CodeOf(err), errs.ModuleInvalidOperation; got != want {
		t.Fatalf("invalid error code: got=%d, want=%d", got, want)
	}
	if !strings.Contains(err.Error(), "sync wait") {
		t.Fatalf("error text should mention sync wait: %v", err)
	}

	if err := c.SetSynchWait(1, 1); err != nil {
		t.Fatalf("could not set SYNCH_WAIT on module 1: %+v", err)
	}
	if err := c.SyncWaitValid(); err != nil {
		t.Fatalf("full-crate consensus should be valid: %+v", err)
	}

	// the intent also lands in the module's parameter cache.
	got, err := c.Modules()[0].ReadModPar(param.MPSynchWait)
	if err != nil {
		t.Fatalf("could not read SYNCH_WAIT back: %+v", err)
	}
	if got != 1 {
		t.Fatalf("invalid cached SYNCH_WAIT: got=%d, want=1", got)
	}
}

func TestSaveLoadDSPParsRoundTrip(t *testing.T) {
	c := newBootedCrate(t, 1)
	path := filepath.Join(t.TempDir(), "settings.lset")

	before := c.Modules()[0].Snapshot()

	if err := c.SaveDSPPars(0, path); err != nil {
		t.Fatalf("save_dsp_pars failed: %+v", err)
	}
	if err := c.LoadDSPPars(0, path); err != nil {
		t.Fatalf("load_dsp_pars failed: %+v", err)
	}

	after := c.Modules()[0].Snapshot()
	if !snapshotEqual(before, after) {
		t.Fatalf("parameter cache not byte-equal after save/load round-trip")
	}
}

func TestCopyParameters(t *testing.T) {
	c := newBootedCrate(t, 1)
	if err := c.CopyParameters(0, 1, 0, param.GroupAll); err != nil {
		t.Fatalf("copy_parameters failed: %+v", err)
	}
}

func TestReportMentionsEveryModule(t *testing.T) {
	c := newBootedCrate(t, 2)
	var buf bytes.Buffer
	if err := c.Report(&buf); err != nil {
		t.Fatalf("report failed: %+v", err)
	}
	out := buf.String()
	if !strings.Contains(out, "module[0]") || !strings.Contains(out, "module[1]") {
		t.Fatalf("report missing expected module sections:\n%s", out)
	}
}

func snapshotEqual(a, b param.Snapshot) bool {
	if !uint32sEqual(a.System, b.System) || !uint32sEqual(a.Module, b.Module) {
		return false
	}
	if len(a.Channel) != len(b.Channel) {
		return false
	}
	for i := range a.Channel {
		if !uint32sEqual(a.Channel[i], b.Channel[i]) {
			return false
		}
	}
	return true
}

func uint32sEqual(a, b []uint32) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
