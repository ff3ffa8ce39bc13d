// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package module_test

import (
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	gboot "github.com/go-pixie/crate16/boot"
	"github.com/go-pixie/crate16/bus"
	"github.com/go-pixie/crate16/firmware"
	"github.com/go-pixie/crate16/internal/mmap"
	"github.com/go-pixie/crate16/module"
)

// readyController returns a boot.Controller whose status register is
// pre-seeded so prepare and verify both succeed immediately.
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

func TestModuleBootFullSequence(t *testing.T) {
	dir := t.TempDir()

	h := mmap.HandleFrom(make([]byte, 1<<20))
	b := bus.New(h, false)
	m := module.New(0, 2, 2, b, module.WithRevision(11))

	m.SetControllers(module.Controllers{
		ComFPGA: readyController(t, b, 0x100),
		SPFPGA:  readyController(t, b, 0x200),
		DSP:     readyController(t, b, 0x300),
	})

	reg := firmware.NewRegistry()
	sysPath := writeImage(t, dir, "sys.bin", []uint32{1, 2, 3})
	fippiPath := writeImage(t, dir, "fippi.bin", []uint32{4, 5})
	dspPath := writeImage(t, dir, "dsp.bin", []uint32{6})
	varPath := filepath.Join(dir, "vars.txt")
	if err := os.WriteFile(varPath, []byte("FastThresh 0x4902\n"), 0o644); err != nil {
		t.Fatalf("could not write var file: %+v", err)
	}

	for _, fw := range []firmware.Firmware{
		{Version: "1.0", Revision: 11, Dev: firmware.Sys, Filename: sysPath},
		{Version: "1.0", Revision: 11, Dev: firmware.Fippi, Filename: fippiPath},
		{Version: "1.0", Revision: 11, Dev: firmware.DSP, Filename: dspPath},
		{Version: "1.0", Revision: 11, Dev: firmware.Var, Filename: varPath},
	} {
		if err := reg.Add(fw); err != nil {
			t.Fatalf("could not register firmware: %+v", err)
		}
	}

	if err := m.Boot(gboot.PatternFull, reg); err != nil {
		t.Fatalf("could not boot module: %+v", err)
	}
	if m.Offline() {
		t.Fatalf("module should be online after a successful boot")
	}
}

func TestModuleBootZeroPatternIsNoOp(t *testing.T) {
	h := mmap.HandleFrom(make([]byte, 1<<16))
	b := bus.New(h, false)
	m := module.New(0, 2, 2, b, module.WithRevision(11))
	m.SetControllers(module.Controllers{
		ComFPGA: readyController(t, b, 0x100),
		SPFPGA:  readyController(t, b, 0x200),
		DSP:     readyController(t, b, 0x300),
	})

	reg := firmware.NewRegistry() // empty: a real boot would fail to resolve any image
	if err := m.Boot(gboot.Pattern(0), reg); err != nil {
		t.Fatalf("pattern 0 should be a no-op, got: %+v", err)
	}
	if !m.Offline() {
		t.Fatalf("module should remain offline after a pattern-0 boot")
	}
}

func TestModuleBootMissingFirmwareFails(t *testing.T) {
	h := mmap.HandleFrom(make([]byte, 1<<16))
	b := bus.New(h, false)
	m := module.New(0, 2, 2, b, module.WithRevision(11))
	m.SetControllers(module.Controllers{
		ComFPGA: readyController(t, b, 0x100),
		SPFPGA:  readyController(t, b, 0x200),
		DSP:     readyController(t, b, 0x300),
	})

	reg := firmware.NewRegistry()
	if err := m.Boot(gboot.PatternFull, reg); err == nil {
		t.Fatalf("expected boot to fail with an empty firmware registry")
	}
	if !m.Offline() {
		t.Fatalf("module should remain offline after a failed boot")
	}
}
