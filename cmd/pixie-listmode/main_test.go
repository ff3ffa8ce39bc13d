// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"encoding/binary"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/go-pixie/crate16/boot"
	"github.com/go-pixie/crate16/bufpool"
	"github.com/go-pixie/crate16/bus"
	"github.com/go-pixie/crate16/crate"
	"github.com/go-pixie/crate16/firmware"
	"github.com/go-pixie/crate16/internal/mmap"
	"github.com/go-pixie/crate16/module"
)

func readyController(t *testing.T, b *bus.Bus, base int64) *boot.Controller {
	t.Helper()
	status := bus.NewReg32(b, base+8)
	status.W(0xFFFFFFFF)
	return boot.New(boot.Config{
		Data:       bus.NewReg32(b, base),
		Ctrl:       bus.NewReg32(b, base+4),
		Status:     status,
		PreLoad:    boot.MaskValue{Mask: 0xFF, Value: 0xFF},
		PostVerify: boot.MaskValue{Mask: 0xFF, Value: 0xFF},
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

// writeFirmwareSpec writes a "version:revision:device:filename" spec
// file, the format firmware.Registry.ReadSpecFile parses.
func writeFirmwareSpec(t *testing.T, dir string, fws []firmware.Firmware) string {
	t.Helper()
	path := filepath.Join(dir, "firmware.spec")
	var lines string
	for _, fw := range fws {
		lines += fw.Version + ":" + strconv.Itoa(fw.Revision) + ":" + string(fw.Dev) + ":" + fw.Filename + "\n"
	}
	if err := os.WriteFile(path, []byte(lines), 0o644); err != nil {
		t.Fatalf("could not write firmware spec: %+v", err)
	}
	return path
}

// TestRunTimedListmodeAcquisition calls run() directly with the values
// xmain would pass from the -firmware/-o/-dur/-pub flags, for a
// simulated one-module crate producing a bounded run; flag parsing
// itself is not exercised.
func TestRunTimedListmodeAcquisition(t *testing.T) {
	dir := t.TempDir()
	h := mmap.HandleFrom(make([]byte, 1<<20))
	b := bus.New(h, false)
	m := module.New(0, 2, 1, b, module.WithRevision(11), module.WithDSPReadyTimeout(time.Millisecond))
	m.SetControllers(module.Controllers{
		ComFPGA: readyController(t, b, 0x1000),
		SPFPGA:  readyController(t, b, 0x1100),
		DSP:     readyController(t, b, 0x1200),
	})

	pool := bufpool.NewPool()
	if err := pool.Create(4, 256); err != nil {
		t.Fatalf("could not create FIFO pool: %+v", err)
	}
	queue := bufpool.NewQueue()
	m.AttachFIFO(pool, queue)

	sysPath := writeImage(t, dir, "sys.bin", []uint32{1, 2, 3})
	fippiPath := writeImage(t, dir, "fippi.bin", []uint32{4, 5})
	dspPath := writeImage(t, dir, "dsp.bin", []uint32{6})
	varPath := filepath.Join(dir, "vars.txt")
	if err := os.WriteFile(varPath, []byte("FastThresh 0x4902\n"), 0o644); err != nil {
		t.Fatalf("could not write var file: %+v", err)
	}

	fws := []firmware.Firmware{
		{Version: "1.0", Revision: 11, Dev: firmware.Sys, Filename: sysPath, Slots: []int{2}},
		{Version: "1.0", Revision: 11, Dev: firmware.Fippi, Filename: fippiPath, Slots: []int{2}},
		{Version: "1.0", Revision: 11, Dev: firmware.DSP, Filename: dspPath, Slots: []int{2}},
		{Version: "1.0", Revision: 11, Dev: firmware.Var, Filename: varPath, Slots: []int{2}},
	}
	specPath := writeFirmwareSpec(t, dir, fws)

	discover := func() ([]crate.Discovered, error) {
		return []crate.Discovered{{Slot: 2, Mod: m}}, nil
	}

	genStop := make(chan struct{})
	genDone := make(chan struct{})
	go func() {
		defer close(genDone)
		ticker := time.NewTicker(time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-genStop:
				return
			case <-ticker.C:
				hd, err := pool.Request()
				if err != nil {
					continue
				}
				hd.Buffer().Write([]uint32{0x1, 0x2, 0x3, 0x4})
				queue.Push(hd)
			}
		}
	}()
	defer func() {
		close(genStop)
		<-genDone
	}()

	odir := t.TempDir()
	err := run(specPath, odir, 20*time.Millisecond, "", discover)
	if err != nil {
		t.Fatalf("run failed: %+v", err)
	}

	out := filepath.Join(odir, "module-0.lmd")
	info, err := os.Stat(out)
	if err != nil {
		t.Fatalf("expected a list-mode output file: %+v", err)
	}
	if info.Size() == 0 {
		t.Fatalf("expected the simulated generator's words to be drained into the output file")
	}
}
