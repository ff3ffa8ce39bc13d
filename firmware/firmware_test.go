// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package firmware_test

import (
	"strings"
	"testing"

	"github.com/go-pixie/crate16/errs"
	"github.com/go-pixie/crate16/firmware"
)

func TestParse(t *testing.T) {
	for _, tc := range []struct {
		line    string
		want    firmware.Firmware
		wantErr bool
	}{
		{
			line: "1.2.3:15:dsp:dsp.ldr",
			want: firmware.Firmware{Version: "1.2.3", Revision: 15, Dev: firmware.DSP, Filename: "dsp.ldr"},
		},
		{
			line: "1.2.3,15,fippi,fippi.bin",
			want: firmware.Firmware{Version: "1.2.3", Revision: 15, Dev: firmware.Fippi, Filename: "fippi.bin"},
		},
		{line: "1.2.3:15:dsp", wantErr: true},
		{line: "1.2.3:abc:dsp:f.bin", wantErr: true},
		{line: "1.2.3:15:bogus:f.bin", wantErr: true},
	} {
		t.Run(tc.line, func(t *testing.T) {
			got, err := firmware.ParseSpecString(tc.line)
			if tc.wantErr {
				if err == nil {
					t.Fatalf("expected an error")
				}
				return
			}
			if err != nil {
				t.Fatalf("could not parse: %+v", err)
			}
			if got.Version != tc.want.Version || got.Revision != tc.want.Revision ||
				got.Dev != tc.want.Dev || got.Filename != tc.want.Filename {
				t.Fatalf("invalid firmware: got=%+v, want=%+v", got, tc.want)
			}
		})
	}
}

func TestRegistryAddCheck(t *testing.T) {
	r := firmware.NewRegistry()
	fw := firmware.Firmware{Version: "1.0", Revision: 15, Dev: firmware.DSP, Filename: "a.ldr"}

	if r.Check(fw) {
		t.Fatalf("firmware should not be registered yet")
	}

	if err := r.Add(fw); err != nil {
		t.Fatalf("could not add firmware: %+v", err)
	}
	if !r.Check(fw) {
		t.Fatalf("firmware should now be registered")
	}

	err := r.Add(fw)
	if err == nil {
		t.Fatalf("expected a duplicate-firmware error")
	}
	if got, want := errs.CodeOf(err), errs.ModuleInvalidFirmware; got != want {
		t.Fatalf("invalid error code: got=%d, want=%d", got, want)
	}
}

func TestRegistryFindPrefersSlot(t *testing.T) {
	r := firmware.NewRegistry()
	deflt := firmware.Firmware{Version: "1.0", Revision: 15, Dev: firmware.Sys, Filename: "sys-default.bin"}
	specific := firmware.Firmware{Version: "1.0-slot2", Revision: 15, Dev: firmware.Sys, Filename: "sys-slot2.bin", Slots: []int{2}}

	for _, fw := range []firmware.Firmware{deflt, specific} {
		if err := r.Add(fw); err != nil {
			t.Fatalf("could not add firmware: %+v", err)
		}
	}

	got, err := r.Find(15, firmware.Sys, 2)
	if err != nil {
		t.Fatalf("could not find firmware: %+v", err)
	}
	if got.Filename != specific.Filename {
		t.Fatalf("expected slot-specific match, got %q", got.Filename)
	}

	got, err = r.Find(15, firmware.Sys, 5)
	if err != nil {
		t.Fatalf("could not find firmware: %+v", err)
	}
	if got.Filename != deflt.Filename {
		t.Fatalf("expected default match, got %q", got.Filename)
	}

	_, err = r.Find(99, firmware.Sys, 5)
	if err == nil {
		t.Fatalf("expected a not-found error")
	}
	if got, want := errs.CodeOf(err), errs.FileNotFound; got != want {
		t.Fatalf("invalid error code: got=%d, want=%d", got, want)
	}
}

func TestReadSpecFile(t *testing.T) {
	r := firmware.NewRegistry()
	src := strings.NewReader(`
# comment
1.0:15:sys:sys.bin
1.0:15:fippi:fippi.bin
`)
	if err := r.ReadSpecFile(src); err != nil {
		t.Fatalf("could not read spec file: %+v", err)
	}

	if _, err := r.Find(15, firmware.Sys, 0); err != nil {
		t.Fatalf("could not find sys firmware: %+v", err)
	}
	if _, err := r.Find(15, firmware.Fippi, 0); err != nil {
		t.Fatalf("could not find fippi firmware: %+v", err)
	}
}
