// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package firmware holds the crate-level firmware image registry:
// parsing firmware descriptor strings, indexing images by module
// revision, and resolving a (revision, device, slot) lookup to a
// concrete image.
package firmware // import "github.com/go-pixie/crate16/firmware"

import (
	"bufio"
	"io"
	"os"
	"strconv"
	"strings"

	"golang.org/x/xerrors"

	"github.com/go-pixie/crate16/errs"
)

// Device names the four firmware device tags a Firmware may target.
type Device string

const (
	Sys    Device = "sys"
	Fippi  Device = "fippi"
	DSP    Device = "dsp"
	Var    Device = "var"
)

// Firmware is a single firmware image descriptor: the triple
// (Version, Revision, Device) identifies it uniquely within a
// Registry; Filename and the lazily loaded Data are site-specific
// metadata that do not participate in equality.
type Firmware struct {
	Version  string
	Revision int
	Dev      Device
	Filename string
	Slots    []int // empty == default/generic, loads on any slot

	data []byte
}

// Equal reports whether fw and other identify the same image: two
// descriptors are equal iff their (version, revision, device) triple
// matches.
func (fw Firmware) Equal(other Firmware) bool {
	return fw.Version == other.Version &&
		fw.Revision == other.Revision &&
		fw.Dev == other.Dev
}

// ForSlot reports whether fw may load into slot: either fw carries no
// slot restriction (a default/generic image) or slot is explicitly
// listed.
func (fw Firmware) ForSlot(slot int) bool {
	if len(fw.Slots) == 0 {
		return true
	}
	for _, s := range fw.Slots {
		if s == slot {
			return true
		}
	}
	return false
}

// Loaded reports whether the image bytes have been read into memory.
func (fw *Firmware) Loaded() bool { return fw.data != nil }

// Data returns the loaded image bytes, or nil if Load has not been
// called.
func (fw *Firmware) Data() []byte { return fw.data }

// Load reads the firmware file into the byte buffer, once, lazily.
// Calling Load on an already-loaded Firmware is a no-op.
func (fw *Firmware) Load() error {
	if fw.Loaded() {
		return nil
	}
	buf, err := os.ReadFile(fw.Filename)
	if err != nil {
		return errs.Wrapf(errs.FileNotFound, "firmware.Load", err, "could not read %q", fw.Filename)
	}
	fw.data = buf
	return nil
}

// Clear releases the loaded image bytes; the (version, revision,
// device) triple and Filename remain.
func (fw *Firmware) Clear() { fw.data = nil }

// Parse parses a firmware descriptor string of the form
// "version<delim>revision<delim>device<delim>filename". Parse errors
// carry only context; ReadSpecFile attaches the taxonomy code at the
// boundary.
func Parse(line string, delim byte) (Firmware, error) {
	fields := splitStrict(line, delim)
	if len(fields) != 4 {
		return Firmware{}, xerrors.Errorf("firmware: expected 4 fields, got %d in %q", len(fields), line)
	}

	rev, err := strconv.Atoi(strings.TrimSpace(fields[1]))
	if err != nil {
		return Firmware{}, xerrors.Errorf("firmware: invalid revision in %q: %w", line, err)
	}

	dev := Device(strings.TrimSpace(fields[2]))
	switch dev {
	case Sys, Fippi, DSP, Var:
	default:
		return Firmware{}, xerrors.Errorf("firmware: invalid device tag %q in %q", dev, line)
	}

	return Firmware{
		Version:  strings.TrimSpace(fields[0]),
		Revision: rev,
		Dev:      dev,
		Filename: strings.TrimSpace(fields[3]),
	}, nil
}

// splitStrict splits line on delim, dropping empty fields; Parse then
// rejects any line that does not leave exactly four.
func splitStrict(line string, delim byte) []string {
	parts := strings.Split(line, string(delim))
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if strings.TrimSpace(p) == "" {
			continue
		}
		out = append(out, p)
	}
	return out
}

// ParseSpecString parses the external "firmware spec string" form,
// where the separator is one of ':', ',' or whitespace, auto-detected
// from the first match found.
func ParseSpecString(s string) (Firmware, error) {
	for _, d := range []byte{':', ',', ' ', '\t'} {
		if strings.IndexByte(s, d) >= 0 {
			return Parse(s, d)
		}
	}
	return Firmware{}, xerrors.Errorf("firmware: no recognized separator in %q", s)
}

// Registry is the crate-level firmware image registry: a mapping from
// module revision to an ordered sequence of firmware references.
type Registry struct {
	byRev map[int][]Firmware
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{byRev: make(map[int][]Firmware)}
}

// Add inserts fw into the registry. It fails with
// errs.ModuleInvalidFirmware if an equal-triple firmware already
// exists.
func (r *Registry) Add(fw Firmware) error {
	const op = "firmware.Registry.Add"
	if r.Check(fw) {
		return errs.New(errs.ModuleInvalidFirmware, op, "firmware %s/%d/%s already registered", fw.Version, fw.Revision, fw.Dev)
	}
	r.byRev[fw.Revision] = append(r.byRev[fw.Revision], fw)
	return nil
}

// Check reports whether a firmware with fw's triple is registered.
func (r *Registry) Check(fw Firmware) bool {
	for _, cand := range r.byRev[fw.Revision] {
		if cand.Equal(fw) {
			return true
		}
	}
	return false
}

// Find resolves (revision, device, slot) to a concrete Firmware,
// preferring a slot-specific match over a default/generic one.
func (r *Registry) Find(revision int, dev Device, slot int) (*Firmware, error) {
	const op = "firmware.Registry.Find"

	list := r.byRev[revision]
	var deflt *Firmware
	for i := range list {
		fw := &list[i]
		if fw.Dev != dev {
			continue
		}
		if len(fw.Slots) == 0 {
			if deflt == nil {
				deflt = fw
			}
			continue
		}
		for _, s := range fw.Slots {
			if s == slot {
				return fw, nil
			}
		}
	}
	if deflt != nil {
		return deflt, nil
	}
	return nil, errs.New(errs.FileNotFound, op, "no %s firmware for revision=%d slot=%d", dev, revision, slot)
}

// ReadSpecFile parses one firmware spec string per line from r and
// adds each to the registry.
func (r *Registry) ReadSpecFile(src io.Reader) error {
	const op = "firmware.Registry.ReadSpecFile"

	sc := bufio.NewScanner(src)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fw, err := ParseSpecString(line)
		if err != nil {
			return errs.Wrap(errs.ConfigParseFailure, op, err)
		}
		if err := r.Add(fw); err != nil {
			return err
		}
	}
	if err := sc.Err(); err != nil {
		return errs.Wrapf(errs.FileReadFailure, op, err, "could not scan firmware spec file")
	}
	return nil
}
