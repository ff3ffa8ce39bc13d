// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package bus

import (
	"encoding/binary"

	"github.com/go-daq/smbus"
	"github.com/go-pixie/crate16/errs"
)

// Identity is the module identity block read out of the front-panel
// EEPROM during probe: serial number and hardware revision.
type Identity struct {
	Serial   uint32
	Revision uint16
}

const (
	eepromCmdSerial   = 0x00
	eepromCmdRevision = 0x04
)

// ReadIdentity reads a module's Identity from the SMBus-attached
// EEPROM at addr on the given system SMBus number. A failed read
// surfaces as errs.DeviceEEPROMFailure; it never retries, mirroring
// the no-local-retry rule for every bus access outside the boot
// controller.
func ReadIdentity(smbusNum int, addr uint8) (Identity, error) {
	const op = "bus.ReadIdentity"

	dev, err := smbus.OpenFile(smbusNum)
	if err != nil {
		return Identity{}, errs.Wrapf(errs.DeviceEEPROMFailure, op, err, "could not open smbus %d", smbusNum)
	}
	defer dev.Close()

	if err := dev.SetAddr(addr); err != nil {
		return Identity{}, errs.Wrapf(errs.DeviceEEPROMFailure, op, err, "could not address EEPROM 0x%02x", addr)
	}

	serial := make([]byte, 4)
	if err := dev.ReadBlockData(addr, eepromCmdSerial, serial); err != nil {
		return Identity{}, errs.Wrapf(errs.DeviceEEPROMFailure, op, err, "could not read serial number")
	}

	rev := make([]byte, 2)
	if err := dev.ReadBlockData(addr, eepromCmdRevision, rev); err != nil {
		return Identity{}, errs.Wrapf(errs.DeviceEEPROMFailure, op, err, "could not read revision")
	}

	return Identity{
		Serial:   binary.LittleEndian.Uint32(serial),
		Revision: binary.LittleEndian.Uint16(rev),
	}, nil
}
