// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Command pixie-boot boots a crate of Pixie-16 modules from a firmware
// spec file or a boot configuration file and prints a human-readable
// report, in one shot.
package main // import "github.com/go-pixie/crate16/cmd/pixie-boot"

import (
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"strings"

	"github.com/go-pixie/crate16/boot"
	"github.com/go-pixie/crate16/crate"
	"github.com/go-pixie/crate16/errs"
)

func main() {
	log.SetPrefix("pixie-boot: ")
	log.SetFlags(0)
	if err := xmain(os.Args[1:]); err != nil {
		log.Printf("%+v (code=%d)", err, errs.CodeOf(err))
		os.Exit(int(errs.CodeOf(err)))
	}
}

func xmain(args []string) error {
	var (
		fset = flag.NewFlagSet("pixie-boot", flag.ContinueOnError)

		firmwareSpec = fset.String("firmware", "", "path to the firmware spec file")
		cfgPath      = fset.String("config", "", "path to the boot configuration file (.json, or legacy fixed-order text)")
		numModules   = fset.Int("n", -1, "expected module count (-1: accept whatever is discovered)")
		partial      = fset.Bool("partial", false, "boot with the fast/partial pattern instead of full")
	)

	if err := fset.Parse(args); err != nil {
		return fmt.Errorf("could not parse input arguments: %w", err)
	}
	if *firmwareSpec == "" && *cfgPath == "" {
		return fmt.Errorf("missing required -firmware or -config flag")
	}

	return run(*firmwareSpec, *cfgPath, *numModules, *partial, os.Stdout)
}

func run(firmwareSpec, cfgPath string, numModules int, partial bool, report io.Writer) error {
	c := crate.New()

	if firmwareSpec != "" {
		f, err := os.Open(firmwareSpec)
		if err != nil {
			return fmt.Errorf("could not open firmware spec %q: %w", firmwareSpec, err)
		}
		defer f.Close()
		if err := c.Firmware().ReadSpecFile(f); err != nil {
			return fmt.Errorf("could not read firmware spec %q: %w", firmwareSpec, err)
		}
	}

	if cfgPath != "" {
		read := crate.ReadConfigLegacy
		if strings.HasSuffix(cfgPath, ".json") {
			read = crate.ReadConfigJSON
		}
		cfgs, err := read(cfgPath)
		if err != nil {
			return fmt.Errorf("could not read boot configuration %q: %w", cfgPath, err)
		}
		if numModules < 0 {
			numModules = len(cfgs)
		}
		// a legacy config names files but no firmware identity; images
		// must then come from the -firmware spec file instead.
		if cfgs[0].FW != nil {
			if err := crate.RegisterBootConfig(c.Firmware(), cfgs); err != nil {
				return fmt.Errorf("could not register boot configuration %q: %w", cfgPath, err)
			}
		}
	}

	// discoverBus is the PCI/PXI bus discoverer; it is an external
	// collaborator supplied here by the deployment-specific driver
	// package this front-end links against.
	if err := c.Initialize(discoverBus, numModules); err != nil {
		return fmt.Errorf("could not initialize crate: %w", err)
	}
	if err := c.SetFirmware(); err != nil {
		return fmt.Errorf("could not verify firmware: %w", err)
	}

	pattern := boot.PatternFull
	if partial {
		pattern = boot.PatternPartial
	}
	if err := c.Boot(pattern); err != nil {
		return fmt.Errorf("could not boot crate: %w", err)
	}
	if err := c.Probe(); err != nil {
		return fmt.Errorf("could not probe crate: %w", err)
	}

	if err := c.Report(report); err != nil {
		return fmt.Errorf("could not write report: %w", err)
	}
	return nil
}

// discoverBus is left unimplemented here: the low-level PCI/PXI bus
// scan is an out-of-scope external collaborator. A deployment links
// this command against a build-tagged driver package that supplies
// the real crate.Discoverer.
func discoverBus() ([]crate.Discovered, error) {
	return nil, fmt.Errorf("pixie-boot: no PCI/PXI bus driver linked into this build")
}
