// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Command pixie-listmode drives a timed list-mode acquisition run
// across every module in a crate, writing each module's FIFO stream to
// its own output file.
package main // import "github.com/go-pixie/crate16/cmd/pixie-listmode"

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/go-pixie/crate16/boot"
	"github.com/go-pixie/crate16/crate"
	"github.com/go-pixie/crate16/errs"
)

func main() {
	log.SetPrefix("pixie-listmode: ")
	log.SetFlags(0)
	if err := xmain(os.Args[1:]); err != nil {
		log.Printf("%+v (code=%d)", err, errs.CodeOf(err))
		os.Exit(int(errs.CodeOf(err)))
	}
}

func xmain(args []string) error {
	var (
		fset = flag.NewFlagSet("pixie-listmode", flag.ContinueOnError)

		firmwareSpec = fset.String("firmware", "", "path to the firmware spec file (required)")
		odir         = fset.String("o", ".", "output directory; one list-mode file per module")
		dur          = fset.Duration("dur", 10*time.Second, "run duration")
		pubAddr      = fset.String("pub", "", "optional mangos PUB address for a pixie-monitor tap")
	)

	if err := fset.Parse(args); err != nil {
		return fmt.Errorf("could not parse input arguments: %w", err)
	}
	if *firmwareSpec == "" {
		return fmt.Errorf("missing required -firmware flag")
	}

	return run(*firmwareSpec, *odir, *dur, *pubAddr, discoverBus)
}

func run(firmwareSpec, odir string, dur time.Duration, pubAddr string, discover crate.Discoverer) error {
	c := crate.New()

	f, err := os.Open(firmwareSpec)
	if err != nil {
		return fmt.Errorf("could not open firmware spec %q: %w", firmwareSpec, err)
	}
	defer f.Close()
	if err := c.Firmware().ReadSpecFile(f); err != nil {
		return fmt.Errorf("could not read firmware spec %q: %w", firmwareSpec, err)
	}

	if err := c.Initialize(discover, -1); err != nil {
		return fmt.Errorf("could not initialize crate: %w", err)
	}
	if err := c.SetFirmware(); err != nil {
		return fmt.Errorf("could not verify firmware: %w", err)
	}
	if err := c.Boot(boot.PatternFull); err != nil {
		return fmt.Errorf("could not boot crate: %w", err)
	}
	if err := c.Probe(); err != nil {
		return fmt.Errorf("could not probe crate: %w", err)
	}

	outs := make([]io.Writer, len(c.Modules()))
	for i, m := range c.Modules() {
		path := filepath.Join(odir, fmt.Sprintf("module-%d.lmd", m.Number()))
		out, err := os.Create(path)
		if err != nil {
			return fmt.Errorf("could not create output file %q: %w", path, err)
		}
		defer out.Close()
		outs[i] = out
	}

	ctx, cancel := context.WithTimeout(context.Background(), dur)
	defer cancel()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(stop)
	go func() {
		<-stop
		cancel()
	}()

	err = c.RunListmode(ctx, crate.RunConfig{
		RunType:      "list-mode",
		ReportEvery:  5 * time.Second,
		ReportWriter: os.Stdout,
		PubAddr:      pubAddr,
		Outputs:      outs,
	})
	if err != nil {
		return fmt.Errorf("could not run list-mode acquisition: %w", err)
	}
	return nil
}

// discoverBus is an external collaborator; see cmd/pixie-boot.
func discoverBus() ([]crate.Discovered, error) {
	return nil, fmt.Errorf("pixie-listmode: no PCI/PXI bus driver linked into this build")
}
