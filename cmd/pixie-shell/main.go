// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Command pixie-shell is an interactive REPL over a crate, offering
// the par-write/par-read/export-config/import-config/list-mode/report
// commands for manual operation and debugging.
package main // import "github.com/go-pixie/crate16/cmd/pixie-shell"

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/peterh/liner"

	"github.com/go-pixie/crate16/boot"
	"github.com/go-pixie/crate16/crate"
	"github.com/go-pixie/crate16/errs"
	"github.com/go-pixie/crate16/module"
	"github.com/go-pixie/crate16/param"
)

const clockMHz = 100 // filter clock rate assumed by par-write/par-read

func main() {
	log.SetPrefix("pixie-shell: ")
	log.SetFlags(0)
	if err := xmain(os.Args[1:]); err != nil {
		log.Printf("%+v (code=%d)", err, errs.CodeOf(err))
		os.Exit(int(errs.CodeOf(err)))
	}
}

func xmain(args []string) error {
	var (
		fset         = flag.NewFlagSet("pixie-shell", flag.ContinueOnError)
		firmwareSpec = fset.String("firmware", "", "path to the firmware spec file (required)")
	)
	if err := fset.Parse(args); err != nil {
		return fmt.Errorf("could not parse input arguments: %w", err)
	}
	if *firmwareSpec == "" {
		return fmt.Errorf("missing required -firmware flag")
	}

	c := crate.New()
	f, err := os.Open(*firmwareSpec)
	if err != nil {
		return fmt.Errorf("could not open firmware spec %q: %w", *firmwareSpec, err)
	}
	defer f.Close()
	if err := c.Firmware().ReadSpecFile(f); err != nil {
		return fmt.Errorf("could not read firmware spec %q: %w", *firmwareSpec, err)
	}

	return repl(c)
}

func repl(c *crate.Crate) error {
	line := liner.NewLiner()
	defer line.Close()
	line.SetCtrlCAborts(true)

	for {
		cmd, err := line.Prompt("pixie> ")
		if err == liner.ErrPromptAborted || err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("could not read command: %w", err)
		}
		cmd = strings.TrimSpace(cmd)
		if cmd == "" {
			continue
		}
		line.AppendHistory(cmd)

		if err := dispatch(c, strings.Fields(cmd)); err != nil {
			fmt.Fprintf(os.Stderr, "error: %+v\n", err)
		}
		if cmd == "quit" || cmd == "exit" {
			return nil
		}
	}
}

func dispatch(c *crate.Crate, fields []string) error {
	if len(fields) == 0 {
		return nil
	}
	switch fields[0] {
	case "quit", "exit":
		return nil
	case "boot":
		return cmdBoot(c, fields[1:])
	case "par-write":
		return cmdParWrite(c, fields[1:])
	case "par-read":
		return cmdParRead(c, fields[1:])
	case "export-config":
		return cmdExportConfig(c, fields[1:])
	case "import-config":
		return cmdImportConfig(c, fields[1:])
	case "list-mode":
		return cmdListmode(c, fields[1:])
	case "report":
		return c.Report(os.Stdout)
	default:
		return fmt.Errorf("unknown command %q", fields[0])
	}
}

// discoverBus is an external collaborator; see cmd/pixie-boot.
func discoverBus() ([]crate.Discovered, error) {
	return nil, fmt.Errorf("pixie-shell: no PCI/PXI bus driver linked into this build")
}

func cmdBoot(c *crate.Crate, args []string) error {
	if err := c.Initialize(discoverBus, -1); err != nil {
		return err
	}
	if err := c.SetFirmware(); err != nil {
		return err
	}
	if err := c.Boot(boot.PatternFull); err != nil {
		return err
	}
	return c.Probe()
}

// cmdParWrite handles "par-write <module> <channel> <name> <value>".
func cmdParWrite(c *crate.Crate, args []string) error {
	if len(args) != 4 {
		return fmt.Errorf("usage: par-write <module> <channel> <name> <value>")
	}
	m, ch, err := moduleChannel(c, args[0], args[1])
	if err != nil {
		return err
	}
	p, err := param.ParamByName(args[2])
	if err != nil {
		return err
	}
	val, err := strconv.ParseFloat(args[3], 64)
	if err != nil {
		return fmt.Errorf("invalid value %q: %w", args[3], err)
	}
	if err := m.Model().WriteParam(ch, p, clockMHz, val); err != nil {
		return err
	}
	return m.SyncVars()
}

// cmdParRead handles "par-read <module> <channel> <name>".
func cmdParRead(c *crate.Crate, args []string) error {
	if len(args) != 3 {
		return fmt.Errorf("usage: par-read <module> <channel> <name>")
	}
	m, ch, err := moduleChannel(c, args[0], args[1])
	if err != nil {
		return err
	}
	p, err := param.ParamByName(args[2])
	if err != nil {
		return err
	}
	val, err := m.Model().ReadParam(ch, p, clockMHz)
	if err != nil {
		return err
	}
	fmt.Fprintf(os.Stdout, "%s[module=%s,channel=%s] = %g\n", args[2], args[0], args[1], val)
	return nil
}

func cmdExportConfig(c *crate.Crate, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: export-config <path>")
	}
	return c.ExportConfig(args[0])
}

func cmdImportConfig(c *crate.Crate, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: import-config <path>")
	}
	return c.ImportConfig(args[0], nil)
}

// cmdListmode handles "list-mode <duration>", e.g. "list-mode 10s".
func cmdListmode(c *crate.Crate, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: list-mode <duration>")
	}
	dur, err := time.ParseDuration(args[0])
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", args[0], err)
	}

	outs := make([]io.Writer, len(c.Modules()))
	for i, m := range c.Modules() {
		path := fmt.Sprintf("module-%d.lmd", m.Number())
		out, err := os.Create(path)
		if err != nil {
			return fmt.Errorf("could not create output file %q: %w", path, err)
		}
		defer out.Close()
		outs[i] = out
	}

	ctx, cancel := context.WithTimeout(context.Background(), dur)
	defer cancel()
	return c.RunListmode(ctx, crate.RunConfig{
		RunType:      "list-mode",
		ReportEvery:  5 * time.Second,
		ReportWriter: os.Stdout,
		Outputs:      outs,
	})
}

func moduleChannel(c *crate.Crate, moduleArg, channelArg string) (*module.Module, int, error) {
	number, err := strconv.Atoi(moduleArg)
	if err != nil {
		return nil, 0, fmt.Errorf("invalid module number %q: %w", moduleArg, err)
	}
	ch, err := strconv.Atoi(channelArg)
	if err != nil {
		return nil, 0, fmt.Errorf("invalid channel number %q: %w", channelArg, err)
	}
	m, err := c.Module(number)
	if err != nil {
		return nil, 0, err
	}
	return m, ch, nil
}
