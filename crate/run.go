// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package crate

import (
	"context"
	"io"
	"time"

	"github.com/go-pixie/crate16/errs"
	"github.com/go-pixie/crate16/ledger"
	"github.com/go-pixie/crate16/listmode"
)

// RunConfig configures a crate-wide list-mode run, generalized from a
// single module's run control to every module in the crate.
type RunConfig struct {
	RunType      string // recorded in the run ledger, if attached
	PollPeriod   time.Duration
	ReportEvery  time.Duration
	ReportWriter io.Writer
	PubAddr      string

	// Outputs supplies one output writer per module, indexed the same
	// way as Modules(); a nil entry skips that module.
	Outputs []io.Writer
}

// RunListmode drains every module's list-mode FIFO in parallel for the
// duration of ctx, via a listmode.Supervisor, and records the run in
// the attached ledger if one was configured with WithLedger. Any
// worker failure raises the best-effort run-mismatch alert -- the
// crate facade does not yet distinguish a fatal final-drain mismatch
// from a transient FIFO read failure, so both surface the same alert.
func (c *Crate) RunListmode(ctx context.Context, cfg RunConfig) error {
	const op = "crate.Crate.RunListmode"

	if len(cfg.Outputs) != len(c.modules) {
		return c.setErr(errs.New(errs.ModuleTotalInvalid, op,
			"%d output writers given, want one per module (%d)", len(cfg.Outputs), len(c.modules)))
	}

	var runID int64
	if c.ledger != nil {
		id, err := c.ledger.StartRun(ctx, c.crateID(), cfg.RunType)
		if err != nil {
			c.msg.Printf("could not start run record: %+v", err)
		} else {
			runID = id
		}
	}

	workers := make([]*listmode.Worker, 0, len(c.modules))
	for i, m := range c.modules {
		if cfg.Outputs[i] == nil {
			continue
		}
		workers = append(workers, &listmode.Worker{
			Module:      m,
			Out:         cfg.Outputs[i],
			PollPeriod:  cfg.PollPeriod,
			RunTaskable: true,
		})
	}

	sup := &listmode.Supervisor{
		Workers:      workers,
		ReportEvery:  cfg.ReportEvery,
		ReportWriter: cfg.ReportWriter,
		PubAddr:      cfg.PubAddr,
	}

	runErr := sup.Run(ctx)

	var total int64
	for _, w := range workers {
		total += w.Total()
	}

	status := "ok"
	if runErr != nil {
		status = "error"
	}
	if c.ledger != nil && runID != 0 {
		mods := make([]ledger.ModuleRecord, 0, len(workers))
		for _, w := range workers {
			fw := make(map[string]string, len(w.Module.BoundFirmware()))
			for dev, ver := range w.Module.BoundFirmware() {
				fw[string(dev)] = ver
			}
			mods = append(mods, ledger.ModuleRecord{
				Module:    w.Module.Number(),
				Firmware:  fw,
				WordCount: w.Total(),
			})
		}
		if err := c.ledger.EndRun(ctx, runID, total, status, mods); err != nil {
			c.msg.Printf("could not end run record: %+v", err)
		}
	}

	for _, m := range c.modules {
		_ = m.RunEnd()
	}

	if runErr != nil {
		for _, w := range workers {
			c.notifyRunMismatch(w.Module.Number(), runErr)
		}
		return c.setErr(errs.Wrap(errs.ModuleInvalidOperation, op, runErr))
	}
	return nil
}

// crateID names this crate for the run ledger; a single-crate SDK has
// no distinct crate identifier of its own, so every run is recorded
// under the fixed name "crate".
func (c *Crate) crateID() string {
	return "crate"
}
