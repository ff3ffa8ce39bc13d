// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package boot implements the per-image FPGA/DSP boot state machine:
// idle, prepare, streaming, verify, done. Com-FPGA, System-FPGA and
// DSP code all share one Controller parameterised by a (data, ctrl,
// status) register triple and the pre-load/post-verify mask/value
// pairs, sharing one bounded-poll shape across distinct hardware
// stages.
package boot // import "github.com/go-pixie/crate16/boot"

import (
	"time"

	"github.com/go-pixie/crate16/bus"
	"github.com/go-pixie/crate16/errs"
)

// Stage is a Controller's current position in the boot state machine.
type Stage int

const (
	Idle Stage = iota
	Prepare
	Streaming
	Verify
	Done
	Failed
)

func (s Stage) String() string {
	switch s {
	case Idle:
		return "idle"
	case Prepare:
		return "prepare"
	case Streaming:
		return "streaming"
	case Verify:
		return "verify"
	case Done:
		return "done"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// MaskValue is a (mask, expected-value) pair checked against a status
// register: (status & Mask) == Value.
type MaskValue struct {
	Mask  uint32
	Value uint32
}

// Config parameterises one Controller instance: the control-register
// triple and the pre-load/post-verify patterns for one image kind.
type Config struct {
	Data   bus.Reg32 // image data-port register
	Ctrl   bus.Reg32 // control register
	Status bus.Reg32 // status register

	PreLoad    MaskValue // written to Ctrl at prepare; readiness check
	PostVerify MaskValue // polled on Status during verify

	Retries     int           // bounded streaming retry count
	VerifyEvery time.Duration // poll interval during verify
	VerifyFor   time.Duration // wall-clock verify budget
}

// Controller drives one image's boot sequence through
// idle→prepare→streaming→verify→done.
type Controller struct {
	cfg   Config
	stage Stage
}

// New creates a Controller in the idle stage.
func New(cfg Config) *Controller {
	if cfg.Retries <= 0 {
		cfg.Retries = 3
	}
	if cfg.VerifyEvery <= 0 {
		cfg.VerifyEvery = 10 * time.Millisecond
	}
	if cfg.VerifyFor <= 0 {
		cfg.VerifyFor = 2 * time.Second
	}
	return &Controller{cfg: cfg, stage: Idle}
}

// Stage returns the controller's current stage.
func (c *Controller) Stage() Stage { return c.stage }

// Boot drives image through prepare, streaming and verify, in order.
// Any failure transitions to Failed and returns an
// errs.DeviceBootFailure-coded error; the module remains offline. On
// success the controller ends in Done.
func (c *Controller) Boot(image []uint32) error {
	const op = "boot.Controller.Boot"

	if err := c.prepare(); err != nil {
		c.stage = Failed
		return errs.Wrap(errs.DeviceBootFailure, op, err)
	}

	var err error
	for attempt := 0; attempt <= c.cfg.Retries; attempt++ {
		if err = c.stream(image); err == nil {
			break
		}
	}
	if err != nil {
		c.stage = Failed
		return errs.Wrapf(errs.DeviceBootFailure, op, err, "streaming failed after %d retries", c.cfg.Retries)
	}

	if err := c.verify(); err != nil {
		c.stage = Failed
		return errs.Wrap(errs.DeviceBootFailure, op, err)
	}

	c.stage = Done
	return nil
}

// prepare writes the pre-load pattern to the control register and
// checks the status bit reflects readiness.
func (c *Controller) prepare() error {
	c.stage = Prepare
	c.cfg.Ctrl.W(c.cfg.PreLoad.Value)

	status := c.cfg.Status.R()
	if status&c.cfg.PreLoad.Mask != c.cfg.PreLoad.Value&c.cfg.PreLoad.Mask {
		return errs.New(errs.DeviceBootFailure, "boot.Controller.prepare",
			"status 0x%x not ready (mask=0x%x, want=0x%x)", status, c.cfg.PreLoad.Mask, c.cfg.PreLoad.Value)
	}
	return nil
}

// stream block-writes image to the data port, word-aligned. A single
// failed word write aborts this attempt (the bus's sticky error
// short-circuits the remaining writes); Boot retries the whole
// attempt up to cfg.Retries times.
func (c *Controller) stream(image []uint32) error {
	c.stage = Streaming
	for _, w := range image {
		c.cfg.Data.W(w)
	}
	if err := c.cfg.Data.Err(); err != nil {
		return err
	}
	return nil
}

// verify polls the status register against the post-verify mask/value
// within the wall-clock budget.
func (c *Controller) verify() error {
	c.stage = Verify
	deadline := time.Now().Add(c.cfg.VerifyFor)
	for {
		status := c.cfg.Status.R()
		if status&c.cfg.PostVerify.Mask == c.cfg.PostVerify.Value&c.cfg.PostVerify.Mask {
			return nil
		}
		if time.Now().After(deadline) {
			return errs.New(errs.DeviceBootFailure, "boot.Controller.verify",
				"timed out after %v waiting for status 0x%x&0x%x", c.cfg.VerifyFor, c.cfg.PostVerify.Value, c.cfg.PostVerify.Mask)
		}
		time.Sleep(c.cfg.VerifyEvery)
	}
}

// Pattern is the module-level boot byte-bitmask: 0x7F requests a full
// boot, 0x70 a fast/partial boot that skips the Com-FPGA and
// System-FPGA passes.
type Pattern byte

const (
	PatternFull    Pattern = 0x7F
	PatternPartial Pattern = 0x70
)

// SkipFPGAs reports whether p requests skipping the Com-FPGA and
// System-FPGA boot passes.
func (p Pattern) SkipFPGAs() bool { return p == PatternPartial }

// Sequence names the fixed image load order: ComFPGA, SPFPGA, DSP
// code, DSP variables, DSP parameters, then the final DAC set /
// offset-cache initialisation.
type Sequence int

const (
	SeqComFPGA Sequence = iota
	SeqSPFPGA
	SeqDSPCode
	SeqDSPVars
	SeqDSPParams
	SeqFinalize
	numSequenceSteps
)

// Steps returns the ordered boot steps for pattern, omitting the FPGA
// passes when pattern requests a fast/partial boot. Pattern 0 carries
// no boot bits at all and is a no-op: it returns no steps, so Boot
// loads nothing and the module stays offline.
func (p Pattern) Steps() []Sequence {
	if p == 0 {
		return nil
	}
	all := []Sequence{SeqComFPGA, SeqSPFPGA, SeqDSPCode, SeqDSPVars, SeqDSPParams, SeqFinalize}
	if !p.SkipFPGAs() {
		return all
	}
	return all[2:]
}
