// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package module

import (
	"gonum.org/v1/gonum/stat"

	"github.com/go-pixie/crate16/errs"
)

// dspADCTraceAddr and dspBaselineAddr are the fixed DSP data-memory
// addresses the control tasks land their results at, per the module's
// firmware memory map.
const (
	dspADCTraceAddr  = 0x6000
	dspBaselineAddr  = 0x6800
	dspHistogramAddr = 0x7000
)

// controlTask is the DSP task code written to the module control
// register to trigger an acquisition.
type controlTask uint32

const (
	taskGetTraces     controlTask = 2
	taskAcquireBL     controlTask = 3
	taskAdjustOffsets controlTask = 4
)

// wordAddr converts a DSP word address to the byte offset bus.BlockRead
// and bus.BlockWrite expect.
func wordAddr(word int) int64 { return int64(word) * 4 }

// runControlTask writes task to the control register under the same
// bus-guard pattern every other bus access uses, and returns once the
// write is done; it does not wait for the module to report the task
// complete.
func (m *Module) runControlTask(task controlTask) error {
	const op = "module.Module.runControlTask"
	if m.err != nil {
		return m.err
	}

	release := m.bus.Guard()
	defer release()

	m.bus.WriteWord(0x10, uint32(task))
	if err := m.bus.Err(); err != nil {
		return m.setErr(errs.Wrap(errs.DeviceHWFailure, op, err))
	}
	return nil
}

// GetTraces captures up to MaxADCTraceLength raw ADC samples for every
// channel via a control task.
func (m *Module) GetTraces(out [][]uint32) error {
	const op = "module.Module.GetTraces"
	if err := m.runControlTask(taskGetTraces); err != nil {
		return err
	}
	for ch := range out {
		n := len(out[ch])
		if n > MaxADCTraceLength {
			n = MaxADCTraceLength
		}
		if err := m.bus.BlockRead(wordAddr(dspADCTraceAddr+ch*MaxADCTraceLength), out[ch][:n]); err != nil {
			return m.setErr(errs.Wrap(errs.DeviceDMAFailure, op, err))
		}
	}
	return nil
}

// ReadADC captures up to MaxADCTraceLength samples for a single
// channel into buffer. resume, when true, skips re-triggering the
// control task and only re-reads the DSP memory -- used to pull a
// trace already captured by a prior GetTraces/ReadADC call.
func (m *Module) ReadADC(channel int, buffer []uint32, resume bool) (int, error) {
	const op = "module.Module.ReadADC"
	if !resume {
		if err := m.runControlTask(taskGetTraces); err != nil {
			return 0, err
		}
	}
	n := len(buffer)
	if n > MaxADCTraceLength {
		n = MaxADCTraceLength
	}
	if err := m.bus.BlockRead(wordAddr(dspADCTraceAddr+channel*MaxADCTraceLength), buffer[:n]); err != nil {
		return 0, m.setErr(errs.Wrap(errs.DeviceDMAFailure, op, err))
	}
	return n, nil
}

// Baseline is one timestamped baseline sample.
type Baseline struct {
	Timestamp uint64
	Value     uint32
}

// AcquireBaselines triggers the baseline-capture control task.
func (m *Module) AcquireBaselines() error {
	return m.runControlTask(taskAcquireBL)
}

// BLGet reads up to MaxNumBaselines samples for each requested channel
// into out. Channel 0's timestamps are canonical for every channel in
// the module; when computeStats is true, the mean and standard
// deviation across the samples are returned.
func (m *Module) BLGet(channels []int, out [][]Baseline, computeStats bool) (mean, stddev []float64, err error) {
	const op = "module.Module.BLGet"

	if len(channels) != len(out) {
		return nil, nil, errs.New(errs.SystemInvalidArgument, op, "channels/out length mismatch: %d != %d", len(channels), len(out))
	}

	var canonicalTS []uint64
	for i, ch := range channels {
		n := len(out[i])
		if n > MaxNumBaselines {
			n = MaxNumBaselines
		}
		words := make([]uint32, n*3) // [ts_hi, ts_lo, value] per sample
		if rerr := m.bus.BlockRead(wordAddr(dspBaselineAddr+ch*MaxNumBaselines*3), words); rerr != nil {
			return nil, nil, m.setErr(errs.Wrap(errs.DeviceDMAFailure, op, rerr))
		}
		for s := 0; s < n; s++ {
			ts := uint64(words[s*3])<<32 | uint64(words[s*3+1])
			out[i][s] = Baseline{Timestamp: ts, Value: words[s*3+2]}
		}
		if ch == 0 {
			canonicalTS = make([]uint64, n)
			for s := 0; s < n; s++ {
				canonicalTS[s] = out[i][s].Timestamp
			}
		}
	}
	for i, ch := range channels {
		if ch == 0 {
			continue
		}
		for s := range out[i] {
			if s < len(canonicalTS) {
				out[i][s].Timestamp = canonicalTS[s]
			}
		}
	}

	if !computeStats {
		return nil, nil, nil
	}
	mean = make([]float64, len(out))
	stddev = make([]float64, len(out))
	for i := range out {
		vals := make([]float64, len(out[i]))
		for s, bl := range out[i] {
			vals[s] = float64(bl.Value)
		}
		mean[i], stddev[i] = stat.MeanStdDev(vals, nil)
	}
	return mean, stddev, nil
}

// ReadHistogram copies up to MaxHistogramLength histogram words for
// channel from DSP memory into out.
func (m *Module) ReadHistogram(channel int, out []uint32) error {
	const op = "module.Module.ReadHistogram"
	n := len(out)
	if n > MaxHistogramLength {
		n = MaxHistogramLength
	}
	if err := m.bus.BlockRead(wordAddr(dspHistogramAddr+channel*MaxHistogramLength), out[:n]); err != nil {
		return m.setErr(errs.Wrap(errs.DeviceDMAFailure, op, err))
	}
	m.histogram[channel] = append([]uint32(nil), out[:n]...)
	return nil
}
