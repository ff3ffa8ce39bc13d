// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package listmode implements the per-module list-mode FIFO poll
// workers: one worker per participating module, supervised by an
// errgroup.Group with cooperative stop flags instead of forced
// cancellation, and throughput reporting via pmon with an optional
// mangos PUB tap for an external monitor process.
package listmode // import "github.com/go-pixie/crate16/listmode"

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"sync/atomic"
	"time"

	"github.com/sbinet/pmon"
	"go.nanomsg.org/mangos/v3"
	"go.nanomsg.org/mangos/v3/protocol/pub"
	_ "go.nanomsg.org/mangos/v3/transport/tcp"
	"golang.org/x/sync/errgroup"
	"golang.org/x/xerrors"

	"github.com/go-pixie/crate16/errs"
	"github.com/go-pixie/crate16/internal/crc16"
	"github.com/go-pixie/crate16/module"
)

// RunStats is the subset of run statistics the final drain checks for
// fatal mismatches.
type RunStats struct {
	HWOverflows int
	Overflows   int
	FIFOIn      int
	FIFOOut     int
}

// Worker drains one module's list-mode FIFO into an output writer at a
// bounded poll period.
type Worker struct {
	Module      *module.Module
	Out         io.Writer
	PollPeriod  time.Duration // default 500µs
	RunTaskable bool          // issues start_listmode(new-run) when true
	Stats       func() RunStats

	total int64 // atomic word count, read by Total concurrently with Run
	stop  int32 // atomic cooperative-stop flag

	// wireCRC runs a CRC-16 over every drained block for a wire
	// integrity diagnostic; it never touches the list-mode file's
	// bytes, which stay the raw unframed word stream.
	wireCRC crc16.Hash16
}

// Total returns the cumulative word count drained so far.
func (w *Worker) Total() int64 { return atomic.LoadInt64(&w.total) }

// WireCRC returns the running CRC-16 over every word block drained so
// far, for diagnosing FIFO wire corruption independent of the output
// file's contents.
func (w *Worker) WireCRC() uint16 {
	if w.wireCRC == nil {
		return 0
	}
	return w.wireCRC.Sum16()
}

// Stop requests the worker terminate at its next poll iteration. It
// never forces termination: a worker blocked in a hardware I/O call
// runs to completion first.
func (w *Worker) Stop() { atomic.StoreInt32(&w.stop, 1) }

func (w *Worker) stopped() bool { return atomic.LoadInt32(&w.stop) != 0 }

// Run drives the worker's poll loop until ctx's deadline elapses or
// Stop is called, then performs the final drain.
func (w *Worker) Run(ctx context.Context) error {
	const op = "listmode.Worker.Run"

	if w.PollPeriod <= 0 {
		w.PollPeriod = 500 * time.Microsecond
	}

	if w.RunTaskable {
		// StartListmode blocks until the DSP reports run-active (or a
		// bounded timeout elapses) before returning, so the poll loop
		// below never races a FIFO that has not started filling yet.
		if err := w.Module.StartListmode(module.NewRun); err != nil {
			return errs.Wrap(errs.ModuleInvalidOperation, op, err)
		}
	}

	buf := make([]uint32, 4096)
	for {
		select {
		case <-ctx.Done():
			return w.drain(buf)
		default:
		}
		if w.stopped() {
			return w.drain(buf)
		}

		n, err := w.Module.ReadListMode(buf)
		if err != nil {
			return errs.Wrap(errs.DeviceFIFOFailure, op, err)
		}
		if n == 0 {
			time.Sleep(w.PollPeriod)
			continue
		}
		if err := w.write(buf[:n]); err != nil {
			return errs.Wrap(errs.FileWriteFailure, op, err)
		}
	}
}

func (w *Worker) write(words []uint32) error {
	buf := make([]byte, 4*len(words))
	for i, v := range words {
		binary.LittleEndian.PutUint32(buf[4*i:], v)
	}
	if _, err := w.Out.Write(buf); err != nil {
		return xerrors.Errorf("listmode: could not write %d words: %w", len(words), err)
	}
	if w.wireCRC == nil {
		w.wireCRC = crc16.New(nil)
	}
	w.wireCRC.Write(buf)
	atomic.AddInt64(&w.total, int64(len(words)))
	return nil
}

// drain performs the final residual read and verifies the run
// statistics: no hardware or host overflows, and FIFO in/out word
// totals equal. A mismatch is a fatal module_invalid_operation.
func (w *Worker) drain(buf []uint32) error {
	const op = "listmode.Worker.drain"

	for {
		n, err := w.Module.ReadListMode(buf)
		if err != nil {
			return errs.Wrap(errs.DeviceFIFOFailure, op, err)
		}
		if n == 0 {
			break
		}
		if err := w.write(buf[:n]); err != nil {
			return errs.Wrap(errs.FileWriteFailure, op, err)
		}
	}

	if w.Stats == nil {
		return nil
	}
	st := w.Stats()
	if st.HWOverflows != 0 || st.Overflows != 0 || st.FIFOIn != st.FIFOOut {
		return errs.New(errs.ModuleInvalidOperation, op,
			"final drain mismatch: hw_overflows=%d overflows=%d fifo.in=%d fifo.out=%d",
			st.HWOverflows, st.Overflows, st.FIFOIn, st.FIFOOut)
	}
	return nil
}

// Supervisor runs a set of Workers in parallel, reporting aggregate
// throughput periodically and collecting the first worker error.
type Supervisor struct {
	Workers      []*Worker
	ReportEvery  time.Duration // default 5s
	ReportWriter io.Writer     // optional; receives human-readable throughput lines

	// PubAddr, when non-empty, publishes a decimated aggregate word
	// counter on a mangos PUB socket for a separate monitor process to
	// tap (see cmd/pixie-monitor).
	PubAddr string

	// PmonLog, when non-nil, receives this process's own resource
	// usage samples via pmon.Monitor.
	PmonLog io.Writer

	lastTotals []int64 // per-worker totals at the previous report
	lastReport time.Time
}

// Run launches every worker under an errgroup.Group and blocks until
// ctx is done or a worker fails; it re-throws the first non-success
// error after every worker has joined, preserving the others' results
// via their own terminal state.
func (s *Supervisor) Run(ctx context.Context) error {
	grp, gctx := errgroup.WithContext(ctx)

	for _, w := range s.Workers {
		w := w
		grp.Go(func() error { return w.Run(gctx) })
	}

	if s.ReportEvery <= 0 {
		s.ReportEvery = 5 * time.Second
	}

	var sock mangos.Socket
	if s.PubAddr != "" {
		if sk, err := newPubSocket(s.PubAddr); err == nil {
			sock = sk
			defer sock.Close()
		}
	}

	if s.PmonLog != nil {
		if mon, err := pmon.Monitor(os.Getpid()); err == nil {
			mon.W = s.PmonLog
			mon.Freq = s.ReportEvery
			go mon.Run()
			defer mon.Kill()
		}
	}

	s.lastTotals = make([]int64, len(s.Workers))
	s.lastReport = time.Now()

	grp.Go(func() error {
		tick := time.NewTicker(s.ReportEvery)
		defer tick.Stop()
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-tick.C:
				s.report(sock)
			}
		}
	})

	return grp.Wait()
}

func (s *Supervisor) report(sock mangos.Socket) {
	now := time.Now()
	elapsed := now.Sub(s.lastReport).Seconds()
	if elapsed <= 0 {
		elapsed = s.ReportEvery.Seconds()
	}

	var total, delta int64
	for i, w := range s.Workers {
		n := w.Total()
		total += n
		delta += n - s.lastTotals[i]
		if s.ReportWriter != nil {
			rate := float64(4*(n-s.lastTotals[i])) / elapsed
			fmt.Fprintf(s.ReportWriter, "worker[%d]: %d bytes (%.1f kB/s)\n", i, 4*n, rate/1e3)
		}
		s.lastTotals[i] = n
	}
	s.lastReport = now
	if s.ReportWriter != nil {
		fmt.Fprintf(s.ReportWriter, "aggregate: %d bytes (%.1f kB/s)\n", 4*total, float64(4*delta)/elapsed/1e3)
	}
	if sock != nil {
		var buf [8]byte
		binary.BigEndian.PutUint64(buf[:], uint64(total))
		sock.Send(buf[:])
	}
}

// newPubSocket opens a mangos PUB socket listening at addr.
func newPubSocket(addr string) (mangos.Socket, error) {
	sock, err := pub.NewSocket()
	if err != nil {
		return nil, err
	}
	if err := sock.Listen(addr); err != nil {
		sock.Close()
		return nil, err
	}
	return sock, nil
}
