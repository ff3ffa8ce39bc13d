// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Command pixie-monitor is a standalone TDAQ process that taps a
// running pixie-listmode's mangos PUB throughput feed and republishes
// it as a TDAQ output, kept deliberately outside the crate package so
// the core SDK carries no network-exposed API of its own.
package main // import "github.com/go-pixie/crate16/cmd/pixie-monitor"

import (
	"context"
	"encoding/binary"
	"log"
	"os"

	"github.com/go-daq/tdaq"
	"github.com/go-daq/tdaq/flags"
	"go.nanomsg.org/mangos/v3"
	"go.nanomsg.org/mangos/v3/protocol/sub"
	_ "go.nanomsg.org/mangos/v3/transport/tcp"
)

func main() {
	cmd := flags.New()

	dev := &monitor{addr: cmd.Args[0]}

	srv := tdaq.New(cmd, os.Stdout)
	srv.CmdHandle("/config", dev.OnConfig)
	srv.CmdHandle("/init", dev.OnInit)
	srv.CmdHandle("/reset", dev.OnReset)
	srv.CmdHandle("/start", dev.OnStart)
	srv.CmdHandle("/stop", dev.OnStop)
	srv.CmdHandle("/quit", dev.OnQuit)

	srv.OutputHandle("/throughput", dev.throughput)
	srv.RunHandle(dev.run)

	if err := srv.Run(context.Background()); err != nil {
		log.Panicf("error: %+v", err)
	}
}

// monitor subscribes to a pixie-listmode Supervisor's mangos PUB
// socket and forwards decimated aggregate word counts downstream.
type monitor struct {
	addr string
	sock mangos.Socket
	out  chan uint64
}

func (dev *monitor) OnConfig(ctx tdaq.Context, resp *tdaq.Frame, req tdaq.Frame) error {
	ctx.Msg.Debugf("received /config command...")
	return nil
}

func (dev *monitor) OnInit(ctx tdaq.Context, resp *tdaq.Frame, req tdaq.Frame) error {
	ctx.Msg.Debugf("received /init command...")
	sock, err := sub.NewSocket()
	if err != nil {
		return err
	}
	if err := sock.SetOption(mangos.OptionSubscribe, []byte("")); err != nil {
		return err
	}
	if err := sock.Dial(dev.addr); err != nil {
		return err
	}
	dev.sock = sock
	dev.out = make(chan uint64, 64)
	return nil
}

func (dev *monitor) OnReset(ctx tdaq.Context, resp *tdaq.Frame, req tdaq.Frame) error {
	ctx.Msg.Debugf("received /reset command...")
	if dev.sock != nil {
		dev.sock.Close()
		dev.sock = nil
	}
	return nil
}

func (dev *monitor) OnStart(ctx tdaq.Context, resp *tdaq.Frame, req tdaq.Frame) error {
	ctx.Msg.Debugf("received /start command...")
	return nil
}

func (dev *monitor) OnStop(ctx tdaq.Context, resp *tdaq.Frame, req tdaq.Frame) error {
	ctx.Msg.Debugf("received /stop command...")
	return nil
}

func (dev *monitor) OnQuit(ctx tdaq.Context, resp *tdaq.Frame, req tdaq.Frame) error {
	ctx.Msg.Debugf("received /quit command...")
	if dev.sock != nil {
		dev.sock.Close()
	}
	return nil
}

func (dev *monitor) throughput(ctx tdaq.Context, dst *tdaq.Frame) error {
	select {
	case <-ctx.Ctx.Done():
		dst.Body = nil
		return nil
	case total := <-dev.out:
		buf := make([]byte, 8)
		binary.BigEndian.PutUint64(buf, total)
		dst.Body = buf
	}
	return nil
}

func (dev *monitor) run(ctx tdaq.Context) error {
	if dev.sock == nil {
		<-ctx.Ctx.Done()
		return nil
	}
	for {
		select {
		case <-ctx.Ctx.Done():
			return nil
		default:
		}
		msg, err := dev.sock.Recv()
		if err != nil {
			continue
		}
		if len(msg) != 8 {
			continue
		}
		total := binary.BigEndian.Uint64(msg)
		select {
		case dev.out <- total:
		default:
		}
	}
}
