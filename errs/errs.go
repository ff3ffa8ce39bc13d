// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package errs holds the stable error taxonomy shared by every layer
// of the crate SDK. Internally, code uses the typed *errs.Error value
// below to carry a code and context string; the crate facade
// translates it at the external boundary to the signed integer codes
// documented here. Errors never cross that boundary as anything else.
package errs // import "github.com/go-pixie/crate16/errs"

import (
	"errors"
	"fmt"
)

// Code is a stable, documented error code.
type Code int

const (
	// Crate errors (100-102).
	CrateAlreadyOpen Code = 100
	CrateNotReady    Code = 101
	CrateInvalidParam Code = 102

	// Module errors (200-219).
	ModuleNumberInvalid    Code = 200
	ModuleTotalInvalid     Code = 201
	ModuleAlreadyOpen      Code = 202
	ModuleCloseFailure     Code = 203
	ModuleOffline          Code = 204
	ModuleInfoFailure      Code = 205
	ModuleInvalidOperation Code = 206
	ModuleInvalidFirmware  Code = 207
	ModuleInitializeFailure Code = 208
	ModuleInvalidParam     Code = 209
	ModuleInvalidVar       Code = 210
	ModuleParamDisabled    Code = 211
	ModuleParamReadonly    Code = 212
	ModuleParamWriteonly   Code = 213
	ModuleTaskTimeout      Code = 214
	ModuleInvalidSlot      Code = 215
	ModuleNotFound         Code = 216
	ModuleTestInvalid      Code = 217

	// Channel errors (300-306).
	ChannelNumberInvalid Code = 300
	ChannelInvalidParam  Code = 301
	ChannelInvalidValue  Code = 302

	// Device errors (500-511).
	DeviceHWFailure   Code = 500
	DeviceDMAFailure  Code = 501
	DeviceDMABusy     Code = 502
	DeviceFIFOFailure Code = 503
	DeviceBootFailure Code = 504
	DeviceEEPROMFailure Code = 505

	// Config errors (600-602).
	ConfigInvalidParam Code = 600
	ConfigNotFound     Code = 601
	ConfigParseFailure Code = 602

	// File errors (700-704).
	FileNotFound   Code = 700
	FileReadFailure Code = 701
	FileWriteFailure Code = 702
	FileInvalidFormat Code = 703
	FileTruncated     Code = 704

	// System errors (800-807), including buffer-pool errors.
	BufferPoolNotEmpty Code = 800
	BufferPoolEmpty    Code = 801
	BufferPoolBusy     Code = 802
	BufferPoolNotEnough Code = 803
	QueueEmpty          Code = 804
	SystemOutOfMemory    Code = 805
	SystemInvalidArgument Code = 806
	SystemTimeout         Code = 807

	// Catch-all (900-990).
	InvalidValue    Code = 900
	InternalFailure Code = 990
)

// Error is the typed error value carried internally across the SDK.
// Op names the failing operation; Err, when set, is the wrapped cause.
type Error struct {
	Code Code
	Op   string
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	switch {
	case e.Err != nil && e.Msg != "":
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Msg, e.Err)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	default:
		return fmt.Sprintf("%s: %s", e.Op, e.Msg)
	}
}

func (e *Error) Unwrap() error { return e.Err }

// New creates an *Error with a formatted message and no wrapped cause.
func New(code Code, op, format string, args ...interface{}) *Error {
	return &Error{Code: code, Op: op, Msg: fmt.Sprintf(format, args...)}
}

// Wrap creates an *Error that wraps err.
func Wrap(code Code, op string, err error) *Error {
	return &Error{Code: code, Op: op, Err: err}
}

// Wrapf creates an *Error that wraps err with additional context.
func Wrapf(code Code, op string, err error, format string, args ...interface{}) *Error {
	return &Error{Code: code, Op: op, Err: err, Msg: fmt.Sprintf(format, args...)}
}

// CodeOf extracts the Code from err, or InternalFailure if err does
// not carry one.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return InternalFailure
}

// ExitCode returns the process exit code for err: 0 on success,
// -code otherwise.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	return -int(CodeOf(err))
}
