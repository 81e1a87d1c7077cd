// Copyright 2024 The avrupdi Authors. All rights reserved.
// Use of this source code is governed by a GPL license that can be found in the LICENSE file.

// Package serialport defines the serial transport contract consumed by
// the phy package, plus a real termios-backed implementation of it.
//
// This is the external collaborator named in spec.md §6: port open/close
// and raw byte I/O, with a controllable line break. The protocol stack
// never talks to a kernel tty directly; it only ever sees the Port
// interface below.
package serialport

import (
	"errors"
	"time"
)

// Parity selects the parity scheme applied to the wire. UPDI always runs
// even parity, but the interface is not hardcoded to that so a future
// transport (USB-CDC bridge, test fake) is not forced into the same shape.
type Parity int

const (
	ParityNone Parity = iota
	ParityEven
	ParityOdd
)

// Config describes how a Port should be opened. UPDI requires 8 data
// bits, even parity, two stop bits (spec.md §4.1).
type Config struct {
	Baud     int
	DataBits int
	Parity   Parity
	StopBits int
}

// DefaultConfig returns the UPDI-mandated line configuration at the given
// baud rate.
func DefaultConfig(baud int) Config {
	return Config{Baud: baud, DataBits: 8, Parity: ParityEven, StopBits: 2}
}

// ErrClosed is returned by any operation performed on a closed Port.
var ErrClosed = errors.New("serialport: port closed")

// Port is the external serial transport contract. Implementations must be
// safe to use from a single goroutine at a time; the protocol layers
// above never call into a Port concurrently.
type Port interface {
	// SetBaud reconfigures the line speed without closing the port.
	SetBaud(baud int) error

	// SendBreak drives the line low for at least duration, then restores
	// idle level and the previously configured baud.
	SendBreak(duration time.Duration) error

	// Write transmits b and returns once the bytes have been handed to
	// the driver (not necessarily once they are off the wire).
	Write(b []byte) (int, error)

	// ReadExact blocks until exactly len(b) bytes have been read into b,
	// or timeout elapses, or the port is closed.
	ReadExact(b []byte, timeout time.Duration) error

	// Close releases the underlying descriptor. Subsequent operations
	// return ErrClosed.
	Close() error
}

// Open opens the named port (e.g. "/dev/ttyUSB0", "COM3") with cfg.
// The concrete implementation is platform-specific; see tty_linux.go.
func Open(name string, cfg Config) (Port, error) {
	return openTTY(name, cfg)
}
