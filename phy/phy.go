// Copyright 2024 The avrupdi Authors. All rights reserved.
// Use of this source code is governed by a GPL license that can be found in the LICENSE file.

// Package phy implements the half-duplex framed transport described in
// spec.md §4.1: send-then-read-back echo suppression, BREAK generation,
// guard-time bookkeeping and baud changes, layered on top of a
// serialport.Port.
package phy

import (
	"time"

	"github.com/avrupdi/updi/serialport"
)

// breakBaud is the safe baud rate used while driving BREAK, per spec.md
// §4.1 ("at a safe baud (≤ 2400)").
const breakBaud = 2400

// Transport is everything link needs from the physical layer. Phy is the
// only production implementation; tests may supply their own to isolate
// link-layer logic from framing concerns.
type Transport interface {
	Send(b []byte) error
	Recv(n int, timeout time.Duration) ([]byte, error)
	SendBreak() error
	SendDoubleBreakInit() error
	SetGuardTime(n int)
	SetBaud(baud int) error
}

// Phy drives a serialport.Port with UPDI's half-duplex framing rules.
// Echo suppression is implemented by reading back what was just written
// and discarding it, not by relying on hardware half-duplex support,
// matching the "portable, not hardware-dependent" design decision in
// spec.md §4.1.
type Phy struct {
	port      serialport.Port
	baud      int
	guardTime int

	// readSlack multiplies the nominal byte time to get the absolute
	// read timeout (spec.md §5: "byte_time × slack, default slack >= 10").
	readSlack int
}

// New wraps an already-open Port. baud must match the Port's current
// configuration.
func New(port serialport.Port, baud int) *Phy {
	return &Phy{port: port, baud: baud, readSlack: 10}
}

// byteTime returns the nominal wire time of one 8E2 frame (12 bit times:
// start, 8 data, parity, 2 stop) at the configured baud.
func (p *Phy) byteTime() time.Duration {
	return time.Duration(float64(time.Second) * 12 / float64(p.baud))
}

func (p *Phy) timeout() time.Duration {
	d := p.byteTime() * time.Duration(p.readSlack)
	if d < time.Millisecond {
		d = time.Millisecond
	}
	return d
}

// Send transmits b, then reads back len(b) bytes and verifies they match
// the echo the single-wire line reflects back to the sender. Any
// mismatch is a PHY error; callers above may attempt a BREAK resync.
func (p *Phy) Send(b []byte) error {
	if len(b) == 0 {
		return nil
	}
	if _, err := p.port.Write(b); err != nil {
		return err
	}

	echo := make([]byte, len(b))
	if err := p.port.ReadExact(echo, p.timeout()); err != nil {
		return ErrTimeout
	}
	for i := range b {
		if b[i] != echo[i] {
			return &EchoMismatchError{Offset: i, Sent: b[i], Echoed: echo[i]}
		}
	}
	return nil
}

// Recv reads exactly n bytes (sent by the target after the echo phase of
// whatever instruction solicited them), or fails with ErrTimeout.
func (p *Phy) Recv(n int, timeout time.Duration) ([]byte, error) {
	if n == 0 {
		return nil, nil
	}
	buf := make([]byte, n)
	if timeout == 0 {
		timeout = p.timeout()
	}
	if err := p.port.ReadExact(buf, timeout); err != nil {
		return nil, ErrTimeout
	}
	return buf, nil
}

// SendBreak drives the line low for at least one UPDI frame time at
// breakBaud, then restores idle and the previously configured baud.
func (p *Phy) SendBreak() error {
	if err := p.port.SetBaud(breakBaud); err != nil {
		return err
	}

	frameTime := time.Duration(float64(time.Second) * 11 / float64(breakBaud))
	if err := p.port.SendBreak(frameTime * 2); err != nil {
		return err
	}

	return p.port.SetBaud(p.baud)
}

// SendDoubleBreakInit sends the documented UPDI wake pattern: two BREAKs
// separated by a guard interval, forcing the target UPDI peripheral into
// a known state regardless of what it was doing before.
func (p *Phy) SendDoubleBreakInit() error {
	if err := p.SendBreak(); err != nil {
		return err
	}
	time.Sleep(p.byteTime() * time.Duration(max(p.guardTime, 1)))
	if err := p.SendBreak(); err != nil {
		return err
	}
	return nil
}

// SetGuardTime records the inter-byte gap (in guard-time cycles) that
// higher layers have programmed into the device's CTRLB register via
// STCS. Phy uses it only to pace SendDoubleBreakInit's inter-break gap;
// the value on the device is the one link.Link.SetGuardTime writes to
// CTRLB, and neither layer re-sends it on its own after a BREAK.
func (p *Phy) SetGuardTime(n int) {
	p.guardTime = n
}

// SetBaud reconfigures both the underlying port and Phy's own notion of
// the current baud (used to size read timeouts and BREAK framing).
func (p *Phy) SetBaud(baud int) error {
	if err := p.port.SetBaud(baud); err != nil {
		return err
	}
	p.baud = baud
	return nil
}
