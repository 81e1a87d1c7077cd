// Copyright 2024 The avrupdi Authors. All rights reserved.
// Use of this source code is governed by a GPL license that can be found in the LICENSE file.

package link

import (
	"encoding/binary"
	"fmt"

	"github.com/avrupdi/updi/phy"
)

// AddressingMode selects the data width LD/ST use when accessing memory
// through the pointer register. CTRLB.UPDI controls this on the device
// side. spec.md §3's LinkState carries this field, but every block
// operation APP issues in this implementation is byte-granularity (flash
// pages, fuses and raw memory are all []byte), so Link never has a reason
// to switch away from AddressingByte; the mode is tracked for fidelity to
// the data model, not driven by any caller.
type AddressingMode int

const (
	AddressingByte AddressingMode = iota
	AddressingWord
)

// State is the mutable link-layer state spec.md §3 describes: the
// current addressing mode and whether Initialize has completed.
type State struct {
	AddressingMode AddressingMode
	Initialized    bool
}

// Link encodes the UPDI opcode set on top of a phy.Transport and tracks
// the addressing-mode/initialized state in spec.md §3's LinkState.
type Link struct {
	t     phy.Transport
	state State
}

// New wraps t. The returned Link starts uninitialized; callers normally
// reach it via app.App.Initialize, which drives the double-BREAK wake
// sequence before anything else is attempted.
func New(t phy.Transport) *Link {
	return &Link{t: t}
}

// State returns a copy of the link's current addressing/init state.
func (l *Link) State() State { return l.state }

// MarkInitialized records that the double-BREAK wake sequence and SIB
// read have completed. Called by app.App.Initialize.
func (l *Link) MarkInitialized() { l.state.Initialized = true }

// SendBreak and SendDoubleBreakInit pass through to the underlying
// phy.Transport. App never talks to phy directly, matching the
// "PHY inside LINK inside APP inside NVM" composition in spec.md §9.
func (l *Link) SendBreak() error           { return l.t.SendBreak() }
func (l *Link) SendDoubleBreakInit() error { return l.t.SendDoubleBreakInit() }

func (l *Link) frame(opcode byte, rest ...byte) []byte {
	b := make([]byte, 0, 2+len(rest))
	b = append(b, syncByte, opcode)
	b = append(b, rest...)
	return b
}

// Stcs writes value to control/status register reg.
func (l *Link) Stcs(reg Register, value byte) error {
	opcode := opSTCS | byte(reg)&0x0F
	return l.t.Send(l.frame(opcode, value))
}

// Ldcs reads one byte from control/status register reg.
func (l *Link) Ldcs(reg Register) (byte, error) {
	opcode := opLDCS | byte(reg)&0x0F
	if err := l.t.Send(l.frame(opcode)); err != nil {
		return 0, err
	}
	b, err := l.t.Recv(1, 0)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

// SetGuardTime programs CTRLB's guard-time field. Must be re-issued
// after any BREAK, per spec.md §5 ("Guard time ... is session state and
// must be re-asserted after any BREAK").
func (l *Link) SetGuardTime(cycles int) error {
	l.t.SetGuardTime(cycles)
	return l.Stcs(CtrlB, byte(cycles)&guardTimeMask)
}

func addrSizeFor(addr uint32) byte {
	if addr > 0xFFFF {
		return addrSize3
	}
	return addrSize2
}

func addrBytesFor(addr uint32) []byte {
	if addr > 0xFFFF {
		b := make([]byte, 3)
		b[0] = byte(addr)
		b[1] = byte(addr >> 8)
		b[2] = byte(addr >> 16)
		return b
	}
	b := make([]byte, 2)
	binary.LittleEndian.PutUint16(b, uint16(addr))
	return b
}

// Lds reads dataSize (1 or 2) bytes from direct data-space address addr.
// Addresses above 0xFFFF are encoded with a 3-byte (24-bit) address
// field, per spec.md §4.3.
func (l *Link) Lds(addr uint32, dataSize int) ([]byte, error) {
	ds := dataSize1
	if dataSize == 2 {
		ds = dataSize2
	}
	opcode := opLDS | addrSizeFor(addr) | ds
	if err := l.t.Send(l.frame(opcode, addrBytesFor(addr)...)); err != nil {
		return nil, err
	}
	return l.t.Recv(dataSize, 0)
}

// Sts writes data (1 or 2 bytes) to direct data-space address addr, via
// the two-phase address-then-data handshake: the target ACKs the
// address phase, then ACKs each data byte.
func (l *Link) Sts(addr uint32, data []byte) error {
	if len(data) != 1 && len(data) != 2 {
		return fmt.Errorf("link: sts data must be 1 or 2 bytes, got %d", len(data))
	}
	ds := dataSize1
	if len(data) == 2 {
		ds = dataSize2
	}
	opcode := opSTS | addrSizeFor(addr) | ds

	if err := l.t.Send(l.frame(opcode, addrBytesFor(addr)...)); err != nil {
		return err
	}
	if err := l.expectAck(); err != nil {
		return err
	}

	if err := l.t.Send(data); err != nil {
		return err
	}
	return l.expectAck()
}

// StPtr sets the pointer register to addr without touching memory
// (ptrModeSet — "ptr = value, no access").
func (l *Link) StPtr(addr uint32) error {
	opcode := opST | ptrModeSet | dataSize2
	b := make([]byte, 2)
	binary.LittleEndian.PutUint16(b, uint16(addr))
	if err := l.t.Send(l.frame(opcode, b...)); err != nil {
		return err
	}
	return l.expectAck()
}

// repeatFrame emits the REPEAT prefix for n total executions of the
// single instruction that must immediately follow (the on-wire count is
// n-1, since the target executes it count+1 times).
func (l *Link) repeatFrame(n int) ([]byte, error) {
	if n <= 0 {
		return nil, fmt.Errorf("link: repeat count must be >= 1, got %d", n)
	}
	count := n - 1
	if count > 0xFF {
		b := make([]byte, 2)
		binary.LittleEndian.PutUint16(b, uint16(count))
		return l.frame(opREPEAT|repeatSize2, b...), nil
	}
	return l.frame(opREPEAT|repeatSize1, byte(count)), nil
}

// StPtrIncBlock stores data through the pointer register with
// post-increment, using a single REPEAT(len(data)-1) prefix so no other
// operation can be interleaved (spec.md §3's REPEAT invariant). Each byte
// is individually ACKed; the first bad ACK aborts the whole block.
func (l *Link) StPtrIncBlock(data []byte) error {
	if len(data) == 0 {
		return nil
	}
	rep, err := l.repeatFrame(len(data))
	if err != nil {
		return err
	}
	if err := l.t.Send(rep); err != nil {
		return err
	}

	opcode := opST | ptrModeInc | dataSize1
	if err := l.t.Send(l.frame(opcode)); err != nil {
		return err
	}
	for _, bb := range data {
		if err := l.t.Send([]byte{bb}); err != nil {
			return err
		}
		if err := l.expectAck(); err != nil {
			return err
		}
	}
	return nil
}

// LdPtrIncBlock loads n bytes through the pointer register with
// post-increment, REPEAT-batched the same way StPtrIncBlock is.
func (l *Link) LdPtrIncBlock(n int) ([]byte, error) {
	if n == 0 {
		return nil, nil
	}
	rep, err := l.repeatFrame(n)
	if err != nil {
		return nil, err
	}
	if err := l.t.Send(rep); err != nil {
		return nil, err
	}

	opcode := opLD | ptrModeInc | dataSize1
	if err := l.t.Send(l.frame(opcode)); err != nil {
		return nil, err
	}
	return l.t.Recv(n, 0) // 0 => Phy's own default timeout
}

// Key sends the fixed 8-byte key identified by kind, LSB-first.
func (l *Link) Key(kind KeyKind) error {
	opcode := opKEY | keySize8
	kb := kind.bytes()
	return l.t.Send(l.frame(opcode, kb[:]...))
}

// SIB reads the System Information Block via the KEY instruction's SIB
// sub-operation (spec.md §4.3's Initialize step).
func (l *Link) SIB() ([]byte, error) {
	opcode := opKEY | keySIBFlag | sibSize32
	if err := l.t.Send(l.frame(opcode)); err != nil {
		return nil, err
	}
	return l.t.Recv(32, 0)
}

// expectAck reads one byte and confirms it is the fixed ACK value. On
// mismatch it performs exactly one resync attempt (BREAK + STATUSA read)
// and returns DesyncError; it never retries the original operation,
// matching spec.md §7's propagation rule.
func (l *Link) expectAck() error {
	b, err := l.t.Recv(1, 0)
	if err != nil {
		return err
	}
	if b[0] == ack {
		return nil
	}

	ackErr := &AckError{Got: b[0]}
	if resyncErr := l.resync(); resyncErr != nil {
		return &DesyncError{Cause: fmt.Errorf("%w (resync also failed: %v)", ackErr, resyncErr)}
	}
	return &DesyncError{Cause: ackErr}
}

// resync issues a single BREAK and confirms the peripheral still answers
// STATUSA, per spec.md §7: "LINK may upgrade a BadAck to DesyncDetected
// after one re-sync attempt (single BREAK + STATUSA read) — no further
// auto-retry."
func (l *Link) resync() error {
	if err := l.t.SendBreak(); err != nil {
		return err
	}
	_, err := l.Ldcs(StatusA)
	return err
}
