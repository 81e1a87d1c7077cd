// Copyright 2024 The avrupdi Authors. All rights reserved.
// Use of this source code is governed by a GPL license that can be found in the LICENSE file.

package link_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/avrupdi/updi/link"
	"github.com/avrupdi/updi/phy"
	"github.com/avrupdi/updi/serialport"
)

// fakeTarget is a minimal wire-level stand-in for a UPDI peripheral,
// enough to exercise Link's opcode encoding, ACK handling and REPEAT
// batching without real hardware. It only understands the opcode shapes
// this package's Link actually emits.
type fakeTarget struct {
	regs        map[byte]byte
	mem         map[uint32]byte
	pointer     uint32
	pendingOp   byte
	pendingAddr uint32
	repeatLen   int
	badAck      bool
}

func newFakeTarget() (*serialport.Fake, *fakeTarget) {
	ft := &fakeTarget{regs: map[byte]byte{}, mem: map[uint32]byte{}}
	port := serialport.NewFake(115200)
	port.Respond = ft.respond
	return port, ft
}

const syncByte = 0x55
const ack = 0x40

func (ft *fakeTarget) respond(written []byte) []byte {
	if len(written) >= 2 && written[0] == syncByte {
		opcode := written[1]
		switch opcode & 0xE0 {
		case 0x80: // LDCS
			return []byte{ft.regs[opcode&0x0F]}
		case 0xC0: // STCS
			ft.regs[opcode&0x0F] = written[2]
			return nil
		case 0x60: // ST
			mode := opcode & 0x0C
			if mode == 0x08 { // ptrModeSet
				ft.pointer = uint32(written[2]) | uint32(written[3])<<8
				if ft.badAck {
					return []byte{0x00}
				}
				return []byte{ack}
			}
			ft.pendingOp = opcode
			return nil
		case 0x20: // LD
			n := ft.repeatLen
			if n == 0 {
				n = 1
			}
			out := make([]byte, n)
			for i := 0; i < n; i++ {
				out[i] = ft.mem[ft.pointer]
				ft.pointer++
			}
			ft.repeatLen = 0
			return out
		case 0x00: // LDS
			addrLen := 2
			if opcode&0x08 != 0 {
				addrLen = 3
			}
			dataLen := 1
			if opcode&0x01 != 0 {
				dataLen = 2
			}
			addr := decodeAddr(written[2:2+addrLen], addrLen)
			out := make([]byte, dataLen)
			for i := 0; i < dataLen; i++ {
				out[i] = ft.mem[addr+uint32(i)]
			}
			return out
		case 0x40: // STS address phase
			ft.pendingOp = opcode
			addrLen := 2
			if opcode&0x08 != 0 {
				addrLen = 3
			}
			ft.pendingAddr = decodeAddr(written[2:2+addrLen], addrLen)
			if ft.badAck {
				return []byte{0x00}
			}
			return []byte{ack}
		case 0xA0: // REPEAT
			addrLen := 1
			if opcode&0x01 != 0 {
				addrLen = 2
			}
			n := 0
			for i := 0; i < addrLen; i++ {
				n |= int(written[2+i]) << (8 * i)
			}
			ft.repeatLen = n + 1
			return nil
		case 0xE0: // KEY
			if opcode&0x04 != 0 {
				return make([]byte, 32)
			}
			return nil
		}
	}

	// Bare data-phase write continuing a previous ST/STS address phase.
	if ft.pendingOp != 0 {
		op := ft.pendingOp
		switch op & 0xE0 {
		case 0x60: // ST ptrModeInc data byte
			ft.mem[ft.pointer] = written[0]
			ft.pointer++
			if ft.badAck {
				return []byte{0x00}
			}
			return []byte{ack}
		case 0x40: // STS data phase
			for i, b := range written {
				ft.mem[ft.pendingAddr+uint32(i)] = b
			}
			ft.pendingOp = 0
			if ft.badAck {
				return []byte{0x00}
			}
			return []byte{ack}
		}
	}
	return nil
}

func decodeAddr(b []byte, n int) uint32 {
	var addr uint32
	for i := 0; i < n; i++ {
		addr |= uint32(b[i]) << (8 * i)
	}
	return addr
}

func TestStcsLdcsRoundTrip(t *testing.T) {
	port, _ := newFakeTarget()
	l := link.New(phy.New(port, 115200))

	require.NoError(t, l.Stcs(link.CtrlB, 0x04))
	v, err := l.Ldcs(link.CtrlB)
	require.NoError(t, err)
	assert.Equal(t, byte(0x04), v)
}

func TestStsLdsRoundTrip(t *testing.T) {
	port, _ := newFakeTarget()
	l := link.New(phy.New(port, 115200))

	require.NoError(t, l.Sts(0x4000, []byte{0xAB}))
	got, err := l.Lds(0x4000, 1)
	require.NoError(t, err)
	assert.Equal(t, []byte{0xAB}, got)
}

func TestRepeatBatchedBlockRoundTrip(t *testing.T) {
	port, _ := newFakeTarget()
	l := link.New(phy.New(port, 115200))

	data := []byte{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}
	require.NoError(t, l.StPtr(0x8000))
	require.NoError(t, l.StPtrIncBlock(data))

	require.NoError(t, l.StPtr(0x8000))
	got, err := l.LdPtrIncBlock(len(data))
	require.NoError(t, err)
	assert.Equal(t, data, got)
}

func TestBadAckBecomesDesyncError(t *testing.T) {
	port, ft := newFakeTarget()
	ft.badAck = true
	l := link.New(phy.New(port, 115200))

	err := l.Sts(0x4000, []byte{0x01})
	require.Error(t, err)
	var desync *link.DesyncError
	assert.ErrorAs(t, err, &desync)
}

func TestKeySendsFixedEightBytes(t *testing.T) {
	port := serialport.NewFake(115200)
	l := link.New(phy.New(port, 115200))

	require.NoError(t, l.Key(link.KeyNVMProg))
	// Frame is sync + opcode + 8 key bytes, all echoed back and drained.
	assert.Equal(t, 0, port.Pending())
}

func TestSIBReads32Bytes(t *testing.T) {
	port, _ := newFakeTarget()
	l := link.New(phy.New(port, 115200))

	sib, err := l.SIB()
	require.NoError(t, err)
	assert.Len(t, sib, 32)
}
