// Copyright 2024 The avrupdi Authors. All rights reserved.
// Use of this source code is governed by a GPL license that can be found in the LICENSE file.

package app_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/avrupdi/updi/app"
	"github.com/avrupdi/updi/link"
)

// ASI_SYS_STATUS/ASI_KEY_STATUS bit positions, mirroring the unexported
// constants in package link (sysStatusLockStatus = 1<<0, sysStatusNVMProg
// = 1<<3, keyStatusNVMProg = 1<<3), so this fake can script the same
// device-side state transitions a real target would make.
const (
	bitLocked  = 1 << 0
	bitNVMProg = 1 << 3
)

// fakeLinker is an in-memory "memory-model fake" implementing
// app.Linker, standing in for link.Link the way spec.md §8 describes
// testing this layer ("against a memory-model fake").
type fakeLinker struct {
	regs    map[link.Register]byte
	mem     map[uint32]byte
	pointer uint32
	sib     []byte
	breaks  int

	acceptNVMProg   bool
	acceptChipErase bool

	nextStPtrIncBlockErr error
}

func newFakeLinker() *fakeLinker {
	return &fakeLinker{
		regs: map[link.Register]byte{},
		mem:  map[uint32]byte{},
		sib:  make([]byte, 32),
	}
}

func (f *fakeLinker) Stcs(reg link.Register, value byte) error {
	if reg == link.ASIResetReq && value == link.ResetClear {
		if f.acceptNVMProg {
			f.regs[link.ASISysStatus] |= bitNVMProg
		}
		if f.acceptChipErase {
			f.regs[link.ASISysStatus] &^= bitLocked
			f.acceptChipErase = false
		}
	}
	f.regs[reg] = value
	return nil
}

func (f *fakeLinker) Ldcs(reg link.Register) (byte, error) {
	return f.regs[reg], nil
}

func (f *fakeLinker) StPtr(addr uint32) error {
	f.pointer = addr
	return nil
}

func (f *fakeLinker) StPtrIncBlock(data []byte) error {
	if f.nextStPtrIncBlockErr != nil {
		err := f.nextStPtrIncBlockErr
		f.nextStPtrIncBlockErr = nil
		return err
	}
	for _, b := range data {
		f.mem[f.pointer] = b
		f.pointer++
	}
	return nil
}

func (f *fakeLinker) LdPtrIncBlock(n int) ([]byte, error) {
	out := make([]byte, n)
	for i := range out {
		out[i] = f.mem[f.pointer]
		f.pointer++
	}
	return out, nil
}

func (f *fakeLinker) Key(kind link.KeyKind) error {
	switch kind {
	case link.KeyNVMProg:
		f.acceptNVMProg = true
		f.regs[link.ASIKeyStatus] |= bitNVMProg
	case link.KeyChipErase:
		f.acceptChipErase = true
	}
	return nil
}

func (f *fakeLinker) SIB() ([]byte, error) { return f.sib, nil }

func (f *fakeLinker) SetGuardTime(cycles int) error { return nil }

func (f *fakeLinker) SendBreak() error { f.breaks++; return nil }

func (f *fakeLinker) SendDoubleBreakInit() error { f.breaks += 2; return nil }

func (f *fakeLinker) MarkInitialized() {}

func TestInitializeCapturesSIB(t *testing.T) {
	f := newFakeLinker()
	a := app.New(f)

	require.NoError(t, a.Initialize())
	assert.Len(t, a.SIB(), 32)
	assert.Equal(t, 2, f.breaks)
}

func TestEnterLeaveProgmodeRoundTrip(t *testing.T) {
	f := newFakeLinker()
	a := app.New(f)
	require.NoError(t, a.Initialize())

	require.NoError(t, a.EnterProgmode())
	assert.True(t, a.InProgmode())

	require.NoError(t, a.LeaveProgmode())
	assert.False(t, a.InProgmode())
}

func TestEnterProgmodeAlreadyActive(t *testing.T) {
	f := newFakeLinker()
	f.regs[link.ASISysStatus] = bitNVMProg
	a := app.New(f)
	require.NoError(t, a.Initialize())

	require.NoError(t, a.EnterProgmode())
	assert.True(t, a.InProgmode())
}

func TestEnterProgmodeLockedDoesNotReset(t *testing.T) {
	f := newFakeLinker()
	f.regs[link.ASISysStatus] = bitLocked
	a := app.New(f)
	require.NoError(t, a.Initialize())

	err := a.EnterProgmode()
	assert.ErrorIs(t, err, app.ErrLocked)
	assert.False(t, a.InProgmode())
	assert.Zero(t, f.regs[link.ASIResetReq])
}

func TestUnlockRecoversFromLocked(t *testing.T) {
	f := newFakeLinker()
	f.regs[link.ASISysStatus] = bitLocked
	a := app.New(f)
	require.NoError(t, a.Initialize())

	require.ErrorIs(t, a.EnterProgmode(), app.ErrLocked)
	require.NoError(t, a.Unlock())
	assert.True(t, a.InProgmode())
}

func TestWriteMemReadMemRoundTrip(t *testing.T) {
	f := newFakeLinker()
	a := app.New(f)
	require.NoError(t, a.Initialize())

	data := []byte{1, 2, 3, 4, 5}
	require.NoError(t, a.WriteMem(0x4000, data))
	got, err := a.ReadMem(0x4000, len(data))
	require.NoError(t, err)
	assert.Equal(t, data, got)
}

func TestWriteMemPropagatesDesyncButSessionStaysUsable(t *testing.T) {
	f := newFakeLinker()
	a := app.New(f)
	require.NoError(t, a.Initialize())

	f.nextStPtrIncBlockErr = &link.DesyncError{Cause: &link.AckError{Got: 0x00}}
	err := a.WriteMem(0x4000, []byte{0x01})
	require.Error(t, err)
	var desync *link.DesyncError
	assert.ErrorAs(t, err, &desync)

	// The next operation on the same App succeeds: one bad ACK does not
	// leave the session unusable.
	require.NoError(t, a.WriteMem(0x4000, []byte{0x02}))
}
