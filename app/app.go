// Copyright 2024 The avrupdi Authors. All rights reserved.
// Use of this source code is governed by a GPL license that can be found in the LICENSE file.

// Package app implements the session lifecycle of spec.md §4.3: the
// initialization handshake, program-mode entry/exit via KEY, the
// unlock-by-erase recovery path, and REPEAT-batched block memory
// access that NVM is built on.
package app

import (
	"time"

	"github.com/avrupdi/updi/link"
)

// progmodePollAttempts and progmodePollInterval bound the ASI_SYS_STATUS
// poll after a reset, per spec.md §4.3's "bounded retries (default 100 ×
// ~1 ms)".
const (
	progmodePollAttempts = 100
	progmodePollInterval = time.Millisecond
)

// Linker is everything App needs from the link layer. *link.Link is the
// only production implementation; tests supply a memory-model fake so
// this package can be exercised without a wire-level opcode simulator.
type Linker interface {
	Stcs(reg link.Register, value byte) error
	Ldcs(reg link.Register) (byte, error)
	StPtr(addr uint32) error
	StPtrIncBlock(data []byte) error
	LdPtrIncBlock(n int) ([]byte, error)
	Key(kind link.KeyKind) error
	SIB() ([]byte, error)
	SetGuardTime(cycles int) error
	SendBreak() error
	SendDoubleBreakInit() error
	MarkInitialized()
}

// App drives one UPDI session's lifecycle on top of a Linker. It tracks
// the two bits of state spec.md §3 assigns to this layer: whether
// Initialize has completed and whether program mode is currently
// active — Session holds the device descriptor.
type App struct {
	l           Linker
	initialized bool
	progmode    bool
	sib         []byte
}

// New wraps l. The returned App is not initialized; call Initialize
// before anything else.
func New(l Linker) *App {
	return &App{l: l}
}

// Initialize runs spec.md §4.3's wake sequence: double-BREAK, guard time
// = 2 cycles, a STATUSA read to confirm the peripheral is listening, and
// a SIB read to capture NVM version/family/debug info.
func (a *App) Initialize() error {
	if err := a.l.SendDoubleBreakInit(); err != nil {
		return err
	}
	if err := a.l.SetGuardTime(2); err != nil {
		return err
	}
	if _, err := a.l.Ldcs(link.StatusA); err != nil {
		return err
	}
	sib, err := a.l.SIB()
	if err != nil {
		return err
	}
	a.sib = sib
	a.initialized = true
	a.l.MarkInitialized()
	return nil
}

// SIB returns the System Information Block captured by Initialize.
func (a *App) SIB() []byte { return a.sib }

// InProgmode reports whether the session believes program mode is
// active. This is a best-effort cache, not a re-read of device state
// (spec.md §5: "Program-mode status is device-side state; Session
// caches it only as a best-effort flag").
func (a *App) InProgmode() bool { return a.progmode }

// resetTarget toggles ASI_RESET_REQ: request then clear.
func (a *App) resetTarget() error {
	if err := a.l.Stcs(link.ASIResetReq, link.ResetRequest); err != nil {
		return err
	}
	return a.l.Stcs(link.ASIResetReq, link.ResetClear)
}

// EnterProgmode implements spec.md §4.3's five-step sequence. If the
// device is already in program mode it returns immediately; if the
// device is locked it returns ErrLocked without attempting a reset.
func (a *App) EnterProgmode() error {
	if !a.initialized {
		return ErrNotInitialized
	}

	status, err := a.l.Ldcs(link.ASISysStatus)
	if err != nil {
		return err
	}
	if link.SysStatusNVMProg(status) {
		a.progmode = true
		return nil
	}
	if link.SysStatusLocked(status) {
		return ErrLocked
	}

	if err := a.l.Key(link.KeyNVMProg); err != nil {
		return err
	}
	keyStatus, err := a.l.Ldcs(link.ASIKeyStatus)
	if err != nil {
		return err
	}
	if !link.KeyStatusAccepted(keyStatus, link.KeyNVMProg) {
		return ErrKeyRejected
	}

	if err := a.resetTarget(); err != nil {
		return err
	}

	for i := 0; i < progmodePollAttempts; i++ {
		status, err := a.l.Ldcs(link.ASISysStatus)
		if err != nil {
			return err
		}
		if link.SysStatusNVMProg(status) {
			a.progmode = true
			return nil
		}
		time.Sleep(progmodePollInterval)
	}
	return ErrEnterProgmodeFailed
}

// Unlock performs the CHIPERASE-key erase-unlock recovery path: send the
// CHIPERASE key, reset, poll LOCKSTATUS clear, then enter program mode.
func (a *App) Unlock() error {
	if !a.initialized {
		return ErrNotInitialized
	}

	if err := a.l.Key(link.KeyChipErase); err != nil {
		return err
	}
	if err := a.resetTarget(); err != nil {
		return err
	}

	for i := 0; i < progmodePollAttempts; i++ {
		status, err := a.l.Ldcs(link.ASISysStatus)
		if err != nil {
			return err
		}
		if !link.SysStatusLocked(status) {
			return a.EnterProgmode()
		}
		time.Sleep(progmodePollInterval)
	}
	return ErrEnterProgmodeFailed
}

// LeaveProgmode resets the target back to application mode and clears
// the cached progmode flag, regardless of whether the reset itself
// succeeds (spec.md §7: "leave_progmode is attempted best-effort").
func (a *App) LeaveProgmode() error {
	err := a.resetTarget()
	a.progmode = false
	return err
}

// ReadMem reads n bytes starting at addr using the pointer-with-
// post-increment path: set pointer, REPEAT(n-1), LD_PTR_INC (spec.md
// §4.3's "Block memory access" reads).
func (a *App) ReadMem(addr uint32, n int) ([]byte, error) {
	if n == 0 {
		return nil, nil
	}
	if err := a.l.StPtr(addr); err != nil {
		return nil, err
	}
	return a.l.LdPtrIncBlock(n)
}

// WriteMem writes data starting at addr using the pointer-with-
// post-increment path, verifying every ACK (spec.md §4.3's "Block
// memory access" writes).
func (a *App) WriteMem(addr uint32, data []byte) error {
	if len(data) == 0 {
		return nil
	}
	if err := a.l.StPtr(addr); err != nil {
		return err
	}
	return a.l.StPtrIncBlock(data)
}
