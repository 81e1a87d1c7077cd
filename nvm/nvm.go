// Copyright 2024 The avrupdi Authors. All rights reserved.
// Use of this source code is governed by a GPL license that can be found in the LICENSE file.

// Package nvm implements the NVM controller programming sequences of
// spec.md §4.4: command issue, busy-wait, page buffer load, page
// write/erase, fuse write and chip erase, applied against one device's
// flash/fuse/userrow/sigrow geometry.
package nvm

import (
	"time"

	"github.com/avrupdi/updi/device"
)

// NVMCTRL register offsets from device.Descriptor.NvmctrlAddr.
const (
	offCtrlA    = 0x00
	offStatus   = 0x02
	offIntCtrl  = 0x03
	offIntFlags = 0x04
	offData     = 0x06
	offAddr     = 0x08
)

// STATUS busy bits.
const (
	statusFBusy  byte = 1 << 0
	statusEEBusy byte = 1 << 1
	statusWrErr  byte = 1 << 2
)

// Command is the CTRLA command byte NVMCTRL executes, per spec.md §3's
// NvmCommand enum. Values below follow that enum's listed order rather
// than the AVR NVMCTRL datasheet's actual CTRLA.CMD encoding (the pack
// carries no nvm.c command table and spec.md assigns no numeric values);
// do not treat these as real silicon opcodes without checking the target
// family's datasheet CTRLA.CMD bitfield table first.
type Command byte

const (
	CmdNoOp                Command = 0x00
	CmdWriteFlashPage      Command = 0x01
	CmdEraseFlashPage      Command = 0x02
	CmdEraseWriteFlashPage Command = 0x03
	CmdEraseFlashBuffer    Command = 0x04
	CmdWriteFuse           Command = 0x05
	CmdEraseChip           Command = 0x06
)

// waitReadyAttempts and waitReadyInterval bound wait_ready, per spec.md
// §4.4 ("Bounded by ~10000 polls; exceed -> NvmTimeout").
const (
	waitReadyAttempts = 10000
	waitReadyInterval = 10 * time.Microsecond
)

// AppLayer is everything Controller needs from the session layer: block
// memory access keyed by absolute AVR data-space address. *app.App is
// the only production implementation; tests supply a memory-model fake.
type AppLayer interface {
	ReadMem(addr uint32, n int) ([]byte, error)
	WriteMem(addr uint32, data []byte) error
}

// Controller drives one device's NVMCTRL peripheral through an
// AppLayer, applying the device.Descriptor geometry to every operation.
type Controller struct {
	a   AppLayer
	dev device.Descriptor
}

// New returns a Controller for dev, driven through a.
func New(a AppLayer, dev device.Descriptor) *Controller {
	return &Controller{a: a, dev: dev}
}

func (c *Controller) ctrlAAddr() uint32 { return c.dev.NvmctrlAddr + offCtrlA }
func (c *Controller) statusAddr() uint32 { return c.dev.NvmctrlAddr + offStatus }
func (c *Controller) dataAddr() uint32 { return c.dev.NvmctrlAddr + offData }
func (c *Controller) addrAddr() uint32 { return c.dev.NvmctrlAddr + offAddr }

// WaitReady polls STATUS until both FBUSY and EEBUSY are clear, per
// spec.md §4.4.
func (c *Controller) WaitReady() error {
	for i := 0; i < waitReadyAttempts; i++ {
		b, err := c.a.ReadMem(c.statusAddr(), 1)
		if err != nil {
			return err
		}
		if b[0]&(statusFBusy|statusEEBusy) == 0 {
			return nil
		}
		time.Sleep(waitReadyInterval)
	}
	return ErrBusy
}

func (c *Controller) issueCommand(cmd Command) error {
	if err := c.WaitReady(); err != nil {
		return err
	}
	if err := c.a.WriteMem(c.ctrlAAddr(), []byte{byte(cmd)}); err != nil {
		return err
	}
	if err := c.WaitReady(); err != nil {
		return err
	}
	status, err := c.a.ReadMem(c.statusAddr(), 1)
	if err != nil {
		return err
	}
	if status[0]&statusWrErr != 0 {
		return ErrWriteError
	}
	return nil
}

// validateRegion enforces spec.md §4.4's flash-region-write
// preconditions: page-aligned start, a length that is an exact multiple
// of the device's page size, and an end that stays within flash.
func (c *Controller) validateRegion(addr uint32, length int) error {
	f := c.dev.Flash
	if addr < f.Start || uint64(addr)+uint64(length) > uint64(f.Start)+uint64(f.Size) {
		return ErrAddressOutOfRange
	}
	if int(addr-f.Start)%f.PageSize != 0 || length%f.PageSize != 0 {
		return ErrAlignment
	}
	return nil
}

// WriteFlashPage writes exactly one page_size-sized, page-aligned chunk
// of flash: clear the internal page buffer, stage the bytes, then issue
// the combined erase+write command (spec.md §4.4's "Flash page write").
func (c *Controller) WriteFlashPage(addr uint32, data []byte) error {
	if len(data) != c.dev.Flash.PageSize {
		return ErrAlignment
	}
	if err := c.validateRegion(addr, len(data)); err != nil {
		return err
	}

	if err := c.issueCommand(CmdEraseFlashBuffer); err != nil {
		return err
	}
	if err := c.a.WriteMem(addr, data); err != nil {
		return err
	}
	return c.issueCommand(CmdEraseWriteFlashPage)
}

// WriteFlashRegion splits (addr, data) into page_size chunks and writes
// each with WriteFlashPage. addr must be page-aligned and len(data) a
// multiple of page_size; the caller pads with 0xFF (spec.md §4.4's
// "Flash region write").
func (c *Controller) WriteFlashRegion(addr uint32, data []byte) error {
	if err := c.validateRegion(addr, len(data)); err != nil {
		return err
	}
	page := c.dev.Flash.PageSize
	for off := 0; off < len(data); off += page {
		if err := c.WriteFlashPage(addr+uint32(off), data[off:off+page]); err != nil {
			return err
		}
	}
	return nil
}

// ReadFlash reads length bytes of flash starting at the absolute
// AVR data-space address addr (spec.md §4.4's "Flash read": "plain
// block memory read via APP layer at flash.start + offset").
func (c *Controller) ReadFlash(addr uint32, length int) ([]byte, error) {
	f := c.dev.Flash
	if addr < f.Start || uint64(addr)+uint64(length) > uint64(f.Start)+uint64(f.Size) {
		return nil, ErrAddressOutOfRange
	}
	return c.a.ReadMem(addr, length)
}

// ChipErase issues EraseChip, clearing flash, EEPROM (unless protected)
// and lock bits.
func (c *Controller) ChipErase() error {
	return c.issueCommand(CmdEraseChip)
}

// WriteFuse writes value to fuses_addr + index via the indirect
// ADDR/DATA + WriteFuse command path (fuses cannot be written as
// ordinary data).
func (c *Controller) WriteFuse(index int, value byte) error {
	if index < 0 || index > 255 {
		return ErrBadFuseIndex
	}
	addr := c.dev.FusesAddr + uint32(index)

	if err := c.WaitReady(); err != nil {
		return err
	}
	if err := c.a.WriteMem(c.addrAddr(), []byte{byte(addr), byte(addr >> 8)}); err != nil {
		return err
	}
	if err := c.a.WriteMem(c.dataAddr(), []byte{value}); err != nil {
		return err
	}
	if err := c.a.WriteMem(c.ctrlAAddr(), []byte{byte(CmdWriteFuse)}); err != nil {
		return err
	}
	return c.WaitReady()
}

// ReadSignature reads the 3-byte device ID from the signature row.
func (c *Controller) ReadSignature() ([]byte, error) {
	return c.a.ReadMem(c.dev.SigrowAddr, 3)
}

// ReadFuse reads the single fuse byte at fuses_addr + index.
func (c *Controller) ReadFuse(index int) (byte, error) {
	if index < 0 || index > 255 {
		return 0, ErrBadFuseIndex
	}
	b, err := c.a.ReadMem(c.dev.FusesAddr+uint32(index), 1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}
