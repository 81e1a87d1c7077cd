// Copyright 2024 The avrupdi Authors. All rights reserved.
// Use of this source code is governed by a GPL license that can be found in the LICENSE file.

// Package updi is the public entry point of this module: it composes
// PHY, LINK, APP and NVM into one Session and exposes the operations of
// spec.md §6 ("Public API exposed by the core").
package updi

import (
	"fmt"
	"log"
	"os"

	"github.com/avrupdi/updi/app"
	"github.com/avrupdi/updi/device"
	"github.com/avrupdi/updi/link"
	"github.com/avrupdi/updi/nvm"
	"github.com/avrupdi/updi/phy"
	"github.com/avrupdi/updi/serialport"
)

// Options configures Open. Logger defaults to a logger writing to
// os.Stderr at the standard log flags if left nil — there is no
// process-wide verbosity flag (spec.md §9's "Global debug/verbosity
// flag ... becomes a per-Session logger").
type Options struct {
	Baud   int
	Logger *log.Logger
}

// DefaultBaud is the UPDI link speed cupdi.c and most programmers use
// out of the box.
const DefaultBaud = 115200

// Session owns one open UPDI connection end to end: the serial port,
// every protocol layer built on it, and the device geometry operations
// are checked against. It is the first-class value spec.md §9 describes
// in place of the original's opaque session handle; inner layers are
// held by composition, not global state, and a Session is exclusively
// owned by one caller at a time (spec.md §5).
type Session struct {
	port serialport.Port
	app  *app.App
	nvm  *nvm.Controller
	dev  device.Descriptor
	log  *log.Logger
}

// Open configures the named serial port at baud, wakes the UPDI
// peripheral and looks up dev in cat, per spec.md §6's `session_open`.
func Open(portName string, opts Options, devName string, cat device.Catalog) (*Session, error) {
	dev, ok := cat.Lookup(devName)
	if !ok {
		return nil, ErrUnknownDevice
	}

	baud := opts.Baud
	if baud == 0 {
		baud = DefaultBaud
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.New(os.Stderr, "updi: ", log.LstdFlags)
	}

	port, err := serialport.Open(portName, serialport.DefaultConfig(baud))
	if err != nil {
		return nil, err
	}

	s := &Session{
		port: port,
		dev:  dev,
		log:  logger,
	}
	l := link.New(phy.New(port, baud))
	s.app = app.New(l)
	s.nvm = nvm.New(s.app, dev)

	if err := s.app.Initialize(); err != nil {
		port.Close()
		return nil, err
	}
	s.log.Printf("session opened: device=%s sib=%x", dev.Name, s.app.SIB())
	return s, nil
}

// Close attempts a best-effort program-mode exit, then closes the
// serial port, per spec.md §7's "close always runs" rule.
func (s *Session) Close() error {
	if s.app.InProgmode() {
		if err := s.app.LeaveProgmode(); err != nil {
			s.log.Printf("leave progmode on close: %v", err)
		}
	}
	return s.port.Close()
}

// DeviceInfo is the result of GetDeviceInfo.
type DeviceInfo struct {
	SIB       []byte
	Signature []byte
}

// GetDeviceInfo returns the captured SIB and the device's 3-byte
// signature.
func (s *Session) GetDeviceInfo() (DeviceInfo, error) {
	sig, err := s.nvm.ReadSignature()
	if err != nil {
		return DeviceInfo{}, err
	}
	return DeviceInfo{SIB: s.app.SIB(), Signature: sig}, nil
}

// EnterProgmode enters program mode; returns Locked if the device is
// locked, in which case the caller should call Unlock.
func (s *Session) EnterProgmode() error {
	return s.app.EnterProgmode()
}

// LeaveProgmode returns the device to application mode.
func (s *Session) LeaveProgmode() error {
	return s.app.LeaveProgmode()
}

// Unlock performs the CHIPERASE-key erase-unlock recovery and re-enters
// program mode.
func (s *Session) Unlock() error {
	return s.app.Unlock()
}

// ChipErase erases flash, EEPROM (unless protected) and lock bits.
func (s *Session) ChipErase() error {
	return s.nvm.ChipErase()
}

// ReadFlash reads len bytes of flash starting at the absolute AVR
// data-space address addr (e.g. flash.start for the first byte).
func (s *Session) ReadFlash(addr uint32, length int) ([]byte, error) {
	return s.nvm.ReadFlash(addr, length)
}

// WriteFlash writes a page-aligned, page-size-multiple region of flash
// at the absolute AVR data-space address addr. The caller is
// responsible for padding with 0xFF.
func (s *Session) WriteFlash(addr uint32, data []byte) error {
	return s.nvm.WriteFlashRegion(addr, data)
}

// ReadMem reads len bytes from an arbitrary AVR data-space address.
func (s *Session) ReadMem(addr uint32, length int) ([]byte, error) {
	return s.app.ReadMem(addr, length)
}

// WriteMem writes data to an arbitrary AVR data-space address.
func (s *Session) WriteMem(addr uint32, data []byte) error {
	return s.app.WriteMem(addr, data)
}

// WriteFuse writes value to the fuse at fuseIndex.
func (s *Session) WriteFuse(fuseIndex int, value byte) error {
	return s.nvm.WriteFuse(fuseIndex, value)
}

// FlashInfo is the result of GetFlashInfo.
type FlashInfo struct {
	Start    uint32
	Size     uint32
	PageSize int
}

// GetFlashInfo returns the device's flash geometry.
func (s *Session) GetFlashInfo() FlashInfo {
	return FlashInfo{
		Start:    s.dev.Flash.Start,
		Size:     s.dev.Flash.Size,
		PageSize: s.dev.Flash.PageSize,
	}
}

// String renders Session's current device/state for logging.
func (s *Session) String() string {
	return fmt.Sprintf("Session{device=%s progmode=%v}", s.dev.Name, s.app.InProgmode())
}
