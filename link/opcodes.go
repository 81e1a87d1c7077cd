// Copyright 2024 The avrupdi Authors. All rights reserved.
// Use of this source code is governed by a GPL license that can be found in the LICENSE file.

// Package link implements the UPDI instruction layer of spec.md §4.2:
// opcode encoding, control/status register access and the REPEAT-batched
// load/store helpers that APP and NVM are built on.
package link

// syncByte prefixes every UPDI instruction on the wire.
const syncByte = 0x55

// ack is the byte the target returns after each write phase of ST/STS.
const ack = 0x40

// Opcode classes, selected by the top 3 bits of the instruction byte.
const (
	opLDS    byte = 0x00
	opSTS    byte = 0x40
	opLD     byte = 0x20
	opST     byte = 0x60
	opLDCS   byte = 0x80
	opSTCS   byte = 0xC0
	opREPEAT byte = 0xA0
	opKEY    byte = 0xE0
)

// Address-size field for LDS/STS (bits 3:2 of the opcode byte). UPDI
// addressing in this implementation is always 16-bit or 24-bit (spec.md
// §4.3: "Addresses above 0xFFFF use 24-bit LDS/STS; otherwise 16-bit
// LDS/STS"), so the 1-address-byte encoding is never selected.
const (
	addrSize2 byte = 0x04 // 2 address bytes, 16-bit data-space address
	addrSize3 byte = 0x08 // 3 address bytes, for the 24-bit extended space
)

// Data-size field (bits 1:0) shared by LDS/STS/LD/ST.
const (
	dataSize1 byte = 0x00
	dataSize2 byte = 0x01
)

// Pointer-access mode for LD/ST (bits 3:2 of the opcode byte).
const (
	ptrModeAccess byte = 0x00 // *(ptr), pointer unchanged
	ptrModeInc    byte = 0x04 // *(ptr++), post-increment
	ptrModeSet    byte = 0x08 // ptr = value, no memory access
)

// REPEAT's size field: whether the repeat count is one or two bytes.
const (
	repeatSize1 byte = 0x00
	repeatSize2 byte = 0x01
)

// KEY's size field plus the SIB sub-operation flag.
const (
	keySize8   byte = 0x00 // 8-byte key (NVMPROG / CHIPERASE / UROWWRITE)
	keySIBFlag byte = 0x04
	sibSize32  byte = 0x02 // 32-byte SIB response
)

// Control/status register addresses (encoded in the low 4 bits of the
// LDCS/STCS opcode byte). Matches the UPDI datasheet's CS address map.
const (
	csSTATUSA      byte = 0x00
	csSTATUSB      byte = 0x01
	csCTRLA        byte = 0x02
	csCTRLB        byte = 0x03
	csASIKeyStatus byte = 0x07
	csASIResetReq  byte = 0x08
	csASICtrlA     byte = 0x09
	csASISysCtrlA  byte = 0x0A
	csASISysStatus byte = 0x0B
	csASICrcStatus byte = 0x0C
)

// ASI_SYS_STATUS bits.
const (
	sysStatusLockStatus byte = 1 << 0
	sysStatusNVMProg    byte = 1 << 3
)

// ASI_KEY_STATUS bits: which key was most recently accepted.
const (
	keyStatusUROWWrite byte = 1 << 0
	keyStatusNVMProg   byte = 1 << 3
	keyStatusChipErase byte = 1 << 4
)

// ASI_RESET_REQ values.
const (
	resetRequest byte = 0x59
	resetClear   byte = 0x00
)

// CTRLB.GTVAL guard-time field (bits 2:0); values below are guard cycles.
const guardTimeMask byte = 0x07

// Register is a control/status register address, exported so APP can
// read/write CS registers LINK doesn't wrap with a named helper (e.g.
// ASI_SYS_STATUS polling).
type Register byte

// The subset of CS registers that APP polls or writes directly.
const (
	StatusA      = Register(csSTATUSA)
	StatusB      = Register(csSTATUSB)
	CtrlA        = Register(csCTRLA)
	CtrlB        = Register(csCTRLB)
	ASIKeyStatus = Register(csASIKeyStatus)
	ASIResetReq  = Register(csASIResetReq)
	ASICtrlA     = Register(csASICtrlA)
	ASISysCtrlA  = Register(csASISysCtrlA)
	ASISysStatus = Register(csASISysStatus)
	ASICrcStatus = Register(csASICrcStatus)
)

// SysStatusNVMProg reports whether ASI_SYS_STATUS indicates program mode
// is active.
func SysStatusNVMProg(v byte) bool { return v&sysStatusNVMProg != 0 }

// SysStatusLocked reports whether ASI_SYS_STATUS indicates the device is
// locked.
func SysStatusLocked(v byte) bool { return v&sysStatusLockStatus != 0 }

// KeyStatusAccepted reports whether ASI_KEY_STATUS shows the given key
// kind was accepted.
func KeyStatusAccepted(v byte, k KeyKind) bool {
	switch k {
	case KeyNVMProg:
		return v&keyStatusNVMProg != 0
	case KeyChipErase:
		return v&keyStatusChipErase != 0
	case KeyUROWWrite:
		return v&keyStatusUROWWrite != 0
	}
	return false
}

// ResetRequest and ResetClear are the two STCS(ASI_RESET_REQ, ...) values
// used to toggle a system reset.
const (
	ResetRequest = resetRequest
	ResetClear   = resetClear
)
