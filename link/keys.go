// Copyright 2024 The avrupdi Authors. All rights reserved.
// Use of this source code is governed by a GPL license that can be found in the LICENSE file.

package link

// KeyKind selects which fixed 8-byte ASCII key the KEY instruction sends.
// The constants themselves come from the UPDI datasheet (Microchip
// AN-2563 / the UPDI application note's "NVM Key" table); kept in one
// table per the design note "Key constants belong in a const table with
// a comment citing the datasheet; do not hard-code them inline."
type KeyKind int

const (
	KeyNVMProg KeyKind = iota
	KeyChipErase
	KeyUROWWrite
)

// keyTable holds each key's fixed 8 ASCII bytes, transmitted
// least-significant-byte first per spec.md §3's invariant. The slices
// below are already in LSB-first wire order (reversed from the
// human-readable ASCII string a datasheet prints).
var keyTable = map[KeyKind][8]byte{
	// "NVMProg " reversed
	KeyNVMProg: [8]byte{' ', 'g', 'o', 'r', 'P', 'M', 'V', 'N'},
	// "NVMErase" reversed
	KeyChipErase: [8]byte{'e', 's', 'a', 'r', 'E', 'M', 'V', 'N'},
	// "NVMUs&te" reversed (UROW-write key, per datasheet table)
	KeyUROWWrite: [8]byte{'e', 't', '&', 's', 'U', 'M', 'V', 'N'},
}

func (k KeyKind) bytes() [8]byte {
	return keyTable[k]
}

func (k KeyKind) String() string {
	switch k {
	case KeyNVMProg:
		return "NVMPROG"
	case KeyChipErase:
		return "CHIPERASE"
	case KeyUROWWrite:
		return "UROWWRITE"
	default:
		return "UNKNOWN"
	}
}
