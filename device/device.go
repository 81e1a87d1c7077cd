// Copyright 2024 The avrupdi Authors. All rights reserved.
// Use of this source code is governed by a GPL license that can be found in the LICENSE file.

// Package device is the external "device catalog" collaborator of
// spec.md §6: a static table mapping a device name to the memory-map
// geometry the NVM layer needs. Device identity is always supplied by
// the caller; this package never probes hardware (spec.md §1's
// non-goal: "no automatic device auto-detection").
package device

// Flash describes a device's flash geometry in the AVR data-memory
// view: a contiguous region starting at Start, split into Size/PageSize
// equal-sized pages.
type Flash struct {
	Start    uint32
	Size     uint32
	PageSize int
}

// Descriptor is the immutable per-device input spec.md §3 assigns to
// Session: flash geometry plus the fixed addresses of the peripherals
// and memory regions NVM programs. All addresses are 16-bit in the AVR
// data-memory view.
type Descriptor struct {
	Name        string
	Flash       Flash
	SyscfgAddr  uint32
	NvmctrlAddr uint32
	SigrowAddr  uint32
	FusesAddr   uint32
	UserrowAddr uint32
}

// Catalog looks up a Descriptor by device name.
type Catalog interface {
	Lookup(name string) (Descriptor, bool)
}
