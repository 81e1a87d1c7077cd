// Copyright 2024 The avrupdi Authors. All rights reserved.
// Use of this source code is governed by a GPL license that can be found in the LICENSE file.

package nvm

import "fmt"

// Sentinel errors for the NvmError/InputError kinds spec.md §4.4/§7
// assign to this layer.
var (
	ErrBusy             = fmt.Errorf("nvm: busy (wait_ready exceeded bound)")
	ErrWriteError       = fmt.Errorf("nvm: write error (STATUS.WRERROR set)")
	ErrAddressOutOfRange = fmt.Errorf("nvm: address out of range")
	ErrAlignment        = fmt.Errorf("nvm: alignment error")
	ErrBadFuseIndex     = fmt.Errorf("nvm: bad fuse index")
)
