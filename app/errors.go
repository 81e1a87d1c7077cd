// Copyright 2024 The avrupdi Authors. All rights reserved.
// Use of this source code is governed by a GPL license that can be found in the LICENSE file.

package app

import "fmt"

// Sentinel errors APP returns: NotInitialized (the only StateError kind
// this package defines; there is no NotInProgmode or AlreadyInProgmode
// error), plus the three ways entering program mode can fail: a locked
// device, a rejected NVMPROG key, and NVMPROG status never being set.
var (
	ErrNotInitialized      = fmt.Errorf("app: not initialized")
	ErrLocked              = fmt.Errorf("app: device locked")
	ErrKeyRejected         = fmt.Errorf("app: key not accepted")
	ErrEnterProgmodeFailed = fmt.Errorf("app: enter progmode failed: NVMPROG status never set")
)
