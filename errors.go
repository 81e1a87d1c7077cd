// Copyright 2024 The avrupdi Authors. All rights reserved.
// Use of this source code is governed by a GPL license that can be found in the LICENSE file.

package updi

import (
	"fmt"

	"github.com/avrupdi/updi/app"
)

// ErrUnknownDevice is returned by Open when the device catalog has no
// entry for the requested name (spec.md §7's InputError.UnknownDevice).
// The other InputError/NvmError/StateError kinds spec.md §7 names
// surface from the layer that actually detects them (nvm.ErrAlignment,
// nvm.ErrAddressOutOfRange, app.ErrLocked, ...); Session does not
// re-wrap them, so callers can match with errors.Is against the
// originating package's sentinel.
var ErrUnknownDevice = fmt.Errorf("updi: unknown device")

// Locked re-exports app.ErrLocked so callers driving the public API in
// spec.md §6 don't need to import app directly to check EnterProgmode's
// result.
var Locked = app.ErrLocked
