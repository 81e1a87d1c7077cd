// Copyright 2024 The avrupdi Authors. All rights reserved.
// Use of this source code is governed by a GPL license that can be found in the LICENSE file.

package link

import "fmt"

// Sentinel ProtocolError kinds, per spec.md §7.
var (
	ErrBadAck          = fmt.Errorf("link: bad ack")
	ErrUnexpectedByte  = fmt.Errorf("link: unexpected byte")
	ErrDesyncDetected  = fmt.Errorf("link: desync detected")
)

// AckError reports the byte actually received where 0x40 (ACK) was
// expected. Link.expectAck wraps it in a DesyncError once a single BREAK
// resync attempt (Link.resync) has also been made, per spec.md §7's "no
// further auto-retry" rule.
type AckError struct {
	Got byte
}

func (e *AckError) Error() string {
	return fmt.Sprintf("link: expected ack 0x40, got %#02x", e.Got)
}

func (e *AckError) Unwrap() error { return ErrBadAck }

// DesyncError wraps the original AckError once a resync attempt has been
// made and the session must be considered desynchronized.
type DesyncError struct {
	Cause error
}

func (e *DesyncError) Error() string {
	return fmt.Sprintf("link: session desynchronized after bad ack: %v", e.Cause)
}

func (e *DesyncError) Unwrap() error { return ErrDesyncDetected }
