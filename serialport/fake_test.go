// Copyright 2024 The avrupdi Authors. All rights reserved.
// Use of this source code is governed by a GPL license that can be found in the LICENSE file.

package serialport_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/avrupdi/updi/serialport"
)

func TestFakeWriteReadLoopback(t *testing.T) {
	f := serialport.NewFake(115200)

	n, err := f.Write([]byte{1, 2, 3})
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	got := make([]byte, 3)
	require.NoError(t, f.ReadExact(got, time.Millisecond))
	assert.Equal(t, []byte{1, 2, 3}, got)
	assert.Equal(t, 0, f.Pending())
}

func TestFakeReadExactTimesOutWhenShort(t *testing.T) {
	f := serialport.NewFake(115200)
	_, _ = f.Write([]byte{1})

	got := make([]byte, 2)
	err := f.ReadExact(got, time.Millisecond)
	assert.Error(t, err)
}

func TestFakeCorruptMutatesWrittenBytes(t *testing.T) {
	f := serialport.NewFake(115200)
	f.Corrupt = func(b []byte) []byte {
		out := append([]byte(nil), b...)
		out[0] ^= 0xFF
		return out
	}

	_, err := f.Write([]byte{0x55})
	require.NoError(t, err)

	got := make([]byte, 1)
	require.NoError(t, f.ReadExact(got, time.Millisecond))
	assert.Equal(t, byte(0xAA), got[0])
}

func TestFakeRespondAppendsAfterEcho(t *testing.T) {
	f := serialport.NewFake(115200)
	f.Respond = func(written []byte) []byte { return []byte{0x40} }

	_, err := f.Write([]byte{0x55, 0x4B})
	require.NoError(t, err)

	echo := make([]byte, 2)
	require.NoError(t, f.ReadExact(echo, time.Millisecond))
	assert.Equal(t, []byte{0x55, 0x4B}, echo)

	resp := make([]byte, 1)
	require.NoError(t, f.ReadExact(resp, time.Millisecond))
	assert.Equal(t, byte(0x40), resp[0])
}

func TestFakeBreaksAndBaudTracking(t *testing.T) {
	f := serialport.NewFake(9600)
	require.NoError(t, f.SendBreak(2*time.Millisecond))
	require.NoError(t, f.SetBaud(2400))

	assert.Equal(t, []time.Duration{2 * time.Millisecond}, f.Breaks())
	assert.Equal(t, 2400, f.Baud())
}

func TestFakeClosedRejectsOperations(t *testing.T) {
	f := serialport.NewFake(9600)
	require.NoError(t, f.Close())

	_, err := f.Write([]byte{1})
	assert.ErrorIs(t, err, serialport.ErrClosed)

	err = f.ReadExact(make([]byte, 1), time.Millisecond)
	assert.ErrorIs(t, err, serialport.ErrClosed)

	assert.ErrorIs(t, f.Close(), serialport.ErrClosed)
}
