// Copyright 2024 The avrupdi Authors. All rights reserved.
// Use of this source code is governed by a GPL license that can be found in the LICENSE file.

package serialport

import (
	"fmt"
	"os"
	"time"

	"golang.org/x/sys/unix"
)

// baudConstants maps baud rates UPDI actually uses to the kernel's CBAUD
// bit patterns. Anything not in this table falls back to B38400 + BOTHER
// with a custom divisor, the same escape hatch goserial's Termios2 path
// uses for arbitrary speeds.
var baudConstants = map[int]uint32{
	1200:    unix.B1200,
	2400:    unix.B2400,
	9600:    unix.B9600,
	19200:   unix.B19200,
	38400:   unix.B38400,
	57600:   unix.B57600,
	115200:  unix.B115200,
	230400:  unix.B230400,
	460800:  unix.B460800,
	921600:  unix.B921600,
	1000000: unix.B1000000,
}

type ttyPort struct {
	f      *os.File
	cfg    Config
	closed bool
}

func openTTY(name string, cfg Config) (Port, error) {
	f, err := os.OpenFile(name, os.O_RDWR|unix.O_NOCTTY, 0)
	if err != nil {
		return nil, fmt.Errorf("serialport: open %s: %w", name, err)
	}

	p := &ttyPort{f: f, cfg: cfg}
	if err := p.configure(cfg); err != nil {
		f.Close()
		return nil, err
	}
	return p, nil
}

// configure applies cfg to the tty via TCSETS, following the raw-mode
// recipe in Daedaluz-goserial's Termios.MakeRaw, specialized to UPDI's
// fixed 8E2 framing.
func (p *ttyPort) configure(cfg Config) error {
	t, err := unix.IoctlGetTermios(int(p.f.Fd()), unix.TCGETS)
	if err != nil {
		return fmt.Errorf("serialport: get attrs: %w", err)
	}

	t.Iflag &^= unix.IGNBRK | unix.BRKINT | unix.PARMRK | unix.ISTRIP |
		unix.INLCR | unix.IGNCR | unix.ICRNL | unix.IXON
	t.Oflag &^= unix.OPOST
	t.Lflag &^= unix.ECHO | unix.ECHONL | unix.ICANON | unix.ISIG | unix.IEXTEN
	t.Cflag &^= unix.CSIZE | unix.PARENB | unix.PARODD | unix.CSTOPB | unix.CBAUD
	t.Cflag |= unix.CS8 | unix.CREAD | unix.CLOCAL

	switch cfg.Parity {
	case ParityEven:
		t.Cflag |= unix.PARENB
	case ParityOdd:
		t.Cflag |= unix.PARENB | unix.PARODD
	}
	if cfg.StopBits == 2 {
		t.Cflag |= unix.CSTOPB
	}

	if b, ok := baudConstants[cfg.Baud]; ok {
		t.Cflag |= b
	} else {
		t.Cflag |= unix.B38400
	}

	// Non-canonical read: return as soon as 1 byte is available, no
	// inter-byte timer; ReadExact layers its own absolute timeout on top.
	t.Cc[unix.VMIN] = 1
	t.Cc[unix.VTIME] = 0

	if err := unix.IoctlSetTermios(int(p.f.Fd()), unix.TCSETS, t); err != nil {
		return fmt.Errorf("serialport: set attrs: %w", err)
	}
	p.cfg = cfg
	return nil
}

func (p *ttyPort) SetBaud(baud int) error {
	if p.closed {
		return ErrClosed
	}
	cfg := p.cfg
	cfg.Baud = baud
	return p.configure(cfg)
}

// SendBreak drives TXD low via TIOCSBRK, sleeps for duration, then clears
// it via TIOCCBRK. Matches Daedaluz-goserial's SetBreak/ClearBreak pair
// rather than the blocking TCSBRK ioctl, since UPDI needs a precisely
// timed break rather than the driver's fixed 0.25-0.5s pulse.
func (p *ttyPort) SendBreak(duration time.Duration) error {
	if p.closed {
		return ErrClosed
	}
	if err := unix.IoctlSetInt(int(p.f.Fd()), unix.TIOCSBRK, 0); err != nil {
		return fmt.Errorf("serialport: set break: %w", err)
	}
	time.Sleep(duration)
	if err := unix.IoctlSetInt(int(p.f.Fd()), unix.TIOCCBRK, 0); err != nil {
		return fmt.Errorf("serialport: clear break: %w", err)
	}
	return nil
}

func (p *ttyPort) Write(b []byte) (int, error) {
	if p.closed {
		return 0, ErrClosed
	}
	return p.f.Write(b)
}

func (p *ttyPort) ReadExact(b []byte, timeout time.Duration) error {
	if p.closed {
		return ErrClosed
	}
	p.f.SetReadDeadline(time.Now().Add(timeout))
	defer p.f.SetReadDeadline(time.Time{})

	read := 0
	for read < len(b) {
		n, err := p.f.Read(b[read:])
		read += n
		if err != nil {
			return fmt.Errorf("serialport: read: %w", err)
		}
	}
	return nil
}

func (p *ttyPort) Close() error {
	if p.closed {
		return ErrClosed
	}
	p.closed = true
	return p.f.Close()
}
