// Copyright 2024 The avrupdi Authors. All rights reserved.
// Use of this source code is governed by a GPL license that can be found in the LICENSE file.

// Go UPDI programmer reference implementation.
package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/avrupdi/updi"
	"github.com/avrupdi/updi/device"
	"github.com/avrupdi/updi/hexfile"
)

// rawRead is one `addr;len` term from the -r flag (the -w flag's
// `addr;b0;b1;...` value is parsed by parseRawWrite), parsed per spec.md §9's
// "string-based command parsing is a CLI concern; the core API takes
// typed arguments" decision.
type rawRead struct {
	addr uint32
	len  int
}

func parseRawReads(s string) ([]rawRead, error) {
	var out []rawRead
	for _, term := range strings.Split(s, "|") {
		parts := strings.Split(term, ";")
		if len(parts) != 2 {
			return nil, fmt.Errorf("bad -r term %q: want addr;len", term)
		}
		addr, err := strconv.ParseUint(strings.TrimPrefix(parts[0], "0x"), 16, 32)
		if err != nil {
			return nil, fmt.Errorf("bad -r address %q: %w", parts[0], err)
		}
		n, err := strconv.Atoi(parts[1])
		if err != nil {
			return nil, fmt.Errorf("bad -r length %q: %w", parts[1], err)
		}
		out = append(out, rawRead{addr: uint32(addr), len: n})
	}
	return out, nil
}

func parseRawWrite(s string) (uint32, []byte, error) {
	parts := strings.Split(s, ";")
	if len(parts) < 2 {
		return 0, nil, fmt.Errorf("bad -w value %q: want addr;b0;b1;...", s)
	}
	addr, err := strconv.ParseUint(strings.TrimPrefix(parts[0], "0x"), 16, 32)
	if err != nil {
		return 0, nil, fmt.Errorf("bad -w address %q: %w", parts[0], err)
	}
	data := make([]byte, len(parts)-1)
	for i, p := range parts[1:] {
		b, err := strconv.ParseUint(strings.TrimPrefix(p, "0x"), 16, 8)
		if err != nil {
			return 0, nil, fmt.Errorf("bad -w byte %q: %w", p, err)
		}
		data[i] = byte(b)
	}
	return uint32(addr), data, nil
}

func parseFuseSpec(s string) (int, byte, error) {
	parts := strings.SplitN(s, ":", 2)
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("bad -u value %q: want idx:0xVV", s)
	}
	idx, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0, 0, fmt.Errorf("bad -u index %q: %w", parts[0], err)
	}
	v, err := strconv.ParseUint(strings.TrimPrefix(parts[1], "0x"), 16, 8)
	if err != nil {
		return 0, 0, fmt.Errorf("bad -u value %q: %w", parts[1], err)
	}
	return idx, byte(v), nil
}

func main() {
	deviceName := flag.String("d", "", "device name (e.g. tiny817)")
	port := flag.String("c", "", "serial port (e.g. /dev/ttyUSB0)")
	baud := flag.Int("b", updi.DefaultBaud, "baud rate")
	file := flag.String("f", "", "Intel HEX file to program/verify")
	erase := flag.Bool("e", false, "chip erase")
	program := flag.Bool("p", false, "program flash from -f")
	check := flag.Bool("k", false, "verify flash against -f")
	save := flag.Bool("s", false, "save flash to <file>.save as HEX")
	fuseSpec := flag.String("u", "", "write a fuse: idx:0xVV")
	readSpec := flag.String("r", "", "raw reads: addr;len[|addr;len]*")
	writeSpec := flag.String("w", "", "raw write: addr;b0;b1;...")
	verbose := flag.Int("v", 0, "verbosity level 0-6")
	flag.Parse()

	if *deviceName == "" || *port == "" {
		flag.PrintDefaults()
		os.Exit(1)
	}

	logger := log.New(os.Stderr, "", log.LstdFlags)
	if *verbose == 0 {
		logger.SetOutput(io.Discard)
	}

	sess, err := updi.Open(*port, updi.Options{Baud: *baud, Logger: logger}, *deviceName, device.Default())
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
	defer sess.Close()

	if err := run(sess, runArgs{
		file:      *file,
		erase:     *erase,
		program:   *program,
		check:     *check,
		save:      *save,
		fuseSpec:  *fuseSpec,
		readSpec:  *readSpec,
		writeSpec: *writeSpec,
	}); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

type runArgs struct {
	file                          string
	erase, program, check, save   bool
	fuseSpec, readSpec, writeSpec string
}

// run dispatches the flag combination against sess in a fixed order:
// erase, program, check, save, fuse write, raw reads, raw write. This
// ordering is the CLI wrapper's policy, not the core's (spec.md §9:
// "the spec defines write_flash and read_flash as primitives and leaves
// erase-before-write as a policy of the CLI wrapper").
func run(sess *updi.Session, a runArgs) error {
	if err := sess.EnterProgmode(); err != nil {
		if errors.Is(err, updi.Locked) {
			if uerr := sess.Unlock(); uerr != nil {
				return fmt.Errorf("unlock: %w", uerr)
			}
		} else {
			return fmt.Errorf("enter progmode: %w", err)
		}
	}
	defer sess.LeaveProgmode()

	if a.erase {
		if err := sess.ChipErase(); err != nil {
			return fmt.Errorf("chip erase: %w", err)
		}
	}

	if a.program {
		if a.file == "" {
			return fmt.Errorf("-p requires -f")
		}
		img, err := hexfile.Parse(a.file)
		if err != nil {
			return fmt.Errorf("parse %s: %w", a.file, err)
		}
		if err := sess.WriteFlash(img.AddrFrom, img.Payload); err != nil {
			return fmt.Errorf("write flash: %w", err)
		}
	}

	if a.check {
		if a.file == "" {
			return fmt.Errorf("-k requires -f")
		}
		img, err := hexfile.Parse(a.file)
		if err != nil {
			return fmt.Errorf("parse %s: %w", a.file, err)
		}
		got, err := sess.ReadFlash(img.AddrFrom, len(img.Payload))
		if err != nil {
			return fmt.Errorf("read flash: %w", err)
		}
		for i := range img.Payload {
			if got[i] != img.Payload[i] {
				return fmt.Errorf("verify mismatch at offset %d: want %#02x got %#02x", i, img.Payload[i], got[i])
			}
		}
	}

	if a.save {
		if a.file == "" {
			return fmt.Errorf("-s requires -f")
		}
		info := sess.GetFlashInfo()
		got, err := sess.ReadFlash(info.Start, int(info.Size))
		if err != nil {
			return fmt.Errorf("read flash: %w", err)
		}
		if err := hexfile.Emit(a.file+".save", info.Start, got); err != nil {
			return fmt.Errorf("save %s: %w", a.file+".save", err)
		}
	}

	if a.fuseSpec != "" {
		idx, v, err := parseFuseSpec(a.fuseSpec)
		if err != nil {
			return err
		}
		if err := sess.WriteFuse(idx, v); err != nil {
			return fmt.Errorf("write fuse: %w", err)
		}
	}

	if a.readSpec != "" {
		reads, err := parseRawReads(a.readSpec)
		if err != nil {
			return err
		}
		for _, r := range reads {
			b, err := sess.ReadMem(r.addr, r.len)
			if err != nil {
				return fmt.Errorf("read %#x;%d: %w", r.addr, r.len, err)
			}
			fmt.Printf("%#06x: % x\n", r.addr, b)
		}
	}

	if a.writeSpec != "" {
		addr, data, err := parseRawWrite(a.writeSpec)
		if err != nil {
			return err
		}
		if err := sess.WriteMem(addr, data); err != nil {
			return fmt.Errorf("write %#x: %w", addr, err)
		}
	}

	return nil
}
