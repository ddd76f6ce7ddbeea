// USB Guardian: host-based USB intrusion detection and mitigation
// Copyright (C) 2026  USB Guardian contributors
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

package badusb

import (
	"fmt"
	"os"
	"time"

	"github.com/gvalkov/golang-evdev"
	"golang.org/x/sys/unix"

	"usbguardian/internal/corelog"
)

const (
	keyEventDown = 1
	pollMillis   = 50
)

// Config bundles the tunables a Worker needs, pulled from
// config.GuardianConfig so this package never imports it directly
// (keeping the dependency direction inward, like the teacher's device
// workers taking plain values rather than the whole app config).
type Config struct {
	Window    int
	Tolerance time.Duration
	Threshold int
	AuditPath string
}

// Worker owns one evdev keyboard device for its whole lifetime: it
// reads key-down events until it has collected Window timestamps,
// evaluates the window exactly once, and exits — win or lose, it never
// rearms (spec §4.7: "single-shot, no rearm").
type Worker struct {
	Devnode    string
	USBSysname string
	Name       string
	Bus        *corelog.Bus
	Cfg        Config
}

// Run blocks until either a verdict is reached, the device is
// unplugged (read error), or running() returns false. It returns the
// final verdict; IsBadUSB workers have already revoked the device and
// logged before returning.
func (w *Worker) Run(running func() bool) (Verdict, error) {
	dev, err := evdev.Open(w.Devnode)
	if err != nil {
		return Verdict{}, err
	}
	defer dev.File.Close()

	audit, err := OpenAuditLog(w.Cfg.AuditPath, w.Devnode)
	if err != nil {
		return Verdict{}, err
	}
	defer audit.Close()

	pollFds := []unix.PollFd{{Fd: int32(dev.File.Fd()), Events: unix.POLLIN}}
	timestamps := make([]int64, 0, w.Cfg.Window)

	for running() {
		n, perr := unix.Poll(pollFds, pollMillis)
		if perr != nil {
			if perr == unix.EINTR {
				continue
			}
			return Verdict{}, perr
		}
		if n == 0 {
			continue
		}

		ev, rerr := dev.ReadOne()
		if rerr != nil {
			return Verdict{}, rerr
		}
		if ev.Type != evdev.EV_KEY || ev.Value != keyEventDown {
			continue
		}

		audit.RecordKeycode(ev.Code)

		timestamps = append(timestamps, time.Now().UnixMilli())
		if len(timestamps) < w.Cfg.Window {
			continue
		}

		verdict := Evaluate(timestamps, w.Cfg.Tolerance, w.Cfg.Threshold)
		if verdict.IsBadUSB {
			w.revoke()
		}
		return verdict, nil
	}
	return Verdict{}, nil
}

// revoke writes "0" to the device's sysfs authorized attribute,
// deauthorizing it at the USB-core level (spec §4.7 mitigation step).
func (w *Worker) revoke() {
	if w.USBSysname == "" {
		if w.Bus != nil {
			w.Bus.Append("[SECURITY] BadUSB detected on %s but no USB ancestor was found; cannot revoke", w.Devnode)
		}
		return
	}
	path := fmt.Sprintf("/sys/bus/usb/devices/%s/authorized", w.USBSysname)
	if err := os.WriteFile(path, []byte("0"), 0o200); err != nil {
		if w.Bus != nil {
			w.Bus.Append("[SECURITY] BadUSB detected on %s (%s) but revocation failed: %v", w.Devnode, w.Name, err)
		}
		return
	}
	if w.Bus != nil {
		w.Bus.Append("[SECURITY] BadUSB detected on %s (%s); device revoked at %s", w.Devnode, w.Name, path)
	}
}
