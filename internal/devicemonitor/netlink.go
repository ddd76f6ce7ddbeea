// USB Guardian: host-based USB intrusion detection and mitigation
// Copyright (C) 2026  USB Guardian contributors
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

// Package devicemonitor is the device-event monitor (C7): it listens
// on the kernel's AF_NETLINK/NETLINK_KOBJECT_UEVENT socket (the real
// mechanism behind udev) for "add" events carrying
// ID_INPUT_KEYBOARD=1, and spawns a BadUSB timing worker per match.
package devicemonitor

import (
	"regexp"
	"strings"

	"golang.org/x/sys/unix"
)

const (
	netlinkKobjectUevent = 15
	ueventBufferSize     = 2048
	// pollIntervalMillis bounds the worst-case shutdown latency (spec
	// §4.6/§5): the read loop must notice a cleared running flag
	// within one poll interval.
	pollIntervalMillis = 50
)

// Event is a parsed kernel uevent.
type Event struct {
	Action string
	Props  map[string]string
}

// IsKeyboardAdd reports whether this event is an "add" for a device
// advertising ID_INPUT_KEYBOARD=1.
func (e Event) IsKeyboardAdd() bool {
	return e.Action == "add" && e.Props["ID_INPUT_KEYBOARD"] == "1"
}

// Name returns the NAME property with surrounding quotes/whitespace
// stripped, per spec §4.6 step 1.
func (e Event) Name() string {
	return strings.Trim(strings.TrimSpace(e.Props["NAME"]), `"`)
}

// Devnode returns the absolute /dev path for this event's device node,
// derived from the DEVNAME property (spec §4.6 step 4).
func (e Event) Devnode() string {
	devname := e.Props["DEVNAME"]
	if devname == "" {
		return ""
	}
	if strings.HasPrefix(devname, "/") {
		return devname
	}
	return "/dev/" + devname
}

var usbBusAddress = regexp.MustCompile(`^\d+-[0-9.]+(:[0-9.]+)?$`)

// USBAncestorSysname walks DEVPATH looking for the nearest path
// segment shaped like a USB bus address (e.g. "1-2" or "1-2:1.0"),
// which is how sysfs names the USB ancestor of an input device (spec
// §4.6 step 3). Returns "" if none is found.
func (e Event) USBAncestorSysname() string {
	devpath := e.Props["DEVPATH"]
	if devpath == "" {
		return ""
	}
	segments := strings.Split(strings.Trim(devpath, "/"), "/")
	for i := len(segments) - 1; i >= 0; i-- {
		if usbBusAddress.MatchString(segments[i]) {
			return segments[i]
		}
	}
	return ""
}

func parseUevent(raw []byte) Event {
	props := make(map[string]string)
	action := ""
	for _, part := range strings.Split(string(raw), "\x00") {
		if part == "" || strings.HasPrefix(part, "SEQNUM=") {
			continue
		}
		fields := strings.SplitN(part, "=", 2)
		if len(fields) != 2 {
			// The first null-terminated field is the classic
			// "<action>@<devpath>" summary line, not a KEY=VALUE pair.
			if action == "" && strings.Contains(part, "@") {
				action = strings.SplitN(part, "@", 2)[0]
			}
			continue
		}
		props[fields[0]] = fields[1]
	}
	if action == "" {
		action = props["ACTION"]
	}
	return Event{Action: action, Props: props}
}

// openSocket binds an AF_NETLINK/NETLINK_KOBJECT_UEVENT socket,
// grounded on the kobject-uevent listener pattern in
// other_examples/169ee609_captainwasabi-lxd__lxd-devices.go.go.
func openSocket() (int, error) {
	fd, err := unix.Socket(unix.AF_NETLINK, unix.SOCK_RAW|unix.SOCK_CLOEXEC, netlinkKobjectUevent)
	if err != nil {
		return -1, err
	}
	addr := &unix.SockaddrNetlink{Family: unix.AF_NETLINK, Groups: 1}
	if err := unix.Bind(fd, addr); err != nil {
		unix.Close(fd)
		return -1, err
	}
	return fd, nil
}

// ReadLoop blocks reading uevents, calling onEvent for each one, until
// running() returns false. It polls with a bounded timeout so
// cancellation is prompt (spec §4.6/§5).
func ReadLoop(running func() bool, onEvent func(Event)) error {
	fd, err := openSocket()
	if err != nil {
		return err
	}
	defer unix.Close(fd)

	buf := make([]byte, ueventBufferSize*2)
	pollFds := []unix.PollFd{{Fd: int32(fd), Events: unix.POLLIN}}

	for running() {
		n, err := unix.Poll(pollFds, pollIntervalMillis)
		if err != nil {
			if err == unix.EINTR {
				continue
			}
			return err
		}
		if n == 0 {
			continue // timed out; re-check running()
		}
		r, err := unix.Read(fd, buf)
		if err != nil {
			continue
		}
		onEvent(parseUevent(buf[:r]))
	}
	return nil
}
