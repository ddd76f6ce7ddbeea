// USB Guardian: host-based USB intrusion detection and mitigation
// Copyright (C) 2026  USB Guardian contributors
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

// Package usbcensus is the USB census (C5): it enumerates currently
// attached USB devices as an id -> name mapping. The canonical source
// is the system's USB listing (lsusb-equivalent); gousb is used to
// opportunistically enrich descriptive names from the libusb
// descriptor when the device is directly openable.
package usbcensus

import (
	"bufio"
	"context"
	"io"
	"os/exec"
	"strings"

	"github.com/google/gousb"
)

// ParseLsusbOutput applies the spec §4.4 parsing rule: split each
// device line at the token "ID", take the next whitespace-token as
// id, the remainder as name. Pure function, no caching, so it is
// testable without invoking lsusb.
func ParseLsusbOutput(r io.Reader) map[string]string {
	result := make(map[string]string)
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		idx := -1
		for i, f := range fields {
			if f == "ID" {
				idx = i
				break
			}
		}
		if idx == -1 || idx+1 >= len(fields) {
			continue
		}
		id := strings.ToLower(fields[idx+1])
		if id == "" {
			continue
		}
		result[id] = strings.TrimSpace(strings.Join(fields[idx+2:], " "))
	}
	return result
}

// Census runs the system's USB listing command and returns its
// id -> name mapping, enriched (best effort) with libusb descriptor
// strings where gousb can open the device directly.
func Census(ctx context.Context) (map[string]string, error) {
	cmd := exec.CommandContext(ctx, "lsusb")
	out, err := cmd.Output()
	if err != nil {
		return nil, err
	}
	devices := ParseLsusbOutput(strings.NewReader(string(out)))
	enrich(devices)
	return devices, nil
}

// enrich opportunistically replaces a bare/empty lsusb name with the
// libusb manufacturer+product descriptor strings. Any failure
// (permission denied, device claimed by another driver, no
// descriptor) is ignored — this is pure enrichment, the id->name
// mapping from lsusb is already complete without it.
func enrich(devices map[string]string) {
	wanted := make(map[string]bool)
	for id, name := range devices {
		if name == "" {
			wanted[id] = true
		}
	}
	if len(wanted) == 0 {
		return
	}

	ctx := gousb.NewContext()
	defer ctx.Close()

	opened, _ := ctx.OpenDevices(func(desc *gousb.DeviceDesc) bool {
		id := strings.ToLower(desc.Vendor.String() + ":" + desc.Product.String())
		return wanted[id]
	})
	for _, dev := range opened {
		id := strings.ToLower(dev.Desc.Vendor.String() + ":" + dev.Desc.Product.String())
		manufacturer, _ := dev.Manufacturer()
		product, _ := dev.Product()
		if name := strings.TrimSpace(manufacturer + " " + product); name != "" {
			devices[id] = name
		}
		dev.Close()
	}
}
