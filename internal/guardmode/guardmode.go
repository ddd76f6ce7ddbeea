// USB Guardian: host-based USB intrusion detection and mitigation
// Copyright (C) 2026  USB Guardian contributors
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

// Package guardmode is the mode controller (C12): the top-level
// Idle/LockDown/SafeConnection state, and the ≈200ms tick loop that
// reconciles the USB census against the trust table and the
// pending-device registry.
package guardmode

import (
	"context"
	"os"
	"sync"
	"time"

	"usbguardian/internal/corelog"
	"usbguardian/internal/pending"
	"usbguardian/internal/trust"
)

// MonitorSupervisor is the subset of supervisor.Supervisor LockDown
// needs.
type MonitorSupervisor interface {
	Start()
	Stop()
}

// MediaTrigger schedules a media scan of a newly attached device's
// mount point once SafeConnection decides to act on it; the grace
// period and mount-path resolution are the trigger's concern, not the
// controller's (spec §4.8/§4.11).
type MediaTrigger interface {
	Trigger(id, name string)
}

// CensusFunc returns the current id -> name USB census (C5).
type CensusFunc func(ctx context.Context) (map[string]string, error)

// Controller owns LockDown and SafeConnection as independently
// toggled booleans (spec §4.11: "Idle, LockDown ..., SafeConnection
// ...", both individually switchable).
type Controller struct {
	Trust      *trust.Table
	Pending    *pending.Registry
	Bus        *corelog.Bus
	Supervisor MonitorSupervisor
	Media      MediaTrigger
	Census     CensusFunc

	// IsRoot is overridable for tests; defaults to a real euid check.
	IsRoot func() bool

	mu             sync.Mutex
	lockDown       bool
	safeConnection bool
	knownDevices   map[string]string
}

func NewController() *Controller {
	return &Controller{
		IsRoot:       func() bool { return os.Geteuid() == 0 },
		knownDevices: make(map[string]string),
	}
}

// EnableLockDown starts C11 (spec: privileged). Refused with a
// [SECURITY] log line when the process is not running as root.
func (c *Controller) EnableLockDown() error {
	if !c.IsRoot() {
		if c.Bus != nil {
			c.Bus.Append("[SECURITY] refused to enable LockDown: process is not running as root")
		}
		return errNotRoot
	}
	c.mu.Lock()
	c.lockDown = true
	c.mu.Unlock()
	if c.Supervisor != nil {
		c.Supervisor.Start()
	}
	if c.Bus != nil {
		c.Bus.Append("[INFO] LockDown enabled")
	}
	return nil
}

// DisableLockDown stops C11. Unprivileged, like the rest of disabling
// a defensive posture.
func (c *Controller) DisableLockDown() {
	c.mu.Lock()
	c.lockDown = false
	c.mu.Unlock()
	if c.Supervisor != nil {
		c.Supervisor.Stop()
	}
	if c.Bus != nil {
		c.Bus.Append("[INFO] LockDown disabled")
	}
}

// EnableSafeConnection and DisableSafeConnection toggle the
// unprivileged media-scan-on-mount behavior.
func (c *Controller) EnableSafeConnection() {
	c.mu.Lock()
	c.safeConnection = true
	c.mu.Unlock()
	if c.Bus != nil {
		c.Bus.Append("[INFO] SafeConnection enabled")
	}
}

func (c *Controller) DisableSafeConnection() {
	c.mu.Lock()
	c.safeConnection = false
	c.mu.Unlock()
	if c.Bus != nil {
		c.Bus.Append("[INFO] SafeConnection disabled")
	}
}

func (c *Controller) LockDown() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lockDown
}

func (c *Controller) SafeConnection() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.safeConnection
}

// Tick runs one reconciliation pass of the §4.11 algorithm:
//  1. current = census
//  2. every (id, name) in current, not trusted and not already known: alert,
//     optionally schedule a media scan, add to the pending registry.
//  3. every previously-known id now absent from current: drop its pending slot.
//  4. known_devices := current's id set.
func (c *Controller) Tick(ctx context.Context) error {
	if c.Census == nil {
		return nil
	}
	current, err := c.Census(ctx)
	if err != nil {
		if c.Bus != nil {
			c.Bus.Append("[WARN] USB census failed: %v", err)
		}
		return err
	}

	c.mu.Lock()
	safe := c.safeConnection
	known := c.knownDevices
	c.mu.Unlock()

	for id, name := range current {
		if _, alreadyKnown := known[id]; alreadyKnown {
			continue
		}
		if c.Trust != nil && c.Trust.Contains(id) {
			continue
		}

		if c.Bus != nil {
			c.Bus.Append("[ALERT] unknown device attached: %s (%s)", id, name)
		}
		if safe && c.Media != nil {
			c.Media.Trigger(id, name)
		}
		if c.Pending != nil {
			c.Pending.Add(pending.Entry{ID: id, Name: name})
		}
	}

	for id := range known {
		if _, stillPresent := current[id]; stillPresent {
			continue
		}
		if c.Pending != nil {
			c.Pending.RemoveByID(id)
		}
	}

	c.mu.Lock()
	c.knownDevices = current
	c.mu.Unlock()
	return nil
}

// Run blocks, ticking every ≈200ms until ctx is done (spec §5: "The
// mode-tick blocks on its event channel with a 200 ms timeout").
func (c *Controller) Run(ctx context.Context) {
	const tickInterval = 200 * time.Millisecond
	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.Tick(ctx)
		}
	}
}

type modeError string

func (e modeError) Error() string { return string(e) }

const errNotRoot modeError = "lockdown requires root privileges"
