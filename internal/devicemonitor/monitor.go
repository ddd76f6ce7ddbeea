// USB Guardian: host-based USB intrusion detection and mitigation
// Copyright (C) 2026  USB Guardian contributors
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

package devicemonitor

import (
	"sync"

	"usbguardian/internal/corelog"
	"usbguardian/internal/trust"
)

// SpawnFunc starts a C8 BadUSB worker for the given device and blocks
// until that worker exits. Monitor calls it in its own goroutine and
// tracks it for Wait.
type SpawnFunc func(devnode, usbSysname, name string)

// Monitor ties the raw netlink read loop to trust-table filtering and
// worker spawning (spec §4.6).
type Monitor struct {
	Trust *trust.Table
	Bus   *corelog.Bus
	Spawn SpawnFunc

	wg sync.WaitGroup
}

// Run blocks in the netlink read loop until running() returns false.
// Every matched, untrusted keyboard attach spawns a tracked worker.
func (m *Monitor) Run(running func() bool) error {
	if m.Bus != nil {
		m.Bus.Append("[INFO] device monitor listening for keyboard attach events")
	}
	err := ReadLoop(running, func(ev Event) {
		if !ev.IsKeyboardAdd() {
			return
		}
		name := ev.Name()
		if name != "" && m.Trust != nil && m.Trust.ContainsName(name) {
			return
		}
		devnode := ev.Devnode()
		if devnode == "" {
			return
		}
		sysname := ev.USBAncestorSysname()

		m.wg.Add(1)
		go func() {
			defer m.wg.Done()
			if m.Spawn != nil {
				m.Spawn(devnode, sysname, name)
			}
		}()
	})
	if m.Bus != nil {
		m.Bus.Append("[INFO] device monitor stopped")
	}
	return err
}

// Wait blocks until every worker spawned by Run has exited. Callers
// must call Wait only after Run has returned (i.e. after running()
// became false), or new workers may still be starting.
func (m *Monitor) Wait() {
	m.wg.Wait()
}
