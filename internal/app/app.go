// USB Guardian: host-based USB intrusion detection and mitigation
// Copyright (C) 2026  USB Guardian contributors
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

// Package app wires every core component together into one running
// Guardian, the way cmd/guardiand's main is meant to stay thin.
package app

import (
	"context"
	"time"

	"usbguardian/internal/badusb"
	"usbguardian/internal/config"
	"usbguardian/internal/corelog"
	"usbguardian/internal/devicemonitor"
	"usbguardian/internal/guardmode"
	"usbguardian/internal/hashfeed"
	"usbguardian/internal/hashset"
	"usbguardian/internal/mediascan"
	"usbguardian/internal/notify"
	"usbguardian/internal/pending"
	"usbguardian/internal/procscan"
	"usbguardian/internal/supervisor"
	"usbguardian/internal/trust"
	"usbguardian/internal/usbcensus"
)

// Guardian owns every C1-C12 component and the wiring between them.
type Guardian struct {
	Cfg config.GuardianConfig

	Bus     *corelog.Bus
	Trust   *trust.Table
	Hashes  *hashset.Set
	Feed    *hashfeed.Loader
	Pending *pending.Registry
	Media   *mediascan.Scanner
	Proc    *procscan.Scanner
	Desktop *notify.Desktop

	Supervisor *supervisor.Supervisor
	Mode       *guardmode.Controller
}

// New builds a Guardian from cfg, wiring every component but not yet
// starting any background activity.
func New(cfg config.GuardianConfig) *Guardian {
	g := &Guardian{
		Cfg:     cfg,
		Bus:     corelog.NewBus(),
		Trust:   trust.NewTable(),
		Hashes:  hashset.NewSet(),
		Pending: pending.NewRegistry(cfg.PendingCapacity),
	}

	g.Feed = hashfeed.NewLoader(cfg.HashFilePath, cfg.HashFeedURL, cfg.HashFreshness, hashfeed.NewHTTPFetcher(), g.Bus)
	g.Media = &mediascan.Scanner{Hashes: g.Hashes, Bus: g.Bus}

	desktop, err := notify.NewDesktop("USB Guardian")
	if err != nil {
		g.Bus.Append("[WARN] desktop notifications unavailable: %v", err)
		desktop = nil
	}
	g.Desktop = desktop

	g.Proc = &procscan.Scanner{
		Lister:   procscan.GopsutilLister{},
		Bus:      g.Bus,
		Notifier: g.Desktop,
		Period:   cfg.ProcessScanEvery,
	}

	devMonitor := &devicemonitor.Monitor{
		Trust: g.Trust,
		Bus:   g.Bus,
		Spawn: g.spawnBadUSBWorker,
	}

	g.Supervisor = &supervisor.Supervisor{
		Device:  devMonitor,
		Process: g.Proc,
		Bus:     g.Bus,
	}

	g.Mode = guardmode.NewController()
	g.Mode.Trust = g.Trust
	g.Mode.Pending = g.Pending
	g.Mode.Bus = g.Bus
	g.Mode.Supervisor = g.Supervisor
	g.Mode.Census = usbcensus.Census
	g.Mode.Media = mediaTriggerFunc(g.triggerMediaScan)

	return g
}

// spawnBadUSBWorker is devicemonitor's SpawnFunc: it builds and runs a
// C8 worker for one newly attached keyboard, blocking the calling
// goroutine (which devicemonitor.Monitor already tracks) until the
// worker reaches its single-shot verdict or the device disappears.
func (g *Guardian) spawnBadUSBWorker(devnode, usbSysname, name string) {
	w := &badusb.Worker{
		Devnode:    devnode,
		USBSysname: usbSysname,
		Name:       name,
		Bus:        g.Bus,
		Cfg: badusb.Config{
			Window:    g.Cfg.BadUSBWindow,
			Tolerance: g.Cfg.BadUSBTolerance,
			Threshold: g.Cfg.BadUSBThreshold,
			AuditPath: g.Cfg.AuditLogPath,
		},
	}
	verdict, err := w.Run(g.Supervisor.Running)
	if err != nil {
		g.Bus.Append("[WARN] BadUSB worker for %s exited: %v", devnode, err)
		return
	}
	if !verdict.IsBadUSB {
		g.Bus.Append("[INFO] %s (%s) passed BadUSB timing check", devnode, name)
	}
}

// triggerMediaScan implements the SafeConnection grace-period trigger
// (spec §4.8): wait for the kernel to finish mounting, then scan every
// non-whitelisted subdirectory of the user's media root. Directories
// that were already mounted before this device attached are not told
// apart from new ones; they are scanned again as well.
func (g *Guardian) triggerMediaScan(id, name string) {
	go func() {
		time.Sleep(2500 * time.Millisecond)
		root := mediascan.UserMountRoot(g.Cfg.MediaRoot, config.MountUser())
		candidates, err := mediascan.CandidateMounts(root, g.Cfg.WhitelistPaths)
		if err != nil {
			g.Bus.Append("[WARN] could not list media mounts for %s: %v", id, err)
			return
		}
		for _, path := range candidates {
			g.Media.ScanDetached(path)
		}
	}()
}

type mediaTriggerFunc func(id, name string)

func (f mediaTriggerFunc) Trigger(id, name string) { f(id, name) }

// Bootstrap populates the trust table once at startup from the
// current USB census, before the first tick (SUPPLEMENTED FEATURES
// item 4: bootstrap-from-census-on-first-run).
func (g *Guardian) Bootstrap(ctx context.Context) error {
	current, err := usbcensus.Census(ctx)
	if err != nil {
		g.Bus.Append("[WARN] startup USB census failed: %v", err)
		return err
	}
	for id, name := range current {
		g.Trust.Insert(id, name)
	}
	g.Bus.Append("[INFO] bootstrapped trust table with %d attached devices", len(current))
	return nil
}

// LoadHashes performs the C4 load-exactly-once-per-boot sequence.
func (g *Guardian) LoadHashes(ctx context.Context) {
	g.Feed.EnsureFresh(ctx)
	if err := g.Feed.LoadOnce(g.Hashes); err != nil {
		g.Bus.Append("[WARN] hash database unavailable: %v", err)
	}
}

// Run starts the mode controller's tick loop and blocks until ctx is
// done, then stops the monitor supervisor so no worker outlives
// shutdown.
func (g *Guardian) Run(ctx context.Context) {
	g.Mode.Run(ctx)
	g.Supervisor.Stop()
	if g.Desktop != nil {
		g.Desktop.Close()
	}
}
