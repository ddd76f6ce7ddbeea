// USB Guardian: host-based USB intrusion detection and mitigation
// Copyright (C) 2026  USB Guardian contributors
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

// Command guardiand wires up and runs the Guardian core. It carries no
// CLI argument parsing and no terminal UI — both are out-of-scope
// external collaborators (spec §1) that drive this process over the
// log bus and the trusted-device table.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"usbguardian/internal/app"
	"usbguardian/internal/config"
)

func main() {
	cfg := *config.Load()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Println("shutdown signal received")
		cancel()
	}()

	g := app.New(cfg)
	g.LoadHashes(ctx)

	if err := g.Bootstrap(ctx); err != nil {
		log.Printf("bootstrap from USB census failed, starting with an empty trust table: %v", err)
	}

	g.Run(ctx)
}
