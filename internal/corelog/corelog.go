// USB Guardian: host-based USB intrusion detection and mitigation
// Copyright (C) 2026  USB Guardian contributors
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

// Package corelog provides the log bus (C1): an unbounded, mutex-guarded
// list of timestamped strings that any number of goroutines may append
// to, with drain-on-read semantics, plus the process-wide operational logger used by
// subsystems that need to log to stderr independent of the bus.
package corelog

import (
	"fmt"
	"log"
	"os"
	"sync"
	"time"
)

// Bus is a drain-on-read append log. Append is non-blocking to
// producers; Drain atomically takes the current contents and empties
// the buffer. The zero value is ready to use; NewBus returns one.
type Bus struct {
	mu      sync.Mutex
	records []string
}

func NewBus() *Bus {
	return &Bus{}
}

// Append assigns a timestamp in local time and appends the line.
func (b *Bus) Append(format string, args ...interface{}) {
	line := fmt.Sprintf(format, args...)
	stamped := fmt.Sprintf("[%s] %s", time.Now().Format("15:04:05"), line)
	b.mu.Lock()
	b.records = append(b.records, stamped)
	b.mu.Unlock()
}

// Drain returns every record appended since the previous drain and
// clears the buffer, atomically with respect to concurrent Append
// calls.
func (b *Bus) Drain() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.records) == 0 {
		return nil
	}
	out := b.records
	b.records = nil
	return out
}

// Len reports the number of undrained records, mainly for tests.
func (b *Bus) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.records)
}

var (
	processLogger     *log.Logger
	processLoggerOnce sync.Once
)

// Process returns the singleton process-wide logger, lazily
// constructed on first use. Mirrors the teacher's FileLogger/sync.Once
// pattern, but writes to stderr since the guardian's operator-facing
// stream is the Bus, not a file.
func Process() *log.Logger {
	processLoggerOnce.Do(func() {
		processLogger = log.New(os.Stderr, "[guardian] ", log.LstdFlags)
	})
	return processLogger
}
