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
)

// backspaceSentinel is what keycodeToChar returns for KEY_BACKSPACE.
// Callers collapse consecutive sentinels into a single newline rather
// than writing them verbatim.
const backspaceSentinel = "\x00"

// keycodeToChar maps the Linux evdev keycodes (input-event-codes.h)
// that a plain keyboard can send to the character an audit log should
// record for it. Keys with no printable mapping (modifiers, function
// row, arrows, ...) are simply absent and ignored by the caller.
var keycodeToChar = map[uint16]string{
	2: "1", 3: "2", 4: "3", 5: "4", 6: "5", 7: "6", 8: "7", 9: "8", 10: "9", 11: "0",
	12: "-", 13: "=", 14: backspaceSentinel, 15: "\t",
	16: "q", 17: "w", 18: "e", 19: "r", 20: "t", 21: "y", 22: "u", 23: "i", 24: "o", 25: "p",
	26: "[", 27: "]", 28: "\n",
	30: "a", 31: "s", 32: "d", 33: "f", 34: "g", 35: "h", 36: "j", 37: "k", 38: "l",
	39: ";", 40: "'", 41: "`",
	43: "\\",
	44: "z", 45: "x", 46: "c", 47: "v", 48: "b", 49: "n", 50: "m",
	51: ",", 52: ".", 53: "/",
	57: " ",
}

// AuditLog appends printable keystrokes to a 0600 audit file, one
// header line per worker start, collapsing consecutive backspaces
// into a single newline instead of erasing prior output (spec §4.7,
// §6).
type AuditLog struct {
	file          *os.File
	pendingErases bool
}

// OpenAuditLog creates (if needed) and opens path in append-only mode,
// then writes the worker's header line.
func OpenAuditLog(path, devnode string) (*AuditLog, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return nil, err
	}
	header := fmt.Sprintf("[%s] Starting listening for events on the device with path: %s\n",
		time.Now().Format("2006-01-02 15:04:05"), devnode)
	if _, err := f.WriteString(header); err != nil {
		f.Close()
		return nil, err
	}
	return &AuditLog{file: f}, nil
}

// RecordKeycode writes the character (if any) keycode maps to,
// collapsing a run of backspaces into one trailing newline.
func (a *AuditLog) RecordKeycode(keycode uint16) {
	ch, ok := keycodeToChar[keycode]
	if !ok {
		return
	}
	if ch == backspaceSentinel {
		a.pendingErases = true
		return
	}
	if a.pendingErases {
		a.file.WriteString("\n")
		a.pendingErases = false
	}
	a.file.WriteString(ch)
}

func (a *AuditLog) Close() error {
	return a.file.Close()
}
