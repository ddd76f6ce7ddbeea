// USB Guardian: host-based USB intrusion detection and mitigation
// Copyright (C) 2026  USB Guardian contributors
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

// Package notify delivers best-effort desktop notifications over the
// freedesktop.org Notifications D-Bus interface, the mechanism behind
// canonical-snapd's desktop/notification backend.
package notify

import "github.com/godbus/dbus/v5"

const (
	notificationsDest = "org.freedesktop.Notifications"
	notificationsPath = "/org/freedesktop/Notifications"

	// alertIcon is the freedesktop icon name for every guardian alert
	// (spec §6: notification payload is {summary, body, icon="dialog-warning"}).
	alertIcon = "dialog-warning"
)

// Desktop sends notifications over the session bus. Construction
// failures (no session bus available, e.g. headless CI) are reported
// by NewDesktop; after that, Notify failures are swallowed by callers
// per spec ("desktop notification delivery is best-effort... failures
// must not affect core state").
type Desktop struct {
	conn    *dbus.Conn
	appName string
}

// NewDesktop connects to the session bus. Callers that get an error
// here should fall back to a nil *Desktop (whose Notify is a no-op)
// rather than failing startup.
func NewDesktop(appName string) (*Desktop, error) {
	conn, err := dbus.ConnectSessionBus()
	if err != nil {
		return nil, err
	}
	return &Desktop{conn: conn, appName: appName}, nil
}

// Notify sends a transient notification. A nil receiver is a
// documented no-op, so callers can construct Desktop once at startup
// and ignore connection failure without branching at every call site.
func (d *Desktop) Notify(summary, body string) error {
	if d == nil || d.conn == nil {
		return nil
	}
	obj := d.conn.Object(notificationsDest, dbus.ObjectPath(notificationsPath))
	call := obj.Call(notificationsDest+".Notify", 0,
		d.appName,                 // app_name
		uint32(0),                 // replaces_id
		alertIcon,                 // app_icon
		summary,                   // summary
		body,                      // body
		[]string{},                // actions
		map[string]dbus.Variant{}, // hints
		int32(5000),               // expire_timeout (ms)
	)
	return call.Err
}

func (d *Desktop) Close() error {
	if d == nil || d.conn == nil {
		return nil
	}
	return d.conn.Close()
}
