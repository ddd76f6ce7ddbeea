// USB Guardian: host-based USB intrusion detection and mitigation
// Copyright (C) 2026  USB Guardian contributors
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

package mediascan

import (
	"os"
	"path/filepath"
)

// UserMountRoot builds the "/media/<user>" path new removable media
// mounts under (spec §4.8).
func UserMountRoot(mediaRoot, user string) string {
	return filepath.Join(mediaRoot, user)
}

// CandidateMounts lists the immediate subdirectories of root that are
// not named in whitelist, i.e. the set SafeConnection mode should
// scan. A missing root (no media mounted yet) yields an empty, non-error
// result.
func CandidateMounts(root string, whitelist []string) ([]string, error) {
	entries, err := os.ReadDir(root)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	skip := make(map[string]struct{}, len(whitelist))
	for _, w := range whitelist {
		skip[w] = struct{}{}
	}

	var out []string
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		full := filepath.Join(root, e.Name())
		if _, excluded := skip[full]; excluded {
			continue
		}
		if _, excluded := skip[e.Name()]; excluded {
			continue
		}
		out = append(out, full)
	}
	return out, nil
}
