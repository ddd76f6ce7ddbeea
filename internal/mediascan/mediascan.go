// USB Guardian: host-based USB intrusion detection and mitigation
// Copyright (C) 2026  USB Guardian contributors
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

// Package mediascan is the media scanner (C9): given a mount path, it
// walks every regular file, hashes it, and alerts on any match against
// the malicious-hash set. Scans run to completion once started; they
// are not individually cancellable (spec §5).
package mediascan

import (
	"crypto/sha256"
	"encoding/hex"
	"io"
	"os"
	"path/filepath"

	"usbguardian/internal/corelog"
	"usbguardian/internal/hashset"
)

// Scanner recursively hashes files under a root and alerts on matches
// against a shared, read-only hash set.
type Scanner struct {
	Hashes *hashset.Set
	Bus    *corelog.Bus
}

// Scan walks root, hashing every regular file it can open and read.
// File-open/read errors skip the offending entry rather than aborting
// the scan (spec §4.12). Returns the number of files hashed and the
// number of matches found.
func (s *Scanner) Scan(root string) (scanned int, matched int) {
	if s.Hashes != nil && s.Hashes.Len() == 0 {
		if s.Bus != nil {
			s.Bus.Append("[WARN] media scan of %s skipped: no hashes to compare", root)
		}
		return 0, 0
	}

	filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return nil // skip the offending entry, keep walking
		}
		if info.IsDir() {
			return nil
		}
		if !info.Mode().IsRegular() {
			return nil
		}

		digest, herr := hashFile(path)
		if herr != nil {
			return nil
		}
		scanned++

		if s.Hashes != nil && s.Hashes.Contains(digest) {
			matched++
			if s.Bus != nil {
				s.Bus.Append("[ALERT] %s matches known-malicious hash %s", path, digest)
			}
		}
		return nil
	})

	return scanned, matched
}

// ScanDetached launches Scan in its own goroutine so the caller (the
// mode controller's tick loop) stays responsive (spec §4.8: "launched
// in a detached worker").
func (s *Scanner) ScanDetached(root string) {
	go s.Scan(root)
}

func hashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
