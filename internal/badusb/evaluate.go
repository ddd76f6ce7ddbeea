// USB Guardian: host-based USB intrusion detection and mitigation
// Copyright (C) 2026  USB Guardian contributors
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

// Package badusb is the BadUSB timing detector (C8): one worker per
// newly attached keyboard, measuring inter-keystroke intervals over a
// single-shot N_WINDOW-sample admission window.
package badusb

import "time"

// Verdict is the result of evaluating one observation window.
type Verdict struct {
	MeanIntervalMs float64
	WithinTol      int
	IsBadUSB       bool
}

// Evaluate implements spec §4.7 steps 2-5: given N_WINDOW millisecond
// press timestamps, compute the N_WINDOW-1 inter-arrival intervals,
// their mean, and how many fall within tolerance of the mean. A count
// strictly greater than threshold classifies the window as BadUSB.
func Evaluate(timestampsMs []int64, tolerance time.Duration, threshold int) Verdict {
	if len(timestampsMs) < 2 {
		return Verdict{}
	}
	intervals := make([]float64, 0, len(timestampsMs)-1)
	var sum float64
	for i := 1; i < len(timestampsMs); i++ {
		d := float64(timestampsMs[i] - timestampsMs[i-1])
		intervals = append(intervals, d)
		sum += d
	}
	mean := sum / float64(len(intervals))

	tolMs := float64(tolerance.Milliseconds())
	within := 0
	for _, d := range intervals {
		diff := d - mean
		if diff < 0 {
			diff = -diff
		}
		if diff < tolMs {
			within++
		}
	}

	return Verdict{
		MeanIntervalMs: mean,
		WithinTol:      within,
		IsBadUSB:       within > threshold,
	}
}
