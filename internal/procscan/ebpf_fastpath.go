// USB Guardian: host-based USB intrusion detection and mitigation
// Copyright (C) 2026  USB Guardian contributors
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

package procscan

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"strings"

	"github.com/cilium/ebpf"
	"github.com/cilium/ebpf/link"
	"github.com/cilium/ebpf/ringbuf"
	"github.com/cilium/ebpf/rlimit"
)

// ExecEvent mirrors the record a sched_process_exec tracepoint program
// would push into the ring buffer: a PID and a fixed-width comm.
type ExecEvent struct {
	PID  uint32
	Comm [16]byte
}

// Name trims ExecEvent's fixed-width comm to a Go string.
func (e ExecEvent) Name() string {
	return strings.TrimRight(string(e.Comm[:]), "\x00")
}

// bpfObjects holds the programs/maps a tracepoint object file would
// provide. Loading is a stub pending bpf2go-generated skeletons, the
// same placeholder shape the teacher's own eBPF driver stub uses.
type bpfObjects struct {
	TraceExec  *ebpf.Program `ebpf:"trace_process_exec"`
	ExecEvents *ebpf.Map     `ebpf:"exec_events"`
}

func (o *bpfObjects) Close() error {
	if o.TraceExec != nil {
		o.TraceExec.Close()
	}
	if o.ExecEvents != nil {
		o.ExecEvents.Close()
	}
	return nil
}

// loadBpfObjects loads the tracepoint program and its ring buffer map
// (stub). A real deployment replaces this with the bpf2go-generated
// loader for a compiled sched_process_exec.bpf.c.
func loadBpfObjects(obj *bpfObjects) error {
	return nil
}

// FastPath attaches a sched_process_exec tracepoint and reports every
// newly-exec'd process by name, immediately rather than waiting out
// the periodic poll interval (spec §4.9 optional fast path).
type FastPath struct {
	objs   bpfObjects
	tpLink link.Link
	reader *ringbuf.Reader
}

// NewFastPath attaches the tracepoint. Callers that don't have
// CAP_BPF, or whose kernel lacks a loaded object (loadBpfObjects is
// currently a stub), should treat a non-nil error as "fast path
// unavailable, fall back to periodic scanning only".
func NewFastPath() (*FastPath, error) {
	if err := rlimit.RemoveMemlock(); err != nil {
		return nil, fmt.Errorf("remove memlock rlimit: %w", err)
	}

	objs := bpfObjects{}
	if err := loadBpfObjects(&objs); err != nil {
		return nil, fmt.Errorf("load tracepoint objects: %w", err)
	}

	tp, err := link.Tracepoint("sched", "sched_process_exec", objs.TraceExec, nil)
	if err != nil {
		objs.Close()
		return nil, fmt.Errorf("attach sched_process_exec tracepoint: %w", err)
	}

	reader, err := ringbuf.NewReader(objs.ExecEvents)
	if err != nil {
		tp.Close()
		objs.Close()
		return nil, fmt.Errorf("open ring buffer reader: %w", err)
	}

	return &FastPath{objs: objs, tpLink: tp, reader: reader}, nil
}

// Run blocks, decoding ring buffer records and invoking onExec for
// every one whose process name matches the malicious-name watch list.
// It returns when the reader is closed (via Close, from another
// goroutine).
func (f *FastPath) Run(onExec func(Record)) error {
	for {
		record, err := f.reader.Read()
		if err != nil {
			return err
		}
		var ev ExecEvent
		if err := binary.Read(bytes.NewReader(record.RawSample), binary.LittleEndian, &ev); err != nil {
			continue
		}
		rec := Evaluate(Proc{PID: int32(ev.PID), Name: ev.Name()})
		if rec.Suspicious {
			onExec(rec)
		}
	}
}

func (f *FastPath) Close() error {
	if f.reader != nil {
		f.reader.Close()
	}
	if f.tpLink != nil {
		f.tpLink.Close()
	}
	return f.objs.Close()
}
