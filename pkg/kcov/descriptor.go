// Copyright 2025 the kcov authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package kcov

import (
	"sync"
	"sync/atomic"
)

// Descriptor is a single coverage-collection session: the Go-native
// equivalent of the kernel's "struct kcov" (one per opened debugfs file).
// See spec.md §3–§4.1 for the state machine it implements.
//
// mode, remoteSize, and sequence are atomic: RemoteStart snapshots them
// while holding only the registry lock, never mu. See Registry.RemoteStart.
type Descriptor struct {
	mu sync.Mutex

	mode       atomic.Uint32
	size       uint
	area       *Area
	ownerTask  *TaskContext
	remote     bool
	remoteSize atomic.Uint64
	sequence   atomic.Uint64
	registry   *Registry

	refcount atomic.Int32
}

// NewDescriptor creates a Descriptor in ModeDisabled with refcount 1, the
// Go-native equivalent of kcov_open.
func NewDescriptor() *Descriptor {
	d := &Descriptor{}
	d.refcount.Store(1)
	return d
}

// Mode returns the descriptor's current mode.
func (d *Descriptor) Mode() Mode {
	return Mode(d.mode.Load())
}

// get acquires one refcount. Every call documents its matching put: see
// Enable/RemoteEnable (+1, matched by Disable/TaskExit) and RemoteStart
// (+1, matched by RemoteStop). The open-time reference set by
// NewDescriptor is matched by Close.
func (d *Descriptor) get() {
	d.refcount.Add(1)
}

// put releases one refcount. On the final release it tears the
// descriptor down: frees its Area and asks its Registry (if any) to
// purge any handles still pointing at it. This is the safety-net purge
// from §4.5, which runs unconditionally (mirroring kcov_put's
// unconditional call to kcov_remote_reset), distinct from the
// Disable-time purge which only runs when the descriptor is remote.
func (d *Descriptor) put() {
	if d.refcount.Add(-1) != 0 {
		return
	}
	d.mu.Lock()
	area := d.area
	d.area = nil
	registry := d.registry
	if registry != nil {
		registry.purgeLocked(d)
	}
	d.mu.Unlock()
	if area != nil {
		area.Close()
	}
}

// Close is the CLOSE control request: releases the caller's own
// reference to the descriptor (the one taken by NewDescriptor).
func (d *Descriptor) Close() {
	d.put()
}

// resetLocked returns the descriptor to ModeInit with no owner, bumping
// sequence so that any remote window still in flight is invalidated.
// Callers must hold mu.
func (d *Descriptor) resetLocked() {
	d.ownerTask = nil
	d.mode.Store(uint32(ModeInit))
	d.remote = false
	d.remoteSize.Store(0)
	d.sequence.Add(1)
}

// Init is the INIT_TRACE control request.
func (d *Descriptor) Init(size uint) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if Mode(d.mode.Load()) != ModeDisabled {
		return ErrBusy
	}
	if size < minSizeWords || size > maxSizeWords {
		return ErrInvalid
	}
	d.size = size
	d.mode.Store(uint32(ModeInit))
	return nil
}

// Map is the MAP control request. A descriptor accepts at most one
// successful mapping; repeat calls with a matching length silently
// discard a freshly-allocated candidate region and return the
// already-mapped bytes (see DESIGN.md for the Open Question this
// resolves).
func (d *Descriptor) Map(lengthBytes uint) ([]byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if Mode(d.mode.Load()) != ModeInit {
		return nil, ErrInvalid
	}
	if lengthBytes != d.size*wordSize {
		return nil, ErrInvalid
	}
	if d.area != nil {
		candidate, err := newArea(d.size)
		if err == nil {
			candidate.Close()
		}
		return d.area.Bytes(), nil
	}
	area, err := newArea(d.size)
	if err != nil {
		return nil, ErrNoMemory
	}
	d.area = area
	return area.Bytes(), nil
}

// Enable is the ENABLE control request: attaches tc as the owning task
// and acquires one refcount.
func (d *Descriptor) Enable(tc *TaskContext, mode Mode) error {
	if mode != ModeTracePC && mode != ModeTraceCmp {
		return ErrInvalid
	}

	d.mu.Lock()
	if d.ownerTask != nil {
		d.mu.Unlock()
		return ErrBusy
	}
	if Mode(d.mode.Load()) != ModeInit || d.area == nil {
		d.mu.Unlock()
		return ErrInvalid
	}
	area, size, sequence := d.area, d.size, d.sequence.Load()
	d.ownerTask = tc
	d.mode.Store(uint32(mode))
	d.mu.Unlock()

	if !tc.tryAttach(d, area, size, mode, sequence) {
		d.mu.Lock()
		d.ownerTask = nil
		d.mode.Store(uint32(ModeInit))
		d.mu.Unlock()
		return ErrBusy
	}

	d.get()
	return nil
}

// Disable is the DISABLE control request: the caller must be the
// recorded owner.
func (d *Descriptor) Disable(tc *TaskContext) error {
	if tc.attachedDescriptor() != d {
		return ErrInvalid
	}
	d.mu.Lock()
	if d.ownerTask != tc {
		d.mu.Unlock()
		return ErrInvalid
	}
	tc.detach()
	if d.registry != nil && d.remote {
		d.registry.purgeLocked(d)
	} else {
		d.resetLocked()
	}
	d.mu.Unlock()
	d.put()
	return nil
}
