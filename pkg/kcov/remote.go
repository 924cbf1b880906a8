// Copyright 2025 the kcov authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package kcov

import (
	"sync"

	"golang.org/x/exp/maps"
)

// remoteEntry is one registered handle in a Registry.
type remoteEntry struct {
	handle     uint64
	descriptor *Descriptor
}

// Registry is the Go-native equivalent of the kernel's global
// kcov_remote_map: a handle -> Descriptor lookup table plus a free list
// of scratch Areas keyed by size, so that repeated remote windows of the
// same size don't pay an allocation every time. See spec.md §3.2–§4.3.
//
// Lock order is descriptor lock -> registry lock: any path that needs
// both always acquires the Descriptor's mu first. RemoteStart is the one
// path that reads descriptor state (mode, remoteSize, sequence) while
// holding only the registry lock, deliberately racing with Disable.
// See RemoteStart.
type Registry struct {
	mu       sync.Mutex
	handles  map[uint64]*remoteEntry
	freeList map[uint][]*Area
}

// DefaultRegistry is the package-level registry a Device uses unless
// constructed with its own, mirroring the kernel's single global
// kcov_remote_map.
var DefaultRegistry = NewRegistry()

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		handles:  make(map[uint64]*remoteEntry),
		freeList: make(map[uint][]*Area),
	}
}

// RemoteEnable is the REMOTE_ENABLE control request: like Enable, but
// also registers handles that downstream remote executors can later
// present to RemoteStart to attribute their coverage to d.
func (r *Registry) RemoteEnable(d *Descriptor, tc *TaskContext, mode Mode, remoteAreaSize uint, handles []uint64) error {
	if mode != ModeTracePC && mode != ModeTraceCmp {
		return ErrInvalid
	}
	if len(handles) > MaxHandles {
		return ErrInvalid
	}
	if remoteAreaSize < minSizeWords || remoteAreaSize > maxSizeWords {
		return ErrInvalid
	}

	d.mu.Lock()
	if Mode(d.mode.Load()) != ModeInit || d.area == nil {
		d.mu.Unlock()
		return ErrInvalid
	}
	if d.ownerTask != nil {
		d.mu.Unlock()
		return ErrBusy
	}
	area, size, sequence := d.area, d.size, d.sequence.Load()
	d.ownerTask = tc
	d.mode.Store(uint32(mode))
	d.remote = true
	d.remoteSize.Store(uint64(remoteAreaSize))
	d.registry = r
	d.mu.Unlock()

	rollbackAttach := func() {
		d.mu.Lock()
		d.ownerTask = nil
		d.mode.Store(uint32(ModeInit))
		d.remote = false
		d.remoteSize.Store(0)
		d.registry = nil
		d.mu.Unlock()
	}

	if !tc.tryAttach(d, area, size, mode, sequence) {
		rollbackAttach()
		return ErrBusy
	}

	if err := r.registerHandles(d, handles); err != nil {
		tc.detach()
		rollbackAttach()
		return err
	}

	d.get()
	return nil
}

// registerHandles inserts handles -> d atomically: a duplicate within
// the call, or a collision with an already-registered handle, rolls
// back every insertion made so far in this call and leaves the registry
// unchanged (property: REMOTE_ENABLE is all-or-nothing for its handle
// set).
func (r *Registry) registerHandles(d *Descriptor, handles []uint64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	seen := make(map[uint64]bool, len(handles))
	inserted := make([]uint64, 0, len(handles))
	for _, h := range handles {
		if seen[h] {
			r.rollbackLocked(inserted)
			return ErrExists
		}
		if _, exists := r.handles[h]; exists {
			r.rollbackLocked(inserted)
			return ErrExists
		}
		seen[h] = true
		r.handles[h] = &remoteEntry{handle: h, descriptor: d}
		inserted = append(inserted, h)
	}
	return nil
}

func (r *Registry) rollbackLocked(handles []uint64) {
	for _, h := range handles {
		delete(r.handles, h)
	}
}

// purgeLocked removes every handle pointing at d and resets d, in the
// same registry-lock critical section, mirroring kcov_remote_reset's
// "do reset before unlock to prevent races with kcov_remote_start()":
// a concurrent RemoteStart either observes the handle before the delete
// (and takes a consistent snapshot) or finds it already gone. Callers
// must hold d.mu.
func (r *Registry) purgeLocked(d *Descriptor) {
	r.mu.Lock()
	var purged uint64
	for h, e := range r.handles {
		if e.descriptor == d {
			delete(r.handles, h)
			purged++
		}
	}
	d.resetLocked()
	r.mu.Unlock()
	if purged > 0 && OnHandlesPurged != nil {
		OnHandlesPurged(purged)
	}
}

// OnHandlesPurged, if set, is called whenever purgeLocked removes one or
// more handles, reporting how many. Same seam pattern as OnMerge and
// OnSinkEvent.
var OnHandlesPurged func(count uint64)

// RemoteStart is what a remote executor (e.g. a VM monitor delivering a
// USB/network/etc. request) calls before dispatching work attributed to
// handle. It is a silent no-op returning nil if the handle is not
// registered, or if tc is already attached to some descriptor, because an
// unrecognized handle simply means "nobody asked for coverage on this
// path", not a caller mistake. The only error it returns is ErrNoMemory,
// when a scratch buffer can be neither reused nor allocated.
//
// mode, remote size, and sequence are snapshotted while holding only the
// registry lock, never the descriptor lock. This is the same
// linearization point the kernel uses, and it intentionally races with a
// concurrent Disable: RemoteStop's sequence comparison is what discards
// a window that lost that race.
func (r *Registry) RemoteStart(tc *TaskContext, handle uint64) error {
	if tc.attachedDescriptor() != nil {
		return nil
	}

	r.mu.Lock()
	entry, ok := r.handles[handle]
	if !ok {
		r.mu.Unlock()
		return nil
	}
	d := entry.descriptor
	d.get()
	size := uint(d.remoteSize.Load())
	mode := Mode(d.mode.Load())
	sequence := d.sequence.Load()
	r.mu.Unlock()

	area := r.popScratch(size)
	if area == nil {
		var err error
		area, err = newArea(size)
		if err != nil {
			d.put()
			return ErrNoMemory
		}
	}
	area.Words()[0] = 0

	if !tc.tryAttach(d, area, size, mode, sequence) {
		r.pushScratch(size, area)
		d.put()
		return nil
	}
	return nil
}

// RemoteStop is what a remote executor calls when it is done producing
// coverage for the window opened by RemoteStart. It is a no-op if tc is
// not currently attached. Otherwise it detaches tc, merges the window's
// records into d's area if the window is still current (snapshot
// sequence matches d's live sequence and d is still remote, i.e. no
// Disable/TaskExit/Close raced it out from under it), returns the
// scratch buffer to the free list, and releases the refcount RemoteStart
// acquired.
func (r *Registry) RemoteStop(tc *TaskContext) {
	d, area, size, sequence := tc.detach()
	if d == nil {
		return
	}

	d.mu.Lock()
	if d.remote && sequence == d.sequence.Load() {
		mergeArea(Mode(d.mode.Load()), d.area, area)
	}
	d.mu.Unlock()

	r.pushScratch(size, area)
	d.put()
}

func (r *Registry) popScratch(size uint) *Area {
	r.mu.Lock()
	defer r.mu.Unlock()
	list := r.freeList[size]
	if len(list) == 0 {
		return nil
	}
	area := list[len(list)-1]
	r.freeList[size] = list[:len(list)-1]
	return area
}

func (r *Registry) pushScratch(size uint, area *Area) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.freeList[size] = append(r.freeList[size], area)
}

// Handles returns a snapshot of every currently registered handle, for
// diagnostics; it is not part of the control-plane contract.
func (r *Registry) Handles() []uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return maps.Keys(r.handles)
}
