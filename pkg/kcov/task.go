// Copyright 2025 the kcov authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package kcov

import "sync/atomic"

// TaskContext is the Go-native stand-in for a kernel task_struct's kcov
// fields. Go has no goroutine-local storage, so instrumented code that
// would otherwise call a sink with no arguments (reading "current"
// implicitly) instead threads an explicit *TaskContext through every
// call. See SPEC_FULL.md §0. One TaskContext should be created per
// logical "task" (typically: once per goroutine that will call Enable,
// RemoteStart, or a trace sink), and reused across its Enable/Disable or
// RemoteStart/RemoteStop cycles.
//
// All fields are atomic; mode is published last on attach and cleared
// first on detach (see §5 of spec.md).
type TaskContext struct {
	mode       atomic.Uint32
	area       atomic.Pointer[Area]
	sizeWords  atomic.Uint64
	sequence   atomic.Uint64
	descriptor atomic.Pointer[Descriptor]
}

// NewTaskContext creates a detached TaskContext.
func NewTaskContext() *TaskContext {
	return &TaskContext{}
}

// Mode returns the task's current coverage mode with acquire semantics.
func (tc *TaskContext) Mode() Mode {
	return Mode(tc.mode.Load())
}

// attachedDescriptor returns the descriptor this task is currently
// feeding, or nil.
func (tc *TaskContext) attachedDescriptor() *Descriptor {
	return tc.descriptor.Load()
}

// tryAttach publishes buffer pointers before mode, per §5's ordering
// rule, and reports whether the task was free to attach (it fails if the
// task is already attached to any descriptor).
func (tc *TaskContext) tryAttach(d *Descriptor, area *Area, size uint, mode Mode, sequence uint64) bool {
	if !tc.descriptor.CompareAndSwap(nil, d) {
		return false
	}
	tc.area.Store(area)
	tc.sizeWords.Store(uint64(size))
	tc.sequence.Store(sequence)
	tc.mode.Store(uint32(mode))
	return true
}

// detach clears mode before buffer pointers, per §5's ordering rule, and
// returns the state that was attached so the caller (Disable/RemoteStop)
// can act on it.
func (tc *TaskContext) detach() (d *Descriptor, area *Area, size uint, sequence uint64) {
	tc.mode.Store(uint32(ModeDisabled))
	d = tc.descriptor.Load()
	area = tc.area.Load()
	size = uint(tc.sizeWords.Load())
	sequence = tc.sequence.Load()
	tc.area.Store(nil)
	tc.sizeWords.Store(0)
	tc.sequence.Store(0)
	tc.descriptor.Store(nil)
	return d, area, size, sequence
}
