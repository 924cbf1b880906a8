// Copyright 2025 the kcov authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package kcov

// Device pairs one Descriptor with the Registry it registers remote
// handles against. It is the seam a VFS-like layer (open/ioctl/mmap on a
// character device, or any other request/response transport) would call
// into; see the package doc comment. Named after the control requests in
// spec.md §6 rather than after file operations, since this package does
// not implement a file.
type Device struct {
	descriptor *Descriptor
	registry   *Registry
}

// NewDevice is the OPEN control request: creates a Descriptor in
// ModeDisabled backed by registry, or DefaultRegistry if registry is
// nil.
func NewDevice(registry *Registry) *Device {
	if registry == nil {
		registry = DefaultRegistry
	}
	return &Device{descriptor: NewDescriptor(), registry: registry}
}

// Descriptor returns the underlying Descriptor, for callers (tests, a
// future VFS layer) that need to pass it to TaskExit or inspect Mode.
func (dev *Device) Descriptor() *Descriptor {
	return dev.descriptor
}

// InitTrace is the INIT_TRACE control request.
func (dev *Device) InitTrace(size uint) error {
	return dev.descriptor.Init(size)
}

// Map is the MAP control request.
func (dev *Device) Map(lengthBytes uint) ([]byte, error) {
	return dev.descriptor.Map(lengthBytes)
}

// Enable is the ENABLE control request.
func (dev *Device) Enable(tc *TaskContext, mode Mode) error {
	return dev.descriptor.Enable(tc, mode)
}

// Disable is the DISABLE control request.
func (dev *Device) Disable(tc *TaskContext) error {
	return dev.descriptor.Disable(tc)
}

// RemoteEnable is the REMOTE_ENABLE control request.
func (dev *Device) RemoteEnable(tc *TaskContext, mode Mode, remoteAreaSize uint, handles []uint64) error {
	return dev.registry.RemoteEnable(dev.descriptor, tc, mode, remoteAreaSize, handles)
}

// Close is the CLOSE control request: releases the device's own
// reference to its descriptor.
func (dev *Device) Close() {
	dev.descriptor.Close()
}

// TaskExit is the task-exit hook from spec.md §4.5, exposed on Device
// for convenience; it is equivalent to calling the package-level
// TaskExit directly and does not require dev's own descriptor to be the
// one tc is attached to (a task may exit while attached to any
// descriptor, not necessarily one this Device wraps).
func (dev *Device) TaskExit(tc *TaskContext) {
	TaskExit(tc)
}
