// Copyright 2025 the kcov authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package kcov

import "errors"

// Error kinds returned by the control plane, matching the exit codes in
// spec.md §6: busy, invalid argument, no memory, exists, not supported,
// not a typewriter (unknown request).
var (
	// ErrBusy is returned when a request conflicts with a state
	// transition already in progress (e.g. a second Enable, or Init on
	// a Descriptor that isn't Disabled).
	ErrBusy = errors.New("kcov: busy")
	// ErrInvalid is returned for precondition violations: wrong state,
	// out-of-range size, wrong owner, malformed arguments.
	ErrInvalid = errors.New("kcov: invalid argument")
	// ErrNoMemory is returned when allocating a buffer or registry
	// entry fails.
	ErrNoMemory = errors.New("kcov: no memory")
	// ErrExists is returned by RemoteEnable when a handle is already
	// registered.
	ErrExists = errors.New("kcov: handle exists")
	// ErrNotSupported is returned for a recognized but unavailable
	// trace mode.
	ErrNotSupported = errors.New("kcov: not supported")
	// ErrNotTypewriter is returned for an unrecognized control request,
	// matching ENOTTY ("not a typewriter") from the original ioctl
	// interface.
	ErrNotTypewriter = errors.New("kcov: not a typewriter")
)
