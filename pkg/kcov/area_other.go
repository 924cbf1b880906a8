// Copyright 2025 the kcov authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

//go:build !linux

package kcov

// allocArea falls back to a heap-allocated buffer on non-Linux build
// targets: the state machine, sinks, and merge logic are fully portable,
// only the "really shared across OS processes via mmap" property is
// Linux-specific (see area_linux.go).
func allocArea(size uint) (*Area, error) {
	mem := make([]byte, int(size)*wordSize)
	return wrapArea(mem, nil), nil
}
