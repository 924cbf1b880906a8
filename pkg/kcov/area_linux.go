// Copyright 2025 the kcov authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

//go:build linux

package kcov

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// allocArea creates a memfd-backed, page-aligned, MAP_SHARED region of
// size words. Because it is backed by a real file descriptor, a future
// VFS layer can hand that same descriptor to a second mmap call (from
// userspace or another process) and observe the exact bytes this process
// writes. This is the genuine shared mapping a Descriptor's area needs,
// not a process-local simulation of one.
func allocArea(size uint) (*Area, error) {
	length := int(size) * wordSize

	fd, err := unix.MemfdCreate("kcov-area", 0)
	if err != nil {
		return nil, fmt.Errorf("kcov: memfd_create: %w", err)
	}
	if err := unix.Ftruncate(fd, int64(length)); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("kcov: ftruncate: %w", err)
	}

	mem, err := unix.Mmap(fd, 0, length, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("kcov: mmap: %w", err)
	}

	area := wrapArea(mem, func() error {
		err := unix.Munmap(mem)
		if cerr := unix.Close(fd); err == nil {
			err = cerr
		}
		return err
	})
	return area, nil
}
