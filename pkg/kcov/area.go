// Copyright 2025 the kcov authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package kcov

import "unsafe"

// Area is a page-aligned, word-addressable buffer that is simultaneously
// writable from this process and (on Linux) mappable into another
// process's address space through the same backing file descriptor.
// It is the Go-native stand-in for the kernel's vmalloc_user'd coverage area.
//
// The first word is always the record count; Words()[1:] is the record
// region. Area is not safe for concurrent use by itself: callers hold
// either the owning Descriptor's lock (for merges) or have exclusive
// ownership (a TaskContext's own buffer, or a scratch buffer between
// RemoteStart and RemoteStop).
type Area struct {
	mem   []byte
	words []uint64
	close func() error
}

// newArea allocates an Area able to hold size words (count word included).
func newArea(size uint) (*Area, error) {
	return allocArea(size)
}

// wrapArea builds an Area view over an already-allocated byte slice whose
// length must be an exact multiple of wordSize. The optional closer is
// invoked by Close to release the backing memory/descriptor.
func wrapArea(mem []byte, closer func() error) *Area {
	if len(mem)%wordSize != 0 {
		panic("kcov: area length not word-aligned")
	}
	words := unsafe.Slice((*uint64)(unsafe.Pointer(&mem[0])), len(mem)/wordSize)
	return &Area{mem: mem, words: words, close: closer}
}

// Bytes returns the raw backing memory.
func (a *Area) Bytes() []byte {
	return a.mem
}

// Words returns the area reinterpreted as 64-bit words; Words()[0] is the
// record count, Words()[1:] is the record region.
func (a *Area) Words() []uint64 {
	return a.words
}

// SizeWords returns the declared capacity of the area in words.
func (a *Area) SizeWords() uint {
	return uint(len(a.words))
}

// SizeBytes returns the declared capacity of the area in bytes.
func (a *Area) SizeBytes() uint {
	return uint(len(a.mem))
}

// Close releases the backing memory. It is idempotent.
func (a *Area) Close() error {
	if a.close == nil {
		return nil
	}
	closer := a.close
	a.close = nil
	return closer()
}
