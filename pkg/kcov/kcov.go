// Copyright 2025 the kcov authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

// Package kcov is a Go-native port of the core of Linux's kcov facility: a
// coverage-collection session (Descriptor), the trace sinks that
// instrumented code calls into, and the remote-collection registry that
// attributes coverage produced by background executors back to the
// session that requested it.
//
// The package does not implement the VFS plumbing that exposes a kcov
// session as a character device (open/ioctl/mmap/release), compiler
// instrumentation, or ASLR base lookup; see Device for the boundary such a
// layer would call into, and RandomizedBase for the ASLR seam.
package kcov

import "math"

// Mode is the coverage collection mode of a Descriptor or TaskContext.
type Mode uint32

const (
	// ModeDisabled means no coverage is being collected.
	ModeDisabled Mode = iota
	// ModeInit means a Descriptor has been sized but not yet enabled.
	ModeInit
	// ModeTracePC means the Descriptor records one word per basic block.
	ModeTracePC
	// ModeTraceCmp means the Descriptor records comparison operands.
	ModeTraceCmp
)

func (m Mode) String() string {
	switch m {
	case ModeDisabled:
		return "disabled"
	case ModeInit:
		return "init"
	case ModeTracePC:
		return "trace_pc"
	case ModeTraceCmp:
		return "trace_cmp"
	default:
		return "unknown"
	}
}

const (
	// wordSize is the machine-word size assumed by this port: 8 bytes,
	// matching every 64-bit target kcov is deployed on. This resolves
	// spec.md's implicit assumption about sizeof(unsigned long); see
	// DESIGN.md.
	wordSize = 8

	// cmpWordsPerEntry is the number of 64-bit words in one CMP record
	// (type, arg1, arg2, pc), matching KCOV_WORDS_PER_CMP.
	cmpWordsPerEntry = 4

	// minSizeWords is the smallest buffer that can hold the count word
	// plus one record.
	minSizeWords = 2

	// maxSizeWords mirrors "INT_MAX / sizeof(unsigned long)" from
	// kcov.c: the largest size that cannot overflow size*wordSize when
	// computed in a signed 32-bit accumulator, the same margin the
	// original kernel code chose.
	maxSizeWords = math.MaxInt32 / wordSize

	// MaxHandles mirrors KCOV_REMOTE_MAX_HANDLES.
	MaxHandles = 0x100
)

// CmpSize returns the CMP record "type" width field for an operand of
// 8<<k bits, i.e. CmpSize(0..3) for 8/16/32/64-bit operands.
func CmpSize(k uint) uint64 {
	return uint64(k) << 1
}

// CmpConst is the "constant operand" bit in a CMP record's type field.
const CmpConst uint64 = 1
