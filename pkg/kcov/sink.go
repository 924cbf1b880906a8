// Copyright 2025 the kcov authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package kcov

import "sync/atomic"

// RandomizedBase returns the runtime's load base to subtract from raw
// return addresses before storing them. It is the Go-native seam for the
// address-space-layout-randomization lookup spec.md §1 names as an
// external collaborator. It defaults to assuming no randomization; a
// caller that knows its own load base should replace it once at
// startup, before any sink is reachable.
var RandomizedBase func() uintptr = func() uintptr { return 0 }

func canonicalizeIP(pc uintptr) uint64 {
	return uint64(pc - RandomizedBase())
}

// widthToCmpK maps an operand width in bits to the CmpSize() shift
// argument, or ok=false for an unsupported width.
func widthToCmpK(bits uint) (k uint, ok bool) {
	switch bits {
	case 8:
		return 0, true
	case 16:
		return 1, true
	case 32:
		return 2, true
	case 64:
		return 3, true
	default:
		return 0, false
	}
}

// OnSinkEvent, if set, is called after every sink invocation that made
// it past the task-context and mode checks, reporting whether the
// record was actually written or dropped for lack of capacity. Like
// OnMerge, this is the seam pkg/kcovstat hooks without this package
// depending on it; it is deliberately not called for the interrupt-
// context or wrong-mode short-circuits, since those are not buffer
// events at all.
var OnSinkEvent func(mode Mode, recorded bool)

// The trace sinks below are the entry points instrumented code calls on
// every basic block or comparison. Go has neither compiler instrumentation
// that implicitly supplies "current task" and the call-site return
// address, nor a hardware interrupt-context flag a function can consult.
// So, following the same explicit-parameter adaptation as TaskContext
// itself (see task.go), every sink takes the task, a pc (the caller's
// return address, however the instrumentation layer chooses to obtain
// one, e.g. runtime.Caller), and inTask (whether this call site runs in
// task context as opposed to a simulated interrupt/softirq path) as
// explicit arguments rather than reading ambient state.
//
// None of these sinks take any lock: see §4.2/§5's acquire/release
// contract, implemented here with tc.Mode() (an atomic load) as the
// acquire read and atomic.StoreUint64 on the count word as the release
// write.

// TracePC is the TRACE_PC sink: records one word at the current task's
// buffer, up to size-1 records, then drops further calls silently.
func TracePC(tc *TaskContext, inTask bool, pc uintptr) {
	if !inTask {
		return
	}
	if tc.Mode() != ModeTracePC {
		return
	}
	area := tc.area.Load()
	if area == nil {
		return
	}
	size := tc.sizeWords.Load()
	words := area.Words()

	count := atomic.LoadUint64(&words[0])
	if count >= size-1 {
		if OnSinkEvent != nil {
			OnSinkEvent(ModeTracePC, false)
		}
		return
	}
	words[count+1] = canonicalizeIP(pc)
	atomic.StoreUint64(&words[0], count+1)
	if OnSinkEvent != nil {
		OnSinkEvent(ModeTracePC, true)
	}
}

// writeCompData is the shared body of every TRACE_CMP sink: it appends
// one (type, arg1, arg2, pc) record iff the byte-exact capacity check
// from §4.2 passes.
func writeCompData(tc *TaskContext, inTask bool, typ, arg1, arg2 uint64, pc uintptr) {
	if !inTask {
		return
	}
	if tc.Mode() != ModeTraceCmp {
		return
	}
	area := tc.area.Load()
	if area == nil {
		return
	}
	sizeBytes := tc.sizeWords.Load() * wordSize
	words := area.Words()

	count := atomic.LoadUint64(&words[0])
	if (wordSize+(count+1)*wordSize*cmpWordsPerEntry) > sizeBytes {
		if OnSinkEvent != nil {
			OnSinkEvent(ModeTraceCmp, false)
		}
		return
	}
	base := 1 + count*cmpWordsPerEntry
	words[base+0] = typ
	words[base+1] = arg1
	words[base+2] = arg2
	words[base+3] = canonicalizeIP(pc)
	atomic.StoreUint64(&words[0], count+1)
	if OnSinkEvent != nil {
		OnSinkEvent(ModeTraceCmp, true)
	}
}

// TraceCmp1/2/4/8 record a comparison between two operands of the given
// width, neither of which is known at compile time to be a constant.
func TraceCmp1(tc *TaskContext, inTask bool, arg1, arg2 uint8, pc uintptr) {
	writeCompData(tc, inTask, CmpSize(0), uint64(arg1), uint64(arg2), pc)
}

func TraceCmp2(tc *TaskContext, inTask bool, arg1, arg2 uint16, pc uintptr) {
	writeCompData(tc, inTask, CmpSize(1), uint64(arg1), uint64(arg2), pc)
}

func TraceCmp4(tc *TaskContext, inTask bool, arg1, arg2 uint32, pc uintptr) {
	writeCompData(tc, inTask, CmpSize(2), uint64(arg1), uint64(arg2), pc)
}

func TraceCmp8(tc *TaskContext, inTask bool, arg1, arg2 uint64, pc uintptr) {
	writeCompData(tc, inTask, CmpSize(3), arg1, arg2, pc)
}

// TraceConstCmp1/2/4/8 record a comparison where arg1 is known at
// compile time to be a constant (the same operand TraceSwitch puts its
// case label in), matching the kernel's separate
// _const_cmp family (the compiler passes constant comparisons through a
// different entry point so the sink can set the CmpConst bit without an
// extra runtime check).
func TraceConstCmp1(tc *TaskContext, inTask bool, arg1, arg2 uint8, pc uintptr) {
	writeCompData(tc, inTask, CmpSize(0)|CmpConst, uint64(arg1), uint64(arg2), pc)
}

func TraceConstCmp2(tc *TaskContext, inTask bool, arg1, arg2 uint16, pc uintptr) {
	writeCompData(tc, inTask, CmpSize(1)|CmpConst, uint64(arg1), uint64(arg2), pc)
}

func TraceConstCmp4(tc *TaskContext, inTask bool, arg1, arg2 uint32, pc uintptr) {
	writeCompData(tc, inTask, CmpSize(2)|CmpConst, uint64(arg1), uint64(arg2), pc)
}

func TraceConstCmp8(tc *TaskContext, inTask bool, arg1, arg2 uint64, pc uintptr) {
	writeCompData(tc, inTask, CmpSize(3)|CmpConst, arg1, arg2, pc)
}

// TraceSwitch records one constant-comparison entry per case label in a
// switch statement, matching spec.md §4.2: elementWidthBits must be one
// of 8/16/32/64, any other value is silently ignored rather than
// reported, since an unsupported width is a compiler-instrumentation
// concern this package cannot act on.
func TraceSwitch(tc *TaskContext, inTask bool, val uint64, elementWidthBits uint, cases []uint64, pc uintptr) {
	k, ok := widthToCmpK(elementWidthBits)
	if !ok {
		return
	}
	typ := CmpSize(k) | CmpConst
	for _, c := range cases {
		// Case label is the constant operand (arg1), matching
		// __sanitizer_cov_trace_switch's write_comp_data(type, cases[i+2], val, ip).
		writeCompData(tc, inTask, typ, c, val, pc)
	}
}
