// Copyright 2025 the kcov authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package kcov

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func enabledDescriptor(t *testing.T, sizeWords uint, mode Mode) (*Descriptor, *TaskContext, []byte) {
	t.Helper()
	d := NewDescriptor()
	require.NoError(t, d.Init(sizeWords))
	buf, err := d.Map(sizeWords * wordSize)
	require.NoError(t, err)
	tc := NewTaskContext()
	require.NoError(t, d.Enable(tc, mode))
	return d, tc, buf
}

// TestCmpLayout is property 4: CMP record i reflects the i-th sink
// call's (type, arg1, arg2, ip).
func TestCmpLayout(t *testing.T) {
	_, tc, buf := enabledDescriptor(t, 1+4*3, ModeTraceCmp)

	TraceCmp4(tc, true, 10, 20, 0xaaaa)
	TraceConstCmp8(tc, true, 30, 40, 0xbbbb)
	TraceCmp1(tc, true, 1, 2, 0xcccc)

	words := bytesToWords(buf)
	require.Equal(t, uint64(3), words[0])

	assert.Equal(t, CmpSize(2), words[1])
	assert.Equal(t, uint64(10), words[2])
	assert.Equal(t, uint64(20), words[3])
	assert.Equal(t, uint64(0xaaaa), words[4])

	assert.Equal(t, CmpSize(3)|CmpConst, words[5])
	assert.Equal(t, uint64(30), words[6])
	assert.Equal(t, uint64(40), words[7])
	assert.Equal(t, uint64(0xbbbb), words[8])

	assert.Equal(t, CmpSize(0), words[9])
	assert.Equal(t, uint64(1), words[10])
	assert.Equal(t, uint64(2), words[11])
	assert.Equal(t, uint64(0xcccc), words[12])
}

func TestCmpCapacityUsesByteArithmetic(t *testing.T) {
	// size=1+4*1 words exactly fits one CMP record; a second call must
	// be dropped, not overflow into adjacent memory.
	_, tc, buf := enabledDescriptor(t, 1+4, ModeTraceCmp)

	TraceCmp8(tc, true, 1, 2, 0x1)
	TraceCmp8(tc, true, 3, 4, 0x2)

	words := bytesToWords(buf)
	assert.Equal(t, uint64(1), words[0])
}

// TestInterruptContextIsolation is property 5.
func TestInterruptContextIsolation(t *testing.T) {
	_, tc, buf := enabledDescriptor(t, 4, ModeTracePC)

	TracePC(tc, false, 0x1000)

	words := bytesToWords(buf)
	assert.Equal(t, uint64(0), words[0])
}

func TestSinkWrongModeNoOp(t *testing.T) {
	_, tc, buf := enabledDescriptor(t, 4, ModeTracePC)

	TraceCmp4(tc, true, 1, 2, 0x1000)

	words := bytesToWords(buf)
	assert.Equal(t, uint64(0), words[0])
}

func TestSinkDisabledTaskNoOp(t *testing.T) {
	tc := NewTaskContext()
	// Never enabled: must not panic or write anywhere.
	TracePC(tc, true, 0x1000)
	TraceCmp8(tc, true, 1, 2, 0x1000)
}

func TestTraceSwitchEmitsOneRecordPerCase(t *testing.T) {
	_, tc, buf := enabledDescriptor(t, 1+4*3, ModeTraceCmp)

	TraceSwitch(tc, true, 7, 32, []uint64{1, 2, 7}, 0xdead)

	words := bytesToWords(buf)
	require.Equal(t, uint64(3), words[0])
	assert.Equal(t, CmpSize(2)|CmpConst, words[1])
	assert.Equal(t, uint64(1), words[2], "arg1 is the case label, the constant operand")
	assert.Equal(t, uint64(7), words[3], "arg2 is the switched value")
}

func TestTraceSwitchUnsupportedWidthIgnored(t *testing.T) {
	_, tc, buf := enabledDescriptor(t, 1+4*3, ModeTraceCmp)

	TraceSwitch(tc, true, 7, 24, []uint64{1, 2, 3}, 0xdead)

	words := bytesToWords(buf)
	assert.Equal(t, uint64(0), words[0])
}

func TestCanonicalizeIPSubtractsRandomizedBase(t *testing.T) {
	prev := RandomizedBase
	defer func() { RandomizedBase = prev }()
	RandomizedBase = func() uintptr { return 0x400000 }

	_, tc, buf := enabledDescriptor(t, 4, ModeTracePC)
	TracePC(tc, true, 0x401234)

	words := bytesToWords(buf)
	assert.Equal(t, uint64(0x1234), words[1])
}
