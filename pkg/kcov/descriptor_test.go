// Copyright 2025 the kcov authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package kcov

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitRejectsSizeOutOfRange(t *testing.T) {
	d := NewDescriptor()
	assert.ErrorIs(t, d.Init(1), ErrInvalid)
	assert.ErrorIs(t, d.Init(maxSizeWords+1), ErrInvalid)
}

func TestInitFailsBusyUnlessDisabled(t *testing.T) {
	d := NewDescriptor()
	require.NoError(t, d.Init(4))
	assert.ErrorIs(t, d.Init(4), ErrBusy)
}

func TestMapRequiresExactLength(t *testing.T) {
	d := NewDescriptor()
	require.NoError(t, d.Init(4))
	_, err := d.Map(31)
	assert.ErrorIs(t, err, ErrInvalid)
}

func TestMapRepeatedMapIsIdempotent(t *testing.T) {
	d := NewDescriptor()
	require.NoError(t, d.Init(4))
	first, err := d.Map(32)
	require.NoError(t, err)
	second, err := d.Map(32)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestMapBeforeInitFails(t *testing.T) {
	d := NewDescriptor()
	_, err := d.Map(32)
	assert.ErrorIs(t, err, ErrInvalid)
}

// TestEnableSecondOwnerFails is property 2: a second ENABLE on the same
// descriptor from any task fails busy.
func TestEnableSecondOwnerFails(t *testing.T) {
	d := NewDescriptor()
	require.NoError(t, d.Init(4))
	_, err := d.Map(32)
	require.NoError(t, err)

	a := NewTaskContext()
	require.NoError(t, d.Enable(a, ModeTracePC))

	b := NewTaskContext()
	assert.ErrorIs(t, d.Enable(b, ModeTracePC), ErrBusy)
}

// TestEnableSameTaskTwiceFails is property 2's other half: a task
// already attached to one descriptor fails busy on a second.
func TestEnableSameTaskTwiceFails(t *testing.T) {
	d1 := NewDescriptor()
	require.NoError(t, d1.Init(4))
	_, err := d1.Map(32)
	require.NoError(t, err)

	d2 := NewDescriptor()
	require.NoError(t, d2.Init(4))
	_, err = d2.Map(32)
	require.NoError(t, err)

	tc := NewTaskContext()
	require.NoError(t, d1.Enable(tc, ModeTracePC))
	assert.ErrorIs(t, d2.Enable(tc, ModeTracePC), ErrBusy)
}

func TestEnableRejectsUnknownMode(t *testing.T) {
	d := NewDescriptor()
	require.NoError(t, d.Init(4))
	_, err := d.Map(32)
	require.NoError(t, err)
	assert.ErrorIs(t, d.Enable(NewTaskContext(), ModeDisabled), ErrInvalid)
}

// TestDisableOwnerMismatchFails is scenario S3.
func TestDisableOwnerMismatchFails(t *testing.T) {
	d := NewDescriptor()
	require.NoError(t, d.Init(4))
	_, err := d.Map(32)
	require.NoError(t, err)

	a := NewTaskContext()
	require.NoError(t, d.Enable(a, ModeTracePC))

	b := NewTaskContext()
	assert.ErrorIs(t, d.Disable(b), ErrInvalid)
	assert.Equal(t, ModeTracePC, d.Mode())
}

func TestDisableThenEnableAgainReusesMapping(t *testing.T) {
	d := NewDescriptor()
	require.NoError(t, d.Init(4))
	buf, err := d.Map(32)
	require.NoError(t, err)

	a := NewTaskContext()
	require.NoError(t, d.Enable(a, ModeTracePC))
	require.NoError(t, d.Disable(a))

	b := NewTaskContext()
	require.NoError(t, d.Enable(b, ModeTracePC))
	buf2, err := d.Map(32)
	require.NoError(t, err)
	assert.Equal(t, buf, buf2, "mapping survives a disable/enable cycle")
}

// TestS1PCHappyPath is scenario S1 in spec.md §8.
func TestS1PCHappyPath(t *testing.T) {
	d := NewDescriptor()
	require.NoError(t, d.Init(4))
	buf, err := d.Map(32)
	require.NoError(t, err)

	tc := NewTaskContext()
	require.NoError(t, d.Enable(tc, ModeTracePC))

	TracePC(tc, true, 0x1000)
	TracePC(tc, true, 0x2000)

	words := bytesToWords(buf)
	assert.Equal(t, uint64(2), words[0])
	assert.Equal(t, uint64(0x1000), words[1])
	assert.Equal(t, uint64(0x2000), words[2])

	require.NoError(t, d.Disable(tc))
	d.Close()
}

// TestS2OverflowDrop is scenario S2.
func TestS2OverflowDrop(t *testing.T) {
	d := NewDescriptor()
	require.NoError(t, d.Init(2))
	buf, err := d.Map(16)
	require.NoError(t, err)

	tc := NewTaskContext()
	require.NoError(t, d.Enable(tc, ModeTracePC))

	for i := 0; i < 5; i++ {
		TracePC(tc, true, uintptr(0x1000+i*0x10))
	}

	words := bytesToWords(buf)
	assert.Equal(t, uint64(1), words[0])
	assert.Equal(t, uint64(0x1000), words[1])
}

func bytesToWords(buf []byte) []uint64 {
	words := make([]uint64, len(buf)/wordSize)
	for i := range words {
		var w uint64
		for j := 0; j < wordSize; j++ {
			w |= uint64(buf[i*wordSize+j]) << (8 * j)
		}
		words[i] = w
	}
	return words
}
