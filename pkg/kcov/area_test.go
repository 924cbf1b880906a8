// Copyright 2025 the kcov authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package kcov

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAreaWordsAliasBytes(t *testing.T) {
	area, err := newArea(4)
	require.NoError(t, err)
	defer area.Close()

	area.Words()[0] = 0x1122334455667788
	assert.Equal(t, byte(0x88), area.Bytes()[0], "little-endian word write must be visible through Bytes")
}

func TestAreaSizeAccessors(t *testing.T) {
	area, err := newArea(4)
	require.NoError(t, err)
	defer area.Close()

	assert.Equal(t, uint(4), area.SizeWords())
	assert.Equal(t, uint(32), area.SizeBytes())
}

func TestAreaCloseIsIdempotent(t *testing.T) {
	area, err := newArea(4)
	require.NoError(t, err)
	assert.NoError(t, area.Close())
	assert.NoError(t, area.Close())
}

func TestWrapAreaPanicsOnMisalignedLength(t *testing.T) {
	assert.Panics(t, func() {
		wrapArea(make([]byte, 5), nil)
	})
}
