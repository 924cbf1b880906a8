// Copyright 2025 the kcov authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package kcov

import (
	"sync/atomic"

	"github.com/xairy/kcov/pkg/log"
)

// mergeArea appends as many records from src as fit into dst, following
// spec.md §4.4. It must be called with the owning Descriptor's lock held
// (both RemoteStop and, indirectly, any future in-task collect path rely
// on that for the count-word publish to be visible to a concurrent
// reader taking a snapshot under the same lock).
//
// OnMerge, if set, is called after every merge attempt (including
// no-ops) with the number of entries actually moved. It is the seam
// pkg/kcovstat hooks to feed a metrics collector without this package
// depending on one.
var OnMerge func(moved uint64)

// It returns the number of entries actually moved, which callers may
// feed to a metrics histogram (see pkg/kcovstat).
func mergeArea(mode Mode, dst, src *Area) (moved uint64) {
	if OnMerge != nil {
		defer func() { OnMerge(moved) }()
	}

	var countSize, entrySize uint64
	switch mode {
	case ModeTracePC:
		countSize, entrySize = wordSize, wordSize
	case ModeTraceCmp:
		countSize, entrySize = wordSize, wordSize*cmpWordsPerEntry
	default:
		log.WarnOnce("kcov-merge-bad-mode", "kcov: merge called with mode %v", mode)
		return 0
	}

	dstWords := dst.Words()
	srcWords := src.Words()
	dstSizeBytes := uint64(dst.SizeBytes())

	dstCount := atomic.LoadUint64(&dstWords[0])
	srcCount := srcWords[0]

	maxEntries := (dstSizeBytes - countSize) / entrySize
	if dstCount > maxEntries {
		log.WarnOnce("kcov-merge-overflow", "kcov: destination count %d exceeds capacity %d, dropping merge", dstCount, maxEntries)
		return 0
	}

	dstOccupied := countSize + dstCount*entrySize
	dstFree := dstSizeBytes - dstOccupied
	bytesToMove := srcCount * entrySize
	if bytesToMove > dstFree {
		bytesToMove = dstFree
	}
	if bytesToMove == 0 {
		return 0
	}

	dstBytes := dst.Bytes()
	srcBytes := src.Bytes()
	copy(dstBytes[dstOccupied:dstOccupied+bytesToMove], srcBytes[countSize:countSize+bytesToMove])

	entriesMoved := bytesToMove / entrySize
	atomic.StoreUint64(&dstWords[0], dstCount+entriesMoved)
	return entriesMoved
}
