// Copyright 2024 The rudogc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package gc

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// bigPayload exceeds maxSmallSize so New routes it through the
// large-object path, exercising sweepLargeObjects/releaseLargeEntry.
type bigPayload struct {
	data [8192]byte
}

func TestSweepLargeObjectUnmapsAndDropsBookkeeping(t *testing.T) {
	h := NewThreadHeap(nil)
	defer h.Close()

	g := New(h, bigPayload{})
	g.Drop()

	before := len(h.ownedLarge)
	assert.Equal(t, 1, before)

	stats := CollectMajor(h)
	assert.GreaterOrEqual(t, stats.BytesReclaimed, uint64(8192))
	assert.Equal(t, 0, len(h.ownedLarge))
}

func TestSweepLargeObjectSurvivesWhileRooted(t *testing.T) {
	h := NewThreadHeap(nil)
	defer h.Close()

	scope := NewHandleScope(h.tcb)
	defer scope.Close()

	g := New(h, bigPayload{})
	handle := MakeHandle(scope, g)

	CollectMajor(h)

	assert.Equal(t, 1, len(h.ownedLarge))
	_ = handle
}

func TestSweepPageReclaimsUnmarkedSlots(t *testing.T) {
	h := NewThreadHeap(nil)
	defer h.Close()

	var dropped int
	g := New(h, countingDrop{counter: &dropped})
	g.Drop()

	assert.NotEmpty(t, h.ownedPages)

	p := h.ownedPages[0]
	reclaimed, freed, live := sweepPage(p)
	_ = reclaimed
	assert.Equal(t, uint32(1), freed)
	assert.Equal(t, uint32(0), live)
	assert.Equal(t, 1, dropped)
}
