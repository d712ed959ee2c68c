// Copyright 2024 The rudogc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package gc

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAllocRoutesSmallRequestThroughTLAB(t *testing.T) {
	h := NewThreadHeap(nil)
	defer h.Close()

	g := New(h, node{val: 1})
	p := pageOf(uintptr(g.box))
	assert.Equal(t, magicGcPage, p.magic)
	assert.NotZero(t, p.class)
}

func TestAllocRoutesLargeRequestToLargeObjectPath(t *testing.T) {
	h := NewThreadHeap(nil)
	defer h.Close()

	g := New(h, bigPayload{})
	_, ok := lookupLargeObject(uintptr(g.box))
	assert.True(t, ok)
}

func TestAllocSlowReusesFreedSlotOnPageKeptAliveByASurvivor(t *testing.T) {
	h := NewThreadHeap(nil)
	defer h.Close()

	scope := NewHandleScope(h.tcb)
	defer scope.Close()

	survivor := New(h, node{val: 1})
	MakeHandle(scope, survivor)

	dead := New(h, node{val: 2})
	p := pageOf(uintptr(dead.box))
	dead.Drop()

	CollectMajor(h)
	assert.Contains(t, h.ownedPages, p) // kept alive by survivor

	g2 := New(h, node{val: 3})
	assert.Equal(t, p, pageOf(uintptr(g2.box)))
}

func TestRebindTLABSetsCursorAndLimitFromPage(t *testing.T) {
	h := NewThreadHeap(nil)
	defer h.Close()

	p, err := reservePage(h, 1)
	assert.NoError(t, err)

	rebindTLAB(h, 1, p)
	t1 := &h.tlabs[1]
	assert.Equal(t, t1.page, p)
	assert.Equal(t, t1.limit-t1.cursor, uintptr(p.objCount)*uintptr(p.blockSize))
}

func TestPushAndPopFreeSlotRoundtrip(t *testing.T) {
	h := NewThreadHeap(nil)
	defer h.Close()

	p, err := reservePage(h, 1)
	assert.NoError(t, err)
	p.freeHead = freeListEmpty

	pushFreeSlot(p, 3)
	pushFreeSlot(p, 1)

	slot, ok := popFreeSlotOnPage(p)
	assert.True(t, ok)
	assert.Equal(t, p.slotAddr(1), slot)

	slot, ok = popFreeSlotOnPage(p)
	assert.True(t, ok)
	assert.Equal(t, p.slotAddr(3), slot)

	_, ok = popFreeSlotOnPage(p)
	assert.False(t, ok)
}
