// Copyright 2024 The rudogc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package gc

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWriteBarrierNoopWhenNeitherFlagActive(t *testing.T) {
	setGenerationalBarrier(false)
	setIncrementalBarrier(false)

	h := NewThreadHeap(nil)
	defer h.Close()

	g := New(h, node{val: 1})
	p := pageOf(uintptr(g.box))
	p.generation = 1

	writeBarrier(h, g.box, g.box)
	assert.Empty(t, h.dirtyPages)
}

func TestWriteBarrierMarksDirtyOnOldGenerationSlot(t *testing.T) {
	setGenerationalBarrier(true)
	defer setGenerationalBarrier(false)

	h := NewThreadHeap(nil)
	defer h.Close()

	g := New(h, node{val: 2})
	p := pageOf(uintptr(g.box))
	p.generation = 1

	writeBarrier(h, g.box, nil)
	assert.Contains(t, h.dirtyPages, p)

	i := p.slotIndex(uintptr(g.box))
	assert.True(t, p.dirty.test(i))
}

func TestWriteBarrierSkipsYoungGenerationSlot(t *testing.T) {
	setGenerationalBarrier(true)
	defer setGenerationalBarrier(false)

	h := NewThreadHeap(nil)
	defer h.Close()

	g := New(h, node{val: 3})
	p := pageOf(uintptr(g.box))
	p.generation = 0

	writeBarrier(h, g.box, nil)
	assert.Empty(t, h.dirtyPages)
}

func TestWriteBarrierRecordsSatbOnOldValueDuringIncrementalMark(t *testing.T) {
	setIncrementalBarrier(true)
	defer setIncrementalBarrier(false)

	h := NewThreadHeap(nil)
	defer h.Close()

	old := New(h, node{val: 4})
	selfHolder := New(h, node{val: 5})

	writeBarrier(h, selfHolder.box, old.box)
	assert.Len(t, h.tcb.satb.drain(), 1)
}

func TestMarkDirtyIsIdempotentForPageList(t *testing.T) {
	h := NewThreadHeap(nil)
	defer h.Close()

	g := New(h, node{val: 6})
	p := pageOf(uintptr(g.box))

	markDirty(p, g.box)
	markDirty(p, g.box)

	count := 0
	for _, pg := range h.dirtyPages {
		if pg == p {
			count++
		}
	}
	assert.Equal(t, 1, count)
}

func TestCasPageFlagWinnerTakesAll(t *testing.T) {
	h := NewThreadHeap(nil)
	defer h.Close()

	g := New(h, node{val: 7})
	p := pageOf(uintptr(g.box))

	assert.True(t, casPageFlag(p, pageDirtyListed))
	assert.False(t, casPageFlag(p, pageDirtyListed))

	clearPageFlag(p, pageDirtyListed)
	assert.True(t, casPageFlag(p, pageDirtyListed))
}
