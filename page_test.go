// Copyright 2024 The rudogc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package gc

import (
	"testing"
	"unsafe"

	"github.com/stretchr/testify/assert"
)

func TestBitmapSetClearIsIdempotent(t *testing.T) {
	b := newBitmap(128)

	assert.True(t, b.set(5))
	assert.False(t, b.set(5))
	assert.True(t, b.test(5))

	b.clear(5)
	assert.False(t, b.test(5))
	b.clear(5) // clearing twice must not panic or flip a neighbor
	assert.False(t, b.test(5))
}

func TestBitmapIsAllClear(t *testing.T) {
	b := newBitmap(64)
	assert.True(t, b.isAllClear())

	b.set(40)
	assert.False(t, b.isAllClear())

	b.clearAll()
	assert.True(t, b.isAllClear())
}

func TestBitmapCrossesWordBoundary(t *testing.T) {
	b := newBitmap(200)
	assert.True(t, b.set(63))
	assert.True(t, b.set(64))
	assert.True(t, b.test(63))
	assert.True(t, b.test(64))
	assert.False(t, b.test(65))
}

func TestPageHeaderLayoutRoundsUpToBlockAlignment(t *testing.T) {
	headerSize, objCount := pageHeaderLayout(3) // blockSize 64
	assert.Equal(t, uint32(0), headerSize%64)
	assert.Greater(t, objCount, uint32(0))
}

func TestSlotAddrAndSlotIndexRoundtrip(t *testing.T) {
	h := NewThreadHeap(nil)
	defer h.Close()

	g := New(h, node{val: 1})
	p := pageOf(uintptr(g.box))

	assert.Equal(t, magicGcPage, p.magic)
	i := p.slotIndex(uintptr(g.box))
	assert.Equal(t, uintptr(g.box), p.slotAddr(i))
}

func TestFindGcBoxFromPtrResolvesInteriorPointer(t *testing.T) {
	h := NewThreadHeap(nil)
	defer h.Close()

	g := New(h, node{val: 2})
	interior := unsafe.Add(g.box, 1)

	box, ok := FindGcBoxFromPtr(h, interior)
	assert.True(t, ok)
	assert.Equal(t, g.box, box)
}

func TestFindGcBoxFromPtrRejectsGarbage(t *testing.T) {
	h := NewThreadHeap(nil)
	defer h.Close()

	box, ok := FindGcBoxFromPtr(h, unsafe.Pointer(uintptr(0x1)))
	assert.False(t, ok)
	assert.Nil(t, box)
}

func TestFindGcBoxFromPtrRejectsNil(t *testing.T) {
	box, ok := FindGcBoxFromPtr(nil, nil)
	assert.False(t, ok)
	assert.Nil(t, box)
}

func TestSafeReadMagicOnNilHeader(t *testing.T) {
	assert.Equal(t, uint32(0), safeReadMagic(nil))
}
