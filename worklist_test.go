// Copyright 2024 The rudogc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package gc

import (
	"testing"
	"unsafe"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ptrAt(n int) unsafe.Pointer { return unsafe.Pointer(uintptr(n + 1)) }

func TestDequePushPopLIFO(t *testing.T) {
	var d deque
	require.True(t, d.pushBottom(ptrAt(1)))
	require.True(t, d.pushBottom(ptrAt(2)))
	require.True(t, d.pushBottom(ptrAt(3)))

	v, ok := d.popBottom()
	require.True(t, ok)
	assert.Equal(t, ptrAt(3), v)

	v, ok = d.popBottom()
	require.True(t, ok)
	assert.Equal(t, ptrAt(2), v)
}

func TestDequeStealIsFIFO(t *testing.T) {
	var d deque
	d.pushBottom(ptrAt(1))
	d.pushBottom(ptrAt(2))
	d.pushBottom(ptrAt(3))

	v, ok := d.steal()
	require.True(t, ok)
	assert.Equal(t, ptrAt(1), v)
}

func TestDequeEmptyPopFails(t *testing.T) {
	var d deque
	_, ok := d.popBottom()
	assert.False(t, ok)
	_, ok = d.steal()
	assert.False(t, ok)
}

func TestDequeOverflowRejectsPush(t *testing.T) {
	var d deque
	for i := 0; i < dequeCapacity; i++ {
		require.True(t, d.pushBottom(ptrAt(i)))
	}
	assert.False(t, d.pushBottom(ptrAt(dequeCapacity)))
}

func TestInboxDrainIntoDeque(t *testing.T) {
	var ib inbox
	var d deque
	ib.push(ptrAt(1))
	ib.push(ptrAt(2))

	ib.drainInto(&d)
	_, ok := d.popBottom()
	assert.True(t, ok)
	_, ok = d.popBottom()
	assert.True(t, ok)
	_, ok = d.popBottom()
	assert.False(t, ok)
}

func TestMarkPoolOwnerOfIsStable(t *testing.T) {
	p := newMarkPool(4)
	box := ptrAt(123)
	first := p.ownerOf(box)
	for i := 0; i < 10; i++ {
		assert.Same(t, first, p.ownerOf(box))
	}
}

func TestMarkPoolDrainedInitiallyTrue(t *testing.T) {
	p := newMarkPool(2)
	assert.True(t, p.drained())
	p.workers[0].dq.pushBottom(ptrAt(1))
	assert.False(t, p.drained())
}

func TestSatbBufferOverflowsToCap(t *testing.T) {
	b := &satbBuffer{cap: 2}
	assert.True(t, b.push(ptrAt(1)))
	assert.True(t, b.push(ptrAt(2)))
	assert.False(t, b.push(ptrAt(3)))

	items := b.drain()
	assert.Len(t, items, 2)
	assert.Empty(t, b.drain())
}

func TestSatbGlobalBufferNeverRefuses(t *testing.T) {
	b := &satbGlobalBuffer{}
	for i := 0; i < 100; i++ {
		assert.True(t, b.push(ptrAt(i)))
	}
	assert.Len(t, b.drain(), 100)
}
