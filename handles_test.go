// Copyright 2024 The rudogc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package gc

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMakeHandleGetRoundtrips(t *testing.T) {
	h := NewThreadHeap(nil)
	defer h.Close()

	scope := NewHandleScope(h.tcb)
	defer scope.Close()

	g := New(h, node{val: 9})
	handle := MakeHandle(scope, g)
	assert.Equal(t, 9, handle.Get().Value().val)
}

func TestHandleScopeCloseRewindsStack(t *testing.T) {
	h := NewThreadHeap(nil)
	defer h.Close()

	before := len(h.tcb.localHandles)
	scope := NewHandleScope(h.tcb)
	assert.Equal(t, before+1, len(h.tcb.localHandles))

	scope.Close()
	assert.Equal(t, before, len(h.tcb.localHandles))
}

func TestMakeHandleSpillsToNewBlockPastCapacity(t *testing.T) {
	h := NewThreadHeap(nil)
	defer h.Close()

	scope := NewHandleScope(h.tcb)
	defer scope.Close()

	for i := 0; i < handleBlockSize+1; i++ {
		g := New(h, node{val: i})
		MakeHandle(scope, g)
	}
	assert.NotNil(t, scope.block.prev)
}

func TestSealedHandleScopePanicsOnHandleAllocation(t *testing.T) {
	if !debugChecks {
		t.Skip("sealing only enforced under debugChecks")
	}
	h := NewThreadHeap(nil)
	defer h.Close()

	ss := NewSealedHandleScope(h.tcb)
	defer ss.Close()

	g := New(h, node{val: 1})
	assert.Panics(t, func() { MakeHandle(ss.s, g) })
}

func TestEscapeMovesHandleToParentScope(t *testing.T) {
	h := NewThreadHeap(nil)
	defer h.Close()

	parent := NewHandleScope(h.tcb)
	defer parent.Close()

	child := NewEscapeableHandleScope(parent)
	g := New(h, node{val: 4})
	handle := MakeHandle(child.HandleScope, g)

	escaped := Escape(child, handle)
	child.Close()

	assert.Equal(t, 4, escaped.Get().Value().val)
	assert.Equal(t, parent, escaped.scope)
}

func TestEscapeTwicePanics(t *testing.T) {
	h := NewThreadHeap(nil)
	defer h.Close()

	parent := NewHandleScope(h.tcb)
	defer parent.Close()

	child := NewEscapeableHandleScope(parent)
	g := New(h, node{val: 5})
	handle := MakeHandle(child.HandleScope, g)

	Escape(child, handle)
	assert.Panics(t, func() { Escape(child, handle) })
}

func TestMaybeHandleEmptyAndFromHandle(t *testing.T) {
	h := NewThreadHeap(nil)
	defer h.Close()

	scope := NewHandleScope(h.tcb)
	defer scope.Close()

	empty := EmptyHandle[node]()
	assert.True(t, empty.IsEmpty())
	_, ok := empty.ToHandle()
	assert.False(t, ok)

	g := New(h, node{val: 6})
	handle := MakeHandle(scope, g)
	full := FromHandle(handle)
	assert.False(t, full.IsEmpty())
	got, ok := full.ToHandle()
	assert.True(t, ok)
	assert.Equal(t, 6, got.Get().Value().val)
}
