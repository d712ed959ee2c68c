// Copyright 2024 The rudogc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package gc

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAsyncHandleGetAndToGc(t *testing.T) {
	h := NewThreadHeap(nil)
	defer h.Close()

	scope := NewAsyncHandleScope(h.tcb)
	defer scope.Close()

	g := New(h, node{val: 1})
	handle := MakeAsyncHandle(scope, g)

	assert.Equal(t, g.box, handle.Get())
	assert.Equal(t, 1, handle.ToGc().Value().val)
}

func TestAsyncHandleScopeSurvivesMajorGC(t *testing.T) {
	h := NewThreadHeap(nil)
	defer h.Close()

	scope := NewAsyncHandleScope(h.tcb)
	defer scope.Close()

	g := New(h, node{val: 2})
	handle := MakeAsyncHandle(scope, g)

	CollectMajor(h)
	assert.Equal(t, 2, handle.ToGc().Value().val)
}

func TestAsyncHandleScopeCloseRemovesRegistration(t *testing.T) {
	h := NewThreadHeap(nil)
	defer h.Close()

	scope := NewAsyncHandleScope(h.tcb)
	id := scope.ID()

	h.tcb.asyncMu.Lock()
	_, present := h.tcb.asyncScopes[id]
	h.tcb.asyncMu.Unlock()
	assert.True(t, present)

	scope.Close()

	h.tcb.asyncMu.Lock()
	_, present = h.tcb.asyncScopes[id]
	h.tcb.asyncMu.Unlock()
	assert.False(t, present)
}

func TestAsyncHandleScopeWithGuardClosesAfterFn(t *testing.T) {
	h := NewThreadHeap(nil)
	defer h.Close()

	scope := NewAsyncHandleScope(h.tcb)
	var ran bool
	scope.WithGuard(func(s *AsyncHandleScope) {
		ran = true
		assert.Equal(t, scope, s)
	})
	assert.True(t, ran)

	h.tcb.asyncMu.Lock()
	_, present := h.tcb.asyncScopes[scope.ID()]
	h.tcb.asyncMu.Unlock()
	assert.False(t, present)
}
