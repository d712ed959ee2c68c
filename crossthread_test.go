// Copyright 2024 The rudogc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package gc

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCrossThreadHandleResolveOnOriginThread(t *testing.T) {
	h := NewThreadHeap(nil)
	defer h.Close()

	g := New(h, node{val: 1})
	gh := CrossThreadHandle(g)
	defer gh.Drop()

	resolved := gh.Resolve(h)
	assert.Equal(t, 1, resolved.Value().val)
}

func TestCrossThreadHandleResolvePanicsOffOrigin(t *testing.T) {
	h1 := NewThreadHeap(nil)
	defer h1.Close()
	h2 := NewThreadHeap(nil)
	defer h2.Close()

	g := New(h1, node{val: 2})
	gh := CrossThreadHandle(g)
	defer gh.Drop()

	assert.Panics(t, func() { gh.Resolve(h2) })

	_, ok := gh.TryResolve(h2)
	assert.False(t, ok)
}

func TestCrossThreadHandleIsValidAfterDrop(t *testing.T) {
	h := NewThreadHeap(nil)
	defer h.Close()

	g := New(h, node{val: 3})
	gh := CrossThreadHandle(g)
	assert.True(t, gh.IsValid())

	gh.Drop()
	assert.False(t, gh.IsValid())
}

func TestCrossThreadHandleCloneIndependentLifetimes(t *testing.T) {
	h := NewThreadHeap(nil)
	defer h.Close()

	g := New(h, node{val: 4})
	gh := CrossThreadHandle(g)
	clone := gh.Clone()

	gh.Drop()
	assert.True(t, clone.IsValid())
	clone.Drop()
}

func TestWeakCrossThreadHandleResolveRequiresLiveBox(t *testing.T) {
	h := NewThreadHeap(nil)
	defer h.Close()

	g := New(h, node{val: 5})
	weak := WeakCrossThreadHandleOf(g)
	defer weak.Drop()

	g.Drop() // last strong ref gone
	_, ok := weak.Resolve(h)
	assert.False(t, ok)
}

func TestCrossThreadHandleDowngradeThenUpgrade(t *testing.T) {
	h := NewThreadHeap(nil)
	defer h.Close()

	g := New(h, node{val: 6})
	gh := CrossThreadHandle(g)

	weak := gh.Downgrade()
	assert.False(t, gh.IsValid()) // downgrade unregisters the strong root

	resolved, ok := weak.Resolve(h)
	assert.True(t, ok)
	assert.Equal(t, 6, resolved.Value().val)
	resolved.Drop()
	weak.Drop()
}

func TestOrphanizeCrossThreadRootsMovesEntriesToOrphanTable(t *testing.T) {
	h := NewThreadHeap(nil)

	g := New(h, node{val: 7})
	gh := CrossThreadHandle(g)

	orphanizeCrossThreadRoots(h.tcb)
	h.Close()

	assert.True(t, gh.IsValid())

	orphanMuCT.Lock()
	m, ok := orphanTable[h.tcb.id]
	orphanMuCT.Unlock()
	assert.True(t, ok)
	assert.NotEmpty(t, m)

	gh.Drop()
}
