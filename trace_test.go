// Copyright 2024 The rudogc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package gc

import (
	"testing"
	"unsafe"

	"github.com/stretchr/testify/assert"
)

// fakeQueue is a minimal markQueue recording every pushed box, used to
// assert on enqueue/visit behavior without pulling in the worklist's
// deque machinery.
type fakeQueue struct {
	pushed []unsafe.Pointer
}

func (q *fakeQueue) push(box unsafe.Pointer) {
	q.pushed = append(q.pushed, box)
}

func TestVisitMajorEnqueuesUnmarkedReferent(t *testing.T) {
	h := NewThreadHeap(nil)
	defer h.Close()

	child := New(h, node{val: 1})
	q := &fakeQueue{}
	v := newSequentialVisitor(VisitModeMajor, q)

	Visit(v, &child)
	assert.Equal(t, []unsafe.Pointer{child.box}, q.pushed)

	q.pushed = nil
	Visit(v, &child) // already marked, second visit is a no-op enqueue
	assert.Empty(t, q.pushed)
}

func TestVisitNilGcIsNoop(t *testing.T) {
	q := &fakeQueue{}
	v := newSequentialVisitor(VisitModeMajor, q)
	var g Gc[node]
	Visit(v, &g)
	assert.Empty(t, q.pushed)
}

func TestVisitMinorSkipsOldGenerationReferent(t *testing.T) {
	h := NewThreadHeap(nil)
	defer h.Close()

	child := New(h, node{val: 2})
	pageOf(uintptr(child.box)).generation = 1

	q := &fakeQueue{}
	v := newSequentialVisitor(VisitModeMinor, q)
	Visit(v, &child)
	assert.Empty(t, q.pushed)
}

func TestVisitModeCollectPushesWithoutMarking(t *testing.T) {
	h := NewThreadHeap(nil)
	defer h.Close()

	child := New(h, node{val: 3})
	q := &fakeQueue{}
	v := &Visitor{mode: VisitModeCollect, queue: q}

	Visit(v, &child)
	Visit(v, &child) // collect mode never marks, so both visits enqueue
	assert.Len(t, q.pushed, 2)
}

func TestMarkBoxOnLargeObjectSetsLiveFlag(t *testing.T) {
	h := NewThreadHeap(nil)
	defer h.Close()

	g := New(h, bigPayload{})
	entry, ok := lookupLargeObject(uintptr(g.box))
	assert.True(t, ok)
	entry.live = false

	wasClear := markBox(g.box)
	assert.True(t, wasClear)
	assert.True(t, entry.live)

	wasClear = markBox(g.box)
	assert.False(t, wasClear)
}

func TestTraceBoxNoopOnLeafType(t *testing.T) {
	h := NewThreadHeap(nil)
	defer h.Close()

	g := New(h, 42)
	q := &fakeQueue{}
	v := newSequentialVisitor(VisitModeMajor, q)
	assert.NotPanics(t, func() { traceBox(g.box, v) })
	assert.Empty(t, q.pushed)
}
