// Copyright 2024 The rudogc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package gc

import (
	"testing"

	"github.com/rudo-gc/rudogc/internal/osmem"
	"github.com/stretchr/testify/assert"
)

func TestApproximateSPReturnsCallerStackAddress(t *testing.T) {
	low, high, err := osmem.StackBounds()
	if err != nil {
		t.Skip("stack bounds unavailable on this platform")
	}
	sp := approximateSP()
	assert.GreaterOrEqual(t, sp, low)
	assert.LessOrEqual(t, sp, high)
}

func TestCollectAllRootsVisitsLocalHandles(t *testing.T) {
	h := NewThreadHeap(nil)
	defer h.Close()

	scope := NewHandleScope(h.tcb)
	defer scope.Close()

	g := New(h, node{val: 42})
	MakeHandle(scope, g)

	q := &fakeQueue{}
	v := newSequentialVisitor(VisitModeMajor, q)
	collectAllRoots(v)

	found := false
	for _, box := range q.pushed {
		if box == g.box {
			found = true
		}
	}
	assert.True(t, found)
}
