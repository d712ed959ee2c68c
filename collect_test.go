// Copyright 2024 The rudogc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package gc

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDefaultCollectConditionNoneBelowDebtThreshold(t *testing.T) {
	h := NewThreadHeap(nil)
	defer h.Close()

	assert.Equal(t, CollectNone, DefaultCollectCondition(h))
}

func TestDefaultCollectConditionMinorOnceDebtCrossed(t *testing.T) {
	cfg := NewConfig(WithMinorDebtBytes(1))
	h := NewThreadHeap(cfg)
	defer h.Close()

	New(h, node{val: 1})
	assert.Equal(t, CollectMinorDecision, DefaultCollectCondition(h))
}

func TestDefaultCollectConditionMajorOncePromotionThresholdCrossed(t *testing.T) {
	cfg := NewConfig(WithMinorDebtBytes(1), WithPromotionOccupancyThreshold(0))
	h := NewThreadHeap(cfg)
	defer h.Close()

	New(h, node{val: 1})
	h.young.bytesAllocated = cfg.MinorDebtBytes
	assert.Equal(t, CollectMajorDecision, DefaultCollectCondition(h))
}

func TestCollectRunsWhateverTheInstalledConditionDecides(t *testing.T) {
	SetCollectCondition(func(h *Heap) CollectDecision { return CollectMinorDecision })
	defer SetCollectCondition(nil)

	h := NewThreadHeap(nil)
	defer h.Close()

	assert.Equal(t, RanMinor, Collect(h))
}

func TestCollectRunsNothingWhenConditionDeclines(t *testing.T) {
	SetCollectCondition(func(h *Heap) CollectDecision { return CollectNone })
	defer SetCollectCondition(nil)

	h := NewThreadHeap(nil)
	defer h.Close()

	assert.Equal(t, RanNothing, Collect(h))
}

func TestSetCollectConditionNilRestoresDefault(t *testing.T) {
	SetCollectCondition(func(h *Heap) CollectDecision { return CollectMajorDecision })
	SetCollectCondition(nil)
	defer SetCollectCondition(nil)

	h := NewThreadHeap(nil)
	defer h.Close()

	assert.Equal(t, CollectNone, currentCollectCondition()(h))
}
