// Copyright 2024 The rudogc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package gc

import "sync/atomic"

// CollectCondition decides, given a heap, whether a collection should
// run and which kind. It is the policy hook external callers can swap
// in to replace DefaultCollectCondition.
type CollectCondition func(h *Heap) CollectDecision

// CollectDecision is CollectCondition's verdict.
type CollectDecision int

const (
	// CollectNone means no collection is warranted right now.
	CollectNone CollectDecision = iota
	// CollectMinorDecision requests a minor cycle.
	CollectMinorDecision
	// CollectMajorDecision requests a major cycle, incremental if
	// h.config.IncrementalEnabled, eager STW otherwise.
	CollectMajorDecision
)

// DefaultCollectCondition mirrors the generational trigger this
// package already uses internally (shouldRunMinor's young-debt
// threshold), promoted to a major decision once old-generation
// occupancy crosses PromotionOccupancyThreshold of HeapSize. A real
// embedder is expected to swap this for a policy tuned to its own
// allocation pattern; this is deliberately conservative: a cheap,
// racy-is-fine read of cumulative counters, not a precise accounting
// pass.
func DefaultCollectCondition(h *Heap) CollectDecision {
	if !shouldRunMinor(h) {
		return CollectNone
	}
	total := h.HeapSize()
	if total == 0 {
		return CollectMinorDecision
	}
	if float64(h.OldSize())/float64(total) >= h.config.PromotionOccupancyThreshold {
		return CollectMajorDecision
	}
	return CollectMinorDecision
}

var collectCondition atomic.Pointer[CollectCondition]

func init() {
	var fn CollectCondition = DefaultCollectCondition
	collectCondition.Store(&fn)
}

// SetCollectCondition installs fn as the process-wide collection
// policy. A nil fn restores DefaultCollectCondition.
func SetCollectCondition(fn CollectCondition) {
	if fn == nil {
		fn = DefaultCollectCondition
	}
	collectCondition.Store(&fn)
}

func currentCollectCondition() CollectCondition {
	return *collectCondition.Load()
}

// Collect evaluates the installed CollectCondition against h and runs
// whatever it decides, or does nothing if it decides against running
// one.
// It reports which kind actually ran, if any.
func Collect(h *Heap) CollectionKindRun {
	switch currentCollectCondition()(h) {
	case CollectMinorDecision:
		CollectMinor(h)
		return RanMinor
	case CollectMajorDecision:
		if h.config.IncrementalEnabled {
			CollectMajorIncremental(h, h.config.IncrementSize)
		} else {
			CollectMajor(h)
		}
		return RanMajor
	default:
		return RanNothing
	}
}

// CollectFull forces a full major cycle, synchronously, STW start to
// finish, bypassing the installed CollectCondition entirely. If an
// incremental cycle is already in flight, that cycle is driven to
// completion rather than abandoned and its stats are returned; no
// second cycle is started. A forced collection never leaves a
// partially-marked heap behind.
func CollectFull(h *Heap) MajorStats {
	majorMu.Lock()
	inFlight := majorState != nil
	majorMu.Unlock()
	if inFlight {
		return FinalizeMajorCycle(h)
	}
	return CollectMajor(h)
}

// CollectionKindRun reports what Collect actually did.
type CollectionKindRun int

const (
	RanNothing CollectionKindRun = iota
	RanMinor
	RanMajor
)
