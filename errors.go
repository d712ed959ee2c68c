// Copyright 2024 The rudogc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package gc

import (
	"sync/atomic"

	"github.com/rudo-gc/rudogc/internal/gclog"
)

// FallbackReason names why an incremental major cycle abandoned
// incremental progress and fell back to a synchronous STW finish
type FallbackReason int32

const (
	fallbackNone FallbackReason = iota
	// FallbackDirtyPagesExceeded fires when the dirty-page snapshot
	// grows past Config.MaxDirtyPages.
	FallbackDirtyPagesExceeded
	// FallbackSliceTimeout fires when a single mark_slice call runs
	// longer than Config.SliceTimeout.
	FallbackSliceTimeout
	// FallbackWorklistUnbounded fires when the worklist grows past 10x
	// the size it had at the cycle's Snapshot.
	FallbackWorklistUnbounded
	// FallbackSatbBufferOverflow fires when both a thread's local SATB
	// buffer and the global overflow buffer are full.
	FallbackSatbBufferOverflow
)

func (r FallbackReason) String() string {
	switch r {
	case FallbackDirtyPagesExceeded:
		return "DirtyPagesExceeded"
	case FallbackSliceTimeout:
		return "SliceTimeout"
	case FallbackWorklistUnbounded:
		return "WorklistUnbounded"
	case FallbackSatbBufferOverflow:
		return "SatbBufferOverflow"
	default:
		return "None"
	}
}

// pendingFallback is the process-wide "a fallback has been requested"
// latch mark_slice checks at the top of every call. It is a single
// atomic rather than per-heap state because an incremental major
// cycle spans every thread's cooperation, the same way a single
// process-wide phase word would.
var pendingFallback int32

// requestFallback records reason and latches pendingFallback so the
// next mark_slice call (on any thread) observes it and returns
// Fallback{reason} instead of making further incremental progress.
func requestFallback(reason FallbackReason) {
	if atomic.CompareAndSwapInt32(&pendingFallback, 0, int32(reason)) {
		gclog.L().Warnw("major GC falling back to stop-the-world", "reason", reason.String())
	}
}

func fallbackRequested() (FallbackReason, bool) {
	r := atomic.LoadInt32(&pendingFallback)
	if r == 0 {
		return fallbackNone, false
	}
	return FallbackReason(r), true
}

func clearFallback() {
	atomic.StoreInt32(&pendingFallback, 0)
}
