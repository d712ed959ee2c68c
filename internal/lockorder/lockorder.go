// Copyright 2024 The rudogc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package lockorder debug-validates the collector's three coarse lock
// tiers: LocalHeap (1), GlobalMarkState (2), GcRequest (3). Acquisition
// must be monotonically non-decreasing.
//
// Go gives user code no ambient per-goroutine storage the way a
// language runtime can stash state on its own per-goroutine/per-thread
// structures, so this package cannot track "the current goroutine's
// held-lock high-water mark" implicitly.
// Instead callers thread a *Chain explicitly through the same call path
// that already carries a Heap or mark-state pointer, exactly like this
// module's other goroutine-identity-sensitive code (crossthread.go's
// explicit `current *Heap` parameter instead of an implicit
// current-thread lookup).
package lockorder

import "fmt"

// Tier names the three coarse lock levels in the collector's locking
// discipline.
type Tier int

const (
	LocalHeap Tier = iota + 1
	GlobalMarkState
	GcRequest
)

func (t Tier) String() string {
	switch t {
	case LocalHeap:
		return "LocalHeap"
	case GlobalMarkState:
		return "GlobalMarkState"
	case GcRequest:
		return "GcRequest"
	default:
		return "Unknown"
	}
}

// Chain tracks the highest lock tier acquired so far along one logical
// call path. A fresh Chain starts at tier 0 (nothing held).
type Chain struct {
	enabled bool
	held    Tier
}

// NewChain starts a validation chain; enabled mirrors the package's
// debugChecks switch so production builds pay nothing for this.
func NewChain(enabled bool) *Chain {
	return &Chain{enabled: enabled}
}

// Acquire panics if tier is lower than the highest tier already
// acquired on this chain, then records tier as the new high-water
// mark. Per-queue mutexes (worklist.go's inbox, satbBuffer) are not
// tracked through a Chain.
func (c *Chain) Acquire(tier Tier) {
	if c == nil || !c.enabled {
		return
	}
	if tier < c.held {
		panic(fmt.Sprintf("lockorder: acquired %s after %s, violates monotonic ordering", tier, c.held))
	}
	c.held = tier
}

// Release lowers the high-water mark to just below the given tier
// (tier-1) once the caller has released that tier and every lock
// above it. Chain does not track a true
// stack of held locks (nesting depth), only the highest tier reached;
// Release exists so a long-lived Chain (e.g. one per collection cycle)
// can be reused across sequential, non-overlapping critical sections.
func (c *Chain) Release(tier Tier) {
	if c == nil || !c.enabled {
		return
	}
	c.held = tier - 1
}
