// Copyright 2024 The rudogc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package gc

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// Heap is one OS thread's local heap: its owned pages, its TLABs, the
// dirty-page list the generational barrier appends to, the SATB
// overflow buffer, and its registered handle state. There is no
// global shared heap: every Heap is reachable only
// through the thread that created it, except for the handful of
// process-wide, explicitly cross-thread structures (large-object map,
// orphan tables, cross-thread root maps).
type Heap struct {
	threadID uint64

	tlabs [numSizeClasses]tlab

	ownedPages []*page
	ownedLarge []largeMapping

	// dirtyMu protects dirtyPages; appends use the double-check
	// pattern described in barrier.go.
	dirtyMu    sync.Mutex
	dirtyPages []*page

	// satbOverflow points at the process-wide SATB overflow buffer
	// (globalSATBOverflow); the fast path lives on the TCB (satbBuffer)
	// so barrier.go doesn't need to lock per-write. Heap only holds the
	// overflow spillover.
	satbOverflow *satbGlobalBuffer

	local  *HandleScope
	tcb    *tcb
	young  youngStats
	old    oldStats
	config *Config

	// lastStackSnapshot is the most recent conservative-scan word set,
	// consulted by reserveWithBombAvoidance. It is only ever read by
	// the owning thread or during a STW handshake.
	lastStackSnapshot []uintptr
}

type youngStats struct {
	bytesAllocated uint64
	bytesSurvived  uint64
}

type oldStats struct {
	bytesAllocated uint64
}

// ctx is used only to bound page-reservation throttling
// (golang.org/x/sync/semaphore requires a context); the collector has
// no cancellable long-running operations of its own, so this is
// always context.Background() wrapped so a future caller could plumb
// shutdown through it without changing reservePage's signature.
func (h *Heap) ctx() context.Context { return context.Background() }

// --- Thread registry ---

var (
	registryMu sync.Mutex
	registry   = map[uint64]*tcb{}
	nextThread uint64
)

// tcb is the per-thread descriptor referenced through an OS-thread
// local. Go does not expose OS thread identity to user code the way
// pthread_self does, so rudogc mints its own thread handle
// (NewThreadHeap) that callers hold for the lifetime of the OS thread
// they've pinned with runtime.LockOSThread; that handle *is* the TCB
// reference.
type tcb struct {
	id   uint64
	heap *Heap

	localHandles []*HandleScope
	asyncScopes  map[uuid.UUID]*AsyncHandleScope
	asyncMu      sync.Mutex

	crossThreadMu sync.Mutex
	crossThread   map[uint64]*crossThreadEntry

	satb satbBuffer
}

// NewThreadHeap creates a new per-thread heap and registers its TCB
// with the process-wide thread registry. Callers are expected to call
// this once per OS thread (after runtime.LockOSThread) and Close it
// before the thread exits.
func NewThreadHeap(cfg *Config) *Heap {
	registryMu.Lock()
	nextThread++
	id := nextThread
	registryMu.Unlock()

	if cfg == nil {
		cfg = DefaultConfig()
	}

	h := &Heap{threadID: id, config: cfg, satbOverflow: globalSATBOverflow}
	t := &tcb{
		id:          id,
		heap:        h,
		asyncScopes: map[uuid.UUID]*AsyncHandleScope{},
		crossThread: map[uint64]*crossThreadEntry{},
		satb:        satbBuffer{cap: cfg.RememberedBufferLen},
	}
	h.tcb = t

	registryMu.Lock()
	registry[id] = t
	registryMu.Unlock()
	return h
}

// Close tears down a thread's heap: pages are orphaned, and its
// cross-thread root map is moved to the process-wide orphan table.
func (h *Heap) Close() {
	orphanizePages(h)
	orphanizeCrossThreadRoots(h.tcb)

	registryMu.Lock()
	delete(registry, h.threadID)
	registryMu.Unlock()
}

// ThreadID returns the handle the TCB registry uses for this heap,
// the value a GcHandle compares against origin_thread_id.
func (h *Heap) ThreadID() uint64 { return h.threadID }

func lookupTCB(id uint64) (*tcb, bool) {
	registryMu.Lock()
	t, ok := registry[id]
	registryMu.Unlock()
	return t, ok
}

// allTCBs snapshots the process-wide thread registry. Every root-scan
// and sweep pass that needs to walk "every thread" takes
// this snapshot once up front rather than holding registryMu for the
// whole walk.
func allTCBs() []*tcb {
	registryMu.Lock()
	defer registryMu.Unlock()
	tcbs := make([]*tcb, 0, len(registry))
	for _, t := range registry {
		tcbs = append(tcbs, t)
	}
	return tcbs
}

// HeapSize, YoungSize, OldSize answer current heap/young/old size
// queries; they return 0 if the current thread has no heap, which in
// this API means the caller must pass a nil-safe Heap.
func (h *Heap) HeapSize() uint64 {
	if h == nil {
		return 0
	}
	return h.young.bytesAllocated + h.old.bytesAllocated
}

func (h *Heap) YoungSize() uint64 {
	if h == nil {
		return 0
	}
	return h.young.bytesAllocated
}

func (h *Heap) OldSize() uint64 {
	if h == nil {
		return 0
	}
	return h.old.bytesAllocated
}
