// Copyright 2024 The rudogc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package gc

import (
	"sync"
	"unsafe"
)

// GcRwLock is the concurrent counterpart to GcCell: a reader/writer
// lock guarding a value that may itself hold GC pointers. Go's
// sync.RWMutex already gives the parking-lot-style fairness wanted
// here (queued writers are not starved by a steady stream of
// readers), so this type is a thin wrapper that adds the barrier and
// black-marking hooks around it rather than reimplementing lock
// internals.
type GcRwLock[T any] struct {
	heap  *Heap
	owner unsafe.Pointer
	mu    sync.RWMutex
	value T
}

// NewRwLock constructs a lock bound to h and owner, the box that will
// contain it.
func NewRwLock[T any](h *Heap, owner unsafe.Pointer, value T) *GcRwLock[T] {
	return &GcRwLock[T]{heap: h, owner: owner, value: value}
}

// RwReadGuard is returned by Read/TryRead.
type RwReadGuard[T any] struct {
	l *GcRwLock[T]
}

func (g RwReadGuard[T]) Get() T   { return g.l.value }
func (g RwReadGuard[T]) Release() { g.l.mu.RUnlock() }

// RwWriteGuard is returned by Write/TryWrite.
type RwWriteGuard[T any] struct {
	l *GcRwLock[T]
}

func (g *RwWriteGuard[T]) Get() *T { return &g.l.value }

// Release unlocks the writer side. If T implements Tracer, every
// reachable box is re-marked black while Marking is active.
func (g *RwWriteGuard[T]) Release() {
	if g.l.heap != nil && g.l.heap.majorPhase() == phaseMarking {
		for _, box := range captureGcPtrs(&g.l.value) {
			markAndEnqueueIfMarking(box)
		}
	}
	g.l.mu.Unlock()
}

// Read takes the shared lock.
func (l *GcRwLock[T]) Read() RwReadGuard[T] {
	l.mu.RLock()
	return RwReadGuard[T]{l: l}
}

// TryRead attempts the shared lock without blocking.
func (l *GcRwLock[T]) TryRead() (RwReadGuard[T], bool) {
	if !l.mu.TryRLock() {
		return RwReadGuard[T]{}, false
	}
	return RwReadGuard[T]{l: l}, true
}

// Write takes the exclusive lock, invoking the unified write barrier
// on acquisition.
func (l *GcRwLock[T]) Write() *RwWriteGuard[T] {
	l.mu.Lock()
	writeBarrier(l.heap, l.owner, nil)
	return &RwWriteGuard[T]{l: l}
}

// TryWrite attempts the exclusive lock without blocking.
func (l *GcRwLock[T]) TryWrite() (*RwWriteGuard[T], bool) {
	if !l.mu.TryLock() {
		return nil, false
	}
	writeBarrier(l.heap, l.owner, nil)
	return &RwWriteGuard[T]{l: l}, true
}
