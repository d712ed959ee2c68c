// Copyright 2024 The rudogc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package gc

import (
	"sync"
	"unsafe"
)

// GcMutex is GcRwLock's exclusive-only sibling.
type GcMutex[T any] struct {
	heap  *Heap
	owner unsafe.Pointer
	mu    sync.Mutex
	value T
}

// NewMutex constructs a mutex bound to h and owner, the box that will
// contain it.
func NewMutex[T any](h *Heap, owner unsafe.Pointer, value T) *GcMutex[T] {
	return &GcMutex[T]{heap: h, owner: owner, value: value}
}

// MutexGuard is returned by Lock/TryLock.
type MutexGuard[T any] struct {
	m *GcMutex[T]
}

func (g *MutexGuard[T]) Get() *T { return &g.m.value }

// Release unlocks the mutex. If T implements Tracer, every reachable
// box is re-marked black while Marking is active, the same rule
// GcRwLock.Write's guard follows.
func (g *MutexGuard[T]) Release() {
	if g.m.heap != nil && g.m.heap.majorPhase() == phaseMarking {
		for _, box := range captureGcPtrs(&g.m.value) {
			markAndEnqueueIfMarking(box)
		}
	}
	g.m.mu.Unlock()
}

// Lock takes the mutex, invoking the unified write barrier on
// acquisition.
func (m *GcMutex[T]) Lock() *MutexGuard[T] {
	m.mu.Lock()
	writeBarrier(m.heap, m.owner, nil)
	return &MutexGuard[T]{m: m}
}

// TryLock attempts the mutex without blocking.
func (m *GcMutex[T]) TryLock() (*MutexGuard[T], bool) {
	if !m.mu.TryLock() {
		return nil, false
	}
	writeBarrier(m.heap, m.owner, nil)
	return &MutexGuard[T]{m: m}, true
}
