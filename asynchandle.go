// Copyright 2024 The rudogc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package gc

import (
	"sync"
	"unsafe"

	"github.com/google/uuid"
)

// AsyncHandleScope is a heap-allocated handle block with a unique
// scope id, registered with the owning TCB so it survives across
// suspension points: the async equivalent of HandleScope, which is
// bound to a single call stack. The id is a uuid rather than a
// counter because async scopes can be created and
// torn down from arbitrary goroutines without coordinating through the
// owning TCB first, the same reasoning hydraide/hydraide applies to
// its distributed swamp identifiers.
type AsyncHandleScope struct {
	id   uuid.UUID
	t    *tcb
	mu   sync.Mutex
	slots []unsafe.Pointer
}

// NewAsyncHandleScope registers a new scope with t.
func NewAsyncHandleScope(t *tcb) *AsyncHandleScope {
	s := &AsyncHandleScope{id: uuid.New(), t: t}
	t.asyncMu.Lock()
	if t.asyncScopes == nil {
		t.asyncScopes = make(map[uuid.UUID]*AsyncHandleScope)
	}
	t.asyncScopes[s.id] = s
	t.asyncMu.Unlock()
	return s
}

// ID returns the scope's registration id.
func (s *AsyncHandleScope) ID() uuid.UUID { return s.id }

// AsyncHandle is a Copy-able reference produced by an AsyncHandleScope
type AsyncHandle[T any] struct {
	scope *AsyncHandleScope
	index int
}

// MakeAsyncHandle appends g's box pointer to s's slot list.
func MakeAsyncHandle[T any](s *AsyncHandleScope, g Gc[T]) AsyncHandle[T] {
	s.mu.Lock()
	idx := len(s.slots)
	s.slots = append(s.slots, g.box)
	s.mu.Unlock()
	return AsyncHandle[T]{scope: s, index: idx}
}

// Get dereferences the handle's current box pointer.
func (h AsyncHandle[T]) Get() unsafe.Pointer {
	h.scope.mu.Lock()
	defer h.scope.mu.Unlock()
	return h.scope.slots[h.index]
}

// ToGc converts the handle back into a Gc[T].
func (h AsyncHandle[T]) ToGc() Gc[T] {
	return Gc[T]{box: h.Get()}
}

// WithGuard runs fn while the scope is guaranteed registered, the Go
// analogue of an RAII guard scope: the scope is already registered by
// NewAsyncHandleScope, and since Go has no implicit destructors
// WithGuard closes it once fn returns.
func (s *AsyncHandleScope) WithGuard(fn func(*AsyncHandleScope)) {
	defer s.Close()
	fn(s)
}

// Close unregisters the scope from its TCB. Any handles derived from
// it become invalid afterward.
func (s *AsyncHandleScope) Close() {
	s.t.asyncMu.Lock()
	delete(s.t.asyncScopes, s.id)
	s.t.asyncMu.Unlock()
}

// visitAsyncScopes enumerates every slot of every registered async
// scope on t.
func visitAsyncScopes(t *tcb, v *Visitor) {
	t.asyncMu.Lock()
	scopes := make([]*AsyncHandleScope, 0, len(t.asyncScopes))
	for _, s := range t.asyncScopes {
		scopes = append(scopes, s)
	}
	t.asyncMu.Unlock()

	for _, s := range scopes {
		s.mu.Lock()
		for _, box := range s.slots {
			if box != nil {
				v.visitBox(box)
			}
		}
		s.mu.Unlock()
	}
}
