// Copyright 2024 The rudogc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package gc

import "unsafe"

// Weak[T] holds a box pointer without keeping the payload alive; it
// increments/decrements only the weak count.
type Weak[T any] struct {
	box unsafe.Pointer
}

// IsNil reports whether w was never assigned.
func (w Weak[T]) IsNil() bool { return w.box == nil }

// Upgrade attempts an atomic strong-count increment conditional on
// non-zero and non-drop-in-progress, returning a fresh Gc[T] or the
// zero value with ok=false.
func (w Weak[T]) Upgrade() (Gc[T], bool) {
	if w.box == nil {
		return Gc[T]{}, false
	}
	if !boxHeader(w.box).tryIncStrongIfLive() {
		return Gc[T]{}, false
	}
	return Gc[T]{box: w.box}, true
}

// Clone increments the weak count and returns a new handle.
func (w Weak[T]) Clone() Weak[T] {
	boxHeader(w.box).incWeak()
	return Weak[T]{box: w.box}
}

// Drop decrements the weak count. When both strong and weak reach
// zero the header is eligible for slot return; as with Gc.Drop,
// actual reclamation happens at the next sweep.
func (w Weak[T]) Drop() {
	boxHeader(w.box).decWeak()
}

// PtrEqWeak compares two weak handles by box identity.
func PtrEqWeak[T any](a, b Weak[T]) bool { return a.box == b.box }
