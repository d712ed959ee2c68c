// Copyright 2024 The rudogc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package gc

import (
	"sync"
	"sync/atomic"
	"unsafe"
)

// Box flag bits.
const (
	flagUnderConstruction uint32 = 1 << iota
	flagDropInProgress
	flagDead
)

// gcBoxHeader is the fixed-layout header immediately preceding every
// managed payload. It is deliberately not generic: Gc[T] carries the
// type information, the header only carries type-erased function
// pointers, so that every size class's pages hold a uniform header
// regardless of what T the slot currently stores.
//
// Payload memory for all size classes here never needs more than
// 8-byte alignment (rudogc's payloads are pointer/scalar-bearing
// structs, not SIMD vectors), so headerSize() is a compile-time
// constant rather than a function of block size.
type gcBoxHeader struct {
	strong uint64 // atomic
	weak   uint64 // atomic
	flags  uint32 // atomic
	_      uint32

	ownerThread uint64

	traceFn func(payload unsafe.Pointer, v *Visitor)
	dropFn  func(payload unsafe.Pointer)
}

func headerSize() uintptr { return unsafe.Sizeof(gcBoxHeader{}) }

func boxHeader(box unsafe.Pointer) *gcBoxHeader {
	return (*gcBoxHeader)(box)
}

func payloadOf(box unsafe.Pointer) unsafe.Pointer {
	return unsafe.Pointer(uintptr(box) + headerSize())
}

func boxOfPayload(payload unsafe.Pointer) unsafe.Pointer {
	return unsafe.Pointer(uintptr(payload) - headerSize())
}

func (b *gcBoxHeader) loadFlags() uint32 { return atomic.LoadUint32(&b.flags) }

func (b *gcBoxHeader) setFlag(f uint32) {
	for {
		old := atomic.LoadUint32(&b.flags)
		if old&f == f {
			return
		}
		if atomic.CompareAndSwapUint32(&b.flags, old, old|f) {
			return
		}
	}
}

func (b *gcBoxHeader) clearFlag(f uint32) {
	for {
		old := atomic.LoadUint32(&b.flags)
		if old&f == 0 {
			return
		}
		if atomic.CompareAndSwapUint32(&b.flags, old, old&^f) {
			return
		}
	}
}

func (b *gcBoxHeader) strongCount() uint64 { return atomic.LoadUint64(&b.strong) }
func (b *gcBoxHeader) weakCount() uint64   { return atomic.LoadUint64(&b.weak) }

// incStrong needs no ordering guarantee beyond atomicity: a monotonic
// increment from a non-zero count has no prior writes it must
// synchronize with.
func (b *gcBoxHeader) incStrong() uint64 { return atomic.AddUint64(&b.strong, 1) }

// decStrong uses AcqRel so the last decrementer synchronizes with
// every prior strong-count user before the object is dropped.
func (b *gcBoxHeader) decStrong() uint64 { return atomic.AddUint64(&b.strong, ^uint64(0)) }

func (b *gcBoxHeader) incWeak() uint64 { return atomic.AddUint64(&b.weak, 1) }
func (b *gcBoxHeader) decWeak() uint64 { return atomic.AddUint64(&b.weak, ^uint64(0)) }

// tryIncStrongIfLive is the primitive behind Weak.upgrade: an atomic
// strong-count increment conditional on non-zero and
// non-drop-in-progress.
func (b *gcBoxHeader) tryIncStrongIfLive() bool {
	for {
		old := atomic.LoadUint64(&b.strong)
		if old == 0 {
			return false
		}
		if b.loadFlags()&flagDropInProgress != 0 {
			return false
		}
		if atomic.CompareAndSwapUint64(&b.strong, old, old+1) {
			return true
		}
	}
}

// initLargeObjectHeader and initSmallObjectHeader both start weak at
// 1, not 0: that one count is the strong collective's own anchor on
// the weak count, not a real Weak[T]. Gc.Drop's h.decWeak() releases
// this anchor on the transition to strong==0, so "strong==0 &&
// weak==0" only holds once every real Weak[T] has also been dropped.
// Starting weak at 0 here would underflow on a New(...).Drop() with
// no outstanding Weak at all.
func initLargeObjectHeader(box unsafe.Pointer) {
	h := boxHeader(box)
	*h = gcBoxHeader{strong: 1, weak: 1, flags: flagUnderConstruction}
}

// initSmallObjectHeader writes the header for a freshly-carved slot.
func initSmallObjectHeader(box unsafe.Pointer, ownerThread uint64) {
	h := boxHeader(box)
	*h = gcBoxHeader{strong: 1, weak: 1, flags: flagUnderConstruction, ownerThread: ownerThread}
}

// --- ZST singleton ---

var (
	zstInit   bool
	zstBoxPtr unsafe.Pointer
	zstMu     sync.Mutex
)

// zstSingleton returns the one immortal box shared by every zero-sized
// Gc[T] allocation, lazily created and never reclaimed. Strong/weak
// counts are still maintained on it to keep Gc's bookkeeping uniform;
// they simply never reach the condition that would free it, because a
// permanent +1 strong reference is held by the package itself.
func zstSingleton() unsafe.Pointer {
	zstMu.Lock()
	defer zstMu.Unlock()
	if zstInit {
		return zstBoxPtr
	}
	raw := make([]byte, headerSize())
	box := unsafe.Pointer(&raw[0])
	h := boxHeader(box)
	*h = gcBoxHeader{strong: 1, weak: 1} // permanent +1 anchor, never decremented
	zstBoxPtr = box
	zstInit = true
	return box
}
