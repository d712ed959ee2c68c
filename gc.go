// Copyright 2024 The rudogc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package gc

import (
	"unsafe"

	"github.com/rudo-gc/rudogc/internal/gclog"
)

// Gc[T] is a non-nil (once constructed) managed pointer to a
// GcBox[T], giving read-only access to the payload. It is not
// Send/Sync: sharing one across OS threads must go through a
// CrossThreadHandle (crossthread.go).
type Gc[T any] struct {
	box unsafe.Pointer // *gcBoxHeader, payload follows at +headerSize()
}

// New allocates a box for value, runs no further initialization (Go
// has no user-defined "default init" step distinct from the value
// already given), and returns the managed pointer. If an incremental
// major cycle is mid-Marking, the object is marked black immediately
// and never queued for tracing.
//
// A zero-sized T never reaches the page allocator: every such value
// shares the one immortal box zstSingleton returns, so two Gc[struct{}]
// handles compare equal by PtrEq and the box survives every collection
// without ever being swept.
func New[T any](h *Heap, value T) Gc[T] {
	if unsafe.Sizeof(value) == 0 {
		box := zstSingleton()
		boxHeader(box).incStrong()
		return Gc[T]{box: box}
	}

	box, err := alloc(h, unsafe.Sizeof(value), unsafe.Alignof(value))
	if err != nil {
		panic("gc: out of memory: " + err.Error())
	}
	initSmallOrLargeHeader(box, h.threadID, unsafe.Sizeof(value) > uintptr(maxSmallSize))

	hdr := boxHeader(box)
	hdr.traceFn, hdr.dropFn = traceAndDropFns[T]()

	payload := (*T)(payloadOf(box))
	*payload = value

	hdr.clearFlag(flagUnderConstruction)

	if h.majorPhase() == phaseMarking {
		markBox(box)
	}
	return Gc[T]{box: box}
}

func initSmallOrLargeHeader(box unsafe.Pointer, threadID uint64, large bool) {
	if large {
		initLargeObjectHeader(box)
		boxHeader(box).ownerThread = threadID
		return
	}
	initSmallObjectHeader(box, threadID)
}

// traceAndDropFns builds the type-erased trace/drop function pair for
// T once per call site. T's zero value's method set is all Go needs
// to check the Tracer interface; it never calls the method during
// this check.
func traceAndDropFns[T any]() (func(unsafe.Pointer, *Visitor), func(unsafe.Pointer)) {
	var zero T
	var traceFn func(unsafe.Pointer, *Visitor)
	if _, ok := any(zero).(Tracer); ok {
		traceFn = func(payload unsafe.Pointer, v *Visitor) {
			tv := *(*T)(payload)
			any(tv).(Tracer).Trace(v)
		}
	}
	dropFn := func(payload unsafe.Pointer) {
		t := *(*T)(payload)
		if closer, ok := any(t).(interface{ Drop() }); ok {
			closer.Drop()
		}
	}
	return traceFn, dropFn
}

// IsNil reports whether g was never assigned (the Go zero value of
// Gc[T]); there is no other nil state once a Gc[T] is constructed.
func (g Gc[T]) IsNil() bool { return g.box == nil }

// Clone increments the strong count and returns a new handle to the
// same box. It panics in debug builds if the box is drop-in-progress.
func (g Gc[T]) Clone() Gc[T] {
	h := boxHeader(g.box)
	if debugChecks && h.loadFlags()&flagDropInProgress != 0 {
		panic("gc: Clone of a box that is drop-in-progress")
	}
	h.incStrong()
	return Gc[T]{box: g.box}
}

// Value returns a copy of the payload. Because the heap is
// non-moving, repeated calls across collections return data read from
// the same address as long as g itself is still alive.
func (g Gc[T]) Value() T {
	return *(*T)(payloadOf(g.box))
}

// Deref returns a pointer to the payload for callers that want to
// avoid a copy; the pointer is valid only as long as g (or any clone)
// is alive.
func (g Gc[T]) Deref() *T {
	return (*T)(payloadOf(g.box))
}

// AsPtr returns the payload address.
func (g Gc[T]) AsPtr() unsafe.Pointer { return payloadOf(g.box) }

// InternalPtr returns the GcBox header address.
func (g Gc[T]) InternalPtr() unsafe.Pointer { return g.box }

// RefCount answers observability queries on the strong count.
func (g Gc[T]) RefCount() uint64 { return boxHeader(g.box).strongCount() }

// WeakCount reports outstanding Weak[T] handles, excluding the strong
// collective's own anchor on the weak count (see initSmallObjectHeader):
// that anchor is only present while the strong count is still nonzero.
func (g Gc[T]) WeakCount() uint64 {
	h := boxHeader(g.box)
	w := h.weakCount()
	if h.strongCount() == 0 {
		return w
	}
	if w == 0 {
		return 0
	}
	return w - 1
}

// PtrEq compares two handles by box identity.
func PtrEq[T any](a, b Gc[T]) bool { return a.box == b.box }

// Downgrade returns a Weak[T] sharing this box.
func (g Gc[T]) Downgrade() Weak[T] {
	boxHeader(g.box).incWeak()
	return Weak[T]{box: g.box}
}

// Drop decrements the strong count; on transition to zero it runs
// drop_fn and releases the box's strong anchor on the weak count.
// Go has no implicit destructors, so callers that want deterministic
// reclamation call Drop explicitly; forgetting to call it simply
// leaves the object alive until the next mark-sweep decides
// otherwise, never a correctness bug, only a retention one, exactly
// like a non-moving tracing collector with manual refcount
// bookkeeping on top.
func (g Gc[T]) Drop() {
	h := boxHeader(g.box)
	if h.decStrong() != 0 {
		return
	}
	h.setFlag(flagDropInProgress)
	if h.loadFlags()&flagDead == 0 {
		if h.dropFn != nil {
			h.dropFn(payloadOf(g.box))
		}
	}
	// The box itself is not reclaimed here: slot return is driven by
	// the next sweep (eager or lazy), which is the only place that
	// knows whether the slot is still referenced by a live handle or
	// cross-thread root.
	h.decWeak()
}

// cyclicGuard implements the panic-safe bookkeeping for NewCyclicWeak:
// strong=0 on entry, weak=1 for the supplied Weak; on panic, drop
// exactly the Weak (decrement weak by one), leaving the box to be
// reclaimed when weak reaches 0. It never guesses at partially-applied
// strong/weak deltas.
type cyclicGuard struct {
	box     unsafe.Pointer
	settled bool
}

func (g *cyclicGuard) disarm() { g.settled = true }

func (g *cyclicGuard) run() {
	if g.settled {
		return
	}
	h := boxHeader(g.box)
	h.decWeak()
	h.setFlag(flagDead)
	gclog.L().Warn("NewCyclicWeak initializer panicked; box released via weak decrement")
}

// NewCyclicWeak constructs an object that can reference itself via a
// Weak[T] supplied to init. If init panics, the guarded path
// decrements only the weak count it incremented for that Weak[T] and
// re-panics; the box is reclaimed once that weak count reaches zero.
// strong starts at 0 rather than 1 here, so no anchor weak count is
// added until construction actually succeeds and hdr.strong becomes
// nonzero below.
func NewCyclicWeak[T any](h *Heap, init func(Weak[T]) T) Gc[T] {
	box, err := reserveLargeOrSmallForCyclic[T](h)
	if err != nil {
		panic("gc: out of memory: " + err.Error())
	}
	hdr := boxHeader(box)
	*hdr = gcBoxHeader{strong: 0, weak: 1, flags: flagUnderConstruction, ownerThread: h.threadID}

	guard := &cyclicGuard{box: box}
	defer guard.run()

	weak := Weak[T]{box: box}
	value := init(weak)

	traceFn, dropFn := traceAndDropFns[T]()
	hdr.traceFn, hdr.dropFn = traceFn, dropFn
	*(*T)(payloadOf(box)) = value
	hdr.strong = 1
	hdr.incWeak() // strong collective's anchor, balanced by Gc.Drop's decWeak
	hdr.clearFlag(flagUnderConstruction)
	guard.disarm()

	if h.majorPhase() == phaseMarking {
		markBox(box)
	}
	return Gc[T]{box: box}
}

func reserveLargeOrSmallForCyclic[T any](h *Heap) (unsafe.Pointer, error) {
	var zero T
	total := headerSize() + unsafe.Sizeof(zero)
	if sizeClassFor(total) == 0 {
		return reserveLargeObject(h, total)
	}
	return alloc(h, unsafe.Sizeof(zero), unsafe.Alignof(zero))
}
