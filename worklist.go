// Copyright 2024 The rudogc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package gc

import (
	"sync"
	"sync/atomic"
	"unsafe"
)

// deque is a Chase-Lev work-stealing deque. The owner pushes and pops
// from the bottom (LIFO, cache-friendly); other workers steal from the
// top, CAS-guarded: push releases on the bottom advance, steal CASes
// the top with acquire/release. The buffer is fixed-size rather than
// a growable ring: an overflow simply falls back to pushing into the
// inbox, the overflow/transfer path defined below.
const dequeCapacity = 2048

type deque struct {
	buf  [dequeCapacity]unsafe.Pointer
	top  int64 // atomic, only stealers advance this
	bot  int64 // atomic, only the owner advances this
}

// pushBottom is the owner-only fast path. It never blocks; callers
// that overflow the ring route the item to the inbox instead (see
// markWorker.push).
func (d *deque) pushBottom(box unsafe.Pointer) bool {
	b := atomic.LoadInt64(&d.bot)
	t := atomic.LoadInt64(&d.top)
	if b-t >= dequeCapacity {
		return false
	}
	d.buf[b%dequeCapacity] = box
	atomic.StoreInt64(&d.bot, b+1) // Release: publishes the slot write above
	return true
}

// popBottom is the owner-only fast path LIFO pop.
func (d *deque) popBottom() (unsafe.Pointer, bool) {
	b := atomic.LoadInt64(&d.bot)
	t := atomic.LoadInt64(&d.top)
	if b <= t {
		return nil, false
	}
	b--
	atomic.StoreInt64(&d.bot, b)
	box := d.buf[b%dequeCapacity]
	if b == t {
		// Last element: race with a concurrent steal via CAS on top.
		if !atomic.CompareAndSwapInt64(&d.top, t, t+1) {
			box = nil
		}
		atomic.StoreInt64(&d.bot, t+1)
	}
	if box == nil {
		return nil, false
	}
	return box, true
}

// steal is the remote-worker path, FIFO from the top, CAS-guarded.
func (d *deque) steal() (unsafe.Pointer, bool) {
	t := atomic.LoadInt64(&d.top)
	b := atomic.LoadInt64(&d.bot)
	if t >= b {
		return nil, false
	}
	box := d.buf[t%dequeCapacity]
	if !atomic.CompareAndSwapInt64(&d.top, t, t+1) {
		return nil, false
	}
	return box, true
}

// inbox is an MPMC "pending-work" channel protected by a mutex. Any
// worker may push into another worker's inbox (push-based transfer
// when tracing a pointer owned by a different worker); only the owner
// drains it.
type inbox struct {
	mu    sync.Mutex
	items []unsafe.Pointer
}

func (ib *inbox) push(box unsafe.Pointer) {
	ib.mu.Lock()
	ib.items = append(ib.items, box)
	ib.mu.Unlock()
}

func (ib *inbox) drainInto(dq *deque) {
	ib.mu.Lock()
	items := ib.items
	ib.items = nil
	ib.mu.Unlock()
	for _, box := range items {
		if !dq.pushBottom(box) {
			// Ring is saturated; push straight back to the inbox so
			// nothing is lost, matching the "never blocks" contract.
			ib.push(box)
		}
	}
}

// markWorker is one participant in the parallel-marking pool.
// It owns a deque and an inbox (ibox); other workers hand it new work
// only through its ibox.push, and touch its deque only to steal from
// the top when their own queues are empty (see pop).
type markWorker struct {
	id       int
	pool     *markPool
	dq       deque
	ibox     inbox
	local    uint64 // objects this worker has marked, for metrics
	wakeChan chan struct{}
}

// wake returns this worker's wake channel, created up front in
// newMarkPool; pushers use it to rouse an idle owner instead of
// busy-polling.
func (w *markWorker) wake() chan struct{} {
	return w.wakeChan
}

func (w *markWorker) nudge() {
	select {
	case w.wakeChan <- struct{}{}:
	default:
	}
}

// push implements the markQueue interface so traceBox/enqueue/markBox
// can drive a parallel visitor exactly like a sequential one.
func (w *markWorker) push(box unsafe.Pointer) {
	if !w.dq.pushBottom(box) {
		w.ibox.push(box)
	}
	atomic.AddUint64(&w.local, 1)
	w.nudge()
}

// route implements VisitModeParallel's dispatch. Ownership is derived
// from the page the pointer lives on; large objects and objects on
// pages this pool hasn't assigned an
// owner for fall back to the calling worker's own queue.
func (w *markWorker) route(box unsafe.Pointer) {
	owner := w.pool.ownerOf(box)
	if owner == w {
		if markBox(box) {
			w.push(box)
		}
		return
	}
	// A remote worker still needs the was-clear check so the same
	// object is not pushed twice; the mark bitmap itself is the only
	// shared state two workers touch for the same object, which is
	// safe because bitmapWords.set is a CAS loop.
	if markBox(box) {
		owner.ibox.push(box)
		owner.nudge()
		atomic.AddUint64(&w.pool.routed, 1)
	}
}

// pop services one worker's drain loop : drain
// the inbox, try the local deque, then attempt to steal.
func (w *markWorker) pop() (unsafe.Pointer, bool) {
	w.ibox.drainInto(&w.dq)
	if box, ok := w.dq.popBottom(); ok {
		return box, true
	}
	for _, other := range w.pool.workers {
		if other == w {
			continue
		}
		if box, ok := other.dq.steal(); ok {
			return box, true
		}
	}
	return nil, false
}

// markPool is the parallel-marking worker pool, created by
// CollectMajor for its eager marking pass when Config.ParallelMarking
// is set and Config.MarkWorkers > 1.
// golang.org/x/sync/errgroup supervises the workers' lifetime and
// surfaces the first panic from any of them.
type markPool struct {
	workers []*markWorker
	routed  uint64 // objects pushed cross-worker via an inbox, for metrics

	idleCount int32 // atomic, workers currently parked at the coordinator barrier
	done      chan struct{}
	doneOnce  sync.Once
}

func newMarkPool(n int) *markPool {
	pool := &markPool{workers: make([]*markWorker, n), done: make(chan struct{})}
	for i := range pool.workers {
		pool.workers[i] = &markWorker{id: i, pool: pool, wakeChan: make(chan struct{}, 1)}
	}
	return pool
}

// doneCh is the coordinator barrier's signal: closed once every
// worker has simultaneously observed an empty deque and inbox.
func (p *markPool) doneCh() chan struct{} { return p.done }

func (p *markPool) closeDone() {
	p.doneOnce.Do(func() { close(p.done) })
}

// ownerOf assigns a page (or large-object address) to a worker by a
// simple address-hash, so the same page is always routed to the same
// worker for the lifetime of one marking phase and cache locality on
// its bitmap is preserved.
func (p *markPool) ownerOf(box unsafe.Pointer) *markWorker {
	base := uintptr(box) &^ pageMask()
	h := (base >> 12) * 2654435761 // Knuth multiplicative hash of the page number
	return p.workers[h%uint(len(p.workers))]
}

// drained reports whether every worker's deque and inbox are empty,
// the condition for the coordinator barrier.
func (p *markPool) drained() bool {
	for _, w := range p.workers {
		w.ibox.mu.Lock()
		empty := len(w.ibox.items) == 0
		w.ibox.mu.Unlock()
		if !empty {
			return false
		}
		if atomic.LoadInt64(&w.dq.bot) > atomic.LoadInt64(&w.dq.top) {
			return false
		}
	}
	return true
}

// --- SATB buffers ---

// satbBuffer is one thread's fixed-capacity SATB buffer.
// push reports false when full, at which point the caller
// (barrier.go's satbRecord) spills to the process-wide overflow
// buffer instead.
type satbBuffer struct {
	mu    sync.Mutex
	items []unsafe.Pointer
	cap   int
}

func (b *satbBuffer) push(oldBox unsafe.Pointer) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	limit := b.cap
	if limit == 0 {
		limit = defaultSatbBufferCap
	}
	if len(b.items) >= limit {
		return false
	}
	b.items = append(b.items, oldBox)
	return true
}

// drain empties the buffer and returns its contents, used by
// FinalMark to flush every thread's buffer into the worklist.
func (b *satbBuffer) drain() []unsafe.Pointer {
	b.mu.Lock()
	defer b.mu.Unlock()
	items := b.items
	b.items = nil
	return items
}

const defaultSatbBufferCap = 4096

// satbGlobalBuffer is the process-wide overflow buffer a thread spills
// into once its own satbBuffer is full. Unlike the per-thread buffer
// it has no capacity limit of its own; requestFallback(FallbackSatbBufferOverflow)
// is reserved for the case this would otherwise grow unbounded, which
// callers are expected to guard with their own policy if needed. For
// rudogc's default configuration it never refuses a push: it is the
// last-resort spill path, not a second hard limit.
type satbGlobalBuffer struct {
	mu    sync.Mutex
	items []unsafe.Pointer
}

func (b *satbGlobalBuffer) push(oldBox unsafe.Pointer) bool {
	b.mu.Lock()
	b.items = append(b.items, oldBox)
	b.mu.Unlock()
	return true
}

func (b *satbGlobalBuffer) drain() []unsafe.Pointer {
	b.mu.Lock()
	items := b.items
	b.items = nil
	b.mu.Unlock()
	return items
}

var globalSATBOverflow = &satbGlobalBuffer{}
