// Copyright 2024 The rudogc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package gc

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
	"unsafe"

	"golang.org/x/sync/errgroup"

	"github.com/rudo-gc/rudogc/internal/gclog"
	"github.com/rudo-gc/rudogc/internal/gcmetrics"
	"github.com/rudo-gc/rudogc/internal/lockorder"
)

// GcPhase is the major collector's single atomic phase word, a
// five-state machine: Idle, Snapshot, Marking, FinalMark, Sweeping.
type GcPhase uint32

const (
	phaseIdle GcPhase = iota
	phaseSnapshot
	phaseMarking
	phaseFinalMark
	phaseSweeping
)

func (p GcPhase) String() string {
	switch p {
	case phaseIdle:
		return "Idle"
	case phaseSnapshot:
		return "Snapshot"
	case phaseMarking:
		return "Marking"
	case phaseFinalMark:
		return "FinalMark"
	case phaseSweeping:
		return "Sweeping"
	default:
		return "Unknown"
	}
}

var globalPhase uint32 // atomic GcPhase, one per process

func setGCPhase(p GcPhase) {
	atomic.StoreUint32(&globalPhase, uint32(p))
	gclog.L().Debugw("gc phase transition", "phase", p.String())
}

// majorPhase reports the process-wide major-collector phase. It is a
// Heap method (rather than a bare function) only to match the call
// sites already written against h.majorPhase() elsewhere in the
// package; the phase itself is process-wide, not per-heap, exactly
// like a language runtime's single phase word.
func (h *Heap) majorPhase() GcPhase {
	return GcPhase(atomic.LoadUint32(&globalPhase))
}

// MajorPhase exposes the current phase for hosts/tests.
func MajorPhase() GcPhase { return GcPhase(atomic.LoadUint32(&globalPhase)) }

// SliceStatus is mark_slice's three possible outcomes.
type SliceStatus int

const (
	SliceComplete SliceStatus = iota
	SlicePending
	SliceFallback
)

// SliceResult is what one mark_slice call reports back to its caller
type SliceResult struct {
	Status        SliceStatus
	Marked        int
	DirtyRemaining int
	Reason        FallbackReason
}

// majorMarkState is the one process-wide incremental-cycle state;
// only one incremental major cycle runs at a time.
type majorMarkState struct {
	mu sync.Mutex

	queue   *sliceQueue
	visitor *Visitor
	pool    *markPool

	initialWorklistSize int
	slicesExecuted      uint64
	objectsMarked        uint64
	dirtyPagesScanned    uint64
	cycleStart           int64
	cfg                  *Config

	chain *lockorder.Chain
}

var (
 majorMu sync.Mutex // serializes "only one major cycle in flight"
	majorState *majorMarkState
)

// MajorStats reports what one completed major cycle (incremental or
// eager) did, mirrored into gcmetrics the same way MinorStats is.
type MajorStats struct {
	BytesReclaimed    uint64
	ObjectsSurviving  uint64
	ObjectsMarked     uint64
	ObjectsSwept      uint64
	SlicesExecuted    uint64
	DirtyPagesScanned uint64
	ClearDurationNanos uint64
	MarkDurationNanos  uint64
	SweepDurationNanos uint64
	FallbackOccurred  bool
	FallbackReason    FallbackReason
}

// CollectMajor runs a full major collection synchronously, STW start
// to finish. CollectMajorIncremental runs it in place of an
// incremental cycle when Config.IncrementalEnabled is off; a slice
// that reports Fallback is finished by FinalizeMajorCycle instead.
func CollectMajor(h *Heap) MajorStats {
	majorMu.Lock()
	defer majorMu.Unlock()

	chain := lockorder.NewChain(debugChecks)
	start := nowMonotonic()

	setGCPhase(phaseSnapshot)
	chain.Acquire(lockorder.LocalHeap)

	q := &sliceQueue{}
	var v *Visitor
	var pool *markPool
	if h.config.ParallelMarking && h.config.MarkWorkers > 1 {
		pool = newMarkPool(h.config.MarkWorkers)
		v = newParallelVisitor(pool.workers[0])
	} else {
		v = newSequentialVisitor(VisitModeMajor, q)
	}

	chain.Acquire(lockorder.GlobalMarkState)
	setGCPhase(phaseMarking)

	chain.Acquire(lockorder.GcRequest)
	acquireSTW()
	defer releaseSTW()

	clearStart := nowMonotonic()
	collectAllRoots(v)
	clearDur := nowMonotonic() - clearStart

	markStart := nowMonotonic()
	if pool != nil {
		runParallelMarking(h.ctx(), pool, v)
	} else {
		drainSequential(q, v)
	}

	setGCPhase(phaseFinalMark)
	flushAllSATB(v)
	markDur := nowMonotonic() - markStart
	setGCPhase(phaseSweeping)

	sweepStart := nowMonotonic()
	reclaimed, swept, surviving := sweepAllHeaps()
	largeReclaimed, largeFreed := sweepLargeObjects()
	reclaimed += largeReclaimed
	swept += largeFreed
	sweepDur := nowMonotonic() - sweepStart

	setGCPhase(phaseIdle)
	clearFallback()

	stats := MajorStats{
		BytesReclaimed:     reclaimed,
		ObjectsSurviving:   surviving,
		ObjectsSwept:       swept,
		ObjectsMarked:      q.marked,
		ClearDurationNanos: uint64(clearDur),
		MarkDurationNanos:  uint64(markDur),
		SweepDurationNanos: uint64(sweepDur),
	}
	gcmetrics.RecordCollection(gcmetrics.CollectionSample{
		Kind:               gcmetrics.KindMajor,
		DurationNanos:      uint64(nowMonotonic() - start),
		ClearDurationNanos: stats.ClearDurationNanos,
		MarkDurationNanos:  stats.MarkDurationNanos,
		SweepDurationNanos: stats.SweepDurationNanos,
		BytesReclaimed:     stats.BytesReclaimed,
		ObjectsSurviving:   stats.ObjectsSurviving,
		ObjectsSwept:       stats.ObjectsSwept,
		ObjectsMarked:      stats.ObjectsMarked,
	})
	gclog.L().Debugw("major collection complete",
		"bytes_reclaimed", stats.BytesReclaimed,
		"objects_swept", stats.ObjectsSwept,
	)
	return stats
}

// StartMajorCycle begins an incremental major cycle :
// it briefly stops the world to capture roots into the initial
// worklist, engages the SATB write barrier, then transitions to
// Marking and returns, leaving mutators running concurrently. Callers
// drive the rest of the cycle with MarkSlice.
func StartMajorCycle(h *Heap) error {
	majorMu.Lock()
	if majorState != nil {
		majorMu.Unlock()
		return errAlreadyCollecting
	}
	chain := lockorder.NewChain(debugChecks)
	state := &majorMarkState{
		queue:      &sliceQueue{},
		chain:      chain,
		cycleStart: nowMonotonic(),
		cfg:        h.config,
	}
	// Parallel marking only backs CollectMajor's eager STW pass;
	// FinalizeMajorCycle's full drain is sequential too. Budgeting a
	// work-stealing deque pool across yielding slices would need its
	// own coordinator protocol, which this incremental driving loop
	// does not implement. An incremental cycle always marks
	// sequentially regardless of Config.ParallelMarking.
	state.visitor = newSequentialVisitor(VisitModeMajor, state.queue)
	majorState = state
	majorMu.Unlock()

	clearFallback()
	setIncrementalBarrier(true)

	chain.Acquire(lockorder.GlobalMarkState)
	setGCPhase(phaseSnapshot)

	chain.Acquire(lockorder.GcRequest)
	acquireSTW()
	collectAllRoots(state.visitor)
	state.initialWorklistSize = len(state.queue.items)
	if state.initialWorklistSize == 0 {
		state.initialWorklistSize = 1 // avoid a zero denominator in the 10x check
	}
	setGCPhase(phaseMarking)
	releaseSTW()
	chain.Release(lockorder.GlobalMarkState)

	return nil
}

var errAlreadyCollecting = collectingError("rudogc: a major cycle is already in progress")

type collectingError string

func (e collectingError) Error() string { return string(e) }

// MarkSlice runs one incremental marking increment , to be called periodically by the
// mutator or a dedicated cooperator goroutine. It never stops the
// world; mutators keep allocating (black) and keep tripping the SATB
// barrier on overwrite while this runs.
func MarkSlice(budget int) SliceResult {
	majorMu.Lock()
	state := majorState
	majorMu.Unlock()
	if state == nil || MajorPhase() != phaseMarking {
		return SliceResult{Status: SliceComplete}
	}

	if reason, ok := fallbackRequested(); ok {
		return SliceResult{Status: SliceFallback, Reason: reason}
	}

	sliceStart := nowMonotonic()
	cfg := state.cfg

	state.mu.Lock()
	defer state.mu.Unlock()

	state.chain.Acquire(lockorder.LocalHeap)
	defer state.chain.Release(lockorder.LocalHeap)
	dirty := snapshotDirtyPages()
	scanRememberedSet(dirty, state.visitor)
	state.dirtyPagesScanned += uint64(len(dirty))

	state.chain.Acquire(lockorder.GlobalMarkState)
	marked := 0
	for marked < budget {
		box, ok := state.queue.pop()
		if !ok {
			break
		}
		traceBox(box, state.visitor)
		marked++
	}
	state.objectsMarked += uint64(marked)
	state.slicesExecuted++

	elapsed := time.Duration(nowMonotonic() - sliceStart)
	if reason, fell := checkFallbackConditions(len(dirty), elapsed, len(state.queue.items), state.initialWorklistSize, cfg); fell {
		requestFallback(reason)
		return SliceResult{Status: SliceFallback, Reason: reason, Marked: marked}
	}

	if len(state.queue.items) == 0 && len(dirty) == 0 {
		return SliceResult{Status: SliceComplete, Marked: marked}
	}
	return SliceResult{Status: SlicePending, Marked: marked, DirtyRemaining: len(dirty)}
}

// checkFallbackConditions evaluates the three conditions that force a
// slice to abandon incremental progress in favor of a full STW pass.
func checkFallbackConditions(dirtyCount int, elapsed time.Duration, worklistSize, initialSize int, cfg *Config) (FallbackReason, bool) {
	if dirtyCount > cfg.MaxDirtyPages {
		return FallbackDirtyPagesExceeded, true
	}
	if elapsed > cfg.SliceTimeout {
		return FallbackSliceTimeout, true
	}
	if worklistSize > 10*initialSize {
		return FallbackWorklistUnbounded, true
	}
	return fallbackNone, false
}

// FinalizeMajorCycle runs FinalMark and Sweeping to completion,
// synchronously, whether the preceding slices completed cleanly or a
// fallback was requested. Either way the worklist is drained to
// completion before sweeping, so the heap ends up exactly where a
// fully eager major GC would have left it.
func FinalizeMajorCycle(h *Heap) MajorStats {
	majorMu.Lock()
	state := majorState
	majorMu.Unlock()
	if state == nil {
		return MajorStats{}
	}

	reason, fellBack := fallbackRequested()

	state.chain.Acquire(lockorder.GcRequest)
	acquireSTW()
	defer releaseSTW()

	finalMarkStart := nowMonotonic()
	setGCPhase(phaseFinalMark)
	flushAllSATB(state.visitor)
	dirty := snapshotDirtyPages()
	scanRememberedSet(dirty, state.visitor)
	drainSequential(state.queue, state.visitor)
	finalMarkDur := nowMonotonic() - finalMarkStart

	setGCPhase(phaseSweeping)
	sweepStart := nowMonotonic()
	reclaimed, swept, surviving := sweepAllHeaps()
	largeReclaimed, largeFreed := sweepLargeObjects()
	reclaimed += largeReclaimed
	swept += largeFreed
	sweepDur := nowMonotonic() - sweepStart

	setGCPhase(phaseIdle)
	setIncrementalBarrier(false)
	clearFallback()

	majorMu.Lock()
	majorState = nil
	majorMu.Unlock()

	stats := MajorStats{
		BytesReclaimed:     reclaimed,
		ObjectsSurviving:   surviving,
		ObjectsSwept:       swept,
		ObjectsMarked:      state.objectsMarked,
		SlicesExecuted:     state.slicesExecuted,
		DirtyPagesScanned:  state.dirtyPagesScanned,
		MarkDurationNanos:  uint64(finalMarkDur),
		SweepDurationNanos: uint64(sweepDur),
		FallbackOccurred:   fellBack,
		FallbackReason:     reason,
	}
	gcmetrics.RecordCollection(gcmetrics.CollectionSample{
		Kind:               gcmetrics.KindIncrementalMajor,
		DurationNanos:      uint64(nowMonotonic() - state.cycleStart),
		MarkDurationNanos:  stats.MarkDurationNanos,
		SweepDurationNanos: stats.SweepDurationNanos,
		BytesReclaimed:     stats.BytesReclaimed,
		ObjectsSurviving:   stats.ObjectsSurviving,
		ObjectsSwept:       stats.ObjectsSwept,
		ObjectsMarked:      stats.ObjectsMarked,
		SlicesExecuted:     stats.SlicesExecuted,
		DirtyPagesScanned:  stats.DirtyPagesScanned,
		FallbackOccurred:   stats.FallbackOccurred,
		FallbackReason:     stats.FallbackReason.String(),
	})
	gclog.L().Debugw("incremental major cycle finalized",
		"slices", stats.SlicesExecuted,
		"fallback", stats.FallbackOccurred,
		"reason", stats.FallbackReason.String(),
	)
	return stats
}

// CollectMajorIncremental drives a whole incremental cycle end to end
// for callers that don't want to own their own mark_slice loop: start
// the cycle, call MarkSlice until it stops returning Pending, then
// finalize. A real integration is expected to call StartMajorCycle/
// MarkSlice/FinalizeMajorCycle directly from its own scheduling loop
// (so slices interleave with real mutator work); this is the
// synchronous convenience wrapper used by tests and simple programs.
func CollectMajorIncremental(h *Heap, budget int) MajorStats {
	if !h.config.IncrementalEnabled {
		return CollectMajor(h)
	}
	if err := StartMajorCycle(h); err != nil {
		return MajorStats{}
	}
	for {
		result := MarkSlice(budget)
		if result.Status == SlicePending {
			continue
		}
		return FinalizeMajorCycle(h)
	}
}

// markAndEnqueueIfMarking re-marks box black and, if it was
// previously unmarked, pushes it onto the active incremental cycle's
// worklist so its own children get traced too. A no-op outside an
// active incremental cycle.
func markAndEnqueueIfMarking(box unsafe.Pointer) {
	if !markBox(box) {
		return
	}
	majorMu.Lock()
	state := majorState
	majorMu.Unlock()
	if state == nil {
		return
	}
	state.mu.Lock()
	if state.pool != nil {
		state.pool.ownerOf(box).push(box)
	} else {
		state.queue.push(box)
	}
	state.mu.Unlock()
}

// flushAllSATB drains every thread's SATB buffer plus the global
// overflow buffer and marks every captured pointer.
func flushAllSATB(v *Visitor) {
	for _, t := range allTCBs() {
		for _, box := range t.satb.drain() {
			if markBox(box) {
				traceBox(box, v)
			}
		}
	}
	for _, box := range globalSATBOverflow.drain() {
		if markBox(box) {
			traceBox(box, v)
		}
	}
}

// sweepAllHeaps sweeps every page on every registered heap regardless
// of generation , used by the major collector
// (minor GC's sweep is young-only and lives in minorgc.go).
func sweepAllHeaps() (reclaimedBytes uint64, swept uint64, surviving uint64) {
	for _, t := range allTCBs() {
		if t.heap == nil {
			continue
		}
		h := t.heap
		pages := append([]*page(nil), h.ownedPages...)
		var empty []*page
		for _, p := range pages {
			freed, freedCount, live := sweepPage(p)
			reclaimedBytes += freed
			swept += uint64(freedCount)
			surviving += uint64(live)
			if live == 0 {
				empty = append(empty, p)
			}
		}
		for _, p := range empty {
			releaseIfEmpty(h, p, 0)
		}
	}
	return reclaimedBytes, swept, surviving
}

// runParallelMarking spins up pool's workers as goroutines and waits
// for the coordinator barrier: every worker's local queue and inbox
// are empty. golang.org/x/sync/errgroup supervises startup/shutdown
// and surfaces a worker panic to the caller.
func runParallelMarking(ctx context.Context, pool *markPool, v *Visitor) error {
	g, _ := errgroup.WithContext(ctx)
	for _, w := range pool.workers {
		w := w
		g.Go(func() error {
			runMarkWorker(w, v)
			return nil
		})
	}
	return g.Wait()
}

// runMarkWorker is one parallel-marking participant's drain loop:
// drain inbox, try local deque, steal, and park on wake until the
// coordinator barrier fires.
func runMarkWorker(w *markWorker, v *Visitor) {
	for {
		if box, ok := w.pop(); ok {
			// route() already marked box before pushing it (parallel
			// mode's was-clear check happens at push time, not pop
			// time), so the dequeued box is always due for tracing.
			traceBox(box, v)
			continue
		}
		n := atomic.AddInt32(&w.pool.idleCount, 1)
		if int(n) == len(w.pool.workers) {
			w.pool.closeDone()
			return
		}
		select {
		case <-w.wake():
			atomic.AddInt32(&w.pool.idleCount, -1)
		case <-w.pool.doneCh():
			return
		}
	}
}
