// Copyright 2024 The rudogc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package gc

import "sync"

// worldLock implements a suspension-point model without a true
// stop-the-world primitive, which Go does not expose to user code the
// way a language runtime's own stop-the-world call can reach every
// scheduled goroutine. Instead the collector and every cooperating
// mutator share one RWMutex: a collection phase that needs "every
// mutator at a safepoint" takes the write side, and every explicit
// Safepoint call takes a brief read lock. A goroutine that never calls
// Safepoint simply never synchronizes with a pending collection; this
// delays GC but never causes incorrectness, since the collector only
// proceeds once it holds the write lock.
var worldLock sync.RWMutex

// stwMu serializes collection cycles themselves: only one STW section
// (minor, eager major, or major's FinalMark) runs at a time per
// process, mirroring a single global world semaphore.
var stwMu sync.Mutex

// acquireSTW begins a stop-the-world section: it serializes against
// any other collection in progress, then waits for every mutator
// currently inside a Safepoint call to finish before returning.
func acquireSTW() {
	stwMu.Lock()
	worldLock.Lock()
}

// releaseSTW ends a stop-the-world section begun by acquireSTW.
func releaseSTW() {
	worldLock.Unlock()
	stwMu.Unlock()
}

// Safepoint is the suspension point mutators are expected to reach
// periodically: callers are responsible for calling it inside
// long-running compute loops. It is cheap on the fast path (an
// uncontended RLock/RUnlock) and blocks only while a collector holds
// the write side via acquireSTW.
func Safepoint() {
	worldLock.RLock()
	worldLock.RUnlock()
}
