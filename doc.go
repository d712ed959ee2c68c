// Copyright 2024 The rudogc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package gc implements a BiBOP, generational, incremental mark-sweep
// collector for smart-pointer-like managed references over a
// non-moving heap.
//
// The collector is structured the way a language runtime's own
// garbage collector is structured: one flat package holding the page
// allocator, the generational and incremental collectors, root
// discovery, and the write barriers that tie them together, plus a
// handful of internal/ packages for OS memory, logging, metrics and
// debug-only lock-order checking.
//
// Gc[T] and Weak[T] are the types external code holds. Gc[T] is not
// Send/Sync; references cross OS threads only through explicit
// cross-thread handles (see crossthread.go). Host types participate in
// tracing by implementing Trace, usually generated by a derive macro
// that lives outside this module.
package gc
