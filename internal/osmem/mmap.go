// Copyright 2024 The rudogc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package osmem is the collector's small companion allocator: it
// reserves raw OS memory for pages and large objects. It knows
// nothing about size classes, bitmaps, or GC phases: that is the
// parent package's job, the usual split between raw OS mapping and
// the allocator built on top of it.
package osmem

import "fmt"

// MmapOptions configures a single reservation.
type MmapOptions struct {
	// Hint requests an address; the OS is free to ignore it.
	// pagealloc.go leaves it zero and handles a "bomb" conflict by
	// quarantining the mapping and reserving again.
	Hint uintptr

	// Populate pre-faults the mapping (MAP_POPULATE on Linux) so the
	// first touch of every page doesn't take a minor fault during the
	// allocation fast path.
	Populate bool

	// NoReserve avoids committing swap/overcommit accounting up front
	// (MAP_NORESERVE on Linux); pages are charged on first touch. Used
	// for speculative large reservations that mostly stay sparse.
	NoReserve bool
}

// Mmap is a single OS memory reservation. It is not safe for
// concurrent Unmap/Advise calls from multiple goroutines on the same
// value; the owning Heap serializes those.
type Mmap struct {
	addr uintptr
	size uintptr
}

// MappingAt reconstructs an Mmap descriptor for a mapping the caller
// already knows the bounds of (e.g. page.go's page headers, which are
// always exactly one page and don't keep their own Mmap around).
func MappingAt(addr, size uintptr) Mmap {
	return Mmap{addr: addr, size: size}
}

// Addr returns the base address of the mapping.
func (m Mmap) Addr() uintptr { return m.addr }

// Size returns the mapping's length in bytes.
func (m Mmap) Size() uintptr { return m.size }

// Contains reports whether p falls within [addr, addr+size).
func (m Mmap) Contains(p uintptr) bool {
	return p >= m.addr && p < m.addr+m.size
}

// ErrMapFailed is returned by Reserve when the OS refuses the
// mapping. ErrMapFailed itself is never panicked with: pagealloc.go's
// page reservation retries a fixed number of times and returns the
// last error, and New turns an allocation error into an
// out-of-memory panic, so the retry policy stays in pagealloc.go.
type ErrMapFailed struct {
	Size uintptr
	Errno error
}

func (e *ErrMapFailed) Error() string {
	return fmt.Sprintf("osmem: mmap of %d bytes failed: %v", e.Size, e.Errno)
}

func (e *ErrMapFailed) Unwrap() error { return e.Errno }
