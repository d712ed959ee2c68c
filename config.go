// Copyright 2024 The rudogc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package gc

import "time"

// Config holds every tunable the collector exposes. It is a plain
// struct rather than a package-level global, because this package is
// a library meant to back multiple independent heaps in one process,
// each of which may want its own policy.
type Config struct {
	// MinorDebtBytes is the young-generation allocation debt that
	// triggers a minor collection.
	MinorDebtBytes uint64

	// PromotionOccupancyThreshold and PromotionAgeCycles are the two
	// independent promotion conditions: a page survives promotion
	// once its live occupancy is at or above the threshold, or once
	// it has survived this many minor cycles, whichever comes first.
	PromotionOccupancyThreshold float64
	PromotionAgeCycles          uint32

	// IncrementalEnabled turns on the Marking-phase SATB barrier and
	// mark_slice-driven incremental major GC; when false, CollectMajor
	// always runs as a single STW pass.
	IncrementalEnabled bool

	// IncrementSize is the default per-slice object budget passed to
	// mark_slice by CollectMajorIncremental's driving loop.
	IncrementSize int

	// MaxDirtyPages is the first of the three fallback conditions: a
	// dirty-page snapshot larger than this forces fallback to STW.
	MaxDirtyPages int

	// RememberedBufferLen sizes each thread's SATB buffer before it
	// spills to the global overflow buffer.
	RememberedBufferLen int

	// SliceTimeout is the second fallback condition: a slice that
	// runs longer than this is abandoned in favor of STW.
	SliceTimeout time.Duration

	// ParallelMarking enables the work-stealing deque pool for
	// CollectMajor's eager marking pass when MarkWorkers > 1.
	// Incremental marking slices always use a sequential worklist.
	ParallelMarking bool

	// MarkWorkers is the size of the parallel-marking pool when
	// ParallelMarking is set. Ignored otherwise.
	MarkWorkers int
}

// DefaultConfig returns the tunables rudogc ships with out of the box:
// incremental marking off, parallel marking off, conservative
// promotion and fallback thresholds chosen from worked examples.
func DefaultConfig() *Config {
	return &Config{
		MinorDebtBytes:              4 << 20,
		PromotionOccupancyThreshold: 0.5,
		PromotionAgeCycles:          3,
		IncrementalEnabled:          false,
		IncrementSize:               4096,
		MaxDirtyPages:               4096,
		RememberedBufferLen:         1024,
		SliceTimeout:                50 * time.Millisecond,
		ParallelMarking:             false,
		MarkWorkers:                 0,
	}
}

// Option mutates a Config built from DefaultConfig(); NewThreadHeap
// accepts a *Config built this way, and the collector entry points
// read it back from the Heap, rather than reaching for an external
// config/flags library.
type Option func(*Config)

func WithMinorDebtBytes(n uint64) Option {
	return func(c *Config) { c.MinorDebtBytes = n }
}

func WithPromotionOccupancyThreshold(f float64) Option {
	return func(c *Config) { c.PromotionOccupancyThreshold = f }
}

func WithPromotionAgeCycles(n uint32) Option {
	return func(c *Config) { c.PromotionAgeCycles = n }
}

func WithIncrementalMarking(enabled bool) Option {
	return func(c *Config) { c.IncrementalEnabled = enabled }
}

func WithIncrementSize(n int) Option {
	return func(c *Config) { c.IncrementSize = n }
}

func WithMaxDirtyPages(n int) Option {
	return func(c *Config) { c.MaxDirtyPages = n }
}

func WithRememberedBufferLen(n int) Option {
	return func(c *Config) { c.RememberedBufferLen = n }
}

func WithSliceTimeout(d time.Duration) Option {
	return func(c *Config) { c.SliceTimeout = d }
}

func WithParallelMarking(workers int) Option {
	return func(c *Config) {
		c.ParallelMarking = workers > 0
		c.MarkWorkers = workers
	}
}

// NewConfig applies opts over DefaultConfig(), the usual functional-
// options entry point callers pass to NewThreadHeap.
func NewConfig(opts ...Option) *Config {
	c := DefaultConfig()
	for _, opt := range opts {
		opt(c)
	}
	return c
}
