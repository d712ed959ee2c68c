// Copyright 2024 The rudogc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package gcmetrics mirrors the collector's per-process cumulative
// counters (durations, bytes/objects reclaimed, fallback occurrences)
// as a prometheus.Collector, exporting the same atomic counters as
// Prometheus counters. The in-process CollectionSample API is the primary,
// allocation-free interface; Prometheus export is additive.
package gcmetrics

import (
	"sync"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
)

// CollectionKind distinguishes minor, eager major, and incremental
// major cycles in recorded samples.
type CollectionKind int32

const (
	KindMinor CollectionKind = iota
	KindMajor
	KindIncrementalMajor
)

func (k CollectionKind) String() string {
	switch k {
	case KindMinor:
		return "minor"
	case KindMajor:
		return "major"
	case KindIncrementalMajor:
		return "incremental_major"
	default:
		return "unknown"
	}
}

// CollectionSample is what the collector reports once a whole cycle
// completes; incremental slices do not record samples of their own.
type CollectionSample struct {
	Kind               CollectionKind
	DurationNanos      uint64
	ClearDurationNanos uint64
	MarkDurationNanos  uint64
	SweepDurationNanos uint64
	BytesReclaimed     uint64
	ObjectsSurviving   uint64
	ObjectsSwept       uint64
	ObjectsMarked      uint64
	SlicesExecuted     uint64
	DirtyPagesScanned  uint64
	FallbackOccurred   bool
	FallbackReason     string
}

var (
	mu      sync.Mutex
	history []CollectionSample

	collections      uint64
	totalDurationNs  uint64
	bytesReclaimed   uint64
	objectsSwept     uint64
	objectsMarked    uint64
	fallbackOccurred uint64

	minorCollections uint64
	majorCollections uint64
)

// RecordCollection appends sample to the in-process ring buffer
// (capped, oldest dropped) and rolls it into the cumulative counters
// the Prometheus collector exports. It never blocks on I/O and is
// safe to call from inside a stop-the-world section.
func RecordCollection(sample CollectionSample) {
	atomic.AddUint64(&collections, 1)
	atomic.AddUint64(&totalDurationNs, sample.DurationNanos)
	atomic.AddUint64(&bytesReclaimed, sample.BytesReclaimed)
	atomic.AddUint64(&objectsSwept, sample.ObjectsSwept)
	atomic.AddUint64(&objectsMarked, sample.ObjectsMarked)
	if sample.FallbackOccurred {
		atomic.AddUint64(&fallbackOccurred, 1)
	}
	switch sample.Kind {
	case KindMinor:
		atomic.AddUint64(&minorCollections, 1)
	default:
		atomic.AddUint64(&majorCollections, 1)
	}

	mu.Lock()
	defer mu.Unlock()
	history = append(history, sample)
	const ringCap = 64 // ring buffer of the most recent 64 collections
	if len(history) > ringCap {
		history = history[len(history)-ringCap:]
	}
}

// Recent returns a copy of the ring buffer's current contents, newest
// last, for test assertions and diagnostic dumps.
func Recent() []CollectionSample {
	mu.Lock()
	defer mu.Unlock()
	out := make([]CollectionSample, len(history))
	copy(out, history)
	return out
}

var (
	descCollections = prometheus.NewDesc(
		"rudogc_collections_total", "Total number of GC cycles run.", []string{"kind"}, nil)
	descDuration = prometheus.NewDesc(
		"rudogc_collection_duration_nanoseconds_total", "Cumulative GC wall time.", nil, nil)
	descBytesReclaimed = prometheus.NewDesc(
		"rudogc_bytes_reclaimed_total", "Cumulative bytes reclaimed by sweeps.", nil, nil)
	descObjectsSwept = prometheus.NewDesc(
		"rudogc_objects_swept_total", "Cumulative objects freed by sweeps.", nil, nil)
	descObjectsMarked = prometheus.NewDesc(
		"rudogc_objects_marked_total", "Cumulative objects marked.", nil, nil)
	descFallback = prometheus.NewDesc(
		"rudogc_fallback_total", "Cumulative incremental-to-STW fallbacks.", nil, nil)
)

// Collector adapts the package's global counters to
// prometheus.Collector so a host process can register them with its
// own registry.
type Collector struct{}

func NewCollector() *Collector { return &Collector{} }

func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- descCollections
	ch <- descDuration
	ch <- descBytesReclaimed
	ch <- descObjectsSwept
	ch <- descObjectsMarked
	ch <- descFallback
}

func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	ch <- prometheus.MustNewConstMetric(descCollections, prometheus.CounterValue,
		float64(atomic.LoadUint64(&minorCollections)), "minor")
	ch <- prometheus.MustNewConstMetric(descCollections, prometheus.CounterValue,
		float64(atomic.LoadUint64(&majorCollections)), "major")
	ch <- prometheus.MustNewConstMetric(descDuration, prometheus.CounterValue,
		float64(atomic.LoadUint64(&totalDurationNs)))
	ch <- prometheus.MustNewConstMetric(descBytesReclaimed, prometheus.CounterValue,
		float64(atomic.LoadUint64(&bytesReclaimed)))
	ch <- prometheus.MustNewConstMetric(descObjectsSwept, prometheus.CounterValue,
		float64(atomic.LoadUint64(&objectsSwept)))
	ch <- prometheus.MustNewConstMetric(descObjectsMarked, prometheus.CounterValue,
		float64(atomic.LoadUint64(&objectsMarked)))
	ch <- prometheus.MustNewConstMetric(descFallback, prometheus.CounterValue,
		float64(atomic.LoadUint64(&fallbackOccurred)))
}
