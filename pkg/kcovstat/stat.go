// Copyright 2025 the kcov authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

// Package kcovstat instruments the facility in pkg/kcov for monitoring,
// grounded on the teacher's own pkg/stat/set.go: counters for
// steady-state events via prometheus/client_golang, paired with a
// gohistogram.NumericHistogram for the one distribution (merge size)
// that benefits from streaming quantiles instead of fixed buckets, since
// merge sizes vary by orders of magnitude across fuzzing targets.
//
// kcov itself has no dependency on this package; Collector.Attach wires
// pkg/kcov's OnMerge/OnSinkEvent/OnHandlesPurged hooks so that importing
// and using kcovstat is entirely opt-in.
package kcovstat

import (
	"sync"

	"github.com/VividCortex/gohistogram"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/xairy/kcov/pkg/kcov"
)

const histogramBins = 80

// Collector aggregates counters and distributions over a kcov facility's
// fast-path and control-plane activity. It implements
// prometheus.Collector so it can be registered directly with a
// prometheus.Registry.
type Collector struct {
	SinkRecords        prometheus.Counter
	SinkRecordsDropped prometheus.Counter
	PCRecordsDropped   prometheus.Counter
	CmpRecordsDropped  prometheus.Counter
	MergesPerformed    prometheus.Counter
	HandlesPurged      prometheus.Counter

	mu        sync.Mutex
	mergeSize *gohistogram.NumericHistogram
}

// New creates a Collector whose counters are not yet registered with
// any prometheus.Registry and whose hooks are not yet attached to
// pkg/kcov; call Attach to start receiving events.
func New() *Collector {
	return &Collector{
		SinkRecords: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "kcov",
			Name:      "sink_records_total",
			Help:      "Records successfully appended by a trace sink.",
		}),
		SinkRecordsDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "kcov",
			Name:      "sink_records_dropped_total",
			Help:      "Sink calls dropped because the task's buffer was full.",
		}),
		PCRecordsDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "kcov",
			Name:      "pc_records_dropped_total",
			Help:      "TRACE_PC sink calls dropped because the task's buffer was full.",
		}),
		CmpRecordsDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "kcov",
			Name:      "cmp_records_dropped_total",
			Help:      "TRACE_CMP sink calls dropped because the task's buffer was full.",
		}),
		MergesPerformed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "kcov",
			Name:      "remote_merges_total",
			Help:      "Remote collection windows merged into a descriptor's buffer.",
		}),
		HandlesPurged: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "kcov",
			Name:      "remote_handles_purged_total",
			Help:      "Registry handles purged on descriptor teardown.",
		}),
		mergeSize: gohistogram.NewHistogram(histogramBins),
	}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	c.SinkRecords.Describe(ch)
	c.SinkRecordsDropped.Describe(ch)
	c.PCRecordsDropped.Describe(ch)
	c.CmpRecordsDropped.Describe(ch)
	c.MergesPerformed.Describe(ch)
	c.HandlesPurged.Describe(ch)
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	c.SinkRecords.Collect(ch)
	c.SinkRecordsDropped.Collect(ch)
	c.PCRecordsDropped.Collect(ch)
	c.CmpRecordsDropped.Collect(ch)
	c.MergesPerformed.Collect(ch)
	c.HandlesPurged.Collect(ch)
}

// Attach installs c's event handlers as pkg/kcov's package-level hooks.
// It is meant to be called once, early in a program's lifetime; it
// overwrites any previously attached collector's hooks.
func (c *Collector) Attach() {
	kcov.OnSinkEvent = func(mode kcov.Mode, recorded bool) {
		if recorded {
			c.SinkRecords.Inc()
			return
		}
		c.SinkRecordsDropped.Inc()
		switch mode {
		case kcov.ModeTracePC:
			c.PCRecordsDropped.Inc()
		case kcov.ModeTraceCmp:
			c.CmpRecordsDropped.Inc()
		}
	}
	kcov.OnMerge = func(moved uint64) {
		c.MergesPerformed.Inc()
		c.mu.Lock()
		c.mergeSize.Add(float64(moved))
		c.mu.Unlock()
	}
	kcov.OnHandlesPurged = func(count uint64) {
		c.HandlesPurged.Add(float64(count))
	}
}

// MergeSizeQuantile returns the estimated q-th quantile (0..1) of
// historical merge sizes, or -1 if no merges have been recorded yet.
func (c *Collector) MergeSizeQuantile(q float64) float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.mergeSize.Quantile(q)
}
