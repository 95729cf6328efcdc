// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of tscore.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package obsmetrics exposes Prometheus instrumentation for the persister
// core: sample throughput, validity classification, write failures, and
// query latency. This is ambient observability, carried regardless of
// which query surface sits in front of it.
package obsmetrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the core's Prometheus collectors. Construct one with New
// and register it with a prometheus.Registerer at startup.
type Metrics struct {
	SamplesIngested  *prometheus.CounterVec
	BinsInvalid      prometheus.Counter
	WriteFailures    *prometheus.CounterVec
	QueryLatency     *prometheus.HistogramVec
	StoreCallLatency *prometheus.HistogramVec
}

// New constructs the collector set. Call Register to wire it into a
// registry; constructing it standalone (e.g. in tests) never touches a
// global registry.
func New() *Metrics {
	return &Metrics{
		SamplesIngested: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tscore",
			Name:      "samples_ingested_total",
			Help:      "Raw counter samples ingested, by validity classification.",
		}, []string{"classification"}),
		BinsInvalid: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "tscore",
			Name:      "rate_bins_invalid_total",
			Help:      "Base-rate bins marked invalid (counter reset/wrap or outlier delta).",
		}),
		WriteFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tscore",
			Name:      "store_write_failures_total",
			Help:      "Store writes dropped after exhausting the retry budget, by table.",
		}, []string{"table"}),
		QueryLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "tscore",
			Name:      "query_latency_seconds",
			Help:      "Query planner latency by operation.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),
		StoreCallLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "tscore",
			Name:      "store_call_latency_seconds",
			Help:      "Per-call latency against the wide-column store, by call kind.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"call"}),
	}
}

// Register registers every collector with reg.
func (m *Metrics) Register(reg prometheus.Registerer) {
	reg.MustRegister(m.SamplesIngested, m.BinsInvalid, m.WriteFailures, m.QueryLatency, m.StoreCallLatency)
}
