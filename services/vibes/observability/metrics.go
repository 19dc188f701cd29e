// Copyright (C) 2025 Vibes Labs (oss@vibeslabs.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package observability provides Prometheus metrics for the
// materialization layer.
//
// # Description
//
// Metrics cover the two shared backends and the cache in front of them:
//   - Cache lookups by result (hit, miss, error)
//   - Build executions by status, with a duration histogram
//   - Currently executing builds (gauge)
//   - Experiment store operations by op and status
//
// Metrics are exposed via the /metrics endpoint. All operations are
// thread-safe via Prometheus's internal locking, and every method is
// nil-receiver safe so tests can pass a nil *Metrics.
package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const metricsNamespace = "vibes"

// Metrics holds all Prometheus collectors for the service.
type Metrics struct {
	// CacheLookupsTotal counts GetOrCreate calls.
	// Labels: namespace, result (hit, miss, error)
	CacheLookupsTotal *prometheus.CounterVec

	// BuildsTotal counts build function executions.
	// Labels: status (success, failure)
	BuildsTotal *prometheus.CounterVec

	// BuildDurationSeconds measures wall-clock build time. Builds can run
	// for minutes, hence the wide buckets.
	BuildDurationSeconds prometheus.Histogram

	// ActiveBuilds tracks builds currently executing.
	ActiveBuilds prometheus.Gauge

	// ExperimentOpsTotal counts experiment store operations.
	// Labels: op (create, delete, list, get, inspect), status
	ExperimentOpsTotal *prometheus.CounterVec
}

// NewMetrics creates and registers all collectors on the registerer.
// Pass prometheus.DefaultRegisterer in production; a fresh
// prometheus.NewRegistry() in tests to avoid duplicate registration.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		CacheLookupsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "cache",
			Name:      "lookups_total",
			Help:      "Cache lookups by namespace and result.",
		}, []string{"namespace", "result"}),
		BuildsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "cache",
			Name:      "builds_total",
			Help:      "Build function executions by status.",
		}, []string{"status"}),
		BuildDurationSeconds: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Subsystem: "cache",
			Name:      "build_duration_seconds",
			Help:      "Wall-clock duration of build function executions.",
			Buckets:   []float64{0.1, 0.5, 1, 5, 15, 60, 300, 900, 3600},
		}),
		ActiveBuilds: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Subsystem: "cache",
			Name:      "active_builds",
			Help:      "Build functions currently executing.",
		}),
		ExperimentOpsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "experiments",
			Name:      "ops_total",
			Help:      "Experiment store operations by op and status.",
		}, []string{"op", "status"}),
	}
}

// ObserveCacheLookup records one GetOrCreate outcome.
func (m *Metrics) ObserveCacheLookup(namespace, result string) {
	if m == nil {
		return
	}
	m.CacheLookupsTotal.WithLabelValues(namespace, result).Inc()
}

// ObserveBuild records one build execution.
func (m *Metrics) ObserveBuild(status string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.BuildsTotal.WithLabelValues(status).Inc()
	m.BuildDurationSeconds.Observe(elapsed.Seconds())
}

// BuildStarted increments the active build gauge and returns a done func.
func (m *Metrics) BuildStarted() func() {
	if m == nil {
		return func() {}
	}
	m.ActiveBuilds.Inc()
	return m.ActiveBuilds.Dec
}

// ObserveExperimentOp records one experiment store operation.
func (m *Metrics) ObserveExperimentOp(op, status string) {
	if m == nil {
		return
	}
	m.ExperimentOpsTotal.WithLabelValues(op, status).Inc()
}
