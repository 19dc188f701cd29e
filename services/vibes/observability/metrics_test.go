// Copyright (C) 2025 Vibes Labs (oss@vibeslabs.dev)
// Tests for the Prometheus metrics

package observability

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMetrics_RegistersAndCounts(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := NewMetrics(registry)
	require.NotNil(t, metrics)

	metrics.ObserveCacheLookup("exp1", "hit")
	metrics.ObserveCacheLookup("exp1", "hit")
	metrics.ObserveCacheLookup("exp1", "miss")

	hits := testutil.ToFloat64(metrics.CacheLookupsTotal.WithLabelValues("exp1", "hit"))
	assert.Equal(t, 2.0, hits)

	metrics.ObserveExperimentOp("create", "success")
	creates := testutil.ToFloat64(metrics.ExperimentOpsTotal.WithLabelValues("create", "success"))
	assert.Equal(t, 1.0, creates)
}

func TestMetrics_BuildLifecycle(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := NewMetrics(registry)

	done := metrics.BuildStarted()
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.ActiveBuilds))
	done()
	assert.Equal(t, 0.0, testutil.ToFloat64(metrics.ActiveBuilds))

	metrics.ObserveBuild("success", 125*time.Millisecond)
	count := testutil.ToFloat64(metrics.BuildsTotal.WithLabelValues("success"))
	assert.Equal(t, 1.0, count)
}

// The stores accept a nil *Metrics so tests and metric-less deployments
// skip instrumentation without branching at every call site.
func TestMetrics_NilReceiverSafe(t *testing.T) {
	var metrics *Metrics

	assert.NotPanics(t, func() {
		metrics.ObserveCacheLookup("exp1", "hit")
		metrics.ObserveBuild("error", time.Second)
		metrics.ObserveExperimentOp("delete", "error")
		done := metrics.BuildStarted()
		done()
	})
}
