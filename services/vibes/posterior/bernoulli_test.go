// Copyright (C) 2025 Vibes Labs (oss@vibeslabs.dev)
// Tests for the conjugate Beta-Bernoulli build function

package posterior

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vibesml/vibes/services/vibes/datatypes"
	"github.com/vibesml/vibes/services/vibes/faults"
)

func outcomeTable(t *testing.T, outcomes ...bool) datatypes.Table {
	t.Helper()
	records := make([]map[string]any, len(outcomes))
	for i, outcome := range outcomes {
		records[i] = map[string]any{OutcomeColumn: outcome}
	}
	tbl, err := datatypes.FromRecords(records)
	require.NoError(t, err)
	return tbl
}

func fitSummary(t *testing.T, tbl datatypes.Table) datatypes.PosteriorSummary {
	t.Helper()
	artifact, err := FitBernoulli(context.Background(), tbl)
	require.NoError(t, err)

	var summary datatypes.PosteriorSummary
	require.NoError(t, artifact.Decode(&summary))
	return summary
}

func TestFitBernoulli_PosteriorMean(t *testing.T) {
	// 3 successes, 1 failure with a uniform prior: Beta(4, 2), mean 4/6.
	summary := fitSummary(t, outcomeTable(t, true, true, true, false))

	assert.InDelta(t, 4.0/6.0, summary.Stats["mean"], 1e-9)
	assert.Greater(t, summary.Stats["sd"], 0.0)
	assert.Less(t, summary.Stats["hdi_3%"], summary.Stats["mean"])
	assert.Greater(t, summary.Stats["hdi_97%"], summary.Stats["mean"])
}

func TestFitBernoulli_Deterministic(t *testing.T) {
	tbl := outcomeTable(t, true, false, true)

	first, err := FitBernoulli(context.Background(), tbl)
	require.NoError(t, err)
	second, err := FitBernoulli(context.Background(), tbl)
	require.NoError(t, err)

	assert.Equal(t, first, second, "output must be a pure function of the data")
}

func TestFitBernoulli_NumericOutcomes(t *testing.T) {
	tbl, err := datatypes.FromRecords([]map[string]any{
		{OutcomeColumn: int64(1)},
		{OutcomeColumn: int64(0)},
		{OutcomeColumn: float64(1)},
	})
	require.NoError(t, err)

	summary := fitSummary(t, tbl)
	// 2 successes, 1 failure: Beta(3, 2), mean 3/5.
	assert.InDelta(t, 0.6, summary.Stats["mean"], 1e-9)
}

func TestFitBernoulli_MissingOutcomeColumn(t *testing.T) {
	tbl, err := datatypes.FromRecords([]map[string]any{{"clicks": 3.0}})
	require.NoError(t, err)

	_, err = FitBernoulli(context.Background(), tbl)
	assert.ErrorIs(t, err, faults.ErrInvalidData)
}

func TestFitBernoulli_NonBinaryOutcome(t *testing.T) {
	tbl, err := datatypes.FromRecords([]map[string]any{{OutcomeColumn: 0.5}})
	require.NoError(t, err)

	_, err = FitBernoulli(context.Background(), tbl)
	assert.ErrorIs(t, err, faults.ErrInvalidData)
}

func TestFitBernoulli_CurveShape(t *testing.T) {
	summary := fitSummary(t, outcomeTable(t, true, true, false))

	require.Len(t, summary.Curve.X, 100)
	require.Len(t, summary.Curve.Y, 100)
	for i, x := range summary.Curve.X {
		assert.Greater(t, x, 0.0)
		assert.Less(t, x, 1.0)
		assert.GreaterOrEqual(t, summary.Curve.Y[i], 0.0)
	}
}

func TestFitBernoulli_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := FitBernoulli(ctx, outcomeTable(t, true))
	assert.ErrorIs(t, err, context.Canceled)
}
