// Copyright (C) 2025 Vibes Labs (oss@vibeslabs.dev)
// Tests for the experiment metadata rows

package catalog

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vibesml/vibes/services/vibes/datatypes"
	"github.com/vibesml/vibes/services/vibes/faults"
)

func sampleMeta(name string) datatypes.ExperimentMetadata {
	return datatypes.ExperimentMetadata{
		Name:        name,
		Type:        datatypes.ExperimentTypeBernoulli,
		DisplayName: "Sample " + name,
		Status:      datatypes.StatusCreated,
		CreatedAt:   time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestPutGetExperiment_RoundTrip(t *testing.T) {
	cat := openTestCatalog(t)
	ctx := context.Background()

	want := sampleMeta("exp1")
	require.NoError(t, cat.PutExperiment(ctx, want))

	got, err := cat.GetExperiment(ctx, "exp1")
	require.NoError(t, err)
	assert.Equal(t, want.Name, got.Name)
	assert.Equal(t, want.Type, got.Type)
	assert.Equal(t, want.DisplayName, got.DisplayName)
	assert.Equal(t, want.Status, got.Status)
	assert.True(t, want.CreatedAt.Equal(got.CreatedAt))
}

func TestPutExperiment_DuplicateName(t *testing.T) {
	cat := openTestCatalog(t)
	ctx := context.Background()

	require.NoError(t, cat.PutExperiment(ctx, sampleMeta("exp1")))

	err := cat.PutExperiment(ctx, sampleMeta("exp1"))
	assert.ErrorIs(t, err, faults.ErrAlreadyExists)
}

func TestGetExperiment_NotFound(t *testing.T) {
	cat := openTestCatalog(t)

	_, err := cat.GetExperiment(context.Background(), "ghost")
	assert.ErrorIs(t, err, faults.ErrNotFound)
}

func TestDeleteExperiment(t *testing.T) {
	cat := openTestCatalog(t)
	ctx := context.Background()

	require.NoError(t, cat.PutExperiment(ctx, sampleMeta("exp1")))
	require.NoError(t, cat.DeleteExperiment(ctx, "exp1"))

	_, err := cat.GetExperiment(ctx, "exp1")
	assert.ErrorIs(t, err, faults.ErrNotFound)

	// A second delete reports NotFound.
	assert.ErrorIs(t, cat.DeleteExperiment(ctx, "exp1"), faults.ErrNotFound)
}

func TestListExperiments_OrderedByName(t *testing.T) {
	cat := openTestCatalog(t)
	ctx := context.Background()

	require.NoError(t, cat.PutExperiment(ctx, sampleMeta("zeta")))
	require.NoError(t, cat.PutExperiment(ctx, sampleMeta("alpha")))

	metas, err := cat.ListExperiments(ctx)
	require.NoError(t, err)
	require.Len(t, metas, 2)
	assert.Equal(t, "alpha", metas[0].Name)
	assert.Equal(t, "zeta", metas[1].Name)
}

func TestListExperiments_Empty(t *testing.T) {
	cat := openTestCatalog(t)

	metas, err := cat.ListExperiments(context.Background())
	require.NoError(t, err)
	assert.Empty(t, metas)
}
