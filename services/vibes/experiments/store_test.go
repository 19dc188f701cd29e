// Copyright (C) 2025 Vibes Labs (oss@vibeslabs.dev)
// Tests for the experiment store sagas

package experiments

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vibesml/vibes/services/vibes/catalog"
	"github.com/vibesml/vibes/services/vibes/datatypes"
	"github.com/vibesml/vibes/services/vibes/faults"
)

// faultyCatalog wraps a real catalog and lets individual tests fail
// chosen operations.
type faultyCatalog struct {
	TableCatalog
	putExperimentErr error
	dropTableErr     error
	dropCalls        int
}

func (f *faultyCatalog) PutExperiment(ctx context.Context, meta datatypes.ExperimentMetadata) error {
	if f.putExperimentErr != nil {
		return f.putExperimentErr
	}
	return f.TableCatalog.PutExperiment(ctx, meta)
}

func (f *faultyCatalog) DropTable(ctx context.Context, name string) error {
	f.dropCalls++
	if f.dropTableErr != nil {
		return f.dropTableErr
	}
	return f.TableCatalog.DropTable(ctx, name)
}

func newFixture(t *testing.T) (*Store, *catalog.Catalog) {
	t.Helper()
	cat, err := catalog.Open(filepath.Join(t.TempDir(), "catalog.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { cat.Close() })
	require.NoError(t, cat.Init(context.Background()))

	store, err := NewStore(cat, Options{})
	require.NoError(t, err)
	return store, cat
}

func bernoulliEvents(outcomes ...bool) []map[string]any {
	events := make([]map[string]any, len(outcomes))
	base := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	for i, outcome := range outcomes {
		events[i] = map[string]any{
			"timestamp": base.Add(time.Duration(i) * time.Minute).Format(time.RFC3339),
			"outcome":   outcome,
		}
	}
	return events
}

func TestCreate_TableAndMetadataBothExist(t *testing.T) {
	store, cat := newFixture(t)
	ctx := context.Background()

	meta, err := store.Create(ctx, "exp1", datatypes.ExperimentTypeBernoulli,
		"Checkout test", bernoulliEvents(true, false, true))
	require.NoError(t, err)
	assert.Equal(t, "exp1", meta.Name)
	assert.Equal(t, datatypes.StatusCreated, meta.Status)

	exists, err := cat.HasTable(ctx, "exp1")
	require.NoError(t, err)
	assert.True(t, exists)

	_, err = cat.GetExperiment(ctx, "exp1")
	assert.NoError(t, err)
}

func TestCreate_DuplicateName(t *testing.T) {
	store, _ := newFixture(t)
	ctx := context.Background()

	_, err := store.Create(ctx, "exp1", datatypes.ExperimentTypeBernoulli, "",
		bernoulliEvents(true))
	require.NoError(t, err)

	_, err = store.Create(ctx, "exp1", datatypes.ExperimentTypeBernoulli, "",
		bernoulliEvents(false))
	assert.ErrorIs(t, err, faults.ErrAlreadyExists)
}

func TestCreate_UnknownType(t *testing.T) {
	store, _ := newFixture(t)

	_, err := store.Create(context.Background(), "exp1", "chi-squared", "",
		bernoulliEvents(true))
	assert.ErrorIs(t, err, faults.ErrInvalidData)
}

func TestCreate_EmptyEvents(t *testing.T) {
	store, _ := newFixture(t)

	_, err := store.Create(context.Background(), "exp1",
		datatypes.ExperimentTypeBernoulli, "", nil)
	assert.ErrorIs(t, err, faults.ErrInvalidData)
}

// When the metadata insert fails after the data table was created, the
// saga must drop the table again: no table without a metadata row.
func TestCreate_MetadataFailureCompensatesTable(t *testing.T) {
	_, cat := newFixture(t)
	boom := errors.New("disk full")
	faulty := &faultyCatalog{TableCatalog: cat, putExperimentErr: boom}

	store, err := NewStore(faulty, Options{})
	require.NoError(t, err)

	_, err = store.Create(context.Background(), "exp1",
		datatypes.ExperimentTypeBernoulli, "", bernoulliEvents(true))
	require.ErrorIs(t, err, boom)

	exists, err := cat.HasTable(context.Background(), "exp1")
	require.NoError(t, err)
	assert.False(t, exists, "orphaned data table must be dropped when the metadata insert fails")
}

func TestDelete_RemovesBoth(t *testing.T) {
	store, cat := newFixture(t)
	ctx := context.Background()

	_, err := store.Create(ctx, "exp1", datatypes.ExperimentTypeBernoulli, "",
		bernoulliEvents(true))
	require.NoError(t, err)

	require.NoError(t, store.Delete(ctx, "exp1"))

	exists, err := cat.HasTable(ctx, "exp1")
	require.NoError(t, err)
	assert.False(t, exists)

	_, err = cat.GetExperiment(ctx, "exp1")
	assert.ErrorIs(t, err, faults.ErrNotFound)
}

func TestDelete_NotFound(t *testing.T) {
	store, _ := newFixture(t)

	err := store.Delete(context.Background(), "ghost")
	assert.ErrorIs(t, err, faults.ErrNotFound)
}

// A failed table drop after the metadata row is gone must be surfaced,
// not reported as success.
func TestDelete_DropFailureIsSurfaced(t *testing.T) {
	_, cat := newFixture(t)
	faulty := &faultyCatalog{TableCatalog: cat}

	store, err := NewStore(faulty, Options{})
	require.NoError(t, err)
	ctx := context.Background()

	_, err = store.Create(ctx, "exp1", datatypes.ExperimentTypeBernoulli, "",
		bernoulliEvents(true))
	require.NoError(t, err)

	faulty.dropTableErr = errors.New("database is locked")
	faulty.dropCalls = 0

	err = store.Delete(ctx, "exp1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "data table remains")
	assert.Equal(t, 2, faulty.dropCalls, "the drop must be retried once before giving up")
}

func TestGetAndList(t *testing.T) {
	store, _ := newFixture(t)
	ctx := context.Background()

	_, err := store.Create(ctx, "exp1", datatypes.ExperimentTypeBernoulli, "",
		bernoulliEvents(true))
	require.NoError(t, err)

	meta, err := store.Get(ctx, "exp1")
	require.NoError(t, err)
	assert.Equal(t, "exp1", meta.Name)

	metas, err := store.List(ctx)
	require.NoError(t, err)
	assert.Len(t, metas, 1)

	_, err = store.Get(ctx, "ghost")
	assert.ErrorIs(t, err, faults.ErrNotFound)
}

func TestInspect_PagesData(t *testing.T) {
	store, _ := newFixture(t)
	ctx := context.Background()

	_, err := store.Create(ctx, "exp1", datatypes.ExperimentTypeBernoulli, "",
		bernoulliEvents(true, false, true, false, true))
	require.NoError(t, err)

	page, err := store.Inspect(ctx, "exp1", catalog.PageOptions{Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, 2, page.Count)
	assert.Equal(t, 5, page.TotalCount)
}

func TestInspect_UnknownExperiment(t *testing.T) {
	store, _ := newFixture(t)

	_, err := store.Inspect(context.Background(), "ghost", catalog.PageOptions{})
	assert.ErrorIs(t, err, faults.ErrNotFound)
}

func TestAppendEvents(t *testing.T) {
	store, _ := newFixture(t)
	ctx := context.Background()

	_, err := store.Create(ctx, "exp1", datatypes.ExperimentTypeBernoulli, "",
		bernoulliEvents(true))
	require.NoError(t, err)

	require.NoError(t, store.AppendEvents(ctx, "exp1", bernoulliEvents(false, false)))

	page, err := store.Inspect(ctx, "exp1", catalog.PageOptions{})
	require.NoError(t, err)
	assert.Equal(t, 3, page.TotalCount)
}

func TestAppendEvents_SchemaMismatch(t *testing.T) {
	store, _ := newFixture(t)
	ctx := context.Background()

	_, err := store.Create(ctx, "exp1", datatypes.ExperimentTypeBernoulli, "",
		bernoulliEvents(true))
	require.NoError(t, err)

	err = store.AppendEvents(ctx, "exp1", []map[string]any{{"revenue": 12.5}})
	assert.ErrorIs(t, err, faults.ErrInvalidData)
}

func TestAppendEvents_UnknownExperiment(t *testing.T) {
	store, _ := newFixture(t)

	err := store.AppendEvents(context.Background(), "ghost", bernoulliEvents(true))
	assert.ErrorIs(t, err, faults.ErrNotFound)
}

func TestData_ReturnsFullTable(t *testing.T) {
	store, _ := newFixture(t)
	ctx := context.Background()

	_, err := store.Create(ctx, "exp1", datatypes.ExperimentTypeBernoulli, "",
		bernoulliEvents(true, false, true))
	require.NoError(t, err)

	tbl, err := store.Data(ctx, "exp1")
	require.NoError(t, err)
	assert.Equal(t, 3, tbl.NumRows())
	assert.True(t, tbl.HasColumn("outcome"))
	assert.True(t, tbl.HasColumn(datatypes.TimestampColumn))
}
