// Copyright (C) 2025 Vibes Labs (oss@vibeslabs.dev)
// Tests for the compute cache

package fitcache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vibesml/vibes/services/vibes/artifacts"
	"github.com/vibesml/vibes/services/vibes/datatypes"
	"github.com/vibesml/vibes/services/vibes/faults"
	"github.com/vibesml/vibes/services/vibes/runcatalog"
	vbadger "github.com/vibesml/vibes/services/vibes/storage/badger"
)

type cacheFixture struct {
	cache *Cache
	runs  runcatalog.Catalog
	store artifacts.Store
}

func newCacheFixture(t *testing.T) *cacheFixture {
	t.Helper()

	db, err := vbadger.OpenInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	runs, err := runcatalog.NewBadgerCatalog(db, nil)
	require.NoError(t, err)

	store, err := artifacts.NewBadgerStore(db)
	require.NoError(t, err)

	cache, err := New(runs, store, Options{})
	require.NoError(t, err)

	return &cacheFixture{cache: cache, runs: runs, store: store}
}

func countingBuild(counter *atomic.Int32, artifact datatypes.Artifact) BuildFunc {
	return func(ctx context.Context, dataset datatypes.Table) (datatypes.Artifact, error) {
		counter.Add(1)
		return artifact, nil
	}
}

func testDataset(t *testing.T, outcomes ...bool) datatypes.Table {
	t.Helper()
	records := make([]map[string]any, len(outcomes))
	for i, outcome := range outcomes {
		records[i] = map[string]any{"outcome": outcome}
	}
	tbl, err := datatypes.FromRecords(records)
	require.NoError(t, err)
	return tbl
}

func TestGetOrCreate_BuildsOnceForSameData(t *testing.T) {
	f := newCacheFixture(t)
	dataset := testDataset(t, true, false, true)

	var builds atomic.Int32
	build := countingBuild(&builds, datatypes.Artifact("posterior-blob"))

	first, err := f.cache.GetOrCreate(context.Background(), "exp1", dataset, build)
	require.NoError(t, err)
	assert.Equal(t, datatypes.Artifact("posterior-blob"), first)

	second, err := f.cache.GetOrCreate(context.Background(), "exp1", dataset, build)
	require.NoError(t, err)
	assert.Equal(t, first, second)

	assert.Equal(t, int32(1), builds.Load(), "identical data must hit the cache")
}

func TestGetOrCreate_RebuildsWhenDataChanges(t *testing.T) {
	f := newCacheFixture(t)

	var builds atomic.Int32
	build := countingBuild(&builds, datatypes.Artifact("blob"))

	_, err := f.cache.GetOrCreate(context.Background(), "exp1", testDataset(t, true), build)
	require.NoError(t, err)
	_, err = f.cache.GetOrCreate(context.Background(), "exp1", testDataset(t, true, false), build)
	require.NoError(t, err)

	assert.Equal(t, int32(2), builds.Load())
}

func TestGetOrCreate_NamespacesAreIsolated(t *testing.T) {
	f := newCacheFixture(t)
	dataset := testDataset(t, true)

	var builds atomic.Int32
	build := countingBuild(&builds, datatypes.Artifact("blob"))

	_, err := f.cache.GetOrCreate(context.Background(), "exp1", dataset, build)
	require.NoError(t, err)
	_, err = f.cache.GetOrCreate(context.Background(), "exp2", dataset, build)
	require.NoError(t, err)

	assert.Equal(t, int32(2), builds.Load(), "same data under another namespace is a different key")
}

func TestGetOrCreate_BuildFailureLeavesNoTrace(t *testing.T) {
	f := newCacheFixture(t)
	dataset := testDataset(t, true)
	boom := errors.New("fit diverged")

	_, err := f.cache.GetOrCreate(context.Background(), "exp1", dataset,
		func(ctx context.Context, d datatypes.Table) (datatypes.Artifact, error) {
			return nil, boom
		})
	require.Error(t, err)
	assert.ErrorIs(t, err, faults.ErrBuildFailed)
	assert.ErrorIs(t, err, boom)

	// No completed run may remain for the fingerprint.
	ns, err := f.runs.EnsureNamespace(context.Background(), "exp1")
	require.NoError(t, err)
	_, found, err := f.runs.FindCompletedRun(context.Background(), ns.ID, Fingerprint("exp1", dataset))
	require.NoError(t, err)
	assert.False(t, found, "failed build must not leave a completed run")

	// A later call retries the build and succeeds.
	var builds atomic.Int32
	artifact, err := f.cache.GetOrCreate(context.Background(), "exp1", dataset,
		countingBuild(&builds, datatypes.Artifact("recovered")))
	require.NoError(t, err)
	assert.Equal(t, datatypes.Artifact("recovered"), artifact)
	assert.Equal(t, int32(1), builds.Load())
}

func TestGetOrCreate_CorruptedCacheIsSurfacedNotRebuilt(t *testing.T) {
	f := newCacheFixture(t)
	dataset := testDataset(t, true)
	ctx := context.Background()

	// Hand-craft a finished run whose artifact is missing.
	ns, err := f.runs.EnsureNamespace(ctx, "exp1")
	require.NoError(t, err)
	run, err := f.runs.BeginRun(ctx, ns.ID)
	require.NoError(t, err)
	require.NoError(t, f.runs.TagRun(ctx, run.ID, Fingerprint("exp1", dataset)))
	require.NoError(t, f.runs.FinishRun(ctx, run.ID))

	var builds atomic.Int32
	_, err = f.cache.GetOrCreate(ctx, "exp1", dataset,
		countingBuild(&builds, datatypes.Artifact("should-not-run")))

	assert.ErrorIs(t, err, faults.ErrCacheCorrupted)
	assert.Equal(t, int32(0), builds.Load(), "a corrupted entry must never trigger a silent rebuild")
}

func TestGetOrCreate_ConcurrentCallersShareOneBuild(t *testing.T) {
	f := newCacheFixture(t)
	dataset := testDataset(t, true, true, false)

	var builds atomic.Int32
	release := make(chan struct{})
	build := func(ctx context.Context, d datatypes.Table) (datatypes.Artifact, error) {
		builds.Add(1)
		<-release
		return datatypes.Artifact("shared"), nil
	}

	const callers = 8
	var wg sync.WaitGroup
	results := make([]datatypes.Artifact, callers)
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = f.cache.GetOrCreate(context.Background(), "exp1", dataset, build)
		}(i)
	}
	close(release)
	wg.Wait()

	for i := 0; i < callers; i++ {
		require.NoError(t, errs[i], "caller %d", i)
		assert.Equal(t, datatypes.Artifact("shared"), results[i])
	}
	assert.Equal(t, int32(1), builds.Load(), "concurrent callers for one key must share one build")
}

func TestGetOrCreate_ArtifactIsDurableBeforeFinish(t *testing.T) {
	f := newCacheFixture(t)
	dataset := testDataset(t, false)
	ctx := context.Background()

	_, err := f.cache.GetOrCreate(ctx, "exp1", dataset,
		func(ctx context.Context, d datatypes.Table) (datatypes.Artifact, error) {
			return datatypes.Artifact("durable"), nil
		})
	require.NoError(t, err)

	ns, err := f.runs.EnsureNamespace(ctx, "exp1")
	require.NoError(t, err)
	run, found, err := f.runs.FindCompletedRun(ctx, ns.ID, Fingerprint("exp1", dataset))
	require.NoError(t, err)
	require.True(t, found)

	blob, err := f.store.Get(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, []byte("durable"), blob)
}

func TestGetOrCreate_ErrorMessageNamesNamespace(t *testing.T) {
	f := newCacheFixture(t)

	_, err := f.cache.GetOrCreate(context.Background(), "exp1", testDataset(t, true),
		func(ctx context.Context, d datatypes.Table) (datatypes.Artifact, error) {
			return nil, fmt.Errorf("bad prior")
		})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad prior")
}
