// Copyright (C) 2025 Vibes Labs (oss@vibeslabs.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package fitcache implements the content-addressed compute cache around
// a caller-supplied build function.
//
// # Description
//
// GetOrCreate fingerprints a dataset, looks for a finished run with that
// fingerprint in the run catalog, and either returns the stored artifact
// (hit) or executes the build, persists the result, and records a finished
// run (miss). Sub-operations always execute in the documented order:
// tag before build, artifact put before finish. A crash therefore leaves
// the least ambiguous partial state, an active run with no artifact, which
// can never satisfy a lookup.
//
// # Concurrency
//
// All methods are safe for concurrent callers sharing one Cache. Within a
// process, a singleflight group keyed by (namespace, fingerprint) collapses
// concurrent first builds, so the build runs once and all waiters share the
// result. Across processes the lookup-then-act window remains: two
// processes can both miss and both build. The catalog then holds two
// finished runs for one fingerprint and readers see whichever finished
// last. No reader ever observes a torn artifact, because a run only
// becomes finished after its artifact is durable.
//
// # Cancellation
//
// Each catalog and artifact call runs under a bounded per-call timeout.
// The build function receives the caller's context unmodified; a build
// already in flight is not cancelled on client disconnect. That is a
// documented limitation.
package fitcache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"

	"github.com/vibesml/vibes/services/vibes/artifacts"
	"github.com/vibesml/vibes/services/vibes/datatypes"
	"github.com/vibesml/vibes/services/vibes/faults"
	"github.com/vibesml/vibes/services/vibes/observability"
	"github.com/vibesml/vibes/services/vibes/runcatalog"
)

// BuildFunc produces an artifact from a dataset. It is assumed expensive,
// possibly non-deterministic in wall-clock cost, and deterministic in
// output for a fixed input. It may run for minutes.
type BuildFunc func(ctx context.Context, dataset datatypes.Table) (datatypes.Artifact, error)

// DefaultOpTimeout bounds each individual catalog or artifact-store call.
const DefaultOpTimeout = 10 * time.Second

// Options configures a Cache.
type Options struct {
	// OpTimeout is the per-call deadline for catalog and artifact-store
	// operations. The build function is not subject to it.
	// Default: DefaultOpTimeout.
	OpTimeout time.Duration

	// Metrics receives cache and build observations. Optional.
	Metrics *observability.Metrics

	// Logger for cache events. Defaults to slog.Default().
	Logger *slog.Logger
}

// Cache is the compute cache. Construct one per process and inject it
// into request handlers; it holds no global state.
type Cache struct {
	runs      runcatalog.Catalog
	store     artifacts.Store
	metrics   *observability.Metrics
	logger    *slog.Logger
	tracer    trace.Tracer
	flight    singleflight.Group
	opTimeout time.Duration
}

// New creates a Cache over a run catalog and an artifact store.
func New(runs runcatalog.Catalog, store artifacts.Store, opts Options) (*Cache, error) {
	if runs == nil {
		return nil, errors.New("run catalog must not be nil")
	}
	if store == nil {
		return nil, errors.New("artifact store must not be nil")
	}
	if opts.OpTimeout <= 0 {
		opts.OpTimeout = DefaultOpTimeout
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Cache{
		runs:      runs,
		store:     store,
		metrics:   opts.Metrics,
		logger:    logger.With("component", "fitcache.Cache"),
		tracer:    otel.Tracer("vibes/fitcache"),
		opTimeout: opts.OpTimeout,
	}, nil
}

// GetOrCreate returns the cached artifact for (namespace, dataset), or
// builds, persists, and records it on a miss.
//
// # Outputs
//
//   - datatypes.Artifact: The cached or freshly built artifact.
//   - error: faults.ErrCacheCorrupted for a finished run with no
//     retrievable artifact (never silently rebuilt); faults.ErrBuildFailed
//     wrapping the build's error, with the attempt's run and tag cleaned
//     up first; or an infrastructure error from the taxonomy.
//
// For a fixed (namespace, dataset content) repeated calls are idempotent:
// the build executes at most once per process, and a second call is a hit.
func (c *Cache) GetOrCreate(ctx context.Context, namespace string, dataset datatypes.Table, build BuildFunc) (datatypes.Artifact, error) {
	if build == nil {
		return nil, errors.New("build function must not be nil")
	}

	fp := Fingerprint(namespace, dataset)
	v, err, shared := c.flight.Do(namespace+"\x00"+fp, func() (any, error) {
		return c.lookupOrBuild(ctx, namespace, fp, dataset, build)
	})
	if err != nil {
		return nil, err
	}
	if shared {
		c.logger.Debug("request joined in-flight build", "namespace", namespace, "fingerprint", fp)
	}
	return v.(datatypes.Artifact), nil
}

func (c *Cache) lookupOrBuild(ctx context.Context, namespace, fp string, dataset datatypes.Table, build BuildFunc) (datatypes.Artifact, error) {
	ctx, span := c.tracer.Start(ctx, "fitcache.GetOrCreate", trace.WithAttributes(
		attribute.String("cache.namespace", namespace),
		attribute.String("cache.fingerprint", fp),
	))
	defer span.End()

	ns, err := c.ensureNamespace(ctx, namespace)
	if err != nil {
		c.metrics.ObserveCacheLookup(namespace, "error")
		return nil, err
	}

	run, found, err := c.findCompletedRun(ctx, ns.ID, fp)
	if err != nil {
		c.metrics.ObserveCacheLookup(namespace, "error")
		return nil, err
	}
	if found {
		return c.readHit(ctx, namespace, run)
	}

	c.metrics.ObserveCacheLookup(namespace, "miss")
	span.SetAttributes(attribute.Bool("cache.hit", false))
	c.logger.Info("cache miss, executing build", "namespace", namespace, "fingerprint", fp)
	return c.buildAndStore(ctx, namespace, ns, fp, dataset, build)
}

// readHit fetches the artifact for a finished run. A missing blob despite
// the finished tag is cache corruption: surfaced, never rebuilt, because a
// rebuild would need the stale tag cleared first and that is an explicit
// repair operation, not something this layer does on its own.
func (c *Cache) readHit(ctx context.Context, namespace string, run runcatalog.Run) (datatypes.Artifact, error) {
	opCtx, cancel := context.WithTimeout(ctx, c.opTimeout)
	defer cancel()
	blob, err := c.store.Get(opCtx, run.ID)
	if err != nil {
		if errors.Is(err, faults.ErrArtifactMissing) {
			c.metrics.ObserveCacheLookup(namespace, "error")
			c.logger.Error("finished run has no artifact",
				"namespace", namespace, "run_id", run.ID, "fingerprint", run.Fingerprint)
			return nil, fmt.Errorf("run %s finished but artifact unreadable: %w",
				run.ID, faults.ErrCacheCorrupted)
		}
		c.metrics.ObserveCacheLookup(namespace, "error")
		return nil, err
	}

	c.metrics.ObserveCacheLookup(namespace, "hit")
	c.logger.Debug("cache hit", "namespace", namespace, "run_id", run.ID)
	return datatypes.Artifact(blob), nil
}

// buildAndStore executes the miss path: begin, tag, build, put, finish.
// On any failure the run created for the attempt is failed-and-deleted
// before the error is surfaced, leaving the cache exactly as it was.
func (c *Cache) buildAndStore(ctx context.Context, namespace string, ns runcatalog.Namespace, fp string, dataset datatypes.Table, build BuildFunc) (datatypes.Artifact, error) {
	run, err := c.beginRun(ctx, ns.ID)
	if err != nil {
		return nil, err
	}
	if err := c.tagRun(ctx, run.ID, fp); err != nil {
		c.discardRun(run.ID, false)
		return nil, err
	}

	done := c.metrics.BuildStarted()
	start := time.Now()
	artifact, buildErr := build(ctx, dataset)
	elapsed := time.Since(start)
	done()

	if buildErr != nil {
		c.metrics.ObserveBuild("failure", elapsed)
		c.discardRun(run.ID, false)
		return nil, fmt.Errorf("%w: %w", faults.ErrBuildFailed, buildErr)
	}
	c.metrics.ObserveBuild("success", elapsed)

	// Artifact before finish: a reader that observes a finished run must
	// be able to read its blob.
	if err := c.putArtifact(ctx, run.ID, artifact); err != nil {
		c.discardRun(run.ID, true)
		return nil, err
	}
	if err := c.finishRun(ctx, run.ID); err != nil {
		c.discardRun(run.ID, true)
		return nil, err
	}

	c.logger.Info("build cached", "namespace", namespace,
		"run_id", run.ID, "fingerprint", fp, "build_seconds", elapsed.Seconds())
	return artifact, nil
}

// discardRun removes a run (and optionally its partial artifact) after a
// failed attempt. Cleanup is best-effort: the original error is what the
// caller needs to see, so cleanup failures are only logged.
func (c *Cache) discardRun(runID string, dropArtifact bool) {
	ctx, cancel := context.WithTimeout(context.Background(), c.opTimeout)
	defer cancel()

	if dropArtifact {
		if err := c.store.Delete(ctx, runID); err != nil {
			c.logger.Warn("failed to remove partial artifact", "run_id", runID, "error", err)
		}
	}
	if err := c.runs.FailRun(ctx, runID); err != nil {
		c.logger.Warn("failed to discard run", "run_id", runID, "error", err)
	}
}

// The helpers below apply the per-call timeout to each remote operation.

func (c *Cache) ensureNamespace(ctx context.Context, name string) (runcatalog.Namespace, error) {
	opCtx, cancel := context.WithTimeout(ctx, c.opTimeout)
	defer cancel()
	return c.runs.EnsureNamespace(opCtx, name)
}

func (c *Cache) findCompletedRun(ctx context.Context, nsID, fp string) (runcatalog.Run, bool, error) {
	opCtx, cancel := context.WithTimeout(ctx, c.opTimeout)
	defer cancel()
	return c.runs.FindCompletedRun(opCtx, nsID, fp)
}

func (c *Cache) beginRun(ctx context.Context, nsID string) (runcatalog.Run, error) {
	opCtx, cancel := context.WithTimeout(ctx, c.opTimeout)
	defer cancel()
	return c.runs.BeginRun(opCtx, nsID)
}

func (c *Cache) tagRun(ctx context.Context, runID, fp string) error {
	opCtx, cancel := context.WithTimeout(ctx, c.opTimeout)
	defer cancel()
	return c.runs.TagRun(opCtx, runID, fp)
}

func (c *Cache) finishRun(ctx context.Context, runID string) error {
	opCtx, cancel := context.WithTimeout(ctx, c.opTimeout)
	defer cancel()
	return c.runs.FinishRun(opCtx, runID)
}

func (c *Cache) putArtifact(ctx context.Context, runID string, artifact datatypes.Artifact) error {
	opCtx, cancel := context.WithTimeout(ctx, c.opTimeout)
	defer cancel()
	return c.store.Put(opCtx, runID, artifact)
}
