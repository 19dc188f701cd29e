// Copyright (C) 2025 Vibes Labs (oss@vibeslabs.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package runcatalog tracks build attempts (runs) per cache namespace.
//
// # Description
//
// A namespace is an isolated fingerprint space, one per (experiment,
// build-function) pair. Namespaces are lazily created on first use and are
// soft-deletable: deleting hides the namespace, restoring brings it back
// with the same id so existing runs stay reachable.
//
// A run is one attempt to produce a cached artifact. It carries a content
// fingerprint tag and a lifecycle state. At most one run per (namespace,
// fingerprint) should reach the finished state; the compute cache enforces
// this via search-before-create, accepting the documented race window for
// concurrent first builds across processes.
package runcatalog

import (
	"context"
	"time"
)

// RunState is the lifecycle state of a run.
type RunState string

const (
	// RunActive is a run whose build is still executing.
	RunActive RunState = "active"
	// RunFinished is a run whose artifact was durably stored.
	RunFinished RunState = "finished"
	// RunFailed is a run whose build or store failed. Failed runs are
	// deleted immediately so they can never satisfy a lookup.
	RunFailed RunState = "failed"
)

// Namespace is an isolated collection of runs sharing a fingerprint space.
type Namespace struct {
	// ID is stable for the life of the namespace, across the soft
	// delete/restore cycle.
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Deleted   bool      `json:"deleted"`
	CreatedAt time.Time `json:"created_at"`
}

// Run is one build attempt.
type Run struct {
	ID          string   `json:"id"`
	NamespaceID string   `json:"namespace_id"`
	Fingerprint string   `json:"fingerprint"`
	State       RunState `json:"state"`
	// CreatedAtNano and FinishedAtNano order runs within a namespace;
	// FindCompletedRun returns the run with the greatest FinishedAtNano.
	CreatedAtNano  int64 `json:"created_at_nano"`
	FinishedAtNano int64 `json:"finished_at_nano,omitempty"`
}

// Catalog is the run catalog consumed by the compute cache.
//
// # Failure semantics
//
// Implementations fail with faults.ErrCatalogUnavailable on connectivity or
// storage errors (not retried by this layer) and faults.ErrNotFound for
// references to deleted namespaces or runs.
type Catalog interface {
	// EnsureNamespace is an idempotent lookup-or-create. A soft-deleted
	// namespace with this name is restored, not recreated.
	EnsureNamespace(ctx context.Context, name string) (Namespace, error)

	// DeleteNamespace soft-deletes the named namespace. Runs under it
	// remain stored and become reachable again after RestoreNamespace.
	DeleteNamespace(ctx context.Context, name string) error

	// RestoreNamespace undoes a soft delete.
	RestoreNamespace(ctx context.Context, name string) error

	// FindCompletedRun returns the most recent finished run tagged with
	// the fingerprint, or ok=false when there is none.
	FindCompletedRun(ctx context.Context, namespaceID, fingerprint string) (run Run, ok bool, err error)

	// BeginRun creates a run in the active state.
	BeginRun(ctx context.Context, namespaceID string) (Run, error)

	// TagRun attaches a content fingerprint to an active run.
	TagRun(ctx context.Context, runID, fingerprint string) error

	// FinishRun transitions an active run to finished. The caller must
	// have durably stored the artifact first.
	FinishRun(ctx context.Context, runID string) error

	// FailRun marks a run failed and deletes it, so it cannot be matched
	// by future lookups.
	FailRun(ctx context.Context, runID string) error

	// DeleteRun removes a run outright.
	DeleteRun(ctx context.Context, runID string) error

	// GetRun fetches a run by id.
	GetRun(ctx context.Context, runID string) (Run, error)
}
