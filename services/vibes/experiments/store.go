// Copyright (C) 2025 Vibes Labs (oss@vibeslabs.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package experiments implements the experiment store: a two-part commit
// of a named data table plus a metadata row describing it.
//
// # Description
//
// The invariant is that a metadata row exists iff the corresponding data
// table exists, no orphans in either direction, even under failure. The
// underlying catalog cannot be assumed to cover table DDL and metadata DML
// with one transaction, so create and delete are sagas: forward steps with
// explicit compensating actions, executed before any error is surfaced.
//
// Create runs table-then-row (a leftover table with no row is inert and is
// dropped by compensation); delete runs row-then-drop (a leftover table
// with no row is again the least ambiguous partial state).
package experiments

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/vibesml/vibes/services/vibes/catalog"
	"github.com/vibesml/vibes/services/vibes/datatypes"
	"github.com/vibesml/vibes/services/vibes/faults"
	"github.com/vibesml/vibes/services/vibes/observability"
)

// TableCatalog is the slice of the table catalog the store consumes.
// Narrowing it to an interface keeps fault injection cheap in tests.
type TableCatalog interface {
	HasTable(ctx context.Context, name string) (bool, error)
	CreateTable(ctx context.Context, name string, tbl datatypes.Table) error
	InsertRows(ctx context.Context, name string, tbl datatypes.Table) error
	DropTable(ctx context.Context, name string) error
	Page(ctx context.Context, name string, opts catalog.PageOptions) (datatypes.PagedRows, error)
	PutExperiment(ctx context.Context, meta datatypes.ExperimentMetadata) error
	DeleteExperiment(ctx context.Context, name string) error
	GetExperiment(ctx context.Context, name string) (datatypes.ExperimentMetadata, error)
	ListExperiments(ctx context.Context) ([]datatypes.ExperimentMetadata, error)
}

// DefaultOpTimeout bounds each individual catalog call.
const DefaultOpTimeout = 10 * time.Second

// Options configures a Store.
type Options struct {
	// OpTimeout is the per-call catalog deadline. Default: DefaultOpTimeout.
	OpTimeout time.Duration

	// Metrics receives per-operation observations. Optional.
	Metrics *observability.Metrics

	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// Store owns experiment lifecycle over a table catalog. Safe for
// concurrent use; it holds no locks across catalog calls.
type Store struct {
	cat       TableCatalog
	metrics   *observability.Metrics
	logger    *slog.Logger
	opTimeout time.Duration
}

// NewStore creates a Store over the given catalog.
func NewStore(cat TableCatalog, opts Options) (*Store, error) {
	if cat == nil {
		return nil, errors.New("catalog must not be nil")
	}
	if opts.OpTimeout <= 0 {
		opts.OpTimeout = DefaultOpTimeout
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		cat:       cat,
		metrics:   opts.Metrics,
		logger:    logger.With("component", "experiments.Store"),
		opTimeout: opts.OpTimeout,
	}, nil
}

func (s *Store) opCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.opTimeout)
}

func (s *Store) observe(op string, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	s.metrics.ObserveExperimentOp(op, status)
}

// Create registers a new experiment: its data table built from rows, and
// its metadata row, as one unit.
//
// # Outputs
//
//   - datatypes.ExperimentMetadata: The stored metadata.
//   - error: faults.ErrAlreadyExists when the name already denotes a
//     table or metadata row; faults.ErrInvalidData for an empty or
//     unschema-able row set; otherwise an infrastructure error. On any
//     failure after table creation, the table is dropped again before the
//     error returns.
func (s *Store) Create(ctx context.Context, name, experimentType, displayName string, records []map[string]any) (meta datatypes.ExperimentMetadata, err error) {
	defer func() { s.observe("create", err) }()

	if !datatypes.KnownExperimentType(experimentType) {
		return datatypes.ExperimentMetadata{}, fmt.Errorf(
			"%w: unknown experiment type %q", faults.ErrInvalidData, experimentType)
	}

	tbl, err := datatypes.FromRecords(records)
	if err != nil {
		return datatypes.ExperimentMetadata{}, err
	}

	opCtx, cancel := s.opCtx(ctx)
	exists, err := s.cat.HasTable(opCtx, name)
	cancel()
	if err != nil {
		return datatypes.ExperimentMetadata{}, err
	}
	if exists {
		return datatypes.ExperimentMetadata{}, fmt.Errorf("experiment %s: %w", name, faults.ErrAlreadyExists)
	}

	opCtx, cancel = s.opCtx(ctx)
	err = s.cat.CreateTable(opCtx, name, tbl)
	cancel()
	if err != nil {
		return datatypes.ExperimentMetadata{}, err
	}

	meta = datatypes.ExperimentMetadata{
		Name:        name,
		Type:        experimentType,
		DisplayName: displayName,
		Status:      datatypes.StatusCreated,
		CreatedAt:   time.Now().UTC(),
	}
	opCtx, cancel = s.opCtx(ctx)
	err = s.cat.PutExperiment(opCtx, meta)
	cancel()
	if err != nil {
		// The table exists but its metadata row does not; drop the table
		// so no orphan survives the failure.
		s.compensateDrop(name, "metadata insert failed")
		return datatypes.ExperimentMetadata{}, err
	}

	s.logger.Info("experiment created", "experiment", name,
		"type", experimentType, "rows", tbl.NumRows())
	return meta, nil
}

// Delete removes an experiment's metadata row and data table as one unit.
// Fails with faults.ErrNotFound when no metadata row matches.
func (s *Store) Delete(ctx context.Context, name string) (err error) {
	defer func() { s.observe("delete", err) }()

	opCtx, cancel := s.opCtx(ctx)
	err = s.cat.DeleteExperiment(opCtx, name)
	cancel()
	if err != nil {
		return err
	}

	opCtx, cancel = s.opCtx(ctx)
	err = s.cat.DropTable(opCtx, name)
	cancel()
	if err != nil {
		// The metadata row is already gone. Retry the drop once; if the
		// table still cannot be removed, surface the inconsistency so an
		// operator can repair it, rather than report success.
		s.logger.Warn("table drop failed after metadata delete, retrying",
			"experiment", name, "error", err)
		opCtx, cancel = s.opCtx(ctx)
		retryErr := s.cat.DropTable(opCtx, name)
		cancel()
		if retryErr != nil {
			return fmt.Errorf("experiment %s metadata deleted but data table remains: %w", name, retryErr)
		}
	}

	s.logger.Info("experiment deleted", "experiment", name)
	return nil
}

// compensateDrop removes a data table left behind by a failed saga. The
// original error is the one the caller must see; compensation failures
// are logged, leaving a detectable (table, no row) state.
func (s *Store) compensateDrop(name, reason string) {
	ctx, cancel := context.WithTimeout(context.Background(), s.opTimeout)
	defer cancel()

	exists, err := s.cat.HasTable(ctx, name)
	if err != nil {
		s.logger.Error("compensation check failed", "experiment", name, "reason", reason, "error", err)
		return
	}
	if !exists {
		return
	}
	if err := s.cat.DropTable(ctx, name); err != nil {
		s.logger.Error("compensating table drop failed", "experiment", name, "reason", reason, "error", err)
		return
	}
	s.logger.Warn("dropped orphaned data table", "experiment", name, "reason", reason)
}

// List returns all experiment metadata rows.
func (s *Store) List(ctx context.Context) (metas []datatypes.ExperimentMetadata, err error) {
	defer func() { s.observe("list", err) }()
	opCtx, cancel := s.opCtx(ctx)
	defer cancel()
	return s.cat.ListExperiments(opCtx)
}

// Get returns one experiment's metadata, or faults.ErrNotFound.
func (s *Store) Get(ctx context.Context, name string) (meta datatypes.ExperimentMetadata, err error) {
	defer func() { s.observe("get", err) }()
	opCtx, cancel := s.opCtx(ctx)
	defer cancel()
	return s.cat.GetExperiment(opCtx, name)
}

// Inspect returns one page of an experiment's data with an optional
// time-range filter. The filter silently no-ops for tables without a
// timestamp column.
func (s *Store) Inspect(ctx context.Context, name string, opts catalog.PageOptions) (page datatypes.PagedRows, err error) {
	defer func() { s.observe("inspect", err) }()

	opCtx, cancel := s.opCtx(ctx)
	_, err = s.cat.GetExperiment(opCtx, name)
	cancel()
	if err != nil {
		return datatypes.PagedRows{}, err
	}

	opCtx, cancel = s.opCtx(ctx)
	defer cancel()
	return s.cat.Page(opCtx, name, opts)
}

// AppendEvents adds a batch of events to an experiment's data table.
// Fails with faults.ErrNotFound for unknown experiments and
// faults.ErrInvalidData for batches that do not fit the table schema.
func (s *Store) AppendEvents(ctx context.Context, name string, records []map[string]any) (err error) {
	defer func() { s.observe("append", err) }()

	opCtx, cancel := s.opCtx(ctx)
	_, err = s.cat.GetExperiment(opCtx, name)
	cancel()
	if err != nil {
		return err
	}

	tbl, err := datatypes.FromRecords(records)
	if err != nil {
		return err
	}

	opCtx, cancel = s.opCtx(ctx)
	defer cancel()
	return s.cat.InsertRows(opCtx, name, tbl)
}

// Data returns the full contents of an experiment's data table in row
// order. Used to feed build functions.
func (s *Store) Data(ctx context.Context, name string) (datatypes.Table, error) {
	opCtx, cancel := s.opCtx(ctx)
	defer cancel()

	page, err := s.cat.Page(opCtx, name, catalog.PageOptions{Limit: 1 << 30})
	if err != nil {
		return datatypes.Table{}, err
	}
	if len(page.Rows) == 0 {
		return datatypes.Table{}, fmt.Errorf("experiment %s: %w: no rows", name, faults.ErrInvalidData)
	}
	return datatypes.FromRecords(page.Rows)
}
