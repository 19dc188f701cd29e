// Copyright (C) 2025 Vibes Labs (oss@vibeslabs.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package runcatalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"

	"github.com/vibesml/vibes/services/vibes/faults"
)

// Key layout:
//
//	ns/<name>            -> Namespace JSON
//	run/<runID>          -> Run JSON
//	nsrun/<nsID>/<runID> -> empty (per-namespace index)
const (
	nsPrefix    = "ns/"
	runPrefix   = "run/"
	nsRunPrefix = "nsrun/"
)

// BadgerCatalog is the embedded Catalog implementation.
//
// All methods are safe for concurrent use; badger transactions give each
// operation snapshot isolation, and conflicting updates are retried by
// being surfaced as catalog errors to the caller.
type BadgerCatalog struct {
	db     *badger.DB
	logger *slog.Logger
}

var _ Catalog = (*BadgerCatalog)(nil)

// NewBadgerCatalog wraps an open badger database as a run catalog.
func NewBadgerCatalog(db *badger.DB, logger *slog.Logger) (*BadgerCatalog, error) {
	if db == nil {
		return nil, errors.New("db must not be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &BadgerCatalog{
		db:     db,
		logger: logger.With("component", "runcatalog.BadgerCatalog"),
	}, nil
}

func nsKey(name string) []byte        { return []byte(nsPrefix + name) }
func runKey(id string) []byte         { return []byte(runPrefix + id) }
func nsRunKey(nsID, id string) []byte { return []byte(nsRunPrefix + nsID + "/" + id) }

// wrap translates backend errors into the shared taxonomy.
func wrap(op string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, badger.ErrKeyNotFound):
		return fmt.Errorf("%s: %w", op, faults.ErrNotFound)
	case errors.Is(err, faults.ErrNotFound),
		errors.Is(err, faults.ErrTimeout),
		errors.Is(err, context.Canceled):
		// A caller-initiated cancellation is not an infrastructure
		// failure; keep it distinguishable from ErrCatalogUnavailable.
		return fmt.Errorf("%s: %w", op, err)
	default:
		return fmt.Errorf("%s: %w: %v", op, faults.ErrCatalogUnavailable, err)
	}
}

func getJSON(txn *badger.Txn, key []byte, v any) error {
	item, err := txn.Get(key)
	if err != nil {
		return err
	}
	return item.Value(func(val []byte) error {
		return json.Unmarshal(val, v)
	})
}

func setJSON(txn *badger.Txn, key []byte, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return txn.Set(key, raw)
}

// EnsureNamespace implements Catalog.
func (c *BadgerCatalog) EnsureNamespace(ctx context.Context, name string) (Namespace, error) {
	if err := faults.FromContext(ctx); err != nil {
		return Namespace{}, wrap("ensure namespace", err)
	}
	var ns Namespace
	err := c.db.Update(func(txn *badger.Txn) error {
		err := getJSON(txn, nsKey(name), &ns)
		switch {
		case errors.Is(err, badger.ErrKeyNotFound):
			ns = Namespace{
				ID:        uuid.NewString(),
				Name:      name,
				CreatedAt: time.Now().UTC(),
			}
			c.logger.Info("creating cache namespace", "namespace", name, "id", ns.ID)
			return setJSON(txn, nsKey(name), &ns)
		case err != nil:
			return err
		case ns.Deleted:
			// Restore rather than recreate: the id must stay stable so
			// existing runs under it remain reachable.
			ns.Deleted = false
			c.logger.Info("restoring soft-deleted namespace", "namespace", name, "id", ns.ID)
			return setJSON(txn, nsKey(name), &ns)
		default:
			return nil
		}
	})
	if err != nil {
		return Namespace{}, wrap("ensure namespace", err)
	}
	return ns, nil
}

// DeleteNamespace implements Catalog.
func (c *BadgerCatalog) DeleteNamespace(ctx context.Context, name string) error {
	if err := faults.FromContext(ctx); err != nil {
		return wrap("delete namespace", err)
	}
	err := c.db.Update(func(txn *badger.Txn) error {
		var ns Namespace
		if err := getJSON(txn, nsKey(name), &ns); err != nil {
			return err
		}
		ns.Deleted = true
		return setJSON(txn, nsKey(name), &ns)
	})
	return wrap("delete namespace", err)
}

// RestoreNamespace implements Catalog.
func (c *BadgerCatalog) RestoreNamespace(ctx context.Context, name string) error {
	if err := faults.FromContext(ctx); err != nil {
		return wrap("restore namespace", err)
	}
	err := c.db.Update(func(txn *badger.Txn) error {
		var ns Namespace
		if err := getJSON(txn, nsKey(name), &ns); err != nil {
			return err
		}
		ns.Deleted = false
		return setJSON(txn, nsKey(name), &ns)
	})
	return wrap("restore namespace", err)
}

// FindCompletedRun implements Catalog.
//
// Runs per namespace are few (one per distinct dataset content), so a
// prefix scan over the per-namespace index is cheap. The run with the
// greatest FinishedAtNano wins, which gives the last-writer-wins contract
// for the cross-process double-build race.
func (c *BadgerCatalog) FindCompletedRun(ctx context.Context, namespaceID, fingerprint string) (Run, bool, error) {
	if err := faults.FromContext(ctx); err != nil {
		return Run{}, false, wrap("find completed run", err)
	}
	var (
		best  Run
		found bool
	)
	err := c.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := []byte(nsRunPrefix + namespaceID + "/")
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			runID := string(it.Item().Key()[len(prefix):])
			var run Run
			if err := getJSON(txn, runKey(runID), &run); err != nil {
				if errors.Is(err, badger.ErrKeyNotFound) {
					continue // dangling index entry
				}
				return err
			}
			if run.State != RunFinished || run.Fingerprint != fingerprint {
				continue
			}
			if !found || run.FinishedAtNano > best.FinishedAtNano {
				best, found = run, true
			}
		}
		return nil
	})
	if err != nil {
		return Run{}, false, wrap("find completed run", err)
	}
	return best, found, nil
}

// BeginRun implements Catalog.
func (c *BadgerCatalog) BeginRun(ctx context.Context, namespaceID string) (Run, error) {
	if err := faults.FromContext(ctx); err != nil {
		return Run{}, wrap("begin run", err)
	}
	run := Run{
		ID:            uuid.NewString(),
		NamespaceID:   namespaceID,
		State:         RunActive,
		CreatedAtNano: time.Now().UnixNano(),
	}
	err := c.db.Update(func(txn *badger.Txn) error {
		if err := setJSON(txn, runKey(run.ID), &run); err != nil {
			return err
		}
		return txn.Set(nsRunKey(namespaceID, run.ID), nil)
	})
	if err != nil {
		return Run{}, wrap("begin run", err)
	}
	return run, nil
}

// updateRun loads, mutates, and stores a run in one transaction.
func (c *BadgerCatalog) updateRun(runID string, mutate func(*Run) error) error {
	return c.db.Update(func(txn *badger.Txn) error {
		var run Run
		if err := getJSON(txn, runKey(runID), &run); err != nil {
			return err
		}
		if err := mutate(&run); err != nil {
			return err
		}
		return setJSON(txn, runKey(runID), &run)
	})
}

// TagRun implements Catalog.
func (c *BadgerCatalog) TagRun(ctx context.Context, runID, fingerprint string) error {
	if err := faults.FromContext(ctx); err != nil {
		return wrap("tag run", err)
	}
	err := c.updateRun(runID, func(run *Run) error {
		run.Fingerprint = fingerprint
		return nil
	})
	return wrap("tag run", err)
}

// FinishRun implements Catalog.
func (c *BadgerCatalog) FinishRun(ctx context.Context, runID string) error {
	if err := faults.FromContext(ctx); err != nil {
		return wrap("finish run", err)
	}
	err := c.updateRun(runID, func(run *Run) error {
		run.State = RunFinished
		run.FinishedAtNano = time.Now().UnixNano()
		return nil
	})
	return wrap("finish run", err)
}

// FailRun implements Catalog. The failed run is deleted in the same
// transaction that marks it failed, so no reader can ever match it.
func (c *BadgerCatalog) FailRun(ctx context.Context, runID string) error {
	if err := faults.FromContext(ctx); err != nil {
		return wrap("fail run", err)
	}
	err := c.db.Update(func(txn *badger.Txn) error {
		var run Run
		if err := getJSON(txn, runKey(runID), &run); err != nil {
			return err
		}
		run.State = RunFailed
		c.logger.Warn("deleting failed run",
			"run_id", runID, "namespace_id", run.NamespaceID, "fingerprint", run.Fingerprint)
		if err := txn.Delete(runKey(runID)); err != nil {
			return err
		}
		return txn.Delete(nsRunKey(run.NamespaceID, runID))
	})
	return wrap("fail run", err)
}

// DeleteRun implements Catalog.
func (c *BadgerCatalog) DeleteRun(ctx context.Context, runID string) error {
	if err := faults.FromContext(ctx); err != nil {
		return wrap("delete run", err)
	}
	err := c.db.Update(func(txn *badger.Txn) error {
		var run Run
		if err := getJSON(txn, runKey(runID), &run); err != nil {
			return err
		}
		if err := txn.Delete(runKey(runID)); err != nil {
			return err
		}
		return txn.Delete(nsRunKey(run.NamespaceID, runID))
	})
	return wrap("delete run", err)
}

// GetRun implements Catalog.
func (c *BadgerCatalog) GetRun(ctx context.Context, runID string) (Run, error) {
	if err := faults.FromContext(ctx); err != nil {
		return Run{}, wrap("get run", err)
	}
	var run Run
	err := c.db.View(func(txn *badger.Txn) error {
		return getJSON(txn, runKey(runID), &run)
	})
	if err != nil {
		return Run{}, wrap("get run", err)
	}
	return run, nil
}
