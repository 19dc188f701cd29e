// Copyright (C) 2025 Vibes Labs (oss@vibeslabs.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package artifacts

import (
	"context"
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"

	"github.com/vibesml/vibes/services/vibes/faults"
)

const artifactPrefix = "artifact/"

// BadgerStore is the embedded Store implementation. The database must be
// opened with SyncWrites for the durability contract to hold.
type BadgerStore struct {
	db *badger.DB
}

var _ Store = (*BadgerStore)(nil)

// NewBadgerStore wraps an open badger database as an artifact store.
func NewBadgerStore(db *badger.DB) (*BadgerStore, error) {
	if db == nil {
		return nil, errors.New("db must not be nil")
	}
	return &BadgerStore{db: db}, nil
}

func artifactKey(runID string) []byte {
	return []byte(artifactPrefix + runID)
}

// Put implements Store.
func (s *BadgerStore) Put(ctx context.Context, runID string, blob []byte) error {
	if err := faults.FromContext(ctx); err != nil {
		return fmt.Errorf("put artifact: %w", err)
	}
	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(artifactKey(runID), blob)
	})
	if err != nil {
		return fmt.Errorf("put artifact %s: %w: %v", runID, faults.ErrArtifactStoreUnavailable, err)
	}
	return nil
}

// Get implements Store.
func (s *BadgerStore) Get(ctx context.Context, runID string) ([]byte, error) {
	if err := faults.FromContext(ctx); err != nil {
		return nil, fmt.Errorf("get artifact: %w", err)
	}
	var blob []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(artifactKey(runID))
		if err != nil {
			return err
		}
		blob, err = item.ValueCopy(nil)
		return err
	})
	switch {
	case errors.Is(err, badger.ErrKeyNotFound):
		return nil, fmt.Errorf("get artifact %s: %w", runID, faults.ErrArtifactMissing)
	case err != nil:
		return nil, fmt.Errorf("get artifact %s: %w: %v", runID, faults.ErrArtifactStoreUnavailable, err)
	}
	return blob, nil
}

// Delete implements Store.
func (s *BadgerStore) Delete(ctx context.Context, runID string) error {
	if err := faults.FromContext(ctx); err != nil {
		return fmt.Errorf("delete artifact: %w", err)
	}
	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(artifactKey(runID))
	})
	if err != nil {
		return fmt.Errorf("delete artifact %s: %w: %v", runID, faults.ErrArtifactStoreUnavailable, err)
	}
	return nil
}
