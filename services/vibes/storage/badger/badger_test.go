// Copyright (C) 2025 Vibes Labs (oss@vibeslabs.dev)
// Tests for the badger factory

package badger

import (
	"testing"
	"time"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenInMemory(t *testing.T) {
	db, err := OpenInMemory()
	require.NoError(t, err)
	defer db.Close()

	err = db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte("k"), []byte("v"))
	})
	require.NoError(t, err)

	err = db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte("k"))
		if err != nil {
			return err
		}
		val, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}
		assert.Equal(t, []byte("v"), val)
		return nil
	})
	assert.NoError(t, err)
}

func TestOpen_OnDisk(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Path = t.TempDir()

	db, err := Open(cfg)
	require.NoError(t, err)
	assert.NoError(t, db.Close())
}

func TestGCRunner_StartStop(t *testing.T) {
	db, err := OpenInMemory()
	require.NoError(t, err)
	defer db.Close()

	cfg := InMemoryConfig()
	cfg.GCInterval = 10 * time.Millisecond

	runner, err := NewGCRunner(db, cfg, nil)
	require.NoError(t, err)

	runner.Start()
	time.Sleep(30 * time.Millisecond)
	runner.Stop()

	// Stop must be idempotent.
	runner.Stop()
}
