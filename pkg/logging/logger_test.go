// Copyright (C) 2025 Vibes Labs (oss@vibeslabs.dev)
// Tests for the structured logging package

package logging

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, LevelDebug, ParseLevel("debug"))
	assert.Equal(t, LevelWarn, ParseLevel("WARN"))
	assert.Equal(t, LevelWarn, ParseLevel("warning"))
	assert.Equal(t, LevelError, ParseLevel("error"))
	assert.Equal(t, LevelInfo, ParseLevel("info"))
	assert.Equal(t, LevelInfo, ParseLevel("gibberish"))
}

func TestLevelString(t *testing.T) {
	assert.Equal(t, "DEBUG", LevelDebug.String())
	assert.Equal(t, "INFO", LevelInfo.String())
	assert.Equal(t, "WARN", LevelWarn.String())
	assert.Equal(t, "ERROR", LevelError.String())
}

func TestNew_FileLogging(t *testing.T) {
	dir := t.TempDir()

	logger := New(Config{
		Level:   LevelInfo,
		LogDir:  dir,
		Service: "vibes-test",
		Quiet:   true,
	})
	logger.Slog().Info("experiment created", "experiment", "exp1")
	require.NoError(t, logger.Close())

	matches, err := filepath.Glob(filepath.Join(dir, "vibes-test_*.log"))
	require.NoError(t, err)
	require.Len(t, matches, 1)

	raw, err := os.ReadFile(matches[0])
	require.NoError(t, err)

	// File output is always JSON.
	var entry map[string]any
	require.NoError(t, json.Unmarshal([]byte(strings.Split(strings.TrimSpace(string(raw)), "\n")[0]), &entry))
	assert.Equal(t, "experiment created", entry["msg"])
	assert.Equal(t, "exp1", entry["experiment"])
	assert.Equal(t, "vibes-test", entry["service"])
}

func TestNew_LevelFiltering(t *testing.T) {
	dir := t.TempDir()

	logger := New(Config{
		Level:   LevelWarn,
		LogDir:  dir,
		Service: "vibes-test",
		Quiet:   true,
	})
	logger.Slog().Info("dropped")
	logger.Slog().Warn("kept")
	require.NoError(t, logger.Close())

	matches, err := filepath.Glob(filepath.Join(dir, "vibes-test_*.log"))
	require.NoError(t, err)
	require.Len(t, matches, 1)

	raw, err := os.ReadFile(matches[0])
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "dropped")
	assert.Contains(t, string(raw), "kept")
}

func TestNew_UnwritableDirDegrades(t *testing.T) {
	// Setup failure must not panic or return nil.
	logger := New(Config{LogDir: string([]byte{0}), Service: "vibes-test"})
	require.NotNil(t, logger)
	logger.Slog().Info("still works")
	assert.NoError(t, logger.Close())
}

// capturingExporter records exported entries.
type capturingExporter struct {
	entries []LogEntry
	flushed bool
	closed  bool
}

func (c *capturingExporter) Export(ctx context.Context, entry LogEntry) error {
	c.entries = append(c.entries, entry)
	return nil
}

func (c *capturingExporter) Flush(ctx context.Context) error {
	c.flushed = true
	return nil
}

func (c *capturingExporter) Close() error {
	c.closed = true
	return nil
}

func TestExporter_ReceivesEntries(t *testing.T) {
	exporter := &capturingExporter{}
	logger := New(Config{
		Service:  "vibes-test",
		Quiet:    true,
		LogDir:   t.TempDir(),
		Exporter: exporter,
	})

	logger.Slog().Info("cache hit", "namespace", "exp1")
	require.NoError(t, logger.Close())

	require.Len(t, exporter.entries, 1)
	entry := exporter.entries[0]
	assert.Equal(t, "cache hit", entry.Message)
	assert.Equal(t, LevelInfo, entry.Level)
	assert.Equal(t, "exp1", entry.Attrs["namespace"])
	assert.WithinDuration(t, time.Now(), entry.Timestamp, time.Minute)

	assert.True(t, exporter.flushed)
	assert.True(t, exporter.closed)
}
