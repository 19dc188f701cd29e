// Copyright (C) 2025 Vibes Labs (oss@vibeslabs.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Command vibesd starts the vibes experiment materialization server.
//
// It reads configuration from environment variables and starts the HTTP
// server.
//
// # Environment Variables
//
//   - VIBES_PORT: HTTP server port (default: 12310)
//   - VIBES_CATALOG_PATH: SQLite catalog file (default: vibes.db)
//   - VIBES_BADGER_PATH: Badger store directory (default: vibes-badger)
//   - VIBES_IN_MEMORY: "true" keeps all state in process memory
//   - VIBES_GCS_BUCKET: GCS bucket for artifacts (optional)
//   - VIBES_GCS_CREDENTIALS: service account key file for the bucket
//   - VIBES_LOG_LEVEL: debug, info, warn, error (default: info)
//   - VIBES_LOG_DIR: directory for JSON log files (optional)
//   - OTEL_EXPORTER_OTLP_ENDPOINT: OpenTelemetry collector (optional)
//
// # Usage
//
//	go build -o vibesd ./cmd/vibesd
//	./vibesd
package main

import (
	"log"
	"log/slog"
	"os"
	"strconv"

	"github.com/vibesml/vibes/pkg/logging"
	"github.com/vibesml/vibes/services/vibes"
)

func main() {
	logger := logging.New(logging.Config{
		Level:   logging.ParseLevel(getEnvString("VIBES_LOG_LEVEL", "info")),
		LogDir:  os.Getenv("VIBES_LOG_DIR"),
		Service: "vibesd",
		JSON:    true,
	})
	defer logger.Close()
	slog.SetDefault(logger.Slog())

	cfg := vibes.Config{
		Port:               getEnvInt("VIBES_PORT", 12310),
		CatalogPath:        getEnvString("VIBES_CATALOG_PATH", "vibes.db"),
		BadgerPath:         getEnvString("VIBES_BADGER_PATH", "vibes-badger"),
		InMemory:           getEnvBool("VIBES_IN_MEMORY", false),
		GCSBucket:          os.Getenv("VIBES_GCS_BUCKET"),
		GCSCredentialsFile: os.Getenv("VIBES_GCS_CREDENTIALS"),
		OTelEndpoint:       os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
		EnableMetrics:      true,
		Logger:             logger.Slog(),
	}

	slog.Info("starting vibesd",
		"port", cfg.Port,
		"catalog_path", cfg.CatalogPath,
		"badger_path", cfg.BadgerPath,
		"in_memory", cfg.InMemory,
		"gcs_bucket", cfg.GCSBucket,
	)

	svc, err := vibes.New(cfg)
	if err != nil {
		log.Fatalf("Failed to create vibes service: %v", err)
	}

	// Run the server (blocks until shutdown)
	if err := svc.Run(); err != nil {
		log.Fatalf("Vibes server error: %v", err)
	}
}

// getEnvString returns the environment variable value or a default.
func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt returns the environment variable as int or a default.
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvBool returns the environment variable as bool or a default.
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}
