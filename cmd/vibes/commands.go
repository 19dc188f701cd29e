// Copyright (C) 2025 Vibes Labs (oss@vibeslabs.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"os"

	"github.com/spf13/cobra"
)

// Global flags shared by every command.
var (
	serverURL  string
	jsonOutput bool
)

var rootCmd = &cobra.Command{
	Use:   "vibes",
	Short: "Manage vibes experiments from the command line",
	Long: `vibes is the CLI companion to the vibesd server.

It creates, inspects, and deletes experiments, uploads and tails event
streams, generates synthetic datasets for local development, and
administers the catalog database directly.

Examples:
  vibes experiments list
  vibes experiments create exp1 --type bernoulli --events events.json
  vibes events upload exp1 --events batch.json
  vibes events tail exp1
  vibes generate bernoulli --rate 0.3 --count 500
  vibes db init --path vibes.db`,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&serverURL, "server",
		envOr("VIBES_SERVER_URL", "http://localhost:12310"),
		"Base URL of the vibesd server")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false,
		"Force JSON output even on a terminal")

	rootCmd.AddCommand(experimentsCmd)
	experimentsCmd.AddCommand(listExperimentsCmd)
	experimentsCmd.AddCommand(createExperimentCmd)
	experimentsCmd.AddCommand(getExperimentCmd)
	experimentsCmd.AddCommand(deleteExperimentCmd)
	experimentsCmd.AddCommand(inspectExperimentCmd)
	experimentsCmd.AddCommand(posteriorCmd)

	rootCmd.AddCommand(eventsCmd)
	eventsCmd.AddCommand(uploadEventsCmd)
	eventsCmd.AddCommand(tailEventsCmd)

	rootCmd.AddCommand(generateCmd)

	rootCmd.AddCommand(dbCmd)
	dbCmd.AddCommand(dbInitCmd)
	dbCmd.AddCommand(dbTablesCmd)
}

func envOr(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
