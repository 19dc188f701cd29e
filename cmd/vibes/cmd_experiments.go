// Copyright (C) 2025 Vibes Labs (oss@vibeslabs.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/vibesml/vibes/services/vibes/datatypes"
)

// =============================================================================
// COMMAND FLAGS
// =============================================================================

var (
	createType        string // Experiment type (bernoulli, ab-test, ...)
	createDisplayName string // Human-readable name
	createEventsFile  string // JSON file with the initial events

	inspectStart  string // RFC 3339 lower bound
	inspectEnd    string // RFC 3339 upper bound
	inspectLimit  int    // Page size
	inspectOffset int    // Page offset
)

// =============================================================================
// COMMAND DEFINITIONS
// =============================================================================

var experimentsCmd = &cobra.Command{
	Use:     "experiments",
	Aliases: []string{"exp"},
	Short:   "Create, inspect, and delete experiments",
}

var listExperimentsCmd = &cobra.Command{
	Use:   "list",
	Short: "List all experiments",
	Run:   runListExperiments,
}

var createExperimentCmd = &cobra.Command{
	Use:   "create <name>",
	Short: "Create an experiment from a JSON events file",
	Long: `Creates an experiment with its initial events.

The events file must contain a JSON array of flat objects; the keys of
the first object define the experiment's schema.

Example:
  vibes experiments create exp1 --type bernoulli --events events.json`,
	Args: cobra.ExactArgs(1),
	Run:  runCreateExperiment,
}

var getExperimentCmd = &cobra.Command{
	Use:   "get <name>",
	Short: "Show one experiment's metadata",
	Args:  cobra.ExactArgs(1),
	Run:   runGetExperiment,
}

var deleteExperimentCmd = &cobra.Command{
	Use:   "delete <name>",
	Short: "Delete an experiment and its data",
	Args:  cobra.ExactArgs(1),
	Run:   runDeleteExperiment,
}

var inspectExperimentCmd = &cobra.Command{
	Use:   "inspect <name>",
	Short: "Page through an experiment's event data",
	Args:  cobra.ExactArgs(1),
	Run:   runInspectExperiment,
}

var posteriorCmd = &cobra.Command{
	Use:   "posterior <name>",
	Short: "Fetch the posterior summary for a bernoulli experiment",
	Args:  cobra.ExactArgs(1),
	Run:   runPosterior,
}

// =============================================================================
// COMMAND INITIALIZATION
// =============================================================================

func init() {
	createExperimentCmd.Flags().StringVarP(&createType, "type", "t",
		datatypes.ExperimentTypeBernoulli,
		fmt.Sprintf("Experiment type (%s)", strings.Join(datatypes.ExperimentTypes, ", ")))
	createExperimentCmd.Flags().StringVar(&createDisplayName, "display-name", "",
		"Human-readable experiment name")
	createExperimentCmd.Flags().StringVarP(&createEventsFile, "events", "e", "",
		"JSON file containing the initial events (required)")
	createExperimentCmd.MarkFlagRequired("events")

	inspectExperimentCmd.Flags().StringVar(&inspectStart, "start", "",
		"Only rows at or after this RFC 3339 timestamp")
	inspectExperimentCmd.Flags().StringVar(&inspectEnd, "end", "",
		"Only rows before this RFC 3339 timestamp")
	inspectExperimentCmd.Flags().IntVar(&inspectLimit, "limit", 100, "Page size")
	inspectExperimentCmd.Flags().IntVar(&inspectOffset, "offset", 0, "Page offset")
}

// =============================================================================
// COMMAND IMPLEMENTATIONS
// =============================================================================

func runListExperiments(cmd *cobra.Command, args []string) {
	client := NewAPIClient(serverURL)

	var resp struct {
		Experiments []datatypes.ExperimentMetadata `json:"experiments"`
	}
	if err := client.Get(context.Background(), "/v1/experiments", &resp); err != nil {
		OutputError("failed to list experiments", err)
	}

	if prettyOutput() {
		if len(resp.Experiments) == 0 {
			fmt.Println("No experiments.")
			return
		}
		printExperimentTable(resp.Experiments)
		return
	}
	if err := OutputJSON(resp); err != nil {
		OutputError("failed to encode output", err)
	}
}

func runCreateExperiment(cmd *cobra.Command, args []string) {
	events, err := readEventsFile(createEventsFile)
	if err != nil {
		OutputError("failed to read events file", err)
	}

	client := NewAPIClient(serverURL)
	body := map[string]any{
		"name":            args[0],
		"experiment_type": createType,
		"display_name":    createDisplayName,
		"events":          events,
	}
	var meta datatypes.ExperimentMetadata
	if err := client.Post(context.Background(), "/v1/experiments", body, &meta); err != nil {
		OutputError("failed to create experiment", err)
	}

	if prettyOutput() {
		fmt.Printf("Created experiment %s (%s) with %d events.\n",
			meta.Name, meta.Type, len(events))
		return
	}
	OutputJSON(meta)
}

func runGetExperiment(cmd *cobra.Command, args []string) {
	client := NewAPIClient(serverURL)

	var meta datatypes.ExperimentMetadata
	if err := client.Get(context.Background(), "/v1/experiments/"+args[0], &meta); err != nil {
		OutputError("failed to get experiment", err)
	}

	if prettyOutput() {
		printExperimentTable([]datatypes.ExperimentMetadata{meta})
		return
	}
	OutputJSON(meta)
}

func runDeleteExperiment(cmd *cobra.Command, args []string) {
	client := NewAPIClient(serverURL)

	var resp map[string]any
	if err := client.Delete(context.Background(), "/v1/experiments/"+args[0], &resp); err != nil {
		OutputError("failed to delete experiment", err)
	}

	if prettyOutput() {
		fmt.Printf("Deleted experiment %s.\n", args[0])
		return
	}
	OutputJSON(resp)
}

func runInspectExperiment(cmd *cobra.Command, args []string) {
	client := NewAPIClient(serverURL)

	path := fmt.Sprintf("/v1/experiments/%s/data?limit=%d&offset=%d",
		args[0], inspectLimit, inspectOffset)
	if inspectStart != "" {
		path += "&start=" + inspectStart
	}
	if inspectEnd != "" {
		path += "&end=" + inspectEnd
	}

	var page datatypes.PagedRows
	if err := client.Get(context.Background(), path, &page); err != nil {
		OutputError("failed to inspect experiment", err)
	}

	if prettyOutput() {
		fmt.Printf("Showing %d of %d rows (offset %d):\n",
			page.Count, page.TotalCount, page.Offset)
	}
	OutputJSON(page)
}

func runPosterior(cmd *cobra.Command, args []string) {
	client := NewAPIClient(serverURL)

	var resp map[string]any
	path := fmt.Sprintf("/v1/experiments/%s/posterior", args[0])
	if err := client.Get(context.Background(), path, &resp); err != nil {
		OutputError("failed to fetch posterior", err)
	}
	OutputJSON(resp)
}

// readEventsFile loads a JSON array of flat event objects.
func readEventsFile(path string) ([]map[string]any, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var events []map[string]any
	if err := json.Unmarshal(raw, &events); err != nil {
		return nil, fmt.Errorf("%s is not a JSON array of objects: %w", path, err)
	}
	return events, nil
}
