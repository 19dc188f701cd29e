// Copyright (C) 2025 Vibes Labs (oss@vibeslabs.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"encoding/json"
	"fmt"
	"math"
	"math/rand"
	"os"
	"time"

	"github.com/spf13/cobra"
)

// =============================================================================
// COMMAND FLAGS
// =============================================================================

var (
	generateCount  int     // Number of events
	generateSeed   int64   // RNG seed (0 = time-based)
	generateOut    string  // Output file ("" = stdout)
	bernoulliRate  float64 // Success probability
	poissonLambda  float64 // Events per cohort interval
	poissonCohorts int     // Number of cohorts
)

// =============================================================================
// COMMAND DEFINITIONS
// =============================================================================

var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Generate synthetic event datasets for local development",
	Long: `Generates synthetic event datasets in the JSON format accepted by
"vibes experiments create" and "vibes events upload".

Examples:
  vibes generate bernoulli --rate 0.3 --count 500 > events.json
  vibes generate poisson --lambda 4.5 --cohorts 3 --count 300 -o events.json`,
}

var generateBernoulliCmd = &cobra.Command{
	Use:   "bernoulli",
	Short: "Generate bernoulli trial events with a fixed success rate",
	Run:   runGenerateBernoulli,
}

var generatePoissonCmd = &cobra.Command{
	Use:   "poisson",
	Short: "Generate poisson cohort events",
	Run:   runGeneratePoisson,
}

// =============================================================================
// COMMAND INITIALIZATION
// =============================================================================

func init() {
	generateCmd.PersistentFlags().IntVarP(&generateCount, "count", "n", 100,
		"Number of events to generate")
	generateCmd.PersistentFlags().Int64Var(&generateSeed, "seed", 0,
		"RNG seed (0 uses the current time)")
	generateCmd.PersistentFlags().StringVarP(&generateOut, "output", "o", "",
		"Output file (default: stdout)")

	generateBernoulliCmd.Flags().Float64VarP(&bernoulliRate, "rate", "r", 0.5,
		"Success probability in [0, 1]")

	generatePoissonCmd.Flags().Float64VarP(&poissonLambda, "lambda", "l", 3.0,
		"Mean event count per observation")
	generatePoissonCmd.Flags().IntVar(&poissonCohorts, "cohorts", 2,
		"Number of cohorts to spread events across")

	generateCmd.AddCommand(generateBernoulliCmd)
	generateCmd.AddCommand(generatePoissonCmd)
}

// =============================================================================
// COMMAND IMPLEMENTATIONS
// =============================================================================

func newGeneratorRNG() *rand.Rand {
	seed := generateSeed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return rand.New(rand.NewSource(seed))
}

func runGenerateBernoulli(cmd *cobra.Command, args []string) {
	if bernoulliRate < 0 || bernoulliRate > 1 {
		OutputError("invalid rate", fmt.Errorf("--rate must be in [0, 1], got %v", bernoulliRate))
	}

	rng := newGeneratorRNG()
	start := time.Now().UTC().Add(-time.Duration(generateCount) * time.Minute)

	events := make([]map[string]any, generateCount)
	for i := range events {
		events[i] = map[string]any{
			"timestamp": start.Add(time.Duration(i) * time.Minute).Format(time.RFC3339),
			"outcome":   rng.Float64() < bernoulliRate,
		}
	}
	writeEvents(events)
}

func runGeneratePoisson(cmd *cobra.Command, args []string) {
	if poissonLambda <= 0 {
		OutputError("invalid lambda", fmt.Errorf("--lambda must be positive, got %v", poissonLambda))
	}
	if poissonCohorts < 1 {
		OutputError("invalid cohorts", fmt.Errorf("--cohorts must be at least 1, got %d", poissonCohorts))
	}

	rng := newGeneratorRNG()
	start := time.Now().UTC().Add(-time.Duration(generateCount) * time.Minute)

	events := make([]map[string]any, generateCount)
	for i := range events {
		events[i] = map[string]any{
			"timestamp": start.Add(time.Duration(i) * time.Minute).Format(time.RFC3339),
			"cohort":    fmt.Sprintf("cohort-%d", rng.Intn(poissonCohorts)),
			"count":     samplePoisson(rng, poissonLambda),
		}
	}
	writeEvents(events)
}

// samplePoisson draws from Poisson(lambda) via Knuth's product method.
// Fine for the small lambdas synthetic datasets use.
func samplePoisson(rng *rand.Rand, lambda float64) int {
	threshold := math.Exp(-lambda)
	count := 0
	product := rng.Float64()
	for product > threshold {
		count++
		product *= rng.Float64()
	}
	return count
}

func writeEvents(events []map[string]any) {
	payload, err := json.MarshalIndent(events, "", "  ")
	if err != nil {
		OutputError("failed to encode events", err)
	}
	payload = append(payload, '\n')

	if generateOut == "" {
		os.Stdout.Write(payload)
		return
	}
	if err := os.WriteFile(generateOut, payload, 0644); err != nil {
		OutputError("failed to write output file", err)
	}
	fmt.Fprintf(os.Stderr, "Wrote %d events to %s.\n", len(events), generateOut)
}
