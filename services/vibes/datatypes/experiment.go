// Copyright (C) 2025 Vibes Labs (oss@vibeslabs.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package datatypes

import "time"

// Supported experiment kinds. These mirror the event shapes the synthetic
// generators emit; the store itself treats the type as an opaque label.
const (
	ExperimentTypeABTest    = "ab-test"
	ExperimentTypeBernoulli = "bernoulli"
	ExperimentTypeMAB       = "multi-armed-bandits"
	ExperimentTypePoisson   = "poisson-cohorts"
)

// StatusCreated is the initial (and currently only) experiment status.
// Further lifecycle states are reserved.
const StatusCreated = "created"

// ExperimentTypes lists the accepted values for ExperimentMetadata.Type.
var ExperimentTypes = []string{
	ExperimentTypeABTest,
	ExperimentTypeBernoulli,
	ExperimentTypeMAB,
	ExperimentTypePoisson,
}

// KnownExperimentType reports whether t is a supported experiment kind.
func KnownExperimentType(t string) bool {
	for _, known := range ExperimentTypes {
		if t == known {
			return true
		}
	}
	return false
}

// ExperimentMetadata is the catalog row describing one experiment.
//
// The metadata row and the experiment's data table exist as a unit: the
// experiment store guarantees both exist or neither does, even under
// partial failure.
type ExperimentMetadata struct {
	Name        string    `json:"name"`
	Type        string    `json:"type"`
	DisplayName string    `json:"display_name"`
	Status      string    `json:"status"`
	CreatedAt   time.Time `json:"created_at"`
}

// PagedRows is one page of experiment data plus the pre-paging total.
type PagedRows struct {
	Rows       []map[string]any `json:"rows"`
	Count      int              `json:"count"`
	TotalCount int              `json:"total_count"`
	Offset     int              `json:"offset"`
	Limit      int              `json:"limit"`
}
