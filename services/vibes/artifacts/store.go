// Copyright (C) 2025 Vibes Labs (oss@vibeslabs.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package artifacts provides durable blob storage keyed by run id.
//
// # Persistence contract
//
// Put must be durable before the caller records the owning run as finished.
// A reader that observes a finished run must be able to Get the blob; a Get
// that fails with faults.ErrArtifactMissing despite a finished run is the
// detectable inconsistency the compute cache reports as cache corruption.
package artifacts

import "context"

// Store is write-once-then-read blob storage addressed by run id.
//
// Implementations fail with faults.ErrArtifactMissing when the blob is
// absent and faults.ErrArtifactStoreUnavailable on connectivity or storage
// errors.
type Store interface {
	// Put durably stores the blob under the run id.
	Put(ctx context.Context, runID string, blob []byte) error

	// Get returns the blob stored under the run id.
	Get(ctx context.Context, runID string) ([]byte, error)

	// Delete removes the blob. Deleting an absent blob is not an error.
	Delete(ctx context.Context, runID string) error
}
