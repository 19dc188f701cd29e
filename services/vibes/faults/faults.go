// Copyright (C) 2025 Vibes Labs (oss@vibeslabs.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package faults defines the error taxonomy shared by the experiment store,
// the run catalog, the artifact store, and the compute cache.
//
// # Description
//
// Every error that crosses a package boundary in the materialization layer
// wraps exactly one of the sentinels below, so callers can branch with
// errors.Is without depending on backend-specific error types (badger,
// database/sql, GCS).
//
// The taxonomy splits into three groups:
//
//   - Caller errors (ErrAlreadyExists, ErrNotFound, ErrInvalidData):
//     surfaced directly, never retried.
//   - Infrastructure errors (ErrCatalogUnavailable,
//     ErrArtifactStoreUnavailable, ErrTimeout): transient; this layer does
//     not retry internally, retry policy belongs to the caller.
//   - Integrity errors (ErrArtifactMissing, ErrCacheCorrupted,
//     ErrBuildFailed): a detectable inconsistency or a failed user-supplied
//     build. Compensation (if any) happens before the error is surfaced.
package faults

import (
	"context"
	"errors"
	"net/http"
)

var (
	// ErrAlreadyExists indicates the named resource already exists.
	ErrAlreadyExists = errors.New("already exists")

	// ErrNotFound indicates the named resource does not exist, or refers
	// to a deleted namespace or run.
	ErrNotFound = errors.New("not found")

	// ErrInvalidData indicates malformed or empty input rows.
	ErrInvalidData = errors.New("invalid data")

	// ErrCatalogUnavailable indicates a connectivity or storage failure in
	// the table catalog or run catalog. Not retried by this layer.
	ErrCatalogUnavailable = errors.New("catalog unavailable")

	// ErrArtifactStoreUnavailable indicates a connectivity or storage
	// failure in the artifact store. Not retried by this layer.
	ErrArtifactStoreUnavailable = errors.New("artifact store unavailable")

	// ErrTimeout indicates a single catalog or artifact-store call exceeded
	// its bounded deadline.
	ErrTimeout = errors.New("operation timed out")

	// ErrArtifactMissing indicates a blob is absent from the artifact store
	// even though its run is recorded as finished.
	ErrArtifactMissing = errors.New("artifact missing")

	// ErrCacheCorrupted indicates a finished run with no retrievable
	// artifact. Fatal for the request; never triggers a silent rebuild.
	ErrCacheCorrupted = errors.New("cache corrupted")

	// ErrBuildFailed indicates the caller-supplied build function failed.
	// The run and tag created for the attempt are cleaned up before this
	// error is surfaced.
	ErrBuildFailed = errors.New("build failed")
)

// FromContext translates a context cancellation into the taxonomy.
//
// Returns ErrTimeout for deadline expiry, the context error unchanged for
// explicit cancellation, and nil when the context is still live.
func FromContext(ctx context.Context) error {
	switch {
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		return ErrTimeout
	case ctx.Err() != nil:
		return ctx.Err()
	default:
		return nil
	}
}

// HTTPStatus maps a taxonomy error to the status code the HTTP layer
// should respond with. Unrecognized errors map to 500.
func HTTPStatus(err error) int {
	switch {
	case errors.Is(err, ErrAlreadyExists):
		return http.StatusConflict
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrInvalidData):
		return http.StatusBadRequest
	case errors.Is(err, ErrTimeout):
		return http.StatusGatewayTimeout
	case errors.Is(err, ErrCatalogUnavailable),
		errors.Is(err, ErrArtifactStoreUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
