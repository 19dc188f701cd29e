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
	"io"
	"os"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"

	"github.com/vibesml/vibes/services/vibes/faults"
)

// GCSStore stores artifact blobs as objects in a Google Cloud Storage
// bucket, under "artifacts/<runID>". This is the deployment-grade backend;
// BadgerStore is the embedded default.
//
// Writers are closed before Put returns, so the object is durable before
// the owning run can be recorded as finished.
type GCSStore struct {
	client *storage.Client
	bucket string
}

var _ Store = (*GCSStore)(nil)

// NewGCSStore creates a store over the named bucket. saKeyPath optionally
// points at a service account key file; when empty, ambient credentials
// are used.
func NewGCSStore(ctx context.Context, bucket, saKeyPath string) (*GCSStore, error) {
	if bucket == "" {
		return nil, errors.New("bucket is required")
	}

	var opts []option.ClientOption
	if saKeyPath != "" {
		if _, err := os.Stat(saKeyPath); os.IsNotExist(err) {
			return nil, fmt.Errorf("service account key not found at path: %s", saKeyPath)
		}
		opts = append(opts, option.WithCredentialsFile(saKeyPath))
	}

	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create GCS storage client: %w", err)
	}
	return &GCSStore{client: client, bucket: bucket}, nil
}

func (s *GCSStore) object(runID string) *storage.ObjectHandle {
	return s.client.Bucket(s.bucket).Object("artifacts/" + runID)
}

// Put implements Store.
func (s *GCSStore) Put(ctx context.Context, runID string, blob []byte) error {
	w := s.object(runID).NewWriter(ctx)
	w.ContentType = "application/octet-stream"
	w.CacheControl = "no-cache, no-store, must-revalidate"

	if _, err := w.Write(blob); err != nil {
		_ = w.Close()
		return fmt.Errorf("put artifact %s: %w: %v", runID, faults.ErrArtifactStoreUnavailable, err)
	}
	// Close finalizes the upload; only after it returns is the object
	// readable, which is the durability point the cache relies on.
	if err := w.Close(); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return fmt.Errorf("put artifact %s: %w", runID, faults.ErrTimeout)
		}
		return fmt.Errorf("put artifact %s: %w: %v", runID, faults.ErrArtifactStoreUnavailable, err)
	}
	return nil
}

// Get implements Store.
func (s *GCSStore) Get(ctx context.Context, runID string) ([]byte, error) {
	r, err := s.object(runID).NewReader(ctx)
	switch {
	case errors.Is(err, storage.ErrObjectNotExist):
		return nil, fmt.Errorf("get artifact %s: %w", runID, faults.ErrArtifactMissing)
	case errors.Is(err, context.DeadlineExceeded):
		return nil, fmt.Errorf("get artifact %s: %w", runID, faults.ErrTimeout)
	case err != nil:
		return nil, fmt.Errorf("get artifact %s: %w: %v", runID, faults.ErrArtifactStoreUnavailable, err)
	}
	defer r.Close()

	blob, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("get artifact %s: %w: %v", runID, faults.ErrArtifactStoreUnavailable, err)
	}
	return blob, nil
}

// Delete implements Store.
func (s *GCSStore) Delete(ctx context.Context, runID string) error {
	err := s.object(runID).Delete(ctx)
	switch {
	case err == nil, errors.Is(err, storage.ErrObjectNotExist):
		return nil
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("delete artifact %s: %w", runID, faults.ErrTimeout)
	default:
		return fmt.Errorf("delete artifact %s: %w: %v", runID, faults.ErrArtifactStoreUnavailable, err)
	}
}

// Close releases the underlying client.
func (s *GCSStore) Close() error {
	return s.client.Close()
}
