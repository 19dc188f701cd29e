// Copyright (C) 2025 Vibes Labs (oss@vibeslabs.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/vibesml/vibes/services/vibes/datatypes"
	"github.com/vibesml/vibes/services/vibes/faults"
)

// PutExperiment inserts the metadata row for one experiment. The name is
// the primary key; inserting a duplicate fails with AlreadyExists.
func (c *Catalog) PutExperiment(ctx context.Context, meta datatypes.ExperimentMetadata) error {
	_, err := c.db.ExecContext(ctx, fmt.Sprintf(
		`INSERT INTO %s (name, type, display_name, status, created_at) VALUES (?, ?, ?, ?, ?)`,
		quoteIdent(MetadataTable)),
		meta.Name, meta.Type, meta.DisplayName, meta.Status,
		meta.CreatedAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		if classified := classify("put experiment", err); errors.Is(classified, faults.ErrInvalidData) {
			// A primary key violation here means the row already exists.
			return fmt.Errorf("put experiment %s: %w", meta.Name, faults.ErrAlreadyExists)
		}
		return classify("put experiment", err)
	}
	return nil
}

// DeleteExperiment removes the metadata row, failing with NotFound when no
// row matches.
func (c *Catalog) DeleteExperiment(ctx context.Context, name string) error {
	res, err := c.db.ExecContext(ctx, fmt.Sprintf(
		`DELETE FROM %s WHERE name = ?`, quoteIdent(MetadataTable)), name)
	if err != nil {
		return classify("delete experiment", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return classify("delete experiment", err)
	}
	if affected == 0 {
		return fmt.Errorf("delete experiment %s: %w", name, faults.ErrNotFound)
	}
	return nil
}

// GetExperiment fetches one metadata row by name.
func (c *Catalog) GetExperiment(ctx context.Context, name string) (datatypes.ExperimentMetadata, error) {
	row := c.db.QueryRowContext(ctx, fmt.Sprintf(
		`SELECT name, type, display_name, status, created_at FROM %s WHERE name = ?`,
		quoteIdent(MetadataTable)), name)
	meta, err := scanExperiment(row)
	if errors.Is(err, sql.ErrNoRows) {
		return datatypes.ExperimentMetadata{}, fmt.Errorf("get experiment %s: %w", name, faults.ErrNotFound)
	}
	if err != nil {
		return datatypes.ExperimentMetadata{}, classify("get experiment", err)
	}
	return meta, nil
}

// ListExperiments returns all metadata rows ordered by name.
func (c *Catalog) ListExperiments(ctx context.Context) ([]datatypes.ExperimentMetadata, error) {
	rows, err := c.db.QueryContext(ctx, fmt.Sprintf(
		`SELECT name, type, display_name, status, created_at FROM %s ORDER BY name`,
		quoteIdent(MetadataTable)))
	if err != nil {
		return nil, classify("list experiments", err)
	}
	defer rows.Close()

	metas := make([]datatypes.ExperimentMetadata, 0)
	for rows.Next() {
		meta, err := scanExperiment(rows)
		if err != nil {
			return nil, classify("list experiments", err)
		}
		metas = append(metas, meta)
	}
	return metas, classify("list experiments", rows.Err())
}

type rowScanner interface {
	Scan(...any) error
}

func scanExperiment(row rowScanner) (datatypes.ExperimentMetadata, error) {
	var (
		meta      datatypes.ExperimentMetadata
		createdAt string
	)
	if err := row.Scan(&meta.Name, &meta.Type, &meta.DisplayName, &meta.Status, &createdAt); err != nil {
		return datatypes.ExperimentMetadata{}, err
	}
	ts, err := time.Parse(time.RFC3339Nano, createdAt)
	if err != nil {
		return datatypes.ExperimentMetadata{}, fmt.Errorf("parse created_at: %w", err)
	}
	meta.CreatedAt = ts
	return meta, nil
}
