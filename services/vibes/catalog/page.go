// Copyright (C) 2025 Vibes Labs (oss@vibeslabs.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package catalog

import (
	"context"
	"fmt"
	"time"

	"github.com/vibesml/vibes/services/vibes/datatypes"
)

// PageOptions selects one page of a data table.
type PageOptions struct {
	// Start and End bound the timestamp column (inclusive start,
	// exclusive end). Either may be nil. Ignored when the table has no
	// timestamp column; that is not an error.
	Start *time.Time
	End   *time.Time

	Limit  int
	Offset int
}

// DefaultPageLimit applies when PageOptions.Limit is zero or negative.
const DefaultPageLimit = 100

// Page returns one page of a table's rows plus the total row count before
// paging (after time filtering).
func (c *Catalog) Page(ctx context.Context, name string, opts PageOptions) (datatypes.PagedRows, error) {
	if err := validIdent(name); err != nil {
		return datatypes.PagedRows{}, err
	}
	if opts.Limit <= 0 {
		opts.Limit = DefaultPageLimit
	}
	if opts.Offset < 0 {
		opts.Offset = 0
	}

	cols, err := c.Columns(ctx, name)
	if err != nil {
		return datatypes.PagedRows{}, err
	}

	// Time filters only apply when the schema carries a timestamp column.
	where := ""
	var args []any
	hasTimestamp := false
	for _, col := range cols {
		if col == datatypes.TimestampColumn {
			hasTimestamp = true
			break
		}
	}
	if hasTimestamp {
		var clauses []string
		if opts.Start != nil {
			clauses = append(clauses, quoteIdent(datatypes.TimestampColumn)+" >= ?")
			args = append(args, opts.Start.UTC().Format(time.RFC3339Nano))
		}
		if opts.End != nil {
			clauses = append(clauses, quoteIdent(datatypes.TimestampColumn)+" < ?")
			args = append(args, opts.End.UTC().Format(time.RFC3339Nano))
		}
		for i, clause := range clauses {
			if i == 0 {
				where = " WHERE " + clause
			} else {
				where += " AND " + clause
			}
		}
	}

	var total int
	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM %s%s", quoteIdent(name), where)
	if err := c.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return datatypes.PagedRows{}, classify("page count", err)
	}

	// rowid order is insertion order; build functions fingerprint these
	// rows, so the order must not depend on the scan plan.
	query := fmt.Sprintf("SELECT * FROM %s%s ORDER BY rowid LIMIT ? OFFSET ?", quoteIdent(name), where)
	rows, err := c.db.QueryContext(ctx, query, append(args, opts.Limit, opts.Offset)...)
	if err != nil {
		return datatypes.PagedRows{}, classify("page", err)
	}
	defer rows.Close()

	records, err := scanRecords(rows)
	if err != nil {
		return datatypes.PagedRows{}, classify("page", err)
	}

	return datatypes.PagedRows{
		Rows:       records,
		Count:      len(records),
		TotalCount: total,
		Offset:     opts.Offset,
		Limit:      opts.Limit,
	}, nil
}

// scanRecords drains a result set into row objects, normalizing []byte
// cells to strings.
func scanRecords(rows interface {
	Columns() ([]string, error)
	Next() bool
	Scan(...any) error
	Err() error
}) ([]map[string]any, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	records := make([]map[string]any, 0)
	for rows.Next() {
		cells := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range cells {
			ptrs[i] = &cells[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		record := make(map[string]any, len(cols))
		for i, col := range cols {
			if b, ok := cells[i].([]byte); ok {
				record[col] = string(b)
			} else {
				record[col] = cells[i]
			}
		}
		records = append(records, record)
	}
	return records, rows.Err()
}
