// Copyright (C) 2025 Vibes Labs (oss@vibeslabs.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package catalog implements the table catalog: named event tables plus
// the experiment metadata table, over database/sql with the pure-Go
// sqlite driver.
//
// # Description
//
// The catalog exposes a named-table abstraction: create-from-rows, insert,
// drop, list, schema, count, and page with an optional time-range filter.
// Table DDL is not assumed to be covered by the same transaction as row
// DML; the experiment store layers saga-style compensation on top of these
// primitives rather than relying on cross-DDL/DML atomicity.
//
// Table schemas are inferred from the first row batch. A column's type is
// the type of its first non-nil cell; mixed-type columns are rejected as
// invalid data. String cells that parse as RFC 3339 become TIMESTAMP
// columns, which is what the inspect time filters key off.
package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/vibesml/vibes/services/vibes/datatypes"
	"github.com/vibesml/vibes/services/vibes/faults"
)

// MetadataTable is the reserved table holding one row per experiment.
const MetadataTable = "vibes_experiments"

// identPattern is the set of accepted table and column names. Everything
// interpolated into SQL as an identifier must match it.
var identPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_-]*$`)

// Catalog is a handle to one sqlite-backed table catalog. Safe for
// concurrent use; database/sql pools connections internally.
type Catalog struct {
	db     *sql.DB
	logger *slog.Logger
}

// Open opens (creating if necessary) the catalog database at path.
// Use ":memory:" for tests.
func Open(path string, logger *slog.Logger) (*Catalog, error) {
	if path == "" {
		return nil, errors.New("path is required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	dsn := path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	if path == ":memory:" {
		// WAL needs a file; a shared cache keeps one in-memory database
		// visible across pooled connections.
		dsn = "file::memory:?cache=shared"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open catalog %s: %w: %v", path, faults.ErrCatalogUnavailable, err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("open catalog %s: %w: %v", path, faults.ErrCatalogUnavailable, err)
	}

	return &Catalog{
		db:     db,
		logger: logger.With("component", "catalog.Catalog"),
	}, nil
}

// Close releases the underlying pool.
func (c *Catalog) Close() error {
	return c.db.Close()
}

// classify maps driver errors into the shared taxonomy.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	msg := err.Error()
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%s: %w", op, faults.ErrTimeout)
	case errors.Is(err, sql.ErrNoRows), strings.Contains(msg, "no such table"):
		return fmt.Errorf("%s: %w", op, faults.ErrNotFound)
	case strings.Contains(msg, "constraint"),
		strings.Contains(msg, "datatype mismatch"),
		strings.Contains(msg, "no such column"),
		strings.Contains(msg, "has no column"):
		return fmt.Errorf("%s: %w: %v", op, faults.ErrInvalidData, err)
	default:
		return fmt.Errorf("%s: %w: %v", op, faults.ErrCatalogUnavailable, err)
	}
}

func quoteIdent(name string) string {
	return `"` + name + `"`
}

func validIdent(name string) error {
	if !identPattern.MatchString(name) {
		return fmt.Errorf("%w: invalid identifier %q", faults.ErrInvalidData, name)
	}
	return nil
}

// Init idempotently creates the experiment metadata table. Safe to call on
// every startup.
func (c *Catalog) Init(ctx context.Context) error {
	_, err := c.db.ExecContext(ctx, fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			name         TEXT PRIMARY KEY,
			type         TEXT NOT NULL,
			display_name TEXT NOT NULL,
			status       TEXT NOT NULL,
			created_at   TIMESTAMP NOT NULL
		)`, quoteIdent(MetadataTable)))
	if err != nil {
		return classify("init catalog", err)
	}
	return nil
}

// Initialized reports whether Init has been run against this database.
func (c *Catalog) Initialized(ctx context.Context) (bool, error) {
	return c.HasTable(ctx, MetadataTable)
}

// HasTable reports whether a table with this exact name exists.
func (c *Catalog) HasTable(ctx context.Context, name string) (bool, error) {
	var n int
	err := c.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?`, name).Scan(&n)
	if err != nil {
		return false, classify("has table", err)
	}
	return n > 0, nil
}

// ListTables returns the user-visible data tables, excluding the metadata
// table and sqlite internals.
func (c *Catalog) ListTables(ctx context.Context) ([]string, error) {
	rows, err := c.db.QueryContext(ctx, `
		SELECT name FROM sqlite_master
		WHERE type = 'table' AND name NOT LIKE 'sqlite_%' AND name != ?
		ORDER BY name`, MetadataTable)
	if err != nil {
		return nil, classify("list tables", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, classify("list tables", err)
		}
		names = append(names, name)
	}
	return names, classify("list tables", rows.Err())
}

// Columns returns the column names of a table in schema order.
func (c *Catalog) Columns(ctx context.Context, name string) ([]string, error) {
	if err := validIdent(name); err != nil {
		return nil, err
	}
	rows, err := c.db.QueryContext(ctx,
		fmt.Sprintf(`SELECT name FROM pragma_table_info(%s) ORDER BY cid`, quoteIdent(name)))
	if err != nil {
		return nil, classify("table columns", err)
	}
	defer rows.Close()

	var cols []string
	for rows.Next() {
		var col string
		if err := rows.Scan(&col); err != nil {
			return nil, classify("table columns", err)
		}
		cols = append(cols, col)
	}
	if err := rows.Err(); err != nil {
		return nil, classify("table columns", err)
	}
	if len(cols) == 0 {
		return nil, fmt.Errorf("table columns: %w", faults.ErrNotFound)
	}
	return cols, nil
}

// inferColumnType picks the sqlite column type for one column of a table,
// from the first non-nil cell. Mixed scalar types are unschema-able.
func inferColumnType(tbl datatypes.Table, col int) (string, error) {
	var typ string
	for _, row := range tbl.Rows {
		cellType, err := scalarType(row[col])
		if err != nil {
			return "", fmt.Errorf("%w: column %q: %v", faults.ErrInvalidData, tbl.Columns[col], err)
		}
		switch {
		case cellType == "":
			continue // nil cell, no vote
		case typ == "":
			typ = cellType
		case typ != cellType:
			return "", fmt.Errorf("%w: column %q mixes %s and %s values",
				faults.ErrInvalidData, tbl.Columns[col], typ, cellType)
		}
	}
	if typ == "" {
		typ = "TEXT" // all-nil column
	}
	return typ, nil
}

func scalarType(v any) (string, error) {
	switch val := v.(type) {
	case nil:
		return "", nil
	case bool:
		return "BOOLEAN", nil
	case float64, int, int64:
		return "REAL", nil
	case time.Time:
		return "TIMESTAMP", nil
	case string:
		if _, err := time.Parse(time.RFC3339, val); err == nil {
			return "TIMESTAMP", nil
		}
		return "TEXT", nil
	default:
		return "", fmt.Errorf("unsupported value type %T", v)
	}
}

// CreateTable creates a data table from rows, inferring the schema, and
// inserts the rows. The create and the inserts share one transaction, but
// callers must not assume the DDL is rolled back with it on every backend;
// the experiment store compensates explicitly.
func (c *Catalog) CreateTable(ctx context.Context, name string, tbl datatypes.Table) error {
	if err := validIdent(name); err != nil {
		return err
	}
	if name == MetadataTable {
		return fmt.Errorf("create table: %w: %s is reserved", faults.ErrInvalidData, MetadataTable)
	}
	if len(tbl.Rows) == 0 || len(tbl.Columns) == 0 {
		return fmt.Errorf("create table %s: %w: empty row set", name, faults.ErrInvalidData)
	}

	defs := make([]string, len(tbl.Columns))
	for i, col := range tbl.Columns {
		if err := validIdent(col); err != nil {
			return err
		}
		typ, err := inferColumnType(tbl, i)
		if err != nil {
			return err
		}
		defs[i] = quoteIdent(col) + " " + typ
	}

	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return classify("create table", err)
	}
	defer tx.Rollback()

	ddl := fmt.Sprintf("CREATE TABLE %s (%s)", quoteIdent(name), strings.Join(defs, ", "))
	if _, err := tx.ExecContext(ctx, ddl); err != nil {
		return classify("create table", err)
	}
	if err := insertRows(ctx, tx, name, tbl); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return classify("create table", err)
	}

	c.logger.Info("created data table", "table", name, "rows", tbl.NumRows())
	return nil
}

// InsertRows appends rows to an existing table. The batch's columns must
// all exist in the target schema; a mismatch is invalid data, as is a cell
// that violates the column type.
func (c *Catalog) InsertRows(ctx context.Context, name string, tbl datatypes.Table) error {
	if err := validIdent(name); err != nil {
		return err
	}
	if len(tbl.Rows) == 0 {
		return fmt.Errorf("insert rows %s: %w: empty row set", name, faults.ErrInvalidData)
	}

	existing, err := c.Columns(ctx, name)
	if err != nil {
		return err
	}
	known := make(map[string]bool, len(existing))
	for _, col := range existing {
		known[col] = true
	}
	for _, col := range tbl.Columns {
		if !known[col] {
			return fmt.Errorf("insert rows %s: %w: unknown column %q", name, faults.ErrInvalidData, col)
		}
	}

	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return classify("insert rows", err)
	}
	defer tx.Rollback()

	if err := insertRows(ctx, tx, name, tbl); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return classify("insert rows", err)
	}
	return nil
}

func insertRows(ctx context.Context, tx *sql.Tx, name string, tbl datatypes.Table) error {
	quoted := make([]string, len(tbl.Columns))
	for i, col := range tbl.Columns {
		if err := validIdent(col); err != nil {
			return err
		}
		quoted[i] = quoteIdent(col)
	}
	stmt, err := tx.PrepareContext(ctx, fmt.Sprintf(
		"INSERT INTO %s (%s) VALUES (%s)",
		quoteIdent(name),
		strings.Join(quoted, ", "),
		strings.TrimSuffix(strings.Repeat("?, ", len(tbl.Columns)), ", "),
	))
	if err != nil {
		return classify("insert rows", err)
	}
	defer stmt.Close()

	for _, row := range tbl.Rows {
		args := make([]any, len(row))
		for i, cell := range row {
			if t, ok := cell.(time.Time); ok {
				cell = t.UTC().Format(time.RFC3339Nano)
			}
			args[i] = cell
		}
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			return classify("insert rows", err)
		}
	}
	return nil
}

// DropTable removes a data table. Dropping an absent table is not an
// error, which keeps the experiment store's compensation idempotent.
func (c *Catalog) DropTable(ctx context.Context, name string) error {
	if err := validIdent(name); err != nil {
		return err
	}
	if name == MetadataTable {
		return fmt.Errorf("drop table: %w: %s is reserved", faults.ErrInvalidData, MetadataTable)
	}
	_, err := c.db.ExecContext(ctx, "DROP TABLE IF EXISTS "+quoteIdent(name))
	if err != nil {
		return classify("drop table", err)
	}
	c.logger.Info("dropped data table", "table", name)
	return nil
}
