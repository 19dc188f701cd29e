// Copyright (C) 2025 Vibes Labs (oss@vibeslabs.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package datatypes defines the shared value types of the materialization
// layer: tabular event data, experiment metadata, pages, and artifacts.
package datatypes

import (
	"fmt"
	"sort"

	"github.com/vibesml/vibes/services/vibes/faults"
)

// TimestampColumn is the column name the inspect filters look for. Tables
// without a column of this name simply skip time-range filtering.
const TimestampColumn = "timestamp"

// Table is an ordered, column-oriented view of tabular event data.
//
// # Description
//
// Column order and row order are both significant: the content fingerprint
// hashes cells positionally, so two tables holding the same rows in a
// different order are distinct cache keys.
//
// Cell values are the JSON scalar types (string, float64, bool, nil) plus
// int64 and time-formatted strings; backends decide how to persist each.
type Table struct {
	Columns []string
	Rows    [][]any
}

// FromRecords builds a Table from a list of row objects.
//
// # Description
//
// Column order is the sorted key set of the first record, so the same
// records always produce the same table shape. Later records may omit
// columns (cells become nil) but must not introduce new ones.
//
// # Inputs
//
//   - records: Decoded row objects. Must be non-empty.
//
// # Outputs
//
//   - Table: The assembled table.
//   - error: Wraps faults.ErrInvalidData when records is empty or a record
//     does not fit the first record's shape.
func FromRecords(records []map[string]any) (Table, error) {
	if len(records) == 0 {
		return Table{}, fmt.Errorf("%w: empty row set", faults.ErrInvalidData)
	}

	columns := make([]string, 0, len(records[0]))
	for name := range records[0] {
		columns = append(columns, name)
	}
	sort.Strings(columns)
	index := make(map[string]int, len(columns))
	for i, name := range columns {
		index[name] = i
	}

	rows := make([][]any, 0, len(records))
	for n, record := range records {
		for name := range record {
			if _, ok := index[name]; !ok {
				return Table{}, fmt.Errorf("%w: row %d introduces unknown column %q",
					faults.ErrInvalidData, n, name)
			}
		}
		row := make([]any, len(columns))
		for name, i := range index {
			row[i] = record[name]
		}
		rows = append(rows, row)
	}

	return Table{Columns: columns, Rows: rows}, nil
}

// Records converts the table back to row objects, preserving row order.
func (t Table) Records() []map[string]any {
	records := make([]map[string]any, 0, len(t.Rows))
	for _, row := range t.Rows {
		record := make(map[string]any, len(t.Columns))
		for i, name := range t.Columns {
			record[name] = row[i]
		}
		records = append(records, record)
	}
	return records
}

// ColumnIndex returns the position of the named column, or -1.
func (t Table) ColumnIndex(name string) int {
	for i, c := range t.Columns {
		if c == name {
			return i
		}
	}
	return -1
}

// HasColumn reports whether the named column exists.
func (t Table) HasColumn(name string) bool {
	return t.ColumnIndex(name) >= 0
}

// NumRows returns the number of rows.
func (t Table) NumRows() int {
	return len(t.Rows)
}
