// Copyright (C) 2025 Vibes Labs (oss@vibeslabs.dev)
// Tests for the content fingerprint

package fitcache

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vibesml/vibes/services/vibes/datatypes"
)

func trialTable(t *testing.T, records []map[string]any) datatypes.Table {
	t.Helper()
	tbl, err := datatypes.FromRecords(records)
	require.NoError(t, err)
	return tbl
}

func TestFingerprint_Deterministic(t *testing.T) {
	records := []map[string]any{
		{"outcome": true, "variant": "a"},
		{"outcome": false, "variant": "b"},
	}
	fp1 := Fingerprint("exp1", trialTable(t, records))
	fp2 := Fingerprint("exp1", trialTable(t, records))

	assert.Equal(t, fp1, fp2)
	assert.Len(t, fp1, 64) // hex-encoded SHA-256
}

func TestFingerprint_NamespaceSeparation(t *testing.T) {
	tbl := trialTable(t, []map[string]any{{"outcome": true}})

	assert.NotEqual(t, Fingerprint("exp1", tbl), Fingerprint("exp2", tbl))
}

func TestFingerprint_ContentSensitive(t *testing.T) {
	base := trialTable(t, []map[string]any{{"outcome": true}, {"outcome": true}})
	changed := trialTable(t, []map[string]any{{"outcome": true}, {"outcome": false}})

	assert.NotEqual(t, Fingerprint("exp1", base), Fingerprint("exp1", changed))
}

// Row order is part of the identity: the same rows reordered are a
// different dataset, and a different cache key.
func TestFingerprint_RowOrderSensitive(t *testing.T) {
	forward := trialTable(t, []map[string]any{
		{"outcome": true}, {"outcome": false},
	})
	reversed := trialTable(t, []map[string]any{
		{"outcome": false}, {"outcome": true},
	})

	assert.NotEqual(t, Fingerprint("exp1", forward), Fingerprint("exp1", reversed))
}

// Tables assembled by hand can carry rows shorter than the column list;
// those hash the trailing cells as absent instead of panicking, and an
// absent cell is not the same dataset as an explicit nil.
func TestFingerprint_ShortRows(t *testing.T) {
	ragged := datatypes.Table{
		Columns: []string{"outcome", "variant"},
		Rows:    [][]any{{true}},
	}
	padded := datatypes.Table{
		Columns: []string{"outcome", "variant"},
		Rows:    [][]any{{true, nil}},
	}

	var fp string
	assert.NotPanics(t, func() { fp = Fingerprint("exp1", ragged) })
	assert.Len(t, fp, 64)
	assert.NotEqual(t, fp, Fingerprint("exp1", padded))
}

func TestFingerprint_TypeTagged(t *testing.T) {
	// The integer 1 and the string "1" must not collide.
	asInt := trialTable(t, []map[string]any{{"v": int64(1)}})
	asString := trialTable(t, []map[string]any{{"v": "1"}})

	assert.NotEqual(t, Fingerprint("exp1", asInt), Fingerprint("exp1", asString))
}
