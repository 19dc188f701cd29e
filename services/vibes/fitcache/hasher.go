// Copyright (C) 2025 Vibes Labs (oss@vibeslabs.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package fitcache

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"hash"
	"math"
	"time"

	"github.com/vibesml/vibes/services/vibes/datatypes"
)

// Fingerprint deterministically digests a dataset plus its cache namespace
// into a fixed-length hex key.
//
// # Description
//
// The namespace is hashed first as a domain separator, so identical
// datasets cached under different namespaces never collide. The dataset is
// then traversed row-major, column-major within a row, with the row
// position folded into the hashed bytes.
//
// Including the row position makes the fingerprint sensitive to row order:
// two tables with identical rows in a different order hash differently.
// That property is deliberate and pinned by tests; treat the input as a
// sequence, not a set.
//
// Pure and deterministic; no I/O.
func Fingerprint(namespace string, dataset datatypes.Table) string {
	h := sha256.New()
	h.Write([]byte(namespace))
	h.Write([]byte{0})

	var idx [8]byte
	for i, row := range dataset.Rows {
		binary.LittleEndian.PutUint64(idx[:], uint64(i))
		h.Write(idx[:])
		for j, col := range dataset.Columns {
			h.Write([]byte(col))
			h.Write([]byte{0})
			if j < len(row) {
				hashCell(h, row[j])
			} else {
				// Short rows hash the cell as absent, which is
				// distinct from an explicit nil.
				h.Write([]byte{'x'})
			}
		}
	}
	return hex.EncodeToString(h.Sum(nil))
}

// hashCell writes a type-tagged, fixed encoding of one cell value. The tag
// byte keeps 1 (int) and "1" (string) from colliding.
func hashCell(h hash.Hash, v any) {
	var buf [9]byte
	switch val := v.(type) {
	case nil:
		h.Write([]byte{'n'})
	case bool:
		buf[0] = 'b'
		if val {
			buf[1] = 1
		}
		h.Write(buf[:2])
	case int:
		buf[0] = 'i'
		binary.LittleEndian.PutUint64(buf[1:], uint64(int64(val)))
		h.Write(buf[:])
	case int64:
		buf[0] = 'i'
		binary.LittleEndian.PutUint64(buf[1:], uint64(val))
		h.Write(buf[:])
	case float64:
		buf[0] = 'f'
		binary.LittleEndian.PutUint64(buf[1:], math.Float64bits(val))
		h.Write(buf[:])
	case string:
		h.Write([]byte{'s'})
		h.Write([]byte(val))
		h.Write([]byte{0})
	case time.Time:
		buf[0] = 't'
		binary.LittleEndian.PutUint64(buf[1:], uint64(val.UnixNano()))
		h.Write(buf[:])
	default:
		h.Write([]byte{'?'})
		h.Write([]byte(fmt.Sprintf("%v", val)))
		h.Write([]byte{0})
	}
}
