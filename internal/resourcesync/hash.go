// Lmsync - LMS Extraction and Identity Harmonization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/lmsync

package resourcesync

import (
	"encoding/hex"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"golang.org/x/crypto/blake2b"

	"github.com/tomtom215/lmsync/internal/models"
)

// Hash returns the content hash of a record: hex BLAKE2b-256 over the
// canonical JSON of its hash columns (sorted keys, normalized values).
// Identity, writer-owned and volatile columns are excluded. Missing and nil
// values hash the same.
func Hash(record models.Record, res *models.Resource) (string, error) {
	canonical := make(map[string]any, len(res.Columns))
	for _, name := range res.HashColumns() {
		col, _ := res.Column(name)
		v, err := col.Normalize(record[name])
		if err != nil {
			return "", err
		}
		canonical[name] = canonicalValue(v)
	}

	// Map keys are encoded in sorted order.
	payload, err := json.Marshal(canonical)
	if err != nil {
		return "", fmt.Errorf("encode canonical record: %w", err)
	}
	sum := blake2b.Sum256(payload)
	return hex.EncodeToString(sum[:]), nil
}

func canonicalValue(v any) any {
	if t, ok := v.(time.Time); ok {
		return t.UTC().Format(time.RFC3339Nano)
	}
	return v
}
