// Lmsync - LMS Extraction and Identity Harmonization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/lmsync

package models

import (
	"fmt"
	"strings"
)

// Record is one canonical resource record: column name to value.
// Values are string, float64, int64, bool, time.Time or nil.
type Record map[string]any

// String returns the column value formatted as a string, or "" when the
// column is missing or nil.
func (r Record) String(column string) string {
	v, ok := r[column]
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

// IdentityKey joins the identity column values into a single comparable key.
// ok is false when any identity value is missing, nil or blank.
func (r Record) IdentityKey(identityColumns []string) (key string, ok bool) {
	parts := make([]string, len(identityColumns))
	for i, col := range identityColumns {
		s := r.String(col)
		if strings.TrimSpace(s) == "" {
			return "", false
		}
		parts[i] = s
	}
	return strings.Join(parts, "\x1f"), true
}

// Clone returns a shallow copy of the record.
func (r Record) Clone() Record {
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}
