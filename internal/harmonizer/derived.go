// Lmsync - LMS Extraction and Identity Harmonization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/lmsync

package harmonizer

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// derivedTable describes an lmsx table kept in step with an eligibility
// projection. The projection yields the key and value columns by name.
type derivedTable struct {
	table      string
	keys       []string
	values     []string
	projection string
}

func (d derivedTable) keyJoin(left, right string) string {
	parts := make([]string, len(d.keys))
	for i, k := range d.keys {
		parts[i] = fmt.Sprintf("%s.%s = %s.%s", left, k, right, k)
	}
	return strings.Join(parts, " AND ")
}

// deleteIneligibleSQL removes derived rows with no eligible source row.
func (d derivedTable) deleteIneligibleSQL() string {
	return fmt.Sprintf("DELETE FROM %s AS t WHERE NOT EXISTS (SELECT 1 FROM (%s) AS e WHERE %s)",
		d.table, d.projection, d.keyJoin("e", "t"))
}

// updateChangedSQL rewrites derived rows whose projected values differ.
func (d derivedTable) updateChangedSQL() string {
	sets := make([]string, 0, len(d.values)+1)
	diffs := make([]string, 0, len(d.values))
	for _, c := range d.values {
		sets = append(sets, fmt.Sprintf("%s = e.%s", c, c))
		diffs = append(diffs, fmt.Sprintf("t.%s IS DISTINCT FROM e.%s", c, c))
	}
	sets = append(sets, "LastModifiedDate = ?")
	return fmt.Sprintf("UPDATE %s AS t SET %s FROM (%s) AS e WHERE %s AND (%s)",
		d.table, strings.Join(sets, ", "), d.projection, d.keyJoin("t", "e"), strings.Join(diffs, " OR "))
}

// insertMissingSQL adds eligible rows that are not yet derived.
func (d derivedTable) insertMissingSQL() string {
	cols := append(append([]string{}, d.keys...), d.values...)
	selected := make([]string, len(cols))
	for i, c := range cols {
		selected[i] = "e." + c
	}
	return fmt.Sprintf(
		"INSERT INTO %s (%s, CreateDate, LastModifiedDate) SELECT %s, ?, ? FROM (%s) AS e WHERE NOT EXISTS (SELECT 1 FROM %s AS t WHERE %s)",
		d.table, strings.Join(cols, ", "), strings.Join(selected, ", "), d.projection, d.table, d.keyJoin("t", "e"))
}

// sync applies delete, update and insert in that order.
func (d derivedTable) sync(ctx context.Context, tx *sql.Tx, now time.Time) (deleted, updated, inserted int64, err error) {
	if deleted, err = execCount(ctx, tx, d.deleteIneligibleSQL()); err != nil {
		return 0, 0, 0, fmt.Errorf("delete ineligible: %w", err)
	}
	if updated, err = execCount(ctx, tx, d.updateChangedSQL(), now); err != nil {
		return 0, 0, 0, fmt.Errorf("update changed: %w", err)
	}
	if inserted, err = execCount(ctx, tx, d.insertMissingSQL(), now, now); err != nil {
		return 0, 0, 0, fmt.Errorf("insert missing: %w", err)
	}
	return deleted, updated, inserted, nil
}
