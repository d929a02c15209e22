// Lmsync - LMS Extraction and Identity Harmonization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/lmsync

package database

import (
	"context"
	"fmt"
	"time"

	"github.com/tomtom215/lmsync/internal/metrics"
	"github.com/tomtom215/lmsync/internal/models"
)

// ensureContext creates a context with 30-second timeout if none provided
func (db *DB) ensureContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if ctx == nil {
		return context.WithTimeout(context.Background(), 30*time.Second)
	}

	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		return context.WithTimeout(ctx, 30*time.Second)
	}

	return ctx, func() {}
}

// Checkpoint forces a WAL checkpoint
func (db *DB) Checkpoint(ctx context.Context) error {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	_, err := db.conn.ExecContext(ctx, "CHECKPOINT")
	if err != nil {
		return fmt.Errorf("checkpoint failed: %w", err)
	}
	return nil
}

// GetDatabasePath returns the path to the database file
func (db *DB) GetDatabasePath() string {
	return db.cfg.Path
}

// TableCount is the row count of one table, split by soft-deletion for
// snapshot tables.
type TableCount struct {
	Table   string `json:"table"`
	Rows    int64  `json:"rows"`
	Deleted int64  `json:"deleted,omitempty"`
}

// derivedTables are counted alongside the snapshot catalog.
var derivedTables = []string{"lmsx.Assignment", "lmsx.AssignmentSubmission"}

// GetRecordCounts returns row counts for every snapshot and derived table.
func (db *DB) GetRecordCounts(ctx context.Context) ([]TableCount, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	start := time.Now()
	counts := make([]TableCount, 0, len(models.Catalog())+len(derivedTables))

	for _, r := range models.Catalog() {
		tc := TableCount{Table: r.Table()}
		query := fmt.Sprintf("SELECT COUNT(*), COUNT(%s) FROM %s", models.DeletedAtColumn, r.Table())
		if err := db.conn.QueryRowContext(ctx, query).Scan(&tc.Rows, &tc.Deleted); err != nil {
			metrics.RecordDBQuery("record_counts", time.Since(start), err)
			return nil, fmt.Errorf("failed to count %s: %w", r.Table(), err)
		}
		counts = append(counts, tc)
	}

	for _, table := range derivedTables {
		tc := TableCount{Table: table}
		if err := db.conn.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+table).Scan(&tc.Rows); err != nil {
			metrics.RecordDBQuery("record_counts", time.Since(start), err)
			return nil, fmt.Errorf("failed to count %s: %w", table, err)
		}
		counts = append(counts, tc)
	}

	metrics.RecordDBQuery("record_counts", time.Since(start), nil)
	return counts, nil
}
