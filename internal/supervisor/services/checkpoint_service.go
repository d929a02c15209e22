// Lmsync - LMS Extraction and Identity Harmonization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/lmsync

package services

import (
	"context"
	"time"

	"github.com/tomtom215/lmsync/internal/logging"
	"github.com/tomtom215/lmsync/internal/metrics"
)

// finalCheckpointTimeout bounds the checkpoint taken on shutdown.
const finalCheckpointTimeout = 30 * time.Second

// Checkpointer folds the write-ahead log into the database file.
type Checkpointer interface {
	Checkpoint(ctx context.Context) error
}

// CheckpointService periodically checkpoints the store and checkpoints once
// more on shutdown. Failed checkpoints are logged and retried on the next
// tick; they never stop the service.
type CheckpointService struct {
	db       Checkpointer
	interval time.Duration
	name     string
}

// NewCheckpointService creates a checkpoint service. interval must be
// positive; callers skip the service when checkpoints are disabled.
func NewCheckpointService(db Checkpointer, interval time.Duration) *CheckpointService {
	return &CheckpointService{
		db:       db,
		interval: interval,
		name:     "duckdb-checkpoint",
	}
}

// Serve implements suture.Service.
func (c *CheckpointService) Serve(ctx context.Context) error {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			finalCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), finalCheckpointTimeout)
			c.checkpoint(finalCtx)
			cancel()
			return ctx.Err()
		case <-ticker.C:
			c.checkpoint(ctx)
		}
	}
}

func (c *CheckpointService) checkpoint(ctx context.Context) {
	start := time.Now()
	err := c.db.Checkpoint(ctx)
	metrics.RecordDBQuery("checkpoint", time.Since(start), err)
	if err != nil {
		logging.Warn().Err(err).Str("service", c.name).Msg("DuckDB checkpoint failed")
		return
	}
	logging.Debug().Dur("duration", time.Since(start)).Msg("DuckDB checkpoint complete")
}

// String implements fmt.Stringer; suture uses it in event logs.
func (c *CheckpointService) String() string {
	return c.name
}
