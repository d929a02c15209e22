// Lmsync - LMS Extraction and Identity Harmonization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/lmsync

package sync

import (
	"context"
	"time"

	"github.com/tomtom215/lmsync/internal/logging"
	"github.com/tomtom215/lmsync/internal/models"
	"github.com/tomtom215/lmsync/internal/resourcesync"
)

// Writer is the subset of *resourcesync.Writer used by a run.
type Writer interface {
	SyncWithoutCleanup(ctx context.Context, res *models.Resource, records []models.Record) (resourcesync.Reconciled, error)
	SoftDeleteMissing(ctx context.Context, res *models.Resource, scope map[string]any) (int, error)
	CleanupAfterSync(ctx context.Context, res *models.Resource) error
}

// Harmonizer runs the reconciliation pass. Satisfied by *harmonizer.Harmonizer.
type Harmonizer interface {
	Run(ctx context.Context) (models.HarmonizeReport, error)
}

// RunStore persists run summaries. Satisfied by *runstate.Store.
type RunStore interface {
	SaveRun(ctx context.Context, run *models.RunSummary) error
	LastSuccess() (time.Time, bool, error)
}

// EventPublisher publishes run progress. Satisfied by *events.Publisher.
// Errors are logged and never fail a run.
type EventPublisher interface {
	ResourceSynced(ctx context.Context, runID string, result models.ResourceResult) error
	HarmonizeCompleted(ctx context.Context, runID string, report *models.HarmonizeReport) error
	RunCompleted(ctx context.Context, run *models.RunSummary) error
}

func (m *Manager) publish(ctx context.Context, event string, fn func(EventPublisher) error) {
	if m.events == nil {
		return
	}
	if err := fn(m.events); err != nil {
		logging.Ctx(ctx).Warn().Err(err).Str("event", event).Msg("Failed to publish run event")
	}
}

func (m *Manager) saveRun(ctx context.Context, run *models.RunSummary) {
	if m.runs == nil {
		return
	}
	if err := m.runs.SaveRun(context.WithoutCancel(ctx), run); err != nil {
		logging.Ctx(ctx).Error().Err(err).Str("status", run.Status).Msg("Failed to save run summary")
	}
}
