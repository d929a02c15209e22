// Lmsync - LMS Extraction and Identity Harmonization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/lmsync

package sync

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/tomtom215/lmsync/internal/logging"
	"github.com/tomtom215/lmsync/internal/metrics"
	"github.com/tomtom215/lmsync/internal/models"
	"github.com/tomtom215/lmsync/internal/sources"
)

func (m *Manager) setInProgress(v bool) {
	m.mu.Lock()
	m.inProgress = v
	m.mu.Unlock()
	if v {
		metrics.RunInProgress.Set(1)
	} else {
		metrics.RunInProgress.Set(0)
	}
}

// run executes one run. The returned summary is complete even when the
// error is non-nil; only ErrRunInProgress returns a nil summary.
func (m *Manager) run(ctx context.Context, trigger string) (*models.RunSummary, error) {
	if !m.runMu.TryLock() {
		return nil, ErrRunInProgress
	}
	defer m.runMu.Unlock()

	m.setInProgress(true)
	defer m.setInProgress(false)

	runID := logging.GenerateRunID()
	ctx = logging.ContextWithRunID(ctx, runID)
	start := time.Now()

	summary := &models.RunSummary{
		ID:        runID,
		Trigger:   trigger,
		Status:    models.RunStatusRunning,
		StartedAt: m.now().UTC(),
		Resources: []models.ResourceResult{},
	}
	m.saveRun(ctx, summary)
	logging.Ctx(ctx).Info().Str("trigger", trigger).Msg("Sync run started")

	succeeded := 0
	if trigger != models.TriggerHarmonize {
		for _, src := range m.sources {
			succeeded += m.syncSource(ctx, summary, src)
		}
	}

	if m.harmonizer != nil {
		if err := ctx.Err(); err != nil {
			summary.Errors = append(summary.Errors, "harmonizer: skipped: "+err.Error())
		} else {
			report, err := m.harmonizer.Run(ctx)
			summary.Harmonize = &report
			if err != nil {
				summary.Errors = append(summary.Errors, "harmonizer: "+err.Error())
			} else {
				succeeded++
			}
			m.publish(ctx, "harmonize.completed", func(p EventPublisher) error {
				return p.HarmonizeCompleted(ctx, runID, summary.Harmonize)
			})
		}
	}

	summary.FinishedAt = m.now().UTC()
	summary.Status = runStatus(summary, succeeded)
	metrics.RecordRun(time.Since(start), summary.Status)

	m.mu.Lock()
	m.lastRun = summary
	if summary.Status == models.RunStatusSuccess {
		m.lastSync = summary.FinishedAt
	}
	m.mu.Unlock()

	m.saveRun(ctx, summary)
	m.publish(ctx, "run.completed", func(p EventPublisher) error {
		return p.RunCompleted(ctx, summary)
	})

	event := logging.Ctx(ctx).Info()
	if summary.Failed() {
		event = logging.Ctx(ctx).Warn().Strs("errors", summary.Errors)
	}
	event.
		Str("status", summary.Status).
		Int("resources", len(summary.Resources)).
		Dur("duration", time.Since(start)).
		Msg("Sync run finished")

	if summary.Failed() {
		return summary, fmt.Errorf("run %s %s: %s", runID, summary.Status, strings.Join(summary.Errors, "; "))
	}
	return summary, nil
}

// runStatus is success without errors, failed when nothing succeeded and
// partial otherwise.
func runStatus(summary *models.RunSummary, succeeded int) string {
	switch {
	case !summary.Failed():
		return models.RunStatusSuccess
	case succeeded == 0:
		return models.RunStatusFailed
	default:
		return models.RunStatusPartial
	}
}

// syncSource syncs every resource of src in order. After the first failure
// the remaining resources are recorded as skipped. It returns the number of
// resources that synced.
func (m *Manager) syncSource(ctx context.Context, summary *models.RunSummary, src sources.Source) int {
	log := logging.Ctx(ctx).With().Str("source", src.Name()).Logger()
	succeeded := 0
	failed := false

	for _, res := range src.Resources() {
		if failed {
			summary.Resources = append(summary.Resources, models.ResourceResult{
				SourceSystem: src.Name(),
				Resource:     res.Table(),
				Skipped:      true,
				FinishedAt:   m.now().UTC(),
			})
			continue
		}

		result := m.syncResource(ctx, src, res)
		summary.Resources = append(summary.Resources, result)
		m.publish(ctx, "resource.synced", func(p EventPublisher) error {
			return p.ResourceSynced(ctx, summary.ID, result)
		})

		if result.Error != "" {
			failed = true
			summary.Errors = append(summary.Errors, fmt.Sprintf("%s %s: %s", src.Name(), res.Table(), result.Error))
			log.Error().Str("resource", res.Table()).Str("error", result.Error).
				Msg("Resource sync failed, skipping remaining resources of source")
			continue
		}
		succeeded++
	}
	return succeeded
}

// softDeleteScope limits soft deletes of lms.* tables to the rows of one
// source system. edfi.* tables belong to a single source.
func softDeleteScope(src sources.Source, res *models.Resource) map[string]any {
	if _, ok := res.Column(models.SourceSystemColumn); ok {
		return map[string]any{models.SourceSystemColumn: src.Name()}
	}
	return nil
}

func (m *Manager) syncResource(ctx context.Context, src sources.Source, res *models.Resource) (result models.ResourceResult) {
	start := time.Now()
	result = models.ResourceResult{SourceSystem: src.Name(), Resource: res.Table()}

	var err error
	defer func() {
		elapsed := time.Since(start)
		result.DurationMS = elapsed.Milliseconds()
		result.FinishedAt = m.now().UTC()
		if err != nil {
			result.Error = err.Error()
		}
		metrics.RecordResourceSync(res.Table(), elapsed, result.Inserted, result.Updated, result.Unchanged, result.SoftDeleted, err)
	}()

	if err = ctx.Err(); err != nil {
		return result
	}

	records, err := src.Fetch(ctx, res)
	if err != nil {
		err = fmt.Errorf("fetch: %w", err)
		return result
	}
	result.Fetched = len(records)

	defer func() {
		if cerr := m.writer.CleanupAfterSync(context.WithoutCancel(ctx), res); cerr != nil {
			logging.Ctx(ctx).Warn().Err(cerr).Str("resource", res.Table()).Msg("Failed to drop staging table")
		}
	}()

	reconciled, err := m.writer.SyncWithoutCleanup(ctx, res, records)
	if err != nil {
		err = fmt.Errorf("write: %w", err)
		return result
	}
	result.Inserted = reconciled.Inserted
	result.Updated = reconciled.Updated
	result.Unchanged = reconciled.Unchanged

	if m.cfg.SoftDeleteMissing {
		n, sdErr := m.writer.SoftDeleteMissing(ctx, res, softDeleteScope(src, res))
		if sdErr != nil {
			err = fmt.Errorf("soft delete: %w", sdErr)
			return result
		}
		result.SoftDeleted = n
	}

	logging.Ctx(ctx).Info().
		Str("source", src.Name()).
		Str("resource", res.Table()).
		Int("fetched", result.Fetched).
		Int("inserted", result.Inserted).
		Int("updated", result.Updated).
		Int("unchanged", result.Unchanged).
		Int("soft_deleted", result.SoftDeleted).
		Msg("Resource synced")
	return result
}
