// Lmsync - LMS Extraction and Identity Harmonization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/lmsync

/*
Package harmonizer links LMS snapshot rows to SIS rows and maintains the
derived lmsx tables.

A pass runs these steps in order, each in its own transaction:

 1. descriptors (optional): seed the standard descriptor codes for the
    configured source systems
 2. users: LMSUser.EdFiStudentId by e-mail match
 3. sections: LMSSection.EdFiSectionId by section identifier
 4. assignments: lmsx.Assignment for fully matched, non-deleted assignments
 5. submissions: lmsx.AssignmentSubmission for matched submissions whose
    assignment is derived

The first failing step aborts the pass; earlier steps stay committed. The
harmonizer never writes snapshot attributes, Hash or timestamps of lms.* or
edfi.* rows, only the link columns and the lmsx tables.
*/
package harmonizer

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/tomtom215/lmsync/internal/logging"
	"github.com/tomtom215/lmsync/internal/metrics"
	"github.com/tomtom215/lmsync/internal/models"
)

// Step names used in reports and metrics.
const (
	StepDescriptors = "descriptors"
	StepUsers       = "users"
	StepSections    = "sections"
	StepAssignments = "assignments"
	StepSubmissions = "submissions"
)

// Namespace prefixes of the Ed-Fi LMS descriptors and derived entities.
const (
	AssignmentNamespacePrefix         = "uri://ed-fi.org/edfilms/Assignment/"
	CategoryDescriptorNamespacePrefix = "uri://ed-fi.org/edfilms/AssignmentCategoryDescriptor/"
	StatusDescriptorNamespacePrefix   = "uri://ed-fi.org/edfilms/SubmissionStatusDescriptor/"
	SourceSystemDescriptorNamespace   = "uri://ed-fi.org/edfilms/LMSSourceSystemDescriptor"
)

// Report is the result of one pass.
type Report = models.HarmonizeReport

// Options configures a Harmonizer.
type Options struct {
	// SeedDescriptors runs SeedDescriptors before the link steps.
	SeedDescriptors bool
	// SourceSystems limits descriptor seeding.
	SourceSystems []string
	// Codes overrides StandardDescriptorCodes for seeding.
	Codes map[string]DescriptorCodes
}

// Harmonizer runs harmonization passes against the store.
type Harmonizer struct {
	db   *sql.DB
	opts  Options
	codes map[string]DescriptorCodes
	now   func() time.Time
}

// New creates a Harmonizer.
func New(db *sql.DB, opts Options) *Harmonizer {
	codes := opts.Codes
	if codes == nil {
		codes = StandardDescriptorCodes
	}
	return &Harmonizer{db: db, opts: opts, codes: codes, now: time.Now}
}

func (h *Harmonizer) timestamp() time.Time {
	return h.now().UTC().Truncate(time.Microsecond)
}

// Run executes one harmonization pass. On error the report holds the steps
// that completed.
func (h *Harmonizer) Run(ctx context.Context) (Report, error) {
	start := time.Now()
	var report Report

	type stepFunc func(context.Context) (models.HarmonizeStep, error)
	steps := make([]stepFunc, 0, 5)
	if h.opts.SeedDescriptors {
		steps = append(steps, func(ctx context.Context) (models.HarmonizeStep, error) {
			return h.SeedDescriptors(ctx, h.opts.SourceSystems)
		})
	}
	steps = append(steps, h.HarmonizeUsers, h.HarmonizeSections, h.HarmonizeAssignments, h.HarmonizeSubmissions)

	for _, run := range steps {
		if err := ctx.Err(); err != nil {
			report.Error = err.Error()
			report.DurationMS = time.Since(start).Milliseconds()
			return report, err
		}
		step, err := run(ctx)
		if err != nil {
			report.Error = err.Error()
			report.DurationMS = time.Since(start).Milliseconds()
			return report, err
		}
		recordStep(step)
		report.Steps = append(report.Steps, step)
	}

	elapsed := time.Since(start)
	metrics.HarmonizeDuration.Observe(elapsed.Seconds())
	report.DurationMS = elapsed.Milliseconds()

	logging.Ctx(ctx).Info().
		Int64("duration_ms", report.DurationMS).
		Interface("steps", report.Steps).
		Msg("Harmonization completed")
	return report, nil
}

func recordStep(s models.HarmonizeStep) {
	metrics.RecordHarmonizeStep(s.Step, "linked", s.Linked)
	metrics.RecordHarmonizeStep(s.Step, "unlinked", s.Unlinked)
	metrics.RecordHarmonizeStep(s.Step, "inserted", s.Inserted)
	metrics.RecordHarmonizeStep(s.Step, "updated", s.Updated)
	metrics.RecordHarmonizeStep(s.Step, "deleted", s.Deleted)
}

// inTx runs fn in a transaction that is not cancelled with ctx.
func (h *Harmonizer) inTx(ctx context.Context, step string, fn func(ctx context.Context, tx *sql.Tx) error) (err error) {
	ctx = context.WithoutCancel(ctx)
	start := time.Now()
	defer func() {
		metrics.RecordDBQuery("harmonize_"+step, time.Since(start), err)
	}()

	tx, err := h.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("harmonize %s: failed to begin transaction: %w", step, err)
	}
	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil {
				logging.Error().
					Err(rbErr).
					AnErr("original_error", err).
					Str("step", step).
					Msg("Transaction rollback failed")
			}
		}
	}()

	if err = fn(ctx, tx); err != nil {
		return fmt.Errorf("harmonize %s: %w", step, err)
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("harmonize %s: failed to commit: %w", step, err)
	}
	return nil
}

// execCount runs a statement and returns the affected row count.
func execCount(ctx context.Context, tx *sql.Tx, query string, args ...any) (int64, error) {
	res, err := tx.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
