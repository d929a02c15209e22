// Lmsync - LMS Extraction and Identity Harmonization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/lmsync

package harmonizer

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/tomtom215/lmsync/internal/models"
)

// descriptorKind is one lmsx descriptor subtype.
type descriptorKind struct {
	subtype  string
	idColumn string
}

var (
	categoryKind     = descriptorKind{"lmsx.AssignmentCategoryDescriptor", "AssignmentCategoryDescriptorId"}
	statusKind       = descriptorKind{"lmsx.SubmissionStatusDescriptor", "SubmissionStatusDescriptorId"}
	sourceSystemKind = descriptorKind{"lmsx.LMSSourceSystemDescriptor", "LMSSourceSystemDescriptorId"}
)

const insertDescriptorSQL = `
	INSERT INTO edfi.Descriptor (Namespace, CodeValue, ShortDescription)
	SELECT CAST(? AS VARCHAR), CAST(? AS VARCHAR), CAST(? AS VARCHAR)
	WHERE NOT EXISTS (
		SELECT 1 FROM edfi.Descriptor WHERE Namespace = ? AND CodeValue = ?
	)`

// registerSQL adds the subtype row for one descriptor by namespace and
// code value.
func (k descriptorKind) registerSQL() string {
	return fmt.Sprintf(`
		INSERT INTO %[1]s (%[2]s)
		SELECT d.DescriptorId FROM edfi.Descriptor d
		WHERE d.Namespace = ? AND d.CodeValue = ?
			AND NOT EXISTS (SELECT 1 FROM %[1]s x WHERE x.%[2]s = d.DescriptorId)`,
		k.subtype, k.idColumn)
}

// DescriptorCodes are the category and submission status code values a
// source system emits.
type DescriptorCodes struct {
	Categories []string
	Statuses   []string
}

// StandardDescriptorCodes lists the code values the extractors produce for
// each supported source system. Values outside these lists never get a
// descriptor from seeding, so their rows are not derived.
var StandardDescriptorCodes = map[string]DescriptorCodes{
	models.SourceCanvas: {
		Categories: []string{
			"discussion_topic", "external_tool", "media_recording", "none", "not_graded",
			"on_paper", "online_quiz", "online_text_entry", "online_upload", "online_url",
			"student_annotation", "wiki_page",
		},
		Statuses: []string{"graded", "late", "missing", "pending_review", "submitted", "unsubmitted"},
	},
	models.SourceSchoology: {
		Categories: []string{"assessment", "assessment_v2", "assignment", "discussion", "quiz"},
		Statuses:   []string{"draft", "late", "on-time"},
	},
	models.SourceClassroom: {
		Categories: []string{"ASSIGNMENT", "COURSE_WORK_TYPE_UNSPECIFIED", "MULTIPLE_CHOICE_QUESTION", "SHORT_ANSWER_QUESTION"},
		Statuses: []string{
			"CREATED", "LATE", "NEW", "RECLAIMED_BY_STUDENT", "RETURNED",
			"SUBMISSION_STATE_UNSPECIFIED", "TURNED_IN",
		},
	},
}

// SeedDescriptors inserts the descriptor rows the derived tables depend on
// for each source system: its LMSSourceSystemDescriptor and the standard
// AssignmentCategoryDescriptor and SubmissionStatusDescriptor codes from
// the harmonizer's code table. A source system without an entry only gets
// its source system descriptor. Existing rows are kept, so the step is
// idempotent.
func (h *Harmonizer) SeedDescriptors(ctx context.Context, sourceSystems []string) (models.HarmonizeStep, error) {
	result := models.HarmonizeStep{Step: StepDescriptors}

	err := h.inTx(ctx, StepDescriptors, func(ctx context.Context, tx *sql.Tx) error {
		for _, source := range sourceSystems {
			n, err := seedSource(ctx, tx, source, h.codes[source])
			if err != nil {
				return fmt.Errorf("source %s: %w", source, err)
			}
			result.Inserted += n
		}
		return nil
	})
	return result, err
}

func seedSource(ctx context.Context, tx *sql.Tx, source string, codes DescriptorCodes) (int64, error) {
	var total int64
	seed := func(kind descriptorKind, ns, code string) error {
		n, err := execCount(ctx, tx, insertDescriptorSQL, ns, code, code, ns, code)
		if err != nil {
			return err
		}
		total += n
		n, err = execCount(ctx, tx, kind.registerSQL(), ns, code)
		total += n
		return err
	}

	if err := seed(sourceSystemKind, SourceSystemDescriptorNamespace, source); err != nil {
		return 0, fmt.Errorf("source system descriptor: %w", err)
	}
	for _, code := range codes.Categories {
		if err := seed(categoryKind, CategoryDescriptorNamespacePrefix+source, code); err != nil {
			return 0, fmt.Errorf("category descriptor %q: %w", code, err)
		}
	}
	for _, code := range codes.Statuses {
		if err := seed(statusKind, StatusDescriptorNamespacePrefix+source, code); err != nil {
			return 0, fmt.Errorf("status descriptor %q: %w", code, err)
		}
	}
	return total, nil
}
