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

// descriptorsOf joins edfi.Descriptor with one lmsx subtype table.
func descriptorsOf(subtype, idColumn string) string {
	return fmt.Sprintf(
		"SELECT d.DescriptorId, d.Namespace, d.CodeValue FROM edfi.Descriptor d JOIN %s x ON x.%s = d.DescriptorId",
		subtype, idColumn)
}

// eligibleAssignments projects every lms.Assignment that may appear in
// lmsx.Assignment: the assignment and its section are not deleted, the
// section is linked to an existing, non-deleted edfi.Section, and both the
// category and source-system descriptors exist.
var eligibleAssignments = fmt.Sprintf(`
	SELECT
		a.SourceSystemIdentifier AS AssignmentIdentifier,
		'%[1]s' || a.SourceSystem AS Namespace,
		a.SourceSystem,
		ssd.DescriptorId AS LMSSourceSystemDescriptorId,
		cat.DescriptorId AS AssignmentCategoryDescriptorId,
		es.Id AS SectionId,
		es.SectionIdentifier,
		es.LocalCourseCode,
		es.SchoolId,
		es.SchoolYear,
		es.SessionName,
		a.Title,
		a.AssignmentDescription,
		a.StartDateTime,
		a.EndDateTime,
		a.DueDateTime,
		a.MaxPoints
	FROM lms.Assignment a
	JOIN lms.LMSSection ls
		ON ls.SourceSystemIdentifier = a.LMSSectionSourceSystemIdentifier
		AND ls.SourceSystem = a.SourceSystem
	JOIN edfi.Section es ON es.Id = ls.EdFiSectionId
	JOIN (%[2]s) cat
		ON cat.Namespace = '%[3]s' || a.SourceSystem
		AND cat.CodeValue = a.AssignmentCategory
	JOIN (
		SELECT CodeValue, MIN(DescriptorId) AS DescriptorId
		FROM (%[4]s)
		GROUP BY CodeValue
	) ssd ON ssd.CodeValue = a.SourceSystem
	WHERE a.DeletedAt IS NULL
		AND ls.DeletedAt IS NULL
		AND es.DeletedAt IS NULL`,
	AssignmentNamespacePrefix,
	descriptorsOf("lmsx.AssignmentCategoryDescriptor", "AssignmentCategoryDescriptorId"),
	CategoryDescriptorNamespacePrefix,
	descriptorsOf("lmsx.LMSSourceSystemDescriptor", "LMSSourceSystemDescriptorId"),
)

var derivedAssignments = derivedTable{
	table: "lmsx.Assignment",
	keys:  []string{"AssignmentIdentifier", "Namespace"},
	values: []string{
		"SourceSystem", "LMSSourceSystemDescriptorId", "AssignmentCategoryDescriptorId",
		"SectionId", "SectionIdentifier", "LocalCourseCode", "SchoolId", "SchoolYear", "SessionName",
		"Title", "AssignmentDescription", "StartDateTime", "EndDateTime", "DueDateTime", "MaxPoints",
	},
	projection: eligibleAssignments,
}

// orphanedSubmissionsSQL removes derived submissions whose derived
// assignment is about to be removed.
var orphanedSubmissionsSQL = fmt.Sprintf(`
	DELETE FROM lmsx.AssignmentSubmission AS sub
	WHERE NOT EXISTS (
		SELECT 1 FROM (%s) AS e
		WHERE e.AssignmentIdentifier = sub.AssignmentIdentifier
			AND e.Namespace = sub.Namespace
	)`, eligibleAssignments)

// HarmonizeAssignments brings lmsx.Assignment in line with the eligible
// lms.Assignment rows. Submissions of assignments that lose eligibility are
// removed first.
func (h *Harmonizer) HarmonizeAssignments(ctx context.Context) (models.HarmonizeStep, error) {
	result := models.HarmonizeStep{Step: StepAssignments}
	now := h.timestamp()

	err := h.inTx(ctx, StepAssignments, func(ctx context.Context, tx *sql.Tx) error {
		cascaded, err := execCount(ctx, tx, orphanedSubmissionsSQL)
		if err != nil {
			return fmt.Errorf("remove submissions of ineligible assignments: %w", err)
		}
		deleted, updated, inserted, err := derivedAssignments.sync(ctx, tx, now)
		if err != nil {
			return err
		}
		result.Deleted = deleted + cascaded
		result.Updated = updated
		result.Inserted = inserted
		return nil
	})
	return result, err
}
