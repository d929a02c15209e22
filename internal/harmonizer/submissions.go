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

// eligibleSubmissions projects every lms.AssignmentSubmission that may
// appear in lmsx.AssignmentSubmission: not deleted, its assignment is in
// lmsx.Assignment, its user is not deleted and linked to a non-deleted
// edfi.Student, and the status descriptor exists.
var eligibleSubmissions = fmt.Sprintf(`
	SELECT
		sub.SourceSystemIdentifier AS AssignmentSubmissionIdentifier,
		'%[1]s' || sub.SourceSystem AS Namespace,
		sub.AssignmentSourceSystemIdentifier AS AssignmentIdentifier,
		st.Id AS StudentId,
		st.StudentUniqueId,
		status.DescriptorId AS SubmissionStatusDescriptorId,
		sub.SubmissionDateTime,
		sub.EarnedPoints,
		sub.Grade
	FROM lms.AssignmentSubmission sub
	JOIN lmsx.Assignment la
		ON la.AssignmentIdentifier = sub.AssignmentSourceSystemIdentifier
		AND la.Namespace = '%[1]s' || sub.SourceSystem
	JOIN lms.LMSUser u
		ON u.SourceSystemIdentifier = sub.LMSUserSourceSystemIdentifier
		AND u.SourceSystem = sub.SourceSystem
	JOIN edfi.Student st ON st.Id = u.EdFiStudentId
	JOIN (%[2]s) status
		ON status.Namespace = '%[3]s' || sub.SourceSystem
		AND status.CodeValue = sub.SubmissionStatus
	WHERE sub.DeletedAt IS NULL
		AND u.DeletedAt IS NULL
		AND st.DeletedAt IS NULL`,
	AssignmentNamespacePrefix,
	descriptorsOf("lmsx.SubmissionStatusDescriptor", "SubmissionStatusDescriptorId"),
	StatusDescriptorNamespacePrefix,
)

var derivedSubmissions = derivedTable{
	table: "lmsx.AssignmentSubmission",
	keys:  []string{"AssignmentSubmissionIdentifier", "Namespace"},
	values: []string{
		"AssignmentIdentifier", "StudentId", "StudentUniqueId", "SubmissionStatusDescriptorId",
		"SubmissionDateTime", "EarnedPoints", "Grade",
	},
	projection: eligibleSubmissions,
}

// HarmonizeSubmissions brings lmsx.AssignmentSubmission in line with the
// eligible lms.AssignmentSubmission rows.
func (h *Harmonizer) HarmonizeSubmissions(ctx context.Context) (models.HarmonizeStep, error) {
	result := models.HarmonizeStep{Step: StepSubmissions}
	now := h.timestamp()

	err := h.inTx(ctx, StepSubmissions, func(ctx context.Context, tx *sql.Tx) error {
		deleted, updated, inserted, err := derivedSubmissions.sync(ctx, tx, now)
		if err != nil {
			return fmt.Errorf("submissions: %w", err)
		}
		result.Deleted, result.Updated, result.Inserted = deleted, updated, inserted
		return nil
	})
	return result, err
}
