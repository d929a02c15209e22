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

// userMatches picks one student per non-deleted LMS user whose e-mail equals
// any non-deleted address of a non-deleted student. Addresses compare
// trimmed and case-insensitive. Ties resolve to the lowest StudentUniqueId,
// then the lowest Id.
const userMatches = `
	SELECT SourceSystemIdentifier, SourceSystem, StudentId
	FROM (
		SELECT u.SourceSystemIdentifier, u.SourceSystem, s.Id AS StudentId,
			ROW_NUMBER() OVER (
				PARTITION BY u.SourceSystemIdentifier, u.SourceSystem
				ORDER BY s.StudentUniqueId, s.Id
			) AS rn
		FROM lms.LMSUser u
		JOIN edfi.StudentElectronicMail m
			ON lower(trim(m.ElectronicMailAddress)) = lower(trim(u.EmailAddress))
		JOIN edfi.Student s ON s.StudentUniqueId = m.StudentUniqueId
		WHERE u.DeletedAt IS NULL
			AND m.DeletedAt IS NULL
			AND s.DeletedAt IS NULL
			AND trim(coalesce(u.EmailAddress, '')) <> ''
	)
	WHERE rn = 1`

// sectionMatches picks one SIS section per non-deleted LMS section by
// section identifier. Ties resolve to the lowest Id.
const sectionMatches = `
	SELECT SourceSystemIdentifier, SourceSystem, SectionId
	FROM (
		SELECT ls.SourceSystemIdentifier, ls.SourceSystem, es.Id AS SectionId,
			ROW_NUMBER() OVER (
				PARTITION BY ls.SourceSystemIdentifier, ls.SourceSystem
				ORDER BY es.Id
			) AS rn
		FROM lms.LMSSection ls
		JOIN edfi.Section es ON es.SectionIdentifier = ls.SISSectionIdentifier
		WHERE ls.DeletedAt IS NULL
			AND es.DeletedAt IS NULL
	)
	WHERE rn = 1`

// linkStatements renders the link and unlink updates for one link column.
func linkStatements(table, linkColumn, matches, matchColumn string) (link, unlink string) {
	link = fmt.Sprintf(`
		UPDATE %[1]s AS t SET %[2]s = m.%[4]s
		FROM (%[3]s) AS m
		WHERE t.SourceSystemIdentifier = m.SourceSystemIdentifier
			AND t.SourceSystem = m.SourceSystem
			AND t.%[2]s IS DISTINCT FROM m.%[4]s`,
		table, linkColumn, matches, matchColumn)

	unlink = fmt.Sprintf(`
		UPDATE %[1]s AS t SET %[2]s = NULL
		WHERE t.%[2]s IS NOT NULL
			AND NOT EXISTS (
				SELECT 1 FROM (%[3]s) AS m
				WHERE m.SourceSystemIdentifier = t.SourceSystemIdentifier
					AND m.SourceSystem = t.SourceSystem
			)`,
		table, linkColumn, matches)
	return link, unlink
}

func (h *Harmonizer) harmonizeLink(ctx context.Context, step, table, linkColumn, matches, matchColumn string) (models.HarmonizeStep, error) {
	result := models.HarmonizeStep{Step: step}
	link, unlink := linkStatements(table, linkColumn, matches, matchColumn)

	err := h.inTx(ctx, step, func(ctx context.Context, tx *sql.Tx) error {
		var err error
		if result.Unlinked, err = execCount(ctx, tx, unlink); err != nil {
			return fmt.Errorf("unlink: %w", err)
		}
		if result.Linked, err = execCount(ctx, tx, link); err != nil {
			return fmt.Errorf("link: %w", err)
		}
		return nil
	})
	return result, err
}

// HarmonizeUsers sets lms.LMSUser.EdFiStudentId by e-mail match and clears it
// for deleted or unmatched users. Only changed rows are written.
func (h *Harmonizer) HarmonizeUsers(ctx context.Context) (models.HarmonizeStep, error) {
	return h.harmonizeLink(ctx, StepUsers, models.LMSUser.Table(), "EdFiStudentId", userMatches, "StudentId")
}

// HarmonizeSections sets lms.LMSSection.EdFiSectionId by section identifier
// and clears it for deleted or unmatched sections.
func (h *Harmonizer) HarmonizeSections(ctx context.Context) (models.HarmonizeStep, error) {
	return h.harmonizeLink(ctx, StepSections, models.LMSSection.Table(), "EdFiSectionId", sectionMatches, "SectionId")
}
