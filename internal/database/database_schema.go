// Lmsync - LMS Extraction and Identity Harmonization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/lmsync

/*
database_schema.go - Database Schema

Schemas:
  - lms: LMS snapshot tables written by the sync writer (sections, users,
    assignments, submissions). Link columns EdFiSectionId/EdFiStudentId are
    owned by the harmonizer.
  - edfi: SIS snapshot tables (students, student e-mail addresses, sections)
    plus the shared edfi.Descriptor table.
  - lmsx: descriptor subtype tables and the derived Assignment and
    AssignmentSubmission tables maintained by the harmonizer.
  - sync_staging: per-resource staging tables, created and dropped by the
    sync writer.

Foreign keys are not declared; the harmonizer enforces the match chain.
*/

//nolint:staticcheck // File documentation, not package doc
package database

import (
	"context"
	"time"

	"github.com/tomtom215/lmsync/internal/models"
)

// schemaContext returns a context with timeout for schema operations
func schemaContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 60*time.Second)
}

// Schemas created by the first migration.
var Schemas = []string{"lms", "edfi", "lmsx", models.StagingSchema}

func schemaStatements() []string {
	stmts := make([]string, 0, len(Schemas))
	for _, s := range Schemas {
		stmts = append(stmts, "CREATE SCHEMA IF NOT EXISTS "+s)
	}
	return stmts
}

func snapshotTableStatements() []string {
	catalog := models.Catalog()
	stmts := make([]string, 0, len(catalog))
	for _, r := range catalog {
		stmts = append(stmts, r.CreateTableSQL())
	}
	return stmts
}

func descriptorTableStatements() []string {
	return []string{
		`CREATE SEQUENCE IF NOT EXISTS edfi.DescriptorIdSeq START 1`,
		`CREATE TABLE IF NOT EXISTS edfi.Descriptor (
			DescriptorId INTEGER PRIMARY KEY DEFAULT nextval('edfi.DescriptorIdSeq'),
			Namespace VARCHAR NOT NULL,
			CodeValue VARCHAR NOT NULL,
			ShortDescription VARCHAR NOT NULL,
			UNIQUE (Namespace, CodeValue)
		)`,
		`CREATE TABLE IF NOT EXISTS lmsx.AssignmentCategoryDescriptor (
			AssignmentCategoryDescriptorId INTEGER PRIMARY KEY
		)`,
		`CREATE TABLE IF NOT EXISTS lmsx.LMSSourceSystemDescriptor (
			LMSSourceSystemDescriptorId INTEGER PRIMARY KEY
		)`,
		`CREATE TABLE IF NOT EXISTS lmsx.SubmissionStatusDescriptor (
			SubmissionStatusDescriptorId INTEGER PRIMARY KEY
		)`,
	}
}

func derivedTableStatements() []string {
	return []string{
		`CREATE TABLE IF NOT EXISTS lmsx.Assignment (
			AssignmentIdentifier VARCHAR NOT NULL,
			Namespace VARCHAR NOT NULL,
			SourceSystem VARCHAR NOT NULL,
			LMSSourceSystemDescriptorId INTEGER NOT NULL,
			AssignmentCategoryDescriptorId INTEGER NOT NULL,
			SectionId VARCHAR NOT NULL,
			SectionIdentifier VARCHAR,
			LocalCourseCode VARCHAR,
			SchoolId BIGINT,
			SchoolYear BIGINT,
			SessionName VARCHAR,
			Title VARCHAR,
			AssignmentDescription VARCHAR,
			StartDateTime TIMESTAMP,
			EndDateTime TIMESTAMP,
			DueDateTime TIMESTAMP,
			MaxPoints DOUBLE,
			CreateDate TIMESTAMP NOT NULL,
			LastModifiedDate TIMESTAMP NOT NULL,
			PRIMARY KEY (AssignmentIdentifier, Namespace)
		)`,
		`CREATE TABLE IF NOT EXISTS lmsx.AssignmentSubmission (
			AssignmentSubmissionIdentifier VARCHAR NOT NULL,
			Namespace VARCHAR NOT NULL,
			AssignmentIdentifier VARCHAR NOT NULL,
			StudentId VARCHAR NOT NULL,
			StudentUniqueId VARCHAR,
			SubmissionStatusDescriptorId INTEGER NOT NULL,
			SubmissionDateTime TIMESTAMP,
			EarnedPoints DOUBLE,
			Grade VARCHAR,
			CreateDate TIMESTAMP NOT NULL,
			LastModifiedDate TIMESTAMP NOT NULL,
			PRIMARY KEY (AssignmentSubmissionIdentifier, Namespace)
		)`,
	}
}
