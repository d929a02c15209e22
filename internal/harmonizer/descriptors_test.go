// Lmsync - LMS Extraction and Identity Harmonization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/lmsync

package harmonizer

import (
	"context"
	"testing"

	"github.com/tomtom215/lmsync/internal/models"
)

// bareChain inserts a full match chain without any descriptors.
func (f *fixture) bareChain() {
	f.lmsSection("sec-1", "sis_section_id", false)
	f.edfiSection("es-1", "sis_section_id")
	f.assignment("a-1", "sec-1", "A", false)
	f.lmsUser("u-1", testEmail, false)
	f.student("st-1", "1001", testEmail)
	f.submission("sub-1", "a-1", "u-1", "0", false)
}

// testCodes is the code table for the fixture's source system.
var testCodes = map[string]DescriptorCodes{
	testSource: {Categories: []string{testCategory, "other"}, Statuses: []string{testStatus}},
}

func TestSeedDescriptors(t *testing.T) {
	f, h := newFixture(t)
	h.codes = testCodes
	ctx := context.Background()
	f.bareChain()

	step, err := h.SeedDescriptors(ctx, []string{testSource, "Unused"})
	if err != nil {
		t.Fatalf("SeedDescriptors() error = %v", err)
	}
	if step.Inserted == 0 {
		t.Fatal("SeedDescriptors() inserted nothing")
	}

	checks := []struct {
		name  string
		query string
		args  []any
		want  int
	}{
		{"source systems", `SELECT COUNT(*) FROM edfi.Descriptor d JOIN lmsx.LMSSourceSystemDescriptor x
			ON x.LMSSourceSystemDescriptorId = d.DescriptorId`, nil, 2},
		{"category", `SELECT COUNT(*) FROM edfi.Descriptor d JOIN lmsx.AssignmentCategoryDescriptor x
			ON x.AssignmentCategoryDescriptorId = d.DescriptorId WHERE d.Namespace = ? AND d.CodeValue = ?`,
			[]any{CategoryDescriptorNamespacePrefix + testSource, testCategory}, 1},
		{"status", `SELECT COUNT(*) FROM edfi.Descriptor d JOIN lmsx.SubmissionStatusDescriptor x
			ON x.SubmissionStatusDescriptorId = d.DescriptorId WHERE d.Namespace = ? AND d.CodeValue = ?`,
			[]any{StatusDescriptorNamespacePrefix + testSource, testStatus}, 1},
		{"whole category table", `SELECT COUNT(*) FROM lmsx.AssignmentCategoryDescriptor`, nil, 2},
		{"no values for unused source", `SELECT COUNT(*) FROM edfi.Descriptor WHERE Namespace LIKE '%/Unused'`, nil, 0},
	}
	for _, c := range checks {
		t.Run(c.name, func(t *testing.T) {
			if n := f.count(c.query, c.args...); n != c.want {
				t.Errorf("count = %d, want %d", n, c.want)
			}
		})
	}

	again, err := h.SeedDescriptors(ctx, []string{testSource, "Unused"})
	if err != nil {
		t.Fatalf("second SeedDescriptors() error = %v", err)
	}
	if again.Inserted != 0 {
		t.Errorf("second SeedDescriptors() inserted %d rows, want 0", again.Inserted)
	}
}

func TestRun_WithDescriptorSeeding(t *testing.T) {
	f, _ := newFixture(t)
	f.bareChain()

	h := New(f.db, Options{SeedDescriptors: true, SourceSystems: []string{testSource}, Codes: testCodes})
	report := runPass(t, h)

	if report.Steps[0].Step != StepDescriptors {
		t.Errorf("first step = %s, want %s", report.Steps[0].Step, StepDescriptors)
	}
	if n := f.count(`SELECT COUNT(*) FROM lmsx.AssignmentSubmission`); n != 1 {
		t.Errorf("derived submissions = %d, want 1", n)
	}
}

func TestRun_WithoutDescriptorsDerivesNothing(t *testing.T) {
	f, h := newFixture(t)
	f.bareChain()

	report := runPass(t, h)
	if got := report.Step(StepUsers).Linked; got != 1 {
		t.Errorf("users linked = %d, want 1", got)
	}
	if n := f.count(`SELECT COUNT(*) FROM lmsx.Assignment`); n != 0 {
		t.Errorf("lmsx.Assignment rows = %d, want 0", n)
	}
}

func TestRun_SeedingSkipsUnknownCodes(t *testing.T) {
	f, _ := newFixture(t)
	f.bareChain()
	f.exec(`UPDATE lms.Assignment SET AssignmentCategory = 'made-up-category'`)
	f.exec(`UPDATE lms.AssignmentSubmission SET SubmissionStatus = 'made-up-status'`)

	h := New(f.db, Options{SeedDescriptors: true, SourceSystems: []string{testSource}, Codes: testCodes})
	report := runPass(t, h)

	if got := report.Step(StepUsers).Linked; got != 1 {
		t.Errorf("users linked = %d, want 1", got)
	}
	checks := []struct {
		name  string
		query string
	}{
		{"assignments", `SELECT COUNT(*) FROM lmsx.Assignment`},
		{"submissions", `SELECT COUNT(*) FROM lmsx.AssignmentSubmission`},
		{"category descriptor", `SELECT COUNT(*) FROM edfi.Descriptor WHERE CodeValue = 'made-up-category'`},
		{"status descriptor", `SELECT COUNT(*) FROM edfi.Descriptor WHERE CodeValue = 'made-up-status'`},
	}
	for _, c := range checks {
		if n := f.count(c.query); n != 0 {
			t.Errorf("%s = %d, want 0", c.name, n)
		}
	}
}

func TestNew_DefaultsToStandardCodes(t *testing.T) {
	f, _ := newFixture(t)
	h := New(f.db, Options{})
	if len(h.codes) != len(StandardDescriptorCodes) {
		t.Fatalf("codes has %d source systems, want %d", len(h.codes), len(StandardDescriptorCodes))
	}

	step, err := h.SeedDescriptors(context.Background(), []string{models.SourceCanvas})
	if err != nil {
		t.Fatalf("SeedDescriptors() error = %v", err)
	}
	canvas := StandardDescriptorCodes[models.SourceCanvas]
	// Each code adds a descriptor and its subtype row.
	want := int64(2 * (1 + len(canvas.Categories) + len(canvas.Statuses)))
	if step.Inserted != want {
		t.Errorf("Inserted = %d, want %d", step.Inserted, want)
	}
	if n := f.count(`SELECT COUNT(*) FROM edfi.Descriptor WHERE Namespace = ? AND CodeValue = 'online_upload'`,
		CategoryDescriptorNamespacePrefix+models.SourceCanvas); n != 1 {
		t.Errorf("online_upload descriptor count = %d, want 1", n)
	}
}
