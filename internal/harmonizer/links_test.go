// Lmsync - LMS Extraction and Identity Harmonization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/lmsync

package harmonizer

import (
	"context"
	"database/sql"
	"testing"
)

func TestHarmonizeUsers(t *testing.T) {
	tests := []struct {
		name     string
		setup    func(f *fixture)
		user     string
		wantLink string // "" means NULL
	}{
		{
			name: "no students",
			setup: func(f *fixture) {
				f.lmsUser("u-1", testEmail, false)
			},
			user: "u-1",
		},
		{
			name: "email match with duplicates",
			setup: func(f *fixture) {
				f.lmsUser("u-1", "e@x.com", false)
				f.student("st-1", "1001", "a@x.com", "e@x.com", "b@x.com")
			},
			user:     "u-1",
			wantLink: "st-1",
		},
		{
			name: "case and whitespace insensitive",
			setup: func(f *fixture) {
				f.lmsUser("u-1", "  E@X.com ", false)
				f.student("st-1", "1001", "e@x.COM")
			},
			user:     "u-1",
			wantLink: "st-1",
		},
		{
			name: "deleted user ignored",
			setup: func(f *fixture) {
				f.lmsUser("u-1", testEmail, true)
				f.student("st-1", "1001", testEmail)
			},
			user: "u-1",
		},
		{
			name: "blank email never matches",
			setup: func(f *fixture) {
				f.lmsUser("u-1", "", false)
				f.student("st-1", "1001", "")
			},
			user: "u-1",
		},
		{
			name: "deleted student ignored",
			setup: func(f *fixture) {
				f.lmsUser("u-1", testEmail, false)
				f.student("st-1", "1001", testEmail)
				f.exec(`UPDATE edfi.Student SET DeletedAt = ? WHERE Id = 'st-1'`, f.now)
			},
			user: "u-1",
		},
		{
			name: "deleted address ignored",
			setup: func(f *fixture) {
				f.lmsUser("u-1", testEmail, false)
				f.student("st-1", "1001", testEmail)
				f.exec(`UPDATE edfi.StudentElectronicMail SET DeletedAt = ?`, f.now)
			},
			user: "u-1",
		},
		{
			name: "ambiguous match takes lowest unique id",
			setup: func(f *fixture) {
				f.lmsUser("u-1", testEmail, false)
				f.student("st-b", "2002", testEmail)
				f.student("st-a", "1001", testEmail)
			},
			user:     "u-1",
			wantLink: "st-a",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, h := newFixture(t)
			tt.setup(f)

			if _, err := h.HarmonizeUsers(context.Background()); err != nil {
				t.Fatalf("HarmonizeUsers() error = %v", err)
			}
			got := f.userLink(tt.user)
			want := sql.NullString{String: tt.wantLink, Valid: tt.wantLink != ""}
			if got != want {
				t.Errorf("EdFiStudentId = %+v, want %+v", got, want)
			}
		})
	}
}

func TestHarmonizeUsers_OneMatchOneNonMatch(t *testing.T) {
	f, h := newFixture(t)
	f.lmsUser("u-1", testEmail, false)
	f.lmsUser("u-2", "nobody@email.email", false)
	f.student("st-1", "1001", testEmail)

	step, err := h.HarmonizeUsers(context.Background())
	if err != nil {
		t.Fatalf("HarmonizeUsers() error = %v", err)
	}
	if step.Linked != 1 || step.Unlinked != 0 {
		t.Errorf("step = %+v, want 1 linked", step)
	}
	if !f.userLink("u-1").Valid {
		t.Error("u-1 not linked")
	}
	if f.userLink("u-2").Valid {
		t.Error("u-2 linked without a match")
	}
}

func TestHarmonizeUsers_UnlinksAfterDeletion(t *testing.T) {
	f, h := newFixture(t)
	ctx := context.Background()
	f.lmsUser("u-1", testEmail, false)
	f.student("st-1", "1001", testEmail)

	if _, err := h.HarmonizeUsers(ctx); err != nil {
		t.Fatalf("HarmonizeUsers() error = %v", err)
	}
	f.exec(`UPDATE lms.LMSUser SET DeletedAt = ?`, f.now)

	step, err := h.HarmonizeUsers(ctx)
	if err != nil {
		t.Fatalf("HarmonizeUsers() error = %v", err)
	}
	if step.Unlinked != 1 {
		t.Errorf("Unlinked = %d, want 1", step.Unlinked)
	}
	if f.userLink("u-1").Valid {
		t.Error("deleted user still linked")
	}
}

func TestHarmonizeUsers_RelinksOnEmailChange(t *testing.T) {
	f, h := newFixture(t)
	ctx := context.Background()
	f.lmsUser("u-1", "one@x.com", false)
	f.student("st-1", "1001", "one@x.com")
	f.student("st-2", "1002", "two@x.com")

	if _, err := h.HarmonizeUsers(ctx); err != nil {
		t.Fatalf("HarmonizeUsers() error = %v", err)
	}
	f.exec(`UPDATE lms.LMSUser SET EmailAddress = 'two@x.com'`)

	step, err := h.HarmonizeUsers(ctx)
	if err != nil {
		t.Fatalf("HarmonizeUsers() error = %v", err)
	}
	if step.Linked != 1 || step.Unlinked != 0 {
		t.Errorf("step = %+v, want relink without unlink", step)
	}
	if got := f.userLink("u-1"); got.String != "st-2" {
		t.Errorf("EdFiStudentId = %q, want st-2", got.String)
	}
}

func TestHarmonizeSections(t *testing.T) {
	f, h := newFixture(t)
	ctx := context.Background()
	f.lmsSection("sec-1", "sis-1", false)
	f.lmsSection("sec-2", "sis-missing", false)
	f.lmsSection("sec-3", "sis-3", true)
	f.edfiSection("es-1", "sis-1")
	f.edfiSection("es-3", "sis-3")

	step, err := h.HarmonizeSections(ctx)
	if err != nil {
		t.Fatalf("HarmonizeSections() error = %v", err)
	}
	if step.Linked != 1 {
		t.Errorf("Linked = %d, want 1", step.Linked)
	}

	links := map[string]sql.NullString{}
	rows, err := f.db.QueryContext(ctx, `SELECT SourceSystemIdentifier, EdFiSectionId FROM lms.LMSSection`)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	defer rows.Close()
	for rows.Next() {
		var id string
		var link sql.NullString
		if err := rows.Scan(&id, &link); err != nil {
			t.Fatalf("scan: %v", err)
		}
		links[id] = link
	}

	if links["sec-1"].String != "es-1" {
		t.Errorf("sec-1 link = %+v, want es-1", links["sec-1"])
	}
	if links["sec-2"].Valid {
		t.Error("sec-2 linked without a match")
	}
	if links["sec-3"].Valid {
		t.Error("deleted section linked")
	}
}
