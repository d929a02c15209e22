// Lmsync - LMS Extraction and Identity Harmonization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/lmsync

package schoology

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"regexp"
	"testing"
	"time"

	"github.com/tomtom215/lmsync/internal/config"
	"github.com/tomtom215/lmsync/internal/fetch"
	"github.com/tomtom215/lmsync/internal/models"
	"github.com/tomtom215/lmsync/internal/sources"
)

func TestOAuthHeader(t *testing.T) {
	a := newOAuthAuthorizer("my key", "s&cret")
	a.now = func() time.Time { return time.Unix(1700000000, 0) }
	a.nonce = func() string { return "12345678" }

	want := `OAuth realm="Schoology API",oauth_consumer_key="my key",oauth_token="",` +
		`oauth_nonce="12345678",oauth_timestamp="1700000000",oauth_signature_method="PLAINTEXT",` +
		`oauth_version="1.0",oauth_signature="s%26cret%26"`
	if got := a.header(); got != want {
		t.Errorf("header =\n%s\nwant\n%s", got, want)
	}
}

func TestRandomNonce(t *testing.T) {
	re := regexp.MustCompile(`^[0-9]{8}$`)
	for i := 0; i < 20; i++ {
		if n := randomNonce(); !re.MatchString(n) {
			t.Fatalf("nonce %q is not 8 digits", n)
		}
	}
}

func testPolicy() fetch.RetryPolicy {
	return fetch.RetryPolicy{MaxAttempts: 2, Window: time.Second, BaseDelay: time.Millisecond}
}

func newTestSource(t *testing.T, handler http.Handler, sectionIDs ...string) *Source {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	s, err := New(config.SchoologyConfig{
		Enabled:    true,
		Key:        "key",
		Secret:     "secret",
		BaseURL:    srv.URL + "/v1/",
		SectionIDs: sectionIDs,
	}, config.SyncConfig{RequestTimeout: 5 * time.Second, RateBurst: 1}, testPolicy())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return s
}

var authPattern = regexp.MustCompile(`^OAuth realm="Schoology API",oauth_consumer_key="key",oauth_token="",` +
	`oauth_nonce="[0-9]{8}",oauth_timestamp="[0-9]+",oauth_signature_method="PLAINTEXT",oauth_version="1.0",` +
	`oauth_signature="secret%26"$`)

func TestSource_UsersFollowsLinksNext(t *testing.T) {
	var srvURL string
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/users", func(w http.ResponseWriter, r *http.Request) {
		if !authPattern.MatchString(r.Header.Get("Authorization")) {
			t.Errorf("Authorization = %q", r.Header.Get("Authorization"))
		}
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Query().Get("start") {
		case "0":
			fmt.Fprintf(w, `{"user":[{"id":1,"school_uid":"S1","username":"ada","name_first":"Ada","name_last":"Lovelace","primary_email":"ada@example.edu","role_id":"student"}],
				"links":{"self":"x","next":"%s/v1/users?start=1&limit=1"}}`, srvURL)
		case "1":
			fmt.Fprint(w, `{"user":[{"id":"2","name_display":"Grace H","primary_email":"","role_id":7}],"links":{"self":"y"}}`)
		default:
			t.Errorf("unexpected start %q", r.URL.Query().Get("start"))
		}
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()
	srvURL = srv.URL

	s, err := New(config.SchoologyConfig{Key: "key", Secret: "secret", BaseURL: srv.URL + "/v1"},
		config.SyncConfig{RequestTimeout: 5 * time.Second, RateBurst: 1}, testPolicy())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	records, err := s.Fetch(context.Background(), models.LMSUser)
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("len(records) = %d, want 2", len(records))
	}

	first := records[0]
	if first["SourceSystemIdentifier"] != "1" || first["SourceSystem"] != models.SourceSchoology {
		t.Errorf("identity = %v/%v", first["SourceSystemIdentifier"], first["SourceSystem"])
	}
	if first["Name"] != "Ada Lovelace" || first["EmailAddress"] != "ada@example.edu" || first["SISUserIdentifier"] != "S1" {
		t.Errorf("first = %+v", first)
	}
	second := records[1]
	if second["Name"] != "Grace H" || second["EmailAddress"] != nil || second["UserRole"] != "7" {
		t.Errorf("second = %+v", second)
	}
}

func TestSource_SectionsAndAssignments(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/sections/100", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"id":"100","course_title":"Algebra","section_title":"P1","section_school_code":"ALG-P1","active":1}`)
	})
	mux.HandleFunc("/v1/sections/100/assignments", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"assignment":[{"id":555,"title":"Homework 1","due":"2026-03-01 23:59:00","max_points":"10","type":"assignment","last_updated":"1700000000"}]}`)
	})
	s := newTestSource(t, mux, "100")
	ctx := context.Background()

	sections, err := s.Fetch(ctx, models.LMSSection)
	if err != nil {
		t.Fatalf("Fetch(sections) error = %v", err)
	}
	if len(sections) != 1 {
		t.Fatalf("len(sections) = %d", len(sections))
	}
	sec := sections[0]
	if sec["SISSectionIdentifier"] != "ALG-P1" || sec["Title"] != "Algebra: P1" || sec["LMSSectionStatus"] != "active" {
		t.Errorf("section = %+v", sec)
	}

	assignments, err := s.Fetch(ctx, models.Assignment)
	if err != nil {
		t.Fatalf("Fetch(assignments) error = %v", err)
	}
	if len(assignments) != 1 {
		t.Fatalf("len(assignments) = %d", len(assignments))
	}
	a := assignments[0]
	if a["SourceSystemIdentifier"] != "555" || a["LMSSectionSourceSystemIdentifier"] != "100" ||
		a["AssignmentCategory"] != "assignment" || a["MaxPoints"] != "10" {
		t.Errorf("assignment = %+v", a)
	}
	if got, ok := a["SourceLastModifiedDate"].(time.Time); !ok || got.Unix() != 1700000000 {
		t.Errorf("SourceLastModifiedDate = %v", a["SourceLastModifiedDate"])
	}

	// Records must be accepted by the catalog column types.
	for _, col := range models.Assignment.Columns {
		if _, err := col.Normalize(a[col.Name]); err != nil {
			t.Errorf("Normalize(%s) error = %v", col.Name, err)
		}
	}
}

func TestSource_Submissions(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/sections/100/submissions", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"revision":[
			{"revision_id":1,"uid":9,"grade_item_id":555,"created":1700000000,"late":0,"draft":1},
			{"revision_id":2,"uid":9,"grade_item_id":555,"created":1700000100,"late":1,"draft":0}
		]}`)
	})
	s := newTestSource(t, mux, "100")

	records, err := s.Fetch(context.Background(), models.AssignmentSubmission)
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("len(records) = %d, want 2", len(records))
	}
	// Both revisions share an identity; the writer keeps the last one.
	for _, r := range records {
		if r["SourceSystemIdentifier"] != "555-9" {
			t.Errorf("identifier = %v, want 555-9", r["SourceSystemIdentifier"])
		}
	}
	if records[0]["SubmissionStatus"] != "draft" || records[1]["SubmissionStatus"] != "late" {
		t.Errorf("statuses = %v, %v", records[0]["SubmissionStatus"], records[1]["SubmissionStatus"])
	}
}

func TestSource_MissingItemFieldIsEmpty(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/sections/100/assignments", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"links":{}}`)
	})
	s := newTestSource(t, mux, "100")

	records, err := s.Fetch(context.Background(), models.Assignment)
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if len(records) != 0 {
		t.Errorf("len(records) = %d, want 0", len(records))
	}
}

func TestSource_ErrorPropagates(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/users", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	})
	s := newTestSource(t, mux)

	_, err := s.Fetch(context.Background(), models.LMSUser)
	if !errors.Is(err, fetch.ErrRetriesExhausted) {
		t.Errorf("Fetch() error = %v, want ErrRetriesExhausted", err)
	}
	if !fetch.IsStatus(err, http.StatusInternalServerError) {
		t.Errorf("Fetch() error does not carry status 500: %v", err)
	}
}

func TestSource_Unsupported(t *testing.T) {
	s := newTestSource(t, http.NotFoundHandler())
	if _, err := s.Fetch(context.Background(), models.EdFiStudent); !errors.Is(err, sources.ErrUnsupportedResource) {
		t.Errorf("Fetch() error = %v", err)
	}
}
