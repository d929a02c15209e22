// Lmsync - LMS Extraction and Identity Harmonization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/lmsync

package resourcesync

import (
	"testing"
	"time"

	"github.com/tomtom215/lmsync/internal/models"
)

func mustHash(t *testing.T, rec models.Record, res *models.Resource) string {
	t.Helper()
	h, err := Hash(rec, res)
	if err != nil {
		t.Fatalf("Hash() error = %v", err)
	}
	return h
}

func TestHash_Stability(t *testing.T) {
	due := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	base := models.Record{
		"SourceSystemIdentifier":           "a-1",
		"SourceSystem":                     models.SourceCanvas,
		"LMSSectionSourceSystemIdentifier": "s-1",
		"Title":                            "Essay",
		"DueDateTime":                      due,
		"MaxPoints":                        100.0,
	}
	want := mustHash(t, base, models.Assignment)

	if len(want) != 64 {
		t.Fatalf("hash length = %d, want 64", len(want))
	}

	tests := []struct {
		name  string
		edit  func(models.Record)
		equal bool
	}{
		{"identical copy", func(models.Record) {}, true},
		{"different identity", func(r models.Record) { r["SourceSystemIdentifier"] = "a-2" }, true},
		{"different source system", func(r models.Record) { r["SourceSystem"] = models.SourceSchoology }, true},
		{"missing equals nil", func(r models.Record) { r["AssignmentDescription"] = nil }, true},
		{"numeric string", func(r models.Record) { r["MaxPoints"] = "100" }, true},
		{"timestamp string", func(r models.Record) { r["DueDateTime"] = "2026-03-01T12:00:00Z" }, true},
		{"offset timestamp", func(r models.Record) { r["DueDateTime"] = "2026-03-01T07:00:00-05:00" }, true},
		{"unknown column ignored", func(r models.Record) { r["Extra"] = "x" }, true},
		{"writer columns ignored", func(r models.Record) { r[models.CreateDateColumn] = time.Now() }, true},
		{"title changed", func(r models.Record) { r["Title"] = "Essay 2" }, false},
		{"points changed", func(r models.Record) { r["MaxPoints"] = 99.5 }, false},
		{"due date changed", func(r models.Record) { r["DueDateTime"] = due.Add(time.Second) }, false},
		{"soft deleted", func(r models.Record) { r[models.DeletedAtColumn] = due }, false},
		{"empty string differs from nil", func(r models.Record) { r["AssignmentDescription"] = "" }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := base.Clone()
			tt.edit(rec)
			got := mustHash(t, rec, models.Assignment)
			if (got == want) != tt.equal {
				t.Errorf("hash equal = %v, want %v", got == want, tt.equal)
			}
		})
	}
}

func TestHash_VolatileColumnsExcluded(t *testing.T) {
	res := testResource()
	a := models.Record{"Code": "x", "Label": "one", "FetchedAt": "2026-01-01T00:00:00Z"}
	b := models.Record{"Code": "x", "Label": "one", "FetchedAt": "2026-06-01T00:00:00Z"}
	if mustHash(t, a, res) != mustHash(t, b, res) {
		t.Error("volatile column changed the hash")
	}
}

func TestHash_InvalidValue(t *testing.T) {
	_, err := Hash(models.Record{"MaxPoints": "lots"}, models.Assignment)
	if err == nil {
		t.Fatal("Hash() expected error for unparsable number")
	}
}
