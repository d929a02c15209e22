// Lmsync - LMS Extraction and Identity Harmonization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/lmsync

package models

import "time"

// Run status values.
const (
	RunStatusRunning = "running"
	RunStatusSuccess = "success"
	RunStatusPartial = "partial" // at least one source or the harmonizer failed
	RunStatusFailed  = "failed"  // nothing succeeded
)

// Run trigger values.
const (
	TriggerStartup   = "startup"
	TriggerSchedule  = "schedule"
	TriggerManual    = "manual"
	TriggerOnce      = "once"
	TriggerHarmonize = "harmonize-only"
)

// ResourceResult is the outcome of syncing one resource from one source.
type ResourceResult struct {
	SourceSystem string    `json:"source_system"`
	Resource     string    `json:"resource"`
	Fetched      int       `json:"fetched"`
	Inserted     int       `json:"inserted"`
	Updated      int       `json:"updated"`
	Unchanged    int       `json:"unchanged"`
	SoftDeleted  int       `json:"soft_deleted"`
	DurationMS   int64     `json:"duration_ms"`
	Error        string    `json:"error,omitempty"`
	Skipped      bool      `json:"skipped,omitempty"`
	FinishedAt   time.Time `json:"finished_at"`
}

// HarmonizeStep holds the row counts of one harmonizer step.
type HarmonizeStep struct {
	Step     string `json:"step"`
	Linked   int64  `json:"linked,omitempty"`
	Unlinked int64  `json:"unlinked,omitempty"`
	Inserted int64  `json:"inserted,omitempty"`
	Updated  int64  `json:"updated,omitempty"`
	Deleted  int64  `json:"deleted,omitempty"`
}

// HarmonizeReport is the result of one harmonization pass.
type HarmonizeReport struct {
	Steps      []HarmonizeStep `json:"steps"`
	DurationMS int64           `json:"duration_ms"`
	Error      string          `json:"error,omitempty"`
}

// Step returns the named step, or a zero step when it did not run.
func (r *HarmonizeReport) Step(name string) HarmonizeStep {
	if r == nil {
		return HarmonizeStep{Step: name}
	}
	for _, s := range r.Steps {
		if s.Step == name {
			return s
		}
	}
	return HarmonizeStep{Step: name}
}

// RunSummary is the persisted record of one sync run.
type RunSummary struct {
	ID         string           `json:"id"`
	Trigger    string           `json:"trigger"`
	Status     string           `json:"status"`
	StartedAt  time.Time        `json:"started_at"`
	FinishedAt time.Time        `json:"finished_at,omitempty"`
	Resources  []ResourceResult `json:"resources"`
	Harmonize  *HarmonizeReport `json:"harmonize,omitempty"`
	Errors     []string         `json:"errors,omitempty"`
}

// Failed reports whether any resource or the harmonizer recorded an error.
func (s *RunSummary) Failed() bool {
	return len(s.Errors) > 0
}
