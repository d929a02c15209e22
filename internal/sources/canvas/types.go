// Lmsync - LMS Extraction and Identity Harmonization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/lmsync

package canvas

import "github.com/tomtom215/lmsync/internal/sources"

type section struct {
	ID           sources.ID `json:"id"`
	Name         string     `json:"name"`
	SISSectionID string     `json:"sis_section_id"`
	CourseID     sources.ID `json:"course_id"`
	StartAt      string     `json:"start_at"`
	EndAt        string     `json:"end_at"`
	CreatedAt    string     `json:"created_at"`
}

type user struct {
	ID        sources.ID `json:"id"`
	Name      string     `json:"name"`
	SISUserID string     `json:"sis_user_id"`
	LoginID   string     `json:"login_id"`
	Email     string     `json:"email"`
	CreatedAt string     `json:"created_at"`
}

type assignment struct {
	ID              sources.ID `json:"id"`
	Name            string     `json:"name"`
	Description     string     `json:"description"`
	CreatedAt       string     `json:"created_at"`
	UpdatedAt       string     `json:"updated_at"`
	DueAt           string     `json:"due_at"`
	UnlockAt        string     `json:"unlock_at"`
	LockAt          string     `json:"lock_at"`
	PointsPossible  *float64   `json:"points_possible"`
	SubmissionTypes []string   `json:"submission_types"`
}

func (a assignment) category() any {
	if len(a.SubmissionTypes) == 0 {
		return nil
	}
	return a.SubmissionTypes[0]
}

type submission struct {
	ID            sources.ID `json:"id"`
	AssignmentID  sources.ID `json:"assignment_id"`
	UserID        sources.ID `json:"user_id"`
	WorkflowState string     `json:"workflow_state"`
	SubmittedAt   string     `json:"submitted_at"`
	Score         *float64   `json:"score"`
	Grade         *string    `json:"grade"`
	Late          bool       `json:"late"`
	Missing       bool       `json:"missing"`
}

func (s submission) status() string {
	switch {
	case s.Missing:
		return "missing"
	case s.Late:
		return "late"
	default:
		return s.WorkflowState
	}
}
