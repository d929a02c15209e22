// Lmsync - LMS Extraction and Identity Harmonization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/lmsync

package schoology

import "github.com/tomtom215/lmsync/internal/sources"

type section struct {
	ID                sources.ID `json:"id"`
	CourseTitle       string     `json:"course_title"`
	SectionTitle      string     `json:"section_title"`
	SectionSchoolCode string     `json:"section_school_code"`
	Description       string     `json:"description"`
	Active            sources.ID `json:"active"`
}

type user struct {
	ID           sources.ID `json:"id"`
	SchoolUID    string     `json:"school_uid"`
	Username     string     `json:"username"`
	NameFirst    string     `json:"name_first"`
	NameLast     string     `json:"name_last"`
	NameDisplay  string     `json:"name_display"`
	PrimaryEmail string     `json:"primary_email"`
	RoleID       sources.ID `json:"role_id"`
}

type assignment struct {
	ID          sources.ID `json:"id"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Due         string     `json:"due"`
	MaxPoints   sources.ID `json:"max_points"`
	Type        string     `json:"type"`
	LastUpdated sources.ID `json:"last_updated"`
}

// revision is one submission revision. Only the latest revision of an
// assignment and user pair is kept.
type revision struct {
	RevisionID  sources.ID `json:"revision_id"`
	UID         sources.ID `json:"uid"`
	GradeItemID sources.ID `json:"grade_item_id"`
	Created     int64      `json:"created"`
	Late        int        `json:"late"`
	Draft       int        `json:"draft"`
}

func (r revision) status() string {
	switch {
	case r.Draft == 1:
		return "draft"
	case r.Late == 1:
		return "late"
	default:
		return "on-time"
	}
}
