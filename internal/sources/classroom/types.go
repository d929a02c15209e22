// Lmsync - LMS Extraction and Identity Harmonization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/lmsync

package classroom

import (
	"strings"
	"time"

	"github.com/tomtom215/lmsync/internal/sources"
)

// courseWorkDeleted is the coursework state of a deleted assignment.
const courseWorkDeleted = "DELETED"

type course struct {
	ID                 sources.ID `json:"id"`
	Name               string     `json:"name"`
	Section            string     `json:"section"`
	DescriptionHeading string     `json:"descriptionHeading"`
	Description        string     `json:"description"`
	CourseState        string     `json:"courseState"`
	CreationTime       string     `json:"creationTime"`
	UpdateTime         string     `json:"updateTime"`
}

func (c course) status() string {
	if c.CourseState == "" {
		return "unknown"
	}
	return strings.ToLower(c.CourseState)
}

type student struct {
	CourseID sources.ID `json:"courseId"`
	UserID   sources.ID `json:"userId"`
	Profile  struct {
		ID   sources.ID `json:"id"`
		Name struct {
			FullName string `json:"fullName"`
		} `json:"name"`
		EmailAddress string `json:"emailAddress"`
	} `json:"profile"`
}

type date struct {
	Year  int `json:"year"`
	Month int `json:"month"`
	Day   int `json:"day"`
}

type timeOfDay struct {
	Hours   int `json:"hours"`
	Minutes int `json:"minutes"`
}

type courseWork struct {
	ID           sources.ID `json:"id"`
	CourseID     sources.ID `json:"courseId"`
	Title        string     `json:"title"`
	Description  string     `json:"description"`
	State        string     `json:"state"`
	WorkType     string     `json:"workType"`
	MaxPoints    *float64   `json:"maxPoints"`
	DueDate      *date      `json:"dueDate"`
	DueTime      *timeOfDay `json:"dueTime"`
	CreationTime string     `json:"creationTime"`
	UpdateTime   string     `json:"updateTime"`
}

// due combines dueDate and dueTime. Both are UTC; a missing time is midnight.
func (w courseWork) due() any {
	if w.DueDate == nil || w.DueDate.Year == 0 {
		return nil
	}
	var h, m int
	if w.DueTime != nil {
		h, m = w.DueTime.Hours, w.DueTime.Minutes
	}
	return time.Date(w.DueDate.Year, time.Month(w.DueDate.Month), w.DueDate.Day, h, m, 0, 0, time.UTC)
}

type studentSubmission struct {
	ID            sources.ID `json:"id"`
	CourseID      sources.ID `json:"courseId"`
	CourseWorkID  sources.ID `json:"courseWorkId"`
	UserID        sources.ID `json:"userId"`
	State         string     `json:"state"`
	Late          bool       `json:"late"`
	AssignedGrade *float64   `json:"assignedGrade"`
	CreationTime  string     `json:"creationTime"`
	UpdateTime    string     `json:"updateTime"`
}

func (s studentSubmission) status() string {
	if s.Late {
		return "LATE"
	}
	return s.State
}
