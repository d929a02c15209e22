// Lmsync - LMS Extraction and Identity Harmonization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/lmsync

// Package classroom extracts courses, students, coursework and student
// submissions from the Google Classroom API. Collections page with
// nextPageToken.
//
// Courses map to sections. Coursework identifiers are
// "<course id>-<coursework id>" and submission identifiers
// "<course id>-<coursework id>-<submission id>".
package classroom

import (
	"context"
	"fmt"
	"net/url"
	"strconv"

	"github.com/goccy/go-json"

	"github.com/tomtom215/lmsync/internal/config"
	"github.com/tomtom215/lmsync/internal/fetch"
	"github.com/tomtom215/lmsync/internal/models"
	"github.com/tomtom215/lmsync/internal/sources"
)

// DefaultBaseURL is the public Classroom API root.
const DefaultBaseURL = "https://classroom.googleapis.com/v1/"

const pageSize = 100

// Source is the Google Classroom extractor.
type Source struct {
	client    *fetch.Client
	policy    fetch.RetryPolicy
	courseIDs []string
}

var (
	_ sources.Source          = (*Source)(nil)
	_ sources.BreakerReporter = (*Source)(nil)
)

// New creates a Classroom source. With no configured course IDs every
// course visible to the token is extracted.
func New(cfg config.ClassroomConfig, syncCfg config.SyncConfig, policy fetch.RetryPolicy) (*Source, error) {
	base := cfg.BaseURL
	if base == "" {
		base = DefaultBaseURL
	}
	client, err := sources.NewClient(models.SourceClassroom, base, syncCfg, fetch.BearerToken(cfg.AccessToken))
	if err != nil {
		return nil, err
	}
	return &Source{
		client:    client,
		policy:    policy.ForSource(models.SourceClassroom),
		courseIDs: cfg.CourseIDs,
	}, nil
}

// Name returns the source system label.
func (s *Source) Name() string { return models.SourceClassroom }

// Resources returns the LMS resources in sync order.
func (s *Source) Resources() []*models.Resource { return models.LMSResources() }

// Fetch returns the current records of res.
func (s *Source) Fetch(ctx context.Context, res *models.Resource) ([]models.Record, error) {
	switch res {
	case models.LMSSection:
		return s.sections(ctx)
	case models.LMSUser:
		return s.users(ctx)
	case models.Assignment:
		return s.assignments(ctx)
	case models.AssignmentSubmission:
		return s.submissions(ctx)
	default:
		return nil, sources.Unsupported(s.Name(), res)
	}
}

func (s *Source) list(ctx context.Context, path, field string, params url.Values) ([]json.RawMessage, error) {
	query := url.Values{"pageSize": {strconv.Itoa(pageSize)}}
	for k, v := range params {
		query[k] = v
	}
	call := func(ctx context.Context, q url.Values) (map[string]json.RawMessage, error) {
		var page map[string]json.RawMessage
		if _, err := s.client.GetJSON(ctx, path, q, &page); err != nil {
			return nil, err
		}
		return page, nil
	}
	return fetch.FetchAll(ctx, s.policy, call, query, field)
}

func listAs[T any](ctx context.Context, s *Source, path, field string, params url.Values) ([]T, error) {
	raw, err := s.list(ctx, path, field, params)
	if err != nil {
		return nil, err
	}
	return sources.Decode[T](raw)
}

func coursePath(id string, parts ...string) string {
	p := "courses/" + url.PathEscape(id)
	for _, part := range parts {
		p += "/" + part
	}
	return p
}

func (s *Source) courses(ctx context.Context) ([]course, error) {
	if len(s.courseIDs) == 0 {
		courses, err := listAs[course](ctx, s, "courses", "courses", nil)
		if err != nil {
			return nil, fmt.Errorf("courses: %w", err)
		}
		return courses, nil
	}
	out := make([]course, 0, len(s.courseIDs))
	for _, id := range s.courseIDs {
		c, err := fetch.Do(ctx, s.policy, func(ctx context.Context) (course, error) {
			var c course
			_, err := s.client.GetJSON(ctx, coursePath(id), nil, &c)
			return c, err
		})
		if err != nil {
			return nil, fmt.Errorf("course %s: %w", id, err)
		}
		out = append(out, c)
	}
	return out, nil
}

// courseIDList returns the configured course IDs, or every visible course.
func (s *Source) courseIDList(ctx context.Context) ([]string, error) {
	if len(s.courseIDs) > 0 {
		return s.courseIDs, nil
	}
	courses, err := s.courses(ctx)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(courses))
	for _, c := range courses {
		ids = append(ids, c.ID.String())
	}
	return ids, nil
}

func (s *Source) sections(ctx context.Context) ([]models.Record, error) {
	courses, err := s.courses(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]models.Record, 0, len(courses))
	for _, c := range courses {
		out = append(out, models.Record{
			"SourceSystemIdentifier": c.ID.String(),
			"SourceSystem":           s.Name(),
			"SISSectionIdentifier":   sources.OrNil(c.Section),
			"Title":                  c.Name,
			"SectionDescription":     sources.OrNil(c.Description),
			"LMSSectionStatus":       c.status(),
			"SourceCreateDate":       sources.OrNil(c.CreationTime),
			"SourceLastModifiedDate": sources.OrNil(c.UpdateTime),
		})
	}
	return out, nil
}

func (s *Source) users(ctx context.Context) ([]models.Record, error) {
	ids, err := s.courseIDList(ctx)
	if err != nil {
		return nil, err
	}
	var out []models.Record
	for _, id := range ids {
		students, err := listAs[student](ctx, s, coursePath(id, "students"), "students", nil)
		if err != nil {
			return nil, fmt.Errorf("course %s students: %w", id, err)
		}
		for _, st := range students {
			out = append(out, models.Record{
				"SourceSystemIdentifier": st.UserID.String(),
				"SourceSystem":           s.Name(),
				"UserRole":               "student",
				"Name":                   sources.OrNil(st.Profile.Name.FullName),
				"EmailAddress":           sources.OrNil(st.Profile.EmailAddress),
			})
		}
	}
	return out, nil
}

func (s *Source) assignments(ctx context.Context) ([]models.Record, error) {
	ids, err := s.courseIDList(ctx)
	if err != nil {
		return nil, err
	}
	var out []models.Record
	for _, id := range ids {
		work, err := listAs[courseWork](ctx, s, coursePath(id, "courseWork"), "courseWork", nil)
		if err != nil {
			return nil, fmt.Errorf("course %s coursework: %w", id, err)
		}
		for _, w := range work {
			var points any
			if w.MaxPoints != nil {
				points = *w.MaxPoints
			}
			rec := models.Record{
				"SourceSystemIdentifier":           sources.Join(id, w.ID.String()),
				"SourceSystem":                     s.Name(),
				"LMSSectionSourceSystemIdentifier": id,
				"Title":                            w.Title,
				"AssignmentCategory":               sources.OrNil(w.WorkType),
				"AssignmentDescription":            sources.OrNil(w.Description),
				"DueDateTime":                      w.due(),
				"MaxPoints":                        points,
				"SourceCreateDate":                 sources.OrNil(w.CreationTime),
				"SourceLastModifiedDate":           sources.OrNil(w.UpdateTime),
			}
			if w.State == courseWorkDeleted {
				rec[models.DeletedAtColumn] = sources.OrNil(w.UpdateTime)
			}
			out = append(out, rec)
		}
	}
	return out, nil
}

func (s *Source) submissions(ctx context.Context) ([]models.Record, error) {
	ids, err := s.courseIDList(ctx)
	if err != nil {
		return nil, err
	}
	var out []models.Record
	for _, id := range ids {
		subs, err := listAs[studentSubmission](ctx, s, coursePath(id, "courseWork", "-", "studentSubmissions"), "studentSubmissions", nil)
		if err != nil {
			return nil, fmt.Errorf("course %s submissions: %w", id, err)
		}
		for _, sub := range subs {
			var grade, earned any
			if sub.AssignedGrade != nil {
				earned = *sub.AssignedGrade
				grade = strconv.FormatFloat(*sub.AssignedGrade, 'f', -1, 64)
			}
			out = append(out, models.Record{
				"SourceSystemIdentifier":           sources.Join(id, sub.CourseWorkID.String(), sub.ID.String()),
				"SourceSystem":                     s.Name(),
				"AssignmentSourceSystemIdentifier": sources.Join(id, sub.CourseWorkID.String()),
				"LMSUserSourceSystemIdentifier":    sub.UserID.String(),
				"SubmissionStatus":                 sources.OrNil(sub.status()),
				"SubmissionDateTime":               sources.OrNil(sub.UpdateTime),
				"EarnedPoints":                     earned,
				"Grade":                            grade,
				"SourceCreateDate":                 sources.OrNil(sub.CreationTime),
				"SourceLastModifiedDate":           sources.OrNil(sub.UpdateTime),
			})
		}
	}
	return out, nil
}

// BreakerState reports the vendor client's circuit breaker state.
func (s *Source) BreakerState() string {
	return s.client.BreakerState()
}
