// Lmsync - LMS Extraction and Identity Harmonization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/lmsync

// Package canvas extracts sections, users, assignments and submissions from
// the Canvas LMS REST API. Collections are paginated with the Link header.
//
// Canvas assignments belong to courses; they are recorded once per section
// of the course with the identifier "<section id>-<assignment id>" so that
// each section's assignments link to that section.
package canvas

import (
	"context"
	"fmt"
	"net/url"

	"github.com/goccy/go-json"

	"github.com/tomtom215/lmsync/internal/config"
	"github.com/tomtom215/lmsync/internal/fetch"
	"github.com/tomtom215/lmsync/internal/models"
	"github.com/tomtom215/lmsync/internal/sources"
)

const perPage = "100"

// Source is the Canvas extractor.
type Source struct {
	client    *fetch.Client
	policy    fetch.RetryPolicy
	courseIDs []string
}

var (
	_ sources.Source          = (*Source)(nil)
	_ sources.BreakerReporter = (*Source)(nil)
)

// New creates a Canvas source.
func New(cfg config.CanvasConfig, syncCfg config.SyncConfig, policy fetch.RetryPolicy) (*Source, error) {
	client, err := sources.NewClient(models.SourceCanvas, cfg.BaseURL, syncCfg, fetch.BearerToken(cfg.AccessToken))
	if err != nil {
		return nil, err
	}
	return &Source{
		client:    client,
		policy:    policy.ForSource(models.SourceCanvas),
		courseIDs: cfg.CourseIDs,
	}, nil
}

// Name returns the source system label.
func (s *Source) Name() string { return models.SourceCanvas }

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

// collect follows rel="next" links from path.
func (s *Source) collect(ctx context.Context, path string, params url.Values) ([]json.RawMessage, error) {
	first := url.Values{"per_page": {perPage}}
	for k, v := range params {
		first[k] = v
	}
	return fetch.Collect(ctx, s.policy, func(ctx context.Context, cursor string) ([]json.RawMessage, string, error) {
		ref, query := path, first
		if cursor != "" {
			ref, query = cursor, nil
		}
		resp, err := s.client.Get(ctx, ref, query)
		if err != nil {
			return nil, "", err
		}
		var items []json.RawMessage
		if err := resp.Decode(&items); err != nil {
			return nil, "", fetch.Permanent(err)
		}
		return items, fetch.NextLink(resp.Header), nil
	})
}

func collectAs[T any](ctx context.Context, s *Source, path string, params url.Values) ([]T, error) {
	raw, err := s.collect(ctx, path, params)
	if err != nil {
		return nil, err
	}
	return sources.Decode[T](raw)
}

func (s *Source) courseSections(ctx context.Context, courseID string) ([]section, error) {
	sections, err := collectAs[section](ctx, s, "courses/"+url.PathEscape(courseID)+"/sections", nil)
	if err != nil {
		return nil, fmt.Errorf("course %s sections: %w", courseID, err)
	}
	return sections, nil
}

func (s *Source) sections(ctx context.Context) ([]models.Record, error) {
	var out []models.Record
	for _, courseID := range s.courseIDs {
		sections, err := s.courseSections(ctx, courseID)
		if err != nil {
			return nil, err
		}
		for _, sec := range sections {
			out = append(out, models.Record{
				"SourceSystemIdentifier": sec.ID.String(),
				"SourceSystem":           s.Name(),
				"SISSectionIdentifier":   sources.OrNil(sec.SISSectionID),
				"Title":                  sec.Name,
				"LMSSectionStatus":       "active",
				"SourceCreateDate":       sources.OrNil(sec.CreatedAt),
			})
		}
	}
	return out, nil
}

func (s *Source) users(ctx context.Context) ([]models.Record, error) {
	params := url.Values{
		"include[]":         {"email"},
		"enrollment_type[]": {"student"},
	}
	var out []models.Record
	for _, courseID := range s.courseIDs {
		users, err := collectAs[user](ctx, s, "courses/"+url.PathEscape(courseID)+"/users", params)
		if err != nil {
			return nil, fmt.Errorf("course %s users: %w", courseID, err)
		}
		for _, u := range users {
			out = append(out, models.Record{
				"SourceSystemIdentifier": u.ID.String(),
				"SourceSystem":           s.Name(),
				"UserRole":               "student",
				"SISUserIdentifier":      sources.OrNil(u.SISUserID),
				"LocalUserIdentifier":    sources.OrNil(u.LoginID),
				"Name":                   sources.OrNil(u.Name),
				"EmailAddress":           sources.OrNil(u.Email),
				"SourceCreateDate":       sources.OrNil(u.CreatedAt),
			})
		}
	}
	return out, nil
}

func (s *Source) assignments(ctx context.Context) ([]models.Record, error) {
	var out []models.Record
	for _, courseID := range s.courseIDs {
		sections, err := s.courseSections(ctx, courseID)
		if err != nil {
			return nil, err
		}
		assignments, err := collectAs[assignment](ctx, s, "courses/"+url.PathEscape(courseID)+"/assignments", nil)
		if err != nil {
			return nil, fmt.Errorf("course %s assignments: %w", courseID, err)
		}
		for _, sec := range sections {
			for _, a := range assignments {
				var points any
				if a.PointsPossible != nil {
					points = *a.PointsPossible
				}
				out = append(out, models.Record{
					"SourceSystemIdentifier":           sources.Join(sec.ID.String(), a.ID.String()),
					"SourceSystem":                     s.Name(),
					"LMSSectionSourceSystemIdentifier": sec.ID.String(),
					"Title":                            a.Name,
					"AssignmentCategory":               a.category(),
					"AssignmentDescription":            sources.OrNil(a.Description),
					"StartDateTime":                    sources.OrNil(a.UnlockAt),
					"EndDateTime":                      sources.OrNil(a.LockAt),
					"DueDateTime":                      sources.OrNil(a.DueAt),
					"MaxPoints":                        points,
					"SourceCreateDate":                 sources.OrNil(a.CreatedAt),
					"SourceLastModifiedDate":           sources.OrNil(a.UpdatedAt),
				})
			}
		}
	}
	return out, nil
}

func (s *Source) submissions(ctx context.Context) ([]models.Record, error) {
	params := url.Values{"student_ids[]": {"all"}}
	var out []models.Record
	for _, courseID := range s.courseIDs {
		sections, err := s.courseSections(ctx, courseID)
		if err != nil {
			return nil, err
		}
		for _, sec := range sections {
			path := "sections/" + url.PathEscape(sec.ID.String()) + "/students/submissions"
			subs, err := collectAs[submission](ctx, s, path, params)
			if err != nil {
				return nil, fmt.Errorf("section %s submissions: %w", sec.ID, err)
			}
			for _, sub := range subs {
				var score, grade any
				if sub.Score != nil {
					score = *sub.Score
				}
				if sub.Grade != nil {
					grade = *sub.Grade
				}
				out = append(out, models.Record{
					"SourceSystemIdentifier":           sources.Join(sec.ID.String(), sub.ID.String()),
					"SourceSystem":                     s.Name(),
					"AssignmentSourceSystemIdentifier": sources.Join(sec.ID.String(), sub.AssignmentID.String()),
					"LMSUserSourceSystemIdentifier":    sub.UserID.String(),
					"SubmissionStatus":                 sources.OrNil(sub.status()),
					"SubmissionDateTime":               sources.OrNil(sub.SubmittedAt),
					"EarnedPoints":                     score,
					"Grade":                            grade,
				})
			}
		}
	}
	return out, nil
}

// BreakerState reports the vendor client's circuit breaker state.
func (s *Source) BreakerState() string {
	return s.client.BreakerState()
}
