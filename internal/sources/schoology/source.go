// Lmsync - LMS Extraction and Identity Harmonization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/lmsync

// Package schoology extracts sections, users, assignments and submission
// revisions from the Schoology REST API.
package schoology

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/lmsync/internal/config"
	"github.com/tomtom215/lmsync/internal/fetch"
	"github.com/tomtom215/lmsync/internal/models"
	"github.com/tomtom215/lmsync/internal/sources"
)

// DefaultBaseURL is the public Schoology API root.
const DefaultBaseURL = "https://api.schoology.com/v1/"

// pageSize is the "limit" sent to collection endpoints.
const pageSize = 200

// Source is the Schoology extractor.
type Source struct {
	client     *fetch.Client
	policy     fetch.RetryPolicy
	sectionIDs []string
}

var (
	_ sources.Source          = (*Source)(nil)
	_ sources.BreakerReporter = (*Source)(nil)
)

// New creates a Schoology source.
func New(cfg config.SchoologyConfig, syncCfg config.SyncConfig, policy fetch.RetryPolicy) (*Source, error) {
	base := cfg.BaseURL
	if base == "" {
		base = DefaultBaseURL
	}
	client, err := sources.NewClient(models.SourceSchoology, base, syncCfg, newOAuthAuthorizer(cfg.Key, cfg.Secret))
	if err != nil {
		return nil, err
	}
	return &Source{
		client:     client,
		policy:     policy.ForSource(models.SourceSchoology),
		sectionIDs: cfg.SectionIDs,
	}, nil
}

// Name returns the source system label.
func (s *Source) Name() string { return models.SourceSchoology }

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

// collect follows links.next through a collection endpoint.
func (s *Source) collect(ctx context.Context, path, field string) ([]json.RawMessage, error) {
	first := url.Values{"start": {"0"}, "limit": {strconv.Itoa(pageSize)}}
	return fetch.Collect(ctx, s.policy, func(ctx context.Context, cursor string) ([]json.RawMessage, string, error) {
		ref, params := path, first
		if cursor != "" {
			ref, params = cursor, nil
		}
		var page map[string]json.RawMessage
		if _, err := s.client.GetJSON(ctx, ref, params, &page); err != nil {
			return nil, "", err
		}
		items, err := fetch.Items(page, field)
		if err != nil {
			return nil, "", fetch.Permanent(err)
		}
		var links struct {
			Next string `json:"next"`
		}
		if raw, ok := page["links"]; ok {
			if err := json.Unmarshal(raw, &links); err != nil {
				return nil, "", fetch.Permanent(fmt.Errorf("decode links: %w", err))
			}
		}
		return items, links.Next, nil
	})
}

func (s *Source) sections(ctx context.Context) ([]models.Record, error) {
	out := make([]models.Record, 0, len(s.sectionIDs))
	for _, id := range s.sectionIDs {
		sec, err := fetch.Do(ctx, s.policy, func(ctx context.Context) (section, error) {
			var sec section
			_, err := s.client.GetJSON(ctx, "sections/"+url.PathEscape(id), nil, &sec)
			return sec, err
		})
		if err != nil {
			return nil, fmt.Errorf("section %s: %w", id, err)
		}
		status := "inactive"
		if sec.Active == "1" {
			status = "active"
		}
		title := sec.SectionTitle
		if sec.CourseTitle != "" {
			title = sec.CourseTitle + ": " + sec.SectionTitle
		}
		out = append(out, models.Record{
			"SourceSystemIdentifier": sec.ID.String(),
			"SourceSystem":           s.Name(),
			"SISSectionIdentifier":   sources.OrNil(sec.SectionSchoolCode),
			"Title":                  title,
			"SectionDescription":     sources.OrNil(sec.Description),
			"LMSSectionStatus":       status,
		})
	}
	return out, nil
}

func (s *Source) users(ctx context.Context) ([]models.Record, error) {
	raw, err := s.collect(ctx, "users", "user")
	if err != nil {
		return nil, fmt.Errorf("users: %w", err)
	}
	users, err := sources.Decode[user](raw)
	if err != nil {
		return nil, fmt.Errorf("users: %w", err)
	}
	out := make([]models.Record, 0, len(users))
	for _, u := range users {
		name := u.NameDisplay
		if name == "" {
			name = strings.TrimSpace(u.NameFirst + " " + u.NameLast)
		}
		out = append(out, models.Record{
			"SourceSystemIdentifier": u.ID.String(),
			"SourceSystem":           s.Name(),
			"UserRole":               sources.OrNil(u.RoleID.String()),
			"SISUserIdentifier":      sources.OrNil(u.SchoolUID),
			"LocalUserIdentifier":    sources.OrNil(u.Username),
			"Name":                   sources.OrNil(name),
			"EmailAddress":           sources.OrNil(u.PrimaryEmail),
		})
	}
	return out, nil
}

func (s *Source) assignments(ctx context.Context) ([]models.Record, error) {
	var out []models.Record
	for _, sectionID := range s.sectionIDs {
		raw, err := s.collect(ctx, "sections/"+url.PathEscape(sectionID)+"/assignments", "assignment")
		if err != nil {
			return nil, fmt.Errorf("section %s assignments: %w", sectionID, err)
		}
		items, err := sources.Decode[assignment](raw)
		if err != nil {
			return nil, fmt.Errorf("section %s assignments: %w", sectionID, err)
		}
		for _, a := range items {
			rec := models.Record{
				"SourceSystemIdentifier":           a.ID.String(),
				"SourceSystem":                     s.Name(),
				"LMSSectionSourceSystemIdentifier": sectionID,
				"Title":                            a.Title,
				"AssignmentCategory":               sources.OrNil(a.Type),
				"AssignmentDescription":            sources.OrNil(a.Description),
				"DueDateTime":                      sources.OrNil(a.Due),
				"MaxPoints":                        sources.OrNil(a.MaxPoints.String()),
			}
			if ts, err := strconv.ParseInt(a.LastUpdated.String(), 10, 64); err == nil && ts > 0 {
				rec["SourceLastModifiedDate"] = time.Unix(ts, 0).UTC()
			}
			out = append(out, rec)
		}
	}
	return out, nil
}

func (s *Source) submissions(ctx context.Context) ([]models.Record, error) {
	var out []models.Record
	for _, sectionID := range s.sectionIDs {
		raw, err := s.collect(ctx, "sections/"+url.PathEscape(sectionID)+"/submissions", "revision")
		if err != nil {
			return nil, fmt.Errorf("section %s submissions: %w", sectionID, err)
		}
		revisions, err := sources.Decode[revision](raw)
		if err != nil {
			return nil, fmt.Errorf("section %s submissions: %w", sectionID, err)
		}
		for _, r := range revisions {
			var submitted any
			if r.Created > 0 {
				submitted = time.Unix(r.Created, 0).UTC()
			}
			out = append(out, models.Record{
				"SourceSystemIdentifier":           sources.Join(r.GradeItemID.String(), r.UID.String()),
				"SourceSystem":                     s.Name(),
				"AssignmentSourceSystemIdentifier": r.GradeItemID.String(),
				"LMSUserSourceSystemIdentifier":    r.UID.String(),
				"SubmissionStatus":                 r.status(),
				"SubmissionDateTime":               submitted,
				"SourceCreateDate":                 submitted,
			})
		}
	}
	return out, nil
}

// BreakerState reports the vendor client's circuit breaker state.
func (s *Source) BreakerState() string {
	return s.client.BreakerState()
}
