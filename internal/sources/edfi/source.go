// Lmsync - LMS Extraction and Identity Harmonization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/lmsync

// Package edfi extracts the SIS roster from an Ed-Fi ODS API: students,
// their electronic mail addresses and sections. These populate edfi.*,
// the targets of identity harmonization.
package edfi

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/goccy/go-json"

	"github.com/tomtom215/lmsync/internal/config"
	"github.com/tomtom215/lmsync/internal/fetch"
	"github.com/tomtom215/lmsync/internal/models"
	"github.com/tomtom215/lmsync/internal/sources"
)

const (
	resourcePrefix  = "data/v3/ed-fi/"
	defaultPageSize = 100
)

// Source is the Ed-Fi ODS extractor.
type Source struct {
	client   *fetch.Client
	tokens   *tokenSource
	policy   fetch.RetryPolicy
	pageSize int
}

var (
	_ sources.Source          = (*Source)(nil)
	_ sources.BreakerReporter = (*Source)(nil)
)

// New creates an Ed-Fi source. Token requests use their own client so
// that they bypass the bearer authorizer.
func New(cfg config.EdFiConfig, syncCfg config.SyncConfig, policy fetch.RetryPolicy) (*Source, error) {
	tokenClient, err := sources.NewClient(models.SourceEdFi+"-oauth", cfg.BaseURL, syncCfg, nil)
	if err != nil {
		return nil, err
	}
	tokens := newTokenSource(tokenClient, cfg.Key, cfg.Secret)

	client, err := sources.NewClient(models.SourceEdFi, cfg.BaseURL, syncCfg, tokens)
	if err != nil {
		return nil, err
	}
	pageSize := cfg.PageSize
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}
	return &Source{
		client:   client,
		tokens:   tokens,
		policy:   policy.ForSource(models.SourceEdFi),
		pageSize: pageSize,
	}, nil
}

// Name returns the source system label.
func (s *Source) Name() string { return models.SourceEdFi }

// Resources returns the edfi.* resources in sync order.
func (s *Source) Resources() []*models.Resource { return models.EdFiResources() }

// Fetch returns the current records of res.
func (s *Source) Fetch(ctx context.Context, res *models.Resource) ([]models.Record, error) {
	switch res {
	case models.EdFiStudent:
		return s.students(ctx)
	case models.EdFiStudentElectronicMail:
		return s.electronicMails(ctx)
	case models.EdFiSection:
		return s.sections(ctx)
	default:
		return nil, sources.Unsupported(s.Name(), res)
	}
}

// collect pages through an ODS resource with offset and limit until a
// page shorter than the limit is returned.
func (s *Source) collect(ctx context.Context, resource string) ([]json.RawMessage, error) {
	limit := strconv.Itoa(s.pageSize)
	return fetch.Collect(ctx, s.policy, func(ctx context.Context, cursor string) ([]json.RawMessage, string, error) {
		offset := 0
		if cursor != "" {
			n, err := strconv.Atoi(cursor)
			if err != nil {
				return nil, "", fetch.Permanent(fmt.Errorf("invalid offset %q", cursor))
			}
			offset = n
		}
		params := url.Values{"offset": {strconv.Itoa(offset)}, "limit": {limit}}

		var items []json.RawMessage
		if _, err := s.client.GetJSON(ctx, resourcePrefix+resource, params, &items); err != nil {
			if fetch.IsStatus(err, http.StatusUnauthorized) {
				s.tokens.Invalidate()
			}
			return nil, "", err
		}
		if len(items) < s.pageSize {
			return items, "", nil
		}
		return items, strconv.Itoa(offset + len(items)), nil
	})
}

func collectAs[T any](ctx context.Context, s *Source, resource string) ([]T, error) {
	raw, err := s.collect(ctx, resource)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", resource, err)
	}
	out, err := sources.Decode[T](raw)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", resource, err)
	}
	return out, nil
}

func (s *Source) students(ctx context.Context) ([]models.Record, error) {
	students, err := collectAs[student](ctx, s, "students")
	if err != nil {
		return nil, err
	}
	out := make([]models.Record, 0, len(students))
	for _, st := range students {
		out = append(out, models.Record{
			"Id":              st.ID,
			"StudentUniqueId": st.StudentUniqueID,
			"FirstName":       sources.OrNil(st.FirstName),
			"LastSurname":     sources.OrNil(st.LastSurname),
		})
	}
	return out, nil
}

// electronicMails flattens the electronicMails of every student education
// organization association. A student associated with several
// organizations repeats the same address; the writer keeps one row.
func (s *Source) electronicMails(ctx context.Context) ([]models.Record, error) {
	assocs, err := collectAs[educationOrganizationAssociation](ctx, s, "studentEducationOrganizationAssociations")
	if err != nil {
		return nil, err
	}
	var out []models.Record
	for _, a := range assocs {
		for _, m := range a.ElectronicMails {
			if m.ElectronicMailAddress == "" {
				continue
			}
			out = append(out, models.Record{
				"StudentUniqueId":       a.StudentReference.StudentUniqueID,
				"ElectronicMailAddress": m.ElectronicMailAddress,
				"ElectronicMailType":    sources.OrNil(descriptorCode(m.ElectronicMailTypeDescriptor)),
			})
		}
	}
	return out, nil
}

func (s *Source) sections(ctx context.Context) ([]models.Record, error) {
	sections, err := collectAs[section](ctx, s, "sections")
	if err != nil {
		return nil, err
	}
	out := make([]models.Record, 0, len(sections))
	for _, sec := range sections {
		ref := sec.CourseOfferingReference
		rec := models.Record{
			"Id":                sec.ID,
			"SectionIdentifier": sec.SectionIdentifier,
			"LocalCourseCode":   sources.OrNil(ref.LocalCourseCode),
			"SessionName":       sources.OrNil(ref.SessionName),
		}
		if ref.SchoolID != 0 {
			rec["SchoolId"] = ref.SchoolID
		}
		if ref.SchoolYear != 0 {
			rec["SchoolYear"] = ref.SchoolYear
		}
		out = append(out, rec)
	}
	return out, nil
}

// BreakerState reports the vendor client's circuit breaker state.
func (s *Source) BreakerState() string {
	return s.client.BreakerState()
}
