// Lmsync - LMS Extraction and Identity Harmonization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/lmsync

package fetch

import (
	"context"
	"fmt"
	"net/url"

	"github.com/goccy/go-json"
)

// Page token parameter and response field used by Google style APIs.
const (
	PageTokenParam     = "pageToken"
	NextPageTokenField = "nextPageToken"
)

// CallFunc executes one page request and returns the decoded top-level
// response object.
type CallFunc func(ctx context.Context, params url.Values) (map[string]json.RawMessage, error)

// FetchAll pages through a nextPageToken API and returns every element of
// response[itemField] in order. A missing item field counts as an empty page.
// params is copied; the caller's values are not modified.
func FetchAll(ctx context.Context, policy RetryPolicy, call CallFunc, params url.Values, itemField string) ([]json.RawMessage, error) {
	query := cloneValues(params)
	var all []json.RawMessage
	seen := make(map[string]bool)

	for page := 1; ; page++ {
		response, err := Do(ctx, policy, func(ctx context.Context) (map[string]json.RawMessage, error) {
			return call(ctx, query)
		})
		if err != nil {
			return nil, fmt.Errorf("page %d: %w", page, err)
		}

		items, err := decodeItems(response[itemField])
		if err != nil {
			return nil, fmt.Errorf("page %d: decode %s: %w", page, itemField, err)
		}
		all = append(all, items...)

		token, err := decodeToken(response[NextPageTokenField])
		if err != nil {
			return nil, fmt.Errorf("page %d: decode %s: %w", page, NextPageTokenField, err)
		}
		if token == "" {
			return all, nil
		}
		if seen[token] {
			return nil, fmt.Errorf("%w: %s", ErrCursorLoop, token)
		}
		seen[token] = true
		query.Set(PageTokenParam, token)
	}
}

// PageFunc fetches the page at cursor. The first call receives an empty
// cursor. An empty next cursor ends pagination.
type PageFunc func(ctx context.Context, cursor string) (items []json.RawMessage, next string, err error)

type pageResult struct {
	items []json.RawMessage
	next  string
}

// Collect runs fn until it returns an empty next cursor and concatenates the
// items of every page. Each page runs under policy.
func Collect(ctx context.Context, policy RetryPolicy, fn PageFunc) ([]json.RawMessage, error) {
	var all []json.RawMessage
	cursor := ""
	seen := make(map[string]bool)

	for page := 1; ; page++ {
		current := cursor
		result, err := Do(ctx, policy, func(ctx context.Context) (pageResult, error) {
			items, next, err := fn(ctx, current)
			return pageResult{items: items, next: next}, err
		})
		if err != nil {
			return nil, fmt.Errorf("page %d: %w", page, err)
		}
		all = append(all, result.items...)

		if result.next == "" {
			return all, nil
		}
		if result.next == current || seen[result.next] {
			return nil, fmt.Errorf("%w: %s", ErrCursorLoop, result.next)
		}
		seen[result.next] = true
		cursor = result.next
	}
}

// Items returns the elements of response[field]. A missing or null field
// yields no items.
func Items(response map[string]json.RawMessage, field string) ([]json.RawMessage, error) {
	items, err := decodeItems(response[field])
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", field, err)
	}
	return items, nil
}

func decodeItems(raw json.RawMessage) ([]json.RawMessage, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, err
	}
	return items, nil
}

func decodeToken(raw json.RawMessage) (string, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return "", nil
	}
	var token string
	if err := json.Unmarshal(raw, &token); err != nil {
		return "", err
	}
	return token, nil
}

func cloneValues(v url.Values) url.Values {
	out := make(url.Values, len(v)+1)
	for k, vals := range v {
		out[k] = append([]string(nil), vals...)
	}
	return out
}
