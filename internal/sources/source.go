// Lmsync - LMS Extraction and Identity Harmonization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/lmsync

/*
Package sources defines the extractor contract shared by the vendor packages.

Each vendor package (schoology, canvas, classroom, edfi) implements Source:
it names its source system, lists the catalog resources it produces in
dependency order, and fetches one resource as canonical records. Extractors
only read from the network; the run manager hands their records to the sync
writer.
*/
package sources

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/goccy/go-json"

	"github.com/tomtom215/lmsync/internal/config"
	"github.com/tomtom215/lmsync/internal/fetch"
	"github.com/tomtom215/lmsync/internal/models"
)

// ErrUnsupportedResource is returned when a source is asked for a resource
// it does not produce.
var ErrUnsupportedResource = errors.New("resource not supported by source")

// Source extracts canonical records for one source system.
type Source interface {
	// Name is the source system label written to SourceSystem columns.
	Name() string
	// Resources lists the produced resources in sync order.
	Resources() []*models.Resource
	// Fetch returns every current record of res.
	Fetch(ctx context.Context, res *models.Resource) ([]models.Record, error)
}

// BreakerReporter is implemented by sources that call their vendor through
// a circuit breaker.
type BreakerReporter interface {
	// BreakerState is "closed", "half-open" or "open".
	BreakerState() string
}

// Unsupported returns ErrUnsupportedResource for res.
func Unsupported(source string, res *models.Resource) error {
	return fmt.Errorf("%w: %s does not produce %s", ErrUnsupportedResource, source, res.Table())
}

// NewClient builds a vendor client with the shared request settings.
func NewClient(name, baseURL string, cfg config.SyncConfig, auth fetch.Authorizer) (*fetch.Client, error) {
	return fetch.NewClient(fetch.ClientConfig{
		Name:       name,
		BaseURL:    baseURL,
		Timeout:    cfg.RequestTimeout,
		RateLimit:  cfg.RateLimit,
		RateBurst:  cfg.RateBurst,
		Authorizer: auth,
	})
}

// Decode unmarshals raw items into T.
func Decode[T any](items []json.RawMessage) ([]T, error) {
	out := make([]T, 0, len(items))
	for i, raw := range items {
		var v T
		if err := json.Unmarshal(raw, &v); err != nil {
			return nil, fmt.Errorf("decode item %d: %w", i, err)
		}
		out = append(out, v)
	}
	return out, nil
}

// ID is a vendor identifier that may arrive as a JSON string or number.
type ID string

// UnmarshalJSON accepts "123", 123 and null.
func (id *ID) UnmarshalJSON(data []byte) error {
	s := strings.TrimSpace(string(data))
	if s == "null" {
		*id = ""
		return nil
	}
	if strings.HasPrefix(s, `"`) {
		var str string
		if err := json.Unmarshal(data, &str); err != nil {
			return err
		}
		*id = ID(str)
		return nil
	}
	if _, err := strconv.ParseFloat(s, 64); err != nil {
		return fmt.Errorf("invalid identifier %s", s)
	}
	*id = ID(s)
	return nil
}

// String returns the identifier text.
func (id ID) String() string {
	return string(id)
}

// Join builds a composite identifier such as "<section>-<assignment>".
func Join(parts ...string) string {
	return strings.Join(parts, "-")
}

// OrNil returns nil for an empty string so that blank vendor fields are
// stored as NULL.
func OrNil(s string) any {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	return s
}
