// Lmsync - LMS Extraction and Identity Harmonization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/lmsync

package main

import (
	"fmt"

	"github.com/tomtom215/lmsync/internal/config"
	"github.com/tomtom215/lmsync/internal/fetch"
	"github.com/tomtom215/lmsync/internal/logging"
	"github.com/tomtom215/lmsync/internal/sources"
	"github.com/tomtom215/lmsync/internal/sources/canvas"
	"github.com/tomtom215/lmsync/internal/sources/classroom"
	"github.com/tomtom215/lmsync/internal/sources/edfi"
	"github.com/tomtom215/lmsync/internal/sources/schoology"
)

// buildSources constructs every enabled source. The run manager decides the
// order they sync in.
func buildSources(cfg *config.Config) ([]sources.Source, error) {
	policy := fetch.PolicyFromConfig(cfg.Retry)
	var out []sources.Source

	if cfg.EdFi.Enabled {
		src, err := edfi.New(cfg.EdFi, cfg.Sync, policy)
		if err != nil {
			return nil, fmt.Errorf("ed-fi source: %w", err)
		}
		out = append(out, src)
	}
	if cfg.Schoology.Enabled {
		src, err := schoology.New(cfg.Schoology, cfg.Sync, policy)
		if err != nil {
			return nil, fmt.Errorf("schoology source: %w", err)
		}
		out = append(out, src)
	}
	if cfg.Canvas.Enabled {
		src, err := canvas.New(cfg.Canvas, cfg.Sync, policy)
		if err != nil {
			return nil, fmt.Errorf("canvas source: %w", err)
		}
		out = append(out, src)
	}
	if cfg.Classroom.Enabled {
		src, err := classroom.New(cfg.Classroom, cfg.Sync, policy)
		if err != nil {
			return nil, fmt.Errorf("google classroom source: %w", err)
		}
		out = append(out, src)
	}

	for _, src := range out {
		logging.Info().Str("source", src.Name()).Int("resources", len(src.Resources())).Msg("Source enabled")
	}
	if len(out) == 0 {
		logging.Warn().Msg("No sources enabled; runs will only harmonize existing data")
	}
	return out, nil
}
