// Lmsync - LMS Extraction and Identity Harmonization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/lmsync

package config

import (
	"fmt"
	"net/url"

	"github.com/tomtom215/lmsync/internal/validation"
)

// minJWTSecretLength is the shortest accepted HS256 signing secret.
const minJWTSecretLength = 32

// Validate checks that required configuration is present and valid
func (c *Config) Validate() error {
	if err := validation.ValidateStruct(c); err != nil {
		return err
	}

	if err := c.validateSources(); err != nil {
		return err
	}

	if err := c.validateRunState(); err != nil {
		return err
	}

	if err := c.validateEvents(); err != nil {
		return err
	}

	return c.validateAPI()
}

// validateSources checks per-source rules that struct tags cannot express.
func (c *Config) validateSources() error {
	if c.Schoology.Enabled && len(c.Schoology.SectionIDs) == 0 {
		return fmt.Errorf("SCHOOLOGY_SECTION_IDS is required when SCHOOLOGY_ENABLED=true")
	}
	if c.Canvas.Enabled && len(c.Canvas.CourseIDs) == 0 {
		return fmt.Errorf("CANVAS_COURSE_IDS is required when CANVAS_ENABLED=true")
	}
	if !c.Schoology.Enabled && !c.Canvas.Enabled && !c.Classroom.Enabled && !c.EdFi.Enabled {
		return fmt.Errorf("at least one source must be enabled (schoology, canvas, classroom or edfi)")
	}
	return nil
}

func (c *Config) validateRunState() error {
	if !c.RunState.InMemory && c.RunState.Path == "" {
		return fmt.Errorf("RUNSTATE_PATH is required unless RUNSTATE_IN_MEMORY=true")
	}
	return nil
}

// validateEvents validates the NATS URL when one is configured.
// Supports: nats://, tls://, ws:// and wss:// schemes.
func (c *Config) validateEvents() error {
	if !c.Events.Enabled || c.Events.NATSURL == "" {
		return nil
	}

	parsedURL, err := url.Parse(c.Events.NATSURL)
	if err != nil {
		return fmt.Errorf("EVENTS_NATS_URL is invalid: %w", err)
	}

	validSchemes := map[string]bool{"nats": true, "tls": true, "ws": true, "wss": true}
	if !validSchemes[parsedURL.Scheme] {
		return fmt.Errorf("EVENTS_NATS_URL scheme must be nats, tls, ws, or wss, got: %s", parsedURL.Scheme)
	}
	if parsedURL.Host == "" {
		return fmt.Errorf("EVENTS_NATS_URL host is required")
	}
	return nil
}

// validateAPI checks the trigger secret. An empty secret is allowed and
// disables the trigger endpoint.
func (c *Config) validateAPI() error {
	if c.API.JWTSecret != "" && len(c.API.JWTSecret) < minJWTSecretLength {
		return fmt.Errorf("JWT_SECRET must be at least %d characters", minJWTSecretLength)
	}
	return nil
}
