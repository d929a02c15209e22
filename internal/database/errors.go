// Lmsync - LMS Extraction and Identity Harmonization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/lmsync

package database

import (
	"errors"
	"io"

	"github.com/tomtom215/lmsync/internal/logging"
)

// ErrNoConnection is returned by operations on a DB whose handle was never
// opened.
var ErrNoConnection = errors.New("database connection is nil")

// CloseWithLog closes c at shutdown and logs a failure under the given
// resource name. A nil closer is ignored.
func CloseWithLog(c io.Closer, resource string) {
	if c == nil {
		return
	}
	if err := c.Close(); err != nil {
		logging.Warn().Str("resource", resource).Err(err).Msg("Close failed")
	}
}

// discardClose is for error paths where the original error is the one worth
// returning.
func discardClose(c io.Closer) {
	if c != nil {
		_ = c.Close()
	}
}
