// Lmsync - LMS Extraction and Identity Harmonization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/lmsync

/*
Package api provides the admin HTTP API for Lmsync.

Endpoints:

	GET  /health          liveness plus database connectivity
	GET  /metrics         Prometheus exposition
	GET  /api/v1/status   run manager state and table row counts
	GET  /api/v1/runs     recent run summaries, newest first (?limit=1..500)
	POST /api/v1/sync     start a manual run (202 Accepted)

Every JSON body uses the models.APIResponse envelope. The trigger endpoint
requires an HS256 bearer token carrying the sync:trigger scope and is rate
limited per client IP with httprate. When no JWT secret is configured the
trigger is disabled and answers 403.
*/
package api
