// Lmsync - LMS Extraction and Identity Harmonization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/lmsync

/*
Package middleware provides HTTP middleware for the admin API.

  - RequestID: UUID request IDs, echoed in X-Request-ID and carried in the
    logging context
  - PrometheusMetrics: request count and latency labelled by chi route pattern

Both follow the chi signature func(http.Handler) http.Handler and are
installed globally by the api router.
*/
package middleware
