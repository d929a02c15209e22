// Lmsync - LMS Extraction and Identity Harmonization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/lmsync

/*
Package fetch retrieves paginated data from vendor REST APIs.

Key Components:

  - RetryPolicy: bounded retry with exponential backoff inside a time window.
    Every page request runs under the policy.
  - FetchAll: the nextPageToken loop used by Google Classroom style APIs.
  - Collect: the general cursor loop used by Link header, links.next and
    offset/limit APIs. A cursor seen twice aborts with ErrCursorLoop.
  - Client: a JSON-over-HTTP client with a pluggable Authorizer, a token
    bucket rate limiter, a circuit breaker per vendor, Retry-After aware
    429 handling and bounded error bodies.

Resilience Mechanisms:

  - Retry: up to RetryPolicy.MaxAttempts calls, stopping once Window has
    elapsed since the first call. Delays double from BaseDelay and never
    exceed the remaining window. A Retry-After hint from the server raises
    the delay.
  - Circuit Breaker: opens when at least 60% of 10 or more requests in a one
    minute window failed; half-opens after two minutes. Client errors (4xx
    other than 429) do not count as failures.
  - Rate Limiting: golang.org/x/time/rate limiter per client.

Errors:

  - ErrRetriesExhausted wraps the last error once the policy gives up.
  - ErrCircuitOpen is returned without retrying while the breaker is open.
  - ErrCursorLoop is returned when a pager repeats a cursor.
  - *StatusError carries the status code and a bounded body for non-2xx.

Fetching never writes to the store. Failures propagate to the caller, which
decides whether to skip the resource.
*/
package fetch
