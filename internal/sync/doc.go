// Lmsync - LMS Extraction and Identity Harmonization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/lmsync

/*
Package sync orchestrates extraction runs.

A run visits every configured source in order, Ed-Fi first so that the SIS
roster is current before LMS records are linked against it. For each
resource of a source, in the source's dependency order, the Manager fetches
the records, hands them to the sync writer, optionally soft-deletes rows the
source no longer reports, and drops the staging table. When every source has
been visited the harmonizer runs over the committed state.

Failure Isolation:

A resource that fails to fetch or write is recorded in the run summary and
the remaining resources of the same source are skipped. Other sources still
run, and so does the harmonizer. The run then reports status "partial", or
"failed" when nothing succeeded.

Scheduling:

  - Start(): runs once on startup if configured, then every Sync.Interval
  - Stop(): stops the schedule and waits for an in-flight run
  - TriggerSync(): runs now; concurrent callers share one run
  - TriggerAsync(): starts a manual run in the background
  - RunOnce(): a single run for the -once command line mode
  - RunHarmonizeOnly(): the harmonizer alone

Only one run executes at a time. A run requested while another is in
progress returns ErrRunInProgress.

Thread Safety:
  - runMu: held for the duration of a run
  - mu: protects running, lastSync and lastRun
  - group: coalesces concurrent manual triggers
*/
package sync
