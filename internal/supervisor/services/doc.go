// Lmsync - LMS Extraction and Identity Harmonization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/lmsync

/*
Package services provides suture.Service wrappers for Lmsync components.

Each wrapper translates a component lifecycle into suture's context-aware
Serve(ctx) error:

  - SyncService: run manager Start/Stop
  - HTTPServerService: binds the admin listener, then http.Server Serve/Shutdown
  - CheckpointService: periodic DuckDB CHECKPOINT with a final one on stop

Returning an error from Serve makes the parent supervisor restart the
service with backoff. Returning after ctx is cancelled is a clean stop.
*/
package services
