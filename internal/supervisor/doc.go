// Lmsync - LMS Extraction and Identity Harmonization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/lmsync

/*
Package supervisor provides process supervision for Lmsync using suture v4.

The tree groups long-running services into three layers so a failure in one
layer restarts only that layer's services:

	RootSupervisor ("lmsync")
	├── DataSupervisor ("data-layer")
	│   └── CheckpointService (periodic DuckDB CHECKPOINT)
	├── SyncSupervisor ("sync-layer")
	│   └── SyncService (run manager schedule)
	└── APISupervisor ("api-layer")
	    └── HTTPServerService (admin API, when enabled)

Supervisor events (service start, failure, backoff) are logged through
sutureslog, which forwards to the zerolog global logger via the slog bridge
in internal/logging.

Usage:

	tree, err := supervisor.NewSupervisorTree(logging.NewSlogLogger("supervisor"), supervisor.DefaultTreeConfig())
	if err != nil {
	    return err
	}
	tree.AddSyncService(services.NewSyncService(manager))
	tree.AddAPIService(services.NewHTTPServerService(server, server.Addr, cfg.API.ShutdownTimeout))
	err = tree.Serve(ctx)

Serve blocks until ctx is cancelled; each service then receives the
cancellation and gets ShutdownTimeout to return.
*/
package supervisor
