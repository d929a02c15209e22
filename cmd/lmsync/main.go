// Lmsync - LMS Extraction and Identity Harmonization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/lmsync

// Package main is the entry point for the Lmsync service.
//
// Lmsync pulls sections, users, assignments and submissions from Schoology,
// Canvas and Google Classroom plus the student roster from an Ed-Fi ODS API,
// keeps change-tracked snapshots of them in DuckDB, and links LMS records to
// Ed-Fi students and sections.
//
// # Modes
//
//	lmsync                   supervised service: schedule, admin API, checkpoints
//	lmsync -once             one full run, then exit (non-zero on any failure)
//	lmsync -harmonize-only   one harmonization pass over stored data, then exit
//	lmsync -issue-token ops  print a trigger token signed with api.jwt_secret
//
// # Configuration
//
// Configuration is loaded via Koanf v2 with layered sources (highest priority wins):
//   - Environment variables (an optional .env file is read first)
//   - Config file (config.yaml, or CONFIG_PATH)
//   - Built-in defaults
//
// # Signal Handling
//
// SIGINT and SIGTERM cancel the root context. An in-flight run stops between
// resources, the admin API drains for api.shutdown_timeout, and the store
// takes a final checkpoint before closing.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/tomtom215/lmsync/internal/api"
	"github.com/tomtom215/lmsync/internal/auth"
	"github.com/tomtom215/lmsync/internal/config"
	"github.com/tomtom215/lmsync/internal/database"
	"github.com/tomtom215/lmsync/internal/events"
	"github.com/tomtom215/lmsync/internal/harmonizer"
	"github.com/tomtom215/lmsync/internal/logging"
	"github.com/tomtom215/lmsync/internal/models"
	"github.com/tomtom215/lmsync/internal/resourcesync"
	"github.com/tomtom215/lmsync/internal/runstate"
	"github.com/tomtom215/lmsync/internal/supervisor"
	"github.com/tomtom215/lmsync/internal/supervisor/services"
	syncpkg "github.com/tomtom215/lmsync/internal/sync"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

// tokenLifetime is the validity of tokens printed by -issue-token.
const tokenLifetime = 24 * time.Hour

type options struct {
	once          bool
	harmonizeOnly bool
	issueToken    string
}

func parseFlags(args []string) (options, error) {
	var opts options
	fs := flag.NewFlagSet("lmsync", flag.ContinueOnError)
	fs.BoolVar(&opts.once, "once", false, "run a single sync and exit")
	fs.BoolVar(&opts.harmonizeOnly, "harmonize-only", false, "run the harmonizer once over stored data and exit")
	fs.StringVar(&opts.issueToken, "issue-token", "", "print a manual-trigger token for `subject` and exit")
	if err := fs.Parse(args); err != nil {
		return opts, err
	}
	if opts.once && opts.harmonizeOnly {
		return opts, errors.New("-once and -harmonize-only are mutually exclusive")
	}
	return opts, nil
}

func main() {
	os.Exit(run(os.Args[1:]))
}

//nolint:gocyclo // sequential setup steps
func run(args []string) int {
	opts, err := parseFlags(args)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 2
	}

	cfg, err := config.Load()
	if err != nil {
		logging.Error().Err(err).Msg("Failed to load configuration")
		return 1
	}

	logging.Init(logging.Config{
		Level:     cfg.Logging.Level,
		Format:    cfg.Logging.Format,
		Caller:    cfg.Logging.Caller,
		Timestamp: true,
	})

	if opts.issueToken != "" {
		return issueToken(cfg.API.JWTSecret, opts.issueToken)
	}

	logging.Info().Str("version", version).Str("db_path", cfg.Database.Path).Msg("Starting Lmsync")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.New(&cfg.Database)
	if err != nil {
		logging.Error().Err(err).Msg("Failed to initialize database")
		return 1
	}
	defer database.CloseWithLog(db, "database")

	srcs, err := buildSources(cfg)
	if err != nil {
		logging.Error().Err(err).Msg("Failed to configure sources")
		return 1
	}

	deps := syncpkg.Deps{
		Sources: srcs,
		Writer:  resourcesync.NewWriter(db.Conn()),
	}
	if cfg.Harmonizer.Enabled {
		deps.Harmonizer = harmonizer.New(db.Conn(), harmonizer.Options{
			SeedDescriptors: cfg.Harmonizer.SeedDescriptors,
			SourceSystems:   cfg.SourceSystems(),
		})
	}

	runs, err := runstate.Open(cfg.RunState)
	if err != nil {
		logging.Error().Err(err).Msg("Failed to open run state store")
		return 1
	}
	defer database.CloseWithLog(runs, "run state store")
	deps.Runs = runs

	if cfg.Events.Enabled {
		pub, err := events.New(cfg.Events)
		if err != nil {
			logging.Error().Err(err).Msg("Failed to create event publisher")
			return 1
		}
		defer database.CloseWithLog(pub, "event publisher")
		deps.Events = pub
	}

	manager := syncpkg.NewManager(cfg.Sync, deps)

	switch {
	case opts.once:
		return reportRun(manager.RunOnce(ctx))
	case opts.harmonizeOnly:
		return reportRun(manager.RunHarmonizeOnly(ctx))
	}

	return serve(ctx, cfg, db, manager, runs)
}

// reportRun logs the outcome of a single run and maps it to an exit code.
func reportRun(summary *models.RunSummary, err error) int {
	if summary != nil {
		event := logging.Info()
		if summary.Status != models.RunStatusSuccess {
			event = logging.Warn()
		}
		event.Str("run_id", summary.ID).
			Str("status", summary.Status).
			Int("resources", len(summary.Resources)).
			Strs("errors", summary.Errors).
			Msg("Run finished")
	}
	if err != nil {
		logging.Error().Err(err).Msg("Run failed")
		return 1
	}
	return 0
}

func serve(ctx context.Context, cfg *config.Config, db *database.DB, manager *syncpkg.Manager, runs *runstate.Store) int {
	tree, err := supervisor.NewSupervisorTree(logging.NewSlogLogger("supervisor"), supervisor.TreeConfig{
		ShutdownTimeout: cfg.API.ShutdownTimeout + 5*time.Second,
	})
	if err != nil {
		logging.Error().Err(err).Msg("Failed to create supervisor tree")
		return 1
	}

	if cfg.Database.CheckpointInterval > 0 {
		tree.AddDataService(services.NewCheckpointService(db, cfg.Database.CheckpointInterval))
	}
	tree.AddSyncService(services.NewSyncService(manager))

	if cfg.API.Enabled {
		server, err := newAPIServer(cfg, db, manager, runs)
		if err != nil {
			logging.Error().Err(err).Msg("Failed to configure admin API")
			return 1
		}
		tree.AddAPIService(services.NewHTTPServerService(server, server.Addr, cfg.API.ShutdownTimeout))
	} else {
		logging.Info().Msg("Admin API disabled")
	}

	logging.Info().Msg("Starting supervisor tree...")
	errCh := tree.ServeBackground(ctx)

	select {
	case <-ctx.Done():
		logging.Info().Msg("Shutdown signal received, waiting for services to stop...")
	case err := <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("Supervisor tree error")
			return 1
		}
	}

	for err := range errCh {
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("Supervisor shutdown error")
		}
	}

	unstopped, _ := tree.UnstoppedServiceReport()
	for _, svc := range unstopped {
		logging.Warn().Str("service", svc.Name).Msg("Service failed to stop within timeout")
	}

	logging.Info().Msg("Lmsync stopped")
	return 0
}

func newAPIServer(cfg *config.Config, db *database.DB, manager *syncpkg.Manager, runs *runstate.Store) (*http.Server, error) {
	deps := api.HandlerDeps{
		DB:      db,
		Sync:    manager,
		Runs:    runs,
		Version: version,
	}
	if cfg.API.JWTSecret != "" {
		jwt, err := auth.NewJWTManager(cfg.API.JWTSecret, tokenLifetime)
		if err != nil {
			return nil, err
		}
		deps.JWT = jwt
	} else {
		logging.Warn().Msg("api.jwt_secret is empty; manual sync trigger is disabled")
	}

	router := api.NewRouter(api.NewHandler(deps), cfg.API)
	return &http.Server{
		Addr:              cfg.API.ListenAddr,
		Handler:           router.SetupChi(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}, nil
}

func issueToken(secret, subject string) int {
	m, err := auth.NewJWTManager(secret, tokenLifetime)
	if err != nil {
		logging.Error().Err(err).Msg("Cannot issue token without api.jwt_secret")
		return 1
	}
	token, err := m.GenerateToken(subject)
	if err != nil {
		logging.Error().Err(err).Msg("Failed to sign token")
		return 1
	}
	fmt.Println(token)
	return 0
}
