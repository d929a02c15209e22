// Lmsync - LMS Extraction and Identity Harmonization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/lmsync

package api

import (
	"context"
	"time"

	"github.com/tomtom215/lmsync/internal/auth"
	"github.com/tomtom215/lmsync/internal/database"
	"github.com/tomtom215/lmsync/internal/models"
	syncpkg "github.com/tomtom215/lmsync/internal/sync"
)

// SyncController is the part of the run manager the API drives.
type SyncController interface {
	Status() syncpkg.Status
	TriggerAsync() error
	LastSyncTime() time.Time
}

// RunHistory lists persisted run summaries.
type RunHistory interface {
	ListRuns(ctx context.Context, limit int) ([]models.RunSummary, error)
}

// Database is the store view used for health and status.
type Database interface {
	Ping(ctx context.Context) error
	GetRecordCounts(ctx context.Context) ([]database.TableCount, error)
}

// Handler contains dependencies for API handlers.
// Any dependency may be nil; the endpoints that need it degrade accordingly.
type Handler struct {
	db        Database
	sync      SyncController
	runs      RunHistory
	jwt       *auth.JWTManager
	version   string
	startTime time.Time
}

// HandlerDeps groups the constructor arguments of NewHandler.
type HandlerDeps struct {
	DB      Database
	Sync    SyncController
	Runs    RunHistory
	JWT     *auth.JWTManager // nil disables the trigger endpoint
	Version string
}

// NewHandler creates a new API handler.
func NewHandler(deps HandlerDeps) *Handler {
	return &Handler{
		db:        deps.DB,
		sync:      deps.Sync,
		runs:      deps.Runs,
		jwt:       deps.JWT,
		version:   deps.Version,
		startTime: time.Now(),
	}
}
