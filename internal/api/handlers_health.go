// Lmsync - LMS Extraction and Identity Harmonization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/lmsync

package api

import (
	"context"
	"net/http"
	"time"

	"github.com/tomtom215/lmsync/internal/database"
	"github.com/tomtom215/lmsync/internal/logging"
	syncpkg "github.com/tomtom215/lmsync/internal/sync"
)

// healthTimeout bounds database calls made while answering health and status.
const healthTimeout = 5 * time.Second

// HealthStatus is the body of GET /health.
type HealthStatus struct {
	Status            string     `json:"status"` // "healthy" or "degraded"
	Version           string     `json:"version,omitempty"`
	DatabaseConnected bool       `json:"database_connected"`
	LastSync          *time.Time `json:"last_sync,omitempty"`
	Uptime            float64    `json:"uptime_seconds"`
}

// StatusResponse is the body of GET /api/v1/status.
type StatusResponse struct {
	Sync   *syncpkg.Status       `json:"sync,omitempty"`
	Tables []database.TableCount `json:"tables,omitempty"`
}

// Health reports liveness and database connectivity. It always answers 200;
// a failed database ping marks the body as degraded.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
	defer cancel()

	dbConnected := h.db != nil && h.db.Ping(ctx) == nil

	status := "healthy"
	if !dbConnected {
		status = "degraded"
	}

	var lastSyncPtr *time.Time
	if h.sync != nil {
		if lastSync := h.sync.LastSyncTime(); !lastSync.IsZero() {
			lastSyncPtr = &lastSync
		}
	}

	respondSuccess(w, HealthStatus{
		Status:            status,
		Version:           h.version,
		DatabaseConnected: dbConnected,
		LastSync:          lastSyncPtr,
		Uptime:            time.Since(h.startTime).Seconds(),
	}, start)
}

// Status returns the run manager state and table row counts.
func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	var resp StatusResponse
	if h.sync != nil {
		s := h.sync.Status()
		resp.Sync = &s
	}

	if h.db != nil {
		ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
		defer cancel()

		counts, err := h.db.GetRecordCounts(ctx)
		if err != nil {
			// Counts are informational; the manager state is still served.
			logging.Ctx(r.Context()).Warn().Err(err).Msg("Failed to read table counts")
		} else {
			resp.Tables = counts
		}
	}

	respondSuccess(w, resp, start)
}
