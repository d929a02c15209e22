// Lmsync - LMS Extraction and Identity Harmonization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/lmsync

package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/tomtom215/lmsync/internal/auth"
	"github.com/tomtom215/lmsync/internal/logging"
	"github.com/tomtom215/lmsync/internal/models"
	syncpkg "github.com/tomtom215/lmsync/internal/sync"
)

// TriggerResponse is the body of an accepted manual trigger.
type TriggerResponse struct {
	Message string `json:"message"`
	Subject string `json:"subject,omitempty"`
}

// TriggerSync starts a manual run in the background and answers 202.
func (h *Handler) TriggerSync(w http.ResponseWriter, r *http.Request) {
	if h.jwt == nil {
		respondError(w, http.StatusForbidden, "FORBIDDEN", "Manual sync trigger is disabled", nil)
		return
	}

	claims, err := h.jwt.Authorize(r.Header.Get("Authorization"), auth.ScopeTrigger)
	if err != nil {
		w.Header().Set("WWW-Authenticate", `Bearer realm="lmsync"`)
		if errors.Is(err, auth.ErrScope) {
			respondError(w, http.StatusForbidden, "FORBIDDEN", "Token lacks the sync:trigger scope", nil)
			return
		}
		logging.Ctx(r.Context()).Warn().Str("error", sanitizeLogValue(err.Error())).Msg("Rejected manual sync trigger")
		respondError(w, http.StatusUnauthorized, "AUTHENTICATION_ERROR", "Invalid or missing bearer token", nil)
		return
	}

	if h.sync == nil {
		respondError(w, http.StatusServiceUnavailable, "SERVICE_UNAVAILABLE", "Sync manager is not available", nil)
		return
	}

	if err := h.sync.TriggerAsync(); err != nil {
		if errors.Is(err, syncpkg.ErrRunInProgress) {
			respondError(w, http.StatusConflict, "RUN_IN_PROGRESS", "A sync run is already in progress", nil)
			return
		}
		if errors.Is(err, syncpkg.ErrNotRunning) {
			respondError(w, http.StatusServiceUnavailable, "SERVICE_UNAVAILABLE", "Sync manager is not running", nil)
			return
		}
		respondError(w, http.StatusInternalServerError, "SYNC_ERROR", "Failed to start sync", err)
		return
	}

	logging.Ctx(r.Context()).Info().Str("subject", sanitizeLogValue(claims.Subject)).Msg("Manual sync triggered")

	respondJSON(w, http.StatusAccepted, &models.APIResponse{
		Status: "accepted",
		Data: TriggerResponse{
			Message: "Sync started",
			Subject: claims.Subject,
		},
		Metadata: models.Metadata{Timestamp: time.Now()},
	})
}
