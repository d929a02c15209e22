// Lmsync - LMS Extraction and Identity Harmonization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/lmsync

package api

import (
	"net/http"
	"time"

	"github.com/tomtom215/lmsync/internal/models"
)

const defaultRunsLimit = 20

// RunsRequest holds the query parameters of GET /api/v1/runs.
type RunsRequest struct {
	Limit int `json:"limit" validate:"min=1,max=500"`
}

// Runs lists recent run summaries, newest first.
func (h *Handler) Runs(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	limit, ok := getIntParam(r, "limit", defaultRunsLimit)
	if !ok {
		respondError(w, http.StatusBadRequest, "VALIDATION_ERROR", "limit must be an integer", nil)
		return
	}

	req := RunsRequest{Limit: limit}
	if apiErr := validateRequest(&req); apiErr != nil {
		respondError(w, http.StatusBadRequest, apiErr.Code, apiErr.Message, nil)
		return
	}

	if h.runs == nil {
		respondError(w, http.StatusServiceUnavailable, "SERVICE_UNAVAILABLE", "Run history is not available", nil)
		return
	}

	runs, err := h.runs.ListRuns(r.Context(), req.Limit)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "STORE_ERROR", "Failed to read run history", err)
		return
	}
	if runs == nil {
		runs = []models.RunSummary{}
	}

	respondSuccess(w, runs, start)
}
