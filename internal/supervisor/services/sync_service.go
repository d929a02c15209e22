// Lmsync - LMS Extraction and Identity Harmonization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/lmsync

package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/tomtom215/lmsync/internal/logging"
	syncpkg "github.com/tomtom215/lmsync/internal/sync"
)

// StartStopManager is the part of the run manager the supervisor drives.
type StartStopManager interface {
	Start(ctx context.Context) error
	Stop() error
}

// SyncService keeps the run manager's schedule alive under suture. A failed
// Start is returned so suture backs off and retries; cancellation stops the
// manager, which waits for an in-flight run.
type SyncService struct {
	manager StartStopManager
}

func NewSyncService(manager StartStopManager) *SyncService {
	return &SyncService{manager: manager}
}

func (s *SyncService) Serve(ctx context.Context) error {
	if err := s.manager.Start(ctx); err != nil {
		return fmt.Errorf("start sync manager: %w", err)
	}
	<-ctx.Done()

	logging.Debug().Str("service", s.String()).Msg("Stopping sync manager")
	err := s.manager.Stop()
	switch {
	case err == nil, errors.Is(err, syncpkg.ErrNotRunning):
		return ctx.Err()
	default:
		return fmt.Errorf("stop sync manager: %w", err)
	}
}

func (s *SyncService) String() string { return "sync-manager" }
