// Lmsync - LMS Extraction and Identity Harmonization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/lmsync

package sync

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/tomtom215/lmsync/internal/config"
	"github.com/tomtom215/lmsync/internal/logging"
	"github.com/tomtom215/lmsync/internal/models"
	"github.com/tomtom215/lmsync/internal/sources"
)

var (
	// ErrRunInProgress is returned when a run is requested while another runs.
	ErrRunInProgress = errors.New("a sync run is already in progress")

	// ErrNotRunning is returned by TriggerAsync before Start or after Stop.
	ErrNotRunning = errors.New("sync manager is not running")
)

// Deps are the collaborators of a Manager. Harmonizer, Runs and Events are
// optional.
type Deps struct {
	Sources    []sources.Source
	Writer     Writer
	Harmonizer Harmonizer
	Runs       RunStore
	Events     EventPublisher
}

// Status is a point-in-time view of the manager.
type Status struct {
	Running     bool               `json:"running"`
	InProgress  bool               `json:"in_progress"`
	LastSuccess time.Time          `json:"last_success,omitempty"`
	LastRun     *models.RunSummary `json:"last_run,omitempty"`
	Sources     []string           `json:"sources"`
	// Breakers maps source name to circuit breaker state for sources that
	// report one.
	Breakers map[string]string `json:"breakers,omitempty"`
}

// Manager schedules and executes extraction runs.
type Manager struct {
	cfg        config.SyncConfig
	sources    []sources.Source
	writer     Writer
	harmonizer Harmonizer
	runs       RunStore
	events     EventPublisher

	mu         sync.RWMutex
	running    bool
	inProgress bool
	lastSync   time.Time
	lastRun    *models.RunSummary

	runMu    sync.Mutex // held for the duration of a run
	group    singleflight.Group
	stopChan chan struct{}
	baseCtx  context.Context
	wg       sync.WaitGroup

	now func() time.Time
}

// NewManager creates a Manager. Sources are reordered so that the Ed-Fi
// roster syncs first; the relative order of the others is kept.
func NewManager(cfg config.SyncConfig, deps Deps) *Manager {
	ordered := append([]sources.Source(nil), deps.Sources...)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Name() == models.SourceEdFi && ordered[j].Name() != models.SourceEdFi
	})

	m := &Manager{
		cfg:        cfg,
		sources:    ordered,
		writer:     deps.Writer,
		harmonizer: deps.Harmonizer,
		runs:       deps.Runs,
		events:     deps.Events,
		baseCtx:    context.Background(),
		now:        time.Now,
	}

	if m.runs != nil {
		if t, ok, err := m.runs.LastSuccess(); err != nil {
			logging.Warn().Err(err).Msg("Could not read last successful run")
		} else if ok {
			m.lastSync = t
		}
	}

	logging.Info().
		Strs("sources", m.SourceNames()).
		Dur("interval", cfg.Interval).
		Bool("run_on_start", cfg.RunOnStart).
		Bool("soft_delete_missing", cfg.SoftDeleteMissing).
		Bool("harmonizer", m.harmonizer != nil).
		Msg("Sync manager config loaded")
	return m
}

// SourceNames returns the source labels in run order.
func (m *Manager) SourceNames() []string {
	names := make([]string, 0, len(m.sources))
	for _, s := range m.sources {
		names = append(names, s.Name())
	}
	return names
}

// Start begins the periodic schedule.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return fmt.Errorf("sync manager is already running")
	}
	m.running = true
	m.stopChan = make(chan struct{})
	m.baseCtx = ctx
	m.mu.Unlock()

	logging.Info().Msg("Starting sync manager...")

	if m.cfg.RunOnStart {
		m.wg.Add(1)
		go func() {
			defer m.wg.Done()
			if _, err := m.run(ctx, models.TriggerStartup); err != nil {
				logging.Warn().Err(err).Msg("Initial sync failed (will retry on schedule)")
			}
		}()
	}

	if m.cfg.Interval > 0 {
		m.wg.Add(1)
		go m.syncLoop(ctx)
	} else {
		logging.Info().Msg("Periodic sync disabled (interval 0), runs on trigger only")
	}
	return nil
}

// syncLoop runs the periodic synchronization
func (m *Manager) syncLoop(ctx context.Context) {
	defer m.wg.Done()

	ticker := time.NewTicker(m.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-m.stopChan:
			return
		case <-ticker.C:
			if _, err := m.run(ctx, models.TriggerSchedule); err != nil {
				if errors.Is(err, ErrRunInProgress) {
					logging.Info().Msg("Scheduled sync skipped, previous run still in progress")
					continue
				}
				logging.Error().Err(err).Msg("Sync failed")
			}
		}
	}
}

// Stop stops the schedule and waits for in-flight runs.
func (m *Manager) Stop() error {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return ErrNotRunning
	}
	m.running = false
	m.mu.Unlock()

	logging.Info().Msg("Stopping sync manager...")
	close(m.stopChan)
	m.wg.Wait()
	logging.Info().Msg("Sync manager stopped")
	return nil
}

// LastSyncTime returns the finish time of the last successful run.
func (m *Manager) LastSyncTime() time.Time {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lastSync
}

// Status returns the current manager state.
func (m *Manager) Status() Status {
	m.mu.RLock()
	status := Status{
		Running:     m.running,
		InProgress:  m.inProgress,
		LastSuccess: m.lastSync,
		LastRun:     m.lastRun,
		Sources:     m.SourceNames(),
	}
	m.mu.RUnlock()

	for _, s := range m.sources {
		if r, ok := s.(sources.BreakerReporter); ok {
			if status.Breakers == nil {
				status.Breakers = make(map[string]string, len(m.sources))
			}
			status.Breakers[s.Name()] = r.BreakerState()
		}
	}
	return status
}

// TriggerSync runs a manual sync and waits for it. Concurrent callers share
// the same run and its summary.
func (m *Manager) TriggerSync(ctx context.Context) (*models.RunSummary, error) {
	v, err, _ := m.group.Do("manual", func() (interface{}, error) {
		return m.run(ctx, models.TriggerManual)
	})
	run, _ := v.(*models.RunSummary)
	return run, err
}

// TriggerAsync starts a manual run in the background. It returns
// ErrRunInProgress when a run is already executing and ErrNotRunning when
// the manager has not been started.
func (m *Manager) TriggerAsync() error {
	// The running check and wg.Add share the lock Stop takes to clear
	// running, so no Add can follow Stop's Wait.
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.running {
		return ErrNotRunning
	}
	if m.inProgress {
		return ErrRunInProgress
	}

	ctx := m.baseCtx
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		if _, err := m.TriggerSync(ctx); err != nil && !errors.Is(err, ErrRunInProgress) {
			logging.Error().Err(err).Msg("Manual sync failed")
		}
	}()
	return nil
}

// RunOnce executes a single run. The returned error is non-nil when the run
// did not fully succeed.
func (m *Manager) RunOnce(ctx context.Context) (*models.RunSummary, error) {
	return m.run(ctx, models.TriggerOnce)
}

// RunHarmonizeOnly executes the harmonizer without syncing any source.
func (m *Manager) RunHarmonizeOnly(ctx context.Context) (*models.RunSummary, error) {
	if m.harmonizer == nil {
		return nil, fmt.Errorf("harmonizer is disabled")
	}
	return m.run(ctx, models.TriggerHarmonize)
}
