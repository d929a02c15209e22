// Lmsync - LMS Extraction and Identity Harmonization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/lmsync

// Package runstate persists the history of sync runs in BadgerDB.
//
// Each run summary is stored under a key ordered by start time, so history
// reads are a reverse prefix scan. The time of the last successful run is
// kept under its own key and survives history pruning.
package runstate

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"

	"github.com/tomtom215/lmsync/internal/config"
	"github.com/tomtom215/lmsync/internal/logging"
	"github.com/tomtom215/lmsync/internal/models"
)

var (
	// ErrStoreClosed is returned by operations on a closed store.
	ErrStoreClosed = errors.New("run state store closed")

	// ErrInvalidRun is returned when a run summary has no ID or start time.
	ErrInvalidRun = errors.New("run summary requires id and started_at")
)

const (
	prefixRun      = "run:"
	keyLastSuccess = "meta:last_success"

	defaultHistoryLimit = 100
)

// Store is a BadgerDB-backed run history.
//
// Thread Safety: Safe for concurrent use.
type Store struct {
	db           *badger.DB
	historyLimit int

	mu     sync.RWMutex
	closed bool
}

// Open opens (or creates) the store described by cfg.
func Open(cfg config.RunStateConfig) (*Store, error) {
	opts := badger.DefaultOptions(cfg.Path)
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	}
	// Reduce logging verbosity
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open run state store: %w", err)
	}

	limit := cfg.HistoryLimit
	if limit <= 0 {
		limit = defaultHistoryLimit
	}

	logging.Info().
		Str("path", cfg.Path).
		Bool("in_memory", cfg.InMemory).
		Int("history_limit", limit).
		Msg("Run state store opened")
	return &Store{db: db, historyLimit: limit}, nil
}

// runKey orders runs by start time, then ID.
func runKey(run *models.RunSummary) []byte {
	return []byte(fmt.Sprintf("%s%020d:%s", prefixRun, run.StartedAt.UnixNano(), run.ID))
}

func (s *Store) checkOpen() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrStoreClosed
	}
	return nil
}

// SaveRun writes run, replacing an earlier save of the same run. A
// successful run also advances the last success time. History beyond the
// configured limit is pruned, oldest first.
func (s *Store) SaveRun(ctx context.Context, run *models.RunSummary) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	if run == nil || run.ID == "" || run.StartedAt.IsZero() {
		return ErrInvalidRun
	}

	data, err := json.Marshal(run)
	if err != nil {
		return fmt.Errorf("marshal run: %w", err)
	}

	err = s.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set(runKey(run), data); err != nil {
			return fmt.Errorf("set run: %w", err)
		}
		if run.Status == models.RunStatusSuccess && !run.FinishedAt.IsZero() {
			ts, err := run.FinishedAt.UTC().MarshalText()
			if err != nil {
				return err
			}
			if err := txn.Set([]byte(keyLastSuccess), ts); err != nil {
				return fmt.Errorf("set last success: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	return s.prune(ctx)
}

// prune deletes the oldest runs beyond the history limit.
func (s *Store) prune(ctx context.Context) error {
	var stale [][]byte
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Reverse = true
		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := []byte(prefixRun)
		kept := 0
		for it.Seek(append(prefix, 0xff)); it.ValidForPrefix(prefix); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			kept++
			if kept > s.historyLimit {
				stale = append(stale, it.Item().KeyCopy(nil))
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("scan run history: %w", err)
	}
	if len(stale) == 0 {
		return nil
	}

	wb := s.db.NewWriteBatch()
	defer wb.Cancel()
	for _, key := range stale {
		if err := wb.Delete(key); err != nil {
			return fmt.Errorf("delete run: %w", err)
		}
	}
	if err := wb.Flush(); err != nil {
		return fmt.Errorf("prune run history: %w", err)
	}

	logging.Debug().Int("pruned", len(stale)).Msg("Pruned run history")
	return nil
}

// ListRuns returns up to limit runs, newest first. A limit of zero or less
// returns the whole history.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]models.RunSummary, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}

	runs := []models.RunSummary{}
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Reverse = true
		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := []byte(prefixRun)
		for it.Seek(append(prefix, 0xff)); it.ValidForPrefix(prefix); it.Next() {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}
			if limit > 0 && len(runs) >= limit {
				return nil
			}

			item := it.Item()
			var run models.RunSummary
			err := item.Value(func(val []byte) error {
				return json.Unmarshal(val, &run)
			})
			if err != nil {
				logging.Warn().Err(err).Str("key", string(item.Key())).Msg("Skipping unreadable run record")
				continue
			}
			runs = append(runs, run)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	return runs, nil
}

// LastRun returns the most recent run, if any.
func (s *Store) LastRun(ctx context.Context) (*models.RunSummary, error) {
	runs, err := s.ListRuns(ctx, 1)
	if err != nil || len(runs) == 0 {
		return nil, err
	}
	return &runs[0], nil
}

// LastSuccess returns the finish time of the last successful run. ok is
// false when no run has succeeded.
func (s *Store) LastSuccess() (t time.Time, ok bool, err error) {
	if err := s.checkOpen(); err != nil {
		return time.Time{}, false, err
	}

	err = s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(keyLastSuccess))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			if err := t.UnmarshalText(val); err != nil {
				return err
			}
			ok = true
			return nil
		})
	})
	if err != nil {
		return time.Time{}, false, fmt.Errorf("read last success: %w", err)
	}
	return t, ok, nil
}

// Close closes the underlying database. Further calls return ErrStoreClosed.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}
