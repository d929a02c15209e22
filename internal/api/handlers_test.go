// Lmsync - LMS Extraction and Identity Harmonization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/lmsync

package api

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/lmsync/internal/auth"
	"github.com/tomtom215/lmsync/internal/config"
	"github.com/tomtom215/lmsync/internal/database"
	"github.com/tomtom215/lmsync/internal/models"
	syncpkg "github.com/tomtom215/lmsync/internal/sync"
)

const testJWTSecret = "admin_api_test_secret_with_more_than_32_chars"

type mockSync struct {
	status     syncpkg.Status
	lastSync   time.Time
	triggerErr error
	triggers   int
}

func (m *mockSync) Status() syncpkg.Status  { return m.status }
func (m *mockSync) LastSyncTime() time.Time { return m.lastSync }
func (m *mockSync) TriggerAsync() error {
	m.triggers++
	return m.triggerErr
}

type mockRuns struct {
	runs      []models.RunSummary
	err       error
	lastLimit int
}

func (m *mockRuns) ListRuns(_ context.Context, limit int) ([]models.RunSummary, error) {
	m.lastLimit = limit
	if m.err != nil {
		return nil, m.err
	}
	if limit < len(m.runs) {
		return m.runs[:limit], nil
	}
	return m.runs, nil
}

type mockDB struct {
	pingErr  error
	counts   []database.TableCount
	countErr error
}

func (m *mockDB) Ping(context.Context) error { return m.pingErr }
func (m *mockDB) GetRecordCounts(context.Context) ([]database.TableCount, error) {
	return m.counts, m.countErr
}

type envelope struct {
	Status string           `json:"status"`
	Data   json.RawMessage  `json:"data"`
	Error  *models.APIError `json:"error"`
}

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
	return env
}

func newTestServer(t *testing.T, deps HandlerDeps, cfg config.APIConfig) http.Handler {
	t.Helper()
	return NewRouter(NewHandler(deps), cfg).SetupChi()
}

func testToken(t *testing.T) string {
	t.Helper()
	m, err := auth.NewJWTManager(testJWTSecret, time.Hour)
	if err != nil {
		t.Fatalf("NewJWTManager: %v", err)
	}
	token, err := m.GenerateToken("ops")
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}
	return token
}

func testJWT(t *testing.T) *auth.JWTManager {
	t.Helper()
	m, err := auth.NewJWTManager(testJWTSecret, time.Hour)
	if err != nil {
		t.Fatalf("NewJWTManager: %v", err)
	}
	return m
}

func TestHealth(t *testing.T) {
	lastSync := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name       string
		db         Database
		wantStatus string
		wantDB     bool
	}{
		{name: "healthy", db: &mockDB{}, wantStatus: "healthy", wantDB: true},
		{name: "ping failure", db: &mockDB{pingErr: errors.New("closed")}, wantStatus: "degraded"},
		{name: "no database", db: nil, wantStatus: "degraded"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newTestServer(t, HandlerDeps{
				DB:      tt.db,
				Sync:    &mockSync{lastSync: lastSync},
				Version: "test",
			}, config.APIConfig{})

			rec := httptest.NewRecorder()
			srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

			if rec.Code != http.StatusOK {
				t.Fatalf("status = %d, want 200", rec.Code)
			}
			env := decodeEnvelope(t, rec)
			var health HealthStatus
			if err := json.Unmarshal(env.Data, &health); err != nil {
				t.Fatalf("decode health: %v", err)
			}
			if health.Status != tt.wantStatus {
				t.Errorf("Status = %q, want %q", health.Status, tt.wantStatus)
			}
			if health.DatabaseConnected != tt.wantDB {
				t.Errorf("DatabaseConnected = %v, want %v", health.DatabaseConnected, tt.wantDB)
			}
			if health.LastSync == nil || !health.LastSync.Equal(lastSync) {
				t.Errorf("LastSync = %v, want %v", health.LastSync, lastSync)
			}
			if rec.Header().Get("X-Request-ID") == "" {
				t.Error("missing X-Request-ID header")
			}
		})
	}
}

func TestStatus(t *testing.T) {
	sync := &mockSync{status: syncpkg.Status{
		Running:  true,
		Sources:  []string{models.SourceEdFi, models.SourceCanvas},
		Breakers: map[string]string{models.SourceCanvas: "open"},
	}}
	db := &mockDB{counts: []database.TableCount{{Table: "lms.LMSUser", Rows: 4, Deleted: 1}}}

	t.Run("with counts", func(t *testing.T) {
		srv := newTestServer(t, HandlerDeps{DB: db, Sync: sync}, config.APIConfig{})
		rec := httptest.NewRecorder()
		srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/status", nil))

		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d, want 200", rec.Code)
		}
		var resp StatusResponse
		if err := json.Unmarshal(decodeEnvelope(t, rec).Data, &resp); err != nil {
			t.Fatalf("decode status: %v", err)
		}
		if resp.Sync == nil || !resp.Sync.Running || len(resp.Sync.Sources) != 2 {
			t.Errorf("Sync = %+v", resp.Sync)
		}
		if resp.Sync != nil && resp.Sync.Breakers[models.SourceCanvas] != "open" {
			t.Errorf("Breakers = %v, want Canvas open", resp.Sync.Breakers)
		}
		if len(resp.Tables) != 1 || resp.Tables[0].Rows != 4 || resp.Tables[0].Deleted != 1 {
			t.Errorf("Tables = %+v", resp.Tables)
		}
		if rec.Header().Get("X-Content-Type-Options") != "nosniff" {
			t.Error("missing security headers on /api/v1 routes")
		}
	})

	t.Run("count failure still serves state", func(t *testing.T) {
		srv := newTestServer(t, HandlerDeps{DB: &mockDB{countErr: errors.New("boom")}, Sync: sync}, config.APIConfig{})
		rec := httptest.NewRecorder()
		srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/status", nil))

		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d, want 200", rec.Code)
		}
		var resp StatusResponse
		if err := json.Unmarshal(decodeEnvelope(t, rec).Data, &resp); err != nil {
			t.Fatalf("decode status: %v", err)
		}
		if resp.Sync == nil || resp.Tables != nil {
			t.Errorf("resp = %+v, want sync state without tables", resp)
		}
	})
}

func TestRuns(t *testing.T) {
	history := make([]models.RunSummary, 30)
	for i := range history {
		history[i] = models.RunSummary{ID: strings.Repeat("r", i+1), Status: models.RunStatusSuccess}
	}

	tests := []struct {
		name      string
		query     string
		runs      *mockRuns
		wantCode  int
		wantErr   string
		wantLimit int
		wantCount int
	}{
		{name: "default limit", query: "", runs: &mockRuns{runs: history}, wantCode: http.StatusOK, wantLimit: defaultRunsLimit, wantCount: defaultRunsLimit},
		{name: "explicit limit", query: "?limit=5", runs: &mockRuns{runs: history}, wantCode: http.StatusOK, wantLimit: 5, wantCount: 5},
		{name: "max limit", query: "?limit=500", runs: &mockRuns{runs: history}, wantCode: http.StatusOK, wantLimit: 500, wantCount: 30},
		{name: "empty history", query: "", runs: &mockRuns{}, wantCode: http.StatusOK, wantLimit: defaultRunsLimit, wantCount: 0},
		{name: "over max", query: "?limit=501", runs: &mockRuns{}, wantCode: http.StatusBadRequest, wantErr: "VALIDATION_ERROR"},
		{name: "zero", query: "?limit=0", runs: &mockRuns{}, wantCode: http.StatusBadRequest, wantErr: "VALIDATION_ERROR"},
		{name: "not a number", query: "?limit=ten", runs: &mockRuns{}, wantCode: http.StatusBadRequest, wantErr: "VALIDATION_ERROR"},
		{name: "store failure", query: "", runs: &mockRuns{err: errors.New("badger closed")}, wantCode: http.StatusInternalServerError, wantErr: "STORE_ERROR"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newTestServer(t, HandlerDeps{Runs: tt.runs}, config.APIConfig{})
			rec := httptest.NewRecorder()
			srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/runs"+tt.query, nil))

			if rec.Code != tt.wantCode {
				t.Fatalf("status = %d, want %d (body %s)", rec.Code, tt.wantCode, rec.Body.String())
			}
			env := decodeEnvelope(t, rec)
			if tt.wantErr != "" {
				if env.Error == nil || env.Error.Code != tt.wantErr {
					t.Errorf("error = %+v, want code %s", env.Error, tt.wantErr)
				}
				return
			}
			if tt.runs.lastLimit != tt.wantLimit {
				t.Errorf("ListRuns limit = %d, want %d", tt.runs.lastLimit, tt.wantLimit)
			}
			var runs []models.RunSummary
			if err := json.Unmarshal(env.Data, &runs); err != nil {
				t.Fatalf("decode runs: %v", err)
			}
			if len(runs) != tt.wantCount {
				t.Errorf("len(runs) = %d, want %d", len(runs), tt.wantCount)
			}
		})
	}
}

func TestTriggerSync(t *testing.T) {
	token := testToken(t)

	tests := []struct {
		name         string
		jwt          bool
		header       string
		triggerErr   error
		wantCode     int
		wantErr      string
		wantTriggers int
	}{
		{name: "accepted", jwt: true, header: "Bearer " + token, wantCode: http.StatusAccepted, wantTriggers: 1},
		{name: "disabled without secret", jwt: false, header: "Bearer " + token, wantCode: http.StatusForbidden, wantErr: "FORBIDDEN"},
		{name: "missing token", jwt: true, header: "", wantCode: http.StatusUnauthorized, wantErr: "AUTHENTICATION_ERROR"},
		{name: "bad token", jwt: true, header: "Bearer nope", wantCode: http.StatusUnauthorized, wantErr: "AUTHENTICATION_ERROR"},
		{name: "run in progress", jwt: true, header: "Bearer " + token, triggerErr: syncpkg.ErrRunInProgress, wantCode: http.StatusConflict, wantErr: "RUN_IN_PROGRESS", wantTriggers: 1},
		{name: "manager stopped", jwt: true, header: "Bearer " + token, triggerErr: syncpkg.ErrNotRunning, wantCode: http.StatusServiceUnavailable, wantErr: "SERVICE_UNAVAILABLE", wantTriggers: 1},
		{name: "trigger failure", jwt: true, header: "Bearer " + token, triggerErr: errors.New("stopped"), wantCode: http.StatusInternalServerError, wantErr: "SYNC_ERROR", wantTriggers: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sync := &mockSync{triggerErr: tt.triggerErr}
			deps := HandlerDeps{Sync: sync}
			if tt.jwt {
				deps.JWT = testJWT(t)
			}
			srv := newTestServer(t, deps, config.APIConfig{TriggerRateLimit: 100})

			req := httptest.NewRequest(http.MethodPost, "/api/v1/sync", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			srv.ServeHTTP(rec, req)

			if rec.Code != tt.wantCode {
				t.Fatalf("status = %d, want %d (body %s)", rec.Code, tt.wantCode, rec.Body.String())
			}
			if sync.triggers != tt.wantTriggers {
				t.Errorf("TriggerAsync calls = %d, want %d", sync.triggers, tt.wantTriggers)
			}
			env := decodeEnvelope(t, rec)
			if tt.wantErr == "" {
				if env.Status != "accepted" {
					t.Errorf("envelope status = %q, want accepted", env.Status)
				}
				return
			}
			if env.Error == nil || env.Error.Code != tt.wantErr {
				t.Errorf("error = %+v, want code %s", env.Error, tt.wantErr)
			}
		})
	}
}

func TestTriggerSync_RateLimited(t *testing.T) {
	token := testToken(t)
	sync := &mockSync{}
	srv := newTestServer(t, HandlerDeps{Sync: sync, JWT: testJWT(t)}, config.APIConfig{TriggerRateLimit: 2})

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/sync", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		rec := httptest.NewRecorder()
		srv.ServeHTTP(rec, req)
		codes = append(codes, rec.Code)
	}

	want := []int{http.StatusAccepted, http.StatusAccepted, http.StatusTooManyRequests}
	for i := range want {
		if codes[i] != want[i] {
			t.Fatalf("status codes = %v, want %v", codes, want)
		}
	}
	if sync.triggers != 2 {
		t.Errorf("TriggerAsync calls = %d, want 2", sync.triggers)
	}
}

func TestRouter_FallbackHandlers(t *testing.T) {
	srv := newTestServer(t, HandlerDeps{}, config.APIConfig{})

	tests := []struct {
		name     string
		method   string
		path     string
		wantCode int
		wantErr  string
	}{
		{name: "unknown route", method: http.MethodGet, path: "/api/v1/nope", wantCode: http.StatusNotFound, wantErr: "NOT_FOUND"},
		{name: "wrong method", method: http.MethodGet, path: "/api/v1/sync", wantCode: http.StatusMethodNotAllowed, wantErr: "METHOD_NOT_ALLOWED"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			srv.ServeHTTP(rec, httptest.NewRequest(tt.method, tt.path, nil))
			if rec.Code != tt.wantCode {
				t.Fatalf("status = %d, want %d", rec.Code, tt.wantCode)
			}
			if env := decodeEnvelope(t, rec); env.Error == nil || env.Error.Code != tt.wantErr {
				t.Errorf("error = %+v, want %s", env.Error, tt.wantErr)
			}
		})
	}
}

func TestMetricsEndpoint(t *testing.T) {
	srv := newTestServer(t, HandlerDeps{}, config.APIConfig{})

	// Generate at least one labelled API sample first.
	srv.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/health", nil))

	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "lmsync_api_requests_total") {
		t.Error("metrics output missing lmsync_api_requests_total")
	}
}
