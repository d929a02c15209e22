// Lmsync - LMS Extraction and Identity Harmonization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/lmsync

package sync

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/tomtom215/lmsync/internal/config"
	"github.com/tomtom215/lmsync/internal/models"
	"github.com/tomtom215/lmsync/internal/resourcesync"
	"github.com/tomtom215/lmsync/internal/sources"
)

// recorder collects the calls made by fakes in order.
type recorder struct {
	mu    sync.Mutex
	calls []string
}

func (r *recorder) add(format string, args ...any) {
	r.mu.Lock()
	r.calls = append(r.calls, fmt.Sprintf(format, args...))
	r.mu.Unlock()
}

func (r *recorder) list() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.calls...)
}

type fakeSource struct {
	name      string
	resources []*models.Resource
	fail      map[*models.Resource]error
	rec       *recorder
	block     chan struct{} // when set, Fetch waits on it
}

var _ sources.Source = (*fakeSource)(nil)

func (s *fakeSource) Name() string                  { return s.name }
func (s *fakeSource) Resources() []*models.Resource { return s.resources }

func (s *fakeSource) Fetch(ctx context.Context, res *models.Resource) ([]models.Record, error) {
	if s.block != nil {
		<-s.block
	}
	s.rec.add("fetch %s %s", s.name, res.Name)
	if err := s.fail[res]; err != nil {
		return nil, err
	}
	return []models.Record{{"SourceSystemIdentifier": "1", "SourceSystem": s.name}}, nil
}

type fakeWriter struct {
	rec       *recorder
	failWrite error
	scopes    []map[string]any
}

func (w *fakeWriter) SyncWithoutCleanup(_ context.Context, res *models.Resource, records []models.Record) (resourcesync.Reconciled, error) {
	w.rec.add("write %s %d", res.Name, len(records))
	if w.failWrite != nil {
		return resourcesync.Reconciled{}, w.failWrite
	}
	return resourcesync.Reconciled{Inserted: len(records)}, nil
}

func (w *fakeWriter) SoftDeleteMissing(_ context.Context, res *models.Resource, scope map[string]any) (int, error) {
	w.rec.add("soft-delete %s", res.Name)
	w.scopes = append(w.scopes, scope)
	return 2, nil
}

func (w *fakeWriter) CleanupAfterSync(_ context.Context, res *models.Resource) error {
	w.rec.add("cleanup %s", res.Name)
	return nil
}

type fakeHarmonizer struct {
	rec *recorder
	err error
}

func (h *fakeHarmonizer) Run(context.Context) (models.HarmonizeReport, error) {
	h.rec.add("harmonize")
	report := models.HarmonizeReport{Steps: []models.HarmonizeStep{{Step: "users", Linked: 1}}}
	if h.err != nil {
		report.Error = h.err.Error()
	}
	return report, h.err
}

type fakeRunStore struct {
	mu    sync.Mutex
	saved []models.RunSummary
	last  time.Time
}

func (s *fakeRunStore) SaveRun(_ context.Context, run *models.RunSummary) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saved = append(s.saved, *run)
	return nil
}

func (s *fakeRunStore) LastSuccess() (time.Time, bool, error) {
	return s.last, !s.last.IsZero(), nil
}

type fakeEvents struct {
	rec *recorder
}

func (e *fakeEvents) ResourceSynced(_ context.Context, _ string, r models.ResourceResult) error {
	e.rec.add("event resource %s", r.Resource)
	return nil
}

func (e *fakeEvents) HarmonizeCompleted(context.Context, string, *models.HarmonizeReport) error {
	e.rec.add("event harmonize")
	return nil
}

func (e *fakeEvents) RunCompleted(_ context.Context, run *models.RunSummary) error {
	e.rec.add("event run %s", run.Status)
	return nil
}

func lmsSource(name string, rec *recorder) *fakeSource {
	return &fakeSource{name: name, resources: []*models.Resource{models.LMSSection, models.LMSUser}, rec: rec}
}

func edfiSource(rec *recorder) *fakeSource {
	return &fakeSource{name: models.SourceEdFi, resources: []*models.Resource{models.EdFiStudent}, rec: rec}
}

func TestManager_RunOrder(t *testing.T) {
	rec := &recorder{}
	m := NewManager(config.SyncConfig{}, Deps{
		Sources:    []sources.Source{lmsSource("Canvas", rec), edfiSource(rec)},
		Writer:     &fakeWriter{rec: rec},
		Harmonizer: &fakeHarmonizer{rec: rec},
	})

	summary, err := m.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce() error = %v", err)
	}

	want := []string{
		"fetch EdFi Student", "write Student 1", "cleanup Student",
		"fetch Canvas LMSSection", "write LMSSection 1", "cleanup LMSSection",
		"fetch Canvas LMSUser", "write LMSUser 1", "cleanup LMSUser",
		"harmonize",
	}
	if got := rec.list(); fmt.Sprint(got) != fmt.Sprint(want) {
		t.Errorf("calls =\n%v\nwant\n%v", got, want)
	}
	if summary.Status != models.RunStatusSuccess || summary.Trigger != models.TriggerOnce {
		t.Errorf("summary = %+v", summary)
	}
	if len(summary.Resources) != 3 || summary.Resources[0].Resource != "edfi.Student" || summary.Resources[1].Inserted != 1 {
		t.Errorf("resources = %+v", summary.Resources)
	}
	if summary.Harmonize == nil || summary.Harmonize.Step("users").Linked != 1 {
		t.Errorf("harmonize = %+v", summary.Harmonize)
	}
	if m.LastSyncTime().IsZero() {
		t.Error("LastSyncTime() not advanced after success")
	}
}

func TestManager_SourceFailureIsolation(t *testing.T) {
	rec := &recorder{}
	schoology := lmsSource("Schoology", rec)
	schoology.fail = map[*models.Resource]error{models.LMSSection: errors.New("boom")}
	canvas := lmsSource("Canvas", rec)
	store := &fakeRunStore{}

	m := NewManager(config.SyncConfig{}, Deps{
		Sources:    []sources.Source{schoology, canvas},
		Writer:     &fakeWriter{rec: rec},
		Harmonizer: &fakeHarmonizer{rec: rec},
		Runs:       store,
	})

	summary, err := m.RunOnce(context.Background())
	if err == nil {
		t.Fatal("RunOnce() error = nil, want failure")
	}
	if summary.Status != models.RunStatusPartial {
		t.Errorf("Status = %q, want partial", summary.Status)
	}

	calls := rec.list()
	for _, c := range calls {
		if c == "fetch Schoology LMSUser" {
			t.Error("remaining resource of failed source was fetched")
		}
	}
	if calls[len(calls)-1] != "harmonize" {
		t.Errorf("harmonizer did not run last: %v", calls)
	}

	byKey := map[string]models.ResourceResult{}
	for _, r := range summary.Resources {
		byKey[r.SourceSystem+" "+r.Resource] = r
	}
	if r := byKey["Schoology lms.LMSSection"]; r.Error == "" {
		t.Errorf("failed resource has no error: %+v", r)
	}
	if r := byKey["Schoology lms.LMSUser"]; !r.Skipped {
		t.Errorf("remaining resource not skipped: %+v", r)
	}
	if r := byKey["Canvas lms.LMSUser"]; r.Inserted != 1 || r.Error != "" {
		t.Errorf("other source affected: %+v", r)
	}
	if len(summary.Errors) != 1 {
		t.Errorf("Errors = %v", summary.Errors)
	}
	if !m.LastSyncTime().IsZero() {
		t.Error("LastSyncTime() advanced after partial run")
	}

	if len(store.saved) != 2 || store.saved[0].Status != models.RunStatusRunning || store.saved[1].Status != models.RunStatusPartial {
		t.Errorf("saved statuses = %+v", store.saved)
	}
}

func TestManager_RunStatus(t *testing.T) {
	tests := []struct {
		name       string
		writeErr   error
		harmErr    error
		harmonizer bool
		want       string
	}{
		{"all ok", nil, nil, true, models.RunStatusSuccess},
		{"writes fail, harmonizer ok", errors.New("disk"), nil, true, models.RunStatusPartial},
		{"everything fails", errors.New("disk"), errors.New("sql"), true, models.RunStatusFailed},
		{"writes fail, no harmonizer", errors.New("disk"), nil, false, models.RunStatusFailed},
		{"harmonizer fails", nil, errors.New("sql"), true, models.RunStatusPartial},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := &recorder{}
			deps := Deps{
				Sources: []sources.Source{lmsSource("Canvas", rec)},
				Writer:  &fakeWriter{rec: rec, failWrite: tt.writeErr},
			}
			if tt.harmonizer {
				deps.Harmonizer = &fakeHarmonizer{rec: rec, err: tt.harmErr}
			}
			summary, _ := NewManager(config.SyncConfig{}, deps).RunOnce(context.Background())
			if summary.Status != tt.want {
				t.Errorf("Status = %q, want %q (errors %v)", summary.Status, tt.want, summary.Errors)
			}
		})
	}
}

func TestManager_SoftDeleteScope(t *testing.T) {
	rec := &recorder{}
	w := &fakeWriter{rec: rec}
	m := NewManager(config.SyncConfig{SoftDeleteMissing: true}, Deps{
		Sources: []sources.Source{edfiSource(rec), lmsSource("Canvas", rec)},
		Writer:  w,
	})

	summary, err := m.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce() error = %v", err)
	}
	if len(w.scopes) != 3 {
		t.Fatalf("soft delete calls = %d, want 3", len(w.scopes))
	}
	if w.scopes[0] != nil {
		t.Errorf("edfi scope = %v, want nil", w.scopes[0])
	}
	if w.scopes[1][models.SourceSystemColumn] != "Canvas" {
		t.Errorf("lms scope = %v", w.scopes[1])
	}
	if summary.Resources[1].SoftDeleted != 2 {
		t.Errorf("SoftDeleted = %d, want 2", summary.Resources[1].SoftDeleted)
	}

	want := []string{"fetch Canvas LMSSection", "write LMSSection 1", "soft-delete LMSSection", "cleanup LMSSection"}
	calls := rec.list()
	if fmt.Sprint(calls[4:8]) != fmt.Sprint(want) {
		t.Errorf("calls = %v", calls)
	}
}

func TestManager_Events(t *testing.T) {
	rec := &recorder{}
	m := NewManager(config.SyncConfig{}, Deps{
		Sources:    []sources.Source{edfiSource(rec)},
		Writer:     &fakeWriter{rec: &recorder{}},
		Harmonizer: &fakeHarmonizer{rec: &recorder{}},
		Events:     &fakeEvents{rec: rec},
	})
	if _, err := m.RunOnce(context.Background()); err != nil {
		t.Fatal(err)
	}
	want := []string{"fetch EdFi Student", "event resource edfi.Student", "event harmonize", "event run success"}
	if got := rec.list(); fmt.Sprint(got) != fmt.Sprint(want) {
		t.Errorf("calls = %v, want %v", got, want)
	}
}

func TestManager_RunHarmonizeOnly(t *testing.T) {
	rec := &recorder{}
	m := NewManager(config.SyncConfig{}, Deps{
		Sources:    []sources.Source{lmsSource("Canvas", rec)},
		Writer:     &fakeWriter{rec: rec},
		Harmonizer: &fakeHarmonizer{rec: rec},
	})
	summary, err := m.RunHarmonizeOnly(context.Background())
	if err != nil {
		t.Fatalf("RunHarmonizeOnly() error = %v", err)
	}
	if got := rec.list(); fmt.Sprint(got) != "[harmonize]" {
		t.Errorf("calls = %v", got)
	}
	if summary.Trigger != models.TriggerHarmonize || len(summary.Resources) != 0 {
		t.Errorf("summary = %+v", summary)
	}

	noHarm := NewManager(config.SyncConfig{}, Deps{Writer: &fakeWriter{rec: rec}})
	if _, err := noHarm.RunHarmonizeOnly(context.Background()); err == nil {
		t.Error("RunHarmonizeOnly() without harmonizer error = nil")
	}
}

func TestManager_CancelledContext(t *testing.T) {
	rec := &recorder{}
	m := NewManager(config.SyncConfig{}, Deps{
		Sources:    []sources.Source{lmsSource("Canvas", rec)},
		Writer:     &fakeWriter{rec: rec},
		Harmonizer: &fakeHarmonizer{rec: rec},
	})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	summary, err := m.RunOnce(ctx)
	if err == nil {
		t.Fatal("RunOnce() error = nil")
	}
	if len(rec.list()) != 0 {
		t.Errorf("calls after cancel = %v", rec.list())
	}
	if summary.Status != models.RunStatusFailed {
		t.Errorf("Status = %q, want failed", summary.Status)
	}
}

func TestManager_RunInProgress(t *testing.T) {
	rec := &recorder{}
	src := lmsSource("Canvas", rec)
	src.block = make(chan struct{})
	m := NewManager(config.SyncConfig{}, Deps{Sources: []sources.Source{src}, Writer: &fakeWriter{rec: rec}})
	if err := m.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	defer func() { _ = m.Stop() }()

	done := make(chan error, 1)
	go func() {
		_, err := m.RunOnce(context.Background())
		done <- err
	}()

	deadline := time.Now().Add(2 * time.Second)
	for !m.Status().InProgress {
		if time.Now().After(deadline) {
			t.Fatal("run did not start")
		}
		time.Sleep(5 * time.Millisecond)
	}

	if _, err := m.RunOnce(context.Background()); !errors.Is(err, ErrRunInProgress) {
		t.Errorf("second RunOnce() error = %v, want ErrRunInProgress", err)
	}
	if err := m.TriggerAsync(); !errors.Is(err, ErrRunInProgress) {
		t.Errorf("TriggerAsync() error = %v, want ErrRunInProgress", err)
	}

	close(src.block)
	if err := <-done; err != nil {
		t.Errorf("first RunOnce() error = %v", err)
	}
}

func TestManager_LastSyncFromStore(t *testing.T) {
	last := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	m := NewManager(config.SyncConfig{}, Deps{Writer: &fakeWriter{rec: &recorder{}}, Runs: &fakeRunStore{last: last}})
	if got := m.LastSyncTime(); !got.Equal(last) {
		t.Errorf("LastSyncTime() = %v, want %v", got, last)
	}
}

func TestManager_StartStop(t *testing.T) {
	rec := &recorder{}
	m := NewManager(config.SyncConfig{RunOnStart: true, Interval: time.Hour}, Deps{
		Sources: []sources.Source{edfiSource(rec)},
		Writer:  &fakeWriter{rec: rec},
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := m.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if err := m.Start(ctx); err == nil {
		t.Error("second Start() error = nil")
	}

	deadline := time.Now().Add(2 * time.Second)
	for m.Status().LastRun == nil {
		if time.Now().After(deadline) {
			t.Fatal("startup run did not finish")
		}
		time.Sleep(5 * time.Millisecond)
	}
	if got := m.Status().LastRun.Trigger; got != models.TriggerStartup {
		t.Errorf("Trigger = %q, want startup", got)
	}

	if err := m.Stop(); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	if err := m.Stop(); err == nil {
		t.Error("second Stop() error = nil")
	}
	if m.Status().Running {
		t.Error("Running after Stop()")
	}
}

func TestManager_TriggerAsync(t *testing.T) {
	rec := &recorder{}
	m := NewManager(config.SyncConfig{}, Deps{Sources: []sources.Source{edfiSource(rec)}, Writer: &fakeWriter{rec: rec}})
	if err := m.TriggerAsync(); !errors.Is(err, ErrNotRunning) {
		t.Fatalf("TriggerAsync() before Start error = %v, want ErrNotRunning", err)
	}
	if err := m.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	if err := m.TriggerAsync(); err != nil {
		t.Fatalf("TriggerAsync() error = %v", err)
	}
	if err := m.Stop(); err != nil {
		t.Fatal(err)
	}
	run := m.Status().LastRun
	if run == nil || run.Trigger != models.TriggerManual {
		t.Errorf("LastRun = %+v, want manual run", run)
	}
}

// breakerSource is a fakeSource that reports a circuit breaker state.
type breakerSource struct {
	*fakeSource
	state string
}

func (s *breakerSource) BreakerState() string { return s.state }

func TestManager_StatusBreakers(t *testing.T) {
	rec := &recorder{}
	m := NewManager(config.SyncConfig{}, Deps{
		Sources: []sources.Source{
			&breakerSource{fakeSource: lmsSource("Canvas", rec), state: "open"},
			edfiSource(rec),
		},
		Writer: &fakeWriter{rec: rec},
	})

	got := m.Status().Breakers
	if len(got) != 1 || got["Canvas"] != "open" {
		t.Errorf("Breakers = %v, want map[Canvas:open]", got)
	}
}

func TestManager_TriggerAsyncRacingStop(t *testing.T) {
	for i := 0; i < 20; i++ {
		rec := &recorder{}
		m := NewManager(config.SyncConfig{}, Deps{Sources: []sources.Source{edfiSource(rec)}, Writer: &fakeWriter{rec: rec}})
		if err := m.Start(context.Background()); err != nil {
			t.Fatal(err)
		}

		var wg sync.WaitGroup
		errs := make(chan error, 8)
		for j := 0; j < 8; j++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				errs <- m.TriggerAsync()
			}()
		}
		if err := m.Stop(); err != nil {
			t.Fatalf("Stop() error = %v", err)
		}
		wg.Wait()
		close(errs)

		for err := range errs {
			if err != nil && !errors.Is(err, ErrNotRunning) && !errors.Is(err, ErrRunInProgress) {
				t.Errorf("TriggerAsync() error = %v", err)
			}
		}
		if err := m.TriggerAsync(); !errors.Is(err, ErrNotRunning) {
			t.Errorf("TriggerAsync() after Stop error = %v, want ErrNotRunning", err)
		}
	}
}
