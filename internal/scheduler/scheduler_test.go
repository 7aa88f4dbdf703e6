package scheduler

import (
	"context"
	"errors"
	"io"
	"path/filepath"
	"testing"
	"time"

	"github.com/charmbracelet/log"

	"github.com/novumhouse/olx-scraper-gohighlevel/internal/config"
	"github.com/novumhouse/olx-scraper-gohighlevel/internal/orchestrator"
	"github.com/novumhouse/olx-scraper-gohighlevel/internal/pipeline"
	"github.com/novumhouse/olx-scraper-gohighlevel/internal/store"
)

func schedClient(id, schedule string) *config.ClientConfig {
	return &config.ClientConfig{
		ID:          id,
		Name:        "Client " + id,
		APIKey:      "key",
		SearchURLs:  []string{"https://www.olx.pl/praca/produkcja/"},
		Schedule:    schedule,
		MaxPages:    3,
		MaxListings: 10,
		RunTimeout:  config.Duration(time.Minute),
		OutputFile:  "results_" + id + ".json",
	}
}

func schedRegistry(clients ...*config.ClientConfig) *config.Registry {
	reg := &config.Registry{Clients: map[string]*config.ClientConfig{}}
	for _, c := range clients {
		reg.Clients[c.ID] = c
	}
	return reg
}

func newTestScheduler(t *testing.T, reg *config.Registry) (*Scheduler, *store.DB) {
	t.Helper()
	dir := t.TempDir()
	db, err := store.Open(filepath.Join(dir, "state.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })

	logger := log.New(io.Discard)
	s := &Scheduler{
		Store:        db,
		Orch:         orchestrator.New(db, logger, orchestrator.Options{Concurrency: 1, DataDir: dir}),
		LoadRegistry: func() (*config.Registry, error) { return reg, nil },
		Log:          logger,
	}
	return s, db
}

func TestNextDue(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	s := &Scheduler{
		Now:   func() time.Time { return now },
		start: time.Date(2025, 3, 9, 15, 0, 0, 0, time.UTC),
	}

	testCases := []struct {
		name     string
		schedule string
		lastRun  time.Time
		expected time.Time
	}{
		{
			name:     "daily cron after a morning run",
			schedule: "0 6 * * *",
			lastRun:  time.Date(2025, 3, 10, 6, 0, 30, 0, time.UTC),
			expected: time.Date(2025, 3, 11, 6, 0, 0, 0, time.UTC),
		},
		{
			name:     "interval schedule",
			schedule: "@every 6h",
			lastRun:  time.Date(2025, 3, 10, 8, 0, 0, 0, time.UTC),
			expected: time.Date(2025, 3, 10, 14, 0, 0, 0, time.UTC),
		},
		{
			name:     "never ran counts from scheduler start",
			schedule: "0 6 * * *",
			expected: time.Date(2025, 3, 10, 6, 0, 0, 0, time.UTC),
		},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got, err := s.NextDue(schedClient("c1", tc.schedule), tc.lastRun)
			if err != nil {
				t.Fatal(err)
			}
			if !got.Equal(tc.expected) {
				t.Errorf("NextDue = %v, expected %v", got, tc.expected)
			}
		})
	}
}

func TestNextDueInvalidSchedule(t *testing.T) {
	t.Parallel()

	s := &Scheduler{}
	if _, err := s.NextDue(schedClient("c1", "not a cron line"), time.Time{}); err == nil {
		t.Fatal("expected error")
	}
}

func TestRunDueTriggersOverdueClients(t *testing.T) {
	t.Parallel()

	// The due client fails validation, so triggering it records a config
	// error without reaching a browser.
	due := schedClient("due1", "@every 1h")
	due.SearchURLs = nil
	fresh := schedClient("fresh1", "@every 1h")

	s, db := newTestScheduler(t, schedRegistry(due, fresh))
	ctx := context.Background()

	if err := db.RecordRun(ctx, "due1", time.Now().Add(-2*time.Hour), pipeline.StatusOK, ""); err != nil {
		t.Fatal(err)
	}
	if err := db.RecordRun(ctx, "fresh1", time.Now().Add(-10*time.Minute), pipeline.StatusOK, ""); err != nil {
		t.Fatal(err)
	}

	if err := s.runDue(ctx); err != nil {
		t.Fatal(err)
	}

	rec, found, err := db.LastRun(ctx, "due1")
	if err != nil || !found {
		t.Fatalf("due1 state missing: found=%v err=%v", found, err)
	}
	if rec.LastStatus != pipeline.StatusConfigError {
		t.Errorf("due1 status = %q, expected the new run's outcome", rec.LastStatus)
	}

	rec, _, err = db.LastRun(ctx, "fresh1")
	if err != nil {
		t.Fatal(err)
	}
	if rec.LastStatus != pipeline.StatusOK {
		t.Errorf("fresh1 status = %q, a non-due client must not be triggered", rec.LastStatus)
	}
}

func TestRunDueNothingDue(t *testing.T) {
	t.Parallel()

	// Never-run clients become due at the first cron occurrence after
	// scheduler start, not immediately.
	s, db := newTestScheduler(t, schedRegistry(schedClient("c1", "0 6 * * *")))

	if err := s.runDue(context.Background()); err != nil {
		t.Fatal(err)
	}
	if _, found, err := db.LastRun(context.Background(), "c1"); err != nil {
		t.Fatal(err)
	} else if found {
		t.Error("client was triggered before its first scheduled occurrence")
	}
}

func TestRunDueTriggersNeverRunClientEventually(t *testing.T) {
	t.Parallel()

	// The client fails validation, so triggering it records a config error
	// without reaching a browser.
	fresh := schedClient("new1", "@every 1h")
	fresh.SearchURLs = nil

	s, db := newTestScheduler(t, schedRegistry(fresh))
	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	s.Now = func() time.Time { return now }
	ctx := context.Background()

	// Tick over the first hour after start: not due yet.
	for i := 0; i < 60; i++ {
		if err := s.runDue(ctx); err != nil {
			t.Fatal(err)
		}
		now = now.Add(time.Minute)
	}
	if _, found, err := db.LastRun(ctx, "new1"); err != nil {
		t.Fatal(err)
	} else if found {
		t.Fatal("client triggered before its first occurrence passed")
	}

	// The next tick crosses start+1h.
	if err := s.runDue(ctx); err != nil {
		t.Fatal(err)
	}
	rec, found, err := db.LastRun(ctx, "new1")
	if err != nil || !found {
		t.Fatalf("never-run client was not triggered after its first occurrence: found=%v err=%v", found, err)
	}
	if rec.LastStatus != pipeline.StatusConfigError {
		t.Errorf("status = %q, expected the triggered run's outcome", rec.LastStatus)
	}
}

func TestRunDueRegistryLoadFailureIsFatal(t *testing.T) {
	t.Parallel()

	s, _ := newTestScheduler(t, schedRegistry())
	s.LoadRegistry = func() (*config.Registry, error) {
		return nil, errors.New("yaml: line 3: mapping values are not allowed")
	}

	if err := s.runDue(context.Background()); err == nil {
		t.Fatal("expected registry load failure to propagate")
	}
}

func TestStatus(t *testing.T) {
	t.Parallel()

	off := false
	disabled := schedClient("b-off", "0 6 * * *")
	disabled.Enabled = &off
	reg := schedRegistry(schedClient("a-on", "@every 6h"), disabled)

	s, db := newTestScheduler(t, reg)
	ctx := context.Background()

	ran := time.Now().Add(-time.Hour).Truncate(time.Second)
	if err := db.RecordRun(ctx, "a-on", ran, pipeline.StatusFailed, "sync a1: status 503"); err != nil {
		t.Fatal(err)
	}

	statuses, err := s.Status(ctx, reg)
	if err != nil {
		t.Fatal(err)
	}
	if len(statuses) != 2 {
		t.Fatalf("statuses = %d", len(statuses))
	}

	a := statuses[0]
	if a.ClientID != "a-on" || !a.Enabled {
		t.Errorf("first row = %+v", a)
	}
	if a.LastStatus != pipeline.StatusFailed || a.LastError == "" {
		t.Errorf("last run fields = %q / %q", a.LastStatus, a.LastError)
	}
	if !a.NextDue.Equal(ran.Add(6 * time.Hour)) {
		t.Errorf("NextDue = %v, expected lastRun+6h", a.NextDue)
	}

	b := statuses[1]
	if b.ClientID != "b-off" || b.Enabled {
		t.Errorf("second row = %+v", b)
	}
	if !b.LastRun.IsZero() || b.LastStatus != "" {
		t.Errorf("never-ran row = %+v", b)
	}
}

func TestStatusReportsUnschedulableClient(t *testing.T) {
	t.Parallel()

	reg := schedRegistry(schedClient("c1", "not a cron line"))
	s, _ := newTestScheduler(t, reg)

	statuses, err := s.Status(context.Background(), reg)
	if err != nil {
		t.Fatal(err)
	}
	if len(statuses) != 1 {
		t.Fatalf("statuses = %d", len(statuses))
	}
	if statuses[0].ScheduleError == "" {
		t.Error("broken schedule expression not surfaced in the status row")
	}
	if !statuses[0].NextDue.IsZero() {
		t.Errorf("NextDue = %v, expected zero for an unschedulable client", statuses[0].NextDue)
	}
}
