// Package scheduler drives time-based pipeline runs. Next-due times are
// recomputed from each client's cron expression and its persisted last-run
// timestamp, so schedules survive process restarts.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/log"

	"github.com/novumhouse/olx-scraper-gohighlevel/internal/config"
	"github.com/novumhouse/olx-scraper-gohighlevel/internal/orchestrator"
	"github.com/novumhouse/olx-scraper-gohighlevel/internal/store"
)

const DefaultTick = time.Minute

type Scheduler struct {
	Store *store.DB
	Orch  *orchestrator.Orchestrator
	// LoadRegistry reloads the config at each due check, so edits to the
	// registry file take effect without a restart.
	LoadRegistry func() (*config.Registry, error)
	Log          *log.Logger
	Tick         time.Duration
	Now          func() time.Time // nil means time.Now

	start time.Time // due anchor for clients that have never run
}

func (s *Scheduler) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// NextDue computes when the client should next run, from its schedule
// expression and last completed run. A client that has never run is anchored
// to the scheduler's start time; recomputing from the current tick instead
// would keep pushing its first occurrence into the future forever.
func (s *Scheduler) NextDue(cfg *config.ClientConfig, lastRun time.Time) (time.Time, error) {
	sched, err := config.ParseSchedule(cfg.Schedule)
	if err != nil {
		return time.Time{}, fmt.Errorf("client %s schedule %q: %w", cfg.ID, cfg.Schedule, err)
	}
	base := lastRun
	if base.IsZero() {
		base = s.start
	}
	if base.IsZero() {
		base = s.now()
	}
	return sched.Next(base), nil
}

// Run ticks at coarse resolution until ctx is cancelled, handing due
// clients to the orchestrator. A registry that no longer loads is the one
// globally fatal condition and stops the scheduler.
func (s *Scheduler) Run(ctx context.Context) error {
	tick := s.Tick
	if tick <= 0 {
		tick = DefaultTick
	}
	t := time.NewTicker(tick)
	defer t.Stop()

	s.Log.Info("scheduler started", "tick", tick)
	if err := s.runDue(ctx); err != nil {
		return err
	}
	for {
		select {
		case <-ctx.Done():
			s.Log.Info("scheduler stopping")
			return nil
		case <-t.C:
			if err := s.runDue(ctx); err != nil {
				return err
			}
		}
	}
}

func (s *Scheduler) runDue(ctx context.Context) error {
	if s.start.IsZero() {
		s.start = s.now()
	}

	reg, err := s.LoadRegistry()
	if err != nil {
		return fmt.Errorf("registry load: %w", err)
	}

	now := s.now()
	var due []string
	for _, cfg := range reg.Enabled() {
		rec, found, err := s.Store.LastRun(ctx, cfg.ID)
		if err != nil {
			s.Log.Error("schedule state unavailable", "client", cfg.ID, "err", err)
			continue
		}
		var last time.Time
		if found {
			last = rec.LastRun
		}
		next, err := s.NextDue(cfg, last)
		if err != nil {
			s.Log.Error("unschedulable client", "client", cfg.ID, "err", err)
			continue
		}
		if !next.After(now) {
			due = append(due, cfg.ID)
		}
	}

	if len(due) == 0 {
		return nil
	}
	s.Log.Info("triggering due clients", "clients", due)
	summary := s.Orch.RunSet(ctx, reg, due)
	s.Log.Info("scheduled batch finished",
		"total", summary.Total, "succeeded", summary.Succeeded,
		"failed", summary.Failed, "skipped", summary.Skipped)
	return nil
}

// ClientStatus is one row of the status view.
type ClientStatus struct {
	ClientID   string
	Name       string
	Enabled    bool
	Schedule   string
	LastRun    time.Time // zero when the client has never run
	LastStatus string
	LastError  string
	NextDue    time.Time

	// ScheduleError is set when the schedule expression does not parse;
	// such a client can only be run manually.
	ScheduleError string
}

// Status reports every configured client's schedule state, enabled or not.
func (s *Scheduler) Status(ctx context.Context, reg *config.Registry) ([]ClientStatus, error) {
	var out []ClientStatus
	for _, id := range reg.IDs() {
		cfg := reg.Clients[id]
		st := ClientStatus{
			ClientID: id,
			Name:     cfg.Name,
			Enabled:  cfg.IsEnabled(),
			Schedule: cfg.Schedule,
		}
		rec, found, err := s.Store.LastRun(ctx, id)
		if err != nil {
			return nil, err
		}
		if found {
			st.LastRun = rec.LastRun
			st.LastStatus = rec.LastStatus
			st.LastError = rec.LastError
		}
		if next, err := s.NextDue(cfg, st.LastRun); err != nil {
			st.ScheduleError = err.Error()
		} else {
			st.NextDue = next
		}
		out = append(out, st)
	}
	return out, nil
}
