// Package orchestrator fans pipeline runs out across clients under a
// bounded concurrency, isolating each client's failures from the rest.
package orchestrator

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gofrs/flock"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/novumhouse/olx-scraper-gohighlevel/internal/browser"
	"github.com/novumhouse/olx-scraper-gohighlevel/internal/config"
	"github.com/novumhouse/olx-scraper-gohighlevel/internal/crm"
	"github.com/novumhouse/olx-scraper-gohighlevel/internal/pipeline"
	"github.com/novumhouse/olx-scraper-gohighlevel/internal/secrets"
	"github.com/novumhouse/olx-scraper-gohighlevel/internal/store"
)

// DefaultConcurrency is deliberately low: every pipeline run holds an
// exclusive Chrome process.
const DefaultConcurrency = 2

type Options struct {
	Concurrency int
	Headless    bool
	DataDir     string
}

// RunFunc executes one validated, locked client run. Swapped out in tests
// to avoid launching a browser.
type RunFunc func(ctx context.Context, cfg *config.ClientConfig, apiKey string, logger *log.Logger) pipeline.RunResult

type Orchestrator struct {
	Store *store.DB
	Log   *log.Logger
	Opts  Options

	runClient RunFunc
}

func New(st *store.DB, logger *log.Logger, opts Options) *Orchestrator {
	if opts.Concurrency < 1 {
		opts.Concurrency = DefaultConcurrency
	}
	o := &Orchestrator{Store: st, Log: logger, Opts: opts}
	o.runClient = o.browserRun
	return o
}

// Summary aggregates one orchestrator invocation across clients.
type Summary struct {
	Total     int
	Succeeded int
	Failed    int
	Skipped   int
	Results   []pipeline.RunResult
}

func (s *Summary) add(res pipeline.RunResult) {
	s.Total++
	switch res.Status {
	case pipeline.StatusOK:
		s.Succeeded++
	case pipeline.StatusSkipped:
		s.Skipped++
	default:
		s.Failed++
	}
	s.Results = append(s.Results, res)
}

// RunOne runs a single client now, schedule and enabled flag bypassed.
func (o *Orchestrator) RunOne(ctx context.Context, reg *config.Registry, clientID string) (pipeline.RunResult, error) {
	cfg, err := reg.Client(clientID)
	if err != nil {
		return pipeline.RunResult{}, err
	}
	if !cfg.IsEnabled() {
		o.Log.Warn("client is disabled, running anyway (manual override)", "client", clientID)
	}
	return o.runSingle(ctx, cfg), nil
}

// RunAll runs every enabled client under the concurrency bound.
func (o *Orchestrator) RunAll(ctx context.Context, reg *config.Registry) Summary {
	ids := make([]string, 0, len(reg.Enabled()))
	for _, c := range reg.Enabled() {
		ids = append(ids, c.ID)
	}
	return o.RunSet(ctx, reg, ids)
}

// RunSet runs the named clients concurrently, at most Concurrency at once.
// One client's failure never prevents the others from running.
func (o *Orchestrator) RunSet(ctx context.Context, reg *config.Registry, clientIDs []string) Summary {
	var (
		mu      sync.Mutex
		summary Summary
	)
	sem := semaphore.NewWeighted(int64(o.Opts.Concurrency))
	var g errgroup.Group

	for _, id := range clientIDs {
		cfg, err := reg.Client(id)
		if err != nil {
			summary.add(pipeline.RunResult{
				ClientID: id,
				Status:   pipeline.StatusConfigError,
				Errors:   []string{err.Error()},
			})
			continue
		}
		g.Go(func() error {
			if err := sem.Acquire(ctx, 1); err != nil {
				// Shutdown while waiting for a slot. The client still gets
				// a summary entry so Total covers the requested set.
				mu.Lock()
				summary.add(pipeline.RunResult{
					ClientID:   cfg.ID,
					ClientName: cfg.Name,
					Status:     pipeline.StatusSkipped,
					StartedAt:  time.Now().UTC(),
					Errors:     []string{err.Error()},
				})
				mu.Unlock()
				return nil
			}
			defer sem.Release(1)

			res := o.runSingle(ctx, cfg)
			mu.Lock()
			summary.add(res)
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return summary
}

// runSingle validates, locks, and runs one client, containing panics and
// recording the outcome for the scheduler's status view.
func (o *Orchestrator) runSingle(ctx context.Context, cfg *config.ClientConfig) (res pipeline.RunResult) {
	logger, closeLog := o.clientLogger(cfg)
	defer closeLog()

	defer func() {
		if p := recover(); p != nil {
			res = o.failedResult(cfg, fmt.Sprintf("pipeline panic: %v", p))
			logger.Error("pipeline panicked", "client", cfg.ID, "panic", p)
		}
		if res.Status != pipeline.StatusSkipped {
			o.recordRun(cfg.ID, res)
		}
	}()

	if err := cfg.Validate(); err != nil {
		logger.Error("configuration invalid, client skipped", "client", cfg.ID, "err", err)
		return pipeline.RunResult{
			ClientID:   cfg.ID,
			ClientName: cfg.Name,
			Status:     pipeline.StatusConfigError,
			StartedAt:  time.Now().UTC(),
			Errors:     []string{err.Error()},
		}
	}

	apiKey, err := secrets.ResolveAPIKey(cfg)
	if err != nil {
		logger.Error("CRM credentials unavailable, client skipped", "client", cfg.ID, "err", err)
		return pipeline.RunResult{
			ClientID:   cfg.ID,
			ClientName: cfg.Name,
			Status:     pipeline.StatusConfigError,
			StartedAt:  time.Now().UTC(),
			Errors:     []string{err.Error()},
		}
	}

	// Per-client exclusive lock: an overlapping trigger for the same client
	// (scheduled vs manual) is rejected, never run concurrently with itself.
	lock, err := o.acquireLock(cfg.ID)
	if err != nil {
		logger.Warn("client already running, trigger rejected", "client", cfg.ID, "err", err)
		return pipeline.RunResult{
			ClientID:   cfg.ID,
			ClientName: cfg.Name,
			Status:     pipeline.StatusSkipped,
			StartedAt:  time.Now().UTC(),
			Errors:     []string{err.Error()},
		}
	}
	defer func() { _ = lock.Unlock() }()

	logger.Info("starting pipeline run", "client", cfg.ID, "name", cfg.Name)
	return o.runClient(ctx, cfg, apiKey, logger)
}

func (o *Orchestrator) acquireLock(clientID string) (*flock.Flock, error) {
	dir := filepath.Join(o.Opts.DataDir, "locks")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create lock dir: %w", err)
	}
	fl := flock.New(filepath.Join(dir, clientID+".lock"))
	locked, err := fl.TryLock()
	if err != nil {
		return nil, fmt.Errorf("lock %s: %w", clientID, err)
	}
	if !locked {
		return nil, fmt.Errorf("client %s is already running", clientID)
	}
	return fl, nil
}

// browserRun is the production RunFunc: exclusive Chrome session for the
// duration of the run, released on every exit path.
func (o *Orchestrator) browserRun(ctx context.Context, cfg *config.ClientConfig, apiKey string, logger *log.Logger) pipeline.RunResult {
	sess, err := browser.NewSession(ctx, browser.Options{Headless: o.Opts.Headless})
	if err != nil {
		logger.Error("browser startup failed", "client", cfg.ID, "err", err)
		return o.failedResult(cfg, fmt.Sprintf("start browser: %v", err))
	}
	defer sess.Close()

	syncer := crm.New(crm.Config{
		APIKey:     apiKey,
		LocationID: cfg.LocationID,
		ClientTag:  cfg.ID,
	}, logger)

	runner := &pipeline.Runner{
		Cfg:      cfg,
		Pager:    sess,
		Revealer: sess,
		Dedup:    o.Store,
		Sync:     syncer,
		Log:      logger,
		DataDir:  o.Opts.DataDir,
	}
	return runner.Run(ctx)
}

func (o *Orchestrator) failedResult(cfg *config.ClientConfig, msg string) pipeline.RunResult {
	return pipeline.RunResult{
		ClientID:   cfg.ID,
		ClientName: cfg.Name,
		Status:     pipeline.StatusFailed,
		StartedAt:  time.Now().UTC(),
		Errors:     []string{msg},
	}
}

func (o *Orchestrator) recordRun(clientID string, res pipeline.RunResult) {
	if o.Store == nil {
		return
	}
	errMsg := strings.Join(res.Errors, "; ")
	if err := o.Store.RecordRun(context.Background(), clientID, time.Now(), res.Status, errMsg); err != nil {
		o.Log.Error("recording run outcome failed", "client", clientID, "err", err)
	}
}

// clientLogger tees the client's log lines into its configured log file on
// top of the process-wide output.
func (o *Orchestrator) clientLogger(cfg *config.ClientConfig) (*log.Logger, func()) {
	path := cfg.LogFile
	if path != "" && !filepath.IsAbs(path) && o.Opts.DataDir != "" {
		path = filepath.Join(o.Opts.DataDir, path)
	}
	if path == "" {
		return o.Log.With("client", cfg.ID), func() {}
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			o.Log.Warn("client log dir not writable, console only", "client", cfg.ID, "err", err)
			return o.Log.With("client", cfg.ID), func() {}
		}
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		o.Log.Warn("client log file not writable, console only", "client", cfg.ID, "err", err)
		return o.Log.With("client", cfg.ID), func() {}
	}
	logger := log.NewWithOptions(io.MultiWriter(os.Stderr, f), log.Options{
		ReportTimestamp: true,
		Level:           o.Log.GetLevel(),
		Prefix:          cfg.ID,
	})
	return logger, func() { _ = f.Close() }
}
