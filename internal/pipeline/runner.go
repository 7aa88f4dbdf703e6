// Package pipeline runs the per-client stage sequence: discovery,
// classification, extraction, dedup, CRM sync. Listings move through
// Discovered -> Classified -> Extracted -> Synced; rejection, failure at
// any stage, and synced-ok are terminal. A listing the dedup store already
// knows short-circuits to skipped without re-entering later stages.
package pipeline

import (
	"context"
	"errors"
	"path/filepath"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/time/rate"

	"github.com/novumhouse/olx-scraper-gohighlevel/internal/classify"
	"github.com/novumhouse/olx-scraper-gohighlevel/internal/config"
	"github.com/novumhouse/olx-scraper-gohighlevel/internal/crm"
	"github.com/novumhouse/olx-scraper-gohighlevel/internal/discover"
	"github.com/novumhouse/olx-scraper-gohighlevel/internal/extract"
	"github.com/novumhouse/olx-scraper-gohighlevel/internal/retry"
)

// Syncer is the CRM boundary. *crm.Client satisfies it.
type Syncer interface {
	Upsert(ctx context.Context, contact extract.Contact) (crm.Outcome, error)
}

// DedupStore is the per-client processed-listing record. *store.DB
// satisfies it.
type DedupStore interface {
	HasSeen(ctx context.Context, clientID, listingID string) (bool, error)
	MarkSynced(ctx context.Context, clientID, listingID string) error
	MarkFailedPermanent(ctx context.Context, clientID, listingID string) error
}

// Runner composes one client's pipeline run. The caller owns acquiring the
// browser session and the per-client lock; the runner assumes exclusive use
// of both for the duration of Run.
type Runner struct {
	Cfg      *config.ClientConfig
	Pager    discover.Pager
	Revealer extract.Revealer
	Dedup    DedupStore
	Sync     Syncer
	Log      *log.Logger
	DataDir  string // relative output/log paths resolve under this
}

// Run executes the pipeline under the client's wall-clock budget. Listing
// and scope failures are counted, never fatal; the result is flushed even
// when the budget expires mid-run.
func (r *Runner) Run(ctx context.Context) RunResult {
	start := time.Now()
	res := RunResult{
		ClientID:   r.Cfg.ID,
		ClientName: r.Cfg.Name,
		Status:     StatusOK,
		StartedAt:  start.UTC(),
	}

	runCtx, cancel := context.WithTimeout(ctx, r.Cfg.RunTimeout.Std())
	defer cancel()

	var limiter *rate.Limiter
	if delay := r.Cfg.Delay(); delay > 0 {
		limiter = rate.NewLimiter(rate.Every(delay), 1)
	}

	disc := &discover.Discoverer{
		Pager:   r.Pager,
		Retry:   retry.Default,
		Limiter: limiter,
		Log:     r.Log,
	}
	ext := &extract.Extractor{Revealer: r.Revealer, Log: r.Log}
	rules := classify.RuleSet{
		Include: r.Cfg.Keywords.Include,
		Exclude: r.Cfg.Keywords.Exclude,
	}

	var contacts []extract.Contact
	extractBudget := r.Cfg.MaxListings
	permanentSyncFailures := 0

	for _, scope := range r.Cfg.SearchURLs {
		if runCtx.Err() != nil || extractBudget <= 0 {
			break
		}

		err := disc.Discover(runCtx, scope, r.Cfg.MaxPages, func(c discover.Candidate) error {
			res.Discovered++

			seen, err := r.Dedup.HasSeen(runCtx, r.Cfg.ID, c.ID)
			if err != nil {
				res.Failed++
				res.addError("dedup lookup %s: %v", c.ID, err)
				return nil
			}
			if seen {
				res.Skipped++
				return nil
			}

			dec := classify.Classify(c.Summary, rules)
			if !dec.Accepted {
				res.Rejected++
				r.Log.Debug("listing rejected", "id", c.ID, "term", dec.MatchedTerm)
				return nil
			}
			res.Accepted++

			if extractBudget <= 0 {
				return discover.ErrStop
			}
			extractBudget--

			if limiter != nil {
				if err := limiter.Wait(runCtx); err != nil {
					return err
				}
			}

			contact, err := ext.Extract(runCtx, c.URL)
			if err != nil {
				res.Failed++
				res.addError("extract %s: %v", c.ID, err)
				r.Log.Warn("extraction failed", "id", c.ID, "err", err)
				return nil
			}
			res.Extracted++

			outcome, err := r.Sync.Upsert(runCtx, contact)
			if err != nil {
				res.Failed++
				res.addError("sync %s: %v", c.ID, err)
				if retry.IsPermanent(err) {
					permanentSyncFailures++
					if merr := r.Dedup.MarkFailedPermanent(runCtx, r.Cfg.ID, c.ID); merr != nil {
						res.addError("dedup mark failed %s: %v", c.ID, merr)
					}
				}
				r.Log.Warn("sync failed", "id", c.ID, "err", err)
				return nil
			}
			res.Synced++
			r.Log.Info("listing synced", "id", c.ID, "company", contact.Company, "outcome", outcome)

			if err := r.Dedup.MarkSynced(runCtx, r.Cfg.ID, c.ID); err != nil {
				res.addError("dedup mark synced %s: %v", c.ID, err)
			}
			contacts = append(contacts, contact)
			return nil
		})

		if err != nil {
			res.addError("scope %s: %v", scope, err)
			if errors.Is(err, context.DeadlineExceeded) || runCtx.Err() != nil {
				r.Log.Warn("run budget exceeded, flushing partial result", "client", r.Cfg.ID)
				res.Status = StatusFailed
				break
			}
			// Exhausted page-fetch retries on one scope: move to the next.
			r.Log.Warn("scope abandoned", "scope", scope, "err", err)
		}
	}

	// Every accepted listing failing to sync permanently means the CRM
	// credentials or payloads are systemically broken; surface that.
	if permanentSyncFailures > 0 && res.Synced == 0 {
		res.Status = StatusFailed
		res.addError("all %d sync attempts failed permanently", permanentSyncFailures)
	}

	outputPath := r.resolve(r.Cfg.OutputFile)
	if err := WriteContacts(outputPath, contacts); err != nil {
		res.addError("%v", err)
		res.Status = StatusFailed
	}
	res.Duration = time.Since(start)
	if err := AppendRunLog(RunLogPath(outputPath), res); err != nil {
		r.Log.Error("run log write failed", "client", r.Cfg.ID, "err", err)
	}

	r.Log.Info("run finished",
		"client", r.Cfg.ID, "status", res.Status,
		"discovered", res.Discovered, "accepted", res.Accepted,
		"extracted", res.Extracted, "synced", res.Synced,
		"skipped", res.Skipped, "failed", res.Failed,
		"duration", res.Duration.Round(time.Millisecond))
	return res
}

func (r *Runner) resolve(path string) string {
	if r.DataDir == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(r.DataDir, path)
}
