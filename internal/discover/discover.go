// Package discover paginates marketplace search results and yields
// candidate listings lazily, in page order.
package discover

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/charmbracelet/log"
	"golang.org/x/time/rate"

	"github.com/novumhouse/olx-scraper-gohighlevel/internal/retry"
)

// Candidate is a discovered listing reference: the marketplace id, the
// detail page URL, and whatever summary text the result card showed.
type Candidate struct {
	ID      string
	URL     string
	Summary string
}

// Pager fetches one search-result page and returns its rendered HTML.
// In production this is a browser session; tests substitute a fake.
type Pager interface {
	FetchPage(ctx context.Context, scopeURL string, page int) (string, error)
}

// ErrStop lets the visit callback end discovery early without error,
// e.g. once the run's listing cap is reached.
var ErrStop = errors.New("discovery stopped by caller")

type Discoverer struct {
	Pager   Pager
	Retry   retry.Policy
	Limiter *rate.Limiter // inter-request delay; nil means no throttle
	Log     *log.Logger
}

// Discover walks result pages of one search scope until the page cap, an
// empty page, or a page identical to the previous one, calling visit for
// each candidate in page order. Structural problems (a page that parses to
// zero listings) end the sequence rather than fail it; exhausted fetch
// retries are returned as an error.
func (d *Discoverer) Discover(ctx context.Context, scopeURL string, maxPages int, visit func(Candidate) error) error {
	var prevIDs map[string]struct{}

	for page := 1; page <= maxPages; page++ {
		if d.Limiter != nil {
			if err := d.Limiter.Wait(ctx); err != nil {
				return err
			}
		}

		var html string
		err := d.Retry.Do(ctx, func(ctx context.Context) error {
			var ferr error
			html, ferr = d.Pager.FetchPage(ctx, scopeURL, page)
			return ferr
		})
		if err != nil {
			return fmt.Errorf("fetch page %d of %s: %w", page, scopeURL, err)
		}

		cands, err := ParsePage(html, scopeURL)
		if err != nil {
			d.Log.Warn("result page did not parse, stopping scope", "scope", scopeURL, "page", page, "err", err)
			return nil
		}
		if len(cands) == 0 {
			d.Log.Debug("empty result page, stopping scope", "scope", scopeURL, "page", page)
			return nil
		}

		ids := make(map[string]struct{}, len(cands))
		for _, c := range cands {
			ids[c.ID] = struct{}{}
		}
		if prevIDs != nil && sameIDs(ids, prevIDs) {
			// Dynamic sites sometimes serve the last page again for any
			// higher page number.
			d.Log.Debug("duplicate result page, stopping scope", "scope", scopeURL, "page", page)
			return nil
		}
		prevIDs = ids

		d.Log.Info("discovered listings", "scope", scopeURL, "page", page, "count", len(cands))

		for _, c := range cands {
			if err := visit(c); err != nil {
				if errors.Is(err, ErrStop) {
					return nil
				}
				return err
			}
		}
	}
	return nil
}

func sameIDs(a, b map[string]struct{}) bool {
	if len(a) != len(b) {
		return false
	}
	for id := range a {
		if _, ok := b[id]; !ok {
			return false
		}
	}
	return true
}

// PageURL builds the URL for page n of a search scope. Page 1 is the bare
// scope URL; later pages add ?page=n, preserving existing query parameters.
func PageURL(scopeURL string, page int) string {
	if page <= 1 {
		return scopeURL
	}
	u, err := url.Parse(scopeURL)
	if err != nil {
		sep := "?"
		if strings.Contains(scopeURL, "?") {
			sep = "&"
		}
		return fmt.Sprintf("%s%spage=%d", scopeURL, sep, page)
	}
	q := u.Query()
	q.Set("page", fmt.Sprint(page))
	u.RawQuery = q.Encode()
	return u.String()
}
