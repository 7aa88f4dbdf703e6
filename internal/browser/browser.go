// Package browser owns the chromedp session a pipeline run drives. One
// session belongs to exactly one run at a time; it is not safe for
// concurrent use.
package browser

import (
	"context"
	"fmt"
	"time"

	"github.com/chromedp/chromedp"

	"github.com/novumhouse/olx-scraper-gohighlevel/internal/discover"
	"github.com/novumhouse/olx-scraper-gohighlevel/internal/extract"
)

const defaultUserAgent = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 " +
	"(KHTML, like Gecko) Chrome/112.0.0.0 Safari/537.36"

type Options struct {
	Headless    bool
	UserAgent   string
	NavTimeout  time.Duration // per-page navigation budget
	WaitTimeout time.Duration // contact-reveal wait budget
}

func (o *Options) fill() {
	if o.UserAgent == "" {
		o.UserAgent = defaultUserAgent
	}
	if o.NavTimeout == 0 {
		o.NavTimeout = 45 * time.Second
	}
	if o.WaitTimeout == 0 {
		o.WaitTimeout = 10 * time.Second
	}
}

// Session wraps an exclusive Chrome instance. It implements discover.Pager
// and extract.Revealer.
type Session struct {
	opts            Options
	browserCtx      context.Context
	cancelBrowser   context.CancelFunc
	cancelAllocator context.CancelFunc
	cookiesAccepted bool
}

var (
	_ discover.Pager   = (*Session)(nil)
	_ extract.Revealer = (*Session)(nil)
)

// NewSession starts a Chrome process. Close must be called on every exit
// path; the orchestrator defers it for the whole run.
func NewSession(parent context.Context, opts Options) (*Session, error) {
	opts.fill()

	allocOpts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.DisableGPU,
		chromedp.NoSandbox,
		chromedp.WindowSize(1920, 1080),
		chromedp.UserAgent(opts.UserAgent),
		chromedp.Flag("headless", opts.Headless),
		chromedp.Flag("disable-extensions", true),
		chromedp.Flag("disable-dev-shm-usage", true),
	)

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(parent, allocOpts...)
	browserCtx, cancelBrowser := chromedp.NewContext(allocCtx)

	// Start the browser up front so a missing Chrome binary fails the run
	// before discovery begins.
	startCtx, cancel := context.WithTimeout(browserCtx, opts.NavTimeout)
	defer cancel()
	if err := chromedp.Run(startCtx); err != nil {
		cancelBrowser()
		cancelAlloc()
		return nil, fmt.Errorf("start browser: %w", err)
	}

	return &Session{
		opts:            opts,
		browserCtx:      browserCtx,
		cancelBrowser:   cancelBrowser,
		cancelAllocator: cancelAlloc,
	}, nil
}

// Close tears down the Chrome process.
func (s *Session) Close() {
	s.cancelBrowser()
	s.cancelAllocator()
}

// pageCtx derives a per-navigation context bounded by NavTimeout and by the
// caller's deadline, whichever is sooner. chromedp contexts must chain from
// the browser context, so the caller's cancellation is forwarded rather
// than inherited.
func (s *Session) pageCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	timeout := s.opts.NavTimeout
	if deadline, ok := ctx.Deadline(); ok {
		if rem := time.Until(deadline); rem < timeout {
			timeout = rem
		}
	}
	navCtx, cancel := context.WithTimeout(s.browserCtx, timeout)
	stop := context.AfterFunc(ctx, cancel)
	return navCtx, func() {
		stop()
		cancel()
	}
}

// FetchPage renders one search-result page and returns its HTML.
func (s *Session) FetchPage(ctx context.Context, scopeURL string, page int) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	navCtx, cancel := s.pageCtx(ctx)
	defer cancel()

	pageURL := discover.PageURL(scopeURL, page)
	var html string
	err := chromedp.Run(navCtx,
		chromedp.Navigate(pageURL),
		chromedp.WaitReady("body"),
	)
	if err != nil {
		return "", fmt.Errorf("navigate %s: %w", pageURL, err)
	}

	if !s.cookiesAccepted {
		s.acceptCookies(navCtx)
		s.cookiesAccepted = true
	}

	if err := chromedp.Run(navCtx, chromedp.OuterHTML("html", &html)); err != nil {
		return "", fmt.Errorf("capture %s: %w", pageURL, err)
	}
	return html, nil
}

// acceptCookies dismisses the consent banner if present. Best effort: a
// missing banner is the common case after the first page.
func (s *Session) acceptCookies(parent context.Context) {
	ctx, cancel := context.WithTimeout(parent, 5*time.Second)
	defer cancel()
	_ = chromedp.Run(ctx,
		chromedp.Click(`#onetrust-accept-btn-handler`, chromedp.ByID),
	)
}

// Selectors for the contact-reveal flow. The button label is "Zadzwoń" or
// "SMS"; the revealed number shows up as a tel: link.
const (
	revealButtonXPath = `//button[contains(., "Zadzwoń") or contains(., "SMS")]`
	phoneXPath        = `//a[starts-with(@href, "tel:")]`
)

// RevealContact loads a detail page, clicks the call/SMS button, and waits
// for the obscured number to materialize. A reveal timeout is reported via
// Revealed=false, not an error: the caller still gets the page HTML and
// decides the listing's fate.
func (s *Session) RevealContact(ctx context.Context, detailURL string) (extract.RevealResult, error) {
	if err := ctx.Err(); err != nil {
		return extract.RevealResult{}, err
	}

	navCtx, cancel := s.pageCtx(ctx)
	defer cancel()

	var res extract.RevealResult
	err := chromedp.Run(navCtx,
		chromedp.Navigate(detailURL),
		chromedp.WaitReady("body"),
	)
	if err != nil {
		return extract.RevealResult{}, fmt.Errorf("navigate %s: %w", detailURL, err)
	}

	revealCtx, cancelReveal := context.WithTimeout(navCtx, s.opts.WaitTimeout)
	defer cancelReveal()
	revealErr := chromedp.Run(revealCtx,
		chromedp.Click(revealButtonXPath, chromedp.BySearch),
		chromedp.WaitVisible(phoneXPath, chromedp.BySearch),
		chromedp.Text(phoneXPath, &res.Phone, chromedp.BySearch),
	)
	res.Revealed = revealErr == nil && res.Phone != ""

	if err := chromedp.Run(navCtx, chromedp.OuterHTML("html", &res.HTML)); err != nil {
		return extract.RevealResult{}, fmt.Errorf("capture %s: %w", detailURL, err)
	}
	return res, nil
}
