// Package extract turns an accepted listing's detail page into a structured
// contact: company, position, and the phone number hidden behind the
// call/SMS reveal button.
package extract

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/log"
)

// RevealResult is what the browser saw on a detail page: the page HTML and,
// when the reveal interaction succeeded, the exposed phone text.
type RevealResult struct {
	HTML     string
	Phone    string
	Revealed bool
}

// Revealer loads a detail page and performs the contact-reveal interaction.
// The browser session implements it; tests substitute a fake.
type Revealer interface {
	RevealContact(ctx context.Context, url string) (RevealResult, error)
}

// Contact is the extracted lead handed to CRM sync and the result file.
type Contact struct {
	Company     string    `json:"company"`
	Position    string    `json:"position"`
	Phone       string    `json:"phone"`
	SourceURL   string    `json:"source_url"`
	CollectedAt time.Time `json:"collected_at"`
}

// ErrNoPhone means the reveal interaction timed out or the page carried no
// phone number; such listings are unreachable leads and are dropped.
var ErrNoPhone = errors.New("no phone number revealed")

const (
	UnknownCompany  = "Unknown Company"
	UnknownPosition = "Unknown Position"
)

type Extractor struct {
	Revealer Revealer
	Log      *log.Logger
	Now      func() time.Time // nil means time.Now
}

// Extract loads the detail page, reveals the contact number, and parses the
// structured fields. Failures are listing-level: the caller counts them and
// the run continues.
func (e *Extractor) Extract(ctx context.Context, detailURL string) (Contact, error) {
	res, err := e.Revealer.RevealContact(ctx, detailURL)
	if err != nil {
		return Contact{}, fmt.Errorf("reveal contact on %s: %w", detailURL, err)
	}

	page, err := ParseDetailPage(res.HTML)
	if err != nil {
		return Contact{}, fmt.Errorf("parse detail page %s: %w", detailURL, err)
	}

	phone := NormalizePhone(res.Phone)
	if phone == "" {
		phone = NormalizePhone(page.Phone)
	}
	if phone == "" {
		return Contact{}, fmt.Errorf("%s: %w", detailURL, ErrNoPhone)
	}

	company := page.Company
	if company == "" {
		e.Log.Warn("company name not found", "url", detailURL)
		company = UnknownCompany
	}
	position := page.Position
	if position == "" {
		e.Log.Warn("position not found", "url", detailURL)
		position = UnknownPosition
	}

	now := time.Now
	if e.Now != nil {
		now = e.Now
	}
	return Contact{
		Company:     company,
		Position:    position,
		Phone:       phone,
		SourceURL:   detailURL,
		CollectedAt: now().UTC(),
	}, nil
}

// NormalizePhone reduces a raw phone string to digits, dropping the Polish
// country prefix (+48 / 0048) so the same number always yields the same
// dedup and CRM identity key.
func NormalizePhone(raw string) string {
	var b strings.Builder
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	digits := b.String()
	switch {
	case strings.HasPrefix(digits, "0048") && len(digits) > 4:
		return digits[4:]
	case strings.HasPrefix(digits, "48") && len(digits) == 11:
		return digits[2:]
	}
	return digits
}
