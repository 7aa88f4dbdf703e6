package discover

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Anchor selectors for listing cards, tried in order. The marketplace has
// shipped several markups over time; keeping the older ones tolerates
// partial site changes.
var listingSelectors = []string{
	`a[data-cy="listing-ad-title"]`,
	`a[data-testid="listing-ad-title"]`,
	`[data-cy="l-card"] a`,
	`h3 a, h4 a, h6 a`,
	`a[href*="/oferta/"]`,
}

var listingIDPattern = regexp.MustCompile(`-ID([0-9A-Za-z]+)\.`)

// ParsePage extracts listing candidates from a rendered search-result page.
// Relative hrefs are resolved against the scope URL. Candidates are
// deduplicated by listing id within the page.
func ParsePage(html, scopeURL string) ([]Candidate, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("parse result page: %w", err)
	}

	base, _ := url.Parse(scopeURL)

	var out []Candidate
	seen := make(map[string]struct{})

	for _, sel := range listingSelectors {
		doc.Find(sel).Each(func(_ int, a *goquery.Selection) {
			href, ok := a.Attr("href")
			if !ok {
				return
			}
			abs := resolveURL(base, href)
			if !strings.Contains(abs, "/oferta/") {
				return
			}
			id := ListingID(abs)
			if _, dup := seen[id]; dup {
				return
			}
			seen[id] = struct{}{}

			summary := strings.TrimSpace(a.Text())
			if card := a.Closest(`[data-cy="l-card"]`); card.Length() > 0 {
				summary = strings.TrimSpace(card.Text())
			}
			out = append(out, Candidate{ID: id, URL: abs, Summary: summary})
		})
		if len(out) > 0 {
			break
		}
	}
	return out, nil
}

func resolveURL(base *url.URL, href string) string {
	if base == nil {
		return href
	}
	ref, err := url.Parse(href)
	if err != nil {
		return href
	}
	return base.ResolveReference(ref).String()
}

// ListingID extracts the marketplace-assigned id from a detail URL
// (the trailing "-IDxxxx" slug segment). Falls back to the full URL when
// the slug format changes, which still dedups correctly.
func ListingID(detailURL string) string {
	if m := listingIDPattern.FindStringSubmatch(detailURL); m != nil {
		return m[1]
	}
	return detailURL
}
