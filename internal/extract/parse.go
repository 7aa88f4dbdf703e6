package extract

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// DetailPage holds the fields parsed out of a listing detail page.
type DetailPage struct {
	Company     string
	Position    string
	Phone       string
	Description string
}

// Company-name fallback patterns over the description text, for listings
// whose recruiter block is missing. Mirrors how the listings themselves
// phrase it ("Firma X poszukuje...", "X to firma...").
var companyPatterns = []*regexp.Regexp{
	regexp.MustCompile(`Firma\s+([A-ZŻŹĆĄŚĘŁÓŃ][\w\s\-&.]{1,60}?)(?:\s+to|\s+jest|\s+poszukuje|\s+zatrudni)`),
	regexp.MustCompile(`([A-ZŻŹĆĄŚĘŁÓŃ][\w\s\-&.]{1,60}?)(?:\s+to firma|\s+jest firmą)`),
	regexp.MustCompile(`O\s+firmie\s+([A-ZŻŹĆĄŚĘŁÓŃ][\w\s\-&.]{1,60})`),
}

// ParseDetailPage extracts company, position, description, and any phone
// number already visible in the markup (tel: links appear once the reveal
// interaction has run).
func ParseDetailPage(html string) (DetailPage, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return DetailPage{}, fmt.Errorf("parse html: %w", err)
	}

	var p DetailPage

	p.Position = strings.TrimSpace(doc.Find(`h1`).First().Text())

	for _, sel := range []string{
		`[data-cy="seller-card"] h4`,
		`[data-testid="user-profile-user-name"]`,
		`div[class*="recruiter"] [class*="title"]`,
	} {
		if name := strings.TrimSpace(doc.Find(sel).First().Text()); name != "" {
			p.Company = name
			break
		}
	}

	for _, sel := range []string{
		`[data-cy="ad_description"]`,
		`[data-testid="ad_description"]`,
		`div[class*="description"]`,
	} {
		if desc := strings.TrimSpace(doc.Find(sel).First().Text()); desc != "" {
			p.Description = desc
			break
		}
	}

	if p.Company == "" && p.Description != "" {
		for _, re := range companyPatterns {
			if m := re.FindStringSubmatch(p.Description); m != nil {
				p.Company = strings.TrimSpace(m[1])
				break
			}
		}
	}

	doc.Find(`a[href^="tel:"]`).EachWithBreak(func(_ int, a *goquery.Selection) bool {
		href, _ := a.Attr("href")
		p.Phone = strings.TrimPrefix(href, "tel:")
		return false
	})
	if p.Phone == "" {
		p.Phone = strings.TrimSpace(doc.Find(`[data-testid="contact-phone"]`).First().Text())
	}

	return p, nil
}
