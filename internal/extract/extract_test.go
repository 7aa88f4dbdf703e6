package extract

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/charmbracelet/log"
)

const detailHTML = `<html><body>
	<h1>Operator CNC</h1>
	<div data-cy="seller-card"><h4>Meblex Sp. z o.o.</h4></div>
	<div data-cy="ad_description">Firma Meblex poszukuje operatora CNC. Praca od zaraz.</div>
	<a href="tel:+48 512 345 678">Zadzwoń</a>
</body></html>`

type fakeRevealer struct {
	res RevealResult
	err error
	url string
}

func (f *fakeRevealer) RevealContact(_ context.Context, url string) (RevealResult, error) {
	f.url = url
	return f.res, f.err
}

func fixedNow() time.Time {
	return time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
}

func TestNormalizePhone(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name     string
		raw      string
		expected string
	}{
		{name: "spaces and dashes", raw: "512-345 678", expected: "512345678"},
		{name: "plus country code", raw: "+48 512 345 678", expected: "512345678"},
		{name: "zero zero prefix", raw: "0048512345678", expected: "512345678"},
		{name: "bare nine digits", raw: "512345678", expected: "512345678"},
		{name: "landline with area code", raw: "(22) 123 45 67", expected: "221234567"},
		{name: "no digits", raw: "zadzwoń", expected: ""},
		{name: "empty", raw: "", expected: ""},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if got := NormalizePhone(tc.raw); got != tc.expected {
				t.Errorf("NormalizePhone(%q) = %q, expected %q", tc.raw, got, tc.expected)
			}
		})
	}
}

func TestParseDetailPage(t *testing.T) {
	t.Parallel()

	p, err := ParseDetailPage(detailHTML)
	if err != nil {
		t.Fatal(err)
	}
	if p.Position != "Operator CNC" {
		t.Errorf("Position = %q", p.Position)
	}
	if p.Company != "Meblex Sp. z o.o." {
		t.Errorf("Company = %q", p.Company)
	}
	if p.Phone != "+48 512 345 678" {
		t.Errorf("Phone = %q", p.Phone)
	}
	if p.Description == "" {
		t.Error("Description is empty")
	}
}

func TestParseDetailPageCompanyFromDescription(t *testing.T) {
	t.Parallel()

	html := `<html><body>
		<h1>Monter mebli</h1>
		<div data-cy="ad_description">Firma Drewpol zatrudni montera mebli kuchennych.</div>
	</body></html>`
	p, err := ParseDetailPage(html)
	if err != nil {
		t.Fatal(err)
	}
	if p.Company != "Drewpol" {
		t.Errorf("Company = %q, expected Drewpol", p.Company)
	}
}

func TestExtract(t *testing.T) {
	t.Parallel()

	r := &fakeRevealer{res: RevealResult{HTML: detailHTML, Phone: "+48 512 345 678", Revealed: true}}
	e := &Extractor{Revealer: r, Log: log.New(io.Discard), Now: fixedNow}

	c, err := e.Extract(context.Background(), "https://www.olx.pl/oferta/praca/operator-IDabc1.html")
	if err != nil {
		t.Fatal(err)
	}
	if c.Phone != "512345678" {
		t.Errorf("Phone = %q, expected normalized 512345678", c.Phone)
	}
	if c.Company != "Meblex Sp. z o.o." {
		t.Errorf("Company = %q", c.Company)
	}
	if c.Position != "Operator CNC" {
		t.Errorf("Position = %q", c.Position)
	}
	if c.SourceURL != r.url {
		t.Errorf("SourceURL = %q, expected the revealed URL", c.SourceURL)
	}
	if !c.CollectedAt.Equal(fixedNow()) {
		t.Errorf("CollectedAt = %v", c.CollectedAt)
	}
}

func TestExtractFallsBackToPagePhone(t *testing.T) {
	t.Parallel()

	// Reveal reported no number but the markup carries a tel: link.
	r := &fakeRevealer{res: RevealResult{HTML: detailHTML}}
	e := &Extractor{Revealer: r, Log: log.New(io.Discard)}

	c, err := e.Extract(context.Background(), "https://www.olx.pl/oferta/praca/x-ID1.html")
	if err != nil {
		t.Fatal(err)
	}
	if c.Phone != "512345678" {
		t.Errorf("Phone = %q", c.Phone)
	}
}

func TestExtractNoPhone(t *testing.T) {
	t.Parallel()

	r := &fakeRevealer{res: RevealResult{HTML: `<html><body><h1>Stolarz</h1></body></html>`}}
	e := &Extractor{Revealer: r, Log: log.New(io.Discard)}

	_, err := e.Extract(context.Background(), "https://www.olx.pl/oferta/praca/x-ID2.html")
	if !errors.Is(err, ErrNoPhone) {
		t.Fatalf("err = %v, expected ErrNoPhone", err)
	}
}

func TestExtractUnknownFallbacks(t *testing.T) {
	t.Parallel()

	html := `<html><body><a href="tel:600700800">tel</a></body></html>`
	r := &fakeRevealer{res: RevealResult{HTML: html, Phone: "600 700 800", Revealed: true}}
	e := &Extractor{Revealer: r, Log: log.New(io.Discard)}

	c, err := e.Extract(context.Background(), "https://www.olx.pl/oferta/praca/x-ID3.html")
	if err != nil {
		t.Fatal(err)
	}
	if c.Company != UnknownCompany {
		t.Errorf("Company = %q, expected %q", c.Company, UnknownCompany)
	}
	if c.Position != UnknownPosition {
		t.Errorf("Position = %q, expected %q", c.Position, UnknownPosition)
	}
}

func TestExtractRevealError(t *testing.T) {
	t.Parallel()

	r := &fakeRevealer{err: errors.New("navigation timeout")}
	e := &Extractor{Revealer: r, Log: log.New(io.Discard)}

	if _, err := e.Extract(context.Background(), "https://www.olx.pl/oferta/praca/x-ID4.html"); err == nil {
		t.Fatal("expected error")
	}
}
