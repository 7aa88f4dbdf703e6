package crm

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/charmbracelet/log"

	"github.com/novumhouse/olx-scraper-gohighlevel/internal/extract"
	"github.com/novumhouse/olx-scraper-gohighlevel/internal/retry"
)

func testContact() extract.Contact {
	return extract.Contact{
		Company:     "Meblex Sp. z o.o.",
		Position:    "Operator CNC",
		Phone:       "512345678",
		SourceURL:   "https://www.olx.pl/oferta/praca/operator-IDabc1.html",
		CollectedAt: time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC),
	}
}

// fakeAPI is a minimal GoHighLevel contacts endpoint. It records every
// request and serves lookup results from the known map.
type fakeAPI struct {
	mu       sync.Mutex
	known    map[string]string // phone -> contact id
	requests []string          // "METHOD path"
	payloads []map[string]any
	fail     map[string][]int // "METHOD path" -> status codes to serve first
}

func (f *fakeAPI) handler(t *testing.T) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()

		key := r.Method + " " + r.URL.Path
		f.requests = append(f.requests, key)

		if auth := r.Header.Get("Authorization"); auth != "Bearer test-key" {
			t.Errorf("Authorization = %q", auth)
		}

		if codes := f.fail[key]; len(codes) > 0 {
			code := codes[0]
			f.fail[key] = codes[1:]
			w.WriteHeader(code)
			return
		}

		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/contacts/lookup":
			phone := r.URL.Query().Get("phone")
			if id, ok := f.known[phone]; ok {
				json.NewEncoder(w).Encode(map[string]any{
					"contacts": []map[string]string{{"id": id}},
				})
				return
			}
			json.NewEncoder(w).Encode(map[string]any{"contacts": []any{}})
		case r.Method == http.MethodPost || r.Method == http.MethodPut:
			body, _ := io.ReadAll(r.Body)
			var p map[string]any
			if err := json.Unmarshal(body, &p); err != nil {
				t.Errorf("payload did not decode: %v", err)
			}
			f.payloads = append(f.payloads, p)
			json.NewEncoder(w).Encode(map[string]any{"contact": map[string]string{"id": "new"}})
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})
}

func (f *fakeAPI) count(key string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, r := range f.requests {
		if r == key {
			n++
		}
	}
	return n
}

func newTestClient(t *testing.T, api *fakeAPI) *Client {
	t.Helper()
	srv := httptest.NewServer(api.handler(t))
	t.Cleanup(srv.Close)
	return New(Config{
		APIKey:     "test-key",
		LocationID: "loc1",
		ClientTag:  "client1",
		BaseURL:    srv.URL,
		Retry:      retry.Policy{MaxAttempts: 3, BaseDelay: time.Millisecond},
	}, log.New(io.Discard))
}

func TestUpsertCreatesUnknownContact(t *testing.T) {
	t.Parallel()

	api := &fakeAPI{known: map[string]string{}}
	c := newTestClient(t, api)

	outcome, err := c.Upsert(context.Background(), testContact())
	if err != nil {
		t.Fatal(err)
	}
	if outcome != OutcomeCreated {
		t.Errorf("outcome = %q, expected created", outcome)
	}
	if n := api.count("POST /contacts/"); n != 1 {
		t.Errorf("creations = %d, expected 1", n)
	}

	p := api.payloads[0]
	if p["name"] != "Meblex Sp. z o.o." || p["phone"] != "512345678" {
		t.Errorf("payload = %+v", p)
	}
	if p["source"] != "OLX Scraper" || p["type"] != "lead" {
		t.Errorf("payload = %+v", p)
	}
	if p["locationId"] != "loc1" {
		t.Errorf("locationId = %v", p["locationId"])
	}
	tags, _ := p["tags"].([]any)
	if len(tags) != 2 || tags[0] != "OLX" || tags[1] != "client1" {
		t.Errorf("tags = %v", p["tags"])
	}
}

func TestUpsertUpdatesKnownContact(t *testing.T) {
	t.Parallel()

	api := &fakeAPI{known: map[string]string{"512345678": "existing42"}}
	c := newTestClient(t, api)

	outcome, err := c.Upsert(context.Background(), testContact())
	if err != nil {
		t.Fatal(err)
	}
	if outcome != OutcomeUpdated {
		t.Errorf("outcome = %q, expected updated", outcome)
	}
	if n := api.count("PUT /contacts/existing42"); n != 1 {
		t.Errorf("updates to existing42 = %d, expected 1", n)
	}
	if n := api.count("POST /contacts/"); n != 0 {
		t.Errorf("creations = %d, expected 0", n)
	}
}

func TestUpsertRetriesTransientThenCreatesOnce(t *testing.T) {
	t.Parallel()

	api := &fakeAPI{
		known: map[string]string{},
		fail: map[string][]int{
			"POST /contacts/": {http.StatusServiceUnavailable, http.StatusServiceUnavailable},
		},
	}
	c := newTestClient(t, api)

	outcome, err := c.Upsert(context.Background(), testContact())
	if err != nil {
		t.Fatal(err)
	}
	if outcome != OutcomeCreated {
		t.Errorf("outcome = %q", outcome)
	}
	if n := api.count("POST /contacts/"); n != 3 {
		t.Errorf("POST attempts = %d, expected 3 (two 503s then success)", n)
	}
	// Only the final attempt carried through to a stored payload.
	if len(api.payloads) != 1 {
		t.Errorf("recorded payloads = %d, expected 1", len(api.payloads))
	}
}

func TestUpsertLookupNotFoundStatusCreates(t *testing.T) {
	t.Parallel()

	// Some deployments answer the lookup for an unknown phone with a 404 or
	// 422 instead of an empty contact list; both mean "create".
	for _, code := range []int{http.StatusNotFound, http.StatusUnprocessableEntity} {
		t.Run(fmt.Sprintf("status %d", code), func(t *testing.T) {
			t.Parallel()
			api := &fakeAPI{
				known: map[string]string{},
				fail:  map[string][]int{"GET /contacts/lookup": {code}},
			}
			c := newTestClient(t, api)

			outcome, err := c.Upsert(context.Background(), testContact())
			if err != nil {
				t.Fatalf("not-found lookup must not fail the upsert: %v", err)
			}
			if outcome != OutcomeCreated {
				t.Errorf("outcome = %q, expected created", outcome)
			}
			if n := api.count("GET /contacts/lookup"); n != 1 {
				t.Errorf("lookup attempts = %d, expected 1 (not-found is not retried)", n)
			}
			if n := api.count("POST /contacts/"); n != 1 {
				t.Errorf("creations = %d, expected 1", n)
			}
		})
	}
}

func TestUpsertAuthFailureIsPermanent(t *testing.T) {
	t.Parallel()

	api := &fakeAPI{
		known: map[string]string{},
		fail: map[string][]int{
			"GET /contacts/lookup": {http.StatusUnauthorized},
		},
	}
	c := newTestClient(t, api)

	_, err := c.Upsert(context.Background(), testContact())
	if err == nil {
		t.Fatal("expected error")
	}
	if !retry.IsPermanent(err) {
		t.Errorf("err = %v, expected permanent", err)
	}
	if n := api.count("GET /contacts/lookup"); n != 1 {
		t.Errorf("lookup attempts = %d, expected 1 (no retry on 401)", n)
	}
}

func TestUpsertNotesCarrySourceDetails(t *testing.T) {
	t.Parallel()

	api := &fakeAPI{known: map[string]string{}}
	c := newTestClient(t, api)

	if _, err := c.Upsert(context.Background(), testContact()); err != nil {
		t.Fatal(err)
	}
	notes, _ := api.payloads[0]["notes"].(string)
	for _, want := range []string{
		"Position: Operator CNC",
		"Source: OLX",
		"URL: https://www.olx.pl/oferta/praca/operator-IDabc1.html",
		"Date Collected: 2025-03-10 12:00:00",
	} {
		if !strings.Contains(notes, want) {
			t.Errorf("notes missing %q:\n%s", want, notes)
		}
	}
}
