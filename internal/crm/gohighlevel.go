// Package crm syncs extracted contacts into GoHighLevel. The upsert is
// keyed by phone number: lookup first, then update or create, so retrying
// the whole operation never produces a duplicate contact.
package crm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/charmbracelet/log"

	"github.com/novumhouse/olx-scraper-gohighlevel/internal/extract"
	"github.com/novumhouse/olx-scraper-gohighlevel/internal/retry"
)

const DefaultBaseURL = "https://rest.gohighlevel.com/v1"

// Outcome reports what the upsert did.
type Outcome string

const (
	OutcomeCreated Outcome = "created"
	OutcomeUpdated Outcome = "updated"
)

type Config struct {
	APIKey     string
	LocationID string
	ClientTag  string // tenant id, attached to every contact
	BaseURL    string // tests override this
	Retry      retry.Policy
	HTTPClient *http.Client
}

type Client struct {
	cfg Config
	hc  *http.Client
	log *log.Logger
}

func New(cfg Config, logger *log.Logger) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Retry.MaxAttempts == 0 {
		cfg.Retry = retry.Default
	}
	hc := cfg.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: 20 * time.Second}
	}
	return &Client{cfg: cfg, hc: hc, log: logger}
}

// Upsert looks the contact up by phone and updates it, or creates it when
// absent. Each HTTP call is retried on transient failure; auth and
// malformed-request responses are permanent and bubble up unretried.
func (c *Client) Upsert(ctx context.Context, contact extract.Contact) (Outcome, error) {
	id, found, err := c.lookup(ctx, contact.Phone)
	if err != nil {
		return "", fmt.Errorf("lookup contact %s: %w", contact.Phone, err)
	}

	if found {
		if err := c.update(ctx, id, contact); err != nil {
			return "", fmt.Errorf("update contact %s: %w", id, err)
		}
		c.log.Info("contact updated", "company", contact.Company, "phone", contact.Phone)
		return OutcomeUpdated, nil
	}

	if err := c.create(ctx, contact); err != nil {
		return "", fmt.Errorf("create contact %q: %w", contact.Company, err)
	}
	c.log.Info("contact created", "company", contact.Company, "phone", contact.Phone)
	return OutcomeCreated, nil
}

func (c *Client) lookup(ctx context.Context, phone string) (id string, found bool, err error) {
	var body []byte
	err = c.cfg.Retry.Do(ctx, func(ctx context.Context) error {
		var derr error
		body, derr = c.do(ctx, http.MethodGet,
			"/contacts/lookup?phone="+url.QueryEscape(phone), nil)
		return derr
	})
	if err != nil {
		// The v1 lookup reports an unknown phone as 404 (or 422), not as
		// an empty contact list.
		var ae *apiError
		if errors.As(err, &ae) &&
			(ae.status == http.StatusNotFound || ae.status == http.StatusUnprocessableEntity) {
			return "", false, nil
		}
		return "", false, err
	}

	var parsed struct {
		Contacts []struct {
			ID string `json:"id"`
		} `json:"contacts"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", false, fmt.Errorf("decode lookup response: %w", err)
	}
	if len(parsed.Contacts) == 0 {
		return "", false, nil
	}
	return parsed.Contacts[0].ID, true, nil
}

func (c *Client) create(ctx context.Context, contact extract.Contact) error {
	payload := c.payload(contact)
	return c.cfg.Retry.Do(ctx, func(ctx context.Context) error {
		_, err := c.do(ctx, http.MethodPost, "/contacts/", payload)
		return err
	})
}

func (c *Client) update(ctx context.Context, id string, contact extract.Contact) error {
	payload := c.payload(contact)
	return c.cfg.Retry.Do(ctx, func(ctx context.Context) error {
		_, err := c.do(ctx, http.MethodPut, "/contacts/"+id, payload)
		return err
	})
}

func (c *Client) payload(contact extract.Contact) map[string]any {
	collected := contact.CollectedAt.Format("2006-01-02 15:04:05")
	notes := strings.Join([]string{
		"Position: " + contact.Position,
		"Source: OLX",
		"URL: " + contact.SourceURL,
		"Date Collected: " + collected,
	}, "\n")

	p := map[string]any{
		"name":   contact.Company,
		"phone":  contact.Phone,
		"type":   "lead",
		"source": "OLX Scraper",
		"tags":   []string{"OLX", c.cfg.ClientTag},
		"customField": map[string]string{
			"position":       contact.Position,
			"source_url":     contact.SourceURL,
			"date_collected": collected,
		},
		"notes": notes,
	}
	if c.cfg.LocationID != "" {
		p["locationId"] = c.cfg.LocationID
	}
	return p
}

// apiError is a non-2xx, non-transient API response. Callers that care
// about specific statuses (the lookup's not-found forms) unwrap it with
// errors.As.
type apiError struct {
	method string
	path   string
	status int
	body   string
}

func (e *apiError) Error() string {
	return fmt.Sprintf("gohighlevel %s %s: status %d: %s", e.method, e.path, e.status, e.body)
}

// do performs one API request, classifying failures: 5xx/429/timeouts are
// transient (plain error, retried by the caller's policy), other 4xx are
// permanent.
func (c *Client) do(ctx context.Context, method, path string, payload any) ([]byte, error) {
	var body io.Reader
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return nil, retry.Permanent(fmt.Errorf("encode payload: %w", err))
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.cfg.BaseURL+path, body)
	if err != nil {
		return nil, retry.Permanent(err)
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")

	res, err := c.hc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("gohighlevel %s %s: %w", method, path, err)
	}
	defer res.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(res.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("gohighlevel read response: %w", err)
	}

	switch {
	case res.StatusCode >= 200 && res.StatusCode < 300:
		return respBody, nil
	case res.StatusCode == http.StatusTooManyRequests || res.StatusCode >= 500:
		return nil, fmt.Errorf("gohighlevel %s %s: status %d", method, path, res.StatusCode)
	default:
		return nil, retry.Permanent(&apiError{
			method: method,
			path:   path,
			status: res.StatusCode,
			body:   strings.TrimSpace(string(respBody)),
		})
	}
}
