package config

import (
	"fmt"
	"strings"

	"github.com/robfig/cron/v3"
)

// scheduleParser accepts the standard five-field cron format plus
// descriptors like "@every 6h" and "@daily".
var scheduleParser = cron.NewParser(
	cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// ParseSchedule parses a client schedule expression.
func ParseSchedule(expr string) (cron.Schedule, error) {
	return scheduleParser.Parse(expr)
}

// Validate checks one client entry. An error here is fatal for that client
// only: the run for it is skipped, other clients are unaffected.
func (c *ClientConfig) Validate() error {
	var problems []string

	if c.IsEnabled() && strings.TrimSpace(c.APIKey) == "" && strings.TrimSpace(c.KeyringAccount) == "" {
		problems = append(problems, "gohighlevel_api_key (or keyring_account) is required when enabled")
	}
	if len(c.SearchURLs) == 0 {
		problems = append(problems, "search_urls must list at least one search scope")
	}
	for _, u := range c.SearchURLs {
		if !strings.HasPrefix(u, "http://") && !strings.HasPrefix(u, "https://") {
			problems = append(problems, fmt.Sprintf("search url %q is not absolute", u))
		}
	}
	if c.MaxPages < 1 {
		problems = append(problems, "max_pages must be >= 1")
	}
	if c.MaxListings < 1 {
		problems = append(problems, "max_listings must be >= 1")
	}
	if c.DelayBetweenRequests < 0 {
		problems = append(problems, "delay_between_requests must be >= 0")
	}
	if _, err := ParseSchedule(c.Schedule); err != nil {
		problems = append(problems, fmt.Sprintf("schedule %q: %v", c.Schedule, err))
	}

	if len(problems) > 0 {
		return fmt.Errorf("client %s: %s", c.ID, strings.Join(problems, "; "))
	}
	return nil
}
