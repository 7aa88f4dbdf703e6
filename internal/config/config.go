package config

import (
	"fmt"
	"os"
	"sort"
	"time"

	"gopkg.in/yaml.v3"
)

// Built-in defaults, applied when neither the client entry nor the
// registry-level defaults block sets a value.
const (
	DefaultMaxPages    = 5
	DefaultMaxListings = 50
	DefaultDelaySec    = 1
	DefaultSchedule    = "0 6 * * *"
	DefaultRunTimeout  = 30 * time.Minute
)

// Duration unmarshals YAML strings like "30m" or "1h30m".
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) Std() time.Duration { return time.Duration(d) }

type Keywords struct {
	Include []string `yaml:"include"`
	Exclude []string `yaml:"exclude"`
}

// ClientConfig is one tenant's scraping and sync settings. Loaded fresh at
// the start of every run and treated as immutable afterwards.
type ClientConfig struct {
	ID   string `yaml:"-"`
	Name string `yaml:"name"`

	APIKey         string `yaml:"gohighlevel_api_key"`
	KeyringAccount string `yaml:"keyring_account"`
	LocationID     string `yaml:"location_id"`

	SearchURLs []string `yaml:"search_urls"`
	Keywords   Keywords `yaml:"keywords"`

	Schedule string `yaml:"schedule"`
	// Legacy field from older configs; translated to "@every Nh" when
	// schedule is not set.
	ScheduleIntervalHours int   `yaml:"schedule_interval_hours"`
	Enabled               *bool `yaml:"enabled"`

	MaxPages             int      `yaml:"max_pages"`
	MaxListings          int      `yaml:"max_listings"`
	DelayBetweenRequests int      `yaml:"delay_between_requests"` // seconds
	RunTimeout           Duration `yaml:"run_timeout"`

	OutputFile string `yaml:"output_file"`
	LogFile    string `yaml:"log_file"`
}

// IsEnabled defaults to true when the field is absent.
func (c *ClientConfig) IsEnabled() bool {
	return c.Enabled == nil || *c.Enabled
}

func (c *ClientConfig) Delay() time.Duration {
	return time.Duration(c.DelayBetweenRequests) * time.Second
}

// Defaults is the registry-level defaults block, overlaid onto every client
// entry that leaves the corresponding field unset.
type Defaults struct {
	MaxPages             int      `yaml:"max_pages"`
	MaxListings          int      `yaml:"max_listings"`
	DelayBetweenRequests int      `yaml:"delay_between_requests"`
	Schedule             string   `yaml:"schedule"`
	RunTimeout           Duration `yaml:"run_timeout"`
}

// Registry maps client id to ClientConfig for every configured tenant.
type Registry struct {
	Defaults Defaults                 `yaml:"defaults"`
	Clients  map[string]*ClientConfig `yaml:"clients"`
}

// Load reads and parses the registry file. A read or parse failure here is
// the only globally fatal configuration error; per-client problems surface
// later through Validate.
func Load(path string) (*Registry, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	var reg Registry
	if err := yaml.Unmarshal(b, &reg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	reg.normalize()
	return &reg, nil
}

func (r *Registry) normalize() {
	if r.Defaults.MaxPages == 0 {
		r.Defaults.MaxPages = DefaultMaxPages
	}
	if r.Defaults.MaxListings == 0 {
		r.Defaults.MaxListings = DefaultMaxListings
	}
	if r.Defaults.DelayBetweenRequests == 0 {
		r.Defaults.DelayBetweenRequests = DefaultDelaySec
	}
	if r.Defaults.Schedule == "" {
		r.Defaults.Schedule = DefaultSchedule
	}
	if r.Defaults.RunTimeout == 0 {
		r.Defaults.RunTimeout = Duration(DefaultRunTimeout)
	}

	for id, c := range r.Clients {
		c.ID = id
		if c.Name == "" {
			c.Name = id
		}
		if c.MaxPages == 0 {
			c.MaxPages = r.Defaults.MaxPages
		}
		if c.MaxListings == 0 {
			c.MaxListings = r.Defaults.MaxListings
		}
		if c.DelayBetweenRequests == 0 {
			c.DelayBetweenRequests = r.Defaults.DelayBetweenRequests
		}
		if c.RunTimeout == 0 {
			c.RunTimeout = r.Defaults.RunTimeout
		}
		if c.Schedule == "" {
			if c.ScheduleIntervalHours > 0 {
				c.Schedule = fmt.Sprintf("@every %dh", c.ScheduleIntervalHours)
			} else {
				c.Schedule = r.Defaults.Schedule
			}
		}
		if c.OutputFile == "" {
			c.OutputFile = fmt.Sprintf("results_%s.json", id)
		}
		if c.LogFile == "" {
			c.LogFile = fmt.Sprintf("client_%s.log", id)
		}
	}
}

// Client returns the config for one id.
func (r *Registry) Client(id string) (*ClientConfig, error) {
	c, ok := r.Clients[id]
	if !ok {
		return nil, fmt.Errorf("client %q not found in configuration", id)
	}
	return c, nil
}

// IDs returns all client ids in stable order.
func (r *Registry) IDs() []string {
	ids := make([]string, 0, len(r.Clients))
	for id := range r.Clients {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Enabled returns the enabled clients in stable id order.
func (r *Registry) Enabled() []*ClientConfig {
	var out []*ClientConfig
	for _, id := range r.IDs() {
		if c := r.Clients[id]; c.IsEnabled() {
			out = append(out, c)
		}
	}
	return out
}
