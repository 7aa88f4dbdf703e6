package pipeline

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/novumhouse/olx-scraper-gohighlevel/internal/extract"
)

// Run statuses.
const (
	StatusOK          = "ok"
	StatusFailed      = "failed"
	StatusConfigError = "config_error"
	StatusSkipped     = "skipped" // another run for this client holds the lock
)

// RunResult summarizes one pipeline invocation for one client. Appended to
// the client's run log once written, never mutated afterwards.
type RunResult struct {
	ClientID   string        `json:"client_id"`
	ClientName string        `json:"client_name"`
	Status     string        `json:"status"`
	StartedAt  time.Time     `json:"started_at"`
	Duration   time.Duration `json:"duration"`

	Discovered int `json:"discovered"`
	Accepted   int `json:"accepted"`
	Rejected   int `json:"rejected"`
	Skipped    int `json:"skipped"`
	Extracted  int `json:"extracted"`
	Synced     int `json:"synced"`
	Failed     int `json:"failed"`

	Errors []string `json:"errors,omitempty"`
}

func (r *RunResult) addError(format string, args ...any) {
	r.Errors = append(r.Errors, fmt.Sprintf(format, args...))
}

// WriteContacts replaces the client's result file with this run's contacts.
// Replace-per-run is the documented contract for downstream consumers: the
// file always holds the latest run's extractions, while the run log keeps
// history.
func WriteContacts(path string, contacts []extract.Contact) error {
	if contacts == nil {
		contacts = []extract.Contact{}
	}
	b, err := json.MarshalIndent(contacts, "", "  ")
	if err != nil {
		return fmt.Errorf("encode contacts: %w", err)
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create output dir: %w", err)
		}
	}
	if err := os.WriteFile(path, b, 0o644); err != nil {
		return fmt.Errorf("write contacts: %w", err)
	}
	return nil
}

// RunLogPath derives the append-only run log path from the output file
// ("results_c1.json" -> "results_c1_runs.jsonl").
func RunLogPath(outputFile string) string {
	base := strings.TrimSuffix(outputFile, filepath.Ext(outputFile))
	return base + "_runs.jsonl"
}

// AppendRunLog appends one JSON line per run to the client's run log.
func AppendRunLog(path string, res RunResult) error {
	b, err := json.Marshal(res)
	if err != nil {
		return fmt.Errorf("encode run result: %w", err)
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create output dir: %w", err)
		}
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open run log: %w", err)
	}
	defer f.Close()
	if _, err := f.Write(append(b, '\n')); err != nil {
		return fmt.Errorf("append run log: %w", err)
	}
	return nil
}
