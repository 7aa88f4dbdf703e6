package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// RunRecord is the persisted outcome of a client's most recent run. The
// scheduler recomputes next-due times from this plus the cron expression,
// so schedule state survives process restarts.
type RunRecord struct {
	ClientID   string
	LastRun    time.Time
	LastStatus string
	LastError  string
}

// LastRun returns the persisted run record for a client. found is false
// when the client has never run.
func (d *DB) LastRun(ctx context.Context, clientID string) (rec RunRecord, found bool, err error) {
	var lastRun string
	err = d.Pool.QueryRowContext(ctx, `
SELECT last_run, last_status, last_error FROM schedule_state WHERE client_id = ?;`,
		clientID).Scan(&lastRun, &rec.LastStatus, &rec.LastError)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return RunRecord{}, false, nil
		}
		return RunRecord{}, false, fmt.Errorf("schedule state lookup: %w", err)
	}
	rec.ClientID = clientID
	rec.LastRun, err = time.Parse(time.RFC3339, lastRun)
	if err != nil {
		return RunRecord{}, false, fmt.Errorf("schedule state parse last_run: %w", err)
	}
	return rec, true, nil
}

// RecordRun upserts the outcome of a finished run.
func (d *DB) RecordRun(ctx context.Context, clientID string, finished time.Time, status, errMsg string) error {
	_, err := d.Pool.ExecContext(ctx, `
INSERT INTO schedule_state (client_id, last_run, last_status, last_error)
VALUES (?, ?, ?, ?)
ON CONFLICT (client_id) DO UPDATE SET
  last_run = excluded.last_run,
  last_status = excluded.last_status,
  last_error = excluded.last_error;`,
		clientID, finished.UTC().Format(time.RFC3339), status, errMsg)
	if err != nil {
		return fmt.Errorf("record run: %w", err)
	}
	return nil
}
