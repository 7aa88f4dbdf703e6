package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Listing dedup statuses. Both are terminal: a listing in either state is
// never re-extracted or re-submitted for that client.
const (
	StatusSynced = "synced"
	StatusFailed = "failed"
)

// HasSeen reports whether the listing already reached a terminal state for
// this client.
func (d *DB) HasSeen(ctx context.Context, clientID, listingID string) (bool, error) {
	var status string
	err := d.Pool.QueryRowContext(ctx, `
SELECT status FROM listings WHERE client_id = ? AND listing_id = ?;`,
		clientID, listingID).Scan(&status)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("dedup lookup: %w", err)
	}
	return status == StatusSynced || status == StatusFailed, nil
}

// MarkSynced records a successful CRM sync. first_seen is preserved when the
// row already exists.
func (d *DB) MarkSynced(ctx context.Context, clientID, listingID string) error {
	return d.markListing(ctx, clientID, listingID, StatusSynced)
}

// MarkFailedPermanent records a permanently failed sync attempt so later
// runs do not retry it.
func (d *DB) MarkFailedPermanent(ctx context.Context, clientID, listingID string) error {
	return d.markListing(ctx, clientID, listingID, StatusFailed)
}

func (d *DB) markListing(ctx context.Context, clientID, listingID, status string) error {
	_, err := d.Pool.ExecContext(ctx, `
INSERT INTO listings (client_id, listing_id, first_seen, status)
VALUES (?, ?, ?, ?)
ON CONFLICT (client_id, listing_id) DO UPDATE SET status = excluded.status;`,
		clientID, listingID, time.Now().UTC().Format(time.RFC3339), status)
	if err != nil {
		return fmt.Errorf("dedup mark %s: %w", status, err)
	}
	return nil
}

// CountSeen returns how many listings are recorded for a client, by status.
func (d *DB) CountSeen(ctx context.Context, clientID string) (synced, failed int, err error) {
	rows, err := d.Pool.QueryContext(ctx, `
SELECT status, COUNT(*) FROM listings WHERE client_id = ? GROUP BY status;`, clientID)
	if err != nil {
		return 0, 0, err
	}
	defer rows.Close()
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return 0, 0, err
		}
		switch status {
		case StatusSynced:
			synced = n
		case StatusFailed:
			failed = n
		}
	}
	return synced, failed, rows.Err()
}
