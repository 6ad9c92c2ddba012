// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrConflict means a vote for the (session, poll) pair already exists
	ErrConflict = errors.New("vote already recorded")
	// ErrNotFound means the vote no longer holds the expected option
	ErrNotFound = errors.New("vote not found")
)

// Ledger is the authoritative record of each session's current vote per poll,
// stored in the vote table
type Ledger struct {
	db *sql.DB
}

func New(db *sql.DB) *Ledger {
	return &Ledger{db: db}
}

// FindCurrentVote returns the option the session currently holds on the poll
func (l *Ledger) FindCurrentVote(ctx context.Context, sessionID, pollID string) (string, bool, error) {
	var optionID string
	err := l.db.QueryRowContext(ctx, `
		SELECT option_id FROM vote WHERE session_id = $1 AND poll_id = $2
	`, sessionID, pollID).Scan(&optionID)

	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to query vote: %w", err)
	}
	return optionID, true, nil
}

// RecordVote inserts the first vote of a session on a poll.
// The UNIQUE (session_id, poll_id) constraint decides concurrent first votes.
func (l *Ledger) RecordVote(ctx context.Context, sessionID, pollID, optionID string) error {
	id, err := uuid.NewRandom()
	if err != nil {
		return fmt.Errorf("failed to generate vote ID: %w", err)
	}

	now := time.Now().UTC()
	res, err := l.db.ExecContext(ctx, `
		INSERT INTO vote (id, session_id, poll_id, option_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (session_id, poll_id) DO NOTHING
	`, id.String(), sessionID, pollID, optionID, now, now)
	if err != nil {
		return fmt.Errorf("failed to insert vote: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to insert vote: %w", err)
	}
	if n == 0 {
		return ErrConflict
	}
	return nil
}

// SwitchVote replaces the recorded option in place. The row is only touched
// if it still holds fromOptionID, so two racing switches cannot both win.
func (l *Ledger) SwitchVote(ctx context.Context, sessionID, pollID, fromOptionID, toOptionID string) error {
	res, err := l.db.ExecContext(ctx, `
		UPDATE vote
		SET option_id = $1, updated_at = $2
		WHERE session_id = $3 AND poll_id = $4 AND option_id = $5
	`, toOptionID, time.Now().UTC(), sessionID, pollID, fromOptionID)
	if err != nil {
		return fmt.Errorf("failed to update vote: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to update vote: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// CountByOption counts current votes per option of a poll.
// Options without votes are absent from the result.
func (l *Ledger) CountByOption(ctx context.Context, pollID string) (map[string]int64, error) {
	rows, err := l.db.QueryContext(ctx, `
		SELECT option_id, COUNT(*) FROM vote WHERE poll_id = $1 GROUP BY option_id
	`, pollID)
	if err != nil {
		return nil, fmt.Errorf("failed to count votes: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int64)
	for rows.Next() {
		var optionID string
		var n int64
		if err := rows.Scan(&optionID, &n); err != nil {
			return nil, fmt.Errorf("failed to scan vote count: %w", err)
		}
		counts[optionID] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to count votes: %w", err)
	}
	return counts, nil
}

// ActivePolls lists the ids of polls holding at least one vote
func (l *Ledger) ActivePolls(ctx context.Context) ([]string, error) {
	rows, err := l.db.QueryContext(ctx, `SELECT DISTINCT poll_id FROM vote ORDER BY poll_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list polls with votes: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan poll id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list polls with votes: %w", err)
	}
	return ids, nil
}
