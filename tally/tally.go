// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package tally

import (
	"context"
	"errors"
)

var ErrClosed = errors.New("tally store closed")

// Store keeps a derived vote count per (poll, option). Counts are never
// authoritative; the ledger is. A missing option means zero.
type Store interface {
	// Adjust atomically adds delta and returns the new count
	Adjust(ctx context.Context, pollID, optionID string, delta int64) (int64, error)
	// Snapshot returns every stored count of the poll
	Snapshot(ctx context.Context, pollID string) (map[string]int64, error)
	// Replace overwrites all counts of the poll
	Replace(ctx context.Context, pollID string, counts map[string]int64) error
	Close() error
}
