// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package voting

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/danielhkuo/live-tally/broadcast"
	"github.com/danielhkuo/live-tally/polls"
	"github.com/danielhkuo/live-tally/tally"
)

// VoteCounter aggregates the ledger
type VoteCounter interface {
	CountByOption(ctx context.Context, pollID string) (map[string]int64, error)
	ActivePolls(ctx context.Context) ([]string, error)
}

// Reconciler recomputes tallies from the ledger. A pass is idempotent and
// independent of the order in which votes were cast. Passes exclude
// in-flight votes on the same poll through the Gate shared with the Engine.
type Reconciler struct {
	polls  PollLookup
	votes  VoteCounter
	tally  tally.Store
	broker *broadcast.Broker
	gate   *Gate

	mu    sync.Mutex
	dirty map[string]struct{}
}

func NewReconciler(pl PollLookup, votes VoteCounter, ts tally.Store, broker *broadcast.Broker) *Reconciler {
	return &Reconciler{
		polls:  pl,
		votes:  votes,
		tally:  ts,
		broker: broker,
		gate:   NewGate(),
		dirty:  make(map[string]struct{}),
	}
}

// Gate returns the gate an Engine must share with this reconciler
func (r *Reconciler) Gate() *Gate {
	return r.gate
}

// MarkDirty queues a poll for the next periodic pass
func (r *Reconciler) MarkDirty(pollID string) {
	r.mu.Lock()
	r.dirty[pollID] = struct{}{}
	r.mu.Unlock()
}

// Dirty returns the queued poll ids in sorted order
func (r *Reconciler) Dirty() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	ids := make([]string, 0, len(r.dirty))
	for id := range r.dirty {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Reconcile rewrites a poll's tally from ledger counts and publishes every
// option whose count moved. It returns the number of changed options.
func (r *Reconciler) Reconcile(ctx context.Context, pollID string) (int, error) {
	poll, err := r.polls.GetPoll(ctx, pollID)
	if err != nil && !errors.Is(err, polls.ErrNotFound) {
		return 0, fmt.Errorf("failed to load poll %s: %w", pollID, err)
	}

	release := r.gate.exclude(pollID)
	defer release()

	counts, err := r.votes.CountByOption(ctx, pollID)
	if err != nil {
		return 0, fmt.Errorf("failed to count votes for poll %s: %w", pollID, err)
	}

	// Known options without votes are written as explicit zeros
	for _, opt := range poll.Options {
		if _, ok := counts[opt.ID]; !ok {
			counts[opt.ID] = 0
		}
	}

	before, err := r.tally.Snapshot(ctx, pollID)
	if err != nil {
		return 0, fmt.Errorf("failed to read tally for poll %s: %w", pollID, err)
	}

	if err := r.tally.Replace(ctx, pollID, counts); err != nil {
		return 0, fmt.Errorf("failed to replace tally for poll %s: %w", pollID, err)
	}

	var changed int
	var total int64
	for optionID, n := range counts {
		total += n
		if before[optionID] != n {
			changed++
			r.broker.Publish(pollID, optionID, n)
		}
	}

	if changed > 0 {
		slog.Info("tally reconciled",
			"poll_id", pollID,
			"changed_options", changed,
			"votes", humanize.Comma(total),
		)
	}
	return changed, nil
}

// ReconcileAll rebuilds the tally of every poll with votes, plus any
// queued dirty polls. Failures are collected and the pass continues.
func (r *Reconciler) ReconcileAll(ctx context.Context) error {
	start := time.Now()

	ids, err := r.votes.ActivePolls(ctx)
	if err != nil {
		return fmt.Errorf("failed to list polls: %w", err)
	}

	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		seen[id] = true
	}
	for _, id := range r.takeDirty() {
		if !seen[id] {
			ids = append(ids, id)
		}
	}

	var errs []error
	for _, id := range ids {
		if _, err := r.Reconcile(ctx, id); err != nil {
			r.MarkDirty(id)
			errs = append(errs, err)
		}
	}

	slog.Info("reconciliation pass complete",
		"polls", humanize.Comma(int64(len(ids))),
		"failed", len(errs),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return errors.Join(errs...)
}

// Run reconciles dirty polls every interval until ctx is done
func (r *Reconciler) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.reconcileDirty(ctx)
		}
	}
}

func (r *Reconciler) reconcileDirty(ctx context.Context) {
	for _, id := range r.takeDirty() {
		if _, err := r.Reconcile(ctx, id); err != nil {
			slog.Error("reconciliation failed", "poll_id", id, "error", err)
			r.MarkDirty(id)
		}
	}
}

func (r *Reconciler) takeDirty() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	ids := make([]string, 0, len(r.dirty))
	for id := range r.dirty {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	clear(r.dirty)
	return ids
}
