// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package voting

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/danielhkuo/live-tally/auth"
	"github.com/danielhkuo/live-tally/broadcast"
	"github.com/danielhkuo/live-tally/ledger"
	"github.com/danielhkuo/live-tally/models"
	"github.com/danielhkuo/live-tally/polls"
	"github.com/danielhkuo/live-tally/tally"
)

// maxAttempts bounds how often a lost ledger race is re-evaluated
const maxAttempts = 2

// PollLookup reads poll definitions
type PollLookup interface {
	GetPoll(ctx context.Context, pollID string) (models.Poll, error)
}

// Ledger is the authoritative store of current votes
type Ledger interface {
	FindCurrentVote(ctx context.Context, sessionID, pollID string) (string, bool, error)
	RecordVote(ctx context.Context, sessionID, pollID, optionID string) error
	SwitchVote(ctx context.Context, sessionID, pollID, fromOptionID, toOptionID string) error
}

type Options struct {
	// StoreTimeout bounds every ledger, poll, and tally call
	StoreTimeout time.Duration
	// NewSession issues a token for voters without one
	NewSession func() (string, error)
	// OnDrift is told about polls whose tally may disagree with the ledger
	OnDrift func(pollID string)
	// Gate is shared with the Reconciler so repairs never interleave
	// with a vote between its ledger write and tally adjust
	Gate *Gate
}

// Engine applies vote requests: it decides between first vote, repeat,
// and switch, writes the ledger, then adjusts the tally and publishes.
// Concurrent votes are kept correct by the ledger's unique key and the
// tally's atomic adjust; the gate only fences out reconciliation.
type Engine struct {
	polls  PollLookup
	ledger Ledger
	tally  tally.Store
	broker *broadcast.Broker
	opts   Options
	order  publishOrder
}

func NewEngine(pl PollLookup, l Ledger, ts tally.Store, broker *broadcast.Broker, opts Options) *Engine {
	if opts.StoreTimeout <= 0 {
		opts.StoreTimeout = 2 * time.Second
	}
	if opts.NewSession == nil {
		opts.NewSession = auth.NewSessionToken
	}
	if opts.OnDrift == nil {
		opts.OnDrift = func(string) {}
	}
	if opts.Gate == nil {
		opts.Gate = NewGate()
	}
	return &Engine{polls: pl, ledger: l, tally: ts, broker: broker, opts: opts}
}

// Request is one vote. An empty SessionID means the voter has none yet.
type Request struct {
	PollID    string
	OptionID  string
	SessionID string
}

// Receipt describes an accepted vote
type Receipt struct {
	SessionID string
	// Issued is set when SessionID was created by this request
	Issued bool
	// Switched is set when the vote replaced an earlier choice
	Switched bool
	Events   []models.DeltaEvent
}

// Vote runs a request to one terminal outcome. A nil error means
// accepted; otherwise OutcomeOf(err) names the outcome. Caller
// cancellation is ignored so a started vote always settles.
func (e *Engine) Vote(ctx context.Context, req Request) (Receipt, error) {
	ctx = context.WithoutCancel(ctx)

	poll, err := e.getPoll(ctx, req.PollID)
	if err != nil {
		return Receipt{}, err
	}
	if !poll.HasOption(req.OptionID) {
		return Receipt{}, ErrUnknownOption
	}

	rec := Receipt{SessionID: req.SessionID}
	if rec.SessionID == "" {
		token, err := e.opts.NewSession()
		if err != nil {
			return Receipt{}, fmt.Errorf("failed to issue session: %w: %w", ErrStoreUnavailable, err)
		}
		rec.SessionID = token
		rec.Issued = true
	}

	log := slog.With("poll_id", req.PollID, "option_id", req.OptionID, "session", auth.Fingerprint(rec.SessionID))

	release := e.opts.Gate.enter(req.PollID)
	defer release()

	// ambiguous is set once a ledger write of ours timed out and may have landed
	var ambiguous bool

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		prior, found, err := e.findCurrentVote(ctx, rec.SessionID, req.PollID)
		if err != nil {
			if retryable(err) && attempt < maxAttempts {
				continue
			}
			return Receipt{}, err
		}

		switch {
		case !found:
			err = e.bounded(ctx, func(ctx context.Context) error {
				return e.ledger.RecordVote(ctx, rec.SessionID, req.PollID, req.OptionID)
			}, "record vote")
			if errors.Is(err, ledger.ErrConflict) {
				log.Info("first vote lost a race, re-evaluating", "attempt", attempt)
				continue
			}
			if err != nil {
				e.afterFailedWrite(log, req.PollID, err)
				if retryable(err) && attempt < maxAttempts {
					ambiguous = true
					continue
				}
				return Receipt{}, err
			}

			rec.Events = e.apply(ctx, log, req.PollID, rec.Events, adjustment{req.OptionID, +1})
			log.Info("vote recorded")
			return rec, nil

		case prior == req.OptionID && ambiguous && rec.Issued:
			// Nobody else holds a fresh token, so the row is our own timed out insert
			rec.Events = e.apply(ctx, log, req.PollID, rec.Events, adjustment{req.OptionID, +1})
			log.Info("vote recorded after timed out write")
			return rec, nil

		case prior == req.OptionID && ambiguous:
			// Our write or another request's; which one is unknowable here
			log.Warn("vote settled by a timed out write, outcome unknown")
			return Receipt{}, fmt.Errorf("vote outcome unknown: %w", ErrTransientConflict)

		case prior == req.OptionID:
			return Receipt{}, ErrAlreadyVoted

		default:
			err = e.bounded(ctx, func(ctx context.Context) error {
				return e.ledger.SwitchVote(ctx, rec.SessionID, req.PollID, prior, req.OptionID)
			}, "switch vote")
			if errors.Is(err, ledger.ErrNotFound) {
				log.Info("vote switch lost a race, re-evaluating", "attempt", attempt)
				continue
			}
			if err != nil {
				e.afterFailedWrite(log, req.PollID, err)
				if retryable(err) && attempt < maxAttempts {
					ambiguous = true
					continue
				}
				return Receipt{}, err
			}

			rec.Switched = true
			rec.Events = e.apply(ctx, log, req.PollID, rec.Events,
				adjustment{prior, -1},
				adjustment{req.OptionID, +1},
			)
			log.Info("vote switched", "from_option_id", prior)
			return rec, nil
		}
	}

	log.Warn("vote gave up after lost races", "attempts", maxAttempts)
	return Receipt{}, ErrTransientConflict
}

type adjustment struct {
	optionID string
	delta    int64
}

// apply adjusts the tally in order and publishes each new count. The
// ledger write has already landed, so failures are not rolled back;
// they are logged and the poll is handed to reconciliation.
func (e *Engine) apply(ctx context.Context, log *slog.Logger, pollID string, events []models.DeltaEvent, adjs ...adjustment) []models.DeltaEvent {
	for _, adj := range adjs {
		votes, err := e.adjust(ctx, pollID, adj)
		if err != nil {
			log.Error("tally adjust failed, reconciliation needed",
				"error", err, "adjust_option_id", adj.optionID, "delta", adj.delta)
			e.opts.OnDrift(pollID)
			continue
		}
		events = append(events, models.DeltaEvent{PollID: pollID, OptionID: adj.optionID, Votes: votes})
	}
	return events
}

// adjust moves one counter and publishes the result while holding the
// option's order lock, so a later count is never published first
func (e *Engine) adjust(ctx context.Context, pollID string, adj adjustment) (int64, error) {
	unlock := e.order.lock(pollID, adj.optionID)
	defer unlock()

	var votes int64
	err := e.bounded(ctx, func(ctx context.Context) error {
		var err error
		votes, err = e.tally.Adjust(ctx, pollID, adj.optionID, adj.delta)
		return err
	}, "adjust tally")
	if err != nil {
		return 0, err
	}

	e.broker.Publish(pollID, adj.optionID, votes)
	return votes, nil
}

// afterFailedWrite flags the poll when a ledger write timed out: the write
// may still have committed without its tally adjustment
func (e *Engine) afterFailedWrite(log *slog.Logger, pollID string, err error) {
	if errors.Is(err, ErrTransientConflict) {
		log.Warn("ledger write timed out, outcome unknown", "error", err)
		e.opts.OnDrift(pollID)
		return
	}
	log.Error("ledger write failed", "error", err)
}

// View composes the poll definition with the current tally. Options
// missing from the tally read as zero.
func (e *Engine) View(ctx context.Context, pollID string) (models.PollView, error) {
	poll, err := e.getPoll(ctx, pollID)
	if err != nil {
		return models.PollView{}, err
	}

	var counts map[string]int64
	err = e.bounded(ctx, func(ctx context.Context) error {
		var err error
		counts, err = e.tally.Snapshot(ctx, pollID)
		return err
	}, "snapshot tally")
	if err != nil {
		return models.PollView{}, err
	}

	view := models.PollView{
		ID:        poll.ID,
		Title:     poll.Title,
		CreatedAt: poll.CreatedAt,
		UpdatedAt: poll.UpdatedAt,
		Options:   make([]models.OptionView, 0, len(poll.Options)),
	}
	for _, opt := range poll.Options {
		view.Options = append(view.Options, models.OptionView{
			ID:    opt.ID,
			Title: opt.Title,
			Score: counts[opt.ID],
		})
	}
	return view, nil
}

// Watch subscribes to live tally changes of an existing poll
func (e *Engine) Watch(ctx context.Context, pollID string) (*broadcast.Subscription, error) {
	if _, err := e.getPoll(ctx, pollID); err != nil {
		return nil, err
	}
	return e.broker.Subscribe(ctx, pollID), nil
}

func (e *Engine) getPoll(ctx context.Context, pollID string) (models.Poll, error) {
	var poll models.Poll
	err := e.bounded(ctx, func(ctx context.Context) error {
		var err error
		poll, err = e.polls.GetPoll(ctx, pollID)
		return err
	}, "get poll")
	if errors.Is(err, polls.ErrNotFound) {
		return models.Poll{}, ErrUnknownPoll
	}
	return poll, err
}

func (e *Engine) findCurrentVote(ctx context.Context, sessionID, pollID string) (string, bool, error) {
	var prior string
	var found bool
	err := e.bounded(ctx, func(ctx context.Context) error {
		var err error
		prior, found, err = e.ledger.FindCurrentVote(ctx, sessionID, pollID)
		return err
	}, "find vote")
	return prior, found, err
}

// bounded runs fn under the store timeout and sorts its error
func (e *Engine) bounded(ctx context.Context, fn func(context.Context) error, op string) error {
	ctx, cancel := context.WithTimeout(ctx, e.opts.StoreTimeout)
	defer cancel()
	return storeError(op, fn(ctx))
}

func retryable(err error) bool {
	return errors.Is(err, ErrTransientConflict)
}
