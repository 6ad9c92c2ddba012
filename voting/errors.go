// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package voting

import (
	"context"
	"errors"
	"fmt"

	"github.com/danielhkuo/live-tally/ledger"
	"github.com/danielhkuo/live-tally/polls"
)

var (
	ErrUnknownPoll       = errors.New("unknown poll")
	ErrUnknownOption     = errors.New("unknown option")
	ErrAlreadyVoted      = errors.New("already voted on this poll")
	ErrTransientConflict = errors.New("transient conflict, retry")
	ErrStoreUnavailable  = errors.New("store unavailable")
)

// Outcome is the terminal result of a vote request
type Outcome string

const (
	OutcomeAccepted          Outcome = "accepted"
	OutcomeAlreadyVoted      Outcome = "already-voted"
	OutcomeUnknownOption     Outcome = "unknown-option"
	OutcomeUnknownPoll       Outcome = "unknown-poll"
	OutcomeTransientConflict Outcome = "transient-conflict"
	// OutcomeUnavailable is a service failure rather than a vote result
	OutcomeUnavailable Outcome = "unavailable"
)

// OutcomeOf maps an error returned by Engine.Vote to its outcome
func OutcomeOf(err error) Outcome {
	switch {
	case err == nil:
		return OutcomeAccepted
	case errors.Is(err, ErrAlreadyVoted):
		return OutcomeAlreadyVoted
	case errors.Is(err, ErrUnknownOption):
		return OutcomeUnknownOption
	case errors.Is(err, ErrUnknownPoll):
		return OutcomeUnknownPoll
	case errors.Is(err, ErrTransientConflict):
		return OutcomeTransientConflict
	default:
		return OutcomeUnavailable
	}
}

// storeError sorts a ledger, poll, or tally failure. Race signals pass
// through untouched; deadlines are transient; anything else means the
// store could not be reached.
func storeError(op string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ledger.ErrConflict), errors.Is(err, ledger.ErrNotFound), errors.Is(err, polls.ErrNotFound):
		return err
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%s: %w: %w", op, ErrTransientConflict, err)
	default:
		return fmt.Errorf("%s: %w: %w", op, ErrStoreUnavailable, err)
	}
}
