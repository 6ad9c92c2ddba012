// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Package voting is the vote-accounting core.

# Transitions

For each request the Engine reads the voter's current vote and picks one
transition:

	no prior vote      → ledger.RecordVote, tally +1 on the target
	prior == target    → ErrAlreadyVoted, nothing written
	prior != target    → ledger.SwitchVote, tally -1 on prior then +1 on target

The target option is checked against the poll definition before any
ledger call. A lost race (ledger.ErrConflict or ledger.ErrNotFound) is
re-evaluated from a fresh read once, then surfaces as ErrTransientConflict.

# Ordering

The ledger write always completes before the tally is touched, and every
successful tally adjust is published to the broker right after. If the
ledger write fails nothing else happens. If a tally adjust fails after
the ledger write, the vote is still accepted and the poll is reported to
Options.OnDrift for reconciliation.

# Outcomes

	err == nil                        accepted
	errors.Is(err, ErrAlreadyVoted)   already-voted
	errors.Is(err, ErrUnknownOption)  unknown-option
	errors.Is(err, ErrUnknownPoll)    unknown-poll
	errors.Is(err, ErrTransientConflict) transient-conflict
	errors.Is(err, ErrStoreUnavailable)  service error

OutcomeOf performs this mapping.

# Reconciliation

Reconciler recomputes a poll's tally from ledger counts. ReconcileAll runs
at startup to rebuild the in-memory tally; Run repairs polls marked dirty
by the engine on a timer.
*/
package voting
