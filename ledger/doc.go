// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Package ledger is the durable record of each voter's current choice.

Every (session_id, poll_id) pair has at most one row in the vote table.
The ledger never deletes: a change of mind is an in-place update.

	l := ledger.New(conn)

	optionID, found, err := l.FindCurrentVote(ctx, session, pollID)
	err = l.RecordVote(ctx, session, pollID, optionID)     // ErrConflict if a row exists
	err = l.SwitchVote(ctx, session, pollID, from, to)     // ErrNotFound if the row moved

CountByOption and ActivePolls feed tally reconciliation.
*/
package ledger
