// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Package handlers contains HTTP request handlers for the live-tally API.

# Handler Types

Each handler is a struct holding the vote engine and config:

  - PollHandler: poll definition with current scores
  - VoteHandler: vote submission and session cookie issuance
  - ResultsHandler: live tally changes as Server-Sent Events

Handlers are created via constructor functions:

	pollHandler := handlers.NewPollHandler(engine, cfg)

# Voting Flow

	POST /polls/{id}/votes  {"poll_option_id": "..."}

The voter is identified by the signed session_id cookie. A voter without
one gets a fresh session on their first accepted vote. Outcomes map to
status codes:

	accepted            201
	already-voted       400
	unknown-option      400
	unknown-poll        404
	transient-conflict  409 (Retry-After: 1)
	store unavailable   503

# Live Results

	GET /polls/{id}/results

The stream opens with a "snapshot" event carrying the full poll, then one
"vote" event per changed option:

	event: vote
	data: {"poll_id":"...","poll_option_id":"...","votes":3}
*/
package handlers
