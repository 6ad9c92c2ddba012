// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Package models defines request, response, and domain types for the API.

# Request Types

  - VoteRequest: poll_option_id

# Response Types

  - PollResponse: poll definition with per-option scores (PollView, OptionView)
  - VoteResponse: terminal outcome of a vote request
  - ErrorResponse: error, message

# Domain Types

  - Poll: poll metadata and its ordered options
  - Option: a choice within a poll
  - Vote: the current choice of one voter session on one poll
  - DeltaEvent: new count for one option, pushed to live subscribers
*/
package models
