// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package models

import "time"

// Request types

type VoteRequest struct {
	PollOptionID string `json:"poll_option_id"`
}

// Response types

type VoteResponse struct {
	Outcome string `json:"outcome"`
}

type PollResponse struct {
	Poll PollView `json:"poll"`
}

// PollView is a poll definition joined with its current tally
type PollView struct {
	ID        string       `json:"id"`
	Title     string       `json:"title"`
	CreatedAt time.Time    `json:"created_at"`
	UpdatedAt time.Time    `json:"updated_at"`
	Options   []OptionView `json:"options"`
}

type OptionView struct {
	ID    string `json:"id"`
	Title string `json:"title"`
	Score int64  `json:"score"`
}

// Domain types

type Poll struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	Options   []Option  `json:"options"`
}

// HasOption reports whether optionID belongs to the poll
func (p Poll) HasOption(optionID string) bool {
	for _, opt := range p.Options {
		if opt.ID == optionID {
			return true
		}
	}
	return false
}

type Option struct {
	ID     string `json:"id"`
	PollID string `json:"poll_id"`
	Title  string `json:"title"`
}

// Vote is the ledger's current choice for one session on one poll.
// SessionID is never exposed in JSON.
type Vote struct {
	ID        string    `json:"id"`
	SessionID string    `json:"-"`
	PollID    string    `json:"poll_id"`
	OptionID  string    `json:"poll_option_id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// DeltaEvent carries the new count of a single option
type DeltaEvent struct {
	PollID   string `json:"poll_id"`
	OptionID string `json:"poll_option_id"`
	Votes    int64  `json:"votes"`
}

// Error response

type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}
