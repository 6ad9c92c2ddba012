// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package handlers

import (
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/danielhkuo/live-tally/auth"
	"github.com/danielhkuo/live-tally/cliparse"
	"github.com/danielhkuo/live-tally/middleware"
	"github.com/danielhkuo/live-tally/models"
	"github.com/danielhkuo/live-tally/voting"
)

// SessionCookie carries the signed voter session
const SessionCookie = "session_id"

type VoteHandler struct {
	engine *voting.Engine
	cfg    cliparse.Config
}

func NewVoteHandler(engine *voting.Engine, cfg cliparse.Config) *VoteHandler {
	return &VoteHandler{engine: engine, cfg: cfg}
}

// Vote handles POST /polls/{id}/votes
func (h *VoteHandler) Vote(w http.ResponseWriter, r *http.Request) {
	pollID, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}

	var req models.VoteRequest
	if err := middleware.ParseJSONBody(r, &req); err != nil {
		middleware.ErrorResponse(w, http.StatusBadRequest, "Invalid JSON")
		return
	}
	if _, err := uuid.Parse(req.PollOptionID); err != nil {
		middleware.ErrorResponse(w, http.StatusBadRequest, "poll_option_id must be a UUID")
		return
	}

	rec, err := h.engine.Vote(r.Context(), voting.Request{
		PollID:    pollID,
		OptionID:  req.PollOptionID,
		SessionID: h.session(r),
	})

	switch outcome := voting.OutcomeOf(err); outcome {
	case voting.OutcomeAccepted:
		if rec.Issued {
			http.SetCookie(w, &http.Cookie{
				Name:     SessionCookie,
				Value:    auth.SignSession(rec.SessionID, h.cfg.SessionSecret),
				Path:     "/",
				MaxAge:   auth.SessionMaxAge,
				HttpOnly: true,
				SameSite: http.SameSiteLaxMode,
			})
		}
		middleware.JSONResponse(w, http.StatusCreated, models.VoteResponse{Outcome: string(outcome)})
	case voting.OutcomeAlreadyVoted:
		middleware.ErrorResponse(w, http.StatusBadRequest, "You already voted on this poll.")
	case voting.OutcomeUnknownOption:
		middleware.ErrorResponse(w, http.StatusBadRequest, "This option is unknown.")
	case voting.OutcomeUnknownPoll:
		middleware.ErrorResponse(w, http.StatusNotFound, "Poll not found.")
	case voting.OutcomeTransientConflict:
		w.Header().Set("Retry-After", "1")
		middleware.ErrorResponse(w, http.StatusConflict, "Vote collided with another request, please retry.")
	default:
		slog.Error("vote failed", "error", err, "poll_id", pollID)
		middleware.ErrorResponse(w, http.StatusServiceUnavailable, "Voting is temporarily unavailable.")
	}
}

// session returns the verified session token, or "" for none.
// A tampered cookie counts as none.
func (h *VoteHandler) session(r *http.Request) string {
	c, err := r.Cookie(SessionCookie)
	if err != nil {
		return ""
	}
	token, err := auth.VerifySession(c.Value, h.cfg.SessionSecret)
	if err != nil {
		slog.Warn("ignoring invalid session cookie", "error", err, "remote", middleware.GetClientIP(r))
		return ""
	}
	return token
}
