// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/danielhkuo/live-tally/cliparse"
	"github.com/danielhkuo/live-tally/middleware"
	"github.com/danielhkuo/live-tally/models"
	"github.com/danielhkuo/live-tally/voting"
)

type PollHandler struct {
	engine *voting.Engine
	cfg    cliparse.Config
}

func NewPollHandler(engine *voting.Engine, cfg cliparse.Config) *PollHandler {
	return &PollHandler{engine: engine, cfg: cfg}
}

// GetPoll handles GET /polls/{id}
// Returns the poll with every option's current score, zero included
func (h *PollHandler) GetPoll(w http.ResponseWriter, r *http.Request) {
	pollID, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}

	view, err := h.engine.View(r.Context(), pollID)
	if errors.Is(err, voting.ErrUnknownPoll) {
		middleware.ErrorResponse(w, http.StatusNotFound, "Poll not found.")
		return
	}
	if err != nil {
		slog.Error("failed to read poll", "error", err, "poll_id", pollID)
		middleware.ErrorResponse(w, statusFor(err), "Could not load poll.")
		return
	}

	middleware.JSONResponse(w, http.StatusOK, models.PollResponse{Poll: view})
}

// pathUUID reads a UUID path value or writes a 400. The id is returned as
// sent; poll definitions are matched on their stored text.
func pathUUID(w http.ResponseWriter, r *http.Request, name string) (string, bool) {
	raw := r.PathValue(name)
	if raw == "" {
		middleware.ErrorResponse(w, http.StatusBadRequest, name+" is required")
		return "", false
	}
	if _, err := uuid.Parse(raw); err != nil {
		middleware.ErrorResponse(w, http.StatusBadRequest, name+" must be a UUID")
		return "", false
	}
	return raw, true
}

// statusFor maps an engine error to an HTTP status
func statusFor(err error) int {
	switch voting.OutcomeOf(err) {
	case voting.OutcomeAccepted:
		return http.StatusCreated
	case voting.OutcomeAlreadyVoted, voting.OutcomeUnknownOption:
		return http.StatusBadRequest
	case voting.OutcomeUnknownPoll:
		return http.StatusNotFound
	case voting.OutcomeTransientConflict:
		return http.StatusConflict
	default:
		return http.StatusServiceUnavailable
	}
}
