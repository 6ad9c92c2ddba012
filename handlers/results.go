// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/danielhkuo/live-tally/cliparse"
	"github.com/danielhkuo/live-tally/middleware"
	"github.com/danielhkuo/live-tally/models"
	"github.com/danielhkuo/live-tally/voting"
)

// keepAlive is how often an idle stream gets a comment line
const keepAlive = 15 * time.Second

type ResultsHandler struct {
	engine *voting.Engine
	cfg    cliparse.Config
}

func NewResultsHandler(engine *voting.Engine, cfg cliparse.Config) *ResultsHandler {
	return &ResultsHandler{engine: engine, cfg: cfg}
}

// Stream handles GET /polls/{id}/results
// Sends one "snapshot" event with the full poll, then a "vote" event per
// tally change until the client goes away.
func (h *ResultsHandler) Stream(w http.ResponseWriter, r *http.Request) {
	pollID, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}

	ctx := r.Context()

	// Subscribe before the snapshot so no change falls between the two
	sub, err := h.engine.Watch(ctx, pollID)
	if errors.Is(err, voting.ErrUnknownPoll) {
		middleware.ErrorResponse(w, http.StatusNotFound, "Poll not found.")
		return
	}
	if err != nil {
		slog.Error("failed to subscribe", "error", err, "poll_id", pollID)
		middleware.ErrorResponse(w, statusFor(err), "Could not open results stream.")
		return
	}
	defer sub.Close()

	view, err := h.engine.View(ctx, pollID)
	if err != nil {
		slog.Error("failed to read poll", "error", err, "poll_id", pollID)
		middleware.ErrorResponse(w, statusFor(err), "Could not load poll.")
		return
	}

	rc := http.NewResponseController(w)
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	if err := writeEvent(w, "snapshot", models.PollResponse{Poll: view}); err != nil {
		return
	}
	if err := rc.Flush(); err != nil {
		slog.Warn("results stream cannot flush", "error", err, "poll_id", pollID)
		return
	}

	ticker := time.NewTicker(keepAlive)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-sub.Events():
			if !ok {
				return
			}
			if err := writeEvent(w, "vote", ev); err != nil {
				slog.Debug("results stream closed", "error", err, "poll_id", pollID)
				return
			}
		case <-ticker.C:
			if _, err := fmt.Fprint(w, ": ping\n\n"); err != nil {
				return
			}
		}
		if err := rc.Flush(); err != nil {
			return
		}
	}
}

// writeEvent writes one server-sent event with a JSON payload
func writeEvent(w http.ResponseWriter, name string, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", name, data)
	return err
}
