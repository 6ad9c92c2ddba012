// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package router

import (
	"net/http"

	"github.com/danielhkuo/live-tally/cliparse"
	"github.com/danielhkuo/live-tally/handlers"
	"github.com/danielhkuo/live-tally/middleware"
	"github.com/danielhkuo/live-tally/voting"
)

func NewRouter(engine *voting.Engine, cfg cliparse.Config) *http.ServeMux {
	mux := http.NewServeMux()

	// Initialize handlers
	pollHandler := handlers.NewPollHandler(engine, cfg)
	voteHandler := handlers.NewVoteHandler(engine, cfg)
	resultsHandler := handlers.NewResultsHandler(engine, cfg)

	// Health check
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	// Poll read
	mux.HandleFunc("GET /polls/{id}", middleware.WithLogging(middleware.WithGzip(pollHandler.GetPoll)))

	// Voting (session cookie)
	mux.HandleFunc("POST /polls/{id}/votes", middleware.WithLogging(voteHandler.Vote))

	// Live results, not compressed so events flush as they happen
	mux.HandleFunc("GET /polls/{id}/results", middleware.WithLogging(resultsHandler.Stream))

	// Root endpoint
	mux.HandleFunc("GET /", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("live-tally API v1"))
	})

	return mux
}
