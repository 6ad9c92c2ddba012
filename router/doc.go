// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Package router defines HTTP routes for the live-tally API.

# Route Registration

NewRouter creates a configured http.ServeMux with all endpoints:

	mux := router.NewRouter(engine, cfg)

# Endpoints

Health:

	GET /health

Polls:

	GET  /polls/{id}          - Poll with current scores (gzip)
	POST /polls/{id}/votes    - Cast or switch a vote
	GET  /polls/{id}/results  - Live tally changes (Server-Sent Events)

Every poll route is wrapped in middleware.WithLogging. The caller wraps
the mux in middleware.CORS.
*/
package router
