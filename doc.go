// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Package main provides the entry point for the live-tally API server.

live-tally runs anonymous multiple-choice polls with live results. Each
voter holds at most one current vote per poll and may switch it; every
accepted vote moves the option tallies and is pushed to open result
streams.

# Starting the Server

The server requires environment variables or CLI flags for configuration:

	DATABASE_URL=file:tally.db SESSION_SECRET=... go run .

Or with flags:

	go run . -p 3333 -t postgres -d "postgres://..." -session-secret ... -tally pebble

# Configuration

Required settings:

  - DATABASE_URL (-d): ledger database connection string
  - SESSION_SECRET (-session-secret): HMAC key for session cookies

Optional settings:

  - PORT (-p): Server port (default: 3333)
  - DATABASE_TYPE (-t): sqlite or postgres (default: sqlite)
  - TALLY_BACKEND (-tally): memory or pebble (default: memory)
  - TALLY_PATH (-tally-path), TALLY_CACHE (-tally-cache): pebble settings
  - STORE_TIMEOUT (-store-timeout): bound on each store call (default: 2s)
  - RECONCILE_INTERVAL (-reconcile-every): drift repair period (default: 1m)

# Architecture

Every vote goes ledger first, tally second, broadcast last:

  - ledger: durable vote records, one per voter and poll
  - tally: per-option counters (in memory or pebble)
  - broadcast: per-poll fan-out of tally changes
  - voting: the vote state machine and the reconciler
  - polls: poll definition lookup
  - handlers, router, middleware: HTTP surface
  - auth: session tokens and cookie signing
  - db: connection and schema
  - cliparse: configuration parsing

See package documentation for each component.
*/
package main
