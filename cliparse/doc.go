// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Package cliparse handles command-line argument parsing and configuration.

# Configuration

ParseFlags returns a Config struct with all settings:

	cfg, err := cliparse.ParseFlags(os.Args[1:])

# CLI Flags

	-p                 Server port (default 3333)
	-d                 Database URL
	-t                 Database type: sqlite (default) or postgres
	-tally             Tally backend: memory (default) or pebble
	-tally-path        Pebble data directory (default tally-data)
	-tally-cache       Pebble block cache, humanized bytes (default 32MB)
	-store-timeout     Bound on each ledger/tally call (default 2s)
	-reconcile-every   Reconciliation interval (default 1m)
	-subscriber-buffer Per-subscriber event channel size (default 16)
	-session-secret    Session cookie secret
	-env-file          Dotenv file loaded before env fallback (default .env)

# Environment Variables

Flags fall back to environment variables:

	PORT               → -p
	DATABASE_URL       → -d
	DATABASE_TYPE      → -t
	TALLY_BACKEND      → -tally
	TALLY_PATH         → -tally-path
	TALLY_CACHE        → -tally-cache
	STORE_TIMEOUT      → -store-timeout
	RECONCILE_INTERVAL → -reconcile-every
	SUBSCRIBER_BUFFER  → -subscriber-buffer
	SESSION_SECRET     → -session-secret

CLI flags take precedence over environment variables, and environment
variables take precedence over the dotenv file.

# Validation

ParseFlags returns an error if required values are missing:

  - DATABASE_URL must be provided
  - SESSION_SECRET must be provided
*/
package cliparse
