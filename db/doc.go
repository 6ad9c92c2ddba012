// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Package db opens database connections and creates the schema.

# Connections

Open accepts a database type and URL:

	conn, err := db.Open(db.TypePostgres, "postgres://...")
	conn, err := db.Open(db.TypeSQLite, "file:votes.db")

PostgreSQL uses github.com/lib/pq and SQLite uses modernc.org/sqlite.
All queries in the repository use $N placeholders, which both drivers accept.

# Schema Creation

CreateSchema initializes all required tables:

	if err := db.CreateSchema(conn); err != nil {
		log.Fatal(err)
	}

Safe to call multiple times - uses IF NOT EXISTS for all tables and indexes.

# Tables

  - poll: Poll metadata
  - poll_option: Options per poll, ordered by position
  - vote: Current choice per (session_id, poll_id)

# Relationships

	poll 1──* poll_option
	poll 1──* vote
	poll_option 1──* vote

The UNIQUE (session_id, poll_id) constraint on vote is what guarantees a
voter holds at most one current vote per poll under concurrent requests.
*/
package db
