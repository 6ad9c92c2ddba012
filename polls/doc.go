// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

// Package polls looks up poll definitions from the poll and poll_option tables.
// Creating and editing polls is handled elsewhere.
package polls
