// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Package auth issues and signs anonymous voter sessions.

# Voter Sessions

A session token is an opaque random UUID. It is the only thing that
identifies a voter, and only for deduplication: a shared or copied token
is indistinguishable from the original.

	token, err := auth.NewSessionToken()

# Cookie Signing

Cookies carry the token plus an HMAC-SHA256 signature:

	value := auth.SignSession(token, cfg.SessionSecret)
	token, err := auth.VerifySession(value, cfg.SessionSecret)

VerifySession returns ErrInvalidToken for malformed values and
ErrInvalidSignature for tampered ones. Callers treat both as "no session".

# Logging

Fingerprint produces a 12 hex character blake3 digest so log lines can
correlate requests from the same voter without exposing the token.
*/
package auth
