// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"strings"

	"github.com/google/uuid"
	"github.com/zeebo/blake3"
)

var (
	ErrInvalidSignature = errors.New("invalid session signature")
	ErrInvalidToken     = errors.New("invalid token format")
)

// SessionMaxAge is the validity window of a session cookie, in seconds (30 days)
const SessionMaxAge = 60 * 60 * 24 * 30

// NewSessionToken issues an opaque voter session token.
// Tokens carry no identity; they only deduplicate votes.
func NewSessionToken() (string, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

// SignSession appends an HMAC signature to the token so the cookie
// value cannot be edited client side
func SignSession(token, secret string) string {
	return token + "." + sign(token, secret)
}

// VerifySession checks the signature of a signed cookie value and
// returns the bare session token
func VerifySession(signed, secret string) (string, error) {
	i := strings.LastIndexByte(signed, '.')
	if i <= 0 || i == len(signed)-1 {
		return "", ErrInvalidToken
	}

	token, sig := signed[:i], signed[i+1:]
	expected := sign(token, secret)
	if !hmac.Equal([]byte(sig), []byte(expected)) {
		return "", ErrInvalidSignature
	}
	return token, nil
}

func sign(token, secret string) string {
	h := hmac.New(sha256.New, []byte(secret))
	h.Write([]byte(token))
	sum := h.Sum(nil)
	// URL-safe base64 without padding keeps the cookie value short
	return strings.TrimRight(base64.URLEncoding.EncodeToString(sum), "=")
}

// Fingerprint returns a short, non-reversible digest of a session token
// for log lines. Raw tokens are bearer credentials and are never logged.
func Fingerprint(token string) string {
	if token == "" {
		return ""
	}
	sum := blake3.Sum256([]byte(token))
	return hex.EncodeToString(sum[:6])
}
