// Package token stores the access/refresh token pair across an ordered
// chain of storage backends.
package token

import (
	"errors"
	"time"
)

// Well-known entry names. They match the cookie / local-storage names used
// by the browser clients of the same API, so a token written by one client
// is readable by another sharing the backend.
const (
	KeyAccessToken  = "accessToken"
	KeyRefreshToken = "refreshToken"
)

// Lifetimes applied to primary-store writes. Fallback backends are free to
// ignore them; the server remains the authority on actual token validity.
const (
	AccessTokenTTL  = 24 * time.Hour
	RefreshTokenTTL = 7 * 24 * time.Hour
)

// ErrNotFound is returned by a Backend when the requested entry is absent.
var ErrNotFound = errors.New("token entry not found")

// Backend is a single storage channel for token entries.
// Implementations must be safe for concurrent use.
type Backend interface {
	// Name identifies the backend in logs.
	Name() string
	// Set stores value under key. A ttl of zero means no expiry. Backends
	// without expiry semantics may ignore ttl entirely.
	Set(key, value string, ttl time.Duration) error
	// Get returns the value stored under key, or ErrNotFound.
	Get(key string) (string, error)
	// Delete removes key. Deleting an absent key is not an error.
	Delete(key string) error
}
