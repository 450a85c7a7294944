package token

import (
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// Store persists the token pair through an ordered list of backends.
// Writes go to every backend so that losing any single channel (a blocked
// cookie jar, a deleted cache file) does not lose the session. Reads take
// the first backend that has a value. The first backend is considered the
// primary and is the only one whose TTL semantics are relied upon.
type Store struct {
	backends []Backend
	logger   *slog.Logger
}

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithLogger sets the logger used to report swallowed backend failures.
func WithLogger(logger *slog.Logger) StoreOption {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewStore creates a Store over the given backends, ordered primary first.
func NewStore(backends []Backend, opts ...StoreOption) (*Store, error) {
	if len(backends) == 0 {
		return nil, errors.New("token: at least one backend is required")
	}
	s := &Store{
		backends: backends,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// SetAccessToken persists the access token to every backend.
func (s *Store) SetAccessToken(tok string) error {
	return s.set(KeyAccessToken, tok, AccessTokenTTL)
}

// SetRefreshToken persists the refresh token to every backend.
func (s *Store) SetRefreshToken(tok string) error {
	return s.set(KeyRefreshToken, tok, RefreshTokenTTL)
}

// AccessToken returns the stored access token. ok is false when no backend
// has a value; that is an expected state, not an error.
func (s *Store) AccessToken() (tok string, ok bool) {
	return s.get(KeyAccessToken)
}

// RefreshToken returns the stored refresh token.
func (s *Store) RefreshToken() (tok string, ok bool) {
	return s.get(KeyRefreshToken)
}

// Clear removes both tokens from every backend. It is idempotent and never
// fails: per-backend delete errors are logged and dropped, since a clear
// that cannot reach one channel must still clear the others.
func (s *Store) Clear() {
	for _, b := range s.backends {
		for _, key := range []string{KeyAccessToken, KeyRefreshToken} {
			if err := b.Delete(key); err != nil {
				s.logger.Warn("token: clear failed on backend",
					"backend", b.Name(), "key", key, "error", err)
			}
		}
	}
}

func (s *Store) set(key, value string, ttl time.Duration) error {
	var firstErr error
	stored := false
	for _, b := range s.backends {
		if err := b.Set(key, value, ttl); err != nil {
			// Primary-store write failures are swallowed as long as some
			// backend accepted the value.
			s.logger.Warn("token: write failed on backend",
				"backend", b.Name(), "key", key, "error", err)
			if firstErr == nil {
				firstErr = fmt.Errorf("backend %s: %w", b.Name(), err)
			}
			continue
		}
		stored = true
	}
	if !stored {
		return fmt.Errorf("token: all backends rejected %s: %w", key, firstErr)
	}
	return nil
}

func (s *Store) get(key string) (string, bool) {
	for _, b := range s.backends {
		v, err := b.Get(key)
		if err == nil && v != "" {
			return v, true
		}
		if err != nil && !errors.Is(err, ErrNotFound) {
			s.logger.Warn("token: read failed on backend",
				"backend", b.Name(), "key", key, "error", err)
		}
	}
	return "", false
}
