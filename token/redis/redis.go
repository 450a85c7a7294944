// Package redis provides a Redis-backed token.Backend, for API consumers
// that run as multiple replicas and want to share one refreshed session
// instead of racing each other through the refresh endpoint.
package redis

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/dgarza/acceso/token"
)

const defaultKeyPrefix = "acceso:token:"

// Backend implements token.Backend over a Redis client.
type Backend struct {
	client  *redis.Client
	prefix  string
	timeout time.Duration
}

var _ token.Backend = (*Backend)(nil)

// Option configures a Backend.
type Option func(*Backend)

// WithKeyPrefix overrides the key prefix used for token entries.
func WithKeyPrefix(prefix string) Option {
	return func(b *Backend) { b.prefix = prefix }
}

// New returns a backend over the given Redis client.
func New(client *redis.Client, opts ...Option) *Backend {
	b := &Backend{
		client:  client,
		prefix:  defaultKeyPrefix,
		timeout: 3 * time.Second,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Name implements token.Backend.
func (b *Backend) Name() string { return "redis" }

// Set implements token.Backend. TTL maps to the key expiry.
func (b *Backend) Set(key, value string, ttl time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), b.timeout)
	defer cancel()
	return b.client.Set(ctx, b.prefix+key, value, ttl).Err()
}

// Get implements token.Backend.
func (b *Backend) Get(key string) (string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), b.timeout)
	defer cancel()
	v, err := b.client.Get(ctx, b.prefix+key).Result()
	if errors.Is(err, redis.Nil) {
		return "", token.ErrNotFound
	}
	if err != nil {
		return "", err
	}
	return v, nil
}

// Delete implements token.Backend.
func (b *Backend) Delete(key string) error {
	ctx, cancel := context.WithTimeout(context.Background(), b.timeout)
	defer cancel()
	return b.client.Del(ctx, b.prefix+key).Err()
}
