// Package memory provides an in-process token.Backend that keeps token
// bytes inside memguard enclaves, so plaintext tokens are not left sitting
// on the regular heap between uses.
package memory

import (
	"sync"
	"time"

	"github.com/awnumar/memguard"

	"github.com/dgarza/acceso/token"
)

// Backend is a thread-safe in-memory implementation of token.Backend.
type Backend struct {
	mu      sync.RWMutex
	entries map[string]*entry
	now     func() time.Time
}

type entry struct {
	sealed    *memguard.Enclave
	expiresAt time.Time // zero means no expiry
}

var _ token.Backend = (*Backend)(nil)

// New creates an empty in-memory backend.
func New() *Backend {
	return &Backend{
		entries: make(map[string]*entry),
		now:     time.Now,
	}
}

// Name implements token.Backend.
func (b *Backend) Name() string { return "memory" }

// Set implements token.Backend. The value is sealed into an enclave; the
// caller's copy is left untouched.
func (b *Backend) Set(key, value string, ttl time.Duration) error {
	e := &entry{sealed: memguard.NewEnclave([]byte(value))}
	if ttl > 0 {
		e.expiresAt = b.now().Add(ttl)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.entries[key] = e
	return nil
}

// Get implements token.Backend. Expired entries read as absent.
func (b *Backend) Get(key string) (string, error) {
	b.mu.RLock()
	e, ok := b.entries[key]
	b.mu.RUnlock()
	if !ok {
		return "", token.ErrNotFound
	}
	if !e.expiresAt.IsZero() && b.now().After(e.expiresAt) {
		b.mu.Lock()
		delete(b.entries, key)
		b.mu.Unlock()
		return "", token.ErrNotFound
	}
	buf, err := e.sealed.Open()
	if err != nil {
		return "", err
	}
	// string() copies out of the locked buffer before it is wiped.
	v := string(buf.Bytes())
	buf.Destroy()
	return v, nil
}

// Delete implements token.Backend.
func (b *Backend) Delete(key string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.entries, key)
	return nil
}
