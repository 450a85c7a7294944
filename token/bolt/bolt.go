// Package bolt provides a BBolt-backed token.Backend for token persistence
// across process restarts.
package bolt

import (
	"encoding/json"
	"fmt"
	"time"

	"go.etcd.io/bbolt"

	"github.com/dgarza/acceso/token"
)

var bucketName = []byte("tokens")

// Backend implements token.Backend backed by a BBolt database.
type Backend struct {
	db  *bbolt.DB
	now func() time.Time
}

var _ token.Backend = (*Backend)(nil)

type record struct {
	Value     string    `json:"value"`
	ExpiresAt time.Time `json:"expires_at,omitempty"`
}

// New returns a backend over an already-open BBolt database.
func New(db *bbolt.DB) *Backend {
	return &Backend{db: db, now: time.Now}
}

// NewFromFile opens a BBolt database at the given path and returns a
// backend over it.
func NewFromFile(path string, options *bbolt.Options) (*Backend, error) {
	db, err := bbolt.Open(path, 0600, options)
	if err != nil {
		return nil, fmt.Errorf("opening bbolt db: %w", err)
	}
	return New(db), nil
}

// Close closes the underlying BBolt database.
func (b *Backend) Close() error {
	return b.db.Close()
}

// Name implements token.Backend.
func (b *Backend) Name() string { return "bolt" }

// Set implements token.Backend. TTL is stored as an absolute deadline and
// enforced on read.
func (b *Backend) Set(key, value string, ttl time.Duration) error {
	rec := record{Value: value}
	if ttl > 0 {
		rec.ExpiresAt = b.now().Add(ttl)
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return b.db.Update(func(tx *bbolt.Tx) error {
		bkt, err := tx.CreateBucketIfNotExists(bucketName)
		if err != nil {
			return err
		}
		return bkt.Put([]byte(key), data)
	})
}

// Get implements token.Backend. Expired entries read as absent and are
// removed lazily on the next write transaction.
func (b *Backend) Get(key string) (string, error) {
	var rec record
	err := b.db.View(func(tx *bbolt.Tx) error {
		bkt := tx.Bucket(bucketName)
		if bkt == nil {
			return token.ErrNotFound
		}
		data := bkt.Get([]byte(key))
		if data == nil {
			return token.ErrNotFound
		}
		return json.Unmarshal(data, &rec)
	})
	if err != nil {
		return "", err
	}
	if !rec.ExpiresAt.IsZero() && b.now().After(rec.ExpiresAt) {
		_ = b.Delete(key)
		return "", token.ErrNotFound
	}
	return rec.Value, nil
}

// Delete implements token.Backend.
func (b *Backend) Delete(key string) error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		bkt := tx.Bucket(bucketName)
		if bkt == nil {
			return nil
		}
		return bkt.Delete([]byte(key))
	})
}
