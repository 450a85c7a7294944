package bolt

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dgarza/acceso/token"
)

func newTestBackend(t *testing.T) (*Backend, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "tokens.db")
	b, err := NewFromFile(path, nil)
	require.NoError(t, err)
	t.Cleanup(func() { b.Close() })
	return b, path
}

func TestRoundTrip(t *testing.T) {
	b, _ := newTestBackend(t)

	require.NoError(t, b.Set("accessToken", "tok-1", 0))
	got, err := b.Get("accessToken")
	require.NoError(t, err)
	assert.Equal(t, "tok-1", got)
}

func TestMissing(t *testing.T) {
	b, _ := newTestBackend(t)
	_, err := b.Get("nope")
	assert.ErrorIs(t, err, token.ErrNotFound)
}

func TestDeleteIdempotent(t *testing.T) {
	b, _ := newTestBackend(t)
	require.NoError(t, b.Set("k", "v", 0))
	require.NoError(t, b.Delete("k"))
	require.NoError(t, b.Delete("k"))
	_, err := b.Get("k")
	assert.ErrorIs(t, err, token.ErrNotFound)
}

func TestTTLExpiry(t *testing.T) {
	b, _ := newTestBackend(t)
	now := time.Now()
	b.now = func() time.Time { return now }

	require.NoError(t, b.Set("k", "v", time.Minute))
	got, err := b.Get("k")
	require.NoError(t, err)
	assert.Equal(t, "v", got)

	now = now.Add(2 * time.Minute)
	_, err = b.Get("k")
	assert.ErrorIs(t, err, token.ErrNotFound)
}

func TestPersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tokens.db")

	b1, err := NewFromFile(path, nil)
	require.NoError(t, err)
	require.NoError(t, b1.Set("refreshToken", "ref-1", 0))
	require.NoError(t, b1.Close())

	b2, err := NewFromFile(path, nil)
	require.NoError(t, err)
	defer b2.Close()

	got, err := b2.Get("refreshToken")
	require.NoError(t, err)
	assert.Equal(t, "ref-1", got)
}
