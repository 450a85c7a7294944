package memory

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dgarza/acceso/token"
)

func TestRoundTrip(t *testing.T) {
	b := New()

	require.NoError(t, b.Set("accessToken", "tok-1", 0))
	got, err := b.Get("accessToken")
	require.NoError(t, err)
	assert.Equal(t, "tok-1", got)

	// Overwrite.
	require.NoError(t, b.Set("accessToken", "tok-2", 0))
	got, err = b.Get("accessToken")
	require.NoError(t, err)
	assert.Equal(t, "tok-2", got)
}

func TestMissing(t *testing.T) {
	b := New()
	_, err := b.Get("nope")
	assert.ErrorIs(t, err, token.ErrNotFound)
}

func TestDelete(t *testing.T) {
	b := New()
	require.NoError(t, b.Set("k", "v", 0))
	require.NoError(t, b.Delete("k"))
	_, err := b.Get("k")
	assert.ErrorIs(t, err, token.ErrNotFound)

	// Deleting again is fine.
	require.NoError(t, b.Delete("k"))
}

func TestTTLExpiry(t *testing.T) {
	b := New()
	now := time.Now()
	b.now = func() time.Time { return now }

	require.NoError(t, b.Set("k", "v", time.Hour))

	got, err := b.Get("k")
	require.NoError(t, err)
	assert.Equal(t, "v", got)

	now = now.Add(2 * time.Hour)
	_, err = b.Get("k")
	assert.ErrorIs(t, err, token.ErrNotFound)
}

func TestZeroTTLNeverExpires(t *testing.T) {
	b := New()
	now := time.Now()
	b.now = func() time.Time { return now }

	require.NoError(t, b.Set("k", "v", 0))
	now = now.Add(1000 * time.Hour)

	got, err := b.Get("k")
	require.NoError(t, err)
	assert.Equal(t, "v", got)
}
