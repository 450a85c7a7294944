package client

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dgarza/acceso/token"
	"github.com/dgarza/acceso/token/memory"
)

func newTestStore(t *testing.T) *token.Store {
	t.Helper()
	s, err := token.NewStore(
		[]token.Backend{memory.New()},
		token.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	)
	require.NoError(t, err)
	return s
}

func newTestClient(t *testing.T, handler http.Handler, opts ...Option) (*Client, *token.Store) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	tokens := newTestStore(t)
	opts = append([]Option{WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))}, opts...)
	c, err := New(srv.URL, tokens, opts...)
	require.NoError(t, err)
	return c, tokens
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// refreshHandler serves /auth/refresh, issuing newAccess for the expected
// refresh token and counting how many exchanges actually happen.
func refreshHandler(t *testing.T, wantRefresh, newAccess string, calls *atomic.Int32) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		var body struct {
			RefreshToken string `json:"refreshToken"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		if body.RefreshToken != wantRefresh {
			writeJSON(w, http.StatusUnauthorized, map[string]any{
				"success": false, "message": "Invalid refresh token",
			})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"success": true,
			"data":    map[string]string{"accessToken": newAccess},
		})
	}
}

func TestNewValidation(t *testing.T) {
	_, err := New("", newTestStore(t))
	assert.Error(t, err)
	_, err = New("http://localhost", nil)
	assert.Error(t, err)
}

func TestBearerAndRequestIDAttached(t *testing.T) {
	r := chi.NewRouter()
	r.Get("/echo", func(w http.ResponseWriter, req *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{
			"authorization": req.Header.Get("Authorization"),
			"requestId":     req.Header.Get("X-Request-Id"),
		})
	})
	c, tokens := newTestClient(t, r)
	require.NoError(t, tokens.SetAccessToken("acc-1"))

	var out struct {
		Authorization string `json:"authorization"`
		RequestID     string `json:"requestId"`
	}
	require.NoError(t, c.Get(context.Background(), "/echo", nil, &out))
	assert.Equal(t, "Bearer acc-1", out.Authorization)
	assert.NotEmpty(t, out.RequestID)
}

func TestNoBearerWithoutToken(t *testing.T) {
	r := chi.NewRouter()
	r.Get("/echo", func(w http.ResponseWriter, req *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{
			"authorization": req.Header.Get("Authorization"),
		})
	})
	c, _ := newTestClient(t, r)

	var out struct {
		Authorization string `json:"authorization"`
	}
	require.NoError(t, c.Get(context.Background(), "/echo", nil, &out))
	assert.Empty(t, out.Authorization)
}

func TestRefreshRetryIsTransparent(t *testing.T) {
	var refreshCalls atomic.Int32
	r := chi.NewRouter()
	r.Post("/auth/refresh", refreshHandler(t, "ref-1", "acc-new", &refreshCalls))
	r.Get("/auth/me", func(w http.ResponseWriter, req *http.Request) {
		if req.Header.Get("Authorization") != "Bearer acc-new" {
			writeJSON(w, http.StatusUnauthorized, map[string]any{"success": false})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "data": map[string]string{"email": "a@b.mx"}})
	})
	c, tokens := newTestClient(t, r)
	require.NoError(t, tokens.SetAccessToken("acc-stale"))
	require.NoError(t, tokens.SetRefreshToken("ref-1"))

	var out struct {
		Success bool `json:"success"`
	}
	require.NoError(t, c.Get(context.Background(), "/auth/me", nil, &out))
	assert.True(t, out.Success)
	assert.Equal(t, int32(1), refreshCalls.Load())

	// New access token is persisted, refresh token untouched.
	acc, ok := tokens.AccessToken()
	require.True(t, ok)
	assert.Equal(t, "acc-new", acc)
	ref, ok := tokens.RefreshToken()
	require.True(t, ok)
	assert.Equal(t, "ref-1", ref)
}

func TestSecondUnauthorizedSurfaces(t *testing.T) {
	var refreshCalls atomic.Int32
	expired := false
	r := chi.NewRouter()
	r.Post("/auth/refresh", refreshHandler(t, "ref-1", "acc-new", &refreshCalls))
	r.Get("/auth/me", func(w http.ResponseWriter, req *http.Request) {
		// Rejects even the freshly minted token.
		writeJSON(w, http.StatusUnauthorized, map[string]any{
			"success": false, "message": "Account disabled",
		})
	})
	c, tokens := newTestClient(t, r, WithSessionExpiredHandler(func() { expired = true }))
	require.NoError(t, tokens.SetAccessToken("acc-stale"))
	require.NoError(t, tokens.SetRefreshToken("ref-1"))

	err := c.Get(context.Background(), "/auth/me", nil, nil)
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusUnauthorized, apiErr.StatusCode)
	assert.Equal(t, "Account disabled", apiErr.Message)

	// Exactly one refresh attempt, then give up.
	assert.Equal(t, int32(1), refreshCalls.Load())
	assert.True(t, expired)
	_, ok := tokens.AccessToken()
	assert.False(t, ok)
	_, ok = tokens.RefreshToken()
	assert.False(t, ok)
}

func TestUnauthorizedWithoutRefreshToken(t *testing.T) {
	expired := false
	r := chi.NewRouter()
	r.Get("/auth/me", func(w http.ResponseWriter, req *http.Request) {
		writeJSON(w, http.StatusUnauthorized, map[string]any{"success": false})
	})
	c, tokens := newTestClient(t, r, WithSessionExpiredHandler(func() { expired = true }))
	require.NoError(t, tokens.SetAccessToken("acc-stale"))

	err := c.Get(context.Background(), "/auth/me", nil, nil)
	assert.ErrorIs(t, err, ErrSessionExpired)
	assert.True(t, expired)
	_, ok := tokens.AccessToken()
	assert.False(t, ok)
}

func TestRejectedRefreshExpiresSession(t *testing.T) {
	expired := false
	r := chi.NewRouter()
	r.Post("/auth/refresh", func(w http.ResponseWriter, req *http.Request) {
		writeJSON(w, http.StatusUnauthorized, map[string]any{
			"success": false, "message": "Refresh token expired",
		})
	})
	r.Get("/auth/me", func(w http.ResponseWriter, req *http.Request) {
		writeJSON(w, http.StatusUnauthorized, map[string]any{"success": false})
	})
	c, tokens := newTestClient(t, r, WithSessionExpiredHandler(func() { expired = true }))
	require.NoError(t, tokens.SetAccessToken("acc-stale"))
	require.NoError(t, tokens.SetRefreshToken("ref-dead"))

	err := c.Get(context.Background(), "/auth/me", nil, nil)
	assert.ErrorIs(t, err, ErrSessionExpired)
	assert.True(t, expired)
	_, ok := tokens.RefreshToken()
	assert.False(t, ok)
}

func TestConcurrentRefreshesCoalesce(t *testing.T) {
	var refreshCalls atomic.Int32
	r := chi.NewRouter()
	r.Post("/auth/refresh", func(w http.ResponseWriter, req *http.Request) {
		refreshCalls.Add(1)
		// Hold the exchange open so every in-flight 401 joins it.
		time.Sleep(150 * time.Millisecond)
		writeJSON(w, http.StatusOK, map[string]any{
			"success": true,
			"data":    map[string]string{"accessToken": "acc-new"},
		})
	})
	r.Get("/auth/me", func(w http.ResponseWriter, req *http.Request) {
		if req.Header.Get("Authorization") != "Bearer acc-new" {
			writeJSON(w, http.StatusUnauthorized, map[string]any{"success": false})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"success": true})
	})
	c, tokens := newTestClient(t, r)
	require.NoError(t, tokens.SetAccessToken("acc-stale"))
	require.NoError(t, tokens.SetRefreshToken("ref-1"))

	const n = 5
	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = c.Get(context.Background(), "/auth/me", nil, nil)
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		assert.NoError(t, err, "request %d", i)
	}
	assert.Equal(t, int32(1), refreshCalls.Load())
}

func TestRefreshRotation(t *testing.T) {
	r := chi.NewRouter()
	r.Post("/auth/refresh", func(w http.ResponseWriter, req *http.Request) {
		// Top-level shape, with a rotated refresh token.
		writeJSON(w, http.StatusOK, map[string]string{
			"accessToken":  "acc-new",
			"refreshToken": "ref-rotated",
		})
	})
	c, tokens := newTestClient(t, r)
	require.NoError(t, tokens.SetRefreshToken("ref-1"))

	require.NoError(t, c.Refresh(context.Background()))

	acc, ok := tokens.AccessToken()
	require.True(t, ok)
	assert.Equal(t, "acc-new", acc)
	ref, ok := tokens.RefreshToken()
	require.True(t, ok)
	assert.Equal(t, "ref-rotated", ref)
}

func TestExplicitRefreshWithoutToken(t *testing.T) {
	c, _ := newTestClient(t, chi.NewRouter())
	err := c.Refresh(context.Background())
	assert.ErrorIs(t, err, ErrNoRefreshToken)
}

func TestErrorEnvelope(t *testing.T) {
	r := chi.NewRouter()
	r.Post("/auth/login", func(w http.ResponseWriter, req *http.Request) {
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"success": false, "message": "Invalid credentials",
		})
	})
	c, _ := newTestClient(t, r)

	err := c.Post(context.Background(), "/auth/login", map[string]string{"email": "a@b.mx"}, nil)
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadRequest, apiErr.StatusCode)
	assert.Equal(t, "Invalid credentials", apiErr.Message)
	assert.Equal(t, "Invalid credentials", Message(err))
}

func TestNilBodySendsEmptyObject(t *testing.T) {
	r := chi.NewRouter()
	r.Post("/2fa/resend", func(w http.ResponseWriter, req *http.Request) {
		var body map[string]any
		require.NoError(t, json.NewDecoder(req.Body).Decode(&body))
		writeJSON(w, http.StatusOK, map[string]any{"success": true})
	})
	c, _ := newTestClient(t, r)
	require.NoError(t, c.Post(context.Background(), "/2fa/resend", nil, nil))
}
