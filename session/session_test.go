package session

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dgarza/acceso/auth"
	"github.com/dgarza/acceso/client"
	"github.com/dgarza/acceso/token"
	"github.com/dgarza/acceso/token/memory"
)

func newTestController(t *testing.T, handler http.Handler) (*Controller, *token.Store) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	tokens, err := token.NewStore(
		[]token.Backend{memory.New()},
		token.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	)
	require.NoError(t, err)

	api, err := client.New(srv.URL, tokens,
		client.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	require.NoError(t, err)
	svc := auth.NewService(api)
	return NewController(svc, WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))), tokens
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func TestStartsUninitializedAndLoading(t *testing.T) {
	c, _ := newTestController(t, chi.NewRouter())

	snap := c.Snapshot()
	assert.Equal(t, StateUninitialized, snap.State)
	assert.True(t, snap.IsLoading)
	assert.False(t, snap.IsAuthenticated)
}

func TestInitializeWithoutTokenSettlesQuietly(t *testing.T) {
	hits := 0
	r := chi.NewRouter()
	r.Get("/auth/me", func(w http.ResponseWriter, req *http.Request) {
		hits++
		writeJSON(w, http.StatusOK, map[string]any{"success": true})
	})
	c, _ := newTestController(t, r)

	require.NoError(t, c.Initialize(context.Background()))

	snap := c.Snapshot()
	assert.Equal(t, StateUnauthenticated, snap.State)
	assert.False(t, snap.IsLoading)
	assert.Empty(t, snap.Err)
	// No stored token means no network round trip.
	assert.Zero(t, hits)
}

func TestInitializeResolvesStoredToken(t *testing.T) {
	r := chi.NewRouter()
	r.Get("/auth/me", func(w http.ResponseWriter, req *http.Request) {
		assert.Equal(t, "Bearer acc-1", req.Header.Get("Authorization"))
		writeJSON(w, http.StatusOK, map[string]any{
			"success": true,
			"data": map[string]any{
				"id": "u1", "email": "a@b.mx", "emailEnabled": true,
			},
		})
	})
	c, tokens := newTestController(t, r)
	require.NoError(t, tokens.SetAccessToken("acc-1"))

	require.NoError(t, c.Initialize(context.Background()))

	snap := c.Snapshot()
	assert.Equal(t, StateAuthenticated, snap.State)
	assert.True(t, snap.IsAuthenticated)
	require.NotNil(t, snap.User)
	assert.Equal(t, "u1", snap.User.ID)
	// Aggregate flag is re-derived from the per-method flags.
	assert.True(t, snap.User.TwoFactorEnabled)
}

func TestInitializeFailureReportsBothWays(t *testing.T) {
	r := chi.NewRouter()
	r.Get("/auth/me", func(w http.ResponseWriter, req *http.Request) {
		writeJSON(w, http.StatusInternalServerError, map[string]any{"success": false})
	})
	c, tokens := newTestController(t, r)
	require.NoError(t, tokens.SetAccessToken("acc-1"))

	err := c.Initialize(context.Background())
	assert.Error(t, err)

	snap := c.Snapshot()
	assert.Equal(t, StateUnauthenticated, snap.State)
	assert.Equal(t, "Authentication failed", snap.Err)
}

func TestLoginSuccess(t *testing.T) {
	r := chi.NewRouter()
	r.Post("/auth/login", func(w http.ResponseWriter, req *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"success": true,
			"data": map[string]any{
				"accessToken":  "acc-1",
				"refreshToken": "ref-1",
				"user":         map[string]any{"id": "u1", "googleAuthEnabled": true},
			},
		})
	})
	c, tokens := newTestController(t, r)

	var states []State
	c.OnChange(func(s Snapshot) { states = append(states, s.State) })

	resp, err := c.Login(context.Background(), auth.Credentials{Email: "a@b.mx", Password: "x"})
	require.NoError(t, err)
	require.NotNil(t, resp)

	snap := c.Snapshot()
	assert.Equal(t, StateAuthenticated, snap.State)
	assert.True(t, snap.User.TwoFactorEnabled)
	assert.Equal(t, []State{StateAuthenticating, StateAuthenticated}, states)

	_, ok := tokens.AccessToken()
	assert.True(t, ok)
}

func TestLoginRejectedReportsBothWays(t *testing.T) {
	r := chi.NewRouter()
	r.Post("/auth/login", func(w http.ResponseWriter, req *http.Request) {
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"success": false, "message": "Invalid credentials",
		})
	})
	c, _ := newTestController(t, r)

	_, err := c.Login(context.Background(), auth.Credentials{Email: "a@b.mx", Password: "bad"})
	assert.Error(t, err)

	snap := c.Snapshot()
	assert.Equal(t, StateUnauthenticated, snap.State)
	assert.Equal(t, "Invalid credentials", snap.Err)
}

func TestLoginTwoFactorRequiredLeavesSessionUnauthenticated(t *testing.T) {
	r := chi.NewRouter()
	r.Post("/auth/login", func(w http.ResponseWriter, req *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"success": true,
			"data": map[string]any{
				"twoFactorRequired": true,
				"twoFactorType":     "EMAIL",
			},
		})
	})
	c, _ := newTestController(t, r)

	resp, err := c.Login(context.Background(), auth.Credentials{Email: "a@b.mx", Password: "x"})
	require.NoError(t, err)
	assert.True(t, resp.Flatten().TwoFactorRequired)

	// A pending challenge is not a session and not an error.
	snap := c.Snapshot()
	assert.Equal(t, StateUnauthenticated, snap.State)
	assert.False(t, snap.IsAuthenticated)
	assert.Empty(t, snap.Err)
}

func TestRegisterNeverAuthenticates(t *testing.T) {
	r := chi.NewRouter()
	r.Post("/auth/register", func(w http.ResponseWriter, req *http.Request) {
		writeJSON(w, http.StatusCreated, map[string]any{
			"success": true,
			"message": "Check your email",
			"data":    map[string]any{"id": "u9"},
		})
	})
	c, _ := newTestController(t, r)

	resp, err := c.Register(context.Background(), auth.Registration{
		FirstName: "Ana", LastName: "G", Email: "a@b.mx", Password: "x",
	})
	require.NoError(t, err)
	assert.Equal(t, "u9", resp.Data.ID)

	snap := c.Snapshot()
	assert.Equal(t, StateUnauthenticated, snap.State)
	assert.False(t, snap.IsAuthenticated)
}

func TestLogoutAlwaysSettles(t *testing.T) {
	r := chi.NewRouter()
	r.Post("/auth/logout", func(w http.ResponseWriter, req *http.Request) {
		writeJSON(w, http.StatusInternalServerError, map[string]any{"success": false})
	})
	c, tokens := newTestController(t, r)
	require.NoError(t, tokens.SetAccessToken("acc"))
	require.NoError(t, tokens.SetRefreshToken("ref"))
	c.SetUser(&auth.User{ID: "u1"})

	c.Logout(context.Background())

	snap := c.Snapshot()
	assert.Equal(t, StateUnauthenticated, snap.State)
	assert.Nil(t, snap.User)
	_, ok := tokens.AccessToken()
	assert.False(t, ok)

	// Logging out again is a no-op.
	c.Logout(context.Background())
	assert.Equal(t, StateUnauthenticated, c.Snapshot().State)
}

func TestRefreshFailureSettlesUnauthenticated(t *testing.T) {
	c, tokens := newTestController(t, chi.NewRouter())
	require.NoError(t, tokens.SetAccessToken("acc"))
	c.SetUser(&auth.User{ID: "u1"})

	// No refresh token stored: the exchange cannot even start.
	_, err := c.Refresh(context.Background())
	assert.Error(t, err)
	assert.Equal(t, StateUnauthenticated, c.Snapshot().State)
}

func TestRefreshReturnsNewToken(t *testing.T) {
	r := chi.NewRouter()
	r.Post("/auth/refresh", func(w http.ResponseWriter, req *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"success": true,
			"data":    map[string]string{"accessToken": "acc-new"},
		})
	})
	c, tokens := newTestController(t, r)
	require.NoError(t, tokens.SetRefreshToken("ref-1"))

	tok, err := c.Refresh(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "acc-new", tok)
}

func TestInFlightGuard(t *testing.T) {
	started := make(chan struct{})
	proceed := make(chan struct{})
	r := chi.NewRouter()
	r.Post("/auth/login", func(w http.ResponseWriter, req *http.Request) {
		close(started)
		<-proceed
		writeJSON(w, http.StatusOK, map[string]any{
			"success": true,
			"data":    map[string]any{"user": map[string]any{"id": "u1"}},
		})
	})
	c, _ := newTestController(t, r)

	done := make(chan error, 1)
	go func() {
		_, err := c.Login(context.Background(), auth.Credentials{Email: "a@b.mx", Password: "x"})
		done <- err
	}()

	<-started
	_, err := c.Login(context.Background(), auth.Credentials{Email: "a@b.mx", Password: "x"})
	assert.ErrorIs(t, err, ErrOperationInFlight)
	err = c.Initialize(context.Background())
	assert.ErrorIs(t, err, ErrOperationInFlight)

	close(proceed)
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("login never finished")
	}
}

func TestUpdateUserKeepsInvariant(t *testing.T) {
	c, _ := newTestController(t, chi.NewRouter())
	c.SetUser(&auth.User{ID: "u1", SMSEnabled: true})
	require.True(t, c.Snapshot().User.TwoFactorEnabled)

	// Server reported all methods disabled; aggregate must follow.
	c.UpdateUser(&auth.User{ID: "u1", TwoFactorEnabled: true})

	snap := c.Snapshot()
	assert.Equal(t, StateAuthenticated, snap.State)
	assert.False(t, snap.User.TwoFactorEnabled)
}

func TestUpdateUserNilDropsSession(t *testing.T) {
	c, _ := newTestController(t, chi.NewRouter())
	c.SetUser(&auth.User{ID: "u1"})

	c.UpdateUser(nil)

	snap := c.Snapshot()
	assert.Equal(t, StateUnauthenticated, snap.State)
	assert.False(t, snap.IsAuthenticated)
}

func TestStateStrings(t *testing.T) {
	assert.Equal(t, "uninitialized", StateUninitialized.String())
	assert.Equal(t, "authenticating", StateAuthenticating.String())
	assert.Equal(t, "authenticated", StateAuthenticated.String())
	assert.Equal(t, "unauthenticated", StateUnauthenticated.String())
}
