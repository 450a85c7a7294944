package session

import (
	"context"

	"github.com/dgarza/acceso/auth"
	"github.com/dgarza/acceso/client"
)

// Fallback messages used when the server did not provide one.
const (
	msgAuthFailed     = "Authentication failed"
	msgLoginFailed    = "Login failed"
	msgRegisterFailed = "Registration failed"
)

// Initialize resolves the stored tokens into a session. Called once at
// startup. With no stored access token it settles unauthenticated without
// touching the network. It never clears tokens itself; an invalid token is
// the gateway's problem.
func (c *Controller) Initialize(ctx context.Context) error {
	release, err := c.begin()
	if err != nil {
		return err
	}
	defer release()

	if _, ok := c.svc.Client().Tokens().AccessToken(); !ok {
		c.transition(func() {
			c.state = StateUnauthenticated
			c.errMsg = ""
		})
		return nil
	}

	c.transition(func() {
		c.state = StateAuthenticating
		c.errMsg = ""
	})

	user, err := c.svc.CurrentUser(ctx)
	if err != nil {
		c.logger.Warn("session: initialize failed", "error", err)
		c.transition(func() {
			c.state = StateUnauthenticated
			c.errMsg = msgAuthFailed
		})
		return err
	}

	c.transition(func() {
		c.state = StateAuthenticated
		c.user = normalizeUser(user)
		c.errMsg = ""
	})
	return nil
}

// Login authenticates with credentials. A response flagging 2FA leaves the
// session unauthenticated with no error and is returned raw so the caller
// can start a two-factor flow. Failures are reflected into state and
// returned.
func (c *Controller) Login(ctx context.Context, creds auth.Credentials) (*auth.LoginResponse, error) {
	release, err := c.begin()
	if err != nil {
		return nil, err
	}
	defer release()

	c.transition(func() {
		c.state = StateAuthenticating
		c.errMsg = ""
	})

	resp, err := c.svc.Login(ctx, creds)
	if err != nil {
		c.transition(func() {
			c.state = StateUnauthenticated
			c.errMsg = serverMessage(err, msgLoginFailed)
		})
		return nil, err
	}

	p := resp.Flatten()
	if p.User != nil && !p.TwoFactorRequired && !resp.Failed() {
		c.transition(func() {
			c.state = StateAuthenticated
			c.user = normalizeUser(p.User)
			c.errMsg = ""
		})
		return resp, nil
	}

	// 2FA required, or a soft failure: no session yet, no error banner.
	c.transition(func() {
		c.state = StateUnauthenticated
		c.errMsg = ""
	})
	return resp, nil
}

// Register creates an account. Registration never authenticates the
// session; the account needs email verification first.
func (c *Controller) Register(ctx context.Context, reg auth.Registration) (*auth.UserResponse, error) {
	release, err := c.begin()
	if err != nil {
		return nil, err
	}
	defer release()

	c.transition(func() {
		c.state = StateAuthenticating
		c.errMsg = ""
	})

	resp, err := c.svc.Register(ctx, reg)
	if err != nil {
		c.transition(func() {
			c.state = StateUnauthenticated
			c.errMsg = serverMessage(err, msgRegisterFailed)
		})
		return nil, err
	}

	c.transition(func() {
		c.state = StateUnauthenticated
		c.errMsg = ""
	})
	return resp, nil
}

// Logout notifies the server best-effort, clears tokens, and settles
// unauthenticated. It never fails and is safe to call in any state.
func (c *Controller) Logout(ctx context.Context) {
	if err := c.svc.Logout(ctx); err != nil {
		c.logger.Warn("session: server logout failed, tokens cleared anyway", "error", err)
	}
	c.transition(func() {
		c.state = StateUnauthenticated
		c.errMsg = ""
	})
}

// Refresh exchanges the refresh token for a new access token. On failure
// the session cannot be trusted: tokens are cleared and the state machine
// settles unauthenticated.
func (c *Controller) Refresh(ctx context.Context) (string, error) {
	if err := c.svc.Client().Refresh(ctx); err != nil {
		c.transition(func() {
			c.state = StateUnauthenticated
			c.errMsg = ""
		})
		return "", err
	}
	tok, _ := c.svc.Client().Tokens().AccessToken()
	return tok, nil
}

// UpdateUser replaces the profile after a server-confirmed mutation. It
// does not touch the network and does not change the coarse state.
func (c *Controller) UpdateUser(user *auth.User) {
	c.transition(func() {
		c.user = normalizeUser(user)
	})
}

// SetUser installs a user and forces the authenticated state. This is how
// a completed 2FA challenge becomes a session.
func (c *Controller) SetUser(user *auth.User) {
	c.transition(func() {
		c.state = StateAuthenticated
		c.user = normalizeUser(user)
		c.errMsg = ""
	})
}

// serverMessage prefers the server's envelope message, falling back to a
// generic one.
func serverMessage(err error, fallback string) string {
	if msg := client.Message(err); msg != "" {
		return msg
	}
	return fallback
}
