package auth

import (
	"context"
	"fmt"
	"net/url"

	"github.com/dgarza/acceso/client"
)

// Service implements the API operations over the gateway client. It owns
// no session state; see the session package for that.
type Service struct {
	api *client.Client
}

// NewService creates a Service over the given gateway.
func NewService(api *client.Client) *Service {
	return &Service{api: api}
}

// Client returns the underlying gateway.
func (s *Service) Client() *client.Client { return s.api }

// Login posts credentials. When the response carries a token pair (in
// either shape) the pair is persisted; a 2FA-required response carries no
// tokens and establishes nothing. The raw response is returned so callers
// can inspect the 2FA flags.
func (s *Service) Login(ctx context.Context, creds Credentials) (*LoginResponse, error) {
	var resp LoginResponse
	if err := s.api.Post(ctx, "/auth/login", creds, &resp); err != nil {
		return nil, err
	}
	s.captureTokens(&resp)
	return &resp, nil
}

// Register creates a new account. The account requires separate email
// verification; registration never yields tokens.
func (s *Service) Register(ctx context.Context, reg Registration) (*UserResponse, error) {
	var resp UserResponse
	if err := s.api.Post(ctx, "/auth/register", reg, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Logout notifies the server, then unconditionally clears stored tokens.
// The server call is best-effort; its failure is returned for logging but
// tokens are gone either way.
func (s *Service) Logout(ctx context.Context) error {
	err := s.api.Post(ctx, "/auth/logout", nil, nil)
	s.api.Tokens().Clear()
	return err
}

// CurrentUser fetches the profile for the stored access token.
func (s *Service) CurrentUser(ctx context.Context) (*User, error) {
	var resp UserResponse
	if err := s.api.Get(ctx, "/auth/me", nil, &resp); err != nil {
		return nil, err
	}
	if resp.Data == nil {
		return nil, fmt.Errorf("auth: current-user response carried no user")
	}
	return resp.Data, nil
}

// RequestPasswordReset asks the server to send a reset email.
func (s *Service) RequestPasswordReset(ctx context.Context, email string) (*Response, error) {
	return s.post(ctx, "/auth/forgot-password", map[string]string{"email": email})
}

// ResetPassword consumes a reset token and sets a new password.
func (s *Service) ResetPassword(ctx context.Context, resetToken, password string) (*Response, error) {
	return s.post(ctx, "/auth/reset-password", map[string]string{
		"token":    resetToken,
		"password": password,
	})
}

// ValidateResetToken checks whether a reset token is still usable.
func (s *Service) ValidateResetToken(ctx context.Context, resetToken string) (*Response, error) {
	var resp Response
	q := url.Values{"token": {resetToken}}
	if err := s.api.Get(ctx, "/auth/validate-reset-token", q, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// VerifyEmail consumes an email-verification token.
func (s *Service) VerifyEmail(ctx context.Context, verificationToken string) (*Response, error) {
	return s.post(ctx, "/auth/verify-email", map[string]string{"token": verificationToken})
}

// ResendVerificationEmail re-sends the account verification email.
func (s *Service) ResendVerificationEmail(ctx context.Context) (*Response, error) {
	return s.post(ctx, "/auth/resend-verification", nil)
}

func (s *Service) post(ctx context.Context, path string, body any) (*Response, error) {
	var resp Response
	if err := s.api.Post(ctx, path, body, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// captureTokens persists a token pair found in either response shape. The
// store only errors when every backend rejected the write; that leaves the
// caller authenticated in memory but with nothing persisted, which must not
// pass silently.
func (s *Service) captureTokens(resp *LoginResponse) {
	p := resp.Flatten()
	if resp.Failed() || p.AccessToken == "" || p.RefreshToken == "" {
		return
	}
	tokens := s.api.Tokens()
	if err := tokens.SetAccessToken(p.AccessToken); err != nil {
		s.api.Logger().Warn("auth: access token not persisted", "error", err)
		return
	}
	if err := tokens.SetRefreshToken(p.RefreshToken); err != nil {
		s.api.Logger().Warn("auth: refresh token not persisted", "error", err)
	}
}
