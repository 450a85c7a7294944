package auth

import (
	"context"
	"fmt"
	"net/url"
)

// Second-factor management and verification endpoints. Enrollment calls
// require an authenticated session; the pre-session calls (AvailableMethods,
// VerifyLogin, ResendCode) are part of the login flow and carry no bearer.

// qrCodeResponse is the raw TOTP provisioning envelope.
type qrCodeResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Data    *struct {
		QRCode         string `json:"qrCode"`
		ManualEntryKey string `json:"manualEntryKey"`
	} `json:"data,omitempty"`
}

// SetupGoogleAuthenticator fetches TOTP provisioning data (QR code plus
// manual entry key) for the current user.
func (s *Service) SetupGoogleAuthenticator(ctx context.Context) (*TwoFactorSetup, error) {
	var resp qrCodeResponse
	if err := s.api.Get(ctx, "/2fa/google/qrcode", nil, &resp); err != nil {
		return nil, err
	}
	if !resp.Success || resp.Data == nil {
		return &TwoFactorSetup{Success: false, Message: resp.Message}, nil
	}
	return &TwoFactorSetup{
		Success:   true,
		QRCodeURL: resp.Data.QRCode,
		Secret:    resp.Data.ManualEntryKey,
	}, nil
}

// EnableGoogleAuthenticator confirms TOTP enrollment with a code from the
// authenticator app.
func (s *Service) EnableGoogleAuthenticator(ctx context.Context, code string) (*Response, error) {
	return s.post(ctx, "/2fa/google/confirm", map[string]string{"code": code})
}

// DisableMethod disables one enrolled second-factor method.
func (s *Service) DisableMethod(ctx context.Context, method Method) (*Response, error) {
	return s.post(ctx, "/2fa/disable/"+string(method), nil)
}

// EnableEmailTwoFactor enables the email second factor.
func (s *Service) EnableEmailTwoFactor(ctx context.Context) (*Response, error) {
	return s.post(ctx, "/2fa/email/enable", nil)
}

// SendEmailCode sends a verification code to the account email.
func (s *Service) SendEmailCode(ctx context.Context) (*Response, error) {
	return s.post(ctx, "/2fa/email/send", nil)
}

// VerifyEmailTwoFactor checks a code delivered by email.
func (s *Service) VerifyEmailTwoFactor(ctx context.Context, code string) (*Response, error) {
	return s.post(ctx, "/2fa/email/verify", map[string]string{"code": code})
}

// SetupSMSTwoFactor starts SMS enrollment by sending a code to the given
// phone number.
func (s *Service) SetupSMSTwoFactor(ctx context.Context, phoneNumber string) (*Response, error) {
	return s.post(ctx, "/2fa/sms/setup/send-code", map[string]string{"phoneNumber": phoneNumber})
}

// ConfirmSMSTwoFactor completes SMS enrollment with the received code.
func (s *Service) ConfirmSMSTwoFactor(ctx context.Context, code string) (*Response, error) {
	return s.post(ctx, "/2fa/sms/setup/verify-code", map[string]string{"code": code})
}

// SendSMSCode sends a verification code to the enrolled phone.
func (s *Service) SendSMSCode(ctx context.Context) (*Response, error) {
	return s.post(ctx, "/2fa/sms/send", nil)
}

// VerifySMSTwoFactor checks a code delivered by SMS.
func (s *Service) VerifySMSTwoFactor(ctx context.Context, code string) (*Response, error) {
	return s.post(ctx, "/2fa/sms/verify", map[string]string{"code": code})
}

// methodsResponse is the available-methods envelope.
type methodsResponse struct {
	Success bool              `json:"success"`
	Message string            `json:"message"`
	Data    *AvailableMethods `json:"data,omitempty"`
}

// AvailableMethods reports which second-factor methods are enabled for an
// account. Pre-session: no bearer required.
func (s *Service) AvailableMethods(ctx context.Context, email string) (AvailableMethods, error) {
	var resp methodsResponse
	path := "/2fa/methods/" + url.PathEscape(email)
	if err := s.api.Get(ctx, path, nil, &resp); err != nil {
		return AvailableMethods{}, err
	}
	if resp.Data == nil {
		return AvailableMethods{}, nil
	}
	return *resp.Data, nil
}

// VerifyLogin completes a 2FA login challenge. On success the response
// carries a token pair and a user; the pair is persisted.
func (s *Service) VerifyLogin(ctx context.Context, email, code string, method Method) (*LoginResponse, error) {
	var resp LoginResponse
	body := map[string]string{
		"email":  email,
		"code":   code,
		"method": string(method),
	}
	if err := s.api.Post(ctx, "/2fa/verify-login", body, &resp); err != nil {
		return nil, err
	}
	s.captureTokens(&resp)
	return &resp, nil
}

// ResendCode asks the server to re-deliver the challenge code over the
// given method. Pre-session: no bearer required.
func (s *Service) ResendCode(ctx context.Context, email string, method Method) (*Response, error) {
	if email == "" {
		return nil, fmt.Errorf("auth: email is required to resend a code")
	}
	return s.post(ctx, "/2fa/resend", map[string]string{
		"email":  email,
		"method": string(method),
	})
}
