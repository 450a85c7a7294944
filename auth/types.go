// Package auth exposes the typed operations and wire types of the remote
// authentication API.
package auth

import "time"

// Method is a second-factor verification channel.
type Method string

// Known second-factor methods, in server vocabulary.
const (
	MethodGoogleAuthenticator Method = "GOOGLE_AUTHENTICATOR"
	MethodEmail               Method = "EMAIL"
	MethodSMS                 Method = "SMS"
)

// User is the account profile plus its security posture.
type User struct {
	ID                string    `json:"id"`
	FirstName         string    `json:"firstName"`
	LastName          string    `json:"lastName"`
	Email             string    `json:"email"`
	Phone             string    `json:"phone,omitempty"`
	Enabled           bool      `json:"enabled"`
	TwoFactorEnabled  bool      `json:"twoFactorEnabled"`
	TwoFactorType     Method    `json:"twoFactorType,omitempty"`
	GoogleAuthEnabled bool      `json:"googleAuthEnabled"`
	SMSEnabled        bool      `json:"smsEnabled"`
	EmailEnabled      bool      `json:"emailEnabled"`
	Roles             []Role    `json:"roles"`
	CreatedAt         time.Time `json:"createdAt"`
	UpdatedAt         time.Time `json:"updatedAt"`
}

// SyncTwoFactorFlags re-derives the aggregate flag from the per-method
// flags. The server is supposed to keep them consistent; callers mutating
// user state must not assume it did.
func (u *User) SyncTwoFactorFlags() {
	u.TwoFactorEnabled = u.GoogleAuthEnabled || u.SMSEnabled || u.EmailEnabled
}

// Role is a named role attached to a user.
type Role struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Credentials is the login request body.
type Credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Registration is the register request body.
type Registration struct {
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Email     string `json:"email"`
	Password  string `json:"password"`
	Phone     string `json:"phone,omitempty"`
}

// Response is the bare server envelope for operations with no payload.
type Response struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// UserResponse is the envelope carrying a user payload.
type UserResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Data    *User  `json:"data,omitempty"`
}

// AvailableMethods reports which second-factor methods an account has
// enabled. Discovered, never assumed.
type AvailableMethods struct {
	GoogleAuthenticator bool `json:"googleAuthenticator"`
	SMS                 bool `json:"sms"`
	Email               bool `json:"email"`
}

// None reports whether no method is available.
func (m AvailableMethods) None() bool {
	return !m.GoogleAuthenticator && !m.SMS && !m.Email
}

// Has reports whether the given method is available.
func (m AvailableMethods) Has(method Method) bool {
	switch method {
	case MethodGoogleAuthenticator:
		return m.GoogleAuthenticator
	case MethodSMS:
		return m.SMS
	case MethodEmail:
		return m.Email
	default:
		return false
	}
}

// TwoFactorSetup is the TOTP provisioning payload.
type TwoFactorSetup struct {
	Success   bool   `json:"success"`
	QRCodeURL string `json:"qrCodeUrl,omitempty"`
	Secret    string `json:"secret,omitempty"`
	Message   string `json:"message,omitempty"`
}

// LoginPayload is the authenticated payload of a login or 2FA verification
// response.
type LoginPayload struct {
	AccessToken       string `json:"accessToken,omitempty"`
	RefreshToken      string `json:"refreshToken,omitempty"`
	TokenType         string `json:"tokenType,omitempty"`
	ExpiresIn         int64  `json:"expiresIn,omitempty"`
	User              *User  `json:"user,omitempty"`
	TwoFactorRequired bool   `json:"twoFactorRequired,omitempty"`
	TwoFactorType     Method `json:"twoFactorType,omitempty"`
}

// LoginResponse is the raw login/verify-login response. The server has
// emitted two shapes over time: payload nested under data (canonical) and
// payload at the top level (legacy). Both are kept; Flatten normalizes.
type LoginResponse struct {
	Success *bool  `json:"success,omitempty"`
	Message string `json:"message,omitempty"`
	LoginPayload
	Data *LoginPayload `json:"data,omitempty"`
}

// Flatten returns the effective payload, preferring the canonical nested
// shape and falling back to the legacy top-level fields.
func (r *LoginResponse) Flatten() LoginPayload {
	if r == nil {
		return LoginPayload{}
	}
	p := r.LoginPayload
	if r.Data != nil {
		if r.Data.AccessToken != "" {
			p.AccessToken = r.Data.AccessToken
		}
		if r.Data.RefreshToken != "" {
			p.RefreshToken = r.Data.RefreshToken
		}
		if r.Data.TokenType != "" {
			p.TokenType = r.Data.TokenType
		}
		if r.Data.ExpiresIn != 0 {
			p.ExpiresIn = r.Data.ExpiresIn
		}
		if r.Data.User != nil {
			p.User = r.Data.User
		}
		if r.Data.TwoFactorRequired {
			p.TwoFactorRequired = true
		}
		if r.Data.TwoFactorType != "" {
			p.TwoFactorType = r.Data.TwoFactorType
		}
	}
	return p
}

// Failed reports whether the response explicitly declared failure.
// An absent success field is treated as success, matching the legacy shape.
func (r *LoginResponse) Failed() bool {
	return r != nil && r.Success != nil && !*r.Success
}
