// Package twofactor drives the post-login second-factor challenge: method
// discovery, selection, code submission and resend. The flow ends either
// with an established session or a return to login.
package twofactor

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"

	"github.com/dgarza/acceso/auth"
	"github.com/dgarza/acceso/client"
	"github.com/dgarza/acceso/session"
)

// Status is the flow position.
type Status int

// Flow statuses. Unavailable and Succeeded are terminal; Failed permits
// resubmission.
const (
	StatusDiscovering Status = iota
	StatusUnavailable
	StatusReady
	StatusSubmitting
	StatusFailed
	StatusSucceeded
)

func (s Status) String() string {
	switch s {
	case StatusDiscovering:
		return "discovering"
	case StatusUnavailable:
		return "unavailable"
	case StatusReady:
		return "ready"
	case StatusSubmitting:
		return "submitting"
	case StatusFailed:
		return "failed"
	case StatusSucceeded:
		return "succeeded"
	default:
		return "unknown"
	}
}

// Flow errors.
var (
	// ErrMissingEmail: the flow can only start from a login attempt that
	// carried an email; without one the caller must return to login.
	ErrMissingEmail = errors.New("two-factor flow requires the login email")
	// ErrNoMethods: the account is flagged as requiring 2FA but has no
	// method enabled. A configuration anomaly, not a failed attempt.
	ErrNoMethods = errors.New("no two-factor methods available")
	// ErrInvalidCode: the code did not survive the six-digit check.
	ErrInvalidCode = errors.New("code must be exactly 6 digits")
	// ErrSubmissionInFlight rejects a concurrent submission.
	ErrSubmissionInFlight = errors.New("code submission already in flight")
	// ErrResendInFlight rejects a concurrent resend.
	ErrResendInFlight = errors.New("resend already in flight")
	// ErrNotReady: the flow is not in a state that accepts this call.
	ErrNotReady = errors.New("two-factor flow is not ready")
	// ErrMethodUnavailable: the requested method is not enabled for the
	// account.
	ErrMethodUnavailable = errors.New("method not available for this account")
	// ErrVerificationRejected: the server did not accept the code.
	ErrVerificationRejected = errors.New("verification code rejected")
)

// Messages surfaced through Snapshot. The display channel is shared with
// errors but notices are not failures.
const (
	msgInvalidCode  = "Invalid verification code"
	msgVerifyFailed = "Verification failed, try again"
	msgCodeResent   = "Verification code resent"
	msgResendFailed = "Could not resend the code"
)

// Snapshot is an immutable view of the flow.
type Snapshot struct {
	Status           Status
	Email            string
	AvailableMethods auth.AvailableMethods
	SelectedMethod   auth.Method
	// Message is a failure to show next to the code input.
	Message string
	// Notice is informational (e.g. a resend confirmation).
	Notice string
}

// Flow is the challenge state machine. All methods are safe for
// concurrent use.
type Flow struct {
	svc      *auth.Service
	sessions *session.Controller
	logger   *slog.Logger

	mu        sync.Mutex
	status    Status
	email     string
	available auth.AvailableMethods
	method    auth.Method
	message   string
	notice    string
	resending bool
}

// Option configures a Flow.
type Option func(*Flow)

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(f *Flow) {
		if logger != nil {
			f.logger = logger
		}
	}
}

// New creates a Flow for the account identified by email, as carried over
// from a login attempt that returned twoFactorRequired.
func New(svc *auth.Service, sessions *session.Controller, email string, opts ...Option) (*Flow, error) {
	if email == "" {
		return nil, ErrMissingEmail
	}
	f := &Flow{
		svc:      svc,
		sessions: sessions,
		logger:   slog.Default(),
		status:   StatusDiscovering,
		email:    email,
		method:   auth.MethodEmail,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f, nil
}

// Snapshot returns the current flow view.
func (f *Flow) Snapshot() Snapshot {
	f.mu.Lock()
	defer f.mu.Unlock()
	return Snapshot{
		Status:           f.status,
		Email:            f.email,
		AvailableMethods: f.available,
		SelectedMethod:   f.method,
		Message:          f.message,
		Notice:           f.notice,
	}
}

// Load discovers which methods the account has enabled and auto-selects
// one by fixed priority: EMAIL, then GOOGLE_AUTHENTICATOR, then SMS. Zero
// available methods terminate the flow in the unavailable state.
func (f *Flow) Load(ctx context.Context) error {
	f.mu.Lock()
	if f.status != StatusDiscovering {
		f.mu.Unlock()
		return ErrNotReady
	}
	f.mu.Unlock()

	methods, err := f.svc.AvailableMethods(ctx, f.email)
	if err != nil {
		f.logger.Warn("twofactor: method discovery failed", "error", err)
		f.mu.Lock()
		f.message = msgVerifyFailed
		f.mu.Unlock()
		return err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.available = methods
	if methods.None() {
		f.status = StatusUnavailable
		return ErrNoMethods
	}
	switch {
	case methods.Email:
		f.method = auth.MethodEmail
	case methods.GoogleAuthenticator:
		f.method = auth.MethodGoogleAuthenticator
	case methods.SMS:
		f.method = auth.MethodSMS
	}
	f.status = StatusReady
	return nil
}

// SelectMethod switches the active method while the flow accepts input.
// Switching drops any failure message so stale state never carries over.
func (f *Flow) SelectMethod(m auth.Method) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.status != StatusReady && f.status != StatusFailed {
		return ErrNotReady
	}
	if !f.available.Has(m) {
		return ErrMethodUnavailable
	}
	f.method = m
	f.message = ""
	f.notice = ""
	f.status = StatusReady
	return nil
}

// SanitizeCode strips non-digit characters and truncates to six digits,
// matching what the code input field does to keystrokes.
func SanitizeCode(raw string) string {
	var b strings.Builder
	for _, r := range raw {
		if r < '0' || r > '9' {
			continue
		}
		b.WriteRune(r)
		if b.Len() == 6 {
			break
		}
	}
	return b.String()
}

// ValidCode reports whether a sanitized code passes the six-digit check.
// A client-side optimization only; the server check is authoritative.
func ValidCode(code string) bool {
	if len(code) != 6 {
		return false
	}
	for _, r := range code {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// Submit sanitizes and submits a verification code. On success the user is
// installed into the session controller and the flow terminates. A
// rejected code leaves the flow failed but resubmittable.
func (f *Flow) Submit(ctx context.Context, rawCode string) error {
	code := SanitizeCode(rawCode)
	if !ValidCode(code) {
		return ErrInvalidCode
	}

	f.mu.Lock()
	if f.status == StatusSubmitting {
		f.mu.Unlock()
		return ErrSubmissionInFlight
	}
	if f.status != StatusReady && f.status != StatusFailed {
		f.mu.Unlock()
		return ErrNotReady
	}
	method := f.method
	f.status = StatusSubmitting
	f.message = ""
	f.notice = ""
	f.mu.Unlock()

	resp, err := f.svc.VerifyLogin(ctx, f.email, code, method)
	if err != nil {
		f.logger.Warn("twofactor: verification failed", "method", method, "error", err)
		f.mu.Lock()
		f.status = StatusFailed
		f.message = serverMessage(err, msgVerifyFailed)
		f.mu.Unlock()
		return err
	}

	user := verifiedUser(resp)
	if resp.Failed() || user == nil {
		f.mu.Lock()
		f.status = StatusFailed
		f.message = msgInvalidCode
		f.mu.Unlock()
		return ErrVerificationRejected
	}

	f.sessions.SetUser(user)
	f.mu.Lock()
	f.status = StatusSucceeded
	f.mu.Unlock()
	return nil
}

// Resend asks the server to re-deliver the challenge code. Independent of
// code submission, but guarded against concurrent resends. Success is a
// notice, not a state change.
func (f *Flow) Resend(ctx context.Context) error {
	f.mu.Lock()
	if f.resending {
		f.mu.Unlock()
		return ErrResendInFlight
	}
	if f.status == StatusDiscovering || f.status == StatusUnavailable || f.status == StatusSucceeded {
		f.mu.Unlock()
		return ErrNotReady
	}
	f.resending = true
	method := f.method
	f.mu.Unlock()

	resp, err := f.svc.ResendCode(ctx, f.email, method)

	f.mu.Lock()
	defer f.mu.Unlock()
	f.resending = false
	if err != nil {
		f.logger.Warn("twofactor: resend failed", "method", method, "error", err)
		f.message = serverMessage(err, msgResendFailed)
		return err
	}
	if !resp.Success {
		f.message = fallback(resp.Message, msgResendFailed)
		return errors.New(f.message)
	}
	f.notice = msgCodeResent
	return nil
}

// verifiedUser extracts the user from either known response shape.
func verifiedUser(resp *auth.LoginResponse) *auth.User {
	if resp == nil {
		return nil
	}
	if resp.Data != nil && resp.Data.User != nil {
		return resp.Data.User
	}
	return resp.User
}

func serverMessage(err error, def string) string {
	if msg := client.Message(err); msg != "" {
		return msg
	}
	return def
}

func fallback(s, def string) string {
	if s != "" {
		return s
	}
	return def
}
