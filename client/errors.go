package client

import (
	"errors"
	"fmt"
)

// ErrSessionExpired indicates the access token was rejected and could not
// be refreshed. Tokens have been cleared; the caller must re-authenticate.
var ErrSessionExpired = errors.New("session expired")

// APIError is a non-2xx response from the server. Message carries the
// envelope message when the body was a parseable envelope.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("api error: status %d", e.StatusCode)
	}
	return fmt.Sprintf("api error: status %d: %s", e.StatusCode, e.Message)
}

// Message extracts the server-provided envelope message from err, if err
// is an APIError carrying one. Useful for surfacing server messages
// verbatim in user-facing flows.
func Message(err error) string {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Message
	}
	return ""
}
