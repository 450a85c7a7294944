// Package client is the single outbound channel to the remote
// authentication API. It attaches bearer credentials to every request,
// intercepts 401 responses with a one-shot refresh-and-retry, and maps
// error responses to typed errors.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/dgarza/acceso/token"
)

// DefaultTimeout bounds every request, including the refresh exchange.
const DefaultTimeout = 10 * time.Second

// Client wraps all API calls over a configured base endpoint.
type Client struct {
	baseURL          string
	httpClient       *http.Client
	tokens           *token.Store
	logger           *slog.Logger
	onSessionExpired func()

	// Concurrent 401s coalesce into a single refresh exchange; each
	// original request still retries at most once.
	refreshGroup singleflight.Group
}

// Option configures a Client.
type Option func(*Client)

// WithLogger sets the structured logger. If not set, a JSON logger writing
// to stderr is used.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithHTTPClient replaces the underlying HTTP client. The configured
// timeout is preserved unless the given client sets its own.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithTimeout overrides the default request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.httpClient.Timeout = d
		}
	}
}

// WithSessionExpiredHandler registers a callback invoked after an
// unrecoverable 401 has cleared the token store. It is the programmatic
// stand-in for a redirect to the login screen.
func WithSessionExpiredHandler(fn func()) Option {
	return func(c *Client) {
		c.onSessionExpired = fn
	}
}

// New creates a Client for the API rooted at baseURL (e.g.
// "https://accounts.example.com/api").
func New(baseURL string, tokens *token.Store, opts ...Option) (*Client, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("client: base URL is required")
	}
	if tokens == nil {
		return nil, fmt.Errorf("client: token store is required")
	}
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: DefaultTimeout},
		tokens:     tokens,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = slog.New(slog.NewJSONHandler(os.Stderr, nil))
	}
	return c, nil
}

// Tokens exposes the token store the client reads and writes through.
func (c *Client) Tokens() *token.Store { return c.tokens }

// Logger exposes the client's structured logger so layers built on top can
// share it.
func (c *Client) Logger() *slog.Logger { return c.logger }

// Get issues a GET request and decodes the JSON response into out.
func (c *Client) Get(ctx context.Context, path string, query url.Values, out any) error {
	return c.do(ctx, http.MethodGet, path, query, "", nil, out)
}

// Post issues a POST request with a JSON body and decodes into out.
// A nil body sends an empty JSON request.
func (c *Client) Post(ctx context.Context, path string, body, out any) error {
	payload, err := marshalBody(body)
	if err != nil {
		return err
	}
	return c.do(ctx, http.MethodPost, path, nil, "application/json", payload, out)
}

// Put issues a PUT request with a JSON body and decodes into out.
func (c *Client) Put(ctx context.Context, path string, body, out any) error {
	payload, err := marshalBody(body)
	if err != nil {
		return err
	}
	return c.do(ctx, http.MethodPut, path, nil, "application/json", payload, out)
}

// Delete issues a DELETE request and decodes the response into out.
func (c *Client) Delete(ctx context.Context, path string, out any) error {
	return c.do(ctx, http.MethodDelete, path, nil, "", nil, out)
}

// Upload issues a multipart POST with the given form fields and one file
// part, decoding the response into out.
func (c *Client) Upload(ctx context.Context, path string, fields map[string]string, fileField, filename string, content io.Reader, out any) error {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for k, v := range fields {
		if err := w.WriteField(k, v); err != nil {
			return fmt.Errorf("client: writing form field %s: %w", k, err)
		}
	}
	part, err := w.CreateFormFile(fileField, filename)
	if err != nil {
		return fmt.Errorf("client: creating file part: %w", err)
	}
	if _, err := io.Copy(part, content); err != nil {
		return fmt.Errorf("client: copying file content: %w", err)
	}
	if err := w.Close(); err != nil {
		return err
	}
	return c.do(ctx, http.MethodPost, path, nil, w.FormDataContentType(), buf.Bytes(), out)
}

// do sends one logical request. Bodies are held as byte slices so the
// request can be rebuilt for the single post-refresh retry.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, contentType string, body []byte, out any) error {
	retried := false
	for {
		req, err := c.newRequest(ctx, method, path, query, contentType, body)
		if err != nil {
			return err
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("client: %s %s: %w", method, path, err)
		}
		data, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()
		if readErr != nil {
			return fmt.Errorf("client: reading response: %w", readErr)
		}

		if resp.StatusCode == http.StatusUnauthorized && !retried {
			retried = true
			if err := c.refreshAccessToken(ctx); err != nil {
				// No refresh token, rejected exchange, or transport failure:
				// the session cannot be trusted any further.
				c.tokens.Clear()
				if c.onSessionExpired != nil {
					c.onSessionExpired()
				}
				return fmt.Errorf("%w: %v", ErrSessionExpired, err)
			}
			c.logger.Debug("client: retrying after token refresh",
				"method", method, "path", path)
			continue
		}

		if resp.StatusCode == http.StatusUnauthorized && retried {
			// The freshly minted token was rejected too. Surface the
			// failure instead of looping, and drop the untrustworthy pair.
			c.tokens.Clear()
			if c.onSessionExpired != nil {
				c.onSessionExpired()
			}
			return &APIError{
				StatusCode: resp.StatusCode,
				Message:    envelopeMessage(data),
			}
		}

		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			return &APIError{
				StatusCode: resp.StatusCode,
				Message:    envelopeMessage(data),
			}
		}

		if out == nil || len(data) == 0 {
			return nil
		}
		if err := json.Unmarshal(data, out); err != nil {
			return fmt.Errorf("client: decoding response: %w", err)
		}
		return nil
	}
}

func (c *Client) newRequest(ctx context.Context, method, path string, query url.Values, contentType string, body []byte) (*http.Request, error) {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return nil, fmt.Errorf("client: building request: %w", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-Id", uuid.NewString())
	if tok, ok := c.tokens.AccessToken(); ok {
		req.Header.Set("Authorization", "Bearer "+tok)
	}
	return req, nil
}

func marshalBody(body any) ([]byte, error) {
	if body == nil {
		return []byte("{}"), nil
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("client: encoding request body: %w", err)
	}
	return payload, nil
}

// envelopeMessage pulls the message out of a `{success, message}` error
// body; a non-envelope body yields an empty message.
func envelopeMessage(data []byte) string {
	var env struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if err := json.Unmarshal(data, &env); err != nil {
		return ""
	}
	if env.Message != "" {
		return env.Message
	}
	return env.Error
}
