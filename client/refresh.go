package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
)

// ErrNoRefreshToken indicates no refresh token is stored, so a rejected
// access token cannot be recovered.
var ErrNoRefreshToken = errors.New("no refresh token available")

// refreshResponse tolerates both observed server shapes: tokens nested
// under data, or at the top level.
type refreshResponse struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
	Data         struct {
		AccessToken  string `json:"accessToken"`
		RefreshToken string `json:"refreshToken"`
	} `json:"data"`
}

func (r *refreshResponse) accessToken() string {
	if r.Data.AccessToken != "" {
		return r.Data.AccessToken
	}
	return r.AccessToken
}

func (r *refreshResponse) refreshToken() string {
	if r.Data.RefreshToken != "" {
		return r.Data.RefreshToken
	}
	return r.RefreshToken
}

// Refresh performs an explicit refresh exchange outside of the 401 path.
// On failure the stored tokens are cleared: a session that cannot refresh
// cannot be trusted.
func (c *Client) Refresh(ctx context.Context) error {
	if err := c.refreshAccessToken(ctx); err != nil {
		c.tokens.Clear()
		return err
	}
	return nil
}

// refreshAccessToken exchanges the stored refresh token for a new access
// token and persists it. Concurrent callers share one in-flight exchange.
func (c *Client) refreshAccessToken(ctx context.Context) error {
	_, err, _ := c.refreshGroup.Do("refresh", func() (any, error) {
		return nil, c.doRefresh(ctx)
	})
	return err
}

// doRefresh performs the actual exchange. It deliberately bypasses do() so
// a 401 from the refresh endpoint itself can never recurse into another
// refresh attempt.
func (c *Client) doRefresh(ctx context.Context) error {
	refresh, ok := c.tokens.RefreshToken()
	if !ok {
		return ErrNoRefreshToken
	}

	payload, err := json.Marshal(map[string]string{"refreshToken": refresh})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/auth/refresh", bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("client: building refresh request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("client: refresh exchange: %w", err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("client: reading refresh response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &APIError{StatusCode: resp.StatusCode, Message: envelopeMessage(data)}
	}

	var rr refreshResponse
	if err := json.Unmarshal(data, &rr); err != nil {
		return fmt.Errorf("client: decoding refresh response: %w", err)
	}
	access := rr.accessToken()
	if access == "" {
		return errors.New("client: refresh response carried no access token")
	}
	if err := c.tokens.SetAccessToken(access); err != nil {
		return err
	}
	// Refresh token is only replaced when the server rotates it.
	if rotated := rr.refreshToken(); rotated != "" && rotated != refresh {
		if err := c.tokens.SetRefreshToken(rotated); err != nil {
			return err
		}
	}
	c.logger.Debug("client: access token refreshed")
	return nil
}
