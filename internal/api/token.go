package api

import (
	"context"
	"errors"
	"time"
)

// TokenPath is the default token issuance endpoint.
const TokenPath = "/realtime/token"

// ErrEmptyToken is returned when the service answers without a token.
var ErrEmptyToken = errors.New("token service returned empty token")

// TokenRequest is the body of a token issuance request.
type TokenRequest struct {
	Subject string `json:"subject"`
}

// TokenResponse is a freshly issued realtime token.
type TokenResponse struct {
	Token     string `json:"token"`
	ExpiresAt int64  `json:"expires_at,omitempty"` // Unix seconds; 0 if unspecified
}

// Expiry returns the expiry as a time, or the zero time if unspecified.
func (r TokenResponse) Expiry() time.Time {
	if r.ExpiresAt == 0 {
		return time.Time{}
	}
	return time.Unix(r.ExpiresAt, 0)
}

// IssueToken requests a new realtime token for subject.
func (c *Client) IssueToken(ctx context.Context, subject string) (TokenResponse, error) {
	var resp TokenResponse
	if err := c.post(ctx, c.tokenPath, TokenRequest{Subject: subject}, &resp); err != nil {
		return TokenResponse{}, err
	}
	if resp.Token == "" {
		return TokenResponse{}, ErrEmptyToken
	}

	c.logger.Debug("issued realtime token", "subject", subject, "expires_at", resp.ExpiresAt)
	return resp, nil
}
