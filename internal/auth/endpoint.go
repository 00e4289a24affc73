package auth

import (
	"context"
	"fmt"

	"github.com/rickgao/eventlink/internal/api"
)

// TokenIssuer issues tokens remotely. Satisfied by *api.Client.
type TokenIssuer interface {
	IssueToken(ctx context.Context, subject string) (api.TokenResponse, error)
}

// Endpoint fetches a fresh token from the token service on every call.
type Endpoint struct {
	issuer TokenIssuer
}

// NewEndpoint creates an Endpoint backed by issuer.
func NewEndpoint(issuer TokenIssuer) *Endpoint {
	return &Endpoint{issuer: issuer}
}

// TokenFor requests a token for subject.
func (e *Endpoint) TokenFor(ctx context.Context, subject string) (string, error) {
	if subject == "" {
		return "", ErrNoSubject
	}
	resp, err := e.issuer.IssueToken(ctx, subject)
	if err != nil {
		return "", fmt.Errorf("issue token: %w", err)
	}
	return resp.Token, nil
}
