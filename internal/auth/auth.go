// Package auth provides credential providers for the realtime connection.
//
// A provider answers two questions per connection attempt: who is
// connecting (the subject) and with what short-lived bearer token. Tokens
// come from a TokenSource, either minted locally with an RSA-PSS key
// (Signer) or issued by the token service (Endpoint).
package auth

import (
	"context"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
)

// Errors
var (
	ErrNoSubject      = errors.New("no subject")
	ErrInvalidToken   = errors.New("invalid token")
	ErrTokenSignature = errors.New("token signature mismatch")
)

// TokenSource mints or fetches a fresh token for a subject.
type TokenSource interface {
	TokenFor(ctx context.Context, subject string) (string, error)
}

// TokenSourceFunc adapts a function to TokenSource.
type TokenSourceFunc func(ctx context.Context, subject string) (string, error)

// TokenFor calls f(ctx, subject).
func (f TokenSourceFunc) TokenFor(ctx context.Context, subject string) (string, error) {
	return f(ctx, subject)
}

// LoadPrivateKey loads an RSA private key from a PEM file.
func LoadPrivateKey(path string) (*rsa.PrivateKey, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read key file: %w", err)
	}
	return ParsePrivateKey(data)
}

// ParsePrivateKey parses a PEM-encoded RSA private key.
func ParsePrivateKey(data []byte) (*rsa.PrivateKey, error) {
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, fmt.Errorf("failed to decode PEM block")
	}

	// Try PKCS#8 first (newer format)
	key, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err == nil {
		rsaKey, ok := key.(*rsa.PrivateKey)
		if !ok {
			return nil, fmt.Errorf("key is not an RSA private key")
		}
		return rsaKey, nil
	}

	// Fall back to PKCS#1 (older format)
	rsaKey, err := x509.ParsePKCS1PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}

	return rsaKey, nil
}
