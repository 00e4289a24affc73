package auth

import (
	"context"
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Signer mints self-contained tokens of the form
// keyID.timestampMs.signature, where signature is a base64url RSA-PSS
// signature over subject + timestampMs.
type Signer struct {
	KeyID      string          // Key identifier registered with the server
	PrivateKey *rsa.PrivateKey // RSA private key for signing

	now func() time.Time
}

// NewSigner creates a Signer from a key ID and a PEM private key file.
func NewSigner(keyID, privateKeyPath string) (*Signer, error) {
	if keyID == "" {
		return nil, fmt.Errorf("key ID is required")
	}
	if privateKeyPath == "" {
		return nil, fmt.Errorf("private key path is required")
	}

	privateKey, err := LoadPrivateKey(privateKeyPath)
	if err != nil {
		return nil, fmt.Errorf("load private key: %w", err)
	}

	return &Signer{KeyID: keyID, PrivateKey: privateKey}, nil
}

// TokenFor signs a fresh token for subject.
func (s *Signer) TokenFor(ctx context.Context, subject string) (string, error) {
	if subject == "" {
		return "", ErrNoSubject
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	now := time.Now
	if s.now != nil {
		now = s.now
	}
	timestampMs := now().UnixMilli()

	signature, err := s.sign(timestampMs, subject)
	if err != nil {
		return "", err
	}

	return fmt.Sprintf("%s.%d.%s", s.KeyID, timestampMs, signature), nil
}

// sign creates an RSA-PSS signature.
// Message format: subject + timestamp_ms
func (s *Signer) sign(timestampMs int64, subject string) (string, error) {
	hashed := sha256.Sum256(signedMessage(subject, timestampMs))

	signature, err := rsa.SignPSS(
		rand.Reader,
		s.PrivateKey,
		crypto.SHA256,
		hashed[:],
		&rsa.PSSOptions{SaltLength: rsa.PSSSaltLengthEqualsHash},
	)
	if err != nil {
		return "", fmt.Errorf("sign message: %w", err)
	}

	return base64.RawURLEncoding.EncodeToString(signature), nil
}

// ParsedToken is the decoded form of a Signer token.
type ParsedToken struct {
	KeyID     string
	Timestamp time.Time
}

// VerifyToken checks that token was signed for subject by the holder of
// the private key matching pub.
func VerifyToken(pub *rsa.PublicKey, subject, token string) (ParsedToken, error) {
	parts := strings.Split(token, ".")
	if len(parts) != 3 || parts[0] == "" {
		return ParsedToken{}, ErrInvalidToken
	}

	timestampMs, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return ParsedToken{}, fmt.Errorf("%w: timestamp: %v", ErrInvalidToken, err)
	}
	signature, err := base64.RawURLEncoding.DecodeString(parts[2])
	if err != nil {
		return ParsedToken{}, fmt.Errorf("%w: signature: %v", ErrInvalidToken, err)
	}

	hashed := sha256.Sum256(signedMessage(subject, timestampMs))
	if err := rsa.VerifyPSS(pub, crypto.SHA256, hashed[:], signature, &rsa.PSSOptions{SaltLength: rsa.PSSSaltLengthEqualsHash}); err != nil {
		return ParsedToken{}, ErrTokenSignature
	}

	return ParsedToken{KeyID: parts[0], Timestamp: time.UnixMilli(timestampMs)}, nil
}

func signedMessage(subject string, timestampMs int64) []byte {
	return []byte(subject + strconv.FormatInt(timestampMs, 10))
}
