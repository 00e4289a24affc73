package auth

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rickgao/eventlink/internal/api"
)

func writeKey(t *testing.T, block *pem.Block) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test-key.pem")
	if err := os.WriteFile(path, pem.EncodeToMemory(block), 0600); err != nil {
		t.Fatalf("failed to write temp file: %v", err)
	}
	return path
}

func generateKey(t *testing.T) *rsa.PrivateKey {
	t.Helper()
	privateKey, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("failed to generate test key: %v", err)
	}
	return privateKey
}

func TestLoadPrivateKey_PKCS8(t *testing.T) {
	privateKey := generateKey(t)

	pkcs8Bytes, err := x509.MarshalPKCS8PrivateKey(privateKey)
	if err != nil {
		t.Fatalf("failed to marshal PKCS#8: %v", err)
	}
	path := writeKey(t, &pem.Block{Type: "PRIVATE KEY", Bytes: pkcs8Bytes})

	loadedKey, err := LoadPrivateKey(path)
	if err != nil {
		t.Fatalf("LoadPrivateKey failed: %v", err)
	}
	if loadedKey.N.Cmp(privateKey.N) != 0 {
		t.Error("loaded key does not match original")
	}
}

func TestLoadPrivateKey_PKCS1(t *testing.T) {
	privateKey := generateKey(t)
	path := writeKey(t, &pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(privateKey)})

	loadedKey, err := LoadPrivateKey(path)
	if err != nil {
		t.Fatalf("LoadPrivateKey failed: %v", err)
	}
	if loadedKey.N.Cmp(privateKey.N) != 0 {
		t.Error("loaded key does not match original")
	}
}

func TestLoadPrivateKey_FileNotFound(t *testing.T) {
	if _, err := LoadPrivateKey("/nonexistent/path/to/key.pem"); err == nil {
		t.Error("expected error for nonexistent file")
	}
}

func TestParsePrivateKey_InvalidPEM(t *testing.T) {
	if _, err := ParsePrivateKey([]byte("not a pem file")); err == nil {
		t.Error("expected error for invalid PEM")
	}
}

func TestNewSigner(t *testing.T) {
	privateKey := generateKey(t)
	pkcs8Bytes, _ := x509.MarshalPKCS8PrivateKey(privateKey)
	path := writeKey(t, &pem.Block{Type: "PRIVATE KEY", Bytes: pkcs8Bytes})

	tests := []struct {
		name    string
		keyID   string
		path    string
		wantErr bool
	}{
		{"valid", "key-1", path, false},
		{"missing key ID", "", path, true},
		{"missing path", "key-1", "", true},
		{"bad path", "key-1", "/nonexistent.pem", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := NewSigner(tt.keyID, tt.path)
			if (err != nil) != tt.wantErr {
				t.Fatalf("NewSigner() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err == nil && s.KeyID != tt.keyID {
				t.Errorf("KeyID = %q, want %q", s.KeyID, tt.keyID)
			}
		})
	}
}

func TestSigner_TokenFor(t *testing.T) {
	privateKey := generateKey(t)
	fixed := time.UnixMilli(1700000000123)
	s := &Signer{KeyID: "key-1", PrivateKey: privateKey, now: func() time.Time { return fixed }}

	token, err := s.TokenFor(context.Background(), "user-42")
	if err != nil {
		t.Fatalf("TokenFor failed: %v", err)
	}
	if !strings.HasPrefix(token, "key-1.1700000000123.") {
		t.Errorf("token = %q, want key-1.1700000000123.<sig>", token)
	}

	parsed, err := VerifyToken(&privateKey.PublicKey, "user-42", token)
	if err != nil {
		t.Fatalf("VerifyToken failed: %v", err)
	}
	if parsed.KeyID != "key-1" {
		t.Errorf("KeyID = %q, want key-1", parsed.KeyID)
	}
	if !parsed.Timestamp.Equal(fixed) {
		t.Errorf("Timestamp = %v, want %v", parsed.Timestamp, fixed)
	}

	// Bound to the subject.
	if _, err := VerifyToken(&privateKey.PublicKey, "user-43", token); !errors.Is(err, ErrTokenSignature) {
		t.Errorf("VerifyToken(other subject) = %v, want ErrTokenSignature", err)
	}
}

func TestSigner_FreshTokens(t *testing.T) {
	s := &Signer{KeyID: "key-1", PrivateKey: generateKey(t)}

	a, err := s.TokenFor(context.Background(), "user-42")
	if err != nil {
		t.Fatalf("TokenFor failed: %v", err)
	}
	b, err := s.TokenFor(context.Background(), "user-42")
	if err != nil {
		t.Fatalf("TokenFor failed: %v", err)
	}
	if a == b {
		t.Error("expected distinct tokens per call")
	}
}

func TestSigner_Errors(t *testing.T) {
	s := &Signer{KeyID: "key-1", PrivateKey: generateKey(t)}

	if _, err := s.TokenFor(context.Background(), ""); !errors.Is(err, ErrNoSubject) {
		t.Errorf("empty subject: err = %v, want ErrNoSubject", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := s.TokenFor(ctx, "user-42"); !errors.Is(err, context.Canceled) {
		t.Errorf("cancelled ctx: err = %v, want context.Canceled", err)
	}
}

func TestVerifyToken_Malformed(t *testing.T) {
	pub := &generateKey(t).PublicKey

	tests := []string{
		"",
		"only-one-part",
		"key.notanumber.sig",
		"key.123.!!!",
		".123.abc",
	}
	for _, token := range tests {
		if _, err := VerifyToken(pub, "user", token); !errors.Is(err, ErrInvalidToken) {
			t.Errorf("VerifyToken(%q) = %v, want ErrInvalidToken", token, err)
		}
	}
}

type fakeIssuer struct {
	subjects []string
	err      error
}

func (f *fakeIssuer) IssueToken(ctx context.Context, subject string) (api.TokenResponse, error) {
	f.subjects = append(f.subjects, subject)
	if f.err != nil {
		return api.TokenResponse{}, f.err
	}
	return api.TokenResponse{Token: "issued-" + subject}, nil
}

func TestEndpoint_TokenFor(t *testing.T) {
	issuer := &fakeIssuer{}
	e := NewEndpoint(issuer)

	token, err := e.TokenFor(context.Background(), "user-42")
	if err != nil {
		t.Fatalf("TokenFor failed: %v", err)
	}
	if token != "issued-user-42" {
		t.Errorf("token = %q", token)
	}

	if _, err := e.TokenFor(context.Background(), ""); !errors.Is(err, ErrNoSubject) {
		t.Errorf("err = %v, want ErrNoSubject", err)
	}
	if len(issuer.subjects) != 1 {
		t.Errorf("issuer calls = %d, want 1", len(issuer.subjects))
	}

	issuer.err = &api.APIError{StatusCode: 503, Message: "unavailable"}
	_, err = e.TokenFor(context.Background(), "user-42")
	var apiErr *api.APIError
	if !errors.As(err, &apiErr) {
		t.Errorf("err = %v, want wrapped APIError", err)
	}
}

func TestStatic(t *testing.T) {
	s := Static{SubjectID: "user-1", TokenStr: "dev-token"}

	subject, ok := s.Subject()
	if !ok || subject != "user-1" {
		t.Errorf("Subject() = %q, %v", subject, ok)
	}
	token, err := s.Token(context.Background())
	if err != nil || token != "dev-token" {
		t.Errorf("Token() = %q, %v", token, err)
	}

	if _, ok := (Static{}).Subject(); ok {
		t.Error("empty Static should report no subject")
	}
	if _, err := (Static{}).Token(context.Background()); !errors.Is(err, ErrNoSubject) {
		t.Errorf("err = %v, want ErrNoSubject", err)
	}
}
