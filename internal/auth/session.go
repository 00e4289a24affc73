package auth

import (
	"context"
	"sync"

	"github.com/rickgao/eventlink/internal/connection"
)

var (
	_ connection.CredentialProvider = (*Session)(nil)
	_ connection.SubjectWatcher     = (*Session)(nil)
	_ connection.CredentialProvider = Static{}
)

// Session holds the current identity and mints a token for it on demand.
// Identity changes are published on SubjectChanges, latest value wins.
type Session struct {
	source TokenSource

	mu      sync.Mutex
	subject string
	changes chan string
}

// NewSession creates a Session with an initial subject, which may be empty.
func NewSession(source TokenSource, subject string) *Session {
	return &Session{
		source:  source,
		subject: subject,
		changes: make(chan string, 1),
	}
}

// Subject returns the current subject.
func (s *Session) Subject() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.subject, s.subject != ""
}

// Token returns a fresh token for the current subject.
func (s *Session) Token(ctx context.Context) (string, error) {
	subject, ok := s.Subject()
	if !ok {
		return "", ErrNoSubject
	}
	return s.source.TokenFor(ctx, subject)
}

// Set replaces the identity. Setting the current subject is a no-op.
func (s *Session) Set(subject string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if subject == s.subject {
		return
	}
	s.subject = subject

	// Drop an unconsumed change so the watcher sees the latest identity.
	select {
	case <-s.changes:
	default:
	}
	s.changes <- subject
}

// Clear removes the identity.
func (s *Session) Clear() {
	s.Set("")
}

// SubjectChanges reports identity changes. An empty value means cleared.
func (s *Session) SubjectChanges() <-chan string {
	return s.changes
}
