package auth

import "context"

// Static is a fixed subject and token. Useful for development servers
// that accept long-lived tokens.
type Static struct {
	SubjectID string
	TokenStr  string
}

// Subject returns the fixed subject.
func (s Static) Subject() (string, bool) {
	return s.SubjectID, s.SubjectID != ""
}

// Token returns the fixed token.
func (s Static) Token(ctx context.Context) (string, error) {
	if s.SubjectID == "" {
		return "", ErrNoSubject
	}
	return s.TokenStr, nil
}

// TokenFor returns the fixed token regardless of subject.
func (s Static) TokenFor(ctx context.Context, subject string) (string, error) {
	return s.TokenStr, nil
}
