// Package auth maps bearer tokens to user identities.
package auth

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/nadzzz/qia/internal/task"
)

// ErrUnauthenticated is returned for a missing or unknown token.
var ErrUnauthenticated = errors.New("unauthenticated")

// Authenticator resolves a token to the user it belongs to.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (task.UserID, error)
}

// StaticTokens authenticates against a fixed token to user table.
type StaticTokens struct {
	tokens map[string]task.UserID
}

// NewStaticTokens builds an authenticator from config (token -> user).
func NewStaticTokens(tokens map[string]string) *StaticTokens {
	m := make(map[string]task.UserID, len(tokens))
	for tok, user := range tokens {
		if tok != "" && user != "" {
			m[tok] = task.UserID(user)
		}
	}
	return &StaticTokens{tokens: m}
}

// Authenticate implements Authenticator. Tokens are compared in constant
// time.
func (s *StaticTokens) Authenticate(_ context.Context, token string) (task.UserID, error) {
	if token == "" {
		return "", ErrUnauthenticated
	}
	var found task.UserID
	for tok, user := range s.tokens {
		if subtle.ConstantTimeCompare([]byte(tok), []byte(token)) == 1 {
			found = user
		}
	}
	if found == "" {
		return "", ErrUnauthenticated
	}
	return found, nil
}

// Open treats the token itself as the user identity. It is used when no
// tokens are configured, for local development.
type Open struct{}

// Authenticate implements Authenticator.
func (Open) Authenticate(_ context.Context, token string) (task.UserID, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return "", ErrUnauthenticated
	}
	return task.UserID(token), nil
}

// New returns StaticTokens when tokens are configured and Open otherwise.
func New(tokens map[string]string) Authenticator {
	if len(tokens) == 0 {
		return Open{}
	}
	return NewStaticTokens(tokens)
}

// CheckIdentity authenticates token and verifies it belongs to claimed.
func CheckIdentity(ctx context.Context, a Authenticator, token string, claimed task.UserID) error {
	user, err := a.Authenticate(ctx, token)
	if err != nil {
		return fmt.Errorf("%w: %v", task.ErrAuthMismatch, err)
	}
	if user != claimed {
		return fmt.Errorf("%w: token belongs to another user", task.ErrAuthMismatch)
	}
	return nil
}

// BearerToken extracts the token of an "Authorization: Bearer" header.
func BearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if len(h) > 7 && strings.EqualFold(h[:7], "bearer ") {
		return strings.TrimSpace(h[7:])
	}
	return ""
}

type userKey struct{}

// WithUser returns a context carrying the authenticated user.
func WithUser(ctx context.Context, user task.UserID) context.Context {
	return context.WithValue(ctx, userKey{}, user)
}

// UserFrom returns the authenticated user stored in ctx.
func UserFrom(ctx context.Context) (task.UserID, bool) {
	u, ok := ctx.Value(userKey{}).(task.UserID)
	return u, ok && u != ""
}
