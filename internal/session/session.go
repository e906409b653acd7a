// Package session decides whether a caller is anonymous or signed in.
//
// Tokens are issued and verified by the backend; this package only reads
// the claims it needs to pick a chat mode, so tokens are parsed without
// verifying their signature.
package session

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// AccessCookie is the cookie the backend stores the access token in.
const AccessCookie = "access_token"

// Mode selects which conversation path is active.
type Mode int

const (
	// ModeAnonymous streams answers through the relay into a local list.
	ModeAnonymous Mode = iota
	// ModeAuthenticated receives answers through the live feed.
	ModeAuthenticated
)

func (m Mode) String() string {
	if m == ModeAuthenticated {
		return "authenticated"
	}
	return "anonymous"
}

// Identity is what the gateway knows about a signed-in user.
type Identity struct {
	UserID    string
	ExpiresAt time.Time
	Token     string
}

// ErrNoUser is returned for tokens that carry no user id.
var ErrNoUser = errors.New("token has no user id")

var parser = jwt.NewParser()

// ParseToken reads the user id and expiry from an access token.
func ParseToken(token string) (Identity, error) {
	claims := jwt.MapClaims{}
	if _, _, err := parser.ParseUnverified(token, claims); err != nil {
		return Identity{}, fmt.Errorf("failed to parse access token: %w", err)
	}

	id := Identity{Token: token, UserID: userID(claims)}
	if id.UserID == "" {
		return Identity{}, ErrNoUser
	}
	if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
		id.ExpiresAt = exp.Time
	}
	return id, nil
}

// userID prefers the backend's user_id claim and falls back to sub.
func userID(claims jwt.MapClaims) string {
	switch v := claims["user_id"].(type) {
	case string:
		return v
	case float64:
		return fmt.Sprintf("%.0f", v)
	}
	if sub, err := claims.GetSubject(); err == nil {
		return sub
	}
	return ""
}

// Valid reports whether the identity is usable at now.
func (id Identity) Valid(now time.Time) bool {
	if id.UserID == "" {
		return false
	}
	return id.ExpiresAt.IsZero() || now.Before(id.ExpiresAt)
}

// ModeOf returns the chat mode for an identity.
func ModeOf(id Identity, now time.Time) Mode {
	if id.Valid(now) {
		return ModeAuthenticated
	}
	return ModeAnonymous
}

// FromRequest extracts an identity from the access cookie or a bearer
// header. It reports false when neither carries a usable token.
func FromRequest(r *http.Request) (Identity, bool) {
	token := ""
	if c, err := r.Cookie(AccessCookie); err == nil {
		token = c.Value
	}
	if token == "" {
		parts := strings.SplitN(r.Header.Get("Authorization"), " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "bearer") {
			token = parts[1]
		}
	}
	if token == "" {
		return Identity{}, false
	}

	id, err := ParseToken(token)
	if err != nil {
		return Identity{}, false
	}
	return id, true
}
