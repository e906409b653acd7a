package session

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func signed(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("backend-secret"))
	require.NoError(t, err)
	return token
}

func TestParseToken(t *testing.T) {
	exp := time.Now().Add(time.Hour).Truncate(time.Second)

	id, err := ParseToken(signed(t, jwt.MapClaims{"user_id": float64(42), "exp": exp.Unix()}))
	require.NoError(t, err)
	assert.Equal(t, "42", id.UserID)
	assert.True(t, id.ExpiresAt.Equal(exp))

	id, err = ParseToken(signed(t, jwt.MapClaims{"sub": "angler-7"}))
	require.NoError(t, err)
	assert.Equal(t, "angler-7", id.UserID)
	assert.True(t, id.ExpiresAt.IsZero())

	_, err = ParseToken(signed(t, jwt.MapClaims{"scope": "read"}))
	assert.ErrorIs(t, err, ErrNoUser)

	_, err = ParseToken("not-a-jwt")
	assert.Error(t, err)
}

func TestModeOf(t *testing.T) {
	now := time.Now()

	assert.Equal(t, ModeAnonymous, ModeOf(Identity{}, now))
	assert.Equal(t, ModeAuthenticated, ModeOf(Identity{UserID: "1"}, now))
	assert.Equal(t, ModeAuthenticated, ModeOf(Identity{UserID: "1", ExpiresAt: now.Add(time.Minute)}, now))
	assert.Equal(t, ModeAnonymous, ModeOf(Identity{UserID: "1", ExpiresAt: now.Add(-time.Minute)}, now))
	assert.Equal(t, "authenticated", ModeAuthenticated.String())
}

func TestFromRequest(t *testing.T) {
	token := signed(t, jwt.MapClaims{"user_id": "9"})

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	_, ok := FromRequest(r)
	assert.False(t, ok)

	r.AddCookie(&http.Cookie{Name: AccessCookie, Value: token})
	id, ok := FromRequest(r)
	require.True(t, ok)
	assert.Equal(t, "9", id.UserID)

	r = httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set("Authorization", "Bearer "+token)
	id, ok = FromRequest(r)
	require.True(t, ok)
	assert.Equal(t, "9", id.UserID)

	r = httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set("Authorization", "Bearer garbage")
	_, ok = FromRequest(r)
	assert.False(t, ok)
}
