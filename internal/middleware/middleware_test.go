package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reelrules/regbot-gateway/internal/model"
	"github.com/reelrules/regbot-gateway/internal/session"
	"github.com/reelrules/regbot-gateway/pkg/logger"
)

func token(t *testing.T, secret string, claims jwt.Claims) string {
	t.Helper()
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return s
}

func TestValidateMessageContent(t *testing.T) {
	assert.NoError(t, ValidateMessageContent("what is the bag limit for walleye?"))
	assert.ErrorIs(t, ValidateMessageContent(""), model.ErrEmptyMessage)
	assert.ErrorIs(t, ValidateMessageContent("   \n"), model.ErrInvalidRequest)
	assert.ErrorIs(t, ValidateMessageContent(strings.Repeat("a", maxMessageLength+1)), model.ErrInvalidRequest)
	assert.ErrorIs(t, ValidateMessageContent("bad \xff"), model.ErrInvalidRequest)
}

func TestValidateConversationID(t *testing.T) {
	assert.NoError(t, ValidateConversationID("3f1c9a"))
	assert.NoError(t, ValidateConversationID("0190c0de-7e57-7000-8000-000000000001"))

	for _, id := range []string{"", "a/b", "a?b", strings.Repeat("x", maxConversationIDLength+1)} {
		err := ValidateConversationID(id)
		assert.ErrorIs(t, err, model.ErrInvalidRequest, id)
		assert.Equal(t, http.StatusBadRequest, model.StatusCode(err))
	}
}

func TestIdentity(t *testing.T) {
	var got string
	h := Identity(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = GetUserID(r.Context())
	}))

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.AddCookie(&http.Cookie{Name: session.AccessCookie, Value: token(t, "any", jwt.MapClaims{"user_id": "17"})})
	h.ServeHTTP(httptest.NewRecorder(), r)
	assert.Equal(t, "17", got)

	got = "unset"
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, "", got)
}

func TestAuthAndRequireScope(t *testing.T) {
	const secret = "bridge-secret"
	h := Auth(secret)(RequireScope(ScopeFeedPublish)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(GetUserID(r.Context())))
	})))

	tests := []struct {
		name   string
		header string
		status int
	}{
		{"missing", "", http.StatusUnauthorized},
		{"wrong scheme", "Basic abc", http.StatusUnauthorized},
		{"wrong secret", "Bearer " + token(t, "other", Claims{Scopes: []string{ScopeFeedPublish}}), http.StatusUnauthorized},
		{"no scope", "Bearer " + token(t, secret, Claims{}), http.StatusForbidden},
		{
			"ok",
			"Bearer " + token(t, secret, Claims{
				RegisteredClaims: jwt.RegisteredClaims{Subject: "hasura", ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour))},
				Scopes:           []string{ScopeFeedPublish},
			}),
			http.StatusOK,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodPost, "/", nil)
			if tt.header != "" {
				r.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, r)
			assert.Equal(t, tt.status, rec.Code)
			if tt.status == http.StatusOK {
				assert.Equal(t, "hasura", rec.Body.String())
			}
		})
	}
}

func TestLogging_PreservesFlusherAndCorrelationID(t *testing.T) {
	var flushed bool
	var correlationID string
	h := Logging(logger.Nop())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		correlationID = GetCorrelationID(r.Context())
		f, ok := w.(http.Flusher)
		require.True(t, ok)
		w.Write([]byte("data"))
		f.Flush()
		flushed = true
	}))

	rec := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set("X-Correlation-ID", "corr-1")
	h.ServeHTTP(rec, r)

	assert.True(t, flushed)
	assert.True(t, rec.Flushed)
	assert.Equal(t, "corr-1", correlationID)
	assert.Equal(t, "corr-1", rec.Header().Get("X-Correlation-ID"))
}

func TestRateLimit(t *testing.T) {
	h := RateLimit(2, time.Minute)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		r := httptest.NewRequest(http.MethodPost, "/", nil)
		r.RemoteAddr = "10.0.0.1:5555"
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, r)
		codes = append(codes, rec.Code)
	}
	assert.Equal(t, []int{200, 200, http.StatusTooManyRequests}, codes)

	r := httptest.NewRequest(http.MethodPost, "/", nil)
	r.RemoteAddr = "10.0.0.2:5555"
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, r)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestSecurityHeaders(t *testing.T) {
	rec := httptest.NewRecorder()
	SecurityHeaders(http.NotFoundHandler()).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"))
}
