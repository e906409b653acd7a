package handler

import (
	"io"
	"net/http"

	"go.uber.org/zap"

	"github.com/reelrules/regbot-gateway/internal/middleware"
	"github.com/reelrules/regbot-gateway/internal/model"
	"github.com/reelrules/regbot-gateway/internal/upstream"
	"github.com/reelrules/regbot-gateway/pkg/logger"
)

// Backend auth routes, relative to the upstream API root.
const (
	loginPath    = "/auth/login/"
	registerPath = "/auth/register/"
	logoutPath   = "/auth/logout/"
	refreshPath  = "/auth/token/refresh/"
	profilePath  = "/auth/profile/"
)

// forwardedHeaders are copied from the browser request to the backend.
var forwardedHeaders = []string{"Content-Type", "Cookie", "Authorization", "Accept"}

// AuthHandler relays auth calls so the backend's cookies land on the
// gateway origin.
type AuthHandler struct {
	upstream *upstream.Client
	logger   *logger.Logger
}

// NewAuthHandler creates a new auth handler.
func NewAuthHandler(client *upstream.Client, log *logger.Logger) *AuthHandler {
	return &AuthHandler{
		upstream: client,
		logger:   log.Named("auth"),
	}
}

// Login handles POST /api/auth/login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	h.forward(w, r, "auth_login", loginPath)
}

// Register handles POST /api/auth/register
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	h.forward(w, r, "auth_register", registerPath)
}

// Logout handles POST /api/auth/logout
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	h.forward(w, r, "auth_logout", logoutPath)
}

// Refresh handles POST /api/auth/refresh
func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	h.forward(w, r, "auth_refresh", refreshPath)
}

// Profile handles GET /api/auth/profile
func (h *AuthHandler) Profile(w http.ResponseWriter, r *http.Request) {
	h.forward(w, r, "auth_profile", profilePath)
}

func (h *AuthHandler) forward(w http.ResponseWriter, r *http.Request, endpoint, path string) {
	ctx := r.Context()

	header := http.Header{}
	for _, k := range forwardedHeaders {
		if v := r.Header.Get(k); v != "" {
			header.Set(k, v)
		}
	}

	var body io.Reader
	if r.Method != http.MethodGet {
		body = io.LimitReader(r.Body, maxRequestBody)
	}

	resp, err := h.upstream.Do(ctx, endpoint, r.Method, path, body, header)
	if err != nil {
		h.logger.WithRequest(middleware.GetCorrelationID(ctx), middleware.GetUserID(ctx)).
			Warn("auth relay failed", zap.String("endpoint", endpoint), zap.Error(err))
		writeError(w, model.StatusCode(err), upstreamErrorMessage(err))
		return
	}
	defer resp.Body.Close()

	upstream.CopySetCookies(w.Header(), resp.Header)
	if ct := resp.Header.Get("Content-Type"); ct != "" {
		w.Header().Set("Content-Type", ct)
	}
	w.WriteHeader(resp.StatusCode)
	io.Copy(w, resp.Body)
}
