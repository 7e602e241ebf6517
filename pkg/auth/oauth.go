package auth

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/platinummonkey/gatehouse/pkg/httputil"
	"github.com/platinummonkey/gatehouse/pkg/observability"
	"github.com/platinummonkey/gatehouse/pkg/scopes"
	"github.com/sirupsen/logrus"
)

// OAuth error codes (RFC 6749 section 5.2 and RFC 6750 section 3.1)
const (
	CodeInvalidRequest       = "invalid_request"
	CodeInvalidGrant         = "invalid_grant"
	CodeInvalidScope         = "invalid_scope"
	CodeUnauthorizedClient   = "unauthorized_client"
	CodeUnsupportedGrantType = "unsupported_grant_type"
	CodeInsufficientScope    = "insufficient_scope"
	CodeServerError          = "server_error"
)

// TokenHandler serves the refresh_token grant of the OAuth token endpoint
type TokenHandler struct {
	rotator *Rotator
	logger  logrus.FieldLogger
}

// NewTokenHandler creates a token endpoint handler
func NewTokenHandler(rotator *Rotator, logger logrus.FieldLogger) *TokenHandler {
	if logger == nil {
		logger = observability.NopLogger()
	}
	return &TokenHandler{rotator: rotator, logger: logger}
}

// ServeHTTP handles POST /oauth/token
func (h *TokenHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		httputil.WriteOAuthError(w, http.StatusBadRequest, CodeInvalidRequest, "malformed form body")
		return
	}

	if grantType := r.PostForm.Get("grant_type"); grantType != "refresh_token" {
		httputil.WriteOAuthError(w, http.StatusBadRequest, CodeUnsupportedGrantType, "grant_type must be refresh_token")
		return
	}

	refreshToken := r.PostForm.Get("refresh_token")
	clientID := r.PostForm.Get("client_id")
	if refreshToken == "" || clientID == "" {
		httputil.WriteOAuthError(w, http.StatusBadRequest, CodeInvalidRequest, "refresh_token and client_id are required")
		return
	}

	pair, err := h.rotator.Rotate(r.Context(), refreshToken, clientID, scopes.ParseScopes(r.PostForm.Get("scope")))
	switch {
	case err == nil:
	case errors.Is(err, ErrRefreshTokenReused):
		httputil.WriteOAuthError(w, http.StatusBadRequest, CodeInvalidGrant, ErrRefreshTokenReused.Error())
		return
	case errors.Is(err, ErrInvalidToken):
		httputil.WriteOAuthError(w, http.StatusBadRequest, CodeInvalidGrant, "refresh token is invalid or expired")
		return
	case errors.Is(err, ErrClientMismatch):
		httputil.WriteOAuthError(w, http.StatusBadRequest, CodeUnauthorizedClient, err.Error())
		return
	case errors.Is(err, ErrScopeExpansion):
		httputil.WriteOAuthError(w, http.StatusBadRequest, CodeInvalidScope, err.Error())
		return
	default:
		observability.FromContext(r.Context(), h.logger).WithError(err).Error("refresh token rotation failed")
		httputil.WriteOAuthError(w, http.StatusInternalServerError, CodeServerError, "token rotation unavailable")
		return
	}

	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(pair); err != nil {
		h.logger.WithError(err).Warn("failed to write token response")
	}
}
