package authz

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/platinummonkey/gatehouse/pkg/httputil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestError_StatusAndCode(t *testing.T) {
	tests := []struct {
		err    *Error
		status int
		code   string
		oauth  bool
	}{
		{err: Unauthenticated("x"), status: http.StatusUnauthorized, code: "unauthenticated"},
		{err: BadRequest("x"), status: http.StatusBadRequest, code: "bad_request"},
		{err: Forbidden("x"), status: http.StatusForbidden, code: "forbidden"},
		{err: NotFound("x"), status: http.StatusNotFound, code: "not_found"},
		{err: InsufficientScope([]string{"A"}, []string{"B"}), status: http.StatusForbidden, code: "insufficient_scope", oauth: true},
		{err: UnauthorizedClient("x"), status: http.StatusForbidden, code: "unauthorized_client", oauth: true},
		{err: InvalidGrant("x"), status: http.StatusBadRequest, code: "invalid_grant", oauth: true},
		{err: &Error{}, status: http.StatusInternalServerError, code: "unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			assert.Equal(t, tt.status, tt.err.HTTPStatus())
			assert.Equal(t, tt.code, tt.err.Code())
			assert.Equal(t, tt.oauth, tt.err.IsOAuth())
		})
	}
}

func TestAsError_Wrapped(t *testing.T) {
	wrapped := fmt.Errorf("guard: %w", Forbidden("nope"))
	e, ok := AsError(wrapped)
	require.True(t, ok)
	assert.Equal(t, KindForbidden, e.Kind)

	_, ok = AsError(errors.New("plain"))
	assert.False(t, ok)
}

func TestWriteError(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteError(rec, InvalidGrant("refresh_token_revoked"))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	var oauthBody httputil.OAuthErrorResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&oauthBody))
	assert.Equal(t, httputil.OAuthErrorResponse{Error: "invalid_grant", ErrorDescription: "refresh_token_revoked"}, oauthBody)

	rec = httptest.NewRecorder()
	WriteError(rec, Forbidden("user id=1 lacks role.read"))
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Empty(t, rec.Header().Get("WWW-Authenticate"))
	var body httputil.ErrorResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, "user id=1 lacks role.read", body.Error)

	rec = httptest.NewRecorder()
	WriteError(rec, errors.New("secret detail"))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "secret detail")
}
