package authz

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/platinummonkey/gatehouse/pkg/auth"
	"github.com/platinummonkey/gatehouse/pkg/httputil"
)

// Kind classifies an authorization failure
type Kind int

const (
	KindUnauthenticated Kind = iota + 1
	KindBadRequest
	KindForbidden
	KindNotFound
	KindInsufficientScope
	KindUnauthorizedClient
	KindInvalidGrant
)

func (k Kind) String() string {
	switch k {
	case KindUnauthenticated:
		return "unauthenticated"
	case KindBadRequest:
		return "bad_request"
	case KindForbidden:
		return "forbidden"
	case KindNotFound:
		return "not_found"
	case KindInsufficientScope:
		return auth.CodeInsufficientScope
	case KindUnauthorizedClient:
		return auth.CodeUnauthorizedClient
	case KindInvalidGrant:
		return auth.CodeInvalidGrant
	default:
		return "unknown"
	}
}

// Error is a request-fatal authorization failure
type Error struct {
	Kind    Kind
	Message string
	// Missing and Presented are set for insufficient scope failures
	Missing   []string
	Presented []string
}

func (e *Error) Error() string {
	return e.Message
}

// Code is the machine readable code of the failure
func (e *Error) Code() string {
	return e.Kind.String()
}

// HTTPStatus maps the kind to a response status
func (e *Error) HTTPStatus() int {
	switch e.Kind {
	case KindUnauthenticated:
		return http.StatusUnauthorized
	case KindBadRequest, KindInvalidGrant:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindForbidden, KindInsufficientScope, KindUnauthorizedClient:
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

// IsOAuth reports whether the failure uses the OAuth error body
func (e *Error) IsOAuth() bool {
	switch e.Kind {
	case KindInsufficientScope, KindUnauthorizedClient, KindInvalidGrant:
		return true
	}
	return false
}

// Unauthenticated means no principal is attached to the request
func Unauthenticated(message string) *Error {
	return &Error{Kind: KindUnauthenticated, Message: message}
}

// BadRequest means the request is malformed, e.g. a missing tenant id
func BadRequest(message string) *Error {
	return &Error{Kind: KindBadRequest, Message: message}
}

// Forbidden means the principal lacks a permission
func Forbidden(message string) *Error {
	return &Error{Kind: KindForbidden, Message: message}
}

// NotFound means a referenced tenant does not exist
func NotFound(message string) *Error {
	return &Error{Kind: KindNotFound, Message: message}
}

// UnauthorizedClient means the OAuth client may not use this grant or endpoint
func UnauthorizedClient(message string) *Error {
	return &Error{Kind: KindUnauthorizedClient, Message: message}
}

// InvalidGrant means a presented grant such as a refresh token is invalid
func InvalidGrant(message string) *Error {
	return &Error{Kind: KindInvalidGrant, Message: message}
}

// InsufficientScope means a third-party token lacks required scopes
func InsufficientScope(missing, presented []string) *Error {
	var msg string
	if len(missing) == 0 {
		msg = "insufficient_scope: this endpoint does not accept third-party access tokens"
	} else {
		msg = fmt.Sprintf("insufficient_scope: token is missing required scopes: %s. Token scopes: %s",
			strings.Join(missing, ", "), strings.Join(presented, ", "))
	}
	return &Error{Kind: KindInsufficientScope, Message: msg, Missing: missing, Presented: presented}
}

// AsError unwraps an *Error from err
func AsError(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// WriteError renders err. Authorization errors keep their status and
// message; anything else is an internal error whose detail is not exposed.
func WriteError(w http.ResponseWriter, err error) {
	e, ok := AsError(err)
	if !ok {
		httputil.WriteInternalError(w)
		return
	}

	if e.Kind == KindInsufficientScope {
		w.Header().Set("WWW-Authenticate", fmt.Sprintf(`Bearer error=%q, error_description=%q`, auth.CodeInsufficientScope, e.Message))
	}
	if e.IsOAuth() {
		httputil.WriteOAuthError(w, e.HTTPStatus(), e.Code(), e.Message)
		return
	}
	httputil.WriteErrorMessage(w, e.HTTPStatus(), e.Message)
}
