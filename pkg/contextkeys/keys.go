// Package contextkeys provides centralized context key definitions
//
// All context keys used across gatehouse are defined here so that packages
// can share request-scoped values without importing each other.
//
// USAGE PATTERN:
//
//	ctx = contextkeys.WithPrincipal(ctx, principal)
//	principal, _ := ctx.Value(contextkeys.PrincipalKey).(auth.Principal)
package contextkeys

import "context"

// Key is the type for context keys to prevent collisions
type Key string

const (
	// PrincipalKey contains auth.Principal
	// Set by: middleware.Authenticator
	// Required by: authz guards, rate limit middleware
	PrincipalKey Key = "principal"

	// TenantDomainKey contains domains.TenantDomain
	// Set by: domains.Middleware
	// Used by: org-scoped handlers
	TenantDomainKey Key = "tenant_domain"

	// AuthorizationCheckedKey contains *bool
	// Set by: authz guards
	// Used by: handlers that must know whether fine-grained checks ran
	AuthorizationCheckedKey Key = "authorization_checked"

	// RequestIDKey contains the request ID string
	// Set by: httputil.RequestIDMiddleware
	RequestIDKey Key = "request_id"

	// UserIDKey contains the authenticated user ID as a string
	// Set by: middleware.Authenticator for user principals
	UserIDKey Key = "user_id"
)

// WithPrincipal adds the authenticated principal to the context
func WithPrincipal(ctx context.Context, principal interface{}) context.Context {
	return context.WithValue(ctx, PrincipalKey, principal)
}

// WithTenantDomain adds the resolved tenant domain to the context
func WithTenantDomain(ctx context.Context, domain interface{}) context.Context {
	return context.WithValue(ctx, TenantDomainKey, domain)
}

// WithAuthorizationChecked installs a mutable flag that guards set once a
// decision has been made. Handlers read it with AuthorizationChecked.
func WithAuthorizationChecked(ctx context.Context) (context.Context, *bool) {
	flag := new(bool)
	return context.WithValue(ctx, AuthorizationCheckedKey, flag), flag
}

// SetAuthorizationChecked records whether fine-grained authorization ran.
// It returns false when no flag was installed on ctx.
func SetAuthorizationChecked(ctx context.Context, checked bool) bool {
	flag, ok := ctx.Value(AuthorizationCheckedKey).(*bool)
	if !ok || flag == nil {
		return false
	}
	*flag = checked
	return true
}

// AuthorizationChecked reports whether a guard explicitly checked and passed
// the request's permissions
func AuthorizationChecked(ctx context.Context) bool {
	flag, ok := ctx.Value(AuthorizationCheckedKey).(*bool)
	return ok && flag != nil && *flag
}

// WithRequestID adds request ID to the context
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, RequestIDKey, requestID)
}

// WithUserID adds user ID to the context
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, UserIDKey, userID)
}

// GetRequestID retrieves request ID from context
func GetRequestID(ctx context.Context) string {
	if requestID, ok := ctx.Value(RequestIDKey).(string); ok {
		return requestID
	}
	return ""
}

// GetUserID retrieves user ID from context
func GetUserID(ctx context.Context) string {
	if userID, ok := ctx.Value(UserIDKey).(string); ok {
		return userID
	}
	return ""
}
