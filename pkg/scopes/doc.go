// Package scopes maps wire-level OAuth scope names to the internal numeric
// permissions they grant.
//
// Every permission has exactly one canonical scope (BOOKING_READ, BOOKING_WRITE, ...)
// and every canonical scope maps back to one permission. Legacy scope names issued
// before granular scopes resolve to no permission at all; a token carrying only
// legacy scopes is treated as unrestricted by callers.
//
// Scope expansion:
//
//	scopes.HasScopeExpansion(
//		[]scopes.Scope{"BOOKING_WRITE"},
//		[]scopes.Scope{"BOOKING_READ"},
//	) // false: write implies read
package scopes
