// Package httputil provides HTTP helpers shared by the gatehouse handlers:
// JSON and OAuth-style error responses, path and header parsing, and the
// request id, logging and recovery middleware.
//
//	httputil.WriteOAuthError(w, http.StatusForbidden, "insufficient_scope", desc)
//	orgID, ok, err := httputil.ParsePathInt64(r, "orgId")
package httputil
