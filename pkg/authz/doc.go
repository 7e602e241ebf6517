// Package authz decides whether an authenticated principal may perform an
// operation.
//
// Two independent checks exist.
//
// Tenant checks (Engine.Decide and Engine.Require) evaluate the PBAC
// permissions an operation requires within a team or organization:
//
//	decision, err := engine.Decide(ctx, authz.TenantCheck{
//		Principal:   principal,
//		Tenant:      &authz.Tenant{Kind: authz.TenantOrganization, ID: 1},
//		Permissions: []authz.Permission{"role.read"},
//	})
//
// Tenants that have not enabled PBAC, and operations that require no
// permissions, are allowed with Checked=false. Users holding a fallback
// role (OWNER or ADMIN) satisfy every permission. Granted results are
// cached for the permission cache TTL; denials always hit the store.
//
// Soft callers inspect the Decision; hard callers use Require, which turns a
// denial into a Forbidden error naming the user, the tenant and the
// missing permissions.
//
// Wire-level checks (Engine.AuthorizeRequest) apply to how the caller
// authenticated: first-party sessions and API keys pass, OAuth clients must
// hold the operation's scopes, and third-party tokens must both be admitted
// by the operation and carry its scopes.
//
// Operation requirements live in a Registry, typically loaded from YAML at
// startup. Guard adapts both checks to HTTP middleware.
package authz
