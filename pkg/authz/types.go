package authz

import (
	"fmt"
	"sort"
	"strings"

	"github.com/platinummonkey/gatehouse/pkg/scopes"
)

// Resource represents a resource type within a tenant
type Resource string

const (
	ResourceBooking      Resource = "booking"
	ResourceEventType    Resource = "eventType"
	ResourceRole         Resource = "role"
	ResourceTeam         Resource = "team"
	ResourceOrganization Resource = "organization"
	ResourceWebhook      Resource = "webhook"
	ResourceWorkflow     Resource = "workflow"
	ResourceInsights     Resource = "insights"
	ResourceAvailability Resource = "availability"
)

// Action represents an action that can be performed on a resource
type Action string

const (
	ActionCreate           Action = "create"
	ActionRead             Action = "read"
	ActionUpdate           Action = "update"
	ActionDelete           Action = "delete"
	ActionInvite           Action = "invite"
	ActionRemove           Action = "remove"
	ActionListMembers      Action = "listMembers"
	ActionChangeMemberRole Action = "changeMemberRole"
)

// Permission is a resource and action pair in dotted form, e.g. "role.read"
type Permission string

// NewPermission joins a resource and an action
func NewPermission(r Resource, a Action) Permission {
	return Permission(string(r) + "." + string(a))
}

// Resource returns the resource half
func (p Permission) Resource() Resource {
	r, _, _ := strings.Cut(string(p), ".")
	return Resource(r)
}

// Action returns the action half
func (p Permission) Action() Action {
	_, a, _ := strings.Cut(string(p), ".")
	return Action(a)
}

// ParsePermission validates the dotted form
func ParsePermission(s string) (Permission, error) {
	r, a, ok := strings.Cut(strings.TrimSpace(s), ".")
	if !ok || r == "" || a == "" || strings.Contains(a, ".") {
		return "", fmt.Errorf("invalid permission %q: expected resource.action", s)
	}
	return NewPermission(Resource(r), Action(a)), nil
}

// PermissionStrings flattens permissions for keys and messages
func PermissionStrings(perms []Permission) []string {
	out := make([]string, len(perms))
	for i, p := range perms {
		out[i] = string(p)
	}
	return out
}

// Role is a coarse membership role within a tenant
type Role string

const (
	RoleOwner  Role = "OWNER"
	RoleAdmin  Role = "ADMIN"
	RoleMember Role = "MEMBER"
)

// DefaultFallbackRoles satisfy any permission check for tenants that
// enabled PBAC before granting granular permissions
var DefaultFallbackRoles = []Role{RoleOwner, RoleAdmin}

// PBACFeature is the tenant feature flag that enables permission checks
const PBACFeature = "pbac"

// TenantKind distinguishes teams from organizations
type TenantKind string

const (
	TenantTeam         TenantKind = "team"
	TenantOrganization TenantKind = "organization"
)

// Tenant is the scoping boundary of a permission check
type Tenant struct {
	Kind TenantKind
	ID   int64
}

func (t Tenant) String() string {
	return fmt.Sprintf("%s with id=%d", t.Kind, t.ID)
}

// OAuthClient is a registered OAuth client and the permissions it was granted
type OAuthClient struct {
	ID          string
	Name        string
	Permissions scopes.Set
}

// OperationID names an endpoint or operation for requirement lookup
type OperationID string

// Requirement is what an operation demands of its caller
type Requirement struct {
	// Declared is false for operations without a scope annotation. Third-party
	// tokens are rejected by undeclared operations; an empty declared set
	// admits them.
	Declared bool
	// Permissions are the tenant PBAC permissions
	Permissions []Permission
	// Scopes are the OAuth permissions demanded of clients and third-party tokens
	Scopes scopes.Set
}

// Decision is the result of a tenant permission check
type Decision struct {
	Allowed bool
	// Checked is true only when fine-grained permissions were evaluated and granted
	Checked bool
	Missing []Permission
	// Cached is true when the grant was served from the permission cache
	Cached bool
}

func sortedPermissions(perms []Permission) []Permission {
	out := append([]Permission(nil), perms...)
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
