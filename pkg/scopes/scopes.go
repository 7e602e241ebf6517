package scopes

import (
	"errors"
	"fmt"
	"strings"
)

// Permission is the internal numeric identifier of an OAuth-grantable permission.
// Each permission occupies one bit so a set of them fits in a Set bitmask.
type Permission uint32

const (
	AppsRead Permission = 1 << iota
	AppsWrite
	BookingRead
	BookingWrite
	ScheduleRead
	ScheduleWrite
	ProfileRead
	ProfileWrite
	EventTypeRead
	EventTypeWrite
	TeamRead
	TeamWrite
	OrgRead
	OrgWrite
	RoleRead
	RoleWrite
	WebhookRead
	WebhookWrite
)

// AllPermissions lists every known permission in bit order
var AllPermissions = []Permission{
	AppsRead, AppsWrite,
	BookingRead, BookingWrite,
	ScheduleRead, ScheduleWrite,
	ProfileRead, ProfileWrite,
	EventTypeRead, EventTypeWrite,
	TeamRead, TeamWrite,
	OrgRead, OrgWrite,
	RoleRead, RoleWrite,
	WebhookRead, WebhookWrite,
}

// Scope is the wire-level name a token presents for a permission, e.g. BOOKING_READ
type Scope string

const (
	readSuffix  = "_READ"
	writeSuffix = "_WRITE"
)

// ErrMissingScopeMapping is returned when a known permission has no scope name.
// It always indicates a programming error in the scope table.
var ErrMissingScopeMapping = errors.New("scopes: permission has no scope mapping")

var permissionScopes = map[Permission]Scope{
	AppsRead:       "APPS_READ",
	AppsWrite:      "APPS_WRITE",
	BookingRead:    "BOOKING_READ",
	BookingWrite:   "BOOKING_WRITE",
	ScheduleRead:   "SCHEDULE_READ",
	ScheduleWrite:  "SCHEDULE_WRITE",
	ProfileRead:    "PROFILE_READ",
	ProfileWrite:   "PROFILE_WRITE",
	EventTypeRead:  "EVENT_TYPE_READ",
	EventTypeWrite: "EVENT_TYPE_WRITE",
	TeamRead:       "TEAM_READ",
	TeamWrite:      "TEAM_WRITE",
	OrgRead:        "ORG_READ",
	OrgWrite:       "ORG_WRITE",
	RoleRead:       "ROLE_READ",
	RoleWrite:      "ROLE_WRITE",
	WebhookRead:    "WEBHOOK_READ",
	WebhookWrite:   "WEBHOOK_WRITE",
}

// legacyScopes were issued before granular scopes existed. They resolve to no
// permission, which callers interpret as unrestricted access.
var legacyScopes = map[Scope]struct{}{
	"READ_BOOKING": {},
	"READ_PROFILE": {},
}

var scopePermissions = invert(permissionScopes)

func invert(m map[Permission]Scope) map[Scope]Permission {
	out := make(map[Scope]Permission, len(m))
	for p, s := range m {
		if _, dup := out[s]; dup {
			panic(fmt.Sprintf("scopes: duplicate scope name %q", s))
		}
		out[s] = p
	}
	return out
}

// ScopeToPermission maps a scope string to its permission. Unknown and legacy
// scopes return false, meaning the scope does not restrict anything.
func ScopeToPermission(scope string) (Permission, bool) {
	p, ok := scopePermissions[Scope(scope)]
	return p, ok
}

// PermissionToScope returns the canonical scope name for a permission
func PermissionToScope(p Permission) (Scope, error) {
	s, ok := permissionScopes[p]
	if !ok {
		return "", fmt.Errorf("%w: %d", ErrMissingScopeMapping, uint32(p))
	}
	return s, nil
}

// MustScope is PermissionToScope for call sites where a missing entry is a bug.
func MustScope(p Permission) Scope {
	s, err := PermissionToScope(p)
	if err != nil {
		panic(err)
	}
	return s
}

// IsLegacy reports whether scope is a pre-granular scope name
func IsLegacy(scope string) bool {
	_, ok := legacyScopes[Scope(scope)]
	return ok
}

// ResolveTokenPermissions maps the scopes carried by a token to a permission set.
// Unmapped scopes are dropped; an empty result means the token only carries
// legacy or unknown scopes and must be treated as unrestricted.
func ResolveTokenPermissions(tokenScopes []string) Set {
	var set Set
	for _, s := range tokenScopes {
		if p, ok := ScopeToPermission(s); ok {
			set = set.Add(p)
		}
	}
	return set
}

// HasScopeExpansion reports whether requested grants anything current does not.
// A requested X_READ is covered by an existing X_WRITE; the reverse never holds.
func HasScopeExpansion(current, requested []Scope) bool {
	have := make(map[Scope]struct{}, len(current))
	for _, s := range current {
		have[s] = struct{}{}
	}

	for _, s := range requested {
		if _, ok := have[s]; ok {
			continue
		}
		if strings.HasSuffix(string(s), readSuffix) {
			write := Scope(strings.TrimSuffix(string(s), readSuffix) + writeSuffix)
			if _, ok := have[write]; ok {
				continue
			}
		}
		return true
	}
	return false
}

// ParseScopes splits a space or comma separated scope claim
func ParseScopes(raw string) []string {
	fields := strings.FieldsFunc(raw, func(r rune) bool {
		return r == ' ' || r == ','
	})
	out := fields[:0]
	for _, f := range fields {
		if f = strings.TrimSpace(f); f != "" {
			out = append(out, f)
		}
	}
	return out
}

// String returns the scope name, or a numeric form for unmapped values
func (p Permission) String() string {
	if s, ok := permissionScopes[p]; ok {
		return string(s)
	}
	return fmt.Sprintf("Permission(%d)", uint32(p))
}

// DisplayName returns a human readable label such as "booking write"
func (p Permission) DisplayName() string {
	s, ok := permissionScopes[p]
	if !ok {
		return p.String()
	}
	return strings.ToLower(strings.ReplaceAll(string(s), "_", " "))
}
