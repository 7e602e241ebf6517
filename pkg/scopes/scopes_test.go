package scopes

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScopeTable_IsBijective(t *testing.T) {
	seen := make(map[Scope]bool)
	for _, p := range AllPermissions {
		s, err := PermissionToScope(p)
		require.NoError(t, err, "permission %d", p)
		assert.False(t, seen[s], "scope %s mapped twice", s)
		seen[s] = true

		back, ok := ScopeToPermission(string(s))
		require.True(t, ok)
		assert.Equal(t, p, back)
	}
	assert.Len(t, seen, len(AllPermissions))
}

func TestPermissionToScope_Unknown(t *testing.T) {
	_, err := PermissionToScope(Permission(1 << 31))
	require.ErrorIs(t, err, ErrMissingScopeMapping)

	assert.Panics(t, func() { MustScope(Permission(1 << 30)) })
}

func TestScopeToPermission_LegacyAndUnknown(t *testing.T) {
	tests := []string{"READ_BOOKING", "READ_PROFILE", "NOT_A_SCOPE", ""}
	for _, s := range tests {
		t.Run(s, func(t *testing.T) {
			_, ok := ScopeToPermission(s)
			assert.False(t, ok)
		})
	}
	assert.True(t, IsLegacy("READ_BOOKING"))
	assert.False(t, IsLegacy("BOOKING_READ"))
}

func TestResolveTokenPermissions(t *testing.T) {
	tests := []struct {
		name     string
		scopes   []string
		expected Set
	}{
		{name: "empty", scopes: nil, expected: 0},
		{name: "legacy only", scopes: []string{"READ_BOOKING", "READ_PROFILE"}, expected: 0},
		{name: "mixed", scopes: []string{"READ_BOOKING", "BOOKING_WRITE", "bogus"}, expected: NewSet(BookingWrite)},
		{name: "duplicates", scopes: []string{"TEAM_READ", "TEAM_READ", "ORG_WRITE"}, expected: NewSet(TeamRead, OrgWrite)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ResolveTokenPermissions(tt.scopes)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestHasScopeExpansion(t *testing.T) {
	tests := []struct {
		name      string
		current   []Scope
		requested []Scope
		expected  bool
	}{
		{name: "identical", current: []Scope{"BOOKING_READ", "TEAM_WRITE"}, requested: []Scope{"BOOKING_READ", "TEAM_WRITE"}, expected: false},
		{name: "write covers read", current: []Scope{"BOOKING_WRITE"}, requested: []Scope{"BOOKING_READ"}, expected: false},
		{name: "read does not cover write", current: []Scope{"BOOKING_READ"}, requested: []Scope{"BOOKING_WRITE"}, expected: true},
		{name: "empty requested", current: []Scope{"BOOKING_READ"}, requested: nil, expected: false},
		{name: "empty both", current: nil, requested: nil, expected: false},
		{name: "subset", current: []Scope{"BOOKING_READ", "TEAM_READ", "ORG_WRITE"}, requested: []Scope{"TEAM_READ"}, expected: false},
		{name: "unrelated resource", current: []Scope{"BOOKING_WRITE"}, requested: []Scope{"WEBHOOK_READ"}, expected: true},
		{name: "write on other resource", current: []Scope{"TEAM_WRITE"}, requested: []Scope{"BOOKING_READ"}, expected: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, HasScopeExpansion(tt.current, tt.requested))
		})
	}
}

func TestHasScopeExpansion_Properties(t *testing.T) {
	for _, p := range AllPermissions {
		s := MustScope(p)
		assert.False(t, HasScopeExpansion([]Scope{s}, []Scope{s}), "reflexive for %s", s)
	}

	resources := []struct{ read, write Permission }{
		{AppsRead, AppsWrite}, {BookingRead, BookingWrite}, {ScheduleRead, ScheduleWrite},
		{ProfileRead, ProfileWrite}, {EventTypeRead, EventTypeWrite}, {TeamRead, TeamWrite},
		{OrgRead, OrgWrite}, {RoleRead, RoleWrite}, {WebhookRead, WebhookWrite},
	}
	for _, r := range resources {
		read, write := MustScope(r.read), MustScope(r.write)
		assert.False(t, HasScopeExpansion([]Scope{write}, []Scope{read}), "%s demoted to %s", write, read)
		assert.True(t, HasScopeExpansion([]Scope{read}, []Scope{write}), "%s promoted to %s", read, write)
	}
}

func TestSet(t *testing.T) {
	s := NewSet(BookingRead, BookingWrite, BookingRead)
	assert.Equal(t, 2, s.Len())
	assert.True(t, s.Has(BookingRead))
	assert.False(t, s.Has(TeamRead))
	assert.True(t, s.ContainsAll(NewSet(BookingWrite)))
	assert.False(t, s.ContainsAll(NewSet(BookingWrite, TeamRead)))
	assert.True(t, s.ContainsAll(0))

	missing := s.Missing(NewSet(BookingRead, TeamRead, OrgWrite))
	assert.Equal(t, []Permission{TeamRead, OrgWrite}, missing.Slice())
	assert.Equal(t, []string{"TEAM_READ", "ORG_WRITE"}, missing.ScopeStrings())
	assert.True(t, Set(0).IsEmpty())
}

func TestParseScopes(t *testing.T) {
	assert.Equal(t, []string{"BOOKING_READ", "TEAM_WRITE"}, ParseScopes(" BOOKING_READ  TEAM_WRITE "))
	assert.Equal(t, []string{"A", "B"}, ParseScopes("A,B"))
	assert.Empty(t, ParseScopes("   "))
}

func TestPermission_Names(t *testing.T) {
	assert.Equal(t, "EVENT_TYPE_WRITE", EventTypeWrite.String())
	assert.Equal(t, "event type write", EventTypeWrite.DisplayName())
	assert.Equal(t, "Permission(0)", Permission(0).String())
}
