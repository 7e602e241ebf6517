package authz

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/platinummonkey/gatehouse/pkg/scopes"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const registryYAML = `
operations:
  roles.list:
    permissions: [role.read]
    scopes: [ROLE_READ]
  bookings.create:
    permissions: [booking.create]
    scopes: [BOOKING_WRITE, BOOKING_READ]
  me.get:
    scopes: []
  members.invite:
    permissions: [team.invite]
`

func TestLoadRegistry(t *testing.T) {
	reg, err := LoadRegistry(strings.NewReader(registryYAML))
	require.NoError(t, err)

	assert.Equal(t, []OperationID{"bookings.create", "me.get", "members.invite", "roles.list"}, reg.Operations())

	roles := reg.Lookup("roles.list")
	assert.True(t, roles.Declared)
	assert.Equal(t, []Permission{"role.read"}, roles.Permissions)
	assert.Equal(t, scopes.NewSet(scopes.RoleRead), roles.Scopes)

	assert.Equal(t, scopes.NewSet(scopes.BookingWrite, scopes.BookingRead), reg.Lookup("bookings.create").Scopes)

	me := reg.Lookup("me.get")
	assert.True(t, me.Declared, "empty scope list is a declaration")
	assert.True(t, me.Scopes.IsEmpty())

	invite := reg.Lookup("members.invite")
	assert.False(t, invite.Declared, "omitted scopes leave the operation undeclared")
	assert.Equal(t, []Permission{"team.invite"}, invite.Permissions)

	assert.False(t, reg.Lookup("missing").Declared)
}

func TestLoadRegistry_Errors(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{name: "unknown scope", yaml: "operations:\n  x:\n    scopes: [NOPE]\n", wantErr: `unknown scope "NOPE"`},
		{name: "legacy scope", yaml: "operations:\n  x:\n    scopes: [READ_BOOKING]\n", wantErr: "unknown scope"},
		{name: "bad permission", yaml: "operations:\n  x:\n    permissions: [roleread]\n", wantErr: "expected resource.action"},
		{name: "unknown field", yaml: "operations:\n  x:\n    scope: [BOOKING_READ]\n", wantErr: "failed to parse"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadRegistry(strings.NewReader(tt.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoadRegistry_Empty(t *testing.T) {
	reg, err := LoadRegistry(strings.NewReader(""))
	require.NoError(t, err)
	assert.Empty(t, reg.Operations())
}

func TestLoadRegistryFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "operations.yaml")
	require.NoError(t, os.WriteFile(path, []byte(registryYAML), 0o600))

	reg, err := LoadRegistryFile(path)
	require.NoError(t, err)
	assert.Len(t, reg.Operations(), 4)

	_, err = LoadRegistryFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestPermission(t *testing.T) {
	p := NewPermission(ResourceEventType, ActionUpdate)
	assert.Equal(t, Permission("eventType.update"), p)
	assert.Equal(t, ResourceEventType, p.Resource())
	assert.Equal(t, ActionUpdate, p.Action())

	parsed, err := ParsePermission(" role.read ")
	require.NoError(t, err)
	assert.Equal(t, Permission("role.read"), parsed)

	for _, bad := range []string{"", "role", ".read", "role.", "a.b.c"} {
		_, err := ParsePermission(bad)
		assert.Error(t, err, bad)
	}
}
