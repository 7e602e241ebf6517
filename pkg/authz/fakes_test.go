package authz

import (
	"context"
	"errors"
	"sync"

	"github.com/platinummonkey/gatehouse/pkg/scopes"
)

type fakeFeatures struct {
	mu      sync.Mutex
	enabled map[int64]bool
	err     error
	calls   int
}

func (f *fakeFeatures) TenantHasFeature(_ context.Context, tenantID int64, feature string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return false, f.err
	}
	return feature == PBACFeature && f.enabled[tenantID], nil
}

type grant struct {
	userID, tenantID int64
}

type fakePermissions struct {
	mu      sync.Mutex
	granted map[grant][]Permission
	roles   map[grant]Role
	err     error
	calls   int
}

func (f *fakePermissions) HasPermissions(_ context.Context, userID, tenantID int64, perms []Permission, fallback []Role) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return false, f.err
	}

	key := grant{userID, tenantID}
	role := f.roles[key]
	for _, r := range fallback {
		if r == role {
			return true, nil
		}
	}

	have := make(map[Permission]bool)
	for _, p := range f.granted[key] {
		have[p] = true
	}
	for _, p := range perms {
		if !have[p] {
			return false, nil
		}
	}
	return true, nil
}

func (f *fakePermissions) grant(userID, tenantID int64, perms ...Permission) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.granted == nil {
		f.granted = make(map[grant][]Permission)
	}
	key := grant{userID, tenantID}
	f.granted[key] = append(f.granted[key], perms...)
}

type fakeClients struct {
	byID    map[string]*OAuthClient
	byToken map[string]*OAuthClient
	err     error
}

func (f *fakeClients) ClientByAccessToken(_ context.Context, token string) (*OAuthClient, error) {
	if f.err != nil {
		return nil, f.err
	}
	if c, ok := f.byToken[token]; ok {
		return c, nil
	}
	return nil, ErrClientNotFound
}

func (f *fakeClients) ClientByID(_ context.Context, id string) (*OAuthClient, error) {
	if f.err != nil {
		return nil, f.err
	}
	if c, ok := f.byID[id]; ok {
		return c, nil
	}
	return nil, ErrClientNotFound
}

type fakeOrgs struct {
	exists map[int64]bool
	calls  int
}

func (f *fakeOrgs) OrganizationExists(_ context.Context, id int64) (bool, error) {
	f.calls++
	return f.exists[id], nil
}

var errDatabase = errors.New("database unavailable")

func testRegistry() *Registry {
	return NewRegistry().
		Declare("roles.list", []Permission{"role.read"}, scopes.RoleRead).
		Declare("bookings.create", []Permission{"booking.create"}, scopes.BookingWrite).
		Declare("me.get", nil).
		DeclareTenantOnly("members.invite", "team.invite")
}
