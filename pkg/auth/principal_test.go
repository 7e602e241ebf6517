package auth

import (
	"context"
	"testing"

	"github.com/platinummonkey/gatehouse/pkg/contextkeys"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrincipal_Kinds(t *testing.T) {
	tests := []struct {
		principal Principal
		kind      PrincipalKind
		subject   string
		userID    int64
		hasUser   bool
	}{
		{principal: UserPrincipal{ID: 1, Method: MethodSession}, kind: KindUser, subject: "user id=1", userID: 1, hasUser: true},
		{principal: OAuthClientPrincipal{ClientID: "abc"}, kind: KindOAuthClient, subject: "oauth client id=abc"},
		{principal: OAuthClientPrincipal{AccessToken: "t"}, kind: KindOAuthClient, subject: "oauth client"},
		{principal: ThirdPartyPrincipal{UserID: 9, Scopes: []string{"BOOKING_READ"}}, kind: KindThirdParty, subject: "user id=9", userID: 9, hasUser: true},
		{principal: ThirdPartyPrincipal{}, kind: KindThirdParty, subject: "user id=0"},
	}

	for _, tt := range tests {
		t.Run(tt.subject, func(t *testing.T) {
			assert.Equal(t, tt.kind, tt.principal.Kind())
			assert.Equal(t, tt.subject, tt.principal.Subject())
			id, ok := UserID(tt.principal)
			assert.Equal(t, tt.hasUser, ok)
			assert.Equal(t, tt.userID, id)
		})
	}
}

func TestPrincipalContext(t *testing.T) {
	ctx := context.Background()
	_, ok := PrincipalFromContext(ctx)
	assert.False(t, ok)

	ctx = WithPrincipal(ctx, UserPrincipal{ID: 42, Method: MethodAPIKey})
	p, ok := PrincipalFromContext(ctx)
	require.True(t, ok)
	assert.Equal(t, UserPrincipal{ID: 42, Method: MethodAPIKey}, p)
	assert.Equal(t, "42", contextkeys.GetUserID(ctx))

	ctx = WithPrincipal(context.Background(), OAuthClientPrincipal{ClientID: "c"})
	assert.Empty(t, contextkeys.GetUserID(ctx))
}
