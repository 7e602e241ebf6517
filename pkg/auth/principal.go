package auth

import (
	"context"
	"strconv"

	"github.com/platinummonkey/gatehouse/pkg/contextkeys"
)

// PrincipalKind names a principal case, for logs and metrics
type PrincipalKind string

const (
	KindUser        PrincipalKind = "user"
	KindOAuthClient PrincipalKind = "oauth_client"
	KindThirdParty  PrincipalKind = "third_party"
)

// Method is how a first-party user authenticated
type Method string

const (
	MethodSession Method = "session"
	MethodAPIKey  Method = "api_key"
)

// Principal is the authenticated caller of a request
type Principal interface {
	Kind() PrincipalKind
	// Subject identifies the principal in messages, e.g. "user id=1"
	Subject() string
	sealed()
}

// UserPrincipal is a first-party user
type UserPrincipal struct {
	ID     int64
	Email  string
	Method Method
}

func (UserPrincipal) Kind() PrincipalKind { return KindUser }

func (p UserPrincipal) Subject() string { return "user id=" + strconv.FormatInt(p.ID, 10) }

func (UserPrincipal) sealed() {}

// OAuthClientPrincipal is an OAuth client, identified either by the access
// token it presented or by the client id header
type OAuthClientPrincipal struct {
	AccessToken string
	ClientID    string
}

func (OAuthClientPrincipal) Kind() PrincipalKind { return KindOAuthClient }

func (p OAuthClientPrincipal) Subject() string {
	if p.ClientID != "" {
		return "oauth client id=" + p.ClientID
	}
	return "oauth client"
}

func (OAuthClientPrincipal) sealed() {}

// ThirdPartyPrincipal is a user acting through a token issued to a third-party app
type ThirdPartyPrincipal struct {
	UserID   int64
	ClientID string
	Scopes   []string
}

func (ThirdPartyPrincipal) Kind() PrincipalKind { return KindThirdParty }

func (p ThirdPartyPrincipal) Subject() string { return "user id=" + strconv.FormatInt(p.UserID, 10) }

func (ThirdPartyPrincipal) sealed() {}

// UserID returns the user a principal acts for. OAuth clients act for no user.
func UserID(p Principal) (int64, bool) {
	switch v := p.(type) {
	case UserPrincipal:
		return v.ID, true
	case ThirdPartyPrincipal:
		return v.UserID, v.UserID > 0
	default:
		return 0, false
	}
}

// WithPrincipal attaches p to ctx. User-backed principals also set the user id.
func WithPrincipal(ctx context.Context, p Principal) context.Context {
	ctx = contextkeys.WithPrincipal(ctx, p)
	if id, ok := UserID(p); ok {
		ctx = contextkeys.WithUserID(ctx, strconv.FormatInt(id, 10))
	}
	return ctx
}

// PrincipalFromContext returns the principal attached by WithPrincipal
func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(contextkeys.PrincipalKey).(Principal)
	return p, ok && p != nil
}
