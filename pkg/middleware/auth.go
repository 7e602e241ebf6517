package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/platinummonkey/gatehouse/pkg/auth"
	"github.com/platinummonkey/gatehouse/pkg/authz"
	"github.com/platinummonkey/gatehouse/pkg/httputil"
	"github.com/platinummonkey/gatehouse/pkg/observability"
	"github.com/sirupsen/logrus"
)

const (
	// ClientIDHeader identifies an OAuth client platform request
	ClientIDHeader = "x-cal-client-id"
	// SessionCookie carries a first-party session token
	SessionCookie = "gatehouse_session"
)

// APIKeyStore resolves hashed API keys to their owning user
type APIKeyStore interface {
	UserByAPIKeyHash(ctx context.Context, hashedKey string) (user auth.UserPrincipal, found bool, err error)
}

// SessionStore resolves session tokens to users
type SessionStore interface {
	UserBySession(ctx context.Context, token string) (user auth.UserPrincipal, found bool, err error)
}

// AuthenticatorConfig configures an Authenticator. Nil stores disable the
// credential type they serve.
type AuthenticatorConfig struct {
	APIKeys  APIKeyStore
	Sessions SessionStore
	Tokens   *auth.TokenCodec
	// Optional lets requests without credentials through unauthenticated
	Optional bool
	Logger   logrus.FieldLogger
}

// Authenticator attaches an auth.Principal to each request
type Authenticator struct {
	apiKeys  APIKeyStore
	sessions SessionStore
	tokens   *auth.TokenCodec
	optional bool
	logger   logrus.FieldLogger
}

// NewAuthenticator creates authentication middleware
func NewAuthenticator(cfg AuthenticatorConfig) *Authenticator {
	if cfg.Logger == nil {
		cfg.Logger = observability.NopLogger()
	}
	return &Authenticator{
		apiKeys:  cfg.APIKeys,
		sessions: cfg.Sessions,
		tokens:   cfg.Tokens,
		optional: cfg.Optional,
		logger:   cfg.Logger,
	}
}

// Handler wraps an HTTP handler with authentication.
//
// Credentials are tried in order: an Authorization bearer (API key,
// third-party JWT, or OAuth client access token), the client id header,
// then the session cookie.
func (a *Authenticator) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		principal, err := a.authenticate(r)
		if err != nil {
			if _, ok := authz.AsError(err); !ok {
				observability.FromContext(r.Context(), a.logger).WithError(err).Error("authentication lookup failed")
			}
			authz.WriteError(w, err)
			return
		}
		if principal == nil {
			if a.optional {
				next.ServeHTTP(w, r)
				return
			}
			authz.WriteError(w, authz.Unauthenticated("missing credentials"))
			return
		}

		next.ServeHTTP(w, r.WithContext(auth.WithPrincipal(r.Context(), principal)))
	})
}

func (a *Authenticator) authenticate(r *http.Request) (auth.Principal, error) {
	ctx := r.Context()

	if token, ok := httputil.BearerToken(r); ok {
		switch {
		case auth.IsAPIKey(token):
			return a.apiKey(ctx, token)
		case auth.LooksLikeJWT(token) && a.tokens != nil:
			claims, err := a.tokens.Parse(token, auth.TokenTypeAccess)
			if err != nil {
				return nil, authz.Unauthenticated("invalid or expired token")
			}
			principal, err := claims.Principal()
			if err != nil {
				return nil, authz.Unauthenticated("invalid or expired token")
			}
			return principal, nil
		default:
			return auth.OAuthClientPrincipal{AccessToken: token}, nil
		}
	}

	if clientID := strings.TrimSpace(r.Header.Get(ClientIDHeader)); clientID != "" {
		return auth.OAuthClientPrincipal{ClientID: clientID}, nil
	}

	if a.sessions != nil {
		if cookie, err := r.Cookie(SessionCookie); err == nil && cookie.Value != "" {
			user, found, err := a.sessions.UserBySession(ctx, cookie.Value)
			if err != nil {
				return nil, err
			}
			if !found {
				return nil, authz.Unauthenticated("session expired")
			}
			user.Method = auth.MethodSession
			return user, nil
		}
	}

	return nil, nil
}

func (a *Authenticator) apiKey(ctx context.Context, key string) (auth.Principal, error) {
	if err := auth.ValidateAPIKeyFormat(key); err != nil || a.apiKeys == nil {
		return nil, authz.Unauthenticated("invalid api key")
	}
	user, found, err := a.apiKeys.UserByAPIKeyHash(ctx, auth.HashAPIKey(key))
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, authz.Unauthenticated("invalid api key")
	}
	user.Method = auth.MethodAPIKey
	return user, nil
}

// RequireUser rejects requests whose principal is not a first-party user
func RequireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		principal, ok := auth.PrincipalFromContext(r.Context())
		if !ok {
			authz.WriteError(w, authz.Unauthenticated("authentication required"))
			return
		}
		if principal.Kind() != auth.KindUser {
			authz.WriteError(w, authz.Forbidden(principal.Subject()+" cannot access this endpoint"))
			return
		}
		next.ServeHTTP(w, r)
	})
}
