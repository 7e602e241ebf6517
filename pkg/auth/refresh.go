package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/platinummonkey/gatehouse/pkg/cache"
	"github.com/platinummonkey/gatehouse/pkg/observability"
	"github.com/platinummonkey/gatehouse/pkg/scopes"
	"github.com/sirupsen/logrus"
)

const (
	DefaultAccessTokenTTL  = time.Hour
	DefaultRefreshTokenTTL = 30 * 24 * time.Hour

	usedRefreshNamespace = "oauth:refresh:used"
)

var (
	// ErrRefreshTokenReused is returned when a refresh token is presented a second time
	ErrRefreshTokenReused = errors.New("refresh_token_revoked")
	// ErrClientMismatch is returned when a refresh token was issued to another client
	ErrClientMismatch = errors.New("refresh token was issued to a different client")
	// ErrScopeExpansion is returned when a rotation asks for scopes beyond the original grant
	ErrScopeExpansion = errors.New("requested scope exceeds the original grant")
)

// TokenPair is the result of a token grant, in OAuth token response shape
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
	Scope        string `json:"scope,omitempty"`
}

// Rotator exchanges refresh tokens for new token pairs, allowing each
// refresh token to be redeemed once
type Rotator struct {
	codec      *TokenCodec
	used       cache.AtomicStore
	accessTTL  time.Duration
	refreshTTL time.Duration
	logger     logrus.FieldLogger
}

// NewRotator creates a Rotator. Non-positive TTLs select the defaults.
func NewRotator(codec *TokenCodec, used cache.AtomicStore, accessTTL, refreshTTL time.Duration, logger logrus.FieldLogger) *Rotator {
	if accessTTL <= 0 {
		accessTTL = DefaultAccessTokenTTL
	}
	if refreshTTL <= 0 {
		refreshTTL = DefaultRefreshTokenTTL
	}
	if logger == nil {
		logger = observability.NopLogger()
	}
	return &Rotator{codec: codec, used: used, accessTTL: accessTTL, refreshTTL: refreshTTL, logger: logger}
}

// IssuePair signs a fresh access and refresh token for grant
func (r *Rotator) IssuePair(grant Grant) (TokenPair, error) {
	access, err := r.codec.Issue(TokenTypeAccess, grant, r.accessTTL)
	if err != nil {
		return TokenPair{}, err
	}
	refresh, err := r.codec.Issue(TokenTypeRefresh, grant, r.refreshTTL)
	if err != nil {
		return TokenPair{}, err
	}
	return TokenPair{
		AccessToken:  access,
		RefreshToken: refresh,
		TokenType:    "Bearer",
		ExpiresIn:    int64(r.accessTTL / time.Second),
		Scope:        strings.Join(grant.Scopes, " "),
	}, nil
}

// Rotate redeems refreshToken for clientID. requested may narrow the
// granted scopes; empty keeps them. The refresh token is only consumed once
// every other check has passed.
func (r *Rotator) Rotate(ctx context.Context, refreshToken, clientID string, requested []string) (TokenPair, error) {
	claims, err := r.codec.Parse(refreshToken, TokenTypeRefresh)
	if err != nil {
		return TokenPair{}, err
	}
	if claims.ClientID != clientID {
		return TokenPair{}, ErrClientMismatch
	}

	granted := []string(claims.Scope)
	if len(requested) > 0 {
		if scopes.HasScopeExpansion(toScopes(granted), toScopes(requested)) {
			return TokenPair{}, ErrScopeExpansion
		}
		granted = requested
	}

	ttl := claims.ExpiresAt.Time.Sub(r.codec.now())
	if ttl < time.Second {
		ttl = time.Second
	}
	first, err := r.used.SetNX(ctx, cache.Key(usedRefreshNamespace, claims.ID), "1", ttl)
	if err != nil {
		return TokenPair{}, fmt.Errorf("failed to record refresh token use: %w", err)
	}
	if !first {
		r.logger.WithFields(logrus.Fields{
			"client_id": claims.ClientID,
			"user_id":   claims.Subject,
			"jti":       claims.ID,
		}).Warn("refresh token reuse detected")
		return TokenPair{}, ErrRefreshTokenReused
	}

	userID, _ := claims.UserID()
	return r.IssuePair(Grant{UserID: userID, ClientID: claims.ClientID, Scopes: granted})
}

func toScopes(in []string) []scopes.Scope {
	out := make([]scopes.Scope, len(in))
	for i, s := range in {
		out[i] = scopes.Scope(s)
	}
	return out
}
