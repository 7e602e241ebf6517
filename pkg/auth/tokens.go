package auth

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/platinummonkey/gatehouse/pkg/scopes"
)

// TokenType distinguishes access from refresh tokens
type TokenType string

const (
	TokenTypeAccess  TokenType = "access"
	TokenTypeRefresh TokenType = "refresh"
)

// DefaultIssuer is the iss claim of tokens signed by gatehouse
const DefaultIssuer = "gatehouse"

// ErrInvalidToken indicates the token failed validation
var ErrInvalidToken = errors.New("invalid token")

// ScopeClaim is the scope claim. It decodes from either a space separated
// string or a JSON array and always encodes as a space separated string.
type ScopeClaim []string

// MarshalJSON encodes the scopes as one space separated string
func (s ScopeClaim) MarshalJSON() ([]byte, error) {
	return json.Marshal(strings.Join(s, " "))
}

// UnmarshalJSON accepts "A B" and ["A", "B"]
func (s *ScopeClaim) UnmarshalJSON(data []byte) error {
	var list []string
	if err := json.Unmarshal(data, &list); err == nil {
		*s = ScopeClaim(scopes.ParseScopes(strings.Join(list, " ")))
		return nil
	}

	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("scope claim must be a string or array: %w", err)
	}
	*s = ScopeClaim(scopes.ParseScopes(raw))
	return nil
}

// Claims are the JWT claims of third-party access and refresh tokens
type Claims struct {
	jwt.RegisteredClaims

	ClientID  string     `json:"client_id"`
	Scope     ScopeClaim `json:"scope"`
	TokenType TokenType  `json:"token_type"`
}

// UserID parses the subject as a numeric user id
func (c *Claims) UserID() (int64, error) {
	id, err := strconv.ParseInt(c.Subject, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("subject %q is not a user id", c.Subject)
	}
	return id, nil
}

// Principal converts verified access token claims to a principal
func (c *Claims) Principal() (ThirdPartyPrincipal, error) {
	userID, err := c.UserID()
	if err != nil {
		return ThirdPartyPrincipal{}, err
	}
	return ThirdPartyPrincipal{UserID: userID, ClientID: c.ClientID, Scopes: append([]string(nil), c.Scope...)}, nil
}

// Grant describes what a token pair authorizes
type Grant struct {
	UserID   int64
	ClientID string
	Scopes   []string
}

// TokenCodec signs and verifies HS256 third-party tokens
type TokenCodec struct {
	secret []byte
	issuer string
	now    func() time.Time
}

// NewTokenCodec creates a codec. The secret must be non-empty.
func NewTokenCodec(secret []byte, issuer string) (*TokenCodec, error) {
	if len(secret) == 0 {
		return nil, errors.New("token signing secret is not configured")
	}
	if issuer == "" {
		issuer = DefaultIssuer
	}
	return &TokenCodec{secret: secret, issuer: issuer, now: time.Now}, nil
}

// WithClock replaces the time source, for tests
func (c *TokenCodec) WithClock(now func() time.Time) *TokenCodec {
	c.now = now
	return c
}

// Issue signs a token of type tt for grant, valid for ttl
func (c *TokenCodec) Issue(tt TokenType, grant Grant, ttl time.Duration) (string, error) {
	if grant.UserID <= 0 {
		return "", errors.New("user id is required")
	}
	if ttl <= 0 {
		return "", errors.New("ttl must be greater than zero")
	}

	now := c.now().UTC()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    c.issuer,
			Subject:   strconv.FormatInt(grant.UserID, 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			ID:        uuid.NewString(),
		},
		ClientID:  grant.ClientID,
		Scope:     ScopeClaim(grant.Scopes),
		TokenType: tt,
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// Parse verifies signature, issuer, expiry and token type
func (c *TokenCodec) Parse(token string, want TokenType) (*Claims, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, ErrInvalidToken
	}

	parsed, err := jwt.ParseWithClaims(token, &Claims{}, func(t *jwt.Token) (any, error) {
		return c.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(c.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithTimeFunc(c.now),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, ErrInvalidToken
	}
	if claims.TokenType != want {
		return nil, fmt.Errorf("%w: expected %s token, got %q", ErrInvalidToken, want, claims.TokenType)
	}
	if _, err := claims.UserID(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	return claims, nil
}

// LooksLikeJWT reports whether a bearer credential has the three-segment JWT shape
func LooksLikeJWT(credential string) bool {
	return strings.Count(credential, ".") == 2
}
