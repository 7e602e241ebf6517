package postgres

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/platinummonkey/gatehouse/pkg/auth"
	"github.com/platinummonkey/gatehouse/pkg/authz"
	"github.com/platinummonkey/gatehouse/pkg/scopes"
)

// wildcard in role_permissions matches any resource or action
const wildcard = "*"

// Store answers the lookups of the authorization layer from Postgres.
// It implements authz.FeatureStore, authz.PermissionStore,
// authz.ClientStore, authz.OrganizationStore, domains.VerifiedDomainStore,
// autolock.Locker and the middleware credential stores.
type Store struct {
	db  *DB
	now func() time.Time
}

// NewStore creates a store over db
func NewStore(db *DB) *Store {
	return &Store{db: db, now: time.Now}
}

// WithClock replaces the time source used for expiry checks, for tests
func (s *Store) WithClock(now func() time.Time) *Store {
	s.now = now
	return s
}

// HashToken hashes opaque access and session tokens before lookup
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// TenantHasFeature reports whether the team or organization enabled feature
func (s *Store) TenantHasFeature(ctx context.Context, tenantID int64, feature string) (bool, error) {
	var enabled bool
	err := s.db.Replica().QueryRowContext(ctx,
		`SELECT enabled FROM team_features WHERE team_id = $1 AND feature = $2`,
		tenantID, feature,
	).Scan(&enabled)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to get feature %s for team %d: %w", feature, tenantID, err)
	}
	return enabled, nil
}

// HasPermissions reports whether userID's accepted membership in tenantID
// grants every permission. A membership role listed in fallbackRoles
// satisfies the check on its own; otherwise the custom role must grant
// each permission, with "*" matching any resource or action.
func (s *Store) HasPermissions(ctx context.Context, userID, tenantID int64, permissions []authz.Permission, fallbackRoles []authz.Role) (bool, error) {
	conn := s.db.Replica()

	var role string
	var customRoleID sql.NullString
	err := conn.QueryRowContext(ctx,
		`SELECT role, custom_role_id FROM memberships WHERE user_id = $1 AND team_id = $2 AND accepted = TRUE`,
		userID, tenantID,
	).Scan(&role, &customRoleID)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to get membership: %w", err)
	}

	for _, fallback := range fallbackRoles {
		if authz.Role(role) == fallback {
			return true, nil
		}
	}
	if !customRoleID.Valid {
		return false, nil
	}

	rows, err := conn.QueryContext(ctx,
		`SELECT resource, action FROM role_permissions WHERE role_id = $1`,
		customRoleID.String,
	)
	if err != nil {
		return false, fmt.Errorf("failed to get role permissions: %w", err)
	}
	defer rows.Close()

	type grant struct{ resource, action string }
	var grants []grant
	for rows.Next() {
		var g grant
		if err := rows.Scan(&g.resource, &g.action); err != nil {
			return false, fmt.Errorf("failed to scan role permission: %w", err)
		}
		grants = append(grants, g)
	}
	if err := rows.Err(); err != nil {
		return false, fmt.Errorf("failed to read role permissions: %w", err)
	}

	for _, p := range permissions {
		granted := false
		for _, g := range grants {
			if (g.resource == wildcard || g.resource == string(p.Resource())) &&
				(g.action == wildcard || g.action == string(p.Action())) {
				granted = true
				break
			}
		}
		if !granted {
			return false, nil
		}
	}
	return true, nil
}

// ClientByID returns the OAuth client or authz.ErrClientNotFound
func (s *Store) ClientByID(ctx context.Context, clientID string) (*authz.OAuthClient, error) {
	return s.client(ctx,
		`SELECT id, name, permissions FROM oauth_clients WHERE id = $1`,
		clientID,
	)
}

// ClientByAccessToken returns the client that was issued an unexpired
// access token, or authz.ErrClientNotFound
func (s *Store) ClientByAccessToken(ctx context.Context, accessToken string) (*authz.OAuthClient, error) {
	return s.client(ctx,
		`SELECT c.id, c.name, c.permissions
		FROM oauth_access_tokens t
		JOIN oauth_clients c ON c.id = t.client_id
		WHERE t.token_hash = $1 AND t.expires_at > $2`,
		HashToken(accessToken), s.now().UTC(),
	)
}

func (s *Store) client(ctx context.Context, query string, args ...interface{}) (*authz.OAuthClient, error) {
	var client authz.OAuthClient
	var permissions int64
	err := s.db.Replica().QueryRowContext(ctx, query, args...).Scan(&client.ID, &client.Name, &permissions)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, authz.ErrClientNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get oauth client: %w", err)
	}
	client.Permissions = scopes.Set(permissions)
	return &client, nil
}

// OrganizationExists reports whether orgID names an organization
func (s *Store) OrganizationExists(ctx context.Context, orgID int64) (bool, error) {
	var one int
	err := s.db.Replica().QueryRowContext(ctx,
		`SELECT 1 FROM teams WHERE id = $1 AND is_organization = TRUE`,
		orgID,
	).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to get organization %d: %w", orgID, err)
	}
	return true, nil
}

// VerifiedOrgSlug returns the slug of the organization that verified domain
func (s *Store) VerifiedOrgSlug(ctx context.Context, domain string) (string, bool, error) {
	var slug string
	err := s.db.Replica().QueryRowContext(ctx,
		`SELECT t.slug
		FROM custom_domains d
		JOIN teams t ON t.id = d.team_id
		WHERE d.domain = $1 AND d.verified = TRUE AND t.is_organization = TRUE`,
		domain,
	).Scan(&slug)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to get custom domain %s: %w", domain, err)
	}
	return slug, true, nil
}

// UserByAPIKeyHash resolves an unexpired API key of an unlocked user
func (s *Store) UserByAPIKeyHash(ctx context.Context, hashedKey string) (auth.UserPrincipal, bool, error) {
	return s.user(ctx,
		`SELECT u.id, u.email
		FROM api_keys k
		JOIN users u ON u.id = k.user_id
		WHERE k.hashed_key = $1 AND (k.expires_at IS NULL OR k.expires_at > $2) AND u.locked = FALSE`,
		hashedKey, s.now().UTC(),
	)
}

// UserBySession resolves an unexpired session of an unlocked user
func (s *Store) UserBySession(ctx context.Context, token string) (auth.UserPrincipal, bool, error) {
	return s.user(ctx,
		`SELECT u.id, u.email
		FROM sessions se
		JOIN users u ON u.id = se.user_id
		WHERE se.token_hash = $1 AND se.expires_at > $2 AND u.locked = FALSE`,
		HashToken(token), s.now().UTC(),
	)
}

func (s *Store) user(ctx context.Context, query string, args ...interface{}) (auth.UserPrincipal, bool, error) {
	var user auth.UserPrincipal
	err := s.db.Replica().QueryRowContext(ctx, query, args...).Scan(&user.ID, &user.Email)
	if errors.Is(err, sql.ErrNoRows) {
		return auth.UserPrincipal{}, false, nil
	}
	if err != nil {
		return auth.UserPrincipal{}, false, fmt.Errorf("failed to get user: %w", err)
	}
	return user, true, nil
}

// UserIDByAPIKeyHash returns the owner of an API key, expired or not
func (s *Store) UserIDByAPIKeyHash(ctx context.Context, hashedKey string) (int64, bool, error) {
	var userID int64
	err := s.db.Primary().QueryRowContext(ctx,
		`SELECT user_id FROM api_keys WHERE hashed_key = $1`,
		hashedKey,
	).Scan(&userID)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("failed to get api key owner: %w", err)
	}
	return userID, true, nil
}

// LockByEmail locks the account registered with email
func (s *Store) LockByEmail(ctx context.Context, email string) error {
	return s.lock(ctx, `UPDATE users SET locked = TRUE WHERE lower(email) = lower($1)`, email)
}

// LockByUserID locks the account with id userID
func (s *Store) LockByUserID(ctx context.Context, userID int64) error {
	return s.lock(ctx, `UPDATE users SET locked = TRUE WHERE id = $1`, userID)
}

// ErrUserNotFound is returned when a lock targets no account
var ErrUserNotFound = errors.New("user not found")

func (s *Store) lock(ctx context.Context, query string, arg interface{}) error {
	result, err := s.db.Primary().ExecContext(ctx, query, arg)
	if err != nil {
		return fmt.Errorf("failed to lock user: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to lock user: %w", err)
	}
	if n == 0 {
		return ErrUserNotFound
	}
	return nil
}

// Ping checks database connectivity for health probes
func (s *Store) Ping(ctx context.Context) error {
	return s.db.HealthCheck(ctx)
}
