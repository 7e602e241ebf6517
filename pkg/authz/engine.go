package authz

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/platinummonkey/gatehouse/pkg/auth"
	"github.com/platinummonkey/gatehouse/pkg/cache"
	"github.com/platinummonkey/gatehouse/pkg/observability"
	"github.com/platinummonkey/gatehouse/pkg/scopes"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// ErrClientNotFound is returned by ClientStore lookups that match nothing
var ErrClientNotFound = errors.New("oauth client not found")

// FeatureStore answers tenant feature flag lookups
type FeatureStore interface {
	TenantHasFeature(ctx context.Context, tenantID int64, feature string) (bool, error)
}

// PermissionStore evaluates whether a user holds all permissions within a
// tenant. Holding any of fallbackRoles satisfies the check.
type PermissionStore interface {
	HasPermissions(ctx context.Context, userID, tenantID int64, permissions []Permission, fallbackRoles []Role) (bool, error)
}

// ClientStore resolves OAuth clients
type ClientStore interface {
	ClientByAccessToken(ctx context.Context, accessToken string) (*OAuthClient, error)
	ClientByID(ctx context.Context, clientID string) (*OAuthClient, error)
}

// OrganizationStore answers organization existence
type OrganizationStore interface {
	OrganizationExists(ctx context.Context, orgID int64) (bool, error)
}

// Config wires the engine's collaborators. Features, Permissions and
// Registry are required; Organizations and Clients are optional.
type Config struct {
	Features      FeatureStore
	Permissions   PermissionStore
	Clients       ClientStore
	Organizations OrganizationStore
	Cache         *cache.PermissionCache
	Registry      *Registry
	FallbackRoles []Role
	// Feature is the flag that enables PBAC for a tenant; defaults to PBACFeature
	Feature string
	Logger  logrus.FieldLogger
	Metrics *observability.Metrics
}

// Engine decides whether principals may perform operations
type Engine struct {
	features      FeatureStore
	permissions   PermissionStore
	clients       ClientStore
	organizations OrganizationStore
	cache         *cache.PermissionCache
	registry      *Registry
	fallbackRoles []Role
	feature       string
	logger        logrus.FieldLogger
	metrics       *observability.Metrics
	tracer        trace.Tracer
}

// NewEngine validates cfg and creates an engine. A nil Cache gets an
// in-memory cache with the default TTL.
func NewEngine(cfg Config) (*Engine, error) {
	if cfg.Features == nil || cfg.Permissions == nil {
		return nil, errors.New("authz: feature and permission stores are required")
	}
	if cfg.Registry == nil {
		return nil, errors.New("authz: operation registry is required")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = observability.NopLogger()
	}

	pc := cfg.Cache
	if pc == nil {
		store, err := cache.NewMemoryStore(0)
		if err != nil {
			return nil, err
		}
		pc = cache.NewPermissionCache(store, cache.DefaultTTL, logger, cfg.Metrics)
	}

	fallback := cfg.FallbackRoles
	if fallback == nil {
		fallback = DefaultFallbackRoles
	}
	feature := cfg.Feature
	if feature == "" {
		feature = PBACFeature
	}

	return &Engine{
		features:      cfg.Features,
		permissions:   cfg.Permissions,
		clients:       cfg.Clients,
		organizations: cfg.Organizations,
		cache:         pc,
		registry:      cfg.Registry,
		fallbackRoles: fallback,
		feature:       feature,
		logger:        logger,
		metrics:       cfg.Metrics,
		tracer:        observability.Tracer(),
	}, nil
}

// Registry returns the operation registry the engine was built with
func (e *Engine) Registry() *Registry {
	return e.registry
}

// TenantCheck asks whether a principal holds permissions within a tenant
type TenantCheck struct {
	Principal auth.Principal
	// Tenant is nil when the request carried no team or organization id
	Tenant      *Tenant
	Permissions []Permission
}

// Decide evaluates a tenant check without failing on denial. Errors are
// returned for unauthenticated or malformed requests and for store failures.
//
// A request with no required permissions, or against a tenant without
// PBAC, is allowed with Checked=false before any organization lookup. Downstream code must not treat such
// a request as permission checked.
func (e *Engine) Decide(ctx context.Context, check TenantCheck) (Decision, error) {
	start := time.Now()
	ctx, span := e.tracer.Start(ctx, "authz.Decide")
	defer span.End()

	decision, err := e.decide(ctx, span, check)
	e.record(span, "tenant", start, decision, err)
	return decision, err
}

func (e *Engine) decide(ctx context.Context, span trace.Span, check TenantCheck) (Decision, error) {
	if check.Principal == nil {
		return Decision{}, Unauthenticated("authentication required")
	}
	userID, ok := auth.UserID(check.Principal)
	if !ok {
		return Decision{}, Forbidden(fmt.Sprintf("%s is not a user and cannot be checked for tenant permissions", check.Principal.Subject()))
	}
	if check.Tenant == nil || check.Tenant.ID <= 0 {
		return Decision{}, BadRequest("missing tenant id: expected a team or organization id")
	}
	tenant := *check.Tenant

	span.SetAttributes(
		attribute.Int64("authz.user_id", userID),
		attribute.String("authz.tenant", tenant.String()),
		attribute.StringSlice("authz.permissions", PermissionStrings(check.Permissions)),
	)

	if len(check.Permissions) == 0 {
		return Decision{Allowed: true}, nil
	}

	enabled, _, err := e.cache.RememberTrue(ctx, cache.FeatureKey(tenant.ID, e.feature), func(ctx context.Context) (bool, error) {
		return e.features.TenantHasFeature(ctx, tenant.ID, e.feature)
	})
	if err != nil {
		return Decision{}, fmt.Errorf("feature lookup failed: %w", err)
	}
	if !enabled {
		return Decision{Allowed: true}, nil
	}

	if tenant.Kind == TenantOrganization && e.organizations != nil {
		exists, _, err := e.cache.RememberTrue(ctx, cache.OrgExistsKey(tenant.ID), func(ctx context.Context) (bool, error) {
			return e.organizations.OrganizationExists(ctx, tenant.ID)
		})
		if err != nil {
			return Decision{}, fmt.Errorf("organization lookup failed: %w", err)
		}
		if !exists {
			return Decision{}, NotFound(fmt.Sprintf("organization with id=%d not found", tenant.ID))
		}
	}

	perms := sortedPermissions(check.Permissions)
	granted, cached, err := e.cache.RememberTrue(ctx, cache.PermissionKey(userID, tenant.ID, PermissionStrings(perms)), func(ctx context.Context) (bool, error) {
		return e.permissions.HasPermissions(ctx, userID, tenant.ID, perms, e.fallbackRoles)
	})
	if err != nil {
		return Decision{}, fmt.Errorf("permission lookup failed: %w", err)
	}
	if !granted {
		return Decision{Missing: perms}, nil
	}
	return Decision{Allowed: true, Checked: true, Cached: cached}, nil
}

// Require is Decide for hard-mode callers: a denial becomes a Forbidden
// error naming the principal, the tenant and the missing permissions.
func (e *Engine) Require(ctx context.Context, check TenantCheck) (Decision, error) {
	decision, err := e.Decide(ctx, check)
	if err != nil {
		return decision, err
	}
	if !decision.Allowed {
		return decision, Forbidden(fmt.Sprintf("%s does not have the required permissions (%s) within %s",
			check.Principal.Subject(), strings.Join(PermissionStrings(decision.Missing), ", "), check.Tenant))
	}
	return decision, nil
}

// AccessCheck asks whether a principal may call an operation at all
type AccessCheck struct {
	Principal auth.Principal
	Operation OperationID
}

// AuthorizeRequest performs the wire-level check for an operation.
//
// First-party sessions and API keys pass unconditionally. OAuth clients
// must have been granted every scope the operation declares. Third-party
// tokens pass when they carry no recognized scope; otherwise the operation
// must declare scopes and the token must cover them.
func (e *Engine) AuthorizeRequest(ctx context.Context, check AccessCheck) error {
	start := time.Now()
	ctx, span := e.tracer.Start(ctx, "authz.AuthorizeRequest", trace.WithAttributes(
		attribute.String("authz.operation", string(check.Operation)),
	))
	defer span.End()

	err := e.authorizeRequest(ctx, check)
	kind := "none"
	if check.Principal != nil {
		kind = string(check.Principal.Kind())
	}
	e.record(span, kind, start, Decision{Allowed: err == nil, Checked: err == nil}, err)
	return err
}

func (e *Engine) authorizeRequest(ctx context.Context, check AccessCheck) error {
	req := e.registry.Lookup(check.Operation)

	switch p := check.Principal.(type) {
	case nil:
		return Unauthenticated("authentication required")
	case auth.UserPrincipal:
		return nil
	case auth.OAuthClientPrincipal:
		return e.authorizeClient(ctx, p, req)
	case auth.ThirdPartyPrincipal:
		return e.authorizeThirdParty(p, req)
	default:
		return Unauthenticated(fmt.Sprintf("unsupported principal %T", p))
	}
}

func (e *Engine) authorizeClient(ctx context.Context, p auth.OAuthClientPrincipal, req Requirement) error {
	if p.AccessToken == "" && p.ClientID == "" {
		return Forbidden("no access token or oauth client id provided")
	}
	if e.clients == nil {
		return Forbidden("oauth clients are not accepted")
	}

	var (
		client *OAuthClient
		err    error
	)
	if p.AccessToken != "" {
		client, err = e.clients.ClientByAccessToken(ctx, p.AccessToken)
	} else {
		client, err = e.clients.ClientByID(ctx, p.ClientID)
	}
	if errors.Is(err, ErrClientNotFound) || (err == nil && client == nil) {
		return Forbidden(fmt.Sprintf("%s not found", p.Subject()))
	}
	if err != nil {
		return fmt.Errorf("oauth client lookup failed: %w", err)
	}

	missing := client.Permissions.Missing(req.Scopes)
	if missing.IsEmpty() {
		return nil
	}

	names := make([]string, 0, missing.Len())
	for _, m := range missing.Slice() {
		names = append(names, m.DisplayName())
	}
	return Forbidden(fmt.Sprintf("insufficient permissions for oauth client id=%s. missing: %s", client.ID, strings.Join(names, ", ")))
}

func (e *Engine) authorizeThirdParty(p auth.ThirdPartyPrincipal, req Requirement) error {
	granted := scopes.ResolveTokenPermissions(p.Scopes)
	if granted.IsEmpty() {
		// legacy or unscoped tokens keep full access
		return nil
	}
	if !req.Declared {
		return InsufficientScope(nil, p.Scopes)
	}

	missing := granted.Missing(req.Scopes)
	if missing.IsEmpty() {
		return nil
	}
	return InsufficientScope(missing.ScopeStrings(), p.Scopes)
}

func (e *Engine) record(span trace.Span, principal string, start time.Time, d Decision, err error) {
	outcome := "denied"
	switch {
	case err != nil:
		if ae, ok := AsError(err); ok {
			outcome = ae.Code()
		} else {
			outcome = "error"
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
	case d.Allowed && d.Checked:
		outcome = "allowed"
	case d.Allowed:
		outcome = "allowed_unchecked"
	}

	span.SetAttributes(attribute.String("authz.outcome", outcome), attribute.Bool("authz.cached", d.Cached))
	e.metrics.RecordDecision(principal, outcome, time.Since(start))

	entry := e.logger.WithFields(logrus.Fields{
		"principal": principal,
		"outcome":   outcome,
	})
	if err != nil {
		entry.WithError(err).Debug("authorization denied")
		return
	}
	entry.Debug("authorization decided")
}
