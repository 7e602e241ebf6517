package main

import (
	"fmt"
	"net/http"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/gorilla/mux"
	"github.com/platinummonkey/gatehouse/pkg/audit"
	"github.com/platinummonkey/gatehouse/pkg/auth"
	"github.com/platinummonkey/gatehouse/pkg/authz"
	"github.com/platinummonkey/gatehouse/pkg/autolock"
	"github.com/platinummonkey/gatehouse/pkg/cache"
	"github.com/platinummonkey/gatehouse/pkg/config"
	"github.com/platinummonkey/gatehouse/pkg/contextkeys"
	"github.com/platinummonkey/gatehouse/pkg/domains"
	"github.com/platinummonkey/gatehouse/pkg/httputil"
	"github.com/platinummonkey/gatehouse/pkg/middleware"
	"github.com/platinummonkey/gatehouse/pkg/observability"
	"github.com/platinummonkey/gatehouse/pkg/storage/postgres"
	"github.com/sirupsen/logrus"
)

// localLimiterKeys bounds the per-key buckets kept without Redis
const localLimiterKeys = 100000

// services holds the wired components behind the HTTP API
type services struct {
	store         *postgres.Store
	engine        *authz.Engine
	guard         *authz.Guard
	resolver      *domains.Resolver
	authenticator *middleware.Authenticator
	rateLimit     *middleware.RateLimitMiddleware
	tracker       *autolock.Tracker
	tokens        *auth.TokenHandler
	metrics       *observability.Metrics
	logger        logrus.FieldLogger
}

// buildServices wires the decision layer. redisClient may be nil, in which
// case caches and rate limits stay in process.
func buildServices(cfg *config.Config, db *postgres.DB, redisClient *redis.Client, registry *authz.Registry, metrics *observability.Metrics, logger logrus.FieldLogger) (*services, error) {
	store := postgres.NewStore(db)
	sink := buildAudit(cfg.Audit, db, logger)

	var kv cache.AtomicStore
	if redisClient != nil {
		kv = cache.NewRedisStore(redisClient, "gatehouse")
	} else {
		mem, err := cache.NewMemoryStore(cfg.Authorization.CacheSize)
		if err != nil {
			return nil, fmt.Errorf("failed to create memory cache: %w", err)
		}
		kv = mem
	}

	fallback := make([]authz.Role, 0, len(cfg.Authorization.FallbackRoles))
	for _, role := range cfg.Authorization.FallbackRoles {
		fallback = append(fallback, authz.Role(role))
	}

	engine, err := authz.NewEngine(authz.Config{
		Features:      store,
		Permissions:   store,
		Clients:       store,
		Organizations: store,
		Cache:         cache.NewPermissionCache(kv, cfg.Authorization.CacheTTL, logger, metrics),
		Registry:      registry,
		FallbackRoles: fallback,
		Feature:       cfg.Authorization.Feature,
		Logger:        logger,
		Metrics:       metrics,
	})
	if err != nil {
		return nil, err
	}

	tracker, err := autolock.NewTracker(autolock.Config{
		Store:     kv,
		Locker:    store,
		Threshold: cfg.AutoLock.Threshold,
		Window:    cfg.AutoLock.Window,
		Logger:    logger,
		Metrics:   metrics,
		Audit:     sink,
	})
	if err != nil {
		return nil, err
	}

	svc := &services{
		store:    store,
		engine:   engine,
		guard:    authz.NewGuard(engine, logger).WithAudit(sink),
		resolver: domains.NewResolver(cfg.Domains),
		tracker:  tracker,
		metrics:  metrics,
		logger:   logger,
	}

	var codec *auth.TokenCodec
	if cfg.Tokens.Secret != "" {
		codec, err = auth.NewTokenCodec([]byte(cfg.Tokens.Secret), cfg.Tokens.Issuer)
		if err != nil {
			return nil, err
		}
		rotator := auth.NewRotator(codec, kv, cfg.Tokens.AccessTTL, cfg.Tokens.RefreshTTL, logger)
		svc.tokens = auth.NewTokenHandler(rotator, logger)
	}

	svc.authenticator = middleware.NewAuthenticator(middleware.AuthenticatorConfig{
		APIKeys:  store,
		Sessions: store,
		Tokens:   codec,
		Logger:   logger,
	})

	authenticated, anonymous, err := buildLimiters(cfg.RateLimit, redisClient)
	if err != nil {
		return nil, err
	}
	svc.rateLimit = middleware.NewRateLimitMiddleware(middleware.RateLimitMiddlewareConfig{
		Authenticated: authenticated,
		Anonymous:     anonymous,
		Tracker:       tracker,
		FailOpen:      cfg.RateLimit.FailOpen,
		Logger:        logger,
		Metrics:       metrics,
	})

	return svc, nil
}

func buildAudit(cfg config.AuditConfig, db *postgres.DB, logger logrus.FieldLogger) audit.Logger {
	if !cfg.Enabled {
		return audit.Nop()
	}
	sinks := []audit.Logger{audit.NewLogrusLogger(logger)}
	if cfg.Database {
		sinks = append(sinks, audit.NewDBLogger(db.Primary()))
	}
	return audit.NewMultiLogger(sinks...)
}

func buildLimiters(cfg config.RateLimitConfig, redisClient *redis.Client) (middleware.Limiter, middleware.Limiter, error) {
	authCfg := &middleware.RateLimitConfig{
		RequestsPerWindow: cfg.AuthenticatedPerMinute,
		WindowDuration:    time.Minute,
		BurstSize:         cfg.Burst,
	}
	anonCfg := &middleware.RateLimitConfig{
		RequestsPerWindow: cfg.AnonymousPerMinute,
		WindowDuration:    time.Minute,
		BurstSize:         cfg.Burst,
	}

	if redisClient != nil {
		return middleware.NewDistributedRateLimiter(redisClient, authCfg, "gatehouse:ratelimit:auth"),
			middleware.NewDistributedRateLimiter(redisClient, anonCfg, "gatehouse:ratelimit:anon"),
			nil
	}

	authenticated, err := middleware.NewLocalRateLimiter(authCfg, localLimiterKeys)
	if err != nil {
		return nil, nil, err
	}
	anonymous, err := middleware.NewLocalRateLimiter(anonCfg, localLimiterKeys)
	if err != nil {
		return nil, nil, err
	}
	return authenticated, anonymous, nil
}

// newRouter builds the public API router
func newRouter(svc *services) *mux.Router {
	router := mux.NewRouter()
	router.Use(httputil.RequestIDMiddleware)
	router.Use(httputil.RecoveryMiddleware(svc.logger))
	router.Use(httputil.LoggingMiddleware(svc.logger))
	if svc.metrics != nil {
		router.Use(observability.HTTPMetricsMiddleware(svc.metrics))
	}
	router.Use(domains.Middleware(svc.resolver, domains.MiddlewareOptions{
		Store:   svc.store,
		Logger:  svc.logger,
		Metrics: svc.metrics,
	}))

	public := router.NewRoute().Subrouter()
	public.Use(svc.rateLimit.Handler)
	public.HandleFunc("/v2/domain", domainHandler).Methods(http.MethodGet)
	if svc.tokens != nil {
		public.Handle("/oauth/token", svc.tokens).Methods(http.MethodPost)
	}

	api := router.PathPrefix("/v2").Subrouter()
	api.Use(svc.authenticator.Handler)
	api.Use(svc.rateLimit.Handler)

	guarded := func(op authz.OperationID, mode authz.Mode) http.Handler {
		return svc.guard.Scopes(op)(svc.guard.TenantPermissions(op, mode)(operationHandler(op)))
	}

	api.Handle("/me", svc.guard.Scopes("me.get")(http.HandlerFunc(meHandler))).Methods(http.MethodGet)
	api.Handle("/organizations/{orgId}/roles", guarded("roles.list", authz.ModeSoft)).Methods(http.MethodGet)
	api.Handle("/organizations/{orgId}/roles", guarded("roles.create", authz.ModeHard)).Methods(http.MethodPost)
	api.Handle("/organizations/{orgId}/members", guarded("members.list", authz.ModeSoft)).Methods(http.MethodGet)
	api.Handle("/organizations/{orgId}/members", middleware.RequireUser(guarded("members.invite", authz.ModeHard))).Methods(http.MethodPost)
	api.Handle("/teams/{teamId}/bookings", guarded("bookings.list", authz.ModeSoft)).Methods(http.MethodGet)
	api.Handle("/teams/{teamId}/bookings", guarded("bookings.create", authz.ModeHard)).Methods(http.MethodPost)

	return router
}

// newHealthRouter serves probes and metrics on the health port
func newHealthRouter(checker *observability.HealthChecker, metricsHandler http.Handler) *mux.Router {
	router := mux.NewRouter()
	observability.RegisterHealthRoutes(router, checker)
	if metricsHandler != nil {
		router.Handle("/metrics", metricsHandler).Methods(http.MethodGet)
	}
	return router
}

type operationResponse struct {
	Operation            authz.OperationID `json:"operation"`
	Principal            string            `json:"principal"`
	AuthorizationChecked bool              `json:"authorizationChecked"`
}

// operationHandler reports the authorization outcome of a guarded route
func operationHandler(op authz.OperationID) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp := operationResponse{
			Operation:            op,
			AuthorizationChecked: contextkeys.AuthorizationChecked(r.Context()),
		}
		if p, ok := auth.PrincipalFromContext(r.Context()); ok {
			resp.Principal = p.Subject()
		}
		_ = httputil.WriteJSON(w, http.StatusOK, resp)
	}
}

type meResponse struct {
	Subject string               `json:"subject"`
	Kind    auth.PrincipalKind   `json:"kind"`
	Domain  domains.TenantDomain `json:"domain"`
}

func meHandler(w http.ResponseWriter, r *http.Request) {
	p, ok := auth.PrincipalFromContext(r.Context())
	if !ok {
		authz.WriteError(w, authz.Unauthenticated("authentication required"))
		return
	}
	domain, _ := domains.FromContext(r.Context())
	_ = httputil.WriteJSON(w, http.StatusOK, meResponse{Subject: p.Subject(), Kind: p.Kind(), Domain: domain})
}

func domainHandler(w http.ResponseWriter, r *http.Request) {
	domain, _ := domains.FromContext(r.Context())
	_ = httputil.WriteJSON(w, http.StatusOK, domain)
}
