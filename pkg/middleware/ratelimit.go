package middleware

import (
	"context"
	"fmt"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/platinummonkey/gatehouse/pkg/auth"
	"github.com/platinummonkey/gatehouse/pkg/autolock"
	"github.com/platinummonkey/gatehouse/pkg/httputil"
	"github.com/platinummonkey/gatehouse/pkg/observability"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

// RateLimitConfig defines rate limiting configuration
type RateLimitConfig struct {
	// RequestsPerWindow is the max requests allowed in the time window
	RequestsPerWindow int
	// WindowDuration is the time window for rate limiting
	WindowDuration time.Duration
	// BurstSize allows temporary bursts above the rate
	BurstSize int
}

// DefaultRateLimitConfig returns default rate limit settings
func DefaultRateLimitConfig() *RateLimitConfig {
	return &RateLimitConfig{
		RequestsPerWindow: 100,
		WindowDuration:    time.Minute,
		BurstSize:         10,
	}
}

// APIKeyRateLimitConfig returns rate limits for API key traffic
func APIKeyRateLimitConfig() *RateLimitConfig {
	return &RateLimitConfig{
		RequestsPerWindow: 120,
		WindowDuration:    time.Minute,
		BurstSize:         20,
	}
}

// Limiter decides whether the request identified by key may proceed
type Limiter interface {
	Allow(ctx context.Context, key string) (bool, error)
	Limit() int
	// Remaining reports the requests key may still make right now
	Remaining(ctx context.Context, key string) (int, error)
}

// LocalRateLimiter is an in-process token bucket limiter per key.
// Idle keys are evicted least recently used first once maxKeys is reached.
type LocalRateLimiter struct {
	config   *RateLimitConfig
	mu       sync.Mutex
	limiters *lru.Cache[string, *rate.Limiter]
}

// NewLocalRateLimiter creates a limiter tracking at most maxKeys keys
func NewLocalRateLimiter(config *RateLimitConfig, maxKeys int) (*LocalRateLimiter, error) {
	if config == nil {
		config = DefaultRateLimitConfig()
	}
	if config.RequestsPerWindow <= 0 || config.WindowDuration <= 0 {
		return nil, fmt.Errorf("invalid rate limit: %d per %s", config.RequestsPerWindow, config.WindowDuration)
	}
	if maxKeys <= 0 {
		maxKeys = 10000
	}
	limiters, err := lru.New[string, *rate.Limiter](maxKeys)
	if err != nil {
		return nil, fmt.Errorf("failed to create limiter cache: %w", err)
	}
	return &LocalRateLimiter{config: config, limiters: limiters}, nil
}

// Allow consumes a token for key
func (rl *LocalRateLimiter) Allow(_ context.Context, key string) (bool, error) {
	return rl.limiter(key).Allow(), nil
}

// Limit returns the configured requests per window
func (rl *LocalRateLimiter) Limit() int {
	return rl.config.RequestsPerWindow
}

// Remaining returns the whole tokens left in key's bucket
func (rl *LocalRateLimiter) Remaining(_ context.Context, key string) (int, error) {
	tokens := int(math.Floor(rl.limiter(key).Tokens()))
	if tokens < 0 {
		tokens = 0
	}
	return tokens, nil
}

func (rl *LocalRateLimiter) limiter(key string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	if l, ok := rl.limiters.Get(key); ok {
		return l
	}
	every := rl.config.WindowDuration / time.Duration(rl.config.RequestsPerWindow)
	l := rate.NewLimiter(rate.Every(every), rl.config.RequestsPerWindow+rl.config.BurstSize)
	rl.limiters.Add(key, l)
	return l
}

// Len returns the number of tracked keys
func (rl *LocalRateLimiter) Len() int {
	return rl.limiters.Len()
}

// RateLimitMiddlewareConfig configures RateLimitMiddleware
type RateLimitMiddlewareConfig struct {
	// Authenticated limits requests carrying a principal or API key
	Authenticated Limiter
	// Anonymous limits everything else, keyed by client IP
	Anonymous Limiter
	// Tracker receives violations attributable to an account; optional
	Tracker *autolock.Tracker
	// FailOpen lets requests through when a limiter errors
	FailOpen bool
	Logger   logrus.FieldLogger
	Metrics  *observability.Metrics
}

// RateLimitMiddleware provides HTTP rate limiting and reports violations
// to the auto-lock tracker
type RateLimitMiddleware struct {
	authenticated Limiter
	anonymous     Limiter
	tracker       *autolock.Tracker
	failOpen      bool
	logger        logrus.FieldLogger
	metrics       *observability.Metrics
}

// NewRateLimitMiddleware creates a new rate limit middleware
func NewRateLimitMiddleware(cfg RateLimitMiddlewareConfig) *RateLimitMiddleware {
	if cfg.Logger == nil {
		cfg.Logger = observability.NopLogger()
	}
	return &RateLimitMiddleware{
		authenticated: cfg.Authenticated,
		anonymous:     cfg.Anonymous,
		tracker:       cfg.Tracker,
		failOpen:      cfg.FailOpen,
		logger:        cfg.Logger,
		metrics:       cfg.Metrics,
	}
}

// Handler wraps an HTTP handler with rate limiting. It must run after the
// Authenticator so principals are visible.
func (m *RateLimitMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		key, id, attributable := identify(r)

		limiter, name := m.anonymous, "anonymous"
		if attributable {
			limiter, name = m.authenticated, "authenticated"
		}
		if limiter == nil {
			next.ServeHTTP(w, r)
			return
		}

		allowed, err := limiter.Allow(ctx, key)
		if err != nil {
			logger := observability.FromContext(ctx, m.logger).WithError(err).WithField("limiter", name)
			if m.failOpen {
				logger.Warn("rate limiter unavailable, allowing request")
				next.ServeHTTP(w, r)
				return
			}
			logger.Error("rate limiter unavailable")
			httputil.WriteErrorMessage(w, http.StatusServiceUnavailable, "service temporarily unavailable")
			return
		}

		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(limiter.Limit()))
		if allowed {
			if remaining, err := limiter.Remaining(ctx, key); err == nil {
				w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
			} else {
				observability.FromContext(ctx, m.logger).WithError(err).WithField("limiter", name).Debug("failed to read remaining requests")
			}
			next.ServeHTTP(w, r)
			return
		}

		m.metrics.RecordRateLimitRejection(name)
		if attributable && m.tracker != nil && m.tracker.RecordViolation(ctx, id) {
			observability.FromContext(ctx, m.logger).WithField("identifier_kind", id.Kind).Warn("locked account after rate limit violations")
		}
		m.rateLimitExceeded(w)
	})
}

func (m *RateLimitMiddleware) rateLimitExceeded(w http.ResponseWriter) {
	w.Header().Set("X-RateLimit-Remaining", "0")
	httputil.WriteErrorMessage(w, http.StatusTooManyRequests, "rate limit exceeded")
}

// identify picks the rate limit key of a request. API keys and users are
// attributable to an account; anonymous and OAuth client traffic is not.
func identify(r *http.Request) (key string, id autolock.Identifier, attributable bool) {
	if token, ok := httputil.BearerToken(r); ok && auth.IsAPIKey(token) {
		id = autolock.APIKeyIdentifier(token)
		return "apikey:" + auth.HashAPIKey(token), id, true
	}
	if principal, ok := auth.PrincipalFromContext(r.Context()); ok {
		if userID, ok := auth.UserID(principal); ok {
			return "user:" + strconv.FormatInt(userID, 10), autolock.UserIdentifier(userID), true
		}
	}
	return "ip:" + clientIP(r), autolock.Identifier{}, false
}

func clientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		first, _, _ := strings.Cut(forwarded, ",")
		return strings.TrimSpace(first)
	}
	if realIP := r.Header.Get("X-Real-IP"); realIP != "" {
		return realIP
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
