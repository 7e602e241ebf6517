package domains

import (
	"context"
	"net/http"

	"github.com/platinummonkey/gatehouse/pkg/contextkeys"
	"github.com/platinummonkey/gatehouse/pkg/observability"
	"github.com/sirupsen/logrus"
)

// FallbackSlugParam is the query parameter read as the fallback slug
const FallbackSlugParam = "orgSlug"

// MiddlewareOptions wires optional per-request inputs
type MiddlewareOptions struct {
	// ForcedSlug extracts a slug from trusted, server-established request
	// state such as an authenticated platform client. Nil disables it.
	ForcedSlug func(*http.Request) string
	Store      VerifiedDomainStore
	Logger     logrus.FieldLogger
	Metrics    *observability.Metrics
}

// Middleware resolves the tenant domain of every request and stores it in the context
func Middleware(resolver *Resolver, opts MiddlewareOptions) func(http.Handler) http.Handler {
	logger := opts.Logger
	if logger == nil {
		logger = observability.NopLogger()
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			resolveOpts := Options{FallbackSlug: r.URL.Query().Get(FallbackSlugParam)}
			if opts.ForcedSlug != nil {
				resolveOpts.ForcedSlug = opts.ForcedSlug(r)
			}

			domain, err := resolver.ResolveVerified(r.Context(), resolver.EffectiveHost(r), resolveOpts, opts.Store)
			if err != nil {
				observability.FromContext(r.Context(), logger).WithError(err).Warn("treating custom domain as unverified")
			}
			opts.Metrics.RecordDomain(string(domain.Source))

			ctx := contextkeys.WithTenantDomain(r.Context(), domain)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// FromContext returns the tenant domain resolved by Middleware
func FromContext(ctx context.Context) (TenantDomain, bool) {
	d, ok := ctx.Value(contextkeys.TenantDomainKey).(TenantDomain)
	return d, ok
}
