// Package middleware provides HTTP middleware for authentication and rate limiting.
//
// # Authenticator
//
// Attaches an auth.Principal to the request context:
//
//	authn := middleware.NewAuthenticator(middleware.AuthenticatorConfig{
//		APIKeys:  store,
//		Sessions: store,
//		Tokens:   codec,
//	})
//	router.Use(authn.Handler)
//
// Bearer credentials starting with "cal_" are API keys, JWTs signed by
// the token codec are third-party access tokens, and any other bearer is
// an OAuth client access token. The x-cal-client-id header and the
// session cookie are consulted when no bearer is present.
//
// # Rate limiting
//
// RateLimitMiddleware limits authenticated traffic per API key or user and
// anonymous traffic per client IP. Limiters are either in-process
// (LocalRateLimiter) or shared through Redis (DistributedRateLimiter).
// Rejections attributable to an account are reported to an
// autolock.Tracker, which locks the account after repeated violations.
//
//	limits := middleware.NewRateLimitMiddleware(middleware.RateLimitMiddlewareConfig{
//		Authenticated: middleware.NewDistributedRateLimiter(client, middleware.APIKeyRateLimitConfig(), "ratelimit:auth"),
//		Tracker:       tracker,
//		FailOpen:      true,
//	})
//	router.Use(authn.Handler, limits.Handler)
package middleware
