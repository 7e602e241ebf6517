// Package auth authenticates callers of gatehouse and models who they are.
//
// # Principals
//
// Every authenticated request carries exactly one Principal:
//
//	UserPrincipal        - a first-party user signed in with a session or an API key
//	OAuthClientPrincipal - an OAuth client identified by access token or client id header
//	ThirdPartyPrincipal  - a user acting through a token issued to a third-party app
//
// Principals are sealed: only this package can add cases, so a type switch
// over the three cases is exhaustive.
//
// # API keys
//
// API keys have the form cal_<base64url(32 random bytes)>. Only the SHA256
// hash is stored; HashAPIKey derives the lookup key from a presented key.
//
//	key, hash, prefix, err := auth.GenerateAPIKey()
//	// key: give to the user once
//	// hash: store in the database
//	// prefix: show in listings
//
// # Third-party tokens
//
// TokenCodec signs and verifies the HS256 access and refresh tokens handed
// to third-party apps. The scope claim lists the scopes the user consented
// to, e.g. "BOOKING_READ SCHEDULE_READ".
//
// # Refresh token rotation
//
// Refresh tokens are single use. Rotator records every redeemed refresh
// token in a shared cache.AtomicStore; presenting one a second time fails
// with ErrRefreshTokenReused, which the token endpoint reports as
// invalid_grant / refresh_token_revoked. A rotation may narrow the granted
// scopes but never widen them.
package auth
