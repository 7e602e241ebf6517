// Package config loads gatehouse configuration from environment variables.
//
// Every setting has a default except the Postgres URL. LoadConfig
// validates the result before returning it.
//
// Server:
//
//	GATEHOUSE_HOST="0.0.0.0"
//	GATEHOUSE_PORT="8080"
//	GATEHOUSE_HEALTH_PORT="9090"
//
// Persistence and cache:
//
//	GATEHOUSE_POSTGRES_URL="postgres://localhost:5432/cal?sslmode=disable"
//	GATEHOUSE_POSTGRES_REPLICA_URLS="postgres://replica1/cal,postgres://replica2/cal"
//	GATEHOUSE_REDIS_URL="redis://localhost:6379/0"  # in-process cache when empty
//
// Authorization:
//
//	GATEHOUSE_OPERATIONS_FILE="operations.yaml"
//	GATEHOUSE_PERMISSION_CACHE_TTL="5m"
//	GATEHOUSE_FALLBACK_ROLES="OWNER,ADMIN"
//
// Organization domains:
//
//	GATEHOUSE_ALLOWED_HOSTNAMES="cal.com,cal.dev"
//	GATEHOUSE_RESERVED_SUBDOMAINS="app,www,api"
//	GATEHOUSE_SINGLE_ORG_SLUG=""
//	GATEHOUSE_TRUSTED_FORWARDED_HOSTS="proxy.cal.com"
//
// Abuse protection:
//
//	GATEHOUSE_AUTOLOCK_THRESHOLD="5"
//	GATEHOUSE_AUTOLOCK_WINDOW="1800"  # seconds or a Go duration
//	GATEHOUSE_RATELIMIT_AUTHENTICATED_PER_MINUTE="120"
//	GATEHOUSE_RATELIMIT_FAIL_OPEN="true"
//
// Third-party tokens:
//
//	GATEHOUSE_THIRD_PARTY_JWT_SECRET=""  # at least 32 bytes; empty disables JWTs
//
// Observability:
//
//	GATEHOUSE_LOG_LEVEL="info"
//	GATEHOUSE_OTEL_ENABLED="false"
//	GATEHOUSE_OTEL_ENDPOINT="localhost:4317"
package config
