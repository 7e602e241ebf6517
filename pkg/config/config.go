package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/platinummonkey/gatehouse/pkg/auth"
	"github.com/platinummonkey/gatehouse/pkg/autolock"
	"github.com/platinummonkey/gatehouse/pkg/cache"
	"github.com/platinummonkey/gatehouse/pkg/domains"
	"github.com/platinummonkey/gatehouse/pkg/observability"
	"github.com/platinummonkey/gatehouse/pkg/storage/postgres"
)

// minSecretLength is the shortest accepted HS256 signing secret
const minSecretLength = 32

// Config holds all application configuration
type Config struct {
	Server        ServerConfig
	Database      postgres.ConnectionConfig
	Redis         cache.RedisConfig
	Authorization AuthorizationConfig
	Domains       domains.Config
	AutoLock      AutoLockConfig
	RateLimit     RateLimitConfig
	Tokens        TokenConfig
	Audit         AuditConfig
	Observability ObservabilityConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration

	// Health/metrics server (separate port for k8s probes)
	HealthPort string
}

// AuthorizationConfig configures the decision engine
type AuthorizationConfig struct {
	// OperationsFile is the YAML operation registry
	OperationsFile string
	CacheTTL       time.Duration
	// CacheSize bounds the in-process cache used when Redis is not configured
	CacheSize     int
	FallbackRoles []string
	Feature       string
}

// AutoLockConfig configures violation escalation
type AutoLockConfig struct {
	Threshold int
	Window    time.Duration
}

// RateLimitConfig configures request limits per minute
type RateLimitConfig struct {
	AuthenticatedPerMinute int
	AnonymousPerMinute     int
	Burst                  int
	FailOpen               bool
}

// TokenConfig configures third-party JWT signing. An empty secret disables
// JWT authentication and the token endpoint.
type TokenConfig struct {
	Secret     string
	Issuer     string
	AccessTTL  time.Duration
	RefreshTTL time.Duration
}

// AuditConfig selects where security events are recorded
type AuditConfig struct {
	Enabled bool
	// Database persists events to the audit_events table in addition to the log
	Database bool
}

// ObservabilityConfig holds observability settings
type ObservabilityConfig struct {
	LogLevel       string
	MetricsEnabled bool
	OTel           observability.OTelConfig
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	cfg := &Config{
		Server:        loadServerConfig(),
		Database:      loadDatabaseConfig(),
		Redis:         loadRedisConfig(),
		Authorization: loadAuthorizationConfig(),
		Domains:       loadDomainsConfig(),
		AutoLock: AutoLockConfig{
			Threshold: getEnvInt("GATEHOUSE_AUTOLOCK_THRESHOLD", autolock.DefaultThreshold),
			Window:    getEnvDuration("GATEHOUSE_AUTOLOCK_WINDOW", autolock.DefaultWindow),
		},
		RateLimit: RateLimitConfig{
			AuthenticatedPerMinute: getEnvInt("GATEHOUSE_RATELIMIT_AUTHENTICATED_PER_MINUTE", 120),
			AnonymousPerMinute:     getEnvInt("GATEHOUSE_RATELIMIT_ANONYMOUS_PER_MINUTE", 60),
			Burst:                  getEnvInt("GATEHOUSE_RATELIMIT_BURST", 20),
			FailOpen:               getEnvBool("GATEHOUSE_RATELIMIT_FAIL_OPEN", true),
		},
		Tokens: TokenConfig{
			Secret:     getEnv("GATEHOUSE_THIRD_PARTY_JWT_SECRET", ""),
			Issuer:     getEnv("GATEHOUSE_THIRD_PARTY_JWT_ISSUER", auth.DefaultIssuer),
			AccessTTL:  getEnvDuration("GATEHOUSE_ACCESS_TOKEN_TTL", auth.DefaultAccessTokenTTL),
			RefreshTTL: getEnvDuration("GATEHOUSE_REFRESH_TOKEN_TTL", auth.DefaultRefreshTokenTTL),
		},
		Audit: AuditConfig{
			Enabled:  getEnvBool("GATEHOUSE_AUDIT_ENABLED", true),
			Database: getEnvBool("GATEHOUSE_AUDIT_DATABASE", true),
		},
		Observability: loadObservabilityConfig(),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

func loadServerConfig() ServerConfig {
	return ServerConfig{
		Host:            getEnv("GATEHOUSE_HOST", "0.0.0.0"),
		Port:            getEnv("GATEHOUSE_PORT", "8080"),
		ReadTimeout:     getEnvDuration("GATEHOUSE_READ_TIMEOUT", 15*time.Second),
		WriteTimeout:    getEnvDuration("GATEHOUSE_WRITE_TIMEOUT", 15*time.Second),
		IdleTimeout:     getEnvDuration("GATEHOUSE_IDLE_TIMEOUT", 60*time.Second),
		ShutdownTimeout: getEnvDuration("GATEHOUSE_SHUTDOWN_TIMEOUT", 30*time.Second),
		HealthPort:      getEnv("GATEHOUSE_HEALTH_PORT", "9090"),
	}
}

func loadDatabaseConfig() postgres.ConnectionConfig {
	return postgres.ConnectionConfig{
		PrimaryURL:  getEnv("GATEHOUSE_POSTGRES_URL", ""),
		ReplicaURLs: postgres.ParseReplicaURLs(getEnv("GATEHOUSE_POSTGRES_REPLICA_URLS", "")),
		MaxConns:    getEnvInt("GATEHOUSE_POSTGRES_MAX_CONNS", 20),
		MinConns:    getEnvInt("GATEHOUSE_POSTGRES_MIN_CONNS", 2),
		Timeout:     getEnvDuration("GATEHOUSE_POSTGRES_TIMEOUT", 5*time.Second),
		MaxLifetime: getEnvDuration("GATEHOUSE_POSTGRES_MAX_LIFETIME", time.Hour),
		MaxIdleTime: getEnvDuration("GATEHOUSE_POSTGRES_MAX_IDLE_TIME", 10*time.Minute),
	}
}

func loadRedisConfig() cache.RedisConfig {
	return cache.RedisConfig{
		URL:        getEnv("GATEHOUSE_REDIS_URL", ""),
		Password:   getEnv("GATEHOUSE_REDIS_PASSWORD", ""),
		DB:         getEnvInt("GATEHOUSE_REDIS_DB", 0),
		MaxRetries: getEnvInt("GATEHOUSE_REDIS_MAX_RETRIES", 3),
		PoolSize:   getEnvInt("GATEHOUSE_REDIS_POOL_SIZE", 10),
	}
}

func loadAuthorizationConfig() AuthorizationConfig {
	return AuthorizationConfig{
		OperationsFile: getEnv("GATEHOUSE_OPERATIONS_FILE", "operations.yaml"),
		CacheTTL:       getEnvDuration("GATEHOUSE_PERMISSION_CACHE_TTL", cache.DefaultTTL),
		CacheSize:      getEnvInt("GATEHOUSE_PERMISSION_CACHE_SIZE", cache.DefaultMemoryStoreSize),
		FallbackRoles:  getEnvList("GATEHOUSE_FALLBACK_ROLES", []string{"OWNER", "ADMIN"}),
		Feature:        getEnv("GATEHOUSE_PBAC_FEATURE", "pbac"),
	}
}

func loadDomainsConfig() domains.Config {
	return domains.Config{
		AllowedHosts:          getEnvList("GATEHOUSE_ALLOWED_HOSTNAMES", []string{"cal.com", "cal.dev"}),
		ReservedSubdomains:    getEnvList("GATEHOUSE_RESERVED_SUBDOMAINS", domains.DefaultReservedSubdomains),
		SingleOrgSlug:         getEnv("GATEHOUSE_SINGLE_ORG_SLUG", ""),
		TrustedForwardedHosts: getEnvList("GATEHOUSE_TRUSTED_FORWARDED_HOSTS", nil),
	}
}

func loadObservabilityConfig() ObservabilityConfig {
	return ObservabilityConfig{
		LogLevel:       getEnv("GATEHOUSE_LOG_LEVEL", "info"),
		MetricsEnabled: getEnvBool("GATEHOUSE_METRICS_ENABLED", true),
		OTel: observability.OTelConfig{
			Enabled:        getEnvBool("GATEHOUSE_OTEL_ENABLED", false),
			Endpoint:       getEnv("GATEHOUSE_OTEL_ENDPOINT", "localhost:4317"),
			ServiceName:    getEnv("GATEHOUSE_OTEL_SERVICE_NAME", "gatehouse"),
			ServiceVersion: getEnv("GATEHOUSE_OTEL_SERVICE_VERSION", "1.0.0"),
			Insecure:       getEnvBool("GATEHOUSE_OTEL_INSECURE", true),
		},
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("server port is required")
	}
	if c.Server.HealthPort == "" {
		return fmt.Errorf("health port is required")
	}
	if c.Server.Port == c.Server.HealthPort {
		return fmt.Errorf("server port and health port must be different")
	}

	if c.Database.PrimaryURL == "" {
		return fmt.Errorf("postgres URL is required")
	}

	if c.Authorization.OperationsFile == "" {
		return fmt.Errorf("operations file is required")
	}
	if c.Authorization.CacheTTL <= 0 {
		return fmt.Errorf("permission cache TTL must be positive, got %s", c.Authorization.CacheTTL)
	}
	if c.Authorization.Feature == "" {
		return fmt.Errorf("PBAC feature name is required")
	}

	if len(c.Domains.AllowedHosts) == 0 && c.Domains.SingleOrgSlug == "" {
		return fmt.Errorf("at least one allowed hostname is required unless a single org slug is set")
	}

	if c.AutoLock.Threshold < 1 {
		return fmt.Errorf("auto-lock threshold must be at least 1, got %d", c.AutoLock.Threshold)
	}
	if c.AutoLock.Window <= 0 {
		return fmt.Errorf("auto-lock window must be positive, got %s", c.AutoLock.Window)
	}

	if c.RateLimit.AuthenticatedPerMinute <= 0 || c.RateLimit.AnonymousPerMinute <= 0 {
		return fmt.Errorf("rate limits must be positive")
	}
	if c.RateLimit.Burst < 0 {
		return fmt.Errorf("rate limit burst must not be negative")
	}

	if c.Tokens.Secret != "" {
		if len(c.Tokens.Secret) < minSecretLength {
			return fmt.Errorf("third-party JWT secret must be at least %d bytes", minSecretLength)
		}
		if c.Tokens.AccessTTL <= 0 || c.Tokens.RefreshTTL <= 0 {
			return fmt.Errorf("token TTLs must be positive")
		}
	}

	if c.Observability.OTel.Enabled {
		if c.Observability.OTel.Endpoint == "" {
			return fmt.Errorf("OpenTelemetry endpoint is required when OTel is enabled")
		}
		if c.Observability.OTel.ServiceName == "" {
			return fmt.Errorf("OpenTelemetry service name is required when OTel is enabled")
		}
	}

	return nil
}

// getEnv returns an environment variable value or a default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool returns a boolean environment variable or a default
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return strings.ToLower(value) == "true" || value == "1"
	}
	return defaultValue
}

// getEnvInt returns an integer environment variable or a default
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvDuration returns a duration environment variable or a default.
// Bare integers are read as seconds.
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
		if seconds, err := strconv.Atoi(value); err == nil {
			return time.Duration(seconds) * time.Second
		}
	}
	return defaultValue
}

// getEnvList returns a comma separated environment variable or a default
func getEnvList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
