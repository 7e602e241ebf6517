package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver
	"github.com/platinummonkey/gatehouse/pkg/observability"
	"github.com/sirupsen/logrus"
)

// ConnectionConfig holds database connection configuration
type ConnectionConfig struct {
	PrimaryURL  string
	ReplicaURLs []string
	MaxConns    int
	MinConns    int
	Timeout     time.Duration
	MaxLifetime time.Duration
	MaxIdleTime time.Duration
}

// DB holds the primary connection and optional read replicas.
// Permission lookups read from replicas; locks write to the primary.
type DB struct {
	primary  *sql.DB
	replicas []*sql.DB
	current  uint32 // atomic round-robin counter
	mu       sync.RWMutex
}

// Open connects to the primary and every reachable replica. Unreachable
// replicas are logged and skipped.
func Open(ctx context.Context, config ConnectionConfig, logger logrus.FieldLogger) (*DB, error) {
	if logger == nil {
		logger = observability.NopLogger()
	}
	if config.Timeout <= 0 {
		config.Timeout = 5 * time.Second
	}

	primary, err := connect(ctx, config.PrimaryURL, config.MaxConns, config)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to primary: %w", err)
	}

	db := &DB{primary: primary}

	replicaMaxConns := config.MaxConns / 2
	if replicaMaxConns < 2 {
		replicaMaxConns = 2
	}
	for i, url := range config.ReplicaURLs {
		replica, err := connect(ctx, url, replicaMaxConns, config)
		if err != nil {
			logger.WithError(err).WithField("replica", i).Warn("skipping unreachable replica")
			continue
		}
		db.replicas = append(db.replicas, replica)
	}

	logger.WithField("replicas", len(db.replicas)).Info("connected to postgres")
	return db, nil
}

func connect(ctx context.Context, url string, maxConns int, config ConnectionConfig) (*sql.DB, error) {
	conn, err := sql.Open("postgres", url)
	if err != nil {
		return nil, err
	}
	if maxConns > 0 {
		conn.SetMaxOpenConns(maxConns)
	}
	conn.SetMaxIdleConns(config.MinConns)
	conn.SetConnMaxLifetime(config.MaxLifetime)
	conn.SetConnMaxIdleTime(config.MaxIdleTime)

	pingCtx, cancel := context.WithTimeout(ctx, config.Timeout)
	defer cancel()
	if err := conn.PingContext(pingCtx); err != nil {
		conn.Close()
		return nil, err
	}
	return conn, nil
}

// NewDB wraps existing connections, e.g. for tests
func NewDB(primary *sql.DB, replicas ...*sql.DB) *DB {
	return &DB{primary: primary, replicas: replicas}
}

// Primary returns the primary database connection (for writes)
func (db *DB) Primary() *sql.DB {
	return db.primary
}

// Replica returns a read replica using round-robin selection.
// Falls back to primary if no replicas are available.
func (db *DB) Replica() *sql.DB {
	db.mu.RLock()
	defer db.mu.RUnlock()

	if len(db.replicas) == 0 {
		return db.primary
	}
	index := atomic.AddUint32(&db.current, 1)
	return db.replicas[int(index%uint32(len(db.replicas)))]
}

// HealthCheck pings the primary. Replicas are only reported when all of
// them are down.
func (db *DB) HealthCheck(ctx context.Context) error {
	if err := db.primary.PingContext(ctx); err != nil {
		return fmt.Errorf("primary unhealthy: %w", err)
	}

	db.mu.RLock()
	replicas := append([]*sql.DB(nil), db.replicas...)
	db.mu.RUnlock()

	var unhealthy []string
	for i, replica := range replicas {
		if err := replica.PingContext(ctx); err != nil {
			unhealthy = append(unhealthy, fmt.Sprintf("replica-%d", i))
		}
	}
	if len(unhealthy) > 0 && len(unhealthy) == len(replicas) {
		return fmt.Errorf("all replicas unhealthy: %s", strings.Join(unhealthy, ", "))
	}
	return nil
}

// RemoveUnhealthyReplicas closes and drops replicas that fail a ping
func (db *DB) RemoveUnhealthyReplicas(ctx context.Context) int {
	db.mu.Lock()
	defer db.mu.Unlock()

	healthy := db.replicas[:0]
	removed := 0
	for _, replica := range db.replicas {
		if err := replica.PingContext(ctx); err != nil {
			replica.Close()
			removed++
			continue
		}
		healthy = append(healthy, replica)
	}
	db.replicas = healthy
	return removed
}

// Close closes all database connections
func (db *DB) Close() error {
	errs := []error{}
	if err := db.primary.Close(); err != nil {
		errs = append(errs, fmt.Errorf("primary close error: %w", err))
	}

	db.mu.Lock()
	replicas := db.replicas
	db.replicas = nil
	db.mu.Unlock()

	for i, replica := range replicas {
		if err := replica.Close(); err != nil {
			errs = append(errs, fmt.Errorf("replica-%d close error: %w", i, err))
		}
	}
	return errors.Join(errs...)
}

// ParseReplicaURLs parses a comma-separated list of replica URLs
func ParseReplicaURLs(replicaURLs string) []string {
	if replicaURLs == "" {
		return nil
	}
	var result []string
	for _, url := range strings.Split(replicaURLs, ",") {
		if trimmed := strings.TrimSpace(url); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}
