package autolock

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/platinummonkey/gatehouse/pkg/audit"
	"github.com/platinummonkey/gatehouse/pkg/auth"
	"github.com/platinummonkey/gatehouse/pkg/cache"
	"github.com/platinummonkey/gatehouse/pkg/observability"
	"github.com/sirupsen/logrus"
)

const (
	// DefaultThreshold is the number of violations that triggers a lock
	DefaultThreshold = 5
	// DefaultWindow is how long a counter survives without a new violation
	DefaultWindow = 30 * time.Minute

	namespace = "autolock"
)

// IdentifierKind names what a violation was attributed to
type IdentifierKind string

const (
	KindEmail  IdentifierKind = "email"
	KindUserID IdentifierKind = "user_id"
	KindAPIKey IdentifierKind = "api_key"
)

// Identifier is the subject a rate limiter attributes a violation to.
// For KindAPIKey, Value is the raw key as presented by the client.
type Identifier struct {
	Kind  IdentifierKind
	Value string
}

// EmailIdentifier attributes violations to an email address
func EmailIdentifier(email string) Identifier {
	return Identifier{Kind: KindEmail, Value: strings.ToLower(strings.TrimSpace(email))}
}

// UserIdentifier attributes violations to a user id
func UserIdentifier(userID int64) Identifier {
	return Identifier{Kind: KindUserID, Value: strconv.FormatInt(userID, 10)}
}

// APIKeyIdentifier attributes violations to a raw API key
func APIKeyIdentifier(key string) Identifier {
	return Identifier{Kind: KindAPIKey, Value: key}
}

// Key returns the cache key of the identifier's counter. Emails and API
// keys are hashed so the cache never holds them in the clear.
func (id Identifier) Key() string {
	value := id.Value
	switch id.Kind {
	case KindEmail:
		sum := sha256.Sum256([]byte(value))
		value = hex.EncodeToString(sum[:])
	case KindAPIKey:
		value = auth.HashAPIKey(value)
	}
	return cache.Key(namespace, string(id.Kind), value)
}

// ErrNoOwner is returned by a Locker when an API key has no owning user
var ErrNoOwner = errors.New("api key has no owning user")

// Locker performs account locks against the source of truth
type Locker interface {
	LockByEmail(ctx context.Context, email string) error
	LockByUserID(ctx context.Context, userID int64) error
	// UserIDByAPIKeyHash resolves a hashed API key to its owner. It returns
	// found=false when no such key exists.
	UserIDByAPIKeyHash(ctx context.Context, hashedKey string) (userID int64, found bool, err error)
}

// Config configures a Tracker
type Config struct {
	Store     cache.Store
	Locker    Locker
	Threshold int
	Window    time.Duration
	Logger    logrus.FieldLogger
	Metrics   *observability.Metrics
	// Audit records each lock; optional
	Audit audit.Logger
}

// Tracker counts violations and locks accounts once the threshold is hit.
// Concurrent violations for one identifier may race on the counter; a lost
// increment only delays the lock by one violation.
type Tracker struct {
	store     cache.Store
	locker    Locker
	threshold int
	window    time.Duration
	logger    logrus.FieldLogger
	metrics   *observability.Metrics
	audit     audit.Logger
}

// NewTracker creates a Tracker, filling zero settings with defaults
func NewTracker(cfg Config) (*Tracker, error) {
	if cfg.Store == nil {
		return nil, errors.New("autolock: store is required")
	}
	if cfg.Locker == nil {
		return nil, errors.New("autolock: locker is required")
	}
	if cfg.Threshold <= 0 {
		cfg.Threshold = DefaultThreshold
	}
	if cfg.Window <= 0 {
		cfg.Window = DefaultWindow
	}
	if cfg.Logger == nil {
		cfg.Logger = observability.NopLogger()
	}
	return &Tracker{
		store:     cfg.Store,
		locker:    cfg.Locker,
		threshold: cfg.Threshold,
		window:    cfg.Window,
		logger:    cfg.Logger,
		metrics:   cfg.Metrics,
		audit:     cfg.Audit,
	}, nil
}

// Threshold returns the configured lock threshold
func (t *Tracker) Threshold() int {
	return t.threshold
}

// RecordViolation registers one rate-limit violation for id and reports
// whether it locked the account. It must only be called on violations.
func (t *Tracker) RecordViolation(ctx context.Context, id Identifier) bool {
	key := id.Key()
	logger := observability.FromContext(ctx, t.logger).WithFields(logrus.Fields{
		"identifier_kind": id.Kind,
		"key":             key,
	})

	count, err := t.count(ctx, key)
	if err != nil {
		logger.WithError(err).Warn("auto-lock counter unavailable")
		return false
	}

	if count+1 < t.threshold {
		if err := t.store.Set(ctx, key, strconv.Itoa(count+1), t.window); err != nil {
			logger.WithError(err).Warn("failed to record auto-lock violation")
			return false
		}
		t.metrics.RecordAutoLock(string(id.Kind), false)
		return false
	}

	userID, err := t.lock(ctx, id)
	if err != nil {
		logger.WithError(err).Error("auto-lock failed")
		return false
	}
	if err := t.store.Delete(ctx, key); err != nil {
		logger.WithError(err).Warn("failed to reset auto-lock counter")
	}

	t.metrics.RecordAutoLock(string(id.Kind), true)
	logger.WithField("violations", count+1).Warn("account locked after repeated rate limit violations")

	event := audit.NewEvent(ctx, audit.EventTypeAccountLocked, audit.EventStatusSuccess)
	event.Target = string(id.Kind)
	event.Message = "account locked after repeated rate limit violations"
	event.Metadata = map[string]string{"violations": strconv.Itoa(count + 1), "key": key}
	if userID > 0 {
		event.UserID = &userID
	}
	audit.Record(ctx, t.audit, logger, event)
	return true
}

// count reads the counter; absent or malformed values count as zero
func (t *Tracker) count(ctx context.Context, key string) (int, error) {
	raw, found, err := t.store.Get(ctx, key)
	if err != nil || !found {
		return 0, err
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, nil
	}
	return n, nil
}

// lock locks the account behind id and returns its user id when known
func (t *Tracker) lock(ctx context.Context, id Identifier) (int64, error) {
	switch id.Kind {
	case KindEmail:
		return 0, t.locker.LockByEmail(ctx, id.Value)
	case KindUserID:
		userID, err := strconv.ParseInt(id.Value, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid user id %q: %w", id.Value, err)
		}
		return userID, t.locker.LockByUserID(ctx, userID)
	case KindAPIKey:
		hashed := auth.HashAPIKey(id.Value)
		userID, found, err := t.locker.UserIDByAPIKeyHash(ctx, hashed)
		if err != nil {
			return 0, fmt.Errorf("failed to resolve api key owner: %w", err)
		}
		if !found {
			return 0, fmt.Errorf("%w: prefix %s", ErrNoOwner, auth.ExtractPrefix(id.Value))
		}
		return userID, t.locker.LockByUserID(ctx, userID)
	default:
		return 0, fmt.Errorf("unknown identifier kind %q", id.Kind)
	}
}
