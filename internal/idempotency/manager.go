// Package idempotency suppresses repeated processing of the same Telegram update.
package idempotency

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/Proton-105/gifpick-bot/pkg/config"
)

const (
	defaultTTL     = 24 * time.Hour
	defaultLockTTL = time.Minute
)

// ErrRequestInProgress is returned while another delivery of the same update is being handled.
var ErrRequestInProgress = errors.New("request with this key is already in progress")

// Operation is the work guarded by a key.
type Operation func(ctx context.Context) error

// Result reports how Execute treated the key.
type Result struct {
	// FromCache is true when the key had already completed and fn was not run.
	FromCache bool
}

// Manager runs each keyed operation at most once per TTL.
type Manager interface {
	Execute(ctx context.Context, key string, fn Operation) (*Result, error)
}

type manager struct {
	store   Store
	ttl     time.Duration
	lockTTL time.Duration
	log     *slog.Logger
	now     func() time.Time
}

// NewManager applies defaults for zero TTLs.
func NewManager(store Store, cfg config.IdempotencyConfig, log *slog.Logger) Manager {
	if log == nil {
		log = slog.Default()
	}
	if cfg.TTL <= 0 {
		cfg.TTL = defaultTTL
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = defaultLockTTL
	}

	return &manager{
		store:   store,
		ttl:     cfg.TTL,
		lockTTL: cfg.LockTTL,
		log:     log,
		now:     time.Now,
	}
}

// Execute runs fn once per key. A concurrent duplicate gets ErrRequestInProgress, a later one
// a cached Result. Failed runs are not recorded so a redelivery can try again.
func (m *manager) Execute(ctx context.Context, key string, fn Operation) (*Result, error) {
	if fn == nil {
		return nil, errors.New("operation fn cannot be nil")
	}

	owner, err := m.store.Lock(ctx, key, m.lockTTL)
	if err != nil {
		return nil, err
	}

	done, err := m.completed(ctx, key)
	if owner == "" {
		switch {
		case err != nil:
			return nil, err
		case done:
			return &Result{FromCache: true}, nil
		default:
			return nil, ErrRequestInProgress
		}
	}
	defer m.unlock(ctx, key, owner)

	if err != nil {
		return nil, err
	}
	if done {
		return &Result{FromCache: true}, nil
	}

	if err := fn(ctx); err != nil {
		return nil, err
	}

	if err := m.store.MarkCompleted(ctx, key, m.now(), m.ttl); err != nil {
		m.log.Warn("failed to record completed update",
			slog.String("idempotency_key", key),
			slog.String("error", err.Error()),
		)
	}

	return &Result{}, nil
}

func (m *manager) completed(ctx context.Context, key string) (bool, error) {
	at, err := m.store.CompletedAt(ctx, key)
	if err != nil {
		return false, err
	}
	return !at.IsZero(), nil
}

func (m *manager) unlock(ctx context.Context, key, owner string) {
	// the handler may have consumed ctx's deadline; the lock must still go
	unlockCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
	defer cancel()

	if err := m.store.Unlock(unlockCtx, key, owner); err != nil {
		m.log.Warn("failed to release idempotency lock",
			slog.String("idempotency_key", key),
			slog.String("error", err.Error()),
		)
	}
}
