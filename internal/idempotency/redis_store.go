package idempotency

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const keyPrefix = "gifpick:update:"

// Store keeps per-update locks and completion markers.
type Store interface {
	// Lock takes the processing lock for key and returns the owner token, or "" when already held.
	Lock(ctx context.Context, key string, ttl time.Duration) (string, error)
	// Unlock releases the lock only if owner still holds it.
	Unlock(ctx context.Context, key, owner string) error
	// CompletedAt returns when key finished, or the zero time when it has not.
	CompletedAt(ctx context.Context, key string) (time.Time, error)
	MarkCompleted(ctx context.Context, key string, at time.Time, ttl time.Duration) error
}

// compareAndDelete drops the lock only when it still carries the caller's token,
// so a holder whose lock expired cannot release the next holder's lock.
var compareAndDelete = redis.NewScript(`
if redis.call('GET', KEYS[1]) == ARGV[1] then
	return redis.call('DEL', KEYS[1])
end
return 0
`)

// RedisStore implements Store with plain string keys.
type RedisStore struct {
	client *redis.Client
	log    *slog.Logger
}

var _ Store = (*RedisStore)(nil)

func NewRedisStore(client *redis.Client, log *slog.Logger) *RedisStore {
	if log == nil {
		log = slog.Default()
	}

	return &RedisStore{client: client, log: log}
}

func (s *RedisStore) Lock(ctx context.Context, key string, ttl time.Duration) (string, error) {
	owner := uuid.NewString()
	acquired, err := s.client.SetNX(ctx, lockKey(key), owner, ttl).Result()
	if err != nil {
		s.log.Error("failed to acquire idempotency lock", slog.String("idempotency_key", key), slog.Any("error", err))
		return "", err
	}
	if !acquired {
		return "", nil
	}

	return owner, nil
}

func (s *RedisStore) Unlock(ctx context.Context, key, owner string) error {
	if err := compareAndDelete.Run(ctx, s.client, []string{lockKey(key)}, owner).Err(); err != nil {
		s.log.Error("failed to release idempotency lock", slog.String("idempotency_key", key), slog.Any("error", err))
		return err
	}

	return nil
}

func (s *RedisStore) CompletedAt(ctx context.Context, key string) (time.Time, error) {
	raw, err := s.client.Get(ctx, doneKey(key)).Result()
	if errors.Is(err, redis.Nil) {
		return time.Time{}, nil
	}
	if err != nil {
		s.log.Error("failed to read idempotency marker", slog.String("idempotency_key", key), slog.Any("error", err))
		return time.Time{}, err
	}

	at, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		// a marker exists, its value is informational only
		return time.Unix(0, 0).UTC(), nil
	}
	return at, nil
}

func (s *RedisStore) MarkCompleted(ctx context.Context, key string, at time.Time, ttl time.Duration) error {
	if err := s.client.Set(ctx, doneKey(key), at.UTC().Format(time.RFC3339Nano), ttl).Err(); err != nil {
		s.log.Error("failed to store idempotency marker", slog.String("idempotency_key", key), slog.Any("error", err))
		return err
	}

	return nil
}

func doneKey(key string) string {
	return keyPrefix + key + ":done"
}

func lockKey(key string) string {
	return keyPrefix + key + ":lock"
}
