package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const keyPrefix = "gifpick:ratelimit:"

// slidingWindow trims hits older than the window, records the new hit when it
// fits and returns {allowed, remaining, retry_at_ms}. Scores are unix millis.
//
// ARGV: now, window, limit, member, exclusive trim bound.
var slidingWindow = redis.NewScript(`
local key = KEYS[1]
local window = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])

redis.call('ZREMRANGEBYSCORE', key, '-inf', ARGV[5])

local count = redis.call('ZCARD', key)
local allowed = 0
if count < limit then
	redis.call('ZADD', key, ARGV[1], ARGV[4])
	count = count + 1
	allowed = 1
end
redis.call('PEXPIRE', key, ARGV[2])

local retry_at = tonumber(ARGV[1]) + window
local oldest = redis.call('ZRANGE', key, 0, 0, 'WITHSCORES')
if oldest[2] then
	retry_at = tonumber(oldest[2]) + window
end

return {allowed, limit - count, retry_at}
`)

// RedisLimiter shares windows across bot replicas through Redis sorted sets.
type RedisLimiter struct {
	client *redis.Client
	log    *slog.Logger
	now    func() time.Time
}

var _ Limiter = (*RedisLimiter)(nil)

// NewRedisLimiter creates a Redis-backed limiter.
func NewRedisLimiter(client *redis.Client, log *slog.Logger) *RedisLimiter {
	if log == nil {
		log = slog.Default()
	}

	return &RedisLimiter{client: client, log: log, now: time.Now}
}

// Hit runs the sliding window script atomically for key.
func (l *RedisLimiter) Hit(ctx context.Context, key string, rule Rule) (*Decision, error) {
	if l.client == nil {
		return nil, errors.New("ratelimit: redis client is not configured")
	}

	now := l.now().UnixMilli()
	window := rule.Window.Milliseconds()
	reply, err := slidingWindow.Run(ctx, l.client,
		[]string{keyPrefix + key},
		now, window, rule.Limit, uuid.NewString(), fmt.Sprintf("(%d", now-window),
	).Int64Slice()
	if err != nil {
		l.log.Debug("rate limit script failed", slog.String("limit_key", key), slog.Any("error", err))
		return nil, fmt.Errorf("ratelimit: run script: %w", err)
	}
	if len(reply) != 3 {
		return nil, fmt.Errorf("ratelimit: unexpected script reply %v", reply)
	}

	return &Decision{
		Allowed:   reply[0] == 1,
		Remaining: int(reply[1]),
		RetryAt:   time.UnixMilli(reply[2]),
	}, nil
}
