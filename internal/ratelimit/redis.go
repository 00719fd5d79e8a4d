package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// RedisStore implements Store against Redis so limits are shared
// across horizontally scaled instances. The window is a sorted set
// scored by request time in milliseconds; the check-and-record runs
// as a single Lua script, which gives the same per-key atomicity the
// in-memory store gets from its shard lock.
type RedisStore struct {
	client redis.UniversalClient
	prefix string
}

// RedisConfig holds the Redis connection settings.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`

	// KeyPrefix namespaces all limiter keys. Defaults to "rategate".
	KeyPrefix string `yaml:"key_prefix"`
}

// takeScript trims the window, admits if below the limit, and records
// the request. Returns {allowed, count, resetMs}. count is the number
// of in-window entries before this request; resetMs is when the
// oldest in-window entry ages out.
var takeScript = redis.NewScript(`
local win = KEYS[1]
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])

redis.call("ZREMRANGEBYSCORE", win, 0, now - window)
local count = redis.call("ZCARD", win)

if count < limit then
  redis.call("ZADD", win, now, ARGV[4])
  redis.call("PEXPIRE", win, window)
  return {1, count, now + window}
end

local oldest = redis.call("ZRANGE", win, 0, 0, "WITHSCORES")
local reset = now + window
if oldest[2] then
  reset = tonumber(oldest[2]) + window
end
return {0, count, reset}
`)

// NewRedisStore creates a Redis-backed store and verifies the
// connection.
func NewRedisStore(ctx context.Context, cfg RedisConfig) (*RedisStore, error) {
	if cfg.Addr == "" {
		return nil, fmt.Errorf("redis address is required")
	}
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = "rategate"
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return &RedisStore{client: client, prefix: cfg.KeyPrefix}, nil
}

func (s *RedisStore) windowKey(key string) string { return s.prefix + ":win:" + key }
func (s *RedisStore) blockKey(key string) string  { return s.prefix + ":block:" + key }

// Take implements Store.
func (s *RedisStore) Take(ctx context.Context, key string, now time.Time, limit int, window time.Duration) (Decision, error) {
	if limit <= 0 {
		return Decision{
			Allowed:    false,
			Limit:      limit,
			RetryAfter: window,
			ResetAt:    now.Add(window),
		}, nil
	}

	// Members must be unique even when two requests share a
	// millisecond, so the member is a fresh UUID and the score
	// carries the timestamp.
	res, err := takeScript.Run(ctx, s.client,
		[]string{s.windowKey(key)},
		now.UnixMilli(), window.Milliseconds(), limit, uuid.NewString(),
	).Int64Slice()
	if err != nil {
		return Decision{}, fmt.Errorf("rate limit take for %q: %w", key, err)
	}
	if len(res) != 3 {
		return Decision{}, fmt.Errorf("rate limit take for %q: unexpected script reply %v", key, res)
	}

	allowed := res[0] == 1
	count := int(res[1])
	resetAt := time.UnixMilli(res[2])

	dec := Decision{
		Allowed: allowed,
		Limit:   limit,
		ResetAt: resetAt,
	}
	if allowed {
		dec.Remaining = limit - count - 1
	} else {
		dec.RetryAfter = resetAt.Sub(now)
	}
	return dec, nil
}

// IsBlocked implements Store using the block key's remaining TTL.
func (s *RedisStore) IsBlocked(ctx context.Context, key string, now time.Time) (time.Time, bool, error) {
	ttl, err := s.client.PTTL(ctx, s.blockKey(key)).Result()
	if err != nil {
		return time.Time{}, false, fmt.Errorf("rate limit block check for %q: %w", key, err)
	}
	// PTTL returns -2 for a missing key and -1 for a key without TTL;
	// blocks are always written with an expiry.
	if ttl <= 0 {
		return time.Time{}, false, nil
	}
	return now.Add(ttl), true, nil
}

// Block implements Store.
func (s *RedisStore) Block(ctx context.Context, key string, until time.Time) error {
	d := time.Until(until)
	if d <= 0 {
		return s.Unblock(ctx, key)
	}
	if err := s.client.Set(ctx, s.blockKey(key), "1", d).Err(); err != nil {
		return fmt.Errorf("rate limit block for %q: %w", key, err)
	}
	return nil
}

// Unblock implements Store.
func (s *RedisStore) Unblock(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, s.blockKey(key)).Err(); err != nil {
		return fmt.Errorf("rate limit unblock for %q: %w", key, err)
	}
	return nil
}

// Close releases the Redis connection.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

var _ Store = (*RedisStore)(nil)
