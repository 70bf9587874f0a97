// Package redis stores fixed-window counters in Redis so every instance of the
// service shares the same limits. Windows expire through key TTLs.
package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"haven/internal/ratelimit/models"
)

const keyPrefix = "haven:ratelimit:"

// hitScript opens, counts or rejects atomically.
// KEYS[1] counter key, ARGV[1] limit, ARGV[2] window in ms.
// Returns {count, ttl_ms, allowed}.
var hitScript = redis.NewScript(`
local count = redis.call('GET', KEYS[1])
if not count then
	redis.call('SET', KEYS[1], 1, 'PX', ARGV[2])
	return {1, tonumber(ARGV[2]), 1}
end
count = tonumber(count)
local ttl = redis.call('PTTL', KEYS[1])
if ttl < 0 then
	redis.call('PEXPIRE', KEYS[1], ARGV[2])
	ttl = tonumber(ARGV[2])
end
if count >= tonumber(ARGV[1]) then
	return {count, ttl, 0}
end
count = redis.call('INCR', KEYS[1])
return {count, ttl, 1}
`)

// RedisWindowStore implements the counter store on Redis.
type RedisWindowStore struct {
	client redis.UniversalClient
}

// New creates a Redis-backed window store.
func New(client redis.UniversalClient) *RedisWindowStore {
	return &RedisWindowStore{client: client}
}

// Hit counts one request against key. The reset time is derived from the key
// TTL so it follows the Redis clock rather than the caller's.
func (s *RedisWindowStore) Hit(ctx context.Context, key string, limit int, window time.Duration, now time.Time) (models.Window, bool, error) {
	res, err := hitScript.Run(ctx, s.client, []string{keyPrefix + key}, limit, window.Milliseconds()).Int64Slice()
	if err != nil {
		return models.Window{}, false, fmt.Errorf("rate limit script: %w", err)
	}
	if len(res) != 3 {
		return models.Window{}, false, fmt.Errorf("rate limit script: unexpected reply length %d", len(res))
	}
	return models.Window{
		Count:   int(res[0]),
		ResetAt: now.Add(time.Duration(res[1]) * time.Millisecond),
	}, res[2] == 1, nil
}

// Reset clears the counter for a key.
func (s *RedisWindowStore) Reset(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, keyPrefix+key).Err(); err != nil {
		return fmt.Errorf("reset rate limit: %w", err)
	}
	return nil
}
