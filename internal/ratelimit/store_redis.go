package ratelimit

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// RedisBucketStore implements BucketStore on a Redis sorted set per key,
// scored by event time. All nodes share the window, so the check stays
// authoritative behind a load balancer.
type RedisBucketStore struct {
	client redis.Cmdable
	now    func() time.Time
}

func NewRedisBucketStore(client redis.Cmdable) *RedisBucketStore {
	return &RedisBucketStore{client: client, now: time.Now}
}

// WithClock substitutes the time source for tests.
func (s *RedisBucketStore) WithClock(now func() time.Time) *RedisBucketStore {
	s.now = now
	return s
}

const keyPrefix = "ratelimit:"

// allowScript trims, counts, and conditionally records in one atomic step, so
// concurrent checks on the same key can never admit past the limit. Members
// carry a unique suffix because several events may share a timestamp.
//
// Returns {allowed, count after the call, oldest score in the window}.
var allowScript = redis.NewScript(`
local key = KEYS[1]
local cutoff = ARGV[1]
local limit = tonumber(ARGV[2])
local score = ARGV[3]
local member = ARGV[4]
local ttl = tonumber(ARGV[5])

redis.call('ZREMRANGEBYSCORE', key, 0, cutoff)
local count = redis.call('ZCARD', key)
local allowed = 0
if count < limit then
	redis.call('ZADD', key, score, member)
	redis.call('EXPIRE', key, ttl)
	allowed = 1
	count = count + 1
end

local oldest = redis.call('ZRANGE', key, 0, 0, 'WITHSCORES')
local oldestScore = score
if oldest[2] then
	oldestScore = oldest[2]
end
return {allowed, count, tostring(oldestScore)}
`)

func (s *RedisBucketStore) Allow(ctx context.Context, key string, limit int, window time.Duration) (*Result, error) {
	now := s.now()
	cutoff := now.Add(-window)
	redisKey := keyPrefix + key

	score := strconv.FormatInt(now.UnixNano(), 10)
	member := score + "-" + uuid.NewString()
	ttl := int(window.Seconds()) + 1

	raw, err := allowScript.Run(ctx, s.client, []string{redisKey},
		strconv.FormatInt(cutoff.UnixNano(), 10),
		limit,
		score,
		member,
		ttl,
	).Result()
	if err != nil {
		return nil, fmt.Errorf("rate limit window check: %w", err)
	}

	reply, ok := raw.([]interface{})
	if !ok || len(reply) != 3 {
		return nil, fmt.Errorf("unexpected rate limit script reply: %v", raw)
	}
	allowed, ok := reply[0].(int64)
	if !ok {
		return nil, fmt.Errorf("unexpected rate limit script reply: %v", raw)
	}
	count, ok := reply[1].(int64)
	if !ok {
		return nil, fmt.Errorf("unexpected rate limit script reply: %v", raw)
	}
	oldestScore, ok := reply[2].(string)
	if !ok {
		return nil, fmt.Errorf("unexpected rate limit script reply: %v", raw)
	}
	oldestNanos, err := strconv.ParseFloat(oldestScore, 64)
	if err != nil {
		return nil, fmt.Errorf("parse oldest window score: %w", err)
	}

	remaining := limit - int(count)
	if remaining < 0 {
		remaining = 0
	}
	return &Result{
		Allowed:   allowed == 1,
		Limit:     limit,
		Remaining: remaining,
		ResetAt:   time.Unix(0, int64(oldestNanos)).Add(window),
	}, nil
}

func (s *RedisBucketStore) Reset(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, keyPrefix+key).Err(); err != nil {
		return fmt.Errorf("reset rate limit key: %w", err)
	}
	return nil
}
