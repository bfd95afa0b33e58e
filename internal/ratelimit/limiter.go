// Package ratelimit enforces the transport's sustained rate limits across
// every worker process sharing one provider account. Counters live in Redis
// and are checked-and-incremented atomically with a Lua script; the usual
// GET, check, INCR sequence races under concurrent dispatchers.
package ratelimit

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"
)

// Limits defines the sustained caps for one provider account. Zero values
// mean unlimited for that window.
type Limits struct {
	PerSecond int
	PerMinute int
	PerDay    int
}

const reserveScript = `
local secondKey = KEYS[1]
local minuteKey = KEYS[2]
local dailyKey = KEYS[3]
local increment = tonumber(ARGV[1])
local secondLimit = tonumber(ARGV[2])
local minuteLimit = tonumber(ARGV[3])
local dailyLimit = tonumber(ARGV[4])

local secCurrent = tonumber(redis.call("GET", secondKey) or "0")
local minCurrent = tonumber(redis.call("GET", minuteKey) or "0")
local dayCurrent = tonumber(redis.call("GET", dailyKey) or "0")

-- Check every window BEFORE incrementing any counter
if secondLimit > 0 and secCurrent + increment > secondLimit then
    return {0, 1}
end
if minuteLimit > 0 and minCurrent + increment > minuteLimit then
    return {0, 2}
end
if dailyLimit > 0 and dayCurrent + increment > dailyLimit then
    return {0, 3}
end

local newSec = redis.call("INCRBY", secondKey, increment)
if newSec == increment then
    redis.call("EXPIRE", secondKey, 2)
end

local newMin = redis.call("INCRBY", minuteKey, increment)
if newMin == increment then
    redis.call("EXPIRE", minuteKey, 120)
end

local newDay = redis.call("INCRBY", dailyKey, increment)
if newDay == increment then
    redis.call("EXPIRE", dailyKey, 90000)
end

return {1, 0}
`

// ErrDailyLimit is returned when the daily cap is exhausted; waiting within
// the dispatch is pointless at that point.
var ErrDailyLimit = fmt.Errorf("daily send limit exceeded")

// Limiter is a Redis-backed sustained-rate limiter for one named provider.
type Limiter struct {
	rdb    *redis.Client
	script *redis.Script
	name   string
	limits Limits
}

// New creates a limiter with the given per-window caps. name scopes the
// Redis keys, typically the provider identifier ("ses", "mailgun").
func New(rdb *redis.Client, name string, limits Limits) *Limiter {
	return &Limiter{
		rdb:    rdb,
		script: redis.NewScript(reserveScript),
		name:   name,
		limits: limits,
	}
}

// NewFromURL connects to Redis and returns a limiter.
func NewFromURL(redisURL, name string, limits Limits) (*Limiter, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}

	log.Printf("[RateLimit] Connected to Redis for %q limits", name)
	return New(client, name, limits), nil
}

// Reserve atomically reserves n sends. When denied it reports how long the
// caller should wait before trying again; a denial on the daily window
// returns ErrDailyLimit instead.
func (l *Limiter) Reserve(ctx context.Context, n int) (allowed bool, wait time.Duration, err error) {
	now := time.Now()

	keys := []string{
		fmt.Sprintf("ratelimit:%s:sec:%d", l.name, now.Unix()),
		fmt.Sprintf("ratelimit:%s:min:%d", l.name, now.Unix()/60),
		fmt.Sprintf("ratelimit:%s:day:%s", l.name, now.Format("2006-01-02")),
	}

	result, err := l.script.Run(ctx, l.rdb, keys,
		n, l.limits.PerSecond, l.limits.PerMinute, l.limits.PerDay,
	).Slice()
	if err != nil {
		return false, 0, fmt.Errorf("rate limit check failed: %w", err)
	}

	if result[0].(int64) == 1 {
		return true, 0, nil
	}

	switch result[1].(int64) {
	case 1: // second window
		return false, time.Second, nil
	case 2: // minute window
		return false, time.Duration(60-now.Second()) * time.Second, nil
	default: // daily window
		return false, 0, ErrDailyLimit
	}
}

// Usage returns the current counter values, for operator visibility.
func (l *Limiter) Usage(ctx context.Context) (map[string]int64, error) {
	now := time.Now()

	pipe := l.rdb.Pipeline()
	secCmd := pipe.Get(ctx, fmt.Sprintf("ratelimit:%s:sec:%d", l.name, now.Unix()))
	minCmd := pipe.Get(ctx, fmt.Sprintf("ratelimit:%s:min:%d", l.name, now.Unix()/60))
	dayCmd := pipe.Get(ctx, fmt.Sprintf("ratelimit:%s:day:%s", l.name, now.Format("2006-01-02")))
	pipe.Exec(ctx)

	sec, _ := secCmd.Int64()
	min, _ := minCmd.Int64()
	day, _ := dayCmd.Int64()

	return map[string]int64{
		"second_current": sec,
		"second_limit":   int64(l.limits.PerSecond),
		"minute_current": min,
		"minute_limit":   int64(l.limits.PerMinute),
		"daily_current":  day,
		"daily_limit":    int64(l.limits.PerDay),
	}, nil
}

// Close closes the Redis connection.
func (l *Limiter) Close() error {
	return l.rdb.Close()
}
