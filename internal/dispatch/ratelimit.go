package dispatch

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ignite/notify-engine/internal/notification"
)

// RateLimiter enforces per-channel provider limits with atomic Redis Lua
// scripts, avoiding the race in GET then check then INCR.
type RateLimiter struct {
	redis *redis.Client

	multiLimitScript *redis.Script
}

// ChannelLimit defines the send-rate ceilings for one channel.
type ChannelLimit struct {
	PerSecond int
	PerMinute int
	PerDay    int
}

// ChannelLimits holds the default provider-tier limits per channel.
var ChannelLimits = map[notification.Channel]ChannelLimit{
	notification.ChannelEmail: {PerSecond: 50, PerMinute: 2000, PerDay: 500000},
	notification.ChannelSMS:   {PerSecond: 10, PerMinute: 300, PerDay: 50000},
}

// The script checks every window before incrementing any counter, so a
// denial never consumes quota.
const multiLimitLuaScript = `
local secondKey = KEYS[1]
local minuteKey = KEYS[2]
local dailyKey = KEYS[3]
local increment = tonumber(ARGV[1])
local secondLimit = tonumber(ARGV[2])
local minuteLimit = tonumber(ARGV[3])
local dailyLimit = tonumber(ARGV[4])
local secondTTL = tonumber(ARGV[5])
local minuteTTL = tonumber(ARGV[6])
local dailyTTL = tonumber(ARGV[7])

local secCurrent = tonumber(redis.call("GET", secondKey) or "0")
local minCurrent = tonumber(redis.call("GET", minuteKey) or "0")
local dayCurrent = tonumber(redis.call("GET", dailyKey) or "0")

if secCurrent + increment > secondLimit then
    return {0, 1, secCurrent}
end
if minCurrent + increment > minuteLimit then
    return {0, 2, minCurrent}
end
if dayCurrent + increment > dailyLimit then
    return {0, 3, dayCurrent}
end

local newSec = redis.call("INCRBY", secondKey, increment)
if newSec == increment then
    redis.call("EXPIRE", secondKey, secondTTL)
end

local newMin = redis.call("INCRBY", minuteKey, increment)
if newMin == increment then
    redis.call("EXPIRE", minuteKey, minuteTTL)
end

local newDay = redis.call("INCRBY", dailyKey, increment)
if newDay == increment then
    redis.call("EXPIRE", dailyKey, dailyTTL)
end

return {1, 0, newDay}
`

// NewRateLimiter creates a rate limiter with a pre-compiled Lua script.
func NewRateLimiter(redisClient *redis.Client) *RateLimiter {
	return &RateLimiter{
		redis:            redisClient,
		multiLimitScript: redis.NewScript(multiLimitLuaScript),
	}
}

// NewRateLimiterFromURL creates a rate limiter by connecting to Redis.
func NewRateLimiterFromURL(redisURL string) (*RateLimiter, error) {
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

	return NewRateLimiter(client), nil
}

// CheckAndIncrement atomically checks and increments the channel's counters.
// When denied, waitTime suggests how long until the breached window rolls
// over. A breached daily ceiling is returned as an error since waiting it
// out inside a worker makes no sense.
func (r *RateLimiter) CheckAndIncrement(ctx context.Context, ch notification.Channel, count int) (allowed bool, waitTime time.Duration, err error) {
	limits, ok := ChannelLimits[ch]
	if !ok {
		return false, 0, fmt.Errorf("no rate limits defined for channel %s", ch)
	}

	now := time.Now()

	secondKey := fmt.Sprintf("notify:ratelimit:%s:sec:%d", ch, now.Unix())
	minuteKey := fmt.Sprintf("notify:ratelimit:%s:min:%d", ch, now.Unix()/60)
	dailyKey := fmt.Sprintf("notify:ratelimit:%s:day:%s", ch, now.Format("2006-01-02"))

	result, err := r.multiLimitScript.Run(ctx, r.redis,
		[]string{secondKey, minuteKey, dailyKey},
		count,
		limits.PerSecond,
		limits.PerMinute,
		limits.PerDay,
		2,     // second TTL
		120,   // minute TTL
		90000, // daily TTL (25 hours)
	).Slice()
	if err != nil {
		return false, 0, fmt.Errorf("rate limit check failed: %w", err)
	}

	allowedInt := result[0].(int64)
	denialReason := result[1].(int64)

	if allowedInt == 1 {
		return true, 0, nil
	}

	switch denialReason {
	case 1:
		waitTime = time.Second
	case 2:
		waitTime = time.Duration(60-now.Second()) * time.Second
	case 3:
		return false, 0, fmt.Errorf("daily limit exceeded for channel %s", ch)
	}
	return false, waitTime, nil
}

// CurrentUsage returns the live counter values for a channel.
func (r *RateLimiter) CurrentUsage(ctx context.Context, ch notification.Channel) (map[string]int64, error) {
	now := time.Now()

	secondKey := fmt.Sprintf("notify:ratelimit:%s:sec:%d", ch, now.Unix())
	minuteKey := fmt.Sprintf("notify:ratelimit:%s:min:%d", ch, now.Unix()/60)
	dailyKey := fmt.Sprintf("notify:ratelimit:%s:day:%s", ch, now.Format("2006-01-02"))

	pipe := r.redis.Pipeline()
	secCmd := pipe.Get(ctx, secondKey)
	minCmd := pipe.Get(ctx, minuteKey)
	dayCmd := pipe.Get(ctx, dailyKey)
	if _, err := pipe.Exec(ctx); err != nil && err != redis.Nil {
		log.Printf("[RateLimiter] usage read error: %v", err)
	}

	sec, _ := secCmd.Int64()
	min, _ := minCmd.Int64()
	day, _ := dayCmd.Int64()

	return map[string]int64{"second": sec, "minute": min, "day": day}, nil
}
