// Package redis provides a Redis-backed UsageLedger for visionrouter.
//
// Each (user, provider) record is a Redis hash. Rollover and increment run
// in one Lua script, so several instances can share the ledger.
package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	goredis "github.com/redis/go-redis/v9"

	vr "github.com/ineyio/visionrouter"
)

// Ledger is a Redis-backed UsageLedger.
type Ledger struct {
	client    goredis.Cmdable
	keyPrefix string
	retention time.Duration
	now       vr.Clock
}

var _ vr.UsageLedger = (*Ledger)(nil)

// Option configures Ledger.
type Option func(*Ledger)

// WithKeyPrefix sets the Redis key prefix (default "visionrouter:usage:").
func WithKeyPrefix(prefix string) Option {
	return func(l *Ledger) { l.keyPrefix = prefix }
}

// WithRetention expires a record after d without increments. Zero keeps
// records forever.
func WithRetention(d time.Duration) Option {
	return func(l *Ledger) { l.retention = d }
}

// WithClock sets the time source used for rollover.
func WithClock(c vr.Clock) Option {
	return func(l *Ledger) { l.now = c }
}

// New creates a Redis-backed UsageLedger.
// The client must be a connected *goredis.Client or *goredis.ClusterClient.
func New(client goredis.Cmdable, opts ...Option) *Ledger {
	l := &Ledger{
		client:    client,
		keyPrefix: "visionrouter:usage:",
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Key returns the hash key of a record.
func (l *Ledger) Key(userID, provider string) string {
	return l.keyPrefix + provider + ":" + userID
}

// incrementScript rolls a record over and adds incr to both counters.
// KEYS[1] = record hash key
// ARGV[1] = current day stamp
// ARGV[2] = current month stamp
// ARGV[3] = retention in seconds (0 = none)
//
// Returns {daily, monthly} after the increment.
var incrementScript = goredis.NewScript(`
local key = KEYS[1]
local day = ARGV[1]
local month = ARGV[2]
local retention = tonumber(ARGV[3])

local rec = redis.call("HMGET", key, "daily", "monthly", "last_day", "last_month")
local daily = tonumber(rec[1] or "0")
local monthly = tonumber(rec[2] or "0")

if rec[3] ~= day then
    daily = 0
end
if rec[4] ~= month then
    monthly = 0
end

daily = daily + 1
monthly = monthly + 1

redis.call("HSET", key, "daily", tostring(daily), "monthly", tostring(monthly), "last_day", day, "last_month", month)
if retention > 0 then
    redis.call("EXPIRE", key, retention)
end
return {daily, monthly}
`)

// Increment rolls the record over and adds one to both counters.
func (l *Ledger) Increment(ctx context.Context, userID, provider string) (vr.Counts, error) {
	now := l.now()
	vals, err := incrementScript.Run(ctx, l.client,
		[]string{l.Key(userID, provider)},
		vr.DayStamp(now), vr.MonthStamp(now), int64(l.retention/time.Second),
	).Int64Slice()
	if err != nil {
		return vr.Counts{}, fmt.Errorf("visionrouter/redis: increment: %w", err)
	}
	if len(vals) != 2 {
		return vr.Counts{}, fmt.Errorf("visionrouter/redis: unexpected increment result: %v", vals)
	}
	return vr.Counts{Daily: vals[0], Monthly: vals[1]}, nil
}

// CurrentUsage reads a record and applies rollover without writing back.
func (l *Ledger) CurrentUsage(ctx context.Context, userID, provider string) (vr.Counts, error) {
	vals, err := l.client.HMGet(ctx, l.Key(userID, provider), "daily", "monthly", "last_day", "last_month").Result()
	if err != nil {
		return vr.Counts{}, fmt.Errorf("visionrouter/redis: current usage: %w", err)
	}

	rec := vr.UsageRecord{
		Daily:     parseInt(vals[0]),
		Monthly:   parseInt(vals[1]),
		LastDay:   str(vals[2]),
		LastMonth: str(vals[3]),
	}
	return vr.Rollover(rec, l.now()).Counts(), nil
}

func parseInt(v any) int64 {
	s, ok := v.(string)
	if !ok {
		return 0
	}
	n, _ := strconv.ParseInt(s, 10, 64)
	return n
}

func str(v any) string {
	s, _ := v.(string)
	return s
}
