package redis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/ericfisherdev/stepsync/internal/domain/model"
	"github.com/ericfisherdev/stepsync/internal/domain/port/driven"
)

// windowBuffer is subtracted from the reported reset time to absorb latency.
const windowBuffer = 2 * time.Second

// reserveScript pushes a query timestamp only while the log holds fewer than
// ARGV[2] entries. A log without a TTL gets ARGV[3] seconds.
var reserveScript = goredis.NewScript(`
local count = redis.call('LLEN', KEYS[1])
if count >= tonumber(ARGV[2]) then
  return 0
end
redis.call('LPUSH', KEYS[1], ARGV[1])
if redis.call('TTL', KEYS[1]) < 0 then
  redis.call('EXPIRE', KEYS[1], ARGV[3])
end
return 1
`)

// Compile-time interface satisfaction check.
var _ driven.RateLimitStore = (*RateLimitStore)(nil)

// RateLimitStore keeps a per-user list of query timestamps (newest first)
// whose TTL tracks the upstream window, plus one shared reset marker.
type RateLimitStore struct {
	client *goredis.Client
}

// NewRateLimitStore creates a RateLimitStore backed by the given client.
func NewRateLimitStore(client *goredis.Client) *RateLimitStore {
	return &RateLimitStore{client: client}
}

// Usage returns the log length and its newest timestamp in one round trip.
func (s *RateLimitStore) Usage(ctx context.Context, userID string) (model.QueryUsage, error) {
	key := queriesKey(userID)

	pipe := s.client.Pipeline()
	lenCmd := pipe.LLen(ctx, key)
	lastCmd := pipe.LIndex(ctx, key, 0)
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, goredis.Nil) {
		return model.QueryUsage{}, fmt.Errorf("%w: read query log for %s: %w", model.ErrTransport, userID, err)
	}

	usage := model.QueryUsage{Count: int(lenCmd.Val())}

	last, err := lastCmd.Result()
	if errors.Is(err, goredis.Nil) {
		return usage, nil
	}
	if err != nil {
		return model.QueryUsage{}, fmt.Errorf("%w: read last query for %s: %w", model.ErrTransport, userID, err)
	}

	epoch, err := strconv.ParseInt(last, 10, 64)
	if err != nil {
		slog.Warn("undecodable query log entry", "key", key, "value", last, "error", err)
		return usage, nil
	}
	usage.Last = time.Unix(epoch, 0).UTC()

	return usage, nil
}

// Reserve runs the conditional push as a single script so concurrent callers
// cannot both take the last slot.
func (s *RateLimitStore) Reserve(ctx context.Context, userID string, at time.Time, limit int, ttl time.Duration) (bool, error) {
	ttlSeconds := int64(ttl / time.Second)
	if ttlSeconds < 1 {
		ttlSeconds = 1
	}

	taken, err := reserveScript.Run(ctx, s.client,
		[]string{queriesKey(userID)},
		at.Unix(), limit, ttlSeconds,
	).Int()
	if err != nil {
		return false, fmt.Errorf("%w: reserve query slot for %s: %w", model.ErrTransport, userID, err)
	}

	return taken == 1, nil
}

// RecordWindow stores the shared reset marker and aligns the user's log TTL
// with the window. A non-positive resetIn is ignored.
func (s *RateLimitStore) RecordWindow(ctx context.Context, userID string, at time.Time, resetIn time.Duration) error {
	if resetIn < time.Second {
		return nil
	}

	resetAt := at.Add(resetIn).Add(-windowBuffer).Unix()

	_, err := s.client.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		pipe.Set(ctx, windowKey, resetAt, resetIn)
		pipe.Expire(ctx, queriesKey(userID), resetIn)
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: record rate limit window for %s: %w", model.ErrTransport, userID, err)
	}

	return nil
}

// RecordQuery logs a query without checking the limit and records the window.
func (s *RateLimitStore) RecordQuery(ctx context.Context, userID string, at time.Time, resetIn time.Duration) error {
	if resetIn < time.Second {
		return fmt.Errorf("record query for %s: reset interval %s is too short", userID, resetIn)
	}

	key := queriesKey(userID)
	resetAt := at.Add(resetIn).Add(-windowBuffer).Unix()

	_, err := s.client.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		pipe.Set(ctx, windowKey, resetAt, resetIn)
		pipe.LPush(ctx, key, at.Unix())
		pipe.Expire(ctx, key, resetIn)
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: record query for %s: %w", model.ErrTransport, userID, err)
	}

	return nil
}

// Window returns the shared reset marker, or the zero window when absent.
func (s *RateLimitStore) Window(ctx context.Context) (model.RateLimitWindow, error) {
	resetAt, err := s.client.Get(ctx, windowKey).Int64()
	if errors.Is(err, goredis.Nil) {
		return model.RateLimitWindow{}, nil
	}
	if err != nil {
		return model.RateLimitWindow{}, fmt.Errorf("%w: read rate limit window: %w", model.ErrTransport, err)
	}

	return model.RateLimitWindow{ResetAt: time.Unix(resetAt, 0).UTC()}, nil
}
