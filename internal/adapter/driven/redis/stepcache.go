package redis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"cloud.google.com/go/civil"
	"github.com/coder/quartz"
	goredis "github.com/redis/go-redis/v9"

	"github.com/ericfisherdev/stepsync/internal/domain/model"
	"github.com/ericfisherdev/stepsync/internal/domain/port/driven"
)

// StepTTL is the freshness window of a cached day, applied both to each entry
// and to the user's whole sorted set.
const StepTTL = 48 * time.Hour

// Compile-time interface satisfaction check.
var _ driven.StepCache = (*StepCache)(nil)

// StepCache stores each user's daily counts in a sorted set scored by the
// day's epoch. Members are "steps:dayEpoch:expiresAtEpoch".
type StepCache struct {
	client *goredis.Client
	clock  quartz.Clock
}

// NewStepCache creates a StepCache backed by the given client.
func NewStepCache(client *goredis.Client, clock quartz.Clock) *StepCache {
	return &StepCache{client: client, clock: clock}
}

type cacheEntry struct {
	steps     uint32
	day       int64
	expiresAt int64
}

func (e cacheEntry) member() string {
	return fmt.Sprintf("%d:%d:%d", e.steps, e.day, e.expiresAt)
}

func parseEntry(member string) (cacheEntry, error) {
	parts := strings.Split(member, ":")
	if len(parts) != 3 {
		return cacheEntry{}, fmt.Errorf("expected 3 fields, got %d", len(parts))
	}

	steps, err := strconv.ParseUint(parts[0], 10, 32)
	if err != nil {
		return cacheEntry{}, fmt.Errorf("parse steps: %w", err)
	}
	day, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return cacheEntry{}, fmt.Errorf("parse day: %w", err)
	}
	expiresAt, err := strconv.ParseInt(parts[2], 10, 64)
	if err != nil {
		return cacheEntry{}, fmt.Errorf("parse expiry: %w", err)
	}

	return cacheEntry{steps: uint32(steps), day: day, expiresAt: expiresAt}, nil
}

// AddSteps upserts a single day.
func (c *StepCache) AddSteps(ctx context.Context, userID string, date civil.Date, steps uint32) error {
	return c.AddManySteps(ctx, userID, model.StepCounts{date: steps})
}

// AddManySteps upserts every day in steps and refreshes the set's TTL in one
// MULTI/EXEC. Any existing member for a day is replaced, so writing the same
// day twice leaves a single entry.
func (c *StepCache) AddManySteps(ctx context.Context, userID string, steps model.StepCounts) error {
	if len(steps) == 0 {
		return nil
	}

	key := stepsKey(userID)
	expiresAt := c.clock.Now().Add(StepTTL).Unix()

	_, err := c.client.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		for _, date := range steps.Dates() {
			day := model.DayEpoch(date)
			score := strconv.FormatInt(day, 10)
			entry := cacheEntry{steps: steps[date], day: day, expiresAt: expiresAt}

			pipe.ZRemRangeByScore(ctx, key, score, score)
			pipe.ZAdd(ctx, key, goredis.Z{Score: float64(day), Member: entry.member()})
		}
		pipe.Expire(ctx, key, StepTTL)
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: cache %d days for %s: %w", model.ErrTransport, len(steps), userID, err)
	}

	return nil
}

// GetSteps reads [start, end], lazily purges expired members, and returns the
// contiguous prefix beginning at start. Entries of an unexpected type or shape
// are treated as an empty cache.
func (c *StepCache) GetSteps(ctx context.Context, userID string, start, end civil.Date) (model.StepCounts, error) {
	key := stepsKey(userID)

	members, err := c.client.ZRangeByScore(ctx, key, &goredis.ZRangeBy{
		Min: strconv.FormatInt(model.DayEpoch(start), 10),
		Max: strconv.FormatInt(model.DayEpoch(end), 10),
	}).Result()
	if isWrongType(err) {
		slog.Warn("step cache key has unexpected type", "key", key)
		return model.StepCounts{}, nil
	}
	if err != nil && !errors.Is(err, goredis.Nil) {
		return nil, fmt.Errorf("%w: read steps for %s: %w", model.ErrTransport, userID, err)
	}

	now := c.clock.Now().Unix()
	fresh := make(model.StepCounts, len(members))
	freshExpiry := make(map[civil.Date]int64, len(members))
	var expired []any

	for _, m := range members {
		entry, err := parseEntry(m)
		if err != nil {
			slog.Warn("undecodable step cache entry", "key", key, "member", m, "error", err)
			return model.StepCounts{}, nil
		}

		if entry.expiresAt <= now {
			expired = append(expired, m)
			continue
		}

		// Legacy writers could leave several members per day; the latest write wins.
		date := model.DateOfEpoch(entry.day)
		if prev, ok := freshExpiry[date]; ok && prev > entry.expiresAt {
			continue
		}
		fresh[date] = entry.steps
		freshExpiry[date] = entry.expiresAt
	}

	if len(expired) > 0 {
		removed, err := c.client.ZRem(ctx, key, expired...).Result()
		if err != nil {
			slog.Warn("purge expired step cache entries failed", "key", key, "error", err)
		} else {
			slog.Info("expired step cache entries removed", "key", key, "count", removed)
		}
	}

	return model.ContiguousFrom(start, fresh), nil
}
