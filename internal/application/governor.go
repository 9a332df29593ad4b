package application

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/coder/quartz"

	"github.com/ericfisherdev/stepsync/internal/domain/model"
	"github.com/ericfisherdev/stepsync/internal/domain/port/driven"
)

// DefaultQueryLimit is the per-user query cap within one rate-limit window.
const DefaultQueryLimit = 145

// defaultWindow is the log TTL used before the upstream has reported a reset.
const defaultWindow = time.Hour

// maxSpacingSeconds bounds every seconds value the governor computes.
const maxSpacingSeconds = math.MaxUint16

// Governor enforces the per-user query cap and paces live fetches evenly
// across the remaining rate-limit window.
type Governor struct {
	store driven.RateLimitStore
	clock quartz.Clock
	limit int
}

// NewGovernor creates a Governor. A non-positive limit selects DefaultQueryLimit.
func NewGovernor(store driven.RateLimitStore, clock quartz.Clock, limit int) *Governor {
	if limit <= 0 {
		limit = DefaultQueryLimit
	}
	return &Governor{store: store, clock: clock, limit: limit}
}

// Limit returns the per-user query cap.
func (g *Governor) Limit() int {
	return g.limit
}

// Usage returns the user's query count and last query time for the window.
func (g *Governor) Usage(ctx context.Context, userID string) (model.QueryUsage, error) {
	return g.store.Usage(ctx, userID)
}

// Window returns the shared rate-limit window.
func (g *Governor) Window(ctx context.Context) (model.RateLimitWindow, error) {
	return g.store.Window(ctx)
}

// HasBudget reports whether the user can make another query in this window.
func (g *Governor) HasBudget(ctx context.Context, userID string) (bool, error) {
	usage, err := g.store.Usage(ctx, userID)
	if err != nil {
		return false, err
	}
	return usage.Count < g.limit, nil
}

// MinSpacing returns the minimum interval between the user's live fetches.
func (g *Governor) MinSpacing(ctx context.Context, userID string) (time.Duration, error) {
	usage, err := g.store.Usage(ctx, userID)
	if err != nil {
		return 0, err
	}
	window, err := g.store.Window(ctx)
	if err != nil {
		return 0, err
	}
	return Spacing(g.limit, usage.Count, g.clock.Now(), window)
}

// Reserve takes one query slot for the user, failing with
// model.ErrRateLimitExceeded when the window's cap is reached.
func (g *Governor) Reserve(ctx context.Context, userID string) error {
	now := g.clock.Now()

	window, err := g.store.Window(ctx)
	if err != nil {
		return err
	}
	ttl := window.Remaining(now)
	if ttl <= 0 {
		ttl = defaultWindow
	}

	ok, err := g.store.Reserve(ctx, userID, now, g.limit, ttl)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: %d queries already made this window", model.ErrRateLimitExceeded, g.limit)
	}
	return nil
}

// Observe records the window reported by a live fetch made under a
// reservation. A zero resetIn means the upstream did not report it.
func (g *Governor) Observe(ctx context.Context, userID string, resetIn time.Duration) error {
	return g.store.RecordWindow(ctx, userID, g.clock.Now(), resetIn)
}

// RecordQuery logs a query outside the reservation path and records the
// window it reported.
func (g *Governor) RecordQuery(ctx context.Context, userID string, resetIn time.Duration) error {
	return g.store.RecordQuery(ctx, userID, g.clock.Now(), resetIn)
}

// Spacing computes ceil(secondsUntilReset / remaining) where remaining is the
// number of queries left under limit. An unknown or past window yields zero.
func Spacing(limit, count int, now time.Time, window model.RateLimitWindow) (time.Duration, error) {
	remaining := limit - count
	if remaining <= 0 {
		return 0, fmt.Errorf("%w: %d of %d queries used", model.ErrRateLimitExceeded, count, limit)
	}

	untilReset := clampSeconds(int64(window.Remaining(now) / time.Second))
	spacing := clampSeconds(int64(math.Ceil(float64(untilReset) / float64(remaining))))

	return time.Duration(spacing) * time.Second, nil
}

// clampSeconds limits s to [0, 65535].
func clampSeconds(s int64) int64 {
	switch {
	case s < 0:
		return 0
	case s > maxSpacingSeconds:
		return maxSpacingSeconds
	default:
		return s
	}
}
