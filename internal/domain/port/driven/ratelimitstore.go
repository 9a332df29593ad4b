package driven

import (
	"context"
	"time"

	"github.com/ericfisherdev/stepsync/internal/domain/model"
)

// RateLimitStore defines the driven port for per-user query logs and the
// shared rate-limit window marker.
type RateLimitStore interface {
	// Usage returns the number of queries logged for the user in the current
	// window and the time of the most recent one.
	Usage(ctx context.Context, userID string) (model.QueryUsage, error)

	// Reserve atomically logs a query at the given time if fewer than limit
	// queries are logged. ttl is applied to a log that has no expiry yet.
	// It reports whether a slot was taken.
	Reserve(ctx context.Context, userID string, at time.Time, limit int, ttl time.Duration) (bool, error)

	// RecordWindow stores the window reset time observed at the given time and
	// sets the user's log to expire when the window resets.
	RecordWindow(ctx context.Context, userID string, at time.Time, resetIn time.Duration) error

	// RecordQuery unconditionally logs a query and records the window.
	RecordQuery(ctx context.Context, userID string, at time.Time, resetIn time.Duration) error

	// Window returns the shared rate-limit window. The zero value means unknown.
	Window(ctx context.Context) (model.RateLimitWindow, error)
}
