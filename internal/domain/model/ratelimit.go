package model

import "time"

// RateLimitWindow is the shared upstream rate-limit window. The zero value
// means the reset time is unknown.
type RateLimitWindow struct {
	ResetAt time.Time
}

// Known reports whether the reset time has been observed.
func (w RateLimitWindow) Known() bool {
	return !w.ResetAt.IsZero()
}

// Remaining returns the time left until the window resets, or zero when the
// window is unknown or already past.
func (w RateLimitWindow) Remaining(now time.Time) time.Duration {
	if !w.Known() || !w.ResetAt.After(now) {
		return 0
	}
	return w.ResetAt.Sub(now)
}

// QueryUsage summarizes a user's query log for the current window.
// A zero Last means the user has no recorded query.
type QueryUsage struct {
	Count int
	Last  time.Time
}

// HasQueried reports whether any query has been recorded.
func (u QueryUsage) HasQueried() bool {
	return !u.Last.IsZero()
}
