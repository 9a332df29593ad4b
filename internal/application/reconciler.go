package application

import (
	"log/slog"
	"time"

	"cloud.google.com/go/civil"

	"github.com/ericfisherdev/stepsync/internal/domain/model"
)

// PlanInput is everything the reconciler needs to decide on a live fetch.
// CacheEnd is only meaningful when Cached is true.
type PlanInput struct {
	Requested model.Range
	CacheEnd  civil.Date
	Cached    bool
	Usage     model.QueryUsage
	Window    model.RateLimitWindow
	Limit     int
	Now       time.Time
}

// PlanFetch returns the range that must be fetched live, or ok=false when the
// cached prefix should be served as is. Stale cache data is preferred over a
// query that would break the pacing.
func PlanFetch(in PlanInput) (live model.Range, ok bool, err error) {
	if !in.Usage.HasQueried() || !in.Cached {
		return in.Requested, true, nil
	}

	spacing, err := Spacing(in.Limit, in.Usage.Count, in.Now, in.Window)
	if err != nil {
		return model.Range{}, false, err
	}

	sinceLast := in.Now.Sub(in.Usage.Last)
	if sinceLast < 0 {
		sinceLast = 0
	}
	if sinceLast < spacing {
		return model.Range{}, false, nil
	}

	today := model.Today(in.Now)
	end := in.Requested.End

	switch {
	case end == today && in.CacheEnd.DaysSince(end) > -2:
		// Entries inside the freshness TTL may still change upstream.
		slog.Debug("refreshing last two days", "cache_end", in.CacheEnd.String())
		return model.Range{Start: today.AddDays(-1), End: today}, true, nil
	case in.CacheEnd == end:
		return model.Range{}, false, nil
	default:
		return model.Range{Start: in.CacheEnd, End: end}, true, nil
	}
}
