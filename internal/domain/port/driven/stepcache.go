// Package driven defines secondary port interfaces for external adapters.
package driven

import (
	"context"

	"cloud.google.com/go/civil"

	"github.com/ericfisherdev/stepsync/internal/domain/model"
)

// StepCache defines the driven port for the per-user daily step cache.
type StepCache interface {
	// AddSteps upserts one day's count with a fresh expiry.
	AddSteps(ctx context.Context, userID string, date civil.Date, steps uint32) error

	// AddManySteps upserts every entry of steps in one atomic write.
	AddManySteps(ctx context.Context, userID string, steps model.StepCounts) error

	// GetSteps returns the longest contiguous run of cached dates starting
	// exactly at start and ending no later than end. Expired entries are
	// never returned.
	GetSteps(ctx context.Context, userID string, start, end civil.Date) (model.StepCounts, error)
}
