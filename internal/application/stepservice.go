// Package application contains use-case orchestration services.
package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/coder/quartz"

	"github.com/ericfisherdev/stepsync/internal/domain/model"
	"github.com/ericfisherdev/stepsync/internal/domain/port/driven"
)

// StepService answers step-count queries by combining the cache with paced
// live fetches.
type StepService struct {
	cache    driven.StepCache
	creds    driven.CredentialStore
	api      driven.StepsAPI
	governor *Governor
	tokens   *TokenService
	clock    quartz.Clock
}

// NewStepService creates a new StepService with the required dependencies.
func NewStepService(
	cache driven.StepCache,
	creds driven.CredentialStore,
	api driven.StepsAPI,
	governor *Governor,
	tokens *TokenService,
	clock quartz.Clock,
) *StepService {
	return &StepService{
		cache:    cache,
		creds:    creds,
		api:      api,
		governor: governor,
		tokens:   tokens,
		clock:    clock,
	}
}

// GetSteps returns daily step counts for r. Live data is fetched only for the
// part of r the reconciler selects; when any chunk fails nothing is cached and
// the error is returned.
func (s *StepService) GetSteps(ctx context.Context, userID string, r model.Range) (model.StepCounts, error) {
	if err := r.Validate(model.Today(s.clock.Now())); err != nil {
		return nil, err
	}

	cred, err := s.creds.Lookup(ctx, userID)
	if err != nil {
		return nil, err
	}
	if cred == nil {
		return nil, fmt.Errorf("%w: %s", model.ErrUserNotFound, userID)
	}

	cred, err = s.tokens.EnsureFresh(ctx, cred)
	if err != nil {
		return nil, err
	}

	cached, err := s.cache.GetSteps(ctx, userID, r.Start, r.End)
	if err != nil {
		return nil, err
	}

	live, fetch, err := s.plan(ctx, userID, r, cached)
	if err != nil {
		return nil, err
	}
	if !fetch {
		return cached, nil
	}

	fetched, err := s.fetchLive(ctx, userID, cred, live)
	if err != nil {
		return nil, err
	}

	if len(fetched) > 0 {
		if err := s.cache.AddManySteps(ctx, userID, fetched); err != nil {
			return nil, err
		}
	}

	merged := make(model.StepCounts, len(cached)+len(fetched))
	merged.Merge(cached)
	merged.Merge(fetched)
	return merged.Within(r), nil
}

func (s *StepService) plan(ctx context.Context, userID string, r model.Range, cached model.StepCounts) (model.Range, bool, error) {
	usage, err := s.governor.Usage(ctx, userID)
	if err != nil {
		return model.Range{}, false, err
	}
	window, err := s.governor.Window(ctx)
	if err != nil {
		return model.Range{}, false, err
	}

	cacheEnd, hasCache := cached.Last()

	live, fetch, err := PlanFetch(PlanInput{
		Requested: r,
		CacheEnd:  cacheEnd,
		Cached:    hasCache,
		Usage:     usage,
		Window:    window,
		Limit:     s.governor.Limit(),
		Now:       s.clock.Now(),
	})
	if err != nil {
		return model.Range{}, false, err
	}

	if fetch {
		slog.Info("live fetch planned", "user", userID, "requested", r.String(), "live", live.String(), "cached_days", len(cached))
	} else {
		slog.Debug("serving from cache", "user", userID, "requested", r.String(), "cached_days", len(cached))
	}
	return live, fetch, nil
}

// fetchLive issues one reserved upstream call per chunk, sequentially. Each
// chunk is reserved before it is fetched, so a long range stops at the cap.
func (s *StepService) fetchLive(ctx context.Context, userID string, cred *model.Credential, live model.Range) (model.StepCounts, error) {
	chunks, err := ChunkRange(live)
	if err != nil {
		return nil, err
	}

	fetched := make(model.StepCounts)
	for c := range chunks {
		if err := s.governor.Reserve(ctx, userID); err != nil {
			return nil, err
		}

		res, err := s.api.FetchSteps(ctx, cred.UpstreamUserID, cred.AccessToken, c.Range.End, c.Period)
		if err != nil {
			if errors.Is(err, model.ErrExpiredToken) {
				s.refreshAfterExpiry(ctx, userID)
			}
			return nil, err
		}

		if err := s.governor.Observe(ctx, userID, res.ResetIn); err != nil {
			slog.Warn("failed to record rate limit window", "user", userID, "error", err)
		}

		fetched.Merge(res.Steps.Within(c.Range))
	}

	return fetched, nil
}

// refreshAfterExpiry refreshes tokens after the upstream rejected the access
// token so the caller's retry can succeed. Failures are only logged.
func (s *StepService) refreshAfterExpiry(ctx context.Context, userID string) {
	if _, err := s.tokens.Refresh(ctx, userID); err != nil {
		slog.Warn("refresh after expired token failed", "user", userID, "error", err)
	}
}
