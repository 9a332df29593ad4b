package driven

import (
	"context"

	"cloud.google.com/go/civil"

	"github.com/ericfisherdev/stepsync/internal/domain/model"
)

// StepsAPI defines the driven port for the upstream activity API.
type StepsAPI interface {
	// FetchSteps returns daily step counts for the period ending on end.
	// Returns model.ErrExpiredToken when the upstream rejects the access token.
	FetchSteps(ctx context.Context, upstreamUserID, accessToken string, end civil.Date, period model.Period) (model.StepFetch, error)

	// RefreshTokens exchanges a refresh token for a new token pair.
	// Returns model.ErrRejectedToken when the refresh token is no longer valid.
	RefreshTokens(ctx context.Context, refreshToken string) (model.TokenGrant, error)
}
