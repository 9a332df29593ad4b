package application

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/coder/quartz"

	"github.com/ericfisherdev/stepsync/internal/domain/model"
	"github.com/ericfisherdev/stepsync/internal/domain/port/driven"
)

// TokenService keeps a user's upstream access token usable. Expiry is judged
// by the credential store's clock, never by a local timer.
type TokenService struct {
	creds driven.CredentialStore
	api   driven.StepsAPI
	clock quartz.Clock
}

// NewTokenService creates a new TokenService with the required dependencies.
func NewTokenService(creds driven.CredentialStore, api driven.StepsAPI, clock quartz.Clock) *TokenService {
	return &TokenService{creds: creds, api: api, clock: clock}
}

// EnsureFresh refreshes the user's tokens when the store reports them
// expired and returns the credential to use for live fetches. An unknown
// expiry is treated as valid.
func (s *TokenService) EnsureFresh(ctx context.Context, cred *model.Credential) (*model.Credential, error) {
	expired, known, err := s.creds.IsTokenExpired(ctx, cred.ID)
	if err != nil {
		return nil, err
	}
	if !known || !expired {
		return cred, nil
	}

	slog.Info("access token expired, refreshing", "user", cred.ID)
	return s.Refresh(ctx, cred.ID)
}

// Refresh exchanges the stored refresh token, persists the new pair and
// returns the updated credential as re-read from the store.
func (s *TokenService) Refresh(ctx context.Context, userID string) (*model.Credential, error) {
	cred, err := s.creds.Lookup(ctx, userID)
	if err != nil {
		return nil, err
	}
	if cred == nil {
		return nil, fmt.Errorf("%w: %s", model.ErrUserNotFound, userID)
	}

	grant, err := s.api.RefreshTokens(ctx, cred.RefreshToken)
	if err != nil {
		slog.Warn("token refresh failed", "user", userID, "error", err)
		return nil, err
	}

	refreshToken := grant.RefreshToken
	if refreshToken == "" {
		refreshToken = cred.RefreshToken
	}
	expiresAt := s.clock.Now().Add(grant.ExpiresIn)

	if err := s.creds.UpdateTokens(ctx, userID, grant.AccessToken, refreshToken, expiresAt); err != nil {
		return nil, err
	}

	updated, err := s.creds.Lookup(ctx, userID)
	if err != nil {
		return nil, err
	}
	if updated == nil {
		return nil, fmt.Errorf("%w: %s", model.ErrUserNotFound, userID)
	}

	slog.Info("tokens refreshed", "user", userID, "expires_at", expiresAt)
	return updated, nil
}
