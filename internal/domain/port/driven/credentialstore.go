package driven

import (
	"context"
	"time"

	"github.com/ericfisherdev/stepsync/internal/domain/model"
)

// CredentialStore defines the driven port for the user credential database.
type CredentialStore interface {
	// Lookup returns the user's credential record.
	// Returns (nil, nil) if the user does not exist.
	Lookup(ctx context.Context, userID string) (*model.Credential, error)

	// IsTokenExpired compares the stored token expiry against the database
	// clock. known is false when the user or the expiry is missing.
	IsTokenExpired(ctx context.Context, userID string) (expired bool, known bool, err error)

	// UpdateTokens replaces the user's access and refresh tokens.
	UpdateTokens(ctx context.Context, userID, accessToken, refreshToken string, expiresAt time.Time) error
}
