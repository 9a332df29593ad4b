package sqlite

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ericfisherdev/stepsync/internal/domain/model"
)

func seedCredential(t *testing.T, repo *CredentialRepo, id string, expiresAt time.Time) {
	t.Helper()

	err := repo.Upsert(context.Background(), model.Credential{
		ID:             id,
		UpstreamUserID: "FB-" + id,
		AccessToken:    "access-" + id,
		RefreshToken:   "refresh-" + id,
		TokenExpiresAt: expiresAt,
	})
	require.NoError(t, err)
}

func TestCredentialRepo_LookupFound(t *testing.T) {
	db := setupTestDB(t, 0)
	repo := NewCredentialRepo(db)
	expiresAt := time.Now().Add(time.Hour).Truncate(time.Second).UTC()
	seedCredential(t, repo, "u1", expiresAt)

	cred, err := repo.Lookup(context.Background(), "u1")
	require.NoError(t, err)
	require.NotNil(t, cred)
	assert.Equal(t, "u1", cred.ID)
	assert.Equal(t, "FB-u1", cred.UpstreamUserID)
	assert.Equal(t, "access-u1", cred.AccessToken)
	assert.Equal(t, "refresh-u1", cred.RefreshToken)
	assert.Equal(t, expiresAt, cred.TokenExpiresAt)
}

func TestCredentialRepo_LookupMissing(t *testing.T) {
	db := setupTestDB(t, 0)
	repo := NewCredentialRepo(db)

	cred, err := repo.Lookup(context.Background(), "nobody")
	require.NoError(t, err)
	assert.Nil(t, cred)
}

func TestCredentialRepo_IsTokenExpired(t *testing.T) {
	db := setupTestDB(t, 0)
	repo := NewCredentialRepo(db)
	ctx := context.Background()

	seedCredential(t, repo, "fresh", time.Now().Add(time.Hour))
	seedCredential(t, repo, "stale", time.Now().Add(-time.Hour))
	seedCredential(t, repo, "unknown", time.Time{})

	tests := []struct {
		name        string
		userID      string
		wantExpired bool
		wantKnown   bool
	}{
		{"future expiry is valid", "fresh", false, true},
		{"past expiry is expired", "stale", true, true},
		{"null expiry is unknown", "unknown", false, false},
		{"missing user is unknown", "nobody", false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			expired, known, err := repo.IsTokenExpired(ctx, tt.userID)
			require.NoError(t, err)
			assert.Equal(t, tt.wantExpired, expired)
			assert.Equal(t, tt.wantKnown, known)
		})
	}
}

func TestCredentialRepo_UpdateTokens(t *testing.T) {
	db := setupTestDB(t, 0)
	repo := NewCredentialRepo(db)
	ctx := context.Background()
	seedCredential(t, repo, "u1", time.Now().Add(-time.Hour))

	newExpiry := time.Now().Add(8 * time.Hour).Truncate(time.Second).UTC()
	require.NoError(t, repo.UpdateTokens(ctx, "u1", "new-access", "new-refresh", newExpiry))

	cred, err := repo.Lookup(ctx, "u1")
	require.NoError(t, err)
	require.NotNil(t, cred)
	assert.Equal(t, "new-access", cred.AccessToken)
	assert.Equal(t, "new-refresh", cred.RefreshToken)
	assert.Equal(t, newExpiry, cred.TokenExpiresAt)

	expired, known, err := repo.IsTokenExpired(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, known)
	assert.False(t, expired)
}

func TestCredentialRepo_UpdateTokensMissingUser(t *testing.T) {
	db := setupTestDB(t, 0)
	repo := NewCredentialRepo(db)

	err := repo.UpdateTokens(context.Background(), "nobody", "a", "r", time.Now())
	require.Error(t, err)
	assert.True(t, errors.Is(err, model.ErrUserNotFound))
}
