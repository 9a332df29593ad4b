package postgres

import (
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFitbitData_TableName(t *testing.T) {
	assert.Equal(t, "fitbit_data", fitbitData{}.TableName())
}

func TestFitbitData_ToModel(t *testing.T) {
	expiresAt := time.Date(2023, time.March, 1, 8, 0, 0, 0, time.FixedZone("CET", 3600))

	t.Run("maps every column", func(t *testing.T) {
		row := fitbitData{
			ID:                   "u1",
			FitbitUserID:         "ABC123",
			FitbitAccessToken:    "access",
			FitbitRefreshToken:   "refresh",
			FitbitTokenExpiresAt: sql.NullTime{Time: expiresAt, Valid: true},
		}

		cred := row.toModel()
		assert.Equal(t, "u1", cred.ID)
		assert.Equal(t, "ABC123", cred.UpstreamUserID)
		assert.Equal(t, "access", cred.AccessToken)
		assert.Equal(t, "refresh", cred.RefreshToken)
		assert.True(t, cred.TokenExpiresAt.Equal(expiresAt))
		assert.Equal(t, time.UTC, cred.TokenExpiresAt.Location())
	})

	t.Run("null expiry stays zero", func(t *testing.T) {
		cred := fitbitData{ID: "u2"}.toModel()
		assert.True(t, cred.TokenExpiresAt.IsZero())
	})
}
