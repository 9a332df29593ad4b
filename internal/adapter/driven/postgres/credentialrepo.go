// Package postgres implements the CredentialStore port on the front-end's
// Postgres database using gorm. The fitbit_data table is owned by the
// front-end; this package never migrates it.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/ericfisherdev/stepsync/internal/domain/model"
	"github.com/ericfisherdev/stepsync/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.CredentialStore = (*CredentialRepo)(nil)

// fitbitData mirrors one row of the fitbit_data table.
type fitbitData struct {
	ID                   string       `gorm:"column:id;primaryKey"`
	FitbitUserID         string       `gorm:"column:fitbit_user_id"`
	FitbitAccessToken    string       `gorm:"column:fitbit_access_token"`
	FitbitRefreshToken   string       `gorm:"column:fitbit_refresh_token"`
	FitbitTokenExpiresAt sql.NullTime `gorm:"column:fitbit_token_expires_at"`
}

func (fitbitData) TableName() string {
	return "fitbit_data"
}

func (row fitbitData) toModel() *model.Credential {
	cred := &model.Credential{
		ID:             row.ID,
		UpstreamUserID: row.FitbitUserID,
		AccessToken:    row.FitbitAccessToken,
		RefreshToken:   row.FitbitRefreshToken,
	}
	if row.FitbitTokenExpiresAt.Valid {
		cred.TokenExpiresAt = row.FitbitTokenExpiresAt.Time.UTC()
	}
	return cred
}

// Open connects to Postgres with a pool sized for the dispatcher's fan-out.
func Open(ctx context.Context, dsn string) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("postgres pool: %w", err)
	}
	sqlDB.SetMaxOpenConns(5)

	if err := sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	return db, nil
}

// CredentialRepo is the Postgres implementation of the CredentialStore port interface.
type CredentialRepo struct {
	db *gorm.DB
}

// NewCredentialRepo creates a new CredentialRepo backed by the given gorm handle.
func NewCredentialRepo(db *gorm.DB) *CredentialRepo {
	return &CredentialRepo{db: db}
}

// Lookup returns the credential record for userID, or (nil, nil) if absent.
func (r *CredentialRepo) Lookup(ctx context.Context, userID string) (*model.Credential, error) {
	var row fitbitData
	err := r.db.WithContext(ctx).Where("id = ?", userID).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: lookup credential %s: %w", model.ErrTransport, userID, err)
	}

	return row.toModel(), nil
}

// IsTokenExpired compares the stored expiry with the database's now().
func (r *CredentialRepo) IsTokenExpired(ctx context.Context, userID string) (bool, bool, error) {
	const query = `SELECT fitbit_token_expires_at < now() FROM fitbit_data WHERE id = ?`

	var expired sql.NullBool
	err := r.db.WithContext(ctx).Raw(query, userID).Row().Scan(&expired)
	if errors.Is(err, sql.ErrNoRows) {
		return false, false, nil
	}
	if err != nil {
		return false, false, fmt.Errorf("%w: check token expiry for %s: %w", model.ErrTransport, userID, err)
	}
	if !expired.Valid {
		return false, false, nil
	}

	return expired.Bool, true, nil
}

// UpdateTokens replaces the token pair and expiry for userID.
func (r *CredentialRepo) UpdateTokens(ctx context.Context, userID, accessToken, refreshToken string, expiresAt time.Time) error {
	res := r.db.WithContext(ctx).Model(&fitbitData{}).Where("id = ?", userID).Updates(map[string]any{
		"fitbit_access_token":     accessToken,
		"fitbit_refresh_token":    refreshToken,
		"fitbit_token_expires_at": expiresAt.UTC(),
	})
	if res.Error != nil {
		return fmt.Errorf("%w: update tokens for %s: %w", model.ErrTransport, userID, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("update tokens for %s: %w", userID, model.ErrUserNotFound)
	}

	return nil
}
