package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/ericfisherdev/stepsync/internal/domain/model"
	"github.com/ericfisherdev/stepsync/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.CredentialStore = (*CredentialRepo)(nil)

// CredentialRepo is the SQLite implementation of the CredentialStore port interface.
// Token expiry is stored as unix seconds.
type CredentialRepo struct {
	db *DB
}

// NewCredentialRepo creates a new CredentialRepo backed by the given DB.
func NewCredentialRepo(db *DB) *CredentialRepo {
	return &CredentialRepo{db: db}
}

// Lookup returns the credential record for userID, or (nil, nil) if absent.
func (r *CredentialRepo) Lookup(ctx context.Context, userID string) (*model.Credential, error) {
	const query = `
		SELECT id, fitbit_user_id, fitbit_access_token, fitbit_refresh_token, fitbit_token_expires_at
		FROM fitbit_data
		WHERE id = ?
	`

	var (
		cred      model.Credential
		expiresAt sql.NullInt64
	)

	err := r.db.Reader.QueryRowContext(ctx, query, userID).Scan(
		&cred.ID, &cred.UpstreamUserID, &cred.AccessToken, &cred.RefreshToken, &expiresAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: lookup credential %s: %w", model.ErrTransport, userID, err)
	}

	if expiresAt.Valid {
		cred.TokenExpiresAt = time.Unix(expiresAt.Int64, 0).UTC()
	}

	return &cred, nil
}

// IsTokenExpired compares the stored expiry with SQLite's own clock.
func (r *CredentialRepo) IsTokenExpired(ctx context.Context, userID string) (bool, bool, error) {
	const query = `
		SELECT fitbit_token_expires_at < unixepoch()
		FROM fitbit_data
		WHERE id = ?
	`

	var expired sql.NullBool
	err := r.db.Reader.QueryRowContext(ctx, query, userID).Scan(&expired)
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
	const query = `
		UPDATE fitbit_data
		SET fitbit_access_token = ?, fitbit_refresh_token = ?, fitbit_token_expires_at = ?
		WHERE id = ?
	`

	res, err := r.db.Writer.ExecContext(ctx, query, accessToken, refreshToken, expiresAt.UTC().Unix(), userID)
	if err != nil {
		return fmt.Errorf("%w: update tokens for %s: %w", model.ErrTransport, userID, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%w: update tokens for %s: %w", model.ErrTransport, userID, err)
	}
	if n == 0 {
		return fmt.Errorf("update tokens for %s: %w", userID, model.ErrUserNotFound)
	}

	return nil
}

// Upsert inserts or replaces a credential record. The front-end owns this
// table in production; Upsert exists for seeding single-node deployments.
func (r *CredentialRepo) Upsert(ctx context.Context, cred model.Credential) error {
	const query = `
		INSERT INTO fitbit_data (id, fitbit_user_id, fitbit_access_token, fitbit_refresh_token, fitbit_token_expires_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			fitbit_user_id = excluded.fitbit_user_id,
			fitbit_access_token = excluded.fitbit_access_token,
			fitbit_refresh_token = excluded.fitbit_refresh_token,
			fitbit_token_expires_at = excluded.fitbit_token_expires_at
	`

	var expiresAt sql.NullInt64
	if !cred.TokenExpiresAt.IsZero() {
		expiresAt = sql.NullInt64{Int64: cred.TokenExpiresAt.UTC().Unix(), Valid: true}
	}

	_, err := r.db.Writer.ExecContext(ctx, query,
		cred.ID, cred.UpstreamUserID, cred.AccessToken, cred.RefreshToken, expiresAt,
	)
	if err != nil {
		return fmt.Errorf("%w: upsert credential %s: %w", model.ErrTransport, cred.ID, err)
	}

	return nil
}
