package model

import "time"

// Credential is a user's upstream OAuth record. The record is owned by the
// credential store; the service only reads it and requests token updates.
type Credential struct {
	ID             string
	UpstreamUserID string
	AccessToken    string
	RefreshToken   string
	TokenExpiresAt time.Time
}

// TokenGrant is the result of a successful refresh-token exchange.
type TokenGrant struct {
	AccessToken    string
	RefreshToken   string
	UpstreamUserID string
	ExpiresIn      time.Duration
}
