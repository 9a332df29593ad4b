package fitbit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/oauth2"

	"github.com/ericfisherdev/stepsync/internal/domain/model"
)

// rejectedCodes are OAuth error codes meaning the refresh token can no longer
// be exchanged and the user has to re-authorize.
var rejectedCodes = map[string]bool{
	"invalid_grant": true,
	"invalid_token": true,
	"expired_token": true,
}

// RefreshTokens performs the refresh_token grant with HTTP Basic client
// authentication.
func (c *Client) RefreshTokens(ctx context.Context, refreshToken string) (model.TokenGrant, error) {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, c.http)

	// An empty access token forces the source to run the grant immediately.
	tok, err := c.oauth.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken}).Token()
	if err != nil {
		return model.TokenGrant{}, classifyRefreshError(err)
	}

	grant := model.TokenGrant{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		ExpiresIn:    expiresIn(tok),
	}
	if uid, ok := tok.Extra("user_id").(string); ok {
		grant.UpstreamUserID = uid
	}

	return grant, nil
}

// expiresIn prefers the raw expires_in field over the computed expiry.
func expiresIn(tok *oauth2.Token) time.Duration {
	switch v := tok.Extra("expires_in").(type) {
	case float64:
		return time.Duration(v) * time.Second
	case json.Number:
		if n, err := v.Int64(); err == nil {
			return time.Duration(n) * time.Second
		}
	}
	if tok.Expiry.IsZero() {
		return 0
	}
	return time.Until(tok.Expiry).Round(time.Second)
}

func classifyRefreshError(err error) error {
	var rErr *oauth2.RetrieveError
	if !errors.As(err, &rErr) {
		return fmt.Errorf("%w: refresh token: %w", model.ErrUpstream, err)
	}

	code, message := rErr.ErrorCode, rErr.ErrorDescription
	var eb errorBody
	if json.Unmarshal(rErr.Body, &eb) == nil && len(eb.Errors) > 0 {
		code, message = eb.Errors[0].ErrorType, eb.Errors[0].Message
	}

	status := 0
	if rErr.Response != nil {
		status = rErr.Response.StatusCode
	}

	switch {
	case rejectedCodes[code]:
		return fmt.Errorf("%w: %s", model.ErrRejectedToken, message)
	case code == "" && (status == http.StatusBadRequest || status == http.StatusUnauthorized):
		return fmt.Errorf("%w: upstream returned %d", model.ErrRejectedToken, status)
	case status == http.StatusTooManyRequests:
		return fmt.Errorf("%w: token endpoint returned %d", model.ErrRateLimitExceeded, status)
	default:
		return fmt.Errorf("%w: refresh token: %s %s", model.ErrUpstream, code, message)
	}
}
