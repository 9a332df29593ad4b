package fitbit_test

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"cloud.google.com/go/civil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	fitbitAdapter "github.com/ericfisherdev/stepsync/internal/adapter/driven/fitbit"
	"github.com/ericfisherdev/stepsync/internal/domain/model"
)

// newTestClient creates a Client whose API and token endpoints are both
// served by the given httptest handler.
func newTestClient(t *testing.T, handler http.Handler) *fitbitAdapter.Client {
	t.Helper()

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client, err := fitbitAdapter.NewClientWithHTTPClient(
		server.Client(),
		server.URL,
		server.URL+"/oauth2/token",
		"client-id",
		"client-secret",
	)
	require.NoError(t, err)

	return client
}

func date(y int, m time.Month, d int) civil.Date {
	return civil.Date{Year: y, Month: m, Day: d}
}

func TestFetchSteps_Success(t *testing.T) {
	var gotPath, gotQuery, gotAuth string

	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotQuery = r.URL.RawQuery
		gotAuth = r.Header.Get("Authorization")

		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Fitbit-Rate-Limit-Reset", "1800")
		w.Header().Set("Fitbit-Rate-Limit-Remaining", "140")
		fmt.Fprint(w, `{"activities-steps":[
			{"dateTime":"2023-01-01","value":"100"},
			{"dateTime":"2023-01-02","value":"75"},
			{"dateTime":"2023-01-03","value":50}
		]}`)
	}))

	fetch, err := client.FetchSteps(context.Background(), "ABC123", "access-1", date(2023, 1, 3), model.PeriodOneWeek)
	require.NoError(t, err)

	assert.Equal(t, "/1/user/ABC123/activities/steps/date/2023-01-03/1w.json", gotPath)
	assert.Equal(t, "timezone=UTC", gotQuery)
	assert.Equal(t, "Bearer access-1", gotAuth)

	assert.Equal(t, model.StepCounts{
		date(2023, 1, 1): 100,
		date(2023, 1, 2): 75,
		date(2023, 1, 3): 50,
	}, fetch.Steps)
	assert.Equal(t, 30*time.Minute, fetch.ResetIn)
}

func TestFetchSteps_MissingResetHeaderIsUnknown(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `{"activities-steps":[{"dateTime":"2023-01-03","value":"10"}]}`)
	}))

	fetch, err := client.FetchSteps(context.Background(), "ABC123", "access-1", date(2023, 1, 3), model.PeriodOneDay)
	require.NoError(t, err)

	assert.Zero(t, fetch.ResetIn)
	assert.Len(t, fetch.Steps, 1)
}

func TestFetchSteps_Errors(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantErr error
		wantMsg string
	}{
		{
			name:    "expired access token",
			status:  http.StatusUnauthorized,
			body:    `{"errors":[{"errorType":"expired_token","message":"Access token expired: abc"}],"success":false}`,
			wantErr: model.ErrExpiredToken,
			wantMsg: "Access token expired",
		},
		{
			name:    "other upstream error",
			status:  http.StatusForbidden,
			body:    `{"errors":[{"errorType":"insufficient_scope","message":"This application does not have permission"}],"success":false}`,
			wantErr: model.ErrUpstream,
			wantMsg: "insufficient_scope",
		},
		{
			name:    "too many requests",
			status:  http.StatusTooManyRequests,
			body:    `{"errors":[{"errorType":"system","message":"Too Many Requests"}]}`,
			wantErr: model.ErrRateLimitExceeded,
		},
		{
			name:    "malformed body",
			status:  http.StatusOK,
			body:    `<html>oops</html>`,
			wantErr: model.ErrUpstream,
		},
		{
			name:    "no steps returned",
			status:  http.StatusOK,
			body:    `{"activities-steps":[]}`,
			wantErr: model.ErrUpstream,
			wantMsg: "no steps found",
		},
		{
			name:    "unrecognized shape",
			status:  http.StatusOK,
			body:    `{"something":"else"}`,
			wantErr: model.ErrUpstream,
		},
		{
			name:    "non numeric value",
			status:  http.StatusOK,
			body:    `{"activities-steps":[{"dateTime":"2023-01-03","value":"lots"}]}`,
			wantErr: model.ErrUpstream,
		},
		{
			name:    "server error without body",
			status:  http.StatusInternalServerError,
			body:    `{}`,
			wantErr: model.ErrUpstream,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
				fmt.Fprint(w, tt.body)
			}))

			_, err := client.FetchSteps(context.Background(), "ABC123", "access-1", date(2023, 1, 3), model.PeriodOneDay)
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.wantErr)
			if tt.wantMsg != "" {
				assert.Contains(t, err.Error(), tt.wantMsg)
			}
		})
	}
}

func TestNewClientWithHTTPClient_InvalidURL(t *testing.T) {
	_, err := fitbitAdapter.NewClientWithHTTPClient(http.DefaultClient, "not a url", "https://example.com/token", "id", "secret")
	require.Error(t, err)
}

func newCachingClient(t *testing.T, handler http.Handler) *fitbitAdapter.Client {
	t.Helper()

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client, err := fitbitAdapter.NewClient(fitbitAdapter.Options{
		ClientID:     "client-id",
		ClientSecret: "client-secret",
		APIURL:       server.URL,
		TokenURL:     server.URL + "/oauth2/token",
		Timeout:      5 * time.Second,
	})
	require.NoError(t, err)

	return client
}

const cachedStepsBody = `{"activities-steps":[{"dateTime":"2023-01-03","value":"10"}]}`

func TestFetchSteps_FreshCacheHitHasUnknownWindow(t *testing.T) {
	var calls int
	client := newCachingClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls++
		w.Header().Set("Cache-Control", "max-age=3600")
		w.Header().Set("Fitbit-Rate-Limit-Reset", "1800")
		fmt.Fprint(w, cachedStepsBody)
	}))

	first, err := client.FetchSteps(context.Background(), "ABC123", "access-1", date(2023, 1, 3), model.PeriodOneDay)
	require.NoError(t, err)
	assert.Equal(t, 30*time.Minute, first.ResetIn)

	second, err := client.FetchSteps(context.Background(), "ABC123", "access-1", date(2023, 1, 3), model.PeriodOneDay)
	require.NoError(t, err)

	assert.Equal(t, 1, calls)
	assert.Equal(t, first.Steps, second.Steps)
	assert.Zero(t, second.ResetIn)
}

func TestFetchSteps_RevalidationKeepsWindow(t *testing.T) {
	var calls, revalidations int
	client := newCachingClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("ETag", `"steps-v1"`)
		if r.Header.Get("If-None-Match") == `"steps-v1"` {
			revalidations++
			w.Header().Set("Fitbit-Rate-Limit-Reset", "120")
			w.WriteHeader(http.StatusNotModified)
			return
		}
		w.Header().Set("Fitbit-Rate-Limit-Reset", "1800")
		fmt.Fprint(w, cachedStepsBody)
	}))

	_, err := client.FetchSteps(context.Background(), "ABC123", "access-1", date(2023, 1, 3), model.PeriodOneDay)
	require.NoError(t, err)

	second, err := client.FetchSteps(context.Background(), "ABC123", "access-1", date(2023, 1, 3), model.PeriodOneDay)
	require.NoError(t, err)

	assert.Equal(t, 2, calls)
	assert.Equal(t, 1, revalidations)
	assert.Equal(t, model.StepCounts{date(2023, 1, 3): 10}, second.Steps)
	assert.Equal(t, 2*time.Minute, second.ResetIn)
}
