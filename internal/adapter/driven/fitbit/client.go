// Package fitbit implements the StepsAPI port against the Fitbit Web API.
package fitbit

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"cloud.google.com/go/civil"
	"github.com/gregjones/httpcache"
	"golang.org/x/oauth2"

	"github.com/ericfisherdev/stepsync/internal/domain/model"
	"github.com/ericfisherdev/stepsync/internal/domain/port/driven"
)

const (
	DefaultAPIURL   = "https://api.fitbit.com"
	DefaultTokenURL = "https://api.fitbit.com/oauth2/token"

	headerRateLimitReset     = "Fitbit-Rate-Limit-Reset"
	headerRateLimitRemaining = "Fitbit-Rate-Limit-Remaining"
	headerRateLimitLimit     = "Fitbit-Rate-Limit-Limit"

	maxResponseBytes = 4 << 20
)

// Compile-time interface satisfaction check.
var _ driven.StepsAPI = (*Client)(nil)

// Client implements the driven.StepsAPI port over HTTP.
type Client struct {
	http   *http.Client
	apiURL string
	oauth  *oauth2.Config
}

// Options configures NewClient.
type Options struct {
	ClientID     string
	ClientSecret string
	APIURL       string
	TokenURL     string
	Timeout      time.Duration
	// CacheBytes bounds the response cache. Zero means DefaultCacheBytes.
	CacheBytes int64
}

// NewClient creates a Fitbit client with the following transport stack:
//  1. httpcache over a size-bounded ristretto store (conditional request caching)
//  2. upstreamTransport (flags requests that reached the network)
//  3. net/http default transport
func NewClient(opts Options) (*Client, error) {
	cache, err := newResponseCache(opts.CacheBytes)
	if err != nil {
		return nil, err
	}
	cacheTransport := httpcache.NewTransport(cache)
	cacheTransport.Transport = upstreamTransport{next: http.DefaultTransport}
	httpClient := &http.Client{Transport: cacheTransport, Timeout: opts.Timeout}

	apiURL := opts.APIURL
	if apiURL == "" {
		apiURL = DefaultAPIURL
	}
	tokenURL := opts.TokenURL
	if tokenURL == "" {
		tokenURL = DefaultTokenURL
	}

	return NewClientWithHTTPClient(httpClient, apiURL, tokenURL, opts.ClientID, opts.ClientSecret)
}

// NewClientWithHTTPClient creates a Client with a custom http.Client and base URLs.
// This constructor is intended for testing, allowing injection of an httptest server.
func NewClientWithHTTPClient(httpClient *http.Client, apiURL, tokenURL, clientID, clientSecret string) (*Client, error) {
	if _, err := url.ParseRequestURI(apiURL); err != nil {
		return nil, fmt.Errorf("parsing api URL: %w", err)
	}
	if _, err := url.ParseRequestURI(tokenURL); err != nil {
		return nil, fmt.Errorf("parsing token URL: %w", err)
	}

	return &Client{
		http:   httpClient,
		apiURL: strings.TrimRight(apiURL, "/"),
		oauth: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			Endpoint: oauth2.Endpoint{
				TokenURL:  tokenURL,
				AuthStyle: oauth2.AuthStyleInHeader,
			},
		},
	}, nil
}

// FetchSteps retrieves the daily step time series for the period ending on end.
// The upstream may return days outside the caller's range; callers filter.
func (c *Client) FetchSteps(ctx context.Context, upstreamUserID, accessToken string, end civil.Date, period model.Period) (model.StepFetch, error) {
	endpoint := fmt.Sprintf("%s/1/user/%s/activities/steps/date/%s/%s.json?timezone=UTC",
		c.apiURL, url.PathEscape(upstreamUserID), end, period)

	ctx, reached := trackUpstream(ctx)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return model.StepFetch{}, fmt.Errorf("%w: build steps request: %w", model.ErrUpstream, err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return model.StepFetch{}, fmt.Errorf("%w: fetch steps for %s: %w", model.ErrUpstream, upstreamUserID, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return model.StepFetch{}, fmt.Errorf("%w: read steps response for %s: %w", model.ErrUpstream, upstreamUserID, err)
	}

	logRateLimit(resp, upstreamUserID, end, period)

	steps, err := decodeStepsResponse(resp.StatusCode, body)
	if err != nil {
		return model.StepFetch{}, err
	}

	return model.StepFetch{Steps: steps, ResetIn: rateLimitReset(resp, reached.Load())}, nil
}

// rateLimitReset returns the seconds-until-reset header as a duration. It
// returns zero when the header is missing or the response was served from the
// local HTTP cache without reaching the upstream. A 304 revalidation reached
// the upstream and carries the current header.
func rateLimitReset(resp *http.Response, reachedUpstream bool) time.Duration {
	if resp.Header.Get(httpcache.XFromCache) != "" && !reachedUpstream {
		return 0
	}

	raw := resp.Header.Get(headerRateLimitReset)
	if raw == "" {
		return 0
	}

	seconds, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil || seconds <= 0 {
		slog.Warn("invalid fitbit rate limit reset header", "value", raw)
		return 0
	}

	return time.Duration(seconds) * time.Second
}

// logRateLimit logs the upstream rate limit status after each call.
func logRateLimit(resp *http.Response, upstreamUserID string, end civil.Date, period model.Period) {
	remaining := resp.Header.Get(headerRateLimitRemaining)

	slog.Debug("fitbit api call",
		"user", upstreamUserID,
		"end", end.String(),
		"period", period.String(),
		"status", resp.StatusCode,
		"rate_remaining", remaining,
		"rate_limit", resp.Header.Get(headerRateLimitLimit),
		"rate_reset", resp.Header.Get(headerRateLimitReset),
	)

	if n, err := strconv.Atoi(remaining); err == nil && n < 10 {
		slog.Warn("fitbit rate limit low",
			"user", upstreamUserID,
			"remaining", n,
			"reset_in", resp.Header.Get(headerRateLimitReset),
		)
	}
}
