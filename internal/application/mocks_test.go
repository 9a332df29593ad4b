package application_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"cloud.google.com/go/civil"
	"github.com/coder/quartz"

	"github.com/ericfisherdev/stepsync/internal/domain/model"
)

// testNow is a fixed instant used as the mocked wall clock.
var testNow = time.Date(2023, time.January, 5, 12, 0, 0, 0, time.UTC)

func newTestClock(t *testing.T) *quartz.Mock {
	t.Helper()

	clock := quartz.NewMock(t)
	clock.Set(testNow)
	return clock
}

func day(y int, m time.Month, d int) civil.Date {
	return civil.Date{Year: y, Month: m, Day: d}
}

// --- Mock implementations ---

type mockStepCache struct {
	mu     sync.Mutex
	data   map[string]model.StepCounts
	writes []model.StepCounts
	getErr error
}

func newMockStepCache() *mockStepCache {
	return &mockStepCache{data: make(map[string]model.StepCounts)}
}

func (m *mockStepCache) seed(userID string, steps model.StepCounts) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.data[userID] == nil {
		m.data[userID] = make(model.StepCounts)
	}
	m.data[userID].Merge(steps)
}

func (m *mockStepCache) AddSteps(ctx context.Context, userID string, date civil.Date, steps uint32) error {
	return m.AddManySteps(ctx, userID, model.StepCounts{date: steps})
}

func (m *mockStepCache) AddManySteps(_ context.Context, userID string, steps model.StepCounts) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.writes = append(m.writes, steps)
	if m.data[userID] == nil {
		m.data[userID] = make(model.StepCounts)
	}
	m.data[userID].Merge(steps)
	return nil
}

func (m *mockStepCache) GetSteps(_ context.Context, userID string, start, end civil.Date) (model.StepCounts, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.getErr != nil {
		return nil, m.getErr
	}
	within := m.data[userID].Within(model.Range{Start: start, End: end})
	return model.ContiguousFrom(start, within), nil
}

type mockRateLimitStore struct {
	mu       sync.Mutex
	logs     map[string][]time.Time
	window   model.RateLimitWindow
	ttls     []time.Duration
	observed []time.Duration
}

func newMockRateLimitStore() *mockRateLimitStore {
	return &mockRateLimitStore{logs: make(map[string][]time.Time)}
}

// fill logs n queries for userID, the newest at last.
func (m *mockRateLimitStore) fill(userID string, n int, last time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i := n - 1; i >= 0; i-- {
		m.logs[userID] = append(m.logs[userID], last.Add(-time.Duration(i)*time.Second))
	}
}

func (m *mockRateLimitStore) count(userID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.logs[userID])
}

func (m *mockRateLimitStore) Usage(_ context.Context, userID string) (model.QueryUsage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	log := m.logs[userID]
	if len(log) == 0 {
		return model.QueryUsage{}, nil
	}
	return model.QueryUsage{Count: len(log), Last: log[len(log)-1]}, nil
}

func (m *mockRateLimitStore) Reserve(_ context.Context, userID string, at time.Time, limit int, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.ttls = append(m.ttls, ttl)
	if len(m.logs[userID]) >= limit {
		return false, nil
	}
	m.logs[userID] = append(m.logs[userID], at)
	return true, nil
}

func (m *mockRateLimitStore) RecordWindow(_ context.Context, _ string, at time.Time, resetIn time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.observed = append(m.observed, resetIn)
	if resetIn >= time.Second {
		m.window = model.RateLimitWindow{ResetAt: at.Add(resetIn - 2*time.Second)}
	}
	return nil
}

func (m *mockRateLimitStore) RecordQuery(_ context.Context, userID string, at time.Time, resetIn time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.logs[userID] = append(m.logs[userID], at)
	m.window = model.RateLimitWindow{ResetAt: at.Add(resetIn - 2*time.Second)}
	return nil
}

func (m *mockRateLimitStore) Window(_ context.Context) (model.RateLimitWindow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.window, nil
}

type tokenUpdate struct {
	UserID       string
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
}

type mockCredentialStore struct {
	mu      sync.Mutex
	creds   map[string]model.Credential
	expired map[string]bool
	lookups int
	updates []tokenUpdate
}

func newMockCredentialStore(creds ...model.Credential) *mockCredentialStore {
	m := &mockCredentialStore{
		creds:   make(map[string]model.Credential),
		expired: make(map[string]bool),
	}
	for _, c := range creds {
		m.creds[c.ID] = c
	}
	return m
}

func (m *mockCredentialStore) Lookup(_ context.Context, userID string) (*model.Credential, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.lookups++
	c, ok := m.creds[userID]
	if !ok {
		return nil, nil
	}
	return &c, nil
}

func (m *mockCredentialStore) IsTokenExpired(_ context.Context, userID string) (bool, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	expired, ok := m.expired[userID]
	return expired, ok, nil
}

func (m *mockCredentialStore) UpdateTokens(_ context.Context, userID, accessToken, refreshToken string, expiresAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.creds[userID]
	if !ok {
		return model.ErrUserNotFound
	}
	c.AccessToken = accessToken
	c.RefreshToken = refreshToken
	c.TokenExpiresAt = expiresAt
	m.creds[userID] = c
	m.expired[userID] = false
	m.updates = append(m.updates, tokenUpdate{
		UserID:       userID,
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		ExpiresAt:    expiresAt,
	})
	return nil
}

type fetchCall struct {
	UpstreamUserID string
	AccessToken    string
	End            civil.Date
	Period         model.Period
}

type mockStepsAPI struct {
	mu            sync.Mutex
	fetch         func(call fetchCall) (model.StepFetch, error)
	refresh       func(refreshToken string) (model.TokenGrant, error)
	fetchCalls    []fetchCall
	refreshTokens []string
}

func (m *mockStepsAPI) FetchSteps(_ context.Context, upstreamUserID, accessToken string, end civil.Date, period model.Period) (model.StepFetch, error) {
	call := fetchCall{UpstreamUserID: upstreamUserID, AccessToken: accessToken, End: end, Period: period}

	m.mu.Lock()
	m.fetchCalls = append(m.fetchCalls, call)
	m.mu.Unlock()

	if m.fetch == nil {
		return model.StepFetch{}, nil
	}
	return m.fetch(call)
}

func (m *mockStepsAPI) RefreshTokens(_ context.Context, refreshToken string) (model.TokenGrant, error) {
	m.mu.Lock()
	m.refreshTokens = append(m.refreshTokens, refreshToken)
	m.mu.Unlock()

	if m.refresh == nil {
		return model.TokenGrant{}, nil
	}
	return m.refresh(refreshToken)
}

// daysEndingAt returns counts for every date in [end-days, end], valued by
// the day of month, the way the upstream overshoots a requested period.
func daysEndingAt(end civil.Date, days int) model.StepCounts {
	out := make(model.StepCounts, days+1)
	for d := end.AddDays(-days); !d.After(end); d = d.AddDays(1) {
		out[d] = uint32(d.Day * 100)
	}
	return out
}
