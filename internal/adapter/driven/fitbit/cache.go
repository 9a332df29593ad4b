package fitbit

import (
	"context"
	"fmt"
	"net/http"
	"sync/atomic"

	"github.com/dgraph-io/ristretto/v2"
	"github.com/gregjones/httpcache"
)

// DefaultCacheBytes bounds the response cache when Options.CacheBytes is unset.
const DefaultCacheBytes = 32 << 20

// Compile-time interface satisfaction check.
var _ httpcache.Cache = (*responseCache)(nil)

// responseCache is an httpcache.Cache bounded by total response size. Each
// user and end date is its own URL, so entries are evicted rather than kept
// for the life of the worker.
type responseCache struct {
	store *ristretto.Cache[string, []byte]
}

func newResponseCache(maxBytes int64) (*responseCache, error) {
	if maxBytes <= 0 {
		maxBytes = DefaultCacheBytes
	}

	store, err := ristretto.NewCache(&ristretto.Config[string, []byte]{
		NumCounters: 10_000,
		MaxCost:     maxBytes,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("create response cache: %w", err)
	}

	return &responseCache{store: store}, nil
}

func (c *responseCache) Get(key string) ([]byte, bool) {
	return c.store.Get(key)
}

// Set stores the response and waits for the write to apply, so a request
// issued right after sees it.
func (c *responseCache) Set(key string, responseBytes []byte) {
	c.store.Set(key, responseBytes, int64(len(responseBytes)))
	c.store.Wait()
}

func (c *responseCache) Delete(key string) {
	c.store.Del(key)
}

type upstreamKey struct{}

// upstreamTransport flags requests that went over the network. httpcache
// marks both fresh hits and 304 revalidations with X-From-Cache; only the
// latter consumed quota.
type upstreamTransport struct {
	next http.RoundTripper
}

func (t upstreamTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if reached, ok := req.Context().Value(upstreamKey{}).(*atomic.Bool); ok {
		reached.Store(true)
	}
	return t.next.RoundTrip(req)
}

// trackUpstream returns a context whose requests record whether they reached
// the upstream.
func trackUpstream(ctx context.Context) (context.Context, *atomic.Bool) {
	reached := new(atomic.Bool)
	return context.WithValue(ctx, upstreamKey{}, reached), reached
}
