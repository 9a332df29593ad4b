package redis

import (
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/coder/quartz"
	goredis "github.com/redis/go-redis/v9"
)

// testNow is a fixed instant used as the mocked wall clock.
var testNow = time.Date(2023, time.January, 5, 12, 0, 0, 0, time.UTC)

// setupTestRedis starts an in-process Redis server scoped to the test and
// returns a client connected to it.
func setupTestRedis(t *testing.T) (*goredis.Client, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	return client, mr
}

func newTestClock(t *testing.T) *quartz.Mock {
	t.Helper()

	clock := quartz.NewMock(t)
	clock.Set(testNow)
	return clock
}
