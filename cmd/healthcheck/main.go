package main

import (
	"context"
	"os"
	"time"

	"github.com/joho/godotenv"
	goredis "github.com/redis/go-redis/v9"
)

func main() {
	os.Exit(check())
}

// check pings the Redis instance the service consumes from. The service has
// no listener of its own, so a reachable queue is the readiness signal.
func check() int {
	_ = godotenv.Load()

	opts, err := goredis.ParseURL(redisURL(os.Getenv("REDIS_URL")))
	if err != nil {
		return 1
	}
	opts.DialTimeout = 2 * time.Second
	opts.ReadTimeout = 2 * time.Second

	client := goredis.NewClient(opts)
	defer func() { _ = client.Close() }()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return 1
	}

	return 0
}

// redisURL falls back to the local default when REDIS_URL is unset.
func redisURL(raw string) string {
	if raw == "" {
		return "redis://127.0.0.1:6379/0"
	}
	return raw
}
