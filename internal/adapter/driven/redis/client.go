// Package redis implements the step cache, rate-limit bookkeeping and work
// queue ports on Redis using the go-redis library.
package redis

import (
	"context"
	"fmt"
	"strings"

	goredis "github.com/redis/go-redis/v9"
)

// Key layout shared with the producers and readers of the queue.
const (
	stepsKeyPrefix   = "fitbit_steps:"
	queriesKeyPrefix = "fitbit_user_queries:"
	windowKey        = "fitbit_ratelimit_reset"
	replyKeyPrefix   = "replies:"
)

// NewClient parses a redis:// or rediss:// URL, connects, and verifies the
// connection with PING.
func NewClient(ctx context.Context, url string) (*goredis.Client, error) {
	opts, err := goredis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := goredis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	return client, nil
}

func stepsKey(userID string) string {
	return stepsKeyPrefix + userID
}

func queriesKey(userID string) string {
	return queriesKeyPrefix + userID
}

func replyKey(coordinationID string) string {
	return replyKeyPrefix + coordinationID
}

// isWrongType reports whether Redis rejected a command because the key holds
// a different data type.
func isWrongType(err error) bool {
	return err != nil && strings.HasPrefix(err.Error(), "WRONGTYPE")
}
