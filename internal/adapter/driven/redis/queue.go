package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/ericfisherdev/stepsync/internal/domain/model"
	"github.com/ericfisherdev/stepsync/internal/domain/port/driven"
)

// ReplyTTL bounds how long an unread reply is kept.
const ReplyTTL = 60 * time.Second

// Compile-time interface satisfaction checks.
var (
	_ driven.CommandQueue = (*Queue)(nil)
	_ driven.ReplySink    = (*Queue)(nil)
)

// Queue pops inbound messages from a Redis list and writes replies to
// per-coordination keys.
type Queue struct {
	client  *goredis.Client
	key     string
	timeout time.Duration
}

// NewQueue creates a Queue that pops from key, blocking at most timeout per call.
func NewQueue(client *goredis.Client, key string, timeout time.Duration) *Queue {
	return &Queue{client: client, key: key, timeout: timeout}
}

// Pop performs a BRPOP on the queue key.
func (q *Queue) Pop(ctx context.Context) (string, bool, error) {
	res, err := q.client.BRPop(ctx, q.timeout, q.key).Result()
	if errors.Is(err, goredis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("%w: pop %s: %w", model.ErrTransport, q.key, err)
	}
	if len(res) != 2 {
		return "", false, fmt.Errorf("%w: pop %s: unexpected reply of %d elements", model.ErrTransport, q.key, len(res))
	}

	return res[1], true, nil
}

// Reply stores value under replies:<coordinationID> for ReplyTTL.
func (q *Queue) Reply(ctx context.Context, coordinationID, value string) error {
	if err := q.client.Set(ctx, replyKey(coordinationID), value, ReplyTTL).Err(); err != nil {
		return fmt.Errorf("%w: reply %s: %w", model.ErrTransport, coordinationID, err)
	}
	return nil
}
