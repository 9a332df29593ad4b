package queue

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/coder/quartz"

	"github.com/ericfisherdev/stepsync/internal/domain/model"
	"github.com/ericfisherdev/stepsync/internal/domain/port/driven"
)

// popRetryDelay is the pause after a failed pop before trying again.
const popRetryDelay = time.Second

// Executor runs a decoded command to completion.
type Executor interface {
	Execute(ctx context.Context, cmd model.Command) model.Response
}

// Consumer pops messages one at a time and handles each decoded command in
// its own goroutine. In-flight commands are not bounded.
type Consumer struct {
	queue   driven.CommandQueue
	replies driven.ReplySink
	exec    Executor
	clock   quartz.Clock
	logger  *slog.Logger

	inflight sync.WaitGroup
}

// NewConsumer creates a Consumer with all required dependencies.
func NewConsumer(
	queue driven.CommandQueue,
	replies driven.ReplySink,
	exec Executor,
	clock quartz.Clock,
	logger *slog.Logger,
) *Consumer {
	return &Consumer{
		queue:   queue,
		replies: replies,
		exec:    exec,
		clock:   clock,
		logger:  logger,
	}
}

// Run consumes until ctx is cancelled, then waits for in-flight commands.
// Commands run on a context detached from ctx so a shutdown never cuts a
// live fetch short.
func (c *Consumer) Run(ctx context.Context) error {
	c.logger.Info("consumer started")

	for ctx.Err() == nil {
		raw, ok, err := c.queue.Pop(ctx)
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			c.logger.Error("queue pop failed", "error", err)
			c.pause(ctx)
			continue
		}
		if !ok {
			continue
		}

		c.dispatch(context.WithoutCancel(ctx), raw)
	}

	c.logger.Info("consumer stopping, waiting for in-flight commands")
	c.inflight.Wait()
	c.logger.Info("consumer stopped")
	return nil
}

func (c *Consumer) dispatch(ctx context.Context, raw string) {
	env, ok := Decode(raw, c.clock.Now())
	if !ok {
		c.logger.Debug("dropping message", "message", raw)
		return
	}

	c.inflight.Add(1)
	go func() {
		defer c.inflight.Done()
		c.handle(ctx, env)
	}()
}

func (c *Consumer) handle(ctx context.Context, env model.Envelope) {
	start := c.clock.Now()

	var resp model.Response
	if env.Err != nil {
		resp = model.NewErrorResponse(env.Err)
	} else {
		resp = c.exec.Execute(ctx, env.Command)
	}

	id := env.ID.String()
	if err := c.replies.Reply(ctx, id, Encode(resp)); err != nil {
		c.logger.Error("failed to write reply", "id", id, "error", err)
		return
	}

	c.logger.Info("command handled",
		"id", id,
		"response", responseName(resp),
		"duration", c.clock.Since(start).Round(time.Millisecond),
	)
}

func (c *Consumer) pause(ctx context.Context) {
	timer := c.clock.NewTimer(popRetryDelay, "consumer", "retry")
	defer timer.Stop()

	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}

func responseName(resp model.Response) string {
	switch r := resp.(type) {
	case model.StepsResponse:
		return "steps"
	case model.RefreshedResponse:
		return "refreshed"
	case model.ErrorResponse:
		return "error:" + r.Kind.String()
	default:
		return "unknown"
	}
}
