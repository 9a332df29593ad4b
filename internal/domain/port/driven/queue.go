package driven

import "context"

// CommandQueue defines the driven port for the inbound work queue.
type CommandQueue interface {
	// Pop blocks until a message arrives or the adapter's poll timeout elapses.
	// ok is false when no message arrived.
	Pop(ctx context.Context) (message string, ok bool, err error)
}

// ReplySink defines the driven port for addressed replies.
type ReplySink interface {
	// Reply stores value under the coordination id with a short expiry.
	Reply(ctx context.Context, coordinationID, value string) error
}
