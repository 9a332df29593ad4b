package model

import (
	"time"

	"github.com/oklog/ulid"
)

// Command is a decoded unit of work. The concrete types are GetSteps and
// RefreshToken.
type Command interface {
	// User returns the internal user id the command applies to.
	User() string
	isCommand()
}

// GetSteps asks for daily step counts over Range.
type GetSteps struct {
	UserID string
	Range  Range
}

func (c GetSteps) User() string { return c.UserID }
func (GetSteps) isCommand()      {}

// RefreshToken asks for the user's upstream tokens to be exchanged.
type RefreshToken struct {
	UserID string
}

func (c RefreshToken) User() string { return c.UserID }
func (RefreshToken) isCommand()      {}

// Envelope is a decoded inbound message. Exactly one of Command and Err is set.
// Err carries a decode failure that must be reported back to ID.
type Envelope struct {
	ID        ulid.ULID
	ExpiresAt time.Time
	Command   Command
	Err       error
}

// Response is the outcome of a command. The concrete types are
// StepsResponse, RefreshedResponse and ErrorResponse.
type Response interface {
	isResponse()
}

// StepsResponse carries the merged step counts.
type StepsResponse struct {
	Steps StepCounts
}

// RefreshedResponse acknowledges a token refresh.
type RefreshedResponse struct{}

// ErrorResponse carries a failure's kind and display message.
type ErrorResponse struct {
	Kind    ErrorKind
	Message string
}

func (StepsResponse) isResponse()     {}
func (RefreshedResponse) isResponse() {}
func (ErrorResponse) isResponse()     {}

// NewErrorResponse builds the Error response for err.
func NewErrorResponse(err error) ErrorResponse {
	return ErrorResponse{Kind: KindOf(err), Message: err.Error()}
}
