package model

import "errors"

// Error taxonomy. Adapters and services wrap these with fmt.Errorf("%w: ...")
// so callers can classify with errors.Is.
var (
	ErrTransport         = errors.New("transport error")
	ErrUpstream          = errors.New("upstream error")
	ErrExpiredToken      = errors.New("token expired")
	ErrRejectedToken     = errors.New("token rejected")
	ErrRateLimitExceeded = errors.New("rate limit exceeded")
	ErrDateOutOfRange    = errors.New("date out of range")
	ErrInvalidMessage    = errors.New("invalid message")
	ErrUserNotFound      = errors.New("user not found")
)

// ErrorKind classifies an error for the Error response.
type ErrorKind int

const (
	KindInternal ErrorKind = iota
	KindTransport
	KindUpstream
	KindExpiredToken
	KindRejectedToken
	KindRateLimitExceeded
	KindDateOutOfRange
	KindInvalidMessage
	KindUserNotFound
)

var kindSentinels = []struct {
	kind ErrorKind
	err  error
}{
	{KindInvalidMessage, ErrInvalidMessage},
	{KindDateOutOfRange, ErrDateOutOfRange},
	{KindUserNotFound, ErrUserNotFound},
	{KindRejectedToken, ErrRejectedToken},
	{KindExpiredToken, ErrExpiredToken},
	{KindRateLimitExceeded, ErrRateLimitExceeded},
	{KindUpstream, ErrUpstream},
	{KindTransport, ErrTransport},
}

// KindOf returns the kind of the first taxonomy sentinel err wraps, or
// KindInternal when it wraps none.
func KindOf(err error) ErrorKind {
	for _, ks := range kindSentinels {
		if errors.Is(err, ks.err) {
			return ks.kind
		}
	}
	return KindInternal
}

// String returns a stable name for the kind, used in logs.
func (k ErrorKind) String() string {
	switch k {
	case KindTransport:
		return "transport"
	case KindUpstream:
		return "upstream"
	case KindExpiredToken:
		return "expired_token"
	case KindRejectedToken:
		return "rejected_token"
	case KindRateLimitExceeded:
		return "rate_limit_exceeded"
	case KindDateOutOfRange:
		return "date_out_of_range"
	case KindInvalidMessage:
		return "invalid_message"
	case KindUserNotFound:
		return "user_not_found"
	default:
		return "internal"
	}
}
