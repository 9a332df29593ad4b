// Package queue is the driving adapter for the Redis work queue. It decodes
// inbound command messages, dispatches them, and writes encoded replies.
package queue

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/oklog/ulid"

	"github.com/ericfisherdev/stepsync/internal/domain/model"
)

// Wire tokens.
const (
	CommandGetSteps = "get_steps"
	CommandRefresh  = "refresh"

	indicationOK    = "0"
	indicationError = "1"

	refreshedContent = "refreshed"
)

// Decode parses coordinationId:command:payload:ttlEpoch. ok is false when the
// message must be dropped without a reply: the id is unparseable or the TTL
// has already passed. Structural errors are returned in Envelope.Err so the
// caller can reply with them.
func Decode(raw string, now time.Time) (env model.Envelope, ok bool) {
	fields := strings.Split(raw, ":")

	id, err := ulid.ParseStrict(fields[0])
	if err != nil {
		return model.Envelope{}, false
	}
	env.ID = id

	if len(fields) != 4 {
		env.Err = fmt.Errorf("%w: expected 4 fields (coordination_id, command, payload, ttl), got %d in %q",
			model.ErrInvalidMessage, len(fields), raw)
		return env, true
	}

	command, payload := fields[1], fields[2]

	ttl, err := strconv.ParseInt(fields[3], 10, 64)
	if err != nil {
		env.Err = fmt.Errorf("%w: ttl must be a unix timestamp, got %q", model.ErrInvalidMessage, fields[3])
		return env, true
	}
	if ttl < now.Unix() {
		return model.Envelope{}, false
	}
	env.ExpiresAt = time.Unix(ttl, 0).UTC()

	switch command {
	case CommandGetSteps:
		env.Command, env.Err = decodeGetSteps(payload)
	case CommandRefresh:
		env.Command, env.Err = decodeRefresh(payload)
	default:
		env.Err = fmt.Errorf("%w: unknown command %q", model.ErrInvalidMessage, command)
	}

	return env, true
}

func decodeGetSteps(payload string) (model.Command, error) {
	parts := strings.Split(payload, ",")
	if len(parts) != 3 {
		return nil, fmt.Errorf("%w: get_steps expects user_id,start_timestamp,end_timestamp, got %q",
			model.ErrInvalidMessage, payload)
	}

	start, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: get_steps start_timestamp must be a unix timestamp, got %q",
			model.ErrInvalidMessage, parts[1])
	}
	end, err := strconv.ParseInt(parts[2], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: get_steps end_timestamp must be a unix timestamp, got %q",
			model.ErrInvalidMessage, parts[2])
	}

	return model.GetSteps{
		UserID: parts[0],
		Range:  model.Range{Start: model.DateOfEpoch(start), End: model.DateOfEpoch(end)},
	}, nil
}

func decodeRefresh(payload string) (model.Command, error) {
	parts := strings.Split(payload, ",")
	if len(parts) != 1 {
		return nil, fmt.Errorf("%w: refresh expects user_id, got %q", model.ErrInvalidMessage, payload)
	}
	return model.RefreshToken{UserID: parts[0]}, nil
}

// Encode renders a response as <indication>:<escaped content>.
func Encode(resp model.Response) string {
	switch r := resp.(type) {
	case model.StepsResponse:
		return indicationOK + ":" + Escape(encodeSteps(r.Steps))
	case model.RefreshedResponse:
		return indicationOK + ":" + Escape(refreshedContent)
	case model.ErrorResponse:
		return indicationError + ":" + Escape(r.Message)
	default:
		return indicationError + ":" + Escape(fmt.Sprintf("unsupported response %T", resp))
	}
}

// encodeSteps lists counts in ascending date order. Dates are positional.
func encodeSteps(steps model.StepCounts) string {
	dates := steps.Dates()
	values := make([]string, len(dates))
	for i, d := range dates {
		n := steps[d]
		if n > math.MaxInt32 {
			n = 0
		}
		values[i] = strconv.FormatUint(uint64(n), 10)
	}
	return strings.Join(values, ",")
}

var escaper = strings.NewReplacer(`\`, `\\`, `,`, `\,`, `:`, `\:`, "\n", `\n`)

// Escape protects the reply separators inside content.
func Escape(content string) string {
	return escaper.Replace(content)
}

var errDanglingEscape = errors.New("dangling escape at end of content")

// Unescape reverses Escape.
func Unescape(escaped string) (string, error) {
	var b strings.Builder
	b.Grow(len(escaped))

	for i := 0; i < len(escaped); i++ {
		c := escaped[i]
		if c != '\\' {
			b.WriteByte(c)
			continue
		}
		i++
		if i == len(escaped) {
			return "", errDanglingEscape
		}
		if escaped[i] == 'n' {
			b.WriteByte('\n')
		} else {
			b.WriteByte(escaped[i])
		}
	}

	return b.String(), nil
}

// Reply is a decoded reply value as a requester sees it.
type Reply struct {
	OK      bool
	Content string
}

// DecodeReply parses a reply written by Encode.
func DecodeReply(wire string) (Reply, error) {
	indication, escaped, found := strings.Cut(wire, ":")
	if !found {
		return Reply{}, fmt.Errorf("%w: reply has no indication", model.ErrInvalidMessage)
	}

	content, err := Unescape(escaped)
	if err != nil {
		return Reply{}, fmt.Errorf("%w: %w", model.ErrInvalidMessage, err)
	}

	switch indication {
	case indicationOK:
		return Reply{OK: true, Content: content}, nil
	case indicationError:
		return Reply{Content: content}, nil
	default:
		return Reply{}, fmt.Errorf("%w: unknown indication %q", model.ErrInvalidMessage, indication)
	}
}

// Steps parses a successful get_steps reply into counts in date order.
func (r Reply) Steps() ([]int32, error) {
	if !r.OK {
		return nil, fmt.Errorf("reply is an error: %s", r.Content)
	}
	if r.Content == "" {
		return nil, nil
	}

	parts := strings.Split(r.Content, ",")
	steps := make([]int32, len(parts))
	for i, p := range parts {
		n, err := strconv.ParseInt(p, 10, 32)
		if err != nil {
			return nil, fmt.Errorf("parse step count %q: %w", p, err)
		}
		steps[i] = int32(n)
	}
	return steps, nil
}
