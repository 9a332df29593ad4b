package fitbit

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"cloud.google.com/go/civil"

	"github.com/ericfisherdev/stepsync/internal/domain/model"
)

// Success and error payloads share no discriminator field, so responses are
// probed structurally: the success shape first, then the error shape.

type stepPoint struct {
	DateTime string    `json:"dateTime"`
	Value    stepValue `json:"value"`
}

// stepValue accepts both "1234" and 1234.
type stepValue string

func (v *stepValue) UnmarshalJSON(b []byte) error {
	*v = stepValue(strings.Trim(string(b), `"`))
	return nil
}

type errorDetail struct {
	ErrorType string `json:"errorType"`
	FieldName string `json:"fieldName,omitempty"`
	Message   string `json:"message"`
}

type errorBody struct {
	Errors  []errorDetail `json:"errors"`
	Success bool          `json:"success"`
}

const (
	stepsKey  = "activities-steps"
	errorsKey = "errors"
)

// decodeStepsResponse turns a steps response into counts or a classified error.
func decodeStepsResponse(status int, body []byte) (model.StepCounts, error) {
	if status == http.StatusTooManyRequests {
		return nil, fmt.Errorf("%w: upstream returned %d", model.ErrRateLimitExceeded, status)
	}

	var probe map[string]json.RawMessage
	if err := json.Unmarshal(body, &probe); err != nil {
		return nil, fmt.Errorf("%w: malformed response (status %d): %w", model.ErrUpstream, status, err)
	}

	if raw, ok := probe[stepsKey]; ok && status >= 200 && status < 300 {
		var points []stepPoint
		if err := json.Unmarshal(raw, &points); err != nil {
			return nil, fmt.Errorf("%w: malformed %s: %w", model.ErrUpstream, stepsKey, err)
		}
		if len(points) == 0 {
			return nil, fmt.Errorf("%w: no steps found", model.ErrUpstream)
		}
		return parsePoints(points)
	}

	if _, ok := probe[errorsKey]; ok {
		var eb errorBody
		if err := json.Unmarshal(body, &eb); err != nil {
			return nil, fmt.Errorf("%w: malformed error response: %w", model.ErrUpstream, err)
		}
		return nil, errorFromDetails(eb.Errors)
	}

	return nil, fmt.Errorf("%w: unrecognized response (status %d)", model.ErrUpstream, status)
}

func parsePoints(points []stepPoint) (model.StepCounts, error) {
	steps := make(model.StepCounts, len(points))
	for _, p := range points {
		date, err := civil.ParseDate(p.DateTime)
		if err != nil {
			return nil, fmt.Errorf("%w: parse date %q: %w", model.ErrUpstream, p.DateTime, err)
		}
		value, err := strconv.ParseUint(string(p.Value), 10, 32)
		if err != nil {
			return nil, fmt.Errorf("%w: parse steps %q for %s: %w", model.ErrUpstream, p.Value, p.DateTime, err)
		}
		steps[date] = uint32(value)
	}
	return steps, nil
}

// errorFromDetails maps the first reported error to the taxonomy.
func errorFromDetails(details []errorDetail) error {
	if len(details) == 0 {
		return fmt.Errorf("%w: empty error list", model.ErrUpstream)
	}

	first := details[0]
	switch first.ErrorType {
	case "expired_token":
		return fmt.Errorf("%w: %s", model.ErrExpiredToken, first.Message)
	default:
		return fmt.Errorf("%w: %s: %s", model.ErrUpstream, first.ErrorType, first.Message)
	}
}
