package telematics

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrRateLimited = errors.New("telematics: rate limited")
	ErrUpstream    = errors.New("telematics: upstream error")
	ErrNoPosition  = errors.New("telematics: no position for device")

	errSessionExpired = errors.New("telematics: session expired")
)

// RateLimitError is returned when the API throttles the client. RetryAfter
// is zero when the server gave no hint.
type RateLimitError struct {
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("%v (retry after %s)", ErrRateLimited, e.RetryAfter)
	}
	return ErrRateLimited.Error()
}

func (e *RateLimitError) Unwrap() error { return ErrRateLimited }

// rpcError is the JSON-RPC error object.
type rpcError struct {
	Message string `json:"message"`
	Name    string `json:"name"`
	Data    struct {
		Type string `json:"type"`
	} `json:"data"`
	Errors []struct {
		Name    string `json:"name"`
		Message string `json:"message"`
	} `json:"errors"`
}

func (e *rpcError) kind() string {
	if len(e.Errors) > 0 && e.Errors[0].Name != "" {
		return e.Errors[0].Name
	}
	if e.Data.Type != "" {
		return e.Data.Type
	}
	return e.Name
}

func classifyRPC(e *rpcError) error {
	switch e.kind() {
	case "OverLimitException":
		return &RateLimitError{}
	case "InvalidUserException":
		return errSessionExpired
	default:
		return fmt.Errorf("%w: %s: %s", ErrUpstream, e.kind(), e.Message)
	}
}
