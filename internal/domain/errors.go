package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrMissingAPIKey indicates a parameter set without a credential.
	ErrMissingAPIKey = errors.New("no API key provided")

	// ErrMalformedFrame indicates a stream frame whose payload could not be parsed.
	ErrMalformedFrame = errors.New("malformed stream frame")

	// ErrBudgetExceeded indicates the messages that must be kept do not fit the token budget.
	ErrBudgetExceeded = errors.New("token budget exceeded by preserved messages")

	// ErrStreamClosed indicates the stream ended before the termination sentinel.
	ErrStreamClosed = errors.New("stream closed before completion")
)

// TransportError describes a failure of the push-protocol connection itself.
// Payload holds the raw error body as delivered by the remote service.
type TransportError struct {
	StatusCode int
	Payload    string
	Err        error
}

func (e *TransportError) Error() string {
	switch {
	case e.StatusCode != 0:
		return fmt.Sprintf("transport error (status %d): %s", e.StatusCode, e.Payload)
	case e.Err != nil:
		return fmt.Sprintf("transport error: %v", e.Err)
	default:
		return "transport error: " + e.Payload
	}
}

func (e *TransportError) Unwrap() error {
	return e.Err
}
