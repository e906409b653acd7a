package model

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrInvalidRequest is returned for a missing or empty user message.
	ErrInvalidRequest = errors.New("invalid request")

	// ErrEmptyMessage is returned when a blank message is submitted.
	ErrEmptyMessage = fmt.Errorf("%w: message is required", ErrInvalidRequest)

	// ErrUpstreamUnavailable is returned when the backend cannot be reached.
	ErrUpstreamUnavailable = errors.New("upstream unavailable")

	// ErrUpstreamMalformed is returned when the backend answered with
	// something that is not a readable HTTP response.
	ErrUpstreamMalformed = fmt.Errorf("%w: malformed upstream response", ErrUpstreamUnavailable)

	// ErrStreamDecode marks a malformed SSE block or data payload.
	ErrStreamDecode = errors.New("stream decode error")

	// ErrCitationParse marks a malformed citation envelope.
	ErrCitationParse = errors.New("citation parse error")

	// ErrStreamInterrupted is returned when the transport closes mid-stream.
	ErrStreamInterrupted = errors.New("stream interrupted")

	// ErrBusy is returned when a message is submitted while a stream is active.
	ErrBusy = errors.New("a response is already streaming")
)

// UpstreamError is a non-2xx response from the backend.
type UpstreamError struct {
	StatusCode int
	Message    string
}

func (e *UpstreamError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("upstream returned %d: %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("upstream returned %d", e.StatusCode)
}

// StatusCode maps an error from the taxonomy to the HTTP status a relay
// should answer with.
func StatusCode(err error) int {
	var upstreamErr *UpstreamError
	switch {
	case err == nil:
		return http.StatusOK
	case errors.As(err, &upstreamErr):
		return upstreamErr.StatusCode
	case errors.Is(err, ErrInvalidRequest):
		return http.StatusBadRequest
	case errors.Is(err, ErrUpstreamMalformed):
		return http.StatusServiceUnavailable
	case errors.Is(err, ErrUpstreamUnavailable):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
