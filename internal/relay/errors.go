package relay

import (
	"errors"
	"fmt"
)

var (
	// ErrMissingFields is returned when bank_id, email or password is absent or empty.
	ErrMissingFields = errors.New("missing required fields")
	// ErrNotConfigured is returned when no forwarding endpoint was injected.
	ErrNotConfigured = errors.New("forwarding endpoint not configured")
)

// MalformedInputError wraps a request body that could not be decoded.
type MalformedInputError struct {
	Err error
}

func (e *MalformedInputError) Error() string {
	return fmt.Sprintf("malformed request body: %v", e.Err)
}

func (e *MalformedInputError) Unwrap() error {
	return e.Err
}

// UpstreamError wraps a failed call to the connection testing service,
// whether the transport failed or the reply could not be decoded.
type UpstreamError struct {
	Endpoint string
	Err      error
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("calling %s: %v", e.Endpoint, e.Err)
}

func (e *UpstreamError) Unwrap() error {
	return e.Err
}
