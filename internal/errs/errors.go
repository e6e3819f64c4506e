// Package errs defines the error taxonomy shared by the SDK. Callers can
// distinguish "server unreachable" from "server answered something
// unexpected" and from "session is no longer valid".
package errs

import (
	"errors"
	"fmt"
)

var (
	// ErrNotAuthenticated is returned when a request fails with 401 after a
	// token refresh has already been attempted, or when no session exists.
	ErrNotAuthenticated = errors.New("not authenticated")

	// ErrDeserialization is returned when a response body does not match the
	// expected schema.
	ErrDeserialization = errors.New("failed to deserialize response")

	// ErrInvalidTransition is returned when a command state transition is
	// rejected locally, before any network call is made.
	ErrInvalidTransition = errors.New("invalid command state transition")
)

// NetworkError wraps a transport-level failure.
type NetworkError struct {
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("network failure: %v", e.Err)
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

// StatusError reports a non-2xx response that is not an authentication
// failure.
type StatusError struct {
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("request failed with status %d", e.Code)
}

// IsNetwork reports whether err originated at the transport level.
func IsNetwork(err error) bool {
	var ne *NetworkError
	return errors.As(err, &ne)
}
