package gateway

import (
	"errors"
	"fmt"
)

// ErrRemoteUnavailable matches every *RemoteUnavailableError.
var ErrRemoteUnavailable = errors.New("remote unavailable")

// RemoteUnavailableError reports a failed gateway call: transport errors,
// non-2xx responses, undecodable bodies and rejected exports alike.
type RemoteUnavailableError struct {
	// Op is "import", "export" or "calendar".
	Op string
	// Status is the HTTP status code, or 0 if no response was received.
	Status int
	Err    error
}

func (e *RemoteUnavailableError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("gateway %s failed (status %d): %v", e.Op, e.Status, e.Err)
	}
	return fmt.Sprintf("gateway %s failed: %v", e.Op, e.Err)
}

func (e *RemoteUnavailableError) Unwrap() error {
	return e.Err
}

func (e *RemoteUnavailableError) Is(target error) bool {
	return target == ErrRemoteUnavailable
}
