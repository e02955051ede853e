package broker

import "fmt"

// TransportError means the backend was never reached, or its answer never
// arrived intact: a connectivity problem, not a verdict on the content.
type TransportError struct {
	Msg string
	Err error
}

func (e *TransportError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("broker: backend unreachable: %v", e.Err)
	}
	if e.Msg != "" {
		return e.Msg
	}
	return "broker: backend unreachable"
}

func (e *TransportError) Unwrap() error { return e.Err }

// BackendError is a failure the backend itself reported. Detail carries the
// backend's own message verbatim, so the user sees "model unavailable"
// rather than "status 500".
type BackendError struct {
	Status int
	Detail string
}

func (e *BackendError) Error() string {
	if e.Detail != "" {
		return e.Detail
	}
	return fmt.Sprintf("broker: backend error (status %d)", e.Status)
}
