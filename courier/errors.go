package courier

import "fmt"

// ErrUnknownMessage is returned when Send targets a message type with no
// route and no local handler.
type ErrUnknownMessage struct {
	Type string
}

func (e *ErrUnknownMessage) Error() string {
	return fmt.Sprintf("courier: unknown message type: %s", e.Type)
}

// ErrPanic wraps a panic recovered by the Recovery middleware.
type ErrPanic struct {
	Value any
}

func (e *ErrPanic) Error() string {
	return "courier: handler panicked"
}
