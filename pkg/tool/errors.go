package tool

import "fmt"

// ErrorKind classifies tool execution failures. Per-call failures are
// recovered locally: they become a Result.Error fed back into the stage
// transcript so the role can self-correct, never a Go error.
type ErrorKind string

const (
	ErrInvalidArguments ErrorKind = "invalid_arguments"
	ErrPathEscape       ErrorKind = "path_escape"
	ErrTimeout          ErrorKind = "timeout"
	ErrExecution        ErrorKind = "execution"
)

// Error is a typed tool failure attached to a Result.
type Error struct {
	Kind    ErrorKind `json:"kind"`
	Message string    `json:"message"`
}

func (e *Error) Error() string {
	if e == nil {
		return "tool error"
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func invalidArguments(format string, args ...any) *Error {
	return &Error{Kind: ErrInvalidArguments, Message: fmt.Sprintf(format, args...)}
}

func pathEscape(format string, args ...any) *Error {
	return &Error{Kind: ErrPathEscape, Message: fmt.Sprintf(format, args...)}
}

func executionError(format string, args ...any) *Error {
	return &Error{Kind: ErrExecution, Message: fmt.Sprintf(format, args...)}
}
