package forecastapi

import (
	"errors"
	"fmt"
)

// ErrSubmissionPending is returned when a submit is attempted while the
// previous one for the same view has not settled.
var ErrSubmissionPending = errors.New("a request is already in progress")

// NetworkError is a transport failure: unreachable host, reset, timeout.
type NetworkError struct {
	Op  string
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("%s: backend unreachable: %v", e.Op, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// ServerError is a non-2xx response from the forecast service.
type ServerError struct {
	Op         string
	StatusCode int
	Message    string
}

func (e *ServerError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("%s: backend returned status %d", e.Op, e.StatusCode)
	}
	return fmt.Sprintf("%s: backend returned status %d: %s", e.Op, e.StatusCode, e.Message)
}

// DecodeError is a malformed payload or one that violates the expected shape.
type DecodeError struct {
	Op  string
	Err error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("%s: unexpected response: %v", e.Op, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// PreconditionError is a client-side guard; the request was never sent.
type PreconditionError struct {
	Op  string
	Err error
}

func (e *PreconditionError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *PreconditionError) Unwrap() error { return e.Err }

// IsPrecondition reports whether err was raised before any request was sent.
func IsPrecondition(err error) bool {
	var pe *PreconditionError
	return errors.As(err, &pe) || errors.Is(err, ErrSubmissionPending)
}

// ErrorClass names the taxonomy bucket of err for logs and metrics.
func ErrorClass(err error) string {
	var (
		ne *NetworkError
		se *ServerError
		de *DecodeError
		pe *PreconditionError
	)
	switch {
	case err == nil:
		return ""
	case errors.As(err, &ne):
		return "network"
	case errors.As(err, &se):
		return "server"
	case errors.As(err, &de):
		return "decode"
	case errors.As(err, &pe), errors.Is(err, ErrSubmissionPending):
		return "precondition"
	default:
		return "unknown"
	}
}
