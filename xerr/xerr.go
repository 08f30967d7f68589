// Package xerr defines the error taxonomy shared by every layer of the
// graph execution runtime (Engine, Graph, Element, built-in elements).
package xerr

import "fmt"

// Code is a closed set of error kinds the runtime can report, both to
// callers and to a ListenThread.
type Code int

const (
	Success Code = iota
	ParseConfigureFail
	NoSuchGraphID
	NoSuchElementID
	NoSuchWorker
	QueueFull
	Timeout
	InitFail
	Unknown
)

func (c Code) String() string {
	switch c {
	case Success:
		return "SUCCESS"
	case ParseConfigureFail:
		return "PARSE_CONFIGURE_FAIL"
	case NoSuchGraphID:
		return "NO_SUCH_GRAPH_ID"
	case NoSuchElementID:
		return "NO_SUCH_ELEMENT_ID"
	case NoSuchWorker:
		return "NO_SUCH_WORKER"
	case QueueFull:
		return "QUEUE_FULL"
	case Timeout:
		return "TIMEOUT"
	case InitFail:
		return "INIT_FAIL"
	case Unknown:
		return "UNKNOWN"
	default:
		return "UNKNOWN"
	}
}

// Error pairs a Code with an optional wrapped cause.
type Error struct {
	Code  Code
	Cause error
}

func New(code Code, msg string) *Error {
	e := &Error{Code: code}
	if msg != "" {
		e.Cause = fmt.Errorf("%s", msg)
	}
	return e
}

// Wrap builds an *Error from an existing cause.
func Wrap(code Code, cause error) *Error {
	return &Error{Code: code, Cause: cause}
}

func (e *Error) Error() string {
	if e == nil {
		return Success.String()
	}
	if e.Cause == nil {
		return e.Code.String()
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Cause)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// Is reports whether err carries the given code.
func Is(err error, code Code) bool {
	e, ok := err.(*Error)
	return ok && e != nil && e.Code == code
}
