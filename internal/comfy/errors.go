package comfy

import (
	"errors"
	"fmt"
)

// ErrHistoryNotFound is returned when the history endpoint has no record
// for the requested prompt.
var ErrHistoryNotFound = errors.New("comfy: history record not found")

// SubmissionError reports a failed job intake. No job exists remotely when
// it is returned.
type SubmissionError struct {
	StatusCode int
	Body       string
	Err        error
}

func (e *SubmissionError) Error() string {
	switch {
	case e.StatusCode > 0 && e.Body != "":
		return fmt.Sprintf("comfy: submit failed: http %d: %s", e.StatusCode, e.Body)
	case e.StatusCode > 0:
		return fmt.Sprintf("comfy: submit failed: http %d", e.StatusCode)
	case e.Err != nil:
		return fmt.Sprintf("comfy: submit failed: %v", e.Err)
	default:
		return "comfy: submit failed"
	}
}

func (e *SubmissionError) Unwrap() error { return e.Err }

// TransportError reports a failed status or result read.
type TransportError struct {
	Op         string
	StatusCode int
	Err        error
}

func (e *TransportError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("comfy: %s: http %d", e.Op, e.StatusCode)
	}
	return fmt.Sprintf("comfy: %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }
