package upstream

import (
	"errors"
	"fmt"
)

// ErrorKind classifies an upstream failure.
type ErrorKind int

const (
	Transient ErrorKind = iota + 1
	Permanent
	Unauthorized
)

func (k ErrorKind) String() string {
	switch k {
	case Transient:
		return "transient"
	case Permanent:
		return "permanent"
	case Unauthorized:
		return "unauthorized"
	default:
		return "unknown"
	}
}

// Error is returned by every Client call that fails.
type Error struct {
	Kind     ErrorKind
	Status   int // HTTP status, 0 for transport errors
	Attempts int
	Err      error
}

func (e *Error) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("upstream %s error (status %d, attempts %d): %v", e.Kind, e.Status, e.Attempts, e.Err)
	}
	return fmt.Sprintf("upstream %s error (attempts %d): %v", e.Kind, e.Attempts, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// KindOf returns the ErrorKind of err, or 0 if err is not an upstream error.
func KindOf(err error) ErrorKind {
	var ue *Error
	if errors.As(err, &ue) {
		return ue.Kind
	}
	return 0
}

func IsUnauthorized(err error) bool { return KindOf(err) == Unauthorized }

// classifyStatus maps a non-2xx HTTP status to an error kind.
func classifyStatus(status int) ErrorKind {
	switch {
	case status == 401 || status == 403:
		return Unauthorized
	case status == 408 || status == 429:
		return Transient
	case status >= 500:
		return Transient
	default:
		return Permanent
	}
}
