package course

import (
	"errors"
	"fmt"
	"strings"
)

// ErrDuplicateSubscription is returned when an active subscription already
// exists for the same (email, section key).
var ErrDuplicateSubscription = errors.New("duplicate subscription")

// ErrNotFound is returned for an unknown course, section or subscription.
var ErrNotFound = errors.New("not found")

// FieldProblem describes one invalid input field.
type FieldProblem struct {
	Field  string `json:"field"`
	Reason string `json:"reason"`
}

// ValidationError reports missing or malformed request fields.
type ValidationError struct {
	Problems []FieldProblem
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Problems))
	for _, p := range e.Problems {
		parts = append(parts, p.Field+": "+p.Reason)
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

func (e *ValidationError) Add(field, reason string) {
	e.Problems = append(e.Problems, FieldProblem{Field: field, Reason: reason})
}

// Err returns e as an error, or nil if no problem was recorded.
func (e *ValidationError) Err() error {
	if e == nil || len(e.Problems) == 0 {
		return nil
	}
	return e
}

// NotificationDispatchError is logged when every send attempt for a fired
// subscription failed. The subscription stays fired.
type NotificationDispatchError struct {
	SubscriptionID string
	Channel        string
	Attempts       int
	Err            error
}

func (e *NotificationDispatchError) Error() string {
	return fmt.Sprintf("dispatch %s via %s failed after %d attempts: %v", e.SubscriptionID, e.Channel, e.Attempts, e.Err)
}

func (e *NotificationDispatchError) Unwrap() error { return e.Err }
