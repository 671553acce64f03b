package engine

import (
	"errors"
	"fmt"
)

// ErrNoRecipients is returned when a dispatch finds nothing in PENDING.
var ErrNoRecipients = errors.New("campaign has no pending recipients")

// ValidationError marks a malformed identifier or option set. Caller's
// fault; never retried.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string { return e.Msg }

// StateConflictError marks an operation that is invalid for the current
// campaign or test status. It carries the observed status for diagnosis.
type StateConflictError struct {
	Op     string
	Status string
}

func (e *StateConflictError) Error() string {
	return fmt.Sprintf("cannot %s in status %s", e.Op, e.Status)
}

// NotFoundError marks an absent campaign, recipient, test or variant.
type NotFoundError struct {
	Kind string
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Kind, e.ID)
}

// IsStateConflict reports whether err is a state conflict.
func IsStateConflict(err error) bool {
	var sc *StateConflictError
	return errors.As(err, &sc)
}

// IsNotFound reports whether err is a not-found error.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}
