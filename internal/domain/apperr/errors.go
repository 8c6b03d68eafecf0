// Package apperr defines the error taxonomy shared by the cart, order, feed
// and shop domains. Callers classify failures with errors.As.
package apperr

import "fmt"

// ValidationError reports malformed caller input such as an empty cart, a
// missing shop, or a scheduled pickup without a time.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Reason
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

// Invalid is shorthand for constructing a ValidationError.
func Invalid(field, reason string) *ValidationError {
	return &ValidationError{Field: field, Reason: reason}
}

// PersistenceError wraps a durable-store I/O failure.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence: %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// InvalidStateError reports an illegal order status transition.
type InvalidStateError struct {
	OrderID string
	Status  string
	Want    string
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("order %s is %s, want %s", e.OrderID, e.Status, e.Want)
}

// NotFoundError reports that a referenced order or shop does not exist.
type NotFoundError struct {
	Kind string
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Kind, e.ID)
}

// ConflictError reports a duplicate submission whose first attempt is still
// in flight.
type ConflictError struct {
	Key string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("submission %q is already in progress", e.Key)
}
