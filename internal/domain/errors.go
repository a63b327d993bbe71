package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrServiceOffline indicates submissions are paused.
	ErrServiceOffline = errors.New("service is offline")
	// ErrForbidden indicates the actor's role may not perform the operation.
	ErrForbidden = errors.New("operation not permitted for role")
	// ErrNotOwner indicates the actor does not own the order.
	ErrNotOwner = errors.New("order belongs to another customer")
	// ErrOrderNotFound indicates the order is not in the actor's projection.
	ErrOrderNotFound = errors.New("order not found")
	// ErrItemNotFound indicates the inventory item does not exist.
	ErrItemNotFound = errors.New("inventory item not found")
	// ErrStaffNotFound indicates no roster entry matches.
	ErrStaffNotFound = errors.New("staff member not found")
	// ErrStaffExists indicates the email is already on the roster.
	ErrStaffExists = errors.New("staff member already exists")
	// ErrInvalidTransition indicates a lifecycle move the state machine rejects.
	ErrInvalidTransition = errors.New("invalid order state transition")
	// ErrInvalidOptions indicates malformed print options.
	ErrInvalidOptions = errors.New("invalid print options")
	// ErrInvalidDocument indicates an unacceptable upload.
	ErrInvalidDocument = errors.New("invalid document")
	// ErrInvalidItem indicates malformed inventory fields.
	ErrInvalidItem = errors.New("invalid inventory item")
	// ErrNotPaid indicates the order has not been paid yet.
	ErrNotPaid = errors.New("order is not paid")
)

// ValidationError is a local rejection raised before any backing-store call.
// Reason is suitable to show to the actor.
type ValidationError struct {
	Reason string
	Err    error
}

func (e *ValidationError) Error() string { return e.Reason }

func (e *ValidationError) Unwrap() error { return e.Err }

// Invalid builds a ValidationError wrapping a sentinel.
func Invalid(err error, format string, args ...any) error {
	return &ValidationError{Reason: fmt.Sprintf(format, args...), Err: err}
}

// FetchError reports a failed initial load of a projection. The projection
// stays in its not-loaded state until the caller retries.
type FetchError struct {
	Collection string
	Err        error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetching %s: %v", e.Collection, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// MutationError reports a backing-store write that failed. Nothing is
// applied locally; the actor must re-issue the operation.
type MutationError struct {
	Op  string
	Err error
}

func (e *MutationError) Error() string {
	return fmt.Sprintf("%s failed: %v", e.Op, e.Err)
}

func (e *MutationError) Unwrap() error { return e.Err }

// SubscriptionError reports that a change stream failed or dropped and the
// projection may be showing stale data.
type SubscriptionError struct {
	Collection string
	Err        error
}

func (e *SubscriptionError) Error() string {
	return fmt.Sprintf("subscription to %s: %v", e.Collection, e.Err)
}

func (e *SubscriptionError) Unwrap() error { return e.Err }

// IsValidation reports whether err is a local validation rejection.
func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}
