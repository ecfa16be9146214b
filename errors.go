package portal

import (
	"errors"
	"fmt"
)

// Sentinel errors for errors.Is checks across the package.
var (
	ErrInvalidInput     = errors.New("invalid input")
	ErrNotFound         = errors.New("resource not found")
	ErrPermissionDenied = errors.New("permission denied")
	ErrConflict         = errors.New("conflicting state")
)

// ValidationError reports a missing or malformed field. It is never raised
// after a partial write; validation always precedes mutation.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation failed: " + e.Message
	}
	return fmt.Sprintf("validation failed: %s: %s", e.Field, e.Message)
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrInvalidInput
}

// AuthorizationError deliberately carries no detail about why scope or
// privilege resolution failed, so callers cannot probe for out-of-scope
// records.
type AuthorizationError struct{}

func (e *AuthorizationError) Error() string {
	return "permission denied"
}

func (e *AuthorizationError) Is(target error) bool {
	return target == ErrPermissionDenied
}

// ConflictError reports a transition that is not valid from the item's
// current state.
type ConflictError struct {
	Action    string
	FromState string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("cannot %s from state %q", e.Action, e.FromState)
}

func (e *ConflictError) Is(target error) bool {
	return target == ErrConflict
}

// NotFoundError reports an unknown record id.
type NotFoundError struct {
	Resource string
	ID       uint
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %d not found", e.Resource, e.ID)
}

func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}
