package api

import (
	"errors"
	"fmt"
)

var (
	// ErrAlreadyExists is wrapped by controllers when a create operation
	// hits an object that is already there. Setup treats it as success.
	ErrAlreadyExists = errors.New("already exists")

	// ErrNotFound is wrapped by controllers when the target of a read or
	// delete operation does not exist.
	ErrNotFound = errors.New("not found")
)

// IsAlreadyExists reports whether err is an idempotency conflict.
func IsAlreadyExists(err error) bool {
	return errors.Is(err, ErrAlreadyExists)
}

// IsNotFound reports whether err means the object is absent.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// ValidationError identifies the single experiment parameter that made the
// invocation invalid.
type ValidationError struct {
	Field   string
	Value   string
	Reason  string
	Missing bool
}

func (e *ValidationError) Error() string {
	if e.Missing {
		return fmt.Sprintf("missing required parameter --%s", e.Field)
	}
	return fmt.Sprintf("invalid value %q for --%s: %s", e.Value, e.Field, e.Reason)
}

// IsValidationError returns true if err, or something it wraps, is a
// *ValidationError.
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// StepError is returned by setup when a step fails. Steps after it did not
// run and steps before it are left applied.
type StepError struct {
	Step string
	Err  error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("setup step %q failed: %v", e.Step, e.Err)
}

func (e *StepError) Unwrap() error {
	return e.Err
}
