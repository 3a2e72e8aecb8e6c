package errors

import (
	"errors"
	"fmt"
	"strings"
)

// Domain error types for business logic

var (
	// ErrNotFound indicates a resource was not found
	ErrNotFound = errors.New("resource not found")

	// ErrAlreadyExists indicates a resource already exists
	ErrAlreadyExists = errors.New("resource already exists")

	// ErrInvalidInput indicates invalid input parameters
	ErrInvalidInput = errors.New("invalid input")

	// ErrUnauthorized indicates insufficient permissions
	ErrUnauthorized = errors.New("unauthorized")

	// ErrInternal indicates an internal server error
	ErrInternal = errors.New("internal error")

	// ErrTimeout indicates an operation timeout
	ErrTimeout = errors.New("operation timeout")

	// ErrUnavailable indicates a service is unavailable
	ErrUnavailable = errors.New("service unavailable")
)

// Onboarding-specific errors

var (
	// ErrInvalidStep indicates an unknown onboarding step was requested
	ErrInvalidStep = errors.New("invalid onboarding step")

	// ErrTransitionInFlight indicates a step transition was requested while
	// another one is still being applied
	ErrTransitionInFlight = errors.New("onboarding transition already in flight")

	// ErrPersistence indicates onboarding state could not be saved or loaded.
	// Non-fatal: callers log it and continue with in-memory state.
	ErrPersistence = errors.New("onboarding persistence failed")
)

// Account network errors

var (
	// ErrDuplicateCore indicates a connected core account already exists
	ErrDuplicateCore = errors.New("core account already connected")

	// ErrNoCoreAccount indicates a satellite was added before any core account
	ErrNoCoreAccount = errors.New("no core account set")

	// ErrDuplicateAccount indicates the account id already exists in the network
	ErrDuplicateAccount = errors.New("account already in network")
)

// Activation errors

var (
	// ErrMissingField indicates a required activation request field is absent
	ErrMissingField = errors.New("missing required field")

	// ErrInvalidTopology indicates the leader appears among its own followers
	ErrInvalidTopology = errors.New("invalid leader/follower topology")

	// ErrRunInFlight indicates an activation sequence is already running for
	// the same request
	ErrRunInFlight = errors.New("activation run already in flight")
)

// ManualModeConflictError blocks an activation because one or more of the
// accounts it touches is currently flagged as manually trading. The first
// id is the one surfaced to the user.
type ManualModeConflictError struct {
	ConflictingAccountIDs []string
}

// Error implements the error interface
func (e *ManualModeConflictError) Error() string {
	if len(e.ConflictingAccountIDs) == 0 {
		return "manual trading conflict"
	}
	return fmt.Sprintf("account %s is in manual trading mode (conflicts: %s)",
		e.ConflictingAccountIDs[0], strings.Join(e.ConflictingAccountIDs, ", "))
}

// First returns the account id surfaced in the user-facing message
func (e *ManualModeConflictError) First() string {
	if len(e.ConflictingAccountIDs) == 0 {
		return ""
	}
	return e.ConflictingAccountIDs[0]
}

// NewManualModeConflictError creates a conflict error preserving resolution order
func NewManualModeConflictError(accountIDs []string) *ManualModeConflictError {
	return &ManualModeConflictError{ConflictingAccountIDs: accountIDs}
}

// ActivationSubmissionError wraps a failure reported by the external
// activation endpoint. The sequencer surfaces it at whatever stage it
// occurred; retry is user-initiated.
type ActivationSubmissionError struct {
	Stage string
	Err   error
}

// Error implements the error interface
func (e *ActivationSubmissionError) Error() string {
	if e.Stage != "" {
		return fmt.Sprintf("activation submission failed at %s: %v", e.Stage, e.Err)
	}
	return fmt.Sprintf("activation submission failed: %v", e.Err)
}

// Unwrap returns the wrapped error
func (e *ActivationSubmissionError) Unwrap() error {
	return e.Err
}

// NewActivationSubmissionError wraps an external submission failure
func NewActivationSubmissionError(stage string, err error) *ActivationSubmissionError {
	return &ActivationSubmissionError{Stage: stage, Err: err}
}

// ValidationError represents a validation error with field-specific details
type ValidationError struct {
	Field   string
	Message string
	Value   interface{}
}

// Error implements the error interface
func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error: field '%s': %s (value: %v)", e.Field, e.Message, e.Value)
}

// Unwrap lets callers match the broad kind with errors.Is
func (e *ValidationError) Unwrap() error {
	return ErrMissingField
}

// NewValidationError creates a new validation error
func NewValidationError(field, message string, value interface{}) *ValidationError {
	return &ValidationError{
		Field:   field,
		Message: message,
		Value:   value,
	}
}

// Helper functions

// Is checks if err is or wraps target
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target type
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}

// Wrap wraps an error with context
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Wrapf wraps an error with formatted context
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}

func New(message string) error {
	return errors.New(message)
}

func Newf(format string, args ...interface{}) error {
	return fmt.Errorf(format, args...)
}
