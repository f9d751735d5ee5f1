package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Error represents a typed domain error with HTTP awareness.
type Error struct {
	Code    string      `json:"code"`
	Message string      `json:"message"`
	Status  int         `json:"status"`
	Details interface{} `json:"details,omitempty"`
	Err     error       `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the wrapped error.
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Is reports whether target carries the same code, so clones and wraps of a
// predefined error still match it with errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok || e == nil || t == nil {
		return false
	}
	return e.Code == t.Code
}

// New creates a new Error instance.
func New(code string, status int, message string) *Error {
	return &Error{Code: code, Status: status, Message: message}
}

// Wrap attaches context to an existing error.
func Wrap(err error, code string, status int, message string) *Error {
	return &Error{Code: code, Status: status, Message: message, Err: err}
}

// Predefined errors for common scenarios.
var (
	ErrInvalidCredentials = New("INVALID_CREDENTIALS", http.StatusUnauthorized, "invalid email or password")
	ErrInactiveAccount    = New("ACCOUNT_INACTIVE", http.StatusForbidden, "account is inactive")
	ErrNotFound           = New("NOT_FOUND", http.StatusNotFound, "resource not found")
	ErrForbidden          = New("FORBIDDEN", http.StatusForbidden, "forbidden")
	ErrUnauthorized       = New("UNAUTHORIZED", http.StatusUnauthorized, "unauthorized")
	ErrConflict           = New("CONFLICT", http.StatusConflict, "conflict")
	ErrValidation         = New("VALIDATION_ERROR", http.StatusBadRequest, "validation failed")
	ErrInternal           = New("INTERNAL_ERROR", http.StatusInternalServerError, "internal server error")
	ErrCacheMiss          = New("CACHE_MISS", http.StatusNotFound, "cache miss")
)

// Lifecycle rule violations. Each names the rule that rejected a transition.
var (
	ErrFeeBlock            = New("FEE_BLOCKED", http.StatusConflict, "student has outstanding fee dues")
	ErrDuplicateEnrollment = New("DUPLICATE_ENROLLMENT", http.StatusConflict, "student already has an enrollment for the academic year")
	ErrDuplicateRollNumber = New("DUPLICATE_ROLL_NUMBER", http.StatusConflict, "roll number already taken in class section")
	ErrSameYear            = New("SAME_YEAR_PROMOTION", http.StatusUnprocessableEntity, "target academic year equals the current academic year")
	ErrInvalidState        = New("INVALID_STATE", http.StatusConflict, "transition not allowed from current status")
	ErrUnknownClass        = New("UNKNOWN_CLASS", http.StatusUnprocessableEntity, "target class is not in the class catalog")
	ErrInfrastructure      = New("INFRASTRUCTURE_UNAVAILABLE", http.StatusServiceUnavailable, "backing store unavailable")
)

// FromError normalises any error into an *Error.
func FromError(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return Wrap(err, ErrInternal.Code, ErrInternal.Status, ErrInternal.Message)
}

// Clone returns a copy of the error allowing for message overrides.
func Clone(err *Error, message string) *Error {
	if err == nil {
		return nil
	}
	clone := *err
	if message != "" {
		clone.Message = message
	}
	return &clone
}

// WithDetails returns a copy of err carrying details for the caller.
func WithDetails(err *Error, message string, details interface{}) *Error {
	clone := Clone(err, message)
	if clone != nil {
		clone.Details = details
	}
	return clone
}

// Infrastructure wraps a store or collaborator failure as retryable.
func Infrastructure(err error, message string) *Error {
	return Wrap(err, ErrInfrastructure.Code, ErrInfrastructure.Status, message)
}

// Retryable reports whether the caller may retry the failed operation.
// Only infrastructure failures qualify; rule violations are terminal.
func Retryable(err error) bool {
	return errors.Is(err, ErrInfrastructure)
}

// Code extracts the error code, falling back to the internal error code.
func Code(err error) string {
	if e := FromError(err); e != nil {
		return e.Code
	}
	return ""
}
