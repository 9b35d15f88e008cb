package apperror

import (
	"errors"
	"net/http"
)

// Kind classifies an error so callers can react without string matching.
type Kind string

const (
	KindValidation    Kind = "validation"
	KindConflict      Kind = "conflict"
	KindRuleViolation Kind = "rule_violation"
	KindState         Kind = "state"
	KindNotFound      Kind = "not_found"
	KindAvailability  Kind = "availability"
	KindWaitlist      Kind = "waitlist"
	KindInternal      Kind = "internal"
)

// AppError is the error type returned by all engine operations. It carries an
// HTTP status code, a user-facing message and optional structured details
// (e.g. the colliding bookings on a scheduling conflict, or the rule field
// that was violated).
type AppError struct {
	Kind      Kind
	Code      int    // HTTP status code (e.g., 400, 409)
	Message   string // User-facing error message
	Err       error  // The underlying error, if any (not exposed to user)
	Details   any    // Structured payload, serialized to the client verbatim
	Retryable bool   // Transient condition, the caller may retry the request
}

func (e *AppError) Error() string {
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// Is lets errors.Is match AppErrors by kind and message so that sentinel
// errors declared with New can be compared against wrapped instances.
func (e *AppError) Is(target error) bool {
	var t *AppError
	if !errors.As(target, &t) {
		return false
	}
	return e.Kind == t.Kind && e.Message == t.Message
}

// New creates a new AppError with a kind, status code and message.
func New(kind Kind, code int, message string) *AppError {
	return &AppError{
		Kind:    kind,
		Code:    code,
		Message: message,
	}
}

// Wrap creates a new AppError wrapping an existing error.
func Wrap(err error, kind Kind, code int, message string) *AppError {
	return &AppError{
		Kind:    kind,
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// WithDetails returns a copy of the error carrying a structured payload.
func (e *AppError) WithDetails(details any) *AppError {
	clone := *e
	clone.Details = details
	return &clone
}

// Validation is a convenience constructor for malformed-input errors.
func Validation(message string) *AppError {
	return New(KindValidation, http.StatusBadRequest, message)
}

// Conflict is a convenience constructor for resource-overlap errors.
func Conflict(message string) *AppError {
	return New(KindConflict, http.StatusConflict, message)
}

// RetryableConflict marks a transient contention error (lock timeout,
// serialization failure) that the caller should retry.
func RetryableConflict(message string) *AppError {
	e := New(KindConflict, http.StatusConflict, message)
	e.Retryable = true
	return e
}

// RuleViolation is a convenience constructor for booking-policy breaches.
func RuleViolation(message string) *AppError {
	return New(KindRuleViolation, http.StatusUnprocessableEntity, message)
}

// State is a convenience constructor for illegal status transitions.
func State(message string) *AppError {
	return New(KindState, http.StatusConflict, message)
}

// NotFound is a convenience constructor for missing entities.
func NotFound(message string) *AppError {
	return New(KindNotFound, http.StatusNotFound, message)
}

// Availability is a convenience constructor for resource-not-open errors.
func Availability(message string) *AppError {
	return New(KindAvailability, http.StatusUnprocessableEntity, message)
}

// Waitlist is a convenience constructor for waitlist workflow errors.
func Waitlist(message string) *AppError {
	return New(KindWaitlist, http.StatusUnprocessableEntity, message)
}

// Internal wraps an unexpected error without leaking its message to clients.
func Internal(err error) *AppError {
	return Wrap(err, KindInternal, http.StatusInternalServerError, "internal error")
}

// KindOf extracts the kind from any error, defaulting to KindInternal.
func KindOf(err error) Kind {
	var e *AppError
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// IsRetryable reports whether the error represents a transient condition.
func IsRetryable(err error) bool {
	var e *AppError
	return errors.As(err, &e) && e.Retryable
}
