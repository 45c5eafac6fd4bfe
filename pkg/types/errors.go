package types

import "fmt"

// ErrorCategory classifies failures so callers can pick a propagation policy:
// storage errors surface to the user, sync errors only flip the pending flag.
type ErrorCategory string

const (
	ErrorStorageUnavailable ErrorCategory = "storage_unavailable"
	ErrorParse              ErrorCategory = "parse"
	ErrorNetworkUnavailable ErrorCategory = "network_unavailable"
	ErrorRemoteRejected     ErrorCategory = "remote_rejected"
	ErrorValidation         ErrorCategory = "validation"
	ErrorNotFound           ErrorCategory = "not_found"
)

// AppError is the structured error used across the engine.
type AppError struct {
	Category ErrorCategory `json:"category"`
	Code     string        `json:"code"`
	Message  string        `json:"message"`
	Cause    error         `json:"-"`
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause error.
func (e *AppError) Unwrap() error {
	return e.Cause
}

// Is lets errors.Is match on category sentinels produced by the constructors.
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return t.Category == e.Category && (t.Code == "" || t.Code == e.Code)
}

// CategoryOf extracts the category of err, or "" for foreign errors.
func CategoryOf(err error) ErrorCategory {
	if e, ok := err.(*AppError); ok {
		return e.Category
	}
	return ""
}

// NewStorageError wraps a local-store failure. These are fatal to the
// operation and must reach the user; local writes are never silently dropped.
func NewStorageError(code, message string, cause error) *AppError {
	return &AppError{Category: ErrorStorageUnavailable, Code: code, Message: message, Cause: cause}
}

// NewParseError marks a malformed backup snapshot, rejected before any
// destructive action.
func NewParseError(code, message string, cause error) *AppError {
	return &AppError{Category: ErrorParse, Code: code, Message: message, Cause: cause}
}

// NewNetworkError marks an unreachable remote. Recoverable: callers set the
// pending-sync flag instead of propagating.
func NewNetworkError(code, message string) *AppError {
	return &AppError{Category: ErrorNetworkUnavailable, Code: code, Message: message}
}

// NewRemoteError wraps a write the remote store refused. Local state stays
// the source of truth and is never rolled back because of it.
func NewRemoteError(code, message string, cause error) *AppError {
	return &AppError{Category: ErrorRemoteRejected, Code: code, Message: message, Cause: cause}
}

// NewValidationError marks bad input on the operation surface.
func NewValidationError(code, message string) *AppError {
	return &AppError{Category: ErrorValidation, Code: code, Message: message}
}

// NewNotFoundError marks a missing entity.
func NewNotFoundError(code, message string) *AppError {
	return &AppError{Category: ErrorNotFound, Code: code, Message: message}
}
