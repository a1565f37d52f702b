package errors

import (
	"fmt"
)

// QuarryError is the structured error type for Quarry.
// It provides rich context for error handling, logging, and user presentation.
type QuarryError struct {
	// Code is the unique error code (e.g., "ERR_201_ARTIFACT_MISSING").
	Code string

	// Message is the human-readable error message.
	Message string

	// Category is the error category (Config, IO, Validation, ...).
	Category Category

	// Severity is the error severity level.
	Severity Severity

	// Details contains additional context as key-value pairs
	// (snapshot id, backend id, field name).
	Details map[string]string

	// Cause is the underlying error that caused this error.
	Cause error
}

// Error implements the error interface.
func (e *QuarryError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for error chain support.
func (e *QuarryError) Unwrap() error {
	return e.Cause
}

// Is checks if this error matches the target error by code.
// This enables errors.Is() to work with QuarryError.
func (e *QuarryError) Is(target error) bool {
	if t, ok := target.(*QuarryError); ok {
		return e.Code == t.Code
	}
	return false
}

// WithDetail adds a key-value detail to the error.
// Returns the error for method chaining.
func (e *QuarryError) WithDetail(key, value string) *QuarryError {
	if e.Details == nil {
		e.Details = make(map[string]string)
	}
	e.Details[key] = value
	return e
}

// New creates a new QuarryError with the given code and message.
// Category and severity are derived from the code.
func New(code string, message string, cause error) *QuarryError {
	return &QuarryError{
		Code:     code,
		Message:  message,
		Category: categoryFromCode(code),
		Severity: severityFromCode(code),
		Cause:    cause,
	}
}

// Newf creates a new QuarryError with a formatted message.
func Newf(code string, format string, args ...any) *QuarryError {
	return New(code, fmt.Sprintf(format, args...), nil)
}

// Wrap creates a QuarryError from an existing error.
// The error's message becomes the QuarryError message.
func Wrap(code string, err error) *QuarryError {
	if err == nil {
		return nil
	}
	return New(code, err.Error(), err)
}

// ConfigError creates a configuration-related error.
// Raised eagerly at configuration-validation time, never retried.
func ConfigError(format string, args ...any) *QuarryError {
	return Newf(ErrCodeConfigInvalid, format, args...)
}

// ArtifactMissing creates a missing-artifact error for a snapshot.
func ArtifactMissing(snapshotID, path string, cause error) *QuarryError {
	return New(ErrCodeArtifactMissing,
		fmt.Sprintf("snapshot %s: artifact %s is missing", snapshotID, path), cause).
		WithDetail("snapshot_id", snapshotID).
		WithDetail("artifact", path)
}

// ConsistencyError creates a fatal consistency error
// (mismatched artifact pair, unexpected provider output).
func ConsistencyError(format string, args ...any) *QuarryError {
	return Newf(ErrCodeConsistency, format, args...)
}

// ProviderShapeError indicates the embedding provider returned an
// unexpected vector count or dimension.
func ProviderShapeError(format string, args ...any) *QuarryError {
	return Newf(ErrCodeProviderShape, format, args...)
}

// ValidationError creates a validation-related error.
func ValidationError(format string, args ...any) *QuarryError {
	return Newf(ErrCodeInvalidInput, format, args...)
}

// InternalError creates an internal error.
func InternalError(message string, cause error) *QuarryError {
	return New(ErrCodeInternal, message, cause)
}

// IsFatal checks if an error has fatal severity.
// Fatal errors should abort the current operation.
func IsFatal(err error) bool {
	if err == nil {
		return false
	}
	if qe, ok := err.(*QuarryError); ok {
		return qe.Severity == SeverityFatal
	}
	return false
}

// GetCode extracts the error code from a QuarryError.
// Returns empty string if not a QuarryError.
func GetCode(err error) string {
	if qe, ok := err.(*QuarryError); ok {
		return qe.Code
	}
	return ""
}
