// Package errors provides structured error handling for Quarry.
//
// Error codes follow the pattern ERR_XXX_DESCRIPTION where:
//   - 1XX: Configuration errors
//   - 2XX: Artifact and snapshot IO errors
//   - 4XX: Validation errors
//   - 5XX: Consistency and internal errors
package errors

// Category defines error categories for classification.
type Category string

const (
	// CategoryConfig indicates configuration-related errors.
	CategoryConfig Category = "CONFIG"
	// CategoryIO indicates artifact and snapshot IO errors.
	CategoryIO Category = "IO"
	// CategoryValidation indicates input validation errors.
	CategoryValidation Category = "VALIDATION"
	// CategoryConsistency indicates mismatched or corrupted artifacts.
	CategoryConsistency Category = "CONSISTENCY"
	// CategoryInternal indicates unexpected internal errors.
	CategoryInternal Category = "INTERNAL"
)

// Severity defines error severity levels.
type Severity string

const (
	// SeverityFatal indicates unrecoverable error, must abort.
	SeverityFatal Severity = "FATAL"
	// SeverityError indicates operation failed but can continue.
	SeverityError Severity = "ERROR"
)

// Error codes organized by category.
const (
	// Config errors (100-199)
	ErrCodeConfigInvalid  = "ERR_101_CONFIG_INVALID"
	ErrCodeConfigNotFound = "ERR_102_CONFIG_NOT_FOUND"

	// Artifact/snapshot IO errors (200-299)
	ErrCodeArtifactMissing  = "ERR_201_ARTIFACT_MISSING"
	ErrCodeArtifactCorrupt  = "ERR_202_ARTIFACT_CORRUPT"
	ErrCodeSnapshotStale    = "ERR_203_SNAPSHOT_STALE"
	ErrCodeSnapshotNotFound = "ERR_204_SNAPSHOT_NOT_FOUND"

	// Validation errors (400-499)
	ErrCodeInvalidInput   = "ERR_401_INVALID_INPUT"
	ErrCodeInvalidQuery   = "ERR_402_INVALID_QUERY"
	ErrCodeUnknownBackend = "ERR_403_UNKNOWN_BACKEND"

	// Consistency and internal errors (500-599)
	ErrCodeInternal       = "ERR_501_INTERNAL"
	ErrCodeConsistency    = "ERR_502_CONSISTENCY"
	ErrCodeProviderShape  = "ERR_503_PROVIDER_SHAPE"
	ErrCodeSearchFailed   = "ERR_504_SEARCH_FAILED"
	ErrCodeBuildFailed    = "ERR_505_BUILD_FAILED"
)

// categoryFromCode extracts category from error code.
func categoryFromCode(code string) Category {
	if len(code) < 7 {
		return CategoryInternal
	}

	// Extract numeric portion (e.g., "101" from "ERR_101_CONFIG_INVALID")
	switch code[4] {
	case '1':
		return CategoryConfig
	case '2':
		return CategoryIO
	case '4':
		return CategoryValidation
	default:
		if code == ErrCodeConsistency || code == ErrCodeProviderShape {
			return CategoryConsistency
		}
		return CategoryInternal
	}
}

// severityFromCode determines severity based on error code.
// Consistency and provider-shape failures indicate corrupted or
// mismatched artifacts and must abort the current operation.
func severityFromCode(code string) Severity {
	switch code {
	case ErrCodeConsistency, ErrCodeProviderShape, ErrCodeArtifactMissing, ErrCodeArtifactCorrupt:
		return SeverityFatal
	}
	return SeverityError
}
