// Package errors provides structured error handling for fusionidx.
//
// Error codes follow the pattern ERR_XXX_DESCRIPTION where:
//   - 1XX: Configuration errors
//   - 2XX: IO errors (directories, locks, corrupt backends)
//   - 4XX: Validation errors
//   - 5XX: Internal errors
package errors

// Category defines error categories for classification.
type Category string

const (
	// CategoryConfig indicates configuration-related errors.
	CategoryConfig Category = "CONFIG"
	// CategoryIO indicates file and disk I/O errors.
	CategoryIO Category = "IO"
	// CategoryValidation indicates input validation errors.
	CategoryValidation Category = "VALIDATION"
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
	// SeverityWarning indicates degraded operation, continuing.
	SeverityWarning Severity = "WARNING"
	// SeverityInfo indicates informational only.
	SeverityInfo Severity = "INFO"
)

// Error codes organized by category.
const (
	// Config errors (100-199)
	ErrCodeConfigNotFound = "ERR_101_CONFIG_NOT_FOUND"
	ErrCodeConfigInvalid  = "ERR_102_CONFIG_INVALID"
	ErrCodeSlotMismatch   = "ERR_104_SLOT_MISMATCH"
	ErrCodeUnknownVersion = "ERR_105_UNKNOWN_VERSION"
	ErrCodeUnknownBackend = "ERR_106_UNKNOWN_BACKEND"

	// IO errors (200-299)
	ErrCodeIOFailed     = "ERR_202_IO_FAILED"
	ErrCodeCorruptIndex = "ERR_205_CORRUPT_INDEX"
	ErrCodeIndexLocked  = "ERR_207_INDEX_LOCKED"

	// Validation errors (400-499)
	ErrCodeInvalidInput  = "ERR_401_INVALID_INPUT"
	ErrCodeInvalidQuery  = "ERR_403_INVALID_QUERY"
	ErrCodeInvalidName   = "ERR_406_INVALID_NAME"
	ErrCodeIndexExists   = "ERR_407_INDEX_EXISTS"
	ErrCodeIndexNotFound = "ERR_408_INDEX_NOT_FOUND"

	// Internal errors (500-599)
	ErrCodeInternal    = "ERR_501_INTERNAL"
	ErrCodeQueryFailed = "ERR_503_QUERY_FAILED"
	ErrCodeIndexFailed = "ERR_505_INDEX_FAILED"
	ErrCodeInvariant   = "ERR_506_INVARIANT"
)

// categoryFromCode extracts category from error code.
func categoryFromCode(code string) Category {
	if len(code) < 7 {
		return CategoryInternal
	}

	// Extract numeric portion (e.g., "104" from "ERR_104_SLOT_MISMATCH")
	numStr := code[4:7]

	switch numStr[0] {
	case '1':
		return CategoryConfig
	case '2':
		return CategoryIO
	case '4':
		return CategoryValidation
	default:
		return CategoryInternal
	}
}

// severityFromCode determines severity based on error code.
func severityFromCode(code string) Severity {
	// A slot mismatch or unknown version means the deployment wired the wrong
	// backends for the persisted strategy; the index must not come online.
	switch code {
	case ErrCodeCorruptIndex, ErrCodeSlotMismatch, ErrCodeUnknownVersion,
		ErrCodeInvariant:
		return SeverityFatal
	}

	if isRetryableCode(code) {
		return SeverityWarning
	}

	return SeverityError
}

// isRetryableCode checks if an error code represents a retryable error.
func isRetryableCode(code string) bool {
	switch code {
	case ErrCodeIndexLocked:
		return true
	default:
		return false
	}
}
