package errors

import (
	stderrors "errors"
	"fmt"
)

// FusionError is the error returned across fusionidx package boundaries:
// routing, backend writes and queries, the descriptor store and the index
// provider. The code decides how callers react; a slot mismatch keeps an
// index offline while a held lock can simply be retried.
type FusionError struct {
	// Code identifies the failure, e.g. ERR_104_SLOT_MISMATCH.
	Code string

	Message string

	// Category and Severity are derived from Code by New.
	Category Category
	Severity Severity

	// Details name the index, slot, path or entity involved.
	Details map[string]string

	Cause error

	// Retryable is set for transient conditions such as a locked index.
	Retryable bool

	// Suggestion is shown to the operator by the CLI.
	Suggestion string
}

// Error implements the error interface.
func (e *FusionError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for error chain support.
func (e *FusionError) Unwrap() error {
	return e.Cause
}

// Is matches by code, so errors.Is(err, New(ErrCodeIndexLocked, "", nil))
// finds any locked-index error in a chain.
func (e *FusionError) Is(target error) bool {
	if t, ok := target.(*FusionError); ok {
		return e.Code == t.Code
	}
	return false
}

// WithDetail records a detail such as the index or slot name.
func (e *FusionError) WithDetail(key, value string) *FusionError {
	if e.Details == nil {
		e.Details = make(map[string]string)
	}
	e.Details[key] = value
	return e
}

// WithSuggestion sets the hint the CLI prints under the error.
func (e *FusionError) WithSuggestion(suggestion string) *FusionError {
	e.Suggestion = suggestion
	return e
}

// New creates a FusionError. Category, severity and the retry flag follow
// from code.
func New(code string, message string, cause error) *FusionError {
	return &FusionError{
		Code:      code,
		Message:   message,
		Category:  categoryFromCode(code),
		Severity:  severityFromCode(code),
		Cause:     cause,
		Retryable: isRetryableCode(code),
	}
}

// Newf is New with a formatted message and no cause.
func Newf(code string, format string, args ...any) *FusionError {
	return New(code, fmt.Sprintf(format, args...), nil)
}

// Wrap tags err with code, keeping its message. Wrap(code, nil) is nil.
func Wrap(code string, err error) *FusionError {
	if err == nil {
		return nil
	}
	return New(code, err.Error(), err)
}

// ConfigError reports an invalid configuration or descriptor.
func ConfigError(message string, cause error) *FusionError {
	return New(ErrCodeConfigInvalid, message, cause)
}

// IOError reports a failed filesystem operation on an index or data
// directory.
func IOError(message string, cause error) *FusionError {
	return New(ErrCodeIOFailed, message, cause)
}

// ValidationError reports a bad update, query or index definition.
func ValidationError(message string, cause error) *FusionError {
	return New(ErrCodeInvalidInput, message, cause)
}

// InternalError reports a programming error inside fusionidx.
func InternalError(message string, cause error) *FusionError {
	return New(ErrCodeInternal, message, cause)
}

// As finds the first FusionError in err's chain.
func As(err error) (*FusionError, bool) {
	var fe *FusionError
	if err == nil || !stderrors.As(err, &fe) {
		return nil, false
	}
	return fe, true
}

// IsRetryable reports whether err's chain holds a transient FusionError,
// such as an index locked by another process.
func IsRetryable(err error) bool {
	if fe, ok := As(err); ok {
		return fe.Retryable
	}
	return false
}

// IsFatal reports whether err means the index cannot be served, as with a
// slot mismatch or a corrupt backend.
func IsFatal(err error) bool {
	if fe, ok := As(err); ok {
		return fe.Severity == SeverityFatal
	}
	return false
}

// GetCode returns the code of the first FusionError in err's chain, or "".
func GetCode(err error) string {
	if fe, ok := As(err); ok {
		return fe.Code
	}
	return ""
}
