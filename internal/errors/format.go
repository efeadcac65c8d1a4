package errors

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// FormatForUser returns a user-friendly error message.
// If debug is true, includes details and the underlying cause.
func FormatForUser(err error, debug bool) string {
	if err == nil {
		return ""
	}

	fe, ok := As(err)
	if !ok {
		// Standard error - just return message
		return err.Error()
	}

	var sb strings.Builder

	sb.WriteString("Error: ")
	sb.WriteString(fe.Message)
	sb.WriteString("\n")

	if debug {
		for _, k := range sortedKeys(fe.Details) {
			sb.WriteString(fmt.Sprintf("  %s: %s\n", k, fe.Details[k]))
		}
		if fe.Cause != nil {
			sb.WriteString(fmt.Sprintf("  cause: %v\n", fe.Cause))
		}
	}

	if fe.Suggestion != "" {
		sb.WriteString("\nSuggestion: ")
		sb.WriteString(fe.Suggestion)
		sb.WriteString("\n")
	}

	sb.WriteString(fmt.Sprintf("\n[%s]", fe.Code))

	return sb.String()
}

// FormatForCLI formats an error for CLI output.
// Uses a concise format suitable for terminal display.
func FormatForCLI(err error) string {
	if err == nil {
		return ""
	}

	fe, ok := As(err)
	if !ok {
		fe = Wrap(ErrCodeInternal, err)
	}

	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("Error: %s\n", fe.Message))

	// Slot mismatches name the missing and extraneous slots
	for _, k := range sortedKeys(fe.Details) {
		sb.WriteString(fmt.Sprintf("  %s: %s\n", k, fe.Details[k]))
	}

	if fe.Suggestion != "" {
		sb.WriteString(fmt.Sprintf("  Hint: %s\n", fe.Suggestion))
	}

	sb.WriteString(fmt.Sprintf("  Code: %s\n", fe.Code))

	return sb.String()
}

// jsonError is the JSON representation of an error.
type jsonError struct {
	Code       string            `json:"code"`
	Message    string            `json:"message"`
	Category   string            `json:"category"`
	Severity   string            `json:"severity"`
	Details    map[string]string `json:"details,omitempty"`
	Suggestion string            `json:"suggestion,omitempty"`
	Cause      string            `json:"cause,omitempty"`
	Retryable  bool              `json:"retryable"`
}

// FormatJSON returns a JSON representation of the error.
// Suitable for machine consumption and structured logging.
func FormatJSON(err error) ([]byte, error) {
	if err == nil {
		return json.Marshal(nil)
	}

	fe, ok := As(err)
	if !ok {
		fe = Wrap(ErrCodeInternal, err)
	}

	je := jsonError{
		Code:       fe.Code,
		Message:    fe.Message,
		Category:   string(fe.Category),
		Severity:   string(fe.Severity),
		Details:    fe.Details,
		Suggestion: fe.Suggestion,
		Retryable:  fe.Retryable,
	}

	if fe.Cause != nil {
		je.Cause = fe.Cause.Error()
	}

	return json.Marshal(je)
}

// LogAttrs formats an error as slog-compatible key-value pairs.
func LogAttrs(err error) []any {
	if err == nil {
		return nil
	}

	fe, ok := As(err)
	if !ok {
		return []any{"error", err.Error()}
	}

	attrs := []any{
		"error_code", fe.Code,
		"message", fe.Message,
		"category", string(fe.Category),
		"severity", string(fe.Severity),
	}
	if fe.Cause != nil {
		attrs = append(attrs, "cause", fe.Cause.Error())
	}
	for _, k := range sortedKeys(fe.Details) {
		attrs = append(attrs, "detail_"+k, fe.Details[k])
	}
	return attrs
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
