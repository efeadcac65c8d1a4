package cmd

import (
	"strconv"

	fuserr "github.com/Aman-CERP/fusionidx/internal/errors"
	"github.com/Aman-CERP/fusionidx/internal/value"
)

// parseValue reads a command-line value as a JSON literal, falling back to
// the raw string.
func parseValue(arg string) value.Value {
	v, err := value.ParseJSON(arg)
	if err != nil {
		return arg
	}
	return v
}

func parseValues(args []string) []value.Value {
	out := make([]value.Value, len(args))
	for i, a := range args {
		out[i] = parseValue(a)
	}
	return out
}

// parseOptionalValue parses a flag value; empty means unset.
func parseOptionalValue(arg string) value.Value {
	if arg == "" {
		return nil
	}
	return parseValue(arg)
}

func parseEntityID(arg string) (int64, error) {
	id, err := strconv.ParseInt(arg, 10, 64)
	if err != nil {
		return 0, fuserr.ValidationError("entity id must be an integer", err).
			WithDetail("entity_id", arg)
	}
	return id, nil
}

// formatValues renders values for display.
func formatValues(values []value.Value) []string {
	out := make([]string, len(values))
	for i, v := range values {
		s, err := value.FormatJSON(v)
		if err != nil {
			s = "?"
		}
		out[i] = s
	}
	return out
}
