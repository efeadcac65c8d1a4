package value

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// ParseJSON parses a JSON literal into a Value.
//
// Scalars map to string, int64/float64, bool and nil. Objects are typed by
// their keys:
//
//	{"crs": "cartesian", "coords": [1, 2]}   Point
//	{"datetime": "2024-01-02T03:04:05Z"}      time.Time (RFC 3339)
//	{"duration": "1h30m"}                     time.Duration
//
// Arrays become []any.
func ParseJSON(s string) (Value, error) {
	dec := json.NewDecoder(strings.NewReader(s))
	dec.UseNumber()

	var raw any
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("invalid JSON value %q: %w", s, err)
	}
	if dec.More() {
		return nil, fmt.Errorf("invalid JSON value %q: trailing data", s)
	}
	return fromJSON(raw)
}

func fromJSON(raw any) (Value, error) {
	switch v := raw.(type) {
	case nil, string, bool:
		return v, nil
	case json.Number:
		if i, err := v.Int64(); err == nil {
			return i, nil
		}
		f, err := v.Float64()
		if err != nil {
			return nil, fmt.Errorf("invalid number %s: %w", v, err)
		}
		return f, nil
	case []any:
		out := make([]any, len(v))
		for i, e := range v {
			parsed, err := fromJSON(e)
			if err != nil {
				return nil, err
			}
			out[i] = parsed
		}
		return out, nil
	case map[string]any:
		return objectFromJSON(v)
	default:
		return nil, fmt.Errorf("unsupported JSON value %T", raw)
	}
}

func objectFromJSON(obj map[string]any) (Value, error) {
	if s, ok := obj["datetime"].(string); ok && len(obj) == 1 {
		t, err := time.Parse(time.RFC3339Nano, s)
		if err != nil {
			return nil, fmt.Errorf("invalid datetime %q: %w", s, err)
		}
		return t, nil
	}
	if s, ok := obj["duration"].(string); ok && len(obj) == 1 {
		d, err := time.ParseDuration(s)
		if err != nil {
			return nil, fmt.Errorf("invalid duration %q: %w", s, err)
		}
		return d, nil
	}
	if crs, ok := obj["crs"].(string); ok && len(obj) == 2 {
		raw, ok := obj["coords"].([]any)
		if !ok {
			return nil, fmt.Errorf("point %q requires a coords array", crs)
		}
		coords := make([]float64, len(raw))
		for i, c := range raw {
			n, ok := c.(json.Number)
			if !ok {
				return nil, fmt.Errorf("point coordinate %d is not a number", i)
			}
			f, err := n.Float64()
			if err != nil {
				return nil, fmt.Errorf("point coordinate %d: %w", i, err)
			}
			coords[i] = f
		}
		return Point{CRS: crs, Coords: coords}, nil
	}
	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	return nil, fmt.Errorf("unsupported object with keys %v (want datetime, duration or crs+coords)", keys)
}

// FormatJSON renders a value in the syntax accepted by ParseJSON.
func FormatJSON(v Value) (string, error) {
	var buf bytes.Buffer
	if err := writeJSON(&buf, v); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func writeJSON(buf *bytes.Buffer, v Value) error {
	var payload any
	switch v := v.(type) {
	case time.Time:
		payload = map[string]string{"datetime": v.Format(time.RFC3339Nano)}
	case time.Duration:
		payload = map[string]string{"duration": v.String()}
	case []any:
		buf.WriteByte('[')
		for i, e := range v {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := writeJSON(buf, e); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
		return nil
	default:
		payload = v
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("format value: %w", err)
	}
	buf.Write(data)
	return nil
}
