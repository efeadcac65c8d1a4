package value

import (
	"fmt"
	"math"
	"reflect"
	"strings"
	"time"
)

// Value is a single stored property value. Supported representations are
// string, the Go integer and float kinds, bool, time.Time, time.Duration,
// Point, and slices of those.
type Value = any

// Point is a coordinate in a named coordinate reference system. Fusion
// indexes treat points as opaque, comparable values.
type Point struct {
	CRS    string    `json:"crs"`
	Coords []float64 `json:"coords"`
}

// String renders the point as crs(x, y, ...).
func (p Point) String() string {
	parts := make([]string, len(p.Coords))
	for i, c := range p.Coords {
		parts[i] = fmt.Sprintf("%g", c)
	}
	return fmt.Sprintf("%s(%s)", p.CRS, strings.Join(parts, ", "))
}

// Classifier maps a value to its category. Implementations must be total and
// return CategoryUnknown exactly for values that must not be indexed.
type Classifier interface {
	Category(v Value) Category
}

// ClassifierFunc adapts a function to the Classifier interface.
type ClassifierFunc func(v Value) Category

// Category implements Classifier.
func (f ClassifierFunc) Category(v Value) Category {
	return f(v)
}

// DefaultClassifier classifies the value representations listed on Value.
// Unsupported Go types and nil are CategoryUnknown. An array is only
// classifiable when every element is.
var DefaultClassifier Classifier = ClassifierFunc(CategoryOf)

// CategoryOf is the function behind DefaultClassifier.
func CategoryOf(v Value) Category {
	switch v := v.(type) {
	case nil:
		return CategoryUnknown
	case string:
		return CategoryText
	case int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64,
		float32, float64:
		return CategoryNumber
	case bool:
		return CategoryBoolean
	case Point:
		if v.CRS == "" || len(v.Coords) == 0 {
			return CategoryUnknown
		}
		return CategoryGeometry
	case time.Time, time.Duration:
		return CategoryTemporal
	}

	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return CategoryUnknown
	}
	for i := 0; i < rv.Len(); i++ {
		elem := CategoryOf(rv.Index(i).Interface())
		if elem == CategoryUnknown || elem == CategoryArray {
			return CategoryUnknown
		}
	}
	return CategoryArray
}

// durationKey and pointKey give durations and points a msgpack shape that
// cannot collide with numbers or strings.
type durationKey struct {
	Nanos int64 `msgpack:"d"`
}

type pointKey struct {
	CRS    string    `msgpack:"crs"`
	Coords []float64 `msgpack:"c"`
}

// Normalize returns the canonical form of a classifiable value, so that
// logically equal values (1, int64(1), 1.0) compare and encode equal:
//   - integral numbers become int64, other numbers float64 (NaN canonical)
//   - times are converted to UTC
//   - slices become []any of normalized elements
//
// Normalize returns an error for values DefaultClassifier labels unknown.
func Normalize(v Value) (any, error) {
	switch v := v.(type) {
	case string, bool:
		return v, nil
	case int:
		return int64(v), nil
	case int8:
		return int64(v), nil
	case int16:
		return int64(v), nil
	case int32:
		return int64(v), nil
	case int64:
		return v, nil
	case uint:
		return normalizeUint(uint64(v)), nil
	case uint8:
		return int64(v), nil
	case uint16:
		return int64(v), nil
	case uint32:
		return int64(v), nil
	case uint64:
		return normalizeUint(v), nil
	case float32:
		return normalizeFloat(float64(v)), nil
	case float64:
		return normalizeFloat(v), nil
	case time.Time:
		return v.UTC(), nil
	case time.Duration:
		return durationKey{Nanos: int64(v)}, nil
	case Point:
		if CategoryOf(v) == CategoryUnknown {
			return nil, fmt.Errorf("cannot normalize point without crs or coordinates")
		}
		coords := make([]float64, len(v.Coords))
		copy(coords, v.Coords)
		return pointKey{CRS: v.CRS, Coords: coords}, nil
	}

	if CategoryOf(v) != CategoryArray {
		return nil, fmt.Errorf("cannot normalize value of type %T", v)
	}
	rv := reflect.ValueOf(v)
	out := make([]any, rv.Len())
	for i := range out {
		n, err := Normalize(rv.Index(i).Interface())
		if err != nil {
			return nil, fmt.Errorf("element %d: %w", i, err)
		}
		out[i] = n
	}
	return out, nil
}

// AsFloat returns the numeric value of a number as float64.
func AsFloat(v Value) (float64, bool) {
	switch v := v.(type) {
	case int:
		return float64(v), true
	case int8:
		return float64(v), true
	case int16:
		return float64(v), true
	case int32:
		return float64(v), true
	case int64:
		return float64(v), true
	case uint:
		return float64(v), true
	case uint8:
		return float64(v), true
	case uint16:
		return float64(v), true
	case uint32:
		return float64(v), true
	case uint64:
		return float64(v), true
	case float32:
		return float64(v), true
	case float64:
		return v, true
	default:
		return 0, false
	}
}

func normalizeUint(u uint64) any {
	if u > math.MaxInt64 {
		return float64(u)
	}
	return int64(u)
}

func normalizeFloat(f float64) any {
	if math.IsNaN(f) {
		return math.NaN()
	}
	if f == math.Trunc(f) && f >= math.MinInt64 && f < math.MaxInt64 {
		return int64(f)
	}
	return f
}
