// Package value models the property values stored in fusion indexes and
// classifies them into a closed set of categories.
//
// Slot selectors route on categories only; they never inspect a value's
// representation. Adding a category here requires auditing every selector in
// package fusion (its tests enumerate Categories()).
package value

import "fmt"

// Category is the semantic category of a single stored value.
type Category int

const (
	// CategoryUnknown marks values that cannot or should not be indexed,
	// such as a missing property (nil).
	CategoryUnknown Category = iota
	CategoryText
	CategoryNumber
	CategoryBoolean
	CategoryGeometry
	CategoryTemporal
	CategoryArray
)

var categoryNames = [...]string{
	CategoryUnknown:  "unknown",
	CategoryText:     "text",
	CategoryNumber:   "number",
	CategoryBoolean:  "boolean",
	CategoryGeometry: "geometry",
	CategoryTemporal: "temporal",
	CategoryArray:    "array",
}

// Categories returns every category in declaration order.
func Categories() []Category {
	out := make([]Category, len(categoryNames))
	for i := range categoryNames {
		out[i] = Category(i)
	}
	return out
}

// String returns the lower-case category name.
func (c Category) String() string {
	if c < 0 || int(c) >= len(categoryNames) {
		return fmt.Sprintf("category(%d)", int(c))
	}
	return categoryNames[c]
}
