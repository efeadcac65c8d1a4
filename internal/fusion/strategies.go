package fusion

import "github.com/Aman-CERP/fusionidx/internal/value"

// Strategy versions known to this build.
const (
	// VersionNative10 routes everything indexable to the generic backend.
	VersionNative10 Version = "native-1.0"

	// VersionTextNative10 separates single text values into the text backend
	// and routes everything else to the generic backend.
	VersionTextNative10 Version = "text+native-1.0"
)

// DefaultVersion is the strategy used for newly created indexes.
const DefaultVersion = VersionTextNative10

// NativeSelector is the single-slot strategy behind VersionNative10.
type NativeSelector struct{}

// Version implements SlotSelector.
func (NativeSelector) Version() Version { return VersionNative10 }

// RequiredSlots implements SlotSelector.
func (NativeSelector) RequiredSlots() []Slot { return []Slot{SlotGeneric} }

// ValidateSatisfied implements SlotSelector.
func (s NativeSelector) ValidateSatisfied(instances Configured) error {
	return ValidateInstances(s.Version(), instances, s.RequiredSlots()...)
}

// SelectSlot implements SlotSelector.
func (NativeSelector) SelectSlot(values []value.Value, classifier value.Classifier) (Slot, bool) {
	switch len(values) {
	case 0:
		return 0, false
	case 1:
	default:
		return SlotGeneric, true
	}

	switch classifier.Category(values[0]) {
	case value.CategoryUnknown:
		return 0, false
	case value.CategoryText,
		value.CategoryNumber,
		value.CategoryBoolean,
		value.CategoryGeometry,
		value.CategoryTemporal,
		value.CategoryArray:
		return SlotGeneric, true
	default:
		return SlotGeneric, true
	}
}

// TextNativeSelector is the two-slot strategy behind VersionTextNative10.
//
// Composite tuples always go to the generic backend, regardless of the
// categories of their members: the text backend's key format holds a single
// string per entry.
type TextNativeSelector struct{}

// Version implements SlotSelector.
func (TextNativeSelector) Version() Version { return VersionTextNative10 }

// RequiredSlots implements SlotSelector.
func (TextNativeSelector) RequiredSlots() []Slot { return []Slot{SlotGeneric, SlotText} }

// ValidateSatisfied implements SlotSelector.
func (s TextNativeSelector) ValidateSatisfied(instances Configured) error {
	return ValidateInstances(s.Version(), instances, s.RequiredSlots()...)
}

// SelectSlot implements SlotSelector.
func (TextNativeSelector) SelectSlot(values []value.Value, classifier value.Classifier) (Slot, bool) {
	switch len(values) {
	case 0:
		return 0, false
	case 1:
	default:
		return SlotGeneric, true
	}

	switch classifier.Category(values[0]) {
	case value.CategoryText:
		return SlotText, true
	case value.CategoryUnknown:
		return 0, false
	case value.CategoryNumber,
		value.CategoryBoolean,
		value.CategoryGeometry,
		value.CategoryTemporal,
		value.CategoryArray:
		return SlotGeneric, true
	default:
		return SlotGeneric, true
	}
}

var (
	_ SlotSelector = NativeSelector{}
	_ SlotSelector = TextNativeSelector{}
)
