package fusion

import (
	"fmt"
	"sort"
	"strings"
)

// Slot is a backend role within a fusion index. Each slot is served by
// exactly one backend instance.
type Slot int

const (
	// SlotGeneric is the general-purpose ordered backend. It is the only
	// backend whose key encoding can hold composite (multi-value) tuples.
	SlotGeneric Slot = iota
	// SlotText is the text-search backend.
	SlotText
)

var slotNames = [...]string{
	SlotGeneric: "generic",
	SlotText:    "text",
}

// AllSlots returns every slot known to this build, in order.
func AllSlots() []Slot {
	out := make([]Slot, len(slotNames))
	for i := range slotNames {
		out[i] = Slot(i)
	}
	return out
}

// String returns the slot name used in configuration and descriptors.
func (s Slot) String() string {
	if s < 0 || int(s) >= len(slotNames) {
		return fmt.Sprintf("slot(%d)", int(s))
	}
	return slotNames[s]
}

// ParseSlot parses a slot name, case-insensitively.
func ParseSlot(name string) (Slot, error) {
	n := strings.ToLower(strings.TrimSpace(name))
	for i, sn := range slotNames {
		if sn == n {
			return Slot(i), nil
		}
	}
	return 0, fmt.Errorf("unknown slot %q (valid: %s)", name, strings.Join(slotNames[:], ", "))
}

// SortSlots sorts slots in place and returns them.
func SortSlots(slots []Slot) []Slot {
	sort.Slice(slots, func(i, j int) bool { return slots[i] < slots[j] })
	return slots
}

// SlotNames renders slots as names, sorted.
func SlotNames(slots []Slot) []string {
	sorted := SortSlots(append([]Slot(nil), slots...))
	names := make([]string, len(sorted))
	for i, s := range sorted {
		names[i] = s.String()
	}
	return names
}
