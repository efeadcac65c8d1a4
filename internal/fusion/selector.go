package fusion

import (
	"fmt"
	"strings"

	fuserr "github.com/Aman-CERP/fusionidx/internal/errors"
	"github.com/Aman-CERP/fusionidx/internal/value"
)

// Version tags a slot selection strategy. It is persisted in the index
// descriptor, so an existing tag must never change its routing.
type Version string

// Configured is anything that exposes the set of slots it has instances for.
// InstanceSelector satisfies it.
type Configured interface {
	Slots() []Slot
}

// SlotSelector decides which slot owns a value or a tuple of values.
//
// Implementations are stateless and safe for concurrent use. SelectSlot must
// be deterministic for the lifetime of the version: changing its answer makes
// entries written earlier unreachable.
type SlotSelector interface {
	// Version returns the persisted strategy tag.
	Version() Version

	// RequiredSlots returns the exact slot universe this strategy routes to.
	RequiredSlots() []Slot

	// ValidateSatisfied fails with ERR_104_SLOT_MISMATCH unless instances
	// holds exactly the required slots.
	ValidateSatisfied(instances Configured) error

	// SelectSlot returns the slot for the tuple, or ok == false when the tuple
	// has no route and must not be indexed or sought at all.
	SelectSlot(values []value.Value, classifier value.Classifier) (slot Slot, ok bool)
}

// ValidateInstances checks that instances holds exactly the required slots,
// neither missing nor extraneous ones. The error names both sets.
func ValidateInstances(version Version, instances Configured, required ...Slot) error {
	want := make(map[Slot]bool, len(required))
	for _, s := range required {
		want[s] = true
	}

	have := make(map[Slot]bool)
	var extraneous []Slot
	for _, s := range instances.Slots() {
		have[s] = true
		if !want[s] {
			extraneous = append(extraneous, s)
		}
	}

	var missing []Slot
	for _, s := range required {
		if !have[s] {
			missing = append(missing, s)
		}
	}

	if len(missing) == 0 && len(extraneous) == 0 {
		return nil
	}

	var parts []string
	if len(missing) > 0 {
		parts = append(parts, "missing "+strings.Join(SlotNames(missing), ", "))
	}
	if len(extraneous) > 0 {
		parts = append(parts, "extraneous "+strings.Join(SlotNames(extraneous), ", "))
	}

	return fuserr.New(fuserr.ErrCodeSlotMismatch,
		fmt.Sprintf("configured backends do not satisfy strategy %s: %s", version, strings.Join(parts, "; ")),
		nil).
		WithDetail("version", string(version)).
		WithDetail("required", strings.Join(SlotNames(required), ",")).
		WithDetail("missing", strings.Join(SlotNames(missing), ",")).
		WithDetail("extraneous", strings.Join(SlotNames(extraneous), ",")).
		WithSuggestion(fmt.Sprintf("set fusion.backends to [%s]", strings.Join(SlotNames(required), ", ")))
}
