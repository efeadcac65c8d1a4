package fusion

import (
	"errors"
	"fmt"
	"reflect"

	fuserr "github.com/Aman-CERP/fusionidx/internal/errors"
)

// ErrNoInstances is returned when an InstanceSelector would be empty.
var ErrNoInstances = errors.New("at least one slot instance is required")

// InstanceSelector holds exactly one instance per slot. The mapping is fixed
// at construction, so Select, Slots and ForEach need no locking.
type InstanceSelector[T any] struct {
	instances map[Slot]T
	slots     []Slot
}

// NewInstanceSelector builds a selector from a slot to instance map.
// The map is copied; nil instances are rejected.
func NewInstanceSelector[T any](instances map[Slot]T) (*InstanceSelector[T], error) {
	if len(instances) == 0 {
		return nil, ErrNoInstances
	}

	s := &InstanceSelector[T]{
		instances: make(map[Slot]T, len(instances)),
		slots:     make([]Slot, 0, len(instances)),
	}
	for slot, inst := range instances {
		if isNil(inst) {
			return nil, fmt.Errorf("nil instance for slot %s", slot)
		}
		s.instances[slot] = inst
		s.slots = append(s.slots, slot)
	}
	SortSlots(s.slots)

	return s, nil
}

// NewInstanceSelectorFrom calls factory once per slot. On failure the
// instances created so far are passed to cleanup, if non-nil.
func NewInstanceSelectorFrom[T any](slots []Slot, factory func(Slot) (T, error), cleanup func(Slot, T)) (*InstanceSelector[T], error) {
	created := make(map[Slot]T, len(slots))
	fail := func(err error) (*InstanceSelector[T], error) {
		if cleanup != nil {
			for slot, inst := range created {
				cleanup(slot, inst)
			}
		}
		return nil, err
	}

	for _, slot := range slots {
		if _, dup := created[slot]; dup {
			return fail(fmt.Errorf("slot %s configured twice", slot))
		}
		inst, err := factory(slot)
		if err != nil {
			return fail(fmt.Errorf("create %s instance: %w", slot, err))
		}
		created[slot] = inst
	}

	sel, err := NewInstanceSelector(created)
	if err != nil {
		return fail(err)
	}
	return sel, nil
}

// Select returns the instance for slot. A slot outside the constructed
// universe is unreachable once the selector has been validated, so it panics
// with an ERR_506_INVARIANT error.
func (s *InstanceSelector[T]) Select(slot Slot) T {
	inst, ok := s.instances[slot]
	if !ok {
		panic(fuserr.Newf(fuserr.ErrCodeInvariant, "no instance for slot %s (configured: %v)", slot, SlotNames(s.slots)))
	}
	return inst
}

// Slots returns the configured slots in order. Implements Configured.
func (s *InstanceSelector[T]) Slots() []Slot {
	return append([]Slot(nil), s.slots...)
}

// ForEach calls fn for every (slot, instance) pair in slot order.
func (s *InstanceSelector[T]) ForEach(fn func(Slot, T)) {
	for _, slot := range s.slots {
		fn(slot, s.instances[slot])
	}
}

// ForAll calls fn for every pair, even after failures, and joins the errors.
// Used for broadcast operations such as closing every backend.
func (s *InstanceSelector[T]) ForAll(fn func(Slot, T) error) error {
	var errs []error
	for _, slot := range s.slots {
		if err := fn(slot, s.instances[slot]); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", slot, err))
		}
	}
	return errors.Join(errs...)
}

func isNil(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Interface, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan:
		return rv.IsNil()
	default:
		return false
	}
}

var _ Configured = (*InstanceSelector[any])(nil)
