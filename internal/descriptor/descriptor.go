// Package descriptor persists index descriptors: the metadata that records,
// for every fusion index, its property keys and the slot selector version
// that governs its routing. Reopening an index reads the version back from
// here, so the descriptor is the source of truth for routing across restarts.
package descriptor

import (
	"fmt"
	"regexp"
	"time"

	fuserr "github.com/Aman-CERP/fusionidx/internal/errors"
	"github.com/Aman-CERP/fusionidx/internal/fusion"
)

// Descriptor is the persisted metadata of one fusion index.
// Slots is the slot universe the index was created with.
type Descriptor struct {
	Name         string
	Version      fusion.Version
	PropertyKeys []string
	Slots        []fusion.Slot
	CreatedAt    time.Time
}

// Clone returns a deep copy.
func (d *Descriptor) Clone() *Descriptor {
	c := *d
	c.PropertyKeys = append([]string(nil), d.PropertyKeys...)
	c.Slots = append([]fusion.Slot(nil), d.Slots...)
	return &c
}

var namePattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_.-]{0,63}$`)

// ValidateName checks that name is usable as an index name and directory.
func ValidateName(name string) error {
	if !namePattern.MatchString(name) {
		return fuserr.New(fuserr.ErrCodeInvalidName,
			fmt.Sprintf("invalid index name %q", name), nil).
			WithSuggestion("use 1-64 letters, digits, '.', '_' or '-', starting with a letter or digit")
	}
	return nil
}

// Validate checks the descriptor before it is persisted.
func (d *Descriptor) Validate() error {
	if err := ValidateName(d.Name); err != nil {
		return err
	}
	if d.Version == "" {
		return fuserr.ValidationError("descriptor has no selector version", nil)
	}
	if len(d.PropertyKeys) == 0 {
		return fuserr.ValidationError(fmt.Sprintf("index %s has no property keys", d.Name), nil)
	}
	seen := make(map[string]bool, len(d.PropertyKeys))
	for _, k := range d.PropertyKeys {
		if k == "" {
			return fuserr.ValidationError(fmt.Sprintf("index %s has an empty property key", d.Name), nil)
		}
		if seen[k] {
			return fuserr.ValidationError(fmt.Sprintf("index %s repeats property key %q", d.Name, k), nil)
		}
		seen[k] = true
	}
	return nil
}
