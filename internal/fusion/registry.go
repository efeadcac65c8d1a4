package fusion

import (
	"fmt"
	"sort"
	"strings"

	fuserr "github.com/Aman-CERP/fusionidx/internal/errors"
)

// Registry maps persisted version tags to their selectors. It is immutable
// after construction and safe for concurrent use.
type Registry struct {
	selectors map[Version]SlotSelector
}

// NewRegistry builds a registry. Duplicate or empty versions are rejected.
func NewRegistry(selectors ...SlotSelector) (*Registry, error) {
	r := &Registry{selectors: make(map[Version]SlotSelector, len(selectors))}
	for _, s := range selectors {
		v := s.Version()
		if v == "" {
			return nil, fmt.Errorf("selector %T has an empty version", s)
		}
		if _, dup := r.selectors[v]; dup {
			return nil, fmt.Errorf("duplicate selector version %s", v)
		}
		r.selectors[v] = s
	}
	return r, nil
}

// DefaultRegistry returns a registry holding every strategy of this build.
func DefaultRegistry() *Registry {
	r, err := NewRegistry(NativeSelector{}, TextNativeSelector{})
	if err != nil {
		panic(err)
	}
	return r
}

// Lookup resolves a persisted version tag. Unknown tags fail with
// ERR_105_UNKNOWN_VERSION: the index was written by a build this one cannot
// route for.
func (r *Registry) Lookup(v Version) (SlotSelector, error) {
	if s, ok := r.selectors[v]; ok {
		return s, nil
	}
	known := r.Versions()
	names := make([]string, len(known))
	for i, k := range known {
		names[i] = string(k)
	}
	return nil, fuserr.Newf(fuserr.ErrCodeUnknownVersion, "unknown slot selector version %q", v).
		WithDetail("version", string(v)).
		WithSuggestion("supported versions: " + strings.Join(names, ", "))
}

// Versions returns all registered versions, sorted.
func (r *Registry) Versions() []Version {
	out := make([]Version, 0, len(r.selectors))
	for v := range r.selectors {
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
