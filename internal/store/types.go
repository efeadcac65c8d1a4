// Package store provides the physical index backends behind a fusion index:
// a SQLite ordered backend for the generic slot and a bleve backend for the
// text slot. Backends never route; they trust the fusion layer to send them
// only tuples their slot owns.
package store

import (
	"context"
	"fmt"

	fuserr "github.com/Aman-CERP/fusionidx/internal/errors"
	"github.com/Aman-CERP/fusionidx/internal/value"
)

// Entry is one index entry: an entity and the tuple of property values it is
// indexed under. Single-property indexes use one-element tuples.
type Entry struct {
	EntityID int64
	Values   []value.Value
}

// UpdateKind distinguishes index updates.
type UpdateKind int

const (
	UpdateAdded UpdateKind = iota
	UpdateChanged
	UpdateRemoved
)

func (k UpdateKind) String() string {
	switch k {
	case UpdateAdded:
		return "added"
	case UpdateChanged:
		return "changed"
	case UpdateRemoved:
		return "removed"
	default:
		return fmt.Sprintf("update(%d)", int(k))
	}
}

// Update is a change to the indexed values of one entity.
type Update struct {
	Kind     UpdateKind
	EntityID int64
	Before   []value.Value // Changed, Removed
	After    []value.Value // Added, Changed
}

// Added returns an update indexing values for an entity.
func Added(entityID int64, values ...value.Value) Update {
	return Update{Kind: UpdateAdded, EntityID: entityID, After: values}
}

// Changed returns an update moving an entity from before to after.
func Changed(entityID int64, before, after []value.Value) Update {
	return Update{Kind: UpdateChanged, EntityID: entityID, Before: before, After: after}
}

// Removed returns an update removing an entity's entry for values.
func Removed(entityID int64, values ...value.Value) Update {
	return Update{Kind: UpdateRemoved, EntityID: entityID, Before: values}
}

// QueryKind is the kind of an index query.
type QueryKind int

const (
	QueryExact QueryKind = iota
	QueryRange
	QueryPrefix
	QueryContains
	QueryExists
)

func (k QueryKind) String() string {
	switch k {
	case QueryExact:
		return "exact"
	case QueryRange:
		return "range"
	case QueryPrefix:
		return "prefix"
	case QueryContains:
		return "contains"
	case QueryExists:
		return "exists"
	default:
		return fmt.Sprintf("query(%d)", int(k))
	}
}

// Query selects entity IDs from an index.
type Query struct {
	Kind QueryKind

	// Values is the tuple for exact queries.
	Values []value.Value

	// Lower and Upper bound range queries; a nil bound is open.
	Lower, Upper               value.Value
	IncludeLower, IncludeUpper bool

	// Text is the prefix or substring for prefix and contains queries.
	Text string
}

// ExactQuery matches entries whose tuple equals values.
func ExactQuery(values ...value.Value) *Query {
	return &Query{Kind: QueryExact, Values: values}
}

// RangeQuery matches single values between lower and upper. Nil bounds are open.
func RangeQuery(lower value.Value, includeLower bool, upper value.Value, includeUpper bool) *Query {
	return &Query{Kind: QueryRange, Lower: lower, IncludeLower: includeLower, Upper: upper, IncludeUpper: includeUpper}
}

// PrefixQuery matches text values starting with prefix.
func PrefixQuery(prefix string) *Query {
	return &Query{Kind: QueryPrefix, Text: prefix}
}

// ContainsQuery matches text values containing substring.
func ContainsQuery(substring string) *Query {
	return &Query{Kind: QueryContains, Text: substring}
}

// ExistsQuery matches every entry.
func ExistsQuery() *Query {
	return &Query{Kind: QueryExists}
}

// RangeCategory returns the category shared by the range bounds. Both nil
// bounds, or bounds of different categories, are invalid.
func (q *Query) RangeCategory(classifier value.Classifier) (value.Category, error) {
	var cat value.Category
	bounds := 0
	for _, b := range []value.Value{q.Lower, q.Upper} {
		if b == nil {
			continue
		}
		c := classifier.Category(b)
		if bounds > 0 && c != cat {
			return 0, fuserr.Newf(fuserr.ErrCodeInvalidQuery,
				"range bounds have different categories: %s and %s", cat, c)
		}
		cat = c
		bounds++
	}
	if bounds == 0 {
		return 0, fuserr.Newf(fuserr.ErrCodeInvalidQuery, "range query needs at least one bound")
	}
	return cat, nil
}

// RangeBound returns the non-nil bound of a range query, preferring Lower.
func (q *Query) RangeBound() value.Value {
	if q.Lower != nil {
		return q.Lower
	}
	return q.Upper
}

// IndexBackend is the contract every slot backend satisfies.
//
// Implementations must be safe for concurrent use. Add is idempotent for an
// identical entry; Remove of an absent entry is a no-op.
type IndexBackend interface {
	// Add writes entries.
	Add(ctx context.Context, entries []*Entry) error

	// Remove deletes entries.
	Remove(ctx context.Context, entries []*Entry) error

	// Query returns matching entity IDs, ascending and without duplicates.
	Query(ctx context.Context, q *Query) ([]int64, error)

	// Count returns the number of entries.
	Count(ctx context.Context) (int, error)

	// Close releases resources. Safe to call multiple times.
	Close() error
}

// ErrClosed is returned by backends after Close.
var ErrClosed = fmt.Errorf("index backend is closed")
