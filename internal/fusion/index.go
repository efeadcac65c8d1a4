package fusion

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	fuserr "github.com/Aman-CERP/fusionidx/internal/errors"
	"github.com/Aman-CERP/fusionidx/internal/store"
	"github.com/Aman-CERP/fusionidx/internal/value"
)

// ErrIndexClosed is returned by operations on a closed Index.
var ErrIndexClosed = errors.New("fusion index is closed")

// Index is a fusion index: one logical index over several backends, one per
// slot. Every update and query is routed by the index's SlotSelector, so a
// value is always written to and sought in the same backend.
//
// Index is safe for concurrent use. All methods may be called from multiple
// goroutines simultaneously.
type Index struct {
	name       string
	keys       []string
	selector   SlotSelector
	instances  *InstanceSelector[store.IndexBackend]
	classifier value.Classifier
	logger     *slog.Logger

	mu     sync.RWMutex
	closed bool
}

// IndexOption configures an Index.
type IndexOption func(*Index)

// WithClassifier overrides value.DefaultClassifier.
func WithClassifier(c value.Classifier) IndexOption {
	return func(idx *Index) {
		idx.classifier = c
	}
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) IndexOption {
	return func(idx *Index) {
		idx.logger = l
	}
}

// NewIndex builds a fusion index over instances. The instances must satisfy
// the selector exactly; otherwise the ERR_104_SLOT_MISMATCH error from
// ValidateSatisfied is returned and no index is created.
func NewIndex(name string, keys []string, selector SlotSelector, instances *InstanceSelector[store.IndexBackend], opts ...IndexOption) (*Index, error) {
	if len(keys) == 0 {
		return nil, fuserr.ValidationError("index needs at least one property key", nil)
	}
	if selector == nil || instances == nil {
		return nil, fuserr.InternalError("index needs a selector and instances", nil)
	}
	if err := selector.ValidateSatisfied(instances); err != nil {
		return nil, err
	}

	idx := &Index{
		name:       name,
		keys:       append([]string(nil), keys...),
		selector:   selector,
		instances:  instances,
		classifier: value.DefaultClassifier,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(idx)
	}
	idx.logger = idx.logger.With(slog.String("index", name))
	return idx, nil
}

// Name returns the index name.
func (idx *Index) Name() string { return idx.name }

// PropertyKeys returns the indexed property keys, in tuple order.
func (idx *Index) PropertyKeys() []string { return append([]string(nil), idx.keys...) }

// Version returns the version of the index's selector.
func (idx *Index) Version() Version { return idx.selector.Version() }

// Slots returns the slots the index has backends for.
func (idx *Index) Slots() []Slot { return idx.instances.Slots() }

// Route returns the slot that owns a tuple, or false if it has no route.
// A composite tuple with a missing or unclassifiable member has no route, so
// incomplete composites are never indexed.
func (idx *Index) Route(values []value.Value) (Slot, bool) {
	if len(values) > 1 {
		for _, v := range values {
			if idx.classifier.Category(v) == value.CategoryUnknown {
				return 0, false
			}
		}
	}
	return idx.selector.SelectSlot(values, idx.classifier)
}

func (idx *Index) checkArity(u store.Update, values []value.Value) error {
	if len(values) != len(idx.keys) {
		return fuserr.ValidationError(
			fmt.Sprintf("%s update for entity %d has %d values, index has %d property keys",
				u.Kind, u.EntityID, len(values), len(idx.keys)), nil).
			WithDetail("entity_id", fmt.Sprint(u.EntityID))
	}
	return nil
}

// slotOp is one backend call: a run of consecutive removals or additions.
type slotOp struct {
	remove  bool
	entries []*store.Entry
}

// slotBatch is the ordered backend work for one slot.
type slotBatch struct {
	ops []slotOp
}

func (b *slotBatch) push(remove bool, e *store.Entry) {
	if n := len(b.ops); n > 0 && b.ops[n-1].remove == remove {
		b.ops[n-1].entries = append(b.ops[n-1].entries, e)
		return
	}
	b.ops = append(b.ops, slotOp{remove: remove, entries: []*store.Entry{e}})
}

// Apply routes updates to their backends. Within a slot, entries reach the
// backend in update order, with a Changed update removing its old tuple
// before adding the new one; consecutive entries of the same kind share one
// backend call. Slots are written in parallel. Entries with no route,
// including composite tuples with a missing member, are skipped.
func (idx *Index) Apply(ctx context.Context, updates []store.Update) error {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	if idx.closed {
		return ErrIndexClosed
	}

	batches := make(map[Slot]*slotBatch)
	route := func(u store.Update, values []value.Value, remove bool) {
		slot, ok := idx.Route(values)
		if !ok {
			idx.skipped(u, values)
			return
		}
		b, ok := batches[slot]
		if !ok {
			b = &slotBatch{}
			batches[slot] = b
		}
		b.push(remove, &store.Entry{EntityID: u.EntityID, Values: values})
	}

	for _, u := range updates {
		var before, after []value.Value
		switch u.Kind {
		case store.UpdateAdded:
			after = u.After
		case store.UpdateRemoved:
			before = u.Before
		case store.UpdateChanged:
			before, after = u.Before, u.After
		default:
			return fuserr.ValidationError(fmt.Sprintf("unknown update kind %s", u.Kind), nil)
		}

		if u.Kind != store.UpdateAdded {
			if err := idx.checkArity(u, before); err != nil {
				return err
			}
		}
		if u.Kind != store.UpdateRemoved {
			if err := idx.checkArity(u, after); err != nil {
				return err
			}
		}
		if u.Kind != store.UpdateAdded {
			route(u, before, true)
		}
		if u.Kind != store.UpdateRemoved {
			route(u, after, false)
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	for slot, b := range batches {
		backend := idx.instances.Select(slot)
		g.Go(func() error {
			for _, op := range b.ops {
				if op.remove {
					if err := backend.Remove(gctx, op.entries); err != nil {
						return fmt.Errorf("%s: remove: %w", slot, err)
					}
					continue
				}
				if err := backend.Add(gctx, op.entries); err != nil {
					return fmt.Errorf("%s: add: %w", slot, err)
				}
			}
			return nil
		})
	}
	return g.Wait()
}

func (idx *Index) skipped(u store.Update, values []value.Value) {
	idx.logger.Debug("fusion_entry_skipped",
		slog.Int64("entity_id", u.EntityID),
		slog.String("update", u.Kind.String()),
		slog.Int("arity", len(values)),
		slog.String("reason", "no slot for values"))
}

// Query routes q to the backend owning the values it names and returns the
// matching entity IDs, ascending. Exists queries are sent to every backend in
// parallel and the results merged. A query whose values have no route matches
// nothing.
func (idx *Index) Query(ctx context.Context, q *store.Query) ([]int64, error) {
	if q == nil {
		return nil, fuserr.Newf(fuserr.ErrCodeInvalidQuery, "nil query")
	}

	idx.mu.RLock()
	defer idx.mu.RUnlock()

	if idx.closed {
		return nil, ErrIndexClosed
	}

	var probe []value.Value
	switch q.Kind {
	case store.QueryExists:
		return idx.broadcast(ctx, q)

	case store.QueryExact:
		if len(q.Values) != len(idx.keys) {
			return nil, fuserr.Newf(fuserr.ErrCodeInvalidQuery,
				"exact query has %d values, index has %d property keys", len(q.Values), len(idx.keys))
		}
		probe = q.Values

	case store.QueryRange:
		if err := idx.requireSingleKey(q.Kind); err != nil {
			return nil, err
		}
		if _, err := q.RangeCategory(idx.classifier); err != nil {
			return nil, err
		}
		probe = []value.Value{q.RangeBound()}

	case store.QueryPrefix, store.QueryContains:
		if err := idx.requireSingleKey(q.Kind); err != nil {
			return nil, err
		}
		probe = []value.Value{q.Text}

	default:
		return nil, fuserr.Newf(fuserr.ErrCodeInvalidQuery, "unsupported query kind %s", q.Kind)
	}

	slot, ok := idx.Route(probe)
	if !ok {
		return []int64{}, nil
	}
	ids, err := idx.instances.Select(slot).Query(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", slot, err)
	}
	return ids, nil
}

func (idx *Index) requireSingleKey(kind store.QueryKind) error {
	if len(idx.keys) != 1 {
		return fuserr.Newf(fuserr.ErrCodeInvalidQuery,
			"%s queries need a single-property index, %s has %d keys", kind, idx.name, len(idx.keys))
	}
	return nil
}

// broadcast sends q to every backend in parallel and merges the results.
func (idx *Index) broadcast(ctx context.Context, q *store.Query) ([]int64, error) {
	results := make([][]int64, len(idx.instances.Slots()))

	g, gctx := errgroup.WithContext(ctx)
	i := 0
	idx.instances.ForEach(func(slot Slot, backend store.IndexBackend) {
		out := &results[i]
		i++
		g.Go(func() error {
			ids, err := backend.Query(gctx, q)
			if err != nil {
				return fmt.Errorf("%s: %w", slot, err)
			}
			*out = ids
			return nil
		})
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return mergeIDs(results...), nil
}

// mergeIDs returns the sorted union of ID lists.
func mergeIDs(lists ...[]int64) []int64 {
	seen := make(map[int64]struct{})
	out := []int64{}
	for _, l := range lists {
		for _, id := range l {
			if _, ok := seen[id]; ok {
				continue
			}
			seen[id] = struct{}{}
			out = append(out, id)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Count returns the total number of entries across all backends.
func (idx *Index) Count(ctx context.Context) (int, error) {
	counts, err := idx.SlotCounts(ctx)
	if err != nil {
		return 0, err
	}
	total := 0
	for _, n := range counts {
		total += n
	}
	return total, nil
}

// SlotCounts returns the number of entries held by each backend.
func (idx *Index) SlotCounts(ctx context.Context) (map[Slot]int, error) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	if idx.closed {
		return nil, ErrIndexClosed
	}

	counts := make(map[Slot]int)
	err := idx.instances.ForAll(func(slot Slot, b store.IndexBackend) error {
		n, err := b.Count(ctx)
		if err != nil {
			return err
		}
		counts[slot] = n
		return nil
	})
	if err != nil {
		return nil, err
	}
	return counts, nil
}

// Close closes every backend, even if some fail, and joins their errors.
// Safe to call multiple times.
func (idx *Index) Close() error {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	if idx.closed {
		return nil
	}
	idx.closed = true

	err := idx.instances.ForAll(func(_ Slot, b store.IndexBackend) error {
		return b.Close()
	})
	if err != nil {
		idx.logger.Warn("index_close_failed", slog.String("error", err.Error()))
		return err
	}
	idx.logger.Debug("index_closed")
	return nil
}
