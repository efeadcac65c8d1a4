package store

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	fuserr "github.com/Aman-CERP/fusionidx/internal/errors"
	"github.com/Aman-CERP/fusionidx/internal/value"
)

func newGenericIndex(t *testing.T) *SQLiteGenericIndex {
	t.Helper()
	idx, err := NewSQLiteGenericIndex("")
	require.NoError(t, err)
	t.Cleanup(func() { _ = idx.Close() })
	return idx
}

func entry(id int64, values ...value.Value) *Entry {
	return &Entry{EntityID: id, Values: values}
}

func TestSQLiteGenericIndex_ExactQuery(t *testing.T) {
	// Given: an index with numbers, booleans and a point
	idx := newGenericIndex(t)
	ctx := context.Background()
	require.NoError(t, idx.Add(ctx, []*Entry{
		entry(1, 42),
		entry(2, 42.5),
		entry(3, true),
		entry(4, value.Point{CRS: "cartesian", Coords: []float64{1, 2}}),
	}))

	// When/Then: each value finds exactly its entity
	ids, err := idx.Query(ctx, ExactQuery(42))
	require.NoError(t, err)
	assert.Equal(t, []int64{1}, ids)

	ids, err = idx.Query(ctx, ExactQuery(true))
	require.NoError(t, err)
	assert.Equal(t, []int64{3}, ids)

	ids, err = idx.Query(ctx, ExactQuery(value.Point{CRS: "cartesian", Coords: []float64{1, 2}}))
	require.NoError(t, err)
	assert.Equal(t, []int64{4}, ids)

	ids, err = idx.Query(ctx, ExactQuery(7))
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestSQLiteGenericIndex_ExactQuery_NumericEquivalence(t *testing.T) {
	// Given: an entry stored as int
	idx := newGenericIndex(t)
	ctx := context.Background()
	require.NoError(t, idx.Add(ctx, []*Entry{entry(1, 10)}))

	// When/Then: int64, uint8 and integral float64 all find it
	for _, v := range []value.Value{int64(10), uint8(10), 10.0} {
		ids, err := idx.Query(ctx, ExactQuery(v))
		require.NoError(t, err)
		assert.Equal(t, []int64{1}, ids, "query %T(%v)", v, v)
	}
}

func TestSQLiteGenericIndex_CompositeTuples(t *testing.T) {
	// Given: composite entries including text members
	idx := newGenericIndex(t)
	ctx := context.Background()
	require.NoError(t, idx.Add(ctx, []*Entry{
		entry(1, "alice", 30),
		entry(2, "alice", 31),
		entry(3, 30, "alice"),
	}))

	// When: querying the full tuple
	ids, err := idx.Query(ctx, ExactQuery("alice", 30))
	require.NoError(t, err)

	// Then: order of members matters
	assert.Equal(t, []int64{1}, ids)

	// And: composite entries never match single-value queries
	ids, err = idx.Query(ctx, PrefixQuery("ali"))
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestSQLiteGenericIndex_RangeQuery(t *testing.T) {
	idx := newGenericIndex(t)
	ctx := context.Background()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, idx.Add(ctx, []*Entry{
		entry(1, 1),
		entry(2, 5),
		entry(3, 10),
		entry(4, "m"),
		entry(5, base),
		entry(6, base.Add(time.Hour)),
		entry(7, 2*time.Second),
	}))

	tests := []struct {
		name string
		q    *Query
		want []int64
	}{
		{"inclusive numbers", RangeQuery(1, true, 5, true), []int64{1, 2}},
		{"exclusive numbers", RangeQuery(1, false, 10, false), []int64{2}},
		{"open upper", RangeQuery(5, true, nil, false), []int64{2, 3}},
		{"open lower", RangeQuery(nil, false, 5, false), []int64{1}},
		{"float bound", RangeQuery(0.5, true, 1.5, true), []int64{1}},
		{"text", RangeQuery("a", true, "z", true), []int64{4}},
		{"times", RangeQuery(base, true, base.Add(30*time.Minute), true), []int64{5}},
		{"durations stay apart from times", RangeQuery(time.Duration(0), true, nil, false), []int64{7}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ids, err := idx.Query(ctx, tt.q)
			require.NoError(t, err)
			assert.Equal(t, tt.want, ids)
		})
	}
}

func TestSQLiteGenericIndex_RangeQuery_TimesAcrossCenturies(t *testing.T) {
	// Given: times outside the span of int64 nanoseconds since 1970
	idx := newGenericIndex(t)
	ctx := context.Background()
	y1500 := time.Date(1500, 6, 1, 0, 0, 0, 0, time.UTC)
	y2000 := time.Date(2000, 6, 1, 0, 0, 0, 0, time.UTC)
	y2500 := time.Date(2500, 6, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, idx.Add(ctx, []*Entry{
		entry(1, y1500),
		entry(2, y2000),
		entry(3, y2500),
		entry(4, y2000.Add(time.Nanosecond)),
	}))

	tests := []struct {
		name string
		q    *Query
		want []int64
	}{
		{"all", RangeQuery(time.Date(1400, 1, 1, 0, 0, 0, 0, time.UTC), true, nil, false), []int64{1, 2, 3, 4}},
		{"before 2000", RangeQuery(nil, false, y2000, false), []int64{1}},
		{"after 2000", RangeQuery(y2000, false, nil, false), []int64{3, 4}},
		{"from 2000 inclusive", RangeQuery(y2000, true, y2500, false), []int64{2, 4}},
		{"nanosecond precision", RangeQuery(y2000, true, y2000, true), []int64{2}},
		{"up to 2500 inclusive", RangeQuery(y1500, false, y2500, true), []int64{2, 3, 4}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ids, err := idx.Query(ctx, tt.q)
			require.NoError(t, err)
			assert.Equal(t, tt.want, ids)
		})
	}
}

func TestSQLiteGenericIndex_RangeQuery_Unordered(t *testing.T) {
	// Given: an index
	idx := newGenericIndex(t)

	// When: ranging over points
	p := value.Point{CRS: "wgs-84", Coords: []float64{0, 0}}
	_, err := idx.Query(context.Background(), RangeQuery(p, true, nil, false))

	// Then: the query is rejected as invalid
	require.Error(t, err)
	assert.Equal(t, fuserr.ErrCodeInvalidQuery, fuserr.GetCode(err))
}

func TestSQLiteGenericIndex_PrefixAndContains(t *testing.T) {
	// Given: text values, including multi-byte ones
	idx := newGenericIndex(t)
	ctx := context.Background()
	require.NoError(t, idx.Add(ctx, []*Entry{
		entry(1, "straße"),
		entry(2, "strand"),
		entry(3, "astra"),
		entry(4, ""),
		entry(5, 100),
	}))

	ids, err := idx.Query(ctx, PrefixQuery("stra"))
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 2}, ids)

	ids, err = idx.Query(ctx, PrefixQuery("straß"))
	require.NoError(t, err)
	assert.Equal(t, []int64{1}, ids)

	ids, err = idx.Query(ctx, ContainsQuery("tra"))
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 2, 3}, ids)

	// Empty prefix matches every text value, including the empty string
	ids, err = idx.Query(ctx, PrefixQuery(""))
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 2, 3, 4}, ids)
}

func TestSQLiteGenericIndex_AddIsIdempotent(t *testing.T) {
	// Given: an entry added twice
	idx := newGenericIndex(t)
	ctx := context.Background()
	require.NoError(t, idx.Add(ctx, []*Entry{entry(1, 5)}))
	require.NoError(t, idx.Add(ctx, []*Entry{entry(1, 5.0)}))

	// Then: one entry exists
	n, err := idx.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestSQLiteGenericIndex_Remove(t *testing.T) {
	// Given: two entities sharing a value
	idx := newGenericIndex(t)
	ctx := context.Background()
	require.NoError(t, idx.Add(ctx, []*Entry{entry(1, 5), entry(2, 5)}))

	// When: removing one of them, and an absent entry
	require.NoError(t, idx.Remove(ctx, []*Entry{entry(1, 5), entry(9, 5)}))

	// Then: only the other remains
	ids, err := idx.Query(ctx, ExistsQuery())
	require.NoError(t, err)
	assert.Equal(t, []int64{2}, ids)
}

func TestSQLiteGenericIndex_RejectsUnclassifiableValues(t *testing.T) {
	idx := newGenericIndex(t)

	err := idx.Add(context.Background(), []*Entry{entry(1, struct{}{})})

	require.Error(t, err)
	assert.Equal(t, fuserr.ErrCodeInvalidInput, fuserr.GetCode(err))
}

func TestSQLiteGenericIndex_Persistence(t *testing.T) {
	// Given: an on-disk index with one entry
	path := filepath.Join(t.TempDir(), "generic.db")
	idx, err := NewSQLiteGenericIndex(path)
	require.NoError(t, err)
	require.NoError(t, idx.Add(context.Background(), []*Entry{entry(7, "x", 1)}))
	require.NoError(t, idx.Close())

	// When: reopening
	idx, err = NewSQLiteGenericIndex(path)
	require.NoError(t, err)
	defer func() { _ = idx.Close() }()

	// Then: the entry survived
	ids, err := idx.Query(context.Background(), ExactQuery("x", 1))
	require.NoError(t, err)
	assert.Equal(t, []int64{7}, ids)
}

func TestSQLiteGenericIndex_CorruptFileIsCleared(t *testing.T) {
	// Given: a file that is not a database
	path := filepath.Join(t.TempDir(), "generic.db")
	require.NoError(t, os.WriteFile(path, []byte("not a database at all, just noise"), 0644))

	// When: opening it
	idx, err := NewSQLiteGenericIndex(path)
	require.NoError(t, err)
	defer func() { _ = idx.Close() }()

	// Then: a fresh, empty index is usable
	n, err := idx.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestSQLiteGenericIndex_Closed(t *testing.T) {
	idx, err := NewSQLiteGenericIndex("")
	require.NoError(t, err)

	require.NoError(t, idx.Close())
	require.NoError(t, idx.Close(), "close is idempotent")

	_, err = idx.Query(context.Background(), ExistsQuery())
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorIs(t, idx.Add(context.Background(), []*Entry{entry(1, 1)}), ErrClosed)
}

func TestSQLiteGenericIndex_ConcurrentAccess(t *testing.T) {
	idx := newGenericIndex(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(id int64) {
			defer wg.Done()
			assert.NoError(t, idx.Add(ctx, []*Entry{entry(id, id)}))
			_, err := idx.Query(ctx, ExistsQuery())
			assert.NoError(t, err)
		}(int64(i))
	}
	wg.Wait()

	n, err := idx.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 8, n)
}
