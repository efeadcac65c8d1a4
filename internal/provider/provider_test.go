package provider

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/fusionidx/internal/config"
	fuserr "github.com/Aman-CERP/fusionidx/internal/errors"
	"github.com/Aman-CERP/fusionidx/internal/fusion"
	"github.com/Aman-CERP/fusionidx/internal/store"
)

func testConfig(t *testing.T, dataDir string, backends ...string) *config.Config {
	t.Helper()
	cfg := config.NewConfig()
	cfg.DataDir = dataDir
	if len(backends) > 0 {
		cfg.Fusion.Backends = backends
	}
	return cfg
}

func newProvider(t *testing.T, cfg *config.Config) *Provider {
	t.Helper()
	p, err := New(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Close() })
	return p
}

func TestProvider_CreateAddQueryReopen(t *testing.T) {
	// Given: a provider with both backends configured
	ctx := context.Background()
	dataDir := t.TempDir()
	p := newProvider(t, testConfig(t, dataDir))

	// When: an index is created and populated
	h, err := p.Create(ctx, "people", []string{"name"}, "")
	require.NoError(t, err)
	assert.Equal(t, fusion.VersionTextNative10, h.Version())

	require.NoError(t, h.Apply(ctx, []store.Update{
		store.Added(1, "alice"),
		store.Added(2, int64(42)),
		store.Added(3, "alicia"),
	}))
	require.NoError(t, h.Close())

	// Then: a reopened index sees the same entries in the same slots
	h, err = p.Open(ctx, "people")
	require.NoError(t, err)
	defer h.Close()

	ids, err := h.Query(ctx, store.ExactQuery("alice"))
	require.NoError(t, err)
	assert.Equal(t, []int64{1}, ids)

	ids, err = h.Query(ctx, store.ExactQuery(42.0))
	require.NoError(t, err)
	assert.Equal(t, []int64{2}, ids)

	ids, err = h.Query(ctx, store.PrefixQuery("ali"))
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 3}, ids)

	counts, err := h.SlotCounts(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[fusion.Slot]int{fusion.SlotGeneric: 1, fusion.SlotText: 2}, counts)
}

func TestProvider_CreateUnknownVersion(t *testing.T) {
	ctx := context.Background()
	p := newProvider(t, testConfig(t, t.TempDir()))

	_, err := p.Create(ctx, "people", []string{"name"}, "lucene+native-3.0")

	require.Error(t, err)
	assert.Equal(t, fuserr.ErrCodeUnknownVersion, fuserr.GetCode(err))
	list, err := p.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestProvider_CreateRefusedWhenBackendsMissing(t *testing.T) {
	// Given: only the generic backend is configured
	ctx := context.Background()
	dataDir := t.TempDir()
	p := newProvider(t, testConfig(t, dataDir, "generic"))

	// When: an index using the two-slot strategy is created
	_, err := p.Create(ctx, "people", []string{"name"}, fusion.VersionTextNative10)

	// Then: it is refused as fatal and nothing is persisted
	require.Error(t, err)
	assert.Equal(t, fuserr.ErrCodeSlotMismatch, fuserr.GetCode(err))
	assert.True(t, fuserr.IsFatal(err))
	fe, ok := fuserr.As(err)
	require.True(t, ok)
	assert.Equal(t, "text", fe.Details["missing"])

	list, err := p.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, list)
	_, statErr := os.Stat(p.cfg.IndexDir("people"))
	assert.True(t, os.IsNotExist(statErr))
}

func TestProvider_NativeVersionWithGenericOnly(t *testing.T) {
	ctx := context.Background()
	p := newProvider(t, testConfig(t, t.TempDir(), "generic"))

	h, err := p.Create(ctx, "ages", []string{"age"}, fusion.VersionNative10)
	require.NoError(t, err)
	defer h.Close()

	require.NoError(t, h.Apply(ctx, []store.Update{
		store.Added(1, "alice"),
		store.Added(2, int64(30)),
	}))
	assert.Equal(t, []fusion.Slot{fusion.SlotGeneric}, h.Slots())

	ids, err := h.Query(ctx, store.ExactQuery("alice"))
	require.NoError(t, err)
	assert.Equal(t, []int64{1}, ids)
}

func TestProvider_OpenRefusedAfterBackendsChange(t *testing.T) {
	// Given: an index created with both backends
	ctx := context.Background()
	dataDir := t.TempDir()
	full := newProvider(t, testConfig(t, dataDir))
	h, err := full.Create(ctx, "people", []string{"name"}, "")
	require.NoError(t, err)
	require.NoError(t, h.Close())

	// When: a deployment with only the generic backend opens it
	genericOnly := newProvider(t, testConfig(t, dataDir, "generic"))
	_, err = genericOnly.Open(ctx, "people")

	// Then: it is refused and the lock is released again
	require.Error(t, err)
	assert.Equal(t, fuserr.ErrCodeSlotMismatch, fuserr.GetCode(err))

	h, err = full.Open(ctx, "people")
	require.NoError(t, err)
	require.NoError(t, h.Close())
}

func TestProvider_OpenLocked(t *testing.T) {
	ctx := context.Background()
	dataDir := t.TempDir()
	p := newProvider(t, testConfig(t, dataDir))
	h, err := p.Create(ctx, "people", []string{"name"}, "")
	require.NoError(t, err)

	other := newProvider(t, testConfig(t, dataDir))
	_, err = other.Open(ctx, "people")
	require.Error(t, err)
	assert.Equal(t, fuserr.ErrCodeIndexLocked, fuserr.GetCode(err))
	assert.True(t, fuserr.IsRetryable(err))

	require.NoError(t, h.Close())
	require.NoError(t, h.Close())

	h, err = other.Open(ctx, "people")
	require.NoError(t, err)
	require.NoError(t, h.Close())
}

func TestProvider_OpenUnknown(t *testing.T) {
	p := newProvider(t, testConfig(t, t.TempDir()))

	_, err := p.Open(context.Background(), "missing")

	assert.Equal(t, fuserr.ErrCodeIndexNotFound, fuserr.GetCode(err))
}

func TestProvider_CreateDuplicate(t *testing.T) {
	ctx := context.Background()
	p := newProvider(t, testConfig(t, t.TempDir()))
	h, err := p.Create(ctx, "people", []string{"name"}, "")
	require.NoError(t, err)
	defer h.Close()

	_, err = p.Create(ctx, "people", []string{"email"}, "")

	assert.Equal(t, fuserr.ErrCodeIndexExists, fuserr.GetCode(err))
}

func TestProvider_CreateInvalidName(t *testing.T) {
	p := newProvider(t, testConfig(t, t.TempDir()))

	_, err := p.Create(context.Background(), "../etc", []string{"name"}, "")

	assert.Equal(t, fuserr.ErrCodeInvalidName, fuserr.GetCode(err))
}

func TestProvider_Drop(t *testing.T) {
	// Given: an index with data on disk
	ctx := context.Background()
	p := newProvider(t, testConfig(t, t.TempDir()))
	h, err := p.Create(ctx, "people", []string{"name"}, "")
	require.NoError(t, err)
	require.NoError(t, h.Apply(ctx, []store.Update{store.Added(1, "alice")}))

	// When: dropping while open
	err = p.Drop(ctx, "people")

	// Then: refused
	assert.Equal(t, fuserr.ErrCodeIndexLocked, fuserr.GetCode(err))

	// When: dropping after close
	require.NoError(t, h.Close())
	require.NoError(t, p.Drop(ctx, "people"))

	// Then: descriptor and directory are gone
	_, err = p.Open(ctx, "people")
	assert.Equal(t, fuserr.ErrCodeIndexNotFound, fuserr.GetCode(err))
	_, statErr := os.Stat(p.cfg.IndexDir("people"))
	assert.True(t, os.IsNotExist(statErr))

	err = p.Drop(ctx, "people")
	assert.Equal(t, fuserr.ErrCodeIndexNotFound, fuserr.GetCode(err))
}

func TestProvider_ListAndDescribe(t *testing.T) {
	ctx := context.Background()
	p := newProvider(t, testConfig(t, t.TempDir()))
	for _, name := range []string{"zeta", "alpha"} {
		h, err := p.Create(ctx, name, []string{"name"}, "")
		require.NoError(t, err)
		require.NoError(t, h.Apply(ctx, []store.Update{
			store.Added(1, "alice"),
			store.Added(2, true),
			store.Added(3, []any{"x", "y"}),
		}))
		require.NoError(t, h.Close())
	}

	list, err := p.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "alpha", list[0].Name)
	assert.Equal(t, "zeta", list[1].Name)

	desc, err := p.Describe(ctx, "alpha")
	require.NoError(t, err)
	assert.Equal(t, fusion.VersionTextNative10, desc.Descriptor.Version)
	assert.Equal(t, map[fusion.Slot]int{fusion.SlotGeneric: 2, fusion.SlotText: 1}, desc.SlotCounts)
	assert.ElementsMatch(t, []store.BackendKind{store.BackendGeneric, store.BackendText}, desc.OnDisk)

	// Describe releases its lock.
	h, err := p.Open(ctx, "alpha")
	require.NoError(t, err)
	require.NoError(t, h.Close())
}

func TestProvider_Closed(t *testing.T) {
	p := newProvider(t, testConfig(t, t.TempDir()))
	require.NoError(t, p.Close())
	require.NoError(t, p.Close())

	_, err := p.Open(context.Background(), "people")
	assert.ErrorIs(t, err, ErrProviderClosed)
	_, err = p.List(context.Background())
	assert.ErrorIs(t, err, ErrProviderClosed)
}

func TestNew_InvalidBackends(t *testing.T) {
	_, err := New(testConfig(t, t.TempDir(), "generic", "vector"))

	require.Error(t, err)
}
