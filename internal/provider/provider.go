// Package provider creates, opens and drops fusion indexes on disk. It owns
// the descriptor store and turns a persisted descriptor into a validated
// fusion.Index backed by the configured slot backends.
package provider

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/Aman-CERP/fusionidx/internal/config"
	"github.com/Aman-CERP/fusionidx/internal/descriptor"
	fuserr "github.com/Aman-CERP/fusionidx/internal/errors"
	"github.com/Aman-CERP/fusionidx/internal/fusion"
	"github.com/Aman-CERP/fusionidx/internal/store"
)

// ErrProviderClosed is returned by operations on a closed Provider.
var ErrProviderClosed = errors.New("provider is closed")

// Provider manages the fusion indexes under one data directory.
// It is safe for concurrent use.
type Provider struct {
	cfg         *config.Config
	registry    *fusion.Registry
	descriptors *descriptor.Store
	slots       []fusion.Slot
	logger      *slog.Logger

	mu     sync.Mutex
	closed bool
}

// Option configures a Provider.
type Option func(*Provider)

// WithRegistry overrides fusion.DefaultRegistry.
func WithRegistry(r *fusion.Registry) Option {
	return func(p *Provider) {
		p.registry = r
	}
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(p *Provider) {
		p.logger = l
	}
}

// New opens the descriptor store under cfg.DataDir and prepares backend
// factories for the slots listed in cfg.Fusion.Backends.
func New(cfg *config.Config, opts ...Option) (*Provider, error) {
	slots, err := cfg.BackendSlots()
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, fuserr.IOError("create data directory", err).WithDetail("path", cfg.DataDir)
	}

	descriptors, err := descriptor.NewStore(cfg.DescriptorPath(), cfg.Descriptor.CacheSize)
	if err != nil {
		return nil, err
	}

	p := &Provider{
		cfg:         cfg,
		registry:    fusion.DefaultRegistry(),
		descriptors: descriptors,
		slots:       slots,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Registry returns the selector registry in use.
func (p *Provider) Registry() *fusion.Registry {
	return p.registry
}

// ConfiguredSlots returns the slots this provider builds backends for.
func (p *Provider) ConfiguredSlots() []fusion.Slot {
	return append([]fusion.Slot(nil), p.slots...)
}

// Slots implements fusion.Configured over the configured backend slots, so a
// selector can be checked before any backend exists.
func (p *Provider) Slots() []fusion.Slot {
	return p.ConfiguredSlots()
}

// Create registers a new index and opens it. An empty version selects
// cfg.Fusion.DefaultVersion. Nothing is persisted when the configured
// backends cannot satisfy the version's selector.
func (p *Provider) Create(ctx context.Context, name string, keys []string, version fusion.Version) (*Handle, error) {
	if err := p.checkOpen(); err != nil {
		return nil, err
	}
	if version == "" {
		version = fusion.Version(p.cfg.Fusion.DefaultVersion)
	}

	d := &descriptor.Descriptor{
		Name:         name,
		Version:      version,
		PropertyKeys: append([]string(nil), keys...),
		Slots:        p.ConfiguredSlots(),
		CreatedAt:    time.Now().UTC(),
	}
	if err := d.Validate(); err != nil {
		return nil, err
	}

	selector, err := p.registry.Lookup(version)
	if err != nil {
		return nil, err
	}
	if err := selector.ValidateSatisfied(p); err != nil {
		p.logger.Warn("index_create_refused",
			slog.String("index", name),
			slog.String("version", string(version)),
			slog.String("error", err.Error()))
		return nil, err
	}

	if err := p.descriptors.Save(ctx, d); err != nil {
		return nil, err
	}

	h, err := p.open(ctx, d)
	if err != nil {
		if delErr := p.descriptors.Delete(ctx, name); delErr != nil {
			p.logger.Warn("index_create_rollback_failed",
				slog.String("index", name),
				slog.String("error", delErr.Error()))
		}
		return nil, err
	}

	p.logger.Info("index_created",
		slog.String("index", name),
		slog.String("version", string(version)),
		slog.Any("keys", keys))
	return h, nil
}

// Open opens an existing index for exclusive use by this process.
func (p *Provider) Open(ctx context.Context, name string) (*Handle, error) {
	if err := p.checkOpen(); err != nil {
		return nil, err
	}
	d, err := p.descriptors.Get(ctx, name)
	if err != nil {
		return nil, err
	}
	return p.open(ctx, d)
}

func (p *Provider) open(_ context.Context, d *descriptor.Descriptor) (*Handle, error) {
	dir := p.cfg.IndexDir(d.Name)
	lock := NewFileLock(dir)
	acquired, err := lock.TryLock()
	if err != nil {
		return nil, fuserr.IOError("lock index directory", err).WithDetail("path", dir)
	}
	if !acquired {
		return nil, fuserr.Newf(fuserr.ErrCodeIndexLocked, "index %q is in use by another process", d.Name).
			WithDetail("lock", lock.Path()).
			WithSuggestion("wait for the other process to finish, then retry")
	}

	idx, err := p.build(d, dir)
	if err != nil {
		_ = lock.Unlock()
		p.logger.Error("index_open_refused",
			slog.String("index", d.Name),
			slog.String("version", string(d.Version)),
			slog.String("code", fuserr.GetCode(err)),
			slog.String("error", err.Error()))
		return nil, err
	}

	p.logger.Info("index_opened",
		slog.String("index", d.Name),
		slog.String("version", string(d.Version)),
		slog.Any("slots", fusion.SlotNames(idx.Slots())))
	return &Handle{Index: idx, descriptor: d, lock: lock}, nil
}

// build resolves the selector once and wires one backend per configured slot.
// On any failure every backend opened so far is closed.
func (p *Provider) build(d *descriptor.Descriptor, dir string) (*fusion.Index, error) {
	selector, err := p.registry.Lookup(d.Version)
	if err != nil {
		return nil, err
	}

	instances, err := fusion.NewInstanceSelectorFrom(p.slots,
		func(slot fusion.Slot) (store.IndexBackend, error) {
			return store.NewBackend(store.BackendKind(slot.String()), dir)
		},
		func(slot fusion.Slot, b store.IndexBackend) {
			if cerr := b.Close(); cerr != nil {
				p.logger.Warn("backend_close_failed",
					slog.String("slot", slot.String()),
					slog.String("error", cerr.Error()))
			}
		})
	if err != nil {
		if _, ok := fuserr.As(err); ok {
			return nil, err
		}
		return nil, fuserr.New(fuserr.ErrCodeIndexFailed, "open index backends", err)
	}

	idx, err := fusion.NewIndex(d.Name, d.PropertyKeys, selector, instances,
		fusion.WithLogger(p.logger))
	if err != nil {
		_ = instances.ForAll(func(_ fusion.Slot, b store.IndexBackend) error {
			return b.Close()
		})
		return nil, err
	}
	return idx, nil
}

// Drop deletes an index's descriptor and its on-disk backends. It fails with
// ERR_207_INDEX_LOCKED while the index is open anywhere.
func (p *Provider) Drop(ctx context.Context, name string) error {
	if err := p.checkOpen(); err != nil {
		return err
	}
	if _, err := p.descriptors.Get(ctx, name); err != nil {
		return err
	}

	dir := p.cfg.IndexDir(name)
	lock := NewFileLock(dir)
	acquired, err := lock.TryLock()
	if err != nil {
		return fuserr.IOError("lock index directory", err).WithDetail("path", dir)
	}
	if !acquired {
		return fuserr.Newf(fuserr.ErrCodeIndexLocked, "index %q is in use by another process", name).
			WithDetail("lock", lock.Path())
	}

	if err := p.descriptors.Delete(ctx, name); err != nil {
		_ = lock.Unlock()
		return err
	}
	_ = lock.Unlock()

	if err := os.RemoveAll(dir); err != nil {
		return fuserr.IOError("remove index directory", err).WithDetail("path", dir)
	}

	p.logger.Info("index_dropped", slog.String("index", name))
	return nil
}

// List returns every index descriptor, ordered by name.
func (p *Provider) List(ctx context.Context) ([]*descriptor.Descriptor, error) {
	if err := p.checkOpen(); err != nil {
		return nil, err
	}
	return p.descriptors.List(ctx)
}

// Description is the state of one index as reported by Describe.
type Description struct {
	Descriptor *descriptor.Descriptor
	SlotCounts map[fusion.Slot]int
	OnDisk     []store.BackendKind
}

// Describe opens the index briefly and reports its descriptor, the number of
// entries per backend and which backend files exist.
func (p *Provider) Describe(ctx context.Context, name string) (*Description, error) {
	h, err := p.Open(ctx, name)
	if err != nil {
		return nil, err
	}
	defer func() { _ = h.Close() }()

	counts, err := h.SlotCounts(ctx)
	if err != nil {
		return nil, err
	}
	return &Description{
		Descriptor: h.Descriptor(),
		SlotCounts: counts,
		OnDisk:     store.DetectBackends(p.cfg.IndexDir(name)),
	}, nil
}

// Close closes the descriptor store. Open handles stay usable until they are
// closed themselves. Safe to call multiple times.
func (p *Provider) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil
	}
	p.closed = true
	return p.descriptors.Close()
}

func (p *Provider) checkOpen() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrProviderClosed
	}
	return nil
}

// Handle is an open fusion index holding its directory lock.
type Handle struct {
	*fusion.Index

	descriptor *descriptor.Descriptor
	lock       *FileLock
	once       sync.Once
	err        error
}

// Descriptor returns a copy of the index descriptor.
func (h *Handle) Descriptor() *descriptor.Descriptor {
	return h.descriptor.Clone()
}

// Close closes the index and releases the directory lock.
// Safe to call multiple times.
func (h *Handle) Close() error {
	h.once.Do(func() {
		var errs []error
		if err := h.Index.Close(); err != nil {
			errs = append(errs, err)
		}
		if err := h.lock.Unlock(); err != nil {
			errs = append(errs, fmt.Errorf("index %s: %w", h.descriptor.Name, err))
		}
		h.err = errors.Join(errs...)
	})
	return h.err
}

var _ fusion.Configured = (*Provider)(nil)
