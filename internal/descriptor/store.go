package descriptor

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	_ "modernc.org/sqlite" // Pure Go SQLite driver (no CGO)

	fuserr "github.com/Aman-CERP/fusionidx/internal/errors"
	"github.com/Aman-CERP/fusionidx/internal/fusion"
)

// DefaultCacheSize is the number of descriptors kept in memory.
const DefaultCacheSize = 128

// Store persists descriptors in SQLite and caches reads in an LRU.
// Store is safe for concurrent use.
type Store struct {
	mu     sync.RWMutex
	db     *sql.DB
	cache  *lru.Cache[string, *Descriptor]
	closed bool
}

// NewStore opens the descriptor database at path, creating it if needed.
// An empty path creates an in-memory store.
func NewStore(path string, cacheSize int) (*Store, error) {
	dsn := ":memory:"
	if path != "" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fuserr.IOError(fmt.Sprintf("failed to create directory for %s", path), err)
		}
		dsn = path + "?_journal_mode=WAL&_busy_timeout=5000"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open descriptor database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	for _, pragma := range []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to set pragma: %w", err)
		}
	}

	const schema = `
	CREATE TABLE IF NOT EXISTS descriptors (
		name          TEXT PRIMARY KEY,
		version       TEXT    NOT NULL,
		property_keys TEXT    NOT NULL,
		slots         TEXT    NOT NULL,
		created_at    INTEGER NOT NULL
	);`
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize descriptor schema: %w", err)
	}

	if cacheSize <= 0 {
		cacheSize = DefaultCacheSize
	}
	cache, _ := lru.New[string, *Descriptor](cacheSize)

	return &Store{db: db, cache: cache}, nil
}

// Save persists a new descriptor. A descriptor with the same name fails
// with ERR_407_INDEX_EXISTS.
func (s *Store) Save(ctx context.Context, d *Descriptor) error {
	if err := d.Validate(); err != nil {
		return err
	}

	keys, err := json.Marshal(d.PropertyKeys)
	if err != nil {
		return fmt.Errorf("encode property keys: %w", err)
	}
	slots, err := json.Marshal(fusion.SlotNames(d.Slots))
	if err != nil {
		return fmt.Errorf("encode slots: %w", err)
	}
	created := d.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return fmt.Errorf("descriptor store is closed")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var n int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM descriptors WHERE name = ?`, d.Name).Scan(&n); err != nil {
		return fmt.Errorf("failed to check descriptor %s: %w", d.Name, err)
	}
	if n > 0 {
		return fuserr.New(fuserr.ErrCodeIndexExists, fmt.Sprintf("index %s already exists", d.Name), nil).
			WithDetail("index", d.Name)
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO descriptors(name, version, property_keys, slots, created_at) VALUES (?, ?, ?, ?, ?)`,
		d.Name, string(d.Version), string(keys), string(slots), created.UnixNano())
	if err != nil {
		return fmt.Errorf("failed to save descriptor %s: %w", d.Name, err)
	}
	if err := tx.Commit(); err != nil {
		return err
	}

	s.cache.Remove(d.Name)
	return nil
}

// Get returns the descriptor for name, or ERR_408_INDEX_NOT_FOUND.
// The returned descriptor is a copy the caller may modify.
func (s *Store) Get(ctx context.Context, name string) (*Descriptor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, fmt.Errorf("descriptor store is closed")
	}

	if d, ok := s.cache.Get(name); ok {
		return d.Clone(), nil
	}

	row := s.db.QueryRowContext(ctx,
		`SELECT name, version, property_keys, slots, created_at FROM descriptors WHERE name = ?`, name)
	d, err := scanDescriptor(row)
	if err == sql.ErrNoRows {
		return nil, notFound(name)
	}
	if err != nil {
		return nil, err
	}

	s.cache.Add(name, d)
	return d.Clone(), nil
}

// List returns all descriptors ordered by name.
func (s *Store) List(ctx context.Context) ([]*Descriptor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, fmt.Errorf("descriptor store is closed")
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT name, version, property_keys, slots, created_at FROM descriptors ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("failed to list descriptors: %w", err)
	}
	defer rows.Close()

	out := []*Descriptor{}
	for rows.Next() {
		d, err := scanDescriptor(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// Delete removes the descriptor for name, or fails with ERR_408_INDEX_NOT_FOUND.
func (s *Store) Delete(ctx context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return fmt.Errorf("descriptor store is closed")
	}

	res, err := s.db.ExecContext(ctx, `DELETE FROM descriptors WHERE name = ?`, name)
	if err != nil {
		return fmt.Errorf("failed to delete descriptor %s: %w", name, err)
	}
	s.cache.Remove(name)

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to delete descriptor %s: %w", name, err)
	}
	if n == 0 {
		return notFound(name)
	}
	return nil
}

// Close closes the database. Safe to call multiple times.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	s.cache.Purge()
	return s.db.Close()
}

func notFound(name string) error {
	return fuserr.New(fuserr.ErrCodeIndexNotFound, fmt.Sprintf("index %s does not exist", name), nil).
		WithDetail("index", name).
		WithSuggestion("run 'fusionidx list' to see existing indexes")
}

type scanner interface {
	Scan(dest ...any) error
}

func scanDescriptor(sc scanner) (*Descriptor, error) {
	var (
		d         Descriptor
		version   string
		keys      string
		slots     string
		createdAt int64
	)
	if err := sc.Scan(&d.Name, &version, &keys, &slots, &createdAt); err != nil {
		return nil, err
	}
	d.Version = fusion.Version(version)
	d.CreatedAt = time.Unix(0, createdAt)

	if err := json.Unmarshal([]byte(keys), &d.PropertyKeys); err != nil {
		return nil, fuserr.New(fuserr.ErrCodeCorruptIndex,
			fmt.Sprintf("descriptor %s has unreadable property keys", d.Name), err)
	}
	var names []string
	if err := json.Unmarshal([]byte(slots), &names); err != nil {
		return nil, fuserr.New(fuserr.ErrCodeCorruptIndex,
			fmt.Sprintf("descriptor %s has unreadable slots", d.Name), err)
	}
	for _, n := range names {
		slot, err := fusion.ParseSlot(n)
		if err != nil {
			return nil, fuserr.New(fuserr.ErrCodeCorruptIndex,
				fmt.Sprintf("descriptor %s names an unknown slot", d.Name), err)
		}
		d.Slots = append(d.Slots, slot)
	}
	return &d, nil
}
