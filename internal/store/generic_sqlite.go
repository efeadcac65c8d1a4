package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	_ "modernc.org/sqlite" // Pure Go SQLite driver (no CGO)

	fuserr "github.com/Aman-CERP/fusionidx/internal/errors"
	"github.com/Aman-CERP/fusionidx/internal/value"
)

// sortClass partitions single values into groups that have a total order
// among themselves. Range queries never cross classes.
type sortClass int

const (
	classNone sortClass = iota // composite or unordered (geometry, arrays)
	classNumber
	classText
	classBoolean
	classTime
	classDuration
)

// SQLiteGenericIndex is the ordered backend for the generic slot. It accepts
// tuples of any arity and category; single values of an ordered class also
// get a sortable column so range queries can use an index.
type SQLiteGenericIndex struct {
	mu     sync.RWMutex
	db     *sql.DB
	path   string
	closed bool
}

var _ IndexBackend = (*SQLiteGenericIndex)(nil)

// validateGenericIntegrity checks an existing database before opening it.
// Returns nil if the file is absent or valid.
func validateGenericIntegrity(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}

	db, err := sql.Open("sqlite", path+"?mode=ro")
	if err != nil {
		return fmt.Errorf("cannot open for validation: %w", err)
	}
	defer db.Close()

	var result string
	if err := db.QueryRow("PRAGMA integrity_check").Scan(&result); err != nil {
		return fmt.Errorf("integrity check failed: %w", err)
	}
	if result != "ok" {
		return fmt.Errorf("database corrupted: %s", result)
	}

	var count int
	err = db.QueryRow(`SELECT COUNT(*) FROM sqlite_master
                       WHERE type='table' AND name='entries'`).Scan(&count)
	if err != nil {
		return fmt.Errorf("cannot query schema: %w", err)
	}
	if count == 0 {
		return fmt.Errorf("table 'entries' missing")
	}
	return nil
}

// NewSQLiteGenericIndex opens or creates the generic backend at path.
// An empty path creates an in-memory index.
func NewSQLiteGenericIndex(path string) (*SQLiteGenericIndex, error) {
	var dsn string
	if path == "" {
		dsn = ":memory:"
	} else {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fuserr.IOError(fmt.Sprintf("failed to create directory %s", dir), err)
		}

		if validErr := validateGenericIntegrity(path); validErr != nil {
			slog.Warn("generic_index_corrupted",
				slog.String("path", path),
				slog.String("error", validErr.Error()))

			if removeErr := os.Remove(path); removeErr != nil && !os.IsNotExist(removeErr) {
				return nil, fuserr.New(fuserr.ErrCodeCorruptIndex,
					fmt.Sprintf("generic index corrupted at %s and cannot remove (original error: %v)", path, validErr),
					removeErr)
			}
			_ = os.Remove(path + "-wal")
			_ = os.Remove(path + "-shm")

			slog.Info("generic_index_cleared",
				slog.String("path", path),
				slog.String("reason", "corruption detected, entries must be re-applied"))
		}

		dsn = path + "?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Single writer; an in-memory database also only exists on one connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	// modernc.org/sqlite ignores most DSN parameters, so set them explicitly.
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA cache_size = -16384",
		"PRAGMA temp_store = MEMORY",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to set pragma: %w", err)
		}
	}

	idx := &SQLiteGenericIndex{db: db, path: path}
	if err := idx.initSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return idx, nil
}

func (s *SQLiteGenericIndex) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER PRIMARY KEY
	);

	-- One row per (tuple, entity). tuple_key is the msgpack encoding of the
	-- normalized tuple; the sort columns are only set for single values.
	-- Times are stored as Unix seconds in ts plus nanoseconds in tsn, which
	-- covers every representable time; durations use ts alone.
	CREATE TABLE IF NOT EXISTS entries (
		tuple_key BLOB    NOT NULL,
		entity_id INTEGER NOT NULL,
		arity     INTEGER NOT NULL,
		class     INTEGER NOT NULL,
		num       REAL,
		str       TEXT,
		ts        INTEGER,
		tsn       INTEGER,
		PRIMARY KEY (tuple_key, entity_id)
	) WITHOUT ROWID;

	CREATE INDEX IF NOT EXISTS idx_entries_num ON entries(class, num);
	CREATE INDEX IF NOT EXISTS idx_entries_str ON entries(class, str);
	CREATE INDEX IF NOT EXISTS idx_entries_ts ON entries(class, ts, tsn);
	CREATE INDEX IF NOT EXISTS idx_entries_entity ON entries(entity_id);

	INSERT OR IGNORE INTO schema_version (version) VALUES (1);
	`
	_, err := s.db.Exec(schema)
	return err
}

// sortKey holds the sortable columns of a single value. At most one of
// num, str and ts is set; tsn accompanies ts.
type sortKey struct {
	class sortClass
	num   sql.NullFloat64
	str   sql.NullString
	ts    sql.NullInt64
	tsn   sql.NullInt64
}

// row is the column form of one entry.
type row struct {
	sortKey
	key   []byte
	arity int
}

func toRow(e *Entry) (*row, error) {
	key, err := EncodeTupleKey(e.Values)
	if err != nil {
		return nil, fuserr.ValidationError(fmt.Sprintf("entity %d", e.EntityID), err)
	}
	r := &row{key: key, arity: len(e.Values)}
	if len(e.Values) == 1 {
		r.sortKey = sortColumns(e.Values[0])
	}
	return r, nil
}

// sortColumns returns the sort class and sortable columns for a single value.
func sortColumns(v value.Value) sortKey {
	var k sortKey
	switch v := v.(type) {
	case string:
		k.class = classText
		k.str = sql.NullString{String: v, Valid: true}
		return k
	case bool:
		f := 0.0
		if v {
			f = 1
		}
		k.class = classBoolean
		k.num = sql.NullFloat64{Float64: f, Valid: true}
		return k
	case time.Time:
		k.class = classTime
		k.ts = sql.NullInt64{Int64: v.Unix(), Valid: true}
		k.tsn = sql.NullInt64{Int64: int64(v.Nanosecond()), Valid: true}
		return k
	case time.Duration:
		k.class = classDuration
		k.ts = sql.NullInt64{Int64: int64(v), Valid: true}
		k.tsn = sql.NullInt64{Valid: true}
		return k
	}
	if f, ok := value.AsFloat(v); ok {
		k.class = classNumber
		k.num = sql.NullFloat64{Float64: f, Valid: !math.IsNaN(f)}
		return k
	}
	k.class = classNone
	return k
}

// Add implements IndexBackend. Adding an existing entry is a no-op.
func (s *SQLiteGenericIndex) Add(ctx context.Context, entries []*Entry) error {
	if len(entries) == 0 {
		return nil
	}

	rows := make([]*row, len(entries))
	for i, e := range entries {
		r, err := toRow(e)
		if err != nil {
			return err
		}
		rows[i] = r
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT OR IGNORE INTO entries(tuple_key, entity_id, arity, class, num, str, ts, tsn)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert statement: %w", err)
	}
	defer stmt.Close()

	for i, r := range rows {
		if _, err := stmt.ExecContext(ctx, r.key, entries[i].EntityID, r.arity, int(r.class), r.num, r.str, r.ts, r.tsn); err != nil {
			return fuserr.New(fuserr.ErrCodeIndexFailed,
				fmt.Sprintf("failed to add entry for entity %d", entries[i].EntityID), err)
		}
	}
	return tx.Commit()
}

// Remove implements IndexBackend.
func (s *SQLiteGenericIndex) Remove(ctx context.Context, entries []*Entry) error {
	if len(entries) == 0 {
		return nil
	}

	keys := make([][]byte, len(entries))
	for i, e := range entries {
		key, err := EncodeTupleKey(e.Values)
		if err != nil {
			return fuserr.ValidationError(fmt.Sprintf("entity %d", e.EntityID), err)
		}
		keys[i] = key
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx,
		`DELETE FROM entries WHERE tuple_key = ? AND entity_id = ?`)
	if err != nil {
		return fmt.Errorf("failed to prepare delete statement: %w", err)
	}
	defer stmt.Close()

	for i, key := range keys {
		if _, err := stmt.ExecContext(ctx, key, entries[i].EntityID); err != nil {
			return fuserr.New(fuserr.ErrCodeIndexFailed,
				fmt.Sprintf("failed to remove entry for entity %d", entries[i].EntityID), err)
		}
	}
	return tx.Commit()
}

// Query implements IndexBackend.
func (s *SQLiteGenericIndex) Query(ctx context.Context, q *Query) ([]int64, error) {
	where, args, err := s.buildWhere(q)
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrClosed
	}

	stmt := "SELECT DISTINCT entity_id FROM entries"
	if where != "" {
		stmt += " WHERE " + where
	}
	stmt += " ORDER BY entity_id"

	rows, err := s.db.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, fuserr.New(fuserr.ErrCodeQueryFailed, "generic index query failed", err)
	}
	defer rows.Close()

	ids := []int64{}
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan entity id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *SQLiteGenericIndex) buildWhere(q *Query) (string, []any, error) {
	switch q.Kind {
	case QueryExists:
		return "", nil, nil

	case QueryExact:
		key, err := EncodeTupleKey(q.Values)
		if err != nil {
			return "", nil, fuserr.New(fuserr.ErrCodeInvalidQuery, "exact query", err)
		}
		return "tuple_key = ?", []any{key}, nil

	case QueryPrefix:
		n := utf8.RuneCountInString(q.Text)
		return "arity = 1 AND class = ? AND substr(str, 1, ?) = ?",
			[]any{int(classText), n, q.Text}, nil

	case QueryContains:
		return "arity = 1 AND class = ? AND instr(str, ?) > 0",
			[]any{int(classText), q.Text}, nil

	case QueryRange:
		return rangeWhere(q)

	default:
		return "", nil, fuserr.Newf(fuserr.ErrCodeInvalidQuery, "unsupported query kind %s", q.Kind)
	}
}

func rangeWhere(q *Query) (string, []any, error) {
	class := sortColumns(q.RangeBound()).class
	var column string
	switch class {
	case classNumber, classBoolean:
		column = "num"
	case classText:
		column = "str"
	case classTime, classDuration:
		column = "ts"
	default:
		return "", nil, fuserr.Newf(fuserr.ErrCodeInvalidQuery,
			"range queries are not supported for %T values", q.RangeBound())
	}

	conds := []string{"arity = 1", "class = ?"}
	args := []any{int(class)}
	bound := func(v value.Value, inclusive bool, lt, le string) error {
		if v == nil {
			return nil
		}
		k := sortColumns(v)
		if k.class != class {
			return fuserr.Newf(fuserr.ErrCodeInvalidQuery, "range bounds %T and %T are not comparable", q.Lower, q.Upper)
		}
		op := lt
		if inclusive {
			op = le
		}
		switch column {
		case "num":
			conds = append(conds, "num "+op+" ?")
			args = append(args, k.num)
		case "str":
			conds = append(conds, "str "+op+" ?")
			args = append(args, k.str)
		default:
			// (ts, tsn) compare lexicographically
			conds = append(conds, "(ts "+lt+" ? OR (ts = ? AND tsn "+op+" ?))")
			args = append(args, k.ts, k.ts, k.tsn)
		}
		return nil
	}
	if err := bound(q.Lower, q.IncludeLower, ">", ">="); err != nil {
		return "", nil, err
	}
	if err := bound(q.Upper, q.IncludeUpper, "<", "<="); err != nil {
		return "", nil, err
	}
	return strings.Join(conds, " AND "), args, nil
}

// Count implements IndexBackend.
func (s *SQLiteGenericIndex) Count(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return 0, ErrClosed
	}

	var count int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM entries`).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count entries: %w", err)
	}
	return count, nil
}

// Close implements IndexBackend. Forces a WAL checkpoint before closing.
func (s *SQLiteGenericIndex) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}

	s.closed = true
	if s.db != nil {
		_, _ = s.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)")
		return s.db.Close()
	}
	return nil
}
