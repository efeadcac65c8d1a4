package store

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/keyword"
	"github.com/blevesearch/bleve/v2/mapping"
	"github.com/blevesearch/bleve/v2/search/query"

	fuserr "github.com/Aman-CERP/fusionidx/internal/errors"
)

const (
	// textField holds the indexed string, analyzed as a single keyword term.
	textField = "value"

	// termPrefix keeps the empty string indexable as a non-empty term.
	termPrefix = "v:"

	// docIDSep separates entity ID and value in a document ID.
	docIDSep = "\x1f"
)

// BleveTextIndex is the backend for the text slot. Each entry is a bleve
// document whose ID is "<entity>\x1f<value>", so an entity may hold several
// entries and re-adding an entry is idempotent.
type BleveTextIndex struct {
	mu     sync.RWMutex
	index  bleve.Index
	path   string
	closed bool
}

var _ IndexBackend = (*BleveTextIndex)(nil)

// textDocument is the document structure stored in bleve.
type textDocument struct {
	Value string `json:"value"`
}

// validateTextIntegrity checks a bleve index directory before opening it.
// Returns nil if the directory is absent or looks complete.
func validateTextIntegrity(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}

	metaPath := filepath.Join(path, "index_meta.json")
	info, err := os.Stat(metaPath)
	if os.IsNotExist(err) {
		return fmt.Errorf("index_meta.json missing (corrupted index)")
	}
	if err != nil {
		return fmt.Errorf("cannot stat index_meta.json: %w", err)
	}
	if info.Size() == 0 {
		return fmt.Errorf("index_meta.json is empty (corrupted)")
	}

	data, err := os.ReadFile(metaPath)
	if err != nil {
		return fmt.Errorf("cannot read index_meta.json: %w", err)
	}
	var meta map[string]any
	if err := json.Unmarshal(data, &meta); err != nil {
		return fmt.Errorf("index_meta.json is corrupt: %w", err)
	}
	return nil
}

// isCorruptionError reports whether a bleve open error indicates corruption.
func isCorruptionError(err error) bool {
	if err == nil {
		return false
	}
	errStr := err.Error()
	return strings.Contains(errStr, "unexpected end of JSON") ||
		strings.Contains(errStr, "error parsing mapping JSON") ||
		strings.Contains(errStr, "failed to load segment") ||
		strings.Contains(errStr, "error opening bolt") ||
		err == bleve.ErrorIndexMetaCorrupt
}

// NewBleveTextIndex opens or creates the text backend at path.
// An empty path creates an in-memory index.
func NewBleveTextIndex(path string) (*BleveTextIndex, error) {
	indexMapping := createTextMapping()

	var (
		idx bleve.Index
		err error
	)
	if path == "" {
		idx, err = bleve.NewMemOnly(indexMapping)
	} else {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fuserr.IOError(fmt.Sprintf("failed to create directory %s", dir), err)
		}

		if validErr := validateTextIntegrity(path); validErr != nil {
			slog.Warn("text_index_corrupted",
				slog.String("path", path),
				slog.String("error", validErr.Error()))

			if removeErr := os.RemoveAll(path); removeErr != nil {
				return nil, fuserr.New(fuserr.ErrCodeCorruptIndex,
					fmt.Sprintf("text index corrupted at %s and cannot remove (original error: %v)", path, validErr),
					removeErr)
			}
			slog.Info("text_index_cleared",
				slog.String("path", path),
				slog.String("reason", "corruption detected, entries must be re-applied"))
		}

		idx, err = bleve.Open(path)
		if err == bleve.ErrorIndexPathDoesNotExist {
			idx, err = bleve.New(path, indexMapping)
		} else if err != nil && isCorruptionError(err) {
			slog.Warn("text_index_open_failed",
				slog.String("path", path),
				slog.String("error", err.Error()))

			if removeErr := os.RemoveAll(path); removeErr != nil {
				return nil, fuserr.New(fuserr.ErrCodeCorruptIndex,
					fmt.Sprintf("text index corrupted, cannot clear (original: %v)", err), removeErr)
			}
			slog.Info("text_index_cleared",
				slog.String("path", path),
				slog.String("reason", "open failed with corruption, entries must be re-applied"))

			idx, err = bleve.New(path, indexMapping)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create/open text index: %w", err)
	}

	return &BleveTextIndex{index: idx, path: path}, nil
}

// createTextMapping indexes only the value field, as one untokenized term.
func createTextMapping() *mapping.IndexMappingImpl {
	fm := mapping.NewTextFieldMapping()
	fm.Analyzer = keyword.Name
	fm.Store = false
	fm.IncludeInAll = false
	fm.IncludeTermVectors = false

	docMapping := mapping.NewDocumentStaticMapping()
	docMapping.AddFieldMappingsAt(textField, fm)

	indexMapping := bleve.NewIndexMapping()
	indexMapping.DefaultMapping = docMapping
	indexMapping.DefaultAnalyzer = keyword.Name
	return indexMapping
}

func textDocID(entityID int64, s string) string {
	return strconv.FormatInt(entityID, 10) + docIDSep + s
}

func entityFromDocID(id string) (int64, error) {
	head, _, ok := strings.Cut(id, docIDSep)
	if !ok {
		return 0, fmt.Errorf("malformed document id %q", id)
	}
	return strconv.ParseInt(head, 10, 64)
}

// textOf returns the single string of a text entry. Anything else reaching
// this backend is a routing bug.
func textOf(values []any) (string, error) {
	if len(values) == 1 {
		if s, ok := values[0].(string); ok {
			return s, nil
		}
	}
	return "", fuserr.Newf(fuserr.ErrCodeInvariant, "text index received non-text tuple %v", values)
}

// Add implements IndexBackend.
func (b *BleveTextIndex) Add(ctx context.Context, entries []*Entry) error {
	if len(entries) == 0 {
		return nil
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return ErrClosed
	}

	batch := b.index.NewBatch()
	for _, e := range entries {
		s, err := textOf(e.Values)
		if err != nil {
			return err
		}
		if err := batch.Index(textDocID(e.EntityID, s), textDocument{Value: termPrefix + s}); err != nil {
			return fuserr.New(fuserr.ErrCodeIndexFailed,
				fmt.Sprintf("failed to index entry for entity %d", e.EntityID), err)
		}
	}

	if err := b.index.Batch(batch); err != nil {
		return fuserr.New(fuserr.ErrCodeIndexFailed, "failed to execute batch", err)
	}
	return nil
}

// Remove implements IndexBackend.
func (b *BleveTextIndex) Remove(ctx context.Context, entries []*Entry) error {
	if len(entries) == 0 {
		return nil
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return ErrClosed
	}

	batch := b.index.NewBatch()
	for _, e := range entries {
		s, err := textOf(e.Values)
		if err != nil {
			return err
		}
		batch.Delete(textDocID(e.EntityID, s))
	}

	if err := b.index.Batch(batch); err != nil {
		return fuserr.New(fuserr.ErrCodeIndexFailed, "failed to delete entries", err)
	}
	return nil
}

// Query implements IndexBackend.
func (b *BleveTextIndex) Query(ctx context.Context, q *Query) ([]int64, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return nil, ErrClosed
	}

	bq, err := b.buildQuery(q)
	if err != nil {
		return nil, err
	}
	if bq == nil {
		return []int64{}, nil
	}

	docCount, err := b.index.DocCount()
	if err != nil {
		return nil, fuserr.New(fuserr.ErrCodeQueryFailed, "failed to count documents", err)
	}
	if docCount == 0 {
		return []int64{}, nil
	}

	req := bleve.NewSearchRequest(bq)
	req.Size = int(docCount)
	req.Fields = []string{}

	result, err := b.index.SearchInContext(ctx, req)
	if err != nil {
		return nil, fuserr.New(fuserr.ErrCodeQueryFailed, "text index search failed", err)
	}

	seen := make(map[int64]struct{}, len(result.Hits))
	ids := make([]int64, 0, len(result.Hits))
	for _, hit := range result.Hits {
		id, err := entityFromDocID(hit.ID)
		if err != nil {
			return nil, fuserr.New(fuserr.ErrCodeCorruptIndex, "text index holds a foreign document", err)
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

// buildQuery translates q into a bleve query. A nil query with a nil error
// means nothing can match.
func (b *BleveTextIndex) buildQuery(q *Query) (query.Query, error) {
	switch q.Kind {
	case QueryExists:
		return bleve.NewMatchAllQuery(), nil

	case QueryExact:
		s, err := textOf(q.Values)
		if err != nil {
			return nil, err
		}
		return termQuery(s), nil

	case QueryPrefix:
		pq := bleve.NewPrefixQuery(termPrefix + q.Text)
		pq.SetField(textField)
		return pq, nil

	case QueryContains:
		return b.containsQuery(q.Text)

	case QueryRange:
		lower, upper := "", ""
		if q.Lower != nil {
			s, ok := q.Lower.(string)
			if !ok {
				return nil, fuserr.Newf(fuserr.ErrCodeInvariant, "text range with %T lower bound", q.Lower)
			}
			lower = termPrefix + s
		}
		if q.Upper != nil {
			s, ok := q.Upper.(string)
			if !ok {
				return nil, fuserr.Newf(fuserr.ErrCodeInvariant, "text range with %T upper bound", q.Upper)
			}
			upper = termPrefix + s
		}
		incLower, incUpper := q.IncludeLower, q.IncludeUpper
		if q.Lower == nil {
			lower, incLower = termPrefix, true
		}
		rq := bleve.NewTermRangeInclusiveQuery(lower, upper, &incLower, &incUpper)
		rq.SetField(textField)
		return rq, nil

	default:
		return nil, fuserr.Newf(fuserr.ErrCodeInvalidQuery, "unsupported query kind %s", q.Kind)
	}
}

func termQuery(s string) query.Query {
	tq := bleve.NewTermQuery(termPrefix + s)
	tq.SetField(textField)
	return tq
}

// containsQuery scans the term dictionary for values containing sub and
// returns a disjunction of their exact terms. Wildcard and regexp queries
// cannot match arbitrary bytes literally, so substring matching is done here.
func (b *BleveTextIndex) containsQuery(sub string) (query.Query, error) {
	dict, err := b.index.FieldDict(textField)
	if err != nil {
		return nil, fuserr.New(fuserr.ErrCodeQueryFailed, "failed to open term dictionary", err)
	}
	defer func() { _ = dict.Close() }()

	var terms []query.Query
	for {
		entry, err := dict.Next()
		if err != nil {
			return nil, fuserr.New(fuserr.ErrCodeQueryFailed, "failed to read term dictionary", err)
		}
		if entry == nil {
			break
		}
		s := strings.TrimPrefix(entry.Term, termPrefix)
		if strings.Contains(s, sub) {
			terms = append(terms, termQuery(s))
		}
	}
	if len(terms) == 0 {
		return nil, nil
	}
	return bleve.NewDisjunctionQuery(terms...), nil
}

// Count implements IndexBackend.
func (b *BleveTextIndex) Count(ctx context.Context) (int, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return 0, ErrClosed
	}

	n, err := b.index.DocCount()
	if err != nil {
		return 0, fmt.Errorf("failed to count documents: %w", err)
	}
	return int(n), nil
}

// Close implements IndexBackend.
func (b *BleveTextIndex) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil
	}

	b.closed = true
	if b.index != nil {
		return b.index.Close()
	}
	return nil
}
