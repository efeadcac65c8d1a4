package store

import (
	"os"
	"path/filepath"

	fuserr "github.com/Aman-CERP/fusionidx/internal/errors"
)

// BackendKind names a backend implementation. Kinds match the names of the
// slots they serve.
type BackendKind string

const (
	// BackendGeneric is the SQLite ordered backend.
	BackendGeneric BackendKind = "generic"

	// BackendText is the bleve keyword backend.
	BackendText BackendKind = "text"
)

// BackendKinds returns all known kinds.
func BackendKinds() []BackendKind {
	return []BackendKind{BackendGeneric, BackendText}
}

// NewBackend creates the backend of the given kind inside dir.
//
// Files are named after the kind: <dir>/generic.db for the generic backend,
// <dir>/text.bleve for the text backend. If dir is empty the backend is
// in-memory.
func NewBackend(kind BackendKind, dir string) (IndexBackend, error) {
	switch kind {
	case BackendGeneric:
		return NewSQLiteGenericIndex(BackendPath(kind, dir))
	case BackendText:
		return NewBleveTextIndex(BackendPath(kind, dir))
	default:
		return nil, fuserr.Newf(fuserr.ErrCodeUnknownBackend, "unknown backend %q (valid options: generic, text)", kind).
			WithDetail("backend", string(kind))
	}
}

// BackendPath returns the on-disk location of a backend inside dir, or ""
// when dir is empty.
func BackendPath(kind BackendKind, dir string) string {
	if dir == "" {
		return ""
	}
	switch kind {
	case BackendText:
		return filepath.Join(dir, "text.bleve")
	default:
		return filepath.Join(dir, "generic.db")
	}
}

// DetectBackends reports which backends have data in dir, in kind order.
func DetectBackends(dir string) []BackendKind {
	var found []BackendKind
	if fileExists(BackendPath(BackendGeneric, dir)) {
		found = append(found, BackendGeneric)
	}
	if dirExists(BackendPath(BackendText, dir)) {
		found = append(found, BackendText)
	}
	return found
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

func dirExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
