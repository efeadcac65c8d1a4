package logging

import (
	"os"
	"path/filepath"
)

// DefaultLogDir returns ~/.fusionidx/logs, or a temp directory fallback
// when the home directory is unavailable.
func DefaultLogDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".fusionidx", "logs")
	}
	return filepath.Join(home, ".fusionidx", "logs")
}

// DefaultLogPath returns the default log file.
func DefaultLogPath() string {
	return filepath.Join(DefaultLogDir(), "fusionidx.log")
}
