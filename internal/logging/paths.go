package logging

import (
	"os"
	"path/filepath"
)

// DefaultLogDir returns the default log directory (~/ai-engine/logs/).
// Falls back to the temp directory if the home directory is unavailable.
func DefaultLogDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), "ai-engine", "logs")
	}
	return filepath.Join(home, "ai-engine", "logs")
}

// DefaultLogPath returns the default indexer log path.
func DefaultLogPath() string {
	return filepath.Join(DefaultLogDir(), "indexer.log")
}

// WatchLogPath returns the log path used by the watch service.
func WatchLogPath() string {
	return filepath.Join(DefaultLogDir(), "watcher.log")
}
