// Package state persists what survives between index runs: the content
// hash snapshot, the latest run summary, the append-only run history, the
// cross-process run lock, and a Prometheus textfile with run metrics.
//
// Each file lives in the library's metadata directory (default
// <library>/.index). All of them are read once at run start and written
// once at run end; there are no concurrent writers inside a process.
package state

import "path/filepath"

const (
	hashFile    = "file_hashes.json"
	statsFile   = "stats.json"
	historyFile = "index_log.jsonl"
	lockFile    = "indexer.lock"
	metricsFile = "metrics.prom"
)

// Paths resolves the state files inside one metadata directory.
type Paths struct {
	Dir string
}

// NewPaths returns the state layout rooted at dir.
func NewPaths(dir string) Paths {
	return Paths{Dir: dir}
}

// Hashes is the path → content hash snapshot.
func (p Paths) Hashes() string { return filepath.Join(p.Dir, hashFile) }

// Stats is the latest-run summary.
func (p Paths) Stats() string { return filepath.Join(p.Dir, statsFile) }

// History is the JSONL run history.
func (p Paths) History() string { return filepath.Join(p.Dir, historyFile) }

// Lock is the run lock file.
func (p Paths) Lock() string { return filepath.Join(p.Dir, lockFile) }

// Metrics is the Prometheus textfile.
func (p Paths) Metrics() string { return filepath.Join(p.Dir, metricsFile) }
