package watcher

import (
	"log/slog"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/satnambhatt/ai-engine/internal/config"
)

// Operation represents a file system operation type.
type Operation int

const (
	// OpCreate indicates a new file or directory was created.
	OpCreate Operation = iota
	// OpModify indicates an existing file was modified.
	OpModify
	// OpDelete indicates a file or directory was deleted.
	OpDelete
	// OpRename indicates a file or directory was renamed away.
	OpRename
)

// String returns a human-readable representation of the operation.
func (op Operation) String() string {
	switch op {
	case OpCreate:
		return "CREATE"
	case OpModify:
		return "MODIFY"
	case OpDelete:
		return "DELETE"
	case OpRename:
		return "RENAME"
	default:
		return "UNKNOWN"
	}
}

// FileEvent is one change under the library root.
type FileEvent struct {
	// Path is library-relative and slash separated.
	Path      string
	Operation Operation
	IsDir     bool
	Timestamp time.Time
}

// Options configures a LibraryWatcher.
type Options struct {
	// Root is the library root.
	Root string
	// IndexPaths are the top-level directories below Root that are indexed.
	IndexPaths []string

	// Extensions and Filenames select the files whose changes matter.
	Extensions []string
	Filenames  []string
	// SkipDirectories are directory names never descended into.
	SkipDirectories []string

	// Debounce is the quiet period before a batch is emitted.
	// Default: 30s
	Debounce time.Duration

	// PollInterval is the scan interval of the polling fallback.
	// Default: 5s
	PollInterval time.Duration

	// EventBufferSize is the capacity of the batch channel.
	// Default: 16
	EventBufferSize int

	// ForcePolling skips fsnotify entirely.
	ForcePolling bool

	Logger *slog.Logger
}

// DefaultOptions returns the default timing options.
func DefaultOptions() Options {
	return Options{
		Debounce:        30 * time.Second,
		PollInterval:    5 * time.Second,
		EventBufferSize: 16,
	}
}

// WithDefaults returns options with defaults applied for zero values.
func (o Options) WithDefaults() Options {
	defaults := DefaultOptions()
	if o.Debounce <= 0 {
		o.Debounce = defaults.Debounce
	}
	if o.PollInterval <= 0 {
		o.PollInterval = defaults.PollInterval
	}
	if o.EventBufferSize <= 0 {
		o.EventBufferSize = defaults.EventBufferSize
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	return o
}

// OptionsFromConfig watches what discovery would index.
func OptionsFromConfig(cfg *config.Config) Options {
	d := cfg.Discovery
	exts := make([]string, 0, len(d.CodeExtensions)+len(d.ConfigExtensions))
	exts = append(exts, d.CodeExtensions...)
	exts = append(exts, d.ConfigExtensions...)

	return Options{
		Root:            cfg.Library.Root,
		IndexPaths:      cfg.Library.IndexPaths,
		Extensions:      exts,
		Filenames:       d.ConfigFilenames,
		SkipDirectories: d.SkipDirectories,
		Debounce:        cfg.Watch.Debounce.Std(),
	}
}

// filter decides which paths are watched and which events matter.
type filter struct {
	indexPaths map[string]bool
	exts       map[string]bool
	names      map[string]bool
	skipDirs   map[string]bool
}

func newFilter(o Options) *filter {
	f := &filter{
		indexPaths: make(map[string]bool, len(o.IndexPaths)),
		exts:       make(map[string]bool, len(o.Extensions)),
		names:      make(map[string]bool, len(o.Filenames)),
		skipDirs:   make(map[string]bool, len(o.SkipDirectories)),
	}
	for _, p := range o.IndexPaths {
		f.indexPaths[strings.Trim(filepath.ToSlash(p), "/")] = true
	}
	for _, e := range o.Extensions {
		f.exts[strings.ToLower(e)] = true
	}
	for _, n := range o.Filenames {
		f.names[n] = true
	}
	for _, d := range o.SkipDirectories {
		f.skipDirs[d] = true
	}
	return f
}

// inIndexPath reports whether rel lies under a configured index path and
// below no skipped directory. rel may name the index path itself.
func (f *filter) inIndexPath(rel string) bool {
	if rel == "" || rel == "." {
		return false
	}
	for p := range f.indexPaths {
		if rel == p || strings.HasPrefix(rel, p+"/") {
			rest := strings.TrimPrefix(strings.TrimPrefix(rel, p), "/")
			return !f.hasSkippedDir(rest)
		}
	}
	return false
}

func (f *filter) hasSkippedDir(rest string) bool {
	if rest == "" {
		return false
	}
	for _, seg := range strings.Split(rest, "/") {
		if f.skipDirs[seg] {
			return true
		}
	}
	return false
}

// watchDir reports whether a directory must be watched. The root is
// always watched so index paths created later are noticed.
func (f *filter) watchDir(rel string) bool {
	return rel == "." || f.inIndexPath(rel)
}

// relevant reports whether an event should reach the debouncer. Removals
// of extensionless paths pass because they may be directories that
// held indexed files.
func (f *filter) relevant(rel string, op Operation, isDir bool) bool {
	if !f.inIndexPath(rel) {
		return false
	}
	if isDir {
		return op != OpModify
	}
	base := path.Base(rel)
	ext := strings.ToLower(path.Ext(base))
	if f.exts[ext] || f.names[base] {
		return true
	}
	return ext == "" && (op == OpDelete || op == OpRename)
}
