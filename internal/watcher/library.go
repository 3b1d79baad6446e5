package watcher

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// LibraryWatcher watches the index paths of a design library and emits
// debounced batches of relevant changes. It uses fsnotify and falls back
// to polling when an inotify watcher cannot be created.
type LibraryWatcher struct {
	opts      Options
	filter    *filter
	logger    *slog.Logger
	debouncer *Debouncer

	fsWatcher   *fsnotify.Watcher
	pollWatcher *PollingWatcher

	root    string
	errors  chan error
	stopCh  chan struct{}
	mu      sync.RWMutex
	stopped bool
}

// New creates a watcher. The root must be set.
func New(opts Options) (*LibraryWatcher, error) {
	if opts.Root == "" {
		return nil, fmt.Errorf("library root is required")
	}
	opts = opts.WithDefaults()

	root, err := filepath.Abs(opts.Root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve library root: %w", err)
	}

	w := &LibraryWatcher{
		opts:      opts,
		filter:    newFilter(opts),
		logger:    opts.Logger,
		debouncer: NewDebouncer(opts.Debounce, opts.EventBufferSize, opts.Logger),
		root:      root,
		errors:    make(chan error, 10),
		stopCh:    make(chan struct{}),
	}

	if !opts.ForcePolling {
		fsw, err := fsnotify.NewWatcher()
		if err == nil {
			w.fsWatcher = fsw
			return w, nil
		}
		w.logger.Warn("fsnotify_unavailable", slog.String("error", err.Error()))
	}
	w.pollWatcher = NewPollingWatcher(Options{
		Root:            root,
		IndexPaths:      opts.IndexPaths,
		Extensions:      opts.Extensions,
		Filenames:       opts.Filenames,
		SkipDirectories: opts.SkipDirectories,
		PollInterval:    opts.PollInterval,
	})
	return w, nil
}

// Start watches until Stop is called or ctx is cancelled. It returns once
// watching ends; a setup failure is returned immediately.
func (w *LibraryWatcher) Start(ctx context.Context) error {
	if _, err := os.Stat(w.root); err != nil {
		return fmt.Errorf("failed to stat library root: %w", err)
	}

	w.logger.Info("watch_started",
		slog.String("root", w.root),
		slog.String("mode", w.Mode()),
		slog.Duration("debounce", w.opts.Debounce))

	if w.fsWatcher != nil {
		return w.startFsnotify(ctx)
	}
	return w.startPolling(ctx)
}

func (w *LibraryWatcher) startFsnotify(ctx context.Context) error {
	if err := w.addRecursive(w.root); err != nil {
		return fmt.Errorf("failed to add directories to watcher: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			_ = w.Stop()
			return ctx.Err()
		case <-w.stopCh:
			return nil
		case event, ok := <-w.fsWatcher.Events:
			if !ok {
				return nil
			}
			w.handleFsnotifyEvent(event)
		case err, ok := <-w.fsWatcher.Errors:
			if !ok {
				return nil
			}
			w.emitError(err)
		}
	}
}

func (w *LibraryWatcher) startPolling(ctx context.Context) error {
	go func() {
		for {
			select {
			case <-w.stopCh:
				return
			case event, ok := <-w.pollWatcher.Events():
				if !ok {
					return
				}
				w.debouncer.Add(event)
			case err, ok := <-w.pollWatcher.Errors():
				if !ok {
					return
				}
				w.emitError(err)
			}
		}
	}()

	err := w.pollWatcher.Start(ctx)
	if ctx.Err() != nil {
		_ = w.Stop()
	}
	return err
}

// handleFsnotifyEvent converts, filters and debounces one event. New
// directories are watched as they appear, and any files already inside
// them are reported as created.
func (w *LibraryWatcher) handleFsnotifyEvent(event fsnotify.Event) {
	rel, err := filepath.Rel(w.root, event.Name)
	if err != nil {
		return
	}
	rel = filepath.ToSlash(rel)

	isDir := false
	if info, err := os.Stat(event.Name); err == nil {
		isDir = info.IsDir()
	}

	var op Operation
	switch {
	case event.Has(fsnotify.Create):
		op = OpCreate
		if isDir && w.filter.watchDir(rel) {
			if err := w.addRecursive(event.Name); err != nil {
				w.emitError(err)
			}
			w.reportExisting(event.Name)
		}
	case event.Has(fsnotify.Write):
		op = OpModify
	case event.Has(fsnotify.Remove):
		op = OpDelete
	case event.Has(fsnotify.Rename):
		op = OpRename
	default:
		return
	}

	if !w.filter.relevant(rel, op, isDir) {
		return
	}
	w.logger.Debug("watch_event", slog.String("path", rel), slog.String("op", op.String()))
	w.debouncer.Add(FileEvent{Path: rel, Operation: op, IsDir: isDir, Timestamp: time.Now()})
}

// addRecursive watches dir and every watched directory below it.
func (w *LibraryWatcher) addRecursive(dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil || !d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(w.root, path)
		if err != nil {
			return nil
		}
		if !w.filter.watchDir(filepath.ToSlash(rel)) {
			return filepath.SkipDir
		}
		return w.fsWatcher.Add(path)
	})
}

// reportExisting emits CREATE for relevant files inside a directory that
// appeared before its watch was registered.
func (w *LibraryWatcher) reportExisting(dir string) {
	_ = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(w.root, path)
		if err != nil {
			return nil
		}
		rel = filepath.ToSlash(rel)
		if w.filter.relevant(rel, OpCreate, false) {
			w.debouncer.Add(FileEvent{Path: rel, Operation: OpCreate, Timestamp: time.Now()})
		}
		return nil
	})
}

func (w *LibraryWatcher) emitError(err error) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.stopped {
		return
	}
	w.logger.Warn("watch_error", slog.String("error", err.Error()))
	select {
	case w.errors <- err:
	default:
	}
}

// Stop stops watching and closes the channels. Safe to call multiple times.
func (w *LibraryWatcher) Stop() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.stopped {
		return nil
	}
	w.stopped = true
	close(w.stopCh)
	w.debouncer.Stop()

	var err error
	if w.fsWatcher != nil {
		err = w.fsWatcher.Close()
	}
	if w.pollWatcher != nil {
		_ = w.pollWatcher.Stop()
	}
	close(w.errors)
	return err
}

// Events returns the channel of debounced batches. It is closed by Stop.
func (w *LibraryWatcher) Events() <-chan []FileEvent {
	return w.debouncer.Output()
}

// Errors returns non-fatal watch errors. It is closed by Stop.
func (w *LibraryWatcher) Errors() <-chan error {
	return w.errors
}

// Mode returns "fsnotify" or "polling".
func (w *LibraryWatcher) Mode() string {
	if w.fsWatcher != nil {
		return "fsnotify"
	}
	return "polling"
}
