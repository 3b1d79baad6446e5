package discovery

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/satnambhatt/ai-engine/internal/state"
)

// nextConfigCacheSize bounds the memoized next.config directory lookups.
const nextConfigCacheSize = 4096

// Discoverer walks the configured index paths of one library.
//
// Discover and Count may be called repeatedly; each call walks afresh.
// Observed, Deleted and Stats describe the most recent Discover walk and
// are only meaningful once its channel has been drained.
type Discoverer struct {
	root   string
	opts   Options
	logger *slog.Logger

	codeExts    map[string]bool
	configExts  map[string]bool
	configNames map[string]bool
	skipDirs    map[string]bool
	skipNames   map[string]bool
	skipExts    []string

	previous        state.Snapshot
	nextConfigCache *lru.Cache[string, bool]

	mu       sync.Mutex
	observed state.Snapshot
	stats    WalkStats
}

// New creates a Discoverer comparing against the previous snapshot.
// A nil previous snapshot is treated as empty.
func New(opts Options, previous state.Snapshot) (*Discoverer, error) {
	if opts.Root == "" {
		return nil, fmt.Errorf("library root is required")
	}
	if opts.MaxFileSize <= 0 {
		return nil, fmt.Errorf("max file size must be positive, got %d", opts.MaxFileSize)
	}

	root, err := filepath.Abs(opts.Root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve library root: %w", err)
	}

	cache, err := lru.New[string, bool](nextConfigCacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create next.config cache: %w", err)
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if previous == nil {
		previous = state.Snapshot{}
	}

	skipExts := make([]string, 0, len(opts.SkipExtensions))
	for _, e := range opts.SkipExtensions {
		skipExts = append(skipExts, strings.ToLower(e))
	}
	// Longer suffixes first so ".min.js" is checked before ".js".
	sort.SliceStable(skipExts, func(i, j int) bool { return len(skipExts[i]) > len(skipExts[j]) })

	return &Discoverer{
		root:            root,
		opts:            opts,
		logger:          logger,
		codeExts:        lowerSet(opts.CodeExtensions),
		configExts:      lowerSet(opts.ConfigExtensions),
		configNames:     exactSet(opts.ConfigFilenames),
		skipDirs:        exactSet(opts.SkipDirectories),
		skipNames:       exactSet(opts.SkipFilenames),
		skipExts:        skipExts,
		previous:        previous,
		nextConfigCache: cache,
		observed:        state.Snapshot{},
	}, nil
}

// Discover walks the library and streams the files that need indexing.
// In incremental mode unchanged files are observed but not sent. The
// channel is closed when the walk finishes or ctx is cancelled.
func (d *Discoverer) Discover(ctx context.Context, incremental bool) <-chan *File {
	out := make(chan *File)

	d.mu.Lock()
	d.observed = state.Snapshot{}
	d.stats = WalkStats{}
	d.mu.Unlock()

	go func() {
		defer close(out)
		d.walk(ctx, incremental, true, func(f *File) bool {
			select {
			case out <- f:
				return true
			case <-ctx.Done():
				return false
			}
		})
	}()

	return out
}

// Count returns how many files Discover would yield, for progress totals.
// It applies the same filters and, in incremental mode, hashes every
// candidate. It does not touch Observed or Stats.
func (d *Discoverer) Count(ctx context.Context, incremental bool) int {
	n := 0
	d.walk(ctx, incremental, false, func(*File) bool {
		n++
		return true
	})
	return n
}

// Observed returns a copy of every path hashed by the last Discover walk,
// including unchanged files and unreadable files that had a previous hash.
func (d *Discoverer) Observed() state.Snapshot {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.observed.Clone()
}

// Deleted returns the sorted paths present in the previous snapshot but
// not observed by the last Discover walk.
func (d *Discoverer) Deleted() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.previous.Missing(d.observed)
}

// Stats returns the counters of the last Discover walk.
func (d *Discoverer) Stats() WalkStats {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.stats
}

// walk visits every index path. record controls whether observed hashes
// and counters are kept; emit returns false to stop the walk.
func (d *Discoverer) walk(ctx context.Context, incremental, record bool, emit func(*File) bool) {
	count := func(fn func(*WalkStats)) {
		if !record {
			return
		}
		d.mu.Lock()
		fn(&d.stats)
		d.mu.Unlock()
	}
	observe := func(rel, hash string) {
		if !record {
			return
		}
		d.mu.Lock()
		d.observed[rel] = hash
		d.mu.Unlock()
	}

	for _, indexPath := range d.opts.IndexPaths {
		base := filepath.Join(d.root, filepath.FromSlash(indexPath))
		info, err := os.Stat(base)
		if err != nil || !info.IsDir() {
			if record {
				d.logger.Warn("index_path_missing", slog.String("path", base))
			}
			count(func(s *WalkStats) { s.MissingPaths++ })
			continue
		}

		stopped := false
		err = filepath.WalkDir(base, func(path string, entry fs.DirEntry, err error) error {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}

			if err != nil {
				if entry != nil && entry.IsDir() {
					d.logger.Warn("walk_dir_failed", slog.String("path", path), slog.String("error", err.Error()))
					return fs.SkipDir
				}
				return nil
			}

			if entry.IsDir() {
				if path != base && d.skipDirs[entry.Name()] {
					count(func(s *WalkStats) { s.PrunedDirs++ })
					return fs.SkipDir
				}
				return nil
			}
			if !entry.Type().IsRegular() {
				return nil
			}

			f := d.inspect(path, entry, incremental, count, observe)
			if f == nil {
				return nil
			}
			if !emit(f) {
				stopped = true
				return fs.SkipAll
			}
			count(func(s *WalkStats) { s.Yielded++ })
			return nil
		})
		if err != nil && ctx.Err() == nil {
			d.logger.Warn("walk_failed", slog.String("path", base), slog.String("error", err.Error()))
		}
		if stopped || ctx.Err() != nil {
			return
		}
	}
}

// inspect applies the filters to one regular file and returns it when it
// should be yielded.
func (d *Discoverer) inspect(
	path string,
	entry fs.DirEntry,
	incremental bool,
	count func(func(*WalkStats)),
	observe func(rel, hash string),
) *File {
	count(func(s *WalkStats) { s.Walked++ })

	name := entry.Name()
	if d.skipNames[name] {
		count(func(s *WalkStats) { s.SkippedName++ })
		return nil
	}

	lowerName := strings.ToLower(name)
	for _, ext := range d.skipExts {
		if strings.HasSuffix(lowerName, ext) {
			count(func(s *WalkStats) { s.SkippedExt++ })
			return nil
		}
	}

	ext := strings.ToLower(filepath.Ext(name))
	var kind Kind
	switch {
	case d.codeExts[ext]:
		kind = KindCode
	case d.configExts[ext] && d.configNames[name]:
		kind = KindConfig
	default:
		count(func(s *WalkStats) { s.SkippedKind++ })
		return nil
	}

	rel, err := filepath.Rel(d.root, path)
	if err != nil {
		return nil
	}
	rel = filepath.ToSlash(rel)

	info, err := entry.Info()
	if err != nil {
		d.readFailed(rel, err, count, observe)
		return nil
	}
	size := info.Size()
	if size > d.opts.MaxFileSize {
		count(func(s *WalkStats) { s.SkippedSize++ })
		return nil
	}
	if size == 0 {
		count(func(s *WalkStats) { s.SkippedEmpty++ })
		return nil
	}

	hash, err := hashFile(path)
	if err != nil {
		d.readFailed(rel, err, count, observe)
		return nil
	}
	observe(rel, hash)

	if incremental && d.previous[rel] == hash {
		count(func(s *WalkStats) { s.Unchanged++ })
		return nil
	}

	return &File{
		Path:      path,
		RelPath:   rel,
		Ext:       ext,
		Size:      size,
		Hash:      hash,
		Framework: d.detectFramework(rel, ext, kind),
		Repo:      detectRepo(rel, d.opts.ReposDir),
		Category:  detectCategory(rel),
		Kind:      kind,
	}
}

// readFailed logs an unreadable file. A file that was indexed before keeps
// its previous hash so it is neither deleted from the store nor forgotten.
func (d *Discoverer) readFailed(rel string, err error, count func(func(*WalkStats)), observe func(rel, hash string)) {
	count(func(s *WalkStats) { s.ReadErrors++ })
	d.logger.Warn("file_read_failed", slog.String("path", rel), slog.String("error", err.Error()))
	if prev, ok := d.previous[rel]; ok {
		observe(rel, prev)
	}
}

// hashFile returns the hex SHA-256 of a file's content, streamed.
func hashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer func() { _ = f.Close() }()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// HashBytes returns the hex SHA-256 of content, matching the hash of a
// file with the same bytes.
func HashBytes(content []byte) string {
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:])
}

func lowerSet(items []string) map[string]bool {
	m := make(map[string]bool, len(items))
	for _, it := range items {
		m[strings.ToLower(it)] = true
	}
	return m
}

func exactSet(items []string) map[string]bool {
	m := make(map[string]bool, len(items))
	for _, it := range items {
		m[it] = true
	}
	return m
}
