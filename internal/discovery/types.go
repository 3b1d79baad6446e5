// Package discovery walks the design library and yields the files that
// need indexing.
//
// Every candidate is filtered by name, extension, kind and size, then
// hashed with SHA-256. In incremental mode a file whose hash matches the
// previous snapshot is recorded as observed but not yielded. After a walk
// the discoverer reports the observed snapshot and the paths that
// disappeared since the previous run.
package discovery

import (
	"log/slog"

	"github.com/satnambhatt/ai-engine/internal/config"
)

// Kind separates source files from allow-listed config files.
type Kind string

const (
	// KindCode is a source file with a code extension.
	KindCode Kind = "code"
	// KindConfig is an allow-listed configuration file.
	KindConfig Kind = "config"
)

// Framework labels inferred from the file extension and path.
const (
	FrameworkHTML       = "html"
	FrameworkReact      = "react"
	FrameworkNextJS     = "nextjs"
	FrameworkAstro      = "astro"
	FrameworkVue        = "vue"
	FrameworkSvelte     = "svelte"
	FrameworkCSS        = "css"
	FrameworkTypeScript = "typescript"
	FrameworkJavaScript = "javascript"
	FrameworkConfig     = "config"
	FrameworkUnknown    = "unknown"
)

// File describes one discovered file. Immutable after discovery.
type File struct {
	Path      string // Absolute path
	RelPath   string // Library-relative, slash separated
	Ext       string // Lower-cased extension including the dot
	Size      int64  // Size in bytes
	Hash      string // Hex SHA-256 of the content
	Framework string // html, react, nextjs, astro, vue, svelte, css, typescript, javascript, config, unknown
	Repo      string // Source repository name, empty outside the repos dir
	Category  string // Component category such as hero or footer, may be empty
	Kind      Kind
}

// Options configures a Discoverer.
type Options struct {
	// Root is the library root. RelPaths are relative to it.
	Root string
	// IndexPaths are the directories under Root to walk.
	IndexPaths []string
	// ReposDir is the index path whose subdirectories are source repos.
	ReposDir string

	CodeExtensions   []string
	ConfigExtensions []string
	ConfigFilenames  []string
	SkipDirectories  []string
	SkipExtensions   []string
	SkipFilenames    []string

	// MaxFileSize is the largest file discovered, in bytes.
	MaxFileSize int64

	Logger *slog.Logger
}

// OptionsFromConfig maps the configuration onto discovery options.
func OptionsFromConfig(cfg *config.Config) Options {
	d := cfg.Discovery
	return Options{
		Root:             cfg.Library.Root,
		IndexPaths:       cfg.Library.IndexPaths,
		ReposDir:         cfg.Library.ReposDir,
		CodeExtensions:   d.CodeExtensions,
		ConfigExtensions: d.ConfigExtensions,
		ConfigFilenames:  d.ConfigFilenames,
		SkipDirectories:  d.SkipDirectories,
		SkipExtensions:   d.SkipExtensions,
		SkipFilenames:    d.SkipFilenames,
		MaxFileSize:      d.MaxFileSize.Int64(),
	}
}

// WalkStats counts what the last walk saw.
type WalkStats struct {
	Walked       int // Regular files visited
	Yielded      int // Files sent to the consumer
	Unchanged    int // Hash equal to the previous snapshot
	SkippedName  int // Excluded filename
	SkippedExt   int // Excluded extension
	SkippedKind  int // Neither code nor allow-listed config
	SkippedSize  int // Larger than the size limit
	SkippedEmpty int // Zero bytes
	ReadErrors   int // Stat or read failures
	PrunedDirs   int // Excluded directories not descended
	MissingPaths int // Configured index paths absent on disk
}
