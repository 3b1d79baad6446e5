// Package chunk splits design-library files into semantically meaningful
// chunks for embedding.
//
// Each file type has a Strategy that cuts along its natural boundaries:
// HTML sections, CSS rule blocks, top-level script declarations, and the
// blocks of single-file components. Anything without a strategy, or whose
// strategy yields nothing, falls back to overlapping line windows. All
// output is post-processed so every chunk fits the configured size bounds.
package chunk

import (
	"log/slog"

	"github.com/satnambhatt/ai-engine/internal/config"
)

// Section tags attached to chunks.
const (
	SectionHeadMeta    = "head-meta"
	SectionComponent   = "component"
	SectionMarkup      = "markup"
	SectionDiv         = "div"
	SectionRules       = "rules"
	SectionMediaQuery  = "media-query"
	SectionAtRule      = "at-rule"
	SectionImports     = "imports"
	SectionComments    = "comments"
	SectionFunction    = "function"
	SectionFrontmatter = "frontmatter"
	SectionFragment    = "fragment"
	SectionConfig      = "config"
)

// PartSuffix is appended to the section of pieces cut from an oversized chunk.
const PartSuffix = "-part"

// Chunk is a contiguous region of a file.
type Chunk struct {
	Text      string
	Index     int    // 0-based position after post-processing
	Total     int    // Number of chunks for the file
	Section   string // header, rules, component, fragment, ...
	StartLine int    // 1-indexed
	EndLine   int    // Inclusive
}

// Strategy splits file content into raw chunks. Index and Total are
// assigned later by the Chunker.
type Strategy interface {
	Split(content string) ([]Chunk, error)
}

// Options bounds chunk sizes, in runes.
type Options struct {
	TargetChars int
	MaxChars    int
	MinChars    int

	Logger *slog.Logger
}

// OptionsFromConfig maps the configuration onto chunker options.
func OptionsFromConfig(cfg config.ChunkingConfig) Options {
	return Options{
		TargetChars: cfg.TargetChars,
		MaxChars:    cfg.MaxChars,
		MinChars:    cfg.MinChars,
	}
}
