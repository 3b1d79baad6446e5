package chunk

import (
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"
)

// Chunker routes content to a Strategy by extension and normalizes the
// result. It holds no mutable state and is safe for concurrent use.
type Chunker struct {
	opts       Options
	logger     *slog.Logger
	strategies map[string]Strategy
	uniform    *uniformStrategy
}

// New creates a Chunker. Sizes must satisfy 0 < min <= target <= max.
func New(opts Options) (*Chunker, error) {
	if opts.MinChars <= 0 {
		return nil, fmt.Errorf("min chunk size must be positive, got %d", opts.MinChars)
	}
	if opts.TargetChars < opts.MinChars || opts.MaxChars < opts.TargetChars {
		return nil, fmt.Errorf("chunk sizes must satisfy min <= target <= max, got %d/%d/%d",
			opts.MinChars, opts.TargetChars, opts.MaxChars)
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	uniform := newUniformStrategy(opts)
	markup := &markupStrategy{uniform: uniform}
	stylesheet := &stylesheetStrategy{}

	return &Chunker{
		opts:    opts,
		logger:  logger,
		uniform: uniform,
		strategies: map[string]Strategy{
			".html":   markup,
			".htm":    markup,
			".css":    stylesheet,
			".scss":   stylesheet,
			".sass":   stylesheet,
			".js":     newScriptStrategy(".js", SectionFunction, opts),
			".mjs":    newScriptStrategy(".mjs", SectionFunction, opts),
			".cjs":    newScriptStrategy(".cjs", SectionFunction, opts),
			".ts":     newScriptStrategy(".ts", SectionFunction, opts),
			".jsx":    newScriptStrategy(".jsx", SectionComponent, opts),
			".tsx":    newScriptStrategy(".tsx", SectionComponent, opts),
			".vue":    newVueStrategy(markup, opts.MinChars),
			".svelte": newSvelteStrategy(markup, opts.MinChars),
			".astro":  newAstroStrategy(markup, opts.MinChars),
		},
	}, nil
}

// Chunk splits content using the strategy for ext. Blank content yields
// no chunks. The result is deterministic for identical input and options.
func (c *Chunker) Chunk(content, ext string) []Chunk {
	if strings.TrimSpace(content) == "" {
		return nil
	}

	ext = strings.ToLower(ext)
	strategy, ok := c.strategies[ext]
	if !ok {
		strategy = c.uniform
	}

	raw, err := safeSplit(strategy, content)
	if err != nil {
		c.logger.Debug("chunk_strategy_failed",
			slog.String("extension", ext),
			slog.String("error", err.Error()))
		raw = nil
	}
	if len(raw) == 0 && ok {
		raw, _ = c.uniform.Split(content)
	}

	return c.finalize(raw)
}

// Single wraps the whole content in one chunk with the given section,
// split only if it exceeds the maximum size.
func (c *Chunker) Single(content, section string) []Chunk {
	text := strings.TrimSpace(content)
	if text == "" {
		return nil
	}

	start := 1 + strings.Count(content[:strings.Index(content, text)], "\n")
	return c.finalize([]Chunk{{
		Text:      text,
		Section:   section,
		StartLine: start,
		EndLine:   start + strings.Count(text, "\n"),
	}})
}

// Options returns the size bounds in use.
func (c *Chunker) Options() Options {
	return c.opts
}

// finalize drops undersized chunks, splits oversized ones and numbers
// the survivors.
func (c *Chunker) finalize(raw []Chunk) []Chunk {
	var out []Chunk
	for _, ch := range raw {
		n := runeLen(ch.Text)
		switch {
		case n < c.opts.MinChars:
			continue
		case n > c.opts.MaxChars:
			lines := strings.Split(ch.Text, "\n")
			out = append(out, c.uniform.windows(lines, ch.Section+PartSuffix, ch.StartLine)...)
		default:
			out = append(out, ch)
		}
	}

	for i := range out {
		out[i].Index = i
		out[i].Total = len(out)
	}
	return out
}

func safeSplit(s Strategy, content string) (chunks []Chunk, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("chunk strategy panicked: %v", r)
		}
	}()
	return s.Split(content)
}

func runeLen(s string) int {
	return utf8.RuneCountInString(s)
}

// truncateRunes cuts s to at most n runes.
func truncateRunes(s string, n int) string {
	if runeLen(s) <= n {
		return s
	}
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}

// lineAt returns the 1-indexed line of byte offset off.
func lineAt(s string, off int) int {
	return strings.Count(s[:off], "\n") + 1
}

// trimmedChunk returns s[lo:hi] without surrounding whitespace as a chunk,
// with line numbers relative to s.
func trimmedChunk(s string, lo, hi int, section string) (Chunk, bool) {
	for lo < hi && isSpace(s[lo]) {
		lo++
	}
	for hi > lo && isSpace(s[hi-1]) {
		hi--
	}
	if lo >= hi {
		return Chunk{}, false
	}
	return Chunk{
		Text:      s[lo:hi],
		Section:   section,
		StartLine: lineAt(s, lo),
		EndLine:   lineAt(s, hi),
	}, true
}

func isSpace(b byte) bool {
	return b == ' ' || b == '\t' || b == '\n' || b == '\r' || b == '\f' || b == '\v'
}
