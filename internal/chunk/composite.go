package chunk

import (
	"regexp"
	"sort"
	"strings"
)

var (
	blockTagPattern    = regexp.MustCompile(`(?i)<(/?)(template|script|style)\b([^>]*)>`)
	frontmatterPattern = regexp.MustCompile(`(?s)\A---\r?\n(?:.*?\r?\n)?---[ \t]*(?:\r?\n|\z)`)
)

// compositeStrategy handles single-file components: named blocks become
// their own chunks and the rest of the file is split as markup.
type compositeStrategy struct {
	blocks      []string // block element names, extracted in order
	frontmatter bool     // leading --- fence
	prefix      string   // prepended to markup sections of the remainder
	markup      *markupStrategy
	min         int
}

func newVueStrategy(markup *markupStrategy, min int) *compositeStrategy {
	return &compositeStrategy{
		blocks: []string{"template", "script", "style"},
		prefix: "template-",
		markup: markup,
		min:    min,
	}
}

func newSvelteStrategy(markup *markupStrategy, min int) *compositeStrategy {
	return &compositeStrategy{
		blocks: []string{"script", "style"},
		prefix: "template-",
		markup: markup,
		min:    min,
	}
}

func newAstroStrategy(markup *markupStrategy, min int) *compositeStrategy {
	return &compositeStrategy{
		blocks:      []string{"style"},
		frontmatter: true,
		prefix:      "astro-",
		markup:      markup,
		min:         min,
	}
}

// Split implements Strategy.
func (c *compositeStrategy) Split(content string) ([]Chunk, error) {
	var chunks []Chunk

	// Extracted regions are blanked with newlines kept, so offsets and
	// line numbers in the remainder match the original content.
	remainder := []byte(content)

	if c.frontmatter {
		if loc := frontmatterPattern.FindStringIndex(content); loc != nil {
			if ch, ok := trimmedChunk(content, loc[0], loc[1], SectionFrontmatter); ok {
				chunks = append(chunks, ch)
			}
			blank(remainder, loc[0], loc[1])
		}
	}

	for _, tag := range c.blocks {
		found := scanElements(string(remainder), 0, len(remainder), blockTagPattern, func(name, _ string) bool {
			return name == tag
		})
		for _, b := range found {
			if ch, ok := trimmedChunk(content, b.start, b.end, tag); ok {
				chunks = append(chunks, ch)
			}
			blank(remainder, b.start, b.end)
		}
	}

	rest := string(remainder)
	if runeLen(strings.TrimSpace(rest)) >= c.min {
		parts, err := c.markup.Split(rest)
		if err != nil {
			return nil, err
		}
		for _, p := range parts {
			p.Section = c.prefix + p.Section
			chunks = append(chunks, p)
		}
	}

	sort.SliceStable(chunks, func(i, j int) bool {
		return chunks[i].StartLine < chunks[j].StartLine
	})
	return chunks, nil
}

func blank(b []byte, lo, hi int) {
	for i := lo; i < hi; i++ {
		if b[i] != '\n' {
			b[i] = ' '
		}
	}
}
