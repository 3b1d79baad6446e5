package chunk

import (
	"regexp"
	"strings"
)

var (
	blockAtRulePattern = regexp.MustCompile(`^@(media|keyframes|supports|layer|font-face)\b`)
	dividerPattern     = regexp.MustCompile(`===|---|(?i:section)`)
)

// stylesheetStrategy scans CSS line by line, tracking brace depth, and
// cuts at top-level at-rule blocks and divider comments.
type stylesheetStrategy struct{}

// Split implements Strategy.
func (s *stylesheetStrategy) Split(content string) ([]Chunk, error) {
	lines := strings.Split(content, "\n")

	var chunks []Chunk
	var cur []string
	section := SectionRules
	start := 1
	depth := 0

	flush := func(end int) {
		if len(cur) == 0 {
			return
		}
		text := strings.Join(cur, "\n")
		if strings.TrimSpace(text) != "" {
			chunks = append(chunks, Chunk{Text: text, Section: section, StartLine: start, EndLine: end})
		}
	}

	for i, line := range lines {
		n := i + 1
		stripped := strings.TrimSpace(line)

		switch {
		case depth == 0 && isBlockAtRule(stripped):
			flush(n - 1)
			cur = []string{line}
			start = n
			section = SectionAtRule
			if strings.HasPrefix(stripped, "@media") {
				section = SectionMediaQuery
			}
		case depth == 0 && strings.HasPrefix(stripped, "/*") && dividerPattern.MatchString(stripped):
			flush(n - 1)
			cur = []string{line}
			start = n
			section = SectionRules
		default:
			cur = append(cur, line)
		}

		depth += strings.Count(line, "{") - strings.Count(line, "}")
		if depth < 0 {
			depth = 0
		}

		if depth == 0 && section != SectionRules && strings.Contains(line, "}") {
			flush(n)
			cur = nil
			section = SectionRules
			start = n + 1
		}
	}
	flush(start + len(cur) - 1)

	return chunks, nil
}

// isBlockAtRule reports whether a line opens an at-rule block. Statement
// forms such as "@layer base;" are ordinary lines.
func isBlockAtRule(stripped string) bool {
	if !blockAtRulePattern.MatchString(stripped) {
		return false
	}
	return strings.Contains(stripped, "{") || !strings.HasSuffix(stripped, ";")
}
