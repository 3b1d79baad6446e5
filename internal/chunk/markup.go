package chunk

import (
	"regexp"
	"strings"
)

var (
	headPattern = regexp.MustCompile(`(?is)<head(?:\s[^>]*)?>.*?</head\s*>`)
	bodyPattern = regexp.MustCompile(`(?is)<body(?:\s[^>]*)?>(.*)</body\s*>`)

	sectionTagPattern = regexp.MustCompile(`(?i)<(/?)(header|nav|main|section|article|aside|footer|div)\b([^>]*)>`)
	idOrClassPattern  = regexp.MustCompile(`(?i)(?:^|\s)(?:id|class)\s*=`)
)

// markupStrategy splits HTML into a head chunk and the top-level
// semantic sections of the body.
type markupStrategy struct {
	uniform *uniformStrategy
}

// element is a matched element span in byte offsets.
type element struct {
	tag        string
	start, end int
}

// Split implements Strategy.
func (m *markupStrategy) Split(content string) ([]Chunk, error) {
	var chunks []Chunk

	lo, hi := 0, len(content)
	if loc := headPattern.FindStringIndex(content); loc != nil {
		if c, ok := trimmedChunk(content, loc[0], loc[1], SectionHeadMeta); ok {
			chunks = append(chunks, c)
		}
		lo = loc[1]
	}

	body := bodyPattern.FindStringSubmatchIndex(content)
	if body != nil {
		lo, hi = body[2], body[3]
		if strings.TrimSpace(content[lo:hi]) == "" {
			return m.uniform.Split(content)
		}
	}

	sections := scanElements(content, lo, hi, sectionTagPattern, func(name, attrs string) bool {
		return name != SectionDiv || idOrClassPattern.MatchString(attrs)
	})

	if len(sections) < 2 {
		if body == nil {
			return m.uniform.Split(content)
		}
		if c, ok := trimmedChunk(content, body[0], body[1], SectionComponent); ok {
			chunks = append(chunks, c)
		}
		return chunks, nil
	}

	prev := lo
	for _, s := range sections {
		if c, ok := trimmedChunk(content, prev, s.start, SectionMarkup); ok {
			chunks = append(chunks, c)
		}
		if c, ok := trimmedChunk(content, s.start, s.end, s.tag); ok {
			chunks = append(chunks, c)
		}
		prev = s.end
	}
	if c, ok := trimmedChunk(content, prev, hi, SectionMarkup); ok {
		chunks = append(chunks, c)
	}

	return chunks, nil
}

// scanElements finds the outermost elements in s[lo:hi] whose opening tag
// passes accept. pattern must capture (closing slash)(name)(attributes).
// Nesting is tracked per element name, so an open <section> only closes
// at its matching </section>. An element left open runs to hi.
func scanElements(s string, lo, hi int, pattern *regexp.Regexp, accept func(name, attrs string) bool) []element {
	var found []element
	var cur *element
	depth := 0

	region := s[lo:hi]
	for _, m := range pattern.FindAllStringSubmatchIndex(region, -1) {
		closing := m[3] > m[2]
		name := strings.ToLower(region[m[4]:m[5]])
		attrs := region[m[6]:m[7]]
		selfClosing := strings.HasSuffix(strings.TrimSpace(attrs), "/")

		if cur == nil {
			if closing || selfClosing || !accept(name, attrs) {
				continue
			}
			cur = &element{tag: name, start: lo + m[0]}
			depth = 1
			continue
		}

		if name != cur.tag || selfClosing {
			continue
		}
		if !closing {
			depth++
			continue
		}
		depth--
		if depth == 0 {
			cur.end = lo + m[1]
			found = append(found, *cur)
			cur = nil
		}
	}

	if cur != nil {
		cur.end = hi
		found = append(found, *cur)
	}
	return found
}
