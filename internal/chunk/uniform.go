package chunk

import "strings"

// uniformStrategy cuts content into overlapping windows of lines.
// Used for unknown extensions, as the fallback of every other strategy,
// and to split oversized chunks.
type uniformStrategy struct {
	window  int // lines per window
	overlap int // lines shared by consecutive windows
	min     int
	max     int
}

func newUniformStrategy(opts Options) *uniformStrategy {
	window := max(10, opts.TargetChars/60)
	return &uniformStrategy{
		window:  window,
		overlap: max(2, window/10),
		min:     opts.MinChars,
		max:     opts.MaxChars,
	}
}

// Split implements Strategy.
func (u *uniformStrategy) Split(content string) ([]Chunk, error) {
	return u.windows(strings.Split(content, "\n"), SectionFragment, 1), nil
}

type lineRange struct {
	lo, hi int // [lo, hi) line indexes
}

func (u *uniformStrategy) ranges(n int) []lineRange {
	var out []lineRange
	for i := 0; i < n; {
		end := min(i+u.window, n)
		out = append(out, lineRange{lo: i, hi: end})
		if end >= n {
			break
		}
		i = end - u.overlap
	}
	return out
}

// windows cuts lines into tagged chunks whose first line is firstLine.
// A window over max is cut at max runes. A window under min is folded
// into the previous window when the union fits max, otherwise dropped.
func (u *uniformStrategy) windows(lines []string, section string, firstLine int) []Chunk {
	var out []Chunk
	var starts []int

	for _, r := range u.ranges(len(lines)) {
		text := strings.Join(lines[r.lo:r.hi], "\n")
		if strings.TrimSpace(text) == "" {
			continue
		}

		if runeLen(text) < u.min {
			if k := len(out) - 1; k >= 0 {
				merged := strings.Join(lines[starts[k]:r.hi], "\n")
				if runeLen(merged) <= u.max {
					out[k].Text = merged
					out[k].EndLine = firstLine + r.hi - 1
				}
			}
			continue
		}

		out = append(out, Chunk{
			Text:      truncateRunes(text, u.max),
			Section:   section,
			StartLine: firstLine + r.lo,
			EndLine:   firstLine + r.hi - 1,
		})
		starts = append(starts, r.lo)
	}
	return out
}
