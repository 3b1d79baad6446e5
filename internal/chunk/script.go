package chunk

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/javascript"
	"github.com/smacker/go-tree-sitter/typescript/tsx"
	"github.com/smacker/go-tree-sitter/typescript/typescript"
)

// Grammars by extension. JSX parses with the javascript grammar.
var scriptGrammars = map[string]func() *sitter.Language{
	".js":  javascript.GetLanguage,
	".mjs": javascript.GetLanguage,
	".cjs": javascript.GetLanguage,
	".jsx": javascript.GetLanguage,
	".ts":  typescript.GetLanguage,
	".tsx": tsx.GetLanguage,
}

// Top-level node types that always start a new chunk.
var declarationTypes = map[string]bool{
	"export_statement":               true,
	"import_statement":               true,
	"function_declaration":           true,
	"generator_function_declaration": true,
	"class_declaration":              true,
	"abstract_class_declaration":     true,
	"interface_declaration":          true,
	"type_alias_declaration":         true,
	"enum_declaration":               true,
}

// Values that make a const/let/var declaration a boundary.
var callableValueTypes = map[string]bool{
	"arrow_function":      true,
	"function":            true,
	"function_expression": true,
	"generator_function":  true,
	"class":               true,
}

var (
	scriptBoundaryPattern = regexp.MustCompile(`^(?:` +
		`export\s+default\s+` +
		`|export\s+(?:const|function|class|let|var|interface|type)\s+` +
		`|(?:const|let|var)\s+\w+\s*=\s*(?:\(|function|class)` +
		`|function\s+\w+` +
		`|class\s+\w+` +
		`|interface\s+\w+` +
		`|type\s+\w+` +
		`|/\*\*` +
		`)`)

	componentStartPattern = regexp.MustCompile(`^(?:export\s+default|export\s+const\s+\w+\s*=)`)
	importStartPattern    = regexp.MustCompile(`^import\s`)
)

// scriptStrategy splits JS/TS sources at top-level declarations.
type scriptStrategy struct {
	grammar        func() *sitter.Language
	defaultSection string // component for jsx/tsx, function otherwise
	target         int
	min            int
}

func newScriptStrategy(ext, defaultSection string, opts Options) *scriptStrategy {
	return &scriptStrategy{
		grammar:        scriptGrammars[ext],
		defaultSection: defaultSection,
		target:         opts.TargetChars,
		min:            opts.MinChars,
	}
}

// span is a byte range of the source with its section.
type span struct {
	start, end int
	section    string
}

// Split implements Strategy. Files the parser cannot handle fall back to
// a line scanner.
func (s *scriptStrategy) Split(content string) ([]Chunk, error) {
	spans, err := s.parse(content)
	if err != nil || len(spans) == 0 {
		spans = s.scan(content)
	}

	var chunks []Chunk
	for _, sp := range s.merge(content, spans) {
		if c, ok := trimmedChunk(content, sp.start, sp.end, sp.section); ok {
			chunks = append(chunks, c)
		}
	}
	return chunks, nil
}

// parse cuts the source at the root's declaration children. Statements
// that are not declarations stay with the preceding span, and comments
// directly above a declaration belong to it.
func (s *scriptStrategy) parse(content string) ([]span, error) {
	if s.grammar == nil {
		return nil, fmt.Errorf("no grammar")
	}

	parser := sitter.NewParser()
	defer parser.Close()
	parser.SetLanguage(s.grammar())

	tree, err := parser.ParseCtx(context.Background(), nil, []byte(content))
	if err != nil {
		return nil, fmt.Errorf("failed to parse source: %w", err)
	}
	if tree == nil {
		return nil, fmt.Errorf("failed to parse source: nil tree")
	}
	defer tree.Close()

	root := tree.RootNode()
	n := int(root.NamedChildCount())
	nodes := make([]*sitter.Node, 0, n)
	for i := 0; i < n; i++ {
		if child := root.NamedChild(i); child != nil {
			nodes = append(nodes, child)
		}
	}

	var spans []span
	docStart := -1
	for i, node := range nodes {
		start, end := int(node.StartByte()), int(node.EndByte())

		if node.Type() == "comment" {
			// Trailing comment on the line of the previous node.
			if i > 0 && node.StartPoint().Row == nodes[i-1].EndPoint().Row && len(spans) > 0 {
				spans[len(spans)-1].end = end
				continue
			}
			if docStart < 0 && s.leadsDeclaration(nodes, i) {
				docStart = start
			}
			if docStart >= 0 {
				continue
			}
			spans = append(spans, span{start: start, end: end, section: SectionComments})
			continue
		}

		if !s.isBoundary(node) {
			if len(spans) == 0 {
				spans = append(spans, span{start: start, end: end, section: s.defaultSection})
			} else {
				spans[len(spans)-1].end = end
			}
			continue
		}

		if docStart >= 0 {
			start, docStart = docStart, -1
		}
		spans = append(spans, span{start: start, end: end, section: s.section(node)})
	}
	return spans, nil
}

// leadsDeclaration reports whether the comment at i starts a run of
// line-adjacent comments that ends directly above a declaration.
func (s *scriptStrategy) leadsDeclaration(nodes []*sitter.Node, i int) bool {
	for j := i; j+1 < len(nodes); j++ {
		next := nodes[j+1]
		if next.StartPoint().Row > nodes[j].EndPoint().Row+1 {
			return false
		}
		if next.Type() != "comment" {
			return s.isBoundary(next)
		}
	}
	return false
}

func (s *scriptStrategy) isBoundary(node *sitter.Node) bool {
	switch node.Type() {
	case "lexical_declaration", "variable_declaration":
		return hasCallableValue(node)
	default:
		return declarationTypes[node.Type()]
	}
}

func hasCallableValue(decl *sitter.Node) bool {
	for i := 0; i < int(decl.NamedChildCount()); i++ {
		d := decl.NamedChild(i)
		if d == nil || d.Type() != "variable_declarator" {
			continue
		}
		if v := d.ChildByFieldName("value"); v != nil && callableValueTypes[v.Type()] {
			return true
		}
	}
	return false
}

// section tags a declaration: default and const exports are components.
func (s *scriptStrategy) section(node *sitter.Node) string {
	switch node.Type() {
	case "import_statement":
		return SectionImports
	case "export_statement":
		for i := 0; i < int(node.ChildCount()); i++ {
			c := node.Child(i)
			if c == nil {
				continue
			}
			if c.Type() == "default" || c.Type() == "lexical_declaration" {
				return SectionComponent
			}
		}
	}
	return s.defaultSection
}

// scan finds declaration starts line by line, tracking brace depth.
func (s *scriptStrategy) scan(content string) []span {
	lines := strings.SplitAfter(content, "\n")

	var spans []span
	offset, depth := 0, 0
	for i, line := range lines {
		stripped := strings.TrimSpace(line)
		if i == 0 || (depth == 0 && scriptBoundaryPattern.MatchString(stripped)) {
			spans = append(spans, span{start: offset, section: s.classify(stripped)})
		}
		depth += strings.Count(stripped, "{") - strings.Count(stripped, "}")
		if depth < 0 {
			depth = 0
		}
		offset += len(line)
	}

	for i := range spans {
		if i+1 < len(spans) {
			spans[i].end = spans[i+1].start
		} else {
			spans[i].end = len(content)
		}
	}
	return spans
}

func (s *scriptStrategy) classify(firstLine string) string {
	switch {
	case componentStartPattern.MatchString(firstLine):
		return SectionComponent
	case importStartPattern.MatchString(firstLine):
		return SectionImports
	case strings.HasPrefix(firstLine, "/*"), strings.HasPrefix(firstLine, "//"):
		return SectionComments
	default:
		return s.defaultSection
	}
}

// merge joins adjacent spans of the same section while the result stays
// under target. Imports and comments always coalesce; declarations only
// absorb a neighbor when the earlier one is below the minimum size.
func (s *scriptStrategy) merge(content string, spans []span) []span {
	if len(spans) == 0 {
		return nil
	}

	out := []span{spans[0]}
	for _, sp := range spans[1:] {
		prev := &out[len(out)-1]
		prevLen := runeLen(strings.TrimSpace(content[prev.start:prev.end]))
		curLen := runeLen(strings.TrimSpace(content[sp.start:sp.end]))

		coalesce := sp.section == SectionImports || sp.section == SectionComments || prevLen < s.min
		if prev.section == sp.section && prevLen+curLen < s.target && coalesce {
			prev.end = sp.end
			continue
		}
		out = append(out, sp)
	}
	return out
}
