package engine

import (
	"strings"

	"github.com/satnambhatt/ai-engine/internal/chunk"
	"github.com/satnambhatt/ai-engine/internal/discovery"
)

var frameworkLabels = map[string]string{
	discovery.FrameworkHTML:       "HTML/CSS webpage",
	discovery.FrameworkReact:      "React component",
	discovery.FrameworkNextJS:     "Next.js component",
	discovery.FrameworkAstro:      "Astro component",
	discovery.FrameworkVue:        "Vue.js component",
	discovery.FrameworkSvelte:     "Svelte component",
	discovery.FrameworkCSS:        "CSS stylesheet",
	discovery.FrameworkTypeScript: "TypeScript module",
	discovery.FrameworkJavaScript: "JavaScript module",
	discovery.FrameworkConfig:     "Configuration file",
}

// buildPrefix describes what a chunk is so the embedding carries context
// the raw code lacks, e.g. "React component. from shadcn repository.
// hero section. Section type: component. File: repos/shadcn/hero.tsx."
func buildPrefix(f *discovery.File, section string) string {
	label, ok := frameworkLabels[f.Framework]
	if !ok {
		label = "Web code"
	}
	parts := []string{label}

	if f.Repo != "" {
		parts = append(parts, "from "+f.Repo+" repository")
	}
	if f.Category != "" {
		parts = append(parts, f.Category+" section")
	}
	if section != "" && section != chunk.SectionFragment && section != chunk.SectionRules {
		parts = append(parts, "Section type: "+section)
	}
	parts = append(parts, "File: "+f.RelPath)

	return strings.Join(parts, ". ") + "."
}

// embedText is the text sent to the embedder for a chunk.
func embedText(prefix, text string) string {
	return prefix + "\n\n" + text
}
