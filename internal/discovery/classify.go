package discovery

import (
	"os"
	"path"
	"path/filepath"
	"strings"
)

// categoryKeywords is checked in order; the first matching keyword wins.
var categoryKeywords = []struct {
	category string
	keywords []string
}{
	{"header", []string{"header", "navbar", "nav-bar", "navigation", "topbar", "top-bar"}},
	{"hero", []string{"hero", "banner", "jumbotron", "landing-hero", "above-fold"}},
	{"footer", []string{"footer", "bottom-bar", "site-footer"}},
	{"pricing", []string{"pricing", "price-table", "price-card", "plan"}},
	{"testimonial", []string{"testimonial", "review", "quote", "social-proof"}},
	{"contact", []string{"contact", "contact-form", "get-in-touch"}},
	{"cta", []string{"cta", "call-to-action", "signup"}},
	{"feature", []string{"feature", "features", "benefit", "services"}},
	{"faq", []string{"faq", "accordion", "questions"}},
	{"404", []string{"404", "not-found", "error-page"}},
	{"auth", []string{"login", "signin", "signup", "register", "auth"}},
	{"sidebar", []string{"sidebar", "side-nav", "drawer"}},
	{"card", []string{"card", "cards", "grid-card"}},
	{"modal", []string{"modal", "dialog", "popup"}},
	{"form", []string{"form", "input", "field"}},
	{"table", []string{"table", "data-table", "grid"}},
	{"layout", []string{"layout", "page-layout", "wrapper", "shell"}},
}

// detectCategory matches the keyword table against the lower-cased file
// stem and against "/keyword" anywhere in the lower-cased path.
func detectCategory(relPath string) string {
	lowerPath := "/" + strings.ToLower(relPath)
	base := path.Base(relPath)
	stem := strings.ToLower(strings.TrimSuffix(base, path.Ext(base)))

	for _, entry := range categoryKeywords {
		for _, kw := range entry.keywords {
			if strings.Contains(stem, kw) || strings.Contains(lowerPath, "/"+kw) {
				return entry.category
			}
		}
	}
	return ""
}

// detectRepo returns the repository name for files under the repos dir:
// the second path segment below it, or the first when there is only one
// directory level. Files directly in the repos dir, or outside it, have
// no repository.
func detectRepo(relPath, reposDir string) string {
	if reposDir == "" {
		return ""
	}
	prefix := strings.Trim(filepath.ToSlash(reposDir), "/") + "/"
	if !strings.HasPrefix(relPath, prefix) {
		return ""
	}

	dirs := strings.Split(strings.TrimPrefix(relPath, prefix), "/")
	dirs = dirs[:len(dirs)-1]
	switch {
	case len(dirs) >= 2:
		return dirs[1]
	case len(dirs) == 1:
		return dirs[0]
	default:
		return ""
	}
}

// detectFramework infers the framework from the extension, and for
// jsx/tsx from the path.
func (d *Discoverer) detectFramework(relPath, ext string, kind Kind) string {
	if kind == KindConfig {
		return FrameworkConfig
	}

	switch ext {
	case ".astro":
		return FrameworkAstro
	case ".vue":
		return FrameworkVue
	case ".svelte":
		return FrameworkSvelte
	case ".jsx", ".tsx":
		if d.isNextJS(relPath) {
			return FrameworkNextJS
		}
		return FrameworkReact
	case ".ts":
		return FrameworkTypeScript
	case ".css", ".scss", ".sass":
		return FrameworkCSS
	case ".html", ".htm":
		return FrameworkHTML
	case ".js", ".mjs", ".cjs":
		return FrameworkJavaScript
	default:
		return FrameworkUnknown
	}
}

// isNextJS reports whether a component file belongs to a Next.js project:
// any path segment naming "next", or a pages/app directory with a
// next.config.* in its directory chain.
func (d *Discoverer) isNextJS(relPath string) bool {
	segments := strings.Split(strings.ToLower(relPath), "/")
	for _, seg := range segments {
		if strings.Contains(seg, "next") {
			return true
		}
	}

	dirs := segments[:len(segments)-1]
	routed := false
	for _, seg := range dirs {
		if seg == "pages" || seg == "app" {
			routed = true
			break
		}
	}
	if !routed {
		return false
	}

	// Walk from the file's directory up to the library root.
	dir := path.Dir(relPath)
	for {
		if d.hasNextConfig(dir) {
			return true
		}
		if dir == "." || dir == "/" || dir == "" {
			return false
		}
		dir = path.Dir(dir)
	}
}

// hasNextConfig reports whether a library-relative directory holds a
// next.config.* file. Results are memoized per directory.
func (d *Discoverer) hasNextConfig(relDir string) bool {
	if found, ok := d.nextConfigCache.Get(relDir); ok {
		return found
	}

	found := false
	entries, err := os.ReadDir(filepath.Join(d.root, filepath.FromSlash(relDir)))
	if err == nil {
		for _, e := range entries {
			if !e.IsDir() && strings.HasPrefix(strings.ToLower(e.Name()), "next.config.") {
				found = true
				break
			}
		}
	}

	d.nextConfigCache.Add(relDir, found)
	return found
}
