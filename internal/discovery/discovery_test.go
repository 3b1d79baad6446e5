package discovery

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/satnambhatt/ai-engine/internal/config"
	"github.com/satnambhatt/ai-engine/internal/state"
)

// newLibrary builds a temp library and returns its root.
func newLibrary(t *testing.T, files map[string]string) string {
	t.Helper()
	root := t.TempDir()
	for rel, content := range files {
		writeFile(t, root, rel, content)
	}
	return root
}

func writeFile(t *testing.T, root, rel, content string) {
	t.Helper()
	path := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func testOptions(root string) Options {
	opts := OptionsFromConfig(config.NewConfig())
	opts.Root = root
	return opts
}

func collect(t *testing.T, d *Discoverer, incremental bool) map[string]*File {
	t.Helper()
	out := map[string]*File{}
	for f := range d.Discover(context.Background(), incremental) {
		out[f.RelPath] = f
	}
	return out
}

func TestNew_Validation(t *testing.T) {
	_, err := New(Options{MaxFileSize: 10}, nil)
	assert.Error(t, err)

	_, err = New(Options{Root: t.TempDir()}, nil)
	assert.Error(t, err)
}

func TestDiscover_FiltersAndMetadata(t *testing.T) {
	// Given: a library with indexable and excluded files
	root := newLibrary(t, map[string]string{
		"components/hero/Hero.jsx":                         "export default function Hero() {}",
		"components/footer.html":                           "<footer>hi</footer>",
		"components/node_modules/pkg/index.js":             "module.exports = 1",
		"components/dist/bundle.js":                        "var a",
		"components/vendor.min.js":                         "var a",
		"components/site.min.css":                          "a{}",
		"components/logo.png":                              "png",
		"components/LICENSE":                               "MIT",
		"components/notes.md":                              "# notes",
		"components/random.json":                           `{"a":1}`,
		"components/package.json":                          `{"name":"x"}`,
		"example-websites/react/shadcn-taxonomy/src/a.tsx": "export const A = () => null",
		"style-guides/tokens.css":                          ":root { --x: 1; }",
		"seo-configs/.index/file_hashes.json":              "{}",
		"elsewhere/ignored.js":                             "not under an index path",
	})
	d, err := New(testOptions(root), nil)
	require.NoError(t, err)

	// When: discovering in full mode
	files := collect(t, d, false)

	// Then: only allowed files are yielded, with inferred metadata
	assert.ElementsMatch(t, []string{
		"components/hero/Hero.jsx",
		"components/footer.html",
		"components/package.json",
		"example-websites/react/shadcn-taxonomy/src/a.tsx",
		"style-guides/tokens.css",
	}, keys(files))

	hero := files["components/hero/Hero.jsx"]
	assert.Equal(t, FrameworkReact, hero.Framework)
	assert.Equal(t, "hero", hero.Category)
	assert.Equal(t, KindCode, hero.Kind)
	assert.Equal(t, ".jsx", hero.Ext)
	assert.Equal(t, HashBytes([]byte("export default function Hero() {}")), hero.Hash)
	assert.Equal(t, filepath.Join(root, "components", "hero", "Hero.jsx"), hero.Path)

	pkg := files["components/package.json"]
	assert.Equal(t, KindConfig, pkg.Kind)
	assert.Equal(t, FrameworkConfig, pkg.Framework)

	site := files["example-websites/react/shadcn-taxonomy/src/a.tsx"]
	assert.Equal(t, "shadcn-taxonomy", site.Repo)

	assert.Equal(t, "footer", files["components/footer.html"].Category)
	assert.Equal(t, FrameworkCSS, files["style-guides/tokens.css"].Framework)

	stats := d.Stats()
	assert.Equal(t, 5, stats.Yielded)
	assert.Equal(t, 1, stats.SkippedName)
	assert.Equal(t, 3, stats.SkippedExt)
	assert.Equal(t, 2, stats.SkippedKind)
	assert.GreaterOrEqual(t, stats.PrunedDirs, 3)
}

func TestDiscover_OversizeAndEmptyNeverYielded(t *testing.T) {
	// Given: a zero-byte file and a file one byte over the limit
	root := newLibrary(t, map[string]string{
		"components/empty.html": "",
		"components/big.html":   strings.Repeat("a", 101),
		"components/ok.html":    strings.Repeat("a", 100),
	})
	opts := testOptions(root)
	opts.MaxFileSize = 100
	d, err := New(opts, nil)
	require.NoError(t, err)

	// When: discovering
	files := collect(t, d, false)

	// Then: only the file at the limit is yielded
	assert.Equal(t, []string{"components/ok.html"}, keys(files))
	assert.Equal(t, 1, d.Stats().SkippedSize)
	assert.Equal(t, 1, d.Stats().SkippedEmpty)
	assert.Equal(t, 1, d.Count(context.Background(), false))
}

func TestDiscover_IncrementalSkipsUnchanged(t *testing.T) {
	// Given: a snapshot from a previous walk
	root := newLibrary(t, map[string]string{
		"components/a.css": "a { color: red; }",
		"components/b.css": "b { color: blue; }",
	})
	first, err := New(testOptions(root), nil)
	require.NoError(t, err)
	require.Len(t, collect(t, first, true), 2)
	prev := first.Observed()

	// When: one file changes and the walk is repeated
	writeFile(t, root, "components/b.css", "b { color: green; }")
	second, err := New(testOptions(root), prev)
	require.NoError(t, err)
	assert.Equal(t, 1, second.Count(context.Background(), true))
	files := collect(t, second, true)

	// Then: only the changed file is yielded, both are observed
	assert.Equal(t, []string{"components/b.css"}, keys(files))
	assert.Equal(t, 1, second.Stats().Unchanged)
	observed := second.Observed()
	assert.Len(t, observed, 2)
	assert.Equal(t, prev["components/a.css"], observed["components/a.css"])
	assert.NotEqual(t, prev["components/b.css"], observed["components/b.css"])

	// And: a full walk yields everything regardless of the snapshot
	assert.Len(t, collect(t, second, false), 2)
}

func TestDiscover_DeletedFiles(t *testing.T) {
	// Given: a previous snapshot naming a file that is gone
	root := newLibrary(t, map[string]string{"components/keep.html": "<p>x</p>"})
	prev := state.Snapshot{
		"components/keep.html": HashBytes([]byte("<p>x</p>")),
		"components/gone.html": "deadbeef",
		"components/also.css":  "cafe",
	}
	d, err := New(testOptions(root), prev)
	require.NoError(t, err)

	// When: walking
	collect(t, d, true)

	// Then: the missing files are reported, sorted
	assert.Equal(t, []string{"components/also.css", "components/gone.html"}, d.Deleted())
}

func TestDiscover_UnreadableFileKeepsPreviousHash(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("root can read files without permission")
	}

	// Given: a previously indexed file that is now unreadable
	root := newLibrary(t, map[string]string{"components/locked.html": "<p>x</p>"})
	path := filepath.Join(root, "components", "locked.html")
	require.NoError(t, os.Chmod(path, 0o000))
	t.Cleanup(func() { _ = os.Chmod(path, 0o644) })

	prev := state.Snapshot{"components/locked.html": "oldhash"}
	d, err := New(testOptions(root), prev)
	require.NoError(t, err)

	// When: walking
	files := collect(t, d, true)

	// Then: not yielded, not deleted, previous hash kept
	assert.Empty(t, files)
	assert.Empty(t, d.Deleted())
	assert.Equal(t, "oldhash", d.Observed()["components/locked.html"])
	assert.Equal(t, 1, d.Stats().ReadErrors)
}

func TestDiscover_MissingIndexPathSkipped(t *testing.T) {
	root := newLibrary(t, map[string]string{"components/a.html": "<p>a</p>"})
	opts := testOptions(root)
	opts.IndexPaths = []string{"does-not-exist", "components"}
	d, err := New(opts, nil)
	require.NoError(t, err)

	files := collect(t, d, false)

	assert.Len(t, files, 1)
	assert.Equal(t, 1, d.Stats().MissingPaths)
}

func TestDiscover_Cancelled(t *testing.T) {
	root := newLibrary(t, map[string]string{
		"components/a.html": "<p>a</p>",
		"components/b.html": "<p>b</p>",
	})
	d, err := New(testOptions(root), nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	n := 0
	for range d.Discover(ctx, false) {
		n++
	}
	assert.Zero(t, n)
}

func TestDetectFramework_NextJS(t *testing.T) {
	// Given: a Next.js project with no "next" in its path, and a plain React app
	root := newLibrary(t, map[string]string{
		"example-websites/react/site/next.config.mjs":       "export default {}",
		"example-websites/react/site/app/page.tsx":          "export default function Page() {}",
		"example-websites/react/spa/src/pages/Home.tsx":     "export default function Home() {}",
		"example-websites/nextjs/blog/components/Post.jsx":  "export default function Post() {}",
		"example-websites/react/spa/src/components/Btn.tsx": "export const Btn = () => null",
	})
	d, err := New(testOptions(root), nil)
	require.NoError(t, err)

	files := collect(t, d, false)

	assert.Equal(t, FrameworkNextJS, files["example-websites/react/site/app/page.tsx"].Framework)
	assert.Equal(t, FrameworkNextJS, files["example-websites/nextjs/blog/components/Post.jsx"].Framework)
	assert.Equal(t, FrameworkReact, files["example-websites/react/spa/src/pages/Home.tsx"].Framework)
	assert.Equal(t, FrameworkReact, files["example-websites/react/spa/src/components/Btn.tsx"].Framework)
}

func TestDetectFramework_ByExtension(t *testing.T) {
	d, err := New(Options{Root: t.TempDir(), MaxFileSize: 1}, nil)
	require.NoError(t, err)

	tests := []struct {
		ext  string
		want string
	}{
		{".astro", FrameworkAstro},
		{".vue", FrameworkVue},
		{".svelte", FrameworkSvelte},
		{".ts", FrameworkTypeScript},
		{".scss", FrameworkCSS},
		{".htm", FrameworkHTML},
		{".js", FrameworkJavaScript},
		{".txt", FrameworkUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.ext, func(t *testing.T) {
			assert.Equal(t, tt.want, d.detectFramework("x/file"+tt.ext, tt.ext, KindCode))
		})
	}
}

func TestDetectRepo(t *testing.T) {
	tests := []struct {
		rel  string
		want string
	}{
		{"example-websites/react/shadcn-taxonomy/src/a.tsx", "shadcn-taxonomy"},
		{"example-websites/solo/index.html", "solo"},
		{"example-websites/index.html", ""},
		{"components/hero/Hero.jsx", ""},
	}
	for _, tt := range tests {
		t.Run(tt.rel, func(t *testing.T) {
			assert.Equal(t, tt.want, detectRepo(tt.rel, "example-websites"))
		})
	}
	assert.Empty(t, detectRepo("example-websites/a/b/c.html", ""))
}

func TestDetectCategory(t *testing.T) {
	tests := []struct {
		rel  string
		want string
	}{
		{"components/SiteNavbar.jsx", "header"},
		{"components/pricing/Table.jsx", "pricing"},
		{"components/PriceCard.vue", "card"},
		{"components/misc/Thing.jsx", ""},
		{"components/NotFound.astro", ""},
		{"components/not-found.astro", "404"},
		{"components/faq/index.html", "faq"},
	}
	for _, tt := range tests {
		t.Run(tt.rel, func(t *testing.T) {
			assert.Equal(t, tt.want, detectCategory(tt.rel))
		})
	}
}

func keys(m map[string]*File) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}
