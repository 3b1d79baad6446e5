package watcher

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/satnambhatt/ai-engine/internal/config"
)

func testOptions(root string) Options {
	return Options{
		Root:            root,
		IndexPaths:      []string{"components", "example-websites"},
		Extensions:      []string{".html", ".css", ".tsx"},
		Filenames:       []string{"package.json"},
		SkipDirectories: []string{"node_modules", ".git"},
		Debounce:        50 * time.Millisecond,
		PollInterval:    50 * time.Millisecond,
		Logger:          discardLogger(),
	}
}

func TestOperation_String(t *testing.T) {
	tests := []struct {
		name string
		op   Operation
		want string
	}{
		{"create", OpCreate, "CREATE"},
		{"modify", OpModify, "MODIFY"},
		{"delete", OpDelete, "DELETE"},
		{"rename", OpRename, "RENAME"},
		{"unknown", Operation(99), "UNKNOWN"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.op.String())
		})
	}
}

func TestOptions_WithDefaults(t *testing.T) {
	opts := Options{}.WithDefaults()

	assert.Equal(t, 30*time.Second, opts.Debounce)
	assert.Equal(t, 5*time.Second, opts.PollInterval)
	assert.Equal(t, 16, opts.EventBufferSize)
	assert.NotNil(t, opts.Logger)

	custom := Options{Debounce: time.Second}.WithDefaults()
	assert.Equal(t, time.Second, custom.Debounce)
}

func TestOptionsFromConfig(t *testing.T) {
	cfg := config.NewConfig()
	cfg.Library.Root = "/mnt/design-library"

	opts := OptionsFromConfig(cfg)

	assert.Equal(t, "/mnt/design-library", opts.Root)
	assert.Equal(t, cfg.Library.IndexPaths, opts.IndexPaths)
	assert.Equal(t, 30*time.Second, opts.Debounce)
	assert.Contains(t, opts.Extensions, ".html")
	assert.Contains(t, opts.Extensions, ".json")
	assert.Contains(t, opts.Filenames, "package.json")
	assert.Contains(t, opts.SkipDirectories, "node_modules")
}

func TestFilter_WatchDir(t *testing.T) {
	f := newFilter(testOptions("/lib"))

	tests := []struct {
		rel  string
		want bool
	}{
		{".", true},
		{"components", true},
		{"components/heroes", true},
		{"example-websites/shadcn/src", true},
		{"components/node_modules", false},
		{"example-websites/shadcn/.git/objects", false},
		{"drafts", false},
		{"componentsx", false},
	}

	for _, tt := range tests {
		t.Run(tt.rel, func(t *testing.T) {
			assert.Equal(t, tt.want, f.watchDir(tt.rel))
		})
	}
}

func TestFilter_Relevant(t *testing.T) {
	f := newFilter(testOptions("/lib"))

	tests := []struct {
		name  string
		rel   string
		op    Operation
		isDir bool
		want  bool
	}{
		{"code file", "components/hero.html", OpModify, false, true},
		{"extension is case-insensitive", "components/Hero.HTML", OpCreate, false, true},
		{"config filename", "example-websites/shadcn/package.json", OpModify, false, true},
		{"unwatched extension", "components/notes.md", OpModify, false, false},
		{"outside index paths", "drafts/hero.html", OpModify, false, false},
		{"root file", "hero.html", OpModify, false, false},
		{"skipped directory", "components/node_modules/x/index.css", OpModify, false, false},
		{"removed extensionless path", "components/heroes", OpDelete, false, true},
		{"renamed extensionless path", "components/heroes", OpRename, false, true},
		{"modified extensionless file", "components/LICENSE", OpModify, false, false},
		{"new directory", "components/heroes", OpCreate, true, true},
		{"directory attribute change", "components/heroes", OpModify, true, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, f.relevant(tt.rel, tt.op, tt.isDir))
		})
	}
}
