package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/satnambhatt/ai-engine/internal/errors"
)

// clearEnv unsets every variable the loader reads for the test's duration.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"DESIGN_LIBRARY_ROOT", "OLLAMA_URL", "OLLAMA_BASE_URL", "EMBEDDING_MODEL",
		"DESIGN_INDEX_STORE_DIR", "DESIGN_INDEX_LOG_LEVEL", "DESIGN_INDEX_MAX_WORKERS",
	} {
		t.Setenv(k, "")
		require.NoError(t, os.Unsetenv(k))
	}
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
}

func TestNewConfig_ReturnsDefaults(t *testing.T) {
	// Given: no configuration file exists
	cfg := NewConfig()

	// Then: the Pi defaults are applied
	require.NotNil(t, cfg)
	assert.Equal(t, "/mnt/design-library", cfg.Library.Root)
	assert.Equal(t, []string{"example-websites", "components", "seo-configs", "style-guides"}, cfg.Library.IndexPaths)
	assert.Equal(t, filepath.Join("/mnt/design-library", ".index"), cfg.MetadataDir())

	assert.Equal(t, 1000, cfg.Chunking.TargetChars)
	assert.Equal(t, 2000, cfg.Chunking.MaxChars)
	assert.Equal(t, 100, cfg.Chunking.MinChars)

	assert.Equal(t, ByteSize(500000), cfg.Discovery.MaxFileSize)
	assert.Contains(t, cfg.Discovery.SkipDirectories, "node_modules")
	assert.Contains(t, cfg.Discovery.SkipExtensions, ".min.js")
	assert.Contains(t, cfg.Discovery.ConfigFilenames, "tailwind.config.js")

	assert.Equal(t, "nomic-embed-text", cfg.Embedding.Model)
	assert.Equal(t, 10*time.Minute, cfg.Embedding.Timeout.Std())
	assert.Equal(t, 30000, cfg.Embedding.MaxInputChars)

	assert.Equal(t, 100, cfg.Indexing.BatchSize)
	assert.Equal(t, 25, cfg.Indexing.LogEvery)

	assert.Equal(t, 1, cfg.Workers.Min)
	assert.Equal(t, 3, cfg.Workers.Max)
	assert.Equal(t, 3, cfg.Workers.Baseline)
	assert.Equal(t, 50, cfg.Workers.EvaluateEvery)
	assert.Equal(t, 75.0, cfg.Workers.TempThrottle)
	assert.Equal(t, 65.0, cfg.Workers.TempRecover)
	assert.Equal(t, 2, cfg.Workers.ThrottledWorkers)

	assert.Equal(t, 30*time.Second, cfg.Watch.Debounce.Std())
	assert.NoError(t, cfg.Validate())
}

func TestLoadFrom_YAMLOverridesDefaults(t *testing.T) {
	clearEnv(t)

	// Given: a config file overriding a few keys
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
library:
  root: /srv/library
  index_paths: [components]
discovery:
  max_file_size: 250KB
chunking:
  target_chars: 800
workers:
  mem_high: 2GB
watch:
  debounce: 45s
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	// When: loading
	cfg, err := LoadFrom(path, "")

	// Then: overridden keys change and the rest keep defaults
	require.NoError(t, err)
	assert.Equal(t, "/srv/library", cfg.Library.Root)
	assert.Equal(t, []string{"components"}, cfg.Library.IndexPaths)
	assert.Equal(t, ByteSize(250000), cfg.Discovery.MaxFileSize)
	assert.Equal(t, 800, cfg.Chunking.TargetChars)
	assert.Equal(t, 2000, cfg.Chunking.MaxChars)
	assert.Equal(t, ByteSize(2000000000), cfg.Workers.MemHigh)
	assert.Equal(t, 45*time.Second, cfg.Watch.Debounce.Std())
	assert.Equal(t, "nomic-embed-text", cfg.Embedding.Model)
}

func TestLoadFrom_ExplicitMissingFileFails(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "nope.yaml")

	_, err := LoadFrom(path, "")

	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeConfigNotFound, errors.GetCode(err))
	assert.Contains(t, errors.FormatForCLI(err), path)
}

func TestLoadFrom_InvalidValuesAreConfigErrors(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("workers:\n  min: 4\n  max: 2\n"), 0o644))

	_, err := LoadFrom(path, "")

	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeConfigInvalid, errors.GetCode(err))
}

func TestNewConfig_MemoryThresholdsAreBinary(t *testing.T) {
	w := NewConfig().Workers

	assert.Equal(t, ByteSize(1288490188), w.MemHigh)
	assert.Equal(t, ByteSize(644245094), w.MemLow)
}

func TestLoadFrom_InvalidYAMLFails(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("discovery:\n  max_file_size: lots\n"), 0o644))

	_, err := LoadFrom(path, "")

	assert.Error(t, err)
}

func TestLoadFrom_EnvFileAndOverrides(t *testing.T) {
	clearEnv(t)

	// Given: a dotenv file and one variable already set in the environment
	envPath := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(envPath, []byte(
		"OLLAMA_URL=http://pi.local:11434\nEMBEDDING_MODEL=from-dotenv\n"), 0o644))
	t.Setenv("EMBEDDING_MODEL", "from-env")
	t.Setenv("DESIGN_INDEX_MAX_WORKERS", "2")

	// When: loading
	cfg, err := LoadFrom("", envPath)

	// Then: dotenv fills gaps but never overrides the real environment
	require.NoError(t, err)
	assert.Equal(t, "http://pi.local:11434", cfg.Embedding.BaseURL)
	assert.Equal(t, "from-env", cfg.Embedding.Model)
	assert.Equal(t, 2, cfg.Workers.Max)
	assert.Equal(t, 2, cfg.Workers.Baseline)
	_ = os.Unsetenv("OLLAMA_URL")
}

func TestValidate_RejectsBadValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty root", func(c *Config) { c.Library.Root = "" }},
		{"no index paths", func(c *Config) { c.Library.IndexPaths = nil }},
		{"min above target", func(c *Config) { c.Chunking.MinChars = 1500 }},
		{"target above max", func(c *Config) { c.Chunking.TargetChars = 3000 }},
		{"zero min", func(c *Config) { c.Chunking.MinChars = 0 }},
		{"zero batch", func(c *Config) { c.Indexing.BatchSize = 0 }},
		{"baseline outside bounds", func(c *Config) { c.Workers.Baseline = 5 }},
		{"min above max", func(c *Config) { c.Workers.Min = 4 }},
		{"recover above throttle", func(c *Config) { c.Workers.TempRecover = 80 }},
		{"bad log level", func(c *Config) { c.Logging.Level = "loud" }},
		{"zero retries", func(c *Config) { c.Embedding.MaxRetries = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewConfig()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestByteSize_YAMLRoundTrip(t *testing.T) {
	var v struct {
		A ByteSize `yaml:"a"`
		B ByteSize `yaml:"b"`
	}
	require.NoError(t, yaml.Unmarshal([]byte("a: 1024\nb: 1.5MB\n"), &v))

	assert.Equal(t, ByteSize(1024), v.A)
	assert.Equal(t, ByteSize(1500000), v.B)
	assert.Equal(t, "1.5 MB", v.B.String())
}

func TestWriteYAML_LoadsBack(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	cfg := NewConfig()
	cfg.Library.Root = "/data/lib"

	require.NoError(t, cfg.WriteYAML(path))
	loaded, err := LoadFrom(path, "")

	require.NoError(t, err)
	assert.Equal(t, "/data/lib", loaded.Library.Root)
	assert.Equal(t, cfg.Discovery.MaxFileSize, loaded.Discovery.MaxFileSize)
	assert.Equal(t, cfg.Watch.Debounce, loaded.Watch.Debounce)
}
