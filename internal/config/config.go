// Package config loads the indexer configuration.
//
// Values are layered in order of increasing precedence: built-in defaults,
// the YAML config file, ~/ai-engine/.env, then environment variables.
// The resulting value is passed explicitly to every component.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/satnambhatt/ai-engine/internal/errors"
)

// Config represents the complete indexer configuration.
type Config struct {
	Library   LibraryConfig   `yaml:"library" json:"library"`
	Discovery DiscoveryConfig `yaml:"discovery" json:"discovery"`
	Chunking  ChunkingConfig  `yaml:"chunking" json:"chunking"`
	Embedding EmbeddingConfig `yaml:"embedding" json:"embedding"`
	Store     StoreConfig     `yaml:"store" json:"store"`
	Indexing  IndexingConfig  `yaml:"indexing" json:"indexing"`
	Workers   WorkersConfig   `yaml:"workers" json:"workers"`
	Watch     WatchConfig     `yaml:"watch" json:"watch"`
	Logging   LoggingConfig   `yaml:"logging" json:"logging"`
}

// LibraryConfig locates the design library on disk.
type LibraryConfig struct {
	// Root is the library mount point.
	Root string `yaml:"root" json:"root"`
	// MetadataDir holds file hashes, run stats and the run lock.
	// Empty means <Root>/.index.
	MetadataDir string `yaml:"metadata_dir" json:"metadata_dir"`
	// IndexPaths are the directories under Root that get indexed.
	IndexPaths []string `yaml:"index_paths" json:"index_paths"`
	// ReposDir is the index path whose second segment names the source repo.
	ReposDir string `yaml:"repos_dir" json:"repos_dir"`
}

// DiscoveryConfig controls which files are indexed.
type DiscoveryConfig struct {
	CodeExtensions   []string `yaml:"code_extensions" json:"code_extensions"`
	ConfigExtensions []string `yaml:"config_extensions" json:"config_extensions"`
	// ConfigFilenames is the allow-list for files with a config extension.
	ConfigFilenames []string `yaml:"config_filenames" json:"config_filenames"`
	SkipDirectories []string `yaml:"skip_directories" json:"skip_directories"`
	SkipExtensions  []string `yaml:"skip_extensions" json:"skip_extensions"`
	SkipFilenames   []string `yaml:"skip_filenames" json:"skip_filenames"`
	MaxFileSize     ByteSize `yaml:"max_file_size" json:"max_file_size"`
}

// ChunkingConfig bounds chunk sizes, in characters.
type ChunkingConfig struct {
	TargetChars int `yaml:"target_chars" json:"target_chars"`
	MaxChars    int `yaml:"max_chars" json:"max_chars"`
	MinChars    int `yaml:"min_chars" json:"min_chars"`
}

// EmbeddingConfig configures the Ollama embedding service.
type EmbeddingConfig struct {
	BaseURL string `yaml:"base_url" json:"base_url"`
	Model   string `yaml:"model" json:"model"`
	// Timeout bounds one embedding request. Pi-class hardware needs minutes.
	Timeout       Duration `yaml:"timeout" json:"timeout"`
	MaxInputChars int      `yaml:"max_input_chars" json:"max_input_chars"`
	MaxRetries    int      `yaml:"max_retries" json:"max_retries"`
	// CacheSize is the number of embeddings memoized per process. 0 disables.
	CacheSize int `yaml:"cache_size" json:"cache_size"`
}

// StoreConfig locates the vector store.
type StoreConfig struct {
	Dir        string `yaml:"dir" json:"dir"`
	Collection string `yaml:"collection" json:"collection"`
}

// IndexingConfig controls run batching and progress cadence.
type IndexingConfig struct {
	BatchSize int `yaml:"batch_size" json:"batch_size"`
	LogEvery  int `yaml:"log_every" json:"log_every"`
}

// WorkersConfig configures the adaptive embedding pool.
type WorkersConfig struct {
	Min      int `yaml:"min" json:"min"`
	Max      int `yaml:"max" json:"max"`
	Baseline int `yaml:"baseline" json:"baseline"`
	// EvaluateEvery is the number of processed files between re-evaluations.
	EvaluateEvery int `yaml:"evaluate_every" json:"evaluate_every"`

	LoadLow  float64  `yaml:"load_low" json:"load_low"`
	LoadHigh float64  `yaml:"load_high" json:"load_high"`
	MemHigh  ByteSize `yaml:"mem_high" json:"mem_high"`
	MemLow   ByteSize `yaml:"mem_low" json:"mem_low"`

	TempCaution  float64 `yaml:"temp_caution" json:"temp_caution"`
	TempThrottle float64 `yaml:"temp_throttle" json:"temp_throttle"`
	TempRecover  float64 `yaml:"temp_recover" json:"temp_recover"`
	// ThrottledWorkers is held while the thermal throttle is engaged.
	ThrottledWorkers int `yaml:"throttled_workers" json:"throttled_workers"`
}

// WatchConfig configures the library watcher.
type WatchConfig struct {
	Debounce Duration `yaml:"debounce" json:"debounce"`
}

// LoggingConfig configures log output.
type LoggingConfig struct {
	Level    string   `yaml:"level" json:"level"`
	File     string   `yaml:"file" json:"file"`
	MaxSize  ByteSize `yaml:"max_size" json:"max_size"`
	MaxFiles int      `yaml:"max_files" json:"max_files"`
}

// NewConfig creates a new Config with the defaults for a Pi-hosted library.
func NewConfig() *Config {
	return &Config{
		Library: LibraryConfig{
			Root:       "/mnt/design-library",
			IndexPaths: []string{"example-websites", "components", "seo-configs", "style-guides"},
			ReposDir:   "example-websites",
		},
		Discovery: DiscoveryConfig{
			CodeExtensions: []string{
				".html", ".htm", ".css", ".scss", ".sass",
				".js", ".jsx", ".tsx", ".ts",
				".vue", ".svelte", ".astro",
			},
			ConfigExtensions: []string{".json", ".yaml", ".yml", ".toml"},
			ConfigFilenames: []string{
				"package.json", "tailwind.config.js", "tailwind.config.ts",
				"tailwind.config.mjs", "next.config.js", "next.config.mjs",
				"next.config.ts", "astro.config.mjs", "astro.config.ts",
				"vite.config.js", "vite.config.ts", "nuxt.config.ts",
				"svelte.config.js", "tsconfig.json",
			},
			SkipDirectories: []string{
				"node_modules", ".git", ".github", ".vscode", ".idea",
				"dist", "build", ".next", ".output", ".nuxt", ".svelte-kit",
				".astro", "__pycache__", ".cache", ".turbo", ".vercel",
				"coverage", ".nyc_output", "storybook-static",
				".index",
			},
			SkipExtensions: []string{
				".min.js", ".min.css",
				".map",
				".png", ".jpg", ".jpeg", ".gif", ".svg", ".webp", ".ico",
				".bmp", ".tiff", ".avif",
				".woff", ".woff2", ".ttf", ".eot", ".otf",
				".mp4", ".webm", ".mp3", ".ogg", ".wav",
				".zip", ".tar", ".gz", ".br",
				".lock",
				".pdf", ".doc", ".docx", ".psd", ".ai", ".sketch", ".fig",
			},
			SkipFilenames: []string{
				"LICENSE", "LICENSE.md", "LICENSE.txt",
				"CHANGELOG.md", "CHANGELOG.txt",
				"CONTRIBUTING.md", "CODE_OF_CONDUCT.md",
				".gitignore", ".gitattributes",
				".eslintrc", ".eslintrc.js", ".eslintrc.json",
				".prettierrc", ".prettierrc.js", ".prettierrc.json",
				".editorconfig", ".npmrc", ".nvmrc",
				"yarn.lock", "package-lock.json", "pnpm-lock.yaml",
				"bun.lockb",
				".env", ".env.local", ".env.example",
			},
			MaxFileSize: ByteSize(500 * humanize.KByte),
		},
		Chunking: ChunkingConfig{
			TargetChars: 1000,
			MaxChars:    2000,
			MinChars:    100,
		},
		Embedding: EmbeddingConfig{
			BaseURL:       "http://localhost:11434",
			Model:         "nomic-embed-text",
			Timeout:       Duration(10 * time.Minute),
			MaxInputChars: 30000,
			MaxRetries:    3,
			CacheSize:     2048,
		},
		Store: StoreConfig{
			Dir:        defaultStoreDir(),
			Collection: "design_library",
		},
		Indexing: IndexingConfig{
			BatchSize: 100,
			LogEvery:  25,
		},
		Workers: WorkersConfig{
			Min:              1,
			Max:              3,
			Baseline:         3,
			EvaluateEvery:    50,
			LoadLow:          0.6,
			LoadHigh:         1.0,
			MemHigh:          ByteSize(12 * humanize.GiByte / 10),
			MemLow:           ByteSize(6 * humanize.GiByte / 10),
			TempCaution:      65,
			TempThrottle:     75,
			TempRecover:      65,
			ThrottledWorkers: 2,
		},
		Watch: WatchConfig{
			Debounce: Duration(30 * time.Second),
		},
		Logging: LoggingConfig{
			Level:    "info",
			MaxSize:  ByteSize(5 * humanize.MiByte),
			MaxFiles: 10,
		},
	}
}

// defaultStoreDir returns ~/ai-engine/index_data.
func defaultStoreDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), "ai-engine", "index_data")
	}
	return filepath.Join(home, "ai-engine", "index_data")
}

// GetUserConfigPath returns the path to the user configuration file.
// It follows the XDG Base Directory specification:
//   - $XDG_CONFIG_HOME/design-indexer/config.yaml (if XDG_CONFIG_HOME is set)
//   - ~/.config/design-indexer/config.yaml (default)
func GetUserConfigPath() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "design-indexer", "config.yaml")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".config", "design-indexer", "config.yaml")
	}
	return filepath.Join(home, ".config", "design-indexer", "config.yaml")
}

// DefaultEnvPath returns ~/ai-engine/.env.
func DefaultEnvPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, "ai-engine", ".env")
}

// Load loads configuration using the default .env location.
// An empty path falls back to the user config file when it exists.
func Load(path string) (*Config, error) {
	return LoadFrom(path, DefaultEnvPath())
}

// LoadFrom loads configuration in order of increasing precedence:
//  1. Hardcoded defaults
//  2. YAML config file (path, or the user config when path is empty)
//  3. envPath dotenv file (never overrides variables already set)
//  4. Environment variables
func LoadFrom(path, envPath string) (*Config, error) {
	cfg := NewConfig()

	explicit := path != ""
	if !explicit {
		path = GetUserConfigPath()
	}
	if fileExists(path) {
		if err := cfg.loadYAML(path); err != nil {
			return nil, err
		}
	} else if explicit {
		return nil, errors.New(errors.ErrCodeConfigNotFound, "config file not found: "+path, nil).
			WithDetail("path", path).
			WithSuggestion("check the --config path or omit it to use " + GetUserConfigPath())
	}

	if envPath != "" && fileExists(envPath) {
		if err := godotenv.Load(envPath); err != nil {
			return nil, fmt.Errorf("failed to load env file %s: %w", envPath, err)
		}
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, errors.ConfigError("invalid configuration", err)
	}

	return cfg, nil
}

// loadYAML decodes a YAML file over the current values. Keys absent from
// the file keep their defaults; lists present in the file replace them.
func (c *Config) loadYAML(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

// applyEnvOverrides applies environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("DESIGN_LIBRARY_ROOT"); v != "" {
		c.Library.Root = v
	}
	if v := os.Getenv("OLLAMA_BASE_URL"); v != "" {
		c.Embedding.BaseURL = v
	}
	// OLLAMA_URL wins over OLLAMA_BASE_URL
	if v := os.Getenv("OLLAMA_URL"); v != "" {
		c.Embedding.BaseURL = v
	}
	if v := os.Getenv("EMBEDDING_MODEL"); v != "" {
		c.Embedding.Model = v
	}
	if v := os.Getenv("DESIGN_INDEX_STORE_DIR"); v != "" {
		c.Store.Dir = v
	}
	if v := os.Getenv("DESIGN_INDEX_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("DESIGN_INDEX_MAX_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Workers.Max = n
			if c.Workers.Baseline > n {
				c.Workers.Baseline = n
			}
		}
	}
}

// MetadataDir returns the directory for hashes, stats and locks.
func (c *Config) MetadataDir() string {
	if c.Library.MetadataDir != "" {
		return c.Library.MetadataDir
	}
	return filepath.Join(c.Library.Root, ".index")
}

// Validate validates the configuration and returns an error if invalid.
func (c *Config) Validate() error {
	if c.Library.Root == "" {
		return fmt.Errorf("library.root must be set")
	}
	if len(c.Library.IndexPaths) == 0 {
		return fmt.Errorf("library.index_paths must list at least one directory")
	}

	ch := c.Chunking
	if ch.MinChars <= 0 {
		return fmt.Errorf("chunking.min_chars must be positive, got %d", ch.MinChars)
	}
	if ch.TargetChars < ch.MinChars || ch.MaxChars < ch.TargetChars {
		return fmt.Errorf("chunking sizes must satisfy min <= target <= max, got %d/%d/%d",
			ch.MinChars, ch.TargetChars, ch.MaxChars)
	}

	if c.Discovery.MaxFileSize == 0 {
		return fmt.Errorf("discovery.max_file_size must be positive")
	}

	if c.Embedding.BaseURL == "" || c.Embedding.Model == "" {
		return fmt.Errorf("embedding.base_url and embedding.model must be set")
	}
	if c.Embedding.Timeout <= 0 {
		return fmt.Errorf("embedding.timeout must be positive")
	}
	if c.Embedding.MaxRetries < 1 {
		return fmt.Errorf("embedding.max_retries must be at least 1, got %d", c.Embedding.MaxRetries)
	}

	if c.Store.Dir == "" {
		return fmt.Errorf("store.dir must be set")
	}
	if c.Indexing.BatchSize <= 0 {
		return fmt.Errorf("indexing.batch_size must be positive, got %d", c.Indexing.BatchSize)
	}
	if c.Indexing.LogEvery <= 0 {
		return fmt.Errorf("indexing.log_every must be positive, got %d", c.Indexing.LogEvery)
	}

	w := c.Workers
	if w.Min < 1 || w.Max < w.Min {
		return fmt.Errorf("workers must satisfy 1 <= min <= max, got min=%d max=%d", w.Min, w.Max)
	}
	if w.Baseline < w.Min || w.Baseline > w.Max {
		return fmt.Errorf("workers.baseline must be within [%d, %d], got %d", w.Min, w.Max, w.Baseline)
	}
	if w.EvaluateEvery <= 0 {
		return fmt.Errorf("workers.evaluate_every must be positive, got %d", w.EvaluateEvery)
	}
	if w.LoadLow > w.LoadHigh {
		return fmt.Errorf("workers.load_low must not exceed load_high")
	}
	if w.MemLow > w.MemHigh {
		return fmt.Errorf("workers.mem_low must not exceed mem_high")
	}
	if w.TempRecover > w.TempThrottle || w.TempCaution > w.TempThrottle {
		return fmt.Errorf("workers temperatures must satisfy recover, caution <= throttle")
	}

	if c.Watch.Debounce < 0 {
		return fmt.Errorf("watch.debounce must not be negative")
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.Logging.Level)] {
		return fmt.Errorf("logging.level must be 'debug', 'info', 'warn', or 'error', got %s", c.Logging.Level)
	}

	return nil
}

// WriteYAML writes the configuration to a YAML file.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
