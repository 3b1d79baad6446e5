// Package cmd provides the CLI commands for design-indexer.
package cmd

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/satnambhatt/ai-engine/internal/config"
	"github.com/satnambhatt/ai-engine/internal/errors"
	"github.com/satnambhatt/ai-engine/internal/logging"
	"github.com/satnambhatt/ai-engine/pkg/version"
)

// globalOptions are the persistent flags shared by every command.
type globalOptions struct {
	configPath  string
	libraryRoot string
	storeDir    string
	ollamaURL   string
	debug       bool
}

// app is the loaded configuration and logger of one command invocation.
type app struct {
	cfg     *config.Config
	logger  *slog.Logger
	cleanup func()
}

func (a *app) close() {
	if a.cleanup != nil {
		a.cleanup()
	}
}

// NewRootCmd creates the root command for the design-indexer CLI.
func NewRootCmd() *cobra.Command {
	opts := &globalOptions{}

	cmd := &cobra.Command{
		Use:   "design-indexer",
		Short: "Incremental semantic indexer for a web-design library",
		Long: `design-indexer keeps a vector index of a web-design library up to date.

It walks the configured library paths, re-embeds only files whose content
changed since the last run, and stores the chunks for semantic search.

Configuration is read from ~/.config/design-indexer/config.yaml (or
--config), then ~/ai-engine/.env, then environment variables, then flags.`,
		Version:       version.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.SetVersionTemplate("design-indexer version {{.Version}}\n")

	cmd.PersistentFlags().StringVar(&opts.configPath, "config", "", "Path to config file")
	cmd.PersistentFlags().StringVar(&opts.libraryRoot, "library-root", "", "Design library root (overrides config)")
	cmd.PersistentFlags().StringVar(&opts.storeDir, "store-dir", "", "Vector store directory (overrides config)")
	cmd.PersistentFlags().StringVar(&opts.ollamaURL, "ollama-url", "", "Ollama base URL (overrides config)")
	cmd.PersistentFlags().BoolVar(&opts.debug, "debug", false, "Enable debug logging")

	cmd.AddCommand(newIndexCmd(opts))
	cmd.AddCommand(newStatsCmd(opts))
	cmd.AddCommand(newSearchCmd(opts))
	cmd.AddCommand(newResetCmd(opts))
	cmd.AddCommand(newWatchCmd(opts))
	cmd.AddCommand(newVersionCmd())

	return cmd
}

// Execute runs the root command and prints any error with its hint.
func Execute() error {
	root := NewRootCmd()
	err := root.Execute()
	if err != nil {
		_, _ = fmt.Fprint(root.ErrOrStderr(), errors.FormatForCLI(err))
	}
	return err
}

// loadConfig loads the configuration and applies flag overrides.
func (o *globalOptions) loadConfig() (*config.Config, error) {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return nil, err
	}
	o.applyOverrides(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, errors.ConfigError("invalid configuration", err)
	}
	return cfg, nil
}

func (o *globalOptions) applyOverrides(cfg *config.Config) {
	if o.libraryRoot != "" {
		cfg.Library.Root = o.libraryRoot
	}
	if o.storeDir != "" {
		cfg.Store.Dir = o.storeDir
	}
	if o.ollamaURL != "" {
		cfg.Embedding.BaseURL = o.ollamaURL
	}
	if o.debug {
		cfg.Logging.Level = "debug"
	}
}

// open loads the configuration and sets up logging to logPath (or the
// configured file). Records are mirrored to stderr when toStderr is set.
func (o *globalOptions) open(logPath string, toStderr bool) (*app, error) {
	cfg, err := o.loadConfig()
	if err != nil {
		return nil, err
	}

	if cfg.Logging.File != "" {
		logPath = cfg.Logging.File
	}
	logger, cleanup, err := logging.Setup(logging.Config{
		Level:         cfg.Logging.Level,
		FilePath:      logPath,
		MaxSize:       cfg.Logging.MaxSize.Int64(),
		MaxFiles:      cfg.Logging.MaxFiles,
		WriteToStderr: toStderr || o.debug,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to setup logging: %w", err)
	}
	slog.SetDefault(logger)

	return &app{cfg: cfg, logger: logger, cleanup: cleanup}, nil
}
