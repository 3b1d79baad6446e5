package cmd

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/satnambhatt/ai-engine/internal/logging"
	"github.com/satnambhatt/ai-engine/internal/ui"
	"github.com/satnambhatt/ai-engine/internal/watcher"
)

func newWatchCmd(opts *globalOptions) *cobra.Command {
	var debounce time.Duration

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Re-index the library whenever files change",
		Long: `Watch the library paths and run an incremental index once changes
settle for the debounce window. Runs never overlap; changes that arrive
during a run are folded into the next one.

Falls back to polling when native file notifications are unavailable.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := opts.open(logging.WatchLogPath(), true)
			if err != nil {
				return err
			}
			defer a.close()

			ix, err := newIndexer(a, ui.NopRenderer{})
			if err != nil {
				return err
			}
			defer func() {
				if err := ix.Close(); err != nil {
					a.logger.Warn("indexer_close_failed", slog.String("error", err.Error()))
				}
			}()

			wopts := watcher.OptionsFromConfig(a.cfg)
			if debounce > 0 {
				wopts.Debounce = debounce
			}
			wopts.Logger = a.logger

			w, err := watcher.New(wopts)
			if err != nil {
				return err
			}
			defer func() { _ = w.Stop() }()

			err = watchLoop(ctx, w, watcher.NewRunner(ix, a.logger))
			if errors.Is(err, context.Canceled) {
				a.logger.Info("watch_stopped")
				return nil
			}
			return err
		},
	}

	cmd.Flags().DurationVar(&debounce, "debounce", 0, "Quiet period before a run (default from config)")

	return cmd
}

// changeSource produces debounced change batches.
type changeSource interface {
	Start(ctx context.Context) error
	Events() <-chan []watcher.FileEvent
}

// watchLoop runs the watcher and the runner until either fails or ctx ends.
func watchLoop(ctx context.Context, src changeSource, runner *watcher.Runner) error {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := src.Start(gctx); err != nil {
			return err
		}
		return gctx.Err()
	})
	g.Go(func() error {
		return runner.Run(gctx, src.Events())
	})
	return g.Wait()
}
