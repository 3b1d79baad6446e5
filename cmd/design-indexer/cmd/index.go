package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/satnambhatt/ai-engine/internal/logging"
	"github.com/satnambhatt/ai-engine/internal/state"
	"github.com/satnambhatt/ai-engine/internal/ui"
)

func newIndexCmd(opts *globalOptions) *cobra.Command {
	var (
		full    bool
		verbose bool
		plain   bool
	)

	cmd := &cobra.Command{
		Use:   "index",
		Short: "Index changed files in the design library",
		Long: `Index the design library.

By default only files whose content hash changed since the last run are
chunked and embedded, and files that disappeared are removed from the
store. Use --full to wipe the store and re-process everything.

Interrupting with Ctrl+C keeps the work already stored; the next run
picks up the rest.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := opts.open(logging.DefaultLogPath(), verbose)
			if err != nil {
				return err
			}
			defer a.close()

			renderer := ui.NewRenderer(ui.NewConfig(cmd.OutOrStdout(),
				ui.WithForcePlain(plain),
				ui.WithTitle(a.cfg.Library.Root)))
			ix, err := newIndexer(a, renderer)
			if err != nil {
				return err
			}
			defer func() {
				if err := ix.Close(); err != nil {
					a.logger.Warn("indexer_close_failed", slog.String("error", err.Error()))
				}
			}()

			stats, err := ix.Run(ctx, full)
			if err != nil {
				return err
			}

			if stats.Outcome() == state.OutcomeUpToDate && !full {
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), "No changes detected. Library is up to date.")
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), "Use --full to force a complete re-index.")
			}
			if stats.Outcome() == state.OutcomeFailed {
				return fmt.Errorf("no changed file could be indexed")
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&full, "full", false, "Wipe the store and re-index every file")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Mirror log records to stderr")
	cmd.Flags().BoolVar(&plain, "plain", false, "Print line-by-line progress instead of the live view")

	return cmd
}
