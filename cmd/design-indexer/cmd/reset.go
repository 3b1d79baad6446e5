package cmd

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/satnambhatt/ai-engine/internal/logging"
	"github.com/satnambhatt/ai-engine/internal/state"
	"github.com/satnambhatt/ai-engine/internal/store"
)

func newResetCmd(opts *globalOptions) *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Delete all indexed chunks and file hashes",
		Long: `Remove every chunk from the vector store and forget the recorded file
hashes. The next index run re-embeds the whole library.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !yes && !confirm(cmd.InOrStdin(), cmd.OutOrStdout()) {
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), "Aborted.")
				return nil
			}

			a, err := opts.open(logging.DefaultLogPath(), false)
			if err != nil {
				return err
			}
			defer a.close()

			st, err := newStore(a.cfg, a.logger)
			if err != nil {
				return err
			}
			defer func() {
				if err := st.Close(); err != nil {
					a.logger.Warn("store_close_failed", slog.String("error", err.Error()))
				}
			}()

			if err := resetIndex(cmd.Context(), st, state.NewPaths(a.cfg.MetadataDir())); err != nil {
				return err
			}
			a.logger.Info("index_reset", slog.String("collection", a.cfg.Store.Collection))

			_, _ = fmt.Fprintln(cmd.OutOrStdout(), "Vector store and file hashes have been reset.")
			return nil
		},
	}

	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Skip the confirmation prompt")

	return cmd
}

// confirm asks for an explicit "yes".
func confirm(in io.Reader, out io.Writer) bool {
	_, _ = fmt.Fprint(out, "This deletes every indexed chunk. Type 'yes' to confirm: ")
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && line == "" {
		return false
	}
	return strings.TrimSpace(line) == "yes"
}

// resetIndex empties the store, then drops the hash snapshot.
func resetIndex(ctx context.Context, st store.Store, paths state.Paths) error {
	if err := st.Init(ctx); err != nil {
		return err
	}
	if err := st.Reset(ctx); err != nil {
		return err
	}
	if err := os.Remove(paths.Hashes()); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove file hashes: %w", err)
	}
	return nil
}
