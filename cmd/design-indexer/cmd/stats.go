package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/satnambhatt/ai-engine/internal/logging"
	"github.com/satnambhatt/ai-engine/internal/state"
	"github.com/satnambhatt/ai-engine/internal/store"
)

// statsReport is the output of the stats command.
type statsReport struct {
	Collection   string          `json:"collection"`
	Store        store.Summary   `json:"store"`
	TrackedFiles int             `json:"tracked_files"`
	LastRun      *state.RunStats `json:"last_run,omitempty"`
}

func newStatsCmd(opts *globalOptions) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show index statistics",
		Long: `Show the vector store summary, the number of tracked files and the
most recent index run.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
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

			report, err := collectStats(cmd.Context(), st, state.NewPaths(a.cfg.MetadataDir()))
			if err != nil {
				return err
			}
			report.Collection = a.cfg.Store.Collection

			if jsonOutput {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(report)
			}
			renderStats(cmd.OutOrStdout(), report, time.Now())
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output statistics as JSON")

	return cmd
}

// collectStats reads the store summary and the persisted run state.
func collectStats(ctx context.Context, st store.Store, paths state.Paths) (*statsReport, error) {
	if err := st.Init(ctx); err != nil {
		return nil, err
	}
	summary, err := st.Summary(ctx, store.DefaultSummarySize)
	if err != nil {
		return nil, err
	}

	snap, err := state.LoadSnapshot(paths.Hashes())
	if err != nil {
		return nil, err
	}
	last, err := state.LastRun(paths.History())
	if err != nil {
		return nil, err
	}

	return &statsReport{Store: summary, TrackedFiles: len(snap), LastRun: last}, nil
}

// renderStats prints the report as tables.
func renderStats(w io.Writer, r *statsReport, now time.Time) {
	overview := table.NewWriter()
	overview.SetOutputMirror(w)
	overview.SetStyle(table.StyleLight)
	overview.SetTitle("Design library index")
	overview.AppendRows([]table.Row{
		{"Collection", r.Collection},
		{"Chunks", humanize.Comma(int64(r.Store.TotalChunks))},
		{"Tracked files", humanize.Comma(int64(r.TrackedFiles))},
	})
	if last := r.LastRun; last != nil {
		overview.AppendSeparator()
		overview.AppendRows([]table.Row{
			{"Last run", fmt.Sprintf("%s (%s)", humanize.RelTime(last.RunStart, now, "ago", "from now"), last.Mode)},
			{"Outcome", string(last.Outcome())},
			{"Files processed", humanize.Comma(int64(last.FilesProcessed))},
			{"Files failed", humanize.Comma(int64(last.FilesFailed + last.FilesSkippedReadError))},
			{"Chunks stored", humanize.Comma(int64(last.ChunksStored))},
			{"Duration", last.Duration().Round(time.Second).String()},
		})
	}
	overview.Render()

	renderDistribution(w, "Frameworks", r.Store.Frameworks)
	renderDistribution(w, "Categories", r.Store.Categories)
}

// renderDistribution prints one label/count table, largest first.
func renderDistribution(w io.Writer, title string, counts map[string]int) {
	if len(counts) == 0 {
		return
	}

	labels := make([]string, 0, len(counts))
	for label := range counts {
		labels = append(labels, label)
	}
	sort.Slice(labels, func(i, j int) bool {
		if counts[labels[i]] != counts[labels[j]] {
			return counts[labels[i]] > counts[labels[j]]
		}
		return labels[i] < labels[j]
	})

	tbl := table.NewWriter()
	tbl.SetOutputMirror(w)
	tbl.SetStyle(table.StyleLight)
	tbl.SetTitle(title)
	tbl.AppendHeader(table.Row{"Label", "Chunks"})
	for _, label := range labels {
		tbl.AppendRow(table.Row{label, humanize.Comma(int64(counts[label]))})
	}
	tbl.Render()
}
