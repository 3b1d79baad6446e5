package cmd

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"github.com/satnambhatt/ai-engine/internal/embed"
	"github.com/satnambhatt/ai-engine/internal/logging"
	"github.com/satnambhatt/ai-engine/internal/store"
)

const (
	headSection     = "head-meta"
	previewLines    = 3
	previewMaxChars = 200
)

type searchOptions struct {
	limit       int
	framework   string
	category    string
	section     string
	showCode    bool
	includeHead bool
}

// query maps the flags onto a store query.
func (o searchOptions) query() store.Query {
	q := store.Query{
		Limit:     o.limit,
		Framework: o.framework,
		Category:  o.category,
		Section:   o.section,
	}
	if !o.includeHead && o.section != headSection {
		q.ExcludeSections = []string{headSection}
	}
	return q
}

func newSearchCmd(opts *globalOptions) *cobra.Command {
	so := searchOptions{}

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search the design library",
		Long: `Embed the query and return the most similar chunks.

Document head chunks are hidden unless --include-head is set.`,
		Example: `  design-indexer search "pricing table with toggle"
  design-indexer search "hero section" --framework astro -n 10`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.open(logging.DefaultLogPath(), false)
			if err != nil {
				return err
			}
			defer a.close()

			embedder, closer, err := newEmbedder(a.cfg, a.logger)
			if err != nil {
				return err
			}
			defer func() { _ = closer.Close() }()

			st, err := newStore(a.cfg, a.logger)
			if err != nil {
				return err
			}
			defer func() {
				if err := st.Close(); err != nil {
					a.logger.Warn("store_close_failed", slog.String("error", err.Error()))
				}
			}()

			query := strings.Join(args, " ")
			results, err := runSearch(cmd.Context(), embedder, st, query, so.query())
			if err != nil {
				return err
			}
			a.logger.Info("search_complete",
				slog.String("query", query),
				slog.Int("results", len(results)))

			printResults(cmd.OutOrStdout(), results, so.showCode)
			return nil
		},
	}

	cmd.Flags().IntVarP(&so.limit, "limit", "n", 5, "Number of results")
	cmd.Flags().StringVar(&so.framework, "framework", "", "Filter by framework")
	cmd.Flags().StringVar(&so.category, "category", "", "Filter by component category")
	cmd.Flags().StringVar(&so.section, "section", "", "Filter by section type")
	cmd.Flags().BoolVar(&so.showCode, "show-code", false, "Print the full chunk text")
	cmd.Flags().BoolVar(&so.includeHead, "include-head", false, "Include document head chunks")

	return cmd
}

// runSearch embeds the raw query and queries the store.
func runSearch(ctx context.Context, embedder embed.Embedder, st store.Store, query string, q store.Query) ([]store.Result, error) {
	if err := embedder.Health(ctx); err != nil {
		return nil, err
	}
	if err := st.Init(ctx); err != nil {
		return nil, err
	}

	res, err := embedder.Embed(ctx, query)
	if err != nil {
		return nil, err
	}
	return st.Query(ctx, res.Vector, q)
}

// printResults writes one block per result.
func printResults(w io.Writer, results []store.Result, showCode bool) {
	if len(results) == 0 {
		_, _ = fmt.Fprintln(w, "No results found.")
		return
	}

	for i, r := range results {
		category := r.Meta.ComponentCategory
		if category == "" {
			category = "n/a"
		}

		_, _ = fmt.Fprintf(w, "[%d] %s\n", i+1, r.Meta.FilePath)
		_, _ = fmt.Fprintf(w, "    Similarity: %.3f │ Framework: %s │ Category: %s │ Section: %s\n",
			r.Score, r.Meta.Framework, category, r.Meta.SectionType)
		_, _ = fmt.Fprintf(w, "    Repo: %s\n", r.Meta.RepoName)

		if showCode {
			_, _ = fmt.Fprintln(w, indent(r.Text, "    "))
		} else {
			_, _ = fmt.Fprintln(w, indent(preview(r.Text), "    "))
		}
		_, _ = fmt.Fprintln(w)
	}
}

// preview returns the first lines of text, capped in length.
func preview(text string) string {
	lines := strings.SplitN(strings.TrimSpace(text), "\n", previewLines+1)
	if len(lines) > previewLines {
		lines = lines[:previewLines]
	}
	out := strings.Join(lines, "\n")
	if r := []rune(out); len(r) > previewMaxChars {
		out = string(r[:previewMaxChars]) + "..."
	}
	return out
}

func indent(text, prefix string) string {
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		lines[i] = prefix + line
	}
	return strings.Join(lines, "\n")
}
