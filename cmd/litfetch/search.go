// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/pdiddy/litfetch/internal/library"
	"github.com/pdiddy/litfetch/internal/search"
)

var searchCmd = &cobra.Command{
	Use:   "search",
	Short: "Search literature APIs for candidate papers",
	Long: `Search queries PubMed, OpenAlex and Semantic Scholar for papers matching
a research question or structured query parameters. Each source is reached
through its own rate-limited fetcher and all sources are queried
concurrently. Results are deduplicated across sources and ranked by
relevance.

Use --out to save the query and results to a YAML query file, --from-file to
display a saved query file without re-querying, and --save to add the
results to the local library.`,
	RunE: runSearch,
}

func init() {
	searchCmd.Flags().String("query", "", "free-text research question")
	searchCmd.Flags().String("author", "", "filter by author name")
	searchCmd.Flags().String("keywords", "", "filter by keywords (comma-separated)")
	searchCmd.Flags().String("from", "", "publication date range start (YYYY-MM-DD)")
	searchCmd.Flags().String("to", "", "publication date range end (YYYY-MM-DD)")
	searchCmd.Flags().Int("max-results", 0, "maximum number of results to return (default search.max_results)")
	searchCmd.Flags().StringSlice("sources", nil, "sources to query: pubmed, openalex, semantic_scholar (default search.sources)")
	searchCmd.Flags().Bool("json", false, "output results as JSON")
	searchCmd.Flags().Bool("csl", false, "output results as CSL YAML")
	searchCmd.Flags().Bool("recency-bias", false, "boost recently published papers")
	searchCmd.Flags().Bool("save", false, "store the results in the library")
	searchCmd.Flags().String("out", "", "write the query and results to this YAML file")
	searchCmd.Flags().String("from-file", "", "display results from a saved query file instead of searching")

	rootCmd.AddCommand(searchCmd)
}

func runSearch(cmd *cobra.Command, args []string) error {
	ctx := commandContext(cmd)
	w := cmd.OutOrStdout()

	if path, _ := cmd.Flags().GetString("from-file"); path != "" {
		qf, err := search.ReadQueryFile(path)
		if err != nil {
			return err
		}
		return formatSearchOutput(cmd, qf.Output(), w)
	}

	query, err := queryFromFlags(cmd)
	if err != nil {
		return err
	}
	if query.IsEmpty() {
		return fmt.Errorf("query required: provide --query, --author, or --keywords")
	}

	searchCfg := cfg.Search
	if n, _ := cmd.Flags().GetInt("max-results"); n > 0 {
		searchCfg.MaxResults = n
	}
	if cmd.Flags().Changed("sources") {
		searchCfg.Sources, _ = cmd.Flags().GetStringSlice("sources")
	}
	recencyBias, _ := cmd.Flags().GetBool("recency-bias")

	var fs fetcherSet
	defer fs.Close()
	backends, err := fs.buildBackends(searchCfg.Sources)
	if err != nil {
		return err
	}

	started := time.Now()
	out, err := search.Search(ctx, query, backends, searchCfg, recencyBias, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	log.Info().
		Int("results", len(out.Results)).
		Int("duplicates", out.DupsRemoved).
		Dur("elapsed", time.Since(started)).
		Msg("search complete")

	if path, _ := cmd.Flags().GetString("out"); path != "" {
		if err := search.WriteQueryFile(path, query, searchCfg, recencyBias, out); err != nil {
			return err
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "Saved query file %s\n", path)
	}

	if save, _ := cmd.Flags().GetBool("save"); save {
		if err := saveToLibrary(ctx, query.Text(), out, cmd.ErrOrStderr()); err != nil {
			return err
		}
	}

	if len(out.Results) == 0 && len(out.BackendErrors) == len(backends) {
		return fmt.Errorf("all sources failed")
	}
	return formatSearchOutput(cmd, out, w)
}

func formatSearchOutput(cmd *cobra.Command, out search.SearchOutput, w io.Writer) error {
	jsonOutput, _ := cmd.Flags().GetBool("json")
	cslOutput, _ := cmd.Flags().GetBool("csl")
	switch {
	case jsonOutput && cslOutput:
		return fmt.Errorf("--json and --csl are mutually exclusive")
	case jsonOutput:
		return search.FormatJSON(out, w)
	case cslOutput:
		return search.FormatCSL(out, w)
	default:
		search.FormatTable(out, w)
		return nil
	}
}

func saveToLibrary(ctx context.Context, queryText string, out search.SearchOutput, w io.Writer) error {
	store, err := library.Open(cfg.Library)
	if err != nil {
		return err
	}
	defer store.Close()

	sum, err := store.Save(ctx, queryText, out.Results)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "Library: search #%d, %d added, %d updated\n", sum.SearchID, sum.Added, sum.Updated)
	return nil
}

// queryFromFlags builds a search.Query from the command flags.
func queryFromFlags(cmd *cobra.Command) (search.Query, error) {
	var q search.Query
	q.FreeText, _ = cmd.Flags().GetString("query")
	q.Author, _ = cmd.Flags().GetString("author")

	if kw, _ := cmd.Flags().GetString("keywords"); kw != "" {
		for _, k := range strings.Split(kw, ",") {
			if k = strings.TrimSpace(k); k != "" {
				q.Keywords = append(q.Keywords, k)
			}
		}
	}

	var err error
	if q.DateFrom, err = parseDateFlag(cmd, "from"); err != nil {
		return q, err
	}
	if q.DateTo, err = parseDateFlag(cmd, "to"); err != nil {
		return q, err
	}
	if !q.DateFrom.IsZero() && !q.DateTo.IsZero() && q.DateTo.Before(q.DateFrom) {
		return q, fmt.Errorf("--to %s is before --from %s", q.DateTo.Format(time.DateOnly), q.DateFrom.Format(time.DateOnly))
	}
	return q, nil
}

func parseDateFlag(cmd *cobra.Command, name string) (time.Time, error) {
	v, _ := cmd.Flags().GetString(name)
	if v == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.DateOnly, v)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid --%s %q: want YYYY-MM-DD", name, v)
	}
	return t, nil
}
