// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/pdiddy/litfetch/internal/library"
)

var libraryCmd = &cobra.Command{
	Use:   "library",
	Short: "Query the local library of saved search results",
	Long: `Library manages the sqlite database that search --save writes to. Papers
found by several sources are stored once, matched by DOI, then PMID.`,
}

// --- find subcommand ---

var libraryFindCmd = &cobra.Command{
	Use:   "find [query]",
	Short: "Find saved papers by full-text query and filters",
	Long: `Find searches saved titles and abstracts with FTS5 full-text search,
structured filters (--source, --year, --search), or a combination of both.`,
	RunE: runLibraryFind,
}

func runLibraryFind(cmd *cobra.Command, args []string) error {
	opts := findOptionsFromFlags(cmd, args)

	store, err := library.Open(cfg.Library)
	if err != nil {
		return err
	}
	defer store.Close()

	papers, err := store.Find(commandContext(cmd), opts)
	if err != nil {
		return err
	}

	w := cmd.OutOrStdout()
	if jsonOutput, _ := cmd.Flags().GetBool("json"); jsonOutput {
		return writeJSON(w, papers)
	}
	formatPapers(w, papers)
	return nil
}

func formatPapers(w io.Writer, papers []library.Paper) {
	if len(papers) == 0 {
		fmt.Fprintln(w, "No papers found.")
		return
	}

	fmt.Fprintf(w, "%-4s  %-30s  %-55s  %-4s  %s\n", "Rank", "ID", "Title", "Year", "Sources")
	fmt.Fprintln(w, strings.Repeat("-", 110))
	for i, p := range papers {
		year := ""
		if !p.Date.IsZero() {
			year = fmt.Sprintf("%d", p.Date.Year())
		}
		fmt.Fprintf(w, "%-4d  %-30s  %-55s  %-4s  %s\n",
			i+1, clip(p.ID, 30), clip(p.Title, 55), year, p.Source)
	}
	fmt.Fprintf(w, "\n%d papers\n", len(papers))
}

// --- searches subcommand ---

var librarySearchesCmd = &cobra.Command{
	Use:   "searches",
	Short: "List saved search runs",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := library.Open(cfg.Library)
		if err != nil {
			return err
		}
		defer store.Close()

		runs, err := store.Searches(commandContext(cmd))
		if err != nil {
			return err
		}

		w := cmd.OutOrStdout()
		if jsonOutput, _ := cmd.Flags().GetBool("json"); jsonOutput {
			return writeJSON(w, runs)
		}
		if len(runs) == 0 {
			fmt.Fprintln(w, "No saved searches.")
			return nil
		}
		fmt.Fprintf(w, "%-5s  %-20s  %-7s  %s\n", "ID", "Ran at", "Results", "Query")
		for _, r := range runs {
			fmt.Fprintf(w, "%-5d  %-20s  %-7d  %s\n",
				r.ID, r.RanAt.Local().Format("2006-01-02 15:04:05"), r.ResultCount, r.Query)
		}
		return nil
	},
}

// --- export subcommand ---

var libraryExportCmd = &cobra.Command{
	Use:   "export [query]",
	Short: "Export saved papers to YAML or JSON",
	Long: `Export writes the library (or a filtered subset) to library/export.yaml
or library/export.json. Supports the same filters as find.`,
	RunE: runLibraryExport,
}

func runLibraryExport(cmd *cobra.Command, args []string) error {
	format, _ := cmd.Flags().GetString("format")
	opts := findOptionsFromFlags(cmd, args)

	store, err := library.Open(cfg.Library)
	if err != nil {
		return err
	}
	defer store.Close()

	var path string
	switch strings.ToLower(format) {
	case "yaml", "yml":
		path, err = store.ExportYAML(commandContext(cmd), opts)
	case "json":
		path, err = store.ExportJSON(commandContext(cmd), opts)
	default:
		return fmt.Errorf("unknown export format %q (want yaml or json)", format)
	}
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Exported to %s\n", path)
	return nil
}

func init() {
	for _, c := range []*cobra.Command{libraryFindCmd, libraryExportCmd} {
		c.Flags().String("source", "", "only papers found by this source")
		c.Flags().Int("year", 0, "only papers published in this year")
		c.Flags().Int64("search", 0, "only papers returned by this saved search run")
		c.Flags().Int("max-results", 0, "maximum papers (default library.max_results)")
	}
	libraryFindCmd.Flags().Bool("json", false, "output as JSON")
	librarySearchesCmd.Flags().Bool("json", false, "output as JSON")
	libraryExportCmd.Flags().String("format", "yaml", "export format: yaml or json")

	libraryCmd.AddCommand(libraryFindCmd)
	libraryCmd.AddCommand(librarySearchesCmd)
	libraryCmd.AddCommand(libraryExportCmd)
	rootCmd.AddCommand(libraryCmd)
}

func findOptionsFromFlags(cmd *cobra.Command, args []string) library.FindOptions {
	var opts library.FindOptions
	if len(args) > 0 {
		opts.Query = strings.Join(args, " ")
	}
	opts.Source, _ = cmd.Flags().GetString("source")
	opts.Year, _ = cmd.Flags().GetInt("year")
	opts.SearchID, _ = cmd.Flags().GetInt64("search")
	opts.MaxResults, _ = cmd.Flags().GetInt("max-results")
	return opts
}

func clip(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}
