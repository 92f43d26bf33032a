// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/pdiddy/litfetch/internal/pubmed"
	"github.com/pdiddy/litfetch/internal/search"
	"github.com/pdiddy/litfetch/pkg/types"
)

var pubmedCmd = &cobra.Command{
	Use:   "pubmed",
	Short: "Call NCBI E-utilities directly (esearch, efetch, elink)",
	Long: `Pubmed exposes the E-utilities endpoints used by the PubMed search
backend. All calls go through one rate-limited fetcher that honours the NCBI
request allowance (3/s, or 10/s with an API key in .secrets/ncbi-api-key).`,
}

// --- esearch subcommand ---

var pubmedESearchCmd = &cobra.Command{
	Use:   "esearch TERM",
	Short: "List PMIDs matching an Entrez query",
	Args:  cobra.ExactArgs(1),
	RunE:  runPubMedESearch,
}

func runPubMedESearch(cmd *cobra.Command, args []string) error {
	term := pubmed.Term{Query: args[0]}
	term.MaxResults, _ = cmd.Flags().GetInt("max-results")
	term.Offset, _ = cmd.Flags().GetInt("offset")

	var err error
	if term.DateFrom, err = parseDateFlag(cmd, "from"); err != nil {
		return err
	}
	if term.DateTo, err = parseDateFlag(cmd, "to"); err != nil {
		return err
	}

	var fs fetcherSet
	defer fs.Close()
	res, err := fs.pubmedClient().ESearch(commandContext(cmd), term)
	if err != nil {
		return err
	}

	w := cmd.OutOrStdout()
	if jsonOutput, _ := cmd.Flags().GetBool("json"); jsonOutput {
		return writeJSON(w, struct {
			Count    int      `json:"count"`
			RetStart int      `json:"retstart"`
			IDs      []string `json:"ids"`
		}{res.Count, res.RetStart, res.IDs})
	}

	for _, id := range res.IDs {
		fmt.Fprintln(w, id)
	}
	fmt.Fprintf(cmd.ErrOrStderr(), "%d of %d matches\n", len(res.IDs), res.Count)
	return nil
}

// --- efetch subcommand ---

var pubmedEFetchCmd = &cobra.Command{
	Use:   "efetch PMID...",
	Short: "Fetch article records by PMID",
	Long: `EFetch retrieves PubMed records and prints them as a result table,
JSON, or CSL YAML. PMIDs may be given as separate arguments or comma
separated.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runPubMedEFetch,
}

func runPubMedEFetch(cmd *cobra.Command, args []string) error {
	pmids := splitIDs(args)
	if len(pmids) == 0 {
		return fmt.Errorf("no PMIDs given")
	}

	var fs fetcherSet
	defer fs.Close()
	articles, err := fs.pubmedClient().EFetch(commandContext(cmd), pmids)
	if err != nil {
		return err
	}

	results := make([]types.SearchResult, 0, len(articles))
	for _, a := range articles {
		results = append(results, pubmed.ToSearchResult(a))
	}
	return formatSearchOutput(cmd, search.SearchOutput{Results: results}, cmd.OutOrStdout())
}

// --- elink subcommand ---

var pubmedELinkCmd = &cobra.Command{
	Use:   "elink PMID...",
	Short: "List records linked to the given PMIDs",
	Long: `ELink lists related records. Common link names are pubmed_pubmed
(similar articles), pubmed_pubmed_citedin (citing articles) and
pubmed_pubmed_refs (references).`,
	Args: cobra.MinimumNArgs(1),
	RunE: runPubMedELink,
}

func runPubMedELink(cmd *cobra.Command, args []string) error {
	p := pubmed.LinkParams{IDs: splitIDs(args)}
	p.LinkName, _ = cmd.Flags().GetString("linkname")
	p.DB, _ = cmd.Flags().GetString("db")
	p.DBFrom, _ = cmd.Flags().GetString("dbfrom")

	var fs fetcherSet
	defer fs.Close()
	sets, err := fs.pubmedClient().ELink(commandContext(cmd), p)
	if err != nil {
		return err
	}

	w := cmd.OutOrStdout()
	if jsonOutput, _ := cmd.Flags().GetBool("json"); jsonOutput {
		return writeJSON(w, sets)
	}
	printLinkSets(w, sets)
	return nil
}

func printLinkSets(w io.Writer, sets []pubmed.LinkSet) {
	total := 0
	for _, ls := range sets {
		for _, db := range ls.DBs {
			fmt.Fprintf(w, "%s  %s  (%d)\n", strings.Join(ls.IDs, ","), db.LinkName, len(db.IDs))
			for _, id := range db.IDs {
				fmt.Fprintf(w, "  %s\n", id)
			}
			total += len(db.IDs)
		}
	}
	if total == 0 {
		fmt.Fprintln(w, "No links found.")
	}
}

func init() {
	pubmedESearchCmd.Flags().Int("max-results", 0, "maximum PMIDs to return (default pubmed.max_results)")
	pubmedESearchCmd.Flags().Int("offset", 0, "index of the first PMID to return")
	pubmedESearchCmd.Flags().String("from", "", "publication date range start (YYYY-MM-DD)")
	pubmedESearchCmd.Flags().String("to", "", "publication date range end (YYYY-MM-DD)")
	pubmedESearchCmd.Flags().Bool("json", false, "output as JSON")

	pubmedEFetchCmd.Flags().Bool("json", false, "output results as JSON")
	pubmedEFetchCmd.Flags().Bool("csl", false, "output results as CSL YAML")

	pubmedELinkCmd.Flags().String("linkname", "", "link name, e.g. pubmed_pubmed_citedin")
	pubmedELinkCmd.Flags().String("db", "", "target database (default pubmed)")
	pubmedELinkCmd.Flags().String("dbfrom", "", "source database (default pubmed)")
	pubmedELinkCmd.Flags().Bool("json", false, "output as JSON")

	pubmedCmd.AddCommand(pubmedESearchCmd)
	pubmedCmd.AddCommand(pubmedEFetchCmd)
	pubmedCmd.AddCommand(pubmedELinkCmd)
	rootCmd.AddCommand(pubmedCmd)
}

// splitIDs flattens arguments that may hold comma-separated IDs.
func splitIDs(args []string) []string {
	var ids []string
	for _, a := range args {
		for _, id := range strings.Split(a, ",") {
			if id = strings.TrimSpace(id); id != "" {
				ids = append(ids, id)
			}
		}
	}
	return ids
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
