// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"github.com/pdiddy/litfetch/internal/ratefetch"
)

var fetchCmd = &cobra.Command{
	Use:   "fetch URL...",
	Short: "Fetch URLs through one rate-limited fetcher",
	Long: `Fetch issues every URL concurrently through a single rate-limited
fetcher. Dispatches are spaced by fetch.min_interval, 429 responses are
retried with exponential backoff, and repeated URLs share one network call.

One line is printed per URL in argument order. With --out-dir, each response
body is written to a numbered file in that directory.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runFetch,
}

func init() {
	f := fetchCmd.Flags()
	f.StringP("method", "X", "GET", "HTTP method")
	f.StringArrayP("header", "H", nil, `request header "Name: value" (repeatable)`)
	f.String("body", "", "request body; @path reads it from a file")
	f.String("out-dir", "", "write response bodies into this directory")

	rootCmd.AddCommand(fetchCmd)
}

// fetchOutcome is the settled result for one argument.
type fetchOutcome struct {
	url  string
	resp *ratefetch.Response
	err  error
}

func runFetch(cmd *cobra.Command, args []string) error {
	method, _ := cmd.Flags().GetString("method")
	rawHeaders, _ := cmd.Flags().GetStringArray("header")
	body, _ := cmd.Flags().GetString("body")
	outDir, _ := cmd.Flags().GetString("out-dir")

	header, err := parseHeaders(rawHeaders)
	if err != nil {
		return err
	}
	payload, err := readBody(body)
	if err != nil {
		return err
	}
	opts := ratefetch.RequestOptions{Method: method, Header: header, Body: payload}

	var fs fetcherSet
	defer fs.Close()
	f := fs.get("fetch", cfg.Fetch)

	outcomes := fetchAll(commandContext(cmd), f, args, opts)
	return reportFetches(cmd.OutOrStdout(), outcomes, outDir)
}

// fetchAll fetches every URL concurrently and returns outcomes in input order.
func fetchAll(ctx context.Context, f *ratefetch.Fetcher, urls []string, opts ratefetch.RequestOptions) []fetchOutcome {
	outcomes := make([]fetchOutcome, len(urls))
	var wg sync.WaitGroup
	for i, u := range urls {
		wg.Add(1)
		go func(i int, u string) {
			defer wg.Done()
			resp, err := f.Fetch(ctx, u, opts)
			outcomes[i] = fetchOutcome{url: u, resp: resp, err: err}
		}(i, u)
	}
	wg.Wait()
	return outcomes
}

// reportFetches prints one line per outcome and writes bodies to outDir.
func reportFetches(w io.Writer, outcomes []fetchOutcome, outDir string) error {
	if outDir != "" {
		if err := os.MkdirAll(outDir, 0o755); err != nil {
			return fmt.Errorf("creating output directory: %w", err)
		}
	}

	failed := 0
	for i, o := range outcomes {
		if o.err != nil {
			failed++
			fmt.Fprintf(w, "ERR  %s: %v\n", o.url, o.err)
			continue
		}
		if !o.resp.OK() {
			failed++
		}
		line := fmt.Sprintf("%d  %8d bytes  %s", o.resp.StatusCode, len(o.resp.Body), o.url)
		if outDir != "" {
			path := filepath.Join(outDir, outputName(i, o.url))
			if err := os.WriteFile(path, o.resp.Body, 0o644); err != nil {
				return fmt.Errorf("writing %s: %w", path, err)
			}
			line += "  -> " + path
		}
		fmt.Fprintln(w, line)
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d fetches failed", failed, len(outcomes))
	}
	return nil
}

// parseHeaders converts "Name: value" strings into a header set.
func parseHeaders(raw []string) (http.Header, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	h := make(http.Header, len(raw))
	for _, line := range raw {
		name, value, ok := strings.Cut(line, ":")
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			return nil, fmt.Errorf("invalid header %q: want \"Name: value\"", line)
		}
		h.Add(name, strings.TrimSpace(value))
	}
	return h, nil
}

// readBody returns the request body for --body.
func readBody(body string) ([]byte, error) {
	if path, ok := strings.CutPrefix(body, "@"); ok {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading body file: %w", err)
		}
		return data, nil
	}
	if body == "" {
		return nil, nil
	}
	return []byte(body), nil
}

// outputName derives a file name from the argument position and URL.
func outputName(i int, rawURL string) string {
	slug := rawURL
	if u, err := url.Parse(rawURL); err == nil && u.Host != "" {
		slug = u.Host + u.Path
	}
	slug = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '-':
			return r
		default:
			return '_'
		}
	}, strings.Trim(slug, "/"))
	if len(slug) > 80 {
		slug = slug[:80]
	}
	return fmt.Sprintf("%03d-%s", i+1, slug)
}
