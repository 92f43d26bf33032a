// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package main is the entry point for the litfetch CLI.
package main

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pdiddy/litfetch/internal/logging"
	"github.com/pdiddy/litfetch/internal/ratefetch"
	"github.com/pdiddy/litfetch/internal/secrets"
	"github.com/pdiddy/litfetch/pkg/types"
)

// version is set at build time via ldflags.
var version = "dev"

// Process-wide state populated by the root command before any subcommand runs.
var (
	cfg          types.Config
	log          = zerolog.Nop()
	registry     = prometheus.NewRegistry()
	fetchMetrics = ratefetch.NewMetrics(registry)
)

// rootCmd is the base command for the litfetch CLI.
var rootCmd = &cobra.Command{
	Use:   "litfetch",
	Short: "Rate-limited literature search and retrieval",
	Long: `litfetch queries literature APIs (PubMed E-utilities, OpenAlex,
Semantic Scholar) through per-host rate-limited fetchers. Requests to one
host are spaced by a minimum interval, rate-limit responses are retried
with exponential backoff, and identical concurrent requests share a single
network call.

Results can be printed, saved as query files, or stored in a local sqlite
library for later full-text lookup.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := loadConfig(); err != nil {
			return err
		}

		l, err := logging.New(cfg.Logging)
		if err != nil {
			return err
		}
		log = l
		if used := viper.ConfigFileUsed(); used != "" {
			log.Info().Str("file", used).Msg("using config file")
		}

		s, err := secrets.Load(secrets.DefaultDir, log)
		if err != nil {
			return err
		}
		applySecrets(&cfg, s)
		if len(s) > 0 {
			keys := make([]string, 0, len(s))
			for k := range s {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			log.Debug().Strs("keys", keys).Msg("loaded secrets")
		}

		if addr := viper.GetString("metrics_addr"); addr != "" {
			serveMetrics(addr)
		}
		return nil
	},
}

func init() {
	cobra.OnInitialize(initConfig)
	registerDefaults(viper.GetViper())
	registry.MustRegister(collectors.NewGoCollector())

	pf := rootCmd.PersistentFlags()
	pf.String("config", "", "config file (default: ./litfetch.yaml or ~/.config/litfetch/litfetch.yaml)")
	pf.String("log-level", "", "log level: trace, debug, info, warn, error, off")
	pf.String("log-format", "", "log format: console or json")
	pf.String("metrics-addr", "", "serve Prometheus metrics on this address (e.g. :9090)")

	for key, flag := range map[string]string{
		"logging.level":  "log-level",
		"logging.format": "log-format",
		"metrics_addr":   "metrics-addr",
	} {
		if err := viper.BindPFlag(key, pf.Lookup(flag)); err != nil {
			panic(err)
		}
	}
}

func initConfig() {
	cfgFile, _ := rootCmd.PersistentFlags().GetString("config")
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("litfetch")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")

		home, err := os.UserHomeDir()
		if err == nil {
			viper.AddConfigPath(filepath.Join(home, ".config", "litfetch"))
		}
	}

	viper.SetEnvPrefix("LITFETCH")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()
}

// loadConfig reads the config file, if any, and decodes the merged settings
// into cfg. A missing default config file is not an error; a missing file
// named with --config is.
func loadConfig() error {
	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return fmt.Errorf("reading config: %w", err)
		}
	}
	return decodeConfig(viper.GetViper(), &cfg)
}

// decodeConfig unmarshals v into out.
func decodeConfig(v *viper.Viper, out *types.Config) error {
	if err := v.Unmarshal(out); err != nil {
		return fmt.Errorf("decoding config: %w", err)
	}
	return nil
}

// registerDefaults sets the default for every config key so that
// AutomaticEnv can override any of them.
func registerDefaults(v *viper.Viper) {
	v.SetDefault("fetch.min_interval", ratefetch.DefaultMinInterval)
	v.SetDefault("fetch.max_retries", ratefetch.DefaultMaxRetries)
	v.SetDefault("fetch.base_delay", ratefetch.DefaultBaseDelay)
	v.SetDefault("fetch.max_body_bytes", ratefetch.DefaultMaxBodyBytes)
	v.SetDefault("fetch.timeout", ratefetch.DefaultTimeout)
	v.SetDefault("fetch.user_agent", ratefetch.DefaultUserAgent)

	// NCBI allows 3 requests/s without a key. The interval drops to
	// 100ms when an API key is present; see applySecrets.
	v.SetDefault("pubmed.fetch.min_interval", 350*time.Millisecond)
	v.SetDefault("pubmed.base_url", "https://eutils.ncbi.nlm.nih.gov/entrez/eutils")
	v.SetDefault("pubmed.tool", "litfetch")
	v.SetDefault("pubmed.api_key", "")
	v.SetDefault("pubmed.email", "")
	v.SetDefault("pubmed.max_results", 20)

	v.SetDefault("openalex.fetch.min_interval", 100*time.Millisecond)
	v.SetDefault("openalex.email", "")

	// The shared unauthenticated pool is 1 request/s.
	v.SetDefault("semantic_scholar.fetch.min_interval", time.Second)
	v.SetDefault("semantic_scholar.api_key", "")

	v.SetDefault("search.max_results", 20)
	v.SetDefault("search.sources", defaultSources)
	v.SetDefault("search.recency_bias_window", 2*365*24*time.Hour)

	v.SetDefault("library.dir", "library")
	v.SetDefault("library.max_results", 50)

	v.SetDefault("logging.level", logging.DefaultLevel)
	v.SetDefault("logging.format", logging.DefaultFormat)
	v.SetDefault("logging.output", logging.DefaultOutput)

	v.SetDefault("metrics_addr", "")
}

// applySecrets fills credentials the config left empty from the secrets
// directory. Values set in config or environment win.
func applySecrets(c *types.Config, s secrets.Secrets) {
	fill := func(dst *string, key string) {
		if *dst == "" {
			*dst = s.Get(key, "")
		}
	}
	fill(&c.PubMed.APIKey, secrets.NCBIAPIKey)
	fill(&c.PubMed.Email, secrets.NCBIEmail)
	fill(&c.OpenAlex.Email, secrets.OpenAlexEmail)
	fill(&c.SemanticScholar.APIKey, secrets.SemanticScholarAPIKey)

	if c.PubMed.APIKey != "" && c.PubMed.Fetch.MinInterval > 100*time.Millisecond {
		c.PubMed.Fetch.MinInterval = 100 * time.Millisecond
	}
}

// serveMetrics exposes the registry on addr in the background.
func serveMetrics(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		log.Info().Str("addr", addr).Msg("serving metrics")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Str("addr", addr).Msg("metrics server stopped")
		}
	}()
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
