// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import "time"

// FetchConfig holds the pacing and retry settings of one rate-limited
// fetcher. Each upstream host gets its own fetcher and its own FetchConfig.
type FetchConfig struct {
	// MinInterval is the minimum time between the start of two consecutive
	// dispatched requests (default 350ms, roughly 3 requests per second).
	MinInterval time.Duration `json:"min_interval" yaml:"min_interval" mapstructure:"min_interval"`

	// MaxRetries is the number of retries after rate-limit responses. Zero
	// selects the default (3); a negative value disables retries.
	MaxRetries int `json:"max_retries" yaml:"max_retries" mapstructure:"max_retries"`

	// BaseDelay is the exponential backoff base: retry k waits BaseDelay * 2^k (default 1s).
	BaseDelay time.Duration `json:"base_delay" yaml:"base_delay" mapstructure:"base_delay"`

	// MaxBodyBytes caps how much of a response body is buffered (default 32 MiB).
	MaxBodyBytes int64 `json:"max_body_bytes" yaml:"max_body_bytes" mapstructure:"max_body_bytes"`

	// Timeout is the HTTP request timeout of the default transport (default 30s).
	Timeout time.Duration `json:"timeout" yaml:"timeout" mapstructure:"timeout"`

	// UserAgent is sent when a request does not set its own User-Agent.
	UserAgent string `json:"user_agent" yaml:"user_agent" mapstructure:"user_agent"`
}

// PubMedConfig holds settings for the NCBI E-utilities client.
type PubMedConfig struct {
	Fetch FetchConfig `json:"fetch" yaml:"fetch" mapstructure:"fetch"`

	// BaseURL is the E-utilities root (default https://eutils.ncbi.nlm.nih.gov/entrez/eutils).
	BaseURL string `json:"base_url" yaml:"base_url" mapstructure:"base_url"`

	// APIKey raises the NCBI allowance from 3 to 10 requests per second.
	APIKey string `json:"api_key,omitempty" yaml:"api_key,omitempty" mapstructure:"api_key"`

	// Tool and Email identify the caller to NCBI.
	Tool  string `json:"tool" yaml:"tool" mapstructure:"tool"`
	Email string `json:"email,omitempty" yaml:"email,omitempty" mapstructure:"email"`

	// MaxResults is the default esearch retmax (default 20).
	MaxResults int `json:"max_results" yaml:"max_results" mapstructure:"max_results"`
}

// OpenAlexConfig holds settings for the OpenAlex backend.
type OpenAlexConfig struct {
	Fetch FetchConfig `json:"fetch" yaml:"fetch" mapstructure:"fetch"`

	// Email is sent as the mailto parameter for polite pool access.
	Email string `json:"email,omitempty" yaml:"email,omitempty" mapstructure:"email"`
}

// SemanticScholarConfig holds settings for the Semantic Scholar backend.
type SemanticScholarConfig struct {
	Fetch FetchConfig `json:"fetch" yaml:"fetch" mapstructure:"fetch"`

	// APIKey is an optional API key for higher rate limits.
	APIKey string `json:"api_key,omitempty" yaml:"api_key,omitempty" mapstructure:"api_key"`
}

// SearchConfig holds settings for the multi-source search.
type SearchConfig struct {
	// MaxResults is the maximum number of results to return (default 20).
	MaxResults int `json:"max_results" yaml:"max_results" mapstructure:"max_results"`

	// Sources lists the enabled backends: pubmed, openalex, semantic_scholar.
	Sources []string `json:"sources" yaml:"sources" mapstructure:"sources"`

	// RecencyBiasWindow is the time window for boosting recent papers (default 2 years).
	RecencyBiasWindow time.Duration `json:"recency_bias_window" yaml:"recency_bias_window" mapstructure:"recency_bias_window"`
}

// LibraryConfig holds settings for the saved-results library.
type LibraryConfig struct {
	// Dir is the directory holding litfetch.db and exports (default "library").
	Dir string `json:"dir" yaml:"dir" mapstructure:"dir"`

	// MaxResults is the default maximum number of find results (default 20).
	MaxResults int `json:"max_results" yaml:"max_results" mapstructure:"max_results"`
}

// LoggingConfig holds the structured logger settings.
type LoggingConfig struct {
	// Level is the minimum level: trace, debug, info, warn, error.
	Level string `json:"level" yaml:"level" mapstructure:"level"`

	// Format is json or console.
	Format string `json:"format" yaml:"format" mapstructure:"format"`

	// Output is stdout or stderr.
	Output string `json:"output" yaml:"output" mapstructure:"output"`
}

// Config groups every setting read from litfetch.yaml and LITFETCH_* variables.
type Config struct {
	Fetch           FetchConfig           `json:"fetch" yaml:"fetch" mapstructure:"fetch"`
	PubMed          PubMedConfig          `json:"pubmed" yaml:"pubmed" mapstructure:"pubmed"`
	OpenAlex        OpenAlexConfig        `json:"openalex" yaml:"openalex" mapstructure:"openalex"`
	SemanticScholar SemanticScholarConfig `json:"semantic_scholar" yaml:"semantic_scholar" mapstructure:"semantic_scholar"`
	Search          SearchConfig          `json:"search" yaml:"search" mapstructure:"search"`
	Library         LibraryConfig         `json:"library" yaml:"library" mapstructure:"library"`
	Logging         LoggingConfig         `json:"logging" yaml:"logging" mapstructure:"logging"`
}
