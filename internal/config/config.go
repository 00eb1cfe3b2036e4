package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/go-multierror"
	"gopkg.in/yaml.v3"
)

// ErrInvalid wraps every validation failure so callers can tell a bad
// configuration apart from a runtime error
var ErrInvalid = errors.New("invalid configuration")

// Config holds all runtime configuration parameters
type Config struct {
	// Crawl
	SeedURL          string   `json:"seed_url" yaml:"seed_url"`
	BaseURL          string   `json:"base_url" yaml:"base_url"`
	ArticlePrefix    string   `json:"article_prefix" yaml:"article_prefix"`
	ExcludedPatterns []string `json:"excluded_patterns" yaml:"excluded_patterns"`
	TextMode         string   `json:"text_mode" yaml:"text_mode"`
	MaxDepth         int      `json:"max_depth" yaml:"max_depth"`
	MaxArticles      int      `json:"max_articles" yaml:"max_articles"`
	DelayMinMs       int      `json:"delay_min_ms" yaml:"delay_min_ms"`
	DelayMaxMs       int      `json:"delay_max_ms" yaml:"delay_max_ms"`
	RequestTimeoutMs int      `json:"request_timeout_ms" yaml:"request_timeout_ms"`
	RetryAttempts    int      `json:"retry_attempts" yaml:"retry_attempts"`
	RetryDelayMs     int      `json:"retry_delay_ms" yaml:"retry_delay_ms"`
	UserAgent        string   `json:"user_agent" yaml:"user_agent"`

	// Lexical normalization
	MinTokenLength int      `json:"min_token_length" yaml:"min_token_length"`
	ExtraStopwords []string `json:"extra_stopwords" yaml:"extra_stopwords"`
	FoldEntities   bool     `json:"fold_entities" yaml:"fold_entities"`
	Stem           bool     `json:"stem" yaml:"stem"`
	Bigrams        bool     `json:"bigrams" yaml:"bigrams"`

	// Graph assembly and pruning
	WindowSize     int     `json:"window_size" yaml:"window_size"`
	MinLinkFreq    int     `json:"min_link_freq" yaml:"min_link_freq"`
	TopNBigrams    int     `json:"top_n_bigrams" yaml:"top_n_bigrams"`
	EdgePercentile float64 `json:"edge_percentile" yaml:"edge_percentile"`
	EdgeMinWeight  int     `json:"edge_min_weight" yaml:"edge_min_weight"`
	NodePercentile float64 `json:"node_percentile" yaml:"node_percentile"`
	NodeMinFreq    int     `json:"node_min_freq" yaml:"node_min_freq"`

	// Output
	DBPath          string `json:"db_path" yaml:"db_path"`
	MetricsPath     string `json:"metrics_path" yaml:"metrics_path"`
	MetricsAddr     string `json:"metrics_addr" yaml:"metrics_addr"`
	OutputDir       string `json:"output_dir" yaml:"output_dir"`
	ReportPath      string `json:"report_path" yaml:"report_path"`
	CleanLinkLabels bool   `json:"clean_link_labels" yaml:"clean_link_labels"`

	// Optional Neo4j sink, disabled when the URI is empty
	Neo4jURI       string `json:"neo4j_uri" yaml:"neo4j_uri"`
	Neo4jUser      string `json:"neo4j_user" yaml:"neo4j_user"`
	Neo4jPassword  string `json:"neo4j_password" yaml:"neo4j_password"`
	Neo4jDatabase  string `json:"neo4j_database" yaml:"neo4j_database"`
	Neo4jBatchSize int    `json:"neo4j_batch_size" yaml:"neo4j_batch_size"`
}

// Default returns a configuration with every default applied
func Default() *Config {
	return &Config{
		ArticlePrefix:    "/wiki/",
		ExcludedPatterns: []string{"^/wiki/Main_Page"},
		TextMode:         "paragraphs",
		MaxDepth:         1,
		MaxArticles:      20,
		DelayMinMs:       1000,
		DelayMaxMs:       3000,
		RequestTimeoutMs: 10000,
		RetryAttempts:    2,
		RetryDelayMs:     500,
		UserAgent:        "wiki-weaver",
		MinTokenLength:   3,
		Bigrams:          true,
		WindowSize:       5,
		MinLinkFreq:      2,
		TopNBigrams:      100,
		EdgePercentile:   50,
		EdgeMinWeight:    2,
		NodePercentile:   50,
		NodeMinFreq:      2,
		DBPath:           "weaver.db",
		MetricsPath:      "metrics.json",
		OutputDir:        "output",
		Neo4jBatchSize:   500,
	}
}

// LoadConfig reads configuration from a JSON or YAML file (chosen by
// extension), applies WEAVER_* environment overrides and validates the
// result. An empty path loads defaults and the environment only.
func LoadConfig(path string) (*Config, error) {
	// Defaults go in first so the file only overrides what it sets,
	// including explicit zero values.
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to open config file: %w", err)
		}

		switch strings.ToLower(filepath.Ext(path)) {
		case ".yaml", ".yml":
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("%w: failed to parse config YAML: %v", ErrInvalid, err)
			}
		default:
			decoder := json.NewDecoder(bytes.NewReader(data))
			decoder.DisallowUnknownFields()
			if err := decoder.Decode(cfg); err != nil {
				return nil, fmt.Errorf("%w: failed to parse config JSON: %v", ErrInvalid, err)
			}
		}
	}

	if err := applyEnv(cfg, os.LookupEnv); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
	}

	// BaseURL follows the seed unless set explicitly
	if cfg.BaseURL == "" && cfg.SeedURL != "" {
		if u, err := url.Parse(cfg.SeedURL); err == nil && u.Host != "" {
			cfg.BaseURL = u.Scheme + "://" + u.Host
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// applyEnv overrides fields from WEAVER_* environment variables
func applyEnv(cfg *Config, lookup func(string) (string, bool)) error {
	var err error

	strs := map[string]*string{
		"WEAVER_SEED_URL":       &cfg.SeedURL,
		"WEAVER_BASE_URL":       &cfg.BaseURL,
		"WEAVER_DB_PATH":        &cfg.DBPath,
		"WEAVER_OUTPUT_DIR":     &cfg.OutputDir,
		"WEAVER_NEO4J_URI":      &cfg.Neo4jURI,
		"WEAVER_NEO4J_USER":     &cfg.Neo4jUser,
		"WEAVER_NEO4J_PASSWORD": &cfg.Neo4jPassword,
	}
	for key, field := range strs {
		if v, ok := lookup(key); ok {
			*field = v
		}
	}

	ints := map[string]*int{
		"WEAVER_MAX_DEPTH":    &cfg.MaxDepth,
		"WEAVER_MAX_ARTICLES": &cfg.MaxArticles,
	}
	for key, field := range ints {
		v, ok := lookup(key)
		if !ok {
			continue
		}
		n, convErr := strconv.Atoi(strings.TrimSpace(v))
		if convErr != nil {
			err = multierror.Append(err, fmt.Errorf("%s: %q is not an integer", key, v))
			continue
		}
		*field = n
	}

	return err
}

// Validate checks that required fields are present and values are sensible.
// All problems are reported at once.
func (cfg *Config) Validate() error {
	var err error

	if cfg.SeedURL == "" {
		err = multierror.Append(err, fmt.Errorf("seed_url is required"))
	} else if u, parseErr := url.Parse(cfg.SeedURL); parseErr != nil || u.Host == "" {
		err = multierror.Append(err, fmt.Errorf("seed_url %q is not an absolute URL", cfg.SeedURL))
	}
	if cfg.BaseURL != "" && cfg.SeedURL != "" {
		base, baseErr := url.Parse(cfg.BaseURL)
		seed, seedErr := url.Parse(cfg.SeedURL)
		if baseErr != nil || seedErr != nil || !strings.EqualFold(base.Hostname(), seed.Hostname()) {
			err = multierror.Append(err, fmt.Errorf("seed_url must be on the base_url host"))
		}
	}
	for _, p := range cfg.ExcludedPatterns {
		if _, reErr := regexp.Compile(p); reErr != nil {
			err = multierror.Append(err, fmt.Errorf("invalid excluded pattern %q: %v", p, reErr))
		}
	}
	if cfg.TextMode != "paragraphs" && cfg.TextMode != "body" {
		err = multierror.Append(err, fmt.Errorf("text_mode must be paragraphs or body"))
	}
	if cfg.MaxDepth < 0 {
		err = multierror.Append(err, fmt.Errorf("max_depth must be >= 0"))
	}
	if cfg.MaxArticles < 1 {
		err = multierror.Append(err, fmt.Errorf("max_articles must be >= 1"))
	}
	if cfg.DelayMinMs < 0 || cfg.DelayMaxMs < cfg.DelayMinMs {
		err = multierror.Append(err, fmt.Errorf("delay range must satisfy 0 <= delay_min_ms <= delay_max_ms"))
	}
	if cfg.RequestTimeoutMs < 1 {
		err = multierror.Append(err, fmt.Errorf("request_timeout_ms must be >= 1"))
	}
	if cfg.RetryAttempts < 0 {
		err = multierror.Append(err, fmt.Errorf("retry_attempts must be >= 0"))
	}
	if cfg.WindowSize < 2 {
		err = multierror.Append(err, fmt.Errorf("window_size must be >= 2"))
	}
	if cfg.MinLinkFreq < 1 {
		err = multierror.Append(err, fmt.Errorf("min_link_freq must be >= 1"))
	}
	if cfg.TopNBigrams < 0 {
		err = multierror.Append(err, fmt.Errorf("top_n_bigrams must be >= 0"))
	}
	// written as a negated range so NaN fails too
	if !(cfg.EdgePercentile >= 0 && cfg.EdgePercentile <= 100) {
		err = multierror.Append(err, fmt.Errorf("edge_percentile must be within [0, 100]"))
	}
	if !(cfg.NodePercentile >= 0 && cfg.NodePercentile <= 100) {
		err = multierror.Append(err, fmt.Errorf("node_percentile must be within [0, 100]"))
	}
	if cfg.EdgeMinWeight < 0 || cfg.NodeMinFreq < 0 {
		err = multierror.Append(err, fmt.Errorf("pruning floors must be >= 0"))
	}
	if cfg.Neo4jURI != "" && cfg.Neo4jBatchSize < 1 {
		err = multierror.Append(err, fmt.Errorf("neo4j_batch_size must be >= 1"))
	}

	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	return nil
}

// DelayRange returns the politeness delay bounds
func (cfg *Config) DelayRange() (time.Duration, time.Duration) {
	return ms(cfg.DelayMinMs), ms(cfg.DelayMaxMs)
}

// RequestTimeout returns the per-request fetch timeout
func (cfg *Config) RequestTimeout() time.Duration {
	return ms(cfg.RequestTimeoutMs)
}

// RetryDelay returns the base backoff between fetch retries
func (cfg *Config) RetryDelay() time.Duration {
	return ms(cfg.RetryDelayMs)
}

func ms(n int) time.Duration {
	return time.Duration(n) * time.Millisecond
}
