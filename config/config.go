package config

import (
	"errors"
	"fmt"
	"net/url"
	"slices"
	"time"
)

// Output formats accepted by the scrape command.
const (
	FormatCSV  = "csv"
	FormatJSON = "json"
	FormatDual = "dual"
	FormatXLSX = "xlsx"
)

// OutputFormats lists every accepted OutputFormat.
var OutputFormats = []string{FormatCSV, FormatJSON, FormatDual, FormatXLSX}

// Config holds scraper and export configuration.
type Config struct {
	BaseURL          string
	MaxPages         int
	Parallelism      int
	Delay            time.Duration
	RandomDelay      time.Duration
	Timeout          time.Duration
	MaxRetries       int
	RetryBackoff     time.Duration
	RetryBackoffMax  time.Duration
	OutputFile       string
	OutputFormat     string // csv, json, dual or xlsx
	UserAgent        string
	SessionCookie    string
	Verbose          bool
	RespectRobotsTxt bool

	PipelineBufferSize int
	BatchSize          int
	DedupeMaxSize      int
	MetricsAddr        string
}

// DefaultConfig returns polite defaults for itch.io. The delays mirror the
// half second plus up to three seconds of jitter used between manual
// fetches of purchase and bundle pages.
func DefaultConfig() *Config {
	return &Config{
		BaseURL:            "https://itch.io",
		MaxPages:           200,
		Parallelism:        4,
		Delay:              500 * time.Millisecond,
		RandomDelay:        3 * time.Second,
		Timeout:            30 * time.Second,
		MaxRetries:         2,
		RetryBackoff:       time.Second,
		RetryBackoffMax:    10 * time.Second,
		OutputFile:         "data/owned_games.jsonl",
		OutputFormat:       FormatJSON,
		UserAgent:          "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36",
		Verbose:            false,
		RespectRobotsTxt:   false,
		PipelineBufferSize: 512,
		BatchSize:          64,
		DedupeMaxSize:      100000,
		MetricsAddr:        "",
	}
}

// Validate reports every incoherent setting at once.
func (c *Config) Validate() error {
	var errs []error
	check := func(ok bool, format string, args ...any) {
		if !ok {
			errs = append(errs, fmt.Errorf(format, args...))
		}
	}

	if c.BaseURL == "" {
		errs = append(errs, errors.New("base URL cannot be empty"))
	} else if u, err := url.Parse(c.BaseURL); err != nil {
		errs = append(errs, fmt.Errorf("invalid base URL: %w", err))
	} else {
		check(u.Host != "", "base URL %q has no host", c.BaseURL)
	}

	check(c.MaxPages > 0, "max pages must be positive, got %d", c.MaxPages)
	check(c.Parallelism > 0, "parallelism must be positive, got %d", c.Parallelism)
	check(c.Delay >= 0, "delay cannot be negative")
	check(c.RandomDelay >= 0, "random delay cannot be negative")
	check(c.Timeout > 0, "timeout must be positive, got %s", c.Timeout)
	check(c.MaxRetries >= 0, "max retries cannot be negative")
	check(c.RetryBackoff >= 0 && c.RetryBackoffMax >= 0, "retry backoff cannot be negative")
	check(c.RetryBackoffMax == 0 || c.RetryBackoff <= c.RetryBackoffMax,
		"retry backoff %s exceeds its max %s", c.RetryBackoff, c.RetryBackoffMax)
	check(c.OutputFile != "", "output file cannot be empty")
	check(slices.Contains(OutputFormats, c.OutputFormat),
		"output format %q is not one of %v", c.OutputFormat, OutputFormats)
	check(c.UserAgent != "", "user agent cannot be empty")
	check(c.PipelineBufferSize > 0, "pipeline buffer size must be positive")
	check(c.BatchSize > 0, "batch size must be positive")
	check(c.DedupeMaxSize > 0, "dedupe max size must be positive")

	return errors.Join(errs...)
}
