package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/subcommands"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/aluiziolira/itch-bundle-valuer/config"
	"github.com/aluiziolira/itch-bundle-valuer/models"
	"github.com/aluiziolira/itch-bundle-valuer/pipeline"
	"github.com/aluiziolira/itch-bundle-valuer/scraper"
)

type scrapeCmd struct {
	cfg   *config.Config
	stamp bool
}

func (*scrapeCmd) Name() string     { return "scrape" }
func (*scrapeCmd) Synopsis() string { return "export owned games from my purchases and purchased bundles" }
func (*scrapeCmd) Usage() string {
	return `valuer scrape [-session <cookie>] [-output <file>] [-format csv|json|dual|xlsx]

  Walks the my-purchases listing and every purchased bundle and writes one
  record per game. A session cookie is required by the storefront.
`
}

func (c *scrapeCmd) SetFlags(f *flag.FlagSet) {
	cfg := c.cfg
	f.StringVar(&cfg.BaseURL, "base-url", cfg.BaseURL, "Storefront base URL")
	f.StringVar(&cfg.SessionCookie, "session", cfg.SessionCookie, "itchio session cookie or full Cookie header")
	f.IntVar(&cfg.MaxPages, "pages", cfg.MaxPages, "Maximum my-purchases pages to fetch")
	f.IntVar(&cfg.Parallelism, "workers", cfg.Parallelism, "Pipeline workers")
	f.DurationVar(&cfg.Delay, "delay", cfg.Delay, "Delay between requests")
	f.DurationVar(&cfg.RandomDelay, "random-delay", cfg.RandomDelay, "Random jitter added to the delay")
	f.DurationVar(&cfg.Timeout, "timeout", cfg.Timeout, "Request timeout")
	f.IntVar(&cfg.MaxRetries, "max-retries", cfg.MaxRetries, "Maximum retry attempts per URL")
	f.DurationVar(&cfg.RetryBackoff, "retry-backoff", cfg.RetryBackoff, "Initial retry backoff")
	f.DurationVar(&cfg.RetryBackoffMax, "retry-backoff-max", cfg.RetryBackoffMax, "Maximum retry backoff")
	f.BoolVar(&cfg.RespectRobotsTxt, "respect-robots", cfg.RespectRobotsTxt, "Respect robots.txt directives")
	f.StringVar(&cfg.OutputFile, "output", cfg.OutputFile, "Output file path")
	f.StringVar(&cfg.OutputFormat, "format", cfg.OutputFormat, "Output format: csv, json, dual or xlsx")
	f.StringVar(&cfg.MetricsAddr, "metrics-addr", cfg.MetricsAddr, "Prometheus metrics listen address (e.g. :9090)")
	f.BoolVar(&c.stamp, "stamp", true, "Add a millisecond timestamp to the output name")
}

func (c *scrapeCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	cfg := c.cfg
	cfg.OutputFormat = strings.ToLower(cfg.OutputFormat)
	if c.stamp {
		cfg.OutputFile = stampFilename(cfg.OutputFile, time.Now())
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid configuration", slog.Any("error", err))
		return subcommands.ExitUsageError
	}
	if cfg.SessionCookie == "" {
		slog.Warn("no session cookie configured, the storefront will only show public pages")
	}

	slog.Info("starting scrape",
		slog.String("base_url", cfg.BaseURL),
		slog.Int("pages", cfg.MaxPages),
		slog.String("output", cfg.OutputFile),
	)

	s, err := scraper.NewScraper(cfg)
	if err != nil {
		slog.Error("initialising scraper", slog.Any("error", err))
		return subcommands.ExitFailure
	}

	writer, err := createWriter(cfg.OutputFormat, cfg.OutputFile)
	if err != nil {
		slog.Error("creating writer", slog.Any("error", err))
		return subcommands.ExitFailure
	}
	closeWriter := sync.OnceValue(writer.Close)
	defer closeWriter()

	stopMetrics := serveMetrics(cfg.MetricsAddr, s.Metrics)
	defer stopMetrics()

	p := pipeline.NewPipeline(ctx, writer, cfg)
	p.Start(cfg.Parallelism)
	if cfg.Verbose {
		p.StartMetricsReporting(10 * time.Second)
	}

	startTime := time.Now()
	result, runErr := s.Run(ctx, p)
	if runErr != nil {
		slog.Error("scraping failed", slog.Any("error", runErr))
	}

	if err := p.Close(); err != nil {
		slog.Error("pipeline shutdown failed", slog.Any("error", err))
		return subcommands.ExitFailure
	}
	// the xlsx writer only materialises its file on Close
	if err := closeWriter(); err != nil {
		slog.Error("close writer", slog.Any("error", err))
		return subcommands.ExitFailure
	}
	if err := writer.Validate(); err != nil {
		slog.Error("output validation failed", slog.Any("error", err))
		return subcommands.ExitFailure
	}

	printSummary(result, time.Since(startTime), cfg.OutputFile, p.GetMetrics())
	if runErr != nil {
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}

func serveMetrics(addr string, metrics *scraper.Metrics) func() {
	if addr == "" || metrics == nil {
		return func() {}
	}

	server := &http.Server{
		Addr:              addr,
		Handler:           promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("metrics server failed", slog.Any("error", err))
		}
	}()
	slog.Info("metrics server enabled", slog.String("addr", addr))

	return func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("metrics server shutdown failed", slog.Any("error", err))
		}
	}
}

func createWriter(format, filename string) (pipeline.OutputWriter, error) {
	switch format {
	case config.FormatJSON:
		return pipeline.NewJSONWriter(filename)
	case config.FormatCSV:
		return pipeline.NewCSVWriter(filename)
	case config.FormatXLSX:
		return pipeline.NewXLSXWriter(filename)
	case config.FormatDual:
		base := strings.TrimSuffix(filename, filepath.Ext(filename))
		return pipeline.NewDualWriter(base+".csv", base+".jsonl")
	default:
		return nil, fmt.Errorf("unsupported format: %s", format)
	}
}

// stampFilename turns data/owned_games.jsonl into
// data/owned_games_<unix millis>.jsonl, the naming the ownership loader
// sorts on.
func stampFilename(filename string, now time.Time) string {
	ext := filepath.Ext(filename)
	base := strings.TrimSuffix(filename, ext)
	return base + "_" + strconv.FormatInt(now.UnixMilli(), 10) + ext
}

func printSummary(result *models.ScrapeResult, duration time.Duration, outputFile string, metrics map[string]interface{}) {
	separator := "--------------------------------------------------"
	fmt.Println("\n" + separator)
	fmt.Println("Scrape complete")

	written := int64(0)
	if processed, ok := metrics["processed_records"].(int64); ok {
		written = processed
	}

	fmt.Printf("  Purchases:     %d\n", result.Purchases)
	fmt.Printf("  Bundles:       %d (%d games)\n", result.Bundles, result.BundleGames)
	fmt.Printf("  Records:       %d\n", written)
	successRate := 0.0
	if result.RequestCount > 0 {
		successRate = float64(result.RequestCount-result.ErrorCount) / float64(result.RequestCount) * 100
	}
	fmt.Printf("  Success rate:  %.2f%%\n", successRate)
	fmt.Printf("  Errors:        %d\n", result.ErrorCount)
	fmt.Printf("  Retries:       %d\n", result.RetryCount)
	fmt.Printf("  Failed URLs:   %d\n", len(result.FailedURLs))
	if len(result.ErrorsByType) > 0 {
		fmt.Printf("  Error types:   %v\n", result.ErrorsByType)
	}
	if valErrors, ok := metrics["validation_errors"].(map[string]int); ok && len(valErrors) > 0 {
		fmt.Printf("  Validation:    %v\n", valErrors)
	}
	fmt.Printf("  Duration:      %v\n", duration.Round(time.Millisecond))
	fmt.Printf("  Output file:   %s\n", outputFile)
	fmt.Println(separator)
}
