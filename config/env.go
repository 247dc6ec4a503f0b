package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// EnvString returns the trimmed value of key when it is set and non-empty.
func EnvString(key string) (string, bool) {
	value, ok := os.LookupEnv(key)
	if !ok {
		return "", false
	}
	value = strings.TrimSpace(value)
	if value == "" {
		return "", false
	}
	return value, true
}

// EnvInt parses key as an integer. ok is false when the variable is unset.
func EnvInt(key string) (int, bool, error) {
	value, ok := EnvString(key)
	if !ok {
		return 0, false, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, false, fmt.Errorf("%s=%q: %w", key, value, err)
	}
	return n, true, nil
}

// EnvDuration parses key with time.ParseDuration.
func EnvDuration(key string) (time.Duration, bool, error) {
	value, ok := EnvString(key)
	if !ok {
		return 0, false, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, false, fmt.Errorf("%s=%q: %w", key, value, err)
	}
	return d, true, nil
}

// Environment variables read by FromEnv.
const (
	EnvBaseURL     = "VALUER_BASE_URL"
	EnvSession     = "VALUER_SESSION"
	EnvPages       = "VALUER_PAGES"
	EnvWorkers     = "VALUER_WORKERS"
	EnvDelay       = "VALUER_DELAY"
	EnvRandomDelay = "VALUER_RANDOM_DELAY"
	EnvTimeout     = "VALUER_TIMEOUT"
	EnvMaxRetries  = "VALUER_MAX_RETRIES"
	EnvOutput      = "VALUER_OUTPUT"
	EnvFormat      = "VALUER_FORMAT"
	EnvMetricsAddr = "VALUER_METRICS_ADDR"
)

// FromEnv overlays VALUER_* variables onto cfg. Every malformed value is
// reported, not just the first.
func FromEnv(cfg *Config) error {
	var errs []error

	strs := map[string]*string{
		EnvBaseURL:     &cfg.BaseURL,
		EnvSession:     &cfg.SessionCookie,
		EnvOutput:      &cfg.OutputFile,
		EnvFormat:      &cfg.OutputFormat,
		EnvMetricsAddr: &cfg.MetricsAddr,
	}
	for key, dst := range strs {
		if value, ok := EnvString(key); ok {
			*dst = value
		}
	}

	ints := map[string]*int{
		EnvPages:      &cfg.MaxPages,
		EnvWorkers:    &cfg.Parallelism,
		EnvMaxRetries: &cfg.MaxRetries,
	}
	for key, dst := range ints {
		n, ok, err := EnvInt(key)
		if err != nil {
			errs = append(errs, err)
		} else if ok {
			*dst = n
		}
	}

	durations := map[string]*time.Duration{
		EnvDelay:       &cfg.Delay,
		EnvRandomDelay: &cfg.RandomDelay,
		EnvTimeout:     &cfg.Timeout,
	}
	for key, dst := range durations {
		d, ok, err := EnvDuration(key)
		if err != nil {
			errs = append(errs, err)
		} else if ok {
			*dst = d
		}
	}

	return errors.Join(errs...)
}
