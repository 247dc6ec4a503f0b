package config

import (
	"strings"
	"testing"
	"time"
)

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name: "negative parallelism",
			mutate: func(cfg *Config) {
				cfg.Parallelism = -1
			},
			wantErr: "parallelism",
		},
		{
			name: "zero max pages",
			mutate: func(cfg *Config) {
				cfg.MaxPages = 0
			},
			wantErr: "max pages",
		},
		{
			name: "empty base url",
			mutate: func(cfg *Config) {
				cfg.BaseURL = ""
			},
			wantErr: "base URL",
		},
		{
			name: "invalid url format",
			mutate: func(cfg *Config) {
				cfg.BaseURL = "http://"
			},
			wantErr: "base URL",
		},
		{
			name: "negative timeout",
			mutate: func(cfg *Config) {
				cfg.Timeout = -1 * time.Second
			},
			wantErr: "timeout",
		},
		{
			name: "backoff above max",
			mutate: func(cfg *Config) {
				cfg.RetryBackoff = time.Minute
				cfg.RetryBackoffMax = time.Second
			},
			wantErr: "retry backoff",
		},
		{
			name: "unknown output format",
			mutate: func(cfg *Config) {
				cfg.OutputFormat = "parquet"
			},
			wantErr: "output format",
		},
		{
			name: "zero batch size",
			mutate: func(cfg *Config) {
				cfg.BatchSize = 0
			},
			wantErr: "batch size",
		},
		{
			name: "zero dedupe size",
			mutate: func(cfg *Config) {
				cfg.DedupeMaxSize = 0
			},
			wantErr: "dedupe",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestDefaultConfigValid(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config should validate, got %v", err)
	}
}

func TestOutputFormatsValid(t *testing.T) {
	for _, format := range OutputFormats {
		cfg := DefaultConfig()
		cfg.OutputFormat = format
		if err := cfg.Validate(); err != nil {
			t.Fatalf("format %s should validate, got %v", format, err)
		}
	}
}

func TestConfigValidateJoinsErrors(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxPages = 0
	cfg.UserAgent = ""

	err := cfg.Validate()
	if err == nil {
		t.Fatalf("expected error")
	}
	for _, want := range []string{"max pages", "user agent"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q does not mention %s", err, want)
		}
	}
}

func TestEnvHelpers(t *testing.T) {
	t.Setenv("VALUER_TEST_INT", " 42 ")
	t.Setenv("VALUER_TEST_BAD", "many")
	t.Setenv("VALUER_TEST_DURATION", "750ms")
	t.Setenv("VALUER_TEST_EMPTY", "  ")

	if n, ok, err := EnvInt("VALUER_TEST_INT"); err != nil || !ok || n != 42 {
		t.Fatalf("EnvInt = %d, %v, %v", n, ok, err)
	}
	if _, _, err := EnvInt("VALUER_TEST_BAD"); err == nil {
		t.Fatalf("expected EnvInt error for non-numeric value")
	}
	if d, ok, err := EnvDuration("VALUER_TEST_DURATION"); err != nil || !ok || d != 750*time.Millisecond {
		t.Fatalf("EnvDuration = %v, %v, %v", d, ok, err)
	}
	if _, ok := EnvString("VALUER_TEST_EMPTY"); ok {
		t.Fatalf("blank variable should read as unset")
	}
	if _, ok, err := EnvInt("VALUER_TEST_UNSET"); ok || err != nil {
		t.Fatalf("unset variable should be ok=false, err=nil")
	}
}

func TestFromEnv(t *testing.T) {
	t.Setenv(EnvPages, "3")
	t.Setenv(EnvDelay, "2s")
	t.Setenv(EnvSession, " abc ")
	t.Setenv(EnvFormat, "xlsx")

	cfg := DefaultConfig()
	if err := FromEnv(cfg); err != nil {
		t.Fatalf("FromEnv: %v", err)
	}
	if cfg.MaxPages != 3 || cfg.Delay != 2*time.Second {
		t.Fatalf("pages=%d delay=%v", cfg.MaxPages, cfg.Delay)
	}
	if cfg.SessionCookie != "abc" || cfg.OutputFormat != FormatXLSX {
		t.Fatalf("session=%q format=%q", cfg.SessionCookie, cfg.OutputFormat)
	}
	if cfg.Parallelism != DefaultConfig().Parallelism {
		t.Fatalf("unset variable changed parallelism to %d", cfg.Parallelism)
	}
}

func TestFromEnvReportsAllErrors(t *testing.T) {
	t.Setenv(EnvPages, "lots")
	t.Setenv(EnvTimeout, "soon")

	err := FromEnv(DefaultConfig())
	if err == nil {
		t.Fatalf("expected error")
	}
	for _, key := range []string{EnvPages, EnvTimeout} {
		if !strings.Contains(err.Error(), key) {
			t.Fatalf("error %q does not mention %s", err, key)
		}
	}
}
