package config_test

import (
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/gabrik/zenoh-pico-go/internal/config"
)

func TestDefaultConfig(t *testing.T) {
	t.Parallel()

	cfg := config.DefaultConfig()

	if cfg.Session.SNResolution != 16384 {
		t.Errorf("Session.SNResolution = %d, want %d", cfg.Session.SNResolution, 16384)
	}

	if !cfg.Session.IsStreamed {
		t.Error("Session.IsStreamed = false, want true")
	}

	if cfg.Metrics.Addr != ":9100" {
		t.Errorf("Metrics.Addr = %q, want %q", cfg.Metrics.Addr, ":9100")
	}

	if cfg.Metrics.Path != "/metrics" {
		t.Errorf("Metrics.Path = %q, want %q", cfg.Metrics.Path, "/metrics")
	}

	if cfg.Log.Level != "info" {
		t.Errorf("Log.Level = %q, want %q", cfg.Log.Level, "info")
	}

	if cfg.Log.Format != "json" {
		t.Errorf("Log.Format = %q, want %q", cfg.Log.Format, "json")
	}

	if cfg.Link.Network != "tcp" {
		t.Errorf("Link.Network = %q, want %q", cfg.Link.Network, "tcp")
	}

	if cfg.Link.Addr != "127.0.0.1:7447" {
		t.Errorf("Link.Addr = %q, want %q", cfg.Link.Addr, "127.0.0.1:7447")
	}

	// Defaults must pass validation.
	if err := config.Validate(cfg); err != nil {
		t.Errorf("DefaultConfig() failed validation: %v", err)
	}
}

func TestLoadFromYAML(t *testing.T) {
	t.Parallel()

	yamlContent := `
session:
  sn_resolution: 256
  is_streamed: false
  frag_buf_chunk: 8192
  write_buf_size: 4096
metrics:
  addr: ":9200"
  path: "/custom-metrics"
log:
  level: "debug"
  format: "text"
link:
  network: "udp"
  addr: "0.0.0.0:7448"
  listen: false
`

	path := writeTemp(t, yamlContent)

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load(%q) error: %v", path, err)
	}

	if cfg.Session.SNResolution != 256 {
		t.Errorf("Session.SNResolution = %d, want %d", cfg.Session.SNResolution, 256)
	}

	if cfg.Session.IsStreamed {
		t.Error("Session.IsStreamed = true, want false")
	}

	if cfg.Session.FragBufChunk != 8192 {
		t.Errorf("Session.FragBufChunk = %d, want %d", cfg.Session.FragBufChunk, 8192)
	}

	if cfg.Metrics.Addr != ":9200" {
		t.Errorf("Metrics.Addr = %q, want %q", cfg.Metrics.Addr, ":9200")
	}

	if cfg.Log.Level != "debug" {
		t.Errorf("Log.Level = %q, want %q", cfg.Log.Level, "debug")
	}

	if cfg.Link.Network != "udp" {
		t.Errorf("Link.Network = %q, want %q", cfg.Link.Network, "udp")
	}

	if cfg.Link.Addr != "0.0.0.0:7448" {
		t.Errorf("Link.Addr = %q, want %q", cfg.Link.Addr, "0.0.0.0:7448")
	}

	if cfg.Link.Listen {
		t.Error("Link.Listen = true, want false")
	}
}

func TestLoadMergesDefaults(t *testing.T) {
	t.Parallel()

	// Partial YAML: only override link.addr and log.level.
	// Everything else should inherit from defaults.
	yamlContent := `
link:
  addr: "10.0.0.1:7447"
log:
  level: "warn"
`

	path := writeTemp(t, yamlContent)

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load(%q) error: %v", path, err)
	}

	// Overridden values.
	if cfg.Link.Addr != "10.0.0.1:7447" {
		t.Errorf("Link.Addr = %q, want %q", cfg.Link.Addr, "10.0.0.1:7447")
	}

	if cfg.Log.Level != "warn" {
		t.Errorf("Log.Level = %q, want %q", cfg.Log.Level, "warn")
	}

	// Default values should be preserved.
	if cfg.Session.SNResolution != 16384 {
		t.Errorf("Session.SNResolution = %d, want default %d", cfg.Session.SNResolution, 16384)
	}

	if cfg.Metrics.Addr != ":9100" {
		t.Errorf("Metrics.Addr = %q, want default %q", cfg.Metrics.Addr, ":9100")
	}

	if cfg.Log.Format != "json" {
		t.Errorf("Log.Format = %q, want default %q", cfg.Log.Format, "json")
	}

	if cfg.Link.Network != "tcp" {
		t.Errorf("Link.Network = %q, want default %q", cfg.Link.Network, "tcp")
	}
}

func TestValidateErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		modify  func(*config.Config)
		wantErr error
	}{
		{
			name: "zero sn resolution",
			modify: func(cfg *config.Config) {
				cfg.Session.SNResolution = 0
			},
			wantErr: config.ErrInvalidSNResolution,
		},
		{
			name: "odd sn resolution",
			modify: func(cfg *config.Config) {
				cfg.Session.SNResolution = 17
			},
			wantErr: config.ErrInvalidSNResolution,
		},
		{
			name: "zero frag buf chunk",
			modify: func(cfg *config.Config) {
				cfg.Session.FragBufChunk = 0
			},
			wantErr: config.ErrInvalidFragBufChunk,
		},
		{
			name: "negative write buf size",
			modify: func(cfg *config.Config) {
				cfg.Session.WriteBufSize = -1
			},
			wantErr: config.ErrInvalidWriteBufSize,
		},
		{
			name: "empty link addr",
			modify: func(cfg *config.Config) {
				cfg.Link.Addr = ""
			},
			wantErr: config.ErrEmptyLinkAddr,
		},
		{
			name: "invalid link network",
			modify: func(cfg *config.Config) {
				cfg.Link.Network = "sctp"
			},
			wantErr: config.ErrInvalidLinkNetwork,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			cfg := config.DefaultConfig()
			tt.modify(cfg)

			err := config.Validate(cfg)
			if err == nil {
				t.Fatal("Validate() returned nil, want error")
			}

			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Validate() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestParseLogLevel(t *testing.T) {
	t.Parallel()

	tests := []struct {
		input string
		want  slog.Level
	}{
		{input: "debug", want: slog.LevelDebug},
		{input: "DEBUG", want: slog.LevelDebug},
		{input: "info", want: slog.LevelInfo},
		{input: "INFO", want: slog.LevelInfo},
		{input: "warn", want: slog.LevelWarn},
		{input: "WARN", want: slog.LevelWarn},
		{input: "error", want: slog.LevelError},
		{input: "Error", want: slog.LevelError},
		{input: "unknown", want: slog.LevelInfo},
		{input: "", want: slog.LevelInfo},
		{input: "trace", want: slog.LevelInfo},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			t.Parallel()

			got := config.ParseLogLevel(tt.input)
			if got != tt.want {
				t.Errorf("ParseLogLevel(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestLoadNonexistentFile(t *testing.T) {
	t.Parallel()

	_, err := config.Load("/nonexistent/path/zenohd.yml")
	if err == nil {
		t.Fatal("Load() returned nil error for nonexistent file")
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	// Environment variable tests cannot be parallel because they modify
	// process-wide state (os.Setenv).

	yamlContent := `
link:
  addr: "127.0.0.1:7447"
log:
  level: "info"
`
	path := writeTemp(t, yamlContent)

	t.Setenv("ZENOHD_LINK_ADDR", "192.168.1.1:7447")
	t.Setenv("ZENOHD_LOG_LEVEL", "debug")

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load(%q) error: %v", path, err)
	}

	if cfg.Link.Addr != "192.168.1.1:7447" {
		t.Errorf("Link.Addr = %q, want %q (from env)", cfg.Link.Addr, "192.168.1.1:7447")
	}

	if cfg.Log.Level != "debug" {
		t.Errorf("Log.Level = %q, want %q (from env)", cfg.Log.Level, "debug")
	}
}

func TestLoadEnvOverridesMetrics(t *testing.T) {
	yamlContent := `
metrics:
  addr: ":9100"
  path: "/metrics"
`
	path := writeTemp(t, yamlContent)

	t.Setenv("ZENOHD_METRICS_ADDR", ":9200")
	t.Setenv("ZENOHD_METRICS_PATH", "/custom")

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load(%q) error: %v", path, err)
	}

	if cfg.Metrics.Addr != ":9200" {
		t.Errorf("Metrics.Addr = %q, want %q (from env)", cfg.Metrics.Addr, ":9200")
	}

	if cfg.Metrics.Path != "/custom" {
		t.Errorf("Metrics.Path = %q, want %q (from env)", cfg.Metrics.Path, "/custom")
	}
}

// writeTemp creates a temporary YAML file and returns its path.
// The file is automatically cleaned up when the test finishes.
func writeTemp(t *testing.T, content string) string {
	t.Helper()

	dir := t.TempDir()
	path := filepath.Join(dir, "zenohd.yml")

	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write temp file: %v", err)
	}

	return path
}
