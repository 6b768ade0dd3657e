// Package config manages zenohd configuration using koanf/v2.
//
// Supports YAML files and environment variable overrides.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// -------------------------------------------------------------------------
// Configuration Structures
// -------------------------------------------------------------------------

// Config holds the complete zenohd configuration.
type Config struct {
	Session SessionConfig `koanf:"session"`
	Metrics MetricsConfig `koanf:"metrics"`
	Log     LogConfig     `koanf:"log"`
	Link    LinkConfig    `koanf:"link"`
}

// SessionConfig holds the session-level parameters fixed at open time.
// Mirrors internal/session.Config.
type SessionConfig struct {
	// SNResolution is the modulus of both sequence-number spaces.
	SNResolution uint64 `koanf:"sn_resolution"`

	// IsStreamed is passed through to session.Config. The 2-byte
	// length-prefixed framing itself follows the opened link's
	// IsStreamed(): stream-oriented links (TCP) are prefixed, datagram
	// links (UDP) carry no prefix.
	IsStreamed bool `koanf:"is_streamed"`

	// FragBufChunk is the initial allocation size of the expandable
	// fragmentation buffer.
	FragBufChunk int `koanf:"frag_buf_chunk"`

	// WriteBufSize is the size of the reusable per-session write buffer.
	WriteBufSize int `koanf:"write_buf_size"`
}

// MetricsConfig holds the Prometheus metrics endpoint configuration.
type MetricsConfig struct {
	// Addr is the HTTP listen address for the metrics endpoint (e.g., ":9100").
	Addr string `koanf:"addr"`
	// Path is the URL path for the metrics endpoint (e.g., "/metrics").
	Path string `koanf:"path"`
}

// LogConfig holds the logging configuration.
type LogConfig struct {
	// Level is the log level: "debug", "info", "warn", "error".
	Level string `koanf:"level"`
	// Format is the log output format: "json" or "text".
	Format string `koanf:"format"`
}

// LinkConfig describes the transport link zenohd listens on or dials.
type LinkConfig struct {
	// Network is "tcp" or "udp".
	Network string `koanf:"network"`
	// Addr is the listen or dial address (e.g., "127.0.0.1:7447").
	Addr string `koanf:"addr"`
	// Listen selects server mode (true) vs. client dial mode (false).
	// Server mode uses a stream listener, so it works only with "tcp";
	// with "udp" opening the link fails.
	Listen bool `koanf:"listen"`
}

// -------------------------------------------------------------------------
// Defaults
// -------------------------------------------------------------------------

// DefaultConfig returns a Config populated with sensible defaults.
//
// SNResolution of 16384 follows zenoh-pico's default sequence-number
// resolution (a 14-bit wire field); FragBufChunk and WriteBufSize are sized
// for typical single-hop publish/query payloads without forcing every
// session to pre-allocate for the worst case.
func DefaultConfig() *Config {
	return &Config{
		Session: SessionConfig{
			SNResolution: 16384,
			IsStreamed:   true,
			FragBufChunk: 4096,
			WriteBufSize: 2048,
		},
		Metrics: MetricsConfig{
			Addr: ":9100",
			Path: "/metrics",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		Link: LinkConfig{
			Network: "tcp",
			Addr:    "127.0.0.1:7447",
			Listen:  true,
		},
	}
}

// -------------------------------------------------------------------------
// Loader
// -------------------------------------------------------------------------

// envPrefix is the environment variable prefix for zenohd configuration.
// Variables are named ZENOHD_<section>_<key>, e.g., ZENOHD_LINK_ADDR.
const envPrefix = "ZENOHD_"

// Load reads configuration from a YAML file at path, overlays environment
// variable overrides (ZENOHD_ prefix), and merges on top of DefaultConfig().
// Missing fields inherit defaults.
//
// Environment variable mapping:
//
//	ZENOHD_SESSION_SN_RESOLUTION -> session.sn_resolution
//	ZENOHD_LINK_ADDR             -> link.addr
//	ZENOHD_METRICS_ADDR          -> metrics.addr
//	ZENOHD_LOG_LEVEL             -> log.level
//
// Uses koanf/v2 with file + env providers and YAML parser.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	// Load defaults first.
	defaults := DefaultConfig()
	if err := loadDefaults(k, defaults); err != nil {
		return nil, fmt.Errorf("load config defaults: %w", err)
	}

	// Load YAML file on top of defaults.
	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		return nil, fmt.Errorf("load config from %s: %w", path, err)
	}

	// Load environment variable overrides on top of YAML.
	// ZENOHD_LINK_ADDR -> link.addr (strip prefix, lowercase, first _ -> .).
	if err := k.Load(env.Provider(envPrefix, ".", envKeyMapper), nil); err != nil {
		return nil, fmt.Errorf("load env overrides: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("validate config from %s: %w", path, err)
	}

	return cfg, nil
}

// envKeyMapper transforms ZENOHD_LINK_ADDR -> link.addr.
// Strips the ZENOHD_ prefix, lowercases, and replaces the first _ (the
// section separator) with ., so multi-word keys keep their underscores:
// ZENOHD_SESSION_SN_RESOLUTION -> session.sn_resolution.
func envKeyMapper(s string) string {
	s = strings.TrimPrefix(s, envPrefix)
	s = strings.ToLower(s)
	return strings.Replace(s, "_", ".", 1)
}

// loadDefaults marshals the default config into koanf as the base layer.
func loadDefaults(k *koanf.Koanf, defaults *Config) error {
	defaultMap := map[string]any{
		"session.sn_resolution":  defaults.Session.SNResolution,
		"session.is_streamed":    defaults.Session.IsStreamed,
		"session.frag_buf_chunk": defaults.Session.FragBufChunk,
		"session.write_buf_size": defaults.Session.WriteBufSize,
		"metrics.addr":           defaults.Metrics.Addr,
		"metrics.path":           defaults.Metrics.Path,
		"log.level":              defaults.Log.Level,
		"log.format":             defaults.Log.Format,
		"link.network":           defaults.Link.Network,
		"link.addr":              defaults.Link.Addr,
		"link.listen":            defaults.Link.Listen,
	}

	for key, val := range defaultMap {
		if err := k.Set(key, val); err != nil {
			return fmt.Errorf("set default %s: %w", key, err)
		}
	}

	return nil
}

// -------------------------------------------------------------------------
// Validation
// -------------------------------------------------------------------------

// Validation errors.
var (
	// ErrInvalidSNResolution indicates the sequence-number resolution is
	// too small to admit the half-window precedence rule (it must be even
	// and at least 2).
	ErrInvalidSNResolution = errors.New("session.sn_resolution must be even and >= 2")

	// ErrInvalidFragBufChunk indicates a non-positive fragmentation chunk size.
	ErrInvalidFragBufChunk = errors.New("session.frag_buf_chunk must be > 0")

	// ErrInvalidWriteBufSize indicates a non-positive write buffer size.
	ErrInvalidWriteBufSize = errors.New("session.write_buf_size must be > 0")

	// ErrEmptyLinkAddr indicates the link address is empty.
	ErrEmptyLinkAddr = errors.New("link.addr must not be empty")

	// ErrInvalidLinkNetwork indicates the link network is neither tcp nor udp.
	ErrInvalidLinkNetwork = errors.New("link.network must be tcp or udp")
)

// ValidLinkNetworks lists the recognized link network strings.
var ValidLinkNetworks = map[string]bool{
	"tcp": true,
	"udp": true,
}

// Validate checks the configuration for logical errors.
// Returns the first validation error encountered.
func Validate(cfg *Config) error {
	if cfg.Session.SNResolution < 2 || cfg.Session.SNResolution%2 != 0 {
		return ErrInvalidSNResolution
	}

	if cfg.Session.FragBufChunk <= 0 {
		return ErrInvalidFragBufChunk
	}

	if cfg.Session.WriteBufSize <= 0 {
		return ErrInvalidWriteBufSize
	}

	if cfg.Link.Addr == "" {
		return ErrEmptyLinkAddr
	}

	if !ValidLinkNetworks[cfg.Link.Network] {
		return ErrInvalidLinkNetwork
	}

	return nil
}

// -------------------------------------------------------------------------
// Log Level Parsing
// -------------------------------------------------------------------------

// ParseLogLevel maps a configuration log level string to the corresponding
// slog.Level. Unknown values default to slog.LevelInfo.
//
// Recognized values: "debug", "info", "warn", "error" (case-insensitive).
func ParseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
