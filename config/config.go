// Package config provides configuration loading for pdfcapture.
package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/wudi/pdfcapture/observability"
	"github.com/wudi/pdfcapture/recovery"
	"github.com/wudi/pdfcapture/security"
)

// Config represents the complete pdfcapture configuration
type Config struct {
	Server   ServerConfig `yaml:"server"`
	Render   RenderConfig `yaml:"render"`
	Limits   LimitsConfig `yaml:"limits"`
	Recovery string       `yaml:"recovery"`
	Log      LogConfig    `yaml:"log"`
	Store    StoreConfig  `yaml:"store"`
}

// ServerConfig configures the HTTP viewer
type ServerConfig struct {
	// Addr is the listen address (default: 127.0.0.1:8080)
	Addr string `yaml:"addr"`
	// MaxConnections caps concurrent connections (0 = unlimited)
	MaxConnections int `yaml:"max_connections"`
	// MaxSessions caps concurrently open documents
	MaxSessions int `yaml:"max_sessions"`
	// SessionTTL closes sessions idle for longer than this
	SessionTTL time.Duration `yaml:"session_ttl"`
	// AllowPaths lets clients open documents by server-side path
	AllowPaths bool `yaml:"allow_paths"`
	// AllowURLs lets clients open documents by http(s) URL
	AllowURLs bool `yaml:"allow_urls"`
	// ReadTimeout and WriteTimeout bound a single request
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

// RenderConfig configures page rasterization
type RenderConfig struct {
	// CacheSize is the number of rendered pages kept per document
	CacheSize int `yaml:"cache_size"`
	// MaxSurfaceEdge bounds the pixel width and height of a rendered page
	MaxSurfaceEdge int `yaml:"max_surface_edge"`
}

// LimitsConfig bounds document parsing
type LimitsConfig struct {
	MaxFileSize         int64         `yaml:"max_file_size"`
	MaxDecompressedSize int64         `yaml:"max_decompressed_size"`
	MaxPages            int           `yaml:"max_pages"`
	MaxParseTime        time.Duration `yaml:"max_parse_time"`
}

// LogConfig configures logging
type LogConfig struct {
	// Level is one of debug, info, warn, error
	Level string `yaml:"level"`
	// Format is text or json
	Format string `yaml:"format"`
}

// StoreConfig locates the workflow anchor store
type StoreConfig struct {
	Path string `yaml:"path"`
}

// DefaultConfig returns a Config with sensible defaults
func DefaultConfig() *Config {
	d := security.DefaultLimits()
	return &Config{
		Server: ServerConfig{
			Addr:           "127.0.0.1:8080",
			MaxConnections: 256,
			MaxSessions:    64,
			SessionTTL:     30 * time.Minute,
			AllowPaths:     false,
			AllowURLs:      false,
			ReadTimeout:    time.Minute,
			WriteTimeout:   time.Minute,
		},
		Render: RenderConfig{
			CacheSize:      32,
			MaxSurfaceEdge: d.MaxSurfaceEdge,
		},
		Limits: LimitsConfig{
			MaxFileSize:         d.MaxFileSize,
			MaxDecompressedSize: d.MaxDecompressedSize,
			MaxPages:            d.MaxPages,
			MaxParseTime:        d.MaxParseTime,
		},
		Recovery: "lenient",
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Store: StoreConfig{
			Path: "workflows.yaml",
		},
	}
}

// Validate checks that the configuration is valid
func (c *Config) Validate() error {
	var errs []error
	if c.Server.Addr == "" {
		errs = append(errs, errors.New("server.addr is required"))
	}
	if c.Server.MaxConnections < 0 {
		errs = append(errs, errors.New("server.max_connections must not be negative"))
	}
	if c.Server.MaxSessions < 1 {
		errs = append(errs, errors.New("server.max_sessions must be at least 1"))
	}
	if c.Server.SessionTTL <= 0 {
		errs = append(errs, errors.New("server.session_ttl must be positive"))
	}
	if c.Render.MaxSurfaceEdge < 1 {
		errs = append(errs, errors.New("render.max_surface_edge must be positive"))
	}
	if c.Limits.MaxFileSize < 1 {
		errs = append(errs, errors.New("limits.max_file_size must be positive"))
	}
	switch c.Recovery {
	case "lenient", "strict":
	default:
		errs = append(errs, fmt.Errorf("recovery must be lenient or strict, got %q", c.Recovery))
	}
	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("log.level %q is not one of debug, info, warn, error", c.Log.Level))
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("log.format must be text or json, got %q", c.Log.Format))
	}
	return errors.Join(errs...)
}

// LoadFromFile loads configuration from a YAML file on top of the defaults
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	config := DefaultConfig()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	return config, nil
}

// Load returns the defaults when path is empty, the file's settings otherwise.
// The result is validated.
func Load(path string) (*Config, error) {
	config := DefaultConfig()
	if path != "" {
		var err error
		if config, err = LoadFromFile(path); err != nil {
			return nil, err
		}
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return config, nil
}

// SecurityLimits converts the limits section for the parser and renderer.
func (c *Config) SecurityLimits() security.Limits {
	return security.Limits{
		MaxFileSize:         c.Limits.MaxFileSize,
		MaxDecompressedSize: c.Limits.MaxDecompressedSize,
		MaxPages:            c.Limits.MaxPages,
		MaxParseTime:        c.Limits.MaxParseTime,
		MaxSurfaceEdge:      c.Render.MaxSurfaceEdge,
	}.WithDefaults()
}

// RecoveryStrategy builds the configured strategy.
func (c *Config) RecoveryStrategy(logger observability.Logger) recovery.Strategy {
	if c.Recovery == "strict" {
		return recovery.NewStrictStrategy()
	}
	return recovery.NewLenientStrategy(logger)
}

// NewLogger builds the slog logger described by the log section.
func (c *Config) NewLogger(w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: observability.ParseLevel(c.Log.Level)}
	if c.Log.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}
