package config

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/wudi/pdfcapture/recovery"
)

func TestDefaultConfigIsValid(t *testing.T) {
	if err := DefaultConfig().Validate(); err != nil {
		t.Fatalf("DefaultConfig().Validate() = %v", err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"empty addr", func(c *Config) { c.Server.Addr = "" }, "server.addr"},
		{"no sessions", func(c *Config) { c.Server.MaxSessions = 0 }, "server.max_sessions"},
		{"ttl", func(c *Config) { c.Server.SessionTTL = 0 }, "session_ttl"},
		{"recovery", func(c *Config) { c.Recovery = "maybe" }, "recovery"},
		{"level", func(c *Config) { c.Log.Level = "loud" }, "log.level"},
		{"format", func(c *Config) { c.Log.Format = "xml" }, "log.format"},
		{"file size", func(c *Config) { c.Limits.MaxFileSize = 0 }, "max_file_size"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := DefaultConfig()
			tt.mutate(c)
			err := c.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("Validate() = %v, want mention of %q", err, tt.want)
			}
		})
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pdfcapture.yaml")
	yaml := `
server:
  addr: ":9090"
  session_ttl: 5m
  allow_paths: true
limits:
  max_pages: 10
recovery: strict
log:
  level: debug
  format: json
`
	if err := os.WriteFile(path, []byte(yaml), 0o644); err != nil {
		t.Fatal(err)
	}
	c, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if c.Server.Addr != ":9090" || c.Server.SessionTTL != 5*time.Minute || !c.Server.AllowPaths {
		t.Errorf("server = %+v", c.Server)
	}
	if c.Server.MaxSessions != 64 {
		t.Errorf("unset field lost its default: max_sessions = %d", c.Server.MaxSessions)
	}
	limits := c.SecurityLimits()
	if limits.MaxPages != 10 || limits.MaxXRefDepth == 0 {
		t.Errorf("SecurityLimits() = %+v", limits)
	}
	if _, ok := c.RecoveryStrategy(nil).(*recovery.StrictStrategy); !ok {
		t.Error("strict recovery not honored")
	}

	var buf bytes.Buffer
	c.NewLogger(&buf).Debug("hello")
	if !strings.Contains(buf.String(), `"msg":"hello"`) {
		t.Errorf("json debug logger wrote %q", buf.String())
	}
}

func TestLoad_Errors(t *testing.T) {
	if c, err := Load(""); err != nil || c.Server.Addr == "" {
		t.Fatalf("Load(\"\") = %+v, %v", c, err)
	}
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("missing file should fail")
	}
	path := filepath.Join(t.TempDir(), "bad.yaml")
	os.WriteFile(path, []byte("recovery: sometimes\n"), 0o644)
	if _, err := Load(path); err == nil {
		t.Error("invalid recovery should fail validation")
	}
}

func TestNewLogger_LevelIgnoresCase(t *testing.T) {
	c := DefaultConfig()
	c.Log.Level = "DEBUG"
	if err := c.Validate(); err != nil {
		t.Fatalf("Validate() = %v", err)
	}
	var buf bytes.Buffer
	logger := c.NewLogger(&buf)
	if !logger.Enabled(context.Background(), slog.LevelDebug) {
		t.Error("level DEBUG did not enable debug logging")
	}
}
