package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/arkilian/rtsync/pkg/types"
)

const sampleYAML = `
searchd:
  addresses: [10.0.0.1, 10.0.0.2]
  port: 9306
  vip_port: 9307
  connect_timeout: 3s
source:
  driver: sqlite3
  dsn: /tmp/source.db
drain:
  batch_size: 500
  delay: 250ms
storage:
  backend: local
  path: /tmp/archive
indexes:
  - name: products
    rt: true
    single_row_query: "SELECT * FROM products WHERE id = %{ID}"
    attributes:
      price: integer
      tags: multi
      active: boolean
    composite:
      search_all: [title, brand]
models:
  - name: products
    offset: 1
    models: 2
    indexes: [products]
`

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write %s: %v", name, err)
	}
	return path
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config should be valid: %v", err)
	}
	if cfg.Searchd.Port != 9306 {
		t.Errorf("Port = %d, want 9306", cfg.Searchd.Port)
	}
	if cfg.Searchd.ConnectTimeout != 2*time.Second || cfg.Searchd.ReadTimeout != 5*time.Second {
		t.Errorf("unexpected timeouts: %v / %v", cfg.Searchd.ConnectTimeout, cfg.Searchd.ReadTimeout)
	}
	if cfg.Drain.BatchSize != 1000 || cfg.Drain.Delay != time.Second {
		t.Errorf("unexpected drain defaults: %+v", cfg.Drain)
	}
}

func TestLoadFromFile_YAML(t *testing.T) {
	cfg, err := LoadFromFile(writeFile(t, "rtsync.yaml", sampleYAML))
	if err != nil {
		t.Fatalf("LoadFromFile failed: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate failed: %v", err)
	}

	if got := cfg.Searchd.Addresses; len(got) != 2 || got[1] != "10.0.0.2" {
		t.Errorf("Addresses = %v", got)
	}
	if cfg.Searchd.ConnectTimeout != 3*time.Second {
		t.Errorf("ConnectTimeout = %v", cfg.Searchd.ConnectTimeout)
	}
	if cfg.Searchd.ReadTimeout != 5*time.Second {
		t.Errorf("ReadTimeout should keep its default, got %v", cfg.Searchd.ReadTimeout)
	}
	if cfg.Drain.BatchSize != 500 || cfg.Drain.Delay != 250*time.Millisecond {
		t.Errorf("Drain = %+v", cfg.Drain)
	}

	idx, ok := cfg.Index("products")
	if !ok {
		t.Fatal("products index not loaded")
	}
	if !idx.RT || idx.AttributeType("tags") != types.AttrMulti || idx.AttributeType("active") != types.AttrBoolean {
		t.Errorf("index not decoded: %+v", idx)
	}
	if got := idx.Composite["search_all"]; len(got) != 2 {
		t.Errorf("Composite = %v", idx.Composite)
	}

	m, ok := cfg.Model("products")
	if !ok || m.Offset != 1 || m.Models != 2 {
		t.Errorf("Model = %+v, %v", m, ok)
	}
}

func TestLoadFromFile_JSON(t *testing.T) {
	path := writeFile(t, "rtsync.json", `{"source": {"driver": "sqlite3"}, "write_disabled": true}`)
	cfg, err := LoadFromFile(path)
	if err != nil {
		t.Fatalf("LoadFromFile failed: %v", err)
	}
	if !cfg.WriteDisabled || cfg.Source.Driver != "sqlite3" {
		t.Errorf("unexpected config: %+v", cfg)
	}
}

func TestLoadFromFile_UnsupportedFormat(t *testing.T) {
	if _, err := LoadFromFile(writeFile(t, "rtsync.toml", "")); err == nil {
		t.Error("expected error for unsupported format")
	}
}

func TestSearchdConn(t *testing.T) {
	cfg := DefaultConfig()
	if got := cfg.Searchd.Conn(true).Port; got != 9306 {
		t.Errorf("vip port without override = %d, want 9306", got)
	}
	cfg.Searchd.VIPPort = 9400
	if got := cfg.Searchd.Conn(true).Port; got != 9400 {
		t.Errorf("vip port = %d, want 9400", got)
	}
	if got := cfg.Searchd.Conn(false).Port; got != 9306 {
		t.Errorf("read port = %d, want 9306", got)
	}
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("RTSYNC_SEARCHD_ADDRESSES", "a, b,,c")
	t.Setenv("RTSYNC_SEARCHD_PORT", "9312")
	t.Setenv("RTSYNC_DRAIN_DELAY", "5s")
	t.Setenv("RTSYNC_DRAIN_ROWS_PER_SECOND", "250")
	t.Setenv("RTSYNC_WRITE_DISABLED", "1")
	t.Setenv("RTSYNC_LOG_FORMAT", "json")

	cfg := DefaultConfig()
	if err := LoadFromEnv(cfg); err != nil {
		t.Fatalf("LoadFromEnv failed: %v", err)
	}
	if strings.Join(cfg.Searchd.Addresses, "|") != "a|b|c" {
		t.Errorf("Addresses = %v", cfg.Searchd.Addresses)
	}
	if cfg.Searchd.Port != 9312 || cfg.Drain.Delay != 5*time.Second || cfg.Drain.RowsPerSecond != 250 {
		t.Errorf("unexpected overrides: %+v", cfg)
	}
	if !cfg.WriteDisabled || cfg.Log.Format != "json" {
		t.Errorf("unexpected overrides: %+v", cfg)
	}
}

func TestLoadFromEnv_Malformed(t *testing.T) {
	t.Setenv("RTSYNC_SEARCHD_PORT", "lots")
	t.Setenv("RTSYNC_DRAIN_DELAY", "soon")

	cfg := DefaultConfig()
	err := LoadFromEnv(cfg)
	if err == nil {
		t.Fatal("expected error for malformed values")
	}
	if !strings.Contains(err.Error(), "RTSYNC_SEARCHD_PORT") || !strings.Contains(err.Error(), "RTSYNC_DRAIN_DELAY") {
		t.Errorf("error should name both variables: %v", err)
	}
	if cfg.Searchd.Port != 9306 {
		t.Errorf("malformed value must not change Port, got %d", cfg.Searchd.Port)
	}
}

func TestLoadDotEnv(t *testing.T) {
	path := writeFile(t, ".env", "RTSYNC_TEST_DOTENV_LEVEL=debug\n")
	t.Cleanup(func() { os.Unsetenv("RTSYNC_TEST_DOTENV_LEVEL") })

	if err := LoadDotEnv(path, filepath.Join(t.TempDir(), "missing.env")); err != nil {
		t.Fatalf("LoadDotEnv failed: %v", err)
	}
	if got := os.Getenv("RTSYNC_TEST_DOTENV_LEVEL"); got != "debug" {
		t.Errorf("variable not loaded, got %q", got)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"no addresses", func(c *Config) { c.Searchd.Addresses = nil }},
		{"bad port", func(c *Config) { c.Searchd.Port = 0 }},
		{"bad vip port", func(c *Config) { c.Searchd.VIPPort = 70000 }},
		{"bad driver", func(c *Config) { c.Source.Driver = "postgres" }},
		{"no state path", func(c *Config) { c.State.Path = "" }},
		{"bad batch size", func(c *Config) { c.Drain.BatchSize = 0 }},
		{"negative delay", func(c *Config) { c.Drain.Delay = -time.Second }},
		{"no journal dir", func(c *Config) { c.ReplayLog.Dir = "" }},
		{"bad backend", func(c *Config) { c.Storage.Backend = "gcs" }},
		{"s3 without bucket", func(c *Config) { c.Storage.Backend = "s3" }},
		{"local without path", func(c *Config) { c.Storage.Backend = "local" }},
		{"bad log level", func(c *Config) { c.Log.Level = "loud" }},
		{"bad log format", func(c *Config) { c.Log.Format = "xml" }},
		{"unknown model index", func(c *Config) {
			c.Models = []ModelConfig{{Name: "products", Indexes: []string{"missing"}}}
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestEnsureDirectories(t *testing.T) {
	base := t.TempDir()
	cfg := DefaultConfig()
	cfg.State.Path = filepath.Join(base, "state", "state.db")
	cfg.ReplayLog.Dir = filepath.Join(base, "journal")

	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories failed: %v", err)
	}
	for _, dir := range []string{filepath.Join(base, "state"), cfg.ReplayLog.Dir} {
		if info, err := os.Stat(dir); err != nil || !info.IsDir() {
			t.Errorf("expected directory %s", dir)
		}
	}
}
