// Package config provides the configuration of the rtsync binary.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/arkilian/rtsync/internal/drain"
	"github.com/arkilian/rtsync/internal/index"
	"github.com/arkilian/rtsync/internal/sphinxql"
	"github.com/arkilian/rtsync/internal/storage"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "RTSYNC_"

// Config holds the full rtsync configuration.
type Config struct {
	// Searchd describes the search engine listeners
	Searchd SearchdConfig `json:"searchd" yaml:"searchd"`

	// Source is the relational database records are read from
	Source SourceConfig `json:"source" yaml:"source"`

	// State configures the cluster state database
	State StateConfig `json:"state" yaml:"state"`

	// Drain paces strict-update drains
	Drain drain.Config `json:"drain" yaml:"drain"`

	// ReplayLog configures the core-update journal
	ReplayLog ReplayLogConfig `json:"replay_log" yaml:"replay_log"`

	// Storage configures the archive for sealed journal segments
	Storage storage.Config `json:"storage" yaml:"storage"`

	// Log configures logging
	Log LogConfig `json:"log" yaml:"log"`

	// Metrics configures the Prometheus endpoint
	Metrics MetricsConfig `json:"metrics" yaml:"metrics"`

	// WriteDisabled turns every write into a no-op
	WriteDisabled bool `json:"write_disabled" yaml:"write_disabled"`

	// Indexes declares the search indexes
	Indexes []*index.Index `json:"indexes" yaml:"indexes"`

	// Models declares the source tables feeding the indexes
	Models []ModelConfig `json:"models" yaml:"models"`
}

// SearchdConfig holds searchd connection settings.
type SearchdConfig struct {
	// Addresses lists the searchd hosts; writes go to all of them
	Addresses []string `json:"addresses" yaml:"addresses"`

	// Port is the SphinxQL listener
	Port int `json:"port" yaml:"port"`

	// VIPPort is the privileged listener used for writes; 0 means Port
	VIPPort int `json:"vip_port" yaml:"vip_port"`

	ConnectTimeout time.Duration `json:"connect_timeout" yaml:"connect_timeout"`
	ReadTimeout    time.Duration `json:"read_timeout" yaml:"read_timeout"`

	// MaxOpenConns caps connections per host; 0 means unlimited
	MaxOpenConns int `json:"max_open_conns" yaml:"max_open_conns"`
}

// SourceConfig holds the source database settings.
type SourceConfig struct {
	// Driver is a database/sql driver name: mysql or sqlite3
	Driver string `json:"driver" yaml:"driver"`
	DSN    string `json:"dsn" yaml:"dsn"`
}

// StateConfig holds the state database settings.
type StateConfig struct {
	Path string `json:"path" yaml:"path"`
}

// ReplayLogConfig holds journal settings.
type ReplayLogConfig struct {
	Dir            string `json:"dir" yaml:"dir"`
	MaxSegmentSize int64  `json:"max_segment_size" yaml:"max_segment_size"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	// Level is debug, info, warn or error
	Level string `json:"level" yaml:"level"`

	// Format is text or json
	Format string `json:"format" yaml:"format"`
}

// MetricsConfig holds the metrics endpoint settings.
type MetricsConfig struct {
	// Addr is the listen address of /metrics; empty disables it
	Addr string `json:"addr" yaml:"addr"`
}

// ModelConfig declares one source table.
type ModelConfig struct {
	Name       string   `json:"name" yaml:"name"`
	Table      string   `json:"table" yaml:"table"`
	PrimaryKey string   `json:"primary_key" yaml:"primary_key"`
	Offset     int      `json:"offset" yaml:"offset"`
	Models     int      `json:"models" yaml:"models"`
	Indexes    []string `json:"indexes" yaml:"indexes"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Searchd: SearchdConfig{
			Addresses:      []string{"127.0.0.1"},
			Port:           9306,
			ConnectTimeout: 2 * time.Second,
			ReadTimeout:    5 * time.Second,
		},
		Source: SourceConfig{
			Driver: "mysql",
		},
		State: StateConfig{
			Path: "./data/rtsync/state.db",
		},
		Drain: drain.DefaultConfig(),
		ReplayLog: ReplayLogConfig{
			Dir:            "./data/rtsync/journal",
			MaxSegmentSize: 16 * 1024 * 1024,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Conn returns the connection settings of the read listener, or of the
// privileged listener when vip is set.
func (s SearchdConfig) Conn(vip bool) sphinxql.ConnConfig {
	port := s.Port
	if vip && s.VIPPort != 0 {
		port = s.VIPPort
	}
	return sphinxql.ConnConfig{
		Addresses:      s.Addresses,
		Port:           port,
		ConnectTimeout: s.ConnectTimeout,
		ReadTimeout:    s.ReadTimeout,
		MaxOpenConns:   s.MaxOpenConns,
	}
}

// Index returns the declared index with the given name.
func (c *Config) Index(name string) (*index.Index, bool) {
	for _, idx := range c.Indexes {
		if idx.Name == name {
			return idx, true
		}
	}
	return nil, false
}

// Model returns the declared model with the given name.
func (c *Config) Model(name string) (ModelConfig, bool) {
	for _, m := range c.Models {
		if m.Name == name {
			return m, true
		}
	}
	return ModelConfig{}, false
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if len(c.Searchd.Addresses) == 0 {
		return fmt.Errorf("searchd.addresses is required")
	}
	if c.Searchd.Port <= 0 || c.Searchd.Port > 65535 {
		return fmt.Errorf("searchd.port must be between 1 and 65535, got %d", c.Searchd.Port)
	}
	if c.Searchd.VIPPort < 0 || c.Searchd.VIPPort > 65535 {
		return fmt.Errorf("searchd.vip_port must be between 0 and 65535, got %d", c.Searchd.VIPPort)
	}
	if c.Searchd.ConnectTimeout < 0 || c.Searchd.ReadTimeout < 0 {
		return fmt.Errorf("searchd timeouts must not be negative")
	}

	switch c.Source.Driver {
	case "mysql", "sqlite3":
	default:
		return fmt.Errorf("invalid source.driver: %s (must be mysql or sqlite3)", c.Source.Driver)
	}

	if c.State.Path == "" {
		return fmt.Errorf("state.path is required")
	}
	if c.Drain.BatchSize <= 0 {
		return fmt.Errorf("drain.batch_size must be positive, got %d", c.Drain.BatchSize)
	}
	if c.Drain.Delay < 0 {
		return fmt.Errorf("drain.delay must not be negative")
	}
	if c.Drain.RowsPerSecond < 0 {
		return fmt.Errorf("drain.rows_per_second must not be negative")
	}
	if c.ReplayLog.Dir == "" {
		return fmt.Errorf("replay_log.dir is required")
	}

	switch c.Storage.Backend {
	case "", "local", "s3":
	default:
		return fmt.Errorf("invalid storage.backend: %s (must be local or s3)", c.Storage.Backend)
	}
	if c.Storage.Backend == "s3" && c.Storage.Bucket == "" {
		return fmt.Errorf("storage.bucket is required when storage backend is s3")
	}
	if c.Storage.Backend == "local" && c.Storage.Path == "" {
		return fmt.Errorf("storage.path is required when storage backend is local")
	}

	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log.level: %s", c.Log.Level)
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("invalid log.format: %s (must be text or json)", c.Log.Format)
	}

	seen := make(map[string]bool, len(c.Indexes))
	for _, idx := range c.Indexes {
		if err := idx.Validate(); err != nil {
			return err
		}
		if seen[idx.Name] {
			return fmt.Errorf("index %s declared twice", idx.Name)
		}
		seen[idx.Name] = true
	}
	for _, m := range c.Models {
		if m.Name == "" {
			return fmt.Errorf("model name is required")
		}
		for _, name := range m.Indexes {
			if !seen[name] {
				return fmt.Errorf("model %s: unknown index %s", m.Name, name)
			}
		}
	}
	return nil
}

// LoadFromFile loads configuration from a YAML or JSON file on top of the
// defaults.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := DefaultConfig()

	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse YAML config: %w", err)
		}
	case ".json":
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse JSON config: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported config file format: %s", ext)
	}

	return cfg, nil
}

// LoadDotEnv loads variables from the given .env files into the process
// environment. Variables already set win; missing files are ignored.
func LoadDotEnv(files ...string) error {
	for _, f := range files {
		if _, err := os.Stat(f); os.IsNotExist(err) {
			continue
		}
		if err := godotenv.Load(f); err != nil {
			return fmt.Errorf("failed to load %s: %w", f, err)
		}
	}
	return nil
}

// LoadFromEnv applies RTSYNC_* environment overrides. Malformed numbers and
// durations are reported instead of silently ignored.
func LoadFromEnv(cfg *Config) error {
	str := func(name string, dst *string) {
		if v := os.Getenv(EnvPrefix + name); v != "" {
			*dst = v
		}
	}
	var errs []string
	integer := func(name string, dst *int) {
		if v := os.Getenv(EnvPrefix + name); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, EnvPrefix+name)
				return
			}
			*dst = n
		}
	}
	duration := func(name string, dst *time.Duration) {
		if v := os.Getenv(EnvPrefix + name); v != "" {
			d, err := time.ParseDuration(v)
			if err != nil {
				errs = append(errs, EnvPrefix+name)
				return
			}
			*dst = d
		}
	}

	if v := os.Getenv(EnvPrefix + "SEARCHD_ADDRESSES"); v != "" {
		cfg.Searchd.Addresses = splitList(v)
	}
	integer("SEARCHD_PORT", &cfg.Searchd.Port)
	integer("SEARCHD_VIP_PORT", &cfg.Searchd.VIPPort)
	duration("SEARCHD_CONNECT_TIMEOUT", &cfg.Searchd.ConnectTimeout)
	duration("SEARCHD_READ_TIMEOUT", &cfg.Searchd.ReadTimeout)

	str("SOURCE_DRIVER", &cfg.Source.Driver)
	str("SOURCE_DSN", &cfg.Source.DSN)
	str("STATE_PATH", &cfg.State.Path)

	integer("DRAIN_BATCH_SIZE", &cfg.Drain.BatchSize)
	duration("DRAIN_DELAY", &cfg.Drain.Delay)
	if v := os.Getenv(EnvPrefix + "DRAIN_ROWS_PER_SECOND"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Drain.RowsPerSecond = f
		} else {
			errs = append(errs, EnvPrefix+"DRAIN_ROWS_PER_SECOND")
		}
	}

	str("REPLAY_LOG_DIR", &cfg.ReplayLog.Dir)
	str("STORAGE_BACKEND", &cfg.Storage.Backend)
	str("STORAGE_PATH", &cfg.Storage.Path)
	str("STORAGE_PREFIX", &cfg.Storage.Prefix)
	str("S3_BUCKET", &cfg.Storage.Bucket)
	str("S3_REGION", &cfg.Storage.S3.Region)
	str("S3_ENDPOINT", &cfg.Storage.S3.Endpoint)

	str("LOG_LEVEL", &cfg.Log.Level)
	str("LOG_FORMAT", &cfg.Log.Format)
	str("METRICS_ADDR", &cfg.Metrics.Addr)

	if v := os.Getenv(EnvPrefix + "WRITE_DISABLED"); v != "" {
		cfg.WriteDisabled = v == "true" || v == "1"
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid environment values: %s", strings.Join(errs, ", "))
	}
	return nil
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// EnsureDirectories creates the directories the state database and the
// journal live in.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{filepath.Dir(c.State.Path), c.ReplayLog.Dir} {
		if dir == "" || dir == "." {
			continue
		}
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}
	return nil
}
