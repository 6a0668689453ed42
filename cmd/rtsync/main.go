// Package main implements the rtsync operations binary.
// It drives reindex cycles and pushes individual records into the search
// indexes by hand.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/arkilian/rtsync/internal/config"
	"github.com/arkilian/rtsync/internal/logging"
	"github.com/arkilian/rtsync/internal/observability"
)

var (
	version = "dev"
	commit  = "unknown"
)

func main() {
	var (
		configFile  string
		envFile     string
		metricsAddr string
		showVersion bool
		showHelp    bool
	)

	flag.StringVar(&configFile, "config", "", "Path to configuration file (YAML or JSON)")
	flag.StringVar(&envFile, "env-file", ".env", "Dotenv file loaded before the environment overrides")
	flag.StringVar(&metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address while running")
	flag.BoolVar(&showVersion, "version", false, "Show version information")
	flag.BoolVar(&showHelp, "help", false, "Show help message")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "rtsync - keeps Sphinx real-time and core indexes in step\n\n")
		fmt.Fprintf(os.Stderr, "Usage: rtsync [options] <command> [args]\n\n")
		fmt.Fprintf(os.Stderr, "Commands:\n")
		fmt.Fprintf(os.Stderr, "  status                  Print reindex flags, journal and waste state\n")
		fmt.Fprintf(os.Stderr, "  begin-full              Mark a full reindex as running\n")
		fmt.Fprintf(os.Stderr, "  end-full                Clean waste, switch partition, clear the flag\n")
		fmt.Fprintf(os.Stderr, "  begin-online            Mark an online reindex as running\n")
		fmt.Fprintf(os.Stderr, "  end-online              Replay and archive the journal, clear the flag\n")
		fmt.Fprintf(os.Stderr, "  replay                  Replay the journal without touching flags\n")
		fmt.Fprintf(os.Stderr, "  replace <model> <id>... Transmit source records\n")
		fmt.Fprintf(os.Stderr, "  delete <model> <id>...  Remove records from every index\n")
		fmt.Fprintf(os.Stderr, "  update [-strict] <model> <id> <attr=value>...\n")
		fmt.Fprintf(os.Stderr, "                          Set attributes on one record's documents;\n")
		fmt.Fprintf(os.Stderr, "                          -strict retransmits it during a full reindex\n")
		fmt.Fprintf(os.Stderr, "\nOptions:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  rtsync -config /etc/rtsync/config.yaml status\n")
		fmt.Fprintf(os.Stderr, "  rtsync -config /etc/rtsync/config.yaml replace products 42 43\n")
		fmt.Fprintf(os.Stderr, "\nEnvironment Variables:\n")
		fmt.Fprintf(os.Stderr, "  RTSYNC_SEARCHD_ADDRESSES  Comma separated searchd hosts\n")
		fmt.Fprintf(os.Stderr, "  RTSYNC_SOURCE_DSN         Source database DSN\n")
		fmt.Fprintf(os.Stderr, "  RTSYNC_STATE_PATH         State database path\n")
		fmt.Fprintf(os.Stderr, "  RTSYNC_WRITE_DISABLED     Turn every write into a no-op\n")
		fmt.Fprintf(os.Stderr, "  RTSYNC_STORAGE_BACKEND    Journal archive backend (local, s3)\n")
	}

	flag.Parse()

	if showHelp {
		flag.Usage()
		os.Exit(0)
	}

	if showVersion {
		fmt.Printf("rtsync version %s (commit: %s)\n", version, commit)
		os.Exit(0)
	}

	if flag.NArg() == 0 {
		flag.Usage()
		os.Exit(2)
	}

	cfg, err := loadConfig(configFile, envFile, metricsAddr)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger, err := logging.New(os.Stderr, cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}

	reg := prometheus.NewRegistry()
	metrics := observability.NewMetrics(reg)

	var srv *http.Server
	if cfg.Metrics.Addr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
		srv = &http.Server{Addr: cfg.Metrics.Addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics server failed", "addr", cfg.Metrics.Addr, "error", err)
			}
		}()
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	e, err := openEnv(ctx, cfg, logger, metrics)
	if err != nil {
		log.Fatalf("Failed to initialize: %v", err)
	}

	runErr := run(ctx, e, os.Stdout, flag.Args())

	if err := e.Close(); err != nil {
		logger.Warn("shutdown error", "error", err)
	}
	if srv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		_ = srv.Shutdown(shutdownCtx)
		cancel()
	}

	if runErr != nil {
		logger.Error("command failed", "command", flag.Arg(0), "error", runErr)
		os.Exit(1)
	}
}

// loadConfig loads configuration from the dotenv file, the config file, the
// environment and command line flags, in increasing priority.
func loadConfig(configFile, envFile, metricsAddr string) (*config.Config, error) {
	if envFile != "" {
		if err := config.LoadDotEnv(envFile); err != nil {
			return nil, err
		}
	}

	var cfg *config.Config
	var err error
	if configFile != "" {
		cfg, err = config.LoadFromFile(configFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load config file: %w", err)
		}
	} else {
		cfg = config.DefaultConfig()
	}

	if err := config.LoadFromEnv(cfg); err != nil {
		return nil, err
	}

	if metricsAddr != "" {
		cfg.Metrics.Addr = metricsAddr
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, err
	}
	return cfg, nil
}
