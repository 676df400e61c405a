package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"predictchain/config"
	"predictchain/core"
	"predictchain/core/genesis"
	"predictchain/observability/logging"
	"predictchain/observability/metrics"
	"predictchain/observability/telemetry"
	"predictchain/rpc"
	"predictchain/services/eventarchive"
	"predictchain/storage"
)

const (
	genesisPathEnv  = "PREDICT_GENESIS"
	otlpEndpointEnv = "OTEL_EXPORTER_OTLP_ENDPOINT"
	otlpHeadersEnv  = "OTEL_EXPORTER_OTLP_HEADERS"
)

func main() {
	configFile := flag.String("config", "./config.toml", "Path to the configuration file (.toml, .yaml or .yml)")
	genesisFlag := flag.String("genesis", "", "Path to a genesis JSON file (overrides PREDICT_GENESIS and config GenesisFile)")
	flag.Parse()

	cfg, err := config.Load(*configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger, logCloser := logging.SetupWithOptions("marketd", cfg.Env, logging.Options{
		Level:      logging.ParseLevel(cfg.Log.Level),
		File:       cfg.Log.File,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAgeDays: cfg.Log.MaxAgeDays,
	})
	defer logCloser.Close()

	if err := run(cfg, resolveGenesisPath(*genesisFlag, cfg.GenesisFile, os.LookupEnv), logger); err != nil {
		logger.Error("marketd exited", slog.Any("error", err))
		os.Exit(1)
	}
}

func run(cfg *config.Config, genesisPath string, logger *slog.Logger) error {
	telemetryCfg := telemetryConfig(cfg, os.LookupEnv)
	shutdownTelemetry, err := telemetry.Init(context.Background(), telemetryCfg)
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTelemetry(ctx); err != nil {
			logger.Warn("telemetry shutdown failed", slog.Any("error", err))
		}
	}()
	if telemetryCfg.Endpoint != "" {
		logger.Info("telemetry exporting", slog.String("endpoint", telemetryCfg.Endpoint))
	}

	db, err := openDatabase(cfg)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	opts := []core.Option{
		core.WithLogger(logger),
		core.WithMetrics(metrics.Market()),
		core.WithTokenSymbols(cfg.TokenSymbol, cfg.PointsSymbol),
	}
	var archive *eventarchive.Archive
	if path := strings.TrimSpace(cfg.Archive.Path); path != "" {
		archive, err = eventarchive.Open(path, logger)
		if err != nil {
			return err
		}
		defer archive.Close()
		opts = append(opts, core.WithEmitter(archive))
	}

	proc, err := core.NewProcessor(db, opts...)
	if err != nil {
		return err
	}
	if err := bootstrap(proc, genesisPath, logger); err != nil {
		return err
	}

	srv := rpc.NewServer(proc, rpc.ServerConfig{
		RateLimit:     cfg.RPC.RateLimit,
		Burst:         cfg.RPC.Burst,
		MaxPageSize:   cfg.RPC.MaxPageSize,
		EnableMetrics: cfg.RPC.EnableMetrics,
	}, logger)
	if archive != nil {
		srv.SetArchive(archive)
	}

	server := &http.Server{
		Addr:        cfg.RPC.Address,
		Handler:     srv.Handler(),
		ReadTimeout: time.Duration(cfg.RPC.ReadTimeoutSecs) * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("rpc listening", slog.String("addr", cfg.RPC.Address))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("rpc server: %w", err)
		}
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("graceful shutdown failed", slog.Any("error", err))
	}
	logger.Info("marketd stopped")
	return nil
}

func openDatabase(cfg *config.Config) (storage.Database, error) {
	switch cfg.Storage {
	case config.StorageMemory:
		return storage.NewMemDB(), nil
	case config.StorageBolt:
		if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
			return nil, err
		}
		return storage.NewBoltDB(filepath.Join(cfg.DataDir, "ledger.db"), nil)
	case config.StorageLevelDB:
		return storage.NewLevelDB(cfg.DataDir)
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Storage)
	}
}

// bootstrap applies the genesis file to an empty ledger. A ledger that is
// already initialised ignores the file.
func bootstrap(proc *core.Processor, genesisPath string, logger *slog.Logger) error {
	initialized, err := proc.Initialized()
	if err != nil {
		return err
	}
	if initialized {
		if genesisPath != "" {
			logger.Info("ledger already initialised; ignoring genesis", slog.String("path", genesisPath))
		}
		return nil
	}
	if genesisPath == "" {
		logger.Warn("ledger not initialised and no genesis configured; serving empty state")
		return nil
	}
	spec, err := genesis.LoadSpec(genesisPath)
	if err != nil {
		return fmt.Errorf("load genesis: %w", err)
	}
	if err := proc.ApplyGenesis(spec); err != nil {
		return fmt.Errorf("apply genesis: %w", err)
	}
	logger.Info("genesis applied", slog.String("path", genesisPath))
	return nil
}

func resolveGenesisPath(flagValue, configValue string, lookup func(string) (string, bool)) string {
	if trimmed := strings.TrimSpace(flagValue); trimmed != "" {
		return trimmed
	}
	if lookup != nil {
		if value, ok := lookup(genesisPathEnv); ok {
			if trimmed := strings.TrimSpace(value); trimmed != "" {
				return trimmed
			}
		}
	}
	return strings.TrimSpace(configValue)
}

// telemetryConfig builds the exporter settings from the config file, falling
// back to the standard OTEL_EXPORTER_OTLP_* variables.
func telemetryConfig(cfg *config.Config, lookup func(string) (string, bool)) telemetry.Config {
	endpoint := cfg.Telemetry.Endpoint
	headers := cfg.Telemetry.Headers
	if lookup != nil {
		if value, ok := lookup(otlpEndpointEnv); ok && endpoint == "" {
			endpoint = strings.TrimSpace(value)
		}
		if value, ok := lookup(otlpHeadersEnv); ok && headers == "" {
			headers = value
		}
	}
	return telemetry.Config{
		ServiceName: "marketd",
		Environment: cfg.Env,
		Endpoint:    endpoint,
		Insecure:    cfg.Telemetry.Insecure,
		Headers:     telemetry.ParseHeaders(headers),
	}
}
