package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"remitlend/config"
	"remitlend/core"
	"remitlend/crypto"
	"remitlend/exports"
	"remitlend/indexer"
	"remitlend/observability/logging"
	telemetry "remitlend/observability/otel"
	"remitlend/storage"
)

// stateDir holds protocol state under the data directory.
const stateDir = "state"

func main() {
	var (
		cfgPath       string
		allowInsecure bool
	)
	flag.StringVar(&cfgPath, "config", "./config.toml", "path to the node configuration")
	flag.BoolVar(&allowInsecure, "allow-insecure", false, "DEV ONLY: permit a plaintext listener on loopback or in the local environment")
	flag.Parse()

	if err := run(cfgPath, allowInsecure); err != nil {
		fmt.Fprintf(os.Stderr, "remitlendd: %v\n", err)
		os.Exit(1)
	}
}

func run(cfgPath string, allowInsecure bool) error {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, logCloser := logging.SetupWithOptions(logging.Options{
		Service:    "remitlendd",
		Env:        cfg.Environment,
		Level:      cfg.Log.Level,
		File:       cfg.Log.File,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAgeDays: cfg.Log.MaxAgeDays,
	})
	defer logCloser.Close()

	shutdownTelemetry, err := telemetry.Init(context.Background(), telemetry.Config{
		ServiceName: "remitlendd",
		Environment: cfg.Environment,
		Endpoint:    cfg.Telemetry.Endpoint,
		Insecure:    cfg.Telemetry.Insecure,
		Headers:     telemetry.ParseHeaders(cfg.Telemetry.Headers),
		Metrics:     cfg.Telemetry.Metrics,
		Traces:      cfg.Telemetry.Traces,
	})
	if err != nil {
		return fmt.Errorf("initialise telemetry: %w", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTelemetry(ctx); err != nil {
			logger.Warn("telemetry shutdown failed", slog.Any("error", err))
		}
	}()

	db, err := storage.NewLevelDB(filepath.Join(cfg.DataDir, stateDir))
	if err != nil {
		return fmt.Errorf("open state database: %w", err)
	}
	defer db.Close()

	protocol, err := core.New(db, core.WithLogger(logger))
	if err != nil {
		return fmt.Errorf("open protocol: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	admin, err := bootstrap(ctx, protocol, cfg, logger)
	if err != nil {
		return err
	}

	var index *indexer.Indexer
	if dsn := strings.TrimSpace(cfg.IndexerDSN); dsn != "" {
		index, err = indexer.Open(dsn, logger)
		if err != nil {
			return fmt.Errorf("open indexer: %w", err)
		}
		defer index.Close()
		go index.Run(ctx, protocol.Bus(), 1024)
	} else {
		logger.Warn("indexer disabled; event history queries will be unavailable")
	}

	if spec := strings.TrimSpace(cfg.Exports.Schedule); spec != "" {
		scheduler, err := exports.NewScheduler(spec, cfg.Exports.Dir, protocol, logger)
		if err != nil {
			return err
		}
		scheduler.Start()
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			scheduler.Stop(ctx)
		}()
		logger.Info("scheduled exports enabled", slog.String("schedule", spec), slog.String("dir", cfg.Exports.Dir))
	}

	gw, err := newGateway(ctx, gatewayDeps{
		cfgPath:       cfg.GatewayConfig,
		env:           cfg.Environment,
		dataDir:       cfg.DataDir,
		allowInsecure: allowInsecure,
		protocol:      protocol,
		index:         index,
		logger:        logger,
	})
	if err != nil {
		return err
	}
	defer gw.close()

	logger.Info("remitlendd started",
		slog.String("admin", admin.String()),
		slog.String("data_dir", cfg.DataDir),
		slog.Uint64("sequence", protocol.Sequence()))

	errCh := make(chan error, 1)
	go func() { errCh <- gw.serve() }()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			return err
		}
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := gw.shutdown(shutdownCtx); err != nil {
		logger.Warn("graceful shutdown failed", slog.Any("error", err))
	}
	return nil
}

// bootstrap initialises a fresh state from the configured genesis and applies
// the configured pauses as admin.
func bootstrap(ctx context.Context, protocol *core.Protocol, cfg *config.Config, logger *slog.Logger) (crypto.Address, error) {
	admin, err := cfg.AdminAddress()
	if err != nil {
		return crypto.Address{}, fmt.Errorf("admin address: %w", err)
	}
	current, err := protocol.Admin()
	switch {
	case err == nil:
		if current != admin {
			return crypto.Address{}, fmt.Errorf("state admin %s does not match configured admin %s", current, admin)
		}
	case errors.Is(err, core.ErrNotInitialized):
		genesis, err := cfg.Genesis()
		if err != nil {
			return crypto.Address{}, fmt.Errorf("genesis: %w", err)
		}
		if _, err := protocol.Initialize(ctx, admin, genesis); err != nil {
			return crypto.Address{}, fmt.Errorf("initialise protocol: %w", err)
		}
		logger.Info("protocol initialised",
			slog.String("asset", genesis.AssetSymbol),
			slog.Int("operators", len(genesis.Operators)),
			slog.Int("allocations", len(genesis.Allocations)))
	default:
		return crypto.Address{}, fmt.Errorf("read admin: %w", err)
	}

	for module, paused := range cfg.PausedModules() {
		if protocol.IsPaused(module) == paused {
			continue
		}
		if _, err := protocol.SetPaused(ctx, admin, module, paused); err != nil {
			return crypto.Address{}, fmt.Errorf("apply pause for %s: %w", module, err)
		}
		logger.Info("module pause applied", slog.String("module", module), slog.Bool("paused", paused))
	}
	return admin, nil
}
