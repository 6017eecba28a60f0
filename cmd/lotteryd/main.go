package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"rafflechain/cmd/internal/secret"
	"rafflechain/config"
	"rafflechain/core/events"
	"rafflechain/core/state"
	"rafflechain/indexer"
	"rafflechain/native/lottery"
	"rafflechain/observability"
	"rafflechain/observability/logging"
	telemetry "rafflechain/observability/otel"
	"rafflechain/rpc"
	"rafflechain/storage"
)

const otlpHeadersEnv = "OTEL_EXPORTER_OTLP_HEADERS"

func main() {
	configFile := flag.String("config", "./config.toml", "Path to the configuration file")
	bootstrapFlag := flag.String("bootstrap", "", "Path to a YAML bootstrap file (overrides config BootstrapFile)")
	exportPath := flag.String("export-events", "", "Write the event journal to this parquet file and exit")
	exportLottery := flag.String("lottery", "", "Restrict -export-events to one lottery id")
	flag.Parse()

	cfg, err := config.Load(*configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	if path := strings.TrimSpace(*bootstrapFlag); path != "" {
		cfg.BootstrapFile = path
	}

	logger := logging.Setup("lotteryd", cfg.Environment, logging.Options{
		Level: cfg.LogLevel,
		File:  cfg.LogFile,
	})

	if path := strings.TrimSpace(*exportPath); path != "" {
		if err := exportEvents(cfg, path, *exportLottery, logger); err != nil {
			logger.Error("event export failed", slog.Any("error", err))
			os.Exit(1)
		}
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("lotteryd stopped", slog.Any("error", err))
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	shutdownTelemetry, err := telemetry.Init(ctx, telemetry.Config{
		ServiceName: "lotteryd",
		Environment: cfg.Environment,
		Network:     cfg.NetworkName,
		Endpoint:    cfg.Telemetry.Endpoint,
		Insecure:    cfg.Telemetry.Insecure,
		Headers:     telemetry.ParseHeaders(os.Getenv(otlpHeadersEnv)),
		Metrics:     cfg.Telemetry.Metrics,
		Traces:      cfg.Telemetry.Traces,
	})
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer func() {
		if err := shutdownTelemetry(context.Background()); err != nil {
			logger.Warn("telemetry shutdown", slog.Any("error", err))
		}
	}()

	db, err := storage.Open(cfg.DBBackend, cfg.DataDir)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	manager := state.NewManager(db)
	defer manager.Close()

	if path := strings.TrimSpace(cfg.BootstrapFile); path != "" {
		boot, err := config.LoadBootstrap(path)
		if err != nil {
			return err
		}
		if err := applyBootstrap(manager, boot, logger); err != nil {
			return err
		}
	}

	engine := lottery.NewEngine()
	engine.SetStore(manager)
	engine.SetDefaultRoundDuration(cfg.DefaultRoundDuration.Duration)
	engine.SetMaxTicketsPerBuyer(cfg.MaxTicketsPerBuyer)
	engine.SetMaxWinners(cfg.MaxWinners)

	signingSecret, err := secret.NewSource(cfg.Auth.HMACSecretEnv, "RPC token signing secret").Get()
	if err != nil {
		if !errors.Is(err, secret.ErrUnavailable) {
			return err
		}
		logger.Warn("RPC token secret not configured; state-changing methods are disabled",
			slog.String("env", cfg.Auth.HMACSecretEnv))
	}

	server := rpc.NewServer(rpc.Config{
		Auth: rpc.AuthConfig{
			HMACSecret: signingSecret,
			Issuer:     cfg.Auth.Issuer,
			Audience:   cfg.Auth.Audience,
			ClockSkew:  cfg.Auth.ClockSkew.Duration,
		},
		RateLimit: rpc.RateLimit{
			RequestsPerMinute: float64(cfg.RateLimit.RequestsPerMinute),
			Burst:             cfg.RateLimit.Burst,
		},
		EnableFaucet: cfg.EnableFaucet,
	}, engine, manager, logger)

	emitters := events.Multi{observability.NewEventSink(logger), server.Hub()}
	if cfg.Indexer.Enabled {
		journal, err := indexer.Open(cfg.IndexerDSN(), logger)
		if err != nil {
			return err
		}
		defer journal.Close()
		server.SetJournal(journal)
		emitters = append(emitters, journal)
	}
	engine.SetEmitter(emitters)

	logger.Info("lotteryd ready",
		slog.String("network", cfg.NetworkName),
		slog.String("backend", cfg.DBBackend),
		slog.Bool("faucet", cfg.EnableFaucet),
		slog.Bool("indexer", cfg.Indexer.Enabled))
	return server.Serve(ctx, cfg.ListenAddress)
}

// exportEvents dumps the journal to a parquet file for offline analysis.
func exportEvents(cfg *config.Config, path, lotteryID string, logger *slog.Logger) error {
	journal, err := indexer.Open(cfg.IndexerDSN(), logger)
	if err != nil {
		return err
	}
	defer journal.Close()
	id := strings.TrimPrefix(strings.ToLower(strings.TrimSpace(lotteryID)), "0x")
	rows, err := journal.ExportParquet(path, id)
	if err != nil {
		return err
	}
	logger.Info("event journal exported", slog.String("file", path), slog.Int("rows", rows))
	return nil
}
