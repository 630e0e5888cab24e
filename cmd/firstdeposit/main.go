package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"

	"firstdeposit/chain"
	"firstdeposit/config"
	"firstdeposit/contracts"
	"firstdeposit/observability/logging"
	"firstdeposit/observability/metrics"
	telemetry "firstdeposit/observability/otel"
	"firstdeposit/scenario"
	"firstdeposit/sim"
)

const serviceName = "firstdeposit"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := run(ctx, os.Args[1:], os.Stdout)
	stop()
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(2)
		}
		log.Printf("firstdeposit: %v", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, stdout io.Writer) error {
	flags := flag.NewFlagSet(serviceName, flag.ContinueOnError)
	cfgPath := flags.String("config", "", "path to the TOML run configuration")
	backendFlag := flags.String("backend", "", "chain backend: rpc or sim (overrides Chain.Backend)")
	reportPath := flags.String("report", "", "write the run report to this .json or .yaml file")
	if err := flags.Parse(args); err != nil {
		return err
	}

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if *backendFlag != "" {
		cfg.Chain.Backend = strings.ToLower(strings.TrimSpace(*backendFlag))
		if cfg.Chain.Backend != config.BackendRPC && cfg.Chain.Backend != config.BackendSim {
			return fmt.Errorf("unknown backend %q", *backendFlag)
		}
	}
	if *reportPath != "" {
		cfg.Report.Path = *reportPath
	}

	env := cfg.Log.Env
	if env == "" {
		env = strings.TrimSpace(os.Getenv("FIRSTDEPOSIT_ENV"))
	}
	logger, closeLog := logging.Setup(serviceName, env, logging.Options{
		Output:     stdout,
		File:       cfg.Log.File,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAgeDays: cfg.Log.MaxAgeDays,
	})
	defer func() { _ = closeLog() }()

	runID := uuid.NewString()
	shutdownTelemetry, err := telemetry.Init(ctx, telemetry.Config{
		ServiceName: serviceName,
		Environment: env,
		RunID:       runID,
		Endpoint:    cfg.Telemetry.OTLPEndpoint,
		Insecure:    cfg.Telemetry.OTLPInsecure,
		Headers:     telemetry.ParseHeaders(cfg.Telemetry.OTLPHeaders),
		Metrics:     cfg.Telemetry.Metrics,
		Traces:      cfg.Telemetry.Traces,
	})
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTelemetry(shutdownCtx); err != nil {
			logger.Warn("telemetry shutdown failed", slog.Any("error", err))
		}
	}()

	backend, artifacts, err := openBackend(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer backend.Close()

	params, err := scenario.ParamsFromConfig(cfg)
	if err != nil {
		return err
	}
	scenarioMetrics := metrics.Scenario()
	runner, err := scenario.New(backend, artifacts, params,
		scenario.WithLogger(logger),
		scenario.WithMetrics(scenarioMetrics),
		scenario.WithBackendKind(cfg.Chain.Backend),
		scenario.WithRunID(runID),
	)
	if err != nil {
		return err
	}

	report, runErr := runner.Run(ctx)
	if report != nil {
		if err := report.RenderText(stdout); err != nil {
			logger.Warn("render report failed", slog.Any("error", err))
		}
		if cfg.Report.Path != "" {
			if err := report.WriteFile(cfg.Report.Path, cfg.Report.Format); err != nil {
				runErr = errors.Join(runErr, err)
			} else {
				logger.Info("report written", slog.String("path", cfg.Report.Path))
			}
		}
	}
	if err := metrics.Push(ctx, cfg.Telemetry.PushgatewayURL, cfg.Telemetry.PushJob, runID); err != nil {
		logger.Warn("metrics push failed", logging.URLField("gateway", cfg.Telemetry.PushgatewayURL), slog.Any("error", err))
	}
	return runErr
}

// openBackend returns the configured backend and the artifacts to deploy with.
// The simulator runs Go contracts and needs only ABIs; a real node needs the
// compiled bytecode.
func openBackend(ctx context.Context, cfg config.Config, logger *slog.Logger) (chain.Backend, contracts.ArtifactSet, error) {
	switch cfg.Chain.Backend {
	case config.BackendSim:
		backend, fork, err := sim.NewCompoundFork(cfg.Market.ComptrollerAddress(), cfg.Chain.SimAccounts)
		if err != nil {
			return nil, contracts.ArtifactSet{}, fmt.Errorf("start simulator: %w", err)
		}
		logger.Info("simulated fork ready",
			slog.String("comptroller", fork.Comptroller.Hex()),
			slog.String("admin", fork.Admin.Hex()),
		)
		return backend, contracts.DefaultArtifacts(), nil
	default:
		artifacts, err := contracts.LoadArtifacts(cfg.Market.ArtifactsDir)
		if err != nil {
			return nil, contracts.ArtifactSet{}, fmt.Errorf("load artifacts: %w", err)
		}
		dialCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		backend, err := chain.Dial(dialCtx, cfg.Chain.RPCURL, chain.RPCOptions{
			Dialect:           chain.Dialect(cfg.Chain.Dialect),
			ReceiptTimeout:    time.Duration(cfg.Chain.ReceiptTimeoutSeconds) * time.Second,
			PollInterval:      time.Duration(cfg.Chain.PollIntervalMillis) * time.Millisecond,
			RequestsPerSecond: cfg.Chain.RequestsPerSecond,
			Gas:               cfg.Chain.Gas,
		})
		if err != nil {
			return nil, contracts.ArtifactSet{}, fmt.Errorf("dial %s: %w", logging.MaskURL(cfg.Chain.RPCURL), err)
		}
		logger.Info("connected to node",
			logging.URLField("rpc_url", cfg.Chain.RPCURL),
			slog.String("dialect", cfg.Chain.Dialect),
		)
		return backend, artifacts, nil
	}
}
