package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/pflag"

	"github.com/relaywatch/relaywatch/internal/adapters/render/markdown"
	"github.com/relaywatch/relaywatch/internal/app"
	"github.com/relaywatch/relaywatch/internal/config"
	"github.com/relaywatch/relaywatch/pkg/logger"
)

func main() {
	os.Exit(run())
}

func run() int {
	// Disable default Go metrics collection to avoid duplicate metrics;
	// the pipeline registers its own on a custom registry.
	prometheus.Unregister(collectors.NewGoCollector())
	prometheus.Unregister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	configPath := pflag.String("config", "", "path to a YAML config file (overrides RELAYWATCH_CONFIG)")
	outputDir := pflag.String("output", "", "output directory for rendered documents")
	workers := pflag.Int("workers", 0, "worker count for parallel stages (0 uses the config value)")
	sequential := pflag.Bool("sequential", false, "disable parallelism in every stage")
	logLevel := pflag.String("log-level", "", "log level: debug, info, warn, error")
	pflag.Parse()

	// Initialize logging
	if err := logger.Init(); err != nil {
		// Logger is not available yet, write straight to stderr.
		os.Stderr.WriteString("failed to initialize logging: " + err.Error() + "\n")
		return 1
	}
	log := logger.Get()

	// Root context with cancel on SIGINT/SIGTERM.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if *configPath != "" {
		os.Setenv("RELAYWATCH_CONFIG", *configPath)
	}

	// Load configuration (defaults -> optional file -> env)
	cfg, err := config.Load(ctx)
	if err != nil {
		os.Stderr.WriteString("failed to load config: " + err.Error() + "\n")
		return 1
	}

	// Flags override whatever the config resolved to.
	if *outputDir != "" {
		cfg.OutputDir = *outputDir
	}
	if *workers > 0 {
		cfg.WorkerCount = *workers
	}
	if *sequential {
		cfg.DisableParallelism = true
	}
	if *logLevel != "" {
		cfg.LogLevel = *logLevel
	}

	// Apply configured log level (fallback to info on invalid input)
	if err := logger.SetLevelString(cfg.LogLevel); err != nil {
		log.Warn(ctx, "invalid log_level; falling back to info", logger.String("log_level", cfg.LogLevel), logger.Error(err))
		_ = logger.SetLevelString("info")
	}

	renderer, err := markdown.NewRenderer()
	if err != nil {
		log.Error(ctx, "building renderer failed", logger.Error(err))
		return 1
	}

	svc, err := app.New(cfg, renderer, app.WithLogger(log))
	if err != nil {
		log.Error(ctx, "service setup failed", logger.Error(err))
		return 1
	}
	defer func() {
		if err := svc.Close(); err != nil {
			log.Warn(ctx, "closing service failed", logger.Error(err))
		}
	}()

	summary, err := svc.Run(ctx)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			log.Info(ctx, "run canceled")
			return 1
		}
		log.Error(ctx, "run failed", logger.Error(err))
		return 1
	}

	log.Info(ctx, "done",
		logger.String("run_id", summary.RunID),
		logger.Int("documents", summary.DocumentsPersisted),
		logger.Int("failed_jobs", len(summary.FailedJobs)))
	if len(summary.FailedJobs) > 0 {
		return 2
	}
	return 0
}
