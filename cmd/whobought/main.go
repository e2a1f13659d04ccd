package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/docopt/docopt-go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mmynk/whobought/internal/app"
	"github.com/mmynk/whobought/internal/config"
	"github.com/mmynk/whobought/internal/metrics"
	"github.com/mmynk/whobought/pkg/logging"
)

const WhoboughtVersion = "0.1.0"

func main() {
	usage := `Who bought? Shared expenses, kept in sync.

Configuration comes from the environment (see WHOBOUGHT_* variables),
optionally read from an env file. ./.env is read when present.

Usage:
    whobought [shell] [--env=<file>] [--log_level=<level>]
    whobought settle [--env=<file>] [--log_level=<level>]
    whobought -h | --help
    whobought --version

Options:
    -h --help             Show this screen.
    --version             Show version.
    --env=<file>          Read environment variables from this file.
    --log_level=<level>   debug, info, warn or error. Overrides LOG_LEVEL.`

	opts, err := docopt.ParseArgs(usage, os.Args[1:], WhoboughtVersion)
	if err != nil {
		panic(err)
	}

	logger := logging.Setup()
	if level, _ := opts.String("--log_level"); level != "" {
		logger = logging.SetupWithLevel(logging.ParseLevel(level))
	}

	var envFiles []string
	if envFile, _ := opts.String("--env"); envFile != "" {
		envFiles = append(envFiles, envFile)
	}
	cfg, err := config.Load(envFiles...)
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if settle, _ := opts.Bool("settle"); settle {
		os.Exit(runSettle(ctx, cfg, logger))
	}
	os.Exit(runShell(ctx, cfg, logger))
}

// start builds and starts the app. A refresh failure is logged and the
// cached session, if any, is used.
func start(ctx context.Context, cfg config.Config, logger *slog.Logger) (*app.App, error) {
	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	if err := a.Start(ctx); err != nil {
		logger.Warn("Session refresh failed", "error", err)
	}
	return a, nil
}

func runShell(ctx context.Context, cfg config.Config, logger *slog.Logger) int {
	if cfg.MetricsAddr != "" {
		srv := serveMetrics(cfg.MetricsAddr, logger)
		defer srv.Close()
	}

	a, err := start(ctx, cfg, logger)
	if err != nil {
		slog.Error("Failed to start", "error", err)
		return 1
	}
	defer a.Close()

	sh := &shell{session: a.Store, out: os.Stdout, now: time.Now}
	done := make(chan error, 1)
	go func() { done <- sh.run(ctx, os.Stdin) }()

	select {
	case <-ctx.Done():
		fmt.Fprintln(os.Stdout)
	case err := <-done:
		if err != nil {
			slog.Error("Shell failed", "error", err)
			return 1
		}
	}
	return 0
}

// runSettle prints the settlements of the active group and exits.
func runSettle(ctx context.Context, cfg config.Config, logger *slog.Logger) int {
	a, err := start(ctx, cfg, logger)
	if err != nil {
		slog.Error("Failed to start", "error", err)
		return 1
	}
	defer a.Close()

	sh := &shell{session: a.Store, out: os.Stdout, now: time.Now}
	if err := sh.settle(); err != nil {
		slog.Error("Settle failed", "error", err)
		return 1
	}
	return 0
}

func serveMetrics(addr string, logger *slog.Logger) *http.Server {
	if err := metrics.Register(prometheus.DefaultRegisterer); err != nil {
		logger.Warn("Failed to register metrics", "error", err)
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		logger.Info("Metrics server starting", "address", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Metrics server failed", "error", err)
		}
	}()
	return srv
}
