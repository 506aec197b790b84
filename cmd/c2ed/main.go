package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"charge2earn/config"
	"charge2earn/observability/logging"
	telemetry "charge2earn/observability/otel"
)

const (
	serviceName     = "c2ed"
	shutdownTimeout = 10 * time.Second
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	os.Exit(run(ctx, os.Args[1:], os.Stderr))
}

func run(ctx context.Context, args []string, stderr io.Writer) int {
	fs := flag.NewFlagSet(serviceName, flag.ContinueOnError)
	fs.SetOutput(stderr)
	configFile := fs.String("config", "./config.toml", "Path to the configuration file")
	listen := fs.String("listen", "", "Override the JSON-RPC listen address")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	cfg, err := config.Load(*configFile)
	if err != nil {
		fmt.Fprintf(stderr, "Failed to load config: %v\n", err)
		return 1
	}
	if *listen != "" {
		cfg.RPC.Address = *listen
	}

	logger := logging.Setup(logging.Options{
		Service:    serviceName,
		Env:        cfg.Log.Env,
		Level:      cfg.Log.Level,
		File:       cfg.Log.File,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAgeDays: cfg.Log.MaxAgeDays,
	})

	if cfg.Telemetry.Traces || cfg.Telemetry.Metrics {
		shutdown, err := telemetry.Init(ctx, telemetry.Config{
			ServiceName: serviceName,
			Environment: cfg.Log.Env,
			Endpoint:    cfg.Telemetry.Endpoint,
			Insecure:    cfg.Telemetry.Insecure,
			Headers:     telemetry.ParseHeaders(cfg.Telemetry.Headers),
			Metrics:     cfg.Telemetry.Metrics,
			Traces:      cfg.Telemetry.Traces,
			SampleRatio: cfg.Telemetry.SampleRatio,
		})
		if err != nil {
			logger.Error("Failed to initialise telemetry", slog.Any("error", err))
			return 1
		}
		defer func() {
			flushCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := shutdown(flushCtx); err != nil {
				logger.Warn("telemetry shutdown failed", slog.Any("error", err))
			}
		}()
	}

	n, err := openNode(ctx, cfg, logger)
	if err != nil {
		logger.Error("Failed to start node", slog.Any("error", err))
		return 1
	}
	defer n.close()

	listener, err := net.Listen("tcp", cfg.RPC.Address)
	if err != nil {
		logger.Error("Failed to bind JSON-RPC listener", slog.String("addr", cfg.RPC.Address), slog.Any("error", err))
		return 1
	}

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- n.server.Serve(listener)
	}()

	select {
	case err := <-serveErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("JSON-RPC server stopped", slog.Any("error", err))
			return 1
		}
		return 0
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := n.server.Shutdown(shutdownCtx); err != nil {
		logger.Error("JSON-RPC shutdown failed", slog.Any("error", err))
		return 1
	}
	// Shutdown is a no-op if Serve has not installed its server yet.
	_ = listener.Close()
	if err := <-serveErr; err != nil && !errors.Is(err, http.ErrServerClosed) && !errors.Is(err, net.ErrClosed) {
		logger.Error("JSON-RPC server stopped", slog.Any("error", err))
		return 1
	}
	return 0
}
