package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sadewadee/dispatchd/internal/adminstream"
	"github.com/sadewadee/dispatchd/internal/config"
	"github.com/sadewadee/dispatchd/internal/pool"
	"github.com/sadewadee/dispatchd/internal/server"
)

var version = "0.1.0-dev"

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "serve", "start":
		serve()
	case "version":
		fmt.Printf("dispatchd v%s\n", version)
	case "help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func serve() {
	cfgPath := "dispatchd.yaml"
	if len(os.Args) > 2 {
		cfgPath = os.Args[2]
	}

	logger, startupCloser := setupLogger("info", "json", "stdout")
	if startupCloser != nil {
		defer startupCloser.Close()
	}
	logger.Info("dispatchd starting", "version", version)

	cfg, err := config.Load(cfgPath)
	if err != nil {
		logger.Error("failed to load config", "path", cfgPath, "error", err)
		os.Exit(1)
	}

	if startupCloser != nil {
		_ = startupCloser.Close()
		startupCloser = nil
	}
	logger, logCloser := setupLogger(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output)
	if logCloser != nil {
		defer logCloser.Close()
	}

	ctx, cancelPool := context.WithCancel(context.Background())
	defer cancelPool()

	workerPool, err := pool.New(ctx, pool.Config{
		Socket:      cfg.Pool.Socket,
		Interpreter: cfg.Pool.Interpreter,
		Script:      cfg.Pool.Script,
		Size:        cfg.Pool.Size,
	}, logger)
	if err != nil {
		logger.Error("failed to start worker pool", "error", err)
		os.Exit(1)
	}

	srv := server.New(cfg, workerPool, logger)

	var admin *adminstream.Manager
	if cfg.Admin.Enabled {
		admin = adminstream.New(workerPool, cfg.Admin.PushInterval.Duration(), logger)
		go admin.Run(ctx)
		srv.Handle(cfg.Admin.Path, admin)
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		if err := srv.Start(); err != nil {
			logger.Error("server error", "error", err)
			quit <- syscall.SIGTERM
		}
	}()

	logger.Info("dispatchd ready", "address", cfg.Server.Address, "pool_size", cfg.Pool.Size)

	<-quit
	logger.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Stop(shutdownCtx); err != nil {
		logger.Error("server shutdown error", "error", err)
	}

	if admin != nil {
		admin.Close()
	}

	cancelPool()
	if err := workerPool.Stop(); err != nil {
		logger.Error("pool shutdown error", "error", err)
	}

	logger.Info("dispatchd stopped")
}

func setupLogger(level, format, output string) (*slog.Logger, io.Closer) {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}

	writer, closer := resolveLogOutput(output)
	opts := &slog.HandlerOptions{Level: lvl}

	var handler slog.Handler
	if format == "text" {
		handler = slog.NewTextHandler(writer, opts)
	} else {
		handler = slog.NewJSONHandler(writer, opts)
	}

	return slog.New(handler), closer
}

func resolveLogOutput(output string) (io.Writer, io.Closer) {
	switch output {
	case "", "stdout":
		return os.Stdout, nil
	case "stderr":
		return os.Stderr, nil
	default:
		f, err := os.OpenFile(output, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return os.Stdout, nil
		}
		return f, f
	}
}

func printUsage() {
	fmt.Println(`dispatchd - HTTP-fronted worker process dispatcher

Usage:
  dispatchd <command> [options]

Commands:
  serve [config]   Start the server (default config: dispatchd.yaml)
  start [config]   Alias for serve
  version          Show version
  help             Show this help

Signals:
  SIGINT/SIGTERM   Graceful shutdown

Examples:
  dispatchd serve
  dispatchd serve /etc/dispatchd/dispatchd.yaml
  dispatchd version`)
}
