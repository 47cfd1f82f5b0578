package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"actiongate/internal/config"
	"actiongate/internal/host"
	"actiongate/internal/logger"
	"actiongate/internal/server/api"
	"actiongate/internal/sink"
	"actiongate/internal/version"

	"go.uber.org/zap"
)

func main() {
	// Parse command line flags
	configPath := flag.String("config", "", "Path to config file")
	showVersion := flag.Bool("version", false, "Show version information")
	flag.Parse()

	if *showVersion {
		fmt.Println(version.GetInfo().String())
		os.Exit(0)
	}

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(&cfg.Log)
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	log = log.Named(config.AppName)
	defer func() { _ = log.Sync() }()

	if err := run(cfg, log); err != nil {
		log.Error("Service failed", zap.Error(err))
		_ = log.Sync()
		os.Exit(1)
	}
}

// run wires the sinks, the host and the HTTP server, and blocks until a
// termination signal or a server error
func run(cfg *config.Config, log *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	sinks := sink.NewManager(&cfg.Sinks, log.Named("sink"))
	defer func() {
		if err := sinks.Stop(); err != nil {
			log.Error("Sink manager shutdown error", zap.Error(err))
		}
	}()

	h := host.New(cfg, sinks, log.Named("host"))
	if err := h.Start(ctx); err != nil {
		return fmt.Errorf("failed to start host: %w", err)
	}
	// Stop the host before the sinks so pending windows stop publishing
	defer func() { _ = h.Stop() }()

	router := api.NewRouter(&cfg.Server, h, sinks, log.Named("api"))
	server := &http.Server{
		Addr:         cfg.Server.Address,
		Handler:      router.Handler(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("Starting server",
			zap.String("address", cfg.Server.Address),
			zap.Int("groups", len(cfg.Groups)),
			zap.Strings("sinks", sinks.Names()),
			zap.String("version", version.Version))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		log.Info("Received signal, starting graceful shutdown")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("Server shutdown error", zap.Error(err))
	}

	log.Info("Shutdown complete")
	return nil
}
