// Command gateway runs the GraphQL gateway: it loads configuration, builds
// the endpoint pipelines, and serves HTTP with live configuration reload.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/gqlgate/gqlgate/internal/config"
	"github.com/gqlgate/gqlgate/internal/gateway"
	"github.com/gqlgate/gqlgate/internal/observability"
)

const shutdownTimeout = 15 * time.Second

var version = "dev"

func main() {
	configPath := flag.String("config", "config.yaml", "path to the configuration file")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println(version)
		return
	}

	if err := run(*configPath); err != nil {
		fmt.Fprintf(os.Stderr, "gateway: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, err := observability.NewLogger(cfg.Logging)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer logger.Sync()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	gw, err := gateway.New(ctx, cfg,
		gateway.WithLogger(logger),
		gateway.WithRegistry(registry),
	)
	if err != nil {
		return fmt.Errorf("build gateway: %w", err)
	}

	// The handler is swapped atomically on configuration reload so
	// in-flight requests finish on the pipeline they started with.
	var handler atomic.Pointer[http.Handler]
	h := gw.Handler()
	handler.Store(&h)

	watcher, err := config.NewWatcher(configPath, func(newCfg *config.GatewayConfig) {
		// Reloads get a fresh registry; exposing it would require an
		// atomic registry swap too, so /metrics keeps the boot registry.
		newGw, err := gateway.New(ctx, newCfg, gateway.WithLogger(logger))
		if err != nil {
			logger.Error("config reload produced an invalid gateway, keeping previous",
				observability.Error(err),
			)
			return
		}
		nh := newGw.Handler()
		handler.Store(&nh)
		logger.Info("gateway rebuilt from reloaded configuration")
	}, config.WithWatcherLogger(logger))
	if err != nil {
		return fmt.Errorf("init config watcher: %w", err)
	}
	if err := watcher.Start(ctx); err != nil {
		return fmt.Errorf("start config watcher: %w", err)
	}
	defer watcher.Stop()

	server := &http.Server{
		Addr: cfg.Server.Addr(),
		Handler: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			(*handler.Load()).ServeHTTP(w, r)
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("gateway listening",
			observability.String("addr", server.Addr),
			observability.String("version", version),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()
	return server.Shutdown(shutdownCtx)
}
