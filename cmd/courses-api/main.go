// main is the entry point of the Courses API application.
//
// STARTUP SEQUENCE:
//  1. Load configuration from a YAML file (plus .env / environment)
//  2. Initialise the logger
//  3. Open the database and apply pending migrations
//  4. Build the service and the route table
//  5. Start the HTTP server in a separate goroutine
//  6. Block the main goroutine until an OS signal (Ctrl+C / kill) arrives
//  7. Gracefully shut down: finish in-flight requests, then exit
//
// RUNNING THE SERVER:
//
//	go run ./cmd/courses-api --config=config/local.yaml
//
// or (with the environment variable):
//
//	CONFIG_PATH=config/local.yaml go run ./cmd/courses-api
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/aanand-mishra/courses-api/internal/config"
	"github.com/aanand-mishra/courses-api/internal/http/router"
	"github.com/aanand-mishra/courses-api/internal/logger"
	"github.com/aanand-mishra/courses-api/internal/service"
	"github.com/aanand-mishra/courses-api/internal/storage/sqlstore"
)

const shutdownTimeout = 5 * time.Second

func main() {
	// ── 1. Load Config ────────────────────────────────────────────────────
	// MustLoad exits if anything is wrong. If it returns, config is valid.
	cfg := config.MustLoad()

	// ── 2. Initialise Logger ──────────────────────────────────────────────
	// zap writes structured key/value fields. Sync flushes buffered
	// entries before the process exits.
	log := logger.New(cfg.Env)
	defer func() { _ = log.Sync() }()
	zap.ReplaceGlobals(log)

	log.Info("starting courses-api",
		zap.String("env", cfg.Env),
		zap.String("driver", cfg.Storage.Driver),
	)

	// ── 3. Initialise Storage (Database) ──────────────────────────────────
	// The rest of the program only sees the storage.Storage interface;
	// the driver is picked by config (sqlite3 or pgx).
	ctx := context.Background()
	store, err := openStore(ctx, cfg, log)
	if err != nil {
		log.Error("failed to initialise storage", zap.Error(err))
		os.Exit(1)
	}
	defer func() { _ = store.Close() }()

	log.Info("storage initialised")

	// ── 4. Register HTTP Routes ───────────────────────────────────────────
	// The route table lives in internal/http/router. Metrics go to a
	// dedicated registry that also carries the Go runtime collectors.
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	handler := router.New(router.Deps{
		Config:   cfg,
		Log:      log,
		Users:    store,
		Courses:  service.NewCourseService(store),
		Registry: reg,
	})

	// ── 5. Create the HTTP Server ─────────────────────────────────────────
	server := &http.Server{
		Addr:         cfg.HTTPServer.Addr,
		Handler:      handler,
		ReadTimeout:  cfg.HTTPServer.ReadTimeout,
		WriteTimeout: cfg.HTTPServer.WriteTimeout,
		IdleTimeout:  cfg.HTTPServer.IdleTimeout,
	}

	// ── 6. Start Server in a Goroutine ────────────────────────────────────
	// ListenAndServe blocks, so it runs off the main goroutine and the
	// shutdown code below stays reachable.
	go func() {
		log.Info("server started", zap.String("address", cfg.HTTPServer.Addr))

		// http.ErrServerClosed is the normal result of Shutdown().
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server encountered an error", zap.Error(err))
			os.Exit(1)
		}
	}()

	// ── 7. Wait for Shutdown Signal ───────────────────────────────────────
	// os.Interrupt = Ctrl+C (SIGINT)
	// syscall.SIGTERM = sent by `kill <pid>` or container orchestrators
	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGTERM)
	<-done

	log.Info("shutdown signal received, stopping server...")

	// ── 8. Graceful Shutdown ──────────────────────────────────────────────
	// Shutdown stops accepting connections and waits for active requests
	// until the deadline.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("failed to shutdown server gracefully", zap.Error(err))
		return
	}

	log.Info("server stopped gracefully")
}

// openStore connects to the configured database and migrates it.
func openStore(ctx context.Context, cfg *config.Config, log *zap.Logger) (*sqlstore.Store, error) {
	store, err := sqlstore.Open(ctx, cfg.Storage.Driver, cfg.Storage.DSN)
	if err != nil {
		return nil, err
	}
	if err := store.Migrate(ctx, log); err != nil {
		_ = store.Close()
		return nil, err
	}
	return store, nil
}
