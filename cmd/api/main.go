// Package main is the entry point for the custody API server.
// Its sole responsibility is wiring dependencies together and starting the server.
// No business logic belongs here.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	_ "github.com/joho/godotenv/autoload"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/sync/errgroup"

	"github.com/pkordes/hidetrace/backend/internal/auth"
	"github.com/pkordes/hidetrace/backend/internal/config"
	"github.com/pkordes/hidetrace/backend/internal/handler"
	"github.com/pkordes/hidetrace/backend/internal/legacy"
	"github.com/pkordes/hidetrace/backend/internal/metrics"
	"github.com/pkordes/hidetrace/backend/internal/middleware"
	"github.com/pkordes/hidetrace/backend/internal/repo"
	"github.com/pkordes/hidetrace/backend/internal/service"
	"github.com/pkordes/hidetrace/backend/internal/telemetry"
	"github.com/pkordes/hidetrace/backend/migrations"
)

func main() {
	if err := run(); err != nil {
		slog.Error("server exited", "error", err)
		os.Exit(1)
	}
}

func run() error {
	// --- Config -----------------------------------------------------------
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	// --- Logger -----------------------------------------------------------
	var logLevel slog.Level
	if err := logLevel.UnmarshalText([]byte(cfg.LogLevel)); err != nil {
		logLevel = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// --- Tracing ----------------------------------------------------------
	shutdownTracing, err := telemetry.Init(ctx, logger)
	if err != nil {
		return err
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(sctx); err != nil {
			logger.Warn("tracer shutdown", "error", err)
		}
	}()

	// --- Databases --------------------------------------------------------
	// New() does not open connections immediately; the Ping below does.
	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer pool.Close()

	if err := pool.Ping(ctx); err != nil {
		return err
	}
	logger.Info("database connection established")

	if cfg.MigrateOnStart {
		db := stdlib.OpenDBFromPool(pool)
		n, err := migrations.Up(ctx, db)
		_ = db.Close()
		if err != nil {
			return err
		}
		logger.Info("migrations applied", "count", n)
	}

	legacyDB, err := legacy.Open(ctx, cfg.LegacyDatabaseURL)
	if err != nil {
		return err
	}
	defer legacyDB.Close()

	// --- Services ---------------------------------------------------------
	collector, err := metrics.New(prometheus.DefaultRegisterer)
	if err != nil {
		return err
	}
	tx := repo.NewTxRunner(pool,
		repo.WithMaxRetries(cfg.TxMaxRetries),
		repo.WithRetryHook(func(err error) { collector.RetryObserved(repo.SQLState(err)) }),
	)
	opts := []service.Option{
		service.WithLogger(logger),
		service.WithHooks(collector),
		service.WithCodeAttempts(cfg.CodeMaxAttempts),
	}
	products := service.NewAggregationEngine(tx, opts...)
	server := handler.NewServer(handler.Services{
		Registry: service.NewTagRegistry(tx, legacy.NewSource(legacyDB), opts...),
		Recorder: service.NewCustodyRecorder(tx, products, opts...),
		Products: products,
		Traces:   service.NewTracer(tx, opts...),
		Ledger:   service.NewLedgerReader(tx, opts...),
		Ready:    pool.Ping,
	}, logger)

	httpMetrics, err := middleware.NewPrometheus(prometheus.DefaultRegisterer)
	if err != nil {
		return err
	}

	// --- Router -----------------------------------------------------------
	// Middleware is applied in order: RequestID → RealIP → Logger → Recoverer
	// → CORS → body limit → HTTP metrics. Identity is resolved only for the
	// API group so /metrics stays reachable without a token.
	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.NewSlogLogger(logger))
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.NewCORSHandler(cfg.CORSOrigins))
	r.Use(middleware.NewMaxBodySizeHandler(cfg.MaxBodyBytes))
	r.Use(httpMetrics.Handler)

	r.Handle("/metrics", promhttp.Handler())
	r.Group(func(r chi.Router) {
		r.Use(middleware.NewAuthenticator(auth.NewVerifier(cfg.JWTSecret)))
		r.Mount("/", server.Routes())
	})

	// --- HTTP Server ------------------------------------------------------
	// Explicit timeouts prevent slowloris and resource exhaustion attacks.
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           otelhttp.NewHandler(r, "custody-api"),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("server starting", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down server")
		sctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(sctx)
	})

	if err := g.Wait(); err != nil {
		return err
	}
	logger.Info("server stopped")
	return nil
}
