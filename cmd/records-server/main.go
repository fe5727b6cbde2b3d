package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/medvertical/records-sub011/internal/checkpoint"
	"github.com/medvertical/records-sub011/internal/config"
	"github.com/medvertical/records-sub011/internal/job"
	"github.com/medvertical/records-sub011/internal/platform/db"
	"github.com/medvertical/records-sub011/internal/platform/middleware"
	"github.com/medvertical/records-sub011/internal/platform/telemetry"
	"github.com/medvertical/records-sub011/internal/source"
	"github.com/medvertical/records-sub011/internal/validation"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "records-server",
		Short: "FHIR resource validation server",
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the validation API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create the checkpoint schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if cfg.DatabaseURL == "" {
				return fmt.Errorf("DATABASE_URL is required for migrate")
			}

			ctx := context.Background()
			pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
			if err != nil {
				return err
			}
			defer pool.Close()

			if err := checkpoint.Migrate(ctx, pool); err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}
			fmt.Println("Checkpoint schema is up to date.")
			return nil
		},
	}
}

func runServer() error {
	// Logger
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	if os.Getenv("ENV") == "development" {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}

	// Config
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}
	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid configuration")
	}

	// Checkpoint store. Without a database the service still runs, jobs
	// just cannot be restored across restarts.
	ctx := context.Background()
	var pool *pgxpool.Pool
	var store checkpoint.Store
	if cfg.DatabaseURL != "" {
		p, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to connect to database")
		}
		defer p.Close()
		pool = p
		store = checkpoint.NewPostgresStore(p)
		logger.Info().Msg("using postgres checkpoint store")
	} else {
		store = checkpoint.NewMemoryStore()
		logger.Warn().Msg("DATABASE_URL not set; checkpoints are in-memory only")
	}

	// Source FHIR server client
	src := source.NewRestClient(cfg.SourceServerURL, cfg.SourceTimeout, logger)
	logger.Info().Str("source", cfg.SourceServerURL).Msg("source server configured")

	// Validation engine and telemetry
	engine := validation.NewEngine(validation.NewCodeRegistry())
	tel := telemetry.NewProvider("records-server")

	// Job manager
	mgr := job.NewManager(src, engine, store, tel, logger, job.Options{
		ServerID:        cfg.SourceServerID,
		ResourceTypes:   cfg.ResourceTypes,
		BatchSize:       cfg.BatchSize,
		MaxConcurrent:   cfg.MaxConcurrent,
		CheckpointEvery: cfg.CheckpointEvery,
	})

	cleanupCtx, cleanupCancel := context.WithCancel(ctx)
	defer cleanupCancel()
	mgr.StartCleanup(cleanupCtx, cfg.CleanupInterval)

	// Echo server
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))

	apiV1 := e.Group("/api/v1")
	job.NewHandler(mgr, logger).RegisterRoutes(apiV1)

	e.GET("/healthz", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"version": "0.1.0",
		})
	})
	e.GET("/readyz", db.ReadinessHandler(pool, tel))
	e.GET("/metrics", tel.PrometheusHandler())

	// Graceful shutdown
	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Msg("starting server")
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if _, err := mgr.Stop(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("failed to stop active job")
	}
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Fatal().Err(err).Msg("server shutdown failed")
	}
	logger.Info().Msg("server stopped")
	return nil
}
