package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/afero"

	"github.com/jwalitptl/pathology-report-api/internal/app"
	"github.com/jwalitptl/pathology-report-api/internal/config"
	"github.com/jwalitptl/pathology-report-api/internal/handler/health"
	promHandler "github.com/jwalitptl/pathology-report-api/internal/handler/prometheus"
	"github.com/jwalitptl/pathology-report-api/internal/repository/postgres"
	"github.com/jwalitptl/pathology-report-api/internal/worker"
	"github.com/jwalitptl/pathology-report-api/pkg/logger"
	"github.com/jwalitptl/pathology-report-api/pkg/metrics"
)

// setupHealthCheck serves liveness, readiness and metrics on a side port.
func setupHealthCheck(port int, db *sqlx.DB, registry *prometheus.Registry, zl zerolog.Logger) *http.Server {
	engine := gin.New()
	engine.Use(gin.Recovery())
	health.NewHandler(db, promHandler.New(registry).Handler()).RegisterRoutes(engine.Group(""))

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: engine,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zl.Error().Err(err).Msg("Health check server failed")
			os.Exit(1)
		}
	}()
	return srv
}

func main() {
	// Load config
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load config")
	}

	lg := logger.NewLogger(&logger.Config{
		Level:  logger.ParseLevel(cfg.Log.Level),
		Pretty: cfg.Log.Pretty,
	})
	lg.SetGlobal()
	zl := lg.ZL.With().Str("service", "worker").Logger()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize database
	db, err := postgres.NewDB(ctx, cfg.Database)
	if err != nil {
		zl.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer db.Close()

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	appMetrics := metrics.NewMetrics("pathology_worker", registry)

	patientRepo := postgres.NewPatientRepository(db)
	pipeline, err := app.NewPipeline(ctx, cfg, patientRepo, afero.NewOsFs(), appMetrics, zl)
	if err != nil {
		zl.Fatal().Err(err).Msg("Failed to build signing pipeline")
	}
	defer pipeline.Close()

	gin.SetMode(gin.ReleaseMode)
	healthSrv := setupHealthCheck(cfg.Worker.HealthPort, db, registry, zl)
	defer healthSrv.Close()

	processor := worker.NewPendingReportsWorker(
		patientRepo,
		pipeline.Signer,
		worker.PendingReportsConfig{
			BatchSize:    cfg.Worker.BatchSize,
			PollInterval: cfg.Worker.PollInterval,
		},
		appMetrics,
		zl,
	)

	// Handle shutdown signals
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigChan
		zl.Info().Msg("Shutting down...")
		cancel()
	}()

	processor.Start(ctx)
}
