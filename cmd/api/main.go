package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/afero"
	"golang.org/x/time/rate"

	"github.com/jwalitptl/pathology-report-api/internal/app"
	"github.com/jwalitptl/pathology-report-api/internal/config"
	authHandler "github.com/jwalitptl/pathology-report-api/internal/handler/auth"
	"github.com/jwalitptl/pathology-report-api/internal/handler/health"
	patientHandler "github.com/jwalitptl/pathology-report-api/internal/handler/patient"
	promHandler "github.com/jwalitptl/pathology-report-api/internal/handler/prometheus"
	reportHandler "github.com/jwalitptl/pathology-report-api/internal/handler/report"
	"github.com/jwalitptl/pathology-report-api/internal/middleware"
	"github.com/jwalitptl/pathology-report-api/internal/model"
	"github.com/jwalitptl/pathology-report-api/internal/repository/postgres"
	"github.com/jwalitptl/pathology-report-api/internal/router"
	authService "github.com/jwalitptl/pathology-report-api/internal/service/auth"
	patientService "github.com/jwalitptl/pathology-report-api/internal/service/patient"
	"github.com/jwalitptl/pathology-report-api/pkg/auth"
	"github.com/jwalitptl/pathology-report-api/pkg/logger"
	"github.com/jwalitptl/pathology-report-api/pkg/metrics"
)

func main() {
	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	lg := logger.NewLogger(&logger.Config{
		Level:  logger.ParseLevel(cfg.Log.Level),
		Pretty: cfg.Log.Pretty,
	})
	lg.SetGlobal()
	zl := lg.ZL.With().Str("service", "api").Logger()

	ctx := context.Background()

	// Initialize database
	db, err := postgres.NewDB(ctx, cfg.Database)
	if err != nil {
		zl.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()

	if cfg.Database.AutoMigrate {
		if err := postgres.Migrate(ctx, db); err != nil {
			zl.Fatal().Err(err).Msg("failed to migrate schema")
		}
	}

	// Initialize repositories
	patientRepo := postgres.NewPatientRepository(db)
	userRepo := postgres.NewUserRepository(db)

	// Initialize services
	jwtSvc := auth.NewJWTService(cfg.JWT.Secret, cfg.JWT.Expiry())
	authSvc := authService.NewService(userRepo, jwtSvc)
	patientSvc := patientService.NewService(patientRepo)

	if cfg.Auth.AdminPassword != "" {
		created, err := authSvc.EnsureUser(ctx, cfg.Auth.AdminUsername, cfg.Auth.AdminPassword, model.RoleAdmin)
		if err != nil {
			zl.Fatal().Err(err).Msg("failed to seed admin user")
		}
		if created {
			zl.Info().Str("username", cfg.Auth.AdminUsername).Msg("seeded admin user")
		}
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	appMetrics := metrics.NewMetrics("pathology", registry)

	pipeline, err := app.NewPipeline(ctx, cfg, patientRepo, afero.NewOsFs(), appMetrics, zl)
	if err != nil {
		zl.Fatal().Err(err).Msg("failed to build signing pipeline")
	}
	defer pipeline.Close()

	// Initialize handlers
	httpMetrics := promHandler.New(registry)
	authMiddleware := middleware.NewAuthMiddleware(authSvc)

	gin.SetMode(gin.ReleaseMode)
	r := router.NewRouter(
		authMiddleware,
		authHandler.NewHandler(authSvc),
		patientHandler.NewHandler(patientSvc),
		reportHandler.NewHandler(pipeline.Signer, pipeline.Store, cfg.Reports.Extension),
		health.NewHandler(db, httpMetrics.Handler()),
		router.RouterConfig{
			RateLimit: middleware.RateLimiterConfig{
				Rate:      rate.Limit(cfg.RateLimit.RequestsPerSecond),
				Burst:     cfg.RateLimit.Burst,
				ClientTTL: cfg.RateLimit.ClientTTL,
			},
			CORSConfig:    middleware.DefaultCORSConfig(cfg.Server.AllowedOrigins),
			ReportsPrefix: cfg.Reports.URLPrefix,
			Metrics:       httpMetrics,
			Logger:        zl,
		},
	)
	r.Setup()

	// Create server
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      r.Engine(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// Start server
	go func() {
		zl.Info().Str("addr", srv.Addr).Msg("starting server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zl.Fatal().Err(err).Msg("failed to start server")
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	zl.Info().Msg("shutting down server...")

	timeout := cfg.Server.ShutdownTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		zl.Error().Err(err).Msg("server forced to shutdown")
	}

	zl.Info().Msg("server exited properly")
}
