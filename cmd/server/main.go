package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/lakewatch/thermal-service/config"
	_ "github.com/lakewatch/thermal-service/docs"
	"github.com/lakewatch/thermal-service/internal/app"
	"github.com/lakewatch/thermal-service/internal/database"
	"github.com/lakewatch/thermal-service/internal/handlers"
	"github.com/lakewatch/thermal-service/internal/middleware"
	"github.com/lakewatch/thermal-service/internal/scheduler"
	"github.com/lakewatch/thermal-service/internal/telemetry"
	"github.com/lakewatch/thermal-service/internal/workers"
)

// @title Thermal Service API
// @version 1.0
// @description Internal API for ECOSTRESS acquisition requests, reprocessing, job ledger inspection and scene metadata.
// @BasePath /
// @securityDefinitions.apikey ApiKeyAuth
// @in header
// @name X-Internal-API-Key
func main() {
	cfg, err := config.Load("")
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger := initLogger(cfg.Logging)
	log.Logger = *logger

	logger.Info().Msg("Starting thermal service")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTelemetry, err := telemetry.Init(ctx, telemetry.Config{
		Enabled:     cfg.Telemetry.Enabled,
		Endpoint:    cfg.Telemetry.Endpoint,
		ServiceName: cfg.Telemetry.ServiceName,
		Environment: cfg.Telemetry.Environment,
		SampleRatio: cfg.Telemetry.SampleRatio,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to initialize telemetry")
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTelemetry(shutdownCtx); err != nil {
			logger.Warn().Err(err).Msg("Telemetry shutdown failed")
		}
	}()

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to initialize pipeline")
	}
	defer a.Close()
	prometheus.MustRegister(database.PoolCollector{})

	logger.Info().Int("regions", a.Regions.Len()).Msg("Database connected")

	if cfg.Logging.Level == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	limiter := middleware.NewIPRateLimiter(middleware.DefaultRateLimiterConfig())
	router := newRouter(cfg, a, limiter, logger)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info().Str("addr", addr).Msg("Server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info().Msg("Shutting down server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	worker := a.Worker(workers.DefaultWorkerID())
	worker.Start(gctx)
	g.Go(func() error {
		<-gctx.Done()
		worker.Stop()
		return nil
	})

	a.Poller.Start(gctx)
	g.Go(func() error {
		<-gctx.Done()
		a.Poller.Stop()
		return nil
	})

	sweeper := a.Sweeper(logger)
	g.Go(func() error {
		sweeper.Start(gctx)
		return nil
	})

	retention := a.Retention(logger)
	retention.Start(gctx)
	g.Go(func() error {
		<-gctx.Done()
		retention.Wait()
		return nil
	})

	g.Go(func() error {
		limiter.RunEviction(gctx, 5*time.Minute)
		return nil
	})

	if cfg.Scheduler.Enabled {
		sched, err := scheduler.New(scheduler.Config{RunAt: cfg.Scheduler.RunAt, LockPath: cfg.Scheduler.LockPath}, a.ScheduledTrigger)
		if err != nil {
			logger.Fatal().Err(err).Msg("Invalid scheduler configuration")
		}
		switch err := sched.Start(gctx); {
		case errors.Is(err, scheduler.ErrLocked):
			logger.Warn().Str("lock", cfg.Scheduler.LockPath).Msg("Scheduler lock held elsewhere, not scheduling on this process")
		case err != nil:
			logger.Fatal().Err(err).Msg("Failed to start scheduler")
		default:
			g.Go(func() error {
				<-gctx.Done()
				sched.Stop()
				return nil
			})
		}
	}

	if err := g.Wait(); err != nil {
		logger.Error().Err(err).Msg("Server exited with error")
		return
	}
	logger.Info().Msg("Server exited")
}

func newRouter(cfg *config.Config, a *app.App, limiter *middleware.IPRateLimiter, logger *zerolog.Logger) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestLogger(logger))
	router.Use(middleware.RateLimitMiddleware(limiter))

	health := handlers.HealthCheck(database.Status)
	router.GET("/health", health)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	handlers.RegisterDocs(router)

	internal := router.Group("/internal")
	internal.Use(middleware.InternalAuthMiddleware(cfg.Server.APIKey))
	internal.Use(middleware.ServiceRateLimitMiddleware(cfg.Server.RequestsPerSecond, cfg.Server.Burst))
	internal.GET("/health", health)

	handlers.NewAPI(a.Ledger, a.Submitter, a.Guard).Register(internal)
	return router
}

func initLogger(cfg config.LoggingConfig) *zerolog.Logger {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix

	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}

	var output io.Writer
	if cfg.Format == "json" {
		output = os.Stdout
	} else {
		output = zerolog.ConsoleWriter{Out: os.Stdout, NoColor: cfg.NoColor}
	}

	logger := zerolog.New(output).Level(level).With().Timestamp().Str("service", "thermal-service").Logger()
	return &logger
}
