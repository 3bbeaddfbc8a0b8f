// Package app builds the pipeline components from configuration. The
// server and the CLI share it so both run the same wiring.
package app

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/lakewatch/thermal-service/config"
	"github.com/lakewatch/thermal-service/internal/database"
	"github.com/lakewatch/thermal-service/internal/http/ratelimit"
	"github.com/lakewatch/thermal-service/internal/jobs"
	"github.com/lakewatch/thermal-service/internal/ledger"
	"github.com/lakewatch/thermal-service/internal/pipeline"
	"github.com/lakewatch/thermal-service/internal/provider"
	"github.com/lakewatch/thermal-service/internal/regions"
	"github.com/lakewatch/thermal-service/internal/storage"
	"github.com/lakewatch/thermal-service/internal/sweepers"
	"github.com/lakewatch/thermal-service/internal/taskqueue"
	"github.com/lakewatch/thermal-service/internal/workers"
)

// App holds the wired pipeline.
type App struct {
	Config    *config.Config
	Pool      *pgxpool.Pool
	Ledger    *ledger.PgStore
	Queue     *taskqueue.TaskQueue
	Provider  *provider.Client
	Objects   *storage.LocalStorage
	Regions   *regions.Catalog
	Submitter *pipeline.Submitter
	Poller    *pipeline.Poller
	FanOut    *pipeline.FanOut
	Processor *pipeline.Processor
	Guard     *pipeline.Guard

	redis redis.UniversalClient
}

// New connects to Postgres (and Redis when configured), applies the schema
// if enabled and builds every pipeline component.
func New(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) (*App, error) {
	dbURL := config.GetDatabaseURL()
	if dbURL == "" {
		return nil, fmt.Errorf("DATABASE_URL not set")
	}
	err := database.Connect(ctx, database.PoolOptions{
		URL:         dbURL,
		MaxConns:    cfg.Database.MaxConnections,
		MinConns:    cfg.Database.MinConnections,
		MaxLifetime: cfg.Database.MaxConnLifetime,
		MaxIdleTime: cfg.Database.MaxConnIdleTime,
	})
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}
	pool := database.Pool()
	a := &App{Config: cfg, Pool: pool}

	if cfg.Database.AutoMigrate {
		if err := database.Migrate(ctx, pool); err != nil {
			a.Close()
			return nil, fmt.Errorf("migrate: %w", err)
		}
		logger.Info().Msg("Schema applied")
	}

	catalog, err := regions.Load(cfg.Pipeline.RegionsPath)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("load regions: %w", err)
	}
	a.Regions = catalog

	objects, err := storage.NewLocalStorage(cfg.Storage.BasePath)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.Objects = objects

	var cache provider.TokenCache
	if cfg.Redis.Addr != "" {
		a.redis = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := a.redis.Ping(ctx).Err(); err != nil {
			logger.Warn().Err(err).Str("addr", cfg.Redis.Addr).Msg("Redis unavailable, caching provider tokens in memory")
			_ = a.redis.Close()
			a.redis = nil
		} else {
			cache = provider.NewRedisTokenCache(a.redis, cfg.Provider.Username)
		}
	}

	pc := ProviderConfig(cfg)
	pc.Cache = cache
	client, err := provider.NewClient(pc)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("provider client: %w", err)
	}
	a.Provider = client

	validator, err := taskqueue.NewValidator()
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("payload schemas: %w", err)
	}
	a.Queue = taskqueue.New(pool,
		taskqueue.WithValidator(validator),
		taskqueue.WithMaxRetries(cfg.Worker.MaxRetries),
	)
	a.Ledger = ledger.NewPgStore(pool)

	a.build()
	return a, nil
}

func (a *App) build() {
	cfg := a.Config
	retry := pipeline.Retry{Attempts: cfg.Provider.CallRetries, Delay: cfg.Provider.CallRetryDelay}

	a.Submitter = pipeline.NewSubmitter(a.Ledger, a.Provider, a.Regions, pipeline.SubmitConfig{
		TaskName:      cfg.Provider.TaskName,
		Product:       cfg.Provider.Product,
		Layers:        cfg.Provider.Layers,
		DateDelayDays: cfg.Pipeline.DateDelayDays,
		Retry:         retry,
		BaseWait:      cfg.Poller.BaseWait,
	})
	a.Poller = pipeline.NewPoller(a.Ledger, a.Provider, a.Queue, pipeline.PollerConfig{
		BaseWait:            cfg.Poller.BaseWait,
		MaxWait:             cfg.Poller.MaxWait,
		StatusRetries:       cfg.Poller.StatusRetries,
		StatusRetryInterval: cfg.Poller.StatusRetryInterval,
		TickInterval:        cfg.Poller.TickInterval,
		Lease:               cfg.Poller.Lease,
		MaxConcurrent:       cfg.Poller.MaxConcurrent,
	})
	a.FanOut = pipeline.NewFanOut(a.Ledger, a.Provider, a.Queue, retry)
	a.Processor = pipeline.NewProcessor(a.Ledger, a.Provider, a.Objects, a.Regions, pipeline.ProcessorConfig{
		CollectionPrefix: cfg.Storage.CollectionPrefix,
		MaxInvalidRatio:  cfg.Worker.MaxInvalidRatio,
		Artifacts: pipeline.ArtifactOptions{
			WriteRaw:  cfg.Artifacts.WriteRaw,
			WriteXLSX: cfg.Artifacts.WriteXLSX,
			Deflate:   cfg.Artifacts.Deflate,
		},
		Retry: retry,
	})
	a.Guard = pipeline.NewGuard(a.Ledger, a.Queue, cfg.Reprocess.Retention)
}

// Worker returns a queue consumer for fan-out and scene tasks.
func (a *App) Worker(workerID string) *workers.Worker {
	cfg := a.Config.Worker
	return workers.NewPipelineWorker(a.Queue, workers.WorkerConfig{
		WorkerID:   workerID,
		MaxTasks:   cfg.BatchSize,
		NumWorkers: cfg.Concurrency,
		PollDelay:  cfg.PollDelay,
		Lease:      cfg.VisibilityTimeout,
	}, a.FanOut, a.Processor)
}

// Retention returns the housekeeping job that prunes finished poll states
// and queue tasks.
func (a *App) Retention(logger *zerolog.Logger) *jobs.RetentionManager {
	rc := a.Config.Retention
	return jobs.NewRetentionManager(jobs.RetentionConfig{
		Interval:     rc.Interval,
		PollStateAge: rc.PollStateAge,
		QueueDays:    rc.QueueDays,
		Enabled:      rc.Enabled,
	}, a.Ledger, a.Queue, logger)
}

// Sweeper returns the orphaned-task sweeper that makes expired leases
// redeliverable.
func (a *App) Sweeper(logger *zerolog.Logger) *sweepers.TaskQueueSweeper {
	s := sweepers.NewTaskQueueSweeper(a.Queue, logger, a.Config.Worker.SweepInterval)
	s.OnRecover(pipeline.RecordLeaseExpirations)
	return s
}

// ScheduledTrigger submits the default window as a scheduled request.
func (a *App) ScheduledTrigger(ctx context.Context) error {
	_, err := a.Submitter.SubmitScheduled(ctx)
	return err
}

// Close releases the database pool and the Redis client.
func (a *App) Close() {
	if a.redis != nil {
		_ = a.redis.Close()
	}
	database.Close()
}

// ProviderConfig maps the provider and outbound rate limit sections onto a
// client configuration without a token cache.
func ProviderConfig(cfg *config.Config) provider.Config {
	return provider.Config{
		BaseURL:  cfg.Provider.BaseURL,
		Username: cfg.Provider.Username,
		Password: cfg.Provider.Password,
		Timeout:  cfg.Provider.RequestTimeout,
		RateLimit: ratelimit.Config{
			RequestsPerSecond: cfg.RateLimit.RequestsPerSecond,
			Burst:             cfg.RateLimit.Burst,
			MaxRetries:        cfg.RateLimit.MaxRetries,
			InitialBackoffMs:  cfg.RateLimit.InitialBackoffMs,
			MaxBackoffMs:      cfg.RateLimit.MaxBackoffMs,
		},
	}
}
